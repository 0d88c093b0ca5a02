package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

const DefaultResolveTimeout = 3 * time.Second

var ErrNoAddress = errors.New("no address records")

// Resolver turns a hostname into one address.
type Resolver interface {
	Resolve(ctx context.Context, host string) (string, error)
}

// NewResolver returns an UpstreamResolver for servers, or the system
// resolver when servers is empty.
func NewResolver(servers []string) Resolver {
	if len(servers) == 0 {
		return &SystemResolver{Timeout: DefaultTCPTimeout}
	}
	return NewUpstreamResolver(servers, DefaultResolveTimeout)
}

// SystemResolver uses the host's resolver configuration.
type SystemResolver struct {
	Timeout time.Duration
}

func (r *SystemResolver) Resolve(ctx context.Context, host string) (string, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return "", err
	}
	for _, a := range addrs {
		if a.IP.To4() != nil {
			return a.IP.String(), nil
		}
	}
	if len(addrs) > 0 {
		return addrs[0].IP.String(), nil
	}
	return "", ErrNoAddress
}

// UpstreamResolver asks a fixed list of nameservers for A records, in order,
// and returns the first address found.
type UpstreamResolver struct {
	servers []string
	client  *dns.Client
}

func NewUpstreamResolver(servers []string, timeout time.Duration) *UpstreamResolver {
	norm := make([]string, 0, len(servers))
	for _, s := range servers {
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(s, "53")
		}
		norm = append(norm, s)
	}
	return &UpstreamResolver{
		servers: norm,
		client:  &dns.Client{Net: "udp", Timeout: timeout},
	}
}

func (r *UpstreamResolver) Resolve(ctx context.Context, host string) (string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)
	m.RecursionDesired = true

	lastErr := ErrNoAddress
	for _, server := range r.servers {
		in, _, err := r.client.ExchangeContext(ctx, m, server)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", server, err)
			continue
		}
		if in.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("%s answered %s", server, dns.RcodeToString[in.Rcode])
			continue
		}
		for _, rr := range in.Answer {
			if a, ok := rr.(*dns.A); ok {
				return a.A.String(), nil
			}
		}
		lastErr = fmt.Errorf("%s: %w", server, ErrNoAddress)
	}
	return "", lastErr
}
