package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/curtisra-gif/dns-failover/internal/geo"
	"github.com/curtisra-gif/dns-failover/internal/model"
)

const (
	LossHealthy   = 0
	LossUnhealthy = 100

	// DefaultDegradedLoss is the loss score at or above which a target
	// counts as down.
	DefaultDegradedLoss = 60

	DefaultHTTPTimeout = 10 * time.Second
	DefaultTCPTimeout  = 5 * time.Second
)

// Mode selects how a target is checked after resolution.
type Mode int

const (
	// ModeHTTP issues GET / and expects 200. Used on subdomains while the
	// primary is live.
	ModeHTTP Mode = iota
	// ModeTCP only connects. Used on the primary while the backup is live.
	ModeTCP
)

func (m Mode) String() string {
	if m == ModeTCP {
		return "tcp"
	}
	return "http"
}

// Observation is the outcome of one probe. Err is for logging only.
type Observation struct {
	Target          string
	Mode            Mode
	LossScore       int
	ResolvedAddress string
	Err             error
}

// Degraded reports whether the score crosses threshold.
func (o Observation) Degraded(threshold int) bool {
	return o.LossScore >= threshold
}

var errUnexpectedStatus = errors.New("unexpected status")

type Prober struct {
	resolver Resolver
	client   *http.Client
	dialer   *net.Dialer
	geo      *geo.Locator
	log      *zap.Logger
}

type Option func(*Prober)

func WithHTTPClient(c *http.Client) Option {
	return func(p *Prober) { p.client = c }
}

func WithTCPTimeout(d time.Duration) Option {
	return func(p *Prober) { p.dialer = &net.Dialer{Timeout: d} }
}

// WithGeo annotates probe log lines with the resolved address's country.
func WithGeo(l *geo.Locator) Option {
	return func(p *Prober) { p.geo = l }
}

func NewProber(resolver Resolver, log *zap.Logger, opts ...Option) *Prober {
	p := &Prober{
		resolver: resolver,
		client:   &http.Client{Timeout: DefaultHTTPTimeout},
		dialer:   &net.Dialer{Timeout: DefaultTCPTimeout},
		log:      log,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Probe resolves target and checks it in the given mode. It never fails:
// every error becomes LossUnhealthy.
func (p *Prober) Probe(ctx context.Context, target string, port int, mode Mode) Observation {
	obs := Observation{Target: target, Mode: mode, LossScore: LossUnhealthy}

	addr, err := p.resolve(ctx, target)
	if err != nil {
		obs.Err = fmt.Errorf("resolve %s: %w", target, err)
		p.report(obs)
		return obs
	}
	obs.ResolvedAddress = addr

	switch mode {
	case ModeTCP:
		err = p.checkTCP(ctx, addr, port)
	default:
		err = p.checkHTTP(ctx, target, port)
	}
	if err != nil {
		obs.Err = err
	} else {
		obs.LossScore = LossHealthy
	}
	p.report(obs)
	return obs
}

func (p *Prober) resolve(ctx context.Context, target string) (string, error) {
	if model.IsLiteral(target) {
		return target, nil
	}
	return p.resolver.Resolve(ctx, target)
}

func (p *Prober) checkHTTP(ctx context.Context, target string, port int) error {
	scheme := "http"
	if port == 443 {
		scheme = "https"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, scheme+"://"+target+"/", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w %d", errUnexpectedStatus, resp.StatusCode)
	}
	return nil
}

func (p *Prober) checkTCP(ctx context.Context, addr string, port int) error {
	conn, err := p.dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	return conn.Close()
}

func (p *Prober) report(obs Observation) {
	fields := []zap.Field{
		zap.String("target", obs.Target),
		zap.String("mode", obs.Mode.String()),
		zap.String("resolved", obs.ResolvedAddress),
		zap.Int("loss", obs.LossScore),
	}
	if cc := p.geo.Country(obs.ResolvedAddress); cc != "" {
		fields = append(fields, zap.String("country", cc))
	}
	if obs.Err != nil {
		p.log.Warn("probe failed", append(fields, zap.Error(obs.Err))...)
		return
	}
	p.log.Debug("probe ok", fields...)
}
