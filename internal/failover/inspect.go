package failover

import (
	"context"
	"fmt"

	"github.com/curtisra-gif/dns-failover/internal/dns"
	"github.com/curtisra-gif/dns-failover/internal/model"
)

const (
	BindingPrimary = "primary"
	BindingBackup  = "backup"
	BindingUnknown = "unknown"
	BindingMissing = "missing"
)

// Binding is the live state of one managed name.
type Binding struct {
	Subdomain string         `json:"subdomain"`
	Records   []model.Record `json:"records"`
	// Points is primary or backup when every record carries that target's
	// value, missing when there are none and unknown otherwise.
	Points string `json:"points"`
}

// Inspect reads and classifies every managed name of g.
func Inspect(ctx context.Context, gw dns.Gateway, zoneID string, g *model.Group) ([]Binding, error) {
	out := make([]Binding, 0, len(g.Subdomains))
	for _, sub := range g.Subdomains {
		recs, err := dns.Lookup(ctx, gw, zoneID, sub)
		if err != nil {
			return out, fmt.Errorf("%s: %w", sub, err)
		}
		out = append(out, Binding{Subdomain: sub, Records: recs, Points: classify(g, recs)})
	}
	return out, nil
}

func classify(g *model.Group, recs []model.Record) string {
	if len(recs) == 0 {
		return BindingMissing
	}
	first, ok := g.SideOf(recs[0].Content)
	if !ok {
		return BindingUnknown
	}
	for _, r := range recs[1:] {
		if side, ok := g.SideOf(r.Content); !ok || side != first {
			return BindingUnknown
		}
	}
	return first.String()
}
