package dns

import (
	"context"
	"fmt"

	"github.com/cloudflare/cloudflare-go"

	"github.com/curtisra-gif/dns-failover/internal/model"
)

// Cloudflare talks to the Cloudflare v4 API with a scoped API token.
type Cloudflare struct {
	api *cloudflare.API
}

var _ Gateway = (*Cloudflare)(nil)

type CloudflareOptions struct {
	// BaseURL overrides the API root, for tests.
	BaseURL string
	// RPS is the client-side request rate; zero keeps the library default.
	RPS float64
}

func NewCloudflare(token string, opts CloudflareOptions) (*Cloudflare, error) {
	var cfOpts []cloudflare.Option
	if opts.BaseURL != "" {
		cfOpts = append(cfOpts, cloudflare.BaseURL(opts.BaseURL))
	}
	if opts.RPS > 0 {
		cfOpts = append(cfOpts, cloudflare.UsingRateLimit(opts.RPS))
	}
	api, err := cloudflare.NewWithAPIToken(token, cfOpts...)
	if err != nil {
		return nil, fmt.Errorf("cloudflare client: %w", err)
	}
	return &Cloudflare{api: api}, nil
}

// ZoneID looks the zone up by name. Only an empty result is reported as
// ErrZoneNotFound; API and transport errors pass through.
func (c *Cloudflare) ZoneID(ctx context.Context, zone string) (string, error) {
	res, err := c.api.ListZonesContext(ctx, cloudflare.WithZoneFilters(zone, "", ""))
	if err != nil {
		return "", fmt.Errorf("list zones %s: %w", zone, err)
	}
	switch len(res.Result) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrZoneNotFound, zone)
	case 1:
		return res.Result[0].ID, nil
	default:
		return "", fmt.Errorf("zone %s is ambiguous: %d matches", zone, len(res.Result))
	}
}

func (c *Cloudflare) ListRecords(ctx context.Context, zoneID, name string, typ model.RecordType) ([]model.Record, error) {
	recs, _, err := c.api.ListDNSRecords(ctx, cloudflare.ZoneIdentifier(zoneID), cloudflare.ListDNSRecordsParams{
		Type: string(typ),
		Name: name,
		// An explicit page disables auto-pagination; a managed name never
		// has more than a handful of records.
		ResultInfo: cloudflare.ResultInfo{Page: 1, PerPage: 100},
	})
	if err != nil {
		return nil, fmt.Errorf("list %s %s: %w", typ, name, err)
	}
	out := make([]model.Record, 0, len(recs))
	for _, r := range recs {
		out = append(out, model.Record{
			ID:      r.ID,
			Type:    model.RecordType(r.Type),
			Name:    r.Name,
			Content: r.Content,
			TTL:     r.TTL,
			Proxied: r.Proxied != nil && *r.Proxied,
		})
	}
	return out, nil
}

func (c *Cloudflare) CreateRecord(ctx context.Context, zoneID string, rec model.Record) error {
	proxied := rec.Proxied
	_, err := c.api.CreateDNSRecord(ctx, cloudflare.ZoneIdentifier(zoneID), cloudflare.CreateDNSRecordParams{
		Type:    string(rec.Type),
		Name:    rec.Name,
		Content: rec.Content,
		TTL:     rec.TTL,
		Proxied: &proxied,
	})
	if err != nil {
		return fmt.Errorf("create %s %s: %w", rec.Type, rec.Name, err)
	}
	return nil
}

func (c *Cloudflare) UpdateRecord(ctx context.Context, zoneID, recordID string, rec model.Record) error {
	proxied := rec.Proxied
	_, err := c.api.UpdateDNSRecord(ctx, cloudflare.ZoneIdentifier(zoneID), cloudflare.UpdateDNSRecordParams{
		ID:      recordID,
		Type:    string(rec.Type),
		Name:    rec.Name,
		Content: rec.Content,
		TTL:     rec.TTL,
		Proxied: &proxied,
	})
	if err != nil {
		return fmt.Errorf("update %s %s: %w", rec.Type, rec.Name, err)
	}
	return nil
}

func (c *Cloudflare) DeleteRecord(ctx context.Context, zoneID, recordID string) error {
	if err := c.api.DeleteDNSRecord(ctx, cloudflare.ZoneIdentifier(zoneID), recordID); err != nil {
		return fmt.Errorf("delete %s: %w", recordID, err)
	}
	return nil
}
