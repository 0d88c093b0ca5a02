package dns

import (
	"context"

	"github.com/curtisra-gif/dns-failover/internal/model"
	"github.com/curtisra-gif/dns-failover/internal/throttler"
)

// Throttled waits on a per-zone token bucket before every gateway call.
type Throttled struct {
	Gateway
	th *throttler.Throttler
}

func NewThrottled(gw Gateway, th *throttler.Throttler) *Throttled {
	return &Throttled{Gateway: gw, th: th}
}

func (t *Throttled) ZoneID(ctx context.Context, zone string) (string, error) {
	if err := t.th.Wait(ctx, zone); err != nil {
		return "", err
	}
	return t.Gateway.ZoneID(ctx, zone)
}

func (t *Throttled) ListRecords(ctx context.Context, zoneID, name string, typ model.RecordType) ([]model.Record, error) {
	if err := t.th.Wait(ctx, zoneID); err != nil {
		return nil, err
	}
	return t.Gateway.ListRecords(ctx, zoneID, name, typ)
}

func (t *Throttled) CreateRecord(ctx context.Context, zoneID string, rec model.Record) error {
	if err := t.th.Wait(ctx, zoneID); err != nil {
		return err
	}
	return t.Gateway.CreateRecord(ctx, zoneID, rec)
}

func (t *Throttled) UpdateRecord(ctx context.Context, zoneID, recordID string, rec model.Record) error {
	if err := t.th.Wait(ctx, zoneID); err != nil {
		return err
	}
	return t.Gateway.UpdateRecord(ctx, zoneID, recordID, rec)
}

func (t *Throttled) DeleteRecord(ctx context.Context, zoneID, recordID string) error {
	if err := t.th.Wait(ctx, zoneID); err != nil {
		return err
	}
	return t.Gateway.DeleteRecord(ctx, zoneID, recordID)
}
