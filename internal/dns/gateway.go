package dns

import (
	"context"
	"errors"

	"github.com/curtisra-gif/dns-failover/internal/model"
)

var (
	ErrZoneNotFound   = errors.New("zone not found")
	ErrRecordNotFound = errors.New("record not found")
)

// Gateway is the provider-side view of a DNS zone. Every call is safe to
// retry: the reconciler re-reads before it writes.
type Gateway interface {
	// ZoneID looks up the provider identifier of a zone apex.
	ZoneID(ctx context.Context, zone string) (string, error)
	// ListRecords returns the records called name of the given type.
	ListRecords(ctx context.Context, zoneID, name string, typ model.RecordType) ([]model.Record, error)
	CreateRecord(ctx context.Context, zoneID string, rec model.Record) error
	UpdateRecord(ctx context.Context, zoneID, recordID string, rec model.Record) error
	DeleteRecord(ctx context.Context, zoneID, recordID string) error
}

// Lookup returns every managed-type record for name.
func Lookup(ctx context.Context, gw Gateway, zoneID, name string) ([]model.Record, error) {
	var out []model.Record
	for _, t := range model.ManagedRecordTypes {
		recs, err := gw.ListRecords(ctx, zoneID, name, t)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}
