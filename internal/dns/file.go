package dns

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/curtisra-gif/dns-failover/internal/model"
)

// FileGateway is a MemoryGateway persisted to a YAML file after every write.
// It replaces the provider for dry runs; unknown zones are created on first
// lookup.
type FileGateway struct {
	*MemoryGateway
	path string
	log  *zap.Logger
}

var _ Gateway = (*FileGateway)(nil)

type zoneFile struct {
	Zones map[string]*Zone `yaml:"zones"`
}

func NewFileGateway(path string, log *zap.Logger) (*FileGateway, error) {
	mem := NewMemoryGateway()
	mem.AutoCreateZones = true

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading zone file: %w", err)
	default:
		var zf zoneFile
		if err := yaml.Unmarshal(data, &zf); err != nil {
			return nil, fmt.Errorf("parsing zone file: %w", err)
		}
		for name, z := range zf.Zones {
			if z == nil {
				continue
			}
			mem.addZoneWithID(name, z.ID)
			mem.Seed(name, z.Records...)
		}
	}

	return &FileGateway{MemoryGateway: mem, path: path, log: log}, nil
}

func (f *FileGateway) save() error {
	f.mu.RLock()
	data, err := yaml.Marshal(zoneFile{Zones: f.zones})
	f.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshaling zone file: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0o644); err != nil {
		return fmt.Errorf("writing zone file: %w", err)
	}
	f.log.Debug("zone file written", zap.String("path", f.path))
	return nil
}

func (f *FileGateway) ZoneID(ctx context.Context, zone string) (string, error) {
	id, err := f.MemoryGateway.ZoneID(ctx, zone)
	if err != nil {
		return "", err
	}
	return id, f.save()
}

func (f *FileGateway) CreateRecord(ctx context.Context, zoneID string, rec model.Record) error {
	if err := f.MemoryGateway.CreateRecord(ctx, zoneID, rec); err != nil {
		return err
	}
	return f.save()
}

func (f *FileGateway) UpdateRecord(ctx context.Context, zoneID, recordID string, rec model.Record) error {
	if err := f.MemoryGateway.UpdateRecord(ctx, zoneID, recordID, rec); err != nil {
		return err
	}
	return f.save()
}

func (f *FileGateway) DeleteRecord(ctx context.Context, zoneID, recordID string) error {
	if err := f.MemoryGateway.DeleteRecord(ctx, zoneID, recordID); err != nil {
		return err
	}
	return f.save()
}
