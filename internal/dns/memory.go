package dns

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/curtisra-gif/dns-failover/internal/model"
)

// Zone is a named set of records.
type Zone struct {
	ID      string         `yaml:"id"`
	Records []model.Record `yaml:"records"`
}

// MemoryGateway keeps zones in process memory. It backs FileGateway and
// stands in for the provider in tests.
type MemoryGateway struct {
	mu     sync.RWMutex
	zones  map[string]*Zone // by zone name
	nextID int

	// AutoCreateZones makes ZoneID create unknown zones instead of failing.
	AutoCreateZones bool
}

var _ Gateway = (*MemoryGateway)(nil)

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{zones: make(map[string]*Zone)}
}

// AddZone registers a zone and returns its ID.
func (m *MemoryGateway) AddZone(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addZone(name)
}

func (m *MemoryGateway) addZone(name string) string {
	return m.addZoneWithID(name, "")
}

func (m *MemoryGateway) addZoneWithID(name, id string) string {
	name = canonical(name)
	if z, ok := m.zones[name]; ok {
		return z.ID
	}
	if id == "" {
		id = "zone-" + strings.ReplaceAll(name, ".", "-")
	}
	m.zones[name] = &Zone{ID: id}
	return id
}

// Seed inserts records directly, bypassing the Gateway API.
func (m *MemoryGateway) Seed(zone string, recs ...model.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addZone(zone)
	z := m.zones[canonical(zone)]
	for _, r := range recs {
		if r.ID == "" {
			r.ID = m.newID()
		}
		r.Name = canonical(r.Name)
		z.Records = append(z.Records, r)
	}
}

// Records returns a copy of every record named name in any zone.
func (m *MemoryGateway) Records(name string) []model.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name = canonical(name)
	var out []model.Record
	for _, z := range m.zones {
		for _, r := range z.Records {
			if r.Name == name {
				out = append(out, r)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryGateway) newID() string {
	for {
		m.nextID++
		id := fmt.Sprintf("rec-%04d", m.nextID)
		if !m.hasRecord(id) {
			return id
		}
	}
}

func (m *MemoryGateway) hasRecord(id string) bool {
	for _, z := range m.zones {
		for _, r := range z.Records {
			if r.ID == id {
				return true
			}
		}
	}
	return false
}

func (m *MemoryGateway) zoneByID(id string) (*Zone, error) {
	for _, z := range m.zones {
		if z.ID == id {
			return z, nil
		}
	}
	return nil, fmt.Errorf("%w: id %s", ErrZoneNotFound, id)
}

func (m *MemoryGateway) ZoneID(_ context.Context, zone string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if z, ok := m.zones[canonical(zone)]; ok {
		return z.ID, nil
	}
	if m.AutoCreateZones {
		return m.addZone(zone), nil
	}
	return "", fmt.Errorf("%w: %s", ErrZoneNotFound, zone)
}

func (m *MemoryGateway) ListRecords(_ context.Context, zoneID, name string, typ model.RecordType) ([]model.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	z, err := m.zoneByID(zoneID)
	if err != nil {
		return nil, err
	}
	name = canonical(name)
	var out []model.Record
	for _, r := range z.Records {
		if r.Name == name && (typ == "" || r.Type == typ) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryGateway) CreateRecord(_ context.Context, zoneID string, rec model.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, err := m.zoneByID(zoneID)
	if err != nil {
		return err
	}
	rec.ID = m.newID()
	rec.Name = canonical(rec.Name)
	z.Records = append(z.Records, rec)
	return nil
}

func (m *MemoryGateway) UpdateRecord(_ context.Context, zoneID, recordID string, rec model.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, err := m.zoneByID(zoneID)
	if err != nil {
		return err
	}
	for i := range z.Records {
		if z.Records[i].ID == recordID {
			rec.ID = recordID
			rec.Name = canonical(rec.Name)
			z.Records[i] = rec
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrRecordNotFound, recordID)
}

func (m *MemoryGateway) DeleteRecord(_ context.Context, zoneID, recordID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, err := m.zoneByID(zoneID)
	if err != nil {
		return err
	}
	for i := range z.Records {
		if z.Records[i].ID == recordID {
			z.Records = append(z.Records[:i], z.Records[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrRecordNotFound, recordID)
}

func canonical(name string) string {
	return strings.TrimSuffix(strings.ToLower(name), ".")
}
