package geo

import (
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Locator maps probed addresses to country codes for log context. A nil
// Locator answers "" for everything.
type Locator struct {
	db *geoip2.Reader
}

// Open loads a GeoLite2/GeoIP2 Country or City database. An empty path
// returns a nil Locator.
func Open(path string) (*Locator, error) {
	if path == "" {
		return nil, nil
	}
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &Locator{db: db}, nil
}

// Country returns the ISO country code of addr, or "" when unknown.
func (l *Locator) Country(addr string) string {
	if l == nil || l.db == nil {
		return ""
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return ""
	}
	rec, err := l.db.Country(ip)
	if err != nil || rec == nil {
		return ""
	}
	return rec.Country.IsoCode
}

func (l *Locator) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}
