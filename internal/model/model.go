package model

import (
	"net"
	"strings"
)

// Side identifies which of a group's two targets is live.
type Side int

const (
	Primary Side = iota
	Backup
)

func (s Side) String() string {
	switch s {
	case Primary:
		return "primary"
	case Backup:
		return "backup"
	default:
		return "unknown"
	}
}

// Other returns the opposite side.
func (s Side) Other() Side {
	if s == Primary {
		return Backup
	}
	return Primary
}

type RecordType string

const (
	RecordTypeA     RecordType = "A"
	RecordTypeAAAA  RecordType = "AAAA"
	RecordTypeCNAME RecordType = "CNAME"
)

// ManagedRecordTypes are the types a managed name may carry. Only one of them
// is allowed per name at a time.
var ManagedRecordTypes = []RecordType{RecordTypeA, RecordTypeAAAA, RecordTypeCNAME}

// RecordTypeFor picks the record type able to hold content: A for IPv4
// literals, AAAA for IPv6 literals, CNAME for anything else.
func RecordTypeFor(content string) RecordType {
	ip := net.ParseIP(content)
	switch {
	case ip == nil:
		return RecordTypeCNAME
	case ip.To4() != nil:
		return RecordTypeA
	default:
		return RecordTypeAAAA
	}
}

// IsLiteral reports whether target is an IP address rather than a hostname.
func IsLiteral(target string) bool {
	return net.ParseIP(target) != nil
}

// Record is a DNS record as seen in, or written to, the provider's zone.
type Record struct {
	ID      string     `yaml:"id" json:"id"`
	Type    RecordType `yaml:"type" json:"type"`
	Name    string     `yaml:"name" json:"name"`
	Content string     `yaml:"content" json:"content"`
	TTL     int        `yaml:"ttl" json:"ttl"`
	Proxied bool       `yaml:"proxied" json:"proxied"`
}

// Group is one failover unit. It is built once at startup and never mutated.
type Group struct {
	Name       string   `yaml:"name" json:"name" validate:"required"`
	Primary    string   `yaml:"primary" json:"primary" validate:"required"`
	Backup     string   `yaml:"backup" json:"backup" validate:"required"`
	Subdomains []string `yaml:"subdomains" json:"subdomains" validate:"required,min=1,dive,required,fqdn"`
	CheckPort  int      `yaml:"check_port" json:"check_port" validate:"min=1,max=65535"`
	Zone       string   `yaml:"zone" json:"zone" validate:"required,fqdn"`
	Proxied    *bool    `yaml:"proxied,omitempty" json:"proxied,omitempty"`
	TTL        int      `yaml:"ttl" json:"ttl" validate:"min=0"`
}

// Target returns the configured value of the given side.
func (g *Group) Target(s Side) string {
	if s == Backup {
		return g.Backup
	}
	return g.Primary
}

// SideOf reports which configured target content matches, if any.
func (g *Group) SideOf(content string) (Side, bool) {
	switch {
	case SameContent(content, g.Primary):
		return Primary, true
	case SameContent(content, g.Backup):
		return Backup, true
	}
	return Primary, false
}

// SameContent compares record contents: IP literals by value, hostnames
// case-insensitively without the trailing dot.
func SameContent(a, b string) bool {
	ipA, ipB := net.ParseIP(a), net.ParseIP(b)
	if ipA != nil && ipB != nil {
		return ipA.Equal(ipB)
	}
	return strings.TrimSuffix(strings.ToLower(a), ".") == strings.TrimSuffix(strings.ToLower(b), ".")
}

// UseProxy reports the CDN pass-through flag for written records.
func (g *Group) UseProxy() bool {
	return g.Proxied == nil || *g.Proxied
}
