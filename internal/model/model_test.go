package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordTypeFor(t *testing.T) {
	assert.Equal(t, RecordTypeA, RecordTypeFor("203.0.113.10"))
	assert.Equal(t, RecordTypeAAAA, RecordTypeFor("2001:db8::1"))
	assert.Equal(t, RecordTypeCNAME, RecordTypeFor("backup.example.net"))
	assert.Equal(t, RecordTypeCNAME, RecordTypeFor("999.1.1.1"))
}

func TestSide(t *testing.T) {
	assert.Equal(t, "primary", Primary.String())
	assert.Equal(t, "backup", Backup.String())
	assert.Equal(t, Backup, Primary.Other())
	assert.Equal(t, Primary, Backup.Other())
}

func TestGroupSideOf(t *testing.T) {
	g := &Group{Primary: "203.0.113.10", Backup: "Backup.Example.net"}

	side, ok := g.SideOf("203.0.113.10")
	assert.True(t, ok)
	assert.Equal(t, Primary, side)

	side, ok = g.SideOf("backup.example.net.")
	assert.True(t, ok)
	assert.Equal(t, Backup, side)

	_, ok = g.SideOf("198.51.100.1")
	assert.False(t, ok)
}

func TestSameContent(t *testing.T) {
	assert.True(t, SameContent("2001:db8:0:0::1", "2001:db8::1"))
	assert.True(t, SameContent("Origin.Example.net.", "origin.example.net"))
	assert.False(t, SameContent("2001:db8::1", "2001:db8::2"))
	assert.False(t, SameContent("192.0.2.1", "host.example.net"))

	g := &Group{Primary: "2001:DB8:0:0::10", Backup: "198.51.100.2"}
	side, ok := g.SideOf("2001:db8::10")
	assert.True(t, ok)
	assert.Equal(t, Primary, side)
}

func TestGroupUseProxy(t *testing.T) {
	g := &Group{}
	assert.True(t, g.UseProxy())

	off := false
	g.Proxied = &off
	assert.False(t, g.UseProxy())
}
