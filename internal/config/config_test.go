package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func legacyEnv() map[string]string {
	return map[string]string{
		"CLOUDFLARE_API_TOKEN": "token",
		"SHOP_MAIN_IP":         "203.0.113.10",
		"SHOP_BACKUP_IP":       "198.51.100.2",
		"SHOP_SUBDOMAINS":      "www.example.com, api.example.com ,",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(legacyEnv())
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Failover.FailureThreshold)
	assert.Equal(t, 2, cfg.Failover.RecoveryThreshold)
	assert.Equal(t, 60, cfg.Failover.DegradedLoss)
	assert.Equal(t, 60*time.Second, cfg.Failover.CheckInterval)
	assert.True(t, cfg.Failover.BootstrapFromDNS)
	assert.True(t, cfg.Failover.UseCDN)
	assert.Equal(t, 4, cfg.Failover.GroupParallelism)
	assert.Equal(t, 4.0, cfg.Cloudflare.RPS)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Status.Addr)
	assert.NoError(t, cfg.Validate())
	assert.False(t, cfg.UseZoneFile())
	assert.False(t, cfg.Telegram.Enabled())
	assert.False(t, cfg.SMTP.Enabled())
}

func TestLoadLegacyGroup(t *testing.T) {
	cfg, err := LoadFrom(legacyEnv())
	require.NoError(t, err)
	require.Len(t, cfg.Groups, 1)

	g := cfg.Groups[0]
	assert.Equal(t, "SHOP", g.Name)
	assert.Equal(t, "203.0.113.10", g.Primary)
	assert.Equal(t, "198.51.100.2", g.Backup)
	assert.Equal(t, []string{"www.example.com", "api.example.com"}, g.Subdomains)
	assert.Equal(t, 443, g.CheckPort)
	assert.Equal(t, "example.com", g.Zone)
	assert.Equal(t, 1, g.TTL)
	assert.True(t, g.UseProxy())
}

func TestLoadDropsIncompleteGroups(t *testing.T) {
	vars := legacyEnv()
	vars["BLOG_MAIN_IP"] = "203.0.113.20"
	vars["BLOG_SUBDOMAINS"] = "blog.example.com"
	vars["API_MAIN_IP"] = "203.0.113.30"
	vars["API_BACKUP_IP"] = "198.51.100.30"
	vars["API_SUBDOMAINS"] = "api2.example.com"
	vars["API_CHECK_PORT"] = "https"

	cfg, err := LoadFrom(vars)
	require.NoError(t, err)
	require.Len(t, cfg.Groups, 1)
	assert.Equal(t, "SHOP", cfg.Groups[0].Name)
	assert.Len(t, cfg.Warnings, 3)
}

func TestLoadNoGroups(t *testing.T) {
	_, err := LoadFrom(map[string]string{"ORPHAN_MAIN_IP": "203.0.113.10"})
	assert.ErrorIs(t, err, ErrNoGroups)
}

func TestLoadRejectsBadThresholds(t *testing.T) {
	vars := legacyEnv()
	vars["FAILURE_THRESHOLD"] = "0"
	_, err := LoadFrom(vars)
	assert.Error(t, err)
}

func TestLoadFileOverridesEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failover.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
failover:
  failure_threshold: 5
  check_interval: 15s
  use_cdn: false
probe:
  dns_servers: [1.1.1.1, 1.0.0.1]
groups:
  - name: shop
    primary: origin.example.net
    backup: 198.51.100.2
    subdomains: [www.example.com]
    check_port: 8080
  - name: shop
    primary: 203.0.113.99
    backup: 198.51.100.99
    subdomains: [dup.example.com]
  - name: media
    primary: 203.0.113.40
    backup: 198.51.100.40
    subdomains: [cdn.media.example.org]
    zone: example.org
    proxied: true
`), 0o644))

	vars := map[string]string{
		"CONFIG_FILE":        path,
		"ZONE_FILE":          "/tmp/zones.yaml",
		"FAILURE_THRESHOLD":  "7",
		"RECOVERY_THRESHOLD": "4",
	}
	cfg, err := LoadFrom(vars)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Failover.FailureThreshold)
	assert.Equal(t, 4, cfg.Failover.RecoveryThreshold)
	assert.Equal(t, 15*time.Second, cfg.Failover.CheckInterval)
	assert.Equal(t, []string{"1.1.1.1", "1.0.0.1"}, cfg.Probe.DNSServers)
	assert.True(t, cfg.UseZoneFile())
	assert.NoError(t, cfg.Validate())

	require.Len(t, cfg.Groups, 2)
	shop := cfg.Groups[0]
	assert.Equal(t, "shop", shop.Name)
	assert.Equal(t, 8080, shop.CheckPort)
	assert.Equal(t, "example.com", shop.Zone)
	assert.False(t, shop.UseProxy())

	media := cfg.Groups[1]
	assert.Equal(t, "example.org", media.Zone)
	assert.True(t, media.UseProxy())
	assert.Contains(t, cfg.Warnings, `group "shop" excluded: duplicate name`)
}

func TestValidateRequiresBackend(t *testing.T) {
	vars := legacyEnv()
	delete(vars, "CLOUDFLARE_API_TOKEN")
	cfg, err := LoadFrom(vars)
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}

func TestZoneOf(t *testing.T) {
	assert.Equal(t, "example.com", ZoneOf("www.example.com"))
	assert.Equal(t, "example.co.uk", ZoneOf("shop.example.co.uk"))
	assert.Equal(t, "example.com", ZoneOf("example.com."))
	assert.Equal(t, "b.example.com", ZoneOf("a.b.example.com"))
}
