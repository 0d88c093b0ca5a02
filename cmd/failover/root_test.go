package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curtisra-gif/dns-failover/internal/failover"
)

func setDryRunEnv(t *testing.T) string {
	t.Helper()
	zoneFile := filepath.Join(t.TempDir(), "zones.yaml")
	t.Setenv("ZONE_FILE", zoneFile)
	t.Setenv("SHOP_MAIN_IP", "203.0.113.10")
	t.Setenv("SHOP_BACKUP_IP", "198.51.100.2")
	t.Setenv("SHOP_SUBDOMAINS", "www.example.com,api.example.com")
	// Nothing listens here, so every probe resolves to unhealthy.
	t.Setenv("DNS_SERVERS", "127.0.0.1:1")
	t.Setenv("FAILURE_THRESHOLD", "1")
	t.Setenv("LOG_LEVEL", "error")
	return zoneFile
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestOnceFailsOverIntoZoneFile(t *testing.T) {
	zoneFile := setDryRunEnv(t)

	out, err := execute(t, "once", "--json")
	require.NoError(t, err)

	var statuses []failover.Status
	require.NoError(t, json.Unmarshal([]byte(out), &statuses))
	require.Len(t, statuses, 1)
	assert.Equal(t, "SHOP", statuses[0].Group)
	assert.Equal(t, "backup", statuses[0].Active)
	assert.False(t, statuses[0].PendingReconcile)

	data, err := os.ReadFile(zoneFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "198.51.100.2")

	out, err = execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "www.example.com")
	assert.Contains(t, out, "backup")
	assert.Contains(t, out, "A 198.51.100.2")
}

func TestStatusBeforeAnyWrite(t *testing.T) {
	setDryRunEnv(t)

	out, err := execute(t, "status", "--json")
	require.NoError(t, err)

	var bindings map[string][]failover.Binding
	require.NoError(t, json.Unmarshal([]byte(out), &bindings))
	require.Len(t, bindings["SHOP"], 2)
	assert.Equal(t, failover.BindingMissing, bindings["SHOP"][0].Points)
}

func TestConfigFlag(t *testing.T) {
	setDryRunEnv(t)
	path := filepath.Join(t.TempDir(), "failover.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
groups:
  - name: media
    primary: 203.0.113.40
    backup: 198.51.100.40
    subdomains: [cdn.example.org]
`), 0o644))

	out, err := execute(t, "--config", path, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "media")
	assert.Contains(t, out, "cdn.example.org")
}

func TestMissingBackendFails(t *testing.T) {
	setDryRunEnv(t)
	t.Setenv("ZONE_FILE", "")
	t.Setenv("CLOUDFLARE_API_TOKEN", "")

	_, err := execute(t, "status")
	assert.ErrorContains(t, err, "CLOUDFLARE_API_TOKEN")
}
