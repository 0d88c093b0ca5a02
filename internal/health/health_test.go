package health

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticResolver struct {
	addr string
	err  error
}

func (r staticResolver) Resolve(context.Context, string) (string, error) {
	return r.addr, r.err
}

func hostPort(t *testing.T, rawURL string) string {
	t.Helper()
	return strings.TrimPrefix(rawURL, "http://")
}

func TestProbeHTTP(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer broken.Close()

	p := NewProber(staticResolver{addr: "127.0.0.1"}, zap.NewNop())

	obs := p.Probe(context.Background(), hostPort(t, ok.URL), 8080, ModeHTTP)
	assert.Equal(t, LossHealthy, obs.LossScore)
	assert.Equal(t, "127.0.0.1", obs.ResolvedAddress)
	assert.NoError(t, obs.Err)
	assert.False(t, obs.Degraded(DefaultDegradedLoss))

	obs = p.Probe(context.Background(), hostPort(t, broken.URL), 8080, ModeHTTP)
	assert.Equal(t, LossUnhealthy, obs.LossScore)
	assert.ErrorIs(t, obs.Err, errUnexpectedStatus)
	assert.True(t, obs.Degraded(DefaultDegradedLoss))
}

func TestProbeResolutionFailureSkipsCheck(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	p := NewProber(staticResolver{err: errors.New("nxdomain")}, zap.NewNop())
	obs := p.Probe(context.Background(), hostPort(t, srv.URL), 8080, ModeHTTP)

	assert.Equal(t, LossUnhealthy, obs.LossScore)
	assert.Empty(t, obs.ResolvedAddress)
	assert.Error(t, obs.Err)
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestProbeTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()
	port := ln.Addr().(*net.TCPAddr).Port

	// Literal targets never reach the resolver.
	p := NewProber(staticResolver{err: errors.New("must not be called")}, zap.NewNop())

	obs := p.Probe(context.Background(), "127.0.0.1", port, ModeTCP)
	assert.Equal(t, LossHealthy, obs.LossScore)
	assert.Equal(t, "127.0.0.1", obs.ResolvedAddress)

	closed, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closedPort := closed.Addr().(*net.TCPAddr).Port
	closed.Close()

	obs = p.Probe(context.Background(), "127.0.0.1", closedPort, ModeTCP)
	assert.Equal(t, LossUnhealthy, obs.LossScore)
	assert.Error(t, obs.Err)
}

func TestProbeTCPUsesResolvedAddress(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
	}()

	p := NewProber(staticResolver{addr: "127.0.0.1"}, zap.NewNop())
	obs := p.Probe(context.Background(), "origin.example.test", ln.Addr().(*net.TCPAddr).Port, ModeTCP)
	assert.Equal(t, LossHealthy, obs.LossScore)
	assert.Equal(t, "127.0.0.1", obs.ResolvedAddress)
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "http", ModeHTTP.String())
	assert.Equal(t, "tcp", ModeTCP.String())
}
