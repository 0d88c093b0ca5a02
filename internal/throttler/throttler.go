package throttler

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Throttler hands out one token bucket per key (a DNS zone) so bursts of
// record writes stay under the provider's API quota.
type Throttler struct {
	rps   rate.Limit
	burst int

	mu   sync.Mutex
	data map[string]*rate.Limiter
}

// New returns a Throttler allowing rps requests per second per key. A
// non-positive rps disables throttling.
func New(rps float64, burst int) *Throttler {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &Throttler{
		rps:   limit,
		burst: burst,
		data:  make(map[string]*rate.Limiter),
	}
}

func (t *Throttler) limiter(key string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.data[key]
	if !ok {
		l = rate.NewLimiter(t.rps, t.burst)
		t.data[key] = l
	}
	return l
}

// Allow reports whether a request for key may proceed now.
func (t *Throttler) Allow(key string) bool {
	return t.limiter(key).Allow()
}

// Wait blocks until a request for key may proceed or ctx is done.
func (t *Throttler) Wait(ctx context.Context, key string) error {
	return t.limiter(key).Wait(ctx)
}
