package failover

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/curtisra-gif/dns-failover/internal/dns"
	"github.com/curtisra-gif/dns-failover/internal/health"
	"github.com/curtisra-gif/dns-failover/internal/metrics"
	"github.com/curtisra-gif/dns-failover/internal/model"
	"github.com/curtisra-gif/dns-failover/internal/notify"
)

const (
	DefaultFailureThreshold  = 3
	DefaultRecoveryThreshold = 2
)

// Policy holds the hysteresis knobs shared by every group.
type Policy struct {
	FailureThreshold  int
	RecoveryThreshold int
	DegradedLoss      int
	// BootstrapFromDNS derives the starting side from the live records
	// instead of always assuming the primary.
	BootstrapFromDNS bool
}

func DefaultPolicy() Policy {
	return Policy{
		FailureThreshold:  DefaultFailureThreshold,
		RecoveryThreshold: DefaultRecoveryThreshold,
		DegradedLoss:      health.DefaultDegradedLoss,
		BootstrapFromDNS:  true,
	}
}

func (p Policy) withDefaults() Policy {
	if p.FailureThreshold < 1 {
		p.FailureThreshold = DefaultFailureThreshold
	}
	if p.RecoveryThreshold < 1 {
		p.RecoveryThreshold = DefaultRecoveryThreshold
	}
	if p.DegradedLoss <= 0 {
		p.DegradedLoss = health.DefaultDegradedLoss
	}
	return p
}

// Prober performs one health observation.
type Prober interface {
	Probe(ctx context.Context, target string, port int, mode health.Mode) health.Observation
}

// Reconciler converges a group's records on a desired binding.
type Reconciler interface {
	Reconcile(ctx context.Context, zoneID string, subdomains []string, want dns.Desired) ([]dns.Outcome, error)
}

// State is the runtime state of one group. At most one counter is nonzero.
type State struct {
	Active                model.Side
	ConsecutiveFailures   int
	ConsecutiveRecoveries int
	ZoneID                string
	PendingReconcile      bool
}

// Status is the published view of a group, safe to read from any goroutine.
type Status struct {
	Group                 string     `json:"group"`
	Active                string     `json:"active"`
	Target                string     `json:"target"`
	Subdomains            []string   `json:"subdomains"`
	ConsecutiveFailures   int        `json:"consecutive_failures"`
	ConsecutiveRecoveries int        `json:"consecutive_recoveries"`
	ZoneID                string     `json:"zone_id,omitempty"`
	PendingReconcile      bool       `json:"pending_reconcile"`
	LastTick              *time.Time `json:"last_tick,omitempty"`
	LastError             string     `json:"last_error,omitempty"`
}

type Deps struct {
	Prober     Prober
	Gateway    dns.Gateway
	Reconciler Reconciler
	Notifier   notify.Notifier
	Metrics    *metrics.Metrics
	Log        *zap.Logger
}

// Controller owns the failover state machine of one group. Init and Tick
// must not be called concurrently; Status may be.
type Controller struct {
	group  *model.Group
	policy Policy
	deps   Deps
	log    *zap.Logger

	state   State
	lastErr error

	// pins holds what a target that is itself a managed name pointed at
	// before this process wrote anything.
	pins   map[model.Side]string
	pinned bool

	mu     sync.RWMutex
	status Status
}

func NewController(group *model.Group, policy Policy, deps Deps) *Controller {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	c := &Controller{
		group:  group,
		policy: policy.withDefaults(),
		deps:   deps,
		log:    deps.Log.With(zap.String("group", group.Name)),
		state:  State{Active: model.Primary},
		pins:   make(map[model.Side]string),
	}
	c.publish(time.Time{})
	return c
}

func (c *Controller) Group() *model.Group { return c.group }

// State returns a copy of the runtime state.
func (c *Controller) State() State { return c.state }

// Init resolves the zone and, when enabled, picks the starting side from
// the records currently in the zone.
func (c *Controller) Init(ctx context.Context) {
	if err := c.ensureZone(ctx); err != nil {
		c.log.Warn("zone lookup failed, retrying on first write", zap.String("zone", c.group.Zone), zap.Error(err))
	}
	c.pinSelfTargets(ctx)
	if c.policy.BootstrapFromDNS && c.state.ZoneID != "" {
		c.state.Active = c.bootstrapSide(ctx)
	}
	c.log.Info("group initialised",
		zap.String("active", c.state.Active.String()),
		zap.String("target", c.group.Target(c.state.Active)),
		zap.String("zone_id", c.state.ZoneID),
		zap.Bool("pending_reconcile", c.state.PendingReconcile),
	)
	c.deps.Metrics.SetState(c.group.Name, c.state.Active == model.Backup, 0, 0)
	c.publish(time.Time{})
}

// bootstrapSide picks the starting side from the zone. Any name that does
// not already carry that side is queued for the first tick.
func (c *Controller) bootstrapSide(ctx context.Context) model.Side {
	bindings, err := Inspect(ctx, c.deps.Gateway, c.state.ZoneID, c.group)
	if err != nil {
		c.log.Warn("bootstrap lookup failed, assuming primary", zap.Error(err))
		c.state.PendingReconcile = true
		return model.Primary
	}

	var missing, backup, other int
	for _, b := range bindings {
		switch b.Points {
		case BindingMissing:
			missing++
		case BindingBackup:
			backup++
		default:
			other++
		}
	}
	if missing == len(bindings) {
		return model.Primary
	}

	side := model.Primary
	if backup > 0 && other == 0 {
		side = model.Backup
		c.log.Info("zone already points at backup, resuming failover")
	}
	for _, b := range bindings {
		if b.Points != side.String() {
			c.log.Warn("zone disagrees with starting side, reconciling on first tick",
				zap.String("subdomain", b.Subdomain),
				zap.String("points", b.Points),
				zap.String("side", side.String()),
			)
			c.state.PendingReconcile = true
		}
	}
	return side
}

// pinSelfTargets reads, for each target that is also a managed name, what
// that name currently holds. The name is only ever written with its pin, so
// the read stays valid until it succeeds.
func (c *Controller) pinSelfTargets(ctx context.Context) {
	if c.pinned || c.state.ZoneID == "" {
		return
	}
	for _, side := range []model.Side{model.Primary, model.Backup} {
		target := c.group.Target(side)
		if !c.manages(target) {
			continue
		}
		recs, err := dns.Lookup(ctx, c.deps.Gateway, c.state.ZoneID, target)
		if err != nil {
			c.log.Warn("reading self-referencing target failed", zap.String("name", target), zap.Error(err))
			return
		}
		other := c.group.Target(side.Other())
		for _, r := range recs {
			if !model.SameContent(r.Content, other) {
				c.pins[side] = r.Content
				break
			}
		}
		if c.pins[side] == "" {
			c.log.Warn("target is a managed name with no record of its own, it will not be rewritten",
				zap.String("name", target), zap.String("side", side.String()))
		} else {
			c.log.Info("pinned self-referencing target", zap.String("name", target), zap.String("content", c.pins[side]))
		}
	}
	c.pinned = true
}

func (c *Controller) manages(name string) bool {
	for _, sub := range c.group.Subdomains {
		if model.SameContent(sub, name) {
			return true
		}
	}
	return false
}

func (c *Controller) ensureZone(ctx context.Context) error {
	if c.state.ZoneID != "" {
		return nil
	}
	id, err := c.deps.Gateway.ZoneID(ctx, c.group.Zone)
	if err != nil {
		return err
	}
	c.state.ZoneID = id
	return nil
}

// Tick runs one probe, decide, reconcile, notify cycle.
func (c *Controller) Tick(ctx context.Context) {
	c.lastErr = nil

	var transitioned bool
	switch c.state.Active {
	case model.Backup:
		transitioned = c.evaluateBackup(ctx)
	default:
		transitioned = c.evaluatePrimary(ctx)
	}

	switch {
	case transitioned:
		c.converge(ctx)
		c.announce(ctx)
	case c.state.PendingReconcile:
		c.log.Info("retrying incomplete reconciliation", zap.String("target", c.group.Target(c.state.Active)))
		c.converge(ctx)
	}

	c.deps.Metrics.SetState(c.group.Name, c.state.Active == model.Backup,
		c.state.ConsecutiveFailures, c.state.ConsecutiveRecoveries)
	c.publish(time.Now())
}

// evaluatePrimary HTTP-probes every subdomain and reports whether the
// group flipped to the backup.
func (c *Controller) evaluatePrimary(ctx context.Context) bool {
	allDown := true
	for _, sub := range c.group.Subdomains {
		obs := c.deps.Prober.Probe(ctx, sub, c.group.CheckPort, health.ModeHTTP)
		degraded := obs.Degraded(c.policy.DegradedLoss)
		c.deps.Metrics.ObserveProbe(c.group.Name, obs.Mode.String(), !degraded)
		if !degraded {
			allDown = false
		}
	}

	if !allDown {
		if c.state.ConsecutiveFailures > 0 {
			c.log.Info("primary healthy again, failure count reset", zap.Int("was", c.state.ConsecutiveFailures))
		}
		c.state.ConsecutiveFailures = 0
		return false
	}

	c.state.ConsecutiveFailures++
	c.state.ConsecutiveRecoveries = 0
	c.log.Warn("all primary checks failed",
		zap.Int("consecutive", c.state.ConsecutiveFailures),
		zap.Int("threshold", c.policy.FailureThreshold),
	)
	if c.state.ConsecutiveFailures < c.policy.FailureThreshold {
		return false
	}
	c.flip(model.Backup)
	return true
}

// evaluateBackup TCP-probes the primary target and reports whether the
// group flipped back to it.
func (c *Controller) evaluateBackup(ctx context.Context) bool {
	obs := c.deps.Prober.Probe(ctx, c.group.Primary, c.group.CheckPort, health.ModeTCP)
	degraded := obs.Degraded(c.policy.DegradedLoss)
	c.deps.Metrics.ObserveProbe(c.group.Name, obs.Mode.String(), !degraded)

	if degraded {
		if c.state.ConsecutiveRecoveries > 0 {
			c.log.Info("primary still failing, recovery count reset", zap.Int("was", c.state.ConsecutiveRecoveries))
		}
		c.state.ConsecutiveRecoveries = 0
		return false
	}

	c.state.ConsecutiveRecoveries++
	c.state.ConsecutiveFailures = 0
	c.log.Info("primary reachable",
		zap.String("address", obs.ResolvedAddress),
		zap.Int("consecutive", c.state.ConsecutiveRecoveries),
		zap.Int("threshold", c.policy.RecoveryThreshold),
	)
	if c.state.ConsecutiveRecoveries < c.policy.RecoveryThreshold {
		return false
	}
	c.flip(model.Primary)
	return true
}

func (c *Controller) flip(to model.Side) {
	c.log.Warn("switching active target",
		zap.String("from", c.state.Active.String()),
		zap.String("to", to.String()),
		zap.String("target", c.group.Target(to)),
	)
	c.state.Active = to
	c.state.ConsecutiveFailures = 0
	c.state.ConsecutiveRecoveries = 0
	c.deps.Metrics.ObserveTransition(c.group.Name, to.String())
}

// converge reconciles the zone toward the active target. A failure leaves
// PendingReconcile set so the next tick tries again.
func (c *Controller) converge(ctx context.Context) {
	if err := c.ensureZone(ctx); err != nil {
		c.state.PendingReconcile = true
		c.lastErr = fmt.Errorf("zone %s: %w", c.group.Zone, err)
		c.log.Error("zone lookup failed, records not updated", zap.Error(err))
		return
	}
	c.pinSelfTargets(ctx)

	want := dns.Desired{
		Side:    c.state.Active,
		Content: c.group.Target(c.state.Active),
		Pinned:  c.pins[c.state.Active],
		Proxied: c.group.UseProxy(),
		TTL:     c.group.TTL,
	}
	outcomes, err := c.deps.Reconciler.Reconcile(ctx, c.state.ZoneID, c.group.Subdomains, want)
	if err != nil {
		c.state.PendingReconcile = true
		c.lastErr = err
		c.log.Error("reconciliation incomplete, will retry", zap.Int("subdomains", len(outcomes)), zap.Error(err))
		return
	}
	c.state.PendingReconcile = false
}

func (c *Controller) announce(ctx context.Context) {
	var msg string
	if c.state.Active == model.Backup {
		msg = fmt.Sprintf("[failover] group %s: all primary checks failed, switched to backup %s", c.group.Name, c.group.Backup)
	} else {
		msg = fmt.Sprintf("[recovery] group %s: primary %s recovered, switched back to primary", c.group.Name, c.group.Primary)
	}
	c.deps.Notifier.Notify(ctx, msg)
}

func (c *Controller) publish(at time.Time) {
	st := Status{
		Group:                 c.group.Name,
		Active:                c.state.Active.String(),
		Target:                c.group.Target(c.state.Active),
		Subdomains:            c.group.Subdomains,
		ConsecutiveFailures:   c.state.ConsecutiveFailures,
		ConsecutiveRecoveries: c.state.ConsecutiveRecoveries,
		ZoneID:                c.state.ZoneID,
		PendingReconcile:      c.state.PendingReconcile,
	}
	if !at.IsZero() {
		st.LastTick = &at
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	c.mu.Lock()
	c.status = st
	c.mu.Unlock()
}

// Status returns the snapshot published after the last Init or Tick.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}
