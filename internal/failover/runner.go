package failover

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/curtisra-gif/dns-failover/internal/metrics"
)

const DefaultInterval = 60 * time.Second

type RunnerOptions struct {
	Interval time.Duration
	// Parallelism bounds how many groups are evaluated at once; 1 is
	// sequential.
	Parallelism int
}

// Runner drives every Controller on a fixed interval. A failing or
// panicking group never stops the others.
type Runner struct {
	controllers []*Controller
	interval    time.Duration
	parallelism int
	metrics     *metrics.Metrics
	log         *zap.Logger
}

func NewRunner(controllers []*Controller, opts RunnerOptions, m *metrics.Metrics, log *zap.Logger) *Runner {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	return &Runner{
		controllers: controllers,
		interval:    opts.Interval,
		parallelism: opts.Parallelism,
		metrics:     m,
		log:         log,
	}
}

// Init bootstraps every controller.
func (r *Runner) Init(ctx context.Context) {
	r.each(ctx, r.log, "init", func(ctx context.Context, c *Controller) { c.Init(ctx) })
}

// Tick evaluates every group once.
func (r *Runner) Tick(ctx context.Context) {
	start := time.Now()
	log := r.log.With(zap.String("tick", uuid.New().String()))
	log.Debug("tick started", zap.Int("groups", len(r.controllers)))

	r.each(ctx, log, "tick", func(ctx context.Context, c *Controller) { c.Tick(ctx) })

	elapsed := time.Since(start)
	r.metrics.ObserveTick(elapsed.Seconds())
	log.Info("tick finished", zap.Duration("took", elapsed))
}

func (r *Runner) each(ctx context.Context, log *zap.Logger, phase string, fn func(context.Context, *Controller)) {
	var g errgroup.Group
	g.SetLimit(r.parallelism)
	for _, c := range r.controllers {
		c := c
		g.Go(func() error {
			r.guard(ctx, log, phase, c, fn)
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Runner) guard(ctx context.Context, log *zap.Logger, phase string, c *Controller, fn func(context.Context, *Controller)) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("group evaluation panicked",
				zap.String("group", c.Group().Name),
				zap.String("phase", phase),
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
		}
	}()
	fn(ctx, c)
	st := c.Status()
	log.Debug("group evaluated",
		zap.String("group", st.Group),
		zap.String("phase", phase),
		zap.String("active", st.Active),
		zap.Bool("pending", st.PendingReconcile),
	)
}

// Run ticks immediately and then on every interval until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	r.Tick(ctx)

	cl := cronLogger{log: r.log}
	sched := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := sched.AddFunc(fmt.Sprintf("@every %s", r.interval), func() { r.Tick(ctx) }); err != nil {
		return fmt.Errorf("scheduling checks: %w", err)
	}
	sched.Start()
	r.log.Info("scheduler started", zap.Duration("interval", r.interval), zap.Int("groups", len(r.controllers)))

	<-ctx.Done()
	<-sched.Stop().Done()
	r.log.Info("scheduler stopped")
	return nil
}

// Statuses returns the last published status of every group.
func (r *Runner) Statuses() []Status {
	out := make([]Status, 0, len(r.controllers))
	for _, c := range r.controllers {
		out = append(out, c.Status())
	}
	return out
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
