package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/curtisra-gif/dns-failover/internal/config"
	"github.com/curtisra-gif/dns-failover/internal/dns"
	"github.com/curtisra-gif/dns-failover/internal/failover"
	"github.com/curtisra-gif/dns-failover/internal/geo"
	"github.com/curtisra-gif/dns-failover/internal/health"
	"github.com/curtisra-gif/dns-failover/internal/metrics"
	"github.com/curtisra-gif/dns-failover/internal/notify"
	"github.com/curtisra-gif/dns-failover/internal/throttler"
)

// app is the wired controller process.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	metrics  *metrics.Metrics
	gateway  dns.Gateway
	resolver health.Resolver
	geo      *geo.Locator
	notifier *notify.Dispatcher
	runner   *failover.Runner
}

func newApp(cfg *config.Config, log *zap.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, metrics: metrics.New()}

	gw, err := buildGateway(cfg, log)
	if err != nil {
		return nil, err
	}
	a.gateway = gw

	a.geo, err = geo.Open(cfg.Probe.GeoIPDBPath)
	if err != nil {
		return nil, fmt.Errorf("opening geoip database: %w", err)
	}

	a.resolver = health.NewResolver(cfg.Probe.DNSServers)
	a.notifier = notify.NewDispatcher(log.Named("notify"), buildSenders(cfg, log)...)
	prober := health.NewProber(a.resolver, log.Named("probe"), health.WithGeo(a.geo))

	policy := failover.Policy{
		FailureThreshold:  cfg.Failover.FailureThreshold,
		RecoveryThreshold: cfg.Failover.RecoveryThreshold,
		DegradedLoss:      cfg.Failover.DegradedLoss,
		BootstrapFromDNS:  cfg.Failover.BootstrapFromDNS,
	}

	controllers := make([]*failover.Controller, 0, len(cfg.Groups))
	for i := range cfg.Groups {
		g := &cfg.Groups[i]
		glog := log.With(zap.String("group", g.Name))
		controllers = append(controllers, failover.NewController(g, policy, failover.Deps{
			Prober:     prober,
			Gateway:    a.gateway,
			Reconciler: dns.NewReconciler(g.Name, a.gateway, a.notifier, a.metrics, glog.Named("dns")),
			Notifier:   a.notifier,
			Metrics:    a.metrics,
			Log:        log.Named("failover"),
		}))
	}
	a.runner = failover.NewRunner(controllers, failover.RunnerOptions{
		Interval:    cfg.Failover.CheckInterval,
		Parallelism: cfg.Failover.GroupParallelism,
	}, a.metrics, log.Named("runner"))

	log.Info("controller configured",
		zap.Int("groups", len(controllers)),
		zap.Bool("zone_file", cfg.UseZoneFile()),
		zap.Strings("notifiers", a.notifier.Senders()),
		zap.Strings("dns_servers", cfg.Probe.DNSServers),
	)
	return a, nil
}

// buildGateway returns the dry-run file gateway when a zone file is set and
// the throttled Cloudflare API otherwise.
func buildGateway(cfg *config.Config, log *zap.Logger) (dns.Gateway, error) {
	if cfg.UseZoneFile() {
		fg, err := dns.NewFileGateway(cfg.Cloudflare.ZoneFile, log.Named("zonefile"))
		if err != nil {
			return nil, err
		}
		return fg, nil
	}
	cf, err := dns.NewCloudflare(cfg.Cloudflare.APIToken, dns.CloudflareOptions{RPS: cfg.Cloudflare.RPS})
	if err != nil {
		return nil, err
	}
	burst := int(cfg.Cloudflare.RPS) + 1
	return dns.NewThrottled(cf, throttler.New(cfg.Cloudflare.RPS, burst)), nil
}

// buildSenders skips any sender that cannot start; notifications are best
// effort.
func buildSenders(cfg *config.Config, log *zap.Logger) []notify.Sender {
	var senders []notify.Sender
	if cfg.Telegram.Enabled() {
		tg, err := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, notify.TelegramOptions{})
		if err != nil {
			log.Warn("telegram notifier disabled", zap.Error(err))
		} else {
			senders = append(senders, tg)
		}
	}
	if cfg.SMTP.Enabled() {
		senders = append(senders, notify.NewEmail(notify.EmailConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			To:       cfg.SMTP.To,
		}))
	}
	return senders
}

// inspect reads the live binding of every group.
func (a *app) inspect(ctx context.Context) (map[string][]failover.Binding, error) {
	out := make(map[string][]failover.Binding, len(a.cfg.Groups))
	for i := range a.cfg.Groups {
		g := &a.cfg.Groups[i]
		zoneID, err := a.gateway.ZoneID(ctx, g.Zone)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", g.Name, err)
		}
		bindings, err := failover.Inspect(ctx, a.gateway, zoneID, g)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", g.Name, err)
		}
		out[g.Name] = bindings
	}
	return out, nil
}

func (a *app) close() {
	if err := a.geo.Close(); err != nil {
		a.log.Warn("closing geoip database", zap.Error(err))
	}
}
