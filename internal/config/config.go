package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/go-playground/validator/v10"
	mdns "github.com/miekg/dns"
	"gopkg.in/yaml.v3"

	"github.com/curtisra-gif/dns-failover/internal/model"
)

const DefaultCheckPort = 443

var ErrNoGroups = errors.New("no usable groups configured")

// Config holds all configuration for the controller. Environment variables
// are read first; a YAML file named by CONFIG_FILE overrides them.
type Config struct {
	ConfigFile string `env:"CONFIG_FILE" yaml:"-"`

	Cloudflare CloudflareConfig `yaml:"cloudflare"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	SMTP       SMTPConfig       `yaml:"smtp"`
	Failover   FailoverConfig   `yaml:"failover"`
	Probe      ProbeConfig      `yaml:"probe"`
	Status     StatusConfig     `yaml:"status"`
	Log        LogConfig        `yaml:"log"`

	Groups []model.Group `yaml:"groups"`

	// Warnings lists groups dropped during load.
	Warnings []string `yaml:"-"`
}

type CloudflareConfig struct {
	APIToken string  `env:"CLOUDFLARE_API_TOKEN" yaml:"api_token"`
	RPS      float64 `env:"CLOUDFLARE_RPS" envDefault:"4" yaml:"rps"`
	ZoneFile string  `env:"ZONE_FILE" yaml:"zone_file"` // YAML zone file used instead of the API
}

type TelegramConfig struct {
	BotToken string `env:"TG_BOT_TOKEN" yaml:"bot_token"`
	ChatID   string `env:"TG_CHAT_ID" yaml:"chat_id"`
}

// Enabled reports whether both credentials are present.
func (c *TelegramConfig) Enabled() bool {
	return c.BotToken != "" && c.ChatID != ""
}

type SMTPConfig struct {
	Host     string   `env:"SMTP_HOST" yaml:"host"`
	Port     int      `env:"SMTP_PORT" envDefault:"587" yaml:"port"`
	Username string   `env:"SMTP_USERNAME" yaml:"username"`
	Password string   `env:"SMTP_PASSWORD" yaml:"password"`
	From     string   `env:"SMTP_FROM" yaml:"from"`
	To       []string `env:"SMTP_TO" envSeparator:"," yaml:"to"`
}

func (c *SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != "" && len(c.To) > 0
}

type FailoverConfig struct {
	FailureThreshold  int           `env:"FAILURE_THRESHOLD" envDefault:"3" yaml:"failure_threshold" validate:"min=1"`
	RecoveryThreshold int           `env:"RECOVERY_THRESHOLD" envDefault:"2" yaml:"recovery_threshold" validate:"min=1"`
	DegradedLoss      int           `env:"DEGRADED_LOSS" envDefault:"60" yaml:"degraded_loss" validate:"min=1,max=100"`
	CheckInterval     time.Duration `env:"CHECK_INTERVAL" envDefault:"60s" yaml:"check_interval" validate:"min=1s"`
	BootstrapFromDNS  bool          `env:"BOOTSTRAP_FROM_DNS" envDefault:"true" yaml:"bootstrap_from_dns"`
	GroupParallelism  int           `env:"GROUP_PARALLELISM" envDefault:"4" yaml:"group_parallelism" validate:"min=1"`
	UseCDN            bool          `env:"USE_CDN" envDefault:"true" yaml:"use_cdn"`
	RecordTTL         int           `env:"RECORD_TTL" envDefault:"1" yaml:"record_ttl" validate:"min=1"`
}

type ProbeConfig struct {
	DNSServers  []string `env:"DNS_SERVERS" envSeparator:"," yaml:"dns_servers"`
	GeoIPDBPath string   `env:"GEOIP_DB_PATH" yaml:"geoip_db_path"`
}

type StatusConfig struct {
	Addr string `env:"STATUS_ADDR" yaml:"addr"` // empty disables the endpoint
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info" yaml:"level"`
	Format string `env:"LOG_FORMAT" envDefault:"console" yaml:"format"`
}

// Load reads the process environment and the optional config file.
func Load() (*Config, error) {
	return LoadFrom(Environ())
}

// LoadFrom is Load over an explicit environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if cfg.ConfigFile != "" {
		buf, err := os.ReadFile(cfg.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", cfg.ConfigFile, err)
		}
	}

	legacy, warnings := legacyGroups(vars)
	cfg.Warnings = append(cfg.Warnings, warnings...)
	cfg.Groups = append(cfg.Groups, legacy...)

	validate := validator.New()
	if err := validate.Struct(cfg.Failover); err != nil {
		return nil, fmt.Errorf("failover settings: %w", err)
	}
	cfg.normalizeGroups(validate)
	if len(cfg.Groups) == 0 {
		return nil, ErrNoGroups
	}
	return cfg, nil
}

// Validate checks that a DNS backend is configured.
func (c *Config) Validate() error {
	if c.Cloudflare.ZoneFile == "" && c.Cloudflare.APIToken == "" {
		return fmt.Errorf("CLOUDFLARE_API_TOKEN is required (or set ZONE_FILE for dry runs)")
	}
	return nil
}

// UseZoneFile returns true if the file gateway replaces the Cloudflare API.
func (c *Config) UseZoneFile() bool {
	return c.Cloudflare.ZoneFile != ""
}

func (c *Config) normalizeGroups(validate *validator.Validate) {
	seen := make(map[string]bool)
	kept := c.Groups[:0]
	for _, g := range c.Groups {
		g.Name = strings.TrimSpace(g.Name)
		g.Primary = strings.TrimSpace(g.Primary)
		g.Backup = strings.TrimSpace(g.Backup)
		g.Subdomains = cleanNames(g.Subdomains)
		if g.CheckPort == 0 {
			g.CheckPort = DefaultCheckPort
		}
		if g.TTL == 0 {
			g.TTL = c.Failover.RecordTTL
		}
		if g.Proxied == nil {
			proxied := c.Failover.UseCDN
			g.Proxied = &proxied
		}
		if g.Zone == "" && len(g.Subdomains) > 0 {
			g.Zone = ZoneOf(g.Subdomains[0])
		}

		if err := validate.Struct(g); err != nil {
			c.Warnings = append(c.Warnings, fmt.Sprintf("group %q excluded: %s", g.Name, describe(err)))
			continue
		}
		if seen[g.Name] {
			c.Warnings = append(c.Warnings, fmt.Sprintf("group %q excluded: duplicate name", g.Name))
			continue
		}
		seen[g.Name] = true
		kept = append(kept, g)
	}
	c.Groups = kept
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}

func cleanNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(n)), ".")
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}

// ZoneOf derives the zone apex of a managed name by dropping its leftmost
// label. Two-label names are their own apex.
func ZoneOf(name string) string {
	labels := mdns.SplitDomainName(name)
	if len(labels) <= 2 {
		return strings.Join(labels, ".")
	}
	return strings.Join(labels[1:], ".")
}

const (
	suffixMain       = "_MAIN_IP"
	suffixBackup     = "_BACKUP_IP"
	suffixCheckPort  = "_CHECK_PORT"
	suffixSubdomains = "_SUBDOMAINS"
)

// legacyGroups folds <GROUP>_MAIN_IP, _BACKUP_IP, _CHECK_PORT and
// _SUBDOMAINS variables into typed groups.
func legacyGroups(vars map[string]string) ([]model.Group, []string) {
	byName := make(map[string]*model.Group)
	var warnings []string

	get := func(name string) *model.Group {
		g, ok := byName[name]
		if !ok {
			g = &model.Group{Name: name}
			byName[name] = g
		}
		return g
	}

	for key, val := range vars {
		switch {
		case strings.HasSuffix(key, suffixMain) && len(key) > len(suffixMain):
			get(strings.TrimSuffix(key, suffixMain)).Primary = val
		case strings.HasSuffix(key, suffixBackup) && len(key) > len(suffixBackup):
			get(strings.TrimSuffix(key, suffixBackup)).Backup = val
		case strings.HasSuffix(key, suffixSubdomains) && len(key) > len(suffixSubdomains):
			get(strings.TrimSuffix(key, suffixSubdomains)).Subdomains = strings.Split(val, ",")
		case strings.HasSuffix(key, suffixCheckPort) && len(key) > len(suffixCheckPort):
			name := strings.TrimSuffix(key, suffixCheckPort)
			port, err := strconv.Atoi(strings.TrimSpace(val))
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("group %q: invalid %s %q", name, key, val))
				port = -1
			}
			get(name).CheckPort = port
		}
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	groups := make([]model.Group, 0, len(names))
	for _, name := range names {
		groups = append(groups, *byName[name])
	}
	return groups, warnings
}

// Environ returns the process environment as a map.
func Environ() map[string]string {
	kv := os.Environ()
	out := make(map[string]string, len(kv))
	for _, e := range kv {
		if k, v, ok := strings.Cut(e, "="); ok {
			out[k] = v
		}
	}
	return out
}
