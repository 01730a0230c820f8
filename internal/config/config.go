package config

import (
	"log"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"ShelterSync/internal/domain"
)

const (
	defaultTimezone   = "America/Denver"
	configPathEnv     = "SHELTERSYNC_CONFIG"
	databaseDSNEnv    = "DATABASE_DSN"
	databaseDrvEnv    = "DATABASE_DRIVER"
	timezoneEnv       = "SHELTER_TIMEZONE"
	logLevelEnv       = "LOG_LEVEL"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	adminAddrEnv      = "ADMIN_ADDR"
	otlpEndpointEnv   = "OTEL_EXPORTER_OTLP_ENDPOINT"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database      DatabaseConfig     `yaml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Source        SourceConfig       `yaml:"source"`
	History       HistoryConfig      `yaml:"history"`
	Logging       LoggingConfig      `yaml:"logging"`
	Notifications NotificationConfig `yaml:"notifications"`
	Admin         AdminConfig        `yaml:"admin"`
	Tracing       TracingConfig      `yaml:"tracing"`
}

// DatabaseConfig selects the driver (postgres, pgx or sqlite) and its DSN.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// SchedulerConfig defines how often the sync runs and the shelter's civil time zone.
type SchedulerConfig struct {
	Interval time.Duration  `yaml:"interval"`
	Timezone string         `yaml:"timezone"`
	location *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SourceConfig describes the listing endpoints and how detail pages are fetched.
type SourceConfig struct {
	Endpoints           []EndpointConfig `yaml:"endpoints"`
	DetailURLTemplate   string           `yaml:"detailUrlTemplate"`
	Timeout             time.Duration    `yaml:"timeout"`
	Workers             int              `yaml:"workers"`
	DetailRPS           float64          `yaml:"detailRps"`
	AvailableSoonMarker string           `yaml:"availableSoonMarker"`
	TrialAdoptionMarker string           `yaml:"trialAdoptionMarker"`
}

// EndpointConfig is one listing URL and the scanner kind that reads it.
type EndpointConfig struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
	URL  string `yaml:"url"`
}

// DomainEndpoints converts configured endpoints to domain values.
func (s SourceConfig) DomainEndpoints() []domain.Endpoint {
	out := make([]domain.Endpoint, 0, len(s.Endpoints))
	for _, ep := range s.Endpoints {
		kind := ep.Kind
		if kind == "" {
			kind = "widget"
		}
		name := ep.Name
		if name == "" {
			name = ep.URL
		}
		out = append(out, domain.Endpoint{Name: name, Kind: kind, URL: ep.URL})
	}
	return out
}

// HistoryConfig tunes the audit log.
type HistoryConfig struct {
	DedupWindow time.Duration `yaml:"dedupWindow"`
}

// LoggingConfig selects level and handler format (text or json).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	APIBase  string `yaml:"apiBase"`
}

// AdminConfig configures the health/metrics/trigger HTTP listener. Empty Addr disables it.
type AdminConfig struct {
	Addr string `yaml:"addr"`
}

// TracingConfig configures the OTLP/HTTP trace exporter.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"serviceName"`
	SampleRatio float64 `yaml:"sampleRatio"`
}

// Load reads YAML configuration (if present) over the defaults and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			fileCfg := defaultConfig()
			fileCfg.Source.Endpoints = nil
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = fileCfg
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyFloors()
	cfg.bindTimezone()

	if len(cfg.Source.Endpoints) == 0 {
		cfg.Source.Endpoints = defaultConfig().Source.Endpoints
	}

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(databaseDrvEnv); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(timezoneEnv); v != "" {
		c.Scheduler.Timezone = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
	if v := os.Getenv(adminAddrEnv); v != "" {
		c.Admin.Addr = v
	}
	if v := os.Getenv(otlpEndpointEnv); v != "" {
		c.Tracing.Endpoint = strings.TrimPrefix(strings.TrimPrefix(v, "http://"), "https://")
		c.Tracing.Enabled = true
		if strings.HasPrefix(v, "http://") {
			c.Tracing.Insecure = true
		}
	}
}

// applyFloors replaces zero or negative tunables with their defaults.
func (c *Config) applyFloors() {
	d := defaultConfig()
	if c.Database.Driver == "" {
		c.Database.Driver = d.Database.Driver
	}
	if c.Scheduler.Interval <= 0 {
		c.Scheduler.Interval = d.Scheduler.Interval
	}
	if c.Source.Timeout <= 0 {
		c.Source.Timeout = d.Source.Timeout
	}
	if c.Source.Workers <= 0 {
		c.Source.Workers = d.Source.Workers
	}
	if c.Source.DetailRPS < 0 {
		c.Source.DetailRPS = d.Source.DetailRPS
	}
	if c.Source.AvailableSoonMarker == "" {
		c.Source.AvailableSoonMarker = d.Source.AvailableSoonMarker
	}
	if c.Source.TrialAdoptionMarker == "" {
		c.Source.TrialAdoptionMarker = d.Source.TrialAdoptionMarker
	}
	if c.History.DedupWindow <= 0 {
		c.History.DedupWindow = d.History.DedupWindow
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = d.Tracing.ServiceName
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		tz = defaultTimezone
		loc, err = time.LoadLocation(defaultTimezone)
		if err != nil {
			loc = time.UTC
		}
	}
	c.Scheduler.Timezone = tz
	c.Scheduler.location = loc
}

func defaultConfig() Config {
	return Config{
		Database:  DatabaseConfig{Driver: "sqlite", DSN: "sheltersync.db"},
		Scheduler: SchedulerConfig{Interval: 15 * time.Minute, Timezone: defaultTimezone},
		Source: SourceConfig{
			Endpoints: []EndpointConfig{
				{Name: "dogs", Kind: "widget", URL: "https://adoptions.example.org/widget/dogs.json"},
			},
			DetailURLTemplate:   "https://adoptions.example.org/animal/{id}",
			Timeout:             30 * time.Second,
			Workers:             4,
			DetailRPS:           2,
			AvailableSoonMarker: "Available Soon",
			TrialAdoptionMarker: "Trial Adoption",
		},
		History: HistoryConfig{DedupWindow: 60 * time.Second},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Admin:   AdminConfig{Addr: ":8080"},
		Tracing: TracingConfig{ServiceName: "sheltersync", SampleRatio: 1},
	}
}
