package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone   = "Africa/Nairobi"
	configPathEnv     = "FUEL_MONITOR_CONFIG"
	databaseDSNEnv    = "DATABASE_DSN"
	databaseDriverEnv = "DATABASE_DRIVER"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	redisAddrEnv      = "REDIS_ADDR"
	kafkaBrokersEnv   = "KAFKA_BROKERS"
	logLevelEnv       = "LOG_LEVEL"
	httpAddrEnv       = "HTTP_ADDR"
	sourceAPIKeyEnv   = "SOURCE_API_KEY"
	smtpPasswordEnv   = "SMTP_PASSWORD"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database      DatabaseConfig     `yaml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Sources       []SourceConfig     `yaml:"sources" validate:"min=1,dive"`
	Pipeline      PipelineConfig     `yaml:"pipeline"`
	Normalizer    NormalizerConfig   `yaml:"normalizer"`
	Detector      DetectorConfig     `yaml:"detector"`
	Notifications NotificationConfig `yaml:"notifications"`
	Lock          LockConfig         `yaml:"lock"`
	HTTP          HTTPConfig         `yaml:"http"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver" default:"sqlite" validate:"oneof=postgres sqlite"`
	DSN    string `yaml:"dsn" default:"fuelmonitor.db" validate:"required"`
}

// SchedulerConfig defines when the pipeline should run.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression" default:"0 6 * * *" validate:"required"`
	Timezone       string         `yaml:"timezone" default:"Africa/Nairobi"`
	location       *time.Location `yaml:"-"`
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

// SourceConfig describes a single price source with its scanner strategy.
type SourceConfig struct {
	Name    string            `yaml:"name" validate:"required"`
	Scanner string            `yaml:"scanner" validate:"required"`
	URL     string            `yaml:"url" validate:"required,url"`
	Options map[string]string `yaml:"options"`
}

// PipelineConfig tunes the run coordinator.
type PipelineConfig struct {
	FetchRetries   int           `yaml:"fetchRetries" default:"3" validate:"gte=0"`
	BackoffInitial time.Duration `yaml:"backoffInitial" default:"2s"`
	BackoffMax     time.Duration `yaml:"backoffMax" default:"1m"`
	FetchTimeout   time.Duration `yaml:"fetchTimeout" default:"1m" validate:"gt=0"`
	PersistTimeout time.Duration `yaml:"persistTimeout" default:"30s" validate:"gt=0"`
	Workers        int           `yaml:"workers" default:"4" validate:"gte=1"`
	TopN           int           `yaml:"topN" default:"5" validate:"gte=1"`
	SourceRate     float64       `yaml:"sourceRate" default:"2"`
}

// NormalizerConfig bounds what counts as a sane raw entry.
type NormalizerConfig struct {
	MaxPrice        float64           `yaml:"maxPrice" default:"10000" validate:"gt=0"`
	DefaultCurrency string            `yaml:"defaultCurrency" default:"KES"`
	FuelAliases     map[string]string `yaml:"fuelAliases"`
}

// DetectorConfig holds anomaly thresholds. Severity cut-offs are in σ units.
// PercentChange enables the day-over-day rule; 0 leaves the σ rule as the only judge.
type DetectorConfig struct {
	K             float64 `yaml:"k" default:"3" validate:"gt=0"`
	MinSamples    int     `yaml:"minSamples" default:"7" validate:"gte=1"`
	Window        int     `yaml:"window" default:"30" validate:"gte=0"`
	MajorAt       float64 `yaml:"majorAt" default:"3.5" validate:"gtefield=K"`
	CriticalAt    float64 `yaml:"criticalAt" default:"4" validate:"gtefield=MajorAt"`
	PercentChange float64 `yaml:"percentChange" validate:"gte=0"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Email    EmailConfig    `yaml:"email"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	Endpoint string `yaml:"endpoint"`
}

// WebhookConfig posts JSON summaries to an HTTP endpoint.
type WebhookConfig struct {
	URL     string        `yaml:"url" validate:"omitempty,url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout" default:"10s"`
}

// KafkaConfig publishes run summaries as events.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic" default:"fuel-price-runs"`
}

// EmailConfig sends the plain-text report over SMTP.
type EmailConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port" default:"587"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from" validate:"omitempty,email"`
	To       []string `yaml:"to" validate:"dive,email"`
}

// LockConfig guards against overlapping scheduled runs.
type LockConfig struct {
	RedisAddr string        `yaml:"redisAddr"`
	Key       string        `yaml:"key" default:"fuelmonitor:run-lock"`
	TTL       time.Duration `yaml:"ttl" default:"30m"`
}

// HTTPConfig for the read/alert API.
type HTTPConfig struct {
	Addr            string        `yaml:"addr" default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"10s"`
}

// LoggingConfig selects level and handler format.
type LoggingConfig struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"text" validate:"oneof=text json"`
}

var validate = validator.New()

// Load reads .env and YAML configuration (if present), fills defaults and applies environment overrides.
// An empty path falls back to FUEL_MONITOR_CONFIG.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: cannot load .env: %v", err)
	}

	if path == "" {
		path = os.Getenv(configPathEnv)
	}

	// Defaults go first so that explicit zero values in the file (percentChange: 0) survive.
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return Config{}, fmt.Errorf("apply defaults: %w", err)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if len(cfg.Sources) == 0 {
		cfg.Sources = defaultSources()
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file or environment is present.
func Default() Config {
	var cfg Config
	_ = defaults.Set(&cfg)
	cfg.Sources = defaultSources()
	cfg.bindTimezone()
	return cfg
}

// Validate checks struct constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(kafkaBrokersEnv); v != "" {
		c.Notifications.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv(smtpPasswordEnv); v != "" {
		c.Notifications.Email.Password = v
	}

	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Lock.RedisAddr = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(httpAddrEnv); v != "" {
		c.HTTP.Addr = v
	}

	if v := os.Getenv(sourceAPIKeyEnv); v != "" {
		for i := range c.Sources {
			if c.Sources[i].Options == nil {
				c.Sources[i].Options = map[string]string{}
			}
			if _, ok := c.Sources[i].Options["api_key"]; !ok {
				c.Sources[i].Options["api_key"] = v
			}
		}
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to UTC", tz)
		loc = time.UTC
	}
	c.Scheduler.location = loc
}

func defaultSources() []SourceConfig {
	return []SourceConfig{
		{
			Name:    "epra-pump-prices",
			Scanner: "html_table",
			URL:     "https://www.epra.go.ke/pump-prices",
			Options: map[string]string{
				"table_selector": "table",
				"currency":       "KES",
			},
		},
	}
}
