package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"finix/internal/core"
)

type Config struct {
	// Account is the user identity transactions are listed and created under.
	Account string `koanf:"FINIX_ACCOUNT"`

	// Persistence
	Backend      string         `koanf:"FINIX_BACKEND"`
	SQLiteDBPath string         `koanf:"SQLITE_DB_PATH"`
	SeedDir      string         `koanf:"FINIX_SEED_DIR"`
	Postgres     PostgresConfig `koanf:",squash"`

	// Remote collaborators
	TransactionsURL  string        `koanf:"TRANSACTIONS_URL"`
	InsightsURL      string        `koanf:"INSIGHTS_URL"`
	InsightsCacheTTL time.Duration `koanf:"INSIGHTS_CACHE_TTL"`
	RemoteTimeout    time.Duration `koanf:"REMOTE_TIMEOUT"`
	RemoteRetries    int           `koanf:"REMOTE_RETRIES"`

	// Notification sinks, each optional
	AMQPURL      string   `koanf:"AMQP_URL"`
	AMQPExchange string   `koanf:"AMQP_EXCHANGE"`
	AMQPQueue    string   `koanf:"AMQP_QUEUE"`
	KafkaBrokers []string `koanf:"KAFKA_BROKERS"`
	KafkaTopic   string   `koanf:"KAFKA_TOPIC"`

	NotificationsEnabled bool   `koanf:"NOTIFICATIONS_ENABLED"`
	CurrencySymbol       string `koanf:"CURRENCY_SYMBOL"`

	// Categories is a JSON hierarchy, e.g. [{"name":"Food","children":["Groceries"]}].
	Categories     json.RawMessage `koanf:"FINIX_CATEGORIES"`
	CategoriesFile string          `koanf:"FINIX_CATEGORIES_FILE"`

	LogLevel  string `koanf:"LOG_LEVEL"`
	LogFormat string `koanf:"LOG_FORMAT"`
}

type PostgresConfig struct {
	Host     string `koanf:"POSTGRES_HOST"`
	Port     int    `koanf:"POSTGRES_PORT"`
	Database string `koanf:"POSTGRES_DB"`
	User     string `koanf:"POSTGRES_USER"`
	Password string `koanf:"POSTGRES_PASSWORD"`
	SSLMode  string `koanf:"POSTGRES_SSLMODE"`
	MaxPool  int    `koanf:"POSTGRES_MAX_POOL"`
}

// Default returns the configuration used for every key the environment leaves unset.
func Default() Config {
	return Config{
		Backend:      "sqlite",
		SQLiteDBPath: "./data/finix.db",
		SeedDir:      "data",
		Postgres: PostgresConfig{
			Port:    5432,
			SSLMode: "disable",
			MaxPool: 4,
		},
		InsightsCacheTTL:     10 * time.Minute,
		RemoteTimeout:        10 * time.Second,
		RemoteRetries:        3,
		AMQPExchange:         "finix",
		AMQPQueue:            "notifications",
		KafkaTopic:           "finix.notifications",
		NotificationsEnabled: true,
		CurrencySymbol:       "$",
		LogLevel:             "info",
		LogFormat:            "text",
	}
}

// Load reads the process environment over Default.
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers)
	return &cfg, nil
}

// splitList accepts both repeated values and a single comma separated one.
func splitList(in []string) []string {
	var out []string
	for _, v := range in {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

var validBackends = []string{"memory", "sqlite", "postgres"}
var validLogLevels = []string{"debug", "info", "warn", "error"}
var validLogFormats = []string{"text", "json"}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Account) == "" {
		errs = append(errs, "FINIX_ACCOUNT is required")
	}

	if !oneOf(c.Backend, validBackends) {
		errs = append(errs, fmt.Sprintf("invalid backend '%s': must be one of %v", c.Backend, validBackends))
	}

	switch c.Backend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errs = append(errs, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	case "postgres":
		if c.Postgres.Host == "" {
			errs = append(errs, "POSTGRES_HOST is required when using postgres backend")
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "POSTGRES_DB is required when using postgres backend")
		}
		if c.Postgres.Port < 1 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("invalid postgres port %d: must be between 1 and 65535", c.Postgres.Port))
		}
	}

	for name, raw := range map[string]string{"TRANSACTIONS_URL": c.TransactionsURL, "INSIGHTS_URL": c.InsightsURL} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("invalid %s '%s': must be an absolute http(s) URL", name, raw))
		}
	}

	if c.RemoteTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("invalid remote timeout %v: must be positive", c.RemoteTimeout))
	}
	if c.RemoteRetries < 1 || c.RemoteRetries > 10 {
		errs = append(errs, fmt.Sprintf("invalid remote retries %d: must be between 1 and 10", c.RemoteRetries))
	}
	if c.InsightsCacheTTL < 0 {
		errs = append(errs, fmt.Sprintf("invalid insights cache TTL %v: must not be negative", c.InsightsCacheTTL))
	}

	if c.AMQPURL != "" {
		if u, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		errs = append(errs, "Kafka topic cannot be empty when brokers are provided")
	}

	if len(c.Categories) > 0 && c.CategoriesFile != "" {
		errs = append(errs, "set only one of FINIX_CATEGORIES and FINIX_CATEGORIES_FILE")
	}
	if len(c.Categories) > 0 {
		if _, err := core.ParseCategoryHierarchy(c.Categories); err != nil {
			errs = append(errs, fmt.Sprintf("invalid FINIX_CATEGORIES: %v", err))
		}
	}
	if c.CategoriesFile != "" {
		if _, err := os.Stat(c.CategoriesFile); err != nil {
			errs = append(errs, fmt.Sprintf("categories file is not readable: %s", c.CategoriesFile))
		}
	}

	if !oneOf(strings.ToLower(c.LogLevel), validLogLevels) {
		errs = append(errs, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLogLevels))
	}
	if !oneOf(strings.ToLower(c.LogFormat), validLogFormats) {
		errs = append(errs, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validLogFormats))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// CategoryHierarchy resolves the configured hierarchy, falling back to the built-in one.
func (c *Config) CategoryHierarchy() (*core.CategoryHierarchy, error) {
	data := []byte(c.Categories)
	if len(data) == 0 && c.CategoriesFile != "" {
		var err error
		if data, err = os.ReadFile(c.CategoriesFile); err != nil {
			return nil, fmt.Errorf("read categories file: %w", err)
		}
	}
	if len(data) == 0 {
		return core.DefaultCategoryHierarchy(), nil
	}
	return core.ParseCategoryHierarchy(data)
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
