// Package config loads and validates indexer configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Postgres, Elasticsearch, Indexer, Redis, Kafka, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Postgres      PostgresConfig      `yaml:"postgres"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Indexer       IndexerConfig       `yaml:"indexer"`
	Redis         RedisConfig         `yaml:"redis"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Logging       LoggingConfig       `yaml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

// PostgresConfig holds connection parameters for the bibliographic source
// database.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// ElasticsearchConfig holds the search cluster location and the settings
// used when the index is created.
type ElasticsearchConfig struct {
	Addresses      []string      `yaml:"addresses"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	Index          string        `yaml:"index"`
	Shards         int           `yaml:"shards"`
	Replicas       int           `yaml:"replicas"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

// IndexerConfig controls paging, schema derivation and watermark
// persistence for sync runs.
type IndexerConfig struct {
	PageSize           int               `yaml:"pageSize"`
	LanguageAnalyzer   string            `yaml:"languageAnalyzer"`
	NonSortableClasses []string          `yaml:"nonSortableClasses"`
	GroupOverrides     map[string]string `yaml:"groupOverrides"`
	StateBackend       string            `yaml:"stateBackend"`
	StateFile          string            `yaml:"stateFile"`
	StateKey           string            `yaml:"stateKey"`
	Schedule           string            `yaml:"schedule"`
	UpsertRetries      int               `yaml:"upsertRetries"`
	UpsertTimeout      time.Duration     `yaml:"upsertTimeout"`
}

// RedisConfig holds Redis connection parameters. Redis is only used when
// Indexer.StateBackend is "redis".
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// KafkaConfig holds broker settings for page-complete notifications.
type KafkaConfig struct {
	Enabled bool        `yaml:"enabled"`
	Brokers []string    `yaml:"brokers"`
	Topics  KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexComplete string `yaml:"indexComplete"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the indexer cannot run with.
func (c *Config) Validate() error {
	if c.Elasticsearch.Index == "" {
		return fmt.Errorf("elasticsearch.index is required")
	}
	if len(c.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("elasticsearch.addresses must not be empty")
	}
	if c.Indexer.PageSize <= 0 {
		return fmt.Errorf("indexer.pageSize must be positive, got %d", c.Indexer.PageSize)
	}
	switch c.Indexer.StateBackend {
	case "file":
		if c.Indexer.StateFile == "" {
			return fmt.Errorf("indexer.stateFile is required for the file state backend")
		}
	case "redis":
		if c.Indexer.StateKey == "" {
			return fmt.Errorf("indexer.stateKey is required for the redis state backend")
		}
	default:
		return fmt.Errorf("unknown indexer.stateBackend %q", c.Indexer.StateBackend)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "evergreen",
			User:            "evergreen",
			Password:        "evergreen",
			SSLMode:         "disable",
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Elasticsearch: ElasticsearchConfig{
			Addresses:      []string{"http://localhost:9200"},
			Index:          "bib-search",
			Shards:         5,
			Replicas:       1,
			RequestTimeout: 30 * time.Second,
		},
		Indexer: IndexerConfig{
			PageSize:           1000,
			LanguageAnalyzer:   "english",
			NonSortableClasses: []string{"keyword"},
			StateBackend:       "file",
			StateFile:          "indexer-state.json",
			StateKey:           "bib-indexer:watermark",
			Schedule:           "*/5 * * * *",
			UpsertRetries:      3,
			UpsertTimeout:      10 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 2,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topics: KafkaTopics{
				IndexComplete: "index.complete",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads BIX_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BIX_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("BIX_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("BIX_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("BIX_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("BIX_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("BIX_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("BIX_ELASTICSEARCH_ADDRESSES"); v != "" {
		cfg.Elasticsearch.Addresses = strings.Split(v, ",")
	}
	if v := os.Getenv("BIX_ELASTICSEARCH_USERNAME"); v != "" {
		cfg.Elasticsearch.Username = v
	}
	if v := os.Getenv("BIX_ELASTICSEARCH_PASSWORD"); v != "" {
		cfg.Elasticsearch.Password = v
	}
	if v := os.Getenv("BIX_ELASTICSEARCH_INDEX"); v != "" {
		cfg.Elasticsearch.Index = v
	}
	if v := os.Getenv("BIX_INDEXER_PAGE_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.PageSize = size
		}
	}
	if v := os.Getenv("BIX_INDEXER_STATE_BACKEND"); v != "" {
		cfg.Indexer.StateBackend = v
	}
	if v := os.Getenv("BIX_INDEXER_STATE_FILE"); v != "" {
		cfg.Indexer.StateFile = v
	}
	if v := os.Getenv("BIX_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("BIX_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("BIX_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("BIX_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BIX_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
