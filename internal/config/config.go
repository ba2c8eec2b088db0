package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. Nested keys are separated
// by a double underscore, e.g. TOTALRECALL_STORE__DYNAMODB__REGION.
const EnvPrefix = "TOTALRECALL_"

// Store backends
const (
	BackendDynamoDB = "dynamodb"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Providers ProvidersConfig `koanf:"providers"`
	Summary   SummaryConfig   `koanf:"summary"`
	History   HistoryConfig   `koanf:"history"`
	Store     StoreConfig     `koanf:"store"`
	Quote     QuoteConfig     `koanf:"quote"`
	Log       LogConfig       `koanf:"log"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	AllowedOrigins  []string      `koanf:"allowed_origins"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type ProvidersConfig struct {
	OpenAI    ProviderConfig `koanf:"openai"`
	Anthropic ProviderConfig `koanf:"anthropic"`
}

// ProviderConfig holds the credentials and model settings of one provider.
// A provider with no api_key is not registered.
type ProviderConfig struct {
	APIKey      string  `koanf:"api_key"`
	BaseURL     string  `koanf:"base_url"`
	Model       string  `koanf:"model"`
	MaxTokens   int     `koanf:"max_tokens"`
	Temperature *float64 `koanf:"temperature"`
}

type SummaryConfig struct {
	Enabled      bool `koanf:"enabled"`
	RefreshEvery int  `koanf:"refresh_every"`
	MaxTokens    int  `koanf:"max_tokens"`
}

type HistoryConfig struct {
	WindowSize   int  `koanf:"window_size"`
	DropLowValue bool `koanf:"drop_low_value"`
}

type StoreConfig struct {
	Backend            string         `koanf:"backend"`
	Compression        bool           `koanf:"compression"`
	ConversationsTable string         `koanf:"conversations_table"`
	SettingsTable      string         `koanf:"settings_table"`
	DynamoDB           DynamoDBConfig `koanf:"dynamodb"`
	Redis              RedisConfig    `koanf:"redis"`
	Postgres           PostgresConfig `koanf:"postgres"`
}

type DynamoDBConfig struct {
	Region          string `koanf:"region"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
	Endpoint        string `koanf:"endpoint"`
}

type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	Prefix   string        `koanf:"prefix"`
	TTL      time.Duration `koanf:"ttl"`
}

type PostgresConfig struct {
	URL string `koanf:"url"`
}

type QuoteConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
	Runtime bool `koanf:"runtime"`
}

// Addr returns the listen address of the HTTP server
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.host":             "",
		"server.port":             3000,
		"server.allowed_origins":  []string{"https://dreamcatcher.run", "http://localhost:9000", "http://localhost:9300", "*"},
		"server.shutdown_timeout": "10s",

		"summary.enabled":       true,
		"summary.refresh_every": 1,
		"summary.max_tokens":    50,

		"history.window_size":    0,
		"history.drop_low_value": false,

		"store.backend":             BackendDynamoDB,
		"store.compression":         false,
		"store.conversations_table": "conversations",
		"store.settings_table":      "user_settings",
		"store.redis.addr":          "localhost:6379",
		"store.redis.prefix":        "totalrecall",

		"quote.url":     "https://zenquotes.io/api/quotes",
		"quote.timeout": "10s",

		"log.level":  "info",
		"log.format": "console",

		"metrics.enabled": true,
		"metrics.runtime": true,
	}
}

// legacyEnv maps the variable names used by earlier deployments onto config keys
var legacyEnv = map[string]string{
	"PORT":                       "server.port",
	"OPENAI_API_KEY":             "providers.openai.api_key",
	"ANTHROPIC_API_KEY":          "providers.anthropic.api_key",
	"CONF_AWS_REGION":            "store.dynamodb.region",
	"CONF_AWS_ACCESS_KEY_ID":     "store.dynamodb.access_key_id",
	"CONF_AWS_SECRET_ACCESS_KEY": "store.dynamodb.secret_access_key",
	"USE_COMPRESSION":            "store.compression",
}

func legacyValues() map[string]interface{} {
	out := map[string]interface{}{}
	for name, key := range legacyEnv {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			continue
		}
		if name == "USE_COMPRESSION" {
			out[key] = v == "1" || strings.EqualFold(v, "true")
			continue
		}
		out[key] = v
	}
	return out
}

// envKey turns TOTALRECALL_STORE__DYNAMODB__REGION into store.dynamodb.region
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// LoadConfig loads the configuration from defaults, a TOML file and the
// environment, in increasing order of precedence
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		defaultPaths := []string{"./totalrecall.toml", "$HOME/.totalrecall.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	if err := k.Load(confmap.Provider(legacyValues(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	// a list given through the environment arrives as one comma separated value
	if len(config.Server.AllowedOrigins) == 1 && strings.Contains(config.Server.AllowedOrigins[0], ",") {
		var origins []string
		for _, o := range strings.Split(config.Server.AllowedOrigins[0], ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		config.Server.AllowedOrigins = origins
	}

	return &config, nil
}

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# Total Recall configuration
# Every key can be overridden with TOTALRECALL_<SECTION>__<KEY>, e.g.
# TOTALRECALL_STORE__BACKEND=redis

[server]
port = 3000
allowed_origins = ["https://dreamcatcher.run", "http://localhost:9000", "http://localhost:9300", "*"]
shutdown_timeout = "10s"

[providers.openai]
api_key = "your-openai-api-key"
model = "gpt-3.5-turbo"

[providers.anthropic]
api_key = "your-anthropic-api-key"
model = "claude-3-5-sonnet-20240620"
max_tokens = 1024

[summary]
enabled = true
# recompute the summary once this many messages were added since the last one
refresh_every = 1
max_tokens = 50

[history]
# 0 sends the whole history
window_size = 0
drop_low_value = false

[store]
# dynamodb, redis, postgres or memory
backend = "dynamodb"
compression = false
conversations_table = "conversations"
settings_table = "user_settings"

[store.dynamodb]
region = "us-east-1"
access_key_id = ""
secret_access_key = ""

[store.redis]
addr = "localhost:6379"
prefix = "totalrecall"

[store.postgres]
url = "postgres://localhost:5432/totalrecall?sslmode=disable"

[quote]
url = "https://zenquotes.io/api/quotes"
timeout = "10s"

[log]
level = "info"
format = "console"

[metrics]
enabled = true
runtime = true
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("server port %d is out of range", config.Server.Port)
	}

	switch config.Store.Backend {
	case BackendDynamoDB:
		if config.Store.DynamoDB.Region == "" {
			return fmt.Errorf("dynamodb region is required")
		}
		if (config.Store.DynamoDB.AccessKeyID == "") != (config.Store.DynamoDB.SecretAccessKey == "") {
			return fmt.Errorf("dynamodb access_key_id and secret_access_key must be set together")
		}
	case BackendRedis:
		if config.Store.Redis.Addr == "" {
			return fmt.Errorf("redis addr is required")
		}
	case BackendPostgres:
		if config.Store.Postgres.URL == "" {
			return fmt.Errorf("postgres url is required")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown store backend %q", config.Store.Backend)
	}

	if config.Store.ConversationsTable == "" || config.Store.SettingsTable == "" {
		return fmt.Errorf("store table names are required")
	}
	if config.Store.ConversationsTable == config.Store.SettingsTable {
		return fmt.Errorf("conversations and settings must use different tables")
	}

	if config.Summary.Enabled && config.Summary.RefreshEvery < 1 {
		return fmt.Errorf("summary refresh_every must be at least 1, got %d", config.Summary.RefreshEvery)
	}
	if config.History.WindowSize < 0 {
		return fmt.Errorf("history window_size must not be negative")
	}

	switch config.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %q", config.Log.Format)
	}

	return nil
}

// ConfiguredProviders lists the providers that have an API key
func (c *Config) ConfiguredProviders() []string {
	var out []string
	if c.Providers.OpenAI.APIKey != "" {
		out = append(out, "openai")
	}
	if c.Providers.Anthropic.APIKey != "" {
		out = append(out, "anthropic")
	}
	return out
}
