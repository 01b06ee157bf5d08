package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v10"
)

// EnvPrefix prefixes every environment override of the basic, redis and database settings.
const EnvPrefix = "CHATSTREAM_"

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis" envPrefix:"REDIS_"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Search      SearchConfig              `json:"search"`
}

type BasicConfig struct {
	ServerAddress        string `json:"server_address" env:"SERVER_ADDRESS"`
	Database             string `json:"database" env:"DB"`
	LogLevel             string `json:"log_level" env:"LOG_LEVEL"`
	LogFormat            string `json:"log_format" env:"LOG_FORMAT"`
	ThrottleRate         string `json:"throttle_rate" env:"THROTTLE_RATE"`
	AdminToken           string `json:"admin_token" env:"ADMIN_TOKEN"`
	StreamTimeoutSeconds int    `json:"stream_timeout_seconds" env:"STREAM_TIMEOUT_SECONDS"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"dbname"`
	Params   string `json:"params"`
}

// RedisConfig is optional; an empty Host disables redis.
type RedisConfig struct {
	Host     string `json:"host" env:"HOST"`
	Port     int    `json:"port" env:"PORT"`
	Username string `json:"username" env:"USERNAME"`
	Password string `json:"password" env:"PASSWORD"`
	DB       int    `json:"db" env:"DB"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

type SearchConfig struct {
	GoogleAPIKey         string `json:"google_api_key"`
	GoogleSearchEngineID string `json:"google_search_engine_id"`
}

// databaseEnv carries per-driver overrides that cannot be expressed on the map itself.
type databaseEnv struct {
	SQLiteDSN  string `env:"SQLITE_DSN"`
	MySQLDSN   string `env:"MYSQL_DSN"`
	MySQLHost  string `env:"MYSQL_HOST"`
	MySQLPort  int    `env:"MYSQL_PORT"`
	MySQLUser  string `env:"MYSQL_USER"`
	MySQLPass  string `env:"MYSQL_PASSWORD"`
	MySQLDB    string `env:"MYSQL_DATABASE"`
	MySQLParam string `env:"MYSQL_PARAMS"`
}

// providerSecrets uses the conventional, unprefixed variable names of each vendor.
type providerSecrets struct {
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string `env:"OPENAI_BASE_URL"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	GeminiAPIKey    string `env:"GEMINI_API_KEY"`
	OllamaHost      string `env:"OLLAMA_HOST"`

	GoogleAPIKey         string `env:"GOOGLE_API_KEY"`
	GoogleSearchEngineID string `env:"GOOGLE_SEARCH_ENGINE_ID"`
}

const (
	DefaultServerAddress = ":8090"
	DefaultDatabase      = "sqlite3"
	DefaultSQLiteDSN     = "chatstream.db"
	DefaultThrottleRate  = "5/minute"
	DefaultStreamTimeout = 120
)

// Load reads configuration from the provided path (defaults to config.json) and applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	var cfg Config
	file, err := os.Open(absPath)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if sqlite, ok := cfg.Databases["sqlite3"]; ok && !isMemoryDSN(sqlite.DSN) && !filepath.IsAbs(sqlite.DSN) {
		sqlite.DSN = filepath.Join(filepath.Dir(absPath), sqlite.DSN)
		cfg.Databases["sqlite3"] = sqlite
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	opts := env.Options{Prefix: EnvPrefix}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	var dbEnv databaseEnv
	if err := env.ParseWithOptions(&dbEnv, opts); err != nil {
		return fmt.Errorf("parse database env: %w", err)
	}
	if cfg.Databases == nil {
		cfg.Databases = make(map[string]DatabaseConfig)
	}
	if dbEnv.SQLiteDSN != "" {
		sqlite := cfg.Databases["sqlite3"]
		sqlite.DSN = dbEnv.SQLiteDSN
		cfg.Databases["sqlite3"] = sqlite
	}
	mysql := cfg.Databases["mysql"]
	overrideString(&mysql.DSN, dbEnv.MySQLDSN)
	overrideString(&mysql.Host, dbEnv.MySQLHost)
	overrideString(&mysql.Username, dbEnv.MySQLUser)
	overrideString(&mysql.Password, dbEnv.MySQLPass)
	overrideString(&mysql.DBName, dbEnv.MySQLDB)
	overrideString(&mysql.Params, dbEnv.MySQLParam)
	if dbEnv.MySQLPort != 0 {
		mysql.Port = dbEnv.MySQLPort
	}
	if mysql != (DatabaseConfig{}) {
		cfg.Databases["mysql"] = mysql
	}

	var secrets providerSecrets
	if err := env.Parse(&secrets); err != nil {
		return fmt.Errorf("parse provider env: %w", err)
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	overrideProvider(cfg.Providers, "openai", secrets.OpenAIAPIKey, secrets.OpenAIBaseURL)
	overrideProvider(cfg.Providers, "claude", secrets.AnthropicAPIKey, "")
	overrideProvider(cfg.Providers, "gemini", secrets.GeminiAPIKey, "")
	overrideProvider(cfg.Providers, "ollama", "", secrets.OllamaHost)
	overrideString(&cfg.Search.GoogleAPIKey, secrets.GoogleAPIKey)
	overrideString(&cfg.Search.GoogleSearchEngineID, secrets.GoogleSearchEngineID)
	return nil
}

func applyDefaults(cfg *Config) {
	basic := &cfg.BasicConfig
	if basic.ServerAddress == "" {
		basic.ServerAddress = DefaultServerAddress
	}
	basic.Database = strings.ToLower(strings.TrimSpace(basic.Database))
	if basic.Database == "" || basic.Database == "sqlite" {
		basic.Database = DefaultDatabase
	}
	if basic.LogLevel == "" {
		basic.LogLevel = "info"
	}
	if basic.LogFormat == "" {
		basic.LogFormat = "console"
	}
	if basic.ThrottleRate == "" {
		basic.ThrottleRate = DefaultThrottleRate
	}
	if basic.StreamTimeoutSeconds <= 0 {
		basic.StreamTimeoutSeconds = DefaultStreamTimeout
	}
	if sqlite := cfg.Databases["sqlite3"]; sqlite.DSN == "" {
		sqlite.DSN = DefaultSQLiteDSN
		cfg.Databases["sqlite3"] = sqlite
	}
}

func overrideString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func overrideProvider(providers map[string]ProviderConfig, name, apiKey, baseURL string) {
	if apiKey == "" && baseURL == "" {
		return
	}
	p := providers[name]
	overrideString(&p.APIKey, apiKey)
	overrideString(&p.BaseURL, baseURL)
	providers[name] = p
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.HasPrefix(dsn, "file::memory:") || strings.Contains(dsn, "mode=memory")
}
