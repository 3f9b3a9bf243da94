// Package config provides configuration management for newslabels.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultWorkerHost        = "0.0.0.0"
	DefaultWorkerPort        = 5000
	DefaultRedisAddr         = "redis-news-labels-api:6379"
	DefaultCacheBackend      = "redis"
	DefaultCacheTTL          = 604800 * time.Second
	DefaultEmbeddingModel    = "text-embedding-3-small"
	DefaultLabelModel        = "gpt-3.5-turbo-0125"
	DefaultLabelMaxTokens    = 60
	DefaultClusterEps        = 0.53
	DefaultClusterMinSamples = 2
	DefaultEmbedConcurrency  = 8
	DefaultMaxBodyBytes      = 10 << 20
	DefaultShutdownTimeout   = 15 * time.Second
	DefaultLogLevel          = "info"
)

// Settings keys, shared by the settings file and the environment.
const (
	KeySettings           = "NEWSLABELS_SETTINGS"
	KeyWorkerHost         = "NEWSLABELS_WORKER_HOST"
	KeyWorkerPort         = "NEWSLABELS_WORKER_PORT"
	KeyRedisAddr          = "NEWSLABELS_REDIS_ADDR"
	KeyRedisPassword      = "NEWSLABELS_REDIS_PASSWORD"
	KeyRedisDB            = "NEWSLABELS_REDIS_DB"
	KeyCacheBackend       = "NEWSLABELS_CACHE_BACKEND"
	KeyCacheTTLSeconds    = "NEWSLABELS_CACHE_TTL_SECONDS"
	KeyCacheFailOpen      = "NEWSLABELS_CACHE_FAIL_OPEN"
	KeyOpenAIBaseURL      = "NEWSLABELS_OPENAI_BASE_URL"
	KeyEmbeddingModel     = "NEWSLABELS_EMBEDDING_MODEL"
	KeyEmbeddingMaxTokens = "NEWSLABELS_EMBEDDING_MAX_TOKENS"
	KeyEmbeddingDims      = "NEWSLABELS_EMBEDDING_DIMENSIONS"
	KeyLabelModel         = "NEWSLABELS_LABEL_MODEL"
	KeyLabelMaxTokens     = "NEWSLABELS_LABEL_MAX_TOKENS"
	KeyLabelSystemPrompt  = "NEWSLABELS_LABEL_SYSTEM_PROMPT"
	KeyClusterEps         = "NEWSLABELS_CLUSTER_EPS"
	KeyClusterMinSamples  = "NEWSLABELS_CLUSTER_MIN_SAMPLES"
	KeyEmbedConcurrency   = "NEWSLABELS_EMBED_CONCURRENCY"
	KeyMaxBodyBytes       = "NEWSLABELS_MAX_BODY_BYTES"
	KeyShutdownTimeout    = "NEWSLABELS_SHUTDOWN_TIMEOUT_SECONDS"
	KeyLogLevel           = "NEWSLABELS_LOG_LEVEL"
)

// Config holds the service settings. An empty LabelSystemPrompt keeps the
// built-in instruction; zero EmbeddingDimensions keeps the model default.
type Config struct {
	WorkerHost          string
	RedisAddr           string
	RedisPassword       string
	CacheBackend        string
	OpenAIBaseURL       string
	EmbeddingModel      string
	LabelModel          string
	LabelSystemPrompt   string
	LogLevel            string
	CacheTTL            time.Duration
	ShutdownTimeout     time.Duration
	ClusterEps          float64
	MaxBodyBytes        int64
	WorkerPort          int
	RedisDB             int
	EmbeddingMaxTokens  int
	EmbeddingDimensions int
	LabelMaxTokens      int
	ClusterMinSamples   int
	EmbedConcurrency    int
	CacheFailOpen       bool
}

var (
	global     *Config
	globalOnce sync.Once
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		WorkerHost:        DefaultWorkerHost,
		WorkerPort:        DefaultWorkerPort,
		RedisAddr:         DefaultRedisAddr,
		CacheBackend:      DefaultCacheBackend,
		CacheTTL:          DefaultCacheTTL,
		CacheFailOpen:     true,
		EmbeddingModel:    DefaultEmbeddingModel,
		LabelModel:        DefaultLabelModel,
		LabelMaxTokens:    DefaultLabelMaxTokens,
		ClusterEps:        DefaultClusterEps,
		ClusterMinSamples: DefaultClusterMinSamples,
		EmbedConcurrency:  DefaultEmbedConcurrency,
		MaxBodyBytes:      DefaultMaxBodyBytes,
		ShutdownTimeout:   DefaultShutdownTimeout,
		LogLevel:          DefaultLogLevel,
	}
}

// DataDir returns the newslabels data directory.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".newslabels")
}

// SettingsPath returns the settings file path. NEWSLABELS_SETTINGS overrides
// the default location; a .yaml or .yml extension selects YAML.
func SettingsPath() string {
	if p := os.Getenv(KeySettings); p != "" {
		return p
	}
	return filepath.Join(DataDir(), "settings.json")
}

// EnsureDataDir creates the data directory if needed.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// EnsureSettings writes a settings file with the defaults if none exists.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}

	d := Default()
	settings := map[string]any{
		KeyWorkerPort:        d.WorkerPort,
		KeyRedisAddr:         d.RedisAddr,
		KeyCacheBackend:      d.CacheBackend,
		KeyCacheTTLSeconds:   int(d.CacheTTL / time.Second),
		KeyEmbeddingModel:    d.EmbeddingModel,
		KeyLabelModel:        d.LabelModel,
		KeyClusterEps:        d.ClusterEps,
		KeyClusterMinSamples: d.ClusterMinSamples,
	}

	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(settings)
	} else {
		data, err = json.MarshalIndent(settings, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// EnsureAll creates the data directory and default settings.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	return EnsureSettings()
}

// Load builds the configuration from defaults, the settings file and the
// environment, in increasing precedence. An unreadable or invalid settings
// file is logged and ignored.
func Load() (*Config, error) {
	cfg := Default()

	settings, err := readSettings(SettingsPath())
	if err != nil {
		log.Warn().Err(err).Str("path", SettingsPath()).Msg("Ignoring invalid settings file")
	}
	cfg.apply(func(key string) (string, bool) {
		v, ok := settings[key]
		if !ok || v == nil {
			return "", false
		}
		return settingString(v), true
	})
	cfg.apply(lookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Get returns the process-wide configuration, loading it on first use.
func Get() *Config {
	globalOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load config, using defaults")
			cfg = Default()
		}
		global = cfg
	})
	return global
}

// ListenAddr returns host:port for the HTTP server.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.WorkerHost, strconv.Itoa(c.WorkerPort))
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.CacheBackend != "redis" && c.CacheBackend != "memory":
		return fmt.Errorf("config: %s must be redis or memory, got %q", KeyCacheBackend, c.CacheBackend)
	case c.ClusterEps <= 0:
		return fmt.Errorf("config: %s must be positive", KeyClusterEps)
	case c.ClusterMinSamples < 1:
		return fmt.Errorf("config: %s must be at least 1", KeyClusterMinSamples)
	}
	return nil
}

// apply overrides fields with every key lookup finds. Unparseable values
// are logged and skipped.
func (c *Config) apply(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(key string, dst *int, floor int) {
		v, ok := lookup(key)
		if !ok {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < floor {
			log.Warn().Str("key", key).Str("value", v).Msg("Invalid integer setting, keeping previous value")
			return
		}
		*dst = n
	}
	seconds := func(key string, dst *time.Duration) {
		n := int(*dst / time.Second)
		integer(key, &n, 1)
		*dst = time.Duration(n) * time.Second
	}

	str(KeyWorkerHost, &c.WorkerHost)
	integer(KeyWorkerPort, &c.WorkerPort, 1)
	str(KeyRedisAddr, &c.RedisAddr)
	str(KeyRedisPassword, &c.RedisPassword)
	integer(KeyRedisDB, &c.RedisDB, 0)
	str(KeyCacheBackend, &c.CacheBackend)
	seconds(KeyCacheTTLSeconds, &c.CacheTTL)
	str(KeyOpenAIBaseURL, &c.OpenAIBaseURL)
	str(KeyEmbeddingModel, &c.EmbeddingModel)
	integer(KeyEmbeddingMaxTokens, &c.EmbeddingMaxTokens, 0)
	integer(KeyEmbeddingDims, &c.EmbeddingDimensions, 0)
	str(KeyLabelModel, &c.LabelModel)
	integer(KeyLabelMaxTokens, &c.LabelMaxTokens, 1)
	str(KeyLabelSystemPrompt, &c.LabelSystemPrompt)
	integer(KeyClusterMinSamples, &c.ClusterMinSamples, 1)
	integer(KeyEmbedConcurrency, &c.EmbedConcurrency, 1)
	seconds(KeyShutdownTimeout, &c.ShutdownTimeout)
	str(KeyLogLevel, &c.LogLevel)

	if v, ok := lookup(KeyCacheFailOpen); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			c.CacheFailOpen = b
		} else {
			log.Warn().Str("key", KeyCacheFailOpen).Str("value", v).Msg("Invalid boolean setting")
		}
	}
	if v, ok := lookup(KeyClusterEps); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f > 0 {
			c.ClusterEps = f
		} else {
			log.Warn().Str("key", KeyClusterEps).Str("value", v).Msg("Invalid eps setting")
		}
	}
	if v, ok := lookup(KeyMaxBodyBytes); ok {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && n > 0 {
			c.MaxBodyBytes = n
		} else {
			log.Warn().Str("key", KeyMaxBodyBytes).Str("value", v).Msg("Invalid body size setting")
		}
	}
}

// lookupEnv treats empty variables as unset.
func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	return v, ok && v != ""
}

func readSettings(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	settings := make(map[string]any)
	if isYAML(path) {
		err = yaml.Unmarshal(data, &settings)
	} else {
		err = json.Unmarshal(data, &settings)
	}
	if err != nil {
		return nil, err
	}
	return settings, nil
}

func settingString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
