// config.go — layered configuration (defaults < config file < env vars <
// flags). A config file is preferred when present; the environment
// variables are only consulted when no config file is found. Flags (wired
// in cmd/browser-mcp-bridge) layer on top of both.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the full set of knobs the server reads at startup.
type Config struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	LogLevel string `koanf:"log_level"`

	MaxConnections int `koanf:"max_connections"`
	CacheSizeMB    int `koanf:"cache_size_mb"`

	EnableMetrics bool `koanf:"enable_metrics"`
	MetricsPort   int  `koanf:"metrics_port"`

	// RequestTimeout is the per-request deadline for extension round trips.
	// Only configurable via a config file; defaults to pending.DefaultTimeout.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// CleanupIntervalSecs/DataTTLSecs parameterise the cache maintenance
	// sweep.
	CleanupIntervalSecs int `koanf:"cleanup_interval_secs"`
	DataTTLSecs         int `koanf:"data_ttl_secs"`
	MaxCacheSize        int `koanf:"max_cache_size"`

	// IdleThresholdSecs is the connection reaper's idle cutoff.
	IdleThresholdSecs int `koanf:"idle_threshold_secs"`
}

// Defaults returns the built-in baseline, the lowest layer of the cascade.
func Defaults() Config {
	return Config{
		Host:                "0.0.0.0",
		Port:                6009,
		LogLevel:            "info",
		MaxConnections:      1000,
		CacheSizeMB:         256,
		EnableMetrics:       false,
		MetricsPort:         9090,
		RequestTimeout:      30 * time.Second,
		CleanupIntervalSecs: 60,
		DataTTLSecs:         300,
		MaxCacheSize:        500,
		IdleThresholdSecs:   120,
	}
}

// envKeys maps the recognised environment variables onto their koanf config
// keys. These are consulted only when no config file path resolves (see
// Load).
var envKeys = map[string]string{
	"MCP_SERVER_HOST": "host",
	"MCP_SERVER_PORT": "port",
	"LOG_LEVEL":       "log_level",
	"MAX_CONNECTIONS": "max_connections",
	"CACHE_SIZE_MB":   "cache_size_mb",
}

// Load assembles a Config from defaults, an optional config file at
// configPath, and — only when no config file was found — the recognised
// environment variables. It never consults flags; cmd/browser-mcp-bridge layers
// those on top of the returned Config directly, since koanf's posflag
// provider requires a live *pflag.FlagSet the CLI layer already owns.
func Load(configPath string) (Config, error) {
	k := koanf.New(".")
	cfg := Defaults()

	if err := k.Load(structProvider(cfg), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	fileFound := false
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("load config file %s: %w", configPath, err)
			}
			fileFound = true
		}
	}

	if !fileFound {
		envProvider := env.Provider(".", env.Opt{
			TransformFunc: func(k, v string) (string, any) {
				key, ok := envKeys[k]
				if !ok {
					return "", nil // not a recognised name; ignored
				}
				return key, v
			},
		})
		if err := k.Load(envProvider, nil); err != nil {
			return Config{}, fmt.Errorf("load env vars: %w", err)
		}
	}

	var out Config
	if err := k.Unmarshal("", &out); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if out.RequestTimeout <= 0 {
		out.RequestTimeout = cfg.RequestTimeout
	}
	return out, nil
}

// structProvider adapts a Config literal into a koanf.Provider so the
// default layer flows through the same Load path as the file/env layers.
func structProvider(cfg Config) koanf.Provider {
	return structMapProvider{
		"host":                  cfg.Host,
		"port":                  cfg.Port,
		"log_level":             cfg.LogLevel,
		"max_connections":       cfg.MaxConnections,
		"cache_size_mb":         cfg.CacheSizeMB,
		"enable_metrics":        cfg.EnableMetrics,
		"metrics_port":          cfg.MetricsPort,
		"request_timeout":       cfg.RequestTimeout,
		"cleanup_interval_secs": cfg.CleanupIntervalSecs,
		"data_ttl_secs":         cfg.DataTTLSecs,
		"max_cache_size":        cfg.MaxCacheSize,
		"idle_threshold_secs":   cfg.IdleThresholdSecs,
	}
}

type structMapProvider map[string]any

func (p structMapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("structMapProvider does not support ReadBytes")
}

func (p structMapProvider) Read() (map[string]any, error) {
	return map[string]any(p), nil
}
