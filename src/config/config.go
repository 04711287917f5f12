// Package config loads perfmon settings from an optional YAML file with PERFMON_*
// environment overrides, e.g. PERFMON_BACKEND_BASE_URL for backend.base_url.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/iafilius/ThreadPerfMonitor/src/monitor"
)

const envPrefix = "PERFMON"

type Backend struct {
	BaseURL         string
	Token           string
	Timeout         time.Duration
	RetryMaxElapsed time.Duration
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type Minio struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type Chart struct {
	Width  int
	Height int
	Dark   bool
}

type Config struct {
	Backend   Backend
	CacheTTL  time.Duration
	Redis     Redis
	ExportDir string
	Minio     Minio
	Chart     Chart
	LogLevel  string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.base_url", "http://127.0.0.1:40120")
	v.SetDefault("backend.timeout", 10*time.Second)
	v.SetDefault("backend.retry_max_elapsed", 20*time.Second)
	v.SetDefault("cache.ttl", 30*time.Second)
	v.SetDefault("redis.db", 0)
	v.SetDefault("export.dir", ".")
	v.SetDefault("chart.width", 960)
	v.SetDefault("chart.height", 360)
	v.SetDefault("chart.dark", true)
	v.SetDefault("log.level", "info")
}

// New returns a viper instance with defaults and environment binding. path may
// be empty; a missing file is an error only when path is given.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only sees keys viper already knows about
	for _, k := range []string{
		"backend.token", "redis.addr", "redis.password",
		"minio.endpoint", "minio.access_key", "minio.secret_key", "minio.bucket", "minio.use_ssl",
	} {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind %s: %w", k, err)
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		monitor.Debugf("[config] loaded %s", path)
	}
	return v, nil
}

// Load reads the configuration at path (optional) into a Config.
func Load(path string) (*Config, error) {
	v, err := New(path)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

func FromViper(v *viper.Viper) (*Config, error) {
	c := &Config{
		Backend: Backend{
			BaseURL:         strings.TrimRight(v.GetString("backend.base_url"), "/"),
			Token:           v.GetString("backend.token"),
			Timeout:         v.GetDuration("backend.timeout"),
			RetryMaxElapsed: v.GetDuration("backend.retry_max_elapsed"),
		},
		CacheTTL: v.GetDuration("cache.ttl"),
		Redis: Redis{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		ExportDir: v.GetString("export.dir"),
		Minio: Minio{
			Endpoint:  v.GetString("minio.endpoint"),
			AccessKey: v.GetString("minio.access_key"),
			SecretKey: v.GetString("minio.secret_key"),
			Bucket:    v.GetString("minio.bucket"),
			UseSSL:    v.GetBool("minio.use_ssl"),
		},
		Chart: Chart{
			Width:  v.GetInt("chart.width"),
			Height: v.GetInt("chart.height"),
			Dark:   v.GetBool("chart.dark"),
		},
		LogLevel: v.GetString("log.level"),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("config: backend.base_url is empty")
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("config: backend.timeout must be positive, got %s", c.Backend.Timeout)
	}
	if c.Chart.Width < 0 || c.Chart.Height < 0 {
		return fmt.Errorf("config: chart size must not be negative")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: unknown log.level %q", c.LogLevel)
	}
	if c.Minio.Endpoint != "" && c.Minio.Bucket == "" {
		return fmt.Errorf("config: minio.bucket is required with minio.endpoint")
	}
	return nil
}

// ClientConfig converts the backend section for monitor.NewClient.
func (c *Config) ClientConfig() *monitor.ClientConfig {
	cc := monitor.DefaultClientConfig(c.Backend.BaseURL)
	cc.Token = c.Backend.Token
	cc.Timeout = c.Backend.Timeout
	return cc
}

// FetcherOptions converts the cache and retry settings. Shared is left nil.
func (c *Config) FetcherOptions() monitor.FetcherOptions {
	return monitor.FetcherOptions{TTL: c.CacheTTL, RetryMaxElapsed: c.Backend.RetryMaxElapsed}
}

// OpenFetcher builds the response fetcher. A configured Redis becomes the shared
// cache when it answers within a few seconds; otherwise it is skipped with a
// warning. closeFn releases the Redis connection and is never nil.
func (c *Config) OpenFetcher(ctx context.Context, keyPrefix string, metrics *monitor.Metrics) (f *monitor.Fetcher, closeFn func() error) {
	opts := c.FetcherOptions()
	opts.Metrics = metrics
	closeFn = func() error { return nil }
	if c.Redis.Addr != "" {
		rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		store, err := monitor.NewRedisStore(rctx, monitor.RedisConfig{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
			Prefix:   keyPrefix,
		})
		cancel()
		if err != nil {
			monitor.Warnf("[config] shared cache skipped: %v", err)
		} else {
			opts.Shared = store
			closeFn = store.Close
		}
	}
	return monitor.NewFetcher(monitor.NewClient(c.ClientConfig()), opts), closeFn
}
