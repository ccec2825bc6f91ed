// Package config implements the YAML-driven construction entry point:
// select an adapter kind, eviction policy, and default item policy, all
// from one config file. A cleanup interval is parsed too, but Build starts
// no periodic cleanup worker for it. Encryption key
// material is deliberately never read from YAML; only an environment
// variable name is configured here, keeping secrets out of
// version-controlled config.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/cachekit"
	"github.com/kraklabs/cachekit/codec"
	"github.com/kraklabs/cachekit/eviction"
	"github.com/kraklabs/cachekit/storage"
	"github.com/kraklabs/cachekit/storage/memstore"
	"github.com/kraklabs/cachekit/storage/rediskv"
)

// AdapterKind selects which reference storage.Adapter Build wires in.
type AdapterKind string

const (
	AdapterMemory AdapterKind = "memory"
	AdapterRedis  AdapterKind = "redis"
)

// Config is the top-level YAML document shape.
type Config struct {
	Adapter AdapterKind `yaml:"adapter"`
	Redis   RedisConfig `yaml:"redis"`

	// CleanupInterval is loaded from YAML; Build does not use it.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	Eviction EvictionConfig `yaml:"eviction"`

	DefaultPolicy DefaultPolicyConfig `yaml:"default_policy"`

	// CodecWorkers and AsyncThresholdBytes tune the async Put/Get
	// variants' worker pool; zero means engine defaults.
	CodecWorkers        int `yaml:"codec_workers"`
	AsyncThresholdBytes int `yaml:"async_threshold_bytes"`

	// Serializer names a cachekit.RegisterSerializer entry. Empty selects
	// the default JSON serializer.
	Serializer string `yaml:"serializer"`

	// EncryptionKeyEnv names the environment variable holding either a
	// raw 32-byte key (base64 not required, taken as-is) or a password to
	// derive one from via PBKDF2. Empty disables engine-level encryption.
	EncryptionKeyEnv string `yaml:"encryption_key_env"`
	KDFIterations    int    `yaml:"kdf_iterations"`
}

// RedisConfig mirrors rediskv.PoolConfig in YAML-friendly form.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// PasswordEnv names the environment variable holding the Redis AUTH
	// password; like the encryption key, it is never read from YAML.
	PasswordEnv string `yaml:"password_env"`
}

// EvictionConfig mirrors eviction.Config in YAML-friendly form.
type EvictionConfig struct {
	Enabled  bool   `yaml:"enabled"`
	MaxSize  int64  `yaml:"max_size"`
	MaxItems int    `yaml:"max_items"`
	Strategy string `yaml:"strategy"` // lru | lfu | fifo | ttl
}

// DefaultPolicyConfig mirrors the subset of cachekit.Policy that makes
// sense as static configuration.
type DefaultPolicyConfig struct {
	Expiry      time.Duration `yaml:"expiry"`
	Priority    string        `yaml:"priority"` // low | normal | high | critical
	Compression string        `yaml:"compression"`
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

func parseStrategy(s string) eviction.Strategy {
	switch s {
	case "lfu":
		return eviction.LFU
	case "fifo":
		return eviction.FIFO
	case "ttl":
		return eviction.TTL
	default:
		return eviction.LRU
	}
}

func parsePriority(s string) cachekit.Priority {
	switch s {
	case "low":
		return cachekit.PriorityLow
	case "high":
		return cachekit.PriorityHigh
	case "critical":
		return cachekit.PriorityCritical
	default:
		return cachekit.PriorityNormal
	}
}

func parseCompression(s string) cachekit.CompressionMode {
	switch s {
	case "always":
		return cachekit.CompressionAlways
	case "never":
		return cachekit.CompressionNever
	default:
		return cachekit.CompressionAuto
	}
}

// BuildAdapter constructs the storage.Adapter named by cfg.Adapter.
func (c *Config) BuildAdapter() (storage.Adapter, error) {
	switch c.Adapter {
	case AdapterRedis:
		password := ""
		if c.Redis.PasswordEnv != "" {
			password = os.Getenv(c.Redis.PasswordEnv)
		}
		return rediskv.New(rediskv.PoolConfig{
			Addr:         c.Redis.Addr,
			Password:     password,
			DB:           c.Redis.DB,
			PoolSize:     c.Redis.PoolSize,
			MinIdleConns: c.Redis.MinIdleConns,
			DialTimeout:  c.Redis.DialTimeout,
			ReadTimeout:  c.Redis.ReadTimeout,
			WriteTimeout: c.Redis.WriteTimeout,
		}), nil
	case AdapterMemory, "":
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("config: %w: unknown adapter kind %q", cachekit.ErrAdapterNotFound, c.Adapter)
	}
}

// Build wires the adapter, default policy, eviction, serializer, codec
// pool and encryption settings into a ready-to-use *cachekit.Engine. It
// starts no cleanup worker for CleanupInterval.
func (c *Config) Build(extraOpts ...cachekit.EngineOption) (*cachekit.Engine, error) {
	adapter, err := c.BuildAdapter()
	if err != nil {
		return nil, err
	}

	defaultPolicy := cachekit.DefaultPolicy().
		WithPriority(parsePriority(c.DefaultPolicy.Priority)).
		WithCompression(parseCompression(c.DefaultPolicy.Compression))
	if c.DefaultPolicy.Expiry > 0 {
		expiry := c.DefaultPolicy.Expiry
		defaultPolicy.Expiry = &expiry
	}

	opts := []cachekit.EngineOption{cachekit.WithDefaultPolicy(defaultPolicy)}

	if c.Eviction.Enabled {
		opts = append(opts, cachekit.WithEviction(eviction.Config{
			MaxSize:  c.Eviction.MaxSize,
			MaxItems: c.Eviction.MaxItems,
			Strategy: parseStrategy(c.Eviction.Strategy),
		}))
	}

	if c.Serializer != "" {
		s, err := cachekit.LookupSerializer(c.Serializer)
		if err != nil {
			return nil, err
		}
		opts = append(opts, cachekit.WithSerializer(s))
	}

	if c.CodecWorkers > 0 {
		opts = append(opts, cachekit.WithCodecWorkers(c.CodecWorkers))
	}
	if c.AsyncThresholdBytes > 0 {
		opts = append(opts, cachekit.WithAsyncThreshold(c.AsyncThresholdBytes))
	}

	if c.EncryptionKeyEnv != "" {
		secret := os.Getenv(c.EncryptionKeyEnv)
		if secret == "" {
			return nil, fmt.Errorf("config: environment variable %s is not set", c.EncryptionKeyEnv)
		}
		encOpts := codec.EncryptionOptions{Algorithm: codec.Aes256, Password: secret}
		if len(secret) == 32 {
			encOpts.Key = []byte(secret)
		}
		if c.KDFIterations > 0 {
			encOpts.Iterations = c.KDFIterations
		}
		opts = append(opts, cachekit.WithEncryption(encOpts))
	}

	opts = append(opts, extraOpts...)
	return cachekit.NewEngine(adapter, opts...)
}
