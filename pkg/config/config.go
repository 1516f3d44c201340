// Package config loads the pipeline configuration from YAML and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/Sternrassler/validator-atlas/pkg/chain"
	"github.com/Sternrassler/validator-atlas/pkg/client"
	"github.com/Sternrassler/validator-atlas/pkg/enrich"
	"github.com/Sternrassler/validator-atlas/pkg/geo"
	"github.com/Sternrassler/validator-atlas/pkg/pagination"
	"github.com/Sternrassler/validator-atlas/pkg/ratelimit"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read at startup.
const (
	EnvIPInfoToken = "IPINFO_TOKEN"
	EnvRedisURL    = "REDIS_URL"
	EnvOutputDir   = "ATLAS_OUTPUT_DIR"
	EnvLogLevel    = "ATLAS_LOG_LEVEL"
)

// Config is the full pipeline configuration.
type Config struct {
	// OutputDir receives every artifact of a run.
	OutputDir string `yaml:"output_dir"`

	// Resume skips items already present in the checkpoint store instead of
	// truncating it.
	Resume bool `yaml:"resume"`

	// MaxPages caps one pagination walk.
	MaxPages int `yaml:"max_pages"`

	// Concurrency is the number of items enriched in parallel.
	Concurrency int `yaml:"concurrency"`

	HTTP    HTTPConfig               `yaml:"http"`
	Geo     GeoConfig                `yaml:"geo"`
	Redis   RedisConfig              `yaml:"redis"`
	Log     LogConfig                `yaml:"log"`
	Metrics MetricsConfig            `yaml:"metrics"`
	Chains  map[string]ChainOverride `yaml:"chains"`

	// Secrets override credential environment variables by name.
	Secrets map[string]string `yaml:"secrets"`
}

// HTTPConfig applies to every upstream client.
type HTTPConfig struct {
	Timeout   time.Duration      `yaml:"timeout"`
	UserAgent string             `yaml:"user_agent"`
	Retry     client.RetryConfig `yaml:"retry"`
}

// GeoConfig configures the geolocation lookup.
type GeoConfig struct {
	BaseURL   string            `yaml:"base_url"`
	Token     string            `yaml:"token"`
	RateLimit *ratelimit.Config `yaml:"rate_limit"`
	CacheTTL  time.Duration     `yaml:"cache_ttl"`
}

// RedisConfig enables the geolocation cache when URL is set.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// MetricsConfig enables the /metrics endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// ChainOverride adjusts a built-in chain profile.
type ChainOverride struct {
	ListingBaseURL string            `yaml:"listing_base_url"`
	DetailBaseURL  string            `yaml:"detail_base_url"`
	RateLimit      *ratelimit.Config `yaml:"rate_limit"`
	DetailPolicy   enrich.Policy     `yaml:"detail_policy"`
	GeoPolicy      enrich.Policy     `yaml:"geo_policy"`
}

// Default returns the configuration used without a config file.
func Default() *Config {
	return &Config{
		OutputDir:   "out",
		MaxPages:    pagination.DefaultMaxPages,
		Concurrency: 1,
		HTTP: HTTPConfig{
			Timeout:   30 * time.Second,
			UserAgent: client.DefaultUserAgent,
			Retry:     client.DefaultRetryConfig(),
		},
		Geo: GeoConfig{
			BaseURL:  geo.DefaultIPInfoURL,
			CacheTTL: geo.DefaultCacheTTL,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads configuration from a YAML file. ${VAR} references are expanded
// from the environment before parsing. An empty path returns the defaults.
// Environment variables fill credentials the file leaves empty.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		expandedData := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.foldChainKeys(); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding the process environment. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// foldChainKeys lower-cases the keys of Chains to match profile names.
// Two keys naming the same chain are an error.
func (c *Config) foldChainKeys() error {
	if len(c.Chains) == 0 {
		return nil
	}
	folded := make(map[string]ChainOverride, len(c.Chains))
	for name, o := range c.Chains {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, dup := folded[key]; dup {
			return fmt.Errorf("chains: %q is configured more than once", key)
		}
		folded[key] = o
	}
	c.Chains = folded
	return nil
}

func (c *Config) override(name string) (ChainOverride, bool) {
	if o, ok := c.Chains[name]; ok {
		return o, true
	}
	for key, o := range c.Chains {
		if strings.EqualFold(strings.TrimSpace(key), name) {
			return o, true
		}
	}
	return ChainOverride{}, false
}

func (c *Config) applyEnv() {
	if c.Geo.Token == "" {
		c.Geo.Token = os.Getenv(EnvIPInfoToken)
	}
	if c.Redis.URL == "" {
		c.Redis.URL = os.Getenv(EnvRedisURL)
	}
	if v := os.Getenv(EnvOutputDir); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.OutputDir == "" {
		c.OutputDir = def.OutputDir
	}
	if c.MaxPages <= 0 {
		c.MaxPages = def.MaxPages
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.HTTP.Timeout <= 0 {
		c.HTTP.Timeout = def.HTTP.Timeout
	}
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = def.HTTP.UserAgent
	}
	if c.HTTP.Retry.MaxAttempts <= 0 {
		c.HTTP.Retry.MaxAttempts = def.HTTP.Retry.MaxAttempts
	}
	if c.HTTP.Retry.InitialBackoff <= 0 {
		c.HTTP.Retry.InitialBackoff = def.HTTP.Retry.InitialBackoff
	}
	if c.HTTP.Retry.MaxBackoff <= 0 {
		c.HTTP.Retry.MaxBackoff = def.HTTP.Retry.MaxBackoff
	}
	if c.HTTP.Retry.BackoffMultiplier <= 0 {
		c.HTTP.Retry.BackoffMultiplier = def.HTTP.Retry.BackoffMultiplier
	}
	if c.Geo.BaseURL == "" {
		c.Geo.BaseURL = def.Geo.BaseURL
	}
	if c.Geo.CacheTTL <= 0 {
		c.Geo.CacheTTL = def.Geo.CacheTTL
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

// Validate checks value ranges and chain names.
func (c *Config) Validate() error {
	var errs []error

	for _, rl := range c.rateLimits() {
		if rl.Quota <= 0 || rl.Window <= 0 {
			errs = append(errs, fmt.Errorf("%s: rate limit quota and window must be > 0", rl.owner))
		}
	}
	for name := range c.Chains {
		if _, err := chain.Lookup(name); err != nil {
			errs = append(errs, fmt.Errorf("chains: %w", err))
		}
	}
	if c.HTTP.Retry.BackoffMultiplier < 1 {
		errs = append(errs, fmt.Errorf("http.retry.backoff_multiplier must be >= 1 (got %v)", c.HTTP.Retry.BackoffMultiplier))
	}

	return errors.Join(errs...)
}

type ownedLimit struct {
	owner string
	ratelimit.Config
}

func (c *Config) rateLimits() []ownedLimit {
	var out []ownedLimit
	if c.Geo.RateLimit != nil {
		out = append(out, ownedLimit{"geo", *c.Geo.RateLimit})
	}
	for name, o := range c.Chains {
		if o.RateLimit != nil {
			out = append(out, ownedLimit{"chains." + name, *o.RateLimit})
		}
	}
	return out
}

// Secret returns the named credential from Secrets or the environment.
func (c *Config) Secret(name string) string {
	if v, ok := c.Secrets[name]; ok && v != "" {
		return v
	}
	return os.Getenv(name)
}

// Profile returns the named chain profile with this configuration's
// overrides applied.
func (c *Config) Profile(name string) (chain.Profile, error) {
	p, err := chain.Lookup(name)
	if err != nil {
		return chain.Profile{}, err
	}

	o, ok := c.override(strings.ToLower(p.Name))
	if !ok {
		return p, nil
	}

	if o.ListingBaseURL != "" {
		p.Listing.BaseURL = o.ListingBaseURL
	}
	if p.Detail != nil {
		d := *p.Detail
		if o.DetailBaseURL != "" {
			d.BaseURL = o.DetailBaseURL
		}
		if o.DetailPolicy != "" {
			d.Policy = o.DetailPolicy
		}
		p.Detail = &d
	}
	if o.GeoPolicy != "" {
		p.GeoPolicy = o.GeoPolicy
	}
	if o.RateLimit != nil {
		rl := *o.RateLimit
		p.RateLimit = &rl
	}

	return p, p.Validate()
}
