// Package config loads runtime settings from defaults, an optional
// leadfinder.yaml, a .env file and LEADFINDER_* environment variables, in
// increasing order of precedence. Command-line flags bound to the returned
// viper instance win over all of them.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/FranksOps/leadfinder/internal/fingerprint"
	"github.com/FranksOps/leadfinder/internal/logger"
)

// EnvPrefix namespaces environment variables: fetch.host_delay is read from
// LEADFINDER_FETCH_HOST_DELAY.
const EnvPrefix = "LEADFINDER"

// DefaultSearchURL is the listing search the HTML provider scrapes.
const DefaultSearchURL = "https://www.yellowpages.com/search?search_terms={terms}&geo_location_terms={location}&page={page}"

type Config struct {
	HTTPAddr    string `mapstructure:"http_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	DatabaseURL string `mapstructure:"database_url"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`

	Fetch     FetchConfig     `mapstructure:"fetch"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
}

type FetchConfig struct {
	// HostDelay is the minimum gap between requests to one host.
	HostDelay          time.Duration `mapstructure:"host_delay"`
	Jitter             float64       `mapstructure:"jitter"`
	SearchTimeout      time.Duration `mapstructure:"search_timeout"`
	SearchRetries      int           `mapstructure:"search_retries"`
	WebsiteTimeout     time.Duration `mapstructure:"website_timeout"`
	WebsiteRetries     int           `mapstructure:"website_retries"`
	BackoffBase        time.Duration `mapstructure:"backoff_base"`
	BackoffMax         time.Duration `mapstructure:"backoff_max"`
	MaxRedirects       int           `mapstructure:"max_redirects"`
	MaxBodyBytes       int64         `mapstructure:"max_body_bytes"`
	TLSProfile         string        `mapstructure:"tls_profile"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	UserAgents         []string      `mapstructure:"user_agents"`
	ProxyFile          string        `mapstructure:"proxy_file"`
	RespectRobots      bool          `mapstructure:"respect_robots"`
	CookieJar          bool          `mapstructure:"cookie_jar"`
}

type DiscoveryConfig struct {
	SearchURL string          `mapstructure:"search_url"`
	MaxPages  int             `mapstructure:"max_pages"`
	Region    string          `mapstructure:"region"`
	Selectors SelectorsConfig `mapstructure:"selectors"`
}

// SelectorsConfig overrides individual listing selectors. Empty fields keep
// the defaults.
type SelectorsConfig struct {
	Result       string `mapstructure:"result"`
	Name         string `mapstructure:"name"`
	Category     string `mapstructure:"category"`
	Street       string `mapstructure:"street"`
	Locality     string `mapstructure:"locality"`
	Phone        string `mapstructure:"phone"`
	Website      string `mapstructure:"website"`
	Rating       string `mapstructure:"rating"`
	RatingAttr   string `mapstructure:"rating_attr"`
	Reviews      string `mapstructure:"reviews"`
	SourceIDAttr string `mapstructure:"source_id_attr"`
	Next         string `mapstructure:"next"`
}

type AuditConfig struct {
	SlowThreshold    time.Duration `mapstructure:"slow_threshold"`
	PlaceholderTerms []string      `mapstructure:"placeholder_terms"`
}

type PipelineConfig struct {
	Workers       int `mapstructure:"workers"`
	MaxResultsCap int `mapstructure:"max_results_cap"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("database_url", "sqlite://leadfinder.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	v.SetDefault("fetch.host_delay", time.Second)
	v.SetDefault("fetch.jitter", 0.3)
	v.SetDefault("fetch.search_timeout", 10*time.Second)
	v.SetDefault("fetch.search_retries", 2)
	v.SetDefault("fetch.website_timeout", 20*time.Second)
	v.SetDefault("fetch.website_retries", 1)
	v.SetDefault("fetch.backoff_base", 500*time.Millisecond)
	v.SetDefault("fetch.backoff_max", 5*time.Second)
	v.SetDefault("fetch.max_redirects", 10)
	v.SetDefault("fetch.max_body_bytes", 5<<20)
	v.SetDefault("fetch.tls_profile", string(fingerprint.ProfileChrome))
	v.SetDefault("fetch.insecure_skip_verify", false)
	v.SetDefault("fetch.user_agents", []string{})
	v.SetDefault("fetch.proxy_file", "")
	v.SetDefault("fetch.respect_robots", true)
	v.SetDefault("fetch.cookie_jar", false)

	v.SetDefault("discovery.search_url", DefaultSearchURL)
	v.SetDefault("discovery.max_pages", 5)
	v.SetDefault("discovery.region", "US")
	for _, k := range []string{"result", "name", "category", "street", "locality", "phone", "website", "rating", "rating_attr", "reviews", "source_id_attr", "next"} {
		v.SetDefault("discovery.selectors."+k, "")
	}

	v.SetDefault("audit.slow_threshold", 3*time.Second)
	v.SetDefault("audit.placeholder_terms", []string{})

	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.max_results_cap", 100)
}

// NewViper returns a viper instance with defaults, the environment and the
// config file applied. file may be empty, in which case ./leadfinder.yaml is
// used when present. A .env file in the working directory is loaded first;
// variables already set in the environment keep their values.
func NewViper(file string) (*viper.Viper, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("database_url", EnvPrefix+"_DATABASE_URL", "DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
		return v, nil
	}

	v.SetConfigName("leadfinder")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	return v, nil
}

// FromViper decodes v. It does not validate.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.Fetch.UserAgents = compact(cfg.Fetch.UserAgents)
	cfg.Audit.PlaceholderTerms = compact(cfg.Audit.PlaceholderTerms)
	return &cfg, nil
}

// Load reads and validates the configuration.
func Load(file string) (*Config, error) {
	v, err := NewViper(file)
	if err != nil {
		return nil, err
	}
	cfg, err := FromViper(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func compact(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.DatabaseURL != "", "database_url is required")
	check(c.HTTPAddr != "", "http_addr is required")
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	check(c.LogFormat == "text" || c.LogFormat == "json", "log_format must be text or json, got %q", c.LogFormat)

	f := c.Fetch
	check(f.HostDelay >= 0, "fetch.host_delay must not be negative")
	check(f.Jitter >= 0 && f.Jitter <= 1, "fetch.jitter must be between 0 and 1, got %v", f.Jitter)
	check(f.SearchTimeout > 0, "fetch.search_timeout must be positive")
	check(f.WebsiteTimeout > 0, "fetch.website_timeout must be positive")
	check(f.SearchRetries >= 0, "fetch.search_retries must not be negative")
	check(f.WebsiteRetries >= 0, "fetch.website_retries must not be negative")
	check(f.BackoffBase > 0, "fetch.backoff_base must be positive")
	check(f.BackoffMax >= f.BackoffBase, "fetch.backoff_max must be at least fetch.backoff_base")
	check(f.MaxBodyBytes > 0, "fetch.max_body_bytes must be positive")
	if _, err := fingerprint.ParseProfile(f.TLSProfile); err != nil {
		errs = append(errs, err)
	}

	d := c.Discovery
	check(strings.Contains(d.SearchURL, "{terms}"), "discovery.search_url must contain {terms}")
	check(d.MaxPages >= 1, "discovery.max_pages must be at least 1")
	check(len(d.Region) == 2, "discovery.region must be a two-letter region code, got %q", d.Region)

	check(c.Audit.SlowThreshold > 0, "audit.slow_threshold must be positive")
	check(c.Pipeline.Workers >= 1, "pipeline.workers must be at least 1")
	check(c.Pipeline.MaxResultsCap >= 1, "pipeline.max_results_cap must be at least 1")

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid settings: %w", errors.Join(errs...))
	}
	return nil
}
