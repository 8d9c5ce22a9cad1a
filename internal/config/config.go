package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	Env       string `mapstructure:"TKG_ENV"`
	HTTPAddr  string `mapstructure:"TKG_HTTP_ADDR"`
	PublicURL string `mapstructure:"TKG_PUBLIC_ORIGIN"`

	Blog      BlogConfig      `mapstructure:",squash"`
	Social    SocialConfig    `mapstructure:",squash"`
	Storage   StorageConfig   `mapstructure:",squash"`
	Events    EventsConfig    `mapstructure:",squash"`
	Scheduler SchedulerConfig `mapstructure:",squash"`
	Notify    NotifyConfig    `mapstructure:",squash"`
	LLM       LLMConfig       `mapstructure:",squash"`
	Security  SecurityConfig  `mapstructure:",squash"`
}

type BlogConfig struct {
	BaseURL string        `mapstructure:"TKG_BLOG_BASE_URL"`
	APIKey  string        `mapstructure:"TKG_BLOG_API_KEY"` // seeds the credentials slot when empty
	Timeout time.Duration `mapstructure:"TKG_BLOG_TIMEOUT"`
}

type SocialConfig struct {
	ProxyURL  string        `mapstructure:"TKG_SOCIAL_PROXY_URL"`
	GraphURL  string        `mapstructure:"TKG_SOCIAL_GRAPH_URL"`
	Signature string        `mapstructure:"TKG_SOCIAL_SIGNATURE"`
	Timeout   time.Duration `mapstructure:"TKG_SOCIAL_TIMEOUT"`
}

type StorageConfig struct {
	Backend          string `mapstructure:"TKG_STORAGE_BACKEND"` // memory, redis, postgres
	RedisURL         string `mapstructure:"TKG_STORAGE_REDIS_URL"`
	PostgresDSN      string `mapstructure:"TKG_STORAGE_POSTGRES_DSN"`
	KeyPrefix        string `mapstructure:"TKG_STORAGE_KEY_PREFIX"`
	FallbackToMemory bool   `mapstructure:"TKG_STORAGE_FALLBACK_TO_MEMORY"`
}

type EventsConfig struct {
	RedisAddr string `mapstructure:"TKG_EVENTS_REDIS_ADDR"` // empty keeps pub/sub in process
}

type SchedulerConfig struct {
	Enabled  bool          `mapstructure:"TKG_SCHEDULER_ENABLED"`
	Interval time.Duration `mapstructure:"TKG_SCHEDULER_INTERVAL"`
}

type NotifyConfig struct {
	TTL time.Duration `mapstructure:"TKG_NOTIFY_TTL"`
}

type LLMConfig struct {
	BaseURL string        `mapstructure:"TKG_LLM_BASE_URL"`
	APIKey  string        `mapstructure:"TKG_LLM_API_KEY"`
	Model   string        `mapstructure:"TKG_LLM_MODEL"`
	Timeout time.Duration `mapstructure:"TKG_LLM_TIMEOUT"`

	// Empty ImageModel keeps drafting on the profile fallback image.
	ImageModel string `mapstructure:"TKG_LLM_IMAGE_MODEL"`
	ImageSize  string `mapstructure:"TKG_LLM_IMAGE_SIZE"`
}

type SecurityConfig struct {
	RateLimitRPM       int      `mapstructure:"TKG_RATE_LIMIT_RPM"`
	CORSAllowedOrigins []string `mapstructure:"TKG_CORS_ALLOWED_ORIGINS"`
}

func loadDotEnvFiles() {
	candidates := []string{
		".env",
		filepath.Join("..", ".env"),
		filepath.Join("..", "..", ".env"),
	}

	seen := make(map[string]struct{})
	for _, path := range candidates {
		abs := path
		if resolved, err := filepath.Abs(path); err == nil {
			abs = resolved
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}

		if _, err := os.Stat(path); err == nil {
			_ = gotenv.Load(path) // variables already in the environment win
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("TKG_ENV", "dev")
	v.SetDefault("TKG_HTTP_ADDR", ":8080")
	v.SetDefault("TKG_PUBLIC_ORIGIN", "http://localhost:5173")

	v.SetDefault("TKG_BLOG_BASE_URL", "https://teknowguy.com")
	v.SetDefault("TKG_BLOG_API_KEY", "")
	v.SetDefault("TKG_BLOG_TIMEOUT", "30s")

	v.SetDefault("TKG_SOCIAL_PROXY_URL", "https://cors-publish.abacusai.app/api/proxy/publish")
	v.SetDefault("TKG_SOCIAL_GRAPH_URL", "https://graph.facebook.com/v19.0")
	v.SetDefault("TKG_SOCIAL_SIGNATURE", "Read more at Teknowguy.com")
	v.SetDefault("TKG_SOCIAL_TIMEOUT", "20s")

	v.SetDefault("TKG_STORAGE_BACKEND", "memory")
	v.SetDefault("TKG_STORAGE_REDIS_URL", "redis://127.0.0.1:6379/0")
	v.SetDefault("TKG_STORAGE_POSTGRES_DSN", "")
	v.SetDefault("TKG_STORAGE_KEY_PREFIX", "")
	v.SetDefault("TKG_STORAGE_FALLBACK_TO_MEMORY", true)

	v.SetDefault("TKG_EVENTS_REDIS_ADDR", "")

	v.SetDefault("TKG_SCHEDULER_ENABLED", true)
	v.SetDefault("TKG_SCHEDULER_INTERVAL", "30s")

	v.SetDefault("TKG_NOTIFY_TTL", "8s")

	v.SetDefault("TKG_LLM_BASE_URL", "")
	v.SetDefault("TKG_LLM_API_KEY", "")
	v.SetDefault("TKG_LLM_MODEL", "gpt-4o-mini")
	v.SetDefault("TKG_LLM_TIMEOUT", "90s")
	v.SetDefault("TKG_LLM_IMAGE_MODEL", "")
	v.SetDefault("TKG_LLM_IMAGE_SIZE", "1536x1024")

	v.SetDefault("TKG_RATE_LIMIT_RPM", 120)
	v.SetDefault("TKG_CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
}

func Load() (*Config, error) {
	loadDotEnvFiles()

	v := viper.New()
	v.SetConfigType("env")
	v.AutomaticEnv()
	setDefaults(v)

	// comma-separated lists
	if origins := v.GetString("TKG_CORS_ALLOWED_ORIGINS"); origins != "" {
		v.Set("TKG_CORS_ALLOWED_ORIGINS", splitList(origins))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.Blog.BaseURL = strings.TrimRight(strings.TrimSpace(c.Blog.BaseURL), "/")
	c.Blog.APIKey = strings.TrimSpace(c.Blog.APIKey)
	c.Social.GraphURL = strings.TrimRight(strings.TrimSpace(c.Social.GraphURL), "/")
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
}

func (c *Config) validate() error {
	if c.Blog.BaseURL == "" {
		return fmt.Errorf("TKG_BLOG_BASE_URL is required")
	}
	switch c.Storage.Backend {
	case "memory":
	case "redis":
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("TKG_STORAGE_REDIS_URL is required for the redis backend")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("TKG_STORAGE_POSTGRES_DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("invalid TKG_STORAGE_BACKEND %q (must be memory, redis, or postgres)", c.Storage.Backend)
	}
	if c.Scheduler.Interval < time.Second {
		return fmt.Errorf("TKG_SCHEDULER_INTERVAL must be at least 1s, got %s", c.Scheduler.Interval)
	}
	if c.Notify.TTL <= 0 {
		return fmt.Errorf("TKG_NOTIFY_TTL must be positive")
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

func (c *Config) IsProd() bool {
	return c.Env == "prod"
}

// LLMEnabled reports whether a generative backend is configured.
func (c *Config) LLMEnabled() bool {
	return c.LLM.APIKey != ""
}
