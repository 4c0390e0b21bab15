package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Postgres  PostgresConfig  `json:"postgres"`
	Redis     RedisConfig     `json:"redis"`
	Auth      AuthConfig      `json:"auth"`
	Beta      BetaConfig      `json:"beta"`
	Waves     []WaveConfig    `json:"waves"`
	RateLimit RateLimitConfig `json:"rate_limit"`
}

type ServerConfig struct {
	Port        string `json:"port"`
	Environment string `json:"environment"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type AuthConfig struct {
	JWTSecret   string `json:"-"`
	ExpiryHours int    `json:"expiry_hours"`
}

type BetaConfig struct {
	// Global cap on beta members across all codes. A redemption is the
	// durable record of granted access, so the cap is checked against the
	// redemption count.
	ProgramCap int `json:"program_cap"`
}

// A pricing wave. Waves are static configuration; only the count of
// members assigned to each wave changes at runtime.
type WaveConfig struct {
	Number   int     `json:"number"`
	MaxSeats int     `json:"max_seats"` // 0 = unbounded
	PriceUSD float64 `json:"price_usd"`
	Label    string  `json:"label"`
}

type RateLimitConfig struct {
	// "memory" for a single instance, "redis" for shared limits across
	// instances. Memory limits are approximate per-instance when the
	// service is scaled out.
	Store string          `json:"store"`
	Rules []RateLimitRule `json:"rules"`
}

type RateLimitRule struct {
	Name     string `json:"name"`
	Limit    int    `json:"limit"`
	WindowMs int    `json:"window_ms"`
	// "closed" denies requests when the limiter store is unavailable,
	// "open" lets them through. Capacity-limited endpoints should fail
	// closed.
	FailMode string `json:"fail_mode"`
}

func (r RateLimitRule) Window() time.Duration {
	return time.Duration(r.WindowMs) * time.Millisecond
}

func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

func Load(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyDefaults(&config)
	applyEnv(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Auth.ExpiryHours == 0 {
		cfg.Auth.ExpiryHours = 24
	}
	if cfg.Beta.ProgramCap == 0 {
		cfg.Beta.ProgramCap = 50
	}
	if cfg.RateLimit.Store == "" {
		cfg.RateLimit.Store = "memory"
	}
}

// Secrets come from the environment, never from the config file.
func applyEnv(cfg *Config) {
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		cfg.Postgres.DSN = dsn
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
}

// Validate checks invariants that must hold before the service starts:
// wave ordinals are contiguous from zero, every wave except the last has a
// seat cap, and rate-limit rules are well formed.
func (c *Config) Validate() error {
	if len(c.Waves) == 0 {
		return fmt.Errorf("config: at least one wave must be defined")
	}

	for i, wave := range c.Waves {
		if wave.Number != i {
			return fmt.Errorf("config: wave %d out of order (expected number %d)", wave.Number, i)
		}
		if wave.MaxSeats < 0 {
			return fmt.Errorf("config: wave %d has negative max_seats", wave.Number)
		}
		if wave.MaxSeats == 0 && i != len(c.Waves)-1 {
			return fmt.Errorf("config: wave %d is unbounded but not the last wave", wave.Number)
		}
		if wave.PriceUSD < 0 {
			return fmt.Errorf("config: wave %d has negative price", wave.Number)
		}
	}

	if c.Beta.ProgramCap < 1 {
		return fmt.Errorf("config: beta program_cap must be at least 1")
	}

	for _, rule := range c.RateLimit.Rules {
		if rule.Name == "" {
			return fmt.Errorf("config: rate limit rule with empty name")
		}
		if rule.Limit < 1 {
			return fmt.Errorf("config: rate limit rule %q has limit < 1", rule.Name)
		}
		if rule.WindowMs < 1 {
			return fmt.Errorf("config: rate limit rule %q has window_ms < 1", rule.Name)
		}
		switch rule.FailMode {
		case "", "open", "closed":
		default:
			return fmt.Errorf("config: rate limit rule %q has unknown fail_mode %q", rule.Name, rule.FailMode)
		}
	}

	switch c.RateLimit.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unknown rate limit store %q", c.RateLimit.Store)
	}

	return nil
}

// Rule returns the named rate-limit rule, or nil if not configured.
func (c *Config) Rule(name string) *RateLimitRule {
	for i := range c.RateLimit.Rules {
		if c.RateLimit.Rules[i].Name == name {
			return &c.RateLimit.Rules[i]
		}
	}
	return nil
}
