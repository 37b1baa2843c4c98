package config

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"routeplan/internal/opt"
)

type ServerConfig struct {
	Port string `json:"port"`
	// ReadHeaderTimeoutSec bounds slow clients.
	ReadHeaderTimeoutSec int `json:"read_header_timeout_sec"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.ReadHeaderTimeoutSec <= 0 {
		c.ReadHeaderTimeoutSec = 5
	}
}

func (c ServerConfig) Addr() string { return ":" + c.Port }

type DatabaseConfig struct {
	// URL selects Postgres; empty keeps everything in memory.
	URL           string `json:"url"`
	Migrate       *bool  `json:"migrate"`
	MigrationsDir string `json:"migrations_dir"`
}

func (c *DatabaseConfig) SetDefaults() {
	if c.MigrationsDir == "" {
		c.MigrationsDir = "db/migrations"
	}
	if c.Migrate == nil {
		on := true
		c.Migrate = &on
	}
}

type RedisConfig struct {
	// URL switches plan events to Redis Pub/Sub.
	URL string `json:"url"`
}

type LogConfig struct {
	Level string `json:"level"`
}

func (c *LogConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

func (c LogConfig) Validate() error {
	if _, err := zerolog.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("unknown level %s", c.Level)
	}
	return nil
}

type PlannerConfig struct {
	// MaxCustomers caps a single plan; the savings table is quadratic.
	MaxCustomers int    `json:"max_customers"`
	TimeoutSec   int    `json:"timeout_sec"`
	Metric       string `json:"metric"`
}

func (c *PlannerConfig) SetDefaults() {
	if c.MaxCustomers <= 0 {
		c.MaxCustomers = 2000
	}
	if c.TimeoutSec <= 0 {
		c.TimeoutSec = 30
	}
	if c.Metric == "" {
		c.Metric = "haversine"
	}
}

func (c PlannerConfig) Validate() error {
	if _, err := opt.MetricByName(c.Metric); err != nil {
		return err
	}
	return nil
}

func (c PlannerConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSec) * time.Second }

type RateConfig struct {
	// RPS limits plan submissions per second across the process. Unset means
	// 5; an explicit 0 turns the limit off.
	RPS   *float64 `json:"rps"`
	Burst int      `json:"burst"`
}

func (c *RateConfig) SetDefaults() {
	if c.RPS == nil {
		rps := 5.0
		c.RPS = &rps
	}
	if c.Burst == 0 {
		c.Burst = 10
	}
}

func (c RateConfig) Validate() error {
	if (c.RPS != nil && *c.RPS < 0) || c.Burst < 0 {
		return fmt.Errorf("rps and burst must be >= 0")
	}
	return nil
}

// Enabled reports whether plan submissions are rate limited.
func (c RateConfig) Enabled() bool { return c.RPS != nil && *c.RPS > 0 }

type WebhookConfig struct {
	MaxAttempts    int `json:"max_attempts"`
	PollIntervalMs int `json:"poll_interval_ms"`
	TimeoutSec     int `json:"timeout_sec"`
}

func (c *WebhookConfig) SetDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 8
	}
	if c.PollIntervalMs <= 0 {
		c.PollIntervalMs = 1000
	}
	if c.TimeoutSec <= 0 {
		c.TimeoutSec = 10
	}
}

func (c WebhookConfig) Validate() error {
	if c.MaxAttempts > 50 {
		return fmt.Errorf("max_attempts must be <= 50")
	}
	return nil
}

func (c WebhookConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

type AuthConfig struct {
	// Mode is off (X-Tenant-Id and X-Role headers), dev (tenant:role
	// bearer tokens) or hmac (HS256 JWTs).
	Mode        string `json:"mode"`
	HMACSecret  string `json:"hmac_secret"`
	TenantClaim string `json:"tenant_claim"`
	RoleClaim   string `json:"role_claim"`
}

func (c *AuthConfig) SetDefaults() {
	if c.Mode == "" {
		c.Mode = "off"
	}
	if c.TenantClaim == "" {
		c.TenantClaim = "tenant"
	}
	if c.RoleClaim == "" {
		c.RoleClaim = "role"
	}
}

func (c AuthConfig) Validate() error {
	switch c.Mode {
	case "off", "dev":
	case "hmac":
		if c.HMACSecret == "" {
			return fmt.Errorf("hmac_secret is required in hmac mode")
		}
	default:
		return fmt.Errorf("unknown mode %s", c.Mode)
	}
	return nil
}
