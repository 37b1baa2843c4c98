package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from environment overrides; "__" separates levels,
// so ROUTEPLAN_PLANNER__MAX_CUSTOMERS sets planner.max_customers.
const EnvPrefix = "ROUTEPLAN_"

type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	Log      LogConfig      `json:"log"`
	Planner  PlannerConfig  `json:"planner"`
	Rate     RateConfig     `json:"rate"`
	Webhooks WebhookConfig  `json:"webhooks"`
	Auth     AuthConfig     `json:"auth"`
}

// Load reads path (YAML or JSON) when it exists, then applies environment
// overrides, defaults and validation. An empty path skips the file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), parser); err != nil {
				return nil, fmt.Errorf("config: load %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.applyPlainEnv()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
	}
}

// applyPlainEnv honours the conventional unprefixed variables used by
// container platforms when the prefixed form is absent.
func (c *Config) applyPlainEnv() {
	if c.Server.Port == "" {
		c.Server.Port = os.Getenv("PORT")
	}
	if c.Database.URL == "" {
		c.Database.URL = os.Getenv("DATABASE_URL")
	}
	if c.Redis.URL == "" {
		c.Redis.URL = os.Getenv("REDIS_URL")
	}
}

func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.Database.SetDefaults()
	c.Log.SetDefaults()
	c.Planner.SetDefaults()
	c.Rate.SetDefaults()
	c.Webhooks.SetDefaults()
	c.Auth.SetDefaults()
}

func (c Config) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("config: log: %w", err)
	}
	if err := c.Planner.Validate(); err != nil {
		return fmt.Errorf("config: planner: %w", err)
	}
	if err := c.Rate.Validate(); err != nil {
		return fmt.Errorf("config: rate: %w", err)
	}
	if err := c.Webhooks.Validate(); err != nil {
		return fmt.Errorf("config: webhooks: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("config: auth: %w", err)
	}
	return nil
}
