// Package config loads the matching service configuration from defaults,
// an optional YAML file and environment overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"matching_service/models"
	"matching_service/utils"
)

// Config is the top-level configuration.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Redis    RedisConfig     `yaml:"redis"`
	Match    MatchConfig     `yaml:"match"`
	Auth     AuthConfig      `yaml:"auth"`
	Taxonomy models.Taxonomy `yaml:"taxonomy"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	SocketPath      string        `yaml:"socket_path"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// CloseGrace is how long a socket stays open after disconnect_reason is sent.
	CloseGrace      time.Duration `yaml:"close_grace"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// ConfigureNotifications enables keyspace expiry events on the server at startup.
	ConfigureNotifications bool `yaml:"configure_notifications"`
}

type MatchConfig struct {
	TTL            time.Duration `yaml:"ttl"`
	PairingTimeout time.Duration `yaml:"pairing_timeout"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	FanoutLimit    int           `yaml:"fanout_limit"`
}

type AuthConfig struct {
	JWTSecret    string   `yaml:"jwt_secret"`
	ProtectHTTP  bool     `yaml:"protect_http"`
	AllowedRoles []string `yaml:"allowed_roles"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			AllowedOrigins:  []string{"*"},
			SocketPath:      "/socket/matching",
			ShutdownTimeout: 10 * time.Second,
			CloseGrace:      time.Second,
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Match: MatchConfig{
			TTL:            60 * time.Second,
			PairingTimeout: 10 * time.Second,
			SweepInterval:  30 * time.Second,
			FanoutLimit:    16,
		},
		Auth: AuthConfig{
			ProtectHTTP:  true,
			AllowedRoles: []string{models.RoleUser, models.RoleAdmin},
		},
		Taxonomy: models.DefaultTaxonomy(),
	}
}

// Load reads the YAML file at path (if any) over the defaults, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	cfg.Taxonomy = normaliseTaxonomy(cfg.Taxonomy)
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if port := getenv("MATCHING_SERVICE_PORT"); port != "" {
		c.Server.Port = port
	}
	if port := getenv("PORT"); port != "" {
		c.Server.Port = port
	}
	if origin := getenv("UI_BASE_URL"); origin != "" {
		c.Server.AllowedOrigins = []string{origin}
	}
	if host := getenv("REDIS_HOST"); host != "" {
		port := getenv("REDIS_PORT")
		if port == "" {
			port = "6379"
		}
		c.Redis.Addr = net.JoinHostPort(host, port)
	}
	if pw := getenv("REDIS_PASSWORD"); pw != "" {
		c.Redis.Password = pw
	}
	if db := getenv("REDIS_DB"); db != "" {
		n, err := strconv.Atoi(db)
		if err != nil {
			return fmt.Errorf("invalid REDIS_DB %q: %w", db, err)
		}
		c.Redis.DB = n
	}
	if secret := getenv("JWT_ACCESS_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if ttl := getenv("MATCH_TTL_SECONDS"); ttl != "" {
		n, err := strconv.Atoi(ttl)
		if err != nil {
			return fmt.Errorf("invalid MATCH_TTL_SECONDS %q: %w", ttl, err)
		}
		c.Match.TTL = time.Duration(n) * time.Second
	}
	return nil
}

func normaliseTaxonomy(t models.Taxonomy) models.Taxonomy {
	norm := func(values []string) []string {
		out := make([]string, 0, len(values))
		seen := make(map[string]struct{}, len(values))
		for _, v := range values {
			n := utils.Normalise(v)
			if _, dup := seen[n]; dup || n == "" {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
		return out
	}
	return models.Taxonomy{
		Difficulties: norm(t.Difficulties),
		Topics:       norm(t.Topics),
		Languages:    norm(t.Languages),
	}
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret (JWT_ACCESS_SECRET) is required"))
	}
	if c.Match.TTL <= 0 {
		errs = append(errs, errors.New("match.ttl must be positive"))
	}
	if c.Match.PairingTimeout <= 0 {
		errs = append(errs, errors.New("match.pairing_timeout must be positive"))
	}
	if c.Match.FanoutLimit <= 0 {
		errs = append(errs, errors.New("match.fanout_limit must be positive"))
	}
	axes := map[string][]string{
		"difficulties": c.Taxonomy.Difficulties,
		"topics":       c.Taxonomy.Topics,
		"languages":    c.Taxonomy.Languages,
	}
	for name, values := range axes {
		if len(values) == 0 {
			errs = append(errs, fmt.Errorf("taxonomy.%s must not be empty", name))
		}
		for _, v := range values {
			if v == models.Any {
				errs = append(errs, fmt.Errorf("taxonomy.%s must not contain %s", name, models.Any))
			}
		}
	}
	return errors.Join(errs...)
}
