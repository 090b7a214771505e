// Package config loads the outline store configuration from defaults, an
// optional YAML file and OUTLINE_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/nainya/outlinestore/pkg/outline"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "OUTLINE_"

// Config is the complete runtime configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Outline OutlineConfig `yaml:"outline"`
	Log     LogConfig     `yaml:"log"`
	Auth    AuthConfig    `yaml:"auth"`

	// LoadedFrom lists the sources applied, lowest priority first.
	LoadedFrom []string `yaml:"-"`
}

type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr" validate:"required"`
	GrpcAddr        string        `yaml:"grpc_addr"`
	MetricsPort     int           `yaml:"metrics_port" validate:"min=0,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"min=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"min=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type StoreConfig struct {
	Backend string `yaml:"backend" validate:"oneof=file bolt sqlite memory"`
	// Dir is the node directory for the file backend.
	Dir string `yaml:"dir" validate:"required_if=Backend file"`
	// Path is the database file for the bolt and sqlite backends.
	Path    string `yaml:"path" validate:"required_if=Backend bolt,required_if=Backend sqlite"`
	Journal bool   `yaml:"journal"`
	Watch   bool   `yaml:"watch"`
}

type OutlineConfig struct {
	BaseURL        string `yaml:"base_url" validate:"required,url"`
	TrustAdjacency bool   `yaml:"trust_adjacency"`
	CommitPolicy   string `yaml:"commit_policy" validate:"oneof=sequential atomic"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Pretty bool   `yaml:"pretty"`
	Caller bool   `yaml:"caller"`
}

type AuthConfig struct {
	// JWTSecret enables bearer-token authorization of write routes when set.
	JWTSecret string `yaml:"jwt_secret" validate:"omitempty,min=16"`
	Issuer    string `yaml:"issuer"`
}

// Default returns the configuration used when nothing else is supplied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			GrpcAddr:        ":50051",
			MetricsPort:     9090,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Store: StoreConfig{
			Backend: "file",
			Dir:     "data",
			Journal: true,
		},
		Outline: OutlineConfig{
			BaseURL:      "http://localhost:8080/data",
			CommitPolicy: "sequential",
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: false,
		},
	}
}

// Load applies defaults, then the YAML file at path when path is non-empty,
// then environment variables, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	cfg.LoadedFrom = []string{"defaults"}

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
		cfg.LoadedFrom = append(cfg.LoadedFrom, path)
	}

	if cfg.applyEnv(os.LookupEnv) {
		cfg.LoadedFrom = append(cfg.LoadedFrom, "environment")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays OUTLINE_* variables and reports whether any were set.
func (c *Config) applyEnv(lookup func(string) (string, bool)) bool {
	applied := false
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
			applied = true
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
				applied = true
			}
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
				applied = true
			}
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
				applied = true
			}
		}
	}

	str("HTTP_ADDR", &c.Server.HTTPAddr)
	str("GRPC_ADDR", &c.Server.GrpcAddr)
	integer("METRICS_PORT", &c.Server.MetricsPort)
	duration("READ_TIMEOUT", &c.Server.ReadTimeout)
	duration("WRITE_TIMEOUT", &c.Server.WriteTimeout)
	duration("SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	if v, ok := lookup(EnvPrefix + "CORS_ORIGINS"); ok && v != "" {
		c.Server.CORSOrigins = splitList(v)
		applied = true
	}

	str("STORE_BACKEND", &c.Store.Backend)
	str("STORE_DIR", &c.Store.Dir)
	str("STORE_PATH", &c.Store.Path)
	boolean("STORE_JOURNAL", &c.Store.Journal)
	boolean("STORE_WATCH", &c.Store.Watch)

	str("BASE_URL", &c.Outline.BaseURL)
	boolean("TRUST_ADJACENCY", &c.Outline.TrustAdjacency)
	str("COMMIT_POLICY", &c.Outline.CommitPolicy)

	str("LOG_LEVEL", &c.Log.Level)
	boolean("LOG_PRETTY", &c.Log.Pretty)
	boolean("LOG_CALLER", &c.Log.Caller)

	str("JWT_SECRET", &c.Auth.JWTSecret)
	str("JWT_ISSUER", &c.Auth.Issuer)

	return applied
}

// Validate checks struct constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	if c.Store.Watch && c.Store.Backend != "file" {
		return fmt.Errorf("store.watch requires the file backend, got %q", c.Store.Backend)
	}
	return nil
}

// ManagerOptions converts the outline section into manager options.
func (c *Config) ManagerOptions() outline.Options {
	opts := outline.Options{TrustAdjacency: c.Outline.TrustAdjacency}
	if c.Outline.CommitPolicy == "atomic" {
		opts.Commit = outline.CommitAtomic
	}
	return opts
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
