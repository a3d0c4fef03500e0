// Package config loads typed configuration for the party-hub server from a
// YAML file, falling back to sensible defaults when the file is absent.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// VerbosityPolicy selects which macro event kinds get a persisted row. The
// broadcast is unaffected by this setting — it only gates what's written to
// the Entity Store.
type VerbosityPolicy string

const (
	VerbosityMacros  VerbosityPolicy = "macros"  // persist everything
	VerbosityMinimal VerbosityPolicy = "minimal" // only dice_roll and initiative rows
	VerbosityOff     VerbosityPolicy = "off"     // persist nothing
)

// VisibilityPolicy decides what a player gets back when invoking a
// Story-Weaver-only command: a private rejection, or nothing at all.
type VisibilityPolicy string

const (
	VisibilityReject VisibilityPolicy = "reject"
	VisibilityIgnore VisibilityPolicy = "ignore"
)

// Server is the top-level configuration for the party-hub process.
type Server struct {
	// Network
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`

	// Database
	Database DatabaseConfig `yaml:"database"`

	// Logging
	LogLevel string `yaml:"log_level"` // debug, info, warn, error

	// Macro Dispatcher
	MacroThrottleMS        int              `yaml:"macro_throttle_ms"`
	WSLogVerbosity         VerbosityPolicy  `yaml:"ws_log_verbosity"`
	VisibilityPolicy       VisibilityPolicy `yaml:"visibility_policy"`
	AbilityMaxUsesPerLevel int              `yaml:"ability_max_uses_per_level"`

	// Party Hub
	InboxBufferSize int `yaml:"inbox_buffer_size"` // per-party actor channel depth
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`

	MaxConns        int32  `yaml:"max_conns"`
	MinConns        int32  `yaml:"min_conns"`
	MaxConnLifetime string `yaml:"max_conn_lifetime"`
	MaxConnIdleTime string `yaml:"max_conn_idle_time"`
}

// DSN returns the PostgreSQL connection string, including pool parameters
// when set.
func (d DatabaseConfig) DSN() string {
	base := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)

	var params []string
	if d.MaxConns > 0 {
		params = append(params, fmt.Sprintf("pool_max_conns=%d", d.MaxConns))
	}
	if d.MinConns > 0 {
		params = append(params, fmt.Sprintf("pool_min_conns=%d", d.MinConns))
	}
	if d.MaxConnLifetime != "" {
		params = append(params, fmt.Sprintf("pool_max_conn_lifetime=%s", d.MaxConnLifetime))
	}
	if d.MaxConnIdleTime != "" {
		params = append(params, fmt.Sprintf("pool_max_conn_idle_time=%s", d.MaxConnIdleTime))
	}

	if len(params) > 0 {
		return base + "&" + strings.Join(params, "&")
	}
	return base
}

// DefaultServer returns a Server config with production-sane defaults.
func DefaultServer() Server {
	return Server{
		BindAddress:            "0.0.0.0",
		Port:                   8080,
		LogLevel:               "info",
		MacroThrottleMS:        700,
		WSLogVerbosity:         VerbosityMacros,
		VisibilityPolicy:       VisibilityReject,
		AbilityMaxUsesPerLevel: 3,
		InboxBufferSize:        64,
		Database: DatabaseConfig{
			Host:    "127.0.0.1",
			Port:    5432,
			User:    "partyhub",
			DBName:  "partyhub",
			SSLMode: "disable",
		},
	}
}

// LoadServer loads Server config from a YAML file, applying environment
// variable overrides afterward. If path does not exist, defaults (plus env
// overrides) are returned without error.
func LoadServer(path string) (Server, error) {
	cfg := DefaultServer()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides lets container deployments override the most commonly
// tuned knobs without editing the mounted YAML file.
func applyEnvOverrides(cfg *Server) {
	if v, ok := os.LookupEnv("MACRO_THROTTLE_MS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MacroThrottleMS = n
		}
	}
	if v, ok := os.LookupEnv("WS_LOG_VERBOSITY"); ok {
		cfg.WSLogVerbosity = VerbosityPolicy(v)
	}
	if v, ok := os.LookupEnv("VISIBILITY_POLICY"); ok {
		cfg.VisibilityPolicy = VisibilityPolicy(v)
	}
	if v, ok := os.LookupEnv("ABILITY_MAX_USES_PER_LEVEL"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AbilityMaxUsesPerLevel = n
		}
	}
	if v, ok := os.LookupEnv("DB_HOST"); ok && v != "" {
		cfg.Database.Host = v
	}
	if v, ok := os.LookupEnv("DB_PASSWORD"); ok && v != "" {
		cfg.Database.Password = v
	}
}
