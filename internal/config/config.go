// Package config loads the TCXStat server configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Decode    DecodeConfig    `yaml:"decode"`
	Import    ImportConfig    `yaml:"import"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// MaxUploadMB bounds a single ingest request body after decompression.
	MaxUploadMB int `yaml:"max_upload_mb"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// TailscaleConfig serves the API on a tailnet node instead of a TCP port.
// Tailnet identity then replaces the single local user.
type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// DecodeConfig holds the defaults applied to every decoded file.
type DecodeConfig struct {
	OnlyGPS      *bool  `yaml:"only_gps"`
	NullHandling string `yaml:"null_handling"`
}

// GPSOnly reports the effective only_gps setting, true when unset.
func (d DecodeConfig) GPSOnly() bool {
	return d.OnlyGPS == nil || *d.OnlyGPS
}

// ImportConfig restricts server-side directory imports to Root.
type ImportConfig struct {
	Root string `yaml:"root"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(sslmode),
	}
	return u.String()
}

// Load reads config from a YAML file, then applies environment variable overrides.
// Env vars use the prefix TCXSTAT_ and underscore-separated paths:
//
//	TCXSTAT_SERVER_HOST, TCXSTAT_SERVER_PORT,
//	TCXSTAT_DB_HOST, TCXSTAT_DB_PORT, TCXSTAT_DB_NAME,
//	TCXSTAT_DB_USER, TCXSTAT_DB_PASSWORD, TCXSTAT_DB_SSLMODE,
//	TCXSTAT_AUTH_API_KEY,
//	TCXSTAT_TAILSCALE_ENABLED, TCXSTAT_TAILSCALE_HOSTNAME, TCXSTAT_TAILSCALE_STATE_DIR,
//	TCXSTAT_DECODE_ONLY_GPS, TCXSTAT_DECODE_NULL_HANDLING,
//	TCXSTAT_IMPORT_ROOT
//
// A .env file next to the config file supplies values for variables that
// are not set in the process environment. It is optional.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	getenv, err := envLookup(filepath.Join(filepath.Dir(path), ".env"))
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg, getenv)
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envLookup returns a getter that prefers the process environment and falls
// back to the dotenv file. The process environment is left untouched.
func envLookup(dotenv string) (func(string) string, error) {
	file, err := godotenv.Read(dotenv)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading %s: %w", dotenv, err)
		}
		file = nil
	}
	return func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return file[key]
	}, nil
}

func applyEnvOverrides(cfg *Config, getenv func(string) string) {
	str := map[string]*string{
		"TCXSTAT_SERVER_HOST":          &cfg.Server.Host,
		"TCXSTAT_DB_HOST":              &cfg.Database.Host,
		"TCXSTAT_DB_NAME":              &cfg.Database.Name,
		"TCXSTAT_DB_USER":              &cfg.Database.User,
		"TCXSTAT_DB_PASSWORD":          &cfg.Database.Password,
		"TCXSTAT_DB_SSLMODE":           &cfg.Database.SSLMode,
		"TCXSTAT_AUTH_API_KEY":         &cfg.Auth.APIKey,
		"TCXSTAT_TAILSCALE_HOSTNAME":   &cfg.Tailscale.Hostname,
		"TCXSTAT_TAILSCALE_STATE_DIR":  &cfg.Tailscale.StateDir,
		"TCXSTAT_DECODE_NULL_HANDLING": &cfg.Decode.NullHandling,
		"TCXSTAT_IMPORT_ROOT":          &cfg.Import.Root,
	}
	for key, dst := range str {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"TCXSTAT_SERVER_PORT":          &cfg.Server.Port,
		"TCXSTAT_SERVER_MAX_UPLOAD_MB": &cfg.Server.MaxUploadMB,
		"TCXSTAT_DB_PORT":              &cfg.Database.Port,
	}
	for key, dst := range ints {
		if v := getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	if v := getenv("TCXSTAT_TAILSCALE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tailscale.Enabled = b
		}
	}
	if v := getenv("TCXSTAT_DECODE_ONLY_GPS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Decode.OnlyGPS = &b
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = 64
	}
	if c.Tailscale.Hostname == "" {
		c.Tailscale.Hostname = "tcxstat"
	}
	if c.Tailscale.StateDir == "" {
		c.Tailscale.StateDir = "tsnet-state"
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 && !c.Tailscale.Enabled {
		return fmt.Errorf("server.port is required")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port == 0 {
		return fmt.Errorf("database.port is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	switch strings.ToLower(c.Decode.NullHandling) {
	case "", "none", "linear", "linear_interpolation":
	default:
		return fmt.Errorf("decode.null_handling must be none or linear, got %q", c.Decode.NullHandling)
	}
	return nil
}
