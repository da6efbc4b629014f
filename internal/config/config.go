package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds all configuration for the server
type Config struct {
	Server   ServerConfig   `json:"server"`
	Entry    EntryConfig    `json:"entry"`
	Database DatabaseConfig `json:"database"`
	TLS      TLSConfig      `json:"tls"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port   string `json:"port"`
	Domain string `json:"domain"`
	Env    string `json:"env"`
}

// EntryConfig holds the redirect target and web root settings
type EntryConfig struct {
	// Target is the Location value sent on every redirect. It is written to
	// the response verbatim, so it must stay a relative path.
	Target  string `json:"target"`
	WebRoot string `json:"webroot"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `json:"path"`
}

// TLSConfig holds ACME settings for production HTTPS
type TLSConfig struct {
	Email string `json:"email"`
}

// CLIFlags holds parsed command-line flags
type CLIFlags struct {
	ConfigPath string
	Port       string
	Domain     string
	Env        string
	DBPath     string
	Target     string
	WebRoot    string
}

// DefaultConfigPath is where the config file lives unless overridden
const DefaultConfigPath = "~/.config/doorman/config.json"

var appConfig *Config

// ParseFlags parses server CLI flags
func ParseFlags() *CLIFlags {
	flags := &CLIFlags{}

	flag.StringVar(&flags.ConfigPath, "config", DefaultConfigPath, "Path to config file")
	flag.StringVar(&flags.Port, "port", "", "Server port (overrides config)")
	flag.StringVar(&flags.Domain, "domain", "", "Public domain (overrides config)")
	flag.StringVar(&flags.Env, "env", "", "Environment: development or production (overrides config)")
	flag.StringVar(&flags.DBPath, "db", "", "Database file path (overrides config)")
	flag.StringVar(&flags.Target, "target", "", "Redirect target (overrides config)")
	flag.StringVar(&flags.WebRoot, "webroot", "", "Web root directory (overrides config)")
	flag.Parse()

	return flags
}

// Load reads the config file and applies flag overrides
func Load(flags *CLIFlags) (*Config, error) {
	configPath := ExpandPath(flags.ConfigPath)

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = CreateDefaultConfig()
		} else {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	// Flags win over the file
	if flags.Port != "" {
		cfg.Server.Port = flags.Port
	}
	if flags.Domain != "" {
		cfg.Server.Domain = flags.Domain
	}
	if flags.Env != "" {
		cfg.Server.Env = flags.Env
	}
	if flags.DBPath != "" {
		cfg.Database.Path = ExpandPath(flags.DBPath)
	}
	if flags.Target != "" {
		cfg.Entry.Target = flags.Target
	}
	if flags.WebRoot != "" {
		cfg.Entry.WebRoot = ExpandPath(flags.WebRoot)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	appConfig = cfg
	return cfg, nil
}

// LoadFromFile reads and parses a config file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}

// SaveToFile writes the config to disk with owner-only permissions
func SaveToFile(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// CreateDefaultConfig returns a config with default values
func CreateDefaultConfig() *Config {
	configDir := filepath.Dir(ExpandPath(DefaultConfigPath))
	return &Config{
		Server: ServerConfig{
			Port:   "4712",
			Domain: "http://localhost",
			Env:    "development",
		},
		Entry: EntryConfig{
			Target:  "index.html",
			WebRoot: filepath.Join(configDir, "webroot"),
		},
		Database: DatabaseConfig{
			Path: filepath.Join(configDir, "data.db"),
		},
	}
}

// Get returns the loaded configuration, falling back to defaults so that
// middleware and handlers never see a nil config
func Get() *Config {
	if appConfig == nil {
		return CreateDefaultConfig()
	}
	return appConfig
}

// Set replaces the active configuration (used by Load and by tests)
func Set(cfg *Config) {
	appConfig = cfg
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := ValidatePort(c.Server.Port); err != nil {
		return err
	}
	if err := ValidateEnv(c.Server.Env); err != nil {
		return err
	}
	if err := ValidateTarget(c.Entry.Target); err != nil {
		return err
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Entry.WebRoot == "" {
		return fmt.Errorf("web root is required")
	}
	return nil
}

// ValidatePort checks that a port is numeric and in range
func ValidatePort(port string) error {
	n, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("port must be a number, got %q", port)
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", n)
	}
	return nil
}

// ValidateEnv checks that the environment is a known value
func ValidateEnv(env string) error {
	if env != "development" && env != "production" {
		return fmt.Errorf("environment must be 'development' or 'production', got %q", env)
	}
	return nil
}

// ValidateTarget checks the redirect target. The target goes into the
// Location header verbatim, so absolute URLs and control characters are
// rejected to keep the redirect on-origin and immune to header injection.
func ValidateTarget(target string) error {
	if target == "" {
		return fmt.Errorf("redirect target is required")
	}
	if strings.Contains(target, "://") || strings.HasPrefix(target, "//") {
		return fmt.Errorf("redirect target must be a relative path, got %q", target)
	}
	for _, r := range target {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("redirect target contains control characters")
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// ExpandPath expands a leading ~/ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
