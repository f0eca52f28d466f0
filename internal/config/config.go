package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const configFileName = "volunteerhub.yaml"

// GmailConfig holds the credentials for the optional notification mailer.
// When any field is empty the mailer is disabled.
type GmailConfig struct {
	ClientID     string `yaml:"clientID,omitempty"`
	ClientSecret string `yaml:"clientSecret,omitempty"`
	RefreshToken string `yaml:"refreshToken,omitempty"`
	Sender       string `yaml:"sender,omitempty" validate:"omitempty,email"`
}

// Enabled reports whether the mailer can be constructed.
func (g GmailConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != "" && g.RefreshToken != "" && g.Sender != ""
}

// Config represents the application configuration. DatabaseURL decides the
// storage backend once at startup: set means postgres, empty means the local
// file backend rooted at DataDir.
type Config struct {
	Env         string      `yaml:"env" validate:"required"`
	Port        string      `yaml:"port" validate:"required,numeric"`
	LogLevel    string      `yaml:"logLevel,omitempty"`
	DatabaseURL string      `yaml:"databaseURL,omitempty"`
	DataDir     string      `yaml:"dataDir,omitempty"`
	Gmail       GmailConfig `yaml:"gmail,omitempty"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Load loads and validates the configuration. It looks for the config file
// in the current directory first, then in the user's home directory, and
// finally applies environment-variable overrides on top.
func Load() (*Config, error) {
	cfg := defaults()

	if path, err := findConfigFile(); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath loads and validates the configuration from a specific path.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration struct plus the cross-field rules the
// tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if cfg.DatabaseURL == "" && cfg.DataDir == "" {
		return fmt.Errorf("config validation failed: either databaseURL or dataDir must be set")
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Env:      "development",
		Port:     "8080",
		LogLevel: "info",
		DataDir:  "data",
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// findConfigFile searches for volunteerhub.yaml in the current directory and
// the home directory.
func findConfigFile() (string, error) {
	if _, err := os.Stat(configFileName); err == nil {
		return configFileName, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homeConfigPath := filepath.Join(homeDir, configFileName)
	if _, err := os.Stat(homeConfigPath); err == nil {
		return homeConfigPath, nil
	}

	return "", fmt.Errorf("config file not found in current directory or home directory")
}
