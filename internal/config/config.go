// Package config loads application configuration from an optional YAML
// file with environment-variable overrides on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vilaca/pr-dashboard/internal/domain"
)

// Config holds application configuration.
type Config struct {
	Port int `yaml:"port"`

	// GitHub configuration
	GitHubURL   string `yaml:"github_url"`
	GitHubToken string `yaml:"github_token"`

	// Bitbucket configuration
	BitbucketURL         string `yaml:"bitbucket_url"`
	BitbucketUsername    string `yaml:"bitbucket_username"`
	BitbucketAppPassword string `yaml:"bitbucket_app_password"`

	// Operator-curated "workspace/repo" whitelist seed for Bitbucket.
	BitbucketWhitelist []string `yaml:"bitbucket_whitelist"`

	// Storage backend: "file" or "sqlite".
	StoreBackend string `yaml:"store_backend"`
	StorePath    string `yaml:"store_path"`

	// Minutes between periodic sync runs.
	RefreshIntervalMinutes int `yaml:"refresh_interval_minutes"`

	// When true only open pull requests are fetched.
	OnlyOpen bool `yaml:"only_open"`

	LogLevel string `yaml:"log_level"`
}

// Load builds the configuration: defaults, then the YAML file at path (or
// the default location) when present, then environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Port:                   8080,
		GitHubURL:              "https://api.github.com",
		BitbucketURL:           "https://api.bitbucket.org/2.0",
		StoreBackend:           "file",
		StorePath:              defaultStorePath(),
		RefreshIntervalMinutes: 5,
		OnlyOpen:               true,
		LogLevel:               "info",
	}

	if path == "" {
		path = defaultConfigPath()
	}
	if raw, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	applyEnv(cfg)

	if cfg.StoreBackend != "file" && cfg.StoreBackend != "sqlite" {
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if portStr := os.Getenv("PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			cfg.Port = p
		}
	}
	cfg.GitHubURL = getEnvOrDefault("GITHUB_URL", cfg.GitHubURL)
	cfg.GitHubToken = getEnvOrDefault("GITHUB_TOKEN", cfg.GitHubToken)
	cfg.BitbucketURL = getEnvOrDefault("BITBUCKET_URL", cfg.BitbucketURL)
	cfg.BitbucketUsername = getEnvOrDefault("BITBUCKET_USERNAME", cfg.BitbucketUsername)
	cfg.BitbucketAppPassword = getEnvOrDefault("BITBUCKET_APP_PASSWORD", cfg.BitbucketAppPassword)
	cfg.StoreBackend = getEnvOrDefault("STORE_BACKEND", cfg.StoreBackend)
	cfg.StorePath = getEnvOrDefault("STORE_PATH", cfg.StorePath)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)

	if whitelist := os.Getenv("BB_WHITELIST"); whitelist != "" {
		cfg.BitbucketWhitelist = splitAndTrim(whitelist)
	}
	if minutes := os.Getenv("REFRESH_INTERVAL_MINUTES"); minutes != "" {
		if m, err := strconv.Atoi(minutes); err == nil && m > 0 {
			cfg.RefreshIntervalMinutes = m
		}
	}
	if onlyOpen := os.Getenv("ONLY_OPEN"); onlyOpen != "" {
		cfg.OnlyOpen = onlyOpen == "true" || onlyOpen == "1"
	}
}

// Credentials assembles the credential record from the configured values.
func (c *Config) Credentials() domain.Credentials {
	creds := domain.Credentials{}
	if c.GitHubToken != "" {
		creds.GitHub = &domain.GitHubCredentials{Token: c.GitHubToken}
	}
	if c.BitbucketUsername != "" && c.BitbucketAppPassword != "" {
		creds.Bitbucket = &domain.BitbucketCredentials{
			Username:    c.BitbucketUsername,
			AppPassword: c.BitbucketAppPassword,
		}
	}
	return creds
}

// HasGitHubConfig returns true if GitHub is configured.
func (c *Config) HasGitHubConfig() bool {
	return c.GitHubToken != ""
}

// HasBitbucketConfig returns true if Bitbucket is configured.
func (c *Config) HasBitbucketConfig() bool {
	return c.BitbucketUsername != "" && c.BitbucketAppPassword != ""
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "pr-dashboard", "config.yaml")
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "pr-dashboard-store.json"
	}
	return filepath.Join(home, ".local", "share", "pr-dashboard", "store.json")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
