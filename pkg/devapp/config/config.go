// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	VersionV1 = "v1"
)

const (
	DefaultAPIURL          = "https://api.github.com/"
	DefaultWebURL          = "https://github.com"
	DefaultBindAddress     = "127.0.0.1"
	DefaultEnvFile         = ".env"
	DefaultHeadlessTimeout = "5m"
)

type Config struct {
	Version  string   `yaml:"version"`
	Settings Settings `yaml:"settings,omitempty"`
}

type Settings struct {
	APIURL          string `yaml:"api-url,omitempty"`
	WebURL          string `yaml:"web-url,omitempty"`
	BindAddress     string `yaml:"bind-address,omitempty"`
	Port            int    `yaml:"port,omitempty"`
	EnvFile         string `yaml:"env-file,omitempty"`
	HeadlessTimeout string `yaml:"headless-timeout,omitempty"`
	OpenBrowser     *bool  `yaml:"open-browser,omitempty"`
	CAFile          string `yaml:"ca-file,omitempty"`
	// RequestTimeout bounds each GitHub API call, e.g. the code exchange.
	RequestTimeout  string `yaml:"request-timeout,omitempty"`
}

func DefaultConfig() Config {
	openBrowser := true
	return Config{
		Version: VersionV1,
		Settings: Settings{
			APIURL:          DefaultAPIURL,
			WebURL:          DefaultWebURL,
			BindAddress:     DefaultBindAddress,
			EnvFile:         DefaultEnvFile,
			HeadlessTimeout: DefaultHeadlessTimeout,
			OpenBrowser:     &openBrowser,
		},
	}
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	return &cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields DefaultConfig.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		def := DefaultConfig()
		return &def, nil
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	content, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, content, 0o600)
}

func (c *Config) Validate() error {
	if c.Version == "" {
		return errors.New("config version missing")
	}
	if c.Version != VersionV1 {
		return fmt.Errorf("unsupported config version: %s", c.Version)
	}
	for name, raw := range map[string]string{"api-url": c.Settings.APIURL, "web-url": c.Settings.WebURL} {
		if raw == "" {
			continue
		}
		if err := validateHTTPURL(raw); err != nil {
			return fmt.Errorf("settings.%s: %w", name, err)
		}
	}
	if c.Settings.Port < 0 || c.Settings.Port > 65535 {
		return fmt.Errorf("settings.port out of range: %d", c.Settings.Port)
	}
	if _, err := c.Settings.HeadlessTimeoutDuration(); err != nil {
		return err
	}
	if _, err := c.Settings.RequestTimeoutDuration(); err != nil {
		return err
	}
	return nil
}

// HeadlessTimeoutDuration parses headless-timeout, returning 0 when unset.
func (s Settings) HeadlessTimeoutDuration() (time.Duration, error) {
	return positiveDuration("headless-timeout", s.HeadlessTimeout)
}

// RequestTimeoutDuration parses request-timeout, returning 0 when unset.
func (s Settings) RequestTimeoutDuration() (time.Duration, error) {
	return positiveDuration("request-timeout", s.RequestTimeout)
}

func positiveDuration(key, raw string) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("settings.%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("settings.%s must be positive: %s", key, raw)
	}
	return d, nil
}

// BrowserEnabled reports whether browsers may be opened. Unset means yes.
func (s Settings) BrowserEnabled() bool {
	return s.OpenBrowser == nil || *s.OpenBrowser
}

func validateHTTPURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("host is required")
	}
	return nil
}
