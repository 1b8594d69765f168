// Package config loads the process configuration's recognized options table
// from a YAML document, overridable by PROXYTAP_* environment variables, the
// way goproxy's pack sibling (tunnox-core's internal/config) layers env vars
// over a parsed document.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the typed projection of the recognized options table.
type Config struct {
	ProxyPort          int    `yaml:"proxyPort"`
	MaxRequestRecords  int    `yaml:"maxRequestRecords"`
	LogLevel           string `yaml:"logLevel"`
	HTTPSMitmEnabled   bool   `yaml:"httpsMitmEnabled"`
	SystemProxyEnabled bool   `yaml:"systemProxyEnabled"`

	// DNSResolver, when non-empty, is a "host:port" DNS server the Proxy
	// Engine queries directly for upstream hostname resolution instead of
	// the OS resolver. Empty means use the OS resolver.
	DNSResolver string `yaml:"dnsResolver"`

	DataDir string `yaml:"dataDir"`
}

// Default returns the documented defaults (proxyPort 8888).
func Default() Config {
	return Config{
		ProxyPort:         8888,
		MaxRequestRecords: 2000,
		LogLevel:          "info",
		HTTPSMitmEnabled:  true,
		DataDir:           "./data",
	}
}

// Load reads path (if non-empty and present) over the defaults, then applies
// PROXYTAP_* environment overrides, then validates.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PROXYTAP_PROXY_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ProxyPort = n
		}
	}
	if v := os.Getenv("PROXYTAP_MAX_REQUEST_RECORDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRequestRecords = n
		}
	}
	if v := os.Getenv("PROXYTAP_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PROXYTAP_HTTPS_MITM_ENABLED"); v != "" {
		cfg.HTTPSMitmEnabled = parseBool(v)
	}
	if v := os.Getenv("PROXYTAP_SYSTEM_PROXY_ENABLED"); v != "" {
		cfg.SystemProxyEnabled = parseBool(v)
	}
	if v := os.Getenv("PROXYTAP_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("PROXYTAP_DNS_RESOLVER"); v != "" {
		cfg.DNSResolver = v
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "t", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Validate enforces the bounds on the recognized options (proxyPort
// 1024..65535).
func (c Config) Validate() error {
	if c.ProxyPort < 1024 || c.ProxyPort > 65535 {
		return fmt.Errorf("proxyPort %d out of range [1024,65535]", c.ProxyPort)
	}
	if c.MaxRequestRecords <= 0 {
		return fmt.Errorf("maxRequestRecords must be positive, got %d", c.MaxRequestRecords)
	}
	return nil
}
