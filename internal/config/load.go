// Cratedig - Music Discovery and Recommendation Candidate Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cratedig

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envMappings translates well-known environment variables to config paths.
// Variables not listed here follow the generic CRATEDIG_ prefix convention
// (CRATEDIG_SERVER_PORT -> server.port).
var envMappings = map[string]string{
	"HTTP_HOST":          "server.host",
	"HTTP_PORT":          "server.port",
	"LOG_LEVEL":          "logging.level",
	"LOG_FORMAT":         "logging.format",
	"DATABASE_PATH":      "database.path",
	"LASTFM_API_KEY":     "lastfm.api_key",
	"LASTFM_BASE_URL":    "lastfm.base_url",
	"LASTFM_USERS":       "ingest.users",
	"SCHEDULER_ENABLED":  "scheduler.enabled",
	"SCHEDULER_INTERVAL": "scheduler.interval",
	"CORS_ORIGINS":       "server.cors_origins",
}

// sliceConfigPaths are config keys whose env values are comma-separated lists.
var sliceConfigPaths = map[string]bool{
	"server.cors_origins": true,
	"ingest.users":        true,
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variables, in that order of increasing precedence, then
// validates the result.
func Load() (*Config, error) {
	return LoadWithPath(findConfigFile())
}

// LoadWithPath is Load with an explicit config file path. An empty path
// skips the file layer.
func LoadWithPath(path string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults.
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// Layer 2: YAML config file, if present.
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// Layer 3: environment variables.
	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	processSliceFields(k, &cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envTransform maps an environment variable name to a koanf config path.
// Returns "" for variables that are not configuration.
func envTransform(s string) string {
	if path, ok := envMappings[s]; ok {
		return path
	}
	if name, ok := strings.CutPrefix(s, "CRATEDIG_"); ok {
		return strings.ReplaceAll(strings.ToLower(name), "_", ".")
	}
	return ""
}

// processSliceFields re-splits slice-valued keys that arrived as a single
// comma-separated string from the environment. Koanf stores env values as
// strings, so "a,b,c" would otherwise unmarshal as a one-element slice.
func processSliceFields(k *koanf.Koanf, cfg *Config) {
	for path := range sliceConfigPaths {
		raw := k.Strings(path)
		if len(raw) != 1 || !strings.Contains(raw[0], ",") {
			continue
		}
		parts := strings.Split(raw[0], ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		switch path {
		case "server.cors_origins":
			cfg.Server.CORSOrigins = out
		case "ingest.users":
			cfg.Ingest.Users = out
		}
	}
}

// findConfigFile locates the config file. CONFIG_PATH wins; otherwise the
// first existing candidate in conventional locations is used. Returns ""
// when no file exists, which is fine: defaults plus env are enough.
func findConfigFile() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	candidates := []string{
		"config.yaml",
		"config.yml",
		"/config/config.yaml",
		"/etc/cratedig/config.yaml",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// Validate checks the configuration against its struct tags plus a few
// cross-field rules that tags cannot express.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("invalid config: field %s failed rule %q", f.Namespace(), f.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("invalid config: scheduler.interval must be positive when scheduler is enabled")
	}
	if (c.Scheduler.Enabled || c.Ingest.Enabled) && c.LastFM.APIKey == "" {
		return fmt.Errorf("invalid config: lastfm.api_key is required when the scheduler or ingest is enabled")
	}
	return nil
}
