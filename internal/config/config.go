// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents the service configuration. It is loaded once at startup
// and treated as immutable afterwards: every handler receives it read-only
// and nothing re-reads configuration mid-request.
type Config struct {
	Port              int      `json:"port,omitempty"`
	APIKey            string   `json:"api_key,omitempty"`
	AllowedDirs       []string `json:"allowed_dirs"`
	ReadOnly          bool     `json:"read_only,omitempty"`
	MaxFileSizeMB     int      `json:"max_file_size_mb,omitempty"`
	EnableHACLI       bool     `json:"enable_ha_cli,omitempty"`
	CLITimeoutSeconds int      `json:"cli_timeout_seconds,omitempty"`
	CLIMaxOutputBytes int64    `json:"cli_max_output_bytes,omitempty"`
	SupervisorURL     string   `json:"supervisor_url,omitempty"`

	ToolRateLimits    ToolRateLimits    `json:"tool_rate_limits,omitempty"`
	ToolTimeouts      ToolTimeouts      `json:"tool_timeouts,omitempty"`
	ToolOutputFilters ToolOutputFilters `json:"tool_output_filters,omitempty"`

	// SupervisorToken is only ever read from the environment, never from
	// the config file on disk.
	SupervisorToken string `json:"-"`
}

// ToolRateLimits configures tool rate limits and cooldowns.
type ToolRateLimits struct {
	DefaultPerMinute int            `json:"default_per_minute,omitempty"`
	PerTool          map[string]int `json:"per_tool,omitempty"`
	CooldownSeconds  map[string]int `json:"cooldown_seconds,omitempty"`
}

// ToolTimeouts configures tool execution timeouts.
type ToolTimeouts struct {
	DefaultSeconds int            `json:"default_seconds,omitempty"`
	PerToolSeconds map[string]int `json:"per_tool_seconds,omitempty"`
}

// ToolOutputFilters configures output sanitization for tool results.
type ToolOutputFilters struct {
	MaxChars     int  `json:"max_chars,omitempty"`
	StripANSI    bool `json:"strip_ansi,omitempty"`
	StripControl bool `json:"strip_control,omitempty"`
}

const (
	defaultPort              = 6789
	defaultMaxFileSizeMB     = 10
	defaultCLITimeoutSeconds = 30
	defaultCLIMaxOutput      = 512 * 1024
	defaultSupervisorURL     = "http://supervisor"
)

// DefaultConfig returns a config with default values.
func DefaultConfig() *Config {
	return &Config{
		Port:              defaultPort,
		MaxFileSizeMB:     defaultMaxFileSizeMB,
		CLITimeoutSeconds: defaultCLITimeoutSeconds,
		CLIMaxOutputBytes: defaultCLIMaxOutput,
		SupervisorURL:     defaultSupervisorURL,
		ToolOutputFilters: ToolOutputFilters{
			StripANSI:    true,
			StripControl: true,
		},
	}
}

// LoadConfig loads configuration from a JSON file (when present), applies
// environment overrides, and fills in defaults.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			normalized, err := normalizeConfigJSON(data)
			if err != nil {
				return nil, fmt.Errorf("invalid config file %s: %w", path, err)
			}
			if err := json.Unmarshal(normalized, config); err != nil {
				return nil, fmt.Errorf("invalid config file %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(config)

	if config.Port <= 0 {
		config.Port = defaultPort
	}
	if config.MaxFileSizeMB <= 0 {
		config.MaxFileSizeMB = defaultMaxFileSizeMB
	}
	if config.CLITimeoutSeconds <= 0 {
		config.CLITimeoutSeconds = defaultCLITimeoutSeconds
	}
	if config.CLIMaxOutputBytes <= 0 {
		config.CLIMaxOutputBytes = defaultCLIMaxOutput
	}
	if config.SupervisorURL == "" {
		config.SupervisorURL = defaultSupervisorURL
	}

	return config, nil
}

func applyEnvOverrides(config *Config) {
	if val := os.Getenv("MCP_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Port = port
		}
	}
	if val := os.Getenv("MCP_API_KEY"); val != "" {
		config.APIKey = val
	}
	if val := os.Getenv("MCP_ALLOWED_DIRS"); strings.TrimSpace(val) != "" {
		config.AllowedDirs = parseAllowedDirs(val)
	}
	if val := os.Getenv("MCP_READ_ONLY"); val != "" {
		config.ReadOnly = parseBool(val)
	}
	if val := os.Getenv("MCP_MAX_FILE_SIZE_MB"); val != "" {
		if mb, err := strconv.Atoi(val); err == nil {
			config.MaxFileSizeMB = mb
		}
	}
	if val := os.Getenv("ENABLE_HA_CLI"); val != "" {
		config.EnableHACLI = parseBool(val)
	}
	if val := os.Getenv("MCP_CLI_TIMEOUT_SECONDS"); val != "" {
		if secs, err := strconv.Atoi(val); err == nil {
			config.CLITimeoutSeconds = secs
		}
	}
	if val := os.Getenv("MCP_CLI_MAX_OUTPUT_BYTES"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			config.CLIMaxOutputBytes = n
		}
	}
	if val := os.Getenv("SUPERVISOR_URL"); val != "" {
		config.SupervisorURL = val
	}
	if val := os.Getenv("SUPERVISOR_TOKEN"); val != "" {
		config.SupervisorToken = val
	}
}

// parseAllowedDirs accepts either a JSON array or newline-separated values,
// which is how bashio hands the directory list to the add-on.
func parseAllowedDirs(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "[") {
		var dirs []string
		if err := json.Unmarshal([]byte(trimmed), &dirs); err == nil {
			return dirs
		}
	}
	var dirs []string
	for _, line := range strings.Split(trimmed, "\n") {
		if dir := strings.TrimSpace(line); dir != "" {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

func parseBool(val string) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// MaxFileSizeBytes returns the file size cap in bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// CLITimeout returns the command execution deadline.
func (c *Config) CLITimeout() time.Duration {
	return time.Duration(c.CLITimeoutSeconds) * time.Second
}

// ListenAddr returns the HTTP listen address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
}

// Validate checks the configuration for common issues and returns warnings.
func (c *Config) Validate() []ValidationWarning {
	var warnings []ValidationWarning

	if len(c.AllowedDirs) == 0 {
		warnings = append(warnings, ValidationWarning{
			Field:   "allowed_dirs",
			Message: "no allowed directories configured; all filesystem tools will reject every path",
		})
	}
	for _, dir := range c.AllowedDirs {
		if !strings.HasPrefix(dir, "/") {
			warnings = append(warnings, ValidationWarning{
				Field:   "allowed_dirs",
				Message: fmt.Sprintf("allowed directory %q is not absolute", dir),
			})
		}
	}
	if c.EnableHACLI && c.SupervisorToken == "" {
		warnings = append(warnings, ValidationWarning{
			Field:   "enable_ha_cli",
			Message: "HA CLI enabled but SUPERVISOR_TOKEN is not set; supervisor-backed tools will be unavailable",
		})
	}
	if c.APIKey == "" {
		warnings = append(warnings, ValidationWarning{
			Field:   "api_key",
			Message: "no API key configured; the MCP endpoint will accept unauthenticated requests",
		})
	}

	return warnings
}
