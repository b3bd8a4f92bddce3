// settings.go: Multi-source configuration loading
//
// Precedence, lowest to highest: built-in defaults, YAML settings
// file, PUPMAN_* environment variables. Command-line flags sit on top
// of all three and are handled by the options layer.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package pupman

import (
	"os"
	"strconv"
	"time"

	"github.com/agilira/go-errors"
	"go.yaml.in/yaml/v3"
)

// DefaultSettingsPath is where the settings file is looked up when no
// explicit path is given.
const DefaultSettingsPath = "/etc/pupman/config.yaml"

// AuditSettings is the audit section of the settings file.
type AuditSettings struct {
	Enabled       *bool         `yaml:"enabled"`
	OutputFile    string        `yaml:"output_file"`
	MinLevel      string        `yaml:"min_level"`
	BufferSize    int           `yaml:"buffer_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// Settings mirrors Config in file-friendly form. Zero values mean
// "not set" and fall through to the next source.
type Settings struct {
	LXCConfigDir       string        `yaml:"lxc_config_dir"`
	SubUIDPath         string        `yaml:"subuid_path"`
	SubGIDPath         string        `yaml:"subgid_path"`
	RootfsPollInterval time.Duration `yaml:"rootfs_poll_interval"`
	StrictDuplicates   *bool         `yaml:"strict_duplicates"`
	Audit              AuditSettings `yaml:"audit"`
}

// LoadSettings parses a YAML settings file. A missing file is not an
// error: empty settings fall through to defaults.
func LoadSettings(path string) (*Settings, error) {
	if path == "" {
		path = DefaultSettingsPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Settings{}, nil
		}
		return nil, errors.Wrap(err, ErrCodeIOError, "failed to read settings file").
			WithContext("path", path)
	}

	settings := &Settings{}
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidConfig, "failed to parse settings file").
			WithContext("path", path)
	}
	return settings, nil
}

// ApplyEnvOverrides overlays PUPMAN_* environment variables onto the
// settings. Set variables always win over file values.
func (s *Settings) ApplyEnvOverrides() error {
	if v := os.Getenv("PUPMAN_LXC_CONFIG_DIR"); v != "" {
		s.LXCConfigDir = v
	}
	if v := os.Getenv("PUPMAN_SUBUID_PATH"); v != "" {
		s.SubUIDPath = v
	}
	if v := os.Getenv("PUPMAN_SUBGID_PATH"); v != "" {
		s.SubGIDPath = v
	}
	if v := os.Getenv("PUPMAN_ROOTFS_POLL_INTERVAL"); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(err, ErrCodeInvalidConfig, "invalid PUPMAN_ROOTFS_POLL_INTERVAL")
		}
		s.RootfsPollInterval = interval
	}
	if v := os.Getenv("PUPMAN_STRICT_DUPLICATES"); v != "" {
		strict, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, ErrCodeInvalidConfig, "invalid PUPMAN_STRICT_DUPLICATES")
		}
		s.StrictDuplicates = &strict
	}
	if v := os.Getenv("PUPMAN_AUDIT_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, ErrCodeInvalidConfig, "invalid PUPMAN_AUDIT_ENABLED")
		}
		s.Audit.Enabled = &enabled
	}
	if v := os.Getenv("PUPMAN_AUDIT_OUTPUT_FILE"); v != "" {
		s.Audit.OutputFile = v
	}
	if v := os.Getenv("PUPMAN_AUDIT_MIN_LEVEL"); v != "" {
		s.Audit.MinLevel = v
	}
	if v := os.Getenv("PUPMAN_AUDIT_BUFFER_SIZE"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, ErrCodeInvalidConfig, "invalid PUPMAN_AUDIT_BUFFER_SIZE")
		}
		s.Audit.BufferSize = size
	}
	if v := os.Getenv("PUPMAN_AUDIT_FLUSH_INTERVAL"); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(err, ErrCodeInvalidConfig, "invalid PUPMAN_AUDIT_FLUSH_INTERVAL")
		}
		s.Audit.FlushInterval = interval
	}
	return nil
}

// ToConfig converts settings into an engine Config. Unset fields stay
// zero so WithDefaults fills them.
func (s *Settings) ToConfig() Config {
	config := Config{
		LXCConfigDir:       s.LXCConfigDir,
		SubUIDPath:         s.SubUIDPath,
		SubGIDPath:         s.SubGIDPath,
		RootfsPollInterval: s.RootfsPollInterval,
		StrictDuplicates:   s.StrictDuplicates,
	}

	if s.Audit != (AuditSettings{}) {
		audit := DefaultAuditConfig()
		if s.Audit.Enabled != nil {
			audit.Enabled = *s.Audit.Enabled
		}
		if s.Audit.OutputFile != "" {
			audit.OutputFile = s.Audit.OutputFile
		}
		switch s.Audit.MinLevel {
		case "warn", "WARN":
			audit.MinLevel = AuditWarn
		case "critical", "CRITICAL":
			audit.MinLevel = AuditCritical
		}
		if s.Audit.BufferSize > 0 {
			audit.BufferSize = s.Audit.BufferSize
		}
		if s.Audit.FlushInterval > 0 {
			audit.FlushInterval = s.Audit.FlushInterval
		}
		config.Audit = audit
	}
	return config
}

// LoadConfigMultiSource builds a Config from the settings file and
// environment overrides. Defaults are applied by the engine.
func LoadConfigMultiSource(settingsPath string) (Config, error) {
	settings, err := LoadSettings(settingsPath)
	if err != nil {
		return Config{}, err
	}
	if err := settings.ApplyEnvOverrides(); err != nil {
		return Config{}, err
	}
	return settings.ToConfig(), nil
}
