// options.go: Command-line options layered on multi-source settings
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package pupman

import (
	"strconv"

	flashflags "github.com/agilira/flash-flags"
	"github.com/agilira/go-errors"
)

// OptionsManager registers the standard engine flags on a FlashFlags
// set and resolves them against the settings file and environment.
// Flags are the highest-precedence source; zero-valued flags fall
// through to whatever the lower sources produced.
type OptionsManager struct {
	flags *flashflags.FlagSet
}

// NewOptionsManager creates an options manager with the standard
// engine flags registered.
func NewOptionsManager(appName string) *OptionsManager {
	flags := flashflags.New(appName)
	flags.String("settings", "", "path to the YAML settings file")
	flags.String("config-dir", "", "container config directory (default: auto-detect)")
	flags.String("subuid", "", "host subordinate UID file")
	flags.String("subgid", "", "host subordinate GID file")
	flags.Duration("poll-interval", 0, "rootfs ownership poll interval")
	flags.String("strict", "", "duplicate grant checking: true, false, or empty for platform default")
	flags.String("audit-file", "", "audit trail output (.db for SQLite, .jsonl for JSON lines)")

	return &OptionsManager{flags: flags}
}

// SetDescription sets the help-text description.
func (om *OptionsManager) SetDescription(description string) *OptionsManager {
	om.flags.SetDescription(description)
	return om
}

// SetVersion sets the help-text version.
func (om *OptionsManager) SetVersion(version string) *OptionsManager {
	om.flags.SetVersion(version)
	return om
}

// Parse parses command-line arguments.
func (om *OptionsManager) Parse(args []string) error {
	if err := om.flags.Parse(args); err != nil {
		return errors.Wrap(err, ErrCodeInvalidConfig, "failed to parse command-line flags")
	}
	return nil
}

// Config resolves the full configuration: settings file, environment
// overrides, then parsed flags on top.
func (om *OptionsManager) Config() (Config, error) {
	config, err := LoadConfigMultiSource(om.flags.GetString("settings"))
	if err != nil {
		return Config{}, err
	}

	if v := om.flags.GetString("config-dir"); v != "" {
		config.LXCConfigDir = v
	}
	if v := om.flags.GetString("subuid"); v != "" {
		config.SubUIDPath = v
	}
	if v := om.flags.GetString("subgid"); v != "" {
		config.SubGIDPath = v
	}
	if v := om.flags.GetDuration("poll-interval"); v > 0 {
		config.RootfsPollInterval = v
	}
	if v := om.flags.GetString("strict"); v != "" {
		strict, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, errors.Wrap(err, ErrCodeInvalidConfig, "invalid --strict value").
				WithContext("value", v)
		}
		config.StrictDuplicates = &strict
	}
	if v := om.flags.GetString("audit-file"); v != "" {
		if config.Audit == (AuditConfig{}) {
			config.Audit = DefaultAuditConfig()
		}
		config.Audit.OutputFile = v
	}
	return config, nil
}
