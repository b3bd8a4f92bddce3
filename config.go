// config.go: Configuration for the pupman audit engine
//
// Copyright (c) 2025 AGILira
// Series: AGILira System Libraries
// SPDX-License-Identifier: MPL-2.0

package pupman

import "time"

// Error codes for pupman operations
const (
	ErrCodeInvalidConfig      = "PUPMAN_INVALID_CONFIG"
	ErrCodeIOError            = "PUPMAN_IO_ERROR"
	ErrCodeInvalidSubID       = "PUPMAN_INVALID_SUBID"
	ErrCodeIdentityLookup     = "PUPMAN_IDENTITY_LOOKUP"
	ErrCodeInvalidRootfs      = "PUPMAN_INVALID_ROOTFS"
	ErrCodeUnsupportedStorage = "PUPMAN_UNSUPPORTED_STORAGE"
	ErrCodeMonitorError       = "PUPMAN_MONITOR_ERROR"
	ErrCodeAppBusy            = "PUPMAN_APP_BUSY"
	ErrCodeNoConfigDir        = "PUPMAN_NO_CONFIG_DIR"
	ErrCodePVEVersion         = "PUPMAN_PVE_VERSION"
)

// ErrorHandler is called when errors occur during watching or parsing.
// It receives the error and the file path where the error occurred.
type ErrorHandler func(err error, path string)

// Config configures the pupman audit engine.
type Config struct {
	// LXCConfigDir is the directory holding <ctid>.conf container
	// configurations. Empty means auto-detect via Metadata (PVE hosts
	// keep them in /etc/pve/lxc).
	LXCConfigDir string

	// SubUIDPath and SubGIDPath override the host sub-ID files.
	// Defaults: /etc/subuid and /etc/subgid. Overridable for tests and
	// chroot inspection.
	SubUIDPath string
	SubGIDPath string

	// RootfsPollInterval is how often root-filesystem ownership is
	// re-checked. Inotify does not report chown, so this is polled.
	// Default: 5 seconds.
	RootfsPollInterval time.Duration

	// StrictDuplicates gates the duplicate host-grant check. When nil,
	// the policy follows Metadata.IsPVE. When disabled the duplicate
	// scan is skipped entirely (no Bad and no Good baseline finding).
	StrictDuplicates *bool

	// Resolver resolves user/group names to numeric IDs. Default:
	// ExecIdentityResolver shelling out to id(1).
	Resolver IdentityResolver

	// Rootfs resolves rootfs descriptors to filesystem paths. Default:
	// ZFSRootfsResolver shelling out to zfs(8).
	Rootfs RootfsResolver

	// Audit configures the pipeline audit trail.
	// Default: enabled with the unified SQLite backend.
	Audit AuditConfig

	// ErrorHandler is called for infrastructure errors (unreadable
	// files, failed lookups). If nil, errors go to the log stream only.
	ErrorHandler ErrorHandler
}

// WithDefaults applies sensible defaults to the configuration.
func (c *Config) WithDefaults() *Config {
	config := *c

	if config.SubUIDPath == "" {
		config.SubUIDPath = ETCSubUID
	}
	if config.SubGIDPath == "" {
		config.SubGIDPath = ETCSubGID
	}
	if config.RootfsPollInterval <= 0 {
		config.RootfsPollInterval = 5 * time.Second
	}
	if config.Resolver == nil {
		config.Resolver = ExecIdentityResolver{}
	}
	if config.Rootfs == nil {
		config.Rootfs = ZFSRootfsResolver{}
	}
	if config.Audit == (AuditConfig{}) {
		config.Audit = DefaultAuditConfig()
	}

	return &config
}

// strict reports whether duplicate host-grant checking is active,
// falling back to the platform policy when unset.
func (c *Config) strict(meta Metadata) bool {
	if c.StrictDuplicates != nil {
		return *c.StrictDuplicates
	}
	return meta.IsPVE
}
