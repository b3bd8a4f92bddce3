// Package cli provides the command-line interface for the pupman
// ID-mapping auditor.
//
// Built on the Orpheus framework with git-style subcommands:
//
//	check       one-shot evaluation of the current host state
//	watch       continuous monitoring with live findings
//	audit       query the pipeline audit trail
//	version     print version information
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"github.com/agilira/orpheus/pkg/orpheus"

	"github.com/agilira/pupman"
)

// Version is the CLI version string.
const Version = "1.0.0"

// Manager wires the pupman engine into an Orpheus command tree.
type Manager struct {
	app         *orpheus.App
	auditLogger *pupman.AuditLogger
}

// NewManager creates the CLI manager with all commands registered.
func NewManager() *Manager {
	app := orpheus.New("pupman").
		SetDescription("ID-mapping auditor for unprivileged LXC containers").
		SetVersion(Version)

	manager := &Manager{app: app}
	manager.setupCheckCommand()
	manager.setupWatchCommand()
	manager.setupAuditCommands()
	manager.setupVersionCommand()
	return manager
}

// WithAudit enables audit logging for CLI operations themselves.
func (m *Manager) WithAudit(auditLogger *pupman.AuditLogger) *Manager {
	m.auditLogger = auditLogger
	return m
}

// Run executes the CLI with the provided arguments.
func (m *Manager) Run(args []string) error {
	return m.app.Run(args)
}

func (m *Manager) setupCheckCommand() {
	checkCmd := orpheus.NewCommand("check", "Evaluate host sub-ID grants and container ID mappings once")
	checkCmd.SetHandler(m.handleCheck)
	checkCmd.AddFlag("settings", "s", "", "Path to the YAML settings file")
	checkCmd.AddFlag("config-dir", "d", "", "Container config directory (default: auto-detect)")
	checkCmd.AddFlag("strict", "", "", "Duplicate grant checking: true, false, or empty for platform default")
	checkCmd.AddBoolFlag("json", "j", false, "Emit findings as JSON")

	m.app.AddCommand(checkCmd)
}

func (m *Manager) setupWatchCommand() {
	watchCmd := orpheus.NewCommand("watch", "Monitor continuously and print findings on every change")
	watchCmd.SetHandler(m.handleWatch)
	watchCmd.AddFlag("settings", "s", "", "Path to the YAML settings file")
	watchCmd.AddFlag("config-dir", "d", "", "Container config directory (default: auto-detect)")
	watchCmd.AddFlag("strict", "", "", "Duplicate grant checking: true, false, or empty for platform default")
	watchCmd.AddFlag("interval", "i", "", "Rootfs ownership poll interval (e.g. 5s)")
	watchCmd.AddBoolFlag("json", "j", false, "Emit findings as JSON")

	m.app.AddCommand(watchCmd)
}

func (m *Manager) setupAuditCommands() {
	auditCmd := orpheus.NewCommand("audit", "Audit trail management")

	queryCmd := auditCmd.Subcommand("query", "Query recorded pipeline events", m.handleAuditQuery)
	queryCmd.AddFlag("db", "", "", "Audit database path (default: unified store)")
	queryCmd.AddFlag("since", "s", "24h", "Time range (e.g. 30m, 24h, 7d, 2w)")
	queryCmd.AddFlag("event", "e", "", "Event type filter (file_changed, file_removed, rootfs_changed, evaluation)")
	queryCmd.AddIntFlag("limit", "l", 100, "Maximum results")
	queryCmd.AddBoolFlag("json", "j", false, "Emit events as JSON")

	m.app.AddCommand(auditCmd)
}

func (m *Manager) setupVersionCommand() {
	versionCmd := orpheus.NewCommand("version", "Print version information")
	versionCmd.SetHandler(m.handleVersion)
	m.app.AddCommand(versionCmd)
}
