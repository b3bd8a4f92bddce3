// Command handlers for the pupman CLI
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/agilira/go-errors"
	"github.com/agilira/orpheus/pkg/orpheus"

	"github.com/agilira/pupman"
)

// handleCheck runs a single evaluation pass and exits non-zero when
// any Bad finding is present, making it usable from cron and CI.
func (m *Manager) handleCheck(ctx *orpheus.Context) error {
	if m.auditLogger != nil {
		m.auditLogger.LogFileWatch("cli_check", "")
	}

	config, err := resolveConfig(ctx)
	if err != nil {
		return err
	}

	snapshot, err := pupman.CheckOnce(config)
	if err != nil {
		return err
	}

	if err := printFindings(os.Stdout, snapshot.Findings, ctx.GetFlagBool("json")); err != nil {
		return err
	}

	if bad := countBad(snapshot.Findings); bad > 0 {
		return errors.New(pupman.ErrCodeInvalidConfig, fmt.Sprintf("%d problem(s) found", bad))
	}
	return nil
}

// handleWatch runs the engine until interrupted, printing the finding
// set after every state transition.
func (m *Manager) handleWatch(ctx *orpheus.Context) error {
	if m.auditLogger != nil {
		m.auditLogger.LogFileWatch("cli_watch", "")
	}

	config, err := resolveConfig(ctx)
	if err != nil {
		return err
	}
	if interval := ctx.GetFlagString("interval"); interval != "" {
		parsed, err := parseDurationFlag(interval)
		if err != nil {
			return err
		}
		config.RootfsPollInterval = parsed
	}

	app, err := pupman.NewApp(config)
	if err != nil {
		return err
	}

	asJSON := ctx.GetFlagBool("json")
	app.OnChange(func(snapshot pupman.Snapshot) {
		fmt.Println("---")
		if err := printFindings(os.Stdout, snapshot.Findings, asJSON); err != nil {
			fmt.Fprintf(os.Stderr, "failed to print findings: %v\n", err)
		}
	})

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(runCtx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// handleAuditQuery reads recorded pipeline events back out of the
// SQLite audit store.
func (m *Manager) handleAuditQuery(ctx *orpheus.Context) error {
	since, err := parseSince(ctx.GetFlagString("since"))
	if err != nil {
		return err
	}

	events, err := pupman.QueryAuditEvents(ctx.GetFlagString("db"), pupman.AuditQuery{
		Since: since,
		Event: ctx.GetFlagString("event"),
		Limit: ctx.GetFlagInt("limit"),
	})
	if err != nil {
		return err
	}

	return printAuditEvents(os.Stdout, events, ctx.GetFlagBool("json"))
}

func (m *Manager) handleVersion(ctx *orpheus.Context) error {
	fmt.Printf("pupman %s\n", Version)
	if version, err := pupman.FindPVEVersion(); err == nil {
		fmt.Printf("proxmox-ve %d\n", version.Major)
	}
	return nil
}

// resolveConfig builds the engine configuration from the settings
// file, environment, and command flags.
func resolveConfig(ctx *orpheus.Context) (pupman.Config, error) {
	config, err := pupman.LoadConfigMultiSource(ctx.GetFlagString("settings"))
	if err != nil {
		return pupman.Config{}, err
	}

	if dir := ctx.GetFlagString("config-dir"); dir != "" {
		config.LXCConfigDir = dir
	}
	if strict := ctx.GetFlagString("strict"); strict != "" {
		value, err := parseBoolFlag(strict)
		if err != nil {
			return pupman.Config{}, err
		}
		config.StrictDuplicates = &value
	}
	return config, nil
}

func countBad(findings []pupman.Finding) int {
	bad := 0
	for _, finding := range findings {
		if finding.Kind == pupman.FindingBad {
			bad++
		}
	}
	return bad
}
