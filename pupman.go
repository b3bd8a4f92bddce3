// pupman.go: ID-mapping audit engine for unprivileged LXC containers
//
// The App wires the pipeline together: filesystem monitor, file
// reader, and the event loop that owns all mutable state. Every state
// transition triggers a full findings recomputation; callbacks receive
// an immutable snapshot.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package pupman

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/agilira/go-errors"
	"github.com/sirupsen/logrus"
)

// ChangeCallback receives a state snapshot after every transition.
// It runs on the event-loop goroutine and must not block.
type ChangeCallback func(snapshot Snapshot)

// App is the running audit engine. All state mutation happens on the
// event-loop goroutine inside Run; the monitor and reader communicate
// with it over channels only.
type App struct {
	config  *Config
	meta    Metadata
	audit   *AuditLogger
	monitor *Monitor
	state   *State

	events      chan<- Event
	eventFeed   <-chan Event
	requests    chan<- string
	requestFeed <-chan string

	callbacks []ChangeCallback
	running   int32
}

// NewApp creates an audit engine from the given configuration.
// Defaults are applied, the host environment probed, and the audit
// trail opened; nothing starts watching until Run.
func NewApp(config Config) (*App, error) {
	cfg := config.WithDefaults()

	meta, err := CollectMetadata(cfg.LXCConfigDir)
	if err != nil {
		return nil, err
	}
	if meta.IsPVE {
		if version, err := FindPVEVersion(); err != nil {
			logrus.Warnf("pupman: failed to determine PVE version: %v", err)
		} else {
			logrus.Infof("pupman: detected Proxmox VE %d", version.Major)
		}
	}

	audit, err := NewAuditLogger(cfg.Audit)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeIOError, "failed to initialize audit logger")
	}

	// Unbounded queues: the initial scan of a directory with hundreds
	// of containers must never block against the loop that drains it.
	events, eventFeed := newQueue[Event]()
	requests, requestFeed := newQueue[string]()

	monitor, err := NewMonitor(cfg, meta.LXCConfigDir, events, requests, audit)
	if err != nil {
		_ = audit.Close()
		return nil, err
	}

	app := &App{
		config:      cfg,
		meta:        meta,
		audit:       audit,
		monitor:     monitor,
		events:      events,
		eventFeed:   eventFeed,
		requests:    requests,
		requestFeed: requestFeed,
	}
	app.state = NewState(cfg, monitor.WatchRootfs)
	return app, nil
}

// Metadata returns the probed host environment.
func (a *App) Metadata() Metadata { return a.meta }

// OnChange registers a callback invoked after every state transition.
// Must be called before Run.
func (a *App) OnChange(callback ChangeCallback) {
	a.callbacks = append(a.callbacks, callback)
}

// Send pushes a synthetic event into the pipeline, typically Quit.
func (a *App) Send(event Event) {
	a.events <- event
}

// Quit asks the running event loop to stop.
func (a *App) Quit() {
	a.Send(Event{Kind: EventQuit})
}

// Run starts the pipeline and blocks on the event loop until Quit is
// sent or the context is cancelled. Only one Run per App.
func (a *App) Run(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&a.running, 0, 1) {
		return errors.New(ErrCodeAppBusy, "app is already running")
	}

	go RunReader(a.requestFeed, a.events)
	a.monitor.Start()
	a.enqueueInitialScan()

	defer func() {
		a.monitor.Stop()
		if err := a.audit.Close(); err != nil {
			logrus.Warnf("pupman: failed to close audit logger: %v", err)
		}
		atomic.StoreInt32(&a.running, 0)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-a.eventFeed:
			if event.Kind == EventQuit {
				return nil
			}
			a.state.Apply(event)
			a.publish()
		}
	}
}

// enqueueInitialScan seeds the reader with everything already on disk:
// both host sub-ID files and every container config in the directory.
func (a *App) enqueueInitialScan() {
	a.requests <- a.config.SubUIDPath
	a.requests <- a.config.SubGIDPath

	entries, err := os.ReadDir(a.meta.LXCConfigDir)
	if err != nil {
		logrus.Errorf("pupman: failed to list %s: %v", a.meta.LXCConfigDir, err)
		if a.config.ErrorHandler != nil {
			a.config.ErrorHandler(err, a.meta.LXCConfigDir)
		}
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !IsContainerConf(entry.Name()) {
			continue
		}
		a.requests <- filepath.Join(a.meta.LXCConfigDir, entry.Name())
	}
}

// publish recomputes findings and notifies callbacks.
func (a *App) publish() {
	findings := EvaluateFindings(a.state, a.config.strict(a.meta), a.config.Resolver)

	bad, good := 0, 0
	for _, finding := range findings {
		if finding.Kind == FindingBad {
			bad++
		} else {
			good++
		}
	}
	a.audit.LogEvaluation(bad, good)

	// Copied so later transitions cannot mutate a published snapshot.
	snapshot := Snapshot{
		Mapping:  a.state.Mapping(),
		Configs:  append([]string(nil), a.state.ConfigNames()...),
		Rootfs:   a.state.RootfsMap(),
		Findings: findings,
	}
	for _, callback := range a.callbacks {
		callback(snapshot)
	}
}

// CheckOnce loads the current host files and container configs, runs a
// single evaluation pass with synchronous rootfs ownership lookups,
// and returns the snapshot. No watchers or audit trail are started.
func CheckOnce(config Config) (Snapshot, error) {
	cfg := config.WithDefaults()

	meta, err := CollectMetadata(cfg.LXCConfigDir)
	if err != nil {
		return Snapshot{}, err
	}

	state := NewState(cfg, nil)
	for _, path := range []string{cfg.SubUIDPath, cfg.SubGIDPath} {
		content, err := os.ReadFile(path)
		if err != nil {
			logrus.Warnf("pupman: failed to read %s: %v", path, err)
			continue
		}
		state.Apply(Event{Kind: EventFileUpdated, Path: path, Content: string(content)})
	}

	entries, err := os.ReadDir(meta.LXCConfigDir)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, ErrCodeIOError, "failed to list container config directory").
			WithContext("dir", meta.LXCConfigDir)
	}
	for _, entry := range entries {
		if entry.IsDir() || !IsContainerConf(entry.Name()) {
			continue
		}
		path := filepath.Join(meta.LXCConfigDir, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			logrus.Warnf("pupman: failed to read %s: %v", path, err)
			continue
		}
		state.Apply(Event{Kind: EventFileUpdated, Path: path, Content: string(content)})
	}

	// Ownership is normally fed by the poller; in one-shot mode it is
	// resolved inline.
	for _, name := range state.ConfigNames() {
		config, _ := state.ConfigFor(name)
		descriptor, ok := config.Section("").Rootfs()
		if !ok {
			continue
		}
		path, err := cfg.Rootfs.ResolvePath(descriptor)
		if err != nil {
			logrus.Warnf("pupman: failed to resolve rootfs %q: %v", descriptor, err)
			continue
		}
		uid, gid, err := ownerOf(path)
		if err != nil {
			logrus.Warnf("pupman: failed to stat rootfs %s: %v", path, err)
			continue
		}
		state.Apply(Event{Kind: EventRootfsUpdated, Descriptor: descriptor, Path: path, OwnerUID: uid, OwnerGID: gid})
	}

	return Snapshot{
		Mapping:  state.Mapping(),
		Configs:  state.ConfigNames(),
		Rootfs:   state.RootfsMap(),
		Findings: EvaluateFindings(state, cfg.strict(meta), cfg.Resolver),
	}, nil
}
