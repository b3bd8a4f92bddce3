// monitor.go: Filesystem monitoring for host sub-ID files, container
// configs, and root-filesystem ownership
//
// Create/modify notifications become read requests for the Reader;
// rename/remove notifications become removal events directly. Linux
// inotify does not report owner/group changes, so a secondary poller
// tracks registered root filesystems on a fixed interval.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package pupman

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/agilira/go-errors"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// IsContainerConf reports whether path names a container configuration
// file: a basename of one or more ASCII digits followed by ".conf".
func IsContainerConf(path string) bool {
	name := filepath.Base(path)
	ctid, ok := strings.CutSuffix(name, ".conf")
	if !ok || ctid == "" {
		return false
	}
	for _, r := range ctid {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// WatchedFile reports whether path is one the monitor cares about: the
// two host sub-ID files or any <digits>.conf container config.
func WatchedFile(path, subuidPath, subgidPath string) bool {
	if path == subuidPath || path == subgidPath {
		return true
	}
	return IsContainerConf(path)
}

// rootfsWatch is the poller's last-seen ownership snapshot for one
// registered root filesystem.
type rootfsWatch struct {
	path string
	uid  uint32
	gid  uint32
}

// Monitor owns the native filesystem notifier and the rootfs ownership
// poller. It produces on two sinks: read requests for created/modified
// files, and app events for removals and ownership changes.
type Monitor struct {
	watcher          *fsnotify.Watcher
	events           chan<- Event
	requests         chan<- string
	registerQ        chan<- string
	registrationFeed <-chan string

	subuidPath   string
	subgidPath   string
	rootfs       RootfsResolver
	pollInterval time.Duration
	audit        *AuditLogger

	stopCh chan struct{}
}

// NewMonitor creates a monitor watching the two host sub-ID files and
// the container config directory. Events flow to the given sinks once
// Start is called.
func NewMonitor(cfg *Config, configDir string, events chan<- Event, requests chan<- string, audit *AuditLogger) (*Monitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeMonitorError, "failed to create filesystem watcher")
	}

	for _, path := range []string{cfg.SubUIDPath, cfg.SubGIDPath, configDir} {
		if err := watcher.Add(path); err != nil {
			_ = watcher.Close()
			return nil, errors.Wrap(err, ErrCodeMonitorError, "failed to watch path").
				WithContext("path", path)
		}
		audit.LogFileWatch("watch_start", path)
	}

	// Unbounded: a burst of hundreds of container loads must not lose
	// registrations, the poller works them off at its own pace.
	registerQ, registrationFeed := newQueue[string]()

	return &Monitor{
		watcher:          watcher,
		events:           events,
		requests:         requests,
		registerQ:        registerQ,
		registrationFeed: registrationFeed,
		subuidPath:       cfg.SubUIDPath,
		subgidPath:       cfg.SubGIDPath,
		rootfs:           cfg.Rootfs,
		pollInterval:     cfg.RootfsPollInterval,
		audit:            audit,
		stopCh:           make(chan struct{}),
	}, nil
}

// Start launches the notification loop and the ownership poller.
func (m *Monitor) Start() {
	go m.watchLoop()
	go m.pollOwnership()
}

// Stop shuts the monitor down. Pending events already sent remain
// deliverable; no new ones are produced.
func (m *Monitor) Stop() {
	close(m.stopCh)
	if err := m.watcher.Close(); err != nil {
		logrus.Warnf("pupman: failed to close filesystem watcher: %v", err)
	}
}

// WatchRootfs registers a rootfs descriptor for ownership tracking.
// Registrations are never dropped; the poller picks one up per tick.
func (m *Monitor) WatchRootfs(descriptor string) {
	m.registerQ <- descriptor
}

// watchLoop translates native notifications into pipeline traffic.
func (m *Monitor) watchLoop() {
	for {
		select {
		case <-m.stopCh:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.handleFsEvent(event)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			logrus.Errorf("pupman: filesystem watcher error: %v", err)
		}
	}
}

func (m *Monitor) handleFsEvent(event fsnotify.Event) {
	// New directories under the config dir must be watched too; the
	// notifier is not recursive on its own.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := m.watcher.Add(event.Name); err != nil {
				logrus.Errorf("pupman: failed to watch new directory %s: %v", event.Name, err)
			}
			return
		}
	}

	if !WatchedFile(event.Name, m.subuidPath, m.subgidPath) {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
		m.audit.LogFileWatch("file_changed", event.Name)
		m.requests <- event.Name
	case event.Op.Has(fsnotify.Rename) || event.Op.Has(fsnotify.Remove):
		m.audit.LogFileWatch("file_removed", event.Name)
		m.events <- Event{Kind: EventFileRemoved, Path: event.Name}
	default:
		logrus.Debugf("pupman: ignoring filesystem event %s for %s", event.Op, event.Name)
	}
}

// pollOwnership tracks uid/gid of registered root filesystems. One
// pending registration is drained per tick before the scan, matching
// the pace ownership changes actually happen at.
func (m *Monitor) pollOwnership() {
	watches := make(map[string]*rootfsWatch)
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			select {
			case descriptor := <-m.registrationFeed:
				m.registerRootfs(watches, descriptor)
			default:
			}
			m.scanRootfs(watches)
		}
	}
}

// registerRootfs resolves and snapshots a newly registered descriptor,
// emitting the initial ownership event. Resolution or stat failure is
// logged and the registration dropped; a later config reload retries.
func (m *Monitor) registerRootfs(watches map[string]*rootfsWatch, descriptor string) {
	path, err := m.rootfs.ResolvePath(descriptor)
	if err != nil {
		logrus.Errorf("pupman: failed to resolve rootfs %q: %v", descriptor, err)
		return
	}

	uid, gid, err := ownerOf(path)
	if err != nil {
		logrus.Errorf("pupman: failed to stat rootfs %s: %v", path, err)
		return
	}

	watches[descriptor] = &rootfsWatch{path: path, uid: uid, gid: gid}
	m.events <- Event{Kind: EventRootfsUpdated, Descriptor: descriptor, Path: path, OwnerUID: uid, OwnerGID: gid}
}

// scanRootfs re-stats every tracked root filesystem and emits an event
// for each ownership change. A failed stat skips the entry for this
// tick only; the watch stays registered.
func (m *Monitor) scanRootfs(watches map[string]*rootfsWatch) {
	for descriptor, watch := range watches {
		uid, gid, err := ownerOf(watch.path)
		if err != nil {
			logrus.Errorf("pupman: failed to stat rootfs %s: %v", watch.path, err)
			continue
		}
		if uid == watch.uid && gid == watch.gid {
			continue
		}

		watch.uid, watch.gid = uid, gid
		m.audit.LogFileWatch("rootfs_changed", watch.path)
		m.events <- Event{Kind: EventRootfsUpdated, Descriptor: descriptor, Path: watch.path, OwnerUID: uid, OwnerGID: gid}
	}
}

// ownerOf returns the owning uid/gid of a filesystem path.
func ownerOf(path string) (uid, gid uint32, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, 0, err
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, errors.New(ErrCodeIOError, "no ownership metadata available").
			WithContext("path", path)
	}
	return stat.Uid, stat.Gid, nil
}
