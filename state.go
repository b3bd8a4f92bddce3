// state.go: Aggregate runtime state for the reconciliation pipeline
//
// All mutation happens on the app's event-loop goroutine; State itself
// carries no locking.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package pupman

import (
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
)

// RootfsInfo is the last observed ownership of a container root
// filesystem, keyed in State by its storage descriptor.
type RootfsInfo struct {
	Path     string
	OwnerUID uint32
	OwnerGID uint32
}

// State aggregates everything the evaluator reads: the host sub-ID
// mapping, every parsed container config keyed by base filename, and
// rootfs ownership snapshots keyed by storage descriptor.
type State struct {
	subuidPath string
	subgidPath string

	mapping HostMapping
	configs map[string]*LXCConfig
	names   []string
	rootfs  map[string]RootfsInfo

	registerRootfs func(descriptor string)
}

// NewState returns empty state. registerRootfs is invoked whenever a
// container config carrying a rootfs descriptor is loaded, so the
// monitor can begin ownership tracking; it may be nil.
func NewState(cfg *Config, registerRootfs func(descriptor string)) *State {
	return &State{
		subuidPath:     cfg.SubUIDPath,
		subgidPath:     cfg.SubGIDPath,
		configs:        make(map[string]*LXCConfig),
		rootfs:         make(map[string]RootfsInfo),
		registerRootfs: registerRootfs,
	}
}

// Apply folds one pipeline event into the state.
func (s *State) Apply(event Event) {
	switch event.Kind {
	case EventFileUpdated:
		s.applyFileUpdate(event.Path, event.Content)
	case EventFileRemoved:
		s.applyFileRemoval(event.Path)
	case EventRootfsUpdated:
		s.rootfs[event.Descriptor] = RootfsInfo{
			Path:     event.Path,
			OwnerUID: event.OwnerUID,
			OwnerGID: event.OwnerGID,
		}
	}
}

// applyFileUpdate replaces the relevant slice of state with the new
// file content. A parse failure keeps the previous data: stale state is
// better than a spurious all-clear.
func (s *State) applyFileUpdate(path, content string) {
	switch path {
	case s.subuidPath:
		entries, err := ParseSubIDMappings(content)
		if err != nil {
			logrus.Errorf("pupman: failed to parse %s: %v", path, err)
			return
		}
		s.mapping.SubUID = entries
	case s.subgidPath:
		entries, err := ParseSubIDMappings(content)
		if err != nil {
			logrus.Errorf("pupman: failed to parse %s: %v", path, err)
			return
		}
		s.mapping.SubGID = entries
	default:
		config, err := ParseLXCConfig(content)
		if err != nil {
			logrus.Errorf("pupman: failed to parse %s: %v", path, err)
			return
		}
		name := filepath.Base(path)
		if _, exists := s.configs[name]; !exists {
			s.names = append(s.names, name)
			sort.Strings(s.names)
		}
		s.configs[name] = config

		if descriptor, ok := config.Section("").Rootfs(); ok && s.registerRootfs != nil {
			s.registerRootfs(descriptor)
		}
	}
}

// applyFileRemoval drops a container config and its rootfs snapshot.
// An unknown name is tolerated: removal races with creation and the
// notifier may report both orders.
func (s *State) applyFileRemoval(path string) {
	name := filepath.Base(path)
	config, ok := s.configs[name]
	if !ok {
		logrus.Warnf("pupman: removal of untracked config %s", name)
		return
	}

	if descriptor, has := config.Section("").Rootfs(); has {
		delete(s.rootfs, descriptor)
	}
	delete(s.configs, name)
	for i, n := range s.names {
		if n == name {
			s.names = append(s.names[:i], s.names[i+1:]...)
			break
		}
	}
}

// Mapping returns the current host sub-ID mapping.
func (s *State) Mapping() HostMapping { return s.mapping }

// ConfigNames returns the tracked config filenames in sorted order.
// The returned slice is shared; callers must not mutate it.
func (s *State) ConfigNames() []string { return s.names }

// ConfigFor returns the parsed config for a base filename.
func (s *State) ConfigFor(name string) (*LXCConfig, bool) {
	config, ok := s.configs[name]
	return config, ok
}

// RootfsFor returns the ownership snapshot for a storage descriptor.
func (s *State) RootfsFor(descriptor string) (RootfsInfo, bool) {
	info, ok := s.rootfs[descriptor]
	return info, ok
}

// RootfsMap returns a copy of every tracked rootfs ownership snapshot,
// keyed by storage descriptor.
func (s *State) RootfsMap() map[string]RootfsInfo {
	out := make(map[string]RootfsInfo, len(s.rootfs))
	for descriptor, info := range s.rootfs {
		out[descriptor] = info
	}
	return out
}

// Snapshot is the immutable view handed to change callbacks. Findings
// are computed fresh on every state transition and never persisted.
type Snapshot struct {
	Mapping  HostMapping
	Configs  []string
	Rootfs   map[string]RootfsInfo
	Findings []Finding
}
