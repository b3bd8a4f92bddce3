// state_test.go: State transition tests
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package pupman

import (
	"reflect"
	"testing"
)

func TestStateSubIDFileUpdate(t *testing.T) {
	state := NewState((&Config{}).WithDefaults(), nil)

	state.Apply(Event{Kind: EventFileUpdated, Path: ETCSubUID, Content: "root:100000:65536"})
	state.Apply(Event{Kind: EventFileUpdated, Path: ETCSubGID, Content: "root:200000:65536"})

	mapping := state.Mapping()
	if len(mapping.SubUID) != 1 || mapping.SubUID[0].HostSubID != 100000 {
		t.Errorf("unexpected subuid mapping: %+v", mapping.SubUID)
	}
	if len(mapping.SubGID) != 1 || mapping.SubGID[0].HostSubID != 200000 {
		t.Errorf("unexpected subgid mapping: %+v", mapping.SubGID)
	}
}

func TestStateKeepsMappingOnParseFailure(t *testing.T) {
	state := NewState((&Config{}).WithDefaults(), nil)
	state.Apply(Event{Kind: EventFileUpdated, Path: ETCSubUID, Content: "root:100000:65536"})

	// A malformed reload must not wipe the previous mapping.
	state.Apply(Event{Kind: EventFileUpdated, Path: ETCSubUID, Content: "root:broken"})

	mapping := state.Mapping()
	if len(mapping.SubUID) != 1 || mapping.SubUID[0].HostUserID != "root" {
		t.Errorf("previous mapping lost after failed reload: %+v", mapping.SubUID)
	}
}

func TestStateConfigUpsertSortedNames(t *testing.T) {
	state := NewState((&Config{}).WithDefaults(), nil)

	state.Apply(Event{Kind: EventFileUpdated, Path: "/etc/pve/lxc/200.conf", Content: "arch: amd64"})
	state.Apply(Event{Kind: EventFileUpdated, Path: "/etc/pve/lxc/100.conf", Content: "arch: amd64"})
	state.Apply(Event{Kind: EventFileUpdated, Path: "/etc/pve/lxc/150.conf", Content: "arch: amd64"})

	want := []string{"100.conf", "150.conf", "200.conf"}
	if !reflect.DeepEqual(state.ConfigNames(), want) {
		t.Errorf("expected sorted names %v, got %v", want, state.ConfigNames())
	}

	// Re-upserting an existing config must not duplicate its name.
	state.Apply(Event{Kind: EventFileUpdated, Path: "/etc/pve/lxc/100.conf", Content: "arch: arm64"})
	if len(state.ConfigNames()) != 3 {
		t.Errorf("upsert duplicated name: %v", state.ConfigNames())
	}
	config, ok := state.ConfigFor("100.conf")
	if !ok {
		t.Fatal("config 100.conf missing after upsert")
	}
	if v, _ := config.Section("").Get("arch"); v != "arm64" {
		t.Errorf("expected updated content, got arch=%q", v)
	}
}

func TestStateRegistersRootfsOnConfigLoad(t *testing.T) {
	var registered []string
	state := NewState((&Config{}).WithDefaults(), func(descriptor string) {
		registered = append(registered, descriptor)
	})

	state.Apply(Event{
		Kind:    EventFileUpdated,
		Path:    "/etc/pve/lxc/100.conf",
		Content: "rootfs: local-zfs:subvol-100-disk-0,size=4G\nunprivileged: 1",
	})

	if len(registered) != 1 || registered[0] != "local-zfs:subvol-100-disk-0,size=4G" {
		t.Errorf("unexpected rootfs registrations: %v", registered)
	}
}

func TestStateRemovalDropsConfigAndRootfs(t *testing.T) {
	state := NewState((&Config{}).WithDefaults(), nil)
	state.Apply(Event{
		Kind:    EventFileUpdated,
		Path:    "/etc/pve/lxc/100.conf",
		Content: "rootfs: local-zfs:subvol-100-disk-0\nunprivileged: 1",
	})
	state.Apply(Event{
		Kind:       EventRootfsUpdated,
		Descriptor: "local-zfs:subvol-100-disk-0",
		Path:       "/rpool/data/subvol-100-disk-0",
		OwnerUID:   100000,
		OwnerGID:   100000,
	})

	if _, ok := state.RootfsFor("local-zfs:subvol-100-disk-0"); !ok {
		t.Fatal("rootfs info missing before removal")
	}

	state.Apply(Event{Kind: EventFileRemoved, Path: "/etc/pve/lxc/100.conf"})

	if len(state.ConfigNames()) != 0 {
		t.Errorf("config still tracked after removal: %v", state.ConfigNames())
	}
	if _, ok := state.ConfigFor("100.conf"); ok {
		t.Error("ConfigFor still returns removed config")
	}
	if _, ok := state.RootfsFor("local-zfs:subvol-100-disk-0"); ok {
		t.Error("rootfs info still present after config removal")
	}
}

func TestStateUnknownRemovalTolerated(t *testing.T) {
	state := NewState((&Config{}).WithDefaults(), nil)

	// Removal racing creation must be a warning, not a failure.
	state.Apply(Event{Kind: EventFileRemoved, Path: "/etc/pve/lxc/999.conf"})

	if len(state.ConfigNames()) != 0 {
		t.Errorf("unexpected tracked configs: %v", state.ConfigNames())
	}
}

func TestStateKeepsConfigOnParseFailure(t *testing.T) {
	state := NewState((&Config{}).WithDefaults(), nil)
	state.Apply(Event{Kind: EventFileUpdated, Path: "/etc/pve/lxc/100.conf", Content: "arch: amd64"})

	state.Apply(Event{Kind: EventFileUpdated, Path: "/etc/pve/lxc/100.conf", Content: "arch: amd64\n\xff"})

	config, ok := state.ConfigFor("100.conf")
	if !ok {
		t.Fatal("config lost after failed reload")
	}
	if v, _ := config.Section("").Get("arch"); v != "amd64" {
		t.Errorf("expected previous content retained, got arch=%q", v)
	}
}
