// findings_test.go: Evaluator tests
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package pupman

import (
	"fmt"
	"reflect"
	"testing"
)

// fakeResolver resolves names from a fixed table and counts lookups.
type fakeResolver struct {
	ids   map[string]uint32
	calls int
}

func (f *fakeResolver) Resolve(kind SubID, name string) (uint32, error) {
	f.calls++
	id, ok := f.ids[name]
	if !ok {
		return 0, fmt.Errorf("unknown name %q", name)
	}
	return id, nil
}

func evalTestState(t *testing.T, mapping HostMapping, configs map[string]string) *State {
	t.Helper()
	state := NewState((&Config{}).WithDefaults(), nil)
	state.mapping = mapping
	for name, content := range configs {
		state.Apply(Event{Kind: EventFileUpdated, Path: "/etc/pve/lxc/" + name, Content: content})
	}
	return state
}

func badFindings(findings []Finding) []Finding {
	var bad []Finding
	for _, f := range findings {
		if f.Kind == FindingBad {
			bad = append(bad, f)
		}
	}
	return bad
}

func TestDuplicateUIDGrants(t *testing.T) {
	mapping := HostMapping{
		SubUID: []IdMapEntry{
			{HostUserID: "1000", HostSubID: 10000, Count: 65000},
			{HostUserID: "1000", HostSubID: 10000, Count: 65000},
		},
	}
	state := evalTestState(t, mapping, nil)

	findings := EvaluateFindings(state, true, &fakeResolver{})
	bad := badFindings(findings)
	if len(bad) != 1 {
		t.Fatalf("expected exactly 1 bad finding, got %d", len(bad))
	}
	if bad[0].Message != "Cannot have multiple entries for the same user" {
		t.Errorf("unexpected message: %q", bad[0].Message)
	}
	if len(bad[0].HostMappingHighlights) != 2 {
		t.Errorf("expected 2 highlights, got %d", len(bad[0].HostMappingHighlights))
	}
	for _, h := range bad[0].HostMappingHighlights {
		if h.HostUserID != "1000" || h.Kind != UID {
			t.Errorf("unexpected highlight: %+v", h)
		}
	}
}

func TestDuplicateGIDGrants(t *testing.T) {
	mapping := HostMapping{
		SubGID: []IdMapEntry{
			{HostUserID: "1000", HostSubID: 10000, Count: 65000},
			{HostUserID: "1000", HostSubID: 10000, Count: 65000},
		},
	}
	state := evalTestState(t, mapping, nil)

	bad := badFindings(EvaluateFindings(state, true, &fakeResolver{}))
	if len(bad) != 1 {
		t.Fatalf("expected exactly 1 bad finding, got %d", len(bad))
	}
	if bad[0].Message != "Cannot have multiple entries for the same group" {
		t.Errorf("unexpected message: %q", bad[0].Message)
	}
}

func TestNoDuplicateBaseline(t *testing.T) {
	mapping := HostMapping{
		SubUID: []IdMapEntry{{HostUserID: "root", HostSubID: 100000, Count: 65536}},
		SubGID: []IdMapEntry{{HostUserID: "root", HostSubID: 100000, Count: 65536}},
	}
	state := evalTestState(t, mapping, nil)

	findings := EvaluateFindings(state, true, &fakeResolver{})
	if len(findings) != 1 {
		t.Fatalf("expected exactly 1 finding, got %d", len(findings))
	}
	if findings[0].Kind != FindingGood || findings[0].Message != "No duplicate ids found in subuid/subgid mappings" {
		t.Errorf("unexpected finding: %+v", findings[0])
	}
}

func TestBaselineSuppressedWithoutStrict(t *testing.T) {
	mapping := HostMapping{
		SubUID: []IdMapEntry{{HostUserID: "root", HostSubID: 100000, Count: 65536}},
	}
	state := evalTestState(t, mapping, nil)

	if findings := EvaluateFindings(state, false, &fakeResolver{}); len(findings) != 0 {
		t.Errorf("expected no findings without strict policy, got %+v", findings)
	}
}

func TestBaselineSuppressedOnEmptyMapping(t *testing.T) {
	state := evalTestState(t, HostMapping{}, nil)

	if findings := EvaluateFindings(state, true, &fakeResolver{}); len(findings) != 0 {
		t.Errorf("expected no findings for empty mappings, got %+v", findings)
	}
}

func rangeTestMapping() HostMapping {
	return HostMapping{
		SubUID: []IdMapEntry{{HostUserID: "0", HostSubID: 10000, Count: 65000}},
		SubGID: []IdMapEntry{{HostUserID: "0", HostSubID: 10000, Count: 65000}},
	}
}

func TestRangeContainmentPositive(t *testing.T) {
	state := evalTestState(t, rangeTestMapping(), map[string]string{
		"100.conf": "unprivileged: 1\nlxc.idmap: u 0 10000 65000\nlxc.idmap: g 0 10000 65000",
	})
	resolver := &fakeResolver{ids: map[string]uint32{"0": 0}}

	if bad := badFindings(EvaluateFindings(state, true, resolver)); len(bad) != 0 {
		t.Errorf("expected no bad findings, got %+v", bad)
	}
}

func TestRangeContainmentNegative(t *testing.T) {
	state := evalTestState(t, rangeTestMapping(), map[string]string{
		"100.conf": "unprivileged: 1\nlxc.idmap: u 0 10000 65001\nlxc.idmap: g 0 10000 65001",
	})
	resolver := &fakeResolver{ids: map[string]uint32{"0": 0}}

	bad := badFindings(EvaluateFindings(state, true, resolver))
	if len(bad) != 2 {
		t.Fatalf("expected exactly 2 bad findings, got %d: %+v", len(bad), bad)
	}

	messages := map[string]bool{}
	for _, f := range bad {
		messages[f.Message] = true
		if len(f.LXCConfigHighlights) != 1 || f.LXCConfigHighlights[0].Filename != "100.conf" {
			t.Errorf("unexpected config highlights: %+v", f.LXCConfigHighlights)
		}
	}
	if !messages["LXC config's host sub uid range outside of host mapping range"] {
		t.Error("missing uid range finding")
	}
	if !messages["LXC config's host sub gid range outside of host mapping range"] {
		t.Error("missing gid range finding")
	}
}

func TestRangeStartBelowMapping(t *testing.T) {
	state := evalTestState(t, rangeTestMapping(), map[string]string{
		"100.conf": "unprivileged: 1\nlxc.idmap: u 0 9999 100\nlxc.idmap: g 0 10000 100",
	})
	resolver := &fakeResolver{ids: map[string]uint32{"0": 0}}

	bad := badFindings(EvaluateFindings(state, true, resolver))
	if len(bad) != 1 {
		t.Fatalf("expected exactly 1 bad finding, got %d: %+v", len(bad), bad)
	}
	if bad[0].Message != "LXC config's host sub uid range outside of host mapping range" {
		t.Errorf("unexpected message: %q", bad[0].Message)
	}
}

func TestMissingIDMaps(t *testing.T) {
	state := evalTestState(t, rangeTestMapping(), map[string]string{
		"101.conf": "unprivileged: 1",
	})
	resolver := &fakeResolver{ids: map[string]uint32{"0": 0}}

	bad := badFindings(EvaluateFindings(state, true, resolver))
	if len(bad) != 2 {
		t.Fatalf("expected exactly 2 bad findings, got %d: %+v", len(bad), bad)
	}
	if bad[0].Message != "lxc.idmap for uid is not set in config" {
		t.Errorf("unexpected first message: %q", bad[0].Message)
	}
	if bad[1].Message != "lxc.idmap for gid is not set in config" {
		t.Errorf("unexpected second message: %q", bad[1].Message)
	}
}

func TestMissingSingleIDMapKind(t *testing.T) {
	state := evalTestState(t, rangeTestMapping(), map[string]string{
		"101.conf": "unprivileged: 1\nlxc.idmap: u 0 10000 65000",
	})
	resolver := &fakeResolver{ids: map[string]uint32{"0": 0}}

	bad := badFindings(EvaluateFindings(state, true, resolver))
	if len(bad) != 1 {
		t.Fatalf("expected exactly 1 bad finding, got %d: %+v", len(bad), bad)
	}
	if bad[0].Message != "lxc.idmap for gid is not set in config" {
		t.Errorf("unexpected message: %q", bad[0].Message)
	}
}

func TestPrivilegedContainersSkipped(t *testing.T) {
	state := evalTestState(t, rangeTestMapping(), map[string]string{
		"102.conf": "unprivileged: 0",
		"103.conf": "arch: amd64",
	})
	resolver := &fakeResolver{ids: map[string]uint32{"0": 0}}

	if bad := badFindings(EvaluateFindings(state, true, resolver)); len(bad) != 0 {
		t.Errorf("expected no bad findings for privileged containers, got %+v", bad)
	}
}

func TestMalformedIDMapLineSkipped(t *testing.T) {
	state := evalTestState(t, rangeTestMapping(), map[string]string{
		"104.conf": "unprivileged: 1\nlxc.idmap: u 0 abc 65000\nlxc.idmap: g 0 10000 65000",
	})
	resolver := &fakeResolver{ids: map[string]uint32{"0": 0}}

	// The malformed u line is dropped; the container then counts as
	// having no u idmap at all.
	bad := badFindings(EvaluateFindings(state, true, resolver))
	if len(bad) != 1 {
		t.Fatalf("expected exactly 1 bad finding, got %d: %+v", len(bad), bad)
	}
	if bad[0].Message != "lxc.idmap for uid is not set in config" {
		t.Errorf("unexpected message: %q", bad[0].Message)
	}
}

func TestRootfsOwnershipMismatch(t *testing.T) {
	state := evalTestState(t, rangeTestMapping(), map[string]string{
		"100.conf": "rootfs: local-zfs:subvol-100-disk-0,size=4G\nunprivileged: 1\nlxc.idmap: u 0 10000 65000\nlxc.idmap: g 0 10000 65000",
	})
	state.rootfs["local-zfs:subvol-100-disk-0,size=4G"] = RootfsInfo{
		Path:     "/rpool/data/subvol-100-disk-0",
		OwnerUID: 999,
		OwnerGID: 10000,
	}
	resolver := &fakeResolver{ids: map[string]uint32{"0": 0}}

	bad := badFindings(EvaluateFindings(state, true, resolver))
	if len(bad) != 1 {
		t.Fatalf("expected exactly 1 bad finding, got %d: %+v", len(bad), bad)
	}
	if bad[0].Message != "Rootfs uid does not match host mapping" {
		t.Errorf("unexpected message: %q", bad[0].Message)
	}
	if len(bad[0].RootfsHighlights) != 1 || bad[0].RootfsHighlights[0] != "local-zfs:subvol-100-disk-0,size=4G" {
		t.Errorf("unexpected rootfs highlights: %+v", bad[0].RootfsHighlights)
	}
}

func TestRootfsOwnershipMatch(t *testing.T) {
	state := evalTestState(t, rangeTestMapping(), map[string]string{
		"100.conf": "rootfs: local-zfs:subvol-100-disk-0\nunprivileged: 1\nlxc.idmap: u 0 10000 65000\nlxc.idmap: g 0 10000 65000",
	})
	state.rootfs["local-zfs:subvol-100-disk-0"] = RootfsInfo{
		Path:     "/rpool/data/subvol-100-disk-0",
		OwnerUID: 10000,
		OwnerGID: 10000,
	}
	resolver := &fakeResolver{ids: map[string]uint32{"0": 0}}

	if bad := badFindings(EvaluateFindings(state, true, resolver)); len(bad) != 0 {
		t.Errorf("expected no bad findings, got %+v", bad)
	}
}

func TestEvaluationIdempotent(t *testing.T) {
	state := evalTestState(t, rangeTestMapping(), map[string]string{
		"100.conf": "unprivileged: 1\nlxc.idmap: u 0 10000 65001",
		"101.conf": "unprivileged: 1",
	})

	first := EvaluateFindings(state, true, &fakeResolver{ids: map[string]uint32{"0": 0}})
	second := EvaluateFindings(state, true, &fakeResolver{ids: map[string]uint32{"0": 0}})
	if !reflect.DeepEqual(first, second) {
		t.Errorf("evaluation not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestBadFindingsOrderedFirst(t *testing.T) {
	state := evalTestState(t, rangeTestMapping(), map[string]string{
		"101.conf": "unprivileged: 1",
	})

	findings := EvaluateFindings(state, true, &fakeResolver{ids: map[string]uint32{"0": 0}})
	seenGood := false
	for _, f := range findings {
		if f.Kind == FindingGood {
			seenGood = true
		} else if seenGood {
			t.Fatalf("bad finding after good finding: %+v", findings)
		}
	}
	if !seenGood {
		t.Fatal("expected the good baseline finding in the set")
	}
}

func TestIdentityResolutionMemoized(t *testing.T) {
	state := evalTestState(t, HostMapping{
		SubUID: []IdMapEntry{{HostUserID: "root", HostSubID: 10000, Count: 65000}},
	}, map[string]string{
		"100.conf": "unprivileged: 1\nlxc.idmap: u 0 10000 100\nlxc.idmap: g 0 10000 100",
		"101.conf": "unprivileged: 1\nlxc.idmap: u 0 10000 100\nlxc.idmap: g 0 10000 100",
	})
	resolver := &fakeResolver{ids: map[string]uint32{"root": 0}}

	EvaluateFindings(state, false, resolver)

	// Four u-kind lookups of "root" across two containers collapse to
	// one external call.
	if resolver.calls != 1 {
		t.Errorf("expected 1 resolver call, got %d", resolver.calls)
	}
}
