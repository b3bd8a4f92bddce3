// identity_test.go: Identity resolution tests
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package pupman

import (
	"fmt"
	"testing"
)

type countingResolver struct {
	calls map[memoKey]int
	fail  bool
}

func (c *countingResolver) Resolve(kind SubID, name string) (uint32, error) {
	if c.calls == nil {
		c.calls = make(map[memoKey]int)
	}
	c.calls[memoKey{kind: kind, name: name}]++
	if c.fail {
		return 0, fmt.Errorf("lookup failed for %q", name)
	}
	return 42, nil
}

func TestMemoResolverCachesResults(t *testing.T) {
	inner := &countingResolver{}
	memo := newMemoResolver(inner)

	for range 3 {
		id, err := memo.Resolve(UID, "root")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if id != 42 {
			t.Errorf("expected 42, got %d", id)
		}
	}

	if got := inner.calls[memoKey{kind: UID, name: "root"}]; got != 1 {
		t.Errorf("expected 1 inner call, got %d", got)
	}
}

func TestMemoResolverKeyedByKind(t *testing.T) {
	inner := &countingResolver{}
	memo := newMemoResolver(inner)

	if _, err := memo.Resolve(UID, "root"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if _, err := memo.Resolve(GID, "root"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if len(inner.calls) != 2 {
		t.Errorf("expected separate cache entries per kind, got %v", inner.calls)
	}
}

func TestMemoResolverCachesFailures(t *testing.T) {
	inner := &countingResolver{fail: true}
	memo := newMemoResolver(inner)

	for range 3 {
		if _, err := memo.Resolve(UID, "ghost"); err == nil {
			t.Fatal("expected error from failing resolver")
		}
	}

	if got := inner.calls[memoKey{kind: UID, name: "ghost"}]; got != 1 {
		t.Errorf("expected failure cached after 1 call, got %d calls", got)
	}
}
