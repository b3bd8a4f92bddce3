// metadata_test.go: Host environment detection tests
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package pupman

import (
	"path/filepath"
	"testing"
)

func TestCollectMetadataOverride(t *testing.T) {
	dir := t.TempDir()

	meta, err := CollectMetadata(dir)
	if err != nil {
		t.Fatalf("CollectMetadata failed: %v", err)
	}
	if meta.LXCConfigDir != dir {
		t.Errorf("expected config dir %q, got %q", dir, meta.LXCConfigDir)
	}
	if meta.IsPVE {
		t.Error("override dir must not be treated as a Proxmox host")
	}
}

func TestCollectMetadataMissingOverride(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist")

	if _, err := CollectMetadata(missing); err == nil {
		t.Fatal("expected error for missing override directory")
	}
}
