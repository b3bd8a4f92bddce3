// rootfs_test.go: Rootfs descriptor resolution tests
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package pupman

import "testing"

func TestParseRootfsDescriptor(t *testing.T) {
	cases := []struct {
		descriptor string
		storage    string
		volume     string
		ok         bool
	}{
		{"local-zfs:subvol-100-disk-0,size=4G", "local-zfs", "subvol-100-disk-0", true},
		{"local-zfs:subvol-100-disk-0", "local-zfs", "subvol-100-disk-0", true},
		{"local-lvm:vm-100-disk-0,size=8G,mountoptions=noatime", "local-lvm", "vm-100-disk-0", true},
		{"local-zfs", "", "", false},
		{"", "", "", false},
	}

	for _, tc := range cases {
		storage, volume, ok := parseRootfsDescriptor(tc.descriptor)
		if ok != tc.ok || storage != tc.storage || volume != tc.volume {
			t.Errorf("parseRootfsDescriptor(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tc.descriptor, storage, volume, ok, tc.storage, tc.volume, tc.ok)
		}
	}
}

func TestZFSResolverRejectsOtherBackends(t *testing.T) {
	resolver := ZFSRootfsResolver{}

	if _, err := resolver.ResolvePath("local-lvm:vm-100-disk-0"); err == nil {
		t.Error("expected error for non-zfs storage backend")
	}
	if _, err := resolver.ResolvePath("local-zfs"); err == nil {
		t.Error("expected error for descriptor without volume")
	}
}

func TestFindZFSMountpoint(t *testing.T) {
	listing := "rpool\t/rpool\n" +
		"rpool/ROOT\t-\n" +
		"rpool/data\t/rpool/data\n" +
		"rpool/data/subvol-100-disk-0\t/rpool/data/subvol-100-disk-0\n" +
		"rpool/data/subvol-101-disk-0\tlegacy\n" +
		"rpool/swap\tnone\n"

	cases := []struct {
		volume string
		want   string
	}{
		{"subvol-100-disk-0", "/rpool/data/subvol-100-disk-0"},
		{"subvol-101-disk-0", ""}, // legacy mountpoint is unusable
		{"subvol-999-disk-0", ""},
		{"rpool", "/rpool"}, // exact dataset name match
	}

	for _, tc := range cases {
		if got := findZFSMountpoint(listing, tc.volume); got != tc.want {
			t.Errorf("findZFSMountpoint(%q) = %q, want %q", tc.volume, got, tc.want)
		}
	}
}

func TestFindZFSMountpointSuffixIsPathAware(t *testing.T) {
	// A dataset merely ending in the volume text must not match; the
	// suffix has to start at a path separator.
	listing := "rpool/data/xsubvol-100-disk-0\t/wrong\n" +
		"rpool/data/subvol-100-disk-0\t/right\n"

	if got := findZFSMountpoint(listing, "subvol-100-disk-0"); got != "/right" {
		t.Errorf("expected /right, got %q", got)
	}
}
