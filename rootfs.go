// rootfs.go: Rootfs descriptor resolution
//
// A container's rootfs directive is a storage-backend-specific
// descriptor like `local-zfs:subvol-100-disk-0,size=4G`. Ownership
// inspection needs the absolute filesystem path behind it.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package pupman

import (
	"os/exec"
	"strings"

	"github.com/agilira/go-errors"
)

// RootfsResolver maps a rootfs descriptor to an absolute filesystem
// path. Injected so tests can point descriptors at temp directories.
type RootfsResolver interface {
	ResolvePath(descriptor string) (string, error)
}

// parseRootfsDescriptor splits `storage:volume[,opt=val...]` into its
// storage and volume components.
func parseRootfsDescriptor(descriptor string) (storage, volume string, ok bool) {
	storage, rest, ok := strings.Cut(descriptor, ":")
	if !ok {
		return "", "", false
	}
	volume, _, _ = strings.Cut(rest, ",")
	return storage, volume, true
}

// ZFSRootfsResolver resolves descriptors on the local-zfs storage
// backend by looking the volume up in `zfs list` output. Other
// backends are not supported.
type ZFSRootfsResolver struct{}

// ResolvePath implements RootfsResolver.
func (ZFSRootfsResolver) ResolvePath(descriptor string) (string, error) {
	storage, volume, ok := parseRootfsDescriptor(descriptor)
	if !ok {
		return "", errors.New(ErrCodeInvalidRootfs, "invalid rootfs descriptor").
			WithContext("descriptor", descriptor)
	}

	if storage != "local-zfs" {
		return "", errors.New(ErrCodeUnsupportedStorage, "unsupported storage backend").
			WithContext("storage", storage).
			WithContext("descriptor", descriptor)
	}

	path, err := zfsVolumeToMountpoint(volume)
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", errors.New(ErrCodeInvalidRootfs, "no zfs mountpoint found for volume").
			WithContext("volume", volume)
	}
	return path, nil
}

// zfsVolumeToMountpoint scans `zfs list` for the dataset backing the
// volume and returns its mountpoint, or "" when no dataset matches.
func zfsVolumeToMountpoint(volume string) (string, error) {
	out, err := exec.Command("zfs", "list", "-H", "-o", "name,mountpoint").Output()
	if err != nil {
		return "", errors.Wrap(err, ErrCodeInvalidRootfs, "zfs list failed").
			WithContext("volume", volume)
	}
	return findZFSMountpoint(string(out), volume), nil
}

// findZFSMountpoint picks the mountpoint of the dataset whose name ends
// in /volume from tab-separated `zfs list -H` output. Datasets without
// a usable mountpoint ("-", "none", "legacy") are skipped.
func findZFSMountpoint(listing, volume string) string {
	suffix := "/" + volume
	for _, line := range strings.Split(listing, "\n") {
		name, mountpoint, ok := strings.Cut(strings.TrimSpace(line), "\t")
		if !ok {
			continue
		}
		if name != volume && !strings.HasSuffix(name, suffix) {
			continue
		}
		mountpoint = strings.TrimSpace(mountpoint)
		if mountpoint == "-" || mountpoint == "none" || mountpoint == "legacy" {
			continue
		}
		return mountpoint
	}
	return ""
}
