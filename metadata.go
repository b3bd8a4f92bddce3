// metadata.go: Host environment detection
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package pupman

import (
	"os"

	"github.com/agilira/go-errors"
)

// PVELXCConfigDir is where Proxmox VE keeps LXC container configs.
const PVELXCConfigDir = "/etc/pve/lxc"

// Metadata describes the host environment the checks run against.
// IsPVE drives the default strictness policy: a Proxmox node is
// expected to keep its sub-ID grants free of duplicates.
type Metadata struct {
	LXCConfigDir string
	IsPVE        bool
}

// CollectMetadata determines the container config directory. An
// explicit override wins; otherwise the Proxmox directory is probed.
// No override and no Proxmox directory means there is nothing to
// check, which is an error.
func CollectMetadata(override string) (Metadata, error) {
	if override != "" {
		if _, err := os.Stat(override); err != nil {
			return Metadata{}, errors.Wrap(err, ErrCodeNoConfigDir, "container config directory not accessible").
				WithContext("dir", override)
		}
		return Metadata{LXCConfigDir: override, IsPVE: override == PVELXCConfigDir}, nil
	}

	if _, err := os.Stat(PVELXCConfigDir); err != nil {
		return Metadata{}, errors.New(ErrCodeNoConfigDir, "no container config directory found, not a Proxmox VE host")
	}
	return Metadata{LXCConfigDir: PVELXCConfigDir, IsPVE: true}, nil
}
