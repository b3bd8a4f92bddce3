// pveversion.go: Proxmox VE version discovery
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package pupman

import (
	"os/exec"
	"strconv"
	"strings"

	"github.com/agilira/go-errors"
)

// PVEVersion identifies the installed Proxmox VE release.
type PVEVersion struct {
	Major uint8
}

// FindPVEVersion runs pveversion and parses the manager version out of
// its verbose listing.
func FindPVEVersion() (PVEVersion, error) {
	output, err := exec.Command("pveversion", "-v").Output()
	if err != nil {
		return PVEVersion{}, errors.Wrap(err, ErrCodePVEVersion, "failed to run pveversion")
	}
	return ParsePVEVersion(string(output))
}

// ParsePVEVersion extracts the major release from pveversion -v
// output. The relevant line reads "pve-manager/8.2.4/<hash> (...)".
func ParsePVEVersion(output string) (PVEVersion, error) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "pve-manager/") {
			continue
		}

		parts := strings.Split(line, "/")
		if len(parts) < 2 {
			return PVEVersion{}, errors.New(ErrCodePVEVersion, "malformed pve-manager version line").
				WithContext("line", line)
		}

		version := parts[1]
		if i := strings.IndexAny(version, ".-"); i >= 0 {
			version = version[:i]
		}
		major, err := strconv.ParseUint(version, 10, 8)
		if err != nil {
			return PVEVersion{}, errors.Wrap(err, ErrCodePVEVersion, "invalid pve-manager major version").
				WithContext("line", line)
		}
		return PVEVersion{Major: uint8(major)}, nil
	}
	return PVEVersion{}, errors.New(ErrCodePVEVersion, "pve-manager version not found in pveversion output")
}
