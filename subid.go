// subid.go: Host sub-ID mappings from /etc/subuid and /etc/subgid
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package pupman

import (
	"strconv"
	"strings"

	"github.com/agilira/go-errors"
)

// Host sub-ID grant files.
const (
	ETCSubUID = "/etc/subuid"
	ETCSubGID = "/etc/subgid"
)

// SubID discriminates the two ID namespaces a sub-ID grant can cover.
type SubID uint8

const (
	UID SubID = iota
	GID
)

func (s SubID) String() string {
	switch s {
	case UID:
		return "uid"
	case GID:
		return "gid"
	default:
		return "unknown"
	}
}

// IdMapEntry is one line of /etc/subuid or /etc/subgid: the host grants
// HostUserID the contiguous sub-ID range [HostSubID, HostSubID+Count).
type IdMapEntry struct {
	HostUserID string
	HostSubID  uint32
	Count      uint32
}

// HostMapping holds the host's complete sub-ID grant state. Entry
// order matters only for display highlighting, not semantics.
type HostMapping struct {
	SubUID []IdMapEntry
	SubGID []IdMapEntry
}

// ParseSubIDMappings parses the content of a sub-ID grant file. Lines
// are name:start:count records; blank lines are skipped. A malformed
// record is a hard failure for the whole file: the previous mapping
// stays in effect rather than auditing against a half-read one.
func ParseSubIDMappings(content string) ([]IdMapEntry, error) {
	var entries []IdMapEntry

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Split(line, ":")
		if len(fields) != 3 {
			return nil, errors.New(ErrCodeInvalidSubID, "sub-ID record must have three colon-separated fields").
				WithContext("line", line)
		}

		start, err := strconv.ParseUint(strings.TrimSpace(fields[1]), 10, 32)
		if err != nil {
			return nil, errors.Wrap(err, ErrCodeInvalidSubID, "invalid sub-ID range start").
				WithContext("line", line)
		}
		count, err := strconv.ParseUint(strings.TrimSpace(fields[2]), 10, 32)
		if err != nil {
			return nil, errors.Wrap(err, ErrCodeInvalidSubID, "invalid sub-ID range count").
				WithContext("line", line)
		}

		entries = append(entries, IdMapEntry{
			HostUserID: strings.TrimSpace(fields[0]),
			HostSubID:  uint32(start),
			Count:      uint32(count),
		})
	}

	return entries, nil
}
