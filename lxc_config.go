// lxc_config.go: Proxmox LXC container configuration parser and index
//
// A parsed LXCConfig keeps every line of the original file, byte for byte,
// so an unmutated LXCConfig renders back to exactly the text it was parsed
// from. Lookups must be near constant time: the evaluator re-queries
// lxc.idmap, rootfs and unprivileged for every container on every pass,
// and PVE hosts can carry hundreds of containers.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package pupman

import (
	"strings"
	"unicode/utf8"

	"github.com/agilira/go-errors"
)

// ConfEntryKind discriminates the line variants of a container config.
type ConfEntryKind uint8

const (
	EntryKeyValue ConfEntryKind = iota
	EntrySection
	EntryComment
	EntryEmptyLine
)

// ConfEntry is a single line of a container configuration file.
// Raw preserves the original line text for lossless round-tripping;
// entries created through a mutating view synthesize a canonical Raw.
type ConfEntry struct {
	Kind  ConfEntryKind
	Key   string // key for KeyValue, section name for Section
	Value string // value for KeyValue, comment text for Comment
	Raw   string
}

// indexKey addresses all values of one key within one section.
// The implicit top-level section is the empty string.
type indexKey struct {
	section string
	key     string
}

// LXCConfig is an ordered, indexed view of one container configuration
// file. The index is a derived cache over Entries: every value recorded
// in it corresponds to exactly one KeyValue entry, and vice versa, at
// all times. All mutation goes through SectionMut so the two stay in
// step.
type LXCConfig struct {
	entries []ConfEntry
	index   map[indexKey][]string
}

// ParseLXCConfig parses container configuration text. It fails only when
// the content is not valid UTF-8; malformed directive lines are kept
// verbatim as key-only entries so the file still round-trips.
func ParseLXCConfig(content string) (*LXCConfig, error) {
	if !utf8.ValidString(content) {
		return nil, errors.New(ErrCodeInvalidConfig, "config content is not valid UTF-8")
	}

	lines := strings.Split(content, "\n")
	config := &LXCConfig{
		entries: make([]ConfEntry, 0, len(lines)),
		index:   make(map[indexKey][]string),
	}
	currentSection := ""

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			config.entries = append(config.entries, ConfEntry{Kind: EntryEmptyLine, Raw: line})
		case strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, ";"):
			config.entries = append(config.entries, ConfEntry{Kind: EntryComment, Value: trimmed, Raw: line})
		// A bare [] is not a section header: the empty name is the
		// sentinel for the implicit top-level section.
		case strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") && len(trimmed) > 2:
			section := trimmed[1 : len(trimmed)-1]
			config.entries = append(config.entries, ConfEntry{Kind: EntrySection, Key: section, Raw: line})
			currentSection = section
		default:
			key, value := splitDirective(trimmed)
			config.entries = append(config.entries, ConfEntry{Kind: EntryKeyValue, Key: key, Value: value, Raw: line})
			ik := indexKey{section: currentSection, key: key}
			config.index[ik] = append(config.index[ik], value)
		}
	}

	return config, nil
}

// splitDirective splits a directive line on the first ':' or, failing
// that, the first '='. A line with neither delimiter becomes a key with
// an empty value.
func splitDirective(trimmed string) (key, value string) {
	if k, v, ok := strings.Cut(trimmed, ":"); ok {
		return strings.TrimSpace(k), strings.TrimSpace(v)
	}
	if k, v, ok := strings.Cut(trimmed, "="); ok {
		return strings.TrimSpace(k), strings.TrimSpace(v)
	}
	return trimmed, ""
}

// Entries returns the ordered entry list. Callers must not mutate it.
func (c *LXCConfig) Entries() []ConfEntry {
	return c.entries
}

// Section returns a read-only view of one section. The empty string
// addresses the implicit top-level section before any [header].
func (c *LXCConfig) Section(section string) SectionView {
	return SectionView{config: c, section: section}
}

// SectionMut returns a mutating view of one section.
func (c *LXCConfig) SectionMut(section string) SectionMut {
	return SectionMut{config: c, section: section}
}

// String renders the configuration. For an unmutated LXCConfig the result
// equals the parsed input byte for byte.
func (c *LXCConfig) String() string {
	var b strings.Builder
	for i, entry := range c.entries {
		if i != 0 {
			b.WriteByte('\n')
		}
		b.WriteString(entry.Raw)
	}
	return b.String()
}
