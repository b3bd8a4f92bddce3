// lxc_section_mut.go: Mutating section views over a parsed LXCConfig
//
// Writes are infrequent compared to lookups, so the mutating view
// favours keeping the entry list and index consistent over raw speed.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package pupman

// SectionMut is a mutating lens over one section of an LXCConfig. Every
// operation updates the entry list and the index together; callers
// never see the two disagree.
type SectionMut struct {
	config  *LXCConfig
	section string
}

// View returns the read-only view of the same section.
func (s SectionMut) View() SectionView {
	return SectionView{config: s.config, section: s.section}
}

// Set replaces all values of key with a single value.
func (s SectionMut) Set(key, value string) {
	s.RemoveAll(key)
	s.Append(key, value)
}

// Append adds one value for key at the end of the section, after its
// last existing directive.
func (s SectionMut) Append(key, value string) {
	ik := indexKey{section: s.section, key: key}
	s.config.index[ik] = append(s.config.index[ik], value)

	entry := ConfEntry{Kind: EntryKeyValue, Key: key, Value: value, Raw: key + ": " + value}
	insertAt := s.findAppendPoint()

	s.config.entries = append(s.config.entries, ConfEntry{})
	copy(s.config.entries[insertAt+1:], s.config.entries[insertAt:])
	s.config.entries[insertAt] = entry
}

// RemoveAll drops every directive for key within the section.
func (s SectionMut) RemoveAll(key string) {
	delete(s.config.index, indexKey{section: s.section, key: key})

	inSection := s.section == ""
	kept := s.config.entries[:0]
	for _, entry := range s.config.entries {
		switch entry.Kind {
		case EntrySection:
			inSection = entry.Key == s.section
		case EntryKeyValue:
			if inSection && entry.Key == key {
				continue
			}
		}
		kept = append(kept, entry)
	}
	s.config.entries = kept
}

// findAppendPoint locates the index just past the section's last
// directive, or the end of the file for an empty/absent section.
func (s SectionMut) findAppendPoint() int {
	inSection := s.section == ""
	lastMatch := -1

	for i, entry := range s.config.entries {
		switch entry.Kind {
		case EntrySection:
			inSection = entry.Key == s.section
			if inSection {
				lastMatch = i
			}
		case EntryKeyValue:
			if inSection {
				lastMatch = i
			}
		}
	}

	if lastMatch < 0 {
		return len(s.config.entries)
	}
	return lastMatch + 1
}
