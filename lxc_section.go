// lxc_section.go: Read-only section views over a parsed LXCConfig
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package pupman

// SectionView is a read-only lens over one section of an LXCConfig. All
// lookups are single hash probes against the Config index.
type SectionView struct {
	config  *LXCConfig
	section string
}

// Get returns the first value recorded for key, if any.
func (s SectionView) Get(key string) (string, bool) {
	values, ok := s.config.index[indexKey{section: s.section, key: key}]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// GetAll returns every value recorded for key, in file order,
// preserving multiplicity. Callers must not mutate the result.
func (s SectionView) GetAll(key string) []string {
	return s.config.index[indexKey{section: s.section, key: key}]
}

// HasKey reports whether at least one value exists for key.
func (s SectionView) HasKey(key string) bool {
	return len(s.config.index[indexKey{section: s.section, key: key}]) > 0
}

// Keys returns the distinct keys present in this section, in no
// particular order.
func (s SectionView) Keys() []string {
	var keys []string
	for ik := range s.config.index {
		if ik.section == s.section {
			keys = append(keys, ik.key)
		}
	}
	return keys
}

// Rootfs returns the section's rootfs descriptor, if set.
func (s SectionView) Rootfs() (string, bool) {
	return s.Get("rootfs")
}

// Unprivileged returns the section's unprivileged flag value, if set.
func (s SectionView) Unprivileged() (string, bool) {
	return s.Get("unprivileged")
}

// IsUnprivileged reports whether the section declares unprivileged: 1.
func (s SectionView) IsUnprivileged() bool {
	v, ok := s.Unprivileged()
	return ok && v == "1"
}

// IDMaps returns the section's lxc.idmap values, in file order.
func (s SectionView) IDMaps() []string {
	return s.GetAll("lxc.idmap")
}

// HasIDMap reports whether any lxc.idmap directive is present.
func (s SectionView) HasIDMap() bool {
	return s.HasKey("lxc.idmap")
}
