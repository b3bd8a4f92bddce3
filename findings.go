// findings.go: Consistency evaluation of host sub-ID grants against
// container ID mappings and root-filesystem ownership
//
// Findings are ephemeral: the whole set is recomputed from scratch on
// every state transition and never persisted.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package pupman

import (
	"sort"
	"strconv"
	"strings"

	"github.com/agilira/go-errors"
	"github.com/sirupsen/logrus"
)

// FindingKind classifies a finding as a confirmed-good baseline or a
// detected inconsistency.
type FindingKind uint8

const (
	FindingGood FindingKind = iota + 1
	FindingBad
)

// String returns "good" or "bad".
func (k FindingKind) String() string {
	if k == FindingBad {
		return "bad"
	}
	return "good"
}

// HostHighlight points at a host mapping entry involved in a finding,
// one per occurrence of the entry in the relevant list.
type HostHighlight struct {
	HostUserID string
	Kind       SubID
}

// ConfigHighlight points at a container config involved in a finding.
type ConfigHighlight struct {
	Filename string
	Kind     SubID
}

// Finding is one consistency result. Highlights reference the source
// data positions a renderer should mark.
type Finding struct {
	Kind                  FindingKind
	Message               string
	HostMappingHighlights []HostHighlight
	LXCConfigHighlights   []ConfigHighlight
	RootfsHighlights      []string
}

// idMapLine is one parsed lxc.idmap value:
// "<u|g> <container_id> <host_sub_id> <count>".
type idMapLine struct {
	Kind        SubID
	ContainerID uint32
	HostSubID   uint32
	Count       uint32
}

// parseIDMapLine parses a single lxc.idmap value. Config text is
// external input, so malformed lines are an error here, not a panic.
func parseIDMapLine(value string) (idMapLine, error) {
	fields := strings.Fields(value)
	if len(fields) != 4 {
		return idMapLine{}, errors.New(ErrCodeInvalidConfig, "idmap line must have 4 fields").
			WithContext("value", value)
	}

	var line idMapLine
	switch fields[0] {
	case "u":
		line.Kind = UID
	case "g":
		line.Kind = GID
	default:
		return idMapLine{}, errors.New(ErrCodeInvalidConfig, "idmap kind must be u or g").
			WithContext("value", value)
	}

	for i, dst := range []*uint32{&line.ContainerID, &line.HostSubID, &line.Count} {
		n, err := strconv.ParseUint(fields[i+1], 10, 32)
		if err != nil {
			return idMapLine{}, errors.Wrap(err, ErrCodeInvalidConfig, "idmap field is not a valid id").
				WithContext("value", value)
		}
		*dst = uint32(n)
	}
	return line, nil
}

// EvaluateFindings recomputes the full finding set for the current
// state. Deterministic: same state, same findings, order included.
// strict enables the duplicate-grant scan and the all-clear baseline;
// resolver lookups are memoized for the duration of the pass.
func EvaluateFindings(state *State, strict bool, resolver IdentityResolver) []Finding {
	memo := newMemoResolver(resolver)
	var findings []Finding

	if strict {
		duplicates := duplicateFindings(state.mapping.SubUID, UID)
		duplicates = append(duplicates, duplicateFindings(state.mapping.SubGID, GID)...)
		findings = append(findings, duplicates...)

		if len(duplicates) == 0 && (len(state.mapping.SubUID) > 0 || len(state.mapping.SubGID) > 0) {
			findings = append(findings, Finding{
				Kind:    FindingGood,
				Message: "No duplicate ids found in subuid/subgid mappings",
			})
		}
	}

	for _, name := range state.ConfigNames() {
		config, _ := state.ConfigFor(name)
		findings = append(findings, containerFindings(state, name, config, memo)...)
	}

	// Bad findings display before Good ones.
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Kind == FindingBad && findings[j].Kind != FindingBad
	})
	return findings
}

// duplicateFindings emits one Bad finding per host identity granted
// more than once in a single list, highlighting every occurrence.
func duplicateFindings(entries []IdMapEntry, kind SubID) []Finding {
	counts := make(map[string]int, len(entries))
	var order []string
	for _, entry := range entries {
		if counts[entry.HostUserID] == 0 {
			order = append(order, entry.HostUserID)
		}
		counts[entry.HostUserID]++
	}

	message := "Cannot have multiple entries for the same user"
	if kind == GID {
		message = "Cannot have multiple entries for the same group"
	}

	var findings []Finding
	for _, name := range order {
		if counts[name] < 2 {
			continue
		}
		highlights := make([]HostHighlight, 0, counts[name])
		for range counts[name] {
			highlights = append(highlights, HostHighlight{HostUserID: name, Kind: kind})
		}
		findings = append(findings, Finding{
			Kind:                  FindingBad,
			Message:               message,
			HostMappingHighlights: highlights,
		})
	}
	return findings
}

// containerFindings runs the per-container checks: range containment
// of every idmap line against matching host grants, presence of both
// idmap kinds, and rootfs ownership agreement.
func containerFindings(state *State, name string, config *LXCConfig, resolver IdentityResolver) []Finding {
	section := config.Section("")
	if !section.IsUnprivileged() {
		return nil
	}

	var (
		rootfsInfo RootfsInfo
		descriptor string
		haveRootfs bool
	)
	if desc, ok := section.Rootfs(); ok {
		descriptor = desc
		rootfsInfo, haveRootfs = state.RootfsFor(desc)
	}

	var findings []Finding
	hasUID, hasGID := false, false

	for _, value := range section.IDMaps() {
		line, err := parseIDMapLine(value)
		if err != nil {
			logrus.Warnf("pupman: skipping malformed lxc.idmap in %s: %v", name, err)
			continue
		}

		var entries []IdMapEntry
		if line.Kind == UID {
			hasUID = true
			entries = state.mapping.SubUID
		} else {
			hasGID = true
			entries = state.mapping.SubGID
		}

		for _, entry := range entries {
			id, err := resolver.Resolve(line.Kind, entry.HostUserID)
			if err != nil {
				logrus.Errorf("pupman: failed to resolve %s %q: %v", line.Kind, entry.HostUserID, err)
				continue
			}
			if id != line.ContainerID {
				continue
			}
			if outsideRange(line, entry) {
				findings = append(findings, Finding{
					Kind:                  FindingBad,
					Message:               rangeMessage(line.Kind),
					HostMappingHighlights: []HostHighlight{{HostUserID: entry.HostUserID, Kind: line.Kind}},
					LXCConfigHighlights:   []ConfigHighlight{{Filename: name, Kind: line.Kind}},
				})
			}
		}

		if haveRootfs {
			owner := rootfsInfo.OwnerUID
			if line.Kind == GID {
				owner = rootfsInfo.OwnerGID
			}
			if owner != line.HostSubID {
				findings = append(findings, Finding{
					Kind:                FindingBad,
					Message:             rootfsMessage(line.Kind),
					LXCConfigHighlights: []ConfigHighlight{{Filename: name, Kind: line.Kind}},
					RootfsHighlights:    []string{descriptor},
				})
			}
		}
	}

	if !hasUID {
		findings = append(findings, Finding{
			Kind:                FindingBad,
			Message:             "lxc.idmap for uid is not set in config",
			LXCConfigHighlights: []ConfigHighlight{{Filename: name, Kind: UID}},
		})
	}
	if !hasGID {
		findings = append(findings, Finding{
			Kind:                FindingBad,
			Message:             "lxc.idmap for gid is not set in config",
			LXCConfigHighlights: []ConfigHighlight{{Filename: name, Kind: GID}},
		})
	}
	return findings
}

// outsideRange reports whether the idmap's declared sub-ID range falls
// outside the host grant's [start, start+count) range. Arithmetic is
// widened to avoid uint32 wraparound on adversarial counts.
func outsideRange(line idMapLine, entry IdMapEntry) bool {
	start, end := uint64(entry.HostSubID), uint64(entry.HostSubID)+uint64(entry.Count)
	lo, hi := uint64(line.HostSubID), uint64(line.HostSubID)+uint64(line.Count)
	return lo < start || lo >= end || hi > end
}

func rangeMessage(kind SubID) string {
	if kind == GID {
		return "LXC config's host sub gid range outside of host mapping range"
	}
	return "LXC config's host sub uid range outside of host mapping range"
}

func rootfsMessage(kind SubID) string {
	if kind == GID {
		return "Rootfs gid does not match host mapping"
	}
	return "Rootfs uid does not match host mapping"
}
