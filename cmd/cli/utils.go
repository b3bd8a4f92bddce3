// Utility functions for the pupman CLI
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/agilira/go-errors"

	"github.com/agilira/pupman"
)

// printFindings renders the finding set, Bad entries first as the
// evaluator orders them.
func printFindings(w io.Writer, findings []pupman.Finding, asJSON bool) error {
	if asJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if findings == nil {
			findings = []pupman.Finding{}
		}
		return encoder.Encode(findings)
	}

	if len(findings) == 0 {
		fmt.Fprintln(w, "no findings")
		return nil
	}
	for _, finding := range findings {
		marker := "OK  "
		if finding.Kind == pupman.FindingBad {
			marker = "BAD "
		}
		fmt.Fprintf(w, "%s %s%s\n", marker, finding.Message, findingRefs(finding))
	}
	return nil
}

// findingRefs formats the highlight references of a finding, if any.
func findingRefs(finding pupman.Finding) string {
	var refs []string
	for _, h := range finding.HostMappingHighlights {
		refs = append(refs, fmt.Sprintf("%s/%s", h.HostUserID, h.Kind))
	}
	for _, h := range finding.LXCConfigHighlights {
		refs = append(refs, fmt.Sprintf("%s/%s", h.Filename, h.Kind))
	}
	refs = append(refs, finding.RootfsHighlights...)
	if len(refs) == 0 {
		return ""
	}
	return " [" + strings.Join(refs, ", ") + "]"
}

// printAuditEvents renders queried audit events, newest first.
func printAuditEvents(w io.Writer, events []pupman.AuditEvent, asJSON bool) error {
	if asJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if events == nil {
			events = []pupman.AuditEvent{}
		}
		return encoder.Encode(events)
	}

	if len(events) == 0 {
		fmt.Fprintln(w, "no audit events")
		return nil
	}
	for _, event := range events {
		path := event.FilePath
		if path == "" {
			path = "-"
		}
		fmt.Fprintf(w, "%s  %-8s %-16s %s\n",
			event.Timestamp.Format(time.RFC3339), event.Level, event.Event, path)
	}
	return nil
}

// parseSince turns a time range like "24h", "7d" or "2w" into the
// cutoff timestamp. Day and week suffixes extend the stdlib duration
// syntax.
func parseSince(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		multiplier := time.Duration(0)
		switch {
		case strings.HasSuffix(value, "d"):
			multiplier = 24 * time.Hour
		case strings.HasSuffix(value, "w"):
			multiplier = 7 * 24 * time.Hour
		}
		if multiplier == 0 {
			return time.Time{}, errors.New(pupman.ErrCodeInvalidConfig, "invalid time range").
				WithContext("value", value)
		}
		count, convErr := strconv.Atoi(value[:len(value)-1])
		if convErr != nil {
			return time.Time{}, errors.New(pupman.ErrCodeInvalidConfig, "invalid time range").
				WithContext("value", value)
		}
		duration = time.Duration(count) * multiplier
	}
	return time.Now().Add(-duration), nil
}

// parseDurationFlag parses a duration flag value.
func parseDurationFlag(value string) (time.Duration, error) {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.Wrap(err, pupman.ErrCodeInvalidConfig, "invalid duration").
			WithContext("value", value)
	}
	return duration, nil
}

// parseBoolFlag parses a tri-state boolean flag value.
func parseBoolFlag(value string) (bool, error) {
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, errors.Wrap(err, pupman.ErrCodeInvalidConfig, "invalid boolean flag").
			WithContext("value", value)
	}
	return parsed, nil
}
