// reader.go: File content reader decoupling slow disk I/O from the
// notification loop
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package pupman

import (
	"os"

	"github.com/sirupsen/logrus"
)

// RunReader consumes read requests, reads each file whole, and emits a
// file-updated event carrying the full content. A read failure (the
// file may already be gone again) is logged and skipped; the removal
// notification handles cleanup.
//
// The request channel closing is an invariant violation: the monitor
// owns it and never closes it while the app runs.
func RunReader(requests <-chan string, events chan<- Event) {
	for path := range requests {
		content, err := os.ReadFile(path)
		if err != nil {
			logrus.Errorf("pupman: failed to read %s: %v", path, err)
			continue
		}
		events <- Event{Kind: EventFileUpdated, Path: path, Content: string(content)}
	}
	panic("pupman: reader request channel closed unexpectedly")
}
