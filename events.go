// events.go: Event types flowing into the state-owning loop
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package pupman

// EventKind discriminates the events the state loop consumes.
type EventKind uint8

const (
	// EventFileUpdated carries the freshly read content of a watched
	// file (host sub-ID file or container config).
	EventFileUpdated EventKind = iota + 1

	// EventFileRemoved signals a watched file was renamed or deleted.
	EventFileRemoved

	// EventRootfsUpdated carries a fresh ownership snapshot for a
	// registered root filesystem.
	EventRootfsUpdated

	// EventQuit asks the event loop to stop.
	EventQuit
)

// Event is the single payload type crossing into the event loop.
// Ownership of the payload transfers fully to the receiver: producers
// never retain references after sending.
type Event struct {
	Kind EventKind

	// Path is the watched file path for file events, or the resolved
	// filesystem path for rootfs events.
	Path string

	// Content is the full file content for EventFileUpdated.
	Content string

	// Descriptor is the raw rootfs descriptor for EventRootfsUpdated.
	Descriptor string

	// OwnerUID and OwnerGID snapshot rootfs ownership for
	// EventRootfsUpdated.
	OwnerUID uint32
	OwnerGID uint32
}
