// audit.go: Audit trail for pipeline activity
//
// Records what the watcher observed (files changed or removed, rootfs
// ownership flips, evaluation summaries), never the findings
// themselves: findings are ephemeral and recomputed, the audit trail
// is the durable record of why they changed.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package pupman

import (
	"crypto/sha256"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/agilira/go-timecache"
)

// AuditLevel represents the severity of audit events
type AuditLevel int

const (
	AuditInfo AuditLevel = iota
	AuditWarn
	AuditCritical
)

func (al AuditLevel) String() string {
	switch al {
	case AuditInfo:
		return "INFO"
	case AuditWarn:
		return "WARN"
	case AuditCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// AuditEvent represents a single auditable pipeline event
type AuditEvent struct {
	Timestamp   time.Time              `json:"timestamp"`
	Level       AuditLevel             `json:"level"`
	Event       string                 `json:"event"`
	Component   string                 `json:"component"`
	FilePath    string                 `json:"file_path,omitempty"`
	ProcessID   int                    `json:"process_id"`
	ProcessName string                 `json:"process_name"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Checksum    string                 `json:"checksum"` // For tamper detection
}

// AuditConfig configures the audit system
type AuditConfig struct {
	Enabled       bool          `json:"enabled"`
	OutputFile    string        `json:"output_file"`
	MinLevel      AuditLevel    `json:"min_level"`
	BufferSize    int           `json:"buffer_size"`
	FlushInterval time.Duration `json:"flush_interval"`
}

// DefaultAuditConfig returns the default audit configuration backed by
// the unified SQLite store. Set OutputFile to a .jsonl path for plain
// line-delimited JSON instead.
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:       true,
		OutputFile:    "", // Empty selects the unified SQLite backend
		MinLevel:      AuditInfo,
		BufferSize:    256,
		FlushInterval: 5 * time.Second,
	}
}

// AuditLogger provides buffered audit logging with pluggable backends
// (SQLite preferred, JSONL fallback). Events are buffered and flushed
// in the background so logging never stalls the event loop.
type AuditLogger struct {
	config      AuditConfig
	backend     auditBackend
	buffer      []AuditEvent
	bufferMu    sync.Mutex
	flushTicker *time.Ticker
	stopCh      chan struct{}
	processID   int
	processName string
}

// NewAuditLogger creates an audit logger with automatic backend
// selection: SQLite first, JSONL as fallback.
func NewAuditLogger(config AuditConfig) (*AuditLogger, error) {
	backend, err := createAuditBackend(config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audit backend: %w", err)
	}

	logger := &AuditLogger{
		config:      config,
		backend:     backend,
		buffer:      make([]AuditEvent, 0, config.BufferSize),
		stopCh:      make(chan struct{}),
		processID:   os.Getpid(),
		processName: "pupman",
	}

	if config.FlushInterval > 0 {
		logger.flushTicker = time.NewTicker(config.FlushInterval)
		go logger.flushLoop()
	}

	return logger, nil
}

// Log records an audit event. Safe on a nil logger.
func (al *AuditLogger) Log(level AuditLevel, event, filePath string, context map[string]interface{}) {
	if al == nil || al.backend == nil || !al.config.Enabled || level < al.config.MinLevel {
		return
	}

	auditEvent := AuditEvent{
		Timestamp:   timecache.CachedTime(),
		Level:       level,
		Event:       event,
		Component:   "pupman",
		FilePath:    filePath,
		ProcessID:   al.processID,
		ProcessName: al.processName,
		Context:     context,
	}
	auditEvent.Checksum = al.generateChecksum(auditEvent)

	al.bufferMu.Lock()
	al.buffer = append(al.buffer, auditEvent)
	if len(al.buffer) >= al.config.BufferSize {
		_ = al.flushBufferUnsafe()
	}
	al.bufferMu.Unlock()
}

// LogFileWatch logs filesystem watch events (watch_start, file_changed,
// file_removed, rootfs_changed).
func (al *AuditLogger) LogFileWatch(event, filePath string) {
	al.Log(AuditInfo, event, filePath, nil)
}

// LogEvaluation logs a findings recomputation summary. Only the counts
// are recorded; findings themselves are never persisted.
func (al *AuditLogger) LogEvaluation(bad, good int) {
	al.Log(AuditInfo, "evaluation", "", map[string]interface{}{
		"bad_findings":  bad,
		"good_findings": good,
	})
}

// Flush immediately writes all buffered events
func (al *AuditLogger) Flush() error {
	al.bufferMu.Lock()
	defer al.bufferMu.Unlock()
	return al.flushBufferUnsafe()
}

// Close gracefully shuts down the audit logger
func (al *AuditLogger) Close() error {
	if al == nil || al.backend == nil {
		return nil
	}
	close(al.stopCh)
	if al.flushTicker != nil {
		al.flushTicker.Stop()
	}

	if err := al.Flush(); err != nil {
		return fmt.Errorf("failed to flush audit logger during close: %w", err)
	}
	if err := al.backend.Close(); err != nil {
		return fmt.Errorf("failed to close audit backend: %w", err)
	}
	return nil
}

func (al *AuditLogger) flushLoop() {
	for {
		select {
		case <-al.flushTicker.C:
			_ = al.Flush()
		case <-al.stopCh:
			return
		}
	}
}

// flushBufferUnsafe writes the buffer to the backend; caller must hold
// bufferMu.
func (al *AuditLogger) flushBufferUnsafe() error {
	if len(al.buffer) == 0 {
		return nil
	}
	if err := al.backend.Write(al.buffer); err != nil {
		return fmt.Errorf("failed to write audit events to backend: %w", err)
	}
	al.buffer = al.buffer[:0]
	return nil
}

// generateChecksum creates a tamper-detection checksum using SHA-256
func (al *AuditLogger) generateChecksum(event AuditEvent) string {
	data := fmt.Sprintf("%s:%s:%s:%s",
		event.Timestamp.Format(time.RFC3339Nano),
		event.Event, event.Component, event.FilePath)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
