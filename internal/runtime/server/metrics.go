// Copyright © 2025 Slate contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/metrics.go
// Summary: Observer hooks for sequencing and compaction timings.
// Usage: Wired by slate-server to log write-path and compaction metrics.
// Notes: Observers must be cheap; they run on the hot path.

package server

import (
	"log"
	"time"
)

// SequenceObserver is notified after every committed draw event.
type SequenceObserver interface {
	ObserveSequence(boardID string, seq int64, duration time.Duration)
}

// SequenceLogger logs sequencing metrics to the provided logger.
type SequenceLogger struct {
	logger *log.Logger
}

// NewSequenceLogger creates a sequence observer that logs metrics.
func NewSequenceLogger(l *log.Logger) *SequenceLogger {
	if l == nil {
		l = log.Default()
	}
	return &SequenceLogger{logger: l}
}

func (s *SequenceLogger) ObserveSequence(boardID string, seq int64, duration time.Duration) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Printf("sequence board=%s seq=%d duration=%s", boardID, seq, duration)
}

// CompactionObserver is notified after every finished compaction run.
type CompactionObserver interface {
	ObserveCompaction(boardID string, seq int64, imageBytes int, duration time.Duration)
}

// CompactionLogger logs compaction metrics.
type CompactionLogger struct {
	logger *log.Logger
}

// NewCompactionLogger returns an observer that logs compaction runs.
func NewCompactionLogger(l *log.Logger) *CompactionLogger {
	if l == nil {
		l = log.Default()
	}
	return &CompactionLogger{logger: l}
}

func (c *CompactionLogger) ObserveCompaction(boardID string, seq int64, imageBytes int, duration time.Duration) {
	if c == nil || c.logger == nil {
		return
	}
	c.logger.Printf("compaction board=%s seq=%d image_bytes=%d duration=%s", boardID, seq, imageBytes, duration)
}
