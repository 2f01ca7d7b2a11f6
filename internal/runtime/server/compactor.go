// Copyright © 2025 Slate contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/compactor.go
// Summary: Asynchronous replay-to-PNG snapshot compaction.
// Usage: The draw path calls Schedule when a seq crosses the threshold.
// Notes: At most one run per board at a time; a second trigger while one
// is in flight is dropped, the next threshold crossing retries.

package server

import (
	"context"
	"log"
	"sync"
	"time"

	"slate/board"
	"slate/internal/raster"
	"slate/internal/store"
)

// Compactor replays a board's event log into a PNG snapshot off the hot
// path. Failures are logged and swallowed; the event log stays the source
// of truth either way.
type Compactor struct {
	store store.Store

	mu         sync.Mutex
	inProgress map[string]bool
	wg         sync.WaitGroup

	observer CompactionObserver
}

// NewCompactor builds a compactor over the given store.
func NewCompactor(st store.Store) *Compactor {
	return &Compactor{
		store:      st,
		inProgress: make(map[string]bool),
	}
}

// SetObserver wires a hook invoked after every successful run.
func (c *Compactor) SetObserver(o CompactionObserver) {
	c.observer = o
}

// Schedule starts a compaction run for the board unless one is already in
// flight. Returns whether a run was started.
func (c *Compactor) Schedule(boardID string, seq int64) bool {
	c.mu.Lock()
	if c.inProgress[boardID] {
		c.mu.Unlock()
		debugLog.Printf("compactor: board %s already compacting, skipping seq %d", boardID, seq)
		return false
	}
	c.inProgress[boardID] = true
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.inProgress, boardID)
			c.mu.Unlock()
		}()
		c.run(boardID)
	}()
	return true
}

// Wait blocks until all in-flight runs finish. Used during shutdown.
func (c *Compactor) Wait() {
	c.wg.Wait()
}

func (c *Compactor) run(boardID string) {
	start := time.Now()
	ctx := context.Background()

	events, err := c.store.Events(ctx, boardID)
	if err != nil {
		log.Printf("compactor: load events board=%s: %v", boardID, err)
		return
	}
	if len(events) == 0 {
		return
	}

	res, err := raster.Render(events)
	if err != nil {
		log.Printf("compactor: render board=%s: %v", boardID, err)
		return
	}

	// The snapshot covers everything read, which may be past the seq that
	// triggered the run. Record the actual head we replayed.
	head := events[len(events)-1].Seq
	snap := board.Snapshot{
		BoardID: boardID,
		Seq:     head,
		Image:   res.PNG,
		OffsetX: res.OffsetX,
		OffsetY: res.OffsetY,
	}
	if err := c.store.SaveSnapshot(ctx, snap); err != nil {
		log.Printf("compactor: save snapshot board=%s seq=%d: %v", boardID, head, err)
		return
	}

	debugLog.Printf("compactor: board %s compacted at seq %d (%d bytes)", boardID, head, len(res.PNG))
	if c.observer != nil {
		c.observer.ObserveCompaction(boardID, head, len(res.PNG), time.Since(start))
	}
}
