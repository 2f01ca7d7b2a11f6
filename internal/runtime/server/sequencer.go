// Copyright © 2025 Slate contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/sequencer.go
// Summary: Per-board event sequencing with durable, gap-free seq assignment.
// Usage: The draw path calls Sequence; the handshake calls Init on join.
// Notes: The per-board mutex is the hot critical section: reserve, persist, release.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"slate/board"
	"slate/internal/store"
)

// Sequencer owns the next-seq counter for every active board. Calls for
// the same board are totally ordered; distinct boards proceed in parallel.
type Sequencer struct {
	store     store.Store
	threshold int64

	mu     sync.Mutex
	boards map[string]*boardCounter

	observer SequenceObserver
}

// boardCounter serializes seq assignment for one board. next == 0 means
// the counter has not been initialized from the store yet.
type boardCounter struct {
	mu   sync.Mutex
	next int64
}

// NewSequencer builds a sequencer. compactionThreshold <= 0 disables the
// compaction trigger.
func NewSequencer(st store.Store, compactionThreshold int64) *Sequencer {
	return &Sequencer{
		store:     st,
		threshold: compactionThreshold,
		boards:    make(map[string]*boardCounter),
	}
}

// SetObserver wires a hook invoked after every committed event.
func (s *Sequencer) SetObserver(o SequenceObserver) {
	s.observer = o
}

func (s *Sequencer) counter(boardID string) *boardCounter {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.boards[boardID]
	if !ok {
		c = &boardCounter{}
		s.boards[boardID] = c
	}
	return c
}

// Init loads the counter for a board from maxSeq + 1 if it is not active
// yet. Safe to call concurrently with Sequence.
func (s *Sequencer) Init(ctx context.Context, boardID string) error {
	c := s.counter(boardID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.next > 0 {
		return nil
	}
	max, err := s.store.MaxSeq(ctx, boardID)
	if err != nil {
		return err
	}
	c.next = max + 1
	return nil
}

// Forget drops a board's counter, e.g. after board deletion. The next use
// re-derives it from the store.
func (s *Sequencer) Forget(boardID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.boards, boardID)
}

// Sequence reserves the next seq for the board, persists the event and
// returns the canonical form. On persistence failure the reservation rolls
// back and no seq is consumed. The returned bool reports whether the new
// seq crossed the compaction threshold.
//
// publish, when non-nil, runs inside the board's critical section after a
// successful append, so fan-out enqueue order matches seq order. It must
// not block.
func (s *Sequencer) Sequence(ctx context.Context, boardID, userID string, typ board.EventType, payload json.RawMessage, publish func(board.DrawEvent)) (board.DrawEvent, bool, error) {
	c := s.counter(boardID)
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.next == 0 {
		max, err := s.store.MaxSeq(ctx, boardID)
		if err != nil {
			return board.DrawEvent{}, false, err
		}
		c.next = max + 1
	}

	ev := board.DrawEvent{
		BoardID:   boardID,
		Seq:       c.next,
		Type:      typ,
		UserID:    userID,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}

	start := time.Now()
	if err := s.store.AppendEvent(ctx, ev); err != nil {
		if errors.Is(err, store.ErrDuplicateSeq) {
			// Invariant violation: another writer touched this board's
			// log. Re-derive the counter on the next call.
			log.Printf("sequencer: duplicate seq board=%s seq=%d", boardID, ev.Seq)
			c.next = 0
		}
		return board.DrawEvent{}, false, err
	}
	c.next++

	if publish != nil {
		publish(ev)
	}
	if s.observer != nil {
		s.observer.ObserveSequence(boardID, ev.Seq, time.Since(start))
	}
	compact := s.threshold > 0 && ev.Seq%s.threshold == 0
	return ev, compact, nil
}
