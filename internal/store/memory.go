// Copyright © 2025 Slate contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/store/memory.go
// Summary: In-memory Store used by unit and integration tests.
// Usage: Constructed with NewMemStore; implements the same contract as PGStore.
// Notes: Single mutex; fine for tests, never used in production wiring.

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"slate/board"
)

// MemStore is a map-backed Store with the same semantics as PGStore.
type MemStore struct {
	mu        sync.Mutex
	boards    map[string]board.Board
	events    map[string][]board.DrawEvent // ordered by seq
	snapshots map[string]board.Snapshot
}

func NewMemStore() *MemStore {
	return &MemStore{
		boards:    make(map[string]board.Board),
		events:    make(map[string][]board.DrawEvent),
		snapshots: make(map[string]board.Snapshot),
	}
}

func (s *MemStore) Close() {}

func (s *MemStore) GetBoard(_ context.Context, id string) (board.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boards[id]
	if !ok {
		return board.Board{}, ErrBoardNotFound
	}
	return b, nil
}

func (s *MemStore) CreateBoard(_ context.Context, b board.Board) (board.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.boards[b.ID]; ok {
		return existing, nil
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	s.boards[b.ID] = b
	return b, nil
}

func (s *MemStore) DeleteBoard(_ context.Context, id, ownerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boards[id]
	if !ok || b.OwnerID == "" || b.OwnerID != ownerID {
		return false, nil
	}
	delete(s.boards, id)
	delete(s.events, id)
	delete(s.snapshots, id)
	return true, nil
}

func (s *MemStore) UserBoards(_ context.Context, ownerID string) ([]board.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]board.Board, 0, 8)
	for _, b := range s.boards {
		if b.OwnerID == ownerID && ownerID != "" {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemStore) MaxSeq(_ context.Context, boardID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	evs := s.events[boardID]
	if len(evs) == 0 {
		return 0, nil
	}
	return evs[len(evs)-1].Seq, nil
}

func (s *MemStore) AppendEvent(_ context.Context, ev board.DrawEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.events[ev.BoardID] {
		if existing.Seq == ev.Seq {
			return ErrDuplicateSeq
		}
	}
	s.events[ev.BoardID] = append(s.events[ev.BoardID], ev)
	sort.Slice(s.events[ev.BoardID], func(i, j int) bool {
		return s.events[ev.BoardID][i].Seq < s.events[ev.BoardID][j].Seq
	})
	return nil
}

func (s *MemStore) Events(ctx context.Context, boardID string) ([]board.DrawEvent, error) {
	return s.EventsAfter(ctx, boardID, 0)
}

func (s *MemStore) EventsAfter(_ context.Context, boardID string, seq int64) ([]board.DrawEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]board.DrawEvent, 0, 64)
	for _, ev := range s.events[boardID] {
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *MemStore) GetSnapshot(_ context.Context, boardID string) (board.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[boardID]
	if !ok {
		return board.Snapshot{}, ErrSnapshotNotFound
	}
	return snap, nil
}

func (s *MemStore) SaveSnapshot(_ context.Context, snap board.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	s.snapshots[snap.BoardID] = snap
	return nil
}

func (s *MemStore) DeleteSnapshot(_ context.Context, boardID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, boardID)
	return nil
}
