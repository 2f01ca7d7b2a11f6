// Copyright © 2025 Slate contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/store/store.go
// Summary: Event-store contract shared by the Postgres and in-memory backends.
// Usage: The runtime depends on this interface; main wires the pgx implementation.
// Notes: Per-board append serialization happens above this layer, in the sequencer.

package store

import (
	"context"
	"errors"

	"slate/board"
)

var (
	ErrBoardNotFound    = errors.New("store: board not found")
	ErrSnapshotNotFound = errors.New("store: snapshot not found")

	// ErrDuplicateSeq surfaces a (boardId, seq) primary-key collision.
	// The sequencer treats this as an invariant violation, never as
	// something to retry silently.
	ErrDuplicateSeq = errors.New("store: duplicate (boardId, seq)")
)

// Store is the durable log plus board catalog and snapshot table. Appends
// for one board must be strictly serial; concurrent appends to distinct
// boards are independent.
type Store interface {
	GetBoard(ctx context.Context, id string) (board.Board, error)
	CreateBoard(ctx context.Context, b board.Board) (board.Board, error)
	// DeleteBoard removes the board and its events and snapshot, but only
	// when ownerID matches. Returns false when nothing was deleted.
	DeleteBoard(ctx context.Context, id, ownerID string) (bool, error)
	UserBoards(ctx context.Context, ownerID string) ([]board.Board, error)

	MaxSeq(ctx context.Context, boardID string) (int64, error)
	AppendEvent(ctx context.Context, ev board.DrawEvent) error
	Events(ctx context.Context, boardID string) ([]board.DrawEvent, error)
	EventsAfter(ctx context.Context, boardID string, seq int64) ([]board.DrawEvent, error)

	GetSnapshot(ctx context.Context, boardID string) (board.Snapshot, error)
	SaveSnapshot(ctx context.Context, snap board.Snapshot) error
	DeleteSnapshot(ctx context.Context, boardID string) error

	Close()
}
