// Copyright © 2025 Slate contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/store/pg.go
// Summary: Postgres-backed event store on pgx/v5.
// Usage: Opened once by main with DATABASE_URL; shared process-wide.
// Notes: Schema is created on open. Every call runs under a bounded timeout.

package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"slate/board"
)

const stmtTimeout = 10 * time.Second

// uniqueViolation is the Postgres error code for a unique/PK collision.
const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS boards (
    id         TEXT PRIMARY KEY,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    name       TEXT,
    owner_id   TEXT,
    is_private BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE TABLE IF NOT EXISTS drawing_events (
    board_id TEXT NOT NULL REFERENCES boards(id) ON DELETE CASCADE,
    seq      BIGINT NOT NULL,
    event    JSONB NOT NULL,
    PRIMARY KEY (board_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_drawing_events_board_seq ON drawing_events (board_id, seq);
CREATE TABLE IF NOT EXISTS board_snapshots (
    board_id   TEXT PRIMARY KEY REFERENCES boards(id) ON DELETE CASCADE,
    seq        BIGINT NOT NULL,
    image_data TEXT NOT NULL,
    offset_x   DOUBLE PRECISION NOT NULL DEFAULT 0,
    offset_y   DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PGStore implements Store on a process-global pgxpool.
type PGStore struct {
	pool *pgxpool.Pool
}

// Open connects, pings and ensures the schema exists.
func Open(ctx context.Context, databaseURL string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, stmtTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	s := &PGStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PGStore) initSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, stmtTimeout)
	defer cancel()
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("store: init schema: %w", err)
	}
	return nil
}

func (s *PGStore) Close() {
	s.pool.Close()
}

func (s *PGStore) GetBoard(ctx context.Context, id string) (board.Board, error) {
	ctx, cancel := context.WithTimeout(ctx, stmtTimeout)
	defer cancel()
	var b board.Board
	var name, owner *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, created_at, name, owner_id, is_private FROM boards WHERE id = $1`, id,
	).Scan(&b.ID, &b.CreatedAt, &name, &owner, &b.IsPrivate)
	if errors.Is(err, pgx.ErrNoRows) {
		return board.Board{}, ErrBoardNotFound
	}
	if err != nil {
		return board.Board{}, fmt.Errorf("store: get board: %w", err)
	}
	if name != nil {
		b.Name = *name
	}
	if owner != nil {
		b.OwnerID = *owner
	}
	return b, nil
}

func (s *PGStore) CreateBoard(ctx context.Context, b board.Board) (board.Board, error) {
	ctx, cancel := context.WithTimeout(ctx, stmtTimeout)
	defer cancel()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO boards (id, created_at, name, owner_id, is_private)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5)
		 ON CONFLICT (id) DO NOTHING`,
		b.ID, b.CreatedAt, b.Name, b.OwnerID, b.IsPrivate)
	if err != nil {
		return board.Board{}, fmt.Errorf("store: create board: %w", err)
	}
	// Read back so a lost insert race still returns the canonical row.
	return s.GetBoard(ctx, b.ID)
}

func (s *PGStore) DeleteBoard(ctx context.Context, id, ownerID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, stmtTimeout)
	defer cancel()
	// Events and the snapshot cascade; ownership is enforced by the
	// predicate rather than a separate read.
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM boards WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("store: delete board: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PGStore) UserBoards(ctx context.Context, ownerID string) ([]board.Board, error) {
	ctx, cancel := context.WithTimeout(ctx, stmtTimeout)
	defer cancel()
	rows, err := s.pool.Query(ctx,
		`SELECT id, created_at, name, owner_id, is_private FROM boards
		 WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("store: user boards: %w", err)
	}
	defer rows.Close()
	boards := make([]board.Board, 0, 8)
	for rows.Next() {
		var b board.Board
		var name, owner *string
		if err := rows.Scan(&b.ID, &b.CreatedAt, &name, &owner, &b.IsPrivate); err != nil {
			return nil, fmt.Errorf("store: user boards scan: %w", err)
		}
		if name != nil {
			b.Name = *name
		}
		if owner != nil {
			b.OwnerID = *owner
		}
		boards = append(boards, b)
	}
	return boards, rows.Err()
}

func (s *PGStore) MaxSeq(ctx context.Context, boardID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, stmtTimeout)
	defer cancel()
	var max int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM drawing_events WHERE board_id = $1`, boardID,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("store: max seq: %w", err)
	}
	return max, nil
}

func (s *PGStore) AppendEvent(ctx context.Context, ev board.DrawEvent) error {
	ctx, cancel := context.WithTimeout(ctx, stmtTimeout)
	defer cancel()
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("store: marshal event: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO drawing_events (board_id, seq, event) VALUES ($1, $2, $3)`,
		ev.BoardID, ev.Seq, data)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: board=%s seq=%d", ErrDuplicateSeq, ev.BoardID, ev.Seq)
		}
		return fmt.Errorf("store: append event: %w", err)
	}
	return nil
}

func (s *PGStore) Events(ctx context.Context, boardID string) ([]board.DrawEvent, error) {
	return s.eventsQuery(ctx, boardID, 0)
}

func (s *PGStore) EventsAfter(ctx context.Context, boardID string, seq int64) ([]board.DrawEvent, error) {
	return s.eventsQuery(ctx, boardID, seq)
}

func (s *PGStore) eventsQuery(ctx context.Context, boardID string, after int64) ([]board.DrawEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, stmtTimeout)
	defer cancel()
	rows, err := s.pool.Query(ctx,
		`SELECT event FROM drawing_events
		 WHERE board_id = $1 AND seq > $2 ORDER BY seq ASC`, boardID, after)
	if err != nil {
		return nil, fmt.Errorf("store: events: %w", err)
	}
	defer rows.Close()
	events := make([]board.DrawEvent, 0, 64)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("store: events scan: %w", err)
		}
		var ev board.DrawEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("store: events decode: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *PGStore) GetSnapshot(ctx context.Context, boardID string) (board.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, stmtTimeout)
	defer cancel()
	var snap board.Snapshot
	var imageB64 string
	err := s.pool.QueryRow(ctx,
		`SELECT board_id, seq, image_data, offset_x, offset_y, created_at
		 FROM board_snapshots WHERE board_id = $1`, boardID,
	).Scan(&snap.BoardID, &snap.Seq, &imageB64, &snap.OffsetX, &snap.OffsetY, &snap.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return board.Snapshot{}, ErrSnapshotNotFound
	}
	if err != nil {
		return board.Snapshot{}, fmt.Errorf("store: get snapshot: %w", err)
	}
	// image_data is stored as base64 PNG per the persisted layout.
	snap.Image, err = base64.StdEncoding.DecodeString(imageB64)
	if err != nil {
		return board.Snapshot{}, fmt.Errorf("store: decode snapshot image: %w", err)
	}
	return snap, nil
}

func (s *PGStore) SaveSnapshot(ctx context.Context, snap board.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, stmtTimeout)
	defer cancel()
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO board_snapshots (board_id, seq, image_data, offset_x, offset_y, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (board_id) DO UPDATE SET
		   seq = EXCLUDED.seq,
		   image_data = EXCLUDED.image_data,
		   offset_x = EXCLUDED.offset_x,
		   offset_y = EXCLUDED.offset_y,
		   created_at = EXCLUDED.created_at`,
		snap.BoardID, snap.Seq, base64.StdEncoding.EncodeToString(snap.Image),
		snap.OffsetX, snap.OffsetY, snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: save snapshot: %w", err)
	}
	return nil
}

func (s *PGStore) DeleteSnapshot(ctx context.Context, boardID string) error {
	ctx, cancel := context.WithTimeout(ctx, stmtTimeout)
	defer cancel()
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM board_snapshots WHERE board_id = $1`, boardID); err != nil {
		return fmt.Errorf("store: delete snapshot: %w", err)
	}
	return nil
}
