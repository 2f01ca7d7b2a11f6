// Copyright © 2025 Slate contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/store/store_test.go
// Summary: Contract tests for the Store interface.
// Usage: Runs against MemStore always and against Postgres when SLATE_TEST_DATABASE_URL is set.
// Notes: The contract is what the sequencer and handshake rely on, not SQL details.

package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"slate/board"
)

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	stores := map[string]Store{"mem": NewMemStore()}
	if url := os.Getenv("SLATE_TEST_DATABASE_URL"); url != "" {
		pg, err := Open(context.Background(), url)
		if err != nil {
			t.Fatalf("open postgres: %v", err)
		}
		t.Cleanup(pg.Close)
		stores["pg"] = pg
	}
	return stores
}

func TestBoardLifecycle(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id := "board-" + name + "-lifecycle"

			if _, err := s.GetBoard(ctx, id); !errors.Is(err, ErrBoardNotFound) {
				t.Fatalf("expected ErrBoardNotFound, got %v", err)
			}

			created, err := s.CreateBoard(ctx, board.Board{ID: id, Name: "demo", OwnerID: "u1", IsPrivate: true})
			if err != nil {
				t.Fatalf("create failed: %v", err)
			}
			if created.ID != id || !created.IsPrivate || created.OwnerID != "u1" {
				t.Fatalf("unexpected board: %+v", created)
			}

			// Create is idempotent on id collision.
			again, err := s.CreateBoard(ctx, board.Board{ID: id, Name: "other"})
			if err != nil {
				t.Fatalf("second create failed: %v", err)
			}
			if again.Name != "demo" {
				t.Fatalf("expected first create to win, got %+v", again)
			}

			// Wrong owner cannot delete.
			if ok, err := s.DeleteBoard(ctx, id, "u2"); err != nil || ok {
				t.Fatalf("expected delete denied, got ok=%v err=%v", ok, err)
			}
			if ok, err := s.DeleteBoard(ctx, id, "u1"); err != nil || !ok {
				t.Fatalf("expected delete allowed, got ok=%v err=%v", ok, err)
			}
			if _, err := s.GetBoard(ctx, id); !errors.Is(err, ErrBoardNotFound) {
				t.Fatalf("board should be gone, got %v", err)
			}
		})
	}
}

func TestUserBoardsOrdering(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			owner := "owner-" + name
			base := time.Now().UTC().Add(-time.Hour)
			for i, id := range []string{"ub-a-" + name, "ub-b-" + name, "ub-c-" + name} {
				_, err := s.CreateBoard(ctx, board.Board{
					ID: id, OwnerID: owner, CreatedAt: base.Add(time.Duration(i) * time.Minute),
				})
				if err != nil {
					t.Fatalf("create failed: %v", err)
				}
			}
			boards, err := s.UserBoards(ctx, owner)
			if err != nil {
				t.Fatalf("user boards failed: %v", err)
			}
			if len(boards) != 3 {
				t.Fatalf("expected 3 boards, got %d", len(boards))
			}
			for i := 1; i < len(boards); i++ {
				if boards[i].CreatedAt.After(boards[i-1].CreatedAt) {
					t.Fatalf("boards not in createdAt descending order: %+v", boards)
				}
			}
		})
	}
}

func TestAppendAndReplay(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id := "board-" + name + "-events"
			if _, err := s.CreateBoard(ctx, board.Board{ID: id}); err != nil {
				t.Fatalf("create failed: %v", err)
			}

			if max, err := s.MaxSeq(ctx, id); err != nil || max != 0 {
				t.Fatalf("expected empty board maxSeq 0, got %d err=%v", max, err)
			}

			for seq := int64(1); seq <= 5; seq++ {
				ev := board.DrawEvent{BoardID: id, Seq: seq, Type: board.EventClear, UserID: "u1", Timestamp: seq}
				if err := s.AppendEvent(ctx, ev); err != nil {
					t.Fatalf("append seq %d failed: %v", seq, err)
				}
			}

			err := s.AppendEvent(ctx, board.DrawEvent{BoardID: id, Seq: 3, Type: board.EventClear})
			if !errors.Is(err, ErrDuplicateSeq) {
				t.Fatalf("expected ErrDuplicateSeq, got %v", err)
			}

			if max, err := s.MaxSeq(ctx, id); err != nil || max != 5 {
				t.Fatalf("expected maxSeq 5, got %d err=%v", max, err)
			}

			evs, err := s.Events(ctx, id)
			if err != nil || len(evs) != 5 {
				t.Fatalf("expected 5 events, got %d err=%v", len(evs), err)
			}
			for i, ev := range evs {
				if ev.Seq != int64(i+1) {
					t.Fatalf("events out of order: %+v", evs)
				}
			}

			tail, err := s.EventsAfter(ctx, id, 3)
			if err != nil || len(tail) != 2 || tail[0].Seq != 4 || tail[1].Seq != 5 {
				t.Fatalf("unexpected tail: %+v err=%v", tail, err)
			}
		})
	}
}

func TestSnapshotUpsert(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id := "board-" + name + "-snap"
			if _, err := s.CreateBoard(ctx, board.Board{ID: id}); err != nil {
				t.Fatalf("create failed: %v", err)
			}

			if _, err := s.GetSnapshot(ctx, id); !errors.Is(err, ErrSnapshotNotFound) {
				t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
			}

			first := board.Snapshot{BoardID: id, Seq: 100, Image: []byte{0x89, 0x50, 0x4e, 0x47}, OffsetX: -20, OffsetY: 30}
			if err := s.SaveSnapshot(ctx, first); err != nil {
				t.Fatalf("save failed: %v", err)
			}
			second := board.Snapshot{BoardID: id, Seq: 200, Image: []byte{0x89, 0x50}, OffsetX: 5, OffsetY: -5}
			if err := s.SaveSnapshot(ctx, second); err != nil {
				t.Fatalf("upsert failed: %v", err)
			}

			got, err := s.GetSnapshot(ctx, id)
			if err != nil {
				t.Fatalf("get failed: %v", err)
			}
			if got.Seq != 200 || got.OffsetX != 5 || got.OffsetY != -5 || len(got.Image) != 2 {
				t.Fatalf("upsert not applied: %+v", got)
			}

			if err := s.DeleteSnapshot(ctx, id); err != nil {
				t.Fatalf("delete failed: %v", err)
			}
			if _, err := s.GetSnapshot(ctx, id); !errors.Is(err, ErrSnapshotNotFound) {
				t.Fatalf("snapshot should be gone, got %v", err)
			}
		})
	}
}
