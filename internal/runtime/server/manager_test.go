// Copyright © 2025 Slate contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/manager_test.go
// Summary: Exercises room membership, presence replacement and cursor batching.
// Usage: Executed during `go test` to guard against regressions.
// Notes: Uses a fake Client that records delivered frames.

package server

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"slate/internal/identity"
	"slate/protocol"
)

// fakeClient records frames delivered to it.
type fakeClient struct {
	mu     sync.Mutex
	frames [][]byte
}

func (f *fakeClient) Deliver(frame []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
}

func (f *fakeClient) delivered() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.frames))
	copy(out, f.frames)
	return out
}

func testIdentity(userID string) identity.Identity {
	return identity.Identity{
		UserID:      userID,
		DisplayName: "User " + userID,
		AvatarColor: "#112233",
	}
}

func TestManagerJoinLeave(t *testing.T) {
	m := NewManager(time.Hour) // ticker never fires in this test
	c1 := &fakeClient{}
	c2 := &fakeClient{}

	m.Join(c1, "b1", testIdentity("u1"))
	m.Join(c2, "b1", testIdentity("u2"))

	if got := len(m.Connections("b1")); got != 2 {
		t.Fatalf("expected 2 connections, got %d", got)
	}
	if got := len(m.Presences("b1")); got != 2 {
		t.Fatalf("expected 2 presences, got %d", got)
	}

	boardID, userID, ok := m.Leave(c1)
	if !ok || boardID != "b1" || userID != "u1" {
		t.Fatalf("unexpected leave result: %q %q %v", boardID, userID, ok)
	}
	if got := len(m.Presences("b1")); got != 1 {
		t.Fatalf("expected 1 presence after leave, got %d", got)
	}

	// Last member out tears the room down.
	if _, _, ok := m.Leave(c2); !ok {
		t.Fatal("second leave should succeed")
	}
	if m.ActiveRooms() != 0 {
		t.Fatalf("expected no active rooms, got %d", m.ActiveRooms())
	}
}

func TestManagerLeaveUnknownClient(t *testing.T) {
	m := NewManager(time.Hour)
	if _, _, ok := m.Leave(&fakeClient{}); ok {
		t.Fatal("leave of unknown client must report not-found")
	}
}

func TestManagerRejoinReplacesPresenceWithoutLeave(t *testing.T) {
	m := NewManager(time.Hour)
	old := &fakeClient{}
	fresh := &fakeClient{}

	m.Join(old, "b1", testIdentity("u1"))
	m.Join(fresh, "b1", testIdentity("u1"))

	if got := len(m.Presences("b1")); got != 1 {
		t.Fatalf("rejoin must not duplicate presence, got %d", got)
	}

	// The stale connection's leave must not announce a departure: the
	// presence now belongs to the fresh connection.
	_, userID, ok := m.Leave(old)
	if !ok {
		t.Fatal("stale leave should still detach the connection")
	}
	if userID != "" {
		t.Fatalf("stale leave must not report a departed user, got %q", userID)
	}
	if got := len(m.Presences("b1")); got != 1 {
		t.Fatalf("presence lost on stale leave, got %d", got)
	}
}

func TestManagerCursorCoalescing(t *testing.T) {
	m := NewManager(10 * time.Millisecond)
	c1 := &fakeClient{}
	c2 := &fakeClient{}
	m.Join(c1, "b1", testIdentity("u1"))
	m.Join(c2, "b1", testIdentity("u2"))

	// Several rapid positions; only the last per user survives the tick.
	for i := 0; i < 5; i++ {
		boardID, entry, ok := m.UpdateCursor(c1, float64(i), float64(i*2))
		if !ok {
			t.Fatal("update cursor failed")
		}
		m.QueueCursor(boardID, entry)
	}

	m.flushCursors()

	frames := c2.delivered()
	if len(frames) != 1 {
		t.Fatalf("expected exactly one batch, got %d", len(frames))
	}
	msg, err := protocol.Decode(frames[0])
	if err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	if msg.Type != protocol.MsgCursorBatch {
		t.Fatalf("expected CURSOR_BATCH, got %s", msg.Type)
	}
	var batch protocol.CursorBatch
	if err := json.Unmarshal(msg.Payload, &batch); err != nil {
		t.Fatalf("unmarshal batch: %v", err)
	}
	if len(batch.Cursors) != 1 {
		t.Fatalf("expected one coalesced cursor, got %d", len(batch.Cursors))
	}
	if batch.Cursors[0].X != 4 || batch.Cursors[0].Y != 8 {
		t.Fatalf("expected last position (4,8), got (%v,%v)", batch.Cursors[0].X, batch.Cursors[0].Y)
	}

	// A flush with nothing pending emits nothing.
	m.flushCursors()
	if got := len(c2.delivered()); got != 1 {
		t.Fatalf("empty flush must not emit, got %d frames", got)
	}
}

func TestManagerCursorBatchReachesSender(t *testing.T) {
	m := NewManager(time.Hour)
	c1 := &fakeClient{}
	m.Join(c1, "b1", testIdentity("u1"))

	boardID, entry, ok := m.UpdateCursor(c1, 3, 4)
	if !ok {
		t.Fatal("update cursor failed")
	}
	m.QueueCursor(boardID, entry)
	m.flushCursors()

	if got := len(c1.delivered()); got != 1 {
		t.Fatalf("batch should reach every room member including the sender, got %d", got)
	}
}

func TestManagerPresenceOrdering(t *testing.T) {
	m := NewManager(time.Hour)
	first := &fakeClient{}
	second := &fakeClient{}
	m.Join(first, "b1", testIdentity("a"))
	time.Sleep(2 * time.Millisecond)
	m.Join(second, "b1", testIdentity("b"))

	users := m.Presences("b1")
	if len(users) != 2 {
		t.Fatalf("expected 2 presences, got %d", len(users))
	}
	if users[0].UserID != "a" || users[1].UserID != "b" {
		t.Fatalf("presences not in join order: %s, %s", users[0].UserID, users[1].UserID)
	}
}
