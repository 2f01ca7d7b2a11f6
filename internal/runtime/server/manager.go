// Copyright © 2025 Slate contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/manager.go
// Summary: Room membership, presence tracking and coalesced cursor batching.
// Usage: The connection layer joins/leaves here; the cursor loop broadcasts batches.
// Notes: Presence lives only in memory. Cursor buffers use their own lock so
// batching never serializes with event sequencing or membership changes.

package server

import (
	"sort"
	"sync"
	"time"

	"slate/board"
	"slate/internal/identity"
	"slate/protocol"
)

// Client is the transport half the manager fans out to. Deliver must not
// block; implementations enqueue and handle slow consumers themselves.
type Client interface {
	Deliver(frame []byte)
}

type membership struct {
	boardID string
	userID  string
}

type presenceEntry struct {
	presence board.Presence
	owner    Client
}

type cursorEntry struct {
	userID      string
	displayName string
	avatarColor string
	x, y        float64
}

// Manager tracks which connections are in which board room and the live
// presence per (board, user). A room is created lazily on first join and
// torn down when its last connection leaves.
type Manager struct {
	mu        sync.RWMutex
	rooms     map[string]map[Client]struct{}
	byClient  map[Client]membership
	presences map[string]map[string]presenceEntry

	cursorMu sync.Mutex
	cursors  map[string]map[string]cursorEntry

	interval time.Duration
	quit     chan struct{}
	wg       sync.WaitGroup
	started  bool
}

// NewManager builds a Manager with the given cursor batch interval.
func NewManager(batchInterval time.Duration) *Manager {
	if batchInterval <= 0 {
		batchInterval = 50 * time.Millisecond
	}
	return &Manager{
		rooms:     make(map[string]map[Client]struct{}),
		byClient:  make(map[Client]membership),
		presences: make(map[string]map[string]presenceEntry),
		cursors:   make(map[string]map[string]cursorEntry),
		interval:  batchInterval,
		quit:      make(chan struct{}),
	}
}

// Start launches the cursor batch ticker.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.cursorLoop()
}

// Stop terminates the ticker and waits for it to drain.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	m.mu.Unlock()

	close(m.quit)
	m.wg.Wait()
}

// Join places the connection in the board's room and installs (or
// replaces) the user's presence. The previous connection of a rejoining
// user stays in the room until its own leave fires.
func (m *Manager) Join(c Client, boardID string, id identity.Identity) board.Presence {
	p := board.Presence{
		BoardID:     boardID,
		UserID:      id.UserID,
		DisplayName: id.DisplayName,
		IsAnonymous: id.IsAnonymous,
		AvatarColor: id.AvatarColor,
		ConnectedAt: time.Now().UnixMilli(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[boardID]
	if !ok {
		room = make(map[Client]struct{})
		m.rooms[boardID] = room
		debugLog.Printf("manager: room %s created", boardID)
	}
	room[c] = struct{}{}
	m.byClient[c] = membership{boardID: boardID, userID: id.UserID}

	users, ok := m.presences[boardID]
	if !ok {
		users = make(map[string]presenceEntry)
		m.presences[boardID] = users
	}
	users[id.UserID] = presenceEntry{presence: p, owner: c}
	return p
}

// Leave removes the connection from its room. The returned userID is
// non-empty only when the user's presence actually went away; a presence
// superseded by a newer connection is left untouched and produces no
// USER_LEAVE downstream.
func (m *Manager) Leave(c Client) (boardID, userID string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, found := m.byClient[c]
	if !found {
		return "", "", false
	}
	delete(m.byClient, c)

	if room, ok := m.rooms[mem.boardID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(m.rooms, mem.boardID)
			delete(m.presences, mem.boardID)
			m.cursorMu.Lock()
			delete(m.cursors, mem.boardID)
			m.cursorMu.Unlock()
			debugLog.Printf("manager: room %s torn down", mem.boardID)
			return mem.boardID, mem.userID, true
		}
	}

	if users, ok := m.presences[mem.boardID]; ok {
		if entry, ok := users[mem.userID]; ok && entry.owner == c {
			delete(users, mem.userID)
			return mem.boardID, mem.userID, true
		}
	}
	return mem.boardID, "", true
}

// UpdateCursor records the connection's latest pointer position on its
// presence entry and returns what the batcher needs to queue it.
func (m *Manager) UpdateCursor(c Client, x, y float64) (string, cursorEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, found := m.byClient[c]
	if !found {
		return "", cursorEntry{}, false
	}
	users, ok := m.presences[mem.boardID]
	if !ok {
		return "", cursorEntry{}, false
	}
	entry, ok := users[mem.userID]
	if !ok {
		return "", cursorEntry{}, false
	}
	entry.presence.Cursor = &board.Cursor{X: x, Y: y, T: time.Now().UnixMilli()}
	users[mem.userID] = entry

	return mem.boardID, cursorEntry{
		userID:      mem.userID,
		displayName: entry.presence.DisplayName,
		avatarColor: entry.presence.AvatarColor,
		x:           x,
		y:           y,
	}, true
}

// QueueCursor coalesces a cursor position into the board's pending batch.
// Later positions for the same user within one tick win.
func (m *Manager) QueueCursor(boardID string, entry cursorEntry) {
	m.cursorMu.Lock()
	defer m.cursorMu.Unlock()
	pending, ok := m.cursors[boardID]
	if !ok {
		pending = make(map[string]cursorEntry)
		m.cursors[boardID] = pending
	}
	pending[entry.userID] = entry
}

// Connections returns a snapshot of the room's connection set.
func (m *Manager) Connections(boardID string) []Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room := m.rooms[boardID]
	out := make([]Client, 0, len(room))
	for c := range room {
		out = append(out, c)
	}
	return out
}

// Presences returns the room's live presence list, oldest join first.
func (m *Manager) Presences(boardID string) []board.Presence {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := m.presences[boardID]
	out := make([]board.Presence, 0, len(users))
	for _, entry := range users {
		out = append(out, entry.presence)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt != out[j].ConnectedAt {
			return out[i].ConnectedAt < out[j].ConnectedAt
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// ActiveRooms reports how many rooms currently hold connections.
func (m *Manager) ActiveRooms() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

func (m *Manager) cursorLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.quit:
			return
		case <-ticker.C:
			m.flushCursors()
		}
	}
}

// flushCursors emits one CURSOR_BATCH per board with pending entries and
// clears the buffer. Delivery is best-effort and lossy by design.
func (m *Manager) flushCursors() {
	m.cursorMu.Lock()
	pending := m.cursors
	m.cursors = make(map[string]map[string]cursorEntry)
	m.cursorMu.Unlock()

	for boardID, entries := range pending {
		if len(entries) == 0 {
			continue
		}
		batch := protocol.CursorBatch{BoardID: boardID, Cursors: make([]protocol.CursorState, 0, len(entries))}
		for _, e := range entries {
			batch.Cursors = append(batch.Cursors, protocol.CursorState{
				UserID:      e.userID,
				DisplayName: e.displayName,
				AvatarColor: e.avatarColor,
				X:           e.x,
				Y:           e.y,
			})
		}
		sort.Slice(batch.Cursors, func(i, j int) bool { return batch.Cursors[i].UserID < batch.Cursors[j].UserID })
		frame := protocol.MustEncode(protocol.MsgCursorBatch, batch)
		for _, c := range m.Connections(boardID) {
			c.Deliver(frame)
		}
	}
}
