// Copyright © 2025 Slate contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: board/types.go
// Summary: Core domain types shared by the store, protocol and renderer.
// Usage: Imported by every layer that handles boards, events or presence.
// Notes: DrawEvent payloads stay as raw JSON on this type; payload.go decodes them.

package board

import (
	"encoding/json"
	"time"
)

// Board is the unit of fan-out and ordering. Immutable after creation
// except for the name; deletion cascades to events and the snapshot.
type Board struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	OwnerID   string    `json:"ownerId,omitempty"`
	IsPrivate bool      `json:"isPrivate"`
	CreatedAt time.Time `json:"createdAt"`
}

// EventType discriminates the draw-event payload union.
type EventType string

const (
	EventStroke EventType = "stroke"
	EventShape  EventType = "shape"
	EventText   EventType = "text"
	EventDelete EventType = "delete"
	EventClear  EventType = "clear"
)

// Valid reports whether t names a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventStroke, EventShape, EventText, EventDelete, EventClear:
		return true
	}
	return false
}

// DrawEvent is an immutable, server-ordered mutation of a board's canvas.
// Seq is strictly increasing per board with no gaps; it is the only
// canonical order. Timestamp is server wall-clock milliseconds and is not
// guaranteed monotonic under clock adjustment.
type DrawEvent struct {
	BoardID   string          `json:"boardId"`
	Seq       int64           `json:"seq"`
	Type      EventType       `json:"type"`
	UserID    string          `json:"userId"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Snapshot is a rasterized prefix of a board's history pinned at Seq.
// Rendering Image at world coordinates (OffsetX, OffsetY) and replaying
// events with seq > Seq reproduces a full replay.
type Snapshot struct {
	BoardID   string
	Seq       int64
	Image     []byte
	OffsetX   float64
	OffsetY   float64
	CreatedAt time.Time
}

// Cursor is the last reported pointer position for a presence entry.
type Cursor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	T int64   `json:"t"`
}

// Presence is the ephemeral per-user state within a room. One record per
// (boardId, userId); the most recent connection wins.
type Presence struct {
	BoardID     string  `json:"boardId"`
	UserID      string  `json:"userId"`
	DisplayName string  `json:"displayName"`
	IsAnonymous bool    `json:"isAnonymous"`
	AvatarColor string  `json:"avatarColor"`
	Cursor      *Cursor `json:"cursor,omitempty"`
	ConnectedAt int64   `json:"connectedAt"`
}
