// Copyright © 2025 Slate contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/handshake.go
// Summary: HELLO handling: access check, identity resolution and initial sync.
// Usage: Invoked from the connection dispatch table.
// Notes: Sync frames are pushed onto the outbound queue before the join is
// announced, so the new member never sees its own USER_JOIN.

package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"

	"slate/board"
	"slate/internal/identity"
	"slate/internal/store"
	"slate/protocol"
)

func (c *connection) handleHello(ctx context.Context, payload json.RawMessage) {
	c.mu.Lock()
	if c.state != stateNew {
		c.mu.Unlock()
		c.sendError(protocol.CodeJoinFailed, "already joined")
		return
	}
	c.mu.Unlock()

	var hello protocol.Hello
	if err := json.Unmarshal(payload, &hello); err != nil || hello.BoardID == "" {
		c.sendError(protocol.CodeInvalidJSON, "invalid hello")
		return
	}

	verifiedUserID, err := c.srv.verifier.Verify(hello.AuthToken)
	if err != nil && !errors.Is(err, identity.ErrNoVerifiedUser) {
		c.sendError(protocol.CodeJoinFailed, "token verification failed")
		return
	}

	b, err := c.srv.store.GetBoard(ctx, hello.BoardID)
	if errors.Is(err, store.ErrBoardNotFound) {
		// First visitor creates the board implicitly: public, unowned.
		b, err = c.srv.store.CreateBoard(ctx, board.Board{ID: hello.BoardID})
	}
	if err != nil {
		c.sendError(protocol.CodeJoinFailed, "board unavailable")
		return
	}

	if !accessAllowed(b, verifiedUserID) {
		c.send(protocol.MustEncode(protocol.MsgAccessDenied, protocol.AccessDenied{
			BoardID: b.ID,
			Reason:  "private board",
		}))
		return
	}

	if err := c.srv.sequencer.Init(ctx, b.ID); err != nil {
		c.sendError(protocol.CodeJoinFailed, "board unavailable")
		return
	}

	id := identity.Resolve(verifiedUserID, hello.ClientID, hello.DisplayName, hello.IsAnonymous)

	// Join before reading the sync state. Once the connection is in the
	// room, any event sequenced from here on reaches it through fan-out,
	// so the sync read and the live stream together cover every seq.
	presence := c.srv.manager.Join(c, b.ID, id)
	c.mu.Lock()
	c.state = stateJoined
	c.boardID = b.ID
	c.userID = id.UserID
	c.mu.Unlock()

	sync, err := c.buildSync(ctx, b.ID, hello.ResumeFromSeq)
	if err != nil {
		c.srv.manager.Leave(c)
		c.mu.Lock()
		c.state = stateNew
		c.boardID = ""
		c.userID = ""
		c.mu.Unlock()
		c.sendError(protocol.CodeJoinFailed, "sync failed")
		return
	}

	c.send(protocol.MustEncode(protocol.MsgWelcome, protocol.Welcome{
		UserID:      id.UserID,
		DisplayName: id.DisplayName,
		AvatarColor: id.AvatarColor,
	}))
	c.send(protocol.MustEncode(protocol.MsgSyncSnapshot, sync))
	c.send(protocol.MustEncode(protocol.MsgUserList, protocol.UserList{
		BoardID: b.ID,
		Users:   c.srv.manager.Presences(b.ID),
	}))

	joinFrame := protocol.MustEncode(protocol.MsgUserJoin, protocol.UserJoin{BoardID: b.ID, User: presence})
	for _, peer := range c.srv.manager.Connections(b.ID) {
		if peer == Client(c) {
			continue
		}
		peer.Deliver(joinFrame)
	}
	debugLog.Printf("handshake: user %s joined board %s", id.UserID, b.ID)
}

// buildSync picks the initial sync policy: a delta when the client resumes
// from a known seq, otherwise snapshot plus tail when a snapshot exists,
// otherwise the full log.
func (c *connection) buildSync(ctx context.Context, boardID string, resumeFromSeq int64) (protocol.SyncSnapshot, error) {
	lastSeq, err := c.srv.store.MaxSeq(ctx, boardID)
	if err != nil {
		return protocol.SyncSnapshot{}, err
	}
	sync := protocol.SyncSnapshot{BoardID: boardID, LastSeq: lastSeq, Events: []board.DrawEvent{}}

	if resumeFromSeq > 0 {
		events, err := c.srv.store.EventsAfter(ctx, boardID, resumeFromSeq)
		if err != nil {
			return protocol.SyncSnapshot{}, err
		}
		sync.Events = events
		sync.IsDelta = true
		return sync, nil
	}

	snap, err := c.srv.store.GetSnapshot(ctx, boardID)
	switch {
	case err == nil:
		events, err := c.srv.store.EventsAfter(ctx, boardID, snap.Seq)
		if err != nil {
			return protocol.SyncSnapshot{}, err
		}
		sync.Events = events
		sync.Snapshot = &protocol.SnapshotRef{
			ImageData: base64.StdEncoding.EncodeToString(snap.Image),
			Seq:       snap.Seq,
			OffsetX:   snap.OffsetX,
			OffsetY:   snap.OffsetY,
		}
		return sync, nil
	case errors.Is(err, store.ErrSnapshotNotFound):
		events, err := c.srv.store.Events(ctx, boardID)
		if err != nil {
			return protocol.SyncSnapshot{}, err
		}
		sync.Events = events
		return sync, nil
	default:
		return protocol.SyncSnapshot{}, err
	}
}
