// Copyright © 2025 Slate contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/connection.go
// Summary: Per-socket read loop, frame dispatch and ordered outbound writer.
// Usage: The frontdoor hands each upgraded websocket to newConnection.serve.
// Notes: Exactly one goroutine writes to the socket. Deliver never blocks;
// a full outbound queue tears the connection down instead.

package server

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"slate/board"
	"slate/protocol"
)

const outboundQueueSize = 256

type connState int

const (
	stateNew connState = iota
	stateJoined
	stateClosed
)

// connection is one websocket session. It is stateNew until a HELLO is
// accepted, stateJoined afterwards, stateClosed once torn down.
type connection struct {
	ws  *websocket.Conn
	srv *Server
	lim *limiter

	outbound chan []byte
	quit     chan struct{}
	closing  sync.Once

	mu      sync.Mutex
	state   connState
	boardID string
	userID  string
}

func newConnection(ws *websocket.Conn, srv *Server) *connection {
	return &connection{
		ws:  ws,
		srv: srv,
		lim: newLimiter(
			srv.cfg.DrawRefillRate, srv.cfg.DrawBucketSize,
			srv.cfg.CursorRefillRate, srv.cfg.CursorBucketSize,
		),
		outbound: make(chan []byte, outboundQueueSize),
		quit:     make(chan struct{}),
	}
}

// Deliver enqueues a frame for the writer goroutine. A connection that
// cannot keep up loses its slot rather than stalling the room.
func (c *connection) Deliver(frame []byte) {
	select {
	case c.outbound <- frame:
	case <-c.quit:
	default:
		debugLog.Printf("connection: outbound queue full, dropping user=%s", c.currentUserID())
		go c.teardown()
	}
}

func (c *connection) currentUserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// send is Deliver for frames originated by this connection's own handlers.
func (c *connection) send(frame []byte) {
	c.Deliver(frame)
}

func (c *connection) sendError(code, message string) {
	c.send(protocol.EncodeError(code, message))
}

// serve runs the read loop until the peer goes away, then tears down.
func (c *connection) serve(ctx context.Context) {
	go c.writeLoop()
	defer c.teardown()

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				debugLog.Printf("connection: read: %v", err)
			}
			return
		}
		if done := c.handleFrame(ctx, raw); done {
			return
		}
	}
}

func (c *connection) writeLoop() {
	for {
		select {
		case <-c.quit:
			return
		case frame := <-c.outbound:
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				debugLog.Printf("connection: write: %v", err)
				go c.teardown()
				return
			}
		}
	}
}

// teardown closes the socket once and withdraws the session from its room,
// broadcasting USER_LEAVE when the presence actually went away.
func (c *connection) teardown() {
	c.closing.Do(func() {
		close(c.quit)
		_ = c.ws.Close()

		c.mu.Lock()
		wasJoined := c.state == stateJoined
		c.state = stateClosed
		c.mu.Unlock()

		if !wasJoined {
			return
		}
		boardID, userID, ok := c.srv.manager.Leave(c)
		if !ok || userID == "" {
			return
		}
		frame := protocol.MustEncode(protocol.MsgUserLeave, protocol.UserLeave{BoardID: boardID, UserID: userID})
		c.srv.broadcast(boardID, frame)
	})
}

// handleFrame dispatches one inbound frame. The returned bool requests
// connection shutdown (LEAVE_BOARD).
func (c *connection) handleFrame(ctx context.Context, raw []byte) bool {
	msg, err := protocol.Decode(raw)
	if err != nil {
		c.sendError(protocol.CodeInvalidJSON, "malformed frame")
		return false
	}

	switch msg.Type {
	case protocol.MsgHello:
		c.handleHello(ctx, msg.Payload)
	case protocol.MsgDrawEvent:
		c.handleDraw(ctx, msg.Payload)
	case protocol.MsgCursorMove:
		c.handleCursor(msg.Payload)
	case protocol.MsgPing:
		c.send(protocol.MustEncode(protocol.MsgPong, protocol.Pong{}))
	case protocol.MsgLeaveBoard:
		return true
	case protocol.MsgCreateBoard:
		c.handleCreateBoard(ctx, msg.Payload)
	default:
		c.sendError(protocol.CodeUnknownMessage, "unknown message type "+msg.Type)
	}
	return false
}

func (c *connection) joinedBoard() (boardID, userID string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateJoined {
		return "", "", false
	}
	return c.boardID, c.userID, true
}

func (c *connection) handleDraw(ctx context.Context, payload json.RawMessage) {
	boardID, userID, ok := c.joinedBoard()
	if !ok {
		c.sendError(protocol.CodeNotJoined, "HELLO required before DRAW_EVENT")
		return
	}
	if !c.lim.allowDraw(boardID, userID) {
		return
	}

	var in protocol.DrawEventIn
	if err := json.Unmarshal(payload, &in); err != nil || !in.Type.Valid() {
		c.sendError(protocol.CodeInvalidJSON, "invalid draw event")
		return
	}
	if err := board.ValidatePayload(in.Type, in.Payload); err != nil {
		c.sendError(protocol.CodeInvalidJSON, err.Error())
		return
	}

	// Room membership is read inside the publish callback, in the same
	// critical section that assigned the seq, so a connection that joined
	// before the append committed is never skipped.
	ev, compact, err := c.srv.sequencer.Sequence(ctx, boardID, userID, in.Type, in.Payload,
		func(ev board.DrawEvent) {
			frame := protocol.MustEncode(protocol.MsgDrawEvent, ev)
			for _, peer := range c.srv.manager.Connections(boardID) {
				peer.Deliver(frame)
			}
		})
	if err != nil {
		c.sendError(protocol.CodeDrawFailed, "event not persisted")
		return
	}
	if compact {
		c.srv.compactor.Schedule(boardID, ev.Seq)
	}
}

func (c *connection) handleCursor(payload json.RawMessage) {
	_, _, ok := c.joinedBoard()
	if !ok {
		c.sendError(protocol.CodeNotJoined, "HELLO required before CURSOR_MOVE")
		return
	}
	if !c.lim.allowCursor() {
		return
	}
	var move protocol.CursorMove
	if err := json.Unmarshal(payload, &move); err != nil {
		c.sendError(protocol.CodeInvalidJSON, "invalid cursor move")
		return
	}
	boardID, entry, ok := c.srv.manager.UpdateCursor(c, move.X, move.Y)
	if !ok {
		return
	}
	c.srv.manager.QueueCursor(boardID, entry)
}

func (c *connection) handleCreateBoard(ctx context.Context, payload json.RawMessage) {
	var req protocol.CreateBoard
	if err := json.Unmarshal(payload, &req); err != nil {
		c.sendError(protocol.CodeInvalidJSON, "invalid create board request")
		return
	}
	ownerID, err := c.srv.verifier.Verify(req.ClerkToken)
	if err != nil {
		c.sendError(protocol.CodeUnauthorized, "board creation requires a verified user")
		return
	}

	b := board.Board{
		ID:        uuid.NewString(),
		Name:      req.Name,
		OwnerID:   ownerID,
		IsPrivate: req.IsPrivate,
	}
	created, err := c.srv.store.CreateBoard(ctx, b)
	if err != nil {
		c.sendError(protocol.CodeCreateFailed, "board not created")
		return
	}
	if err := c.srv.sequencer.Init(ctx, created.ID); err != nil {
		debugLog.Printf("connection: init sequencer for new board %s: %v", created.ID, err)
	}
	c.send(protocol.MustEncode(protocol.MsgBoardCreated, protocol.BoardCreated{
		BoardID:   created.ID,
		Name:      created.Name,
		IsPrivate: created.IsPrivate,
	}))
}

// accessAllowed applies board visibility: public boards admit anyone,
// private boards only their owner.
func accessAllowed(b board.Board, verifiedUserID string) bool {
	if !b.IsPrivate {
		return true
	}
	return verifiedUserID != "" && verifiedUserID == b.OwnerID
}
