package protocol

import (
	"encoding/json"

	"slate/board"
)

// Message type discriminators. Each text frame carries exactly one JSON
// object with a "type" field and an optional "payload".
const (
	// Client → server.
	MsgHello       = "HELLO"
	MsgDrawEvent   = "DRAW_EVENT"
	MsgCursorMove  = "CURSOR_MOVE"
	MsgPing        = "PING"
	MsgLeaveBoard  = "LEAVE_BOARD"
	MsgCreateBoard = "CREATE_BOARD"

	// Server → client.
	MsgWelcome      = "WELCOME"
	MsgSyncSnapshot = "SYNC_SNAPSHOT"
	MsgCursorBatch  = "CURSOR_BATCH"
	MsgUserList     = "USER_LIST"
	MsgUserJoin     = "USER_JOIN"
	MsgUserLeave    = "USER_LEAVE"
	MsgBoardCreated = "BOARD_CREATED"
	MsgAccessDenied = "ACCESS_DENIED"
	MsgError        = "ERROR"
	MsgPong         = "PONG"
)

// Error codes carried by ERROR frames.
const (
	CodeInvalidJSON    = "INVALID_JSON"
	CodeUnknownMessage = "UNKNOWN_MESSAGE"
	CodeNotJoined      = "NOT_JOINED"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeJoinFailed     = "JOIN_FAILED"
	CodeDrawFailed     = "DRAW_FAILED"
	CodeCreateFailed   = "CREATE_FAILED"
)

// Message is the decoded frame envelope. Payload is left raw for the
// handler selected by Type.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Hello opens a session on a board. Exactly one is accepted per connection.
type Hello struct {
	BoardID       string `json:"boardId"`
	AuthToken     string `json:"authToken,omitempty"`
	ClientID      string `json:"clientId,omitempty"`
	DisplayName   string `json:"displayName,omitempty"`
	IsAnonymous   bool   `json:"isAnonymous"`
	ResumeFromSeq int64  `json:"resumeFromSeq,omitempty"`
}

// Welcome confirms the resolved identity for a joined connection.
type Welcome struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	AvatarColor string `json:"avatarColor"`
}

// SnapshotRef carries a rasterized board prefix inside SYNC_SNAPSHOT.
// ImageData is a base64 PNG.
type SnapshotRef struct {
	ImageData string  `json:"imageData"`
	Seq       int64   `json:"seq"`
	OffsetX   float64 `json:"offsetX"`
	OffsetY   float64 `json:"offsetY"`
}

// SyncSnapshot is the initial sync delivered after WELCOME. Exactly one of
// the three policies applies: delta (IsDelta), snapshot plus tail, or the
// full log. LastSeq always reflects the board head so clients can resume.
type SyncSnapshot struct {
	BoardID  string            `json:"boardId"`
	Events   []board.DrawEvent `json:"events"`
	LastSeq  int64             `json:"lastSeq"`
	IsDelta  bool              `json:"isDelta"`
	Snapshot *SnapshotRef      `json:"snapshot,omitempty"`
}

// DrawEventIn is the client-side draw submission; the server assigns seq,
// userId and timestamp before fan-out.
type DrawEventIn struct {
	Type    board.EventType `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CursorMove reports a pointer position. Lossy; positions are coalesced
// into CURSOR_BATCH frames on a timer.
type CursorMove struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// CursorState is one user's latest position within a batch tick.
type CursorState struct {
	UserID      string  `json:"userId"`
	DisplayName string  `json:"displayName"`
	AvatarColor string  `json:"avatarColor,omitempty"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
}

// CursorBatch is the periodic coalesced cursor broadcast.
type CursorBatch struct {
	BoardID string        `json:"boardId"`
	Cursors []CursorState `json:"cursors"`
}

// UserList enumerates current room presences for a newly joined connection.
type UserList struct {
	BoardID string           `json:"boardId"`
	Users   []board.Presence `json:"users"`
}

// UserJoin announces a new room member to existing connections.
type UserJoin struct {
	BoardID string         `json:"boardId"`
	User    board.Presence `json:"user"`
}

// UserLeave announces a departed room member.
type UserLeave struct {
	BoardID string `json:"boardId"`
	UserID  string `json:"userId"`
}

// CreateBoard requests a fresh board over the socket. Requires a verified
// token.
type CreateBoard struct {
	Name       string `json:"name,omitempty"`
	IsPrivate  bool   `json:"isPrivate"`
	ClerkToken string `json:"clerkToken"`
}

// BoardCreated acknowledges CREATE_BOARD.
type BoardCreated struct {
	BoardID   string `json:"boardId"`
	Name      string `json:"name,omitempty"`
	IsPrivate bool   `json:"isPrivate"`
}

// AccessDenied rejects a HELLO against a private board.
type AccessDenied struct {
	BoardID string `json:"boardId"`
	Reason  string `json:"reason"`
}

// ErrorMsg reports a recoverable protocol-level failure. The connection
// stays open.
type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Pong answers PING.
type Pong struct{}
