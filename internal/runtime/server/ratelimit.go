// Copyright © 2025 Slate contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/ratelimit.go
// Summary: Per-connection token buckets for draw and cursor traffic.
// Usage: Every connection gets its own limiter pair from newLimiter.
// Notes: Draw drops are logged (throttled); cursor drops are silent, the
// data is lossy anyway.

package server

import (
	"time"

	"golang.org/x/time/rate"
)

var dropLog = newThrottledLogger(5 * time.Second)

// limiter bundles the two token buckets one connection carries. Draw
// traffic is precious and refused loudly; cursor traffic is shed quietly.
type limiter struct {
	draw   *rate.Limiter
	cursor *rate.Limiter
}

func newLimiter(drawRefill float64, drawBucket int, cursorRefill float64, cursorBucket int) *limiter {
	return &limiter{
		draw:   rate.NewLimiter(rate.Limit(drawRefill), drawBucket),
		cursor: rate.NewLimiter(rate.Limit(cursorRefill), cursorBucket),
	}
}

// allowDraw consumes one draw token. A refused draw means the client is
// misbehaving or retrying a burst; the event is dropped, not queued.
func (l *limiter) allowDraw(boardID, userID string) bool {
	if l.draw.Allow() {
		return true
	}
	dropLog.Printf("ratelimit: draw dropped board=%s user=%s", boardID, userID)
	return false
}

// allowCursor consumes one cursor token.
func (l *limiter) allowCursor() bool {
	return l.cursor.Allow()
}
