// Copyright © 2025 Slate contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: board/payload_test.go
// Summary: Exercises payload decode/validate rules to keep the wire schema stable.
// Usage: Executed during `go test` to guard against regressions.
// Notes: Covers defaults and rejection cases for every event type.

package board

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeStrokePayload(t *testing.T) {
	raw := json.RawMessage(`{"strokeId":"s1","color":"#ff0000","width":3,"points":[{"x":1,"y":2},{"x":3,"y":4}]}`)
	got, err := DecodePayload(EventStroke, raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	stroke := got.(*StrokePayload)
	if stroke.StrokeID != "s1" || len(stroke.Points) != 2 || stroke.Width != 3 {
		t.Fatalf("unexpected stroke: %+v", stroke)
	}
}

func TestDecodeStrokeRejectsEmptyPoints(t *testing.T) {
	raw := json.RawMessage(`{"strokeId":"s1","color":"#fff","width":3,"points":[]}`)
	if _, err := DecodePayload(EventStroke, raw); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestDecodeStrokeDefaultsWidth(t *testing.T) {
	raw := json.RawMessage(`{"strokeId":"s1","color":"#fff","points":[{"x":0,"y":0}]}`)
	got, err := DecodePayload(EventStroke, raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.(*StrokePayload).Width != 1 {
		t.Fatalf("expected width default 1, got %v", got.(*StrokePayload).Width)
	}
}

func TestDecodeShapePayload(t *testing.T) {
	for _, shape := range []ShapeType{ShapeRectangle, ShapeEllipse, ShapeLine} {
		raw := json.RawMessage(`{"strokeId":"s1","shapeType":"` + string(shape) + `","start":{"x":0,"y":0},"end":{"x":10,"y":10},"color":"#000","width":2}`)
		if _, err := DecodePayload(EventShape, raw); err != nil {
			t.Fatalf("decode %s failed: %v", shape, err)
		}
	}
}

func TestDecodeShapeRejectsUnknownType(t *testing.T) {
	raw := json.RawMessage(`{"strokeId":"s1","shapeType":"triangle","start":{"x":0,"y":0},"end":{"x":1,"y":1},"color":"#000","width":2}`)
	if _, err := DecodePayload(EventShape, raw); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestDecodeTextDefaultsFontSize(t *testing.T) {
	raw := json.RawMessage(`{"strokeId":"s1","text":"hi","position":{"x":5,"y":5},"color":"#000"}`)
	got, err := DecodePayload(EventText, raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.(*TextPayload).FontSize != 16 {
		t.Fatalf("expected fontSize default 16, got %v", got.(*TextPayload).FontSize)
	}
}

func TestDecodeDeletePayload(t *testing.T) {
	raw := json.RawMessage(`{"strokeIds":["a","b"]}`)
	got, err := DecodePayload(EventDelete, raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(got.(*DeletePayload).StrokeIDs) != 2 {
		t.Fatalf("unexpected delete payload: %+v", got)
	}
}

func TestDecodeClearHasNoPayload(t *testing.T) {
	got, err := DecodePayload(EventClear, nil)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil payload for clear, got %+v", got)
	}
}

func TestDecodeUnknownEventType(t *testing.T) {
	if _, err := DecodePayload(EventType("scribble"), nil); !errors.Is(err, ErrUnknownEventType) {
		t.Fatalf("expected ErrUnknownEventType, got %v", err)
	}
}

func TestEventTypeValid(t *testing.T) {
	for _, typ := range []EventType{EventStroke, EventShape, EventText, EventDelete, EventClear} {
		if !typ.Valid() {
			t.Fatalf("%s should be valid", typ)
		}
	}
	if EventType("resize").Valid() {
		t.Fatalf("resize should not be valid")
	}
}
