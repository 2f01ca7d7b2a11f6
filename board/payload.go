// Copyright © 2025 Slate contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: board/payload.go
// Summary: Typed draw-event payloads and their decode/validate rules.
// Usage: The protocol router validates inbound payloads here; the raster engine decodes stored ones.
// Notes: Unknown extra fields are tolerated so clients can extend payloads without a server change.

package board

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownEventType = errors.New("board: unknown event type")
	ErrInvalidPayload   = errors.New("board: invalid payload")
)

// Point is a world-space coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ShapeType selects the geometry of a shape payload.
type ShapeType string

const (
	ShapeRectangle ShapeType = "rectangle"
	ShapeEllipse   ShapeType = "ellipse"
	ShapeLine      ShapeType = "line"
)

// StrokePayload is a freehand polyline.
type StrokePayload struct {
	StrokeID string  `json:"strokeId"`
	Color    string  `json:"color"`
	Width    float64 `json:"width"`
	Opacity  float64 `json:"opacity,omitempty"`
	Points   []Point `json:"points"`
}

// ShapePayload is a rectangle, ellipse or straight line between two corners.
type ShapePayload struct {
	StrokeID  string    `json:"strokeId"`
	ShapeType ShapeType `json:"shapeType"`
	Start     Point     `json:"start"`
	End       Point     `json:"end"`
	Color     string    `json:"color"`
	Width     float64   `json:"width"`
	Opacity   float64   `json:"opacity,omitempty"`
}

// TextPayload places a block of text at a world position.
type TextPayload struct {
	StrokeID string  `json:"strokeId"`
	Text     string  `json:"text"`
	Position Point   `json:"position"`
	Color    string  `json:"color"`
	FontSize float64 `json:"fontSize"`
}

// DeletePayload removes previously drawn strokes by id. Unknown ids are a
// no-op, which makes replayed deletes idempotent.
type DeletePayload struct {
	StrokeIDs []string `json:"strokeIds"`
}

// DecodePayload unmarshals raw into the typed payload for t and validates
// the fields a renderer depends on. clear events carry no payload and
// decode to nil.
func DecodePayload(t EventType, raw json.RawMessage) (any, error) {
	switch t {
	case EventStroke:
		var p StrokePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if p.StrokeID == "" || len(p.Points) == 0 {
			return nil, fmt.Errorf("%w: stroke needs strokeId and points", ErrInvalidPayload)
		}
		if p.Width <= 0 {
			p.Width = 1
		}
		return &p, nil
	case EventShape:
		var p ShapePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		switch p.ShapeType {
		case ShapeRectangle, ShapeEllipse, ShapeLine:
		default:
			return nil, fmt.Errorf("%w: shapeType %q", ErrInvalidPayload, p.ShapeType)
		}
		if p.StrokeID == "" {
			return nil, fmt.Errorf("%w: shape needs strokeId", ErrInvalidPayload)
		}
		if p.Width <= 0 {
			p.Width = 1
		}
		return &p, nil
	case EventText:
		var p TextPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if p.StrokeID == "" || p.Text == "" {
			return nil, fmt.Errorf("%w: text needs strokeId and text", ErrInvalidPayload)
		}
		if p.FontSize <= 0 {
			p.FontSize = 16
		}
		return &p, nil
	case EventDelete:
		var p DeletePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return &p, nil
	case EventClear:
		return nil, nil
	default:
		return nil, ErrUnknownEventType
	}
}

// ValidatePayload checks raw against the schema for t without keeping the
// decoded form.
func ValidatePayload(t EventType, raw json.RawMessage) error {
	_, err := DecodePayload(t, raw)
	return err
}
