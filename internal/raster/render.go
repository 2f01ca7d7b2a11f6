// Copyright © 2025 Slate contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/raster/render.go
// Summary: Replays an ordered event log into a PNG with a world-space origin.
// Usage: The compactor renders here; the result is stored per board.
// Notes: Blitting the result at (OffsetX, OffsetY) and replaying the tail equals a full replay.

package raster

import (
	"bytes"
	"image/png"
	"math"
	"strings"
	"unicode/utf8"

	"slate/board"
)

const (
	// Fixed world-unit padding added around the content bounding box.
	boundsPadding = 100.0
	// Hard cap on either raster dimension.
	maxDimension = 16384
)

// Result is the rendered snapshot artifact.
type Result struct {
	PNG     []byte
	OffsetX float64
	OffsetY float64
	Width   int
	Height  int
}

// renderable is one surviving drawable with its world extent.
type renderable struct {
	minX, minY, maxX, maxY float64
	draw                   func(c *canvas)
}

// Render folds an ordered event log into a raster. Events at or before the
// last clear are discarded; strokes referenced by any surviving delete are
// skipped. With no renderable extent the result is a 1×1 transparent image
// at the world origin.
func Render(events []board.DrawEvent) (Result, error) {
	survivors := events
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == board.EventClear {
			survivors = events[i+1:]
			break
		}
	}

	deleted := make(map[string]struct{})
	for _, ev := range survivors {
		if ev.Type != board.EventDelete {
			continue
		}
		decoded, err := board.DecodePayload(ev.Type, ev.Payload)
		if err != nil {
			continue
		}
		for _, id := range decoded.(*board.DeletePayload).StrokeIDs {
			deleted[id] = struct{}{}
		}
	}

	items := make([]renderable, 0, len(survivors))
	for _, ev := range survivors {
		item, ok := buildRenderable(ev, deleted)
		if ok {
			items = append(items, item)
		}
	}

	if len(items) == 0 {
		return encode(newCanvas(1, 1, 0, 0))
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, item := range items {
		minX = math.Min(minX, item.minX)
		minY = math.Min(minY, item.minY)
		maxX = math.Max(maxX, item.maxX)
		maxY = math.Max(maxY, item.maxY)
	}

	originX := minX - boundsPadding
	originY := minY - boundsPadding
	width := clampDim(int(math.Ceil(maxX - minX + 2*boundsPadding)))
	height := clampDim(int(math.Ceil(maxY - minY + 2*boundsPadding)))

	c := newCanvas(width, height, originX, originY)
	for _, item := range items {
		item.draw(c)
	}
	return encode(c)
}

func clampDim(v int) int {
	if v < 1 {
		return 1
	}
	if v > maxDimension {
		return maxDimension
	}
	return v
}

// buildRenderable decodes one event into its drawable form, skipping
// deletes, clears, deleted strokes and malformed stored payloads.
func buildRenderable(ev board.DrawEvent, deleted map[string]struct{}) (renderable, bool) {
	switch ev.Type {
	case board.EventStroke, board.EventShape, board.EventText:
	default:
		return renderable{}, false
	}
	decoded, err := board.DecodePayload(ev.Type, ev.Payload)
	if err != nil {
		return renderable{}, false
	}

	switch p := decoded.(type) {
	case *board.StrokePayload:
		if _, gone := deleted[p.StrokeID]; gone {
			return renderable{}, false
		}
		item := renderable{minX: math.Inf(1), minY: math.Inf(1), maxX: math.Inf(-1), maxY: math.Inf(-1)}
		for _, pt := range p.Points {
			item.minX = math.Min(item.minX, pt.X)
			item.minY = math.Min(item.minY, pt.Y)
			item.maxX = math.Max(item.maxX, pt.X)
			item.maxY = math.Max(item.maxY, pt.Y)
		}
		pad(&item, p.Width)
		col := parseColor(p.Color, p.Opacity)
		points, width := p.Points, p.Width
		item.draw = func(c *canvas) { c.polyline(points, width, col) }
		return item, true

	case *board.ShapePayload:
		if _, gone := deleted[p.StrokeID]; gone {
			return renderable{}, false
		}
		item := renderable{
			minX: math.Min(p.Start.X, p.End.X),
			minY: math.Min(p.Start.Y, p.End.Y),
			maxX: math.Max(p.Start.X, p.End.X),
			maxY: math.Max(p.Start.Y, p.End.Y),
		}
		pad(&item, p.Width)
		col := parseColor(p.Color, p.Opacity)
		shape := *p
		item.draw = func(c *canvas) {
			switch shape.ShapeType {
			case board.ShapeRectangle:
				c.rectOutline(shape.Start, shape.End, shape.Width, col)
			case board.ShapeEllipse:
				c.ellipseOutline(shape.Start, shape.End, shape.Width, col)
			case board.ShapeLine:
				c.line(shape.Start.X, shape.Start.Y, shape.End.X, shape.End.Y, shape.Width, col)
			}
		}
		return item, true

	case *board.TextPayload:
		if _, gone := deleted[p.StrokeID]; gone {
			return renderable{}, false
		}
		item := renderable{minX: p.Position.X, minY: p.Position.Y}
		item.maxX = p.Position.X + textWidth(p)
		item.maxY = p.Position.Y + textHeight(p)
		col := parseColor(p.Color, 1)
		text := *p
		item.draw = func(c *canvas) { c.text(&text, col) }
		return item, true
	}
	return renderable{}, false
}

func pad(item *renderable, width float64) {
	item.minX -= width
	item.minY -= width
	item.maxX += width
	item.maxY += width
}

// textWidth approximates the widest line at charWidthEm per character.
func textWidth(p *board.TextPayload) float64 {
	longest := 0
	for _, line := range strings.Split(p.Text, "\n") {
		if n := utf8.RuneCountInString(line); n > longest {
			longest = n
		}
	}
	return float64(longest) * charWidthEm * p.FontSize
}

// textHeight approximates lineHeightEm per line.
func textHeight(p *board.TextPayload) float64 {
	lines := strings.Count(p.Text, "\n") + 1
	return float64(lines) * lineHeightEm * p.FontSize
}

func encode(c *canvas) (Result, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, c.img); err != nil {
		return Result{}, err
	}
	bounds := c.img.Bounds()
	return Result{
		PNG:     buf.Bytes(),
		OffsetX: c.originX,
		OffsetY: c.originY,
		Width:   bounds.Dx(),
		Height:  bounds.Dy(),
	}, nil
}
