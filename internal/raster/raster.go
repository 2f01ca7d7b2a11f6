// Copyright © 2025 Slate contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/raster/raster.go
// Summary: Low-level pixel operations for the snapshot renderer.
// Usage: Used by render.go to rasterize strokes, shapes and text.
// Notes: World coordinates are float64; the canvas owns the world→pixel translation.

package raster

import (
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"slate/board"
)

// canvas wraps an RGBA raster with a world-space origin. Pixel (0,0)
// corresponds to world point (originX, originY).
type canvas struct {
	img     *image.RGBA
	originX float64
	originY float64
}

func newCanvas(w, h int, originX, originY float64) *canvas {
	return &canvas{img: image.NewRGBA(image.Rect(0, 0, w, h)), originX: originX, originY: originY}
}

// blend composites src over the existing pixel. Overlapping stamps
// compound alpha for translucent strokes.
func (c *canvas) blend(px, py int, src color.RGBA) {
	if !(image.Point{X: px, Y: py}).In(c.img.Rect) {
		return
	}
	if src.A == 0xff {
		c.img.SetRGBA(px, py, src)
		return
	}
	dst := c.img.RGBAAt(px, py)
	a := uint32(src.A)
	inv := 255 - a
	out := color.RGBA{
		R: uint8((uint32(src.R)*a + uint32(dst.R)*inv) / 255),
		G: uint8((uint32(src.G)*a + uint32(dst.G)*inv) / 255),
		B: uint8((uint32(src.B)*a + uint32(dst.B)*inv) / 255),
		A: uint8(min32(255, a+uint32(dst.A)*inv/255)),
	}
	c.img.SetRGBA(px, py, out)
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

// disc fills a filled circle of radius r centered on the world point.
// A radius below one pixel still produces a single pixel so hairline
// strokes stay visible.
func (c *canvas) disc(wx, wy, r float64, col color.RGBA) {
	px := wx - c.originX
	py := wy - c.originY
	if r < 0.5 {
		c.blend(int(math.Floor(px)), int(math.Floor(py)), col)
		return
	}
	minX := int(math.Floor(px - r))
	maxX := int(math.Ceil(px + r))
	minY := int(math.Floor(py - r))
	maxY := int(math.Ceil(py + r))
	r2 := r * r
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			dx := float64(x) + 0.5 - px
			dy := float64(y) + 0.5 - py
			if dx*dx+dy*dy <= r2 {
				c.blend(x, y, col)
			}
		}
	}
}

// line draws a stroked segment with round caps by stamping discs along it.
func (c *canvas) line(x1, y1, x2, y2, width float64, col color.RGBA) {
	r := width / 2
	dx := x2 - x1
	dy := y2 - y1
	length := math.Hypot(dx, dy)
	if length == 0 {
		c.disc(x1, y1, r, col)
		return
	}
	step := math.Max(r/2, 0.5)
	steps := int(math.Ceil(length / step))
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		c.disc(x1+dx*t, y1+dy*t, r, col)
	}
}

// polyline draws connected segments; a single point becomes a filled dot.
func (c *canvas) polyline(points []board.Point, width float64, col color.RGBA) {
	if len(points) == 1 {
		c.disc(points[0].X, points[0].Y, width/2, col)
		return
	}
	for i := 1; i < len(points); i++ {
		c.line(points[i-1].X, points[i-1].Y, points[i].X, points[i].Y, width, col)
	}
}

// rectOutline strokes the axis-aligned rectangle spanned by two corners.
func (c *canvas) rectOutline(a, b board.Point, width float64, col color.RGBA) {
	minX, maxX := math.Min(a.X, b.X), math.Max(a.X, b.X)
	minY, maxY := math.Min(a.Y, b.Y), math.Max(a.Y, b.Y)
	c.line(minX, minY, maxX, minY, width, col)
	c.line(maxX, minY, maxX, maxY, width, col)
	c.line(maxX, maxY, minX, maxY, width, col)
	c.line(minX, maxY, minX, minY, width, col)
}

// ellipseOutline strokes the ellipse inscribed in the rectangle spanned by
// two corners.
func (c *canvas) ellipseOutline(a, b board.Point, width float64, col color.RGBA) {
	cx := (a.X + b.X) / 2
	cy := (a.Y + b.Y) / 2
	rx := math.Abs(b.X-a.X) / 2
	ry := math.Abs(b.Y-a.Y) / 2
	if rx == 0 && ry == 0 {
		c.disc(cx, cy, width/2, col)
		return
	}
	circumference := math.Pi * (3*(rx+ry) - math.Sqrt((3*rx+ry)*(rx+3*ry)))
	step := math.Max(width/4, 0.5)
	steps := int(math.Ceil(circumference/step)) + 1
	prevX := cx + rx
	prevY := cy
	for i := 1; i <= steps; i++ {
		theta := 2 * math.Pi * float64(i) / float64(steps)
		x := cx + rx*math.Cos(theta)
		y := cy + ry*math.Sin(theta)
		c.line(prevX, prevY, x, y, width, col)
		prevX, prevY = x, y
	}
}

// Approximate text metrics: em-relative character cell and line height.
const (
	charWidthEm  = 0.6
	lineHeightEm = 1.3
)

// text renders a text block with the basicfont face scaled to the payload
// fontSize. Position is the top-left corner of the block.
func (c *canvas) text(t *board.TextPayload, col color.RGBA) {
	lineH := lineHeightEm * t.FontSize
	for i, line := range strings.Split(t.Text, "\n") {
		if line == "" {
			continue
		}
		runes := utf8.RuneCountInString(line)
		face := basicfont.Face7x13
		srcW := runes * face.Advance
		srcH := face.Height
		src := image.NewRGBA(image.Rect(0, 0, srcW, srcH))
		d := font.Drawer{
			Dst:  src,
			Src:  image.NewUniform(col),
			Face: face,
			Dot:  fixed.P(0, face.Ascent),
		}
		d.DrawString(line)

		targetW := float64(runes) * charWidthEm * t.FontSize
		targetH := lineHeightEm * t.FontSize
		c.blitScaled(src, t.Position.X, t.Position.Y+float64(i)*lineH, targetW, targetH)
	}
}

// blitScaled copies src into the world-space box using nearest-neighbor
// sampling.
func (c *canvas) blitScaled(src *image.RGBA, wx, wy, ww, wh float64) {
	if ww <= 0 || wh <= 0 {
		return
	}
	px0 := int(math.Floor(wx - c.originX))
	py0 := int(math.Floor(wy - c.originY))
	pw := int(math.Ceil(ww))
	ph := int(math.Ceil(wh))
	sb := src.Bounds()
	for y := 0; y < ph; y++ {
		sy := sb.Min.Y + y*sb.Dy()/ph
		for x := 0; x < pw; x++ {
			sx := sb.Min.X + x*sb.Dx()/pw
			col := src.RGBAAt(sx, sy)
			if col.A == 0 {
				continue
			}
			c.blend(px0+x, py0+y, col)
		}
	}
}

// parseColor accepts #rgb, #rrggbb and #rrggbbaa CSS hex colors and
// multiplies in the payload opacity. Anything unparseable falls back to
// opaque black.
func parseColor(s string, opacity float64) color.RGBA {
	col := color.RGBA{A: 0xff}
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	switch len(hex) {
	case 3:
		if v, err := strconv.ParseUint(hex, 16, 32); err == nil {
			r := uint8(v >> 8 & 0xf)
			g := uint8(v >> 4 & 0xf)
			b := uint8(v & 0xf)
			col.R = r<<4 | r
			col.G = g<<4 | g
			col.B = b<<4 | b
		}
	case 6:
		if v, err := strconv.ParseUint(hex, 16, 32); err == nil {
			col.R = uint8(v >> 16)
			col.G = uint8(v >> 8)
			col.B = uint8(v)
		}
	case 8:
		if v, err := strconv.ParseUint(hex, 16, 64); err == nil {
			col.R = uint8(v >> 24)
			col.G = uint8(v >> 16)
			col.B = uint8(v >> 8)
			col.A = uint8(v)
		}
	}
	if opacity > 0 && opacity < 1 {
		col.A = uint8(math.Round(float64(col.A) * opacity))
	}
	return col
}
