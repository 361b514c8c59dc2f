// Package calibration learns a mapping from pupil ratios to screen coordinates.
package calibration

import "math"

// Point is a position on the screen in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance between two screen points.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Size is the drawable screen area in pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Clamp limits p to the screen rectangle.
func (s Size) Clamp(p Point) Point {
	return Point{
		X: math.Max(0, math.Min(s.Width, p.X)),
		Y: math.Max(0, math.Min(s.Height, p.Y)),
	}
}

// Anchor is a fixed screen location the operator fixates during calibration.
type Anchor struct {
	Index  int   `json:"index"`
	Row    int   `json:"row"`
	Col    int   `json:"col"`
	Screen Point `json:"screen"`
}

// Anchors lays out a grid x grid set of anchors covering the screen, inset
// by margin so every anchor bubble is fully visible. Anchors are ordered
// row-major starting at the top-left corner. A grid of 3 covers the corners,
// the edge midpoints and the center.
func Anchors(screen Size, grid int, margin float64) []Anchor {
	if grid < 2 {
		grid = 2
	}

	spanX := screen.Width - 2*margin
	spanY := screen.Height - 2*margin
	if spanX < 0 {
		spanX = 0
	}
	if spanY < 0 {
		spanY = 0
	}

	anchors := make([]Anchor, 0, grid*grid)
	for row := 0; row < grid; row++ {
		for col := 0; col < grid; col++ {
			anchors = append(anchors, Anchor{
				Index: len(anchors),
				Row:   row,
				Col:   col,
				Screen: Point{
					X: margin + spanX*float64(col)/float64(grid-1),
					Y: margin + spanY*float64(row)/float64(grid-1),
				},
			})
		}
	}
	return anchors
}
