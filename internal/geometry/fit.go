// Package geometry converts overlay geometry between the editor's display
// space (pixels inside the on-screen viewport, letterboxed or pillarboxed)
// and source space (the base video's native pixels).
//
// The viewport scales the video with an aspect-preserving "contain" fit, so a
// single Fit describes both directions of the mapping.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/shuttercut/shuttercut-agent/internal/media"
)

var ErrDegenerateViewport = errors.New("viewport has no area")

// Size is a width/height pair in display pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Point is a position in display pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Fit is the placement of the native video frame inside the viewport.
type Fit struct {
	DisplayedWidth  float64
	DisplayedHeight float64
	OffsetX         float64
	OffsetY         float64
	NativeWidth     int
	NativeHeight    int
}

// Contain computes the fit of a video with native metadata md inside a
// viewport of the given size.
func Contain(container Size, md media.Metadata) (Fit, error) {
	if container.Width <= 0 || container.Height <= 0 {
		return Fit{}, fmt.Errorf("%w: %gx%g", ErrDegenerateViewport, container.Width, container.Height)
	}
	if err := md.Validate(); err != nil {
		return Fit{}, err
	}

	videoRatio := md.AspectRatio()
	containerRatio := container.Width / container.Height

	f := Fit{NativeWidth: md.Width, NativeHeight: md.Height}
	if videoRatio > containerRatio {
		f.DisplayedWidth = container.Width
		f.DisplayedHeight = container.Width / videoRatio
		f.OffsetY = (container.Height - f.DisplayedHeight) / 2
	} else {
		f.DisplayedHeight = container.Height
		f.DisplayedWidth = container.Height * videoRatio
		f.OffsetX = (container.Width - f.DisplayedWidth) / 2
	}
	return f, nil
}

// PointToSource maps a display point to native pixels. Points in the bars
// or beyond the frame map to negative or over-range values; they are kept
// as-is.
func (f Fit) PointToSource(p Point) (x, y int) {
	x = int(math.Round((p.X - f.OffsetX) / f.DisplayedWidth * float64(f.NativeWidth)))
	y = int(math.Round((p.Y - f.OffsetY) / f.DisplayedHeight * float64(f.NativeHeight)))
	return x, y
}

// PointToDisplay is the inverse of PointToSource.
func (f Fit) PointToDisplay(x, y int) Point {
	return Point{
		X: float64(x)/float64(f.NativeWidth)*f.DisplayedWidth + f.OffsetX,
		Y: float64(y)/float64(f.NativeHeight)*f.DisplayedHeight + f.OffsetY,
	}
}

// SizeToSource scales a display size to native pixels, never below 1.
func (f Fit) SizeToSource(s Size) (width, height int) {
	width = max(1, int(math.Round(s.Width/f.DisplayedWidth*float64(f.NativeWidth))))
	height = max(1, int(math.Round(s.Height/f.DisplayedHeight*float64(f.NativeHeight))))
	return width, height
}

// Scale is the uniform display-to-native factor. Horizontal and vertical
// scales are equal under a contain fit.
func (f Fit) Scale() float64 {
	return float64(f.NativeHeight) / f.DisplayedHeight
}

// FontToSource scales a display font size to native pixels, never below 1.
func (f Fit) FontToSource(fontSize float64) int {
	return max(1, int(math.Round(fontSize*f.Scale())))
}

// Contains reports whether p lies inside the displayed video frame.
func (f Fit) Contains(p Point) bool {
	return p.X >= f.OffsetX && p.X <= f.OffsetX+f.DisplayedWidth &&
		p.Y >= f.OffsetY && p.Y <= f.OffsetY+f.DisplayedHeight
}
