// Package overlay holds the editor's overlay records and the selection
// pointer. Geometry here is whatever space the caller is working in; during
// editing that is display space.
package overlay

import (
	"fmt"
	"strings"
)

type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindText, KindImage, KindVideo:
		return k, nil
	default:
		return "", fmt.Errorf("unknown overlay kind %q", s)
	}
}

// HasAsset reports whether overlays of this kind carry uploaded bytes.
func (k Kind) HasAsset() bool {
	return k == KindImage || k == KindVideo
}

type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

type Size struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Window is the visibility interval in master-clock seconds. Time does not
// depend on coordinate space.
type Window struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
}

func (w Window) Duration() float64 {
	return w.End - w.Start
}

// Contains is inclusive at both ends.
func (w Window) Contains(t float64) bool {
	return t >= w.Start && t <= w.End
}

type Style struct {
	Color    string  `json:"color" yaml:"color"`
	FontSize float64 `json:"font_size" yaml:"font_size"`
}

// Overlay is one visual element on the timeline. SourceURI points at local
// asset bytes and only feeds the upload.
type Overlay struct {
	ID        string `json:"id"`
	Kind      Kind   `json:"kind"`
	Content   string `json:"content"`
	SourceURI string `json:"source_uri,omitempty"`
	Position  Point  `json:"position"`
	Size      *Size  `json:"size,omitempty"`
	Window    Window `json:"window"`
	Style     *Style `json:"style,omitempty"`
}

func (o Overlay) clone() Overlay {
	if o.Size != nil {
		s := *o.Size
		o.Size = &s
	}
	if o.Style != nil {
		s := *o.Style
		o.Style = &s
	}
	return o
}

// RenderSize returns the explicit size or the kind's default.
func (o Overlay) RenderSize() Size {
	if o.Size != nil {
		return *o.Size
	}
	return DefaultSize(o.Kind)
}

// Patch carries the fields an update sets. Nil fields are left untouched.
type Patch struct {
	Content   *string  `json:"content,omitempty"`
	SourceURI *string  `json:"source_uri,omitempty"`
	X         *float64 `json:"x,omitempty"`
	Y         *float64 `json:"y,omitempty"`
	Width     *float64 `json:"width,omitempty"`
	Height    *float64 `json:"height,omitempty"`
	Start     *float64 `json:"start,omitempty"`
	End       *float64 `json:"end,omitempty"`
	Color     *string  `json:"color,omitempty"`
	FontSize  *float64 `json:"font_size,omitempty"`
}

func (p Patch) IsEmpty() bool {
	return p == Patch{}
}

func (p Patch) apply(o *Overlay) {
	if p.Content != nil {
		o.Content = *p.Content
	}
	if p.SourceURI != nil {
		o.SourceURI = *p.SourceURI
	}
	if p.X != nil {
		o.Position.X = *p.X
	}
	if p.Y != nil {
		o.Position.Y = *p.Y
	}
	if p.Width != nil || p.Height != nil {
		size := o.RenderSize()
		if p.Width != nil {
			size.Width = *p.Width
		}
		if p.Height != nil {
			size.Height = *p.Height
		}
		o.Size = &size
	}
	if p.Start != nil {
		o.Window.Start = *p.Start
	}
	if p.End != nil {
		o.Window.End = *p.End
	}
	if p.Color != nil || p.FontSize != nil {
		style := Style{}
		if o.Style != nil {
			style = *o.Style
		}
		if p.Color != nil {
			style.Color = *p.Color
		}
		if p.FontSize != nil {
			style.FontSize = *p.FontSize
		}
		o.Style = &style
	}
}

func ptr[T any](v T) *T {
	return &v
}
