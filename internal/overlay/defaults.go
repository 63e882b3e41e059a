package overlay

import "math"

const (
	DefaultText     = "Hello World"
	DefaultColor    = "#FFFFFF"
	DefaultFontSize = 24.0
	DefaultX        = 50.0
	DefaultY        = 50.0
	DefaultStart    = 0.0
	DefaultEnd      = 5.0

	DefaultImageName = "image.png"
	DefaultVideoName = "video.mp4"

	// Inspector step bounds.
	MinFontSize   = 12.0
	MaxFontSize   = 72.0
	FontStepSize  = 2.0
	MinSize       = 50.0
	MaxSize       = 400.0
	SizeStepSize  = 10.0
	TimeStepSize  = 0.5
	MinWindowSpan = 0.5
)

// Palette is the set of text colors the inspector offers.
var Palette = []string{"#FFFFFF", "#FF0000", "#00FF00", "#0000FF", "#FFFF00", "#FF00FF"}

// DefaultSize is the render size used when an overlay has no explicit size.
func DefaultSize(k Kind) Size {
	switch k {
	case KindImage:
		return Size{Width: 100, Height: 100}
	case KindVideo:
		return Size{Width: 150, Height: 150}
	default:
		return Size{}
	}
}

func NewText(content string) Overlay {
	if content == "" {
		content = DefaultText
	}
	return Overlay{
		Kind:     KindText,
		Content:  content,
		Position: Point{X: DefaultX, Y: DefaultY},
		Window:   Window{Start: DefaultStart, End: DefaultEnd},
		Style:    &Style{Color: DefaultColor, FontSize: DefaultFontSize},
	}
}

func NewImage(filename, sourceURI string) Overlay {
	if filename == "" {
		filename = DefaultImageName
	}
	return newAsset(KindImage, filename, sourceURI)
}

func NewVideo(filename, sourceURI string) Overlay {
	if filename == "" {
		filename = DefaultVideoName
	}
	return newAsset(KindVideo, filename, sourceURI)
}

func newAsset(k Kind, filename, sourceURI string) Overlay {
	return Overlay{
		Kind:      k,
		Content:   filename,
		SourceURI: sourceURI,
		Position:  Point{X: DefaultX, Y: DefaultY},
		Window:    Window{Start: DefaultStart, End: DefaultEnd},
	}
}

// StartStep moves the start by delta, never below zero. The end is pushed
// out when needed so the window keeps at least MinWindowSpan.
func StartStep(o Overlay, delta float64) Patch {
	start := math.Max(0, o.Window.Start+delta)
	p := Patch{Start: ptr(start)}
	if o.Window.End < start+MinWindowSpan {
		p.End = ptr(start + MinWindowSpan)
	}
	return p
}

// EndStep moves the end by delta, never closer than MinWindowSpan to start.
func EndStep(o Overlay, delta float64) Patch {
	return Patch{End: ptr(math.Max(o.Window.Start+MinWindowSpan, o.Window.End+delta))}
}

// FontStep changes a text overlay's font size within the inspector bounds.
func FontStep(o Overlay, delta float64) Patch {
	current := DefaultFontSize
	if o.Style != nil && o.Style.FontSize > 0 {
		current = o.Style.FontSize
	}
	return Patch{FontSize: ptr(clamp(current+delta, MinFontSize, MaxFontSize))}
}

// SizeStep grows or shrinks an image/video overlay from its current or
// default size within the inspector bounds.
func SizeStep(o Overlay, delta float64) Patch {
	s := o.RenderSize()
	return Patch{
		Width:  ptr(clamp(s.Width+delta, MinSize, MaxSize)),
		Height: ptr(clamp(s.Height+delta, MinSize, MaxSize)),
	}
}

// Drag offsets the position by a gesture delta.
func Drag(o Overlay, dx, dy float64) Patch {
	return Patch{X: ptr(o.Position.X + dx), Y: ptr(o.Position.Y + dy)}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
