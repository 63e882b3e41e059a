package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shuttercut/shuttercut-agent/internal/media"
)

var hd = media.Metadata{Width: 1920, Height: 1080, Duration: 10}

func TestContain_HeightConstrained(t *testing.T) {
	f, err := Contain(Size{Width: 1000, Height: 450}, hd)
	require.NoError(t, err)

	assert.InDelta(t, 450, f.DisplayedHeight, 1e-9)
	assert.InDelta(t, 800, f.DisplayedWidth, 1e-9)
	assert.InDelta(t, 100, f.OffsetX, 1e-9)
	assert.InDelta(t, 0, f.OffsetY, 1e-9)

	x, y := f.PointToSource(Point{X: 499.95, Y: 225})
	assert.Equal(t, 960, x)
	assert.Equal(t, 540, y)

	x, y = f.PointToSource(Point{X: 500, Y: 225})
	assert.Equal(t, 960, x)
	assert.Equal(t, 540, y)
}

func TestContain_WidthConstrained(t *testing.T) {
	f, err := Contain(Size{Width: 400, Height: 600}, hd)
	require.NoError(t, err)

	assert.InDelta(t, 400, f.DisplayedWidth, 1e-9)
	assert.InDelta(t, 225, f.DisplayedHeight, 1e-9)
	assert.InDelta(t, 0, f.OffsetX, 1e-9)
	assert.InDelta(t, 187.5, f.OffsetY, 1e-9)

	x, y := f.PointToSource(Point{X: 0, Y: 187.5})
	assert.Equal(t, 0, x)
	assert.Equal(t, 0, y)
}

func TestContain_Degenerate(t *testing.T) {
	_, err := Contain(Size{Width: 0, Height: 450}, hd)
	assert.ErrorIs(t, err, ErrDegenerateViewport)

	_, err = Contain(Size{Width: 100, Height: 100}, media.Metadata{})
	assert.ErrorIs(t, err, media.ErrInvalidMetadata)
}

func TestPointToSource_OutsideFrameNotClamped(t *testing.T) {
	f, err := Contain(Size{Width: 1000, Height: 450}, hd)
	require.NoError(t, err)

	x, _ := f.PointToSource(Point{X: 50, Y: 0})
	assert.Equal(t, -120, x, "pillarbox bar maps to negative x")

	x, _ = f.PointToSource(Point{X: 950, Y: 0})
	assert.Equal(t, 2040, x, "right bar maps beyond native width")
}

func TestSizeToSource_FloorOfOne(t *testing.T) {
	f, err := Contain(Size{Width: 1000, Height: 450}, hd)
	require.NoError(t, err)

	w, h := f.SizeToSource(Size{Width: 100, Height: 100})
	assert.Equal(t, 240, w)
	assert.Equal(t, 240, h)

	w, h = f.SizeToSource(Size{Width: 0.01, Height: 0})
	assert.Equal(t, 1, w)
	assert.Equal(t, 1, h)
}

func TestFontToSource(t *testing.T) {
	f, err := Contain(Size{Width: 1000, Height: 450}, hd)
	require.NoError(t, err)

	assert.InDelta(t, 2.4, f.Scale(), 1e-9)
	assert.Equal(t, 58, f.FontToSource(24))
	assert.Equal(t, 1, f.FontToSource(0))
}

func TestRoundTrip_InsideFrame(t *testing.T) {
	containers := []Size{
		{Width: 1000, Height: 450},
		{Width: 390, Height: 422},
		{Width: 1280, Height: 720},
		{Width: 333, Height: 777},
	}
	videos := []media.Metadata{
		hd,
		{Width: 1080, Height: 1920},
		{Width: 640, Height: 480},
		{Width: 4096, Height: 2160},
	}

	for _, c := range containers {
		for _, md := range videos {
			f, err := Contain(c, md)
			require.NoError(t, err)

			for i := 1; i < 20; i++ {
				for j := 1; j < 20; j++ {
					p := Point{
						X: f.OffsetX + f.DisplayedWidth*float64(i)/20,
						Y: f.OffsetY + f.DisplayedHeight*float64(j)/20,
					}
					require.True(t, f.Contains(p))

					x, y := f.PointToSource(p)
					back := f.PointToDisplay(x, y)

					// one source pixel of rounding, expressed in display pixels
					tolX := f.DisplayedWidth / float64(md.Width)
					tolY := f.DisplayedHeight / float64(md.Height)
					assert.InDelta(t, p.X, back.X, tolX+1e-9)
					assert.InDelta(t, p.Y, back.Y, tolY+1e-9)
				}
			}
		}
	}
}
