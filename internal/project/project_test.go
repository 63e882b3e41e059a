package project

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shuttercut/shuttercut-agent/internal/editor"
	"github.com/shuttercut/shuttercut-agent/internal/media"
	"github.com/shuttercut/shuttercut-agent/internal/overlay"
)

const sample = `
video: clips/base.mp4
viewport:
  width: 960
  height: 540
overlays:
  - type: text
    content: Hello
    x: 40
    y: 30
    start: 1
    end: 4
    color: "#FF0000"
    font_size: 32
  - type: image
    file: art/logo.png
    width: 120
    height: 120
  - type: video
    file: /abs/clip.mp4
    content: intro.mp4
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParse(t *testing.T) {
	p, err := Parse(strings.NewReader(sample), "/work")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/work", "clips/base.mp4"), p.Video)
	require.NotNil(t, p.Viewport)
	assert.Equal(t, 960.0, p.Viewport.Width)
	require.Len(t, p.Overlays, 3)

	assert.Equal(t, overlay.KindText, p.Overlays[0].Kind())
	assert.Equal(t, filepath.Join("/work", "art/logo.png"), p.Overlays[1].File)
	assert.Equal(t, "/abs/clip.mp4", p.Overlays[2].File)

	patch := p.Overlays[0].Patch()
	require.NotNil(t, patch.Color)
	assert.Equal(t, "#FF0000", *patch.Color)
	assert.Equal(t, 32.0, *patch.FontSize)
	assert.Nil(t, patch.Width)

	assert.True(t, p.Overlays[2].Patch().IsEmpty())
}

func TestParse_KeepsURLs(t *testing.T) {
	p, err := Parse(strings.NewReader("video: https://cdn.example.com/base.mp4\n"), "/work")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/base.mp4", p.Video)
	assert.Empty(t, p.Overlays)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"empty", "", "empty"},
		{"no video", "overlays: []\n", "video failed required"},
		{"unknown field", "video: a.mp4\nspeed: 2\n", "speed"},
		{"bad type", "video: a.mp4\noverlays:\n  - type: sticker\n", "overlays[0].type failed oneof"},
		{"asset without file", "video: a.mp4\noverlays:\n  - type: image\n", "overlays[0].file failed required_unless"},
		{"negative width", "video: a.mp4\noverlays:\n  - type: image\n    file: a.png\n    width: -1\n", "overlays[0].width failed gt"},
		{"reversed window", "video: a.mp4\noverlays:\n  - type: text\n    start: 4\n    end: 2\n", "ends before it starts"},
		{"bad viewport", "video: a.mp4\nviewport:\n  width: 0\n  height: 10\n", "viewport.width failed gt"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.doc), "/work")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoad_ResolvesAgainstProjectDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.yaml")
	require.NoError(t, os.WriteFile(path, []byte("video: base.mp4\n"), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "base.mp4"), p.Video)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestApply(t *testing.T) {
	p, err := Parse(strings.NewReader(sample), "/work")
	require.NoError(t, err)

	s := editor.NewSession(editor.Options{
		Loader: media.StaticLoader{Metadata: media.Metadata{Width: 1920, Height: 1080, Duration: 10}},
	}, testLogger())
	require.NoError(t, p.Apply(context.Background(), s))

	views := s.Overlays()
	require.Len(t, views, 3)
	assert.Empty(t, s.Summary().SelectedID)

	text := views[0].Overlay
	assert.Equal(t, "Hello", text.Content)
	assert.Equal(t, overlay.Point{X: 40, Y: 30}, text.Position)
	assert.Equal(t, overlay.Window{Start: 1, End: 4}, text.Window)
	assert.Equal(t, &overlay.Style{Color: "#FF0000", FontSize: 32}, text.Style)

	img := views[1].Overlay
	assert.Equal(t, "logo.png", img.Content)
	assert.Equal(t, &overlay.Size{Width: 120, Height: 120}, img.Size)

	assert.Equal(t, "intro.mp4", views[2].Content)

	comp := s.Composition()
	assert.Equal(t, 960.0, comp.Viewport.Width)
}

func TestApply_MetadataFallback(t *testing.T) {
	doc := "video: base.mp4\nmetadata:\n  width: 1280\n  height: 720\n  duration: 8\n"
	p, err := Parse(strings.NewReader(doc), "/work")
	require.NoError(t, err)

	s := editor.NewSession(editor.Options{
		Loader: media.StaticLoader{Err: errors.New("ffprobe missing")},
	}, testLogger())
	require.NoError(t, p.Apply(context.Background(), s))

	info := s.Video()
	require.NotNil(t, info.Metadata)
	assert.Equal(t, 1280, info.Metadata.Width)
	assert.Equal(t, 1280.0, s.Composition().Viewport.Width, "viewport defaults to native size")
}

func TestApply_NoMetadata(t *testing.T) {
	p, err := Parse(strings.NewReader("video: base.mp4\n"), "/work")
	require.NoError(t, err)

	s := editor.NewSession(editor.Options{}, testLogger())
	err = p.Apply(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metadata")
}
