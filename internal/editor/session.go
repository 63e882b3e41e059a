// Package editor holds one editing session: the base video, its overlays,
// the viewport they are placed in, the master clock and the render job.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/shuttercut/shuttercut-agent/internal/export"
	"github.com/shuttercut/shuttercut-agent/internal/geometry"
	"github.com/shuttercut/shuttercut-agent/internal/logging"
	"github.com/shuttercut/shuttercut-agent/internal/media"
	"github.com/shuttercut/shuttercut-agent/internal/overlay"
	"github.com/shuttercut/shuttercut-agent/internal/playback"
	"github.com/shuttercut/shuttercut-agent/internal/render"
)

var (
	ErrNoVideo       = errors.New("no base video loaded")
	ErrNotFound      = errors.New("overlay not found")
	ErrMissingSource = errors.New("image and video overlays need a source file")
	ErrInvalidEdit   = errors.New("invalid edit")
)

// Jobs is the render job client as the session drives it.
type Jobs interface {
	Submit(ctx context.Context, comp render.Composition) error
	Reset()
	Snapshot() render.Snapshot
}

type Options struct {
	// Loader probes a newly opened base video. Without one, metadata has to
	// be reported by the presentation layer.
	Loader media.Loader
	Jobs   Jobs
	// OnSubmit runs just before a composition is handed to Jobs.
	OnSubmit func(render.Composition)
}

// Session serializes every edit behind one mutex, standing in for the
// single event loop of an interactive editor.
type Session struct {
	mu       sync.Mutex
	videoURI string
	meta     *media.Cell
	viewport geometry.Size
	store    *overlay.Store
	clock    playback.Clock
	sync     *playback.Synchronizer
	commands *playback.CommandQueue

	loader   media.Loader
	jobs     Jobs
	onSubmit func(render.Composition)
	logger   *slog.Logger
}

func NewSession(opts Options, logger *slog.Logger) *Session {
	return &Session{
		meta:     &media.Cell{},
		store:    overlay.NewStore(),
		sync:     playback.NewSynchronizer(logger),
		commands: &playback.CommandQueue{},
		loader:   opts.Loader,
		jobs:     opts.Jobs,
		onSubmit: opts.OnSubmit,
		logger:   logger,
	}
}

// VideoInfo describes the loaded base video.
type VideoInfo struct {
	URI      string          `json:"uri"`
	Metadata *media.Metadata `json:"metadata,omitempty"`
}

// OpenVideo starts a fresh session on uri: overlays, selection, clock,
// follow state and the render job are all dropped. Metadata comes from the
// loader when one is configured; a probe failure leaves it unknown.
func (s *Session) OpenVideo(ctx context.Context, uri string) (VideoInfo, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return VideoInfo{}, fmt.Errorf("%w: video uri is required", ErrInvalidEdit)
	}

	s.mu.Lock()
	s.videoURI = uri
	s.meta = &media.Cell{}
	cell := s.meta
	s.store.Clear()
	s.clock = playback.Clock{}
	s.sync.Reset()
	s.commands.Drain()
	if s.jobs != nil {
		s.jobs.Reset()
	}
	s.mu.Unlock()

	s.logger.Info("base video opened", "uri", uri)

	if s.loader != nil {
		md, err := s.loader.Load(ctx, uri)
		if err != nil {
			s.logger.Warn("video probe failed; waiting for reported metadata", "uri", uri, "error", err)
		} else if err := cell.Set(md); err != nil && !errors.Is(err, media.ErrAlreadySet) {
			s.logger.Warn("video probe returned unusable metadata", "uri", uri, "error", err)
		}
	}

	return s.Video(), nil
}

// ReportMetadata records metadata from the player's load event. It can be
// set once per opened video.
func (s *Session) ReportMetadata(md media.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.videoURI == "" {
		return ErrNoVideo
	}
	return s.meta.Set(md)
}

func (s *Session) Video() VideoInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoLocked()
}

func (s *Session) videoLocked() VideoInfo {
	info := VideoInfo{URI: s.videoURI}
	if md, ok := s.meta.Get(); ok {
		info.Metadata = &md
	}
	return info
}

// SetViewport records the on-screen size of the video viewport.
func (s *Session) SetViewport(size geometry.Size) error {
	if size.Width <= 0 || size.Height <= 0 {
		return fmt.Errorf("%w: viewport must have positive width and height", ErrInvalidEdit)
	}
	s.mu.Lock()
	s.viewport = size
	s.mu.Unlock()
	return nil
}

// Fit returns the current letterbox placement, if both the viewport and the
// metadata are known.
func (s *Session) Fit() (geometry.Fit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	md, ok := s.meta.Get()
	if !ok {
		return geometry.Fit{}, fmt.Errorf("video metadata is not known yet")
	}
	return geometry.Contain(s.viewport, md)
}

// AddOverlay creates an overlay with the editor defaults and selects it.
// Asset filenames are made unique within the session since the backend
// matches uploaded files to overlays by name.
func (s *Session) AddOverlay(kind overlay.Kind, content, sourceURI string) (overlay.Overlay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.videoURI == "" {
		return overlay.Overlay{}, ErrNoVideo
	}

	var o overlay.Overlay
	switch kind {
	case overlay.KindText:
		o = overlay.NewText(content)
	case overlay.KindImage, overlay.KindVideo:
		if strings.TrimSpace(sourceURI) == "" {
			return overlay.Overlay{}, ErrMissingSource
		}
		name := content
		if name == "" {
			name = filepath.Base(strings.TrimPrefix(sourceURI, "file://"))
		}
		if kind == overlay.KindImage {
			o = overlay.NewImage(name, sourceURI)
		} else {
			o = overlay.NewVideo(name, sourceURI)
		}
		o.Content = export.AssetName(o.Content, s.assetNamesLocked(""))
	default:
		return overlay.Overlay{}, fmt.Errorf("%w: unsupported overlay kind %q", ErrInvalidEdit, kind)
	}

	id := s.store.Add(o)
	s.store.Select(id)
	added, _ := s.store.Get(id)

	logging.WithOverlayID(s.logger, id).Info("overlay added", "kind", kind, "content", added.Content)
	return added, nil
}

// UpdateOverlay merges a partial edit. Renaming an asset overlay keeps the
// new name unique.
func (s *Session) UpdateOverlay(id string, p overlay.Patch) (overlay.Overlay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.store.Get(id)
	if !ok {
		return overlay.Overlay{}, ErrNotFound
	}
	if p.Content != nil && o.Kind.HasAsset() {
		name := export.AssetName(*p.Content, s.assetNamesLocked(id))
		p.Content = &name
	}
	s.store.Update(id, p)
	updated, _ := s.store.Get(id)
	return updated, nil
}

// Field names accepted by Step.
const (
	FieldStart    = "start"
	FieldEnd      = "end"
	FieldFontSize = "font_size"
	FieldSize     = "size"
)

// Step applies one inspector step in direction (+1 or -1).
func (s *Session) Step(id, field string, direction int) (overlay.Overlay, error) {
	if direction != 1 && direction != -1 {
		return overlay.Overlay{}, fmt.Errorf("%w: direction must be 1 or -1", ErrInvalidEdit)
	}
	d := float64(direction)

	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.store.Get(id)
	if !ok {
		return overlay.Overlay{}, ErrNotFound
	}

	var p overlay.Patch
	switch field {
	case FieldStart:
		p = overlay.StartStep(o, d*overlay.TimeStepSize)
	case FieldEnd:
		p = overlay.EndStep(o, d*overlay.TimeStepSize)
	case FieldFontSize:
		if o.Kind != overlay.KindText {
			return overlay.Overlay{}, fmt.Errorf("%w: font size applies to text overlays", ErrInvalidEdit)
		}
		p = overlay.FontStep(o, d*overlay.FontStepSize)
	case FieldSize:
		if !o.Kind.HasAsset() {
			return overlay.Overlay{}, fmt.Errorf("%w: size applies to image and video overlays", ErrInvalidEdit)
		}
		p = overlay.SizeStep(o, d*overlay.SizeStepSize)
	default:
		return overlay.Overlay{}, fmt.Errorf("%w: unknown field %q", ErrInvalidEdit, field)
	}

	s.store.Update(id, p)
	updated, _ := s.store.Get(id)
	return updated, nil
}

// Drag moves an overlay by a gesture delta in display pixels.
func (s *Session) Drag(id string, dx, dy float64) (overlay.Overlay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.store.Get(id)
	if !ok {
		return overlay.Overlay{}, ErrNotFound
	}
	s.store.Update(id, overlay.Drag(o, dx, dy))
	updated, _ := s.store.Get(id)
	return updated, nil
}

func (s *Session) RemoveOverlay(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.store.Remove(id) {
		return ErrNotFound
	}
	s.sync.Forget(id)
	logging.WithOverlayID(s.logger, id).Info("overlay removed")
	return nil
}

// Select points the selection at id; an empty id clears it.
func (s *Session) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		s.store.ClearSelection()
		return nil
	}
	if _, ok := s.store.Get(id); !ok {
		return ErrNotFound
	}
	s.store.Select(id)
	return nil
}

// OverlayView is an overlay with its state at the last clock tick.
type OverlayView struct {
	overlay.Overlay
	Visible  bool `json:"visible"`
	Selected bool `json:"selected"`
}

func (s *Session) Overlays() []OverlayView {
	s.mu.Lock()
	defer s.mu.Unlock()

	selected := s.store.SelectedID()
	items := s.store.List()
	out := make([]OverlayView, 0, len(items))
	for _, o := range items {
		out = append(out, OverlayView{
			Overlay:  o,
			Visible:  playback.Visible(s.clock, o.Window),
			Selected: o.ID == selected,
		})
	}
	return out
}

func (s *Session) Overlay(id string) (overlay.Overlay, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Get(id)
}

// TickResult is what the presentation layer applies after a clock event.
type TickResult struct {
	Visible  map[string]bool    `json:"visible"`
	Commands []playback.Command `json:"commands"`
}

// Tick feeds one master clock event through the synchronizer. Media
// commands for video overlays are returned rather than executed since the
// players live in the presentation layer.
func (s *Session) Tick(c playback.Clock) TickResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clock = c
	lookup := func(id string) (playback.Handle, bool) {
		return s.commands.Handle(id), true
	}
	visible := s.sync.Sync(c, s.store.List(), lookup)

	return TickResult{
		Visible:  visible,
		Commands: s.commands.Drain(),
	}
}

// Composition snapshots what a render submission needs.
func (s *Session) Composition() render.Composition {
	s.mu.Lock()
	defer s.mu.Unlock()

	comp := render.Composition{
		VideoURI: s.videoURI,
		Viewport: s.viewport,
		Overlays: s.store.List(),
	}
	if md, ok := s.meta.Get(); ok {
		comp.Metadata = &md
	}
	return comp
}

// Submit starts a render of the current composition.
func (s *Session) Submit(ctx context.Context) error {
	if s.jobs == nil {
		return errors.New("rendering is not configured")
	}
	comp := s.Composition()
	if s.onSubmit != nil {
		s.onSubmit(comp)
	}
	return s.jobs.Submit(ctx, comp)
}

func (s *Session) ResetJob() {
	if s.jobs != nil {
		s.jobs.Reset()
	}
}

func (s *Session) Job() render.Snapshot {
	if s.jobs == nil {
		return render.Snapshot{State: render.StateIdle}
	}
	return s.jobs.Snapshot()
}

// Summary is the session at a glance.
type Summary struct {
	Video        VideoInfo       `json:"video"`
	Viewport     geometry.Size   `json:"viewport"`
	OverlayCount int             `json:"overlay_count"`
	SelectedID   string          `json:"selected_id,omitempty"`
	Clock        playback.Clock  `json:"clock"`
	Job          render.Snapshot `json:"job"`
	// Palette lists the text colors the inspector offers.
	Palette []string `json:"palette"`
}

func (s *Session) Summary() Summary {
	s.mu.Lock()
	sum := Summary{
		Video:        s.videoLocked(),
		Viewport:     s.viewport,
		OverlayCount: s.store.Len(),
		SelectedID:   s.store.SelectedID(),
		Clock:        s.clock,
		Palette:      slices.Clone(overlay.Palette),
	}
	s.mu.Unlock()

	sum.Job = s.Job()
	return sum
}

func (s *Session) assetNamesLocked(except string) map[string]bool {
	taken := make(map[string]bool)
	for _, o := range s.store.List() {
		if o.Kind.HasAsset() && o.ID != except {
			taken[o.Content] = true
		}
	}
	return taken
}
