package playback

import (
	"log/slog"
	"math"

	"github.com/shuttercut/shuttercut-agent/internal/overlay"
)

// Clock is the master clock as seen by the synchronizer. Known is false
// until the base video has reported a position.
type Clock struct {
	Known    bool    `json:"known"`
	Playing  bool    `json:"playing"`
	Position float64 `json:"position"`
}

// Handle drives the local playback of one video overlay.
type Handle interface {
	Play() error
	Pause() error
	Seek(ms int64) error
}

// HandleLookup resolves the media handle for an overlay id.
type HandleLookup func(id string) (Handle, bool)

// Visible reports whether an overlay with window w shows at clock c. An
// unknown clock shows everything so the editor is usable before playback.
func Visible(c Clock, w overlay.Window) bool {
	return !c.Known || w.Contains(c.Position)
}

// Synchronizer phase-locks video overlays to the master clock. Seeks are
// issued only on edges: entering the window while playing, or while paused.
// Running overlays are left alone between edges.
type Synchronizer struct {
	following map[string]bool
	logger    *slog.Logger
}

func NewSynchronizer(logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		following: make(map[string]bool),
		logger:    logger,
	}
}

// Sync evaluates one master clock tick or play/pause transition and
// returns visibility for every overlay.
func (s *Synchronizer) Sync(c Clock, overlays []overlay.Overlay, lookup HandleLookup) map[string]bool {
	visible := make(map[string]bool, len(overlays))
	for _, o := range overlays {
		v := Visible(c, o.Window)
		visible[o.ID] = v

		if o.Kind != overlay.KindVideo || !c.Known || lookup == nil {
			continue
		}
		h, ok := lookup(o.ID)
		if !ok {
			continue
		}
		s.drive(o, c, v, h)
	}
	return visible
}

func (s *Synchronizer) drive(o overlay.Overlay, c Clock, inWindow bool, h Handle) {
	wasFollowing := s.following[o.ID]
	localMs := localOffsetMs(c.Position, o.Window.Start)

	switch {
	case inWindow && c.Playing:
		if !wasFollowing {
			s.try(o.ID, "seek", h.Seek(localMs))
			s.try(o.ID, "play", h.Play())
			s.following[o.ID] = true
		}
	case inWindow:
		if wasFollowing {
			s.try(o.ID, "pause", h.Pause())
			s.following[o.ID] = false
		}
		s.try(o.ID, "seek", h.Seek(localMs))
	default:
		if wasFollowing {
			s.try(o.ID, "pause", h.Pause())
			s.following[o.ID] = false
		}
	}
}

// try swallows media errors; the visual cost is a stale frame.
func (s *Synchronizer) try(id, op string, err error) {
	if err != nil && s.logger != nil {
		s.logger.Debug("overlay media command failed", "overlay_id", id, "op", op, "error", err)
	}
}

// Following reports whether the overlay was locked to the clock after the
// last Sync.
func (s *Synchronizer) Following(id string) bool {
	return s.following[id]
}

// Forget drops the state of a removed overlay.
func (s *Synchronizer) Forget(id string) {
	delete(s.following, id)
}

func (s *Synchronizer) Reset() {
	clear(s.following)
}

func localOffsetMs(position, start float64) int64 {
	return int64(math.Round((position - start) * 1000))
}
