// Package media describes the base video the editor composes onto and the
// capability that reads its native properties.
package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrAlreadySet      = errors.New("video metadata already set")
	ErrInvalidMetadata = errors.New("invalid video metadata")
)

// Metadata holds the native properties of the base video.
type Metadata struct {
	Width    int     `json:"native_width"`
	Height   int     `json:"native_height"`
	Duration float64 `json:"duration_seconds"`
}

// Validate reports whether the metadata can drive source-space computations.
func (m Metadata) Validate() error {
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("%w: resolution %dx%d", ErrInvalidMetadata, m.Width, m.Height)
	}
	if m.Duration < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidMetadata)
	}
	return nil
}

// AspectRatio returns width / height.
func (m Metadata) AspectRatio() float64 {
	return float64(m.Width) / float64(m.Height)
}

// Loader is the media-loader capability: it resolves a base video reference
// to its native metadata once the video can be opened.
type Loader interface {
	Load(ctx context.Context, uri string) (Metadata, error)
}

// Cell stores the metadata for one editing session. It is written once by
// the load event and read by the transform engine and the synchronizer.
type Cell struct {
	mu  sync.RWMutex
	set bool
	md  Metadata
}

// Set stores m. A second Set fails with ErrAlreadySet.
func (c *Cell) Set(m Metadata) error {
	if err := m.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.set {
		return ErrAlreadySet
	}
	c.md = m
	c.set = true
	return nil
}

// Get returns the metadata and whether it has been set.
func (c *Cell) Get() (Metadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.md, c.set
}
