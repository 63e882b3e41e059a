// Package project reads composition files for headless renders. A project
// names the base video and lists overlays the same way the editor would
// place them.
package project

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/shuttercut/shuttercut-agent/internal/editor"
	"github.com/shuttercut/shuttercut-agent/internal/geometry"
	"github.com/shuttercut/shuttercut-agent/internal/media"
	"github.com/shuttercut/shuttercut-agent/internal/overlay"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Project is one composition file.
//
//	video: clips/base.mp4
//	viewport: {width: 960, height: 540}
//	overlays:
//	  - type: text
//	    content: Hello
//	    x: 40
//	    y: 30
//	    start: 0
//	    end: 4
//	  - type: image
//	    file: art/logo.png
//	    width: 120
//	    height: 120
//
// Coordinates are in viewport space. Without a viewport the native
// resolution is used, which makes them source pixels.
type Project struct {
	Video    string     `yaml:"video" validate:"required"`
	Metadata *VideoMeta `yaml:"metadata,omitempty"`
	Viewport *Viewport  `yaml:"viewport,omitempty"`
	Overlays []Entry    `yaml:"overlays" validate:"dive"`

	dir string
}

// VideoMeta overrides probing when ffprobe is not available.
type VideoMeta struct {
	Width    int     `yaml:"width" validate:"gt=0"`
	Height   int     `yaml:"height" validate:"gt=0"`
	Duration float64 `yaml:"duration" validate:"gte=0"`
}

type Viewport struct {
	Width  float64 `yaml:"width" validate:"gt=0"`
	Height float64 `yaml:"height" validate:"gt=0"`
}

// Entry is one overlay. Unset fields keep the editor defaults.
type Entry struct {
	Type     string   `yaml:"type" validate:"required,oneof=text image video"`
	Content  string   `yaml:"content,omitempty"`
	File     string   `yaml:"file,omitempty" validate:"required_unless=Type text"`
	X        *float64 `yaml:"x,omitempty"`
	Y        *float64 `yaml:"y,omitempty"`
	Width    *float64 `yaml:"width,omitempty" validate:"omitempty,gt=0"`
	Height   *float64 `yaml:"height,omitempty" validate:"omitempty,gt=0"`
	Start    *float64 `yaml:"start,omitempty" validate:"omitempty,gte=0"`
	End      *float64 `yaml:"end,omitempty" validate:"omitempty,gte=0"`
	Color    string   `yaml:"color,omitempty"`
	FontSize *float64 `yaml:"font_size,omitempty" validate:"omitempty,gt=0"`
}

func (e Entry) Kind() overlay.Kind {
	return overlay.Kind(e.Type)
}

// Patch returns the fields the entry sets on top of the defaults.
func (e Entry) Patch() overlay.Patch {
	p := overlay.Patch{
		X:        e.X,
		Y:        e.Y,
		Width:    e.Width,
		Height:   e.Height,
		Start:    e.Start,
		End:      e.End,
		FontSize: e.FontSize,
	}
	if e.Color != "" {
		color := e.Color
		p.Color = &color
	}
	return p
}

// Load reads and validates the project at path.
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve project path: %w", err)
	}
	return Parse(bytes.NewReader(data), filepath.Dir(abs))
}

// Parse decodes a project. Relative paths resolve against dir.
func Parse(r io.Reader, dir string) (*Project, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var p Project
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("project file is empty")
		}
		return nil, fmt.Errorf("parse project: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	p.dir = dir
	p.Video = p.resolve(p.Video)
	for i := range p.Overlays {
		if p.Overlays[i].File != "" {
			p.Overlays[i].File = p.resolve(p.Overlays[i].File)
		}
	}
	return &p, nil
}

func (p *Project) validate() error {
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("invalid project: %w", err)
		}
		problems := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s failed %s", fieldPath(fe.Namespace()), fe.Tag()))
		}
		return fmt.Errorf("invalid project: %s", strings.Join(problems, ", "))
	}

	for i, e := range p.Overlays {
		if e.Start != nil && e.End != nil && *e.End < *e.Start {
			return fmt.Errorf("invalid project: overlay %d ends before it starts", i+1)
		}
	}
	return nil
}

// fieldPath turns Project.Overlays[0].Start into overlays[0].start.
func fieldPath(ns string) string {
	_, rest, found := strings.Cut(ns, ".")
	if !found {
		rest = ns
	}
	return strings.ToLower(rest)
}

func (p *Project) resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if strings.Contains(ref, "://") || filepath.IsAbs(ref) || p.dir == "" {
		return ref
	}
	return filepath.Join(p.dir, ref)
}

// Apply opens the project in s: base video, metadata, viewport and every
// overlay in file order.
func (p *Project) Apply(ctx context.Context, s *editor.Session) error {
	info, err := s.OpenVideo(ctx, p.Video)
	if err != nil {
		return err
	}

	// probed values win over the file
	if info.Metadata == nil && p.Metadata != nil {
		md := media.Metadata{Width: p.Metadata.Width, Height: p.Metadata.Height, Duration: p.Metadata.Duration}
		if err := s.ReportMetadata(md); err != nil {
			return fmt.Errorf("set video metadata: %w", err)
		}
		info.Metadata = &md
	}
	if info.Metadata == nil {
		return fmt.Errorf("could not read metadata for %s; add a metadata section", p.Video)
	}

	viewport := geometry.Size{Width: float64(info.Metadata.Width), Height: float64(info.Metadata.Height)}
	if p.Viewport != nil {
		viewport = geometry.Size{Width: p.Viewport.Width, Height: p.Viewport.Height}
	}
	if err := s.SetViewport(viewport); err != nil {
		return err
	}

	for i, e := range p.Overlays {
		content := e.Content
		if e.Kind().HasAsset() && content == "" {
			content = filepath.Base(e.File)
		}
		o, err := s.AddOverlay(e.Kind(), content, e.File)
		if err != nil {
			return fmt.Errorf("overlay %d: %w", i+1, err)
		}
		if patch := e.Patch(); !patch.IsEmpty() {
			if _, err := s.UpdateOverlay(o.ID, patch); err != nil {
				return fmt.Errorf("overlay %d: %w", i+1, err)
			}
		}
	}
	// the last added overlay is selected; a headless render has no use for it
	return s.Select("")
}
