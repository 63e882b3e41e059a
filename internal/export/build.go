// Package export turns the editor's overlays into the render backend's
// upload payload: geometry rewritten to source space, asset parts named by
// each overlay's filename, display-only fields dropped.
package export

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/shuttercut/shuttercut-agent/internal/geometry"
	"github.com/shuttercut/shuttercut-agent/internal/overlay"
)

const defaultVideoFilename = "video.mp4"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Build converts display-space overlays to a payload for the base video at
// videoURI, using fit to reach source space.
func Build(videoURI string, overlays []overlay.Overlay, fit geometry.Fit) (*Payload, error) {
	if strings.TrimSpace(videoURI) == "" {
		return nil, errors.New("base video is required")
	}

	p := &Payload{
		Video: Asset{
			Filename:    videoFilename(videoURI),
			URI:         videoURI,
			ContentType: contentType(videoURI, overlay.KindVideo),
		},
		Metadata: make([]WireOverlay, 0, len(overlays)),
	}

	seen := make(map[string]string)
	var problems []string

	for _, o := range overlays {
		w := ToWire(o, fit)
		if err := validate.Struct(w); err != nil {
			problems = append(problems, describe(o.ID, err))
			continue
		}

		if o.Kind.HasAsset() {
			if o.SourceURI == "" {
				problems = append(problems, fmt.Sprintf("overlay %s: no asset selected", o.ID))
				continue
			}
			if other, dup := seen[o.Content]; dup {
				problems = append(problems, fmt.Sprintf("overlay %s: filename %q already used by overlay %s", o.ID, o.Content, other))
				continue
			}
			seen[o.Content] = o.ID
			p.Assets = append(p.Assets, Asset{
				OverlayID:   o.ID,
				Filename:    o.Content,
				URI:         o.SourceURI,
				ContentType: contentType(o.Content, o.Kind),
			})
		}

		p.Metadata = append(p.Metadata, w)
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid overlays: %s", strings.Join(problems, "; "))
	}
	return p, nil
}

// ToWire converts one overlay. The time window passes through unchanged.
func ToWire(o overlay.Overlay, fit geometry.Fit) WireOverlay {
	x, y := fit.PointToSource(geometry.Point{X: o.Position.X, Y: o.Position.Y})
	w := WireOverlay{
		ID:      o.ID,
		Type:    string(o.Kind),
		Content: o.Content,
		X:       x,
		Y:       y,
		Start:   o.Window.Start,
		End:     o.Window.End,
	}

	switch o.Kind {
	case overlay.KindText:
		color := overlay.DefaultColor
		fontSize := overlay.DefaultFontSize
		if o.Style != nil {
			if o.Style.Color != "" {
				color = o.Style.Color
			}
			if o.Style.FontSize > 0 {
				fontSize = o.Style.FontSize
			}
		}
		fs := fit.FontToSource(fontSize)
		w.Color = &color
		w.FontSize = &fs
	case overlay.KindImage, overlay.KindVideo:
		if o.Size != nil {
			sw, sh := fit.SizeToSource(geometry.Size{Width: o.Size.Width, Height: o.Size.Height})
			w.Width = &sw
			w.Height = &sh
		}
	}
	return w
}

func describe(id string, err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Sprintf("overlay %s: %v", id, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return fmt.Sprintf("overlay %s: %s", id, strings.Join(fields, ", "))
}

func videoFilename(uri string) string {
	name := SanitizeName(filepath.Base(uri), maxAssetNameLen)
	if name == "" || name == "." || filepath.Ext(name) == "" {
		return defaultVideoFilename
	}
	return name
}

func contentType(name string, k overlay.Kind) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); ct != "" {
		return ct
	}
	if k == overlay.KindImage {
		return "image/png"
	}
	return "video/mp4"
}
