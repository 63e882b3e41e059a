package export

// WireOverlay is one entry of the upload metadata array. Geometry is in
// source space; fields that do not apply to the kind are omitted.
type WireOverlay struct {
	ID       string  `json:"id" validate:"required"`
	Type     string  `json:"type" validate:"oneof=text image video"`
	Content  string  `json:"content" validate:"required_unless=Type text"`
	X        int     `json:"x"`
	Y        int     `json:"y"`
	Start    float64 `json:"start" validate:"gte=0"`
	End      float64 `json:"end" validate:"gtfield=Start"`
	Color    *string `json:"color,omitempty" validate:"omitempty,hexcolor|alpha"`
	FontSize *int    `json:"fontSize,omitempty" validate:"omitempty,gte=1"`
	Width    *int    `json:"width,omitempty" validate:"omitempty,gte=1"`
	Height   *int    `json:"height,omitempty" validate:"omitempty,gte=1"`
}

// Asset is one file part of the upload. Filename is the join key the
// backend uses to match metadata entries to bytes.
type Asset struct {
	OverlayID   string
	Filename    string
	URI         string
	ContentType string
}

// Payload is everything the render backend needs for one job.
type Payload struct {
	Video    Asset
	Assets   []Asset
	Metadata []WireOverlay
}
