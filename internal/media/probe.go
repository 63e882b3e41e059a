package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/shuttercut/shuttercut-agent/internal/logging"
)

const (
	maxStderrBytes      = 8 * 1024
	DefaultProbeTimeout = 30 * time.Second
)

// FFProbe reads native metadata by running ffprobe against a local file.
type FFProbe struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewFFProbe resolves the ffprobe binary. An empty preferred path searches PATH.
func NewFFProbe(preferred string, timeout time.Duration, logger *slog.Logger) (*FFProbe, error) {
	binary, err := resolveBinary(preferred, "ffprobe")
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &FFProbe{binary: binary, timeout: timeout, logger: logger}, nil
}

func (p *FFProbe) Load(ctx context.Context, uri string) (Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,duration:stream_tags=rotate:stream_side_data=rotation:format=duration",
		"-of", "json",
		uri,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = io.Writer(&limitedWriter{w: &stderr, limit: maxStderrBytes})

	start := time.Now()
	if err := cmd.Run(); err != nil {
		p.logger.Warn("ffprobe failed",
			"path", logging.SanitizePath(uri),
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
			"stderr_tail", truncate(stderr.String(), 512),
		)
		return Metadata{}, fmt.Errorf("ffprobe: %w", err)
	}

	md, err := ParseProbeOutput(stdout.Bytes())
	if err != nil {
		return Metadata{}, err
	}

	p.logger.Info("probed base video",
		"path", logging.SanitizePath(uri),
		"width", md.Width,
		"height", md.Height,
		"duration_s", md.Duration,
	)
	return md, nil
}

type probeOutput struct {
	Streams []struct {
		Width    int    `json:"width"`
		Height   int    `json:"height"`
		Duration string `json:"duration"`
		Tags     struct {
			Rotate string `json:"rotate"`
		} `json:"tags"`
		SideData []struct {
			Rotation float64 `json:"rotation"`
		} `json:"side_data_list"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ParseProbeOutput extracts metadata from ffprobe JSON. Quarter-turn
// rotations swap width and height so the result matches what a player shows.
func ParseProbeOutput(data []byte) (Metadata, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Metadata{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return Metadata{}, fmt.Errorf("%w: no video stream", ErrInvalidMetadata)
	}

	s := out.Streams[0]
	md := Metadata{Width: s.Width, Height: s.Height}

	rotation := 0.0
	if s.Tags.Rotate != "" {
		rotation, _ = strconv.ParseFloat(s.Tags.Rotate, 64)
	}
	for _, sd := range s.SideData {
		if sd.Rotation != 0 {
			rotation = sd.Rotation
		}
	}
	if int(math.Abs(rotation))%180 == 90 {
		md.Width, md.Height = md.Height, md.Width
	}

	for _, d := range []string{s.Duration, out.Format.Duration} {
		if d == "" || d == "N/A" {
			continue
		}
		if v, err := strconv.ParseFloat(d, 64); err == nil {
			md.Duration = v
			break
		}
	}

	if err := md.Validate(); err != nil {
		return Metadata{}, err
	}
	return md, nil
}

func resolveBinary(preferred, fallback string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured %s %q not found", fallback, preferred)
	}
	p, err := exec.LookPath(fallback)
	if err != nil {
		return "", fmt.Errorf("no %s binary found on PATH", fallback)
	}
	return p, nil
}

func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter keeps only the last limit bytes written to it.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}

// StaticLoader returns fixed metadata for every uri. It backs tests and
// headless setups where the caller already knows the resolution.
type StaticLoader struct {
	Metadata Metadata
	Err      error
}

func (s StaticLoader) Load(ctx context.Context, uri string) (Metadata, error) {
	if s.Err != nil {
		return Metadata{}, s.Err
	}
	return s.Metadata, nil
}
