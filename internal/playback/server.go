package playback

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// MediaServer streams local media (the base video, overlay assets, render
// results) to the presentation layer. Range requests let the player seek.
type MediaServer struct {
	logger *slog.Logger
}

func NewMediaServer(logger *slog.Logger) *MediaServer {
	return &MediaServer{logger: logger}
}

// Serve writes path to w. Missing files and directories get a 404 and a nil
// error; the error return is for failures after the file was found.
func (s *MediaServer) Serve(w http.ResponseWriter, r *http.Request, path string) error {
	file, err := os.Open(strings.TrimPrefix(path, "file://"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.Error(w, "media not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("open media: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat media: %w", err)
	}
	if info.IsDir() {
		http.Error(w, "media not found", http.StatusNotFound)
		return nil
	}

	// only byte ranges are meaningful; anything else gets the whole file
	if rng := r.Header.Get("Range"); rng != "" && !strings.HasPrefix(strings.TrimSpace(rng), "bytes=") {
		r.Header.Del("Range")
	}

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", mediaType(path))
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), file)

	if s.logger != nil {
		s.logger.Debug("media served", "path", path, "range", r.Header.Get("Range"), "size", info.Size())
	}
	return nil
}

func mediaType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	switch ext {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".webm":
		return "video/webm"
	default:
		return "application/octet-stream"
	}
}
