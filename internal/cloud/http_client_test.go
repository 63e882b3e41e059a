package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/shuttercut/shuttercut-agent/internal/export"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeTemp(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, bytes.Repeat([]byte("x"), size), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func testPayload(t *testing.T) *export.Payload {
	video := writeTemp(t, "base.mp4", 64<<10)
	logo := writeTemp(t, "logo.png", 8<<10)
	color := "#FFFFFF"
	fs := 58
	w, h := 240, 240
	return &export.Payload{
		Video: export.Asset{Filename: "base.mp4", URI: video, ContentType: "video/mp4"},
		Assets: []export.Asset{
			{OverlayID: "o2", Filename: "logo.png", URI: "file://" + logo, ContentType: "image/png"},
		},
		Metadata: []export.WireOverlay{
			{ID: "o1", Type: "text", Content: "Hi", X: 960, Y: 540, Start: 0, End: 5, Color: &color, FontSize: &fs},
			{ID: "o2", Type: "image", Content: "logo.png", X: 0, Y: 0, Start: 1, End: 3, Width: &w, Height: &h},
		},
	}
}

func TestHTTPClient_Upload_Success(t *testing.T) {
	var gotVideo, gotAsset string
	var gotMeta []export.WireOverlay
	var gotAuth, gotRequestID string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/upload" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get(requestIDHeader)

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if fh := r.MultipartForm.File["video"]; len(fh) == 1 {
			gotVideo = fh[0].Filename
		}
		if fh := r.MultipartForm.File["assets"]; len(fh) == 1 {
			gotAsset = fh[0].Filename
		}
		json.Unmarshal([]byte(r.FormValue("metadata")), &gotMeta)

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"job_id":"job-1","status":"queued"}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, HTTPClientOptions{Token: "secret"}, testLogger())

	var progress []int
	resp, err := client.Upload(context.Background(), testPayload(t), func(p int) {
		progress = append(progress, p)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.JobID != "job-1" {
		t.Errorf("job_id = %q, want job-1", resp.JobID)
	}
	if gotVideo != "base.mp4" {
		t.Errorf("video filename = %q", gotVideo)
	}
	if gotAsset != "logo.png" {
		t.Errorf("asset filename = %q", gotAsset)
	}
	if len(gotMeta) != 2 || gotMeta[1].Content != "logo.png" || *gotMeta[0].FontSize != 58 {
		t.Errorf("metadata = %+v", gotMeta)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotRequestID == "" {
		t.Error("missing request id header")
	}

	if len(progress) == 0 || progress[len(progress)-1] != 100 {
		t.Fatalf("progress = %v, want to end at 100", progress)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] <= progress[i-1] {
			t.Fatalf("progress not increasing: %v", progress)
		}
	}
}

func TestHTTPClient_Upload_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail":"Processing queue is full"}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, HTTPClientOptions{}, testLogger())
	_, err := client.Upload(context.Background(), testPayload(t), nil)
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != 500 {
		t.Errorf("status = %d, want 500", apiErr.StatusCode)
	}
	if !apiErr.IsRetryable() {
		t.Error("500 should be retryable")
	}
	if apiErr.Message() != "Processing queue is full" {
		t.Errorf("message = %q", apiErr.Message())
	}
}

func TestHTTPClient_Upload_MissingAssetMakesNoRequest(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	p := testPayload(t)
	p.Assets[0].URI = filepath.Join(t.TempDir(), "gone.png")

	client := NewHTTPClient(server.URL, HTTPClientOptions{}, testLogger())
	_, err := client.Upload(context.Background(), p, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "logo.png") {
		t.Errorf("error should name the asset: %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("server called %d times, want 0", calls.Load())
	}
}

func TestHTTPClient_Upload_NetworkError(t *testing.T) {
	client := NewHTTPClient("http://127.0.0.1:1", HTTPClientOptions{}, testLogger())
	_, err := client.Upload(context.Background(), testPayload(t), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Error("network error should not be *APIError")
	}
}

func TestHTTPClient_Status(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/status/job-1":
			w.Write([]byte(`{"job_id":"job-1","status":"running","progress":42.5,"error":null}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"detail":"Job not found"}`))
		}
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, HTTPClientOptions{}, testLogger())

	st, err := client.Status(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Status != StatusRunning || st.Progress == nil || *st.Progress != 42.5 || st.Error != nil {
		t.Errorf("status = %+v", st)
	}

	_, err = client.Status(context.Background(), "nope")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 404 {
		t.Fatalf("expected 404 APIError, got %v", err)
	}
	if apiErr.IsRetryable() {
		t.Error("404 should not be retryable")
	}
}

func TestHTTPClient_Status_EscapesJobID(t *testing.T) {
	seen := make(chan *url.URL, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.URL
		w.Write([]byte(`{"job_id":"job?x=1","status":"queued"}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, HTTPClientOptions{}, testLogger())

	for _, id := range []string{"job?x=1", "a/b", "frag#1"} {
		if _, err := client.Status(context.Background(), id); err != nil {
			t.Fatalf("Status(%q) error = %v", id, err)
		}
		u := <-seen
		if u.Path != "/status/"+id || u.RawQuery != "" {
			t.Errorf("Status(%q) requested path=%q query=%q", id, u.Path, u.RawQuery)
		}
	}
}

func TestHTTPClient_ResultURL(t *testing.T) {
	client := NewHTTPClient("http://render.local:8000/", HTTPClientOptions{}, testLogger())
	if got := client.ResultURL("abc"); got != "http://render.local:8000/result/abc" {
		t.Errorf("ResultURL = %q", got)
	}
	if got := client.ResultURL("../x?y"); got != "http://render.local:8000/result/..%2Fx%3Fy" {
		t.Errorf("ResultURL = %q", got)
	}
}

func TestHTTPClient_DownloadResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/result/job-1" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"detail":"Video not ready. Status: running"}`))
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("rendered-bytes"))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, HTTPClientOptions{}, testLogger())

	var buf bytes.Buffer
	n, err := client.DownloadResult(context.Background(), "job-1", &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != int64(len("rendered-bytes")) || buf.String() != "rendered-bytes" {
		t.Errorf("downloaded %d bytes: %q", n, buf.String())
	}

	_, err = client.DownloadResult(context.Background(), "job-2", io.Discard)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message() != "Video not ready. Status: running" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHTTPClient_Health(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"healthy","service":"video-overlay-api","version":"1.0.0"}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, HTTPClientOptions{}, testLogger())
	h, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Status != "healthy" || h.Version != "1.0.0" {
		t.Errorf("health = %+v", h)
	}
}

func TestAPIError_Message(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"error":"Invalid metadata JSON"}`, "Invalid metadata JSON"},
		{`{"detail":"Job not found"}`, "Job not found"},
		{`{"detail":[{"loc":["body"],"msg":"field required"}]}`, `{"detail":[{"loc":["body"],"msg":"field required"}]}`},
		{"Bad Gateway", "Bad Gateway"},
		{"", "HTTP 502"},
	}
	for _, tc := range tests {
		e := &APIError{StatusCode: 502, Body: tc.body}
		if got := e.Message(); got != tc.want {
			t.Errorf("Message(%q) = %q, want %q", tc.body, got, tc.want)
		}
	}
}

func TestProgressTracker(t *testing.T) {
	var got []int
	tr := newProgressTracker(200, func(p int) { got = append(got, p) })

	tr.Write(make([]byte, 50))
	tr.Write(make([]byte, 1))
	tr.Write(make([]byte, 0))
	tr.Write(make([]byte, 149))
	tr.finish()

	want := []int{25, 99, 100}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestStubClient(t *testing.T) {
	c := NewStubClient(testLogger())
	resp, err := c.Upload(context.Background(), testPayload(t), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st, err := c.Status(context.Background(), resp.JobID)
	if err != nil || st.Status != StatusCompleted {
		t.Fatalf("status = %+v, err = %v", st, err)
	}
	if _, err := c.Status(context.Background(), "unknown"); err == nil {
		t.Error("expected error for unknown job")
	}
}
