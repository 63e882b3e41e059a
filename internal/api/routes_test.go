package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shuttercut/shuttercut-agent/internal/editor"
	"github.com/shuttercut/shuttercut-agent/internal/history"
	"github.com/shuttercut/shuttercut-agent/internal/media"
	"github.com/shuttercut/shuttercut-agent/internal/render"
)

const testToken = "test-token"

type fakeRepo struct {
	jobs map[string]*history.Job
}

func (f *fakeRepo) CreateJob(ctx context.Context, job *history.Job) error { return nil }
func (f *fakeRepo) UpdateJob(ctx context.Context, job *history.Job) error { return nil }
func (f *fakeRepo) SetResult(ctx context.Context, id, path string, size int64) error {
	return nil
}
func (f *fakeRepo) ListPendingDownloads(ctx context.Context) ([]*history.Job, error) {
	return nil, nil
}

func (f *fakeRepo) GetJob(ctx context.Context, id string) (*history.Job, error) {
	return f.jobs[id], nil
}

func (f *fakeRepo) ListJobs(ctx context.Context, limit int) ([]*history.Job, error) {
	out := make([]*history.Job, 0, len(f.jobs))
	for _, j := range f.jobs {
		if len(out) == limit {
			break
		}
		out = append(out, j)
	}
	return out, nil
}

func (f *fakeRepo) GetConfig(ctx context.Context, key string) (string, error) {
	if key == history.ConfigKeyAuthToken {
		return testToken, nil
	}
	return "", nil
}

func (f *fakeRepo) SetConfig(ctx context.Context, key, value string) error { return nil }

type fakeJobs struct {
	snap      render.Snapshot
	submitted []render.Composition
	err       error
}

func (f *fakeJobs) Submit(ctx context.Context, comp render.Composition) error {
	if f.err != nil {
		return f.err
	}
	f.submitted = append(f.submitted, comp)
	f.snap = render.Snapshot{State: render.StateUploading}
	return nil
}

func (f *fakeJobs) Reset() {
	f.snap = render.Snapshot{State: render.StateIdle}
}

func (f *fakeJobs) Snapshot() render.Snapshot {
	if f.snap.State == "" {
		return render.Snapshot{State: render.StateIdle}
	}
	return f.snap
}

type fakeMedia struct {
	served []string
}

func (f *fakeMedia) Serve(w http.ResponseWriter, r *http.Request, path string) error {
	f.served = append(f.served, path)
	w.Header().Set("Accept-Ranges", "bytes")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		io.WriteString(w, "media")
	}
	return nil
}

type testEnv struct {
	router http.Handler
	jobs   *fakeJobs
	repo   *fakeRepo
	media  *fakeMedia
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	jobs := &fakeJobs{}
	repo := &fakeRepo{jobs: map[string]*history.Job{}}
	mediaServer := &fakeMedia{}

	session := editor.NewSession(editor.Options{
		Loader: media.StaticLoader{Metadata: media.Metadata{Width: 1920, Height: 1080, Duration: 30}},
		Jobs:   jobs,
	}, logger)

	router := NewRouter(ServerConfig{
		Session:    session,
		Repository: repo,
		Media:      mediaServer,
		Logger:     logger,
		StartTime:  time.Now(),
		Version:    "test",
	})
	return &testEnv{router: router, jobs: jobs, repo: repo, media: mediaServer}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+testToken)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return body
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status code = %d, want %d (body %s)", rr.Code, want, rr.Body.String())
	}
}

func TestHealth_NoAuth(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	expectStatus(t, rr, http.StatusOK)
	body := decodeJSONBody(t, rr)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Fatalf("health body = %v", body)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/status", "/overlays", "/export", "/jobs"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token = %d, want %d", path, rr.Code, http.StatusUnauthorized)
		}
	}
}

func TestEditingFlow(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/overlays", `{"kind":"text"}`)
	expectStatus(t, rr, http.StatusConflict)

	rr = env.do(t, http.MethodPost, "/video", `{"uri":"/videos/base.mp4"}`)
	expectStatus(t, rr, http.StatusOK)
	video := decodeJSONBody(t, rr)
	md, ok := video["metadata"].(map[string]interface{})
	if !ok || md["native_width"] != float64(1920) {
		t.Fatalf("video metadata = %v", video["metadata"])
	}

	rr = env.do(t, http.MethodPut, "/viewport", `{"width":960,"height":540}`)
	expectStatus(t, rr, http.StatusNoContent)

	rr = env.do(t, http.MethodPost, "/overlays", `{"kind":"text","content":"Title"}`)
	expectStatus(t, rr, http.StatusCreated)
	created := decodeJSONBody(t, rr)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("created overlay has no id: %v", created)
	}

	rr = env.do(t, http.MethodPatch, "/overlays/"+id, `{"x":100,"end":8}`)
	expectStatus(t, rr, http.StatusOK)
	updated := decodeJSONBody(t, rr)
	if pos := updated["position"].(map[string]interface{}); pos["x"] != float64(100) {
		t.Fatalf("position = %v, want x 100", pos)
	}

	rr = env.do(t, http.MethodPost, "/overlays/"+id+"/step", `{"field":"font_size","direction":1}`)
	expectStatus(t, rr, http.StatusOK)
	stepped := decodeJSONBody(t, rr)
	if style := stepped["style"].(map[string]interface{}); style["font_size"] != float64(26) {
		t.Fatalf("font size = %v, want 26", style["font_size"])
	}

	rr = env.do(t, http.MethodPost, "/overlays/"+id+"/drag", `{"dx":5,"dy":-5}`)
	expectStatus(t, rr, http.StatusOK)

	rr = env.do(t, http.MethodPost, "/clock", `{"playing":true,"position":9}`)
	expectStatus(t, rr, http.StatusOK)
	tick := decodeJSONBody(t, rr)
	if visible := tick["visible"].(map[string]interface{}); visible[id] != false {
		t.Fatalf("overlay visible at 9s = %v, want false", visible[id])
	}

	rr = env.do(t, http.MethodGet, "/overlays", "")
	expectStatus(t, rr, http.StatusOK)
	list := decodeJSONBody(t, rr)
	overlays := list["overlays"].([]interface{})
	if len(overlays) != 1 {
		t.Fatalf("overlay count = %d, want 1", len(overlays))
	}
	if first := overlays[0].(map[string]interface{}); first["selected"] != true {
		t.Fatalf("new overlay should be selected: %v", first)
	}

	rr = env.do(t, http.MethodPut, "/selection", `{"id":""}`)
	expectStatus(t, rr, http.StatusNoContent)

	rr = env.do(t, http.MethodGet, "/status", "")
	expectStatus(t, rr, http.StatusOK)
	status := decodeJSONBody(t, rr)
	if status["overlay_count"] != float64(1) {
		t.Fatalf("overlay_count = %v, want 1", status["overlay_count"])
	}
	if _, ok := status["selected_id"]; ok {
		t.Fatalf("selection should be cleared: %v", status["selected_id"])
	}
	if palette, ok := status["palette"].([]interface{}); !ok || len(palette) == 0 || palette[0] != "#FFFFFF" {
		t.Fatalf("palette = %v, want the inspector colors", status["palette"])
	}

	rr = env.do(t, http.MethodDelete, "/overlays/"+id, "")
	expectStatus(t, rr, http.StatusNoContent)

	rr = env.do(t, http.MethodDelete, "/overlays/"+id, "")
	expectStatus(t, rr, http.StatusNotFound)
}

func TestRequestValidation(t *testing.T) {
	env := newTestEnv(t)
	expectStatus(t, env.do(t, http.MethodPost, "/video", `{"uri":"/videos/base.mp4"}`), http.StatusOK)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
		code   string
	}{
		{"malformed json", http.MethodPost, "/overlays", `{"kind":`, http.StatusBadRequest, CodeBadRequest},
		{"unknown field", http.MethodPost, "/overlays", `{"kind":"text","colour":"red"}`, http.StatusBadRequest, CodeBadRequest},
		{"bad kind", http.MethodPost, "/overlays", `{"kind":"sticker"}`, http.StatusBadRequest, CodeValidation},
		{"asset without source", http.MethodPost, "/overlays", `{"kind":"image"}`, http.StatusBadRequest, CodeValidation},
		{"zero viewport", http.MethodPut, "/viewport", `{"width":0,"height":10}`, http.StatusBadRequest, CodeValidation},
		{"bad direction", http.MethodPost, "/overlays/x/step", `{"field":"start","direction":2}`, http.StatusBadRequest, CodeValidation},
		{"unknown overlay", http.MethodPost, "/overlays/x/step", `{"field":"start","direction":1}`, http.StatusNotFound, CodeNotFound},
		{"empty patch", http.MethodPatch, "/overlays/x", `{}`, http.StatusBadRequest, CodeBadRequest},
		{"negative clock", http.MethodPost, "/clock", `{"position":-1}`, http.StatusBadRequest, CodeValidation},
		{"metadata already set", http.MethodPut, "/video/metadata", `{"native_width":640,"native_height":360}`, http.StatusConflict, CodeConflict},
		{"select unknown", http.MethodPut, "/selection", `{"id":"nope"}`, http.StatusNotFound, CodeNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := env.do(t, tc.method, tc.path, tc.body)
			expectStatus(t, rr, tc.want)
			if body := decodeJSONBody(t, rr); body["code"] != tc.code {
				t.Fatalf("code = %v, want %s", body["code"], tc.code)
			}
		})
	}
}

func TestExport(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/export", "")
	expectStatus(t, rr, http.StatusOK)
	if body := decodeJSONBody(t, rr); body["state"] != string(render.StateIdle) {
		t.Fatalf("state = %v, want idle", body["state"])
	}

	expectStatus(t, env.do(t, http.MethodPost, "/video", `{"uri":"/videos/base.mp4"}`), http.StatusOK)
	expectStatus(t, env.do(t, http.MethodPut, "/viewport", `{"width":960,"height":540}`), http.StatusNoContent)

	rr = env.do(t, http.MethodPost, "/export", "")
	expectStatus(t, rr, http.StatusAccepted)
	if body := decodeJSONBody(t, rr); body["state"] != string(render.StateUploading) {
		t.Fatalf("state = %v, want uploading", body["state"])
	}
	if len(env.jobs.submitted) != 1 || env.jobs.submitted[0].VideoURI != "/videos/base.mp4" {
		t.Fatalf("submitted = %+v", env.jobs.submitted)
	}

	env.jobs.err = render.ErrBusy
	rr = env.do(t, http.MethodPost, "/export", "")
	expectStatus(t, rr, http.StatusConflict)

	env.jobs.err = &render.ValidationError{Reason: "viewport is not known"}
	rr = env.do(t, http.MethodPost, "/export", "")
	expectStatus(t, rr, http.StatusBadRequest)
	if body := decodeJSONBody(t, rr); body["code"] != CodeValidation {
		t.Fatalf("code = %v, want %s", body["code"], CodeValidation)
	}

	rr = env.do(t, http.MethodDelete, "/export", "")
	expectStatus(t, rr, http.StatusNoContent)
	if env.jobs.Snapshot().State != render.StateIdle {
		t.Fatalf("state after reset = %s, want idle", env.jobs.Snapshot().State)
	}
}

func TestJobs(t *testing.T) {
	env := newTestEnv(t)
	env.repo.jobs["j1"] = &history.Job{ID: "j1", Status: history.JobStatusCompleted, ResultPath: "/results/r1.mp4"}
	env.repo.jobs["j2"] = &history.Job{ID: "j2", Status: history.JobStatusProcessing}

	rr := env.do(t, http.MethodGet, "/jobs", "")
	expectStatus(t, rr, http.StatusOK)
	if jobs := decodeJSONBody(t, rr)["jobs"].([]interface{}); len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(jobs))
	}

	rr = env.do(t, http.MethodGet, "/jobs?limit=1", "")
	expectStatus(t, rr, http.StatusOK)
	if jobs := decodeJSONBody(t, rr)["jobs"].([]interface{}); len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(jobs))
	}

	expectStatus(t, env.do(t, http.MethodGet, "/jobs?limit=zero", ""), http.StatusBadRequest)

	rr = env.do(t, http.MethodGet, "/jobs/j2", "")
	expectStatus(t, rr, http.StatusOK)
	if body := decodeJSONBody(t, rr); body["status"] != history.JobStatusProcessing {
		t.Fatalf("status = %v", body["status"])
	}

	expectStatus(t, env.do(t, http.MethodGet, "/jobs/missing", ""), http.StatusNotFound)
}

func TestMediaRoutes(t *testing.T) {
	env := newTestEnv(t)
	env.repo.jobs["j1"] = &history.Job{ID: "j1", Status: history.JobStatusCompleted, ResultPath: "/results/r1.mp4"}
	env.repo.jobs["j2"] = &history.Job{ID: "j2", Status: history.JobStatusProcessing}

	server := httptest.NewServer(env.router)
	defer server.Close()

	get := func(method, path string) (*http.Response, string) {
		t.Helper()
		req, _ := http.NewRequest(method, server.URL+path, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request error: %v", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp, string(body)
	}

	resp, _ := get(http.MethodGet, "/media/video")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("video before load = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}

	expectStatus(t, env.do(t, http.MethodPost, "/video", `{"uri":"file:///videos/base.mp4"}`), http.StatusOK)
	rr := env.do(t, http.MethodPost, "/overlays", `{"kind":"image","source_uri":"/assets/logo.png"}`)
	expectStatus(t, rr, http.StatusCreated)
	imageID := decodeJSONBody(t, rr)["id"].(string)

	resp, body := get(http.MethodGet, "/media/video")
	if resp.StatusCode != http.StatusOK || body != "media" {
		t.Fatalf("video = %d %q", resp.StatusCode, body)
	}

	resp, body = get(http.MethodHead, "/media/overlays/"+imageID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("overlay media HEAD = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if body != "" {
		t.Errorf("HEAD response body = %q, want empty", body)
	}

	resp, _ = get(http.MethodGet, "/jobs/j1/result")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("result = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	resp, _ = get(http.MethodGet, "/jobs/j2/result")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("result before download = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}

	want := []string{"file:///videos/base.mp4", "/assets/logo.png", "/results/r1.mp4"}
	if strings.Join(env.media.served, ",") != strings.Join(want, ",") {
		t.Fatalf("served = %v, want %v", env.media.served, want)
	}
}

func TestMediaRoutes_RemoteVideoNotServed(t *testing.T) {
	env := newTestEnv(t)
	expectStatus(t, env.do(t, http.MethodPost, "/video", `{"uri":"https://cdn.example.com/base.mp4"}`), http.StatusOK)

	req := httptest.NewRequest(http.MethodGet, "/media/video", nil)
	req.RemoteAddr = "127.0.0.1:5000"
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	expectStatus(t, rr, http.StatusNotFound)
	if len(env.media.served) != 0 {
		t.Fatalf("remote video should not be streamed, served %v", env.media.served)
	}
}
