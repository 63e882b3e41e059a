package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shuttercut/shuttercut-agent/internal/export"
)

const (
	requestIDHeader = "X-Request-Id"
	maxErrorBody    = 64 << 10
)

var (
	openFile     = os.Open
	quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")
)

// HTTPClient talks to the render backend over HTTP.
type HTTPClient struct {
	baseURL      string
	token        string
	httpClient   *http.Client
	uploadClient *http.Client
	open         Opener
	logger       *slog.Logger
}

type HTTPClientOptions struct {
	Token          string
	RequestTimeout time.Duration
	UploadTimeout  time.Duration
	Opener         Opener
}

func NewHTTPClient(baseURL string, opts HTTPClientOptions, logger *slog.Logger) *HTTPClient {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = 5 * time.Minute
	}
	if opts.Opener == nil {
		opts.Opener = OpenLocal
	}
	return &HTTPClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		token:        opts.Token,
		httpClient:   &http.Client{Timeout: opts.RequestTimeout},
		uploadClient: &http.Client{Timeout: opts.UploadTimeout},
		open:         opts.Opener,
		logger:       logger,
	}
}

type part struct {
	field       string
	filename    string
	contentType string
	body        io.ReadCloser
}

// Upload streams the base video, every asset and the metadata JSON as one
// multipart request. Progress counts file bytes handed to the transport and
// reaches 100 only once the backend has answered.
func (c *HTTPClient) Upload(ctx context.Context, p *export.Payload, onProgress ProgressFunc) (*UploadResponse, error) {
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	parts, total, err := c.openParts(p)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, pt := range parts {
			pt.body.Close()
		}
	}()

	url := c.baseURL + "/upload"
	requestID := uuid.NewString()
	c.logger.Info("uploading render job",
		"url", url,
		"request_id", requestID,
		"video", p.Video.Filename,
		"assets", len(p.Assets),
		"overlays", len(p.Metadata),
		"size", humanize.Bytes(uint64(total)),
	)

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	contentType := mw.FormDataContentType()
	tracker := newProgressTracker(total, onProgress)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := writeParts(mw, parts, meta, tracker)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
		if errors.Is(err, io.ErrClosedPipe) {
			// the request side stopped reading; its error is reported instead
			return nil
		}
		return err
	})

	var result UploadResponse
	g.Go(func() error {
		req, err := http.NewRequestWithContext(gctx, http.MethodPost, url, pr)
		if err != nil {
			pr.CloseWithError(err)
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)
		c.decorate(req, requestID)

		resp, err := c.uploadClient.Do(req)
		if err != nil {
			pr.CloseWithError(err)
			return fmt.Errorf("http request failed: %w", err)
		}
		defer resp.Body.Close()
		pr.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		if err := json.Unmarshal(body, &result); err != nil {
			return fmt.Errorf("decode upload response: %w", err)
		}
		if result.JobID == "" {
			return fmt.Errorf("upload response has no job_id")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	tracker.finish()

	c.logger.Info("render job accepted", "job_id", result.JobID, "status", result.Status)
	return &result, nil
}

func (c *HTTPClient) openParts(p *export.Payload) ([]part, int64, error) {
	var parts []part
	var total int64

	add := func(field string, a export.Asset) error {
		rc, size, err := c.open(a.URI)
		if err != nil {
			return fmt.Errorf("open %s: %w", a.Filename, err)
		}
		parts = append(parts, part{field: field, filename: a.Filename, contentType: a.ContentType, body: rc})
		total += size
		return nil
	}

	if err := add("video", p.Video); err != nil {
		return nil, 0, err
	}
	for _, a := range p.Assets {
		if err := add("assets", a); err != nil {
			for _, pt := range parts {
				pt.body.Close()
			}
			return nil, 0, err
		}
	}
	return parts, total, nil
}

func writeParts(mw *multipart.Writer, parts []part, meta []byte, tracker *progressTracker) error {
	for _, pt := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(pt.field), quoteEscaper.Replace(pt.filename)))
		h.Set("Content-Type", pt.contentType)
		w, err := mw.CreatePart(h)
		if err != nil {
			return err
		}
		if _, err := io.Copy(io.MultiWriter(w, tracker), pt.body); err != nil {
			return fmt.Errorf("write %s: %w", pt.filename, err)
		}
	}
	return mw.WriteField("metadata", string(meta))
}

// Status queries GET /status/{job_id}.
func (c *HTTPClient) Status(ctx context.Context, jobID string) (*StatusResponse, error) {
	resp, err := c.get(ctx, c.baseURL+"/status/"+url.PathEscape(jobID))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var status StatusResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &status, nil
}

func (c *HTTPClient) ResultURL(jobID string) string {
	return c.baseURL + "/result/" + url.PathEscape(jobID)
}

// DownloadResult copies the rendered video of a completed job into w.
func (c *HTTPClient) DownloadResult(ctx context.Context, jobID string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ResultURL(jobID), nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	c.decorate(req, uuid.NewString())

	// downloads may take as long as uploads
	resp, err := c.uploadClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return 0, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download result: %w", err)
	}
	c.logger.Info("render result downloaded", "job_id", jobID, "size", humanize.Bytes(uint64(n)))
	return n, nil
}

// Health queries GET / on the backend.
func (c *HTTPClient) Health(ctx context.Context) (*HealthResponse, error) {
	resp, err := c.get(ctx, c.baseURL+"/")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var h HealthResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&h); err != nil {
		return nil, fmt.Errorf("decode health: %w", err)
	}
	return &h, nil
}

// get performs a GET and converts non-2xx responses to *APIError. The
// caller closes the body on success.
func (c *HTTPClient) get(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.decorate(req, uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}

func (c *HTTPClient) decorate(req *http.Request, requestID string) {
	req.Header.Set(requestIDHeader, requestID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// progressTracker converts written bytes to a percentage and reports each
// change once. It holds at 99 until finish.
type progressTracker struct {
	mu      sync.Mutex
	total   int64
	written int64
	last    int
	report  ProgressFunc
}

func newProgressTracker(total int64, report ProgressFunc) *progressTracker {
	return &progressTracker{total: total, last: -1, report: report}
}

func (t *progressTracker) Write(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.written += int64(len(b))
	if t.total <= 0 {
		return len(b), nil
	}
	pct := int(t.written * 100 / t.total)
	if pct > 99 {
		pct = 99
	}
	t.emit(pct)
	return len(b), nil
}

func (t *progressTracker) finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.emit(100)
}

func (t *progressTracker) emit(pct int) {
	if pct == t.last || t.report == nil {
		return
	}
	t.last = pct
	t.report(pct)
}
