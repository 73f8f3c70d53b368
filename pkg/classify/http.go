package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"github.com/earshot-io/earshot/pkg/pcm"
)

// Compile-time assertion that HTTPProvider implements Provider.
var _ Provider = (*HTTPProvider)(nil)

const defaultRequestTimeout = 10 * time.Second

// Option is a functional option for configuring an HTTPProvider.
type Option func(*HTTPProvider)

// WithTimeout sets the per-request timeout for classification calls.
// Defaults to 10 s.
func WithTimeout(d time.Duration) Option {
	return func(p *HTTPProvider) {
		if d > 0 {
			p.httpClient.Timeout = d
		}
	}
}

// WithModel sets an optional model identifier forwarded to the inference
// server. When empty the server uses whichever model it was started with.
func WithModel(model string) Option {
	return func(p *HTTPProvider) { p.model = model }
}

// HTTPProvider implements Provider against a sound-classification inference
// server exposing:
//
//	GET  /v1/labels   → {"labels": ["Speech", "Music", ...]}
//	POST /v1/classify → multipart WAV upload, {"scores": [{"label": ..., "score": ...}, ...]}
//
// The label vocabulary is fetched once by Ready and cached; Labels returns
// nil until the first successful Ready call. Safe for concurrent use.
type HTTPProvider struct {
	serverURL  string
	model      string
	httpClient *http.Client

	mu     sync.RWMutex
	labels []string
}

// NewHTTP creates an HTTPProvider for the inference server at serverURL
// (e.g., "http://localhost:9090"). serverURL must be non-empty.
func NewHTTP(serverURL string, opts ...Option) (*HTTPProvider, error) {
	if serverURL == "" {
		return nil, errors.New("classify: serverURL must not be empty")
	}
	p := &HTTPProvider{
		serverURL:  serverURL,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Ready fetches and caches the label vocabulary. A server that responds but
// has no labels loaded yet yields ErrNotReady so the caller can refuse a
// session start without treating it as a hard failure.
func (p *HTTPProvider) Ready(ctx context.Context) error {
	p.mu.RLock()
	loaded := len(p.labels) > 0
	p.mu.RUnlock()
	if loaded {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+"/v1/labels", nil)
	if err != nil {
		return fmt.Errorf("classify: create labels request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("classify: fetch labels: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return fmt.Errorf("classify: server still loading: %w", ErrNotReady)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("classify: labels endpoint returned HTTP %d", resp.StatusCode)
	}

	var body struct {
		Labels []string `json:"labels"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("classify: parse labels response: %w", err)
	}
	if len(body.Labels) == 0 {
		return fmt.Errorf("classify: empty vocabulary: %w", ErrNotReady)
	}

	p.mu.Lock()
	p.labels = body.Labels
	p.mu.Unlock()
	return nil
}

// Labels returns the cached vocabulary, or nil before the first successful
// Ready call.
func (p *HTTPProvider) Labels() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.labels
}

// Classify uploads the frame as a WAV file and returns the server's raw
// score vector.
func (p *HTTPProvider) Classify(ctx context.Context, frame []float32) ([]Score, error) {
	wav := pcm.EncodeWAV(pcm.Float32ToBytes(frame), pcm.SampleRate, 1)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "frame.wav")
	if err != nil {
		return nil, fmt.Errorf("classify: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, fmt.Errorf("classify: write wav data: %w", err)
	}
	if p.model != "" {
		if err := mw.WriteField("model", p.model); err != nil {
			return nil, fmt.Errorf("classify: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("classify: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/v1/classify", &body)
	if err != nil {
		return nil, fmt.Errorf("classify: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classify: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classify: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("classify: read response body: %w", err)
	}

	var result struct {
		Scores []Score `json:"scores"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("classify: parse JSON response: %w", err)
	}
	return result.Scores, nil
}
