package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/yungbote/mindmesh-backend/internal/pkg/httpx"
)

type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	// EmbeddingsPath defaults to /v1/embeddings.
	EmbeddingsPath string
	// Timeout bounds one attempt.
	Timeout time.Duration
	// MaxRetries is the number of extra attempts on transient failures. Zero disables retries.
	MaxRetries int
}

// HTTPProvider calls an OpenAI-compatible embeddings endpoint that serves the
// sentence model. Rows are re-normalized locally.
type HTTPProvider struct {
	baseURL        string
	apiKey         string
	model          string
	embeddingsPath string
	timeout        time.Duration
	maxRetries     int
	dims           atomic.Int32

	httpClient *http.Client
}

type HTTPError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) HTTPStatusCode() int { return e.StatusCode }

func (e *HTTPError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 512 {
		body = body[:512]
	}
	return fmt.Sprintf("embeddings http %d: %s", e.StatusCode, body)
}

func NewHTTPProvider(cfg HTTPConfig) (*HTTPProvider, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("embedding: base_url required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, errors.New("embedding: model required")
	}
	path := strings.TrimSpace(cfg.EmbeddingsPath)
	if path == "" {
		path = "/v1/embeddings"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &HTTPProvider{
		baseURL:        baseURL,
		apiKey:         strings.TrimSpace(cfg.APIKey),
		model:          model,
		embeddingsPath: path,
		timeout:        timeout,
		maxRetries:     max(cfg.MaxRetries, 0),
		httpClient:     &http.Client{Transport: tr},
	}, nil
}

// NewHTTPProviderWithClient is intended for tests; it avoids network access by using a custom RoundTripper.
func NewHTTPProviderWithClient(cfg HTTPConfig, httpClient *http.Client) (*HTTPProvider, error) {
	p, err := NewHTTPProvider(cfg)
	if err != nil {
		return nil, err
	}
	if httpClient != nil {
		p.httpClient = httpClient
	}
	return p, nil
}

func (p *HTTPProvider) Name() string        { return p.model }
func (p *HTTPProvider) Deterministic() bool { return false }

// Dims is learned from the first successful call; zero before that.
func (p *HTTPProvider) Dims() int { return int(p.dims.Load()) }

type embeddingsRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (p *HTTPProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var resp embeddingsResponse
	if err := p.doJSON(ctx, http.MethodPost, p.embeddingsPath, embeddingsRequest{Model: p.model, Input: texts}, &resp); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = toFloat32(d.Embedding)
		}
	}
	// Some servers omit indices but keep ordering.
	for i := range out {
		if out[i] == nil && i < len(resp.Data) {
			out[i] = toFloat32(resp.Data[i].Embedding)
		}
	}

	dims := 0
	for i := range out {
		if len(out[i]) == 0 {
			return nil, fmt.Errorf("embeddings missing index=%d (model=%s)", i, p.model)
		}
		if dims == 0 {
			dims = len(out[i])
		}
		if len(out[i]) != dims {
			return nil, fmt.Errorf("embeddings ragged: index=%d has %d dims, want %d", i, len(out[i]), dims)
		}
		Normalize(out[i])
	}
	if !p.dims.CompareAndSwap(0, int32(dims)) {
		if known := p.Dims(); known != dims {
			return nil, fmt.Errorf("embeddings dims changed from %d to %d (model=%s)", known, dims, p.model)
		}
	}
	return out, nil
}

func toFloat32(in []float64) []float32 {
	v := make([]float32, len(in))
	for i, f := range in {
		v[i] = float32(f)
	}
	return v
}

func (p *HTTPProvider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
}

const retryBackoff = 250 * time.Millisecond

func (p *HTTPProvider) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = b
	}

	backoff := retryBackoff
	for attempt := 0; ; attempt++ {
		err := p.doOnce(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		if attempt >= p.maxRetries || ctx.Err() != nil || !httpx.IsRetryableError(err) {
			return err
		}
		wait := httpx.JitterSleep(backoff)
		var he *HTTPError
		if errors.As(err, &he) && he.RetryAfter > 0 {
			wait = he.RetryAfter
		}
		if httpx.Sleep(ctx, wait) != nil {
			return err
		}
		backoff *= 2
	}
}

func (p *HTTPProvider) doOnce(ctx context.Context, method, path string, payload []byte, out any) error {
	ctx2, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx2, method, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	p.setHeaders(req)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Body:       string(raw),
			RetryAfter: httpx.RetryAfterDuration(resp, 0, 10*time.Second),
		}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
