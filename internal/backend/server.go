package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
)

// serverBackend talks to a running OpenAI-compatible completion server
// (llama.cpp server, vLLM, and friends) over HTTP.
type serverBackend struct {
	baseURL        string
	apiKey         string
	reqTimeout     time.Duration
	connectTimeout time.Duration
	httpClient     *http.Client
}

// ServerOptions configures NewServer.
type ServerOptions struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
}

// NewServer constructs a server-backed Backend.
func NewServer(opts ServerOptions) Backend {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// Timeout stays 0 on the client: every request carries a context deadline.
	cli := &http.Client{Transport: tr, Timeout: 0}
	return &serverBackend{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		apiKey:         opts.APIKey,
		reqTimeout:     opts.RequestTimeout,
		connectTimeout: opts.ConnectTimeout,
		httpClient:     cli,
	}
}

// serverProps is the subset of the llama.cpp /props payload we care about.
type serverProps struct {
	TotalVRAMMB int `json:"total_vram_mb"`
	GPULayers   int `json:"n_gpu_layers"`
}

// AcceleratorAvailable probes the server for GPU offload. Any probe failure
// counts as "no accelerator" so callers fall back to full precision.
func (b *serverBackend) AcceleratorAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, b.connectTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/props", nil)
	if err != nil {
		return false
	}
	b.authorize(req)
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var props serverProps
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&props); err != nil {
		return false
	}
	return props.GPULayers > 0 || props.TotalVRAMMB > 0
}

// Load verifies the server knows the model and returns a handle bound to it.
// The server owns tokenizer details (padding token handling included).
func (b *serverBackend) Load(ctx context.Context, spec LoadSpec) (Handle, error) {
	if strings.TrimSpace(spec.BackingID) == "" {
		return nil, errors.New("empty backing id")
	}
	if b.reqTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.reqTimeout)
		defer cancel()
	}
	// A single-token completion doubles as warmup and existence check; servers
	// that lazily mmap weights page them in here rather than on first user call.
	h := &serverHandle{backend: b, backingID: spec.BackingID, precision: spec.Precision}
	if _, err := h.complete(ctx, " ", Params{MaxNewTokens: 1}); err != nil {
		return nil, fmt.Errorf("load %s: %w", spec.BackingID, err)
	}
	return h, nil
}

type serverHandle struct {
	backend   *serverBackend
	backingID string
	precision string
	// Close can race an in-flight Generate (cache clear during generation).
	closed atomic.Bool
}

func (h *serverHandle) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	if h.closed.Load() {
		return "", errors.New("handle closed")
	}
	if h.backend.reqTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.backend.reqTimeout)
		defer cancel()
	}
	return h.complete(ctx, prompt, params)
}

// Close is local only: the server keeps its own cache, we just invalidate the
// handle. Idempotent.
func (h *serverHandle) Close() error {
	h.closed.Store(true)
	return nil
}

// completionRequest is the /v1/completions payload. Beam and repetition
// fields are llama.cpp extensions; servers that do not know them ignore them.
type completionRequest struct {
	Model         string   `json:"model"`
	Prompt        string   `json:"prompt"`
	MaxTokens     int      `json:"max_tokens,omitempty"`
	Temperature   float32  `json:"temperature,omitempty"`
	Stop          []string `json:"stop,omitempty"`
	Stream        bool     `json:"stream"`
	RepeatPenalty float32  `json:"repeat_penalty,omitempty"`
	NumBeams      int      `json:"n_beams,omitempty"`
	EarlyStopping bool     `json:"early_stopping,omitempty"`
	Precision     string   `json:"precision,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (h *serverHandle) complete(ctx context.Context, prompt string, params Params) (string, error) {
	payload := completionRequest{
		Model:         h.backingID,
		Prompt:        prompt,
		MaxTokens:     params.MaxNewTokens,
		Temperature:   params.Temperature,
		Stop:          params.Stop,
		Stream:        false,
		RepeatPenalty: params.RepetitionPenalty,
		NumBeams:      params.BeamWidth,
		EarlyStopping: params.EarlyStopping,
		Precision:     h.precision,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.backend.baseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	h.backend.authorize(req)
	resp, err := h.backend.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("completion server: %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	var cr completionResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 16<<20)).Decode(&cr); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if cr.Error != nil {
		return "", errors.New(cr.Error.Message)
	}
	if len(cr.Choices) == 0 {
		return "", errors.New("completion server returned no choices")
	}
	return cr.Choices[0].Text, nil
}

func (b *serverBackend) authorize(req *http.Request) {
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}
}
