package ctl

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"articled/pkg/types"
)

// Client is a thin HTTP client for the articled API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient targets an articled server at baseURL, e.g. http://127.0.0.1:8080.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr types.ErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Models lists the catalog.
func (c *Client) Models(ctx context.Context) ([]types.ModelInfo, error) {
	var resp types.ModelsResponse
	if err := c.do(ctx, http.MethodGet, "/models", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Models, nil
}

// Generate requests an article.
func (c *Client) Generate(ctx context.Context, req types.GenerateRequest) (types.GenerateResponse, error) {
	var resp types.GenerateResponse
	err := c.do(ctx, http.MethodPost, "/generate", req, &resp)
	return resp, err
}

// History returns all logged interactions.
func (c *Client) History(ctx context.Context) ([]types.Interaction, error) {
	var resp types.InteractionsResponse
	if err := c.do(ctx, http.MethodGet, "/interactions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Interactions, nil
}

// ClearHistory deletes the interaction log.
func (c *Client) ClearHistory(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/interactions", nil, nil)
}

// ClearCache unloads all cached model instances on the server.
func (c *Client) ClearCache(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/cache/clear", nil, nil)
}

// Stats returns aggregate interaction stats.
func (c *Client) Stats(ctx context.Context) (types.StatsResponse, error) {
	var resp types.StatsResponse
	err := c.do(ctx, http.MethodGet, "/stats", nil, &resp)
	return resp, err
}

// Status returns the server's runtime status.
func (c *Client) Status(ctx context.Context) (types.StatusResponse, error) {
	var resp types.StatusResponse
	err := c.do(ctx, http.MethodGet, "/status", nil, &resp)
	return resp, err
}

// Export streams the interaction log in the given format ("csv" or "json")
// to w. It returns the server-suggested filename, if any.
func (c *Client) Export(ctx context.Context, format string, w io.Writer) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/interactions/export?format="+format, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", err
	}
	return filenameFromDisposition(resp.Header.Get("Content-Disposition")), nil
}
