package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newFakeServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func completionsOK(text string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"text": text, "finish_reason": "stop"}},
		})
	}
}

func TestServerLoadAndGenerate(t *testing.T) {
	var gotModel string
	var gotBody map[string]any
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		gotModel, _ = gotBody["model"].(string)
		completionsOK("generated text")(w, r)
	})

	b := NewServer(ServerOptions{BaseURL: srv.URL, RequestTimeout: 5 * time.Second, ConnectTimeout: time.Second})
	h, err := b.Load(context.Background(), LoadSpec{BackingID: "bigscience/bloom-560m", Precision: "f32"})
	require.NoError(t, err)
	require.Equal(t, "bigscience/bloom-560m", gotModel)

	out, err := h.Generate(context.Background(), "a prompt", Params{
		MaxNewTokens:      50,
		Temperature:       0.7,
		RepetitionPenalty: 1.2,
		BeamWidth:         2,
		EarlyStopping:     true,
	})
	require.NoError(t, err)
	require.Equal(t, "generated text", out)
	require.EqualValues(t, 50, gotBody["max_tokens"])
	require.EqualValues(t, 2, gotBody["n_beams"])
	require.EqualValues(t, true, gotBody["early_stopping"])
}

func TestServerLoadEmptyBackingID(t *testing.T) {
	b := NewServer(ServerOptions{BaseURL: "http://127.0.0.1:0"})
	_, err := b.Load(context.Background(), LoadSpec{})
	require.Error(t, err)
}

func TestServerLoadUpstreamError(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not on server", http.StatusNotFound)
	})
	b := NewServer(ServerOptions{BaseURL: srv.URL, RequestTimeout: time.Second})
	_, err := b.Load(context.Background(), LoadSpec{BackingID: "missing/model"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing/model")
}

func TestServerGenerateAfterClose(t *testing.T) {
	srv := newFakeServer(t, completionsOK("x"))
	b := NewServer(ServerOptions{BaseURL: srv.URL, RequestTimeout: time.Second})
	h, err := b.Load(context.Background(), LoadSpec{BackingID: "m"})
	require.NoError(t, err)
	require.NoError(t, h.Close())
	require.NoError(t, h.Close()) // idempotent
	_, err = h.Generate(context.Background(), "p", Params{})
	require.Error(t, err)
}

// Cache clear closes handles while admitted generations may still be inside
// Generate; the two must be safe to run concurrently (checked under -race).
func TestServerCloseDuringGenerate(t *testing.T) {
	srv := newFakeServer(t, completionsOK("x"))
	b := NewServer(ServerOptions{BaseURL: srv.URL, RequestTimeout: time.Second})
	h, err := b.Load(context.Background(), LoadSpec{BackingID: "m"})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			_, _ = h.Generate(context.Background(), "p", Params{MaxNewTokens: 1})
		}
	}()
	for i := 0; i < 100; i++ {
		require.NoError(t, h.Close())
	}
	<-done
	_, err = h.Generate(context.Background(), "p", Params{})
	require.Error(t, err)
}

func TestServerAcceleratorProbe(t *testing.T) {
	withGPU := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/props" {
			_ = json.NewEncoder(w).Encode(map[string]any{"n_gpu_layers": 32})
			return
		}
		http.NotFound(w, r)
	})
	b := NewServer(ServerOptions{BaseURL: withGPU.URL, ConnectTimeout: time.Second})
	require.True(t, b.AcceleratorAvailable(context.Background()))

	noProps := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	b2 := NewServer(ServerOptions{BaseURL: noProps.URL, ConnectTimeout: time.Second})
	require.False(t, b2.AcceleratorAvailable(context.Background()))
}

func TestServerGenerateNoChoices(t *testing.T) {
	srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	})
	b := NewServer(ServerOptions{BaseURL: srv.URL, RequestTimeout: time.Second})
	_, err := b.Load(context.Background(), LoadSpec{BackingID: "m"})
	require.Error(t, err)
}
