package blackbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// findFreePort picks an available TCP port on localhost.
func findFreePort(t *testing.T) (int, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	cleanup := func() { _ = ln.Close() }
	var port int
	fmt.Sscanf(portStr, "%d", &port)
	return port, cleanup
}

func projectRootFromThisFile(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	// this file: <root>/tests/blackbox/blackbox_test.go
	bbDir := filepath.Dir(thisFile)
	return filepath.Dir(filepath.Dir(bbDir))
}

func buildBinary(t *testing.T) string {
	t.Helper()
	root := projectRootFromThisFile(t)
	outDir := t.TempDir()
	binPath := filepath.Join(outDir, "articled")
	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/articled")
	cmd.Dir = root
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(out))
	}
	return binPath
}

// startCompletionServer runs a fake OpenAI-compatible completion server that
// echoes the prompt followed by canned article text.
func startCompletionServer(t *testing.T) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/props", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"n_gpu_layers":0,"total_vram_mb":0}`))
	})
	mux.HandleFunc("/v1/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		resp := map[string]any{
			"choices": []map[string]any{
				{"text": req.Prompt + " This is a generated article.", "finish_reason": "stop"},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL
}

type serverProc struct {
	cmd  *exec.Cmd
	base string
}

func startServer(t *testing.T, bin, backendURL, dataDir, defaultModel string, port int) *serverProc {
	t.Helper()
	addr := fmt.Sprintf(":%d", port)
	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	args := []string{
		"--addr", addr,
		"--backend-url", backendURL,
		"--data-dir", dataDir,
	}
	if defaultModel != "" {
		args = append(args, "--default-model", defaultModel)
	}
	cmd := exec.Command(bin, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(base + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			_ = cmd.Process.Kill()
			t.Fatalf("server did not become healthy in time")
		}
		time.Sleep(50 * time.Millisecond)
	}
	sp := &serverProc{cmd: cmd, base: base}
	t.Cleanup(func() { _ = cmd.Process.Kill() })
	return sp
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func postJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func TestBlackbox_Flow(t *testing.T) {
	bin := buildBinary(t)
	backendURL := startCompletionServer(t)
	dataDir := t.TempDir()
	port, release := findFreePort(t)
	release()
	sp := startServer(t, bin, backendURL, dataDir, "Bloom-560M", port)

	// /healthz
	resp, body := get(t, sp.base+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/healthz %d %s", resp.StatusCode, string(body))
	}

	// /models lists the built-in catalog
	resp, body = get(t, sp.base+"/models")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/models %d %s", resp.StatusCode, string(body))
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("/models content-type=%s", ct)
	}
	var modelsResp struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(body, &modelsResp); err != nil {
		t.Fatalf("/models json: %v body=%s", err, string(body))
	}
	if len(modelsResp.Models) != 3 {
		t.Fatalf("expected 3 models, got %d", len(modelsResp.Models))
	}

	// /generate without model uses the default and strips the prompt echo
	resp, body = postJSON(t, sp.base+"/generate", []byte(`{"prompt":"Renewable energy","max_new_tokens":50}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/generate %d %s", resp.StatusCode, string(body))
	}
	var genResp struct {
		Model   string `json:"model"`
		Article string `json:"article"`
		Failed  bool   `json:"failed"`
	}
	if err := json.Unmarshal(body, &genResp); err != nil {
		t.Fatalf("/generate json: %v body=%s", err, string(body))
	}
	if genResp.Failed || genResp.Model != "Bloom-560M" {
		t.Fatalf("/generate unexpected: %+v", genResp)
	}
	if strings.HasPrefix(genResp.Article, "Renewable energy") {
		t.Fatalf("prompt echo not stripped: %q", genResp.Article)
	}

	// /interactions shows the logged record
	resp, body = get(t, sp.base+"/interactions")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/interactions %d %s", resp.StatusCode, string(body))
	}
	var histResp struct {
		Interactions []struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		} `json:"interactions"`
	}
	if err := json.Unmarshal(body, &histResp); err != nil {
		t.Fatalf("/interactions json: %v body=%s", err, string(body))
	}
	if len(histResp.Interactions) != 1 || histResp.Interactions[0].Prompt != "Renewable energy" {
		t.Fatalf("/interactions unexpected: %+v", histResp)
	}

	// /stats reflects the single interaction
	resp, body = get(t, sp.base+"/stats")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/stats %d %s", resp.StatusCode, string(body))
	}
	var statsResp struct {
		TotalInteractions int `json:"total_interactions"`
	}
	if err := json.Unmarshal(body, &statsResp); err != nil {
		t.Fatalf("/stats json: %v body=%s", err, string(body))
	}
	if statsResp.TotalInteractions != 1 {
		t.Fatalf("/stats total=%d", statsResp.TotalInteractions)
	}

	// CSV export carries the historical header
	resp, body = get(t, sp.base+"/interactions/export?format=csv")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/interactions/export %d %s", resp.StatusCode, string(body))
	}
	if !strings.HasPrefix(string(body), "timestamp,user_query,llm_name,response\n") {
		t.Fatalf("csv export missing header: %q", string(body))
	}

	// /status shows the cached instance
	resp, body = get(t, sp.base+"/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/status %d %s", resp.StatusCode, string(body))
	}
	var statusResp struct {
		Instances []any `json:"instances"`
	}
	if err := json.Unmarshal(body, &statusResp); err != nil {
		t.Fatalf("/status json: %v body=%s", err, string(body))
	}
	if len(statusResp.Instances) < 1 {
		t.Fatalf("expected instances >=1, got %d", len(statusResp.Instances))
	}
}

func TestBlackbox_Generate_ModelNotFound_404(t *testing.T) {
	bin := buildBinary(t)
	backendURL := startCompletionServer(t)
	port, release := findFreePort(t)
	release()
	sp := startServer(t, bin, backendURL, t.TempDir(), "", port)

	resp, body := postJSON(t, sp.base+"/generate", []byte(`{"model":"missing","prompt":"hi"}`))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d, body=%s", resp.StatusCode, string(body))
	}
}

func TestBlackbox_Generate_NoDefault_NoModel_404(t *testing.T) {
	bin := buildBinary(t)
	backendURL := startCompletionServer(t)
	port, release := findFreePort(t)
	release()
	sp := startServer(t, bin, backendURL, t.TempDir(), "", port)

	resp, body := postJSON(t, sp.base+"/generate", []byte(`{"prompt":"hi"}`))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d, body=%s", resp.StatusCode, string(body))
	}
}
