package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"sdconvert/internal/config"
	"sdconvert/internal/testsupport"
)

// fakeBackend serves a single session whose one File parameter accepts 3dm
// models, next to a plain and a hidden number parameter. The computed artifact is the uploaded bytes prefixed with "sdtf:".
type fakeBackend struct {
	mu       sync.Mutex
	uploaded []byte
	status   string
	requests []string
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	t.Helper()
	backend := &fakeBackend{status: "success"}
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)
	return backend, server
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	base := "http://" + r.Host
	b.requests = append(b.requests, r.Method+" "+r.URL.Path)

	switch {
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/api/v2/ticket/"):
		fmt.Fprint(w, `{"sessionId":"s-1",`+
			`"parameters":{"p1":{"id":"p1","name":"Model","type":"File","format":["model/vnd.3dm"]},"p2":{"id":"p2","name":"Scale","type":"Float"},"p3":{"id":"p3","name":"Tolerance","type":"Float","hidden":true}},`+
			`"outputs":{"o1":{"id":"o1","name":"sdtf"}}}`)
	case r.Method == http.MethodPost && r.URL.Path == "/api/v2/session/s-1/file/upload":
		_ = json.NewEncoder(w).Encode(map[string]any{"asset": map[string]any{"file": map[string]any{
			"p1": map[string]any{"id": "asset-1", "href": base + "/blob/asset-1"},
		}}})
	case r.Method == http.MethodPut && r.URL.Path == "/blob/asset-1":
		b.uploaded, _ = io.ReadAll(r.Body)
	case r.Method == http.MethodPut && r.URL.Path == "/api/v2/session/s-1/output":
		if b.status != "success" {
			fmt.Fprintf(w, `{"outputs":{"o1":{"id":"o1","status_computation":%q,"msg":"model failed to load"}}}`, b.status)
			return
		}
		fmt.Fprintf(w, `{"outputs":{"o1":{"id":"o1","name":"sdtf","status_computation":"success","content":[{"format":"sdtf","contentType":"model/vnd.sdtf","href":"%s/artifact"}]}}}`, base)
	case r.Method == http.MethodGet && r.URL.Path == "/artifact":
		_, _ = w.Write(append([]byte("sdtf:"), b.uploaded...))
	default:
		http.NotFound(w, r)
	}
}

func (b *fakeBackend) sawRequest(prefix string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, req := range b.requests {
		if strings.HasPrefix(req, prefix) {
			return true
		}
	}
	return false
}

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()
	for _, key := range []string{
		"MODEL_VIEW_URL",
		"MODEL_VIEW_URL_CAD_TO_SDTF",
		"MODEL_VIEW_URL_SDTF_TO_GLTF",
		"BACKEND_TICKET_CAD_TO_SDTF",
		"BACKEND_TICKET_SDTF_TO_GLTF",
	} {
		t.Setenv(key, "")
	}

	cfg := testsupport.NewConfig(t, opts...)
	base := testsupport.BaseDir(cfg)
	configPath := filepath.Join(base, "sdconvert.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
