package shapediver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"sdconvert/internal/conversion"
	"sdconvert/internal/mimetype"
	"sdconvert/internal/services"
)

// stubBackend mimics the geometry backend closely enough for a conversion:
// uploaded bytes are echoed back as the computed artifact.
type stubBackend struct {
	t *testing.T

	mu          sync.Mutex
	parameters  string
	uploads     map[string][]byte
	uploadTypes map[string]string
	requests    map[string]int
	pendingPoll int
	outputFor   func(assetID, base string) string
	lastBinding map[string]string
	lastCache   map[string]string
	sdtfRequest []sdtfUploadEntry
	fileRequest map[string]fileUploadEntry
}

func newStubBackend(t *testing.T, parameters string) (*stubBackend, *httptest.Server) {
	stub := &stubBackend{
		t:           t,
		parameters:  parameters,
		uploads:     map[string][]byte{},
		uploadTypes: map[string]string{},
		requests:    map[string]int{},
	}
	server := httptest.NewServer(stub)
	t.Cleanup(server.Close)
	return stub, server
}

func (s *stubBackend) count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[key]
}

func (s *stubBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := "http://" + r.Host
	path := r.URL.Path
	key := r.Method + " " + path
	s.requests[key]++

	switch {
	case r.Method == http.MethodPost && strings.HasPrefix(path, "/api/v2/ticket/"):
		fmt.Fprintf(w, `{"sessionId":"s-1","parameters":%s,"outputs":{"o1":{"id":"o1","name":"result"}}}`, s.parameters)

	case r.Method == http.MethodPost && path == "/api/v2/session/s-1/file/upload":
		if err := json.NewDecoder(r.Body).Decode(&s.fileRequest); err != nil {
			s.t.Errorf("decode file upload request: %v", err)
		}
		asset := map[string]any{}
		for paramID := range s.fileRequest {
			asset[paramID] = map[string]any{"id": "file-" + paramID, "href": base + "/blob/file-" + paramID, "headers": map[string]string{"X-Upload": "1"}}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"asset": map[string]any{"file": asset}})

	case r.Method == http.MethodPost && path == "/api/v2/session/s-1/sdtf/upload":
		if err := json.NewDecoder(r.Body).Decode(&s.sdtfRequest); err != nil {
			s.t.Errorf("decode sdtf upload request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"asset": map[string]any{"sdtf": []any{
			map[string]any{"id": "sdtf-1", "href": base + "/blob/sdtf-1"},
		}}})

	case r.Method == http.MethodPut && strings.HasPrefix(path, "/blob/"):
		if r.Header.Get("X-Upload") == "" && strings.HasPrefix(path, "/blob/file-") {
			s.t.Errorf("upload headers from the service were not forwarded")
		}
		data, _ := io.ReadAll(r.Body)
		id := strings.TrimPrefix(path, "/blob/")
		s.uploads[id] = data
		s.uploadTypes[id] = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodPut && path == "/api/v2/session/s-1/output":
		if err := json.NewDecoder(r.Body).Decode(&s.lastBinding); err != nil {
			s.t.Errorf("decode bindings: %v", err)
		}
		assetID := ""
		for _, v := range s.lastBinding {
			assetID = v
		}
		if s.pendingPoll > 0 {
			fmt.Fprint(w, `{"outputs":{"o1":{"id":"o1","version":"v1","delay":250}}}`)
			return
		}
		fmt.Fprint(w, s.output(assetID, base))

	case r.Method == http.MethodPut && path == "/api/v2/session/s-1/output/cache":
		if err := json.NewDecoder(r.Body).Decode(&s.lastCache); err != nil {
			s.t.Errorf("decode cache request: %v", err)
		}
		s.pendingPoll--
		if s.pendingPoll > 0 {
			fmt.Fprint(w, `{"outputs":{"o1":{"id":"o1","version":"v1","delay":250}}}`)
			return
		}
		assetID := ""
		for _, v := range s.lastBinding {
			assetID = v
		}
		fmt.Fprint(w, s.output(assetID, base))

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/artifact/"):
		data, ok := s.uploads[strings.TrimPrefix(path, "/artifact/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)

	default:
		s.t.Errorf("unexpected request %s", key)
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *stubBackend) output(assetID, base string) string {
	if s.outputFor != nil {
		return s.outputFor(assetID, base)
	}
	return fmt.Sprintf(`{"outputs":{"o1":{"id":"o1","version":"v1","status_computation":"success","content":[{"format":"sdtf","contentType":"model/vnd.sdtf","href":"%s/artifact/%s","size":1}]}}}`, base, assetID)
}

func newTestRemote(opts ...Option) *Remote {
	opts = append([]Option{WithSleeper(func(time.Duration) {}), WithRetryBackoff(time.Millisecond, time.Millisecond)}, opts...)
	return NewRemote(NewClient(opts...))
}

func TestRoundTripEchoesUploadedFile(t *testing.T) {
	stub, server := newStubBackend(t, `{"p1":{"id":"p1","name":"Input","type":"File","format":["application/x-cad"]}}`)
	dir := t.TempDir()
	input := filepath.Join(dir, "part.cad")
	output := filepath.Join(dir, "part.sdtf")
	if err := os.WriteFile(input, []byte("cad payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	pipeline := conversion.NewForMode(newTestRemote(), conversion.CADToIntermediate,
		conversion.WithResolver(mimetype.Static(map[string]string{"cad": "application/x-cad"})))
	result, err := pipeline.Run(context.Background(), conversion.Request{
		InputPath: input, OutputPath: output, EndpointURL: server.URL, Ticket: "ticket",
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	got, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(got) != "cad payload" {
		t.Fatalf("output = %q, want echoed upload", got)
	}
	if entry := stub.fileRequest["p1"]; entry.Format != "application/x-cad" || entry.Size != int64(len("cad payload")) || entry.Filename != "part.cad" {
		t.Fatalf("unexpected upload request: %+v", stub.fileRequest)
	}
	if stub.uploadTypes["file-p1"] != "application/x-cad" {
		t.Fatalf("upload content type = %q", stub.uploadTypes["file-p1"])
	}
	if stub.lastBinding["p1"] != "file-p1" {
		t.Fatalf("unexpected bindings: %v", stub.lastBinding)
	}
	if result.Asset.ID != "file-p1" || result.Output.ID != "o1" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestStructuredUploadUsesPublicNamespace(t *testing.T) {
	stub, server := newStubBackend(t, `{"a":{"id":"a","type":"sCurve"},"b":{"id":"b","type":"sPoint"}}`)
	remote := newTestRemote()
	ctx := context.Background()

	session, err := remote.Open(ctx, server.URL, "ticket")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	asset, err := remote.Upload(ctx, session, []byte("sdtf"), mimetype.SdtfMIMEType, conversion.UploadTarget{Kind: conversion.UploadStructuredData})
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if asset.ID != "sdtf-1" {
		t.Fatalf("asset id = %q", asset.ID)
	}
	if len(stub.sdtfRequest) != 1 {
		t.Fatalf("unexpected sdtf request: %+v", stub.sdtfRequest)
	}
	entry := stub.sdtfRequest[0]
	if entry.ContentType != mimetype.SdtfMIMEType || entry.ContentLength != 4 || entry.Namespace != "pub" {
		t.Fatalf("unexpected sdtf request: %+v", entry)
	}
	if string(stub.uploads["sdtf-1"]) != "sdtf" {
		t.Fatalf("uploaded bytes = %q", stub.uploads["sdtf-1"])
	}
}

func TestOpenPreservesServiceOrder(t *testing.T) {
	_, server := newStubBackend(t, `{"z":{"id":"z","type":"File","format":["model/step"]},"a":{"type":"sCurve","displayname":"Curve"},"m":{"id":"m","type":"Number","hidden":true}}`)
	session, err := newTestRemote().Open(context.Background(), server.URL, "ticket")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if len(session.Parameters) != 3 {
		t.Fatalf("expected 3 parameters, got %d", len(session.Parameters))
	}
	want := []struct {
		id   string
		kind conversion.ParameterKind
	}{{"z", conversion.KindFile}, {"a", conversion.KindStructuredData}, {"m", conversion.KindOther}}
	for i, w := range want {
		if session.Parameters[i].ID != w.id || session.Parameters[i].Kind != w.kind {
			t.Fatalf("parameter %d = %+v, want %s/%v", i, session.Parameters[i], w.id, w.kind)
		}
	}
	if session.Parameters[1].Name != "Curve" {
		t.Fatalf("display name not used: %+v", session.Parameters[1])
	}
	if session.Parameters[0].Hidden || !session.Parameters[2].Hidden {
		t.Fatalf("hidden flag not carried: %+v", session.Parameters)
	}
	if session.EndpointURL != server.URL {
		t.Fatalf("endpoint not recorded: %q", session.EndpointURL)
	}
}

func TestSubmitPollsUntilOutputsSettle(t *testing.T) {
	stub, server := newStubBackend(t, `{"p1":{"id":"p1","type":"File","format":["model/step"]}}`)
	stub.pendingPoll = 2

	var delays []time.Duration
	remote := NewRemote(NewClient(
		WithSleeper(func(d time.Duration) { delays = append(delays, d) }),
		WithPolling(time.Minute, 100*time.Millisecond),
	))
	session := &conversion.Session{ID: "s-1", EndpointURL: server.URL}

	result, err := remote.Submit(context.Background(), session, map[string]string{"p1": "asset-1"})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if stub.count("PUT /api/v2/session/s-1/output/cache") != 2 {
		t.Fatalf("expected two cache polls, got %d", stub.count("PUT /api/v2/session/s-1/output/cache"))
	}
	if stub.lastCache["o1"] != "v1" {
		t.Fatalf("cache request = %v", stub.lastCache)
	}
	if len(delays) != 2 || delays[0] != 100*time.Millisecond {
		t.Fatalf("poll delays = %v, want two capped delays", delays)
	}
	if len(result.Outputs) != 1 || !result.Outputs[0].Status.Succeeded() {
		t.Fatalf("unexpected result: %+v", result.Outputs)
	}
	if !strings.Contains(string(result.Raw), `"status_computation":"success"`) {
		t.Fatalf("raw outputs not merged: %s", result.Raw)
	}
}

func TestSubmitTimesOutWhileOutputsPending(t *testing.T) {
	stub, server := newStubBackend(t, `{}`)
	stub.pendingPoll = 1000

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	remote := NewRemote(NewClient(
		WithClock(func() time.Time { return clock }),
		WithSleeper(func(d time.Duration) { clock = clock.Add(d) }),
		WithPolling(time.Second, 250*time.Millisecond),
	))
	session := &conversion.Session{ID: "s-1", EndpointURL: server.URL}

	_, err := remote.Submit(context.Background(), session, map[string]string{"p1": "asset-1"})
	if !errors.Is(err, services.ErrJobTimeout) {
		t.Fatalf("expected ErrJobTimeout, got %v", err)
	}
	if errors.Is(err, services.ErrComputation) {
		t.Fatalf("timeout must not be reported as computation error: %v", err)
	}
	if polls := stub.count("PUT /api/v2/session/s-1/output/cache"); polls < 2 || polls > 4 {
		t.Fatalf("unexpected poll count %d", polls)
	}
}

func TestSubmitReportsComputationFailure(t *testing.T) {
	stub, server := newStubBackend(t, `{}`)
	stub.outputFor = func(string, string) string {
		return `{"outputs":{"o1":{"id":"o1","version":"v1","status_computation":"computation_error","msg":"component crashed"}}}`
	}
	session := &conversion.Session{ID: "s-1", EndpointURL: server.URL}

	_, err := newTestRemote().Submit(context.Background(), session, map[string]string{"p1": "asset-1"})
	if !errors.Is(err, services.ErrComputation) {
		t.Fatalf("expected ErrComputation, got %v", err)
	}
	if !strings.Contains(err.Error(), "component crashed") {
		t.Fatalf("expected service message in error, got %v", err)
	}
}

func TestSessionErrorSurfacesServiceMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(errorBody{Error: "AuthorizationError", Desc: "ticket expired"})
	}))
	defer server.Close()

	_, err := newTestRemote().Open(context.Background(), server.URL, "old-ticket")
	if !errors.Is(err, services.ErrSessionInit) {
		t.Fatalf("expected ErrSessionInit, got %v", err)
	}
	var respErr *ResponseError
	if !errors.As(err, &respErr) || respErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected ResponseError 401, got %v", err)
	}
	if !strings.Contains(err.Error(), "AuthorizationError: ticket expired") {
		t.Fatalf("expected service error detail, got %v", err)
	}
}

func TestNonIdempotentCallsAreNotRetried(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()
	remote := newTestRemote(WithRetryMaxAttempts(5))
	session := &conversion.Session{ID: "s-1", EndpointURL: server.URL}

	if _, err := remote.Submit(context.Background(), session, map[string]string{"p": "a"}); !errors.Is(err, services.ErrComputation) {
		t.Fatalf("expected ErrComputation, got %v", err)
	}
	if _, err := remote.Open(context.Background(), server.URL, "t"); !errors.Is(err, services.ErrSessionInit) {
		t.Fatalf("expected ErrSessionInit, got %v", err)
	}
	if _, err := remote.Upload(context.Background(), session, []byte("x"), "model/step", conversion.UploadTarget{Kind: conversion.UploadFile, ParameterID: "p"}); !errors.Is(err, services.ErrUpload) {
		t.Fatalf("expected ErrUpload, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected exactly one request per call, got %d", calls)
	}
}

func TestDownloadRetriesServerErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("glb"))
	}))
	defer server.Close()

	var slept []time.Duration
	remote := NewRemote(NewClient(
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		WithRetryBackoff(time.Millisecond, 5*time.Second),
	))
	data, err := remote.Download(context.Background(), &conversion.Session{EndpointURL: server.URL}, "/artifact/1")
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if string(data) != "glb" || calls != 2 {
		t.Fatalf("data=%q calls=%d", data, calls)
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected Retry-After delay, got %v", slept)
	}
}

func TestDownloadFailsOnClientError(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := newTestRemote().Download(context.Background(), &conversion.Session{EndpointURL: server.URL}, server.URL+"/missing")
	if !errors.Is(err, services.ErrDownload) {
		t.Fatalf("expected ErrDownload, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("404 should not be retried, got %d calls", calls)
	}
}

func TestProgressObservesTransfers(t *testing.T) {
	_, server := newStubBackend(t, `{"p1":{"id":"p1","type":"File","format":["model/step"]}}`)
	var mu sync.Mutex
	seen := map[string]int{}
	progress := func(label string, total int64) io.Writer {
		return writerFunc(func(p []byte) (int, error) {
			mu.Lock()
			defer mu.Unlock()
			seen[label] += len(p)
			return len(p), nil
		})
	}
	remote := newTestRemote(WithProgress(progress))
	ctx := context.Background()
	session, err := remote.Open(ctx, server.URL, "ticket")
	if err != nil {
		t.Fatal(err)
	}
	asset, err := remote.Upload(ctx, session, []byte("12345"), "model/step", conversion.UploadTarget{Kind: conversion.UploadFile, ParameterID: "p1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := remote.Download(ctx, session, server.URL+"/artifact/"+asset.ID); err != nil {
		t.Fatal(err)
	}
	if seen["upload"] != 5 || seen["download"] != 5 {
		t.Fatalf("progress = %v", seen)
	}
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func TestParseRetryAfter(t *testing.T) {
	if d, ok := parseRetryAfter("3"); !ok || d != 3*time.Second {
		t.Fatalf("parseRetryAfter(3) = %v %v", d, ok)
	}
	if _, ok := parseRetryAfter("-1"); ok {
		t.Fatal("negative values should be rejected")
	}
	if _, ok := parseRetryAfter(""); ok {
		t.Fatal("empty value should be rejected")
	}
}

func TestResolveHref(t *testing.T) {
	got, err := resolveHref("https://sdr.example/base/", "/api/v2/file/1")
	if err != nil || got != "https://sdr.example/api/v2/file/1" {
		t.Fatalf("resolveHref = %q, %v", got, err)
	}
	got, err = resolveHref("https://sdr.example", "https://cdn.example/x.glb")
	if err != nil || got != "https://cdn.example/x.glb" {
		t.Fatalf("resolveHref = %q, %v", got, err)
	}
	if _, err := resolveHref("https://sdr.example", ""); err == nil {
		t.Fatal("expected error for empty href")
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "read timed out" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func TestDownloadRetryKeepsOneProgressWriter(t *testing.T) {
	var attempts int
	transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		attempts++
		body := io.Reader(strings.NewReader("abcdef"))
		if attempts == 1 {
			body = io.MultiReader(strings.NewReader("abc"), failingReader{err: timeoutError{}})
		}
		return &http.Response{
			StatusCode:    http.StatusOK,
			Header:        http.Header{},
			Body:          io.NopCloser(body),
			ContentLength: 6,
			Request:       req,
		}, nil
	})

	var (
		writers  int
		reported bytes.Buffer
	)
	progress := func(label string, total int64) io.Writer {
		writers++
		if total != 6 {
			t.Errorf("total = %d, want 6", total)
		}
		return &reported
	}
	remote := newTestRemote(WithHTTPClient(&http.Client{Transport: transport}), WithProgress(progress))

	data, err := remote.Download(context.Background(), &conversion.Session{EndpointURL: "http://sdr.example"}, "/artifact/1")
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if string(data) != "abcdef" || attempts != 2 {
		t.Fatalf("data=%q attempts=%d", data, attempts)
	}
	if writers != 1 {
		t.Fatalf("progress writers created = %d, want 1", writers)
	}
	if reported.String() != "abcdef" {
		t.Fatalf("progress saw %q, want each byte once", reported.String())
	}
}

func TestSnippetTrimsOnRuneBoundary(t *testing.T) {
	body := strings.Repeat("a", errorSnippet-1) + "é" + "tail"
	got := snippet(body)
	if !utf8.ValidString(got) {
		t.Fatalf("snippet split a rune: %q", got[len(got)-8:])
	}
	if want := strings.Repeat("a", errorSnippet-1) + "..."; got != want {
		t.Fatalf("snippet length %d, want %d", len(got), len(want))
	}
	if short := snippet("  brief  "); short != "brief" {
		t.Fatalf("snippet = %q", short)
	}
}
