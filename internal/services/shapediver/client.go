package shapediver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"sdconvert/internal/logging"
	"sdconvert/internal/services"
)

const (
	defaultHTTPTimeout    = 120 * time.Second
	defaultJobTimeout     = 10 * time.Minute
	defaultMaxPollDelay   = 10 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
	defaultRetryBaseDelay = 500 * time.Millisecond
	defaultRetryAttempts  = 3

	sdtfNamespace = "pub"
	apiPrefix     = "/api/v2"
	errorSnippet  = 512
)

// ProgressFunc returns a writer that observes transferred bytes for a
// labelled transfer of total bytes (-1 when unknown). It may return nil.
type ProgressFunc func(label string, total int64) io.Writer

// Client issues requests against the Geometry Backend API.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)

	jobTimeout   time.Duration
	maxPollDelay time.Duration
	now          func() time.Time
	progress     ProgressFunc
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// WithLogger attaches a logger for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRetryMaxAttempts sets the attempt count for idempotent requests.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff sets the exponential backoff bounds for retries.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper replaces time-based waiting, for tests.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// WithPolling bounds the computation wait. jobTimeout caps the total wait and
// maxDelay caps a single pause between cache polls. Non-positive values keep
// the defaults.
func WithPolling(jobTimeout, maxDelay time.Duration) Option {
	return func(c *Client) {
		if jobTimeout > 0 {
			c.jobTimeout = jobTimeout
		}
		if maxDelay > 0 {
			c.maxPollDelay = maxDelay
		}
	}
}

// WithClock overrides the time source used for the job deadline.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithProgress reports upload and download byte progress.
func WithProgress(progress ProgressFunc) Option {
	return func(c *Client) {
		c.progress = progress
	}
}

// NewClient constructs a Client.
func NewClient(opts ...Option) *Client {
	client := &Client{
		httpClient:       &http.Client{Timeout: defaultHTTPTimeout},
		logger:           logging.NewNop(),
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
		jobTimeout:       defaultJobTimeout,
		maxPollDelay:     defaultMaxPollDelay,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	client.logger = logging.NewComponentLogger(client.logger, "shapediver")
	return client
}

// ResponseError is a non-2xx reply from the service.
type ResponseError struct {
	Method     string
	Path       string
	StatusCode int
	Detail     string
	RetryAfter time.Duration
}

func (e *ResponseError) Error() string {
	detail := strings.TrimSpace(e.Detail)
	if detail == "" {
		detail = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s %s: http %d: %s", e.Method, e.Path, e.StatusCode, detail)
}

// Temporary reports whether the status is worth retrying.
func (e *ResponseError) Temporary() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

func (c *Client) openSession(ctx context.Context, endpoint, ticket string) (*sessionResponse, error) {
	var reply sessionResponse
	path := apiPrefix + "/ticket/" + url.PathEscape(ticket)
	if err := c.doJSON(ctx, http.MethodPost, endpoint, path, nil, &reply); err != nil {
		return nil, err
	}
	if strings.TrimSpace(reply.SessionID) == "" {
		return nil, errors.New("session response carries no session id")
	}
	return &reply, nil
}

func (c *Client) requestFileUpload(ctx context.Context, endpoint, sessionID, parameterID string, entry fileUploadEntry) (uploadTicket, error) {
	var reply uploadResponse
	path := apiPrefix + "/session/" + url.PathEscape(sessionID) + "/file/upload"
	body := map[string]fileUploadEntry{parameterID: entry}
	if err := c.doJSON(ctx, http.MethodPost, endpoint, path, body, &reply); err != nil {
		return uploadTicket{}, err
	}
	ticket, ok := reply.Asset.File[parameterID]
	if !ok || ticket.ID == "" || ticket.Href == "" {
		return uploadTicket{}, fmt.Errorf("upload response carries no asset for parameter %s", parameterID)
	}
	return ticket, nil
}

func (c *Client) requestSdtfUpload(ctx context.Context, endpoint, sessionID, contentType string, size int64) (uploadTicket, error) {
	var reply uploadResponse
	path := apiPrefix + "/session/" + url.PathEscape(sessionID) + "/sdtf/upload"
	body := []sdtfUploadEntry{{ContentType: contentType, ContentLength: size, Namespace: sdtfNamespace}}
	if err := c.doJSON(ctx, http.MethodPost, endpoint, path, body, &reply); err != nil {
		return uploadTicket{}, err
	}
	if len(reply.Asset.Sdtf) == 0 || reply.Asset.Sdtf[0].ID == "" || reply.Asset.Sdtf[0].Href == "" {
		return uploadTicket{}, errors.New("upload response carries no sdtf asset")
	}
	return reply.Asset.Sdtf[0], nil
}

// putAsset transfers data to the upload href issued by the service.
func (c *Client) putAsset(ctx context.Context, ticket uploadTicket, data []byte, contentType, filename string) error {
	var body io.Reader = bytes.NewReader(data)
	if w := c.progressWriter("upload", int64(len(data))); w != nil {
		body = io.TeeReader(body, w)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, ticket.Href, body)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.ContentLength = int64(len(data))
	req.Header.Set("Content-Type", contentType)
	if filename != "" {
		req.Header.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	}
	for key, value := range ticket.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// customize submits parameter values and returns the first output reply.
func (c *Client) customize(ctx context.Context, endpoint, sessionID string, bindings map[string]string) (*outputsReply, error) {
	var reply outputsReply
	path := apiPrefix + "/session/" + url.PathEscape(sessionID) + "/output"
	if err := c.doJSON(ctx, http.MethodPut, endpoint, path, bindings, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// pollCache asks for the current state of pending output versions.
func (c *Client) pollCache(ctx context.Context, endpoint, sessionID string, versions map[string]string) (*outputsReply, error) {
	var reply outputsReply
	path := apiPrefix + "/session/" + url.PathEscape(sessionID) + "/output/cache"
	err := c.withRetry(ctx, "poll output cache", func() error {
		return c.doJSON(ctx, http.MethodPut, endpoint, path, versions, &reply)
	})
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

// compute submits bindings and polls until no output reports a delay or the
// job timeout elapses.
func (c *Client) compute(ctx context.Context, endpoint, sessionID string, bindings map[string]string) (*outputsReply, error) {
	reply, err := c.customize(ctx, endpoint, sessionID, bindings)
	if err != nil {
		return nil, err
	}

	deadline := c.now().Add(c.jobTimeout)
	for polls := 0; ; polls++ {
		versions, delayMillis := reply.pendingVersions()
		if len(versions) == 0 {
			c.logger.DebugContext(ctx, "computation finished", logging.Int("polls", polls))
			return reply, nil
		}

		delay := time.Duration(delayMillis) * time.Millisecond
		if delay > c.maxPollDelay {
			delay = c.maxPollDelay
		}
		if c.now().Add(delay).After(deadline) {
			return nil, services.Wrap(services.ErrJobTimeout, "job_submitted", "poll",
				fmt.Sprintf("outputs still computing after %s (%d polls)", c.jobTimeout, polls), nil)
		}
		c.logger.DebugContext(ctx, "waiting for outputs",
			logging.Int("pending", len(versions)),
			logging.Duration("delay", delay),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}

		next, err := c.pollCache(ctx, endpoint, sessionID, versions)
		if err != nil {
			return nil, err
		}
		reply.merge(next)
	}
}

// download fetches href, resolving relative references against endpoint.
func (c *Client) download(ctx context.Context, endpoint, href string) ([]byte, error) {
	target, err := resolveHref(endpoint, href)
	if err != nil {
		return nil, err
	}
	var (
		payload  []byte
		progress *transferProgress
	)
	err = c.withRetry(ctx, "download", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return fmt.Errorf("build download request: %w", err)
		}
		resp, err := c.send(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var buf bytes.Buffer
		var sink io.Writer = &buf
		if progress == nil {
			if w := c.progressWriter("download", resp.ContentLength); w != nil {
				progress = &transferProgress{w: w}
			}
		}
		if progress != nil {
			progress.restart()
			sink = io.MultiWriter(&buf, progress)
		}
		if _, err := io.Copy(sink, resp.Body); err != nil {
			return fmt.Errorf("read download body: %w", err)
		}
		payload = buf.Bytes()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *Client) doJSON(ctx context.Context, method, endpoint, path string, body, target any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(endpoint, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if target == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

// send performs req once and converts non-2xx replies into *ResponseError.
// The caller closes the body of a successful response.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	started := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	c.logger.DebugContext(req.Context(), "http exchange",
		logging.String("method", req.Method),
		logging.String("path", req.URL.Path),
		logging.Int("status", resp.StatusCode),
		logging.Duration("elapsed", c.now().Sub(started)),
	)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	respErr := &ResponseError{
		Method:     req.Method,
		Path:       req.URL.Path,
		StatusCode: resp.StatusCode,
	}
	var parsed errorBody
	if json.Unmarshal(raw, &parsed) == nil && parsed.summary() != "" {
		respErr.Detail = parsed.summary()
	} else {
		respErr.Detail = snippet(string(raw))
	}
	if retryAfter, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
		respErr.RetryAfter = retryAfter
	}
	return nil, respErr
}

func (c *Client) progressWriter(label string, total int64) io.Writer {
	if c.progress == nil {
		return nil
	}
	return c.progress(label, total)
}

// transferProgress forwards bytes to a progress writer across retried
// attempts. A restarted attempt only reports bytes past the furthest offset
// already reported, so one bar covers the whole transfer.
type transferProgress struct {
	w        io.Writer
	offset   int64
	reported int64
}

func (p *transferProgress) restart() {
	p.offset = 0
}

func (p *transferProgress) Write(b []byte) (int, error) {
	end := p.offset + int64(len(b))
	if end > p.reported {
		skip := p.reported - p.offset
		if skip < 0 {
			skip = 0
		}
		if _, err := p.w.Write(b[skip:]); err != nil {
			return 0, err
		}
		p.reported = end
	}
	p.offset = end
	return len(b), nil
}

func (c *Client) withRetry(ctx context.Context, op string, call func() error) error {
	attempts := c.retryAttempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := call()
		if err == nil {
			return nil
		}
		lastErr = err
		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			if attempt > 1 {
				return fmt.Errorf("%s: failed after %d attempts: %w", op, attempt, err)
			}
			return err
		}
		c.logger.DebugContext(ctx, "retrying request",
			logging.String("operation", op),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, lastErr)
}

func (c *Client) retryAttempts() int {
	if c.retryMaxAttempts <= 0 {
		return 1
	}
	return c.retryMaxAttempts
}

func (c *Client) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var respErr *ResponseError
	if errors.As(err, &respErr) {
		if !respErr.Temporary() {
			return 0, false
		}
		if respErr.RetryAfter > 0 {
			return c.capDelay(respErr.RetryAfter), true
		}
		return c.backoffDelay(attempt), true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.backoffDelay(attempt), true
	}
	return 0, false
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	base := c.retryBaseDelay
	if base <= 0 {
		return 0
	}
	if attempt <= 0 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > c.retryMaxDelay/2 {
			delay = c.retryMaxDelay
			break
		}
		delay *= 2
	}
	return c.capDelay(delay)
}

func (c *Client) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if c.retryMaxDelay > 0 && delay > c.retryMaxDelay {
		return c.retryMaxDelay
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

func resolveHref(endpoint, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil || href == "" {
		return "", fmt.Errorf("invalid artifact href %q", href)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	base, err := url.Parse(strings.TrimRight(endpoint, "/") + "/")
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	return base.ResolveReference(ref).String(), nil
}

func snippet(body string) string {
	body = strings.TrimSpace(body)
	if len(body) <= errorSnippet {
		return body
	}
	cut := errorSnippet
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut] + "..."
}
