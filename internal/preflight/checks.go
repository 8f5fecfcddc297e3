package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"sdconvert/internal/config"
	"sdconvert/internal/mimetype"
	"sdconvert/internal/services"
)

const endpointTimeout = 5 * time.Second

// CheckCredentials verifies that the model view URL and ticket for section resolve.
func CheckCredentials(cfg *config.Config, section string) (config.Endpoint, Result) {
	const name = "Credentials"

	endpoint, err := cfg.Endpoint(section)
	if err != nil {
		return config.Endpoint{}, Result{Name: name, Marker: services.ErrConfiguration, Detail: err.Error()}
	}
	return endpoint, Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s ticket configured", section)}
}

// CheckEndpoint verifies the geometry backend answers HTTP at baseURL. Any
// response below 500 counts as reachable; authentication is exercised by the
// session request itself.
func CheckEndpoint(ctx context.Context, baseURL string) Result {
	const name = "Geometry backend"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Marker: services.ErrSessionInit, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, endpointTimeout)
	defer cancel()

	client := &http.Client{Timeout: endpointTimeout}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+"/api/v2/", nil)
	if err != nil {
		return Result{Name: name, Marker: services.ErrSessionInit, Detail: fmt.Sprintf("reachability check failed (%v)", err)}
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Marker: services.ErrSessionInit, Detail: summarizeNetError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return Result{Name: name, Marker: services.ErrSessionInit, Detail: fmt.Sprintf("%s (error: http %d)", base, resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (reachable)", base)}
}

// CheckInputFile verifies the input is a readable regular file with a known
// mime type, matching expectedMIME when given.
func CheckInputFile(path, expectedMIME string) Result {
	const name = "Input file"

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Marker: services.ErrFileIO, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Marker: services.ErrFileIO, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.Mode().IsRegular() {
		return Result{Name: name, Marker: services.ErrFileIO, Detail: fmt.Sprintf("%s (error: not a regular file)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Marker: services.ErrFileIO, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}

	mimeType, ok := mimetype.Primary(path)
	if !ok {
		return Result{Name: name, Marker: services.ErrUnknownMimeType, Detail: fmt.Sprintf("%s (error: unknown mime type)", path)}
	}
	if expectedMIME != "" && mimeType != expectedMIME {
		return Result{Name: name, Marker: services.ErrUnexpectedMimeType, Detail: fmt.Sprintf("%s (error: %s, expected %s)", path, mimeType, expectedMIME)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, mimeType)}
}

// CheckOutputPath verifies the output's parent directory exists and is
// writable, and that the output itself is not a directory.
func CheckOutputPath(path string) Result {
	const name = "Output path"

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return Result{Name: name, Marker: services.ErrFileIO, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}

	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Marker: services.ErrFileIO, Detail: fmt.Sprintf("%s (error: directory does not exist)", dir)}
		}
		return Result{Name: name, Marker: services.ErrFileIO, Detail: fmt.Sprintf("%s (error: stat: %v)", dir, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Marker: services.ErrFileIO, Detail: fmt.Sprintf("%s (error: is not a directory)", dir)}
	}
	if err := unix.Access(dir, unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Marker: services.ErrFileIO, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", dir, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (writable)", dir)}
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "reachability check timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "reachability check timed out"
	}
	return err.Error()
}
