package preflight

import (
	"context"
	"fmt"
	"strings"

	"sdconvert/internal/config"
	"sdconvert/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
	// Marker classifies a failure with one of the services error markers.
	Marker error `json:"-"`
}

// Options selects what RunAll inspects. Empty paths skip their checks.
type Options struct {
	Config     *config.Config
	Section    string
	InputPath  string
	OutputPath string
	// ExpectedMIMEType, when set, must equal the input's resolved mime type.
	ExpectedMIMEType string
}

// RunAll executes all applicable preflight checks. Local checks run first;
// the endpoint is contacted only when every local check passed, so a bad
// input never reaches the network and keeps its own failure kind.
func RunAll(ctx context.Context, opts Options) []Result {
	if opts.Config == nil {
		return nil
	}

	var results []Result

	endpoint, credentials := CheckCredentials(opts.Config, opts.Section)
	results = append(results, credentials)
	if opts.InputPath != "" {
		results = append(results, CheckInputFile(opts.InputPath, opts.ExpectedMIMEType))
	}
	if opts.OutputPath != "" {
		results = append(results, CheckOutputPath(opts.OutputPath))
	}

	for _, r := range results {
		if !r.Passed {
			return results
		}
	}
	return append(results, CheckEndpoint(ctx, endpoint.ModelViewURL))
}

// Failed returns an error naming every failed result, or nil. The error
// carries the marker of the first failure.
func Failed(results []Result) error {
	var (
		failures []string
		marker   error
	)
	for _, r := range results {
		if r.Passed {
			continue
		}
		failures = append(failures, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		if marker == nil {
			marker = r.Marker
		}
	}
	if len(failures) == 0 {
		return nil
	}
	if marker == nil {
		marker = services.ErrConfiguration
	}
	return services.Wrap(marker, "preflight", "", strings.Join(failures, "; "), nil)
}
