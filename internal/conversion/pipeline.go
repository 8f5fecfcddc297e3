package conversion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"sdconvert/internal/fileutil"
	"sdconvert/internal/logging"
	"sdconvert/internal/mimetype"
	"sdconvert/internal/services"
)

// State is a step of the conversion state machine.
type State string

const (
	StateStart            State = "start"
	StateMimeResolved     State = "mime_resolved"
	StateSessionOpen      State = "session_open"
	StateParameterMatched State = "parameter_matched"
	StateAssetUploaded    State = "asset_uploaded"
	StateJobSubmitted     State = "job_submitted"
	StateJobSucceeded     State = "job_succeeded"
	StateOutputSelected   State = "output_selected"
	StateDownloaded       State = "downloaded"
	StateWritten          State = "written"
	StateFailed           State = "failed"
)

// outputFileMode is applied when the output file is created.
const outputFileMode os.FileMode = 0o644

// Result summarizes a run. On failure it holds everything gathered up to the
// failing step and States ends with StateFailed.
type Result struct {
	Mode         string        `json:"mode,omitempty"`
	InputPath    string        `json:"input"`
	OutputPath   string        `json:"output"`
	MIMEType     string        `json:"mime_type,omitempty"`
	SessionID    string        `json:"session_id,omitempty"`
	Parameters   []Parameter   `json:"parameters,omitempty"`
	Asset        UploadedAsset `json:"asset"`
	Output       OutputSet     `json:"selected_output"`
	Item         ContentItem   `json:"selected_item"`
	BytesRead    int           `json:"bytes_read"`
	BytesWritten int           `json:"bytes_written"`
	Checksum     string        `json:"sha256,omitempty"`
	States       []State       `json:"states"`
	Duration     time.Duration `json:"duration_ns"`
}

// Last returns the final state reached.
func (r *Result) Last() State {
	if r == nil || len(r.States) == 0 {
		return StateStart
	}
	return r.States[len(r.States)-1]
}

// Pipeline runs one conversion with an injected pair of policies.
type Pipeline struct {
	name      string
	input     InputPolicy
	output    OutputPolicy
	remote    Remote
	resolve   mimetype.Resolver
	logger    *slog.Logger
	readFile  func(path string) ([]byte, error)
	writeFile func(path string, data []byte) error
	now       func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithResolver overrides the mime type resolver.
func WithResolver(resolve mimetype.Resolver) Option {
	return func(p *Pipeline) {
		if resolve != nil {
			p.resolve = resolve
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithFileIO overrides how the input is read and the output written.
func WithFileIO(read func(string) ([]byte, error), write func(string, []byte) error) Option {
	return func(p *Pipeline) {
		if read != nil {
			p.readFile = read
		}
		if write != nil {
			p.writeFile = write
		}
	}
}

// WithName labels the pipeline in results and logs.
func WithName(name string) Option {
	return func(p *Pipeline) {
		p.name = strings.TrimSpace(name)
	}
}

// New constructs a pipeline around remote with the given policies.
func New(remote Remote, input InputPolicy, output OutputPolicy, opts ...Option) *Pipeline {
	p := &Pipeline{
		input:    input,
		output:   output,
		remote:   remote,
		resolve:  mimetype.Resolve,
		logger:   logging.NewNop(),
		readFile: fileutil.ReadAll,
		writeFile: func(path string, data []byte) error {
			return fileutil.WriteAll(path, data, outputFileMode)
		},
		now: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	p.logger = logging.NewComponentLogger(p.logger, "pipeline")
	return p
}

// NewForMode constructs the pipeline for a conversion mode.
func NewForMode(remote Remote, mode Mode, opts ...Option) *Pipeline {
	return New(remote, mode.Input, mode.Output, append([]Option{WithName(mode.Name)}, opts...)...)
}

// Run executes the conversion. The returned Result is never nil. No remote
// call is made after a step fails, and the output file is only touched once
// the artifact has been downloaded.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	started := p.now()
	result := &Result{
		Mode:       p.name,
		InputPath:  req.InputPath,
		OutputPath: req.OutputPath,
		States:     []State{StateStart},
	}
	ctx = services.WithMode(ctx, p.name)

	err := p.run(ctx, req, result)
	result.Duration = p.now().Sub(started)
	if err != nil {
		result.States = append(result.States, StateFailed)
		p.logger.ErrorContext(ctx, "conversion failed",
			logging.String(logging.FieldEventType, "conversion_failure"),
			logging.String("failure_kind", services.FailureKind(err)),
			logging.String("last_state", string(result.States[len(result.States)-2])),
			logging.Error(err),
		)
		return result, err
	}

	p.logger.InfoContext(ctx, "conversion completed",
		logging.String(logging.FieldEventType, "conversion_complete"),
		logging.String("output", req.OutputPath),
		logging.Bytes("size", int64(result.BytesWritten)),
		logging.Duration("elapsed", result.Duration),
	)
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, req Request, result *Result) error {
	if p.remote == nil || p.input == nil || p.output == nil {
		return services.Wrap(services.ErrConfiguration, "pipeline", "init", "remote and policies are required", nil)
	}
	advance := func(state State) {
		result.States = append(result.States, state)
		p.logger.DebugContext(ctx, "state reached", logging.String("state", string(state)))
	}

	stageCtx := services.WithStage(ctx, string(StateMimeResolved))
	candidates := p.resolve(req.InputPath)
	if len(candidates) == 0 {
		return services.Wrap(services.ErrUnknownMimeType, string(StateMimeResolved), "resolve",
			fmt.Sprintf("cannot determine mime type of %s", req.InputPath), nil)
	}
	mimeType := candidates[0]
	result.MIMEType = mimeType
	if err := p.input.CheckMIMEType(mimeType); err != nil {
		return err
	}
	advance(StateMimeResolved)
	p.logger.InfoContext(stageCtx, "input resolved",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("input", req.InputPath),
		logging.String("mime_type", mimeType),
	)

	if strings.TrimSpace(req.EndpointURL) == "" || strings.TrimSpace(req.Ticket) == "" {
		return services.Wrap(services.ErrConfiguration, string(StateSessionOpen), "credentials",
			"endpoint url and ticket are required", nil)
	}

	stageCtx = services.WithStage(ctx, string(StateSessionOpen))
	session, err := p.remote.Open(stageCtx, req.EndpointURL, req.Ticket)
	if err != nil {
		return classify(err, services.ErrSessionInit, string(StateSessionOpen), "open session")
	}
	if session == nil {
		return services.Wrap(services.ErrSessionInit, string(StateSessionOpen), "open session", "service returned no session", nil)
	}
	result.SessionID = session.ID
	advance(StateSessionOpen)
	p.logger.InfoContext(stageCtx, "session opened",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("session_id", session.ID),
		logging.Int("parameters", len(session.Parameters)),
		logging.Int("outputs", len(session.Outputs)),
	)

	stageCtx = services.WithStage(ctx, string(StateParameterMatched))
	matched, err := p.input.Match(session.Parameters, mimeType)
	if err != nil {
		return err
	}
	result.Parameters = matched
	advance(StateParameterMatched)
	p.logger.InfoContext(stageCtx, "parameters matched",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("policy", p.input.Name()),
		logging.String("parameter_ids", parameterIDs(matched)),
	)

	data, err := p.readFile(req.InputPath)
	if err != nil {
		return services.Wrap(services.ErrFileIO, string(StateParameterMatched), "read input", req.InputPath, err)
	}
	result.BytesRead = len(data)

	stageCtx = services.WithStage(ctx, string(StateAssetUploaded))
	target := p.input.Target(matched, req.InputPath)
	asset, err := p.remote.Upload(stageCtx, session, data, mimeType, target)
	if err != nil {
		return classify(err, services.ErrUpload, string(StateAssetUploaded), "upload "+target.Kind.String())
	}
	result.Asset = asset
	advance(StateAssetUploaded)
	p.logger.InfoContext(stageCtx, "asset uploaded",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("asset_id", asset.ID),
		logging.Bytes("size", int64(len(data))),
	)

	stageCtx = services.WithStage(ctx, string(StateJobSubmitted))
	bindings := make(map[string]string, len(matched))
	for _, param := range matched {
		bindings[param.ID] = asset.ID
	}
	advance(StateJobSubmitted)
	job, err := p.remote.Submit(stageCtx, session, bindings)
	if err != nil {
		return classify(err, services.ErrComputation, string(StateJobSubmitted), "submit", services.ErrJobTimeout)
	}
	if err := job.Failure(); err != nil {
		return err
	}
	advance(StateJobSucceeded)

	stageCtx = services.WithStage(ctx, string(StateOutputSelected))
	output, item, err := p.output.Select(job)
	if err != nil {
		var noMatch *NoMatchingOutputError
		if errors.As(err, &noMatch) {
			p.logger.DebugContext(stageCtx, "no output matched",
				logging.String("policy", p.output.Name()),
				logging.String("outputs", string(noMatch.RawOutputs())),
			)
		}
		return err
	}
	result.Output = output
	result.Item = item
	advance(StateOutputSelected)
	p.logger.InfoContext(stageCtx, "output selected",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("output_id", output.ID),
		logging.String("href", item.Href),
	)

	stageCtx = services.WithStage(ctx, string(StateDownloaded))
	payload, err := p.remote.Download(stageCtx, session, item.Href)
	if err != nil {
		return classify(err, services.ErrDownload, string(StateDownloaded), "download")
	}
	advance(StateDownloaded)

	if err := p.writeFile(req.OutputPath, payload); err != nil {
		return services.Wrap(services.ErrFileIO, string(StateWritten), "write output", req.OutputPath, err)
	}
	result.BytesWritten = len(payload)
	result.Checksum = fileutil.Checksum(payload)
	advance(StateWritten)
	return nil
}

// classify tags err with fallback unless it already carries fallback or one
// of the accepted markers.
func classify(err, fallback error, stage, operation string, accepted ...error) error {
	if errors.Is(err, fallback) {
		return err
	}
	for _, marker := range accepted {
		if errors.Is(err, marker) {
			return err
		}
	}
	return services.Wrap(fallback, stage, operation, "", err)
}

func parameterIDs(params []Parameter) string {
	ids := make([]string, 0, len(params))
	for _, p := range params {
		ids = append(ids, p.ID)
	}
	return strings.Join(ids, ",")
}
