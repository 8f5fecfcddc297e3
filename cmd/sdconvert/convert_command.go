package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"sdconvert/internal/conversion"
	"sdconvert/internal/logging"
	"sdconvert/internal/mimetype"
	"sdconvert/internal/preflight"
	"sdconvert/internal/services"
)

type convertOptions struct {
	jsonOutput    bool
	skipPreflight bool
}

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var opts convertOptions

	cmd := &cobra.Command{
		Use:   "convert <mode> <input> <output>",
		Short: "Convert a design file through the geometry backend",
		Long:  "Convert a design file through the geometry backend.\n\nModes:\n" + modeHelp(),
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := parseModeArg(args[0])
			if err != nil {
				return err
			}
			return runConvert(cmd, ctx, mode, args[1], args[2], opts)
		},
	}
	addConvertFlags(cmd, &opts)
	return cmd
}

// newShorthandCommands exposes each mode as its own verb, e.g.
// "sdconvert cad-to-sdtf part.3dm part.sdtf".
func newShorthandCommands(ctx *commandContext) []*cobra.Command {
	modes := conversion.Modes()
	commands := make([]*cobra.Command, 0, len(modes))
	for _, mode := range modes {
		if len(mode.Aliases) == 0 {
			continue
		}
		var opts convertOptions
		cmd := &cobra.Command{
			Use:     mode.Aliases[0] + " <input> <output>",
			Aliases: mode.Aliases[1:],
			Short:   mode.Description,
			Args:    cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConvert(cmd, ctx, mode, args[0], args[1], opts)
			},
		}
		addConvertFlags(cmd, &opts)
		commands = append(commands, cmd)
	}
	return commands
}

func addConvertFlags(cmd *cobra.Command, opts *convertOptions) {
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the run summary as JSON")
	cmd.Flags().BoolVar(&opts.skipPreflight, "skip-preflight", false, "Skip credential, endpoint, and path checks before converting")
}

type convertSummary struct {
	RunID  string             `json:"run_id"`
	OK     bool               `json:"ok"`
	Kind   string             `json:"error_kind,omitempty"`
	Error  string             `json:"error,omitempty"`
	Result *conversion.Result `json:"result,omitempty"`
}

func runConvert(cmd *cobra.Command, ctx *commandContext, mode conversion.Mode, input, output string, opts convertOptions) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}
	endpoint, err := endpointFor(cfg, mode)
	if err != nil {
		return err
	}

	runCtx := runContext(cmd, mode)
	runID, _ := services.RunIDFromContext(runCtx)
	logger = logging.WithContext(runCtx, logger)

	if !opts.skipPreflight {
		results := preflight.RunAll(runCtx, preflight.Options{
			Config:           cfg,
			Section:          sectionForMode(mode),
			InputPath:        input,
			OutputPath:       output,
			ExpectedMIMEType: expectedMIMEType(mode),
		})
		for _, r := range results {
			if !r.Passed {
				logger.Warn("preflight check failed", logging.String("check", r.Name), logging.String("detail", r.Detail))
			}
		}
		if err := preflight.Failed(results); err != nil {
			return err
		}
	}

	remote := ctx.newRemote(cfg, logger, !opts.jsonOutput)
	pipeline := conversion.NewForMode(remote, mode, conversion.WithLogger(logger))

	started := time.Now()
	result, runErr := pipeline.Run(runCtx, conversion.Request{
		InputPath:   input,
		OutputPath:  output,
		EndpointURL: endpoint.ModelViewURL,
		Ticket:      endpoint.Ticket,
	})

	if opts.jsonOutput {
		summary := convertSummary{RunID: runID, OK: runErr == nil, Result: result}
		if runErr != nil {
			summary.Kind = services.FailureKind(runErr)
			summary.Error = runErr.Error()
		}
		if err := writeJSON(cmd, summary); err != nil {
			return err
		}
		return runErr
	}
	if runErr != nil {
		return runErr
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Wrote %s to %s (%s, output %s) in %s\n",
		humanize.Bytes(uint64(result.BytesWritten)),
		output,
		describeItem(result.Item),
		result.Output.ID,
		time.Since(started).Round(time.Millisecond),
	)
	return nil
}

func expectedMIMEType(mode conversion.Mode) string {
	if policy, ok := mode.Input.(conversion.StructuredDataPolicy); ok {
		if policy.ExpectedMIMEType != "" {
			return policy.ExpectedMIMEType
		}
		return mimetype.SdtfMIMEType
	}
	return ""
}

func describeItem(item conversion.ContentItem) string {
	parts := make([]string, 0, 2)
	if item.Format != "" {
		parts = append(parts, item.Format)
	}
	if item.ContentType != "" && item.ContentType != item.Format {
		parts = append(parts, item.ContentType)
	}
	if len(parts) == 0 {
		return "artifact"
	}
	return strings.Join(parts, ", ")
}

func modeHelp() string {
	var b strings.Builder
	for _, mode := range conversion.Modes() {
		fmt.Fprintf(&b, "  %-24s %s (aliases: %s)\n", mode.Name, mode.Description, strings.Join(mode.Aliases, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}
