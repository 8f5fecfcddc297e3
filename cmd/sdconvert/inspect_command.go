package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sdconvert/internal/conversion"
	"sdconvert/internal/mimetype"
)

type inspectParameter struct {
	conversion.Parameter
	Binds bool `json:"binds"`
}

type inspectOutput struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type inspectView struct {
	Mode       string             `json:"mode"`
	SessionID  string             `json:"session_id"`
	MIMEType   string             `json:"mime_type,omitempty"`
	MatchError string             `json:"match_error,omitempty"`
	Parameters []inspectParameter `json:"parameters"`
	// HiddenCount is the number of hidden parameters left out of Parameters.
	HiddenCount int             `json:"hidden_count,omitempty"`
	Outputs     []inspectOutput `json:"outputs"`
}

func newInspectCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput, showAll bool

	cmd := &cobra.Command{
		Use:   "inspect <mode> [input]",
		Short: "List the parameters and outputs of a conversion model",
		Long: "Open a session against the mode's model and list its parameters and outputs.\n" +
			"With an input file, parameters the input would bind to are marked.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := parseModeArg(args[0])
			if err != nil {
				return err
			}
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
			remote := ctx.newRemote(cfg, logger, false)
			session, err := remote.Open(runCtx, endpoint.ModelViewURL, endpoint.Ticket)
			if err != nil {
				return err
			}

			view := inspectView{Mode: mode.Name, SessionID: session.ID}
			bound := map[string]bool{}
			if len(args) == 2 {
				mimeType, ok := mimetype.Primary(args[1])
				if !ok {
					view.MatchError = fmt.Sprintf("no mime type known for %s", args[1])
				} else {
					view.MIMEType = mimeType
					matched, matchErr := bindable(mode, session.Parameters, mimeType)
					if matchErr != nil {
						view.MatchError = matchErr.Error()
					}
					for _, p := range matched {
						bound[p.ID] = true
					}
				}
			}
			for _, p := range session.Parameters {
				if p.Hidden && !showAll {
					view.HiddenCount++
					continue
				}
				view.Parameters = append(view.Parameters, inspectParameter{Parameter: p, Binds: bound[p.ID]})
			}
			for _, o := range session.Outputs {
				view.Outputs = append(view.Outputs, inspectOutput{ID: o.ID, Name: o.Name})
			}

			if jsonOutput {
				return writeJSON(cmd, view)
			}
			printInspectView(cmd, view, len(args) == 2)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the session description as JSON")
	cmd.Flags().BoolVar(&showAll, "all", false, "Include parameters the model marks as hidden")
	return cmd
}

func bindable(mode conversion.Mode, params []conversion.Parameter, mimeType string) ([]conversion.Parameter, error) {
	if err := mode.Input.CheckMIMEType(mimeType); err != nil {
		return nil, err
	}
	return mode.Input.Match(params, mimeType)
}

func printInspectView(cmd *cobra.Command, view inspectView, withInput bool) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session %s (%s)\n", view.SessionID, view.Mode)
	if view.MIMEType != "" {
		fmt.Fprintf(out, "Input type: %s\n", view.MIMEType)
	}
	if view.MatchError != "" {
		fmt.Fprintf(out, "Binding: %s\n", view.MatchError)
	}

	headers := []string{"ID", "Name", "Type", "Kind", "Formats"}
	if withInput {
		headers = append(headers, "Binds")
	}
	rows := make([][]string, 0, len(view.Parameters))
	for _, p := range view.Parameters {
		row := []string{p.ID, p.Name, p.Type, p.Kind.String(), joinOrDash(p.AcceptedFormats)}
		if withInput {
			row = append(row, yesNo(p.Binds))
		}
		rows = append(rows, row)
	}
	fmt.Fprintln(out, "\nParameters")
	if len(rows) == 0 {
		fmt.Fprintln(out, "  none")
	} else {
		fmt.Fprintln(out, renderTable(headers, rows, nil))
	}

	if view.HiddenCount > 0 {
		fmt.Fprintf(out, "%d hidden parameter(s) omitted (use --all)\n", view.HiddenCount)
	}

	fmt.Fprintln(out, "\nOutputs")
	if len(view.Outputs) == 0 {
		fmt.Fprintln(out, "  none")
		return
	}
	outRows := make([][]string, 0, len(view.Outputs))
	for _, o := range view.Outputs {
		outRows = append(outRows, []string{o.ID, strings.TrimSpace(o.Name)})
	}
	fmt.Fprintln(out, renderTable([]string{"ID", "Name"}, outRows, nil))
}
