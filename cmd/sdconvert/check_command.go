package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sdconvert/internal/preflight"
)

type checkView struct {
	Mode    string             `json:"mode"`
	OK      bool               `json:"ok"`
	Results []preflight.Result `json:"results"`
}

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "check <mode> [input] [output]",
		Short: "Run preflight checks for a conversion",
		Long: "Verify credentials and endpoint reachability for a mode.\n" +
			"Given paths, also verify the input is readable and the output is writable.",
		Args: cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := parseModeArg(args[0])
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			opts := preflight.Options{
				Config:           cfg,
				Section:          sectionForMode(mode),
				ExpectedMIMEType: expectedMIMEType(mode),
			}
			if len(args) > 1 {
				opts.InputPath = args[1]
			}
			if len(args) > 2 {
				opts.OutputPath = args[2]
			}

			results := preflight.RunAll(runContext(cmd, mode), opts)
			failed := preflight.Failed(results)

			if jsonOutput {
				if err := writeJSON(cmd, checkView{Mode: mode.Name, OK: failed == nil, Results: results}); err != nil {
					return err
				}
				return failed
			}

			rows := make([][]string, 0, len(results))
			for _, r := range results {
				status := "passed"
				if !r.Passed {
					status = "failed"
				}
				rows = append(rows, []string{r.Name, statusLabel(status), r.Detail})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Check", "Status", "Detail"}, rows, nil))
			return failed
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print check results as JSON")
	return cmd
}
