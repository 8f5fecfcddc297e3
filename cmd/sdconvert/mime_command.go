package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"sdconvert/internal/mimetype"
)

func newMimeCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "mime <file>...",
		Short:       "Show the mime types resolved for files",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		Args:        cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0, len(args))
			for _, path := range args {
				candidates := mimetype.Resolve(path)
				primary := "-"
				if len(candidates) > 0 {
					primary = candidates[0]
				}
				rows = append(rows, []string{filepath.Base(path), primary, joinOrDash(candidates)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"File", "Primary", "Candidates"}, rows, nil))
			return nil
		},
	}
}
