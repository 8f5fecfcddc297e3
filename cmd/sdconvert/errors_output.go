package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"sdconvert/internal/conversion"
	"sdconvert/internal/services"
)

// reportError prints err with its failure kind. A NoMatchingOutput failure
// also dumps the outputs the service returned.
func reportError(w io.Writer, err error) {
	if err == nil {
		return
	}
	kind := services.FailureKind(err)
	if kind == "" || kind == "Error" {
		fmt.Fprintf(w, "Error: %v\n", err)
	} else {
		fmt.Fprintf(w, "%s: %v\n", kind, err)
	}

	var noMatch *conversion.NoMatchingOutputError
	if !errors.As(err, &noMatch) {
		return
	}
	fmt.Fprintln(w, "Outputs returned by the service:")
	if raw := noMatch.RawOutputs(); len(raw) > 0 {
		var pretty bytes.Buffer
		if json.Indent(&pretty, raw, "", "  ") == nil {
			fmt.Fprintln(w, pretty.String())
		} else {
			fmt.Fprintln(w, string(raw))
		}
	}
	if len(noMatch.Outputs) > 0 {
		fmt.Fprintln(w, renderOutputSets(noMatch.Outputs))
	}
}

func renderOutputSets(outputs []conversion.OutputSet) string {
	rows := make([][]string, 0, len(outputs))
	for _, out := range outputs {
		var formats, types []string
		for _, item := range out.Items {
			if item.Format != "" {
				formats = append(formats, item.Format)
			}
			if item.ContentType != "" {
				types = append(types, item.ContentType)
			}
		}
		rows = append(rows, []string{
			out.ID,
			out.Name,
			statusLabel(string(out.Status)),
			strconv.Itoa(len(out.Items)),
			joinOrDash(formats),
			joinOrDash(types),
		})
	}
	return renderTable(
		[]string{"Output", "Name", "Status", "Items", "Formats", "Content Types"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
}
