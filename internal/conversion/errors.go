package conversion

import (
	"encoding/json"
	"fmt"

	"sdconvert/internal/services"
)

func computationFailed(detail string) error {
	return services.Wrap(services.ErrComputation, string(StateJobSubmitted), "computation", detail, nil)
}

// NoMatchingOutputError reports that no successful output carried an item
// matching the output policy. It unwraps to services.ErrNoMatchingOutput.
type NoMatchingOutputError struct {
	Policy  string
	Outputs []OutputSet
	Raw     json.RawMessage
}

func (e *NoMatchingOutputError) Error() string {
	succeeded := 0
	for _, out := range e.Outputs {
		if out.Status.Succeeded() {
			succeeded++
		}
	}
	return fmt.Sprintf("%s: %s: no successful output has %s (%d outputs, %d succeeded)",
		services.ErrNoMatchingOutput, StateOutputSelected, e.Policy, len(e.Outputs), succeeded)
}

func (e *NoMatchingOutputError) Unwrap() error {
	return services.ErrNoMatchingOutput
}

// RawOutputs returns the verbatim outputs object, re-encoding the parsed
// outputs when the raw form is unavailable.
func (e *NoMatchingOutputError) RawOutputs() json.RawMessage {
	if len(e.Raw) > 0 {
		return e.Raw
	}
	encoded, err := json.Marshal(e.Outputs)
	if err != nil {
		return nil
	}
	return encoded
}
