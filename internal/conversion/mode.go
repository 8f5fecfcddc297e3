package conversion

import (
	"fmt"
	"strings"
)

// Mode pairs an input policy with an output policy under a user-facing name.
type Mode struct {
	Name        string
	Aliases     []string
	Description string
	Input       InputPolicy
	Output      OutputPolicy
}

var (
	// CADToIntermediate converts a CAD file to sdTF.
	CADToIntermediate = Mode{
		Name:        "cad-to-intermediate",
		Aliases:     []string{"cad-to-sdtf", "cadToSdtf"},
		Description: "Convert a CAD file to sdTF",
		Input:       FileInputPolicy{},
		Output:      SdtfResult,
	}
	// IntermediateToDisplay converts an sdTF file to binary glTF.
	IntermediateToDisplay = Mode{
		Name:        "intermediate-to-display",
		Aliases:     []string{"sdtf-to-gltf", "sdtfToGltf"},
		Description: "Convert an sdTF file to binary glTF",
		Input:       StructuredDataPolicy{},
		Output:      GltfResult,
	}
)

// Modes lists the supported conversion modes.
func Modes() []Mode {
	return []Mode{CADToIntermediate, IntermediateToDisplay}
}

// ParseMode resolves a mode by name or alias, ignoring case.
func ParseMode(name string) (Mode, error) {
	trimmed := strings.TrimSpace(name)
	for _, mode := range Modes() {
		if strings.EqualFold(trimmed, mode.Name) {
			return mode, nil
		}
		for _, alias := range mode.Aliases {
			if strings.EqualFold(trimmed, alias) {
				return mode, nil
			}
		}
	}
	names := make([]string, 0, 2)
	for _, mode := range Modes() {
		names = append(names, mode.Name)
	}
	return Mode{}, fmt.Errorf("unknown conversion mode %q (valid: %s)", name, strings.Join(names, ", "))
}
