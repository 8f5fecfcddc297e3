// Package mimetype guesses the mime type of design files from their extension.
package mimetype

import (
	"mime"
	"path/filepath"
	"strings"
)

// Resolver maps a file path to candidate mime types, best guess first. An
// empty result means the type is unknown.
type Resolver func(path string) []string

// SdtfMIMEType is the mime type of ShapeDiver's structured data transfer format.
const SdtfMIMEType = "model/vnd.sdtf"

// GltfBinaryMIMEType is the mime type of binary glTF.
const GltfBinaryMIMEType = "model/gltf-binary"

// known covers CAD and model formats the geometry backend accepts. Keys are
// lower-case extensions without the dot.
var known = map[string][]string{
	"3dm":  {"model/vnd.3dm", "application/x-3dm"},
	"3ds":  {"application/x-3ds", "image/x-3ds"},
	"dwg":  {"image/vnd.dwg", "application/acad"},
	"dxf":  {"image/vnd.dxf", "application/dxf"},
	"fbx":  {"application/octet-stream"},
	"gh":   {"application/x-grasshopper"},
	"ghx":  {"application/x-grasshopper+xml"},
	"glb":  {GltfBinaryMIMEType},
	"gltf": {"model/gltf+json"},
	"ifc":  {"application/x-step", "model/ifc"},
	"iges": {"model/iges", "application/iges"},
	"igs":  {"model/iges", "application/iges"},
	"json": {"application/json"},
	"obj":  {"model/obj", "application/x-tgif"},
	"sat":  {"application/x-sat"},
	"sdtf": {SdtfMIMEType},
	"skp":  {"application/vnd.sketchup.skp"},
	"step": {"model/step", "application/step"},
	"stl":  {"model/stl", "application/sla"},
	"stp":  {"model/step", "application/step"},
	"usdz": {"model/vnd.usdz+zip"},
	"x_t":  {"application/x-parasolid"},
}

// Resolve returns the candidate mime types for path. Known design formats come
// from a built-in table; the system mime registry supplies a trailing fallback.
func Resolve(path string) []string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" || ext == "." {
		return nil
	}

	var candidates []string
	if table, ok := known[strings.TrimPrefix(ext, ".")]; ok {
		candidates = append(candidates, table...)
	}
	if registered := mime.TypeByExtension(ext); registered != "" {
		base, _, err := mime.ParseMediaType(registered)
		if err != nil {
			base = registered
		}
		if !contains(candidates, base) {
			candidates = append(candidates, base)
		}
	}
	return candidates
}

// Primary returns the first candidate for path and whether one exists.
func Primary(path string) (string, bool) {
	candidates := Resolve(path)
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[0], true
}

// Static builds a Resolver that answers from a fixed extension map. Keys are
// extensions with or without the dot; lookups are case-insensitive.
func Static(table map[string]string) Resolver {
	normalized := make(map[string]string, len(table))
	for ext, mimeType := range table {
		normalized[strings.TrimPrefix(strings.ToLower(ext), ".")] = mimeType
	}
	return func(path string) []string {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		if mimeType, ok := normalized[ext]; ok && mimeType != "" {
			return []string{mimeType}
		}
		return nil
	}
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
