package conversion

import (
	"encoding/json"
	"strings"
)

// Request describes one conversion run. It is not modified by the pipeline.
type Request struct {
	InputPath   string
	OutputPath  string
	EndpointURL string
	Ticket      string
}

// ParameterKind classifies a session parameter by the input it accepts.
type ParameterKind int

const (
	KindOther ParameterKind = iota
	// KindFile parameters accept an uploaded file asset.
	KindFile
	// KindStructuredData parameters accept a structured data (sdTF) asset.
	// Their raw type names start with a lower-case "s" (sCurve, sPoint, ...).
	KindStructuredData
)

// ParseParameterKind maps the raw type reported by the service.
func ParseParameterKind(raw string) ParameterKind {
	switch {
	case raw == "File":
		return KindFile
	case strings.HasPrefix(raw, "s"):
		return KindStructuredData
	default:
		return KindOther
	}
}

func (k ParameterKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindStructuredData:
		return "structured-data"
	default:
		return "other"
	}
}

func (k ParameterKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Parameter is one input parameter declared by the remote model.
type Parameter struct {
	ID              string        `json:"id"`
	Name            string        `json:"name,omitempty"`
	Type            string        `json:"type"`
	Kind            ParameterKind `json:"kind"`
	AcceptedFormats []string      `json:"format,omitempty"`
	// Hidden parameters are not shown in the model's UI but still bind.
	Hidden bool `json:"hidden,omitempty"`
}

// Accepts reports whether mimeType is listed in the parameter's formats.
func (p Parameter) Accepts(mimeType string) bool {
	for _, format := range p.AcceptedFormats {
		if strings.EqualFold(strings.TrimSpace(format), mimeType) {
			return true
		}
	}
	return false
}

// OutputDescriptor is one output declared by the remote model.
type OutputDescriptor struct {
	ID   string
	Name string
}

// Session is the state of one remote session, ordered as the service returned it.
type Session struct {
	ID          string
	EndpointURL string
	Parameters  []Parameter
	Outputs     []OutputDescriptor
}

// UploadKind selects the upload flavour.
type UploadKind int

const (
	// UploadFile uploads a file asset keyed by the target parameter.
	UploadFile UploadKind = iota
	// UploadStructuredData uploads an sdTF asset into the public namespace.
	UploadStructuredData
)

func (k UploadKind) String() string {
	if k == UploadStructuredData {
		return "sdtf"
	}
	return "file"
}

// UploadTarget tells the uploader where the asset goes.
type UploadTarget struct {
	Kind        UploadKind
	ParameterID string
	Filename    string
}

// UploadedAsset is the handle the service issued for uploaded bytes.
type UploadedAsset struct {
	ID     string `json:"id,omitempty"`
	Href   string `json:"href,omitempty"`
	Format string `json:"format,omitempty"`
}

// ComputationStatus is the per-output computation state reported by the service.
type ComputationStatus string

// StatusSuccess marks an output whose computation finished successfully.
const StatusSuccess ComputationStatus = "success"

// Succeeded reports whether the status is StatusSuccess.
func (s ComputationStatus) Succeeded() bool {
	return s == StatusSuccess
}

// ContentItem is one downloadable artifact of an output.
type ContentItem struct {
	Format      string `json:"format,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Href        string `json:"href,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// OutputSet is the computed state of one output.
type OutputSet struct {
	ID      string            `json:"id"`
	Name    string            `json:"name,omitempty"`
	Status  ComputationStatus `json:"status_computation,omitempty"`
	Message string            `json:"msg,omitempty"`
	Items   []ContentItem     `json:"content,omitempty"`
}

// JobResult holds the outputs of a finished computation in service order.
// Raw keeps the outputs object as received for diagnostics.
type JobResult struct {
	Outputs []OutputSet
	Raw     json.RawMessage
}

// Failure returns a computation error when no output succeeded and at least
// one reported a non-success status. It returns nil otherwise.
func (r *JobResult) Failure() error {
	if r == nil {
		return nil
	}
	var failed []string
	for _, out := range r.Outputs {
		if out.Status.Succeeded() {
			return nil
		}
		if out.Status != "" {
			label := out.ID + "=" + string(out.Status)
			if msg := strings.TrimSpace(out.Message); msg != "" {
				label += " (" + msg + ")"
			}
			failed = append(failed, label)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return computationFailed(strings.Join(failed, ", "))
}
