package shapediver

import (
	"encoding/json"
	"strings"
)

type parameterDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	DisplayName string   `json:"displayname"`
	Type        string   `json:"type"`
	Format      []string `json:"format"`
	Hidden      bool     `json:"hidden"`
}

type contentDTO struct {
	Format      string `json:"format"`
	ContentType string `json:"contentType"`
	Href        string `json:"href"`
	Size        int64  `json:"size"`
}

type outputDTO struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	DisplayName       string       `json:"displayname"`
	Version           string       `json:"version"`
	StatusComputation string       `json:"status_computation"`
	Msg               string       `json:"msg"`
	Delay             int64        `json:"delay"`
	Content           []contentDTO `json:"content"`
}

// pending reports whether the service still computes the output.
func (o outputDTO) pending() bool {
	return o.Delay > 0
}

type sessionResponse struct {
	SessionID  string                `json:"sessionId"`
	Parameters ordered[parameterDTO] `json:"parameters"`
	Outputs    ordered[outputDTO]    `json:"outputs"`
}

type fileUploadEntry struct {
	Format   string `json:"format"`
	Size     int64  `json:"size"`
	Filename string `json:"filename,omitempty"`
}

type sdtfUploadEntry struct {
	ContentType   string `json:"content_type"`
	ContentLength int64  `json:"content_length"`
	Namespace     string `json:"namespace"`
}

type uploadTicket struct {
	ID      string            `json:"id"`
	Href    string            `json:"href"`
	Headers map[string]string `json:"headers"`
}

type uploadResponse struct {
	Asset struct {
		File map[string]uploadTicket `json:"file"`
		Sdtf []uploadTicket          `json:"sdtf"`
	} `json:"asset"`
}

// outputsReply keeps the parsed outputs next to their verbatim JSON so
// diagnostics can show exactly what the service sent.
type outputsReply struct {
	Outputs ordered[outputDTO]
	Raw     ordered[json.RawMessage]
}

func (r *outputsReply) UnmarshalJSON(data []byte) error {
	var envelope struct {
		Outputs json.RawMessage `json:"outputs"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}
	if len(envelope.Outputs) == 0 {
		r.Outputs, r.Raw = nil, nil
		return nil
	}
	if err := json.Unmarshal(envelope.Outputs, &r.Outputs); err != nil {
		return err
	}
	return json.Unmarshal(envelope.Outputs, &r.Raw)
}

// merge overlays the outputs of next onto r, keeping r's ordering.
func (r *outputsReply) merge(next *outputsReply) {
	if next == nil {
		return
	}
	for _, member := range next.Outputs {
		r.Outputs.set(member.Key, member.Value)
	}
	for _, member := range next.Raw {
		r.Raw.set(member.Key, member.Value)
	}
}

// pendingVersions maps every still-computing output to its version, along
// with the largest delay the service asked for in milliseconds.
func (r *outputsReply) pendingVersions() (map[string]string, int64) {
	versions := map[string]string{}
	var delay int64
	for _, member := range r.Outputs {
		if !member.Value.pending() {
			continue
		}
		versions[member.Key] = member.Value.Version
		if member.Value.Delay > delay {
			delay = member.Value.Delay
		}
	}
	return versions, delay
}

func (r *outputsReply) rawJSON() json.RawMessage {
	if r == nil || len(r.Raw) == 0 {
		return nil
	}
	encoded, err := r.Raw.MarshalJSON()
	if err != nil {
		return nil
	}
	return encoded
}

type errorBody struct {
	Error   string `json:"error"`
	Desc    string `json:"desc"`
	Message string `json:"message"`
}

func (b errorBody) summary() string {
	parts := make([]string, 0, 3)
	for _, part := range []string{b.Error, b.Desc, b.Message} {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, ": ")
}
