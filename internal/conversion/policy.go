package conversion

import (
	"fmt"
	"path/filepath"
	"strings"

	"sdconvert/internal/mimetype"
	"sdconvert/internal/services"
)

// InputPolicy decides which session parameters the uploaded asset binds to.
type InputPolicy interface {
	Name() string
	// CheckMIMEType rejects input types the policy can never bind. It runs
	// before any remote call.
	CheckMIMEType(mimeType string) error
	// Match selects the parameters to bind from the session's parameters.
	Match(params []Parameter, mimeType string) ([]Parameter, error)
	// Target describes the upload for the matched parameters.
	Target(matched []Parameter, inputPath string) UploadTarget
}

// OutputPolicy picks the result artifact from a finished job.
type OutputPolicy interface {
	Name() string
	Select(result *JobResult) (OutputSet, ContentItem, error)
}

// FileInputPolicy binds the single file parameter accepting the input's mime type.
type FileInputPolicy struct{}

func (FileInputPolicy) Name() string { return "file-input" }

func (FileInputPolicy) CheckMIMEType(string) error { return nil }

func (FileInputPolicy) Match(params []Parameter, mimeType string) ([]Parameter, error) {
	var matched []Parameter
	for _, p := range params {
		if p.Kind == KindFile && p.Accepts(mimeType) {
			matched = append(matched, p)
		}
	}
	switch len(matched) {
	case 0:
		return nil, services.Wrap(services.ErrNoMatchingParameter, string(StateParameterMatched), "file input",
			fmt.Sprintf("no file parameter accepts %s", mimeType), nil)
	case 1:
		return matched, nil
	default:
		ids := make([]string, 0, len(matched))
		for _, p := range matched {
			ids = append(ids, p.ID)
		}
		return nil, services.Wrap(services.ErrNoMatchingParameter, string(StateParameterMatched), "file input",
			fmt.Sprintf("%d file parameters accept %s (%s); expected exactly one", len(matched), mimeType, strings.Join(ids, ", ")), nil)
	}
}

func (FileInputPolicy) Target(matched []Parameter, inputPath string) UploadTarget {
	target := UploadTarget{Kind: UploadFile, Filename: filepath.Base(inputPath)}
	if len(matched) > 0 {
		target.ParameterID = matched[0].ID
	}
	return target
}

// StructuredDataPolicy binds every structured data parameter to one sdTF asset.
type StructuredDataPolicy struct {
	ExpectedMIMEType string
}

func (p StructuredDataPolicy) expected() string {
	if p.ExpectedMIMEType == "" {
		return mimetype.SdtfMIMEType
	}
	return p.ExpectedMIMEType
}

func (StructuredDataPolicy) Name() string { return "structured-data" }

func (p StructuredDataPolicy) CheckMIMEType(mimeType string) error {
	if mimeType == p.expected() {
		return nil
	}
	return services.Wrap(services.ErrUnexpectedMimeType, string(StateMimeResolved), "structured data input",
		fmt.Sprintf("got %s, expected %s", mimeType, p.expected()), nil)
}

func (StructuredDataPolicy) Match(params []Parameter, _ string) ([]Parameter, error) {
	var matched []Parameter
	for _, param := range params {
		if param.Kind == KindStructuredData {
			matched = append(matched, param)
		}
	}
	if len(matched) == 0 {
		return nil, services.Wrap(services.ErrNoMatchingParameter, string(StateParameterMatched), "structured data input",
			"session declares no structured data parameters", nil)
	}
	return matched, nil
}

func (StructuredDataPolicy) Target(_ []Parameter, inputPath string) UploadTarget {
	return UploadTarget{Kind: UploadStructuredData, Filename: filepath.Base(inputPath)}
}

// TagField names the content item field a ContentTag compares.
type TagField int

const (
	TagFormat TagField = iota
	TagContentType
)

func (f TagField) String() string {
	if f == TagContentType {
		return "contentType"
	}
	return "format"
}

// ContentTag matches content items by one field value.
type ContentTag struct {
	Field TagField
	Value string
}

// Matches reports whether item carries the tag.
func (t ContentTag) Matches(item ContentItem) bool {
	switch t.Field {
	case TagContentType:
		return item.ContentType == t.Value
	default:
		return item.Format == t.Value
	}
}

func (t ContentTag) String() string {
	return t.Field.String() + "=" + t.Value
}

// ContentTagPolicy selects the first successful output holding an item that
// matches Tag.
type ContentTagPolicy struct {
	Tag ContentTag
}

var (
	// SdtfResult selects sdTF artifacts.
	SdtfResult = ContentTagPolicy{Tag: ContentTag{Field: TagFormat, Value: "sdtf"}}
	// GltfResult selects binary glTF artifacts.
	GltfResult = ContentTagPolicy{Tag: ContentTag{Field: TagContentType, Value: mimetype.GltfBinaryMIMEType}}
)

func (p ContentTagPolicy) Name() string { return p.Tag.String() }

func (p ContentTagPolicy) Select(result *JobResult) (OutputSet, ContentItem, error) {
	if result != nil {
		for _, out := range result.Outputs {
			if !out.Status.Succeeded() {
				continue
			}
			for _, item := range out.Items {
				if p.Tag.Matches(item) {
					return out, item, nil
				}
			}
		}
	}
	noMatch := &NoMatchingOutputError{Policy: p.Name()}
	if result != nil {
		noMatch.Outputs = result.Outputs
		noMatch.Raw = result.Raw
	}
	return OutputSet{}, ContentItem{}, noMatch
}
