package shapediver

import (
	"context"
	"errors"
	"fmt"

	"sdconvert/internal/conversion"
	"sdconvert/internal/services"
)

// Remote exposes Client through the conversion pipeline's remote interfaces.
type Remote struct {
	client *Client
}

var _ conversion.Remote = (*Remote)(nil)

// NewRemote wraps client. A nil client gets the defaults.
func NewRemote(client *Client) *Remote {
	if client == nil {
		client = NewClient()
	}
	return &Remote{client: client}
}

// Open starts a ticket session at endpointURL.
func (r *Remote) Open(ctx context.Context, endpointURL, ticket string) (*conversion.Session, error) {
	reply, err := r.client.openSession(ctx, endpointURL, ticket)
	if err != nil {
		return nil, services.Wrap(services.ErrSessionInit, "session_open", "open ticket session", "", err)
	}

	session := &conversion.Session{ID: reply.SessionID, EndpointURL: endpointURL}
	for _, member := range reply.Parameters {
		session.Parameters = append(session.Parameters, toParameter(member.Key, member.Value))
	}
	for _, member := range reply.Outputs {
		id := member.Value.ID
		if id == "" {
			id = member.Key
		}
		session.Outputs = append(session.Outputs, conversion.OutputDescriptor{ID: id, Name: displayName(member.Value.Name, member.Value.DisplayName)})
	}
	return session, nil
}

// Upload requests an upload slot for target and transfers data to it.
func (r *Remote) Upload(ctx context.Context, session *conversion.Session, data []byte, mimeType string, target conversion.UploadTarget) (conversion.UploadedAsset, error) {
	if session == nil {
		return conversion.UploadedAsset{}, services.Wrap(services.ErrUpload, "asset_uploaded", "upload", "no session", nil)
	}
	size := int64(len(data))

	var (
		ticket   uploadTicket
		err      error
		filename string
	)
	switch target.Kind {
	case conversion.UploadFile:
		if target.ParameterID == "" {
			return conversion.UploadedAsset{}, services.Wrap(services.ErrUpload, "asset_uploaded", "request file upload", "target parameter missing", nil)
		}
		filename = target.Filename
		ticket, err = r.client.requestFileUpload(ctx, session.EndpointURL, session.ID, target.ParameterID,
			fileUploadEntry{Format: mimeType, Size: size, Filename: target.Filename})
	case conversion.UploadStructuredData:
		ticket, err = r.client.requestSdtfUpload(ctx, session.EndpointURL, session.ID, mimeType, size)
	default:
		return conversion.UploadedAsset{}, services.Wrap(services.ErrUpload, "asset_uploaded", "upload",
			fmt.Sprintf("unsupported upload kind %d", target.Kind), nil)
	}
	if err != nil {
		return conversion.UploadedAsset{}, services.Wrap(services.ErrUpload, "asset_uploaded", "request "+target.Kind.String()+" upload", "", err)
	}

	if err := r.client.putAsset(ctx, ticket, data, mimeType, filename); err != nil {
		return conversion.UploadedAsset{}, services.Wrap(services.ErrUpload, "asset_uploaded", "transfer asset", "", err)
	}
	return conversion.UploadedAsset{ID: ticket.ID, Href: ticket.Href, Format: mimeType}, nil
}

// Submit runs the computation with bindings and waits for every output.
func (r *Remote) Submit(ctx context.Context, session *conversion.Session, bindings map[string]string) (*conversion.JobResult, error) {
	if session == nil {
		return nil, services.Wrap(services.ErrComputation, "job_submitted", "customize", "no session", nil)
	}
	reply, err := r.client.compute(ctx, session.EndpointURL, session.ID, bindings)
	if err != nil {
		if errors.Is(err, services.ErrJobTimeout) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrComputation, "job_submitted", "customize", "", err)
	}

	result := toJobResult(reply)
	if err := result.Failure(); err != nil {
		return nil, err
	}
	return result, nil
}

// Download fetches the artifact at href.
func (r *Remote) Download(ctx context.Context, session *conversion.Session, href string) ([]byte, error) {
	endpoint := ""
	if session != nil {
		endpoint = session.EndpointURL
	}
	data, err := r.client.download(ctx, endpoint, href)
	if err != nil {
		return nil, services.Wrap(services.ErrDownload, "downloaded", "fetch artifact", "", err)
	}
	return data, nil
}

func toParameter(key string, dto parameterDTO) conversion.Parameter {
	id := dto.ID
	if id == "" {
		id = key
	}
	return conversion.Parameter{
		ID:              id,
		Name:            displayName(dto.Name, dto.DisplayName),
		Type:            dto.Type,
		Kind:            conversion.ParseParameterKind(dto.Type),
		AcceptedFormats: append([]string(nil), dto.Format...),
		Hidden:          dto.Hidden,
	}
}

func toJobResult(reply *outputsReply) *conversion.JobResult {
	result := &conversion.JobResult{Raw: reply.rawJSON()}
	for _, member := range reply.Outputs {
		out := member.Value
		id := out.ID
		if id == "" {
			id = member.Key
		}
		set := conversion.OutputSet{
			ID:      id,
			Name:    displayName(out.Name, out.DisplayName),
			Status:  conversion.ComputationStatus(out.StatusComputation),
			Message: out.Msg,
		}
		for _, content := range out.Content {
			set.Items = append(set.Items, conversion.ContentItem{
				Format:      content.Format,
				ContentType: content.ContentType,
				Href:        content.Href,
				Size:        content.Size,
			})
		}
		result.Outputs = append(result.Outputs, set)
	}
	return result
}

func displayName(name, display string) string {
	if display != "" {
		return display
	}
	return name
}
