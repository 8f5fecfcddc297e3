package conversion

import "context"

// SessionOpener starts a session on the remote service.
type SessionOpener interface {
	Open(ctx context.Context, endpointURL, ticket string) (*Session, error)
}

// AssetUploader transfers input bytes and returns the issued asset handle.
type AssetUploader interface {
	Upload(ctx context.Context, session *Session, data []byte, mimeType string, target UploadTarget) (UploadedAsset, error)
}

// JobRunner submits a computation with parameter bindings and waits until it
// finishes. Polling is internal to the runner.
type JobRunner interface {
	Submit(ctx context.Context, session *Session, bindings map[string]string) (*JobResult, error)
}

// ArtifactDownloader fetches the bytes of a result artifact.
type ArtifactDownloader interface {
	Download(ctx context.Context, session *Session, href string) ([]byte, error)
}

// Remote bundles every capability the pipeline needs from the service.
type Remote interface {
	SessionOpener
	AssetUploader
	JobRunner
	ArtifactDownloader
}
