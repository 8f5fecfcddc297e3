// Package conversion implements the remote design-file conversion pipeline.
//
// A Pipeline resolves the input file's mime type, opens a session on the
// remote geometry service, picks the session parameter(s) the file binds to,
// uploads the file, runs the computation, selects the result artifact, and
// writes it to the output path. The two conversion modes differ only in the
// InputPolicy and OutputPolicy handed to the pipeline.
//
// The remote service is reached exclusively through the SessionOpener,
// AssetUploader, JobRunner, and ArtifactDownloader interfaces so the core can
// be exercised without a network.
package conversion
