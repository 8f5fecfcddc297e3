package conversion_test

import (
	"context"
	"errors"
	"sync"

	"sdconvert/internal/conversion"
)

type uploadCall struct {
	data     []byte
	mimeType string
	target   conversion.UploadTarget
}

// fakeRemote records every call and answers from canned values.
type fakeRemote struct {
	mu sync.Mutex

	session   *conversion.Session
	openErr   error
	asset     conversion.UploadedAsset
	uploadErr error
	job       *conversion.JobResult
	submitErr error
	artifacts map[string][]byte
	fetchErr  error

	opens     int
	uploads   []uploadCall
	submits   []map[string]string
	downloads []string
}

func (f *fakeRemote) Open(_ context.Context, endpointURL, ticket string) (*conversion.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.openErr != nil {
		return nil, f.openErr
	}
	session := *f.session
	session.EndpointURL = endpointURL
	return &session, nil
}

func (f *fakeRemote) Upload(_ context.Context, _ *conversion.Session, data []byte, mimeType string, target conversion.UploadTarget) (conversion.UploadedAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, uploadCall{data: append([]byte(nil), data...), mimeType: mimeType, target: target})
	if f.uploadErr != nil {
		return conversion.UploadedAsset{}, f.uploadErr
	}
	return f.asset, nil
}

func (f *fakeRemote) Submit(_ context.Context, _ *conversion.Session, bindings map[string]string) (*conversion.JobResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, bindings)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.job, nil
}

func (f *fakeRemote) Download(_ context.Context, _ *conversion.Session, href string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, href)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	data, ok := f.artifacts[href]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func (f *fakeRemote) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens + len(f.uploads) + len(f.submits) + len(f.downloads)
}
