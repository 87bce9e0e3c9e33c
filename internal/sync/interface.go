package sync

import (
	"context"
	"time"

	"github.com/asccrash/asccrash/internal/model"
)

// Remote is the App Store Connect surface the engine needs.
//
// FetchArtifact returns nil, nil when the artifact is not available yet; that
// is the normal state for a fresh submission and is never an error.
type Remote interface {
	// FindApp resolves a bundle id to the remote app.
	FindApp(ctx context.Context, bundleID string) (*model.RemoteApp, error)

	// FirstPageURL builds the newest-first listing URL for kind.
	FirstPageURL(kind model.Kind, appID string) string

	// FetchPage fetches the page at url. Page.Next is empty on the last page.
	FetchPage(ctx context.Context, kind model.Kind, url string) (*model.Page, error)

	// FetchArtifact downloads the crash log or screenshot of a submission.
	FetchArtifact(ctx context.Context, kind model.Kind, submissionID string) (*model.Artifact, error)
}

// Recorder receives run counters. The telemetry package implements it with
// prometheus metrics.
type Recorder interface {
	PagesFetched(kind model.Kind, n int)
	NewSubmissions(kind model.Kind, n int)
	ArtifactRecovered(kind model.Kind)
	ArtifactFailed(kind model.Kind)
	SourceFailed()
	RunFinished(at time.Time, ok bool)
}

type nopRecorder struct{}

func (nopRecorder) PagesFetched(model.Kind, int)   {}
func (nopRecorder) NewSubmissions(model.Kind, int) {}
func (nopRecorder) ArtifactRecovered(model.Kind)   {}
func (nopRecorder) ArtifactFailed(model.Kind)      {}
func (nopRecorder) SourceFailed()                  {}
func (nopRecorder) RunFinished(time.Time, bool)    {}
