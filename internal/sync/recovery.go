package sync

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/asccrash/asccrash/internal/artifact"
	"github.com/asccrash/asccrash/internal/model"
	"github.com/asccrash/asccrash/internal/store"
)

// RecoveryResult summarises one recovery pass.
type RecoveryResult struct {
	Kind      model.Kind
	Recovered []*model.Submission
	Pending   int // remote reported "not ready"
	Failed    int // fetch, write or store error; retried next run
}

// Recoverer downloads artifacts for stored submissions that lack one.
type Recoverer struct {
	store   *store.Store
	remote  Remote
	sink    *artifact.Sink
	log     zerolog.Logger
	metrics Recorder
}

// NewRecoverer returns a recoverer writing through sink.
func NewRecoverer(st *store.Store, remote Remote, sink *artifact.Sink, logger zerolog.Logger, metrics Recorder) *Recoverer {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Recoverer{
		store:   st,
		remote:  remote,
		sink:    sink,
		log:     logger.With().Str("component", "recovery").Logger(),
		metrics: metrics,
	}
}

// Recover makes exactly one fetch attempt per submission of kind (and of
// sourceID, unless 0) that has no artifact yet.
//
// Individual failures are logged and counted; only listing the candidates or
// a cancelled context fails the call.
func (r *Recoverer) Recover(ctx context.Context, kind model.Kind, sourceID int64) (*RecoveryResult, error) {
	ctx, span := tracer.Start(ctx, "sync.recover")
	defer span.End()
	span.SetAttributes(attribute.String("kind", string(kind)), attribute.Int64("source_id", sourceID))

	missing, err := r.store.MissingArtifacts(ctx, kind, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list missing %ss: %w", kind.ArtifactLabel(), err)
	}

	result := &RecoveryResult{Kind: kind}
	for _, sub := range missing {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		ok, err := r.recoverOne(ctx, sub)
		switch {
		case err != nil:
			result.Failed++
			r.metrics.ArtifactFailed(kind)
			r.log.Warn().Err(err).Str("kind", string(kind)).Int64("id", sub.ID).
				Msgf("failed to download %s", kind.ArtifactLabel())
		case !ok:
			result.Pending++
		default:
			result.Recovered = append(result.Recovered, sub)
			r.metrics.ArtifactRecovered(kind)
		}
	}

	span.SetAttributes(
		attribute.Int("recovered", len(result.Recovered)),
		attribute.Int("pending", result.Pending),
		attribute.Int("failed", result.Failed),
	)
	return result, nil
}

// recoverOne fetches and stores one artifact, updating sub in place.
// It returns false, nil when the artifact is not ready.
func (r *Recoverer) recoverOne(ctx context.Context, sub *model.Submission) (bool, error) {
	art, err := r.remote.FetchArtifact(ctx, sub.Kind, sub.SubmissionID)
	if err != nil {
		return false, err
	}
	if art == nil {
		return false, nil
	}

	path, err := r.sink.Write(sub.Kind, sub.ID, art.MediaType, art.Data)
	if err != nil {
		return false, err
	}

	var mediaType *string
	if sub.Kind == model.KindFeedback && art.MediaType != "" {
		mt := art.MediaType
		mediaType = &mt
	}

	matched, err := r.store.SetArtifact(ctx, sub.ID, path, mediaType)
	if err != nil {
		return false, err
	}
	if !matched {
		return false, fmt.Errorf("%s #%d vanished during recovery", sub.Kind.Label(), sub.ID)
	}

	sub.HasArtifact = true
	sub.ArtifactPath = &path
	if mediaType != nil {
		sub.ArtifactMediaType = mediaType
	}
	return true, nil
}
