package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/asccrash/asccrash/internal/artifact"
	"github.com/asccrash/asccrash/internal/model"
	"github.com/asccrash/asccrash/internal/store"
)

var tracer trace.Tracer = otel.Tracer("github.com/asccrash/asccrash/internal/sync")

// ErrNoMatchingApp is returned when Options.BundleID names no configured app.
var ErrNoMatchingApp = errors.New("no configured app matches")

// App is one monitored application from the configuration.
type App struct {
	BundleID string
	Name     string
}

// Config wires an Engine.
type Config struct {
	Store    *store.Store
	Remote   Remote
	Sink     *artifact.Sink
	Apps     []App
	MaxPages int
	Logger   zerolog.Logger
	Metrics  Recorder
}

// Options restricts one run.
type Options struct {
	// BundleID limits the run to one configured app. Empty means all.
	BundleID string
	// Kinds selects which streams to walk and recover. Empty means all.
	Kinds []model.Kind
}

// Engine runs sync passes. Runs are serialised; a second Sync waits for the first.
type Engine struct {
	store     *store.Store
	walker    *Walker
	recoverer *Recoverer
	remote    Remote
	log       zerolog.Logger
	metrics   Recorder
	now       func() time.Time

	runMu gosync.Mutex

	mu   gosync.Mutex
	apps []App
}

// New creates an engine from cfg.
func New(cfg Config) *Engine {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Engine{
		store:     cfg.Store,
		walker:    NewWalker(cfg.Store, cfg.Remote, cfg.MaxPages, cfg.Logger, metrics),
		recoverer: NewRecoverer(cfg.Store, cfg.Remote, cfg.Sink, cfg.Logger, metrics),
		remote:    cfg.Remote,
		log:       cfg.Logger.With().Str("component", "sync").Logger(),
		metrics:   metrics,
		now:       time.Now,
		apps:      append([]App(nil), cfg.Apps...),
	}
}

// SetApps replaces the configured apps. It takes effect at the next run.
func (e *Engine) SetApps(apps []App) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.apps = append([]App(nil), apps...)
}

// Apps returns a copy of the configured apps.
func (e *Engine) Apps() []App {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]App(nil), e.apps...)
}

// Sync runs one pass over the selected apps and kinds.
//
// The report is returned even when some sources failed; the error then joins
// every per-source failure. ErrNoMatchingApp is returned before any network
// call with a nil report.
func (e *Engine) Sync(ctx context.Context, opts Options) (*Report, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	apps, err := e.selectApps(opts.BundleID)
	if err != nil {
		return nil, err
	}
	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = model.Kinds
	}

	runID := uuid.NewString()
	log := e.log.With().Str("run_id", runID).Logger()

	ctx, span := tracer.Start(ctx, "sync.run", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.Int("apps", len(apps)),
	))
	defer span.End()

	report := &Report{
		RunID:     runID,
		StartedAt: e.now().UTC(),
		Kinds:     kinds,
	}

	var errs []error
	for _, app := range apps {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		log.Info().Str("app", app.BundleID).Msg("syncing app")
		src := e.syncSource(ctx, log, app, kinds)
		report.Sources = append(report.Sources, src)
		if src.Err != nil {
			e.metrics.SourceFailed()
			errs = append(errs, fmt.Errorf("%s: %w", app.BundleID, src.Err))
		}
	}

	for _, kind := range model.Kinds {
		total, unfixed, err := e.store.Counts(ctx, kind)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		report.setTotals(kind, total, unfixed)
	}

	report.FinishedAt = e.now().UTC()
	runErr := errors.Join(errs...)
	e.metrics.RunFinished(report.FinishedAt, runErr == nil)

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "sync finished with errors")
	}
	log.Info().
		Int("new_crashes", len(report.New(model.KindCrash))).
		Int("new_feedbacks", len(report.New(model.KindFeedback))).
		Dur("took", report.FinishedAt.Sub(report.StartedAt)).
		Msg("sync finished")

	return report, runErr
}

func (e *Engine) selectApps(bundleID string) ([]App, error) {
	apps := e.Apps()
	if bundleID == "" {
		return apps, nil
	}
	for _, app := range apps {
		if app.BundleID == bundleID {
			return []App{app}, nil
		}
	}
	return nil, fmt.Errorf("%w %q", ErrNoMatchingApp, bundleID)
}

// syncSource resolves one app and walks then recovers each kind.
// A walk failure does not skip recovery of the same kind.
func (e *Engine) syncSource(ctx context.Context, log zerolog.Logger, app App, kinds []model.Kind) SourceReport {
	ctx, span := tracer.Start(ctx, "sync.source", trace.WithAttributes(attribute.String("bundle_id", app.BundleID)))
	defer span.End()

	src := SourceReport{BundleID: app.BundleID}

	remote, err := e.remote.FindApp(ctx, app.BundleID)
	if err == nil && remote == nil {
		err = fmt.Errorf("app %s not found", app.BundleID)
	}
	if err != nil {
		log.Warn().Err(err).Str("app", app.BundleID).Msg("could not resolve app, skipping")
		src.Err = err
		return src
	}
	src.RemoteID = remote.ID

	name := remote.Name
	if name == nil && app.Name != "" {
		name = &app.Name
	}
	remoteID := remote.ID
	sourceID, err := e.store.UpsertSource(ctx, app.BundleID, &remoteID, name)
	if err != nil {
		src.Err = err
		return src
	}
	src.SourceID = sourceID

	var errs []error
	for _, kind := range kinds {
		walk, err := e.walker.Walk(ctx, kind, sourceID, remote.ID)
		if walk != nil {
			src.Walks = append(src.Walks, walk)
		}
		if err != nil {
			log.Warn().Err(err).Str("app", app.BundleID).Str("kind", string(kind)).Msg("pagination failed")
			errs = append(errs, fmt.Errorf("%s walk: %w", kind.Label(), err))
		}

		rec, err := e.recoverer.Recover(ctx, kind, sourceID)
		if rec != nil {
			mergeRecovered(walk, rec)
			src.Recoveries = append(src.Recoveries, rec)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s recovery: %w", kind.Label(), err))
		}
	}

	src.Err = errors.Join(errs...)
	return src
}

// mergeRecovered moves artifacts recovered for submissions first seen in this
// same run onto the walk's records, so Recovered lists only older submissions.
func mergeRecovered(walk *WalkResult, rec *RecoveryResult) {
	if walk == nil || len(walk.New) == 0 {
		return
	}
	fresh := make(map[int64]*model.Submission, len(walk.New))
	for _, sub := range walk.New {
		fresh[sub.ID] = sub
	}

	older := rec.Recovered[:0]
	for _, sub := range rec.Recovered {
		if n, ok := fresh[sub.ID]; ok {
			n.HasArtifact = sub.HasArtifact
			n.ArtifactPath = sub.ArtifactPath
			n.ArtifactMediaType = sub.ArtifactMediaType
			continue
		}
		older = append(older, sub)
	}
	rec.Recovered = older
}
