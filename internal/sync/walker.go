package sync

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/asccrash/asccrash/internal/model"
	"github.com/asccrash/asccrash/internal/store"
)

// DefaultMaxPages is the page ceiling of one walk.
const DefaultMaxPages = 50

// StopReason records why a walk ended.
type StopReason string

const (
	StopCaughtUp  StopReason = "caught_up"  // a page held only known records
	StopEmptyPage StopReason = "empty_page" // the remote returned no entries
	StopNoNext    StopReason = "no_next"    // no next-page cursor
	StopPageLimit StopReason = "page_limit" // the page ceiling was reached
	StopError     StopReason = "error"      // a page fetch or insert failed
)

// WalkResult summarises one walk.
type WalkResult struct {
	Kind  model.Kind
	New   []*model.Submission
	Pages int
	Stop  StopReason
}

// HitPageLimit reports whether the walk was cut short by the page ceiling.
func (r *WalkResult) HitPageLimit() bool {
	return r.Stop == StopPageLimit
}

// Walker follows the remote's newest-first pages and inserts every entry.
type Walker struct {
	store    *store.Store
	remote   Remote
	maxPages int
	log      zerolog.Logger
	metrics  Recorder
}

// NewWalker returns a walker. maxPages <= 0 means DefaultMaxPages.
func NewWalker(st *store.Store, remote Remote, maxPages int, logger zerolog.Logger, metrics Recorder) *Walker {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Walker{
		store:    st,
		remote:   remote,
		maxPages: maxPages,
		log:      logger.With().Str("component", "walker").Logger(),
		metrics:  metrics,
	}
}

// Walk fetches pages of kind for remoteAppID and stores new entries under sourceID.
//
// On error the returned result still holds everything committed before the
// failure; earlier pages are never rolled back.
func (w *Walker) Walk(ctx context.Context, kind model.Kind, sourceID int64, remoteAppID string) (*WalkResult, error) {
	ctx, span := tracer.Start(ctx, "sync.walk")
	defer span.End()
	span.SetAttributes(attribute.String("kind", string(kind)), attribute.Int64("source_id", sourceID))

	result := &WalkResult{Kind: kind}
	log := w.log.With().Str("kind", string(kind)).Int64("source_id", sourceID).Logger()

	url := w.remote.FirstPageURL(kind, remoteAppID)
	for {
		if err := ctx.Err(); err != nil {
			result.Stop = StopError
			return result, err
		}

		result.Pages++
		log.Debug().Int("page", result.Pages).Msg("fetching page")

		page, err := w.remote.FetchPage(ctx, kind, url)
		if err != nil {
			result.Stop = StopError
			span.RecordError(err)
			span.SetStatus(codes.Error, "page fetch failed")
			return result, fmt.Errorf("page %d: %w", result.Pages, err)
		}
		w.metrics.PagesFetched(kind, 1)

		allKnown := true
		for _, entry := range page.Entries {
			entry.Kind = kind
			entry.SourceID = sourceID

			id, inserted, err := w.store.InsertSubmission(ctx, entry)
			if err != nil {
				result.Stop = StopError
				return result, fmt.Errorf("page %d: %w", result.Pages, err)
			}
			if !inserted {
				continue
			}
			allKnown = false

			sub, err := w.store.GetSubmission(ctx, kind, id)
			if err != nil {
				result.Stop = StopError
				return result, fmt.Errorf("failed to re-read %s #%d: %w", kind.Label(), id, err)
			}
			result.New = append(result.New, sub)
			w.metrics.NewSubmissions(kind, 1)
		}

		switch {
		case len(page.Entries) == 0:
			result.Stop = StopEmptyPage
		case allKnown:
			result.Stop = StopCaughtUp
		case page.Next == "":
			result.Stop = StopNoNext
		case result.Pages >= w.maxPages:
			result.Stop = StopPageLimit
			log.Warn().Int("pages", result.Pages).Msg("hit page limit, stopping pagination")
		}
		if result.Stop != "" {
			break
		}

		url = page.Next
	}

	span.SetAttributes(attribute.Int("pages", result.Pages), attribute.Int("new", len(result.New)))
	log.Debug().Int("pages", result.Pages).Int("new", len(result.New)).Str("stop", string(result.Stop)).Msg("walk finished")
	return result, nil
}
