package sync

import (
	"time"

	"github.com/asccrash/asccrash/internal/model"
)

// SourceReport is the outcome for one configured app.
type SourceReport struct {
	BundleID   string
	RemoteID   string
	SourceID   int64
	Walks      []*WalkResult
	Recoveries []*RecoveryResult
	Err        error
}

// Totals are store-wide counts after a run.
type Totals struct {
	Total   int
	Unfixed int
}

// Report is the outcome of one Sync call.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Kinds      []model.Kind
	Sources    []SourceReport
	// Counts holds store-wide totals per kind, filled for every kind.
	Counts map[model.Kind]Totals
}

func (r *Report) setTotals(kind model.Kind, total, unfixed int) {
	if r.Counts == nil {
		r.Counts = make(map[model.Kind]Totals, len(model.Kinds))
	}
	r.Counts[kind] = Totals{Total: total, Unfixed: unfixed}
}

// Totals returns the store-wide totals of kind.
func (r *Report) Totals(kind model.Kind) Totals {
	return r.Counts[kind]
}

// New returns the submissions of kind first stored during this run.
func (r *Report) New(kind model.Kind) []*model.Submission {
	out := []*model.Submission{}
	for _, src := range r.Sources {
		for _, w := range src.Walks {
			if w.Kind == kind {
				out = append(out, w.New...)
			}
		}
	}
	return out
}

// Recovered returns previously stored submissions of kind whose artifact
// arrived during this run.
func (r *Report) Recovered(kind model.Kind) []*model.Submission {
	out := []*model.Submission{}
	for _, src := range r.Sources {
		for _, rec := range src.Recoveries {
			if rec.Kind == kind {
				out = append(out, rec.Recovered...)
			}
		}
	}
	return out
}

// Pending counts submissions of kind whose artifact is still not ready.
func (r *Report) Pending(kind model.Kind) int {
	n := 0
	for _, src := range r.Sources {
		for _, rec := range src.Recoveries {
			if rec.Kind == kind {
				n += rec.Pending
			}
		}
	}
	return n
}

// Pages counts pages fetched for kind across sources.
func (r *Report) Pages(kind model.Kind) int {
	n := 0
	for _, src := range r.Sources {
		for _, w := range src.Walks {
			if w.Kind == kind {
				n += w.Pages
			}
		}
	}
	return n
}

// Failed returns the sources that reported an error.
func (r *Report) Failed() []SourceReport {
	var out []SourceReport
	for _, src := range r.Sources {
		if src.Err != nil {
			out = append(out, src)
		}
	}
	return out
}

// Includes reports whether kind was part of this run.
func (r *Report) Includes(kind model.Kind) bool {
	for _, k := range r.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}
