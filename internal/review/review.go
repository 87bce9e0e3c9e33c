// Package review implements the review status lifecycle of stored submissions.
//
//	new ──▶ investigating ──▶ fixed | wontfix | duplicate
//	 ▲                                   │
//	 └───────────── reopen ──────────────┘
//
// There is no terminal state and any status can be set from any other.
// Transitions validate their inputs before touching the store, so a rejected
// transition leaves the record as it was.
package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/asccrash/asccrash/internal/model"
	"github.com/asccrash/asccrash/internal/store"
)

var (
	// ErrNotFound means the submission being changed does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTargetNotFound means the duplicate-of target does not exist.
	ErrTargetNotFound = errors.New("duplicate target not found")
	// ErrSelfDuplicate means a submission was marked a duplicate of itself.
	ErrSelfDuplicate = errors.New("cannot mark a submission as a duplicate of itself")
)

// NotFoundError names the missing record ("crash #12 not found").
type NotFoundError struct {
	Kind   model.Kind
	ID     int64
	Target bool // the missing record is a duplicate-of target
}

func (e *NotFoundError) Error() string {
	if e.Target {
		return fmt.Sprintf("target %s #%d not found", e.Kind.Label(), e.ID)
	}
	return fmt.Sprintf("%s #%d not found", e.Kind.Label(), e.ID)
}

// Is lets errors.Is match ErrNotFound or ErrTargetNotFound.
func (e *NotFoundError) Is(target error) bool {
	if e.Target {
		return target == ErrTargetNotFound
	}
	return target == ErrNotFound
}

// Action names a transition.
type Action string

const (
	ActionInvestigate Action = "investigate"
	ActionFix         Action = "fix"
	ActionWontFix     Action = "wontfix"
	ActionDuplicate   Action = "duplicate"
	ActionReopen      Action = "reopen"
)

// Transition is a requested status change.
type Transition struct {
	Action Action
	Notes  *string // fix and wontfix; nil keeps the stored notes
	Of     int64   // duplicate target
}

// Machine applies transitions against the store.
type Machine struct {
	store *store.Store
}

// New returns a machine operating on st.
func New(st *store.Store) *Machine {
	return &Machine{store: st}
}

// Investigate marks a submission as being looked at.
func (m *Machine) Investigate(ctx context.Context, kind model.Kind, id int64) (*model.Submission, error) {
	return m.Apply(ctx, kind, id, Transition{Action: ActionInvestigate})
}

// Fix marks a submission fixed, stamping fixed_at.
func (m *Machine) Fix(ctx context.Context, kind model.Kind, id int64, notes *string) (*model.Submission, error) {
	return m.Apply(ctx, kind, id, Transition{Action: ActionFix, Notes: notes})
}

// WontFix closes a submission without a fix.
func (m *Machine) WontFix(ctx context.Context, kind model.Kind, id int64, notes *string) (*model.Submission, error) {
	return m.Apply(ctx, kind, id, Transition{Action: ActionWontFix, Notes: notes})
}

// Duplicate marks id as a duplicate of ofID. ofID must exist and be of the same kind.
func (m *Machine) Duplicate(ctx context.Context, kind model.Kind, id, ofID int64) (*model.Submission, error) {
	return m.Apply(ctx, kind, id, Transition{Action: ActionDuplicate, Of: ofID})
}

// Reopen resets a submission to new, clearing fixed_at, notes and duplicate_of.
func (m *Machine) Reopen(ctx context.Context, kind model.Kind, id int64) (*model.Submission, error) {
	return m.Apply(ctx, kind, id, Transition{Action: ActionReopen})
}

// Apply performs t on submission id of kind and returns the updated record.
func (m *Machine) Apply(ctx context.Context, kind model.Kind, id int64, t Transition) (*model.Submission, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid kind %q", kind)
	}

	var matched bool
	var err error

	switch t.Action {
	case ActionInvestigate:
		matched, err = m.store.SetStatus(ctx, kind, id, model.StatusInvestigating, nil)
	case ActionFix:
		matched, err = m.store.SetStatus(ctx, kind, id, model.StatusFixed, t.Notes)
	case ActionWontFix:
		matched, err = m.store.SetStatus(ctx, kind, id, model.StatusWontFix, t.Notes)
	case ActionDuplicate:
		if t.Of == id {
			return nil, ErrSelfDuplicate
		}
		if _, err := m.store.GetSubmission(ctx, kind, t.Of); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, &NotFoundError{Kind: kind, ID: t.Of, Target: true}
			}
			return nil, err
		}
		matched, err = m.store.MarkDuplicate(ctx, kind, id, t.Of)
	case ActionReopen:
		matched, err = m.store.Reopen(ctx, kind, id)
	default:
		return nil, fmt.Errorf("unknown action %q", t.Action)
	}

	if err != nil {
		return nil, err
	}
	if !matched {
		return nil, &NotFoundError{Kind: kind, ID: id}
	}

	return m.store.GetSubmission(ctx, kind, id)
}
