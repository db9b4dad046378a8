package client

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/biosecret/go-tasks/apperror"
)

type SelectionState int

const (
	Idle SelectionState = iota
	Selecting
)

func (s SelectionState) String() string {
	if s == Selecting {
		return "selecting"
	}
	return "idle"
}

// TapAction tells the caller what a tap on a task should do.
type TapAction int

const (
	// ActionEdit: open the task for editing.
	ActionEdit TapAction = iota
	// ActionToggleSelection: the tap changed the selection.
	ActionToggleSelection
)

type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	// OutcomeNotFound: already gone on the server, which counts as deleted.
	OutcomeNotFound
	OutcomeFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeNotFound:
		return "not_found_treated_as_success"
	default:
		return "failure"
	}
}

// DeleteOutcome is the result of deleting one selected task.
type DeleteOutcome struct {
	ID   string
	Kind OutcomeKind
	Err  error
}

func (o DeleteOutcome) Deleted() bool {
	return o.Kind != OutcomeFailure
}

// BulkDeleteReport holds every outcome of one BulkDelete, in selection order.
type BulkDeleteReport struct {
	Outcomes []DeleteOutcome
}

func (r BulkDeleteReport) Deleted() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Deleted() {
			n++
		}
	}
	return n
}

func (r BulkDeleteReport) Failed() int {
	return len(r.Outcomes) - r.Deleted()
}

// Warning is the single message to show after a bulk delete, or "" when
// nothing failed. Tasks that were already gone are not failures.
func (r BulkDeleteReport) Warning() string {
	if r.Failed() == 0 {
		return ""
	}
	return fmt.Sprintf("Deleted %d task(s). %d task(s) could not be deleted.", r.Deleted(), r.Failed())
}

// Selection is the set of task ids picked for a bulk delete.
type Selection struct {
	api   TaskAPI
	cache *TaskCache

	mu       sync.Mutex
	selected []string
}

func NewSelection(api TaskAPI, cache *TaskCache) *Selection {
	return &Selection{api: api, cache: cache}
}

func (s *Selection) State() SelectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.selected) == 0 {
		return Idle
	}
	return Selecting
}

// IDs returns the selected ids in the order they were picked.
func (s *Selection) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.selected)
}

func (s *Selection) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.selected, id)
}

// LongPress toggles id, entering Selecting from Idle.
func (s *Selection) LongPress(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toggle(id)
}

// Tap opens the task when nothing is selected; otherwise it toggles id.
func (s *Selection) Tap(id string) TapAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.selected) == 0 {
		return ActionEdit
	}
	s.toggle(id)
	return ActionToggleSelection
}

// Clear empties the selection, e.g. on a tap outside any task.
func (s *Selection) Clear() {
	s.mu.Lock()
	s.selected = nil
	s.mu.Unlock()
}

func (s *Selection) toggle(id string) {
	if i := slices.Index(s.selected, id); i >= 0 {
		s.selected = slices.Delete(s.selected, i, i+1)
		return
	}
	s.selected = append(s.selected, id)
}

// BulkDelete deletes every selected task concurrently. onOutcome, if not
// nil, is called once per id as soon as that id's outcome is known; calls
// are serialized. The cache and the selection are only touched after all
// deletes have finished: deleted and already-missing ids leave the cache in
// one step, failed ids stay, and the selection is cleared either way.
func (s *Selection) BulkDelete(ctx context.Context, onOutcome func(DeleteOutcome)) BulkDeleteReport {
	ids := s.IDs()
	report := BulkDeleteReport{Outcomes: make([]DeleteOutcome, len(ids))}
	if len(ids) == 0 {
		return report
	}

	var notify sync.Mutex
	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			outcome := classify(id, s.api.DeleteTask(ctx, id))
			report.Outcomes[i] = outcome
			if onOutcome != nil {
				notify.Lock()
				onOutcome(outcome)
				notify.Unlock()
			}
			// failures are reported per id, never abort the others
			return nil
		})
	}
	_ = g.Wait()

	removed := make([]string, 0, len(ids))
	for _, o := range report.Outcomes {
		if o.Deleted() {
			removed = append(removed, o.ID)
		}
	}
	s.cache.Remove(removed...)
	s.Clear()
	return report
}

func classify(id string, err error) DeleteOutcome {
	switch {
	case err == nil:
		return DeleteOutcome{ID: id, Kind: OutcomeSuccess}
	case apperror.Is(err, apperror.KindNotFound):
		return DeleteOutcome{ID: id, Kind: OutcomeNotFound, Err: err}
	default:
		return DeleteOutcome{ID: id, Kind: OutcomeFailure, Err: err}
	}
}
