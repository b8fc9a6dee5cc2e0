package store

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/roivol/roivol/pkg/errors"
)

// ErrInvalidTransition is returned when an outcome is applied to an item that is not Processing.
var ErrInvalidTransition = errors.New("invalid status transition")

// Snapshot is an immutable copy of the store contents.
type Snapshot struct {
	Generation uint64
	Items      []Item
}

// Observer is notified after every store mutation, in mutation order. Observers
// run after the item lock is released, so they may read the Store; they must not
// mutate it, and a slow observer delays the next mutation.
type Observer interface {
	// Replaced is called after a wholesale replacement.
	Replaced(snap Snapshot)
	// Updated is called after a single item changed.
	Updated(ref Ref, item Item)
}

// Store owns the ordered item sequence of one session.
type Store struct {
	// emitMu serializes mutations with their notifications.
	emitMu sync.Mutex

	mu         sync.Mutex
	generation uint64
	items      []Item
	observers  []Observer
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// Subscribe registers an observer for future mutations.
func (s *Store) Subscribe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Replace discards the current sequence and substitutes one Pending item per
// distinct entry, in entry order. All previously issued refs become stale.
func (s *Store) Replace(entries []Entry) Snapshot {
	items := make([]Item, 0, len(entries))
	seen := make(map[Entry]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := seen[e]; dup {
			slog.Warn("store_duplicate_entry_skipped", "folder_path", e.FolderPath, "roi_file", e.ROIFile)
			continue
		}
		seen[e] = struct{}{}
		items = append(items, Item{FolderPath: e.FolderPath, ROIFile: e.ROIFile, Status: Pending})
	}

	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	s.generation++
	s.items = items
	snap := s.snapshotLocked()
	observers := s.observers
	s.mu.Unlock()

	slog.Info("store_replaced", "generation", snap.Generation, "item_count", len(items))
	for _, o := range observers {
		o.Replaced(snap)
	}
	return snap
}

// Snapshot returns a copy of the current sequence.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Len returns the number of items in the current sequence.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Get returns the item a ref points to.
func (s *Store) Get(ref Ref) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkRefLocked(ref); err != nil {
		return Item{}, err
	}
	return s.items[ref.Index], nil
}

// Begin moves the item at index from Pending or Completed to Processing and
// clears its previous result. It fails with ErrProcessing when a job is
// already in flight for the item.
func (s *Store) Begin(index int) (Ref, Item, error) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if index < 0 || index >= len(s.items) {
		n := len(s.items)
		s.mu.Unlock()
		return Ref{}, Item{}, errors.Wrapf(errors.ErrIndexRange, "index %d of %d", index, n)
	}
	item := &s.items[index]
	if item.Status == Processing {
		s.mu.Unlock()
		return Ref{}, Item{}, errors.Wrapf(errors.ErrProcessing, "item %d", index)
	}

	item.Status = Processing
	item.Volume = nil
	item.Failure = ""

	ref := Ref{Generation: s.generation, Index: index}
	updated := *item
	observers := s.observers
	s.mu.Unlock()

	s.emit(observers, ref, updated)
	return ref, updated, nil
}

// Complete records a successful job outcome.
func (s *Store) Complete(ref Ref, v Volume) (Item, error) {
	return s.settle(ref, func(item *Item) {
		item.Status = Completed
		item.Volume = &v
		item.Failure = ""
	})
}

// Revert records a failed job outcome: the item returns to Pending without a
// result and can be triggered again.
func (s *Store) Revert(ref Ref, reason string) (Item, error) {
	return s.settle(ref, func(item *Item) {
		item.Status = Pending
		item.Volume = nil
		item.Failure = reason
	})
}

func (s *Store) settle(ref Ref, apply func(*Item)) (Item, error) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if err := s.checkRefLocked(ref); err != nil {
		s.mu.Unlock()
		return Item{}, err
	}
	item := &s.items[ref.Index]
	if item.Status != Processing {
		status := item.Status
		s.mu.Unlock()
		return Item{}, fmt.Errorf("%w: item %d is %s", ErrInvalidTransition, ref.Index, status)
	}

	apply(item)
	updated := *item
	observers := s.observers
	s.mu.Unlock()

	s.emit(observers, ref, updated)
	return updated, nil
}

func (s *Store) checkRefLocked(ref Ref) error {
	if ref.Generation != s.generation {
		return errors.Wrapf(errors.ErrStaleItem, "generation %d, current %d", ref.Generation, s.generation)
	}
	if ref.Index < 0 || ref.Index >= len(s.items) {
		return errors.Wrapf(errors.ErrIndexRange, "index %d of %d", ref.Index, len(s.items))
	}
	return nil
}

func (s *Store) emit(observers []Observer, ref Ref, item Item) {
	slog.Debug("store_item_updated", "generation", ref.Generation, "index", ref.Index, "status", item.Status)
	for _, o := range observers {
		o.Updated(ref, item)
	}
}

func (s *Store) snapshotLocked() Snapshot {
	items := make([]Item, len(s.items))
	copy(items, s.items)
	return Snapshot{Generation: s.generation, Items: items}
}
