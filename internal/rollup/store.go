package rollup

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/sam-warren/cedhtools/internal/identity"
)

// Store serves the live snapshot of every configured slice. The set of
// slices is fixed at construction; only the snapshots change.
type Store struct {
	slices map[Slice]*atomic.Pointer[Snapshot]
	order  []Slice
}

func NewStore(slices []Slice) *Store {
	s := &Store{
		slices: make(map[Slice]*atomic.Pointer[Snapshot], len(slices)),
	}
	for _, slice := range slices {
		if _, ok := s.slices[slice]; ok {
			continue
		}
		s.slices[slice] = new(atomic.Pointer[Snapshot])
		s.order = append(s.order, slice)
	}
	return s
}

// Slices returns the configured slices in configuration order
func (s *Store) Slices() []Slice {
	return append([]Slice(nil), s.order...)
}

// Has reports whether a slice is configured
func (s *Store) Has(slice Slice) bool {
	_, ok := s.slices[slice]
	return ok
}

// FieldSizes returns the distinct configured thresholds, ascending
func (s *Store) FieldSizes() []int {
	seen := make(map[int]bool)
	var sizes []int
	for _, slice := range s.order {
		if !seen[slice.MinFieldSize] {
			seen[slice.MinFieldSize] = true
			sizes = append(sizes, slice.MinFieldSize)
		}
	}
	sort.Ints(sizes)
	return sizes
}

// Snapshot returns the live snapshot of a slice
func (s *Store) Snapshot(slice Slice) (*Snapshot, error) {
	ptr, ok := s.slices[slice]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSlice, slice)
	}
	snap := ptr.Load()
	if snap == nil {
		return nil, fmt.Errorf("%w: %s", ErrSliceUnavailable, slice)
	}
	return snap, nil
}

// Swap installs a new snapshot for its slice and returns the one it
// replaced, nil if the slice was empty.
func (s *Store) Swap(snap *Snapshot) (*Snapshot, error) {
	ptr, ok := s.slices[snap.Slice]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSlice, snap.Slice)
	}
	return ptr.Swap(snap), nil
}

// CommanderAggregate returns the baseline row for a commander identity.
// A missing row is reported with false, not an error.
func (s *Store) CommanderAggregate(key identity.Key, slice Slice) (Aggregate, bool, error) {
	snap, err := s.Snapshot(slice)
	if err != nil {
		return Aggregate{}, false, err
	}
	agg, ok := snap.Commander(key)
	return agg, ok, nil
}

// CardAggregates returns the card-level rows for a commander identity
func (s *Store) CardAggregates(key identity.Key, slice Slice) ([]CardAggregate, error) {
	snap, err := s.Snapshot(slice)
	if err != nil {
		return nil, err
	}
	return snap.CardsFor(key), nil
}
