// Package sequencer computes sparse integer positions for leads inside a stage.
//
// Positions are multiples of a base gap so an insert between two neighbours
// can usually take their midpoint without touching other rows. When the
// neighbours are adjacent the whole stage is renumbered to fresh multiples of
// the gap, keeping the current relative order. The package is pure: callers
// pass the stage's ordered positions and persist the result themselves.
package sequencer

import (
	"errors"
	"math"
)

// DefaultGap is the spacing between consecutive positions after a renumber.
const DefaultGap int64 = 1000

var (
	// ErrNotIncreasing means the caller passed positions that already violate
	// the per-stage uniqueness invariant.
	ErrNotIncreasing = errors.New("stage positions are not strictly increasing")
	// ErrGapExhausted means no representable position exists even after a renumber.
	ErrGapExhausted = errors.New("stage positions cannot be renumbered within int64")
)

// Placement is the outcome of a sequencing call.
type Placement struct {
	// Position is the value for the lead being placed.
	Position int64
	// Renumbered, when non-nil, holds new positions for the existing leads in
	// the order they were passed in. It has the same length as the input.
	Renumbered []int64
}

// HasRenumber reports whether existing leads must be rewritten.
func (p Placement) HasRenumber() bool {
	return p.Renumbered != nil
}

// Sequencer holds the base gap. The zero value is not usable; call New.
type Sequencer struct {
	gap int64
}

// New returns a sequencer with the given gap. Gaps below 2 fall back to DefaultGap
// since a midpoint needs room for at least one value between neighbours.
func New(gap int64) *Sequencer {
	if gap < 2 {
		gap = DefaultGap
	}
	return &Sequencer{gap: gap}
}

// Gap returns the configured base gap.
func (s *Sequencer) Gap() int64 {
	return s.gap
}

// Append returns a position after every existing one, or the base gap for an
// empty stage. When max+gap would overflow the stage is renumbered first.
func (s *Sequencer) Append(positions []int64) (Placement, error) {
	return s.InsertAt(positions, len(positions))
}

// InsertAt returns a position that sorts at index among positions.
// Index is clamped to [0, len(positions)].
func (s *Sequencer) InsertAt(positions []int64, index int) (Placement, error) {
	if err := checkIncreasing(positions); err != nil {
		return Placement{}, err
	}

	n := len(positions)
	if index < 0 {
		index = 0
	}
	if index > n {
		index = n
	}

	if pos, ok := s.between(positions, index); ok {
		return Placement{Position: pos}, nil
	}

	renumbered, err := s.Renumber(n)
	if err != nil {
		return Placement{}, err
	}
	pos, ok := s.between(renumbered, index)
	if !ok {
		return Placement{}, ErrGapExhausted
	}
	return Placement{Position: pos, Renumbered: renumbered}, nil
}

// Renumber returns gap, 2*gap, ... n*gap, leaving headroom for one more append.
func (s *Sequencer) Renumber(n int) ([]int64, error) {
	if int64(n) >= math.MaxInt64/s.gap {
		return nil, ErrGapExhausted
	}
	out := make([]int64, n)
	for i := range out {
		out[i] = s.gap * int64(i+1)
	}
	return out, nil
}

// between finds a value strictly between the neighbours of index.
// The lower bound before the first lead is 0; after the last lead the value is last+gap.
func (s *Sequencer) between(positions []int64, index int) (int64, bool) {
	n := len(positions)
	var lower int64
	if index > 0 {
		lower = positions[index-1]
	}

	if index == n {
		if lower > math.MaxInt64-s.gap {
			return 0, false
		}
		return lower + s.gap, true
	}

	upper := positions[index]
	if upper-lower <= 1 {
		return 0, false
	}
	return lower + (upper-lower)/2, true
}

func checkIncreasing(positions []int64) error {
	for i := 1; i < len(positions); i++ {
		if positions[i] <= positions[i-1] {
			return ErrNotIncreasing
		}
	}
	return nil
}
