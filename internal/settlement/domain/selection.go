package domain

import (
	"sync"

	"github.com/google/uuid"
)

// SelectionOutcome is the terminal decision taken on a selection.
type SelectionOutcome string

const (
	OutcomeUndecided SelectionOutcome = ""
	OutcomeProceeded SelectionOutcome = "proceeded"
	OutcomeDeclined  SelectionOutcome = "declined"
)

// Selection tracks which night ranges the winner keeps. Every range starts
// selected. Totals come from the cached range totals, nights are never rescanned.
type Selection struct {
	mu       sync.Mutex
	ranges   []NightRange
	selected []bool
	index    map[uuid.UUID]int
	outcome  SelectionOutcome
}

func NewSelection(ranges []NightRange) *Selection {
	s := &Selection{
		ranges:   ranges,
		selected: make([]bool, len(ranges)),
		index:    make(map[uuid.UUID]int, len(ranges)),
	}
	for i, r := range ranges {
		s.selected[i] = true
		s.index[r.RangeID] = i
	}
	return s
}

// Toggle flips one range and returns its new state.
func (s *Selection) Toggle(rangeID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.outcome != OutcomeUndecided {
		return false, ErrSelectionClosed
	}
	i, ok := s.index[rangeID]
	if !ok {
		return false, ErrRangeNotFound
	}
	s.selected[i] = !s.selected[i]
	return s.selected[i], nil
}

// SetAll selects or clears every range.
func (s *Selection) SetAll(selected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.outcome != OutcomeUndecided {
		return ErrSelectionClosed
	}
	for i := range s.selected {
		s.selected[i] = selected
	}
	return nil
}

func (s *Selection) IsSelected(rangeID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[rangeID]
	return ok && s.selected[i]
}

func (s *Selection) SelectedTotal() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedTotal()
}

func (s *Selection) selectedTotal() int64 {
	var total int64
	for i, r := range s.ranges {
		if s.selected[i] {
			total += r.TotalAmount
		}
	}
	return total
}

// FullTotal is the total with every range selected.
func (s *Selection) FullTotal() int64 {
	var total int64
	for _, r := range s.ranges {
		total += r.TotalAmount
	}
	return total
}

// Ranges returns the ranges with each night's IsSelected reflecting the selection.
func (s *Selection) Ranges() []NightRange {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]NightRange, len(s.ranges))
	for i, r := range s.ranges {
		nights := make([]AwardedNight, len(r.Nights))
		for j, n := range r.Nights {
			n.IsSelected = s.selected[i]
			nights[j] = n
		}
		r.Nights = nights
		out[i] = r
	}
	return out
}

func (s *Selection) SelectedNights() []AwardedNight {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedNights()
}

func (s *Selection) selectedNights() []AwardedNight {
	var out []AwardedNight
	for i, r := range s.ranges {
		if !s.selected[i] {
			continue
		}
		for _, n := range r.Nights {
			n.IsSelected = true
			out = append(out, n)
		}
	}
	return out
}

func (s *Selection) SelectedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sel := range s.selected {
		if sel {
			n++
		}
	}
	return n
}

// Proceed closes the selection for payment. At least one range must remain selected.
func (s *Selection) Proceed() ([]AwardedNight, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.outcome != OutcomeUndecided {
		return nil, 0, ErrSelectionClosed
	}
	nights := s.selectedNights()
	if len(nights) == 0 {
		return nil, 0, ErrEmptySelection
	}
	s.outcome = OutcomeProceeded
	return nights, s.selectedTotal(), nil
}

// Decline is available whatever the selection holds.
func (s *Selection) Decline() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.outcome != OutcomeUndecided {
		return ErrSelectionClosed
	}
	s.outcome = OutcomeDeclined
	return nil
}

// Reopen undoes a terminal action the backend did not confirm, so the winner
// can decide again.
func (s *Selection) Reopen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcome = OutcomeUndecided
}

func (s *Selection) Outcome() SelectionOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}
