// Package items recomputes per-payer payment-item eligibility and tracks the
// payer's selection. Derivation is pure: it is re-run on every change of the
// payer's level and never mutates its input.
package items

import (
	"github.com/duespay/portal/internal/duespay"
)

// Template and derived item statuses.
const (
	StatusCompulsory = "compulsory"
	StatusOptional   = "optional"
)

// AllLevels is the wildcard marker in an item's compulsory_for set.
const AllLevels = "All Levels"

// Derive filters out inactive items and recomputes each remaining item's
// status for the given payer level: compulsory iff the template status is
// compulsory and the level is in compulsory_for (or the wildcard is), else
// optional.
func Derive(raw []duespay.PaymentItem, level string) []duespay.PaymentItem {
	out := make([]duespay.PaymentItem, 0, len(raw))
	for _, item := range raw {
		if !item.IsActive {
			continue
		}
		derived := item
		if compulsoryFor(item, level) {
			derived.Status = StatusCompulsory
		} else {
			derived.Status = StatusOptional
		}
		out = append(out, derived)
	}
	return out
}

func compulsoryFor(item duespay.PaymentItem, level string) bool {
	if item.Status != StatusCompulsory {
		return false
	}
	for _, l := range item.CompulsoryFor {
		if l == AllLevels || (level != "" && l == level) {
			return true
		}
	}
	return false
}

// Selection is the payer's chosen item set, in insertion order.
type Selection struct {
	chosen map[int64]bool
	order  []int64
}

// NewSelection returns an empty selection.
func NewSelection() *Selection {
	return &Selection{chosen: make(map[int64]bool)}
}

// Toggle flips membership of the item with the given id. It is a no-op (and
// returns false) when the item's current derived status is compulsory, or
// when the id is not in the derived list.
func (s *Selection) Toggle(derived []duespay.PaymentItem, id int64) bool {
	var found *duespay.PaymentItem
	for i := range derived {
		if derived[i].ID == id {
			found = &derived[i]
			break
		}
	}
	if found == nil || found.Status == StatusCompulsory {
		return false
	}

	if s.chosen[id] {
		s.remove(id)
	} else {
		s.add(id)
	}
	return true
}

// ApplyLevel force-selects every item compulsory in the derived list. Items
// already selected that are no longer compulsory stay selected.
func (s *Selection) ApplyLevel(derived []duespay.PaymentItem) {
	for _, item := range derived {
		if item.Status == StatusCompulsory && !s.chosen[item.ID] {
			s.add(item.ID)
		}
	}
}

// Contains reports whether the item is selected.
func (s *Selection) Contains(id int64) bool { return s.chosen[id] }

// IDs returns the selected ids in insertion order.
func (s *Selection) IDs() []int64 {
	out := make([]int64, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of selected items.
func (s *Selection) Len() int { return len(s.order) }

// Total sums the amounts of the selected items against the derived list.
func (s *Selection) Total(derived []duespay.PaymentItem) float64 {
	amounts := make(map[int64]float64, len(derived))
	for _, item := range derived {
		amounts[item.ID] = float64(item.Amount)
	}
	var total float64
	for _, id := range s.order {
		total += amounts[id]
	}
	return total
}

func (s *Selection) add(id int64) {
	s.chosen[id] = true
	s.order = append(s.order, id)
}

func (s *Selection) remove(id int64) {
	delete(s.chosen, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}
