package fulfillment

import (
	"fmt"
	"math"
	"sort"

	"github.com/kirinyoku/tix-events/internal/domain"
)

// Reserve checks that ev can cover every request addressed to it and, when
// it can, decrements the matching classes in place. Requests for the same
// class are summed before checking. On error ev is left untouched.
func Reserve(ev *domain.Event, reqs []domain.TicketRequest) error {
	want := make(map[int]int, len(ev.Tickets))

	for _, r := range reqs {
		if r.EventID != ev.ID {
			continue
		}

		if r.Quantity <= 0 {
			return fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
		}

		idx := ev.TicketClass(r.Type)
		if idx < 0 {
			return &InsufficientInventoryError{EventID: ev.ID, Type: r.Type, Requested: r.Quantity, Available: -1}
		}

		// Compared against the remainder so the running sum never overflows.
		if avail := ev.Tickets[idx].AvailableQuantity; r.Quantity > avail-want[idx] {
			return &InsufficientInventoryError{
				EventID:   ev.ID,
				Type:      ev.Tickets[idx].Type,
				Requested: addCapped(want[idx], r.Quantity),
				Available: avail,
			}
		}

		want[idx] += r.Quantity
	}

	for idx, n := range want {
		ev.Tickets[idx].AvailableQuantity -= n
	}

	return nil
}

func addCapped(a, b int) int {
	if a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}

// EventIDs returns the distinct events addressed by reqs in sorted order, the
// order in which their rows are locked.
func EventIDs(reqs []domain.TicketRequest) []string {
	seen := make(map[string]struct{}, len(reqs))
	out := make([]string, 0, len(reqs))

	for _, r := range reqs {
		if _, ok := seen[r.EventID]; ok {
			continue
		}
		seen[r.EventID] = struct{}{}
		out = append(out, r.EventID)
	}

	sort.Strings(out)
	return out
}
