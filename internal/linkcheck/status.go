package linkcheck

import "math"

// IsTerminal reports whether no further transition is allowed from status.
func IsTerminal(status Status) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a job may move from one status to another.
// pending -> running -> completed|failed, cancelled from pending or running,
// and failed from pending when a job cannot be admitted.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusRunning || to == StatusCancelled || to == StatusFailed
	case StatusRunning:
		return to == StatusCompleted || to == StatusFailed || to == StatusCancelled
	default:
		return false
	}
}

// SourceStatuses lists every status that may transition into to.
func SourceStatuses(to Status) []Status {
	var out []Status
	for _, from := range []Status{StatusPending, StatusRunning} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// Default and maximum page sizes for history listings.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageBounds converts a 1-based page and limit into an offset and a clamped limit.
func PageBounds(page, limit int) (offset, size int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	// Keep offset+limit representable; such pages are past any real listing.
	if maxPage := (math.MaxInt-limit)/limit + 1; page > maxPage {
		page = maxPage
	}
	return (page - 1) * limit, limit
}
