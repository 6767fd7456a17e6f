package linkcheck

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	allowed := map[Status][]Status{
		StatusPending: {StatusRunning, StatusCancelled, StatusFailed},
		StatusRunning: {StatusCompleted, StatusFailed, StatusCancelled},
	}
	all := []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled}
	for _, from := range all {
		for _, to := range all {
			want := false
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}
			require.Equalf(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatesAreSticky(t *testing.T) {
	t.Parallel()

	for _, s := range []Status{StatusCompleted, StatusFailed, StatusCancelled} {
		require.True(t, IsTerminal(s))
		for _, to := range []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled} {
			require.False(t, CanTransition(s, to))
		}
	}
	require.False(t, IsTerminal(StatusRunning))
}

func TestSourceStatuses(t *testing.T) {
	t.Parallel()

	require.Equal(t, []Status{StatusPending, StatusRunning}, SourceStatuses(StatusCancelled))
	require.Equal(t, []Status{StatusRunning}, SourceStatuses(StatusCompleted))
	require.Equal(t, []Status{StatusPending}, SourceStatuses(StatusRunning))
}

func TestPageBounds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name                   string
		page, limit            int
		wantOffset, wantLimit int
	}{
		{name: "defaults", page: 0, limit: 0, wantOffset: 0, wantLimit: DefaultPageSize},
		{name: "second page", page: 2, limit: 10, wantOffset: 10, wantLimit: 10},
		{name: "limit clamped", page: 3, limit: 500, wantOffset: 2 * MaxPageSize, wantLimit: MaxPageSize},
		{name: "negative page", page: -4, limit: 5, wantOffset: 0, wantLimit: 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			offset, limit := PageBounds(tc.page, tc.limit)
			require.Equal(t, tc.wantOffset, offset)
			require.Equal(t, tc.wantLimit, limit)
		})
	}

	t.Run("huge page does not overflow", func(t *testing.T) {
		for _, page := range []int{92233720368547760, math.MaxInt} {
			offset, limit := PageBounds(page, 100)
			require.Equal(t, 100, limit)
			require.Positive(t, offset)
			require.Positive(t, offset+limit)
		}
	})
}
