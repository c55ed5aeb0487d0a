package loans

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

var allStatuses = []Status{
	StatusPendingApproval, StatusLoaned, StatusReturned, StatusRejected, StatusOverdue,
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{"", StatusPendingApproval, true},
		{"", StatusLoaned, true},
		{"", StatusReturned, false},
		{StatusPendingApproval, StatusLoaned, true},
		{StatusPendingApproval, StatusRejected, true},
		{StatusPendingApproval, StatusReturned, false},
		{StatusLoaned, StatusReturned, true},
		{StatusLoaned, StatusOverdue, true},
		{StatusLoaned, StatusRejected, false},
		{StatusOverdue, StatusReturned, true},
		{StatusOverdue, StatusLoaned, false},
		{StatusReturned, StatusLoaned, false},
		{StatusRejected, StatusLoaned, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, terminal := range []Status{StatusReturned, StatusRejected} {
		for _, to := range allStatuses {
			assert.False(t, CanTransition(terminal, to), "%s must be terminal", terminal)
		}
	}
}

// Random walks over the legal edges: a loan that leaves the active set is
// frozen forever, and no walk ever reaches an unknown status.
func TestLifecycleWalks(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		current := Status("")
		for steps := rapid.IntRange(1, 10).Draw(t, "steps"); steps > 0; steps-- {
			next := rapid.SampledFrom(allStatuses).Draw(t, "next")
			if !CanTransition(current, next) {
				continue
			}
			current = next
			if current != "" && !current.Active() {
				for _, to := range allStatuses {
					if CanTransition(current, to) {
						t.Fatalf("inactive status %s still has an exit to %s", current, to)
					}
				}
			}
		}
	})
}

func TestActive(t *testing.T) {
	assert.True(t, StatusPendingApproval.Active())
	assert.True(t, StatusLoaned.Active())
	assert.True(t, StatusOverdue.Active())
	assert.False(t, StatusReturned.Active())
	assert.False(t, StatusRejected.Active())
}
