package retry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunReturnsOnFirstPass(t *testing.T) {
	calls := 0
	best, passed := Run(Policy{MaxAttempts: 3, Threshold: 7}, func(n int) Result[string] {
		calls++
		return Result[string]{Candidate: "first", Score: 9, Pass: true}
	})
	require.True(t, passed)
	require.Equal(t, "first", best.Candidate)
	require.Equal(t, 1, calls)
}

func TestRunReturnsBestOnExhaustion(t *testing.T) {
	scores := []float64{3, 6, 5}
	best, passed := Run(Policy{MaxAttempts: 3, Threshold: 7}, func(n int) Result[string] {
		return Result[string]{Candidate: "attempt", Score: scores[n]}
	})
	require.False(t, passed)
	require.Equal(t, 6.0, best.Score)
}

func TestRunDefaultsMaxAttemptsToOne(t *testing.T) {
	calls := 0
	_, passed := Run(Policy{Threshold: 7}, func(n int) Result[string] {
		calls++
		return Result[string]{Score: 1}
	})
	require.False(t, passed)
	require.Equal(t, 1, calls)
}
