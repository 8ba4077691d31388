package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func results(statuses ...Status) []TaskResult {
	out := make([]TaskResult, 0, len(statuses))
	for i, s := range statuses {
		out = append(out, TaskResult{Name: string(rune('a' + i)), Status: s})
	}
	return out
}

func TestSuccessRate(t *testing.T) {
	tests := []struct {
		name    string
		results []TaskResult
		want    float64
	}{
		{name: "nothing executed", results: nil, want: 100},
		{name: "only skipped", results: results(StatusSkipped, StatusSkipped), want: 100},
		{name: "all success", results: results(StatusSuccess, StatusSuccess), want: 100},
		{name: "three of five", results: results(StatusSuccess, StatusSuccess, StatusSuccess, StatusFailed, StatusFailed), want: 60},
		{name: "timeouts count as failures", results: results(StatusSuccess, StatusTimedOut), want: 50},
		{name: "skips ignored", results: results(StatusSuccess, StatusFailed, StatusSkipped), want: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, SuccessRate{}.Score(tt.results), 0.001)
		})
	}
}

func TestGate_ThresholdBreached(t *testing.T) {
	gate := NewGate(90, nil)

	decision := gate.Checkpoint(results(StatusSuccess, StatusSuccess, StatusSuccess, StatusFailed, StatusFailed))

	assert.False(t, decision.Continue)
	assert.InDelta(t, 60, decision.Score, 0.001)
	assert.Contains(t, decision.Reason, "below threshold 90")
}

func TestGate_AtThresholdContinues(t *testing.T) {
	gate := NewGate(80, nil)

	decision := gate.Checkpoint(results(StatusSuccess, StatusSuccess, StatusSuccess, StatusSuccess, StatusFailed))

	assert.True(t, decision.Continue)
	assert.Empty(t, decision.Reason)
}

func TestGate_CriticalFailureAbortsRegardlessOfScore(t *testing.T) {
	gate := NewGate(0, nil)

	rs := results(StatusSuccess, StatusSuccess, StatusSuccess, StatusFailed)
	rs[3].Critical = true

	decision := gate.Checkpoint(rs)
	require.False(t, decision.Continue)
	assert.Contains(t, decision.Reason, `critical task "d"`)
}

func TestGate_CriticalSkipDoesNotAbort(t *testing.T) {
	gate := NewGate(80, nil)

	rs := results(StatusSuccess, StatusSkipped)
	rs[1].Critical = true

	assert.True(t, gate.Checkpoint(rs).Continue)
}

func TestGate_CustomScorer(t *testing.T) {
	pessimist := ScorerFunc(func([]TaskResult) float64 { return 10 })
	gate := NewGate(50, pessimist)

	decision := gate.Checkpoint(results(StatusSuccess))
	assert.False(t, decision.Continue)
	assert.InDelta(t, 10, gate.Score(nil), 0.001)
}
