package orchestrator

import "fmt"

// Scorer turns the results collected so far into a 0-100 quality score.
type Scorer interface {
	Score(results []TaskResult) float64
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(results []TaskResult) float64

// Score calls f.
func (f ScorerFunc) Score(results []TaskResult) float64 { return f(results) }

// SuccessRate scores the percentage of executed tasks that succeeded.
// Skipped tasks are ignored; with nothing executed the score is 100.
type SuccessRate struct{}

// Score implements Scorer.
func (SuccessRate) Score(results []TaskResult) float64 {
	executed, succeeded := 0, 0
	for _, r := range results {
		if r.Status == StatusSkipped {
			continue
		}
		executed++
		if r.Status == StatusSuccess {
			succeeded++
		}
	}
	if executed == 0 {
		return 100
	}
	return float64(succeeded) / float64(executed) * 100
}

// Decision is the outcome of a checkpoint.
type Decision struct {
	Continue bool
	Score    float64
	Reason   string // Why the run must stop; empty on Continue
}

// Gate decides after every wave whether the run may continue.
type Gate struct {
	threshold int
	scorer    Scorer
}

// NewGate creates a gate. A nil scorer means SuccessRate.
func NewGate(threshold int, scorer Scorer) *Gate {
	if scorer == nil {
		scorer = SuccessRate{}
	}
	return &Gate{threshold: threshold, scorer: scorer}
}

// Checkpoint evaluates results so far. A failed critical task aborts
// regardless of the score.
func (g *Gate) Checkpoint(results []TaskResult) Decision {
	score := g.scorer.Score(results)

	for _, r := range results {
		if CriticalFailure(r) {
			return Decision{Score: score, Reason: criticalReason(r)}
		}
	}

	if score < float64(g.threshold) {
		return Decision{
			Score:  score,
			Reason: fmt.Sprintf("quality score %.1f below threshold %d", score, g.threshold),
		}
	}
	return Decision{Continue: true, Score: score}
}

// Score returns the current score without deciding anything.
func (g *Gate) Score(results []TaskResult) float64 {
	return g.scorer.Score(results)
}

// CriticalFailure reports whether r must abort the run immediately.
func CriticalFailure(r TaskResult) bool {
	return r.Critical && r.Failed()
}

func criticalReason(r TaskResult) string {
	return fmt.Sprintf("critical task %q %s", r.Name, r.Status)
}
