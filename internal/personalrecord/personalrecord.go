// Package personalrecord decides whether a logged set is a new personal
// record for an exercise.
package personalrecord

import "math"

// MinHistory is the number of qualifying historical sets an exercise needs
// before any new set can count as a PR.
const MinHistory = 10

// EpleyRepCap caps reps in the 1RM estimate; Epley drifts badly past ten.
const EpleyRepCap = 10

type Type string

const (
	TypeStrength   Type = "strength"
	TypeBodyweight Type = "bodyweight"
	TypePace       Type = "pace"
	TypeDistance   Type = "distance"
)

// Sample is one performed set. Zero fields are absent.
type Sample struct {
	Weight          float64 `json:"weight,omitempty" db:"weight"`
	Reps            int     `json:"reps,omitempty" db:"reps"`
	DurationSeconds float64 `json:"duration_seconds,omitempty" db:"duration_seconds"`
	Distance        float64 `json:"distance,omitempty" db:"distance"`
}

func (s Sample) weighted() bool { return s.Weight > 0 && s.Reps > 0 }
func (s Sample) bodyweight() bool { return s.Weight <= 0 && s.Reps > 0 }
func (s Sample) timedCardio() bool { return s.Distance > 0 && s.DurationSeconds > 0 }
func (s Sample) hasDistance() bool { return s.Distance > 0 }

// Pace is minutes per distance unit. Lower is better.
func (s Sample) Pace() float64 {
	return s.DurationSeconds / 60 / s.Distance
}

// Result is the verdict for one sample. Type is empty unless IsPR is set.
type Result struct {
	IsPR         bool     `json:"is_pr"`
	Type         Type     `json:"pr_type,omitempty"`
	Estimated1RM *float64 `json:"estimated_1rm,omitempty"`
}

// EstimatedOneRepMax applies Epley's formula with reps capped at EpleyRepCap.
func EstimatedOneRepMax(weight float64, reps int) float64 {
	r := reps
	if r > EpleyRepCap {
		r = EpleyRepCap
	}
	return weight * (1 + float64(r)/30)
}

// Evaluate compares sample against the exercise history recorded before it.
// The first rule matching the sample's shape decides the outcome.
func Evaluate(sample Sample, history []Sample) Result {
	switch {
	case sample.weighted():
		return evaluateStrength(sample, history)
	case sample.bodyweight():
		return evaluateBodyweight(sample, history)
	case sample.timedCardio():
		return evaluateTimedCardio(sample, history)
	case sample.hasDistance():
		return evaluateDistance(sample, history)
	default:
		return Result{}
	}
}

func evaluateStrength(sample Sample, history []Sample) Result {
	estimate := EstimatedOneRepMax(sample.Weight, sample.Reps)
	res := Result{Estimated1RM: &estimate}

	count := 0
	best := 0.0
	for _, h := range history {
		if !h.weighted() {
			continue
		}
		count++
		best = math.Max(best, EstimatedOneRepMax(h.Weight, h.Reps))
	}
	if count < MinHistory {
		return res
	}

	if estimate > best {
		res.IsPR = true
		res.Type = TypeStrength
	}
	return res
}

func evaluateBodyweight(sample Sample, history []Sample) Result {
	count := 0
	best := 0
	for _, h := range history {
		if !h.bodyweight() {
			continue
		}
		count++
		if h.Reps > best {
			best = h.Reps
		}
	}
	if count < MinHistory || sample.Reps <= best {
		return Result{}
	}
	return Result{IsPR: true, Type: TypeBodyweight}
}

func evaluateTimedCardio(sample Sample, history []Sample) Result {
	count := 0
	bestPace := math.Inf(1)
	bestDistance := 0.0
	for _, h := range history {
		if !h.timedCardio() {
			continue
		}
		count++
		bestPace = math.Min(bestPace, h.Pace())
		bestDistance = math.Max(bestDistance, h.Distance)
	}
	if count < MinHistory {
		return Result{}
	}

	if sample.Pace() < bestPace {
		return Result{IsPR: true, Type: TypePace}
	}
	if sample.Distance > bestDistance {
		return Result{IsPR: true, Type: TypeDistance}
	}
	return Result{}
}

func evaluateDistance(sample Sample, history []Sample) Result {
	count := 0
	best := 0.0
	for _, h := range history {
		if !h.hasDistance() {
			continue
		}
		count++
		best = math.Max(best, h.Distance)
	}
	if count < MinHistory || sample.Distance <= best {
		return Result{}
	}
	return Result{IsPR: true, Type: TypeDistance}
}
