// Package streak computes workout streaks from the set of calendar days on
// which a user completed at least one workout.
//
// Two policies exist and are intentionally kept apart: StrictPolicy backs the
// personal stats record and achievements, RestDayTolerantPolicy backs the
// social leaderboard. The same history can produce different numbers under
// each policy.
package streak

import (
	"fmt"
	"sort"
	"time"
)

const (
	PolicyStrict       = "strict"
	PolicyRestTolerant = "rest-tolerant"
)

// Result is the outcome of a streak computation.
type Result struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
}

// Policy is a named streak accounting rule. Implementations must be pure.
type Policy interface {
	Name() string
	Compute(dates []time.Time, reference time.Time) Result
}

// Compute runs policy over dates anchored at reference.
func Compute(policy Policy, dates []time.Time, reference time.Time) Result {
	return policy.Compute(dates, reference)
}

// ByName resolves a policy by its name.
func ByName(name string) (Policy, error) {
	switch name {
	case PolicyStrict:
		return StrictPolicy{}, nil
	case PolicyRestTolerant:
		return DefaultRestDayTolerant(), nil
	default:
		return nil, fmt.Errorf("unknown streak policy %q", name)
	}
}

// Day is a calendar day counted from the Unix epoch.
type Day int

// DayOf returns the calendar day of t in t's own location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// Time returns midnight UTC of the day.
func (d Day) Time() time.Time {
	return time.Unix(int64(d)*86400, 0).UTC()
}

// daySet converts timestamps to unique calendar days in loc, dropping days
// after limit. The returned slice is sorted ascending.
func daySet(dates []time.Time, loc *time.Location, limit Day) (map[Day]bool, []Day) {
	set := make(map[Day]bool, len(dates))
	for _, t := range dates {
		d := DayOf(t.In(loc))
		if d > limit {
			continue
		}
		set[d] = true
	}

	days := make([]Day, 0, len(set))
	for d := range set {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return set, days
}

// StrictPolicy counts consecutive calendar days only. The current streak may
// be anchored at the reference day or the day before it, so a streak stays
// live until the user misses a full day.
type StrictPolicy struct{}

func (StrictPolicy) Name() string { return PolicyStrict }

func (StrictPolicy) Compute(dates []time.Time, reference time.Time) Result {
	ref := DayOf(reference)
	set, days := daySet(dates, reference.Location(), ref)
	if len(days) == 0 {
		return Result{}
	}

	cursor := ref
	if !set[cursor] {
		cursor--
	}
	current := 0
	for set[cursor] {
		current++
		cursor--
	}

	longest, run := 0, 0
	for i, d := range days {
		if i > 0 && days[i-1]+1 == d {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	if current > longest {
		longest = current
	}

	return Result{Current: current, Longest: longest}
}

// RestDayTolerantPolicy lets a streak survive short rest periods. A streak
// breaks when more than MaxConsecutiveRest rest days occur in a row, or when
// more than MaxRestInWindow rest days fall inside a trailing window of Window
// days. The walk never looks further back than Lookback days.
type RestDayTolerantPolicy struct {
	MaxConsecutiveRest int
	MaxRestInWindow    int
	Window             int
	Lookback           int
}

// DefaultRestDayTolerant is the leaderboard configuration: at most two rest
// days in a row and at most two rest days in any seven, over the last year.
func DefaultRestDayTolerant() RestDayTolerantPolicy {
	return RestDayTolerantPolicy{
		MaxConsecutiveRest: 2,
		MaxRestInWindow:    2,
		Window:             7,
		Lookback:           365,
	}
}

func (RestDayTolerantPolicy) Name() string { return PolicyRestTolerant }

func (p RestDayTolerantPolicy) Compute(dates []time.Time, reference time.Time) Result {
	ref := DayOf(reference)
	set, days := daySet(dates, reference.Location(), ref)
	if len(days) == 0 {
		return Result{}
	}

	current := p.walk(set, ref)

	longest := current
	for _, d := range days {
		if n := p.walk(set, d); n > longest {
			longest = n
		}
	}

	return Result{Current: current, Longest: longest}
}

// walk counts workout days backward from start until the streak breaks.
// Days without a workout before the most recent workout day inside the
// lookback are not rest days.
func (p RestDayTolerantPolicy) walk(set map[Day]bool, start Day) int {
	streak := 0
	consecutiveRest := 0
	var window []Day

	for i := 0; i < p.Lookback; i++ {
		day := start - Day(i)

		if set[day] {
			streak++
			consecutiveRest = 0
			continue
		}
		if streak == 0 {
			continue
		}

		consecutiveRest++
		window = append(window, day)

		kept := window[:0]
		for _, rest := range window {
			if rest < day+Day(p.Window) {
				kept = append(kept, rest)
			}
		}
		window = kept

		if consecutiveRest > p.MaxConsecutiveRest || len(window) > p.MaxRestInWindow {
			break
		}
	}

	return streak
}
