package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	KindWorkoutCompleted EventKind = "WORKOUT_COMPLETED"
	KindPRSet            EventKind = "PR_SET"
	KindMealLogged       EventKind = "MEAL_LOGGED"
	KindFriendAdded      EventKind = "FRIEND_ADDED"
	KindFriendRemoved    EventKind = "FRIEND_REMOVED"
	KindGoalCompleted    EventKind = "GOAL_COMPLETED"
)

type GoalType string

const (
	GoalWeightLoss       GoalType = "WEIGHT_LOSS"
	GoalWeightGain       GoalType = "WEIGHT_GAIN"
	GoalExerciseStrength GoalType = "EXERCISE_STRENGTH"
	GoalCardioTime       GoalType = "CARDIO_TIME"
	GoalCardioDistance   GoalType = "CARDIO_DISTANCE"
	GoalCustom           GoalType = "CUSTOM"
)

func (g GoalType) valid() bool {
	switch g {
	case GoalWeightLoss, GoalWeightGain, GoalExerciseStrength, GoalCardioTime, GoalCardioDistance, GoalCustom:
		return true
	}
	return false
}

// Event is an activity change reported by a collaborator. The set of
// implementations is closed.
type Event interface {
	Kind() EventKind
	event()
}

type WorkoutCompleted struct {
	WorkoutID   uuid.UUID      `json:"workout_id"`
	Duration    *time.Duration `json:"-"`
	CompletedAt time.Time      `json:"completed_at"`
}

type PRSet struct {
	Count int `json:"count"`
}

type MealLogged struct{}

type FriendAdded struct {
	FriendID uuid.UUID `json:"friend_id"`
}

type FriendRemoved struct {
	FriendID uuid.UUID `json:"friend_id"`
}

type GoalCompleted struct {
	GoalType GoalType `json:"goal_type"`
}

func (WorkoutCompleted) Kind() EventKind { return KindWorkoutCompleted }
func (PRSet) Kind() EventKind            { return KindPRSet }
func (MealLogged) Kind() EventKind       { return KindMealLogged }
func (FriendAdded) Kind() EventKind      { return KindFriendAdded }
func (FriendRemoved) Kind() EventKind    { return KindFriendRemoved }
func (GoalCompleted) Kind() EventKind    { return KindGoalCompleted }

func (WorkoutCompleted) event() {}
func (PRSet) event()            {}
func (MealLogged) event()       {}
func (FriendAdded) event()      {}
func (FriendRemoved) event()    {}
func (GoalCompleted) event()    {}

var ErrInvalidEvent = errors.New("invalid event")

// Validate rejects events whose payload cannot be applied.
func Validate(ev Event) error {
	switch e := ev.(type) {
	case WorkoutCompleted:
		if e.Duration != nil && *e.Duration < 0 {
			return fmt.Errorf("%w: negative workout duration", ErrInvalidEvent)
		}
	case PRSet:
		if e.Count < 1 {
			return fmt.Errorf("%w: pr count must be positive, got %d", ErrInvalidEvent, e.Count)
		}
	case GoalCompleted:
		if !e.GoalType.valid() {
			return fmt.Errorf("%w: unknown goal type %q", ErrInvalidEvent, e.GoalType)
		}
	case MealLogged, FriendAdded, FriendRemoved:
	case nil:
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	default:
		return fmt.Errorf("%w: unsupported event %T", ErrInvalidEvent, ev)
	}
	return nil
}

// Envelope is the wire form of an Event.
type Envelope struct {
	Kind            EventKind  `json:"kind"`
	WorkoutID       *uuid.UUID `json:"workout_id,omitempty"`
	DurationSeconds *int64     `json:"duration_seconds,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Count           *int       `json:"count,omitempty"`
	FriendID        *uuid.UUID `json:"friend_id,omitempty"`
	GoalType        GoalType   `json:"goal_type,omitempty"`
}

// Decode turns a JSON envelope into a validated Event.
func Decode(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return env.Event()
}

// Event converts the envelope into its typed variant.
func (env Envelope) Event() (Event, error) {
	var ev Event
	switch env.Kind {
	case KindWorkoutCompleted:
		w := WorkoutCompleted{}
		if env.WorkoutID != nil {
			w.WorkoutID = *env.WorkoutID
		}
		if env.DurationSeconds != nil {
			d := time.Duration(*env.DurationSeconds) * time.Second
			w.Duration = &d
		}
		if env.CompletedAt != nil {
			w.CompletedAt = *env.CompletedAt
		}
		ev = w
	case KindPRSet:
		count := 1
		if env.Count != nil {
			count = *env.Count
		}
		ev = PRSet{Count: count}
	case KindMealLogged:
		ev = MealLogged{}
	case KindFriendAdded, KindFriendRemoved:
		if env.FriendID == nil {
			return nil, fmt.Errorf("%w: %s requires friend_id", ErrInvalidEvent, env.Kind)
		}
		if env.Kind == KindFriendAdded {
			ev = FriendAdded{FriendID: *env.FriendID}
		} else {
			ev = FriendRemoved{FriendID: *env.FriendID}
		}
	case KindGoalCompleted:
		ev = GoalCompleted{GoalType: env.GoalType}
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, env.Kind)
	}

	if err := Validate(ev); err != nil {
		return nil, err
	}
	return ev, nil
}
