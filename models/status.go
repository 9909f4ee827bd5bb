package models

import (
	"errors"
	"fmt"
	"time"
)

// GameStatus is the lifecycle state of a game. It only moves forward.
type GameStatus string

const (
	StatusCreated GameStatus = "CREATED"
	StatusStarted GameStatus = "STARTED"
	StatusEnded   GameStatus = "ENDED"
)

var (
	ErrUnknownStatus     = errors.New("unknown game status")
	ErrInvalidTransition = errors.New("invalid game status transition")
	ErrInvalidTimeline   = errors.New("invalid game timeline")
)

func (s GameStatus) rank() int {
	switch s {
	case StatusCreated:
		return 0
	case StatusStarted:
		return 1
	case StatusEnded:
		return 2
	}
	return -1
}

func (s GameStatus) Valid() bool { return s.rank() >= 0 }

// Terminal reports whether no transition may leave s.
func (s GameStatus) Terminal() bool { return s == StatusEnded }

// Before reports whether s comes strictly earlier in the lifecycle than o.
func (s GameStatus) Before(o GameStatus) bool {
	return s.Valid() && o.Valid() && s.rank() < o.rank()
}

// CanAdvance reports whether to is exactly one step after s.
func (s GameStatus) CanAdvance(to GameStatus) bool {
	return s.Valid() && to.Valid() && to.rank() == s.rank()+1
}

// ParseStatus accepts an empty string as "not specified".
func ParseStatus(v string) (GameStatus, error) {
	s := GameStatus(v)
	if v == "" || s.Valid() {
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, v)
}

// checkTimeline validates the status against its unix-millisecond timestamps.
func checkTimeline(status GameStatus, created, started, finished int64) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	if started != 0 && started < created {
		return fmt.Errorf("%w: started before created", ErrInvalidTimeline)
	}
	if finished != 0 {
		if started == 0 {
			return fmt.Errorf("%w: ended without being started", ErrInvalidTimeline)
		}
		if finished < started {
			return fmt.Errorf("%w: ended before started", ErrInvalidTimeline)
		}
	}
	switch status {
	case StatusCreated:
		if started != 0 || finished != 0 {
			return fmt.Errorf("%w: created game carries start or end time", ErrInvalidTimeline)
		}
	case StatusStarted:
		if started == 0 || finished != 0 {
			return fmt.Errorf("%w: started game needs a start time and no end time", ErrInvalidTimeline)
		}
	case StatusEnded:
		if finished == 0 {
			return fmt.Errorf("%w: ended game needs an end time", ErrInvalidTimeline)
		}
	}
	return nil
}

func millis(t time.Time) int64 { return t.UnixMilli() }
