package activity

import (
	"fmt"
	"time"
)

// UnknownActivityError is returned when an activity outside the schedule is requested.
type UnknownActivityError struct {
	Name string
}

func (e *UnknownActivityError) Error() string {
	return fmt.Sprintf("unknown activity type %q", e.Name)
}

// WindowUnresolvedError is returned when no sample lies after a boundary.
type WindowUnresolvedError struct {
	Activity string
	Boundary string // "start" or "end"
	Clock    time.Duration
}

func (e *WindowUnresolvedError) Error() string {
	return fmt.Sprintf("activity %s: %s boundary %s is never crossed by the recording", e.Activity, e.Boundary, formatClock(e.Clock))
}

// TimingOrderError is returned when a session's bounds are not chronological.
type TimingOrderError struct {
	Column   string
	Previous time.Duration
	Clock    time.Duration
}

func (e *TimingOrderError) Error() string {
	return fmt.Sprintf("timing %q at %s precedes the previous boundary %s", e.Column, formatClock(e.Clock), formatClock(e.Previous))
}

func formatClock(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
