package activity

import (
	"strings"
	"time"
)

// Names of the activities recorded during the study.
const (
	VR         = "vr"
	Camp       = "camp"
	Meditation = "meditation"
	Baseline   = "baseline"
	// All addresses the whole recording. It is never part of a schedule.
	All = "all"
)

// Activity names one window and the timing table columns holding its bounds.
type Activity struct {
	Name        string
	StartColumn string
	EndColumn   string
}

// Schedule is the ordered list of activities of a recording session. Bounds
// are expected in this order, chronologically.
type Schedule []Activity

// DefaultSchedule is the VR / camp / meditation session.
var DefaultSchedule = Schedule{
	{Name: VR, StartColumn: "Time start VR", EndColumn: "Time end VR"},
	{Name: Camp, StartColumn: "Time start camp", EndColumn: "Time end camp"},
	{Name: Meditation, StartColumn: "Time start meditation", EndColumn: "Time end meditation"},
}

// WithBaseline returns a copy of s with a baseline activity appended. Resolve
// scans the baseline at its chronological place.
func (s Schedule) WithBaseline(startColumn, endColumn string) Schedule {
	out := make(Schedule, 0, len(s)+1)
	out = append(out, s...)
	return append(out, Activity{Name: Baseline, StartColumn: startColumn, EndColumn: endColumn})
}

// Index returns the position of the named activity.
func (s Schedule) Index(name string) (int, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for i, a := range s {
		if a.Name == key {
			return i, nil
		}
	}
	return -1, &UnknownActivityError{Name: name}
}

// Names lists the activity names in order.
func (s Schedule) Names() []string {
	out := make([]string, len(s))
	for i, a := range s {
		out[i] = a.Name
	}
	return out
}

// Columns lists the boundary columns in resolution order.
func (s Schedule) Columns() []string {
	out := make([]string, 0, 2*len(s))
	for _, a := range s {
		out = append(out, a.StartColumn, a.EndColumn)
	}
	return out
}

// Timings holds the wall-clock bounds of one (subject, date) session as
// offsets since midnight, ordered like Schedule.Columns.
type Timings struct {
	Subject string
	Date    string
	Bounds  []time.Duration
}

// Window is a resolved activity over a stream's sample indices [Start, End).
type Window struct {
	Name  string `json:"name"`
	Start int    `json:"start_index"`
	End   int    `json:"end_index"`
}

// Len returns the number of samples in the window.
func (w Window) Len() int { return w.End - w.Start }
