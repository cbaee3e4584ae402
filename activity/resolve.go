package activity

import (
	"fmt"
	"time"
)

// Resolve maps each scheduled activity onto sample indices of daytime.
//
// The scan walks daytime once with a cursor over the flattened bounds
// (start0, end0, start1, ...). A bound is crossed by the first sample whose
// clock time is strictly after it, and a sample crosses at most one bound.
// A baseline activity is scanned at its chronological place, so it may
// precede, follow or sit between the other activities.
func Resolve(daytime []time.Time, s Schedule, t Timings) ([]Window, error) {
	columns := s.Columns()
	if len(t.Bounds) != len(columns) {
		return nil, fmt.Errorf("timings for %s/%s hold %d bounds, schedule needs %d", t.Subject, t.Date, len(t.Bounds), len(columns))
	}
	order := scanOrder(s, t.Bounds)
	bounds := make([]time.Duration, 0, len(t.Bounds))
	cols := make([]string, 0, len(columns))
	for _, a := range order {
		bounds = append(bounds, t.Bounds[2*a], t.Bounds[2*a+1])
		cols = append(cols, columns[2*a], columns[2*a+1])
	}
	for i := 1; i < len(bounds); i++ {
		if bounds[i] < bounds[i-1] {
			return nil, &TimingOrderError{Column: cols[i], Previous: bounds[i-1], Clock: bounds[i]}
		}
	}

	indices := make([]int, 0, len(bounds))
	for i, ts := range daytime {
		if len(indices) == len(bounds) {
			break
		}
		if bounds[len(indices)] < sinceMidnight(ts) {
			indices = append(indices, i)
		}
	}
	if len(indices) < len(bounds) {
		k := len(indices)
		boundary := "start"
		if k%2 == 1 {
			boundary = "end"
		}
		return nil, &WindowUnresolvedError{Activity: s[order[k/2]].Name, Boundary: boundary, Clock: bounds[k]}
	}

	windows := make([]Window, len(s))
	for k, a := range order {
		windows[a] = Window{Name: s[a].Name, Start: indices[2*k], End: indices[2*k+1]}
	}
	return windows, nil
}

// scanOrder returns schedule positions in scan order: the schedule order,
// with the baseline moved before the first activity starting after it.
func scanOrder(s Schedule, bounds []time.Duration) []int {
	base := -1
	order := make([]int, 0, len(s))
	for i, a := range s {
		if a.Name == Baseline && base < 0 {
			base = i
			continue
		}
		order = append(order, i)
	}
	if base < 0 {
		return order
	}
	at := len(order)
	for k, i := range order {
		if bounds[2*i] >= bounds[2*base] {
			at = k
			break
		}
	}
	order = append(order, 0)
	copy(order[at+1:], order[at:])
	order[at] = base
	return order
}

// Find returns the window with the given name.
func Find(windows []Window, name string) (Window, error) {
	for _, w := range windows {
		if w.Name == name {
			return w, nil
		}
	}
	return Window{}, &UnknownActivityError{Name: name}
}

func sinceMidnight(ts time.Time) time.Duration {
	h, m, s := ts.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second + time.Duration(ts.Nanosecond())
}
