package empatica

import (
	"fmt"
	"math"
	"strings"
)

// BuildNotes renders a plain-text overview of a recording: the stream, then
// one line per activity window with its clock span and channel means.
func BuildNotes(r *Recording) string {
	if r == nil || r.Stream == nil {
		return ""
	}
	s := r.Stream

	var b strings.Builder
	fmt.Fprintf(&b, "Recording: %s (subject %s, %s)\n", r.ID, r.Subject, r.Date)
	if s.Rate > 0 {
		fmt.Fprintf(&b, "Sensor %s | %d samples | %.2f Hz | %d channel(s)\n", s.Format, s.Len(), s.Rate, s.Channels())
	} else {
		fmt.Fprintf(&b, "Sensor %s | %d samples | row clock | %d channel(s)\n", s.Format, s.Len(), s.Channels())
	}
	if !s.Start.IsZero() {
		fmt.Fprintf(&b, "Start: %s\n", s.Start.Format("2006-01-02 15:04:05 MST"))
	}
	if n := s.Len(); n > 0 {
		fmt.Fprintf(&b, "Span: %s\n", formatDuration(s.T[n-1]-s.T[0]))
	}

	if len(r.Windows) == 0 {
		b.WriteString("\nNo activity windows resolved.\n")
		return b.String()
	}

	b.WriteString("\nActivity Windows\n")
	for _, w := range r.Windows {
		day, err := r.Daytime(w.Name)
		if err != nil || len(day) == 0 {
			fmt.Fprintf(&b, "- %-10s | empty\n", w.Name)
			continue
		}
		dur, _ := r.Duration(w.Name)
		_, values, _ := r.Windowed(w.Name)
		fmt.Fprintf(
			&b,
			"- %-10s | %s-%s | %8s | %6d samples | mean %s\n",
			w.Name,
			day[0].Format("15:04:05"),
			day[len(day)-1].Format("15:04:05"),
			formatDuration(dur),
			w.Len(),
			formatMeans(channelMeans(values)),
		)
	}
	if longest, err := r.Longest(); err == nil {
		fmt.Fprintf(&b, "Longest window: %s\n", longest.Name)
	}
	return b.String()
}

func channelMeans(values [][]float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	means := make([]float64, len(values[0]))
	col := make([]float64, len(values))
	for c := range means {
		for i, row := range values {
			col[i] = row[c]
		}
		means[c] = FiniteAverage(col)
	}
	return means
}

func formatMeans(means []float64) string {
	parts := make([]string, len(means))
	for i, m := range means {
		if math.IsNaN(m) {
			parts[i] = "n/a"
			continue
		}
		parts[i] = fmt.Sprintf("%.3f", m)
	}
	return strings.Join(parts, " / ")
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "0s"
	}
	s := int(math.Round(seconds))
	h := s / 3600
	m := (s % 3600) / 60
	sec := s % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, sec)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, sec)
	}
	return fmt.Sprintf("%ds", sec)
}
