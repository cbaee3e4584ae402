package empatica

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lucasjlepore/empatica-analyzer/activity"
	"github.com/lucasjlepore/empatica-analyzer/timeline"
)

// Recording is one sensor file of one subject on one date, with its activity
// windows resolved against the session timings.
type Recording struct {
	// ID is the source file name; it identifies the recording in caches.
	ID      string
	Subject string
	Date    string

	Stream  *timeline.Stream
	Windows []activity.Window
}

// Open reads a sensor export and resolves its windows from the timing table.
// The file name must follow "<subject>_<date>_...".
func Open(path string, f timeline.Format, table *activity.Table, loc *time.Location) (*Recording, error) {
	stream, err := timeline.ReadFile(path, f, loc)
	if err != nil {
		return nil, err
	}
	return attach(path, stream, table)
}

// OpenFIT reads one record field of a FIT activity file as a recording.
func OpenFIT(path, channel string, table *activity.Table, loc *time.Location) (*Recording, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open FIT file: %w", err)
	}
	defer file.Close()

	stream, err := timeline.FromFIT(file, channel, loc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return attach(path, stream, table)
}

func attach(path string, stream *timeline.Stream, table *activity.Table) (*Recording, error) {
	subject, date, err := ParseName(path)
	if err != nil {
		return nil, err
	}
	timings, err := table.Lookup(subject, date)
	if err != nil {
		return nil, err
	}
	windows, err := activity.Resolve(stream.Daytime, table.Schedule(), timings)
	if err != nil {
		return nil, fmt.Errorf("resolve windows for %s: %w", filepath.Base(path), err)
	}
	rec := NewRecording(filepath.Base(path), stream, windows)
	rec.Subject, rec.Date = subject, date
	return rec, nil
}

// NewRecording bundles an already resolved stream.
func NewRecording(id string, stream *timeline.Stream, windows []activity.Window) *Recording {
	rec := &Recording{ID: id, Stream: stream, Windows: windows}
	if subject, date, err := ParseName(id); err == nil {
		rec.Subject, rec.Date = subject, date
	}
	return rec
}

// ParseName extracts subject id and date from "<subject>_<date>_<sensor>.csv".
func ParseName(path string) (subject, date string, err error) {
	parts := strings.Split(filepath.Base(path), "_")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("file name %q does not follow <subject>_<date>_<sensor>", filepath.Base(path))
	}
	return parts[0], strings.TrimSuffix(parts[1], filepath.Ext(parts[1])), nil
}

// WithStream returns a copy of the recording on a different stream with the
// same windows.
func (r *Recording) WithStream(s *timeline.Stream) *Recording {
	out := *r
	out.Stream = s
	return &out
}

// Window returns the named window; activity.All spans the whole stream.
func (r *Recording) Window(name string) (activity.Window, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == activity.All {
		return activity.Window{Name: activity.All, Start: 0, End: r.Stream.Len()}, nil
	}
	return activity.Find(r.Windows, key)
}

// Windowed returns relative times and values restricted to the named window.
func (r *Recording) Windowed(name string) ([]float64, [][]float64, error) {
	w, err := r.Window(name)
	if err != nil {
		return nil, nil, err
	}
	return r.Stream.T[w.Start:w.End], r.Stream.Values[w.Start:w.End], nil
}

// Daytime returns the absolute timestamps of the named window.
func (r *Recording) Daytime(name string) ([]time.Time, error) {
	w, err := r.Window(name)
	if err != nil {
		return nil, err
	}
	return r.Stream.Daytime[w.Start:w.End], nil
}

// Duration returns the elapsed seconds between the first and last sample of the window.
func (r *Recording) Duration(name string) (float64, error) {
	t, _, err := r.Windowed(name)
	if err != nil {
		return 0, err
	}
	if len(t) == 0 {
		return 0, nil
	}
	return t[len(t)-1] - t[0], nil
}

// Longest returns the resolved window with the longest duration.
func (r *Recording) Longest() (activity.Window, error) {
	if len(r.Windows) == 0 {
		return activity.Window{}, fmt.Errorf("recording %s has no activity windows", r.ID)
	}
	best := r.Windows[0]
	bestDur := -1.0
	for _, w := range r.Windows {
		d, err := r.Duration(w.Name)
		if err != nil {
			return activity.Window{}, err
		}
		if d > bestDur {
			best, bestDur = w, d
		}
	}
	return best, nil
}

// Channel returns one channel of values, or the vector magnitude when
// channel is negative.
func Channel(values [][]float64, channel int) ([]float64, error) {
	out := make([]float64, len(values))
	for i, row := range values {
		if channel < 0 {
			sum := 0.0
			for _, v := range row {
				sum += v * v
			}
			out[i] = math.Sqrt(sum)
			continue
		}
		if channel >= len(row) {
			return nil, fmt.Errorf("channel %d out of range (width %d)", channel, len(row))
		}
		out[i] = row[channel]
	}
	return out, nil
}

// Average returns the mean of the finite values, 0 when there are none.
func Average(values []float64) float64 {
	total := 0.0
	count := 0
	for _, v := range values {
		if !IsFinite(v) {
			continue
		}
		total += v
		count++
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// FiniteAverage is Average that reports NaN when no finite value exists.
func FiniteAverage(values []float64) float64 {
	for _, v := range values {
		if IsFinite(v) {
			return Average(values)
		}
	}
	return math.NaN()
}

// MaxValue returns the largest finite value and false when there is none.
func MaxValue(values []float64) (float64, bool) {
	max := 0.0
	found := false
	for _, v := range values {
		if !IsFinite(v) {
			continue
		}
		if !found || v > max {
			max = v
			found = true
		}
	}
	return max, found
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
