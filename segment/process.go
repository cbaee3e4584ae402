package segment

import (
	"fmt"

	empatica "github.com/lucasjlepore/empatica-analyzer"
	"github.com/lucasjlepore/empatica-analyzer/activity"
	"github.com/lucasjlepore/empatica-analyzer/timeline"
)

// Segment summarizes one segment of an activity. Start and End are sample
// indices relative to the activity start.
type Segment struct {
	Start     int     `json:"start"`
	End       int     `json:"end"`
	PeakCount int     `json:"peak_count"`
	MaxValue  float64 `json:"max_value"`
}

// Len returns the segment length in samples.
func (s Segment) Len() int { return s.End - s.Start }

// ActivityPeaks holds the peaks of one activity. PeakIndices are relative to
// the activity start.
type ActivityPeaks struct {
	Activity    string    `json:"activity"`
	Segments    []Segment `json:"segments"`
	PeakIndices []int     `json:"peak_indices"`
	PeakValues  []float64 `json:"peak_values"`
}

// Entry is the peak detection result of one recording under one Config.
type Entry struct {
	Recording  string          `json:"recording"`
	Rate       float64         `json:"rate"`
	Config     Config          `json:"config"`
	Activities []ActivityPeaks `json:"activities"`
}

// Activity returns the peaks of the named activity.
func (e *Entry) Activity(name string) (*ActivityPeaks, error) {
	for i := range e.Activities {
		if e.Activities[i].Activity == name {
			return &e.Activities[i], nil
		}
	}
	return nil, &activity.UnknownActivityError{Name: name}
}

// Processor shapes activity slices for a PeakFinder and collects its output.
type Processor struct {
	Finder PeakFinder
	// Channel selects the value column; a negative value uses the vector magnitude.
	Channel int
}

// Process runs peak detection on every activity window of rec.
func (p *Processor) Process(rec *empatica.Recording, cfg Config) (*Entry, error) {
	if p.Finder == nil {
		return nil, fmt.Errorf("peak finder is required")
	}
	if len(rec.Windows) == 0 {
		return nil, fmt.Errorf("recording %s has no activity windows", rec.ID)
	}
	if cfg.Baseline != "" {
		corrected, _, err := ApplyBaseline(rec, cfg.Baseline)
		if err != nil {
			return nil, err
		}
		rec = corrected
	}

	rate := EffectiveRate(rec.Stream)
	entry := &Entry{
		Recording:  rec.ID,
		Rate:       rate,
		Config:     cfg,
		Activities: make([]ActivityPeaks, 0, len(rec.Windows)),
	}
	for _, w := range rec.Windows {
		_, values, err := rec.Windowed(w.Name)
		if err != nil {
			return nil, err
		}
		series, err := empatica.Channel(values, p.Channel)
		if err != nil {
			return nil, fmt.Errorf("activity %s: %w", w.Name, err)
		}
		found, err := p.Finder.FindPeaks(series, rate, cfg.Width)
		if err != nil {
			return nil, fmt.Errorf("find peaks for %s/%s: %w", rec.ID, w.Name, err)
		}
		ap, err := collect(w.Name, found, len(series))
		if err != nil {
			return nil, fmt.Errorf("find peaks for %s/%s: %w", rec.ID, w.Name, err)
		}
		entry.Activities = append(entry.Activities, ap)
	}
	return entry, nil
}

func collect(name string, found []SegmentPeaks, n int) (ActivityPeaks, error) {
	ap := ActivityPeaks{
		Activity:    name,
		Segments:    make([]Segment, 0, len(found)),
		PeakIndices: []int{},
		PeakValues:  []float64{},
	}
	for _, sp := range found {
		if sp.Start < 0 || sp.End <= sp.Start || sp.End > n {
			return ActivityPeaks{}, fmt.Errorf("segment [%d, %d) outside activity of %d samples", sp.Start, sp.End, n)
		}
		if len(sp.Peaks) != len(sp.PeakValues) {
			return ActivityPeaks{}, fmt.Errorf("segment [%d, %d): %d peaks but %d values", sp.Start, sp.End, len(sp.Peaks), len(sp.PeakValues))
		}
		for i, idx := range sp.Peaks {
			ap.PeakIndices = append(ap.PeakIndices, sp.Start+idx)
			ap.PeakValues = append(ap.PeakValues, sp.PeakValues[i])
		}
		ap.Segments = append(ap.Segments, Segment{
			Start:     sp.Start,
			End:       sp.End,
			PeakCount: len(sp.Peaks),
			MaxValue:  sp.MaxValue,
		})
	}
	return ap, nil
}

// EffectiveRate returns the declared rate, or the mean sampling rate for
// streams whose rows carry their own time.
func EffectiveRate(s *timeline.Stream) float64 {
	if s.Rate > 0 {
		return s.Rate
	}
	n := s.Len()
	if n < 2 || s.T[n-1] <= s.T[0] {
		return 0
	}
	return float64(n-1) / (s.T[n-1] - s.T[0])
}
