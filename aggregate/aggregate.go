// Package aggregate reduces peak entries to per-activity statistics.
//
// Every level is a mean of means: segments are averaged within a recording,
// recordings are averaged within a subject and subjects are averaged last, so
// a recording with many segments or a subject with many sessions does not
// dominate the result.
package aggregate

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	empatica "github.com/lucasjlepore/empatica-analyzer"
	"github.com/lucasjlepore/empatica-analyzer/segment"
)

// Row holds the statistics of one activity.
type Row struct {
	Activity             string  `json:"activity"`
	MeanPeakCount        float64 `json:"mean_peak_count"`
	MeanSegmentDurationS float64 `json:"mean_segment_duration_s"`
	PeaksPerMinute       float64 `json:"peaks_per_minute"`
	MeanMaxPeakValue     float64 `json:"mean_max_peak_value"`
	// N is the number of recordings (or groups) averaged into the row.
	N int `json:"n"`
}

// Tuple returns (mean peak count, mean segment duration s, peaks per minute,
// mean max peak value).
func (r Row) Tuple() [4]float64 {
	return [4]float64{r.MeanPeakCount, r.MeanSegmentDurationS, r.PeaksPerMinute, r.MeanMaxPeakValue}
}

type rowJSON struct {
	Activity             string   `json:"activity"`
	MeanPeakCount        *float64 `json:"mean_peak_count"`
	MeanSegmentDurationS *float64 `json:"mean_segment_duration_s"`
	PeaksPerMinute       *float64 `json:"peaks_per_minute"`
	MeanMaxPeakValue     *float64 `json:"mean_max_peak_value"`
	N                    int      `json:"n"`
}

// MarshalJSON writes non-finite statistics as null.
func (r Row) MarshalJSON() ([]byte, error) {
	return json.Marshal(rowJSON{
		Activity:             r.Activity,
		MeanPeakCount:        finite(r.MeanPeakCount),
		MeanSegmentDurationS: finite(r.MeanSegmentDurationS),
		PeaksPerMinute:       finite(r.PeaksPerMinute),
		MeanMaxPeakValue:     finite(r.MeanMaxPeakValue),
		N:                    r.N,
	})
}

// UnmarshalJSON reads null statistics as NaN.
func (r *Row) UnmarshalJSON(data []byte) error {
	var raw rowJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Row{
		Activity:             raw.Activity,
		MeanPeakCount:        orNaN(raw.MeanPeakCount),
		MeanSegmentDurationS: orNaN(raw.MeanSegmentDurationS),
		PeaksPerMinute:       orNaN(raw.PeaksPerMinute),
		MeanMaxPeakValue:     orNaN(raw.MeanMaxPeakValue),
		N:                    raw.N,
	}
	return nil
}

func finite(v float64) *float64 {
	if !empatica.IsFinite(v) {
		return nil
	}
	return &v
}

func orNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// FromEntry computes the row of one activity of one recording.
//
// The last segment of an activity is usually shorter and is left out of the
// duration mean; an activity with a single segment uses it.
func FromEntry(e *segment.Entry, name string) (Row, error) {
	ap, err := e.Activity(name)
	if err != nil {
		return Row{}, err
	}
	if len(ap.Segments) == 0 {
		return Row{}, fmt.Errorf("recording %s: activity %s has no segments", e.Recording, name)
	}
	if e.Rate <= 0 {
		return Row{}, fmt.Errorf("recording %s: sample rate is unknown", e.Recording)
	}

	counts := make([]float64, len(ap.Segments))
	maxima := make([]float64, len(ap.Segments))
	for i, s := range ap.Segments {
		counts[i] = float64(s.PeakCount)
		maxima[i] = s.MaxValue
	}
	full := ap.Segments
	if len(full) > 1 {
		full = full[:len(full)-1]
	}
	durations := make([]float64, len(full))
	for i, s := range full {
		durations[i] = float64(s.Len()) / e.Rate
	}

	row := Row{
		Activity:             name,
		MeanPeakCount:        empatica.Average(counts),
		MeanSegmentDurationS: empatica.Average(durations),
		MeanMaxPeakValue:     empatica.FiniteAverage(maxima),
		N:                    1,
	}
	row.PeaksPerMinute = perMinute(row.MeanPeakCount, row.MeanSegmentDurationS)
	return row, nil
}

func perMinute(count, seconds float64) float64 {
	if seconds <= 0 {
		return math.NaN()
	}
	return count / seconds * 60
}

// MeanOfMeans averages rows of one activity column by column. Non-finite
// values are skipped per column. N counts the rows.
func MeanOfMeans(rows []Row) (Row, error) {
	if len(rows) == 0 {
		return Row{}, fmt.Errorf("no rows to aggregate")
	}
	name := rows[0].Activity
	cols := make([][]float64, 4)
	for _, r := range rows {
		if r.Activity != name {
			return Row{}, fmt.Errorf("cannot aggregate %s with %s", r.Activity, name)
		}
		for i, v := range r.Tuple() {
			cols[i] = append(cols[i], v)
		}
	}
	return Row{
		Activity:             name,
		MeanPeakCount:        empatica.FiniteAverage(cols[0]),
		MeanSegmentDurationS: empatica.FiniteAverage(cols[1]),
		PeaksPerMinute:       empatica.FiniteAverage(cols[2]),
		MeanMaxPeakValue:     empatica.FiniteAverage(cols[3]),
		N:                    len(rows),
	}, nil
}

// AcrossSubjects averages each subject's recordings first, then the subjects.
func AcrossSubjects(bySubject map[string][]Row) (Row, error) {
	subjects := make([]string, 0, len(bySubject))
	for s := range bySubject {
		subjects = append(subjects, s)
	}
	sort.Strings(subjects)

	means := make([]Row, 0, len(subjects))
	for _, s := range subjects {
		m, err := MeanOfMeans(bySubject[s])
		if err != nil {
			return Row{}, fmt.Errorf("subject %s: %w", s, err)
		}
		means = append(means, m)
	}
	return MeanOfMeans(means)
}

// Activities returns the rows of entries for each named activity, in order.
// Entries missing an activity are skipped for it.
func Activities(entries []*segment.Entry, names []string) (map[string][]Row, error) {
	out := make(map[string][]Row, len(names))
	for _, name := range names {
		for _, e := range entries {
			if _, err := e.Activity(name); err != nil {
				continue
			}
			row, err := FromEntry(e, name)
			if err != nil {
				return nil, err
			}
			out[name] = append(out[name], row)
		}
	}
	return out, nil
}

// LatexRow renders the row as a tabular line: label & count & duration &
// peaks per minute & max \\.
func (r Row) LatexRow(label string) string {
	var b strings.Builder
	b.WriteString(latexEscape(label))
	for _, v := range r.Tuple() {
		b.WriteString(" & ")
		if math.IsNaN(v) || math.IsInf(v, 0) {
			b.WriteString("--")
			continue
		}
		fmt.Fprintf(&b, "%.2f", v)
	}
	b.WriteString(` \\`)
	return b.String()
}

// LatexTable wraps rows in a tabular environment with a caption.
func LatexTable(caption string, labels []string, rows []Row) string {
	var b strings.Builder
	b.WriteString("\\begin{table}[h]\n\\centering\n\\begin{tabular}{lrrrr}\n\\hline\n")
	b.WriteString("Activity & Peaks & Segment (s) & Peaks/min & Max peak \\\\\n\\hline\n")
	for i, r := range rows {
		label := r.Activity
		if i < len(labels) {
			label = labels[i]
		}
		b.WriteString(r.LatexRow(label))
		b.WriteString("\n")
	}
	b.WriteString("\\hline\n\\end{tabular}\n")
	fmt.Fprintf(&b, "\\caption{%s}\n\\end{table}\n", latexEscape(caption))
	return b.String()
}

var latexReplacer = strings.NewReplacer(`\`, `\textbackslash{}`, "&", `\&`, "%", `\%`, "_", `\_`, "#", `\#`, "$", `\$`)

func latexEscape(s string) string { return latexReplacer.Replace(s) }
