package segment

import (
	"fmt"

	empatica "github.com/lucasjlepore/empatica-analyzer"
	"github.com/lucasjlepore/empatica-analyzer/activity"
)

// Baseline returns the mean of every channel value inside w.
func Baseline(values [][]float64, w activity.Window) (float64, error) {
	if w.Start < 0 || w.End > len(values) || w.Start >= w.End {
		return 0, fmt.Errorf("baseline window [%d, %d) outside %d samples", w.Start, w.End, len(values))
	}
	sum := 0.0
	count := 0
	for _, row := range values[w.Start:w.End] {
		for _, v := range row {
			sum += v
			count++
		}
	}
	if count == 0 {
		return 0, fmt.Errorf("baseline window [%d, %d) holds no values", w.Start, w.End)
	}
	return sum / float64(count), nil
}

// Subtract returns a copy of values with b removed from every channel.
func Subtract(values [][]float64, b float64) [][]float64 {
	out := make([][]float64, len(values))
	for i, row := range values {
		shifted := make([]float64, len(row))
		for j, v := range row {
			shifted[j] = v - b
		}
		out[i] = shifted
	}
	return out
}

// ApplyBaseline corrects the whole recording by the mean of the named
// activity. Every activity is shifted, not only the baseline window.
func ApplyBaseline(rec *empatica.Recording, name string) (*empatica.Recording, float64, error) {
	w, err := rec.Window(name)
	if err != nil {
		return nil, 0, fmt.Errorf("baseline: %w", err)
	}
	b, err := Baseline(rec.Stream.Values, w)
	if err != nil {
		return nil, 0, err
	}
	return rec.WithStream(rec.Stream.WithValues(Subtract(rec.Stream.Values, b))), b, nil
}
