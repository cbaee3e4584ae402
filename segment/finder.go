package segment

import (
	"math"
	"time"
)

// SegmentPeaks is the peak finder output for one segment. Peak indices are
// relative to Start.
type SegmentPeaks struct {
	Start      int
	End        int
	Peaks      []int
	PeakValues []float64
	// MaxValue is the largest peak value, NaN when the segment has no peak.
	MaxValue float64
}

// PeakFinder detects peaks in a single-channel series split into segments of
// the given width.
type PeakFinder interface {
	FindPeaks(values []float64, rate float64, width Width) ([]SegmentPeaks, error)
}

// PeakFinderFunc adapts a function to PeakFinder.
type PeakFinderFunc func(values []float64, rate float64, width Width) ([]SegmentPeaks, error)

// FindPeaks calls f.
func (f PeakFinderFunc) FindPeaks(values []float64, rate float64, width Width) ([]SegmentPeaks, error) {
	return f(values, rate, width)
}

// ThresholdFinder marks local maxima that rise at least MinAmplitude above
// the lowest value since the previous peak, and lie at least Refractory after it.
type ThresholdFinder struct {
	MinAmplitude float64
	Refractory   time.Duration
}

// NewThresholdFinder returns a finder tuned for skin conductance responses.
func NewThresholdFinder() *ThresholdFinder {
	return &ThresholdFinder{
		MinAmplitude: 0.01, // microsiemens
		Refractory:   time.Second,
	}
}

// FindPeaks implements PeakFinder. Maxima are judged against their
// neighbours in the whole series, so a peak on a segment's first or last
// sample still counts, and the count does not depend on width.
func (f *ThresholdFinder) FindPeaks(values []float64, rate float64, width Width) ([]SegmentPeaks, error) {
	gap := 0
	if rate > 0 {
		gap = int(math.Ceil(f.Refractory.Seconds() * rate))
	}
	peaks := f.scan(values, gap)

	bounds := Segments(len(values), width)
	out := make([]SegmentPeaks, 0, len(bounds))
	k := 0
	for _, b := range bounds {
		sp := SegmentPeaks{
			Start:      b[0],
			End:        b[1],
			Peaks:      []int{},
			PeakValues: []float64{},
			MaxValue:   math.NaN(),
		}
		for ; k < len(peaks) && peaks[k] < b[1]; k++ {
			v := values[peaks[k]]
			sp.Peaks = append(sp.Peaks, peaks[k]-b[0])
			sp.PeakValues = append(sp.PeakValues, v)
			if math.IsNaN(sp.MaxValue) || v > sp.MaxValue {
				sp.MaxValue = v
			}
		}
		out = append(out, sp)
	}
	return out, nil
}

// scan returns the absolute indices of accepted peaks in order.
func (f *ThresholdFinder) scan(values []float64, gap int) []int {
	var peaks []int
	if len(values) < 3 {
		return peaks
	}
	trough := values[0]
	last := -1
	for i := 1; i < len(values)-1; i++ {
		v := values[i]
		if v < trough {
			trough = v
		}
		if !(v > values[i-1] && v >= values[i+1]) {
			continue
		}
		if v-trough < f.MinAmplitude {
			continue
		}
		if last >= 0 && i-last < gap {
			continue
		}
		peaks = append(peaks, i)
		last = i
		trough = v
	}
	return peaks
}
