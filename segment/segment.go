package segment

import (
	"fmt"
	"math"
)

// Width is a segment length in samples. Unbounded means one segment spanning
// the whole activity.
type Width int

// Unbounded disables segmentation.
const Unbounded Width = 0

// WidthFromSeconds converts a duration to samples at rate. Non-positive
// durations are Unbounded.
func WidthFromSeconds(seconds, rate float64) (Width, error) {
	if seconds <= 0 {
		return Unbounded, nil
	}
	if rate <= 0 {
		return Unbounded, fmt.Errorf("segment width of %gs needs a positive sample rate", seconds)
	}
	w := int(math.Round(seconds * rate))
	if w < 1 {
		w = 1
	}
	return Width(w), nil
}

func (w Width) String() string {
	if w <= Unbounded {
		return "unbounded"
	}
	return fmt.Sprintf("%d samples", int(w))
}

// Config is the segmentation requested for peak detection. It must match
// between a cached result and a new request.
type Config struct {
	Width Width `json:"segment_width" yaml:"segment_width"`
	// Baseline names the activity whose mean is subtracted from the whole
	// recording before detection; empty disables the correction.
	Baseline string `json:"baseline,omitempty" yaml:"baseline,omitempty"`
}

// Segments chunks n samples into [k*w, min((k+1)*w, n)) ranges. The last
// range holds the remainder and may be shorter.
func Segments(n int, w Width) [][2]int {
	if n <= 0 {
		return nil
	}
	if w <= Unbounded || int(w) >= n {
		return [][2]int{{0, n}}
	}
	out := make([][2]int, 0, n/int(w)+1)
	for start := 0; start < n; start += int(w) {
		end := start + int(w)
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}
