package timeline

import (
	"fmt"
	"sort"
	"strings"
)

// Clock computes the relative time of the next sample. t holds the offsets
// already assigned to previous samples.
type Clock func(row []float64, t []float64, rate float64) float64

// Picker extracts the channel values kept for a parsed row.
type Picker func(row []float64) []float64

// Format describes one sensor export layout.
type Format struct {
	Name string
	// Channels is the width of the value vector kept per sample.
	Channels int
	// RawColumns is the number of comma separated fields on every body row.
	RawColumns int

	HasTimestampHeader bool
	HasRateHeader      bool

	Clock Clock
	Pick  Picker
}

// RateClock spaces samples 1/rate seconds apart starting at 0.
func RateClock(_ []float64, t []float64, rate float64) float64 {
	return float64(len(t)) / rate
}

// RowClock reads the elapsed time verbatim from column col of the row.
func RowClock(col int) Clock {
	return func(row []float64, _ []float64, _ float64) float64 {
		return row[col]
	}
}

// AllColumns keeps every field of the row.
func AllColumns(row []float64) []float64 {
	return row
}

// Column keeps a single field of the row.
func Column(col int) Picker {
	return func(row []float64) []float64 {
		return []float64{row[col]}
	}
}

func rateFormat(name string, channels int) Format {
	return Format{
		Name:               name,
		Channels:           channels,
		RawColumns:         channels,
		HasTimestampHeader: true,
		HasRateHeader:      true,
		Clock:              RateClock,
		Pick:               AllColumns,
	}
}

var (
	// EDA is skin conductance in microsiemens, usually 4 Hz.
	EDA = rateFormat("EDA", 1)
	// HR is the averaged heart rate in bpm, usually 1 Hz.
	HR = rateFormat("HR", 1)
	// TEMP is skin temperature in degrees Celsius.
	TEMP = rateFormat("TEMP", 1)
	// BVP is the photoplethysmograph signal.
	BVP = rateFormat("BVP", 1)
	// ACC is the 3-axis accelerometer, usually 32 Hz.
	ACC = rateFormat("ACC", 3)
	// IBI carries inter-beat intervals: no rate header, each row is
	// "elapsed_seconds,interval_seconds".
	IBI = Format{
		Name:               "IBI",
		Channels:           1,
		RawColumns:         2,
		HasTimestampHeader: true,
		HasRateHeader:      false,
		Clock:              RowClock(0),
		Pick:               Column(1),
	}
)

var formats = map[string]Format{
	"EDA":  EDA,
	"HR":   HR,
	"TEMP": TEMP,
	"BVP":  BVP,
	"ACC":  ACC,
	"IBI":  IBI,
}

// FormatByName returns the predefined format with the given name (case-insensitive).
func FormatByName(name string) (Format, error) {
	f, ok := formats[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		names := make([]string, 0, len(formats))
		for k := range formats {
			names = append(names, k)
		}
		sort.Strings(names)
		return Format{}, fmt.Errorf("unknown sensor format %q (expected one of %s)", name, strings.Join(names, "|"))
	}
	return f, nil
}

func (f Format) validate() error {
	if f.Channels <= 0 || f.RawColumns <= 0 {
		return fmt.Errorf("format %s: channel and column counts must be positive", f.Name)
	}
	if f.Clock == nil || f.Pick == nil {
		return fmt.Errorf("format %s: clock and picker are required", f.Name)
	}
	return nil
}
