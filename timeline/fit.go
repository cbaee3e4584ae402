package timeline

import (
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/tormoder/fit"
)

// FIT record fields that can be turned into a stream.
const (
	FITHeartRate = "heart_rate"
	FITPower     = "power"
	FITCadence   = "cadence"
)

// FromFIT builds a single-channel stream from the record messages of a FIT
// activity file. Each record carries its own timestamp, so the stream has no
// declared rate; records with an invalid value for channel are skipped.
func FromFIT(r io.Reader, channel string, loc *time.Location) (*Stream, error) {
	extract, err := fitExtractor(channel)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}

	decoded, err := fit.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode FIT file: %w", err)
	}
	activity, err := decoded.Activity()
	if err != nil {
		return nil, fmt.Errorf("activity FIT expected: %w", err)
	}

	records := make([]*fit.RecordMsg, 0, len(activity.Records))
	for _, rec := range activity.Records {
		if rec == nil || rec.Timestamp.IsZero() || fit.IsBaseTime(rec.Timestamp) {
			continue
		}
		records = append(records, rec)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})

	s := &Stream{Format: "FIT:" + channel}
	for _, rec := range records {
		v, ok := extract(rec)
		if !ok {
			continue
		}
		ts := rec.Timestamp.In(loc)
		if s.Start.IsZero() {
			s.Start = ts
		}
		if n := len(s.Daytime); n > 0 && !ts.After(s.Daytime[n-1]) {
			// Duplicate timestamps would break the strictly increasing timeline.
			continue
		}
		s.T = append(s.T, ts.Sub(s.Start).Seconds())
		s.Daytime = append(s.Daytime, ts)
		s.Values = append(s.Values, []float64{v})
	}
	if len(s.T) == 0 {
		return nil, fmt.Errorf("no %s samples in FIT records", channel)
	}
	return s, nil
}

func fitExtractor(channel string) (func(*fit.RecordMsg) (float64, bool), error) {
	switch channel {
	case FITHeartRate:
		return func(rec *fit.RecordMsg) (float64, bool) {
			if rec.HeartRate == math.MaxUint8 {
				return 0, false
			}
			return float64(rec.HeartRate), true
		}, nil
	case FITPower:
		return func(rec *fit.RecordMsg) (float64, bool) {
			if rec.Power == math.MaxUint16 {
				return 0, false
			}
			return float64(rec.Power), true
		}, nil
	case FITCadence:
		return func(rec *fit.RecordMsg) (float64, bool) {
			if rec.Cadence == math.MaxUint8 {
				return 0, false
			}
			return float64(rec.Cadence), true
		}, nil
	default:
		return nil, fmt.Errorf("unsupported FIT channel %q", channel)
	}
}
