package timeline

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Stream is one recording's samples on an absolute timeline. It is built once
// and never modified; derived streams are new values.
type Stream struct {
	Format string
	// Rate is the declared sample rate in Hz, 0 for per-row time sources.
	Rate  float64
	Start time.Time

	T       []float64
	Daytime []time.Time
	Values  [][]float64
}

// Len returns the number of samples.
func (s *Stream) Len() int { return len(s.T) }

// Channels returns the value vector width.
func (s *Stream) Channels() int {
	if len(s.Values) == 0 {
		return 0
	}
	return len(s.Values[0])
}

// WithValues returns a copy of the stream carrying different values on the
// same timeline.
func (s *Stream) WithValues(values [][]float64) *Stream {
	out := *s
	out.Values = values
	return &out
}

// ReadFile opens path and builds a stream with Build.
func ReadFile(path string, f Format, loc *time.Location) (*Stream, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sensor file: %w", err)
	}
	defer file.Close()

	s, err := Build(file, f, loc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return s, nil
}

// Build parses a sensor export. The header (initial timestamp, then rate) is
// read according to f; every following non-empty line is one sample.
func Build(r io.Reader, f Format, loc *time.Location) (*Stream, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	s := &Stream{
		Format:  f.Name,
		T:       make([]float64, 0, 4096),
		Daytime: make([]time.Time, 0, 4096),
		Values:  make([][]float64, 0, 4096),
	}
	haveStart := !f.HasTimestampHeader
	haveRate := !f.HasRateHeader
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		switch {
		case !haveStart:
			sec, err := leadingInt(text)
			if err != nil {
				return nil, &MalformedHeaderError{Line: line, Field: "timestamp", Value: text, Err: err}
			}
			s.Start = time.Unix(sec, 0).In(loc)
			haveStart = true
		case !haveRate:
			hz, err := leadingInt(text)
			if err != nil {
				return nil, &MalformedHeaderError{Line: line, Field: "rate", Value: text, Err: err}
			}
			if hz <= 0 {
				return nil, &MalformedHeaderError{Line: line, Field: "rate", Value: text}
			}
			s.Rate = float64(hz)
			haveRate = true
		default:
			row, err := parseRow(text, f.RawColumns)
			if err != nil {
				err.Line = line
				return nil, err
			}
			t := f.Clock(row, s.T, s.Rate)
			s.T = append(s.T, t)
			s.Daytime = append(s.Daytime, s.Start.Add(time.Duration(t*float64(time.Second))))
			s.Values = append(s.Values, f.Pick(row))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan sensor data: %w", err)
	}
	if !haveStart {
		return nil, &MalformedHeaderError{Line: line + 1, Field: "timestamp"}
	}
	if !haveRate {
		return nil, &MalformedHeaderError{Line: line + 1, Field: "rate"}
	}
	return s, nil
}

// leadingInt parses the integer part of a header value such as
// "1656424800.000000" or "1656424800.000000, IBI".
func leadingInt(text string) (int64, error) {
	end := strings.IndexAny(text, ".,")
	if end >= 0 {
		text = text[:end]
	}
	return strconv.ParseInt(strings.TrimSpace(text), 10, 64)
}

func parseRow(text string, want int) ([]float64, *ValueParseError) {
	fields := strings.Split(text, ",")
	if len(fields) != want {
		return nil, &ValueParseError{Text: text, Want: want, Got: len(fields)}
	}
	row := make([]float64, len(fields))
	for i, field := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, &ValueParseError{Text: text, Want: want, Got: len(fields), Err: err}
		}
		row[i] = v
	}
	return row, nil
}
