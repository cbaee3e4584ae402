package peakcache

import (
	"fmt"

	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/lucasjlepore/empatica-analyzer/segment"
)

// segmentRow is one segment of one activity. Entry level fields repeat on
// every row. An activity without segments is kept as a single row with
// SegmentIndex -1.
type segmentRow struct {
	Recording     string    `parquet:"name=recording, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Rate          float64   `parquet:"name=rate, type=DOUBLE"`
	SegmentWidth  int64     `parquet:"name=segment_width, type=INT64"`
	Baseline      string    `parquet:"name=baseline, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	ActivityIndex int32     `parquet:"name=activity_index, type=INT32"`
	Activity      string    `parquet:"name=activity, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	SegmentIndex  int32     `parquet:"name=segment_index, type=INT32"`
	Start         int64     `parquet:"name=start, type=INT64"`
	End           int64     `parquet:"name=end, type=INT64"`
	PeakCount     int64     `parquet:"name=peak_count, type=INT64"`
	MaxValue      float64   `parquet:"name=max_value, type=DOUBLE"`
	PeakIndices   []int64   `parquet:"name=peak_indices, type=INT64, repetitiontype=REPEATED"`
	PeakValues    []float64 `parquet:"name=peak_values, type=DOUBLE, repetitiontype=REPEATED"`
}

// Encode serializes e as a snappy-compressed parquet object. An entry
// without activities has no rows to carry its metadata and is rejected.
func Encode(e *segment.Entry) ([]byte, error) {
	if len(e.Activities) == 0 {
		return nil, fmt.Errorf("entry for %s has no activities to encode", e.Recording)
	}
	fw := buffer.NewBufferFile()
	pw, err := writer.NewParquetWriter(fw, new(segmentRow), 4)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	write := func(row segmentRow) error {
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			return err
		}
		return nil
	}
	for ai, ap := range e.Activities {
		base := segmentRow{
			Recording:     e.Recording,
			Rate:          e.Rate,
			SegmentWidth:  int64(e.Config.Width),
			Baseline:      e.Config.Baseline,
			ActivityIndex: int32(ai),
			Activity:      ap.Activity,
		}
		if len(ap.Segments) == 0 {
			row := base
			row.SegmentIndex = -1
			if err := write(row); err != nil {
				return nil, err
			}
			continue
		}
		next := 0
		for si, s := range ap.Segments {
			row := base
			row.SegmentIndex = int32(si)
			row.Start, row.End = int64(s.Start), int64(s.End)
			row.PeakCount = int64(s.PeakCount)
			row.MaxValue = s.MaxValue
			if next+s.PeakCount > len(ap.PeakIndices) || next+s.PeakCount > len(ap.PeakValues) {
				_ = pw.WriteStop()
				return nil, fmt.Errorf("encode %s/%s: segment %d claims %d peaks beyond the %d collected",
					e.Recording, ap.Activity, si, s.PeakCount, len(ap.PeakIndices))
			}
			row.PeakIndices = make([]int64, s.PeakCount)
			for k := range row.PeakIndices {
				row.PeakIndices[k] = int64(ap.PeakIndices[next+k])
			}
			row.PeakValues = append([]float64(nil), ap.PeakValues[next:next+s.PeakCount]...)
			next += s.PeakCount
			if err := write(row); err != nil {
				return nil, err
			}
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}

// Decode parses an object written by Encode. Structural problems are
// reported as *CorruptError.
func Decode(key string, data []byte) (entry *segment.Entry, err error) {
	// The reader panics on some malformed footers.
	defer func() {
		if r := recover(); r != nil {
			entry, err = nil, &CorruptError{Key: key, Reason: fmt.Sprintf("decode panic: %v", r)}
		}
	}()
	fr := buffer.NewBufferFileFromBytes(data)
	pr, err := reader.NewParquetReader(fr, new(segmentRow), 4)
	if err != nil {
		return nil, &CorruptError{Key: key, Reason: "open parquet", Err: err}
	}
	defer pr.ReadStop()

	rows := make([]segmentRow, int(pr.GetNumRows()))
	if len(rows) == 0 {
		return nil, &CorruptError{Key: key, Reason: "no rows"}
	}
	if err := pr.Read(&rows); err != nil {
		return nil, &CorruptError{Key: key, Reason: "read rows", Err: err}
	}

	first := rows[0]
	e := &segment.Entry{
		Recording: first.Recording,
		Rate:      first.Rate,
		Config:    segment.Config{Width: segment.Width(first.SegmentWidth), Baseline: first.Baseline},
	}
	current := int32(-1)
	for i, row := range rows {
		if row.Recording != e.Recording || row.SegmentWidth != first.SegmentWidth || row.Baseline != first.Baseline {
			return nil, &CorruptError{Key: key, Reason: fmt.Sprintf("row %d disagrees on entry metadata", i)}
		}
		if row.ActivityIndex != current {
			if row.ActivityIndex != current+1 {
				return nil, &CorruptError{Key: key, Reason: fmt.Sprintf("row %d: activity index %d out of order", i, row.ActivityIndex)}
			}
			current = row.ActivityIndex
			e.Activities = append(e.Activities, segment.ActivityPeaks{
				Activity:    row.Activity,
				Segments:    []segment.Segment{},
				PeakIndices: []int{},
				PeakValues:  []float64{},
			})
		}
		ap := &e.Activities[len(e.Activities)-1]
		if row.Activity != ap.Activity {
			return nil, &CorruptError{Key: key, Reason: fmt.Sprintf("row %d: activity %q inside %q", i, row.Activity, ap.Activity)}
		}
		if row.SegmentIndex < 0 {
			continue
		}
		if int(row.SegmentIndex) != len(ap.Segments) {
			return nil, &CorruptError{Key: key, Reason: fmt.Sprintf("row %d: segment index %d out of order", i, row.SegmentIndex)}
		}
		if row.End <= row.Start || int64(len(row.PeakIndices)) != row.PeakCount || len(row.PeakIndices) != len(row.PeakValues) {
			return nil, &CorruptError{Key: key, Reason: fmt.Sprintf("row %d: inconsistent segment %s/%d", i, row.Activity, row.SegmentIndex)}
		}
		ap.Segments = append(ap.Segments, segment.Segment{
			Start:     int(row.Start),
			End:       int(row.End),
			PeakCount: int(row.PeakCount),
			MaxValue:  row.MaxValue,
		})
		for k, idx := range row.PeakIndices {
			ap.PeakIndices = append(ap.PeakIndices, int(idx))
			ap.PeakValues = append(ap.PeakValues, row.PeakValues[k])
		}
	}
	return e, nil
}
