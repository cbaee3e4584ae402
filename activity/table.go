package activity

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Table is a parsed timing spreadsheet: one row per (subject, date) session.
// The first two columns identify the session, the boundary columns are found
// by header name.
type Table struct {
	schedule Schedule
	sessions map[sessionKey]session
	// unreadable collects rows whose date could not be parsed, per subject.
	unreadable map[string][]error
}

// session holds parsed bounds, or the error that made its row unusable.
type session struct {
	bounds []time.Duration
	err    error
}

type sessionKey struct {
	subject string
	date    string
}

// LoadTimingTable reads the active sheet of the workbook at path.
func LoadTimingTable(path string, s Schedule) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open timing table: %w", err)
	}
	defer f.Close()
	return parseWorkbook(f, s)
}

// ReadTimingTable reads the active sheet of a workbook stream.
func ReadTimingTable(r io.Reader, s Schedule) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open timing table: %w", err)
	}
	defer f.Close()
	return parseWorkbook(f, s)
}

func parseWorkbook(f *excelize.File, s Schedule) (*Table, error) {
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("timing table sheet %q is empty", sheet)
	}

	columns := s.Columns()
	mapping := make([]int, len(columns))
	for i, name := range columns {
		mapping[i] = -1
		for j, cell := range rows[0] {
			if strings.TrimSpace(cell) == name {
				mapping[i] = j
				break
			}
		}
		if mapping[i] < 0 {
			return nil, fmt.Errorf("timing table is missing column %q", name)
		}
	}

	t := NewTable(s)
	for r, row := range rows[1:] {
		if len(row) < 2 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		subject := strings.TrimSpace(row[0])
		date, err := parseDate(row[1])
		if err != nil {
			t.unreadable[subject] = append(t.unreadable[subject], fmt.Errorf("timing table row %d: date: %w", r+2, err))
			continue
		}
		key := sessionKey{subject: subject, date: date}
		if _, ok := t.sessions[key]; ok {
			continue
		}
		t.sessions[key] = parseBounds(row, r+2, columns, mapping)
	}
	return t, nil
}

// parseBounds reads one session row. A bad cell only affects this session.
func parseBounds(row []string, line int, columns []string, mapping []int) session {
	bounds := make([]time.Duration, len(columns))
	for i, col := range mapping {
		if col >= len(row) || strings.TrimSpace(row[col]) == "" {
			return session{err: fmt.Errorf("timing table row %d: column %q is empty", line, columns[i])}
		}
		d, err := parseClock(row[col])
		if err != nil {
			return session{err: fmt.Errorf("timing table row %d: column %q: %w", line, columns[i], err)}
		}
		bounds[i] = d
	}
	return session{bounds: bounds}
}

// NewTable returns an empty table for s.
func NewTable(s Schedule) *Table {
	return &Table{
		schedule:   s,
		sessions:   make(map[sessionKey]session),
		unreadable: make(map[string][]error),
	}
}

// Add records timings for a session. An existing session keeps its first
// timings and Add reports false.
func (t *Table) Add(tm Timings) bool {
	key := sessionKey{subject: tm.Subject, date: tm.Date}
	if _, ok := t.sessions[key]; ok {
		return false
	}
	t.sessions[key] = session{bounds: append([]time.Duration(nil), tm.Bounds...)}
	return true
}

// Lookup returns the bounds for an exact (subject, date) match. Rows with
// missing or unparseable cells fail here, for their own session only.
func (t *Table) Lookup(subject, date string) (Timings, error) {
	sess, ok := t.sessions[sessionKey{subject: subject, date: date}]
	if !ok {
		if bad := t.unreadable[subject]; len(bad) > 0 {
			return Timings{}, fmt.Errorf("no timings for subject %s on %s: %w", subject, date, errors.Join(bad...))
		}
		return Timings{}, fmt.Errorf("no timings for subject %s on %s", subject, date)
	}
	if sess.err != nil {
		return Timings{}, fmt.Errorf("timings for subject %s on %s: %w", subject, date, sess.err)
	}
	return Timings{Subject: subject, Date: date, Bounds: append([]time.Duration(nil), sess.bounds...)}, nil
}

// Schedule returns the schedule the table was read with.
func (t *Table) Schedule() Schedule { return t.schedule }

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"01-02-06",
	"1/2/06",
	"1/2/2006",
}

func parseDate(cell string) (string, error) {
	cell = strings.TrimSpace(cell)
	if serial, err := strconv.ParseFloat(cell, 64); err == nil {
		ts, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return "", err
		}
		return ts.Format("2006-01-02"), nil
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, cell); err == nil {
			return ts.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("unrecognized date %q", cell)
}

var clockLayouts = []string{
	"15:04:05",
	"15:04",
	"3:04:05 PM",
	"3:04 PM",
	"2006-01-02 15:04:05",
}

// parseClock accepts an Excel day fraction or a textual time of day.
func parseClock(cell string) (time.Duration, error) {
	cell = strings.TrimSpace(cell)
	if v, err := strconv.ParseFloat(cell, 64); err == nil {
		_, frac := math.Modf(v)
		return (time.Duration(math.Round(frac*86400)) * time.Second), nil
	}
	for _, layout := range clockLayouts {
		if ts, err := time.Parse(layout, cell); err == nil {
			return sinceMidnight(ts), nil
		}
	}
	return 0, fmt.Errorf("unrecognized time %q", cell)
}
