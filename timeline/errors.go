package timeline

import "fmt"

// MalformedHeaderError reports a missing or unreadable timestamp/rate header.
type MalformedHeaderError struct {
	Line  int
	Field string // "timestamp" or "rate"
	Value string
	Err   error
}

func (e *MalformedHeaderError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("malformed header line %d: missing %s", e.Line, e.Field)
	}
	if e.Err != nil {
		return fmt.Sprintf("malformed header line %d: %s %q: %v", e.Line, e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("malformed header line %d: invalid %s %q", e.Line, e.Field, e.Value)
}

func (e *MalformedHeaderError) Unwrap() error { return e.Err }

// ValueParseError reports a body row that does not hold the expected numeric fields.
type ValueParseError struct {
	Line int
	Text string
	Want int
	Got  int
	Err  error
}

func (e *ValueParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("line %d: parse %q: %v", e.Line, e.Text, e.Err)
	}
	return fmt.Sprintf("line %d: expected %d fields, got %d", e.Line, e.Want, e.Got)
}

func (e *ValueParseError) Unwrap() error { return e.Err }
