package importer

import "fmt"

// Status is the terminal state of one row.
type Status int

const (
	// Committed rows changed the database.
	Committed Status = iota
	// Skipped rows committed without changes, typically duplicates.
	Skipped
	// Invalid rows failed validation and never opened a transaction.
	Invalid
	// Failed rows were rolled back.
	Failed
)

func (s Status) String() string {
	switch s {
	case Committed:
		return "committed"
	case Skipped:
		return "skipped"
	case Invalid:
		return "invalid"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is the result of processing one row. Err is set for Invalid and
// Failed outcomes.
type Outcome struct {
	Status  Status
	Row     int
	Message string
	Err     error
}

// Kind returns the error kind of a failed or invalid outcome.
func (o Outcome) Kind() ErrorKind {
	return Classify(o.Err)
}

// IsError reports whether the row counts as an error.
func (o Outcome) IsError() bool {
	return o.Status == Invalid || o.Status == Failed
}

// Commit returns a Committed outcome.
func Commit(format string, args ...any) Outcome {
	return Outcome{Status: Committed, Message: fmt.Sprintf(format, args...)}
}

// Skip returns a Skipped outcome.
func Skip(format string, args ...any) Outcome {
	return Outcome{Status: Skipped, Message: fmt.Sprintf(format, args...)}
}
