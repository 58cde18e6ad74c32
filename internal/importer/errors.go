package importer

import (
	"errors"
	"fmt"

	"github.com/research-office/research-registry/internal/entity"
	"github.com/research-office/research-registry/internal/ingest"
	"github.com/research-office/research-registry/internal/repository"
)

// ErrorKind classifies import failures for reporting and handling.
type ErrorKind int

const (
	// KindUnexpected is anything not classified below. Logged at ERROR.
	KindUnexpected ErrorKind = iota
	// KindSourceRead means the source could not be opened or decoded. It is
	// the only fatal kind: the run stops.
	KindSourceRead
	// KindRowValidation means the row failed schema checks or CSV parsing.
	KindRowValidation
	// KindEntityResolution means row data could not be turned into entities.
	KindEntityResolution
	// KindStorageIntegrity means the database rejected a write.
	KindStorageIntegrity
)

// String returns the string representation of ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindSourceRead:
		return "source_read"
	case KindRowValidation:
		return "row_validation"
	case KindEntityResolution:
		return "entity_resolution"
	case KindStorageIntegrity:
		return "storage_integrity"
	default:
		return "unexpected"
	}
}

// ErrNoCSVEntries is returned for archives without any CSV file.
var ErrNoCSVEntries = errors.New("archive contains no CSV files")

// ImportError wraps an error with its classification and the row it
// happened on. Row is zero for source-level failures.
type ImportError struct {
	Kind ErrorKind
	Row  int
	Op   string
	Err  error
}

// Error implements the error interface
func (e *ImportError) Error() string {
	msg := e.Err.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Row > 0 {
		return fmt.Sprintf("row %d: %s", e.Row, msg)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *ImportError) Unwrap() error {
	return e.Err
}

func sourceError(op string, err error) *ImportError {
	return &ImportError{Kind: KindSourceRead, Op: op, Err: err}
}

func rowError(row int, op string, err error) *ImportError {
	return &ImportError{Kind: Classify(err), Row: row, Op: op, Err: err}
}

// Classify returns the kind of err. Errors already classified keep their
// kind.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnexpected
	}

	var ie *ImportError
	if errors.As(err, &ie) {
		return ie.Kind
	}

	var re *ingest.RowError
	switch {
	case errors.As(err, &re):
		return KindRowValidation
	case errors.Is(err, entity.ErrResolution):
		return KindEntityResolution
	case errors.Is(err, repository.ErrUniqueViolation),
		errors.Is(err, repository.ErrConstraint):
		return KindStorageIntegrity
	case errors.Is(err, ingest.ErrEmptySource), errors.Is(err, ErrNoCSVEntries):
		return KindSourceRead
	}
	return KindUnexpected
}

// IsFatal reports whether err must stop the run.
func IsFatal(err error) bool {
	return err != nil && Classify(err) == KindSourceRead
}
