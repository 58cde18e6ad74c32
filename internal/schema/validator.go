package schema

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// RowValues is the read side of a parsed row.
type RowValues interface {
	Get(col string) string
	Has(col string) bool
}

// ValidationResult lists every problem found in a row.
type ValidationResult struct {
	Valid  bool     `json:"is_valid"`
	Errors []string `json:"errors"`
}

func result(errs []string) ValidationResult {
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool {
	return validate.Var(s, "required,email") == nil
}

// ValidateHeaders checks that required columns are present and flags unexpected columns
func ValidateHeaders(headers []string, schema *Schema) (warnings []string, errors []string) {
	headerSet := make(map[string]bool)
	for _, h := range headers {
		headerSet[h] = true
	}

	for _, col := range schema.Required {
		if !headerSet[col] {
			errors = append(errors, fmt.Sprintf("required field '%s' not found in headers", col))
		}
	}

	for _, header := range headers {
		if !schema.knows(header) {
			warnings = append(warnings, fmt.Sprintf("unexpected column '%s' found in CSV; it will be ignored", header))
		}
	}

	return warnings, errors
}

// ValidateRow checks required fields first and stops there if any are
// missing. Otherwise every email and date problem is collected.
func ValidateRow(row RowValues, schema *Schema) ValidationResult {
	var errs []string
	for _, col := range schema.Required {
		switch {
		case !row.Has(col):
			errs = append(errs, fmt.Sprintf("required field '%s' is missing", col))
		case row.Get(col) == "":
			errs = append(errs, fmt.Sprintf("required field '%s' is empty", col))
		}
	}
	if len(errs) > 0 {
		return result(errs)
	}

	if col := schema.EmailColumn; col != "" {
		if v := row.Get(col); v != "" && !ValidEmail(v) {
			errs = append(errs, fmt.Sprintf("field '%s' is not a valid email, got '%s'", col, v))
		}
	}

	start, startOK, startErr := parseDate(row, schema.StartDateColumn, schema.DateLayout)
	if startErr != "" {
		errs = append(errs, startErr)
	}
	end, endOK, endErr := parseDate(row, schema.EndDateColumn, schema.DateLayout)
	if endErr != "" {
		errs = append(errs, endErr)
	}
	if startOK && endOK && end.Before(start) {
		errs = append(errs, fmt.Sprintf("end date '%s' (%s) is before start date '%s' (%s)",
			schema.EndDateColumn, row.Get(schema.EndDateColumn),
			schema.StartDateColumn, row.Get(schema.StartDateColumn)))
	}

	return result(errs)
}

// ParseDate parses a date cell with the schema layout. Empty cells yield nil.
func (s *Schema) ParseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(s.layout(), value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Schema) layout() string {
	if s.DateLayout == "" {
		return DefaultDateLayout
	}
	return s.DateLayout
}

func parseDate(row RowValues, col, layout string) (time.Time, bool, string) {
	if col == "" {
		return time.Time{}, false, ""
	}
	v := row.Get(col)
	if v == "" {
		return time.Time{}, false, ""
	}
	if layout == "" {
		layout = DefaultDateLayout
	}
	t, err := time.Parse(layout, v)
	if err != nil {
		return time.Time{}, false, fmt.Sprintf("field '%s' must be a date in %s format, got '%s'", col, describeLayout(layout), v)
	}
	return t, true, ""
}

func describeLayout(layout string) string {
	if layout == DefaultDateLayout {
		return "DD-MM-YY"
	}
	return layout
}
