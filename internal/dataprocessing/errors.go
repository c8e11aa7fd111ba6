package dataprocessing

import (
	"errors"
	"fmt"
	"strings"

	"ncbproc/pkg/contracts/domain"
)

// Sentinel errors for errors.Is checks. A *ProcessingError matches the
// sentinel of the same kind.
var (
	ErrSheetNotFound       = &ProcessingError{Kind: domain.KindSheetNotFound}
	ErrMalformedHeader     = &ProcessingError{Kind: domain.KindMalformedHeader}
	ErrInsufficientColumns = &ProcessingError{Kind: domain.KindInsufficientColumns}
)

// ErrUnreadableWorkbook wraps failures to open the input as an xlsx file.
var ErrUnreadableWorkbook = errors.New("workbook could not be opened")

// ProcessingError is a run-level failure. It carries enough detail to let a
// person fix the input workbook.
type ProcessingError struct {
	Kind      domain.ErrorKind `json:"kind"`
	Sheet     string           `json:"sheet,omitempty"`
	HeaderRow int              `json:"header_row,omitempty"`
	Available []string         `json:"available,omitempty"`
	Found     int              `json:"found,omitempty"`
	Required  int              `json:"required,omitempty"`
	Missing   []domain.Role    `json:"missing,omitempty"`
	Resolved  domain.ColumnMap `json:"resolved,omitempty"`
	Message   string           `json:"message"`
	Cause     error            `json:"-"`
}

// Error implements the error interface
func (e *ProcessingError) Error() string {
	if e == nil {
		return "unknown processing error"
	}
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *ProcessingError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches any *ProcessingError with the same kind.
func (e *ProcessingError) Is(target error) bool {
	var pe *ProcessingError
	if !errors.As(target, &pe) || pe == nil || e == nil {
		return false
	}
	return pe.Kind == e.Kind
}

// KindOf returns the kind of a *ProcessingError in err's chain.
func KindOf(err error) (domain.ErrorKind, bool) {
	var pe *ProcessingError
	if errors.As(err, &pe) && pe != nil {
		return pe.Kind, true
	}
	return "", false
}

// IsInputError reports whether err is caused by the content of the input
// workbook rather than by the environment.
func IsInputError(err error) bool {
	if errors.Is(err, ErrUnreadableWorkbook) {
		return true
	}
	kind, ok := KindOf(err)
	return ok && kind.Fatal()
}

func newSheetNotFound(requested string, available []string) *ProcessingError {
	what := "no sheet matches the selection rule"
	if requested != "" {
		what = fmt.Sprintf("sheet %q not found", requested)
	}
	return &ProcessingError{
		Kind:      domain.KindSheetNotFound,
		Sheet:     requested,
		Available: available,
		Message:   fmt.Sprintf("%s (available: %s)", what, strings.Join(available, ", ")),
	}
}

func newMalformedHeader(sheet string, headerRow, found, required int, detail string) *ProcessingError {
	return &ProcessingError{
		Kind:      domain.KindMalformedHeader,
		Sheet:     sheet,
		HeaderRow: headerRow,
		Found:     found,
		Required:  required,
		Message: fmt.Sprintf("sheet %q: expected header at row %d: %s",
			sheet, headerRow+1, detail),
	}
}

func newInsufficientColumns(sheet string, resolved domain.ColumnMap, missing []domain.Role, detail string) *ProcessingError {
	return &ProcessingError{
		Kind:     domain.KindInsufficientColumns,
		Sheet:    sheet,
		Missing:  missing,
		Resolved: resolved,
		Message:  fmt.Sprintf("sheet %q: %s", sheet, detail),
	}
}
