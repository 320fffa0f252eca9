package services

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/username/trackfolio/backend/src/models"
)

// ValidationError carries every structural problem of a rejected file, in file order.
type ValidationError struct {
	Diagnostics []models.Diagnostic
}

func (e *ValidationError) Error() string {
	return e.Combined().Error()
}

// Combined folds the diagnostics into a single multierror.
func (e *ValidationError) Combined() *multierror.Error {
	var result *multierror.Error
	for _, d := range e.Diagnostics {
		result = multierror.Append(result, errors.New(d.String()))
	}
	if result == nil {
		result = &multierror.Error{Errors: []error{errors.New("file failed validation")}}
	}
	result.ErrorFormat = func(errs []error) string {
		if len(errs) == 1 {
			return fmt.Sprintf("file failed validation: %s", errs[0])
		}
		return fmt.Sprintf("file failed validation with %d errors, first: %s", len(errs), errs[0])
	}
	return result
}

// Messages renders the diagnostics for API responses.
func (e *ValidationError) Messages() []string {
	return models.ValidationResult{Errors: e.Diagnostics}.Messages()
}

// RowParseError aborts a batch when a structurally valid row still cannot be interpreted.
type RowParseError struct {
	Line int
	Err  error
}

func (e *RowParseError) Error() string {
	return e.Diagnostic().String()
}

func (e *RowParseError) Unwrap() error { return e.Err }

func (e *RowParseError) Diagnostic() models.Diagnostic {
	return models.Diagnostic{Line: e.Line, Message: fmt.Sprintf("Could not parse row: %v", e.Err)}
}
