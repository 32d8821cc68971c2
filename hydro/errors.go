package hydro

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCapabilityUnavailable is returned when the engine lacks the spatial
// analysis capability. Nothing has been computed when it is returned.
var ErrCapabilityUnavailable = errors.New("spatial analysis capability unavailable")

// FieldError is a validation failure attached to one input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationError carries every field error found for an input.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Error()
	}
	return "invalid parameters: " + strings.Join(msgs, "; ")
}

// StepError reports the pipeline step whose engine or persist call failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
