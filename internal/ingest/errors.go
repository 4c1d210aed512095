// Package ingest holds what the flow and prediction readers share.
package ingest

import (
	"Go2FlowEval/internal/model"
	"fmt"
)

// RowError reports a single unusable record. It always matches
// model.ErrMalformedRow under errors.Is, so consumers can skip the record
// and carry on.
type RowError struct {
	Line int
	Err  error
}

// NewRowError wraps err for the record at line.
func NewRowError(line int, err error) *RowError {
	return &RowError{Line: line, Err: err}
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() []error {
	return []error{model.ErrMalformedRow, e.Err}
}
