package model

import "errors"

// ErrMalformedRow marks a prediction row that cannot be used. Row sources
// wrap it; the correlator skips such rows and keeps going.
var ErrMalformedRow = errors.New("malformed prediction row")

// FlowSource yields ground-truth flows. Next returns io.EOF when the
// source is exhausted.
type FlowSource interface {
	Next() (Flow, error)
}

// RowSource yields prediction rows in file order. Next returns io.EOF when
// the stream is exhausted and an error wrapping ErrMalformedRow for a row
// that should be skipped.
type RowSource interface {
	Next() (PredictionRow, error)
}
