package model

import (
	"errors"
	"fmt"
	"time"
)

// FiveTuple is the address/port/protocol identity of a flow or packet, as
// recorded (not canonicalised).
type FiveTuple struct {
	SrcAddr  string
	DstAddr  string
	Protocol string
	SrcPort  int
	DstPort  int
}

// Flow is a ground-truth traffic record together with the verdict rolled
// up from the per-packet predictions.
type Flow struct {
	FiveTuple
	// Start and Stop bound the flow's inclusive window in Unix seconds.
	Start          int64
	Stop           int64
	TrueLabel      Label
	PredictedLabel Label
}

// Validate checks the invariants a Flow must hold before it is indexed.
func (f *Flow) Validate() error {
	if f.SrcAddr == "" || f.DstAddr == "" {
		return errors.New("flow has an empty endpoint address")
	}
	if f.SrcPort < 0 || f.DstPort < 0 {
		return fmt.Errorf("flow has a negative port (%d, %d)", f.SrcPort, f.DstPort)
	}
	if f.Start > f.Stop {
		return fmt.Errorf("flow window is inverted: start %d > stop %d", f.Start, f.Stop)
	}
	return nil
}

// Contains reports whether t falls inside the flow's inclusive window.
func (f *Flow) Contains(t float64) bool {
	return float64(f.Start) <= t && t <= float64(f.Stop)
}

// Width is the length of the flow's window in seconds.
func (f *Flow) Width() int64 {
	return f.Stop - f.Start
}

// PredictionRow is one packet-level classifier verdict.
type PredictionRow struct {
	FiveTuple
	Timestamp float64
	Label     Label
	// Line is the 1-based line of the row in its source, for diagnostics.
	Line int
}

// CorrelationStats counts what happened to the inputs of a run.
type CorrelationStats struct {
	// FlowsRejected counts ground-truth records that never reached the
	// index.
	FlowsRejected   uint64  `json:"flows_rejected"`
	RowsRead        uint64  `json:"rows_read"`
	RowsMalformed   uint64  `json:"rows_malformed"`
	RowsUnmatched   uint64  `json:"rows_unmatched"`
	RowsOutOfWindow uint64  `json:"rows_out_of_window"`
	RowsMatched     uint64  `json:"rows_matched"`
	LabelWrites     uint64  `json:"label_writes"`
	ClockOffset     float64 `json:"clock_offset"`
}

// Summary is the flow-level evaluation of the predicted labels against the
// true labels, with Attack as the positive class.
type Summary struct {
	Flows         int `json:"flows"`
	TruePositive  int `json:"true_positive"`
	FalsePositive int `json:"false_positive"`
	TrueNegative  int `json:"true_negative"`
	FalseNegative int `json:"false_negative"`
	// UnsetAttack and UnsetNormal count flows no prediction row reached,
	// split by their true label.
	UnsetAttack int     `json:"unset_attack"`
	UnsetNormal int     `json:"unset_normal"`
	Accuracy    float64 `json:"accuracy"`
	Precision   float64 `json:"precision"`
	Recall      float64 `json:"recall"`
	F1          float64 `json:"f1"`
}

// Snapshot is the read-only result of a run handed to writers.
type Snapshot struct {
	RunID     string
	CreatedAt time.Time
	Flows     []Flow
	Stats     CorrelationStats
	Summary   Summary
}
