package clock

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNotCalibrated is returned when a timestamp is adjusted before the
	// offset is known.
	ErrNotCalibrated = errors.New("clock alignment has not been calibrated")
	// ErrAlreadyCalibrated is returned when a second calibration is attempted.
	ErrAlreadyCalibrated = errors.New("clock alignment is already calibrated")
	// ErrNonFinite is returned for NaN or infinite timestamps.
	ErrNonFinite = errors.New("timestamp is not finite")
)

// Alignment maps packet timestamps onto the time base of the ground-truth
// flows. The offset is derived once, from the first prediction row:
//
//	offset   = firstRaw - reference
//	adjusted = raw - offset
//
// so the first row lands exactly on the reference instant (the capture
// start recorded with the ground truth).
type Alignment struct {
	reference  float64
	offset     float64
	calibrated bool
}

// New creates an uncalibrated alignment for the given reference instant,
// expressed in the flow time base (Unix seconds).
func New(reference float64) *Alignment {
	return &Alignment{reference: reference}
}

// Calibrate fixes the offset from the first row's raw timestamp.
func (a *Alignment) Calibrate(firstRaw float64) error {
	if a.calibrated {
		return fmt.Errorf("calibrate with %f: %w", firstRaw, ErrAlreadyCalibrated)
	}
	if !Finite(firstRaw) {
		return fmt.Errorf("calibrate with %f: %w", firstRaw, ErrNonFinite)
	}
	a.offset = firstRaw - a.reference
	a.calibrated = true
	return nil
}

// Adjust converts a raw packet timestamp into the flow time base.
func (a *Alignment) Adjust(raw float64) (float64, error) {
	if !a.calibrated {
		return 0, ErrNotCalibrated
	}
	return raw - a.offset, nil
}

// Finite reports whether t can be placed on the time axis.
func Finite(t float64) bool {
	return !math.IsNaN(t) && !math.IsInf(t, 0)
}

// Calibrated reports whether the offset is known.
func (a *Alignment) Calibrated() bool { return a.calibrated }

// Offset returns the calibrated offset, or zero before calibration.
func (a *Alignment) Offset() float64 { return a.offset }

// Reference returns the reference instant.
func (a *Alignment) Reference() float64 { return a.reference }
