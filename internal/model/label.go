package model

import (
	"fmt"
	"strings"
)

// Label is a traffic class.
type Label int8

const (
	// LabelUnset marks a flow no prediction has reached yet.
	LabelUnset Label = iota - 1
	LabelNormal
	LabelAttack
)

// String returns the record-file spelling of the label. Unset renders as
// "Nothing".
func (l Label) String() string {
	switch l {
	case LabelNormal:
		return "Normal"
	case LabelAttack:
		return "Attack"
	default:
		return "Nothing"
	}
}

// IsSet reports whether the label carries a concrete class.
func (l Label) IsSet() bool {
	return l == LabelNormal || l == LabelAttack
}

// ParseLabel accepts "Normal"/"Attack" in any case and the numeric classes
// "0"/"1" used by the classifier output.
func ParseLabel(s string) (Label, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal", "0":
		return LabelNormal, nil
	case "attack", "1":
		return LabelAttack, nil
	default:
		return LabelUnset, fmt.Errorf("unknown label %q", s)
	}
}
