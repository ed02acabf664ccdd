package ml

import (
	"fmt"

	"incomeserve/observation"
)

// Supported column dtypes.
const (
	dtypeInt      = "int"
	dtypeCategory = "category"
)

// CoercionError reports a value that could not be shaped into the
// column type the fitted pipeline expects. It is an internal fault,
// distinct from a validation failure: validation has already accepted
// the observation by the time coercion runs.
type CoercionError struct {
	Column string
	Value  interface{}
	Reason string
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("coerce column %s (value %v): %s", e.Column, e.Value, e.Reason)
}

// Row selects and orders the observation's fields into the artifact's
// expected column order, coercing each to its declared dtype.
// Categorical values become their vocabulary index.
func (a *Artifact) Row(obs *observation.Observation) ([]float64, error) {
	row := make([]float64, len(a.Columns))
	for i, column := range a.Columns {
		raw, ok := obs.Value(column)
		if !ok {
			return nil, &CoercionError{Column: column, Reason: "observation has no such field"}
		}
		switch a.DTypes[column] {
		case dtypeInt:
			value, ok := raw.(int)
			if !ok {
				return nil, &CoercionError{Column: column, Value: raw, Reason: "expected integer"}
			}
			row[i] = float64(value)
		case dtypeCategory:
			value, ok := raw.(string)
			if !ok {
				return nil, &CoercionError{Column: column, Value: raw, Reason: "expected string"}
			}
			idx := categoryIndex(a.Categories[column], value)
			if idx < 0 {
				return nil, &CoercionError{Column: column, Value: raw, Reason: "not in pipeline vocabulary"}
			}
			row[i] = float64(idx)
		default:
			return nil, &CoercionError{Column: column, Reason: "unsupported dtype " + a.DTypes[column]}
		}
	}
	return row, nil
}

func categoryIndex(vocab []string, value string) int {
	for i, v := range vocab {
		if v == value {
			return i
		}
	}
	return -1
}
