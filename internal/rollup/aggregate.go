// Package rollup aggregates values reachable through relation columns.
package rollup

import (
	"fmt"
	"math"
	"strconv"

	"notedb/internal/domain"
)

const (
	// Placeholder is shown when an aggregate has nothing to aggregate or the
	// schema cannot resolve the rollup.
	Placeholder = "-"
	// ErrorPlaceholder is shown when the target rows could not be loaded.
	ErrorPlaceholder = "error"
)

// State classifies a rollup result.
type State uint8

const (
	StateOK State = iota
	StateEmpty
	StateError
)

// Result is a computed rollup cell.
type Result struct {
	State   State             `json:"state"`
	Value   domain.FieldValue `json:"value"` // number for numeric aggregates; absent otherwise
	Display string            `json:"display"`
}

func okNumber(f float64, display string) Result {
	return Result{State: StateOK, Value: domain.NumberValue(f), Display: display}
}

func empty() Result { return Result{State: StateEmpty, Display: Placeholder} }

func failed() Result { return Result{State: StateError, Display: ErrorPlaceholder} }

// Aggregate reduces the target values of the referenced rows. ids is the
// number of ids in the relation field; values holds the target column value
// of every referenced row that exists.
//
// Numeric rules: sum and average read non-numeric present values as 0;
// average divides by the number of present (non-empty) values; min and max
// only consider values that parse as numbers.
func Aggregate(fn domain.AggregateFunction, values []domain.FieldValue, ids int) Result {
	switch fn {
	case domain.AggCount:
		return okNumber(float64(ids), strconv.Itoa(ids))

	case domain.AggSum:
		var sum float64
		for _, v := range values {
			sum += domain.AsNumber(v)
		}
		return okNumber(sum, formatNumber(sum))

	case domain.AggAverage:
		var sum float64
		n := 0
		for _, v := range values {
			if domain.IsEmpty(v) {
				continue
			}
			sum += domain.AsNumber(v)
			n++
		}
		if n == 0 {
			return empty()
		}
		avg := sum / float64(n)
		return okNumber(avg, formatNumber(math.Round(avg*100)/100))

	case domain.AggMin, domain.AggMax:
		found := false
		var best float64
		for _, v := range values {
			if !domain.IsNumeric(v) {
				continue
			}
			f := domain.AsNumber(v)
			if !found || (fn == domain.AggMin && f < best) || (fn == domain.AggMax && f > best) {
				best = f
				found = true
			}
		}
		if !found {
			return empty()
		}
		return okNumber(best, formatNumber(best))

	case domain.AggPercentChecked:
		if ids == 0 {
			return empty()
		}
		checked := 0
		for _, v := range values {
			if domain.AsBool(v) {
				checked++
			}
		}
		frac := float64(checked) / float64(ids)
		return okNumber(frac, fmt.Sprintf("%d%%", int(math.Round(frac*100))))
	}
	return empty()
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
