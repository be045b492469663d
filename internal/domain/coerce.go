package domain

import (
	"math"
	"strconv"
	"strings"
)

// DefaultValue returns the value a freshly created row holds for a column
// of type t. Rollups (and unknown types) are never stored.
func DefaultValue(t ColumnType) FieldValue {
	switch t {
	case ColTypeText, ColTypeDate, ColTypeSelect, ColTypeURL:
		return TextValue("")
	case ColTypeNumber:
		return NumberValue(0)
	case ColTypeCheckbox:
		return BoolValue(false)
	case ColTypeMultiSelect, ColTypeRelation:
		return ListValue()
	}
	return AbsentValue()
}

// CoerceForDisplay renders a value as the string shown in a cell.
// It never panics; absent or malformed input renders as "".
func CoerceForDisplay(v FieldValue, t ColumnType) string {
	if v.IsAbsent() {
		return ""
	}
	switch t {
	case ColTypeCheckbox:
		return strconv.FormatBool(AsBool(v))
	case ColTypeMultiSelect, ColTypeRelation:
		return strings.Join(AsList(v), ",")
	}
	return v.String()
}

// AsNumber parses v best-effort. Anything non-numeric is 0.
func AsNumber(v FieldValue) float64 {
	switch v.Kind {
	case KindNumber:
		if !finite(v.Num) {
			return 0
		}
		return v.Num
	case KindBool:
		if v.Flag {
			return 1
		}
		return 0
	case KindText:
		f, ok := ParseNumber(v.Str)
		if !ok {
			return 0
		}
		return f
	}
	return 0
}

// ParseNumber parses a trimmed decimal string, reporting whether it was
// numeric. NaN and infinities are not numbers here.
func ParseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || !finite(f) {
		return 0, false
	}
	return f, true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// IsNumeric reports whether v can be read as a number without defaulting.
func IsNumeric(v FieldValue) bool {
	switch v.Kind {
	case KindNumber:
		return finite(v.Num)
	case KindText:
		_, ok := ParseNumber(v.Str)
		return ok
	}
	return false
}

// AsBool reads v as a checkbox state.
func AsBool(v FieldValue) bool {
	switch v.Kind {
	case KindBool:
		return v.Flag
	case KindNumber:
		return v.Num != 0
	case KindText:
		switch strings.ToLower(strings.TrimSpace(v.Str)) {
		case "true", "yes", "1":
			return true
		}
	}
	return false
}

// AsList reads v as an ordered list of strings. A text value is split on
// commas, dropping blanks.
func AsList(v FieldValue) []string {
	switch v.Kind {
	case KindList:
		return v.Items
	case KindText:
		if v.Str == "" {
			return nil
		}
		var out []string
		for _, p := range strings.Split(v.Str, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	case KindNumber, KindBool:
		return []string{v.String()}
	}
	return nil
}

// IsEmpty reports whether a field counts as empty for filtering and
// aggregation: absent, an empty string, or an empty list.
func IsEmpty(v FieldValue) bool {
	switch v.Kind {
	case KindAbsent:
		return true
	case KindText:
		return strings.TrimSpace(v.Str) == ""
	case KindList:
		return len(v.Items) == 0
	}
	return false
}

// DatePrefix returns the YYYY-MM-DD prefix of a stored date string.
func DatePrefix(s string) string {
	if len(s) > 10 {
		return s[:10]
	}
	return s
}
