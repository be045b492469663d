package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// ValueKind distinguishes the runtime shapes a field value can take.
type ValueKind uint8

const (
	KindAbsent ValueKind = iota
	KindText
	KindNumber
	KindBool
	KindList
)

func (k ValueKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	default:
		return "absent"
	}
}

// FieldValue is a tagged union over everything a row field can hold.
// Only the member selected by Kind is meaningful.
type FieldValue struct {
	Kind  ValueKind
	Str   string   // Kind == KindText
	Num   float64  // Kind == KindNumber
	Flag  bool     // Kind == KindBool
	Items []string // Kind == KindList
}

// AbsentValue returns the "not stored" sentinel.
func AbsentValue() FieldValue { return FieldValue{} }

// TextValue wraps a string.
func TextValue(s string) FieldValue { return FieldValue{Kind: KindText, Str: s} }

// NumberValue wraps a number.
func NumberValue(f float64) FieldValue { return FieldValue{Kind: KindNumber, Num: f} }

// BoolValue wraps a boolean.
func BoolValue(b bool) FieldValue { return FieldValue{Kind: KindBool, Flag: b} }

// ListValue wraps an ordered list of ids or option strings.
func ListValue(items ...string) FieldValue {
	if items == nil {
		items = []string{}
	}
	return FieldValue{Kind: KindList, Items: items}
}

// IsAbsent reports whether the value is the "not stored" sentinel.
func (v FieldValue) IsAbsent() bool { return v.Kind == KindAbsent }

// Equal reports deep equality of two values.
func (v FieldValue) Equal(o FieldValue) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindText:
		return v.Str == o.Str
	case KindNumber:
		return v.Num == o.Num
	case KindBool:
		return v.Flag == o.Flag
	case KindList:
		return slices.Equal(v.Items, o.Items)
	}
	return true
}

// Clone returns a copy that shares no backing array with v.
func (v FieldValue) Clone() FieldValue {
	if v.Kind == KindList {
		v.Items = slices.Clone(v.Items)
		if v.Items == nil {
			v.Items = []string{}
		}
	}
	return v
}

// Raw returns the plain Go value used for JSON/YAML storage.
func (v FieldValue) Raw() any {
	switch v.Kind {
	case KindText:
		return v.Str
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Flag
	case KindList:
		if v.Items == nil {
			return []string{}
		}
		return v.Items
	}
	return nil
}

func (v FieldValue) MarshalJSON() ([]byte, error) {
	if v.Kind == KindNumber && (math.IsNaN(v.Num) || math.IsInf(v.Num, 0)) {
		return []byte("null"), nil
	}
	return json.Marshal(v.Raw())
}

func (v *FieldValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = FromRaw(raw)
	return nil
}

func (v FieldValue) String() string {
	switch v.Kind {
	case KindText:
		return v.Str
	case KindNumber:
		return formatNumber(v.Num)
	case KindBool:
		return strconv.FormatBool(v.Flag)
	case KindList:
		return strings.Join(v.Items, ",")
	}
	return ""
}

// FromRaw infers a FieldValue from an untyped decoded value without
// consulting a column type.
func FromRaw(raw any) FieldValue {
	switch x := raw.(type) {
	case nil:
		return AbsentValue()
	case FieldValue:
		return x
	case string:
		return TextValue(x)
	case bool:
		return BoolValue(x)
	case []string:
		return ListValue(slices.Clone(x)...)
	case []any:
		items := make([]string, 0, len(x))
		for _, e := range x {
			if e == nil {
				continue
			}
			items = append(items, fmt.Sprint(e))
		}
		return ListValue(items...)
	}
	if f, ok := toFloat(raw); ok {
		return NumberValue(f)
	}
	return TextValue(fmt.Sprint(raw))
}

// DecodeValue shapes a raw stored value into the runtime form dictated by
// the column type. Malformed input degrades to a safe default rather than
// failing.
func DecodeValue(raw any, t ColumnType) FieldValue {
	v := FromRaw(raw)
	if v.IsAbsent() {
		return v
	}
	switch t {
	case ColTypeText, ColTypeSelect, ColTypeURL, ColTypeDate:
		return TextValue(v.String())
	case ColTypeNumber:
		switch v.Kind {
		case KindNumber:
			if !finite(v.Num) {
				return NumberValue(0)
			}
			return v
		case KindBool:
			if v.Flag {
				return NumberValue(1)
			}
			return NumberValue(0)
		case KindText:
			if strings.TrimSpace(v.Str) == "" {
				return AbsentValue()
			}
		}
		return NumberValue(AsNumber(v))
	case ColTypeCheckbox:
		return BoolValue(AsBool(v))
	case ColTypeMultiSelect, ColTypeRelation:
		return ListValue(AsList(v)...)
	}
	return AbsentValue()
}

// CoerceValue reshapes an already-typed value for a column type.
func CoerceValue(v FieldValue, t ColumnType) FieldValue {
	return DecodeValue(v.Raw(), t)
}

func toFloat(raw any) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, finite(n)
	case float32:
		return float64(n), finite(float64(n))
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil && finite(f)
	}
	return 0, false
}

func formatNumber(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
