package vm

import (
	"math"
	"strconv"
)

// ValueType identifies the type of value stored in the Value struct
type ValueType uint8

const (
	ValNil ValueType = iota
	ValBool
	ValNumber
	ValString
)

var valueTypeNames = [...]string{
	ValNil:    "nil",
	ValBool:   "bool",
	ValNumber: "number",
	ValString: "string",
}

func (t ValueType) String() string {
	if int(t) < len(valueTypeNames) {
		return valueTypeNames[t]
	}
	return "unknown"
}

// Value is a stack-allocated tagged union.
// Numbers and booleans live in Data; strings are immutable Go strings.
type Value struct {
	Type ValueType `cbor:"1,keyasint"`
	Data uint64    `cbor:"2,keyasint,omitempty"` // float64 bits, or bool (0/1)
	Str  string    `cbor:"3,keyasint,omitempty"`
}

// Constructors

func NilVal() Value {
	return Value{Type: ValNil}
}

func BoolVal(v bool) Value {
	var data uint64
	if v {
		data = 1
	}
	return Value{Type: ValBool, Data: data}
}

func NumberVal(v float64) Value {
	return Value{Type: ValNumber, Data: math.Float64bits(v)}
}

func StringVal(s string) Value {
	return Value{Type: ValString, Str: s}
}

// Accessors

func (v Value) AsBool() bool {
	return v.Data == 1
}

func (v Value) AsNumber() float64 {
	return math.Float64frombits(v.Data)
}

func (v Value) AsString() string {
	return v.Str
}

// Type checking helpers

func (v Value) IsNil() bool    { return v.Type == ValNil }
func (v Value) IsBool() bool   { return v.Type == ValBool }
func (v Value) IsNumber() bool { return v.Type == ValNumber }
func (v Value) IsString() bool { return v.Type == ValString }

// IsFalsey reports whether v counts as false in a condition. Only nil and
// false do; 0 and "" are truthy.
func (v Value) IsFalsey() bool {
	return v.Type == ValNil || (v.Type == ValBool && !v.AsBool())
}

// Equals compares structurally. Values of different types are never equal.
func (v Value) Equals(other Value) bool {
	if v.Type != other.Type {
		return false
	}
	switch v.Type {
	case ValNil:
		return true
	case ValBool:
		return v.Data == other.Data
	case ValNumber:
		// IEEE comparison, so NaN != NaN and 0 == -0
		return v.AsNumber() == other.AsNumber()
	case ValString:
		return v.Str == other.Str
	default:
		return false
	}
}

// Inspect returns the canonical text form used by print and the disassembler.
func (v Value) Inspect() string {
	switch v.Type {
	case ValNil:
		return "nil"
	case ValBool:
		return strconv.FormatBool(v.AsBool())
	case ValNumber:
		return formatNumber(v.AsNumber())
	case ValString:
		return v.Str
	default:
		return "<?>"
	}
}

func (v Value) String() string {
	return v.Inspect()
}

func formatNumber(n float64) string {
	switch {
	case math.IsInf(n, 1):
		return "inf"
	case math.IsInf(n, -1):
		return "-inf"
	case math.IsNaN(n):
		return "nan"
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}
