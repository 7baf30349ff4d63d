package loxvm

import (
	"fmt"
	"math"
	"reflect"

	"github.com/funvibe/loxvm/internal/vm"
)

// Marshaller handles conversion between Go and script values.
type Marshaller struct{}

func NewMarshaller() *Marshaller {
	return &Marshaller{}
}

// ToValue converts a Go value to a script value. Only scalars have a script
// representation: nil, bool, the numeric kinds and string.
func (m *Marshaller) ToValue(val interface{}) (vm.Value, error) {
	if val == nil {
		return vm.NilVal(), nil
	}
	if v, ok := val.(vm.Value); ok {
		return v, nil
	}

	v := reflect.ValueOf(val)
	// Follow pointers so *int and friends marshal as their target
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return vm.NilVal(), nil
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return vm.NumberVal(float64(v.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return vm.NumberVal(float64(v.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return vm.NumberVal(v.Float()), nil
	case reflect.Bool:
		return vm.BoolVal(v.Bool()), nil
	case reflect.String:
		return vm.StringVal(v.String()), nil
	default:
		return vm.Value{}, fmt.Errorf("unsupported Go type for conversion: %s", v.Type())
	}
}

// FromValue converts a script value to a Go value.
// targetType is optional; if provided, tries to convert to that type.
func (m *Marshaller) FromValue(val vm.Value, targetType reflect.Type) (interface{}, error) {
	var out interface{}
	switch {
	case val.IsNil():
		if targetType == nil {
			return nil, nil
		}
		return reflect.Zero(targetType).Interface(), nil
	case val.IsBool():
		out = val.AsBool()
	case val.IsNumber():
		out = val.AsNumber()
	case val.IsString():
		out = val.AsString()
	default:
		return nil, fmt.Errorf("unsupported value type: %s", val.Type)
	}

	if targetType == nil {
		return out, nil
	}

	rv := reflect.ValueOf(out)
	switch targetType.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := wholeNumber(out, val, targetType)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt64 || n >= math.MaxInt64 || reflect.Zero(targetType).OverflowInt(int64(n)) {
			return nil, fmt.Errorf("%v overflows %s", n, targetType)
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, err := wholeNumber(out, val, targetType)
		if err != nil {
			return nil, err
		}
		if n < 0 || n >= math.MaxUint64 || reflect.Zero(targetType).OverflowUint(uint64(n)) {
			return nil, fmt.Errorf("%v overflows %s", n, targetType)
		}
	case reflect.Interface:
		if rv.Type().Implements(targetType) {
			return out, nil
		}
	}

	if rv.Type().AssignableTo(targetType) {
		return out, nil
	}
	if rv.Type().ConvertibleTo(targetType) && rv.Kind() != reflect.String && targetType.Kind() != reflect.String {
		return rv.Convert(targetType).Interface(), nil
	}
	return nil, fmt.Errorf("cannot convert %s to %s", val.Type, targetType)
}

// wholeNumber returns out as a float64 with no fractional part
func wholeNumber(out interface{}, val vm.Value, targetType reflect.Type) (float64, error) {
	n, ok := out.(float64)
	if !ok {
		return 0, fmt.Errorf("cannot convert %s to %s", val.Type, targetType)
	}
	if n != math.Trunc(n) {
		return 0, fmt.Errorf("cannot convert %v to %s without losing precision", n, targetType)
	}
	return n, nil
}

// Unmarshal stores val into the value pointed to by ptr.
func (m *Marshaller) Unmarshal(val vm.Value, ptr interface{}) error {
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("unmarshal target must be a non-nil pointer, got %T", ptr)
	}
	target := rv.Elem()
	out, err := m.FromValue(val, target.Type())
	if err != nil {
		return err
	}
	if out == nil {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}
	target.Set(reflect.ValueOf(out))
	return nil
}
