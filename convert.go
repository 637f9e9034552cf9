package nasc

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// convertValue converts value to target. Assignable values pass through;
// strings parse into numbers, booleans and durations; numbers convert between
// kinds when they fit; []any and map[string]any convert element-wise.
func convertValue(value any, target reflect.Type) (reflect.Value, error) {
	if target == nil {
		return reflect.ValueOf(value), nil
	}
	if value == nil {
		return reflect.Zero(target), nil
	}

	v := reflect.ValueOf(value)
	if v.Type().AssignableTo(target) {
		return v, nil
	}
	out, err := convertReflect(v, target)
	if err != nil {
		return reflect.Value{}, &TypeMismatchError{Value: value, Target: target, Cause: err}
	}
	return out, nil
}

func convertReflect(v reflect.Value, target reflect.Type) (reflect.Value, error) {
	if v.Kind() == reflect.Interface && !v.IsNil() {
		v = v.Elem()
	}
	if v.Type().AssignableTo(target) {
		return v, nil
	}

	if v.Kind() == reflect.String {
		return parseString(v.String(), target)
	}

	switch {
	case isNumberKind(v.Kind()) && isNumberKind(target.Kind()):
		return convertNumber(v, target)
	case (isNumberKind(v.Kind()) || v.Kind() == reflect.Bool) && target.Kind() == reflect.String:
		return reflect.ValueOf(fmt.Sprint(v.Interface())).Convert(target), nil
	case v.Kind() == reflect.Slice && (target.Kind() == reflect.Slice || target.Kind() == reflect.Array):
		return convertSlice(v, target)
	case v.Kind() == reflect.Map && target.Kind() == reflect.Map:
		return convertMap(v, target)
	case target.Kind() == reflect.Ptr && v.Type().AssignableTo(target.Elem()):
		p := reflect.New(target.Elem())
		p.Elem().Set(v)
		return p, nil
	case v.Kind() == target.Kind() && v.Type().ConvertibleTo(target):
		return v.Convert(target), nil
	}
	return reflect.Value{}, fmt.Errorf("no conversion from %v to %v", v.Type(), target)
}

func isNumberKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func convertNumber(v reflect.Value, target reflect.Type) (reflect.Value, error) {
	out := reflect.New(target).Elem()
	switch target.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var i int64
		switch {
		case v.CanInt():
			i = v.Int()
		case v.CanUint():
			u := v.Uint()
			if u > 1<<63-1 {
				return reflect.Value{}, fmt.Errorf("value %d overflows %v", u, target)
			}
			i = int64(u)
		default:
			f := v.Float()
			if f != float64(int64(f)) {
				return reflect.Value{}, fmt.Errorf("value %v is not an integer", f)
			}
			i = int64(f)
		}
		if out.OverflowInt(i) {
			return reflect.Value{}, fmt.Errorf("value %d overflows %v", i, target)
		}
		out.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		var u uint64
		switch {
		case v.CanUint():
			u = v.Uint()
		case v.CanInt():
			i := v.Int()
			if i < 0 {
				return reflect.Value{}, fmt.Errorf("negative value %d for %v", i, target)
			}
			u = uint64(i)
		default:
			f := v.Float()
			if f < 0 || f != float64(uint64(f)) {
				return reflect.Value{}, fmt.Errorf("value %v is not an unsigned integer", f)
			}
			u = uint64(f)
		}
		if out.OverflowUint(u) {
			return reflect.Value{}, fmt.Errorf("value %d overflows %v", u, target)
		}
		out.SetUint(u)
	default:
		var f float64
		switch {
		case v.CanInt():
			f = float64(v.Int())
		case v.CanUint():
			f = float64(v.Uint())
		default:
			f = v.Float()
		}
		if out.OverflowFloat(f) {
			return reflect.Value{}, fmt.Errorf("value %v overflows %v", f, target)
		}
		out.SetFloat(f)
	}
	return out, nil
}

func parseString(s string, target reflect.Type) (reflect.Value, error) {
	out := reflect.New(target).Elem()
	if target == durationType {
		d, err := time.ParseDuration(s)
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetInt(int64(d))
		return out, nil
	}
	if target == timeType {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return reflect.Value{}, err
		}
		out.Set(reflect.ValueOf(t))
		return out, nil
	}

	switch target.Kind() {
	case reflect.String:
		out.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(strings.TrimSpace(s), 0, target.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u, err := strconv.ParseUint(strings.TrimSpace(s), 0, target.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), target.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetFloat(f)
	case reflect.Slice:
		if target.Elem().Kind() == reflect.Uint8 {
			return reflect.ValueOf([]byte(s)).Convert(target), nil
		}
		var parts []string
		if s != "" {
			parts = strings.Split(s, ",")
		}
		items := make([]any, len(parts))
		for i, p := range parts {
			items[i] = strings.TrimSpace(p)
		}
		return convertSlice(reflect.ValueOf(items), target)
	case reflect.Interface:
		if reflect.TypeOf(s).Implements(target) {
			out.Set(reflect.ValueOf(s))
			return out, nil
		}
		return reflect.Value{}, fmt.Errorf("string does not implement %v", target)
	default:
		return reflect.Value{}, fmt.Errorf("cannot parse string into %v", target)
	}
	return out, nil
}

func convertSlice(v reflect.Value, target reflect.Type) (reflect.Value, error) {
	var out reflect.Value
	if target.Kind() == reflect.Array {
		if v.Len() > target.Len() {
			return reflect.Value{}, fmt.Errorf("%d elements do not fit into %v", v.Len(), target)
		}
		out = reflect.New(target).Elem()
	} else {
		out = reflect.MakeSlice(target, v.Len(), v.Len())
	}
	for i := 0; i < v.Len(); i++ {
		elem, err := convertElem(v.Index(i), target.Elem())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
		}
		out.Index(i).Set(elem)
	}
	return out, nil
}

func convertMap(v reflect.Value, target reflect.Type) (reflect.Value, error) {
	out := reflect.MakeMapWithSize(target, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		key, err := convertElem(iter.Key(), target.Key())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("key %v: %w", iter.Key(), err)
		}
		elem, err := convertElem(iter.Value(), target.Elem())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("entry %v: %w", iter.Key(), err)
		}
		out.SetMapIndex(key, elem)
	}
	return out, nil
}

func convertElem(v reflect.Value, target reflect.Type) (reflect.Value, error) {
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Zero(target), nil
		}
		v = v.Elem()
	}
	if v.Type().AssignableTo(target) {
		return v, nil
	}
	return convertReflect(v, target)
}
