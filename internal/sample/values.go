package sample

import (
	"encoding/json"
	"reflect"
)

// Tuple holds every observed value of an attribute that differed between
// merged observations and had no reducer, in collection order.
type Tuple []any

const tupleKey = "$tuple"

// MarshalJSON tags the tuple so decoding can tell it apart from a list value.
func (t Tuple) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string][]any{tupleKey: []any(t)})
}

// Equal reports whether two attribute values are equal.
func Equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue deep-copies maps, slices, and pointers so records created from
// the same default never share mutable state.
func cloneValue(v any) any {
	switch typed := v.(type) {
	case nil:
		return nil
	case string, bool, int, int64, float64:
		return typed
	case map[string]any:
		return cloneMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	case Tuple:
		out := make(Tuple, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	}
	return cloneReflect(reflect.ValueOf(v)).Interface()
}

func cloneReflect(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Elem().Type())
		out.Elem().Set(cloneReflect(v.Elem()))
		return out
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(cloneReflect(v.Index(i)))
		}
		return out
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), cloneReflect(iter.Value()))
		}
		return out
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		inner := cloneReflect(v.Elem())
		out := reflect.New(v.Type()).Elem()
		out.Set(inner)
		return out
	default:
		return v
	}
}
