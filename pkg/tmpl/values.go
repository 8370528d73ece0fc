package tmpl

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Kind classifies a Value.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindInt
	KindFloat
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	}
	return "unknown"
}

// Value is context data: a scalar, an object or an array.
type Value interface {
	Kind() Kind
	String() string
}

// StringValue wraps a string.
type StringValue string

func (StringValue) Kind() Kind       { return KindString }
func (s StringValue) String() string { return string(s) }

// BoolValue wraps a boolean.
type BoolValue bool

func (BoolValue) Kind() Kind { return KindBool }
func (b BoolValue) String() string {
	if b {
		return "true"
	}
	return "false"
}

// IntValue wraps an integer (64-bit).
type IntValue int64

func (IntValue) Kind() Kind       { return KindInt }
func (i IntValue) String() string { return strconv.FormatInt(int64(i), 10) }

// FloatValue wraps a float (64-bit).
type FloatValue float64

func (FloatValue) Kind() Kind { return KindFloat }
func (f FloatValue) String() string {
	return strconv.FormatFloat(float64(f), 'f', -1, 64)
}

// ObjectValue is a string-keyed mapping.
type ObjectValue map[string]Value

func (ObjectValue) Kind() Kind { return KindObject }

// String renders keys in sorted order, e.g. {a, b}. It exists for
// diagnostics; the renderer refuses to print objects.
func (o ObjectValue) String() string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "{" + strings.Join(keys, ", ") + "}"
}

// ArrayValue is an ordered list.
type ArrayValue []Value

func (ArrayValue) Kind() Kind { return KindArray }
func (a ArrayValue) String() string {
	parts := make([]string, len(a))
	for i, v := range a {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// IsScalar reports whether v can be printed by a variable reference.
func IsScalar(v Value) bool {
	switch v.Kind() {
	case KindString, KindBool, KindInt, KindFloat:
		return true
	}
	return false
}

// Truth coerces a flag value to a boolean. Besides BoolValue it accepts
// the spellings configuration files commonly use for booleans; ok is
// false for anything else.
func Truth(v Value) (b bool, ok bool) {
	switch t := v.(type) {
	case BoolValue:
		return bool(t), true
	case StringValue:
		switch strings.ToLower(strings.TrimSpace(string(t))) {
		case "true", "yes", "on", "1":
			return true, true
		case "false", "no", "off", "0", "":
			return false, true
		}
	case IntValue:
		switch t {
		case 0:
			return false, true
		case 1:
			return true, true
		}
	case FloatValue:
		switch t {
		case 0:
			return false, true
		case 1:
			return true, true
		}
	}
	return false, false
}

// FromGo converts decoded configuration data (YAML, JSON, Go literals)
// into a Value. Nil map entries are dropped so they read as absent; nil
// array elements are an error.
func FromGo(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return nil, fmt.Errorf("null value")
	case Value:
		return t, nil
	case string:
		return StringValue(t), nil
	case bool:
		return BoolValue(t), nil
	case int:
		return IntValue(int64(t)), nil
	case int8:
		return IntValue(int64(t)), nil
	case int16:
		return IntValue(int64(t)), nil
	case int32:
		return IntValue(int64(t)), nil
	case int64:
		return IntValue(t), nil
	case uint:
		return fromUint(uint64(t)), nil
	case uint8:
		return IntValue(int64(t)), nil
	case uint16:
		return IntValue(int64(t)), nil
	case uint32:
		return IntValue(int64(t)), nil
	case uint64:
		return fromUint(t), nil
	case float32:
		return FloatValue(float64(t)), nil
	case float64:
		if t >= -1<<53 && t <= 1<<53 && t == float64(int64(t)) {
			return IntValue(int64(t)), nil
		}
		return FloatValue(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return IntValue(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", t, err)
		}
		return FloatValue(f), nil
	case []byte:
		return StringValue(string(t)), nil
	case map[string]any:
		out := make(ObjectValue, len(t))
		for k, e := range t {
			if e == nil {
				continue
			}
			ev, err := FromGo(e)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = ev
		}
		return out, nil
	case []any:
		out := make(ArrayValue, 0, len(t))
		for i, e := range t {
			ev, err := FromGo(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out = append(out, ev)
		}
		return out, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make(ArrayValue, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			ev, err := FromGo(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out = append(out, ev)
		}
		return out, nil
	case reflect.Map:
		out := make(ObjectValue, rv.Len())
		it := rv.MapRange()
		for it.Next() {
			key := fmt.Sprint(it.Key().Interface())
			e := it.Value().Interface()
			if e == nil {
				continue
			}
			ev, err := FromGo(e)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out[key] = ev
		}
		return out, nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, fmt.Errorf("null value")
		}
		return FromGo(rv.Elem().Interface())
	}
	return nil, fmt.Errorf("unsupported type %T", v)
}

// fromUint keeps integers beyond int64 as their decimal digits.
func fromUint(u uint64) Value {
	if u > math.MaxInt64 {
		return StringValue(strconv.FormatUint(u, 10))
	}
	return IntValue(int64(u))
}

// MustFromGo is FromGo for literals known to convert, as in tests.
func MustFromGo(v any) Value {
	val, err := FromGo(v)
	if err != nil {
		panic(err)
	}
	return val
}

// ToGo converts a Value back into plain Go data (map[string]any, []any
// and scalars), the shape YAML and JSON encoders expect.
func ToGo(v Value) any {
	switch t := v.(type) {
	case StringValue:
		return string(t)
	case BoolValue:
		return bool(t)
	case IntValue:
		return int64(t)
	case FloatValue:
		return float64(t)
	case ObjectValue:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = ToGo(e)
		}
		return out
	case ArrayValue:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = ToGo(e)
		}
		return out
	}
	return nil
}

// SetPath stores v at a dotted path inside obj, creating intermediate
// objects as needed. It is meant for building contexts, not for use
// during rendering.
func SetPath(obj ObjectValue, path string, v Value) error {
	segs := strings.Split(path, ".")
	for i, seg := range segs {
		if !isIdent(seg) {
			return fmt.Errorf("invalid path %q", path)
		}
		if i == len(segs)-1 {
			obj[seg] = v
			return nil
		}
		next, ok := obj[seg].(ObjectValue)
		if !ok {
			if _, exists := obj[seg]; exists {
				return fmt.Errorf("path %q: %q is not an object", path, strings.Join(segs[:i+1], "."))
			}
			next = ObjectValue{}
			obj[seg] = next
		}
		obj = next
	}
	return nil
}

// Merge overlays b onto a. Objects merge key by key, recursively; any other
// combination yields b. Neither input is modified.
func Merge(a, b Value) Value {
	ao, aok := a.(ObjectValue)
	bo, bok := b.(ObjectValue)
	if !aok || !bok {
		return b
	}
	out := make(ObjectValue, len(ao)+len(bo))
	for k, v := range ao {
		out[k] = v
	}
	for k, v := range bo {
		out[k] = Merge(out[k], v)
	}
	return out
}
