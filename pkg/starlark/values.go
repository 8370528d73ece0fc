package starlark

import (
	"fmt"

	"github.com/neurodesk/scriptgen/pkg/tmpl"
	"go.starlark.net/starlark"
)

// ConvertToStarlark converts a template Value to a Starlark value
func ConvertToStarlark(val tmpl.Value) starlark.Value {
	if val == nil {
		return starlark.None
	}

	switch v := val.(type) {
	case tmpl.StringValue:
		return starlark.String(string(v))
	case tmpl.IntValue:
		return starlark.MakeInt64(int64(v))
	case tmpl.FloatValue:
		return starlark.Float(float64(v))
	case tmpl.BoolValue:
		return starlark.Bool(bool(v))
	case tmpl.ArrayValue:
		items := make([]starlark.Value, len(v))
		for i, item := range v {
			items[i] = ConvertToStarlark(item)
		}
		return starlark.NewList(items)
	case tmpl.ObjectValue:
		dict := starlark.NewDict(len(v))
		for key, value := range v {
			_ = dict.SetKey(starlark.String(key), ConvertToStarlark(value))
		}
		return dict
	default:
		return starlark.String(val.String())
	}
}

// ConvertFromStarlark converts a Starlark value to a template Value.
// None dict entries are dropped; None anywhere else is an error, as are
// functions and other values with no template meaning.
func ConvertFromStarlark(val starlark.Value) (tmpl.Value, error) {
	switch v := val.(type) {
	case nil, starlark.NoneType:
		return nil, fmt.Errorf("None has no template value")
	case starlark.String:
		return tmpl.StringValue(string(v)), nil
	case starlark.Int:
		if i, ok := v.Int64(); ok {
			return tmpl.IntValue(i), nil
		}
		// For very large integers, keep the digits
		return tmpl.StringValue(v.String()), nil
	case starlark.Float:
		return tmpl.FloatValue(float64(v)), nil
	case starlark.Bool:
		return tmpl.BoolValue(bool(v)), nil
	case *starlark.List:
		items := make(tmpl.ArrayValue, v.Len())
		for i := 0; i < v.Len(); i++ {
			item, err := ConvertFromStarlark(v.Index(i))
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = item
		}
		return items, nil
	case starlark.Tuple:
		items := make(tmpl.ArrayValue, len(v))
		for i, e := range v {
			item, err := ConvertFromStarlark(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = item
		}
		return items, nil
	case *starlark.Dict:
		dict := make(tmpl.ObjectValue, v.Len())
		for _, item := range v.Items() {
			key, value := item[0], item[1]
			if value == starlark.None {
				continue
			}
			name := key.String()
			if s, ok := key.(starlark.String); ok {
				name = string(s)
			}
			conv, err := ConvertFromStarlark(value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			dict[name] = conv
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type %s", val.Type())
	}
}
