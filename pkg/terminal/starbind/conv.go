package starbind

import (
	"fmt"
	"reflect"

	"go.starlark.net/starlark"
)

// toStarlarkValue converts a Go value of a basic kind into a starlark
// value. Anything else is converted to its string representation.
func toStarlarkValue(v interface{}) starlark.Value {
	switch v := v.(type) {
	case nil:
		return starlark.None
	case starlark.Value:
		return v
	case bool:
		return starlark.Bool(v)
	case string:
		return starlark.String(v)
	case int:
		return starlark.MakeInt(v)
	case int64:
		return starlark.MakeInt64(v)
	case uint64:
		return starlark.MakeUint64(v)
	case float64:
		return starlark.Float(v)
	case []string:
		elems := make([]starlark.Value, len(v))
		for i := range v {
			elems[i] = starlark.String(v[i])
		}
		return starlark.NewList(elems)
	case map[string]interface{}:
		return mapToStarlarkDict(v)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		elems := make([]starlark.Value, rv.Len())
		for i := range elems {
			elems[i] = toStarlarkValue(rv.Index(i).Interface())
		}
		return starlark.NewList(elems)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		return starlark.MakeInt64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uintptr:
		return starlark.MakeUint64(rv.Uint())
	}
	return starlark.String(fmt.Sprintf("%v", v))
}

func mapToStarlarkDict(m map[string]interface{}) *starlark.Dict {
	d := starlark.NewDict(len(m))
	for k, v := range m {
		// SetKey only fails on unhashable keys or frozen dicts.
		_ = d.SetKey(starlark.String(k), toStarlarkValue(v))
	}
	return d
}

func excInfoToStarlarkValue(info *ExcInfo) starlark.Value {
	summaries := make([]string, len(info.Frames))
	frames := make([]starlark.Value, len(info.Frames))
	for i, frame := range info.Frames {
		summaries[i] = frame.Summary
		frames[i] = mapToStarlarkDict(map[string]interface{}{
			"summary":  frame.Summary,
			"file":     frame.File,
			"line":     frame.Line,
			"function": frame.Function,
		})
	}
	return mapToStarlarkDict(map[string]interface{}{
		"type":      info.Type,
		"value":     info.Value,
		"traceback": summaries,
		"frames":    starlark.NewList(frames),
		"note":      info.Note,
	})
}
