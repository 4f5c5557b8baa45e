package config

import "reflect"

// MergeLayers composes layers ordered from strongest to weakest. Nil
// pointers, maps and slices in a stronger layer fall through to the next
// weaker one; everything else set in a stronger layer wins.
func MergeLayers[T any](layers ...T) T {
	var zero T
	if len(layers) == 0 {
		return zero
	}
	merged := deepCopy(reflect.ValueOf(layers[len(layers)-1]))
	for i := len(layers) - 2; i >= 0; i-- {
		merged = overlay(reflect.ValueOf(layers[i]), merged)
	}
	if !merged.IsValid() {
		return zero
	}
	out := reflect.New(reflect.TypeOf(zero)).Elem()
	out.Set(merged.Convert(out.Type()))
	return out.Interface().(T)
}

func isUnset(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return v.IsNil()
	default:
		return false
	}
}

func overlay(strong, weak reflect.Value) reflect.Value {
	if isUnset(strong) {
		return deepCopy(weak)
	}
	switch strong.Kind() {
	case reflect.Pointer:
		var weakElem reflect.Value
		if !isUnset(weak) && weak.Kind() == reflect.Pointer {
			weakElem = weak.Elem()
		}
		out := reflect.New(strong.Type().Elem())
		out.Elem().Set(overlay(strong.Elem(), weakElem))
		return out
	case reflect.Struct:
		out := reflect.New(strong.Type()).Elem()
		sameType := weak.IsValid() && weak.Type() == strong.Type()
		for i := 0; i < strong.NumField(); i++ {
			if !out.Field(i).CanSet() {
				continue
			}
			var weakField reflect.Value
			if sameType {
				weakField = weak.Field(i)
			}
			out.Field(i).Set(overlay(strong.Field(i), weakField))
		}
		return out
	case reflect.Map:
		out := reflect.MakeMapWithSize(strong.Type(), strong.Len())
		if !isUnset(weak) && weak.Kind() == reflect.Map {
			iter := weak.MapRange()
			for iter.Next() {
				out.SetMapIndex(iter.Key(), deepCopy(iter.Value()))
			}
		}
		iter := strong.MapRange()
		for iter.Next() {
			existing := out.MapIndex(iter.Key())
			out.SetMapIndex(iter.Key(), overlay(iter.Value(), existing))
		}
		return out
	default:
		// Slices replace wholesale; scalars from a stronger layer win.
		return deepCopy(strong)
	}
}

func deepCopy(v reflect.Value) reflect.Value {
	if !v.IsValid() {
		return v
	}
	if isUnset(v) {
		return reflect.Zero(v.Type())
	}
	switch v.Kind() {
	case reflect.Pointer:
		out := reflect.New(v.Type().Elem())
		out.Elem().Set(deepCopy(v.Elem()))
		return out
	case reflect.Interface:
		return deepCopy(v.Elem()).Convert(v.Type())
	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			if out.Field(i).CanSet() {
				out.Field(i).Set(deepCopy(v.Field(i)))
			}
		}
		return out
	case reflect.Map:
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), deepCopy(iter.Value()))
		}
		return out
	case reflect.Slice:
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(deepCopy(v.Index(i)))
		}
		return out
	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(deepCopy(v.Index(i)))
		}
		return out
	default:
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		return out
	}
}
