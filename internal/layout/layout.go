// Package layout verifies that a type is safe for the object pool's raw-byte
// storage discipline: trivially copyable and of standard layout, so that a
// slot's bytes can be reused across lifetimes and, in shared mode, across
// process boundaries without the runtime's cooperation.
package layout

import (
	"fmt"
	"reflect"
)

// CheckTrivial reports an error if t cannot be safely stored as raw bytes in
// a pool slot: any type reachable from t that carries a pointer, interface,
// map, channel, function, or string disqualifies it, since those kinds embed
// process-local references or GC-managed indirection that raw-byte reuse
// (and, in shared mode, another process's address space) cannot honor.
func CheckTrivial(t reflect.Type) error {
	return checkTrivial(t, nil)
}

func checkTrivial(t reflect.Type, path []string) error {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return nil
	case reflect.Array:
		return checkTrivial(t.Elem(), append(path, fmt.Sprintf("[%d]%s", t.Len(), t.Elem())))
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if err := checkTrivial(f.Type, append(path, f.Name)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Ptr, reflect.UnsafePointer:
		return fieldErr(t, path, "contains a pointer")
	case reflect.Interface:
		return fieldErr(t, path, "contains an interface")
	case reflect.Map:
		return fieldErr(t, path, "contains a map")
	case reflect.Chan:
		return fieldErr(t, path, "contains a channel")
	case reflect.Func:
		return fieldErr(t, path, "contains a function value")
	case reflect.Slice:
		return fieldErr(t, path, "contains a slice")
	case reflect.String:
		return fieldErr(t, path, "contains a string")
	default:
		return fieldErr(t, path, "has an unsupported kind "+t.Kind().String())
	}
}

func fieldErr(t reflect.Type, path []string, reason string) error {
	if len(path) == 0 {
		return fmt.Errorf("type %s is not trivially copyable: %s", t, reason)
	}
	return fmt.Errorf("type %s is not trivially copyable: field %s %s", t, joinPath(path), reason)
}

func joinPath(path []string) string {
	out := path[0]
	for _, p := range path[1:] {
		out += "." + p
	}
	return out
}
