package event

import "reflect"

// deref turns the pointer produced by a payload factory into its value so
// callers can type switch on payload structs directly.
func deref(ptr any) any {
	v := reflect.ValueOf(ptr)
	if v.Kind() == reflect.Pointer && !v.IsNil() {
		return v.Elem().Interface()
	}
	return ptr
}
