package introspect

import (
	"reflect"
)

// BaseTypeName is the universal base type every lineage ends with.
const BaseTypeName = "Object"

// TypeNamer lets a value declare its own type lineage, most-derived first.
type TypeNamer interface {
	TypeNames() []string
}

// Lineage returns the declared type names of v from most-derived to least,
// always ending with BaseTypeName.
func Lineage(v any) []string {
	var chain []string

	switch {
	case v == nil:
		return []string{"Null"}
	case isDate(v):
		chain = []string{"Date"}
	default:
		if namer, ok := v.(TypeNamer); ok {
			chain = append(chain, namer.TypeNames()...)
		} else {
			chain = kindLineage(reflect.TypeOf(v), reflect.ValueOf(v))
		}
		if _, ok := v.(Invocable); ok && (len(chain) == 0 || chain[len(chain)-1] != "Function") {
			chain = append(chain, "Function")
		}
		if _, ok := v.(error); ok {
			chain = append(chain, "Error")
		}
	}

	if len(chain) == 0 || chain[len(chain)-1] != BaseTypeName {
		chain = append(chain, BaseTypeName)
	}
	return chain
}

func kindLineage(t reflect.Type, rv reflect.Value) []string {
	switch t.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return []string{"Null"}
		}
		return kindLineage(t.Elem(), rv.Elem())
	case reflect.String:
		return []string{"String"}
	case reflect.Bool:
		return []string{"Boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return []string{"Number"}
	case reflect.Slice, reflect.Array:
		return []string{"Array"}
	case reflect.Func:
		return []string{"Function"}
	case reflect.Struct:
		return structLineage(t)
	case reflect.Map:
		if t.Name() != "" {
			return []string{t.Name()}
		}
	}
	return nil
}

// structLineage follows the first embedded struct at each level, which is the
// closest Go has to an inheritance chain. Only embeddings declared in the same
// package as t count: an embedded sync.Mutex is not an ancestor.
func structLineage(t reflect.Type) []string {
	home := t.PkgPath()
	var chain []string
	seen := make(map[reflect.Type]bool)
	for t != nil && t.Kind() == reflect.Struct && !seen[t] {
		seen[t] = true
		if t.Name() != "" {
			chain = append(chain, t.Name())
		}
		var next reflect.Type
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.Anonymous {
				continue
			}
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct && ft.PkgPath() == home {
				next = ft
				break
			}
		}
		t = next
	}
	return chain
}

// TypeName renders the lineage of v for an envelope: the universal base is
// dropped when anything else is present, and a single name is returned as a
// bare string instead of a one-element slice.
func TypeName(v any) any {
	chain := Lineage(v)
	if len(chain) >= 2 && chain[len(chain)-1] == BaseTypeName {
		chain = chain[:len(chain)-1]
	}
	if len(chain) == 1 {
		return chain[0]
	}
	return chain
}
