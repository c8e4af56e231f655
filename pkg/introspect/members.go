package introspect

import (
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"
)

// Kind distinguishes data members from invocable operations.
type Kind int

const (
	// KindField is a data member, exposed verbatim.
	KindField Kind = iota
	// KindOperation is an invocable member.
	KindOperation
)

func (k Kind) String() string {
	if k == KindOperation {
		return "operation"
	}
	return "field"
}

// Member is one named entry of a value's public surface.
type Member struct {
	Name  string
	Kind  Kind
	Value any
}

// memberSpec locates a member inside values of one concrete type.
type memberSpec struct {
	name   string
	index  []int // struct field path; nil for methods
	method int
}

type typeTable struct {
	specs  []memberSpec
	byName map[string]int
}

// tables caches one typeTable per concrete reflect.Type.
var tables sync.Map

func tableFor(t reflect.Type) *typeTable {
	if cached, ok := tables.Load(t); ok {
		return cached.(*typeTable)
	}

	tbl := &typeTable{byName: make(map[string]int)}
	add := func(s memberSpec) {
		if IsPrivate(s.name) {
			return
		}
		if _, dup := tbl.byName[s.name]; dup {
			return
		}
		tbl.byName[s.name] = len(tbl.specs)
		tbl.specs = append(tbl.specs, s)
	}

	st := t
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() == reflect.Struct {
		for _, f := range reflect.VisibleFields(st) {
			if f.Anonymous || !f.IsExported() || !reachable(st, f.Index) {
				continue
			}
			name, ok := fieldName(f)
			if !ok {
				continue
			}
			add(memberSpec{name: name, index: f.Index})
		}
	}

	foreign := foreignMethods(t)
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if foreign[m.Name] || !callable(m.Type, 1) {
			continue
		}
		name := MemberName(m.Name)
		if isScaffolding(name) {
			continue
		}
		add(memberSpec{name: name, method: i})
	}

	actual, _ := tables.LoadOrStore(t, tbl)
	return actual.(*typeTable)
}

// foreignMethods collects the names of methods a struct type picks up from
// embedded types declared in another package, such as Lock and Unlock from an
// embedded sync.Mutex. Those never become operations. A method the struct
// declares itself under one of these names is hidden as well, since reflection
// cannot tell it apart from the promoted one.
func foreignMethods(t reflect.Type) map[string]bool {
	st := t
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		return nil
	}

	home := st.PkgPath()
	var out map[string]bool
	for _, f := range reflect.VisibleFields(st) {
		if !f.Anonymous {
			continue
		}
		ft := f.Type
		base := ft
		if base.Kind() == reflect.Pointer {
			base = base.Elem()
		}
		if base.PkgPath() == home {
			continue
		}
		if ft.Kind() != reflect.Pointer && ft.Kind() != reflect.Interface {
			ft = reflect.PointerTo(ft)
		}
		for i := 0; i < ft.NumMethod(); i++ {
			if out == nil {
				out = make(map[string]bool)
			}
			out[ft.Method(i).Name] = true
		}
	}
	return out
}

// reachable reports whether a promoted field path can be read back as an
// interface: an unexported embedding is only passable by value, the same rule
// encoding/json applies.
func reachable(t reflect.Type, index []int) bool {
	for i, idx := range index {
		f := t.Field(idx)
		t = f.Type
		if i == len(index)-1 {
			break
		}
		if t.Kind() == reflect.Pointer {
			if !f.IsExported() {
				return false
			}
			t = t.Elem()
		}
	}
	return true
}

func fieldName(f reflect.StructField) (string, bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false
	}
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name, true
	}
	return MemberName(f.Name), true
}

func (s memberSpec) value(rv reflect.Value) (any, bool) {
	if s.index == nil {
		return rv.Method(s.method).Interface(), true
	}
	target := rv
	if target.Kind() == reflect.Pointer {
		target = target.Elem()
	}
	f, err := target.FieldByIndexErr(s.index)
	if err != nil {
		return nil, false
	}
	return f.Interface(), true
}

func isDate(v any) bool {
	switch d := v.(type) {
	case time.Time:
		return true
	case *time.Time:
		return d != nil
	}
	return false
}

// IsDate reports whether v is a time.Time (or a non-nil pointer to one).
func IsDate(v any) bool {
	return isDate(v)
}

// IsArray reports whether v is a slice or an array.
func IsArray(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return true
	}
	return false
}

// IsContainer reports whether members of v can be addressed by name: a
// struct, a non-nil pointer to a struct, or a non-nil map keyed by strings.
// Dates and invocable values are never containers.
func IsContainer(v any) bool {
	if v == nil || isDate(v) {
		return false
	}
	if _, ok := v.(Invocable); ok {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Struct:
		return true
	case reflect.Pointer:
		return !rv.IsNil() && rv.Elem().Kind() == reflect.Struct
	case reflect.Map:
		return !rv.IsNil() && rv.Type().Key().Kind() == reflect.String
	}
	return false
}

func memberOf(name string, value any) Member {
	kind := KindField
	if IsInvocable(value) {
		kind = KindOperation
	}
	return Member{Name: name, Kind: kind, Value: value}
}

// Lookup finds the member called name on a container. Private names and
// non-containers never resolve.
func Lookup(v any, name string) (Member, bool) {
	if IsPrivate(name) || !IsContainer(v) {
		return Member{}, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map {
		key := reflect.ValueOf(name).Convert(rv.Type().Key())
		e := rv.MapIndex(key)
		if !e.IsValid() {
			return Member{}, false
		}
		return memberOf(name, e.Interface()), true
	}

	tbl := tableFor(rv.Type())
	i, ok := tbl.byName[name]
	if !ok {
		return Member{}, false
	}
	val, ok := tbl.specs[i].value(rv)
	if !ok {
		return Member{}, false
	}
	return memberOf(name, val), true
}

// Members lists the public surface of v: struct fields in declaration order
// followed by methods, or map entries in key order.
func Members(v any) []Member {
	if !IsContainer(v) {
		return nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map {
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			if name := k.String(); !IsPrivate(name) {
				keys = append(keys, name)
			}
		}
		sort.Strings(keys)
		out := make([]Member, 0, len(keys))
		for _, name := range keys {
			e := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
			out = append(out, memberOf(name, e.Interface()))
		}
		return out
	}

	tbl := tableFor(rv.Type())
	out := make([]Member, 0, len(tbl.specs))
	for _, s := range tbl.specs {
		val, ok := s.value(rv)
		if !ok {
			continue
		}
		out = append(out, memberOf(s.name, val))
	}
	return out
}

// OwnFields returns the exported data members of v whatever its kind,
// skipping invocable ones. For a struct-backed invocable or error it yields
// the struct's fields; for anything without fields it yields nothing.
func OwnFields(v any) []Member {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	t := rv.Type()
	if t.Kind() == reflect.Pointer {
		if rv.IsNil() || t.Elem().Kind() != reflect.Struct {
			return nil
		}
	} else if t.Kind() != reflect.Struct && t.Kind() != reflect.Map {
		return nil
	}
	if t.Kind() == reflect.Map && t.Key().Kind() != reflect.String {
		return nil
	}

	var all []Member
	if t.Kind() == reflect.Map {
		all = Members(v)
	} else {
		tbl := tableFor(t)
		for _, s := range tbl.specs {
			if s.index == nil {
				continue
			}
			if val, ok := s.value(rv); ok {
				all = append(all, memberOf(s.name, val))
			}
		}
	}

	out := all[:0]
	for _, m := range all {
		if m.Kind == KindField {
			out = append(out, m)
		}
	}
	return out
}
