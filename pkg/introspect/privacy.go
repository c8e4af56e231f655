// Package introspect discovers the public surface of arbitrary Go values:
// the members a value exposes by name, which of those members are invocable
// operations, and the lineage of type names the value carries.
package introspect

import (
	"strings"
	"unicode"
)

// reservedPropertyNames are the universal object scaffolding names. They are
// never part of a value's public surface.
var reservedPropertyNames = map[string]struct{}{
	"constructor":          {},
	"hasOwnProperty":       {},
	"toString":             {},
	"toLocaleString":       {},
	"valueOf":              {},
	"isPrototypeOf":        {},
	"propertyIsEnumerable": {},
	"prototype":            {},
}

// scaffoldingNames are method names produced by well-known Go interfaces and
// by the lifecycle hooks. They only hide methods; a data field or map key
// with the same name stays public.
var scaffoldingNames = map[string]struct{}{
	"string":         {},
	"error":          {},
	"goString":       {},
	"marshalJSON":    {},
	"unmarshalJSON":  {},
	"marshalText":    {},
	"unmarshalText":  {},
	"serviceName":    {},
	"serviceVersion": {},
	"typeNames":      {},
	"invoke":         {},
	"onConfig":       {},
	"onInit":         {},
	"onRun":          {},
}

// IsReservedPropertyName reports whether name is one of the reserved
// universal object property names.
func IsReservedPropertyName(name string) bool {
	_, ok := reservedPropertyNames[name]
	return ok
}

// IsPrivate reports whether a member name is excluded from the public
// surface: empty after trimming, starting with "$" or "_", or reserved.
func IsPrivate(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return true
	}
	switch name[0] {
	case '$', '_':
		return true
	}
	return IsReservedPropertyName(name)
}

// isScaffolding reports whether a method member name is plumbing rather than
// an operation.
func isScaffolding(name string) bool {
	_, ok := scaffoldingNames[name]
	return ok
}

// MemberName converts an exported Go identifier into the lowerCamel member
// name used on the resource tree: Name -> name, HTTPPort -> httpPort, ID -> id.
func MemberName(goName string) string {
	r := []rune(goName)
	n := 0
	for n < len(r) && unicode.IsUpper(r[n]) {
		n++
	}
	switch {
	case n == 0:
		return goName
	case n == 1 || n == len(r):
		// single leading capital, or an all-caps initialism
	default:
		// keep the capital that starts the next word: HTTPPort -> httpPort
		n--
	}
	for i := 0; i < n; i++ {
		r[i] = unicode.ToLower(r[i])
	}
	return string(r)
}
