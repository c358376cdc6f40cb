package nyx

import "fmt"

// ValueKind discriminates the four primitive shapes a Value cell can
// hold (spec.md §3: "null, boolean, 64-bit float, or a pointer to a
// heap object"). Nyx represents Value as a small tagged struct rather
// than NaN-boxing a float64 — simpler to audit and, per spec.md §3,
// either representation is conforming.
type ValueKind byte

const (
	ValNull ValueKind = iota
	ValBool
	ValNumber
	ValObject
)

// Value is the uniformly-sized cell that lives on the operand stack,
// in environments, and in array/map storage.
type Value struct {
	Kind   ValueKind
	Bool   bool
	Number float64
	Obj    *Object
}

func Null() Value           { return Value{Kind: ValNull} }
func Bool(b bool) Value     { return Value{Kind: ValBool, Bool: b} }
func Number(n float64) Value { return Value{Kind: ValNumber, Number: n} }
func FromObject(o *Object) Value {
	return Value{Kind: ValObject, Obj: o}
}

func (v Value) IsNull() bool   { return v.Kind == ValNull }
func (v Value) IsObject() bool { return v.Kind == ValObject }

// Truthy implements the language's truthiness rule: null and false are
// falsy, everything else (including 0 and "") is truthy — matching the
// boundary behaviors spec.md §8 exercises around `if`/`while` guards.
func (v Value) Truthy() bool {
	switch v.Kind {
	case ValNull:
		return false
	case ValBool:
		return v.Bool
	default:
		return true
	}
}

// Equal implements spec.md §3's equality rule: structural for
// primitives, reference identity for objects except strings which
// compare by content.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case ValNull:
		return true
	case ValBool:
		return a.Bool == b.Bool
	case ValNumber:
		return a.Number == b.Number
	case ValObject:
		if a.Obj == b.Obj {
			return true
		}
		if a.Obj.Tag == ObjString && b.Obj.Tag == ObjString {
			return a.Obj.AsString() == b.Obj.AsString()
		}
		return false
	}
	return false
}

func (v Value) String() string {
	switch v.Kind {
	case ValNull:
		return "null"
	case ValBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case ValNumber:
		return formatNumber(v.Number)
	case ValObject:
		return v.Obj.String()
	}
	return "<invalid value>"
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%g", n)
}

// TypeName reports the language-level type name used by the `type()`
// builtin and in runtime-error messages.
func (v Value) TypeName() string {
	switch v.Kind {
	case ValNull:
		return "null"
	case ValBool:
		return "bool"
	case ValNumber:
		return "number"
	case ValObject:
		return v.Obj.TypeName()
	}
	return "unknown"
}
