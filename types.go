package nyx

import "strings"

// TypeKind enumerates the coupled typechecker's type universe
// (spec.md §4.2/§9): "any, unknown, number, string, bool, null,
// array<T>, map<K,V>, function(params) -> ret with optional type
// parameters, named(NameStr, typeArgs), generic(NameStr)".
type TypeKind int

const (
	TyAny TypeKind = iota
	TyUnknown
	TyNumber
	TyString
	TyBool
	TyNull
	TyArray
	TyMap
	TyFunction
	TyNamed
	TyGeneric
)

// Type is the typechecker's parallel-stack payload. Nullable tracks
// whether null is an allowed value of this type, independent of Kind.
type Type struct {
	Kind     TypeKind
	Nullable bool

	// TyArray
	Elem *Type
	// TyMap
	Key *Type
	Val *Type
	// TyFunction
	Params []*Type
	Ret    *Type
	// TyNamed / TyGeneric
	Name     string
	TypeArgs []*Type
}

func AnyType() *Type     { return &Type{Kind: TyAny, Nullable: true} }
func UnknownType() *Type { return &Type{Kind: TyUnknown, Nullable: true} }
func NumberType() *Type  { return &Type{Kind: TyNumber} }
func StringType() *Type  { return &Type{Kind: TyString} }
func BoolType() *Type    { return &Type{Kind: TyBool} }
func NullType() *Type    { return &Type{Kind: TyNull, Nullable: true} }

func NamedType(name string, nullable bool) *Type {
	return &Type{Kind: TyNamed, Name: name, Nullable: nullable}
}

func (t *Type) String() string {
	if t == nil {
		return "unknown"
	}
	suffix := ""
	if t.Nullable && t.Kind != TyNull && t.Kind != TyAny && t.Kind != TyUnknown {
		suffix = "?"
	}
	switch t.Kind {
	case TyAny:
		return "any"
	case TyUnknown:
		return "unknown"
	case TyNumber:
		return "number" + suffix
	case TyString:
		return "string" + suffix
	case TyBool:
		return "bool" + suffix
	case TyNull:
		return "null"
	case TyArray:
		return "array<" + t.Elem.String() + ">" + suffix
	case TyMap:
		return "map<" + t.Key.String() + "," + t.Val.String() + ">" + suffix
	case TyFunction:
		parts := make([]string, len(t.Params))
		for i, p := range t.Params {
			parts[i] = p.String()
		}
		return "(" + strings.Join(parts, ", ") + ") -> " + t.Ret.String() + suffix
	case TyNamed:
		if len(t.TypeArgs) == 0 {
			return t.Name + suffix
		}
		parts := make([]string, len(t.TypeArgs))
		for i, a := range t.TypeArgs {
			parts[i] = a.String()
		}
		return t.Name + "<" + strings.Join(parts, ", ") + ">" + suffix
	case TyGeneric:
		return t.Name
	default:
		return "?"
	}
}

// AssignableTo implements spec.md §4.2's assignability rule: `any`
// flows anywhere; nullable source into a non-nullable destination
// fails; named types consult the interface registry for structural
// subsumption.
func AssignableTo(src, dst *Type, registry *InterfaceRegistry) bool {
	if src == nil || dst == nil {
		return true
	}
	if src.Kind == TyAny || dst.Kind == TyAny {
		return true
	}
	if dst.Kind == TyUnknown {
		return true
	}
	if src.Nullable && !dst.Nullable {
		return false
	}
	if src.Kind == TyNull {
		return dst.Nullable
	}
	if src.Kind != dst.Kind {
		// A named class type is assignable to an interface-named type
		// if the class structurally implements it.
		if src.Kind == TyNamed && dst.Kind == TyNamed && registry != nil {
			return registry.Implements(src.Name, dst.Name)
		}
		return false
	}
	switch src.Kind {
	case TyArray:
		return AssignableTo(src.Elem, dst.Elem, registry)
	case TyMap:
		return AssignableTo(src.Key, dst.Key, registry) && AssignableTo(src.Val, dst.Val, registry)
	case TyNamed:
		if src.Name == dst.Name {
			return true
		}
		if registry != nil {
			return registry.Implements(src.Name, dst.Name)
		}
		return false
	default:
		return true
	}
}

// InterfaceRegistry is the process-wide type registry spec.md §4.2
// mentions: "implements clauses record the class in a process-wide
// type registry used for structural-interface checking."
type InterfaceRegistry struct {
	// classMethods maps class name -> set of method names it declares.
	classMethods map[string]map[string]bool
	// interfaceMethods maps interface name -> set of method names required.
	interfaceMethods map[string]map[string]bool
	implementsDecl   map[string][]string
}

func NewInterfaceRegistry() *InterfaceRegistry {
	return &InterfaceRegistry{
		classMethods:     make(map[string]map[string]bool),
		interfaceMethods: make(map[string]map[string]bool),
		implementsDecl:   make(map[string][]string),
	}
}

func (r *InterfaceRegistry) DeclareClass(name string, methods []string, implements []string) {
	set := make(map[string]bool, len(methods))
	for _, m := range methods {
		set[m] = true
	}
	r.classMethods[name] = set
	r.implementsDecl[name] = implements
}

func (r *InterfaceRegistry) DeclareInterface(name string, methods []string) {
	set := make(map[string]bool, len(methods))
	for _, m := range methods {
		set[m] = true
	}
	r.interfaceMethods[name] = set
}

// Implements reports whether className structurally satisfies
// ifaceName: either declared via an `implements` clause, or (as a
// fallback the structural typechecker allows) by having every method
// the interface requires.
func (r *InterfaceRegistry) Implements(className, ifaceName string) bool {
	if className == ifaceName {
		return true
	}
	for _, decl := range r.implementsDecl[className] {
		if decl == ifaceName {
			return true
		}
	}
	required, ok := r.interfaceMethods[ifaceName]
	if !ok {
		return false
	}
	have := r.classMethods[className]
	for m := range required {
		if !have[m] {
			return false
		}
	}
	return true
}
