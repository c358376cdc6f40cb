package nyx

import "strings"

// ObjTag discriminates the heap object kinds spec.md §3 enumerates.
type ObjTag byte

const (
	ObjString ObjTag = iota
	ObjFunction
	ObjNative
	ObjArray
	ObjMap
	ObjClass
	ObjInstance
	ObjBoundMethod
	ObjEnumCtor
	ObjEnumValue
)

func (t ObjTag) String() string {
	switch t {
	case ObjString:
		return "string"
	case ObjFunction:
		return "function"
	case ObjNative:
		return "native"
	case ObjArray:
		return "array"
	case ObjMap:
		return "map"
	case ObjClass:
		return "class"
	case ObjInstance:
		return "instance"
	case ObjBoundMethod:
		return "bound-method"
	case ObjEnumCtor:
		return "enum-ctor"
	case ObjEnumValue:
		return "enum-value"
	default:
		return "unknown"
	}
}

// Generation is the young/old partition the collector moves objects
// between (spec.md §3, §4.6). GenPermanent is not one of the two
// generations the spec names; it marks objects the bare NewXObject
// constructors produce at compile time (constant-pool strings,
// function wrappers) that are never passed through (*GC).TrackObject
// and so never join either generation's list (spec.md §3: they "live
// off-list for the lifetime of their owning Program"). It is the zero
// value so every constructor in objects_new.go gets it without having
// to say so, and TrackObject/TrackEnv overwrite it to GenYoung the
// moment a value actually becomes GC-managed.
type Generation byte

const (
	GenPermanent Generation = iota
	GenYoung
	GenOld
)

// Object is the heap object header spec.md §3 requires every heap
// value to carry, plus a payload field per tag. Only the field
// matching Tag is populated; Go has no tagged union, so this follows
// the teacher's tree.go pattern of one struct with a discriminant and
// several payload pointers rather than an interface-per-kind, because
// the GC needs a single concrete type it can link into young/old
// intrusive lists via Next.
type Object struct {
	Tag        ObjTag
	Generation Generation
	Age        int
	Marked     bool
	Remembered bool
	Next       *Object
	Size       int

	str    string
	hash   uint32
	hashed bool

	fn      *FunctionObj
	native  *NativeObj
	arr     *ArrayObj
	mp      *MapObj
	cls     *ClassObj
	inst    *InstanceObj
	bound   *BoundMethodObj
	enumCt  *EnumCtorObj
	enumVal *EnumValueObj
}

// FunctionObj backs spec.md §3's Function: "Name, declared arity,
// minimum arity, is-initializer flag, parameter-name table, owned
// Chunk, back-pointer to owning Program."
type FunctionObj struct {
	Name        string
	Arity       int
	MinArity    int
	IsInit      bool
	Params      []string
	Chunk       *Chunk
	Program     *Program
	Env         *Env // captured environment once wrapped in a closure (nil for the bare function object)
}

// NativeGoFunc is the signature every host builtin and extension
// callback must implement (spec.md §4.8's DefineNative surface).
type NativeGoFunc func(vm *VM, args []Value) (Value, error)

type NativeObj struct {
	Name string
	Fn   NativeGoFunc
	Arity int // -1 means variadic
}

type ArrayObj struct {
	Elems []Value
}

type MapObj struct {
	keys   []string
	values map[string]Value
}

func NewMapObj() *MapObj {
	return &MapObj{values: make(map[string]Value)}
}

func (m *MapObj) Get(key string) (Value, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m *MapObj) Set(key string, v Value) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

func (m *MapObj) Keys() []string { return m.keys }
func (m *MapObj) Len() int       { return len(m.keys) }

// ClassObj backs spec.md §3's Class: "name, method table (string →
// function)." Interfaces implemented are recorded for the structural
// subsumption checks the typechecker does (spec.md §4.2).
type ClassObj struct {
	Name       string
	Methods    map[string]*Object // name -> ObjFunction (always a closure once the class is built)
	Implements []string
}

type InstanceObj struct {
	Class  *ClassObj
	Fields map[string]Value
}

type BoundMethodObj struct {
	Receiver Value
	Method   *Object // ObjFunction
}

// EnumCtorObj constructs EnumValueObj instances when called, the way a
// class constructs instances — spec.md §3's "object that constructs
// tagged values when called."
type EnumCtorObj struct {
	EnumName string
	TagName  string
	Arity    int
}

type EnumValueObj struct {
	EnumName string
	TagName  string
	Payload  []Value
}

func (o *Object) AsString() string { return o.str }
func (o *Object) AsFunction() *FunctionObj { return o.fn }
func (o *Object) AsNative() *NativeObj     { return o.native }
func (o *Object) AsArray() *ArrayObj       { return o.arr }
func (o *Object) AsMap() *MapObj           { return o.mp }
func (o *Object) AsClass() *ClassObj       { return o.cls }
func (o *Object) AsInstance() *InstanceObj { return o.inst }
func (o *Object) AsBoundMethod() *BoundMethodObj { return o.bound }
func (o *Object) AsEnumCtor() *EnumCtorObj { return o.enumCt }
func (o *Object) AsEnumValue() *EnumValueObj { return o.enumVal }

func (o *Object) TypeName() string { return o.Tag.String() }

func (o *Object) String() string {
	switch o.Tag {
	case ObjString:
		return o.str
	case ObjFunction:
		if o.fn.Name == "" {
			return "<function>"
		}
		return "<function " + o.fn.Name + ">"
	case ObjNative:
		return "<native " + o.native.Name + ">"
	case ObjArray:
		parts := make([]string, len(o.arr.Elems))
		for i, e := range o.arr.Elems {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case ObjMap:
		parts := make([]string, 0, o.mp.Len())
		for _, k := range o.mp.keys {
			v := o.mp.values[k]
			parts = append(parts, k+": "+v.String())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case ObjClass:
		return "<class " + o.cls.Name + ">"
	case ObjInstance:
		return "<" + o.inst.Class.Name + " instance>"
	case ObjBoundMethod:
		return "<bound method " + o.bound.Method.fn.Name + ">"
	case ObjEnumCtor:
		return "<enum-ctor " + o.enumCt.EnumName + "." + o.enumCt.TagName + ">"
	case ObjEnumValue:
		if len(o.enumVal.Payload) == 0 {
			return o.enumVal.EnumName + "." + o.enumVal.TagName
		}
		parts := make([]string, len(o.enumVal.Payload))
		for i, p := range o.enumVal.Payload {
			parts[i] = p.String()
		}
		return o.enumVal.EnumName + "." + o.enumVal.TagName + "(" + strings.Join(parts, ", ") + ")"
	default:
		return "<object>"
	}
}

// Callable reports whether this object can sit on the left of a CALL.
func (o *Object) Callable() bool {
	switch o.Tag {
	case ObjFunction, ObjNative, ObjBoundMethod, ObjClass, ObjEnumCtor:
		return true
	default:
		return false
	}
}

// references returns every Value this object directly holds, the
// generic GC root-walk the mark phase (gc.go) uses instead of a
// per-tag switch duplicated at every call site.
func (o *Object) references() []Value {
	switch o.Tag {
	case ObjArray:
		return o.arr.Elems
	case ObjMap:
		out := make([]Value, 0, o.mp.Len())
		for _, k := range o.mp.keys {
			out = append(out, o.mp.values[k])
		}
		return out
	case ObjInstance:
		out := make([]Value, 0, len(o.inst.Fields))
		for _, v := range o.inst.Fields {
			out = append(out, v)
		}
		return out
	case ObjBoundMethod:
		return []Value{o.bound.Receiver, FromObject(o.bound.Method)}
	case ObjEnumValue:
		return o.enumVal.Payload
	case ObjFunction:
		// A function's captured environment is not returned here; the
		// mark phase (markObject) walks fn.Env directly.
		return nil
	case ObjClass:
		out := make([]Value, 0, len(o.cls.Methods))
		for _, m := range o.cls.Methods {
			out = append(out, FromObject(m))
		}
		return out
	default:
		return nil
	}
}
