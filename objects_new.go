package nyx

// Constructors for every heap object tag spec.md §3 enumerates. Kept
// separate from object.go's struct definitions because every one of
// them also has to fill the header fields (Size, zero-value
// GenPermanent) the memory manager reads. They build the Object and
// leave generation-list linking to (*GC).TrackObject — runtime
// allocation sites wrap each call in TrackObject; only compile-time
// constants that never need collecting (constant-pool strings, bare
// function wrappers) use the constructors alone.

func NewStringObject(s string) *Object {
	return &Object{Tag: ObjString, str: s, Size: stringObjectSize(s)}
}

func stringObjectSize(s string) int { return 32 + len(s) }

func NewArrayObject(elems []Value) *Object {
	return &Object{Tag: ObjArray, arr: &ArrayObj{Elems: elems}, Size: 24 + 16*len(elems)}
}

func NewMapObject(m *MapObj) *Object {
	if m == nil {
		m = NewMapObj()
	}
	return &Object{Tag: ObjMap, mp: m, Size: 24 + 48*m.Len()}
}

func NewClassObject(name string) *Object {
	return &Object{Tag: ObjClass, cls: &ClassObj{Name: name, Methods: make(map[string]*Object)}, Size: 48}
}

func NewInstanceObject(cls *ClassObj) *Object {
	return &Object{Tag: ObjInstance, inst: &InstanceObj{Class: cls, Fields: make(map[string]Value)}, Size: 48}
}

func NewBoundMethodObject(receiver Value, method *Object) *Object {
	return &Object{Tag: ObjBoundMethod, bound: &BoundMethodObj{Receiver: receiver, Method: method}, Size: 24}
}

func NewEnumCtorObject(enumName, tagName string, arity int) *Object {
	return &Object{Tag: ObjEnumCtor, enumCt: &EnumCtorObj{EnumName: enumName, TagName: tagName, Arity: arity}, Size: 32}
}

func NewEnumValueObject(enumName, tagName string, payload []Value) *Object {
	return &Object{Tag: ObjEnumValue, enumVal: &EnumValueObj{EnumName: enumName, TagName: tagName, Payload: payload}, Size: 24 + 16*len(payload)}
}

func NewNativeObject(name string, arity int, fn NativeGoFunc) *Object {
	return &Object{Tag: ObjNative, native: &NativeObj{Name: name, Arity: arity, Fn: fn}, Size: 32}
}

// wrapFunctionValue boxes a bare FunctionObj (produced by the compiler,
// not yet associated with a captured environment) into a heap Object so
// it can live in a constant pool slot. CLOSURE pairs it with an Env at
// runtime (spec.md §4.5); until then Env stays nil.
func wrapFunctionValue(fn *FunctionObj) *Object {
	return &Object{Tag: ObjFunction, fn: fn, Size: 64}
}
