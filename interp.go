package nyx

import (
	"fmt"
	"math"
)

// Frame is one call-frame entry (spec.md §4.4): function pointer,
// instruction pointer, base pointer into the operand stack, and the
// current environment. Locals aren't addressed through base — this
// interpreter resolves names by walking the environment chain (spec.md
// §4.2's "no compile-time lexical index") — but base is kept for
// backtrace/disassembly bookkeeping, matching the shape the teacher's
// vm_stack.go frame carries even though the payload differs.
type Frame struct {
	fn      *FunctionObj
	closure *Object
	ip      int
	base    int
	argc    int
	env     *Env
	program *Program
}

// VM is the stack-based bytecode interpreter spec.md §4.4 describes.
// Its field shapes (sp, stack, frames, globals, modules) are load-
// bearing: gc.go's root walk reads them directly.
type VM struct {
	stack []Value
	sp    int

	frames    []*Frame
	maxFrames int

	globals *Env
	replEnv *Env
	gc      *GC
	modules *ModuleRegistry
	cfg     *Config

	registry *InterfaceRegistry
	handles  []*NativeHandle

	Stdout func(string)
}

// NewVM builds a VM with its global environment, module registry, and
// memory manager wired together; builtins.go populates globals right
// after this returns.
func NewVM(cfg *Config, loader ImportLoader, registry *InterfaceRegistry) *VM {
	if cfg == nil {
		cfg = NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		panic(err.Error())
	}
	vm := &VM{
		stack:     make([]Value, cfg.GetInt("vm.stack_capacity")),
		maxFrames: cfg.GetInt("vm.frame_capacity"),
		globals:   NewEnv(nil),
		cfg:       cfg,
		registry:  registry,
		Stdout:    func(s string) { fmt.Print(s) },
	}
	vm.gc = NewGC(cfg, vm)
	vm.modules = NewModuleRegistry(loader, cfg, registry)
	RegisterBuiltins(vm)
	return vm
}

func (vm *VM) push(v Value) {
	if vm.sp >= len(vm.stack) {
		vm.stack = append(vm.stack, v)
		vm.sp++
		return
	}
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() Value {
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) peek(depth int) Value {
	return vm.stack[vm.sp-1-depth]
}

func (vm *VM) currentFrame() *Frame {
	return vm.frames[len(vm.frames)-1]
}

// Run compiles and executes path/src as the top-level program, returning
// the compiled Program, or the first fatal error.
func (vm *VM) Run(path string, src []byte) (*Program, error) {
	program, errs := Compile(path, src, vm.cfg, vm.registry)
	if program == nil {
		return nil, errs[0]
	}
	if hasFatal(errs) {
		return program, errs[0]
	}
	if err := vm.runProgramToCompletion(program); err != nil {
		return program, err
	}
	program.State = ModuleLoaded
	return program, nil
}

// Eval is Run's interactive sibling: it executes src against one
// persistent environment kept alive across calls, so REPL lines share
// bindings the way a single script's statements would.
func (vm *VM) Eval(path string, src []byte) (*Program, error) {
	program, errs := Compile(path, src, vm.cfg, vm.registry)
	if program == nil {
		return nil, errs[0]
	}
	if hasFatal(errs) {
		return program, errs[0]
	}
	if vm.replEnv == nil {
		vm.replEnv = vm.gc.TrackEnv(NewEnv(vm.globals))
		vm.replEnv.Size = 64
	}
	frame := &Frame{fn: program.TopLevel, env: vm.replEnv, base: vm.sp, program: program}
	vm.frames = append(vm.frames, frame)
	depth := len(vm.frames) - 1
	err := vm.loop(depth)
	vm.finishTopLevel(frame, depth, err)
	if err != nil {
		return program, err
	}
	program.State = ModuleLoaded
	return program, nil
}

// runProgramToCompletion pushes a fresh top-level frame for program and
// drives the dispatch loop until that frame (and anything it calls)
// returns — the synchronous "re-enter the compiler and interpreter"
// behavior spec.md §4.7 describes for a first-time import.
func (vm *VM) runProgramToCompletion(program *Program) error {
	env := vm.gc.TrackEnv(NewEnv(vm.globals))
	env.Size = 64
	frame := &Frame{fn: program.TopLevel, env: env, base: vm.sp, program: program}
	vm.frames = append(vm.frames, frame)
	depth := len(vm.frames) - 1
	err := vm.loop(depth)
	vm.finishTopLevel(frame, depth, err)
	return err
}

// finishTopLevel discards what a synthetic top-level frame leaves
// behind. No OP_CALL set the frame up, so no caller consumes the null
// its trailing RETURN pushes at frame.base — without this reset every
// first-time import would leak one operand-stack slot below the
// importer's live values. On error the frame stack is unwound to the
// module boundary as well (spec.md §7); the backtrace was already
// captured while the frames were still live.
func (vm *VM) finishTopLevel(frame *Frame, depth int, err error) {
	if err != nil {
		vm.frames = vm.frames[:depth]
	}
	vm.sp = frame.base
}

// loop drives the fetch/decode/dispatch cycle until the frame stack
// unwinds back to stopDepth, at which point the frame that was active
// when loop was entered has returned.
func (vm *VM) loop(stopDepth int) error {
	for len(vm.frames) > stopDepth {
		if err := vm.step(); err != nil {
			return vm.wrapRuntimeError(err)
		}
	}
	return nil
}

func (vm *VM) wrapRuntimeError(err error) error {
	if ne, ok := err.(*NyxError); ok {
		if len(ne.Frames) == 0 {
			ne.Frames = vm.backtrace()
		}
		return ne
	}
	f := vm.currentFrame()
	sp := vm.tokenSpan(f)
	ne := newRuntimeError(f.program.Path, sp, "%s", err.Error())
	ne.Frames = vm.backtrace()
	return ne
}

func (vm *VM) backtrace() []FrameInfo {
	out := make([]FrameInfo, 0, len(vm.frames))
	for i := len(vm.frames) - 1; i >= 0; i-- {
		f := vm.frames[i]
		name := f.fn.Name
		if name == "" {
			name = "<script>"
		}
		out = append(out, FrameInfo{FunctionName: name, Span: vm.tokenSpan(f)})
	}
	return out
}

func (vm *VM) tokenSpan(f *Frame) Span {
	chunk := f.fn.Chunk
	ip := f.ip
	if ip > 0 {
		ip--
	}
	if ip < 0 || ip >= len(chunk.Tokens) {
		return Span{}
	}
	tok := chunk.Tokens[ip]
	loc := Location{Line: tok.Line, Column: tok.Column}
	return Span{Start: loc, End: loc}
}

// step executes exactly one instruction of the currently active frame.
func (vm *VM) step() error {
	f := vm.currentFrame()
	chunk := f.fn.Chunk
	op := OpCode(chunk.Code[f.ip])
	opOffset := f.ip
	f.ip++
	size := operandSize[op]
	operand := chunk.Code[f.ip : f.ip+size]
	f.ip += size

	switch op {
	case OpConstant:
		idx := decodeU16(operand)
		vm.push(chunk.Constants[idx])

	case OpNull:
		vm.push(Null())
	case OpTrue:
		vm.push(Bool(true))
	case OpFalse:
		vm.push(Bool(false))
	case OpPop:
		vm.pop()

	case OpNegate:
		v := vm.pop()
		if v.Kind != ValNumber {
			return vm.typeError(f, "cannot negate a %s", v.TypeName())
		}
		vm.push(Number(-v.Number))
	case OpNot:
		vm.push(Bool(!vm.pop().Truthy()))
	case OpStringify:
		v := vm.pop()
		vm.push(FromObject(vm.gc.TrackObject(NewStringObject(v.String()))))

	case OpAdd, OpSub, OpMul, OpDiv, OpModulo:
		if err := vm.arith(op); err != nil {
			return err
		}
	case OpEqual:
		b := vm.pop()
		a := vm.pop()
		vm.push(Bool(Equal(a, b)))
	case OpGreater, OpGreaterEqual, OpLess, OpLessEqual:
		if err := vm.compare(op); err != nil {
			return err
		}

	case OpGetVar:
		name := chunk.Constants[decodeU16(operand)].Obj.AsString()
		v, err := f.env.Get(name)
		if err != nil {
			return newRuntimeError(f.program.Path, vm.tokenSpan(f), "unbound name '%s'", name)
		}
		vm.push(v)
	case OpSetVar:
		name := chunk.Constants[decodeU16(operand)].Obj.AsString()
		v := vm.peek(0)
		if err := f.env.Set(name, v); err != nil {
			return newRuntimeError(f.program.Path, vm.tokenSpan(f), "%s: %s", err.Error(), name)
		}
		vm.gc.BarrierEnv(f.env, v)
	case OpDefineVar, OpDefineConst:
		name := chunk.Constants[decodeU16(operand)].Obj.AsString()
		v := vm.pop()
		if err := f.env.Define(name, v, op == OpDefineConst); err != nil {
			return newRuntimeError(f.program.Path, vm.tokenSpan(f), "%s: %s", err.Error(), name)
		}
		vm.gc.BarrierEnv(f.env, v)

	case OpGetProperty:
		name := chunk.Constants[decodeU16(operand)].Obj.AsString()
		obj := vm.pop()
		v, err := vm.getProperty(obj, name, opOffset, chunk)
		if err != nil {
			return err
		}
		vm.push(v)
	case OpGetPropertyOptional:
		name := chunk.Constants[decodeU16(operand)].Obj.AsString()
		obj := vm.pop()
		if obj.IsNull() {
			vm.push(Null())
			break
		}
		v, err := vm.getProperty(obj, name, opOffset, chunk)
		if err != nil {
			return err
		}
		vm.push(v)
	case OpSetProperty:
		name := chunk.Constants[decodeU16(operand)].Obj.AsString()
		val := vm.pop()
		obj := vm.pop()
		if obj.IsNull() {
			return vm.typeError(f, "cannot set property '%s' on null", name)
		}
		if obj.Kind != ValObject || obj.Obj.Tag != ObjInstance {
			return vm.typeError(f, "cannot set property '%s' on a %s", name, obj.TypeName())
		}
		obj.Obj.AsInstance().Fields[name] = val
		vm.gc.Barrier(obj.Obj, val)
		vm.push(val)

	case OpGetIndex:
		idxVal := vm.pop()
		obj := vm.pop()
		v, err := vm.getIndex(f, obj, idxVal)
		if err != nil {
			return err
		}
		vm.push(v)
	case OpGetIndexOptional:
		idxVal := vm.pop()
		obj := vm.pop()
		if obj.IsNull() {
			vm.push(Null())
			break
		}
		v, err := vm.getIndex(f, obj, idxVal)
		if err != nil {
			return err
		}
		vm.push(v)
	case OpSetIndex:
		val := vm.pop()
		idxVal := vm.pop()
		obj := vm.pop()
		if err := vm.setIndex(f, obj, idxVal, val); err != nil {
			return err
		}
		vm.push(val)

	case OpArray:
		cap0 := int(decodeU16(operand))
		arr := vm.gc.TrackObject(NewArrayObject(make([]Value, 0, cap0)))
		vm.push(FromObject(arr))
	case OpMap:
		m := vm.gc.TrackObject(NewMapObject(nil))
		vm.push(FromObject(m))
	case OpArrayAppend:
		v := vm.pop()
		arrVal := vm.peek(0)
		a := arrVal.Obj.AsArray()
		a.Elems = append(a.Elems, v)
		vm.gc.Barrier(arrVal.Obj, v)
	case OpMapSet:
		v := vm.pop()
		key := vm.pop()
		mVal := vm.peek(0)
		mVal.Obj.AsMap().Set(key.Obj.AsString(), v)
		vm.gc.Barrier(mVal.Obj, v)

	case OpJump:
		rel := decodeU16(operand)
		f.ip += int(rel)
	case OpJumpIfFalse:
		rel := decodeU16(operand)
		if !vm.peek(0).Truthy() {
			f.ip += int(rel)
		}
	case OpLoop:
		rel := decodeU16(operand)
		f.ip -= int(rel)

	case OpCall:
		argc := int(operand[0])
		args := vm.popArgs(argc)
		callee := vm.pop()
		if err := vm.callValue(f, callee, args); err != nil {
			return err
		}
	case OpCallOptional:
		argc := int(operand[0])
		args := vm.popArgs(argc)
		callee := vm.pop()
		if callee.IsNull() {
			vm.push(Null())
			break
		}
		if err := vm.callValue(f, callee, args); err != nil {
			return err
		}

	case OpInvoke:
		nameIdx := decodeU16(operand[:2])
		argc := int(operand[2])
		name := chunk.Constants[nameIdx].Obj.AsString()
		args := vm.popArgs(argc)
		receiver := vm.pop()
		if err := vm.invoke(f, chunk, opOffset, receiver, name, args); err != nil {
			return err
		}

	case OpClosure:
		idx := decodeU16(operand)
		proto := chunk.Constants[idx].Obj.AsFunction()
		closureFn := &FunctionObj{
			Name: proto.Name, Arity: proto.Arity, MinArity: proto.MinArity,
			IsInit: proto.IsInit, Params: proto.Params, Chunk: proto.Chunk,
			Program: proto.Program, Env: f.env,
		}
		obj := vm.gc.TrackObject(wrapFunctionValue(closureFn))
		vm.push(FromObject(obj))
	case OpClass:
		nameIdx := decodeU16(operand[:2])
		methodCount := int(decodeU16(operand[2:4]))
		methods := make(map[string]*Object, methodCount)
		for i := 0; i < methodCount; i++ {
			nameVal := vm.pop()
			closureVal := vm.pop()
			methods[nameVal.Obj.AsString()] = closureVal.Obj
		}
		className := chunk.Constants[nameIdx].Obj.AsString()
		obj := NewClassObject(className)
		obj.cls.Methods = methods
		vm.gc.TrackObject(obj)
		vm.push(FromObject(obj))
	case OpReturn:
		result := vm.pop()
		vm.frames = vm.frames[:len(vm.frames)-1]
		vm.push(result)

	case OpImport, OpImportModule:
		idx := decodeU16(operand)
		path := chunk.Constants[idx].Obj.AsString()
		modVal, err := vm.resolveModule(f, path)
		if err != nil {
			return err
		}
		vm.push(modVal)
	case OpExport:
		idx := decodeU16(operand)
		name := chunk.Constants[idx].Obj.AsString()
		v, err := f.env.Get(name)
		if err != nil {
			return newRuntimeError(f.program.Path, vm.tokenSpan(f), "cannot export unbound name '%s'", name)
		}
		f.program.Exports.Set(name, v)
	case OpExportValue:
		idx := decodeU16(operand)
		name := chunk.Constants[idx].Obj.AsString()
		v := vm.pop()
		f.program.Exports.Set(name, v)
	case OpExportFrom:
		count := decodeU16(operand)
		modVal := vm.pop()
		srcMap := modVal.Obj.AsMap()
		if count == 0 {
			for _, k := range srcMap.Keys() {
				v, _ := srcMap.Get(k)
				f.program.Exports.Set(k, v)
			}
		} else {
			for i := 0; i < int(count); i++ {
				fromIdx := decodeU16(chunk.Code[f.ip : f.ip+2])
				f.ip += 2
				toIdx := decodeU16(chunk.Code[f.ip : f.ip+2])
				f.ip += 2
				fromName := chunk.Constants[fromIdx].Obj.AsString()
				toName := chunk.Constants[toIdx].Obj.AsString()
				if v, ok := srcMap.Get(fromName); ok {
					f.program.Exports.Set(toName, v)
				}
			}
		}

	case OpBeginScope:
		newEnv := vm.gc.TrackEnv(NewEnv(f.env))
		newEnv.Size = 64
		f.env = newEnv
	case OpEndScope:
		f.env = f.env.parent

	case OpArgCount:
		vm.push(Number(float64(f.argc)))
	case OpGC:
		vm.gc.MaybeGC()

	default:
		panicGCInvariant("unknown opcode %d at offset %d", byte(op), opOffset)
	}
	return nil
}

func (vm *VM) typeError(f *Frame, format string, args ...any) error {
	return newRuntimeError(f.program.Path, vm.tokenSpan(f), format, args...)
}

func (vm *VM) popArgs(argc int) []Value {
	args := make([]Value, argc)
	copy(args, vm.stack[vm.sp-argc:vm.sp])
	vm.sp -= argc
	return args
}

func (vm *VM) arith(op OpCode) error {
	b := vm.pop()
	a := vm.pop()
	f := vm.currentFrame()
	if op == OpAdd && a.Kind == ValObject && b.Kind == ValObject &&
		a.Obj.Tag == ObjString && b.Obj.Tag == ObjString {
		vm.push(FromObject(vm.gc.TrackObject(NewStringObject(a.Obj.AsString() + b.Obj.AsString()))))
		return nil
	}
	if a.Kind != ValNumber || b.Kind != ValNumber {
		return vm.typeError(f, "cannot apply %s to %s and %s", op, a.TypeName(), b.TypeName())
	}
	switch op {
	case OpAdd:
		vm.push(Number(a.Number + b.Number))
	case OpSub:
		vm.push(Number(a.Number - b.Number))
	case OpMul:
		vm.push(Number(a.Number * b.Number))
	case OpDiv:
		if b.Number == 0 {
			return vm.typeError(f, "division by zero")
		}
		vm.push(Number(a.Number / b.Number))
	case OpModulo:
		if b.Number == 0 {
			return vm.typeError(f, "division by zero")
		}
		vm.push(Number(math.Mod(a.Number, b.Number)))
	}
	return nil
}

func (vm *VM) compare(op OpCode) error {
	b := vm.pop()
	a := vm.pop()
	f := vm.currentFrame()
	var cmp int
	switch {
	case a.Kind == ValNumber && b.Kind == ValNumber:
		switch {
		case a.Number < b.Number:
			cmp = -1
		case a.Number > b.Number:
			cmp = 1
		}
	case a.Kind == ValObject && b.Kind == ValObject && a.Obj.Tag == ObjString && b.Obj.Tag == ObjString:
		as, bs := a.Obj.AsString(), b.Obj.AsString()
		switch {
		case as < bs:
			cmp = -1
		case as > bs:
			cmp = 1
		}
	default:
		return vm.typeError(f, "cannot compare %s and %s", a.TypeName(), b.TypeName())
	}
	switch op {
	case OpGreater:
		vm.push(Bool(cmp > 0))
	case OpGreaterEqual:
		vm.push(Bool(cmp >= 0))
	case OpLess:
		vm.push(Bool(cmp < 0))
	case OpLessEqual:
		vm.push(Bool(cmp <= 0))
	}
	return nil
}

// getProperty implements GET_PROPERTY for every receiver shape the
// language allows it on: instance fields/bound methods (with an inline
// cache keyed by the call-site offset), map member access (used for
// module namespaces and enum wrapper maps), and the missing-property
// runtime-error spec.md §7 lists.
func (vm *VM) getProperty(obj Value, name string, siteOffset int, chunk *Chunk) (Value, error) {
	if obj.IsNull() {
		return Value{}, newRuntimeError("", Span{}, "cannot access property '%s' on null", name)
	}
	if obj.Kind != ValObject {
		return Value{}, newRuntimeError("", Span{}, "cannot access property '%s' on a %s", name, obj.TypeName())
	}
	switch obj.Obj.Tag {
	case ObjInstance:
		inst := obj.Obj.AsInstance()
		if v, ok := inst.Fields[name]; ok {
			return v, nil
		}
		ic := chunk.CacheAt(siteOffset)
		var method *Object
		if ic.ClassIdentity == inst.Class && ic.CachedMethod != nil {
			method = ic.CachedMethod
		} else if m, ok := inst.Class.Methods[name]; ok {
			method = m
			ic.ClassIdentity = inst.Class
			ic.CachedMethod = m
			ic.CachedField = false
		} else {
			return Value{}, newRuntimeError("", Span{}, "missing property '%s' without ?.", name)
		}
		bound := vm.gc.TrackObject(NewBoundMethodObject(obj, method))
		return FromObject(bound), nil
	case ObjMap:
		if v, ok := obj.Obj.AsMap().Get(name); ok {
			return v, nil
		}
		return Value{}, newRuntimeError("", Span{}, "missing property '%s' without ?.", name)
	default:
		return Value{}, newRuntimeError("", Span{}, "cannot access property '%s' on a %s", name, obj.TypeName())
	}
}

func (vm *VM) getIndex(f *Frame, obj, idxVal Value) (Value, error) {
	if obj.IsNull() {
		return Null(), nil
	}
	if obj.Kind != ValObject {
		return Value{}, vm.typeError(f, "cannot index a %s", obj.TypeName())
	}
	switch obj.Obj.Tag {
	case ObjArray:
		arr := obj.Obj.AsArray()
		if idxVal.Kind != ValNumber {
			return Value{}, vm.typeError(f, "array index must be a number")
		}
		i := int(idxVal.Number)
		if i < 0 || i >= len(arr.Elems) {
			return Value{}, vm.typeError(f, "index out of range: %d", i)
		}
		return arr.Elems[i], nil
	case ObjMap:
		if idxVal.Kind != ValObject || idxVal.Obj.Tag != ObjString {
			return Value{}, vm.typeError(f, "map key must be a string")
		}
		if v, ok := obj.Obj.AsMap().Get(idxVal.Obj.AsString()); ok {
			return v, nil
		}
		return Null(), nil
	default:
		return Value{}, vm.typeError(f, "cannot index a %s", obj.TypeName())
	}
}

func (vm *VM) setIndex(f *Frame, obj, idxVal, val Value) error {
	if obj.Kind != ValObject {
		return vm.typeError(f, "cannot index-assign a %s", obj.TypeName())
	}
	switch obj.Obj.Tag {
	case ObjArray:
		arr := obj.Obj.AsArray()
		if idxVal.Kind != ValNumber {
			return vm.typeError(f, "array index must be a number")
		}
		i := int(idxVal.Number)
		if i < 0 || i >= len(arr.Elems) {
			return vm.typeError(f, "index out of range: %d", i)
		}
		arr.Elems[i] = val
		vm.gc.Barrier(obj.Obj, val)
		return nil
	case ObjMap:
		if idxVal.Kind != ValObject || idxVal.Obj.Tag != ObjString {
			return vm.typeError(f, "map key must be a string")
		}
		obj.Obj.AsMap().Set(idxVal.Obj.AsString(), val)
		vm.gc.Barrier(obj.Obj, val)
		return nil
	default:
		return vm.typeError(f, "cannot index-assign a %s", obj.TypeName())
	}
}

// callValue is the shared CALL/CALL_OPTIONAL/INVOKE-fallback dispatch:
// every callable shape spec.md §4.4 lists funnels through here. A null
// callee silently yields null rather than erroring, which is what makes
// `?.` chains short-circuit all the way through a trailing call without
// a dedicated "pop the rest of the chain" opcode (see DESIGN.md).
func (vm *VM) callValue(caller *Frame, callee Value, args []Value) error {
	if callee.IsNull() {
		vm.push(Null())
		return nil
	}
	if callee.Kind != ValObject {
		return vm.typeError(caller, "value of type %s is not callable", callee.TypeName())
	}
	switch callee.Obj.Tag {
	case ObjFunction:
		return vm.callClosure(caller, callee.Obj, args)
	case ObjNative:
		return vm.callNative(caller, callee.Obj.AsNative(), args)
	case ObjBoundMethod:
		bm := callee.Obj.AsBoundMethod()
		full := append([]Value{bm.Receiver}, args...)
		return vm.callClosure(caller, bm.Method, full)
	case ObjClass:
		return vm.construct(caller, callee.Obj.AsClass(), args)
	case ObjEnumCtor:
		ctor := callee.Obj.AsEnumCtor()
		if len(args) != ctor.Arity {
			return vm.typeError(caller, "%s.%s expects %d argument(s), got %d", ctor.EnumName, ctor.TagName, ctor.Arity, len(args))
		}
		ev := vm.gc.TrackObject(NewEnumValueObject(ctor.EnumName, ctor.TagName, args))
		vm.push(FromObject(ev))
		return nil
	default:
		return vm.typeError(caller, "value of type %s is not callable", callee.TypeName())
	}
}

func (vm *VM) construct(caller *Frame, cls *ClassObj, args []Value) error {
	instance := vm.gc.TrackObject(NewInstanceObject(cls))
	if initFn, ok := cls.Methods["init"]; ok {
		full := append([]Value{FromObject(instance)}, args...)
		return vm.callClosure(caller, initFn, full)
	}
	if len(args) != 0 {
		return vm.typeError(caller, "%s takes no arguments", cls.Name)
	}
	vm.push(FromObject(instance))
	return nil
}

func (vm *VM) callNative(caller *Frame, n *NativeObj, args []Value) error {
	if n.Arity >= 0 && len(args) != n.Arity {
		return vm.typeError(caller, "%s expects %d argument(s), got %d", n.Name, n.Arity, len(args))
	}
	result, err := n.Fn(vm, args)
	if err != nil {
		if ne, ok := err.(*NyxError); ok {
			return ne
		}
		return vm.typeError(caller, "%s", err.Error())
	}
	vm.push(result)
	return nil
}

// callClosure pushes a new frame binding closureObj's parameters from
// args (missing trailing args become null; their default-value
// preambles run as ordinary bytecode once the frame starts executing).
func (vm *VM) callClosure(caller *Frame, closureObj *Object, args []Value) error {
	fn := closureObj.fn
	if len(args) < fn.MinArity || len(args) > fn.Arity {
		return vm.typeError(caller, "%s expects between %d and %d argument(s), got %d", displayName(fn.Name), fn.MinArity, fn.Arity, len(args))
	}
	if len(vm.frames) >= vm.maxFrames {
		return vm.typeError(caller, "call stack overflow calling %s", displayName(fn.Name))
	}
	env := vm.gc.TrackEnv(NewEnv(fn.Env))
	env.Size = 64
	for i, p := range fn.Params {
		if i < len(args) {
			env.Define(p, args[i], false)
		} else {
			env.Define(p, Null(), false)
		}
	}
	program := fn.Program
	if program == nil {
		program = caller.program
	}
	frame := &Frame{fn: fn, closure: closureObj, env: env, base: vm.sp, argc: len(args), program: program}
	vm.frames = append(vm.frames, frame)
	return nil
}

func displayName(name string) string {
	if name == "" {
		return "<anonymous function>"
	}
	return name
}

// invoke implements INVOKE's fused property-lookup-and-call: a callable
// instance field is called directly with no receiver bound; a class
// method is called with the receiver prepended, using the call site's
// inline cache to skip the class method-table lookup on a repeat hit.
// Non-instance receivers fall back to plain getProperty+callValue.
func (vm *VM) invoke(caller *Frame, chunk *Chunk, siteOffset int, receiver Value, name string, args []Value) error {
	if receiver.IsNull() {
		vm.push(Null())
		return nil
	}
	if receiver.Kind == ValObject && receiver.Obj.Tag == ObjInstance {
		inst := receiver.Obj.AsInstance()
		if field, ok := inst.Fields[name]; ok {
			return vm.callValue(caller, field, args)
		}
		ic := chunk.CacheAt(siteOffset)
		var method *Object
		if ic.ClassIdentity == inst.Class && ic.CachedMethod != nil && !ic.CachedField {
			method = ic.CachedMethod
		} else if m, ok := inst.Class.Methods[name]; ok {
			method = m
			ic.ClassIdentity = inst.Class
			ic.CachedMethod = m
			ic.CachedField = false
		} else {
			return vm.typeError(caller, "missing property '%s' without ?.", name)
		}
		full := append([]Value{receiver}, args...)
		return vm.callClosure(caller, method, full)
	}
	prop, err := vm.getProperty(receiver, name, siteOffset, chunk)
	if err != nil {
		return err
	}
	return vm.callValue(caller, prop, args)
}

// resolveModule implements IMPORT/IMPORT_MODULE: resolve importPath
// relative to the importing frame's own program, then push the export
// table wrapped as a plain map value so `.` access and INVOKE both work
// on it unmodified (spec.md §4.7).
func (vm *VM) resolveModule(f *Frame, importPath string) (Value, error) {
	program, err := vm.modules.Resolve(vm, importPath, f.program.Path)
	if err != nil {
		return Value{}, err
	}
	wrapper := vm.gc.TrackObject(NewMapObject(program.Exports))
	return FromObject(wrapper), nil
}
