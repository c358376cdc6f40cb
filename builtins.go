package nyx

import "fmt"

// RegisterBuiltins installs the minimal host surface spec.md §8's
// end-to-end scenarios exercise: printing, length/membership
// introspection, and array mutation. Each is a plain NativeGoFunc bound
// into globals exactly the way a loaded native extension would bind one
// through Capability.DefineNative (native.go) — builtins are not
// privileged, they're just registered first.
func RegisterBuiltins(vm *VM) {
	vm.DefineNative("print", -1, builtinPrint)
	vm.DefineNative("len", 1, builtinLen)
	vm.DefineNative("keys", 1, builtinKeys)
	vm.DefineNative("type", 1, builtinType)
	vm.DefineNative("push", 2, builtinPush)
	vm.DefineNative("pop", 1, builtinPop)
}

func builtinPrint(vm *VM, args []Value) (Value, error) {
	for i, a := range args {
		if i > 0 {
			vm.Stdout(" ")
		}
		vm.Stdout(a.String())
	}
	vm.Stdout("\n")
	return Null(), nil
}

func builtinLen(vm *VM, args []Value) (Value, error) {
	v := args[0]
	switch {
	case v.Kind == ValObject && v.Obj.Tag == ObjString:
		return Number(float64(len(v.Obj.AsString()))), nil
	case v.Kind == ValObject && v.Obj.Tag == ObjArray:
		return Number(float64(len(v.Obj.AsArray().Elems))), nil
	case v.Kind == ValObject && v.Obj.Tag == ObjMap:
		return Number(float64(v.Obj.AsMap().Len())), nil
	default:
		return Value{}, fmt.Errorf("len() expects a string, array, or map, got %s", v.TypeName())
	}
}

func builtinKeys(vm *VM, args []Value) (Value, error) {
	v := args[0]
	if v.Kind != ValObject || v.Obj.Tag != ObjMap {
		return Value{}, fmt.Errorf("keys() expects a map, got %s", v.TypeName())
	}
	ks := v.Obj.AsMap().Keys()
	elems := make([]Value, len(ks))
	for i, k := range ks {
		elems[i] = FromObject(vm.gc.TrackObject(NewStringObject(k)))
	}
	return FromObject(vm.gc.TrackObject(NewArrayObject(elems))), nil
}

func builtinType(vm *VM, args []Value) (Value, error) {
	return FromObject(vm.gc.TrackObject(NewStringObject(args[0].TypeName()))), nil
}

func builtinPush(vm *VM, args []Value) (Value, error) {
	arrVal, v := args[0], args[1]
	if arrVal.Kind != ValObject || arrVal.Obj.Tag != ObjArray {
		return Value{}, fmt.Errorf("push() expects an array, got %s", arrVal.TypeName())
	}
	arr := arrVal.Obj.AsArray()
	arr.Elems = append(arr.Elems, v)
	vm.gc.Barrier(arrVal.Obj, v)
	return arrVal, nil
}

func builtinPop(vm *VM, args []Value) (Value, error) {
	arrVal := args[0]
	if arrVal.Kind != ValObject || arrVal.Obj.Tag != ObjArray {
		return Value{}, fmt.Errorf("pop() expects an array, got %s", arrVal.TypeName())
	}
	arr := arrVal.Obj.AsArray()
	if len(arr.Elems) == 0 {
		return Value{}, fmt.Errorf("pop() on an empty array")
	}
	last := arr.Elems[len(arr.Elems)-1]
	arr.Elems = arr.Elems[:len(arr.Elems)-1]
	return last, nil
}
