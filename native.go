package nyx

// Capability is the versioned struct handed to a native extension's load
// function (spec.md §4.8): "a versioned capability struct exposing
// {APIVersion, VM, DefineNative}". There is deliberately no dynamic
// library loader here — loading a .so/.dll and calling its entry point
// is an out-of-scope collaborator's job; this is only the Go-side shape
// a loader would hand a plugin, and the registration table the VM keeps.
const APIVersion = 1

type Capability struct {
	APIVersion   int
	VM           *VM
	DefineNative func(name string, arity int, fn NativeGoFunc)
}

// NewCapability builds the capability struct a native extension's load
// function receives, binding DefineNative back to vm.
func NewCapability(vm *VM) Capability {
	return Capability{
		APIVersion:   APIVersion,
		VM:           vm,
		DefineNative: vm.DefineNative,
	}
}

// DefineNative registers a host function under name in the global
// environment, wrapping it as a heap Object the same way any other
// callable value is represented (spec.md §3's NativeObj).
func (vm *VM) DefineNative(name string, arity int, fn NativeGoFunc) {
	obj := NewNativeObject(name, arity, fn)
	vm.globals.Define(name, FromObject(obj), true)
}

// NativeHandle is an opaque registration the VM retains for the lifetime
// of a loaded native extension, so it can be torn down in registration
// order when the VM itself shuts down (spec.md §4.8: "the VM retains
// loaded handles for teardown").
type NativeHandle struct {
	Name  string
	Close func() error
}

// RegisterHandle retains h so Close runs when the VM is discarded.
func (vm *VM) RegisterHandle(h *NativeHandle) {
	vm.handles = append(vm.handles, h)
}

// Close tears the VM down: native extension handles first, then the
// module registry's program references. Importers may still hold their
// own references, so a program's source and chunks stay resolvable for
// any diagnostic that outlives the registry entry.
func (vm *VM) Close() []error {
	errs := vm.CloseHandles()
	for path, p := range vm.modules.programs {
		delete(vm.modules.programs, path)
		p.Release()
	}
	return errs
}

// CloseHandles runs every retained handle's teardown in reverse
// registration order, collecting (not short-circuiting on) errors.
func (vm *VM) CloseHandles() []error {
	var errs []error
	for i := len(vm.handles) - 1; i >= 0; i-- {
		h := vm.handles[i]
		if h.Close == nil {
			continue
		}
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	vm.handles = nil
	return errs
}
