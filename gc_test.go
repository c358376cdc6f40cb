package nyx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestConstantReferenceDoesNotPinRememberedSet guards against the bug
// where a compile-time constant (built via the bare NewXObject
// constructors, never through TrackObject) defaulted to GenYoung and so
// looked permanently "young" to valueIsYoung. An old object that only
// ever stores a reference to such a constant (e.g. an instance field
// assigned a string literal) must not have its Remembered bit pinned
// by that alone.
func TestConstantReferenceDoesNotPinRememberedSet(t *testing.T) {
	cfg := NewConfig()
	cfg.SetInt("gc.promotion_age", 1)
	vm := NewVM(cfg, NewInMemoryImportLoader(), NewInterfaceRegistry())

	cls := NewClassObject("Box")
	inst := vm.gc.TrackObject(NewInstanceObject(cls.AsClass()))
	require.Equal(t, GenYoung, inst.Generation)

	inst.Marked = true
	vm.gc.youngObjects, vm.gc.youngBytes = vm.gc.sweepYoungObjects()
	require.Equal(t, GenOld, inst.Generation, "object must promote after surviving one sweep at promotion_age=1")

	constStr := NewStringObject("literal")
	require.Equal(t, GenPermanent, constStr.Generation, "a bare, untracked constructor result must never look young")

	vm.gc.Barrier(inst, FromObject(constStr))
	require.False(t, inst.Remembered, "referencing a permanent compile-time constant must not pin the remembered set")
}

// TestWriteBarrierKeepsOldArrayElementLive exercises spec.md §8's
// generational-GC-soundness scenario: promote an array to old, overwrite
// one element with a freshly allocated young object through the write
// barrier, run a minor collection, and confirm the stored object survives.
func TestWriteBarrierKeepsOldArrayElementLive(t *testing.T) {
	cfg := NewConfig()
	cfg.SetInt("gc.promotion_age", 1)
	vm := NewVM(cfg, NewInMemoryImportLoader(), NewInterfaceRegistry())

	elems := make([]Value, 4)
	for i := range elems {
		elems[i] = Number(float64(i))
	}
	arrObj := vm.gc.TrackObject(NewArrayObject(elems))

	arrObj.Marked = true
	vm.gc.youngObjects, vm.gc.youngBytes = vm.gc.sweepYoungObjects()
	require.Equal(t, GenOld, arrObj.Generation)

	young := vm.gc.TrackObject(NewStringObject("fresh"))
	arrObj.AsArray().Elems[0] = FromObject(young)
	vm.gc.Barrier(arrObj, FromObject(young))
	require.True(t, arrObj.Remembered, "write barrier must record the old array referencing a young value")

	vm.gc.minorCollect()

	got := arrObj.AsArray().Elems[0]
	require.Equal(t, ValObject, got.Kind)
	require.Equal(t, "fresh", got.Obj.AsString())
}
