package nyx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEqualityIsStructuralForPrimitives(t *testing.T) {
	require.True(t, Equal(Null(), Null()))
	require.True(t, Equal(Bool(true), Bool(true)))
	require.False(t, Equal(Bool(true), Bool(false)))
	require.True(t, Equal(Number(1.5), Number(1.5)))
	require.False(t, Equal(Number(1), Bool(true)), "values of different kinds never compare equal")
}

func TestEqualityComparesStringsByContent(t *testing.T) {
	a := FromObject(NewStringObject("hello"))
	b := FromObject(NewStringObject("hello"))
	require.NotSame(t, a.Obj, b.Obj)
	require.True(t, Equal(a, b))
	require.False(t, Equal(a, FromObject(NewStringObject("world"))))
}

func TestEqualityIsIdentityForNonStringObjects(t *testing.T) {
	x := FromObject(NewArrayObject([]Value{Number(1)}))
	y := FromObject(NewArrayObject([]Value{Number(1)}))
	require.False(t, Equal(x, y))
	require.True(t, Equal(x, x))
}

func TestTruthiness(t *testing.T) {
	require.False(t, Null().Truthy())
	require.False(t, Bool(false).Truthy())
	require.True(t, Bool(true).Truthy())
	require.True(t, Number(0).Truthy(), "0 is truthy in this language")
	require.True(t, FromObject(NewStringObject("")).Truthy(), "empty string is truthy")
}

func TestNumberFormattingDropsIntegralFraction(t *testing.T) {
	require.Equal(t, "55", Number(55).String())
	require.Equal(t, "-3", Number(-3).String())
	require.Equal(t, "1.5", Number(1.5).String())
}

func TestValueTypeNames(t *testing.T) {
	require.Equal(t, "null", Null().TypeName())
	require.Equal(t, "bool", Bool(true).TypeName())
	require.Equal(t, "number", Number(1).TypeName())
	require.Equal(t, "string", FromObject(NewStringObject("s")).TypeName())
	require.Equal(t, "array", FromObject(NewArrayObject(nil)).TypeName())
}

func TestMapPreservesInsertionOrder(t *testing.T) {
	m := NewMapObj()
	m.Set("b", Number(2))
	m.Set("a", Number(1))
	m.Set("b", Number(3))
	require.Equal(t, []string{"b", "a"}, m.Keys(), "re-setting a key must not move it")
	v, ok := m.Get("b")
	require.True(t, ok)
	require.Equal(t, float64(3), v.Number)
}
