package nyx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func runErr(t *testing.T, src string) *NyxError {
	t.Helper()
	vm, _ := newTestVM(t)
	_, err := vm.Run("<test>", []byte(src))
	require.Error(t, err)
	ne, ok := err.(*NyxError)
	require.True(t, ok, "expected a NyxError, got %T", err)
	return ne
}

// TestDefaultParameterArityBoundaries is spec §8's boundary behavior:
// fun f(a, b=2, c=3) accepts 1, 2, or 3 arguments and rejects 0 or 4.
func TestDefaultParameterArityBoundaries(t *testing.T) {
	decl := `fun f(a, b = 2, c = 3) { return a + b * 10 + c * 100; }`

	_, out := runOK(t, decl+`
print(f(1));
print(f(1, 5));
print(f(1, 5, 7));
`)
	require.Equal(t, "321\n351\n751\n", out)

	ne := runErr(t, decl+` f();`)
	require.Equal(t, KindRuntimeError, ne.Kind)

	ne = runErr(t, decl+` f(1, 2, 3, 4);`)
	require.Equal(t, KindRuntimeError, ne.Kind)
}

func TestDefaultsEvaluateInDeclarationOrder(t *testing.T) {
	_, out := runOK(t, `
fun f(a, b = a + 1, c = b * 2) { return c; }
print(f(5));
print(f(5, 10));
`)
	require.Equal(t, "12\n20\n", out)
}

func TestConstReassignmentIsRuntimeError(t *testing.T) {
	ne := runErr(t, `const x = 1; x = 2;`)
	require.Equal(t, KindRuntimeError, ne.Kind)
}

func TestConstRedefinitionInSameScopeIsRuntimeError(t *testing.T) {
	ne := runErr(t, `const x = 1; const x = 2;`)
	require.Equal(t, KindRuntimeError, ne.Kind)
}

func TestLetRedefinitionReplaces(t *testing.T) {
	_, out := runOK(t, `let x = 1; let x = 2; print(x);`)
	require.Equal(t, "2\n", out)
}

func TestShadowingInInnerScope(t *testing.T) {
	_, out := runOK(t, `
const x = 1;
{
  const x = 2;
  print(x);
}
print(x);
`)
	require.Equal(t, "2\n1\n", out)
}

func TestDivisionByZeroIsRuntimeError(t *testing.T) {
	ne := runErr(t, `let a = 1; let b = 0; print(a / b);`)
	require.Equal(t, KindRuntimeError, ne.Kind)
}

func TestIndexOutOfRangeIsRuntimeError(t *testing.T) {
	ne := runErr(t, `let xs = [1, 2]; print(xs[5]);`)
	require.Equal(t, KindRuntimeError, ne.Kind)
}

func TestUnboundNameIsRuntimeError(t *testing.T) {
	ne := runErr(t, `print(nothing);`)
	require.Equal(t, KindRuntimeError, ne.Kind)
}

func TestNonCallableCallIsRuntimeError(t *testing.T) {
	ne := runErr(t, `let x = 5; x();`)
	require.Equal(t, KindRuntimeError, ne.Kind)
}

func TestBreakExitsLoopEarly(t *testing.T) {
	_, out := runOK(t, `
let i = 0;
while (true) {
  if (i == 3) { break; }
  print(i);
  i = i + 1;
}
print("done");
`)
	require.Equal(t, "0\n1\n2\ndone\n", out)
}

func TestContinueSkipsIteration(t *testing.T) {
	_, out := runOK(t, `
for (let i = 0; i < 5; i = i + 1) {
  if (i == 2) { continue; }
  print(i);
}
`)
	require.Equal(t, "0\n1\n3\n4\n", out)
}

func TestContinueInForeachAdvancesIndex(t *testing.T) {
	_, out := runOK(t, `
foreach (x in [1, 2, 3, 4]) {
  if (x == 2) { continue; }
  print(x);
}
`)
	require.Equal(t, "1\n3\n4\n", out)
}

func TestBreakInForeach(t *testing.T) {
	_, out := runOK(t, `
foreach (x in [1, 2, 3, 4]) {
  if (x == 3) { break; }
  print(x);
}
print("after");
`)
	require.Equal(t, "1\n2\nafter\n", out)
}

func TestBreakUnwindsNestedScopes(t *testing.T) {
	// The break below jumps out of two nested blocks; definitions after
	// the loop must land back in the loop's enclosing scope, so the
	// const redefinition check still sees the outer binding.
	ne := runErr(t, `
const marker = 1;
while (true) {
  {
    break;
  }
}
const marker = 2;
`)
	require.Equal(t, KindRuntimeError, ne.Kind)
}

func TestSwitchWithoutDefaultFallsThrough(t *testing.T) {
	_, out := runOK(t, `
switch (9) {
  case 1:
    print("one");
  case 2:
    print("two");
}
print("after");
`)
	require.Equal(t, "after\n", out)
}

func TestTripleQuotedStringPreservesNewlinesAndQuotes(t *testing.T) {
	_, out := runOK(t, "print(\"\"\"line \"one\"\nline two\"\"\");")
	require.Equal(t, "line \"one\"\nline two\n", out)
}

func TestInterpolationInsideTripleQuotedString(t *testing.T) {
	_, out := runOK(t, "let n = 3;\nprint(\"\"\"n=${n}\"\"\");")
	require.Equal(t, "n=3\n", out)
}

// TestTypeErrorDoesNotBlockExecution is spec §8 scenario 6: the same
// program that fails `typecheck` still runs and prints in run mode.
func TestTypeErrorDoesNotBlockExecution(t *testing.T) {
	src := `let n : number = "hello"; print(n);`

	cfg := NewConfig()
	cfg.SetBool("compiler.typecheck", true)
	program, errs := Compile("<test>", []byte(src), cfg, NewInterfaceRegistry())
	require.NotNil(t, program)
	require.Len(t, errs, 1)
	require.Equal(t, KindTypeError, errs[0].Kind)

	_, out := runOK(t, src)
	require.Equal(t, "hello\n", out)
}

func TestRuntimeErrorCarriesBacktrace(t *testing.T) {
	ne := runErr(t, `
fun inner() { return missing; }
fun outer() { return inner(); }
outer();
`)
	require.Equal(t, KindRuntimeError, ne.Kind)
	require.GreaterOrEqual(t, len(ne.Frames), 3)
	require.Equal(t, "inner", ne.Frames[0].FunctionName)
	require.Equal(t, "outer", ne.Frames[1].FunctionName)
	require.Equal(t, "<script>", ne.Frames[len(ne.Frames)-1].FunctionName)
}

func TestBoundMethodExtraction(t *testing.T) {
	_, out := runOK(t, `
class Counter {
  init() { this.n = 10; }
  get() { return this.n; }
}
let c = Counter();
let m = c.get;
print(m());
`)
	require.Equal(t, "10\n", out)
}

func TestCallableInstanceFieldShadowsMethod(t *testing.T) {
	_, out := runOK(t, `
class Holder {
  init(f) { this.hook = f; }
}
fun greet() { return "hi"; }
let h = Holder(greet);
print(h.hook());
`)
	require.Equal(t, "hi\n", out)
}

func TestInlineCacheRepeatDispatchStaysCorrect(t *testing.T) {
	// The same INVOKE site dispatches across many calls on the same
	// class; the cache hit path must agree with the slow path.
	_, out := runOK(t, `
class Acc {
  init() { this.total = 0; }
  add(n) { this.total = this.total + n; return this.total; }
}
let a = Acc();
let last = 0;
for (let i = 1; i < 6; i = i + 1) {
  last = a.add(i);
}
print(last);
`)
	require.Equal(t, "15\n", out)
}

func TestOptionalMethodCallWithArguments(t *testing.T) {
	_, out := runOK(t, `
class Box {
  init(v) { this.v = v; }
  plus(n) { return this.v + n; }
}
let b = Box(40);
print(b?.plus(2));
let gone = null;
print(gone?.plus(2));
`)
	require.Equal(t, "42\nnull\n", out)
}

func TestEnumPayloadConstruction(t *testing.T) {
	_, out := runOK(t, `
enum Shape { Dot, Circle(r), Rect(w, h) }
let c = Shape.Circle(5);
print(c);
let r = Shape.Rect(2, 3);
print(r);
`)
	require.Equal(t, "Shape.Circle(5)\nShape.Rect(2, 3)\n", out)
}

func TestUnboundedRecursionOverflowsCleanly(t *testing.T) {
	ne := runErr(t, `
fun spin() { return spin(); }
spin();
`)
	require.Equal(t, KindRuntimeError, ne.Kind)
	require.Contains(t, ne.Message, "call stack overflow")
}

func TestEvalKeepsBindingsAcrossCalls(t *testing.T) {
	vm, out := newTestVM(t)
	_, err := vm.Eval("<repl:1>", []byte(`let x = 20;`))
	require.NoError(t, err)
	_, err = vm.Eval("<repl:2>", []byte(`fun double(n) { return n * 2; }`))
	require.NoError(t, err)
	_, err = vm.Eval("<repl:3>", []byte(`print(double(x) + 2);`))
	require.NoError(t, err)
	require.Equal(t, "42\n", out.String())
	require.Equal(t, 0, vm.sp, "each Eval must leave the operand stack where it found it")
}

func TestEvalRecoversAfterRuntimeError(t *testing.T) {
	vm, out := newTestVM(t)
	_, err := vm.Eval("<repl:1>", []byte(`nope();`))
	require.Error(t, err)
	require.Empty(t, vm.frames, "a failed line must unwind its frames before the next prompt")
	require.Equal(t, 0, vm.sp)

	_, err = vm.Eval("<repl:2>", []byte(`print(1 + 1);`))
	require.NoError(t, err)
	require.Equal(t, "2\n", out.String())
}

func TestModuloHandlesFractionalOperands(t *testing.T) {
	_, out := runOK(t, `
print(7 % 3);
print(5.5 % 2);
print(5 % 0.5);
`)
	require.Equal(t, "1\n1.5\n0\n", out)
}

func TestModuloByZeroIsRuntimeError(t *testing.T) {
	ne := runErr(t, `let b = 0; print(5 % b);`)
	require.Equal(t, KindRuntimeError, ne.Kind)
}

func TestInterfaceDeclarationRegistersContract(t *testing.T) {
	reg := NewInterfaceRegistry()
	cfg := NewConfig()
	cfg.SetBool("compiler.typecheck", true)
	_, errs := Compile("<test>", []byte(`
interface Shape {
  area() -> number;
}
class Circle implements Shape {
  init(r) { this.r = r; }
  area() { return this.r * this.r * 3; }
}
`), cfg, reg)
	require.Empty(t, errs)
	require.True(t, reg.Implements("Circle", "Shape"))
}
