package nyx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newModuleVM(t *testing.T, modules map[string]string) (*VM, *strings.Builder) {
	t.Helper()
	loader := NewInMemoryImportLoader()
	for path, src := range modules {
		loader.Add(path, src)
	}
	vm := NewVM(NewConfig(), loader, NewInterfaceRegistry())
	var out strings.Builder
	vm.Stdout = func(s string) { out.WriteString(s) }
	return vm, &out
}

// TestExportTableRoundTrip is spec §8 scenario 5: values read through
// an import must be the same values a local reference inside the module
// would see after its top level finishes.
func TestExportTableRoundTrip(t *testing.T) {
	vm, out := newModuleVM(t, map[string]string{
		"m": `
export let x = 7;
export fun double(n) { return n * 2; }
`,
	})
	_, err := vm.Run("<test>", []byte(`
import m;
print(m.x);
print(m.double(21));
`))
	require.NoError(t, err)
	require.Equal(t, "7\n42\n", out.String())
}

func TestMissingModuleIsModuleError(t *testing.T) {
	vm, _ := newModuleVM(t, nil)
	_, err := vm.Run("<test>", []byte(`import nowhere;`))
	require.Error(t, err)
	ne, ok := err.(*NyxError)
	require.True(t, ok)
	require.Equal(t, KindModuleError, ne.Kind)
	require.Equal(t, 65, ExitCode(err))
}

func TestModuleLifecycleReachesLoaded(t *testing.T) {
	vm, _ := newModuleVM(t, map[string]string{
		"util": `export let answer = 42;`,
	})
	_, err := vm.Run("<test>", []byte(`import util; print(util.answer);`))
	require.NoError(t, err)
	p, ok := vm.modules.Programs()["util"]
	require.True(t, ok)
	require.Equal(t, ModuleLoaded, p.State)
}

func TestModuleWithParseErrorIsFailed(t *testing.T) {
	vm, _ := newModuleVM(t, map[string]string{
		"broken": `let = ;`,
	})
	_, err := vm.Run("<test>", []byte(`import broken;`))
	require.Error(t, err)
	p, ok := vm.modules.Programs()["broken"]
	require.True(t, ok)
	require.Equal(t, ModuleFailed, p.State)
}

func TestModuleLoadedOnce(t *testing.T) {
	vm, out := newModuleVM(t, map[string]string{
		"counter": `
print("loading");
export let x = 1;
`,
	})
	_, err := vm.Run("<test>", []byte(`
import counter;
import counter as again;
print(counter.x);
print(again.x);
`))
	require.NoError(t, err)
	require.Equal(t, "loading\n1\n1\n", out.String(), "a module's top level runs exactly once")
}

func TestExportDefault(t *testing.T) {
	vm, out := newModuleVM(t, map[string]string{
		"config": `export default 42;`,
	})
	_, err := vm.Run("<test>", []byte(`
import config;
print(config.default);
`))
	require.NoError(t, err)
	require.Equal(t, "42\n", out.String())
}

func TestExportStarFrom(t *testing.T) {
	vm, out := newModuleVM(t, map[string]string{
		"inner": `
export let a = 1;
export let b = 2;
`,
		"outer": `
export * from inner;
export let c = 3;
`,
	})
	_, err := vm.Run("<test>", []byte(`
from outer import { a, b, c };
print(a);
print(b);
print(c);
`))
	require.NoError(t, err)
	require.Equal(t, "1\n2\n3\n", out.String())
}

func TestNamedReExportWithAlias(t *testing.T) {
	vm, out := newModuleVM(t, map[string]string{
		"inner": `
export let a = 10;
export let noise = 99;
`,
		"outer": `export { a as renamed } from inner;`,
	})
	_, err := vm.Run("<test>", []byte(`
import outer;
print(outer.renamed);
`))
	require.NoError(t, err)
	require.Equal(t, "10\n", out.String())

	exports := vm.modules.Programs()["outer"].Exports
	_, leaked := exports.Get("noise")
	require.False(t, leaked, "only the named re-export crosses the module boundary")
	_, aliased := exports.Get("a")
	require.False(t, aliased, "the original name must not be exported alongside its alias")
}

func TestFromImportWithAlias(t *testing.T) {
	vm, out := newModuleVM(t, map[string]string{
		"math": `export fun square(x) { return x * x; }`,
	})
	_, err := vm.Run("<test>", []byte(`
from math import { square as sq };
print(sq(8));
`))
	require.NoError(t, err)
	require.Equal(t, "64\n", out.String())
}

func TestExportBraceListWithoutFrom(t *testing.T) {
	vm, out := newModuleVM(t, map[string]string{
		"pair": `
let first = 1;
let second = 2;
export { first, second };
`,
	})
	_, err := vm.Run("<test>", []byte(`
from pair import { first, second };
print(first + second);
`))
	require.NoError(t, err)
	require.Equal(t, "3\n", out.String())
}

// TestImportLeavesNoOperandStackResidue pins the stack discipline of
// first-time imports: the module's synthetic top-level frame has no
// calling OP_CALL to consume its return value, so the VM must discard
// it instead of leaving one stray slot per import below the importer's
// live values.
func TestImportLeavesNoOperandStackResidue(t *testing.T) {
	vm, out := newModuleVM(t, map[string]string{
		"a": `export let x = 1;`,
		"b": `export let y = 2;`,
		"c": `export let z = 3;`,
	})
	_, err := vm.Run("<test>", []byte(`
import a;
import b;
import c;
print(a.x + b.y + c.z);
`))
	require.NoError(t, err)
	require.Equal(t, "6\n", out.String())
	require.Equal(t, 0, vm.sp, "every top-level and module frame must clean its operand-stack span")
}

// TestCyclicImportSeesPartialExports pins spec §4.7's cycle behavior:
// the module that closes the cycle reads the partially-populated export
// table, seeing names bound before the cycle point and nothing after.
func TestCyclicImportSeesPartialExports(t *testing.T) {
	vm, out := newModuleVM(t, map[string]string{
		"a": `
export let early = 1;
import b;
export let late = 2;
`,
		"b": `
import a;
export let sawEarly = a.early;
`,
	})
	_, err := vm.Run("<test>", []byte(`
import a;
import b;
print(b.sawEarly);
print(a.late);
`))
	require.NoError(t, err)
	require.Equal(t, "1\n2\n", out.String())
}

func TestCyclicImportAccessingUnboundExportErrors(t *testing.T) {
	vm, _ := newModuleVM(t, map[string]string{
		"a": `
import b;
export let late = 2;
`,
		"b": `
import a;
export let v = a.late;
`,
	})
	_, err := vm.Run("<test>", []byte(`import a;`))
	require.Error(t, err)
	ne, ok := err.(*NyxError)
	require.True(t, ok)
	require.Equal(t, KindRuntimeError, ne.Kind, "reading an export not yet bound at the cycle point is a runtime error")
}

func TestProgramReferenceCounting(t *testing.T) {
	vm, _ := newModuleVM(t, map[string]string{
		"shared": `export let v = 1;`,
	})
	_, err := vm.Run("<test>", []byte(`
import shared;
import shared as again;
print(shared.v + again.v);
`))
	require.NoError(t, err)

	p := vm.modules.Programs()["shared"]
	require.Equal(t, 3, p.refcount, "registry reference plus one per import site")

	vm.Close()
	require.Equal(t, 2, p.refcount, "Close drops only the registry's reference")
	require.Empty(t, vm.modules.Programs())
}

func TestQuotedImportPathBindsLastSegment(t *testing.T) {
	vm, out := newModuleVM(t, map[string]string{
		"lib/math": `export fun square(x) { return x * x; }`,
	})
	_, err := vm.Run("<test>", []byte(`
import "lib/math";
print(math.square(3));
from "lib/math" import { square };
print(square(4));
`))
	require.NoError(t, err)
	require.Equal(t, "9\n16\n", out.String())
}

func TestImportingUnexportedNameErrors(t *testing.T) {
	vm, _ := newModuleVM(t, map[string]string{
		"m": `
let hidden = 5;
export let visible = 6;
`,
	})
	_, err := vm.Run("<test>", []byte(`from m import { hidden };`))
	require.Error(t, err)
	ne, ok := err.(*NyxError)
	require.True(t, ok)
	require.Equal(t, KindRuntimeError, ne.Kind)
}
