package nyx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// compileUnoptimized compiles src with the peephole pass disabled so a
// test can call Optimize itself and inspect before/after chunk state.
func compileUnoptimized(t *testing.T, src string) *Chunk {
	t.Helper()
	cfg := NewConfig()
	cfg.SetInt("compiler.optimize", 0)
	program, errs := Compile("<test>", []byte(src), cfg, NewInterfaceRegistry())
	require.NotNil(t, program)
	for _, e := range errs {
		require.NotEqual(t, KindParseError, e.Kind, "unexpected parse error: %s", e)
		require.NotEqual(t, KindLexError, e.Kind, "unexpected lex error: %s", e)
	}
	return program.TopLevel.Chunk
}

func opsOf(c *Chunk) []OpCode {
	instrs := decodeInstrs(c)
	ops := make([]OpCode, len(instrs))
	for i, in := range instrs {
		ops[i] = in.op
	}
	return ops
}

func containsOp(c *Chunk, op OpCode) bool {
	for _, o := range opsOf(c) {
		if o == op {
			return true
		}
	}
	return false
}

func hasStringConstant(c *Chunk, s string) bool {
	for _, v := range c.Constants {
		if v.Kind == ValObject && v.Obj.Tag == ObjString && v.Obj.AsString() == s {
			return true
		}
	}
	return false
}

func hasNumberConstant(c *Chunk, n float64) bool {
	for _, v := range c.Constants {
		if v.Kind == ValNumber && v.Number == n {
			return true
		}
	}
	return false
}

func TestOptimizeIsIdempotent(t *testing.T) {
	chunk := compileUnoptimized(t, `
let a = 1 + 2 * 3;
let b = -(4 - 1);
let c = "x" + "y";
if (a > b) { print(c); }
`)
	Optimize(chunk)
	once := append([]byte(nil), chunk.Code...)
	constCount := len(chunk.Constants)
	Optimize(chunk)
	require.Equal(t, once, chunk.Code, "a second Optimize must be byte-identical")
	require.Equal(t, constCount, len(chunk.Constants), "a second Optimize must not grow the constant pool")
}

func TestOptimizeFoldsBinaryArithmetic(t *testing.T) {
	chunk := compileUnoptimized(t, `let x = 2 * 3 + 1;`)
	Optimize(chunk)
	require.False(t, containsOp(chunk, OpMul))
	require.False(t, containsOp(chunk, OpAdd))
	require.True(t, hasNumberConstant(chunk, 7))
}

func TestOptimizeFoldsUnaryOverConstant(t *testing.T) {
	chunk := compileUnoptimized(t, `let x = -5; let y = !(1 == 2);`)
	Optimize(chunk)
	require.False(t, containsOp(chunk, OpNegate))
	require.False(t, containsOp(chunk, OpNot), "NOT over the folded EQUAL constant must fold in a later pass")
	require.True(t, hasNumberConstant(chunk, -5))
}

func TestOptimizeFoldsStringConcatenation(t *testing.T) {
	chunk := compileUnoptimized(t, `let s = "ab" + "cd";`)
	Optimize(chunk)
	require.False(t, containsOp(chunk, OpAdd))
	require.True(t, hasStringConstant(chunk, "abcd"))
}

func TestOptimizeFoldsEqualForAnyConstantPair(t *testing.T) {
	chunk := compileUnoptimized(t, `let b = 1 == 2;`)
	Optimize(chunk)
	require.False(t, containsOp(chunk, OpEqual))
}

func TestOptimizeLeavesDivisionByZeroToRuntime(t *testing.T) {
	chunk := compileUnoptimized(t, `let x = 1 / 0;`)
	Optimize(chunk)
	require.True(t, containsOp(chunk, OpDiv), "1/0 must stay a runtime error, not fold away")
}

func TestOptimizeLeavesMixedOperandsAlone(t *testing.T) {
	chunk := compileUnoptimized(t, `let s = "n=" + 1;`)
	Optimize(chunk)
	require.True(t, containsOp(chunk, OpAdd), "string+number is a runtime concern, not a typed fold")
}

// jumpTargetsAreInstructionStarts is the §8 bytecode invariant: every
// JUMP/JUMP_IF_FALSE/LOOP target must be the first byte of a valid
// instruction, never the middle of a multi-byte operand.
func jumpTargetsAreInstructionStarts(t *testing.T, c *Chunk) {
	t.Helper()
	starts := map[int]bool{}
	for _, in := range decodeInstrs(c) {
		starts[in.origOffset] = true
	}
	starts[len(c.Code)] = true // a forward jump may land one past the last instruction
	for _, in := range decodeInstrs(c) {
		if in.isJump {
			require.True(t, starts[in.jumpTargetOrig],
				"%s at %d targets %d, which is inside an instruction", in.op, in.origOffset, in.jumpTargetOrig)
		}
	}
}

func TestOptimizedJumpsLandOnInstructionBoundaries(t *testing.T) {
	sources := []string{
		`if (1 + 1 == 2) { print("y"); } else { print("n"); }`,
		`let i = 0; while (i < 2 + 3) { i = i + 1; }`,
		`let a = false; let b = a or 1 + 2; print(b);`,
		`fun f(a, b = 2 * 3) { return a + b; } print(f(1));`,
		`switch (1 + 1) { case 2: print("two"); default: print("other"); }`,
	}
	for _, src := range sources {
		chunk := compileUnoptimized(t, src)
		jumpTargetsAreInstructionStarts(t, chunk)
		Optimize(chunk)
		jumpTargetsAreInstructionStarts(t, chunk)
	}
}

func TestOptimizeDoesNotFoldThroughJumpTarget(t *testing.T) {
	// The rhs of `or` starts at a jump target; folding may only collapse
	// runs whose interior instructions are unreferenced. Whatever the
	// optimizer decides, the program must still behave the same.
	_, out := runOK(t, `
let a = false;
let b = a or 1 + 2;
print(b);
let c = true;
let d = c or 1 + 2;
print(d);
`)
	require.Equal(t, "3\ntrue\n", out)
}

func TestInterpolationFoldsOnlyLiteralSegments(t *testing.T) {
	// spec §8 scenario 3: "a${x+3}b" keeps the runtime concat for the
	// interpolated middle; the literal segments stay string constants.
	chunk := compileUnoptimized(t, `let x = 2; print("a${x+3}b");`)
	Optimize(chunk)
	require.True(t, hasStringConstant(chunk, "a"))
	require.True(t, hasStringConstant(chunk, "b"))
	require.True(t, containsOp(chunk, OpStringify), "interpolated expression still stringifies at runtime")
	require.True(t, containsOp(chunk, OpAdd), "interpolated expression still concatenates at runtime")

	_, out := runOK(t, `let x = 2; print("a${x+3}b");`)
	require.Equal(t, "a5b\n", out)
}

func TestOptimizePreservesTokensOnFoldedInstructions(t *testing.T) {
	chunk := compileUnoptimized(t, `let x = 1 + 2;`)
	Optimize(chunk)
	require.Equal(t, len(chunk.Code), len(chunk.Tokens), "Tokens must stay parallel to Code after reencode")
}
