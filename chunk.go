package nyx

import (
	"fmt"
	"strings"
)

// InlineCache is the per-call-site memo spec.md §4.4 describes for
// GET_PROPERTY/SET_PROPERTY/INVOKE: "class-identity, cached-slot-or-
// function". It is opaque to the compiler — only the interpreter reads
// or writes it, and only the bytecode offset identifies the slot.
type InlineCache struct {
	ClassIdentity *ClassObj
	CachedMethod  *Object // resolved ObjFunction/ObjNative for INVOKE
	CachedField   bool    // true if the last hit resolved to an instance field, not a method
}

// Chunk is a function's compiled body (spec.md §3/§4.3): instruction
// bytes, a source Token per byte (so any offset — including a jump
// target — can resolve back to a diagnostic location), per-instruction
// inline caches keyed by the opcode's byte offset, and the constant
// pool.
type Chunk struct {
	Code      []byte
	Tokens    []Token
	Caches    map[int]*InlineCache
	Constants []Value
}

func NewChunk() *Chunk {
	return &Chunk{Caches: make(map[int]*InlineCache)}
}

// emit appends one opcode (and its fixed-size operand bytes, already
// encoded by the caller) tagged with tok, replicating tok across every
// byte of the instruction so Tokens stays parallel to Code.
func (c *Chunk) emit(op OpCode, operand []byte, tok Token) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op))
	c.Tokens = append(c.Tokens, tok)
	c.Code = append(c.Code, operand...)
	for range operand {
		c.Tokens = append(c.Tokens, tok)
	}
	return offset
}

func (c *Chunk) EmitOp(op OpCode, tok Token) int {
	return c.emit(op, nil, tok)
}

func (c *Chunk) EmitOpU16(op OpCode, operand uint16, tok Token) int {
	buf := make([]byte, 2)
	writeU16(buf, operand)
	return c.emit(op, buf, tok)
}

func (c *Chunk) EmitOpU8(op OpCode, operand byte, tok Token) int {
	return c.emit(op, []byte{operand}, tok)
}

// EmitOpU16U8 emits a single instruction carrying both a u16 and a u8
// operand (INVOKE's fused nameIdx+argc encoding).
func (c *Chunk) EmitOpU16U8(op OpCode, u16val uint16, u8val byte, tok Token) int {
	buf := make([]byte, 3)
	writeU16(buf[:2], u16val)
	buf[2] = u8val
	return c.emit(op, buf, tok)
}

// AddConstant appends v to the constant pool and returns its index;
// equal values are not deduplicated.
func (c *Chunk) AddConstant(v Value) uint16 {
	c.Constants = append(c.Constants, v)
	return uint16(len(c.Constants) - 1)
}

// PatchJump backpatches a two-byte forward-offset operand once the
// jump target is known, mirroring the teacher's grammar_compiler.go
// emit/label/backpatch mechanics.
func (c *Chunk) PatchJump(offset int) {
	dest := len(c.Code)
	jumpLen := dest - offset - 3 // opcode byte + 2 operand bytes
	writeU16(c.Code[offset+1:offset+3], uint16(jumpLen))
}

// EmitLoop emits a LOOP opcode with a backward offset to loopStart.
func (c *Chunk) EmitLoop(loopStart int, tok Token) {
	offset := len(c.Code)
	backLen := offset - loopStart + 3
	c.EmitOpU16(OpLoop, uint16(backLen), tok)
}

// EmitRawU16 appends a bare two-byte big-endian value with no opcode
// prefix, used for EXPORT_FROM's trailing (from, to) name-index pairs
// (spec.md §4.3: "variant-specific" operands read directly by the
// interpreter rather than decoded through operandSize).
func (c *Chunk) EmitRawU16(v uint16, tok Token) {
	buf := make([]byte, 2)
	writeU16(buf, v)
	c.Code = append(c.Code, buf...)
	c.Tokens = append(c.Tokens, tok, tok)
}

func (c *Chunk) CacheAt(offset int) *InlineCache {
	ic, ok := c.Caches[offset]
	if !ok {
		ic = &InlineCache{}
		c.Caches[offset] = ic
	}
	return ic
}

// Disassemble renders the whole chunk as a mnemonic+operand listing for
// the `--bytecode` CLI flag (spec.md §6), modeled on the teacher's
// HighlightPrettyString tree dump but flattened to a linear opcode list
// since there's no AST left to walk.
func (c *Chunk) Disassemble(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)
	for offset := 0; offset < len(c.Code); {
		offset = c.disassembleInstruction(&b, offset)
	}
	return b.String()
}

func (c *Chunk) disassembleInstruction(b *strings.Builder, offset int) int {
	op := OpCode(c.Code[offset])
	size := operandSize[op]
	fmt.Fprintf(b, "%04d %-22s", offset, op)
	switch size {
	case 0:
	case 1:
		fmt.Fprintf(b, " %d", c.Code[offset+1])
	case 2:
		fmt.Fprintf(b, " %d", decodeU16(c.Code[offset+1:offset+3]))
	case 3:
		nameIdx := decodeU16(c.Code[offset+1 : offset+3])
		fmt.Fprintf(b, " %d %d", nameIdx, c.Code[offset+3])
	case 4:
		nameIdx := decodeU16(c.Code[offset+1 : offset+3])
		methodCount := decodeU16(c.Code[offset+3 : offset+5])
		fmt.Fprintf(b, " %d %d", nameIdx, methodCount)
	}
	switch op {
	case OpConstant:
		idx := decodeU16(c.Code[offset+1 : offset+3])
		if int(idx) < len(c.Constants) {
			fmt.Fprintf(b, "  ; %s", c.Constants[idx])
		}
	case OpGetVar, OpSetVar, OpDefineVar, OpDefineConst, OpGetProperty, OpSetProperty, OpGetPropertyOptional, OpInvoke, OpClass:
		idx := decodeU16(c.Code[offset+1 : offset+3])
		if int(idx) < len(c.Constants) {
			fmt.Fprintf(b, "  ; %s", c.Constants[idx])
		}
	}
	b.WriteByte('\n')
	return offset + 1 + size
}

// ModuleState is the four-state module lifecycle spec.md §4.7 defines.
type ModuleState int

const (
	ModuleUnloaded ModuleState = iota
	ModuleLoading
	ModuleLoaded
	ModuleFailed
)

func (s ModuleState) String() string {
	switch s {
	case ModuleUnloaded:
		return "unloaded"
	case ModuleLoading:
		return "loading"
	case ModuleLoaded:
		return "loaded"
	case ModuleFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Program is a compiled module (spec.md §3): retained source text,
// canonical path, top-level function, export table, and lifecycle
// state. Programs are reference-counted (spec.md §5/§9) because chunks
// hold raw offsets into the source buffer a program owns, and that
// source must outlive any bytecode pointing into it.
type Program struct {
	Path      string
	Source    []byte
	LineIndex *LineIndex
	TopLevel  *FunctionObj
	Exports   *MapObj
	State     ModuleState

	refcount int
}

func NewProgram(path string, source []byte) *Program {
	return &Program{
		Path:      path,
		Source:    source,
		LineIndex: NewLineIndex(source),
		Exports:   NewMapObj(),
		State:     ModuleUnloaded,
		refcount:  1,
	}
}

func (p *Program) Retain() { p.refcount++ }

// Release drops one reference; returns true if the program's source and
// chunks should now be freed (refcount reached zero).
func (p *Program) Release() bool {
	p.refcount--
	return p.refcount <= 0
}
