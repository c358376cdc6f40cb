package nyx

import "math"

// Optimize implements spec.md §4.2's peephole pass: decode a finished
// chunk into a flat instruction list, then repeat two constant-folding
// rewrites until no further change applies, finally re-encoding the
// chunk with jump offsets and inline-cache slots remapped to their new
// positions. Folding across a jump target is forbidden (spec.md §4.2),
// so every instruction that some JUMP/JUMP_IF_FALSE/LOOP targets is
// recorded up front and never merged away.
//
// Optimize(Optimize(chunk)) is byte-identical to Optimize(chunk): once
// a foldable run has collapsed into a single CONSTANT, nothing in the
// pattern table matches it a second time, so a repeat call finds zero
// rewrites and never appends a fresh constant-pool entry.
type pInstr struct {
	op         OpCode
	operand    []byte
	tok        Token
	origOffset int
	isTarget   bool

	// jumpTargetOrig is only meaningful for JUMP/JUMP_IF_FALSE/LOOP: the
	// absolute original byte offset the jump lands on.
	jumpTargetOrig int
	isJump         bool
	backward       bool
}

func decodeInstrs(c *Chunk) []pInstr {
	var out []pInstr
	targets := map[int]bool{}

	// First sub-pass: compute every instruction's size/offset and every
	// jump's original target, without yet knowing which offsets are
	// targets (that needs all jumps decoded first).
	type raw struct {
		op      OpCode
		operand []byte
		tok     Token
		offset  int
	}
	var rawList []raw
	for offset := 0; offset < len(c.Code); {
		op := OpCode(c.Code[offset])
		size := operandSize[op]
		// EXPORT_FROM carries `count` extra (from, to) u16 pairs after its
		// fixed u16 count operand (spec.md §4.3: "variant-specific"); those
		// trailing bytes aren't a separate instruction and must stay
		// attached here or the scan below would misinterpret them as
		// opcodes.
		if op == OpExportFrom {
			count := decodeU16(c.Code[offset+1 : offset+1+size])
			size += int(count) * 4
		}
		operand := append([]byte(nil), c.Code[offset+1:offset+1+size]...)
		rawList = append(rawList, raw{op: op, operand: operand, tok: c.Tokens[offset], offset: offset})
		offset += 1 + size
	}

	for _, r := range rawList {
		switch r.op {
		case OpJump, OpJumpIfFalse:
			after := r.offset + 1 + len(r.operand)
			target := after + int(decodeU16(r.operand))
			targets[target] = true
		case OpLoop:
			after := r.offset + 1 + len(r.operand)
			target := after - int(decodeU16(r.operand))
			targets[target] = true
		}
	}

	for _, r := range rawList {
		pi := pInstr{op: r.op, operand: r.operand, tok: r.tok, origOffset: r.offset, isTarget: targets[r.offset]}
		switch r.op {
		case OpJump, OpJumpIfFalse:
			after := r.offset + 1 + len(r.operand)
			pi.isJump = true
			pi.jumpTargetOrig = after + int(decodeU16(r.operand))
		case OpLoop:
			after := r.offset + 1 + len(r.operand)
			pi.isJump = true
			pi.backward = true
			pi.jumpTargetOrig = after - int(decodeU16(r.operand))
		}
		out = append(out, pi)
	}
	return out
}

var foldableUnary = map[OpCode]bool{OpNegate: true, OpNot: true, OpStringify: true}

var foldableBinary = map[OpCode]bool{
	OpAdd: true, OpSub: true, OpMul: true, OpDiv: true, OpModulo: true,
	OpEqual: true, OpGreater: true, OpGreaterEqual: true, OpLess: true, OpLessEqual: true,
}

func Optimize(c *Chunk) {
	instrs := decodeInstrs(c)
	for {
		next, changed := foldOnce(c, instrs)
		instrs = next
		if !changed {
			break
		}
	}
	reencode(c, instrs)
}

// foldOnce performs a single left-to-right scan applying the first
// matching rewrite at each position; it returns the rewritten list and
// whether anything changed, so Optimize can call it to a fixpoint.
func foldOnce(c *Chunk, instrs []pInstr) ([]pInstr, bool) {
	out := make([]pInstr, 0, len(instrs))
	changed := false
	i := 0
	for i < len(instrs) {
		if i+1 < len(instrs) && instrs[i].op == OpConstant && foldableUnary[instrs[i+1].op] && !instrs[i+1].isTarget {
			if folded, ok := foldUnary(c, instrs[i], instrs[i+1].op); ok {
				folded.isTarget = instrs[i].isTarget
				out = append(out, folded)
				i += 2
				changed = true
				continue
			}
		}
		if i+2 < len(instrs) && instrs[i].op == OpConstant && instrs[i+1].op == OpConstant &&
			foldableBinary[instrs[i+2].op] && !instrs[i+1].isTarget && !instrs[i+2].isTarget {
			if folded, ok := foldBinary(c, instrs[i], instrs[i+1], instrs[i+2].op); ok {
				folded.isTarget = instrs[i].isTarget
				out = append(out, folded)
				i += 3
				changed = true
				continue
			}
		}
		out = append(out, instrs[i])
		i++
	}
	return out, changed
}

func constAt(c *Chunk, in pInstr) Value {
	idx := decodeU16(in.operand)
	return c.Constants[idx]
}

func newConstInstr(c *Chunk, v Value, tok Token, origOffset int) pInstr {
	idx := c.AddConstant(v)
	buf := make([]byte, 2)
	writeU16(buf, idx)
	return pInstr{op: OpConstant, operand: buf, tok: tok, origOffset: origOffset}
}

func foldUnary(c *Chunk, in pInstr, op OpCode) (pInstr, bool) {
	v := constAt(c, in)
	switch op {
	case OpNegate:
		if v.Kind != ValNumber {
			return pInstr{}, false
		}
		return newConstInstr(c, Number(-v.Number), in.tok, in.origOffset), true
	case OpNot:
		return newConstInstr(c, Bool(!v.Truthy()), in.tok, in.origOffset), true
	case OpStringify:
		return newConstInstr(c, FromObject(NewStringObject(v.String())), in.tok, in.origOffset), true
	}
	return pInstr{}, false
}

func foldBinary(c *Chunk, a, b pInstr, op OpCode) (pInstr, bool) {
	av := constAt(c, a)
	bv := constAt(c, b)

	if op == OpEqual {
		return newConstInstr(c, Bool(Equal(av, bv)), a.tok, a.origOffset), true
	}

	if op == OpAdd && av.Kind == ValObject && bv.Kind == ValObject &&
		av.Obj.Tag == ObjString && bv.Obj.Tag == ObjString {
		return newConstInstr(c, FromObject(NewStringObject(av.Obj.AsString()+bv.Obj.AsString())), a.tok, a.origOffset), true
	}

	if av.Kind != ValNumber || bv.Kind != ValNumber {
		return pInstr{}, false
	}
	switch op {
	case OpAdd:
		return newConstInstr(c, Number(av.Number+bv.Number), a.tok, a.origOffset), true
	case OpSub:
		return newConstInstr(c, Number(av.Number-bv.Number), a.tok, a.origOffset), true
	case OpMul:
		return newConstInstr(c, Number(av.Number*bv.Number), a.tok, a.origOffset), true
	case OpDiv:
		if bv.Number == 0 {
			return pInstr{}, false
		}
		return newConstInstr(c, Number(av.Number/bv.Number), a.tok, a.origOffset), true
	case OpModulo:
		if bv.Number == 0 {
			return pInstr{}, false
		}
		return newConstInstr(c, Number(math.Mod(av.Number, bv.Number)), a.tok, a.origOffset), true
	case OpGreater:
		return newConstInstr(c, Bool(av.Number > bv.Number), a.tok, a.origOffset), true
	case OpGreaterEqual:
		return newConstInstr(c, Bool(av.Number >= bv.Number), a.tok, a.origOffset), true
	case OpLess:
		return newConstInstr(c, Bool(av.Number < bv.Number), a.tok, a.origOffset), true
	case OpLessEqual:
		return newConstInstr(c, Bool(av.Number <= bv.Number), a.tok, a.origOffset), true
	}
	return pInstr{}, false
}

// reencode rebuilds Code/Tokens from the final instruction list,
// remaps every jump operand to the new byte offsets, and carries the
// inline-cache table over by the same origOffset->newOffset mapping
// (spec.md §4.2's "rebuilds jump offsets if it shrinks the chunk").
func reencode(c *Chunk, instrs []pInstr) {
	origToNew := make(map[int]int, len(instrs))
	offset := 0
	for _, in := range instrs {
		origToNew[in.origOffset] = offset
		offset += 1 + len(in.operand)
	}

	code := make([]byte, 0, offset)
	toks := make([]Token, 0, offset)
	for _, in := range instrs {
		if in.isJump {
			newTarget := origToNew[in.jumpTargetOrig]
			newOffset := origToNew[in.origOffset]
			after := newOffset + 1 + len(in.operand)
			var rel int
			if in.backward {
				rel = after - newTarget
			} else {
				rel = newTarget - after
			}
			writeU16(in.operand, uint16(rel))
		}
		code = append(code, byte(in.op))
		toks = append(toks, in.tok)
		code = append(code, in.operand...)
		for range in.operand {
			toks = append(toks, in.tok)
		}
	}

	newCaches := make(map[int]*InlineCache, len(c.Caches))
	for oldOffset, ic := range c.Caches {
		if newOffset, ok := origToNew[oldOffset]; ok {
			newCaches[newOffset] = ic
		}
	}

	c.Code = code
	c.Tokens = toks
	c.Caches = newCaches
}
