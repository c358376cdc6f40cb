package nyx

import "encoding/binary"

// OpCode is a single bytecode instruction tag. The instruction stream is
// a flat byte array: one OpCode byte followed by zero or more operand
// bytes, sizes fixed per opcode (spec.md §4.3) — the same "flat array,
// no separate operand table" layout the teacher's vm.go uses for its
// PEG instructions.
type OpCode byte

const (
	OpConstant OpCode = iota
	OpNull
	OpTrue
	OpFalse
	OpPop

	OpNegate
	OpNot
	OpStringify

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpModulo

	OpEqual
	OpGreater
	OpGreaterEqual
	OpLess
	OpLessEqual

	OpGetVar
	OpSetVar
	OpDefineVar
	OpDefineConst

	OpGetProperty
	OpSetProperty
	OpGetPropertyOptional

	OpGetIndex
	OpSetIndex
	OpGetIndexOptional

	OpArray
	OpMap
	OpArrayAppend
	OpMapSet

	OpJump
	OpJumpIfFalse
	OpLoop

	OpCall
	OpCallOptional
	OpInvoke

	OpClosure
	OpClass
	OpReturn

	OpImport
	OpImportModule
	OpExport
	OpExportValue
	OpExportFrom

	OpBeginScope
	OpEndScope

	OpArgCount
	OpGC

	opCodeCount
)

// operandSize gives the fixed operand width in bytes for each opcode,
// used by both the dispatch loop's fetch step and the disassembler so
// neither has to special-case an opcode the other doesn't know about.
var operandSize = [opCodeCount]int{
	OpConstant: 2,
	OpNull:     0,
	OpTrue:     0,
	OpFalse:    0,
	OpPop:      0,

	OpNegate:    0,
	OpNot:       0,
	OpStringify: 0,

	OpAdd:    0,
	OpSub:    0,
	OpMul:    0,
	OpDiv:    0,
	OpModulo: 0,

	OpEqual:        0,
	OpGreater:      0,
	OpGreaterEqual: 0,
	OpLess:         0,
	OpLessEqual:    0,

	OpGetVar:      2,
	OpSetVar:      2,
	OpDefineVar:   2,
	OpDefineConst: 2,

	OpGetProperty:         2,
	OpSetProperty:         2,
	OpGetPropertyOptional: 2,

	OpGetIndex:         0,
	OpSetIndex:         0,
	OpGetIndexOptional: 0,

	OpArray:       2,
	OpMap:         2,
	OpArrayAppend: 0,
	OpMapSet:      0,

	OpJump:        2,
	OpJumpIfFalse: 2,
	OpLoop:        2,

	OpCall:         1,
	OpCallOptional: 1,
	OpInvoke:       3, // u16 nameIdx, u8 argc

	OpClosure: 2,
	OpClass:   4, // u16 nameIdx, u16 methodCount
	OpReturn:  0,

	OpImport:       2,
	OpImportModule: 2,
	OpExport:       2,
	OpExportValue:  2,
	OpExportFrom:   2, // u16 count, followed by count*(from,to) u16 pairs read at runtime

	OpBeginScope: 0,
	OpEndScope:   0,

	OpArgCount: 0,
	OpGC:       0,
}

var opCodeNames = [opCodeCount]string{
	OpConstant: "CONSTANT",
	OpNull:     "NULL",
	OpTrue:     "TRUE",
	OpFalse:    "FALSE",
	OpPop:      "POP",

	OpNegate:    "NEGATE",
	OpNot:       "NOT",
	OpStringify: "STRINGIFY",

	OpAdd:    "ADD",
	OpSub:    "SUB",
	OpMul:    "MUL",
	OpDiv:    "DIV",
	OpModulo: "MODULO",

	OpEqual:        "EQUAL",
	OpGreater:      "GREATER",
	OpGreaterEqual: "GREATER_EQUAL",
	OpLess:         "LESS",
	OpLessEqual:    "LESS_EQUAL",

	OpGetVar:      "GET_VAR",
	OpSetVar:      "SET_VAR",
	OpDefineVar:   "DEFINE_VAR",
	OpDefineConst: "DEFINE_CONST",

	OpGetProperty:         "GET_PROPERTY",
	OpSetProperty:         "SET_PROPERTY",
	OpGetPropertyOptional: "GET_PROPERTY_OPTIONAL",

	OpGetIndex:         "GET_INDEX",
	OpSetIndex:         "SET_INDEX",
	OpGetIndexOptional: "GET_INDEX_OPTIONAL",

	OpArray:       "ARRAY",
	OpMap:         "MAP",
	OpArrayAppend: "ARRAY_APPEND",
	OpMapSet:      "MAP_SET",

	OpJump:        "JUMP",
	OpJumpIfFalse: "JUMP_IF_FALSE",
	OpLoop:        "LOOP",

	OpCall:         "CALL",
	OpCallOptional: "CALL_OPTIONAL",
	OpInvoke:       "INVOKE",

	OpClosure: "CLOSURE",
	OpClass:   "CLASS",
	OpReturn:  "RETURN",

	OpImport:       "IMPORT",
	OpImportModule: "IMPORT_MODULE",
	OpExport:       "EXPORT",
	OpExportValue:  "EXPORT_VALUE",
	OpExportFrom:   "EXPORT_FROM",

	OpBeginScope: "BEGIN_SCOPE",
	OpEndScope:   "END_SCOPE",

	OpArgCount: "ARG_COUNT",
	OpGC:       "GC",
}

func (op OpCode) String() string {
	if int(op) < 0 || int(op) >= len(opCodeNames) || opCodeNames[op] == "" {
		return "UNKNOWN_OP"
	}
	return opCodeNames[op]
}

// writeU16/decodeU16 are the canonical big-endian operand encoders spec
// §4.3 mandates, matching the teacher's vm.go helpers of the same name.
func writeU16(buf []byte, v uint16) {
	binary.BigEndian.PutUint16(buf, v)
}

func decodeU16(buf []byte) uint16 {
	return binary.BigEndian.Uint16(buf)
}
