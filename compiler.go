package nyx

import (
	"strconv"
	"strings"
)

// Precedence follows spec.md §4.2's table exactly: "assignment < or <
// and < equality < comparison < term < factor < unary < call < primary".
type Precedence int

const (
	PrecNone Precedence = iota
	PrecAssignment
	PrecOr
	PrecAnd
	PrecEquality
	PrecComparison
	PrecTerm
	PrecFactor
	PrecUnary
	PrecCall
	PrecPrimary
)

type prefixFn func(c *Compiler, canAssign bool)
type infixFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix prefixFn
	infix  infixFn
	prec   Precedence
}

var rules map[TokenKind]parseRule

func init() {
	rules = map[TokenKind]parseRule{
		TokLeftParen:     {prefix: (*Compiler).grouping, infix: (*Compiler).call, prec: PrecCall},
		TokDot:           {infix: (*Compiler).dot, prec: PrecCall},
		TokQuestionDot:   {infix: (*Compiler).optionalDot, prec: PrecCall},
		TokLeftBracket:   {prefix: (*Compiler).arrayLiteral, infix: (*Compiler).index, prec: PrecCall},
		TokLeftBrace:     {prefix: (*Compiler).mapLiteral},
		TokMinus:         {prefix: (*Compiler).unary, infix: (*Compiler).binary, prec: PrecTerm},
		TokPlus:          {infix: (*Compiler).binary, prec: PrecTerm},
		TokSlash:         {infix: (*Compiler).binary, prec: PrecFactor},
		TokStar:          {infix: (*Compiler).binary, prec: PrecFactor},
		TokPercent:       {infix: (*Compiler).binary, prec: PrecFactor},
		TokBang:          {prefix: (*Compiler).unary},
		TokBangEqual:     {infix: (*Compiler).binary, prec: PrecEquality},
		TokEqualEqual:    {infix: (*Compiler).binary, prec: PrecEquality},
		TokGreater:       {infix: (*Compiler).binary, prec: PrecComparison},
		TokGreaterEqual:  {infix: (*Compiler).binary, prec: PrecComparison},
		TokLess:          {infix: (*Compiler).binary, prec: PrecComparison},
		TokLessEqual:     {infix: (*Compiler).binary, prec: PrecComparison},
		TokNumber:        {prefix: (*Compiler).number},
		TokStringSegment: {prefix: (*Compiler).stringLit},
		TokIdentifier:    {prefix: (*Compiler).variable},
		TokThis:          {prefix: (*Compiler).this},
		TokTrue:          {prefix: (*Compiler).literal},
		TokFalse:         {prefix: (*Compiler).literal},
		TokNull:          {prefix: (*Compiler).literal},
		TokAnd:           {infix: (*Compiler).and, prec: PrecAnd},
		TokOr:            {infix: (*Compiler).or, prec: PrecOr},
		TokFun:           {prefix: (*Compiler).funExpr},
	}
}

func (c *Compiler) ruleFor(k TokenKind) parseRule { return rules[k] }

// loopContext tracks the break/continue jump lists for one enclosing
// loop, since break/continue aren't expressible as plain forward/back
// jumps without remembering where to patch them.
type loopContext struct {
	breakJumps []int
	loopStart  int
	scopeDepth int
}

// classContext tracks whether `this` is in scope and the class being
// compiled (for `init` detection and the interface registry).
type classContext struct {
	name string
}

// FuncKind distinguishes the four call-frame shapes the compiler can
// produce, each with slightly different RETURN/this rules.
type FuncKind int

const (
	FuncScript FuncKind = iota
	FuncPlain
	FuncMethod
	FuncInitializer
)

// Compiler performs spec.md §4.2's single fused lex+parse+emit pass:
// no persisted AST, tokens consumed by simple array lookahead, each
// statement/expression emitting bytecode as it's recognized.
type Compiler struct {
	toks []Token
	src  []byte
	path string
	pos  int

	chunk    *Chunk
	fn       *FunctionObj
	funcKind FuncKind
	enclosing *Compiler

	tc       *TypeChecker
	registry *InterfaceRegistry
	cfg      *Config

	errs      []*NyxError
	hadError  bool
	panicMode bool

	loops      []*loopContext
	classes    []*classContext
	scopeDepth int
	synthCount int
}

// Compile lexes and compiles one top-level source unit into a Program.
// Bytecode is always produced, even when parse/type errors occurred —
// spec.md §7 says parse-error recovery is panic-mode (skip to the next
// synchronization point) and type errors never block code generation.
func Compile(path string, src []byte, cfg *Config, registry *InterfaceRegistry) (*Program, []*NyxError) {
	lx := NewLexer(path, src)
	toks, lexErrs := lx.Scan()
	if len(lexErrs) > 0 {
		return nil, lexErrs
	}

	program := NewProgram(path, src)

	var tc *TypeChecker
	if cfg != nil && cfg.GetBool("compiler.typecheck") {
		tc = NewTypeChecker(path, registry)
	}

	c := &Compiler{
		toks:     toks.Tokens,
		src:      src,
		path:     path,
		chunk:    NewChunk(),
		fn:       &FunctionObj{Name: "", Program: program},
		funcKind: FuncScript,
		tc:       tc,
		registry: registry,
		cfg:      cfg,
	}
	c.fn.Chunk = c.chunk
	c.beginScope(false)
	for !c.check(TokEOF) {
		c.declaration()
	}
	c.endScope(false)
	c.emitOp(OpNull, c.previous())
	c.emitOp(OpReturn, c.previous())

	program.TopLevel = c.fn
	errs := c.errs
	if tc != nil {
		errs = append(errs, tc.errs...)
	}

	if cfg != nil && cfg.GetInt("compiler.optimize") != 0 {
		Optimize(c.chunk)
	}
	return program, errs
}

// --- token stream helpers ---

func (c *Compiler) current() Token  { return c.toks[c.pos] }
func (c *Compiler) previous() Token { return c.toks[c.pos-1] }
func (c *Compiler) check(k TokenKind) bool {
	return c.current().Kind == k
}

func (c *Compiler) advance() Token {
	if !c.check(TokEOF) {
		c.pos++
	}
	if c.previous().Kind == TokError {
		c.errorAt(c.previous(), "lexical error")
	}
	return c.previous()
}

func (c *Compiler) match(k TokenKind) bool {
	if !c.check(k) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) expect(k TokenKind, msg string) Token {
	if c.check(k) {
		return c.advance()
	}
	c.errorAt(c.current(), "%s", msg)
	return c.current()
}

func (c *Compiler) spanOf(tok Token) Span {
	loc := Location{Line: tok.Line, Column: tok.Column}
	return Span{Start: loc, End: loc}
}

func (c *Compiler) errorAt(tok Token, format string, args ...any) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.hadError = true
	c.errs = append(c.errs, newParseError(c.path, c.spanOf(tok), format, args...))
}

// synchronize implements spec.md §7's panic-mode recovery: skip to the
// next `;` or a statement-starting keyword.
func (c *Compiler) synchronize() {
	c.panicMode = false
	for !c.check(TokEOF) {
		if c.previous().Kind == TokSemicolon {
			return
		}
		switch c.current().Kind {
		case TokClass, TokFun, TokLet, TokConst, TokFor, TokIf, TokWhile, TokReturn,
			TokImport, TokExport, TokEnum, TokInterface, TokSwitch, TokMatch, TokForeach:
			return
		}
		c.advance()
	}
}

func (c *Compiler) emitOp(op OpCode, tok Token) int { return c.chunk.EmitOp(op, tok) }
func (c *Compiler) emitOpU16(op OpCode, v uint16, tok Token) int {
	return c.chunk.EmitOpU16(op, v, tok)
}
func (c *Compiler) emitOpU8(op OpCode, v byte, tok Token) int {
	return c.chunk.EmitOpU8(op, v, tok)
}

func (c *Compiler) identifierConstant(name string) uint16 {
	return c.chunk.AddConstant(FromObject(NewStringObject(name)))
}

func (c *Compiler) freshName(prefix string) string {
	c.synthCount++
	return "$" + prefix + strconv.Itoa(c.synthCount)
}

func (c *Compiler) beginScope(emit bool) {
	c.scopeDepth++
	if emit {
		c.emitOp(OpBeginScope, c.current())
	}
	if c.tc != nil {
		c.tc.PushScope()
	}
}

func (c *Compiler) endScope(emit bool) {
	c.scopeDepth--
	if emit {
		c.emitOp(OpEndScope, c.previous())
	}
	if c.tc != nil {
		c.tc.PopScope()
	}
}

// --- Pratt expression parsing ---

func (c *Compiler) expression() { c.parsePrecedence(PrecAssignment) }

func (c *Compiler) parsePrecedence(prec Precedence) {
	tok := c.advance()
	rule := c.ruleFor(tok.Kind)
	if rule.prefix == nil {
		c.errorAt(tok, "expected expression")
		return
	}
	canAssign := prec <= PrecAssignment
	rule.prefix(c, canAssign)

	for prec <= c.ruleFor(c.current().Kind).prec {
		opTok := c.advance()
		infix := c.ruleFor(opTok.Kind).infix
		infix(c, canAssign)
	}

	if canAssign && c.check(TokEqual) {
		c.errorAt(c.current(), "invalid assignment target")
	}
}

func (c *Compiler) number(canAssign bool) {
	tok := c.previous()
	n, _ := strconv.ParseFloat(tok.Lexeme(c.src), 64)
	idx := c.chunk.AddConstant(Number(n))
	c.emitOpU16(OpConstant, idx, tok)
	c.typePush(NumberType())
}

func unescapeStringBody(raw string, triple bool) string {
	if triple {
		return raw
	}
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\\' && i+1 < len(raw) {
			i++
			switch raw[i] {
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			case 'r':
				out = append(out, '\r')
			case '"':
				out = append(out, '"')
			case '\\':
				out = append(out, '\\')
			default:
				out = append(out, '\\', raw[i])
			}
			continue
		}
		out = append(out, raw[i])
	}
	return string(out)
}

func (c *Compiler) emitStringConstant(s string, tok Token) {
	idx := c.chunk.AddConstant(FromObject(NewStringObject(s)))
	c.emitOpU16(OpConstant, idx, tok)
}

// stringLit compiles the STRING_SEGMENT (INTERP_START ... INTERP_END
// STRING_SEGMENT)* sequence the lexer produces (spec.md §4.1) into a
// chain of constant pushes and runtime ADD-as-concat for each
// interpolated piece.
func (c *Compiler) stringLit(canAssign bool) {
	seg := c.previous()
	text := unescapeStringBody(seg.Lexeme(c.src), seg.StringTriple)
	c.emitStringConstant(text, seg)
	c.typePush(StringType())

	for c.check(TokInterpStart) {
		c.advance()
		c.expression()
		c.typePop()
		c.emitOp(OpStringify, seg)
		c.emitOp(OpAdd, seg)
		c.expect(TokInterpEnd, "expected end of string interpolation")
		nextSeg := c.expect(TokStringSegment, "expected string content after interpolation")
		text2 := unescapeStringBody(nextSeg.Lexeme(c.src), nextSeg.StringTriple)
		if text2 != "" {
			c.emitStringConstant(text2, nextSeg)
			c.emitOp(OpAdd, nextSeg)
		}
	}
}

func (c *Compiler) literal(canAssign bool) {
	tok := c.previous()
	switch tok.Kind {
	case TokTrue:
		c.emitOp(OpTrue, tok)
		c.typePush(BoolType())
	case TokFalse:
		c.emitOp(OpFalse, tok)
		c.typePush(BoolType())
	case TokNull:
		c.emitOp(OpNull, tok)
		c.typePush(NullType())
	}
}

func (c *Compiler) this(canAssign bool) {
	tok := c.previous()
	if len(c.classes) == 0 {
		c.errorAt(tok, "'this' outside a method")
	}
	idx := c.identifierConstant("this")
	c.emitOpU16(OpGetVar, idx, tok)
	c.typePush(AnyType())
}

func (c *Compiler) grouping(canAssign bool) {
	c.expression()
	c.expect(TokRightParen, "expected ')' after expression")
}

func (c *Compiler) unary(canAssign bool) {
	opTok := c.previous()
	c.parsePrecedence(PrecUnary)
	switch opTok.Kind {
	case TokMinus:
		c.emitOp(OpNegate, opTok)
		t := c.typePop()
		c.typePush(t)
	case TokBang:
		c.emitOp(OpNot, opTok)
		c.typePop()
		c.typePush(BoolType())
	}
}

var binaryOp = map[TokenKind]OpCode{
	TokPlus:         OpAdd,
	TokMinus:        OpSub,
	TokStar:         OpMul,
	TokSlash:        OpDiv,
	TokPercent:      OpModulo,
	TokEqualEqual:   OpEqual,
	TokGreater:      OpGreater,
	TokGreaterEqual: OpGreaterEqual,
	TokLess:         OpLess,
	TokLessEqual:    OpLessEqual,
}

func (c *Compiler) binary(canAssign bool) {
	opTok := c.previous()
	rule := c.ruleFor(opTok.Kind)
	c.parsePrecedence(rule.prec + 1)

	rhs := c.typePop()
	lhs := c.typePop()

	if opTok.Kind == TokBangEqual {
		c.emitOp(OpEqual, opTok)
		c.emitOp(OpNot, opTok)
		c.typePush(BoolType())
		return
	}
	op := binaryOp[opTok.Kind]
	c.emitOp(op, opTok)
	c.typePush(BinaryResultType(op, lhs, rhs, c.tc, c.spanOf(opTok)))
}

func (c *Compiler) and(canAssign bool) {
	opTok := c.previous()
	endJump := c.emitOpU16(OpJumpIfFalse, 0, opTok)
	c.emitOp(OpPop, opTok)
	c.parsePrecedence(PrecAnd)
	c.chunk.PatchJump(endJump)
	rhs := c.typePop()
	c.typePop()
	c.typePush(rhs)
}

func (c *Compiler) or(canAssign bool) {
	opTok := c.previous()
	elseJump := c.emitOpU16(OpJumpIfFalse, 0, opTok)
	endJump := c.emitOpU16(OpJump, 0, opTok)
	c.chunk.PatchJump(elseJump)
	c.emitOp(OpPop, opTok)
	c.parsePrecedence(PrecOr)
	c.chunk.PatchJump(endJump)
	rhs := c.typePop()
	c.typePop()
	c.typePush(rhs)
}

func (c *Compiler) call(canAssign bool) {
	tok := c.previous()
	argc := c.argumentList()
	c.emitOpU8(OpCall, byte(argc), tok)
	for i := 0; i < argc+1; i++ {
		c.typePop()
	}
	c.typePush(AnyType())
}

func (c *Compiler) argumentList() int {
	argc := 0
	if !c.check(TokRightParen) {
		for {
			c.expression()
			argc++
			if !c.match(TokComma) {
				break
			}
		}
	}
	c.expect(TokRightParen, "expected ')' after arguments")
	return argc
}

func (c *Compiler) dot(canAssign bool) {
	tok := c.previous()
	var name Token
	if c.match(TokDefault) {
		name = c.previous()
	} else {
		name = c.expect(TokIdentifier, "expected property name after '.'")
	}
	nameIdx := c.identifierConstant(name.Lexeme(c.src))

	if canAssign && c.match(TokEqual) {
		c.typePop()
		c.expression()
		c.emitOpU16(OpSetProperty, nameIdx, tok)
		c.typePush(AnyType())
		return
	}
	if c.check(TokLeftParen) {
		c.advance()
		argc := c.argumentList()
		c.chunk.EmitOpU16U8(OpInvoke, nameIdx, byte(argc), tok)
		c.typePop()
		for i := 0; i < argc; i++ {
			c.typePop()
		}
		c.typePush(AnyType())
		return
	}
	c.typePop()
	c.emitOpU16(OpGetProperty, nameIdx, tok)
	c.typePush(AnyType())
}

func (c *Compiler) optionalDot(canAssign bool) {
	tok := c.previous()
	name := c.expect(TokIdentifier, "expected property name after '?.'")
	nameIdx := c.identifierConstant(name.Lexeme(c.src))
	c.typePop()
	if c.check(TokLeftParen) {
		// The (possibly null) callee must sit below the arguments, the
		// same stack order CALL_OPTIONAL's handler pops them in.
		c.emitOpU16(OpGetPropertyOptional, nameIdx, tok)
		c.advance()
		argc := c.argumentList()
		c.emitOpU8(OpCallOptional, byte(argc), tok)
		for i := 0; i < argc; i++ {
			c.typePop()
		}
	} else {
		c.emitOpU16(OpGetPropertyOptional, nameIdx, tok)
	}
	c.typePush(AnyType())
}

func (c *Compiler) index(canAssign bool) {
	tok := c.previous()
	c.expression()
	c.typePop()
	c.expect(TokRightBracket, "expected ']' after index")

	if canAssign && c.match(TokEqual) {
		c.typePop()
		c.expression()
		c.emitOp(OpSetIndex, tok)
		c.typePush(AnyType())
		return
	}
	c.typePop()
	c.emitOp(OpGetIndex, tok)
	c.typePush(AnyType())
}

func (c *Compiler) arrayLiteral(canAssign bool) {
	tok := c.previous()
	arrOp := c.emitOpU16(OpArray, 0, tok)
	n := 0
	if !c.check(TokRightBracket) {
		for {
			c.expression()
			c.typePop()
			c.emitOp(OpArrayAppend, tok)
			n++
			if !c.match(TokComma) {
				break
			}
		}
	}
	c.expect(TokRightBracket, "expected ']' after array literal")
	// Backpatch the literal's element count as the initial capacity.
	writeU16(c.chunk.Code[arrOp+1:arrOp+3], uint16(n))
	elem := AnyType()
	c.typePush(&Type{Kind: TyArray, Elem: elem})
}

func (c *Compiler) mapLiteral(canAssign bool) {
	tok := c.previous()
	mapOp := c.emitOpU16(OpMap, 0, tok)
	n := 0
	if !c.check(TokRightBrace) {
		for {
			keyTok := c.advance()
			var keyText string
			switch keyTok.Kind {
			case TokIdentifier:
				keyText = keyTok.Lexeme(c.src)
			case TokStringSegment:
				keyText = unescapeStringBody(keyTok.Lexeme(c.src), keyTok.StringTriple)
			default:
				c.errorAt(keyTok, "expected map key")
			}
			keyIdx := c.chunk.AddConstant(FromObject(NewStringObject(keyText)))
			c.emitOpU16(OpConstant, keyIdx, keyTok)
			c.expect(TokColon, "expected ':' after map key")
			c.expression()
			c.typePop()
			c.emitOp(OpMapSet, keyTok)
			n++
			if !c.match(TokComma) {
				break
			}
		}
	}
	c.expect(TokRightBrace, "expected '}' after map literal")
	writeU16(c.chunk.Code[mapOp+1:mapOp+3], uint16(n))
	c.typePush(&Type{Kind: TyMap, Key: StringType(), Val: AnyType()})
}

func (c *Compiler) variable(canAssign bool) {
	name := c.previous()
	nameIdx := c.identifierConstant(name.Lexeme(c.src))

	if canAssign && c.match(TokEqual) {
		c.expression()
		rhsType := c.typePop()
		if c.tc != nil {
			declared := c.tc.Lookup(name.Lexeme(c.src))
			c.tc.CheckAssignable(c.spanOf(name), rhsType, declared, " for '"+name.Lexeme(c.src)+"'")
		}
		c.emitOpU16(OpSetVar, nameIdx, name)
		c.typePush(rhsType)
		return
	}
	c.emitOpU16(OpGetVar, nameIdx, name)
	if c.tc != nil {
		c.typePush(c.tc.Lookup(name.Lexeme(c.src)))
	} else {
		c.typePush(AnyType())
	}
}

func (c *Compiler) funExpr(canAssign bool) {
	tok := c.previous()
	c.compileFunction("", FuncPlain, tok)
}

func (c *Compiler) typePush(t *Type) {
	if c.tc != nil {
		c.tc.Push(t)
	}
}
func (c *Compiler) typePop() *Type {
	if c.tc != nil {
		return c.tc.Pop()
	}
	return AnyType()
}

// --- statements / declarations ---

func (c *Compiler) declaration() {
	switch {
	case c.match(TokClass):
		c.classDeclaration()
	case c.match(TokEnum):
		c.enumDeclaration()
	case c.match(TokInterface):
		c.interfaceDeclaration()
	case c.match(TokFun):
		c.funDeclaration()
	case c.match(TokLet):
		c.varDeclaration(false)
		c.expect(TokSemicolon, "expected ';' after variable declaration")
		c.emitOp(OpGC, c.previous())
	case c.match(TokConst):
		c.varDeclaration(true)
		c.expect(TokSemicolon, "expected ';' after const declaration")
		c.emitOp(OpGC, c.previous())
	case c.match(TokImport):
		c.importStatement()
	case c.match(TokFrom):
		c.fromImportStatement()
	case c.match(TokExport):
		c.exportStatement()
	default:
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) parseTypeAnnotation() *Type {
	if !c.match(TokColon) {
		return nil
	}
	return c.parseTypeName()
}

// parseTypeName parses a bare type, used both after the ':' of an
// annotation and after the '->' of a return-type clause.
func (c *Compiler) parseTypeName() *Type {
	nullable := false
	name := c.expect(TokIdentifier, "expected type name")
	if c.match(TokQuestionDot) {
		nullable = true
	}
	switch name.Lexeme(c.src) {
	case "number":
		t := NumberType()
		t.Nullable = nullable
		return t
	case "string":
		t := StringType()
		t.Nullable = nullable
		return t
	case "bool":
		t := BoolType()
		t.Nullable = nullable
		return t
	case "any":
		return AnyType()
	default:
		return NamedType(name.Lexeme(c.src), nullable)
	}
}

func (c *Compiler) varDeclaration(isConst bool) {
	nameTok := c.expect(TokIdentifier, "expected variable name")
	declared := c.parseTypeAnnotation()

	if c.match(TokEqual) {
		c.expression()
	} else {
		c.emitOp(OpNull, nameTok)
		c.typePush(NullType())
	}
	valType := c.typePop()
	if c.tc != nil {
		if declared != nil {
			c.tc.CheckAssignable(c.spanOf(nameTok), valType, declared, " for '"+nameTok.Lexeme(c.src)+"'")
			c.tc.Declare(nameTok.Lexeme(c.src), declared)
		} else {
			c.tc.Declare(nameTok.Lexeme(c.src), valType)
		}
	}

	nameIdx := c.identifierConstant(nameTok.Lexeme(c.src))
	if isConst {
		c.emitOpU16(OpDefineConst, nameIdx, nameTok)
	} else {
		c.emitOpU16(OpDefineVar, nameIdx, nameTok)
	}
}

func (c *Compiler) statement() {
	switch {
	case c.match(TokIf):
		c.ifStatement()
	case c.match(TokWhile):
		c.whileStatement()
	case c.match(TokFor):
		c.forStatement()
	case c.match(TokForeach):
		c.foreachStatement()
	case c.check(TokSwitch) || c.check(TokMatch):
		c.advance()
		c.switchStatement()
	case c.match(TokReturn):
		c.returnStatement()
	case c.match(TokBreak):
		c.breakStatement()
	case c.match(TokContinue):
		c.continueStatement()
	case c.match(TokLeftBrace):
		c.beginScope(true)
		c.block()
		c.endScope(true)
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) block() {
	for !c.check(TokRightBrace) && !c.check(TokEOF) {
		c.declaration()
	}
	c.expect(TokRightBrace, "expected '}' after block")
}

func (c *Compiler) expressionStatement() {
	tok := c.current()
	c.expression()
	c.typePop()
	c.expect(TokSemicolon, "expected ';' after expression")
	c.emitOp(OpPop, tok)
	c.emitOp(OpGC, tok)
}

func (c *Compiler) ifStatement() {
	tok := c.previous()
	c.expect(TokLeftParen, "expected '(' after 'if'")
	c.expression()
	c.typePop()
	c.expect(TokRightParen, "expected ')' after condition")

	thenJump := c.emitOpU16(OpJumpIfFalse, 0, tok)
	c.emitOp(OpPop, tok)
	c.statement()
	elseJump := c.emitOpU16(OpJump, 0, tok)
	c.chunk.PatchJump(thenJump)
	c.emitOp(OpPop, tok)
	if c.match(TokElse) {
		c.statement()
	}
	c.chunk.PatchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	tok := c.previous()
	loopStart := len(c.chunk.Code)
	c.expect(TokLeftParen, "expected '(' after 'while'")
	c.expression()
	c.typePop()
	c.expect(TokRightParen, "expected ')' after condition")

	exitJump := c.emitOpU16(OpJumpIfFalse, 0, tok)
	c.emitOp(OpPop, tok)

	c.loops = append(c.loops, &loopContext{loopStart: loopStart, scopeDepth: c.scopeDepth})
	c.statement()
	loop := c.loops[len(c.loops)-1]
	c.loops = c.loops[:len(c.loops)-1]

	c.emitOp(OpGC, tok)
	c.chunk.EmitLoop(loopStart, tok)
	c.chunk.PatchJump(exitJump)
	c.emitOp(OpPop, tok)
	for _, j := range loop.breakJumps {
		c.chunk.PatchJump(j)
	}
}

// forStatement desugars `for(init; cond; inc) body` into a nested
// scope holding init, then a while loop with inc emitted after the
// body (spec.md §4.2).
func (c *Compiler) forStatement() {
	tok := c.previous()
	c.beginScope(true)
	c.expect(TokLeftParen, "expected '(' after 'for'")

	switch {
	case c.match(TokSemicolon):
	case c.match(TokLet):
		c.varDeclaration(false)
		c.expect(TokSemicolon, "expected ';' after loop initializer")
	default:
		c.expressionStatement()
	}

	loopStart := len(c.chunk.Code)
	exitJump := -1
	if !c.check(TokSemicolon) {
		c.expression()
		c.typePop()
		exitJump = c.emitOpU16(OpJumpIfFalse, 0, tok)
		c.emitOp(OpPop, tok)
	}
	c.expect(TokSemicolon, "expected ';' after loop condition")

	incrStart := -1
	if !c.check(TokRightParen) {
		bodyJump := c.emitOpU16(OpJump, 0, tok)
		incrStart = len(c.chunk.Code)
		c.expression()
		c.typePop()
		c.emitOp(OpPop, tok)
		c.chunk.EmitLoop(loopStart, tok)
		c.chunk.PatchJump(bodyJump)
		loopStart = incrStart
	}
	c.expect(TokRightParen, "expected ')' after for clauses")

	c.loops = append(c.loops, &loopContext{loopStart: loopStart, scopeDepth: c.scopeDepth})
	c.statement()
	loop := c.loops[len(c.loops)-1]
	c.loops = c.loops[:len(c.loops)-1]

	c.emitOp(OpGC, tok)
	c.chunk.EmitLoop(loopStart, tok)
	if exitJump != -1 {
		c.chunk.PatchJump(exitJump)
		c.emitOp(OpPop, tok)
	}
	for _, j := range loop.breakJumps {
		c.chunk.PatchJump(j)
	}
	c.endScope(true)
}

// foreachStatement implements spec.md §4.2: arrays iterate by integer
// index; maps are iterated via `keys(iter)` first. Since the bytecode
// has no "is this a map" opcode, the branch is resolved at runtime
// with the `type()` builtin rather than inventing a new opcode outside
// spec.md §4.3's table.
func (c *Compiler) foreachStatement() {
	tok := c.previous()
	c.expect(TokLeftParen, "expected '(' after 'foreach'")
	varA := c.expect(TokIdentifier, "expected loop variable")
	hasSecond := false
	var varB Token
	if c.match(TokComma) {
		hasSecond = true
		varB = c.expect(TokIdentifier, "expected second loop variable")
	}
	c.expect(TokIn, "expected 'in' in foreach")
	c.beginScope(true)

	iterName := c.freshName("iter")
	c.expression()
	c.typePop()
	c.expect(TokRightParen, "expected ')' after foreach iterable")
	c.defineLocal(iterName, false, tok)

	isMapName := c.freshName("ismap")
	c.emitGetBuiltin("type", tok)
	c.emitGetVarByName(iterName, tok)
	c.emitOpU8(OpCall, 1, tok)
	c.emitStringConstant("map", tok)
	c.emitOp(OpEqual, tok)
	c.defineLocal(isMapName, false, tok)

	c.emitGetVarByName(isMapName, tok)
	mapBranchJump := c.emitOpU16(OpJumpIfFalse, 0, tok)
	c.emitOp(OpPop, tok)

	// map branch: keysName = keys(iter)
	keysName := c.freshName("keys")
	c.emitGetBuiltin("keys", tok)
	c.emitGetVarByName(iterName, tok)
	c.emitOpU8(OpCall, 1, tok)
	c.defineLocal(keysName, false, tok)
	// Both branches compile the same body tokens; rewind between them so
	// the array lowering re-parses what the map lowering consumed.
	bodyPos := c.pos
	c.compileIndexLoop(keysName, varA, varB, hasSecond, iterName, true, tok)
	arrBranchEndJump := c.emitOpU16(OpJump, 0, tok)

	c.chunk.PatchJump(mapBranchJump)
	c.emitOp(OpPop, tok)
	c.pos = bodyPos
	c.compileIndexLoop(iterName, varA, varB, hasSecond, "", false, tok)

	c.chunk.PatchJump(arrBranchEndJump)
	c.endScope(true)
}

// compileIndexLoop emits `let $i = 0; while ($i < len(arrName)) { ...
// $i = $i + 1; }` binding varA (and optionally varB) each iteration.
// When fromMap is true, arrName holds the key array and varA binds the
// key while varB (if present) binds mapName[key].
func (c *Compiler) compileIndexLoop(arrName string, varA, varB Token, hasSecond bool, mapName string, fromMap bool, tok Token) {
	c.beginScope(true)
	idxName := c.freshName("i")
	c.emitNumberConstant(0, tok)
	c.defineLocal(idxName, false, tok)

	condStart := len(c.chunk.Code)
	c.emitGetVarByName(idxName, tok)
	c.emitGetBuiltin("len", tok)
	c.emitGetVarByName(arrName, tok)
	c.emitOpU8(OpCall, 1, tok)
	c.emitOp(OpLess, tok)
	exitJump := c.emitOpU16(OpJumpIfFalse, 0, tok)
	c.emitOp(OpPop, tok)

	// The increment sits between condition and body so `continue` has a
	// back-edge target that still advances the index, the same
	// jump-over-increment desugaring forStatement uses.
	bodyJump := c.emitOpU16(OpJump, 0, tok)
	incrStart := len(c.chunk.Code)
	c.emitGetVarByName(idxName, tok)
	c.emitNumberConstant(1, tok)
	c.emitOp(OpAdd, tok)
	c.emitSetVarByName(idxName, tok)
	c.emitOp(OpPop, tok)
	c.chunk.EmitLoop(condStart, tok)
	c.chunk.PatchJump(bodyJump)

	c.loops = append(c.loops, &loopContext{loopStart: incrStart, scopeDepth: c.scopeDepth})
	c.beginScope(true)
	if hasSecond && !fromMap {
		// foreach (i, x in arr): the first variable is the index.
		c.emitGetVarByName(idxName, tok)
		c.defineLocal(varA.Lexeme(c.src), false, tok)
		c.emitGetVarByName(arrName, tok)
		c.emitGetVarByName(idxName, tok)
		c.emitOp(OpGetIndex, tok)
		c.defineLocal(varB.Lexeme(c.src), false, tok)
	} else {
		c.emitGetVarByName(arrName, tok)
		c.emitGetVarByName(idxName, tok)
		c.emitOp(OpGetIndex, tok)
		c.defineLocal(varA.Lexeme(c.src), false, tok)
		if hasSecond {
			c.emitGetVarByName(mapName, tok)
			c.emitGetVarByName(varA.Lexeme(c.src), tok)
			c.emitOp(OpGetIndex, tok)
			c.defineLocal(varB.Lexeme(c.src), false, tok)
		}
	}

	c.statement()
	c.endScope(true)
	loop := c.loops[len(c.loops)-1]
	c.loops = c.loops[:len(c.loops)-1]

	c.emitOp(OpGC, tok)
	c.chunk.EmitLoop(incrStart, tok)
	c.chunk.PatchJump(exitJump)
	c.emitOp(OpPop, tok)
	for _, j := range loop.breakJumps {
		c.chunk.PatchJump(j)
	}
	c.endScope(true)
}

func (c *Compiler) defineLocal(name string, isConst bool, tok Token) {
	idx := c.identifierConstant(name)
	if isConst {
		c.emitOpU16(OpDefineConst, idx, tok)
	} else {
		c.emitOpU16(OpDefineVar, idx, tok)
	}
	if c.tc != nil {
		c.tc.Declare(name, AnyType())
	}
}

func (c *Compiler) emitGetVarByName(name string, tok Token) {
	c.emitOpU16(OpGetVar, c.identifierConstant(name), tok)
}
func (c *Compiler) emitSetVarByName(name string, tok Token) {
	c.emitOpU16(OpSetVar, c.identifierConstant(name), tok)
}
func (c *Compiler) emitNumberConstant(n float64, tok Token) {
	c.emitOpU16(OpConstant, c.chunk.AddConstant(Number(n)), tok)
}
// emitGetBuiltin pushes the named builtin as a callee. Builtins are
// plain global bindings resolved through the same GET_VAR/CALL path as
// any other callable value (builtins.go registers them in the root
// environment). CALL expects the callee below its arguments on the
// stack, so this must run before the argument values are pushed.
func (c *Compiler) emitGetBuiltin(name string, tok Token) {
	c.emitOpU16(OpGetVar, c.identifierConstant(name), tok)
}

// switchStatement lowers `switch`/`match` into a chain of EQUAL +
// JUMP_IF_FALSE comparisons against a hidden local holding the subject
// (spec.md §4.2). Using a local instead of leaving the subject
// resident on the operand stack avoids needing a DUP opcode, which
// isn't part of spec.md §4.3's table.
func (c *Compiler) switchStatement() {
	tok := c.previous()
	c.expect(TokLeftParen, "expected '(' after 'switch'")
	c.beginScope(true)
	subjName := c.freshName("subj")
	c.expression()
	c.typePop()
	c.defineLocal(subjName, true, tok)
	c.expect(TokRightParen, "expected ')' after switch subject")
	c.expect(TokLeftBrace, "expected '{' to start switch body")

	var endJumps []int
	for c.match(TokCase) {
		c.emitGetVarByName(subjName, tok)
		c.expression()
		c.typePop()
		c.expect(TokColon, "expected ':' after case value")
		c.emitOp(OpEqual, tok)
		nextCase := c.emitOpU16(OpJumpIfFalse, 0, tok)
		c.emitOp(OpPop, tok)
		for !c.check(TokCase) && !c.check(TokDefault) && !c.check(TokRightBrace) {
			c.statement()
		}
		endJumps = append(endJumps, c.emitOpU16(OpJump, 0, tok))
		c.chunk.PatchJump(nextCase)
		c.emitOp(OpPop, tok)
	}
	if c.match(TokDefault) {
		c.expect(TokColon, "expected ':' after 'default'")
		for !c.check(TokRightBrace) {
			c.statement()
		}
	}
	for _, j := range endJumps {
		c.chunk.PatchJump(j)
	}
	c.expect(TokRightBrace, "expected '}' after switch body")
	c.endScope(true)
}

func (c *Compiler) returnStatement() {
	tok := c.previous()
	if c.funcKind == FuncScript {
		c.errorAt(tok, "cannot return from top-level script")
	}
	if c.check(TokSemicolon) {
		if c.funcKind == FuncInitializer {
			c.emitOpU16(OpGetVar, c.identifierConstant("this"), tok)
		} else {
			c.emitOp(OpNull, tok)
		}
	} else {
		if c.funcKind == FuncInitializer {
			c.errorAt(tok, "cannot return a value from an initializer")
		}
		c.expression()
		c.typePop()
	}
	c.expect(TokSemicolon, "expected ';' after return value")
	c.emitOp(OpReturn, tok)
}

func (c *Compiler) breakStatement() {
	tok := c.previous()
	c.expect(TokSemicolon, "expected ';' after 'break'")
	if len(c.loops) == 0 {
		c.errorAt(tok, "'break' outside a loop")
		return
	}
	loop := c.loops[len(c.loops)-1]
	c.emitScopeUnwind(loop, tok)
	j := c.emitOpU16(OpJump, 0, tok)
	loop.breakJumps = append(loop.breakJumps, j)
}

func (c *Compiler) continueStatement() {
	tok := c.previous()
	c.expect(TokSemicolon, "expected ';' after 'continue'")
	if len(c.loops) == 0 {
		c.errorAt(tok, "'continue' outside a loop")
		return
	}
	loop := c.loops[len(c.loops)-1]
	c.emitScopeUnwind(loop, tok)
	c.chunk.EmitLoop(loop.loopStart, tok)
}

// emitScopeUnwind pops every scope entered since the loop's own depth,
// so a break/continue jump doesn't leave the frame's environment
// pointing into a block the jump skips the END_SCOPE of.
func (c *Compiler) emitScopeUnwind(loop *loopContext, tok Token) {
	for depth := c.scopeDepth; depth > loop.scopeDepth; depth-- {
		c.emitOp(OpEndScope, tok)
	}
}

// --- functions, classes, enums, interfaces ---

func (c *Compiler) funDeclaration() {
	nameTok := c.expect(TokIdentifier, "expected function name")
	if c.tc != nil {
		c.tc.Declare(nameTok.Lexeme(c.src), AnyType())
	}
	c.compileFunction(nameTok.Lexeme(c.src), FuncPlain, nameTok)
	nameIdx := c.identifierConstant(nameTok.Lexeme(c.src))
	c.emitOpU16(OpDefineVar, nameIdx, nameTok)
}

// compileFunction implements spec.md §4.2's compileFunction: pre-scan
// the parameter list for arity, then re-parse for default-value spans
// and `: Type` annotations, compiling the body into a child compiler
// with its own chunk. Defaults are emitted as per-parameter
// `if arg_count < i+1 { eval default; assign param }` preambles.
func (c *Compiler) compileFunction(name string, kind FuncKind, tok Token) {
	c.expect(TokLeftParen, "expected '(' after function name")

	type param struct {
		name       string
		hasDefault bool
		defaultPos int // token index where the default expr starts, -1 if none
		ty         *Type
	}
	var params []param
	if kind == FuncMethod || kind == FuncInitializer {
		params = append(params, param{name: "this"})
	}
	minArity := len(params)
	sawDefault := false
	if !c.check(TokRightParen) {
		for {
			pname := c.expect(TokIdentifier, "expected parameter name")
			var pty *Type
			hasDefault := false
			defaultPos := -1
			if c.match(TokColon) {
				c.pos--
				pty = c.parseTypeAnnotation()
			}
			if c.match(TokEqual) {
				hasDefault = true
				sawDefault = true
				defaultPos = c.pos
				c.skipExpression()
			} else if sawDefault {
				c.errorAt(pname, "required parameter after default parameter")
			} else {
				minArity++
			}
			params = append(params, param{name: pname.Lexeme(c.src), hasDefault: hasDefault, defaultPos: defaultPos, ty: pty})
			if !c.match(TokComma) {
				break
			}
		}
	}
	c.expect(TokRightParen, "expected ')' after parameters")
	if c.match(TokArrow) {
		c.parseTypeName()
	}

	child := &Compiler{
		toks:      c.toks,
		src:       c.src,
		path:      c.path,
		pos:       c.pos,
		chunk:     NewChunk(),
		funcKind:  kind,
		enclosing: c,
		tc:        c.tc,
		registry:  c.registry,
		cfg:       c.cfg,
		classes:   c.classes,
	}
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.name
	}
	child.fn = &FunctionObj{
		Name:     name,
		Arity:    len(params),
		MinArity: minArity,
		IsInit:   kind == FuncInitializer,
		Params:   names,
		Program:  c.fn.Program,
	}
	child.fn.Chunk = child.chunk

	child.beginScope(false)
	if child.tc != nil {
		for _, p := range params {
			if p.ty != nil {
				child.tc.Declare(p.name, p.ty)
			} else {
				child.tc.Declare(p.name, AnyType())
			}
		}
	}
	for i, p := range params {
		if !p.hasDefault {
			continue
		}
		save := child.pos
		child.pos = p.defaultPos
		child.emitOp(OpArgCount, tok)
		child.emitNumberConstant(float64(i+1), tok)
		child.emitOp(OpLess, tok)
		skip := child.emitOpU16(OpJumpIfFalse, 0, tok)
		child.emitOp(OpPop, tok)
		child.expression()
		child.typePop()
		child.emitOpU16(OpSetVar, child.identifierConstant(p.name), tok)
		child.emitOp(OpPop, tok)
		end := child.emitOpU16(OpJump, 0, tok)
		child.chunk.PatchJump(skip)
		child.emitOp(OpPop, tok)
		child.chunk.PatchJump(end)
		child.pos = save
	}

	c.expect(TokLeftBrace, "expected '{' before function body")
	child.pos = c.pos
	child.block()
	child.endScope(false)
	if kind == FuncInitializer {
		child.emitOpU16(OpGetVar, child.identifierConstant("this"), tok)
	} else {
		child.emitOp(OpNull, tok)
	}
	child.emitOp(OpReturn, tok)

	c.errs = append(c.errs, child.errs...)
	c.pos = child.pos

	if c.cfg != nil && c.cfg.GetInt("compiler.optimize") != 0 {
		Optimize(child.chunk)
	}

	fnIdx := c.chunk.AddConstant(FromObject(wrapFunctionValue(child.fn)))
	c.emitOpU16(OpClosure, fnIdx, tok)
	c.typePush(AnyType())
}

// skipExpression consumes tokens belonging to one expression without
// emitting bytecode, used to locate where a default-parameter
// expression ends during the compileFunction pre-scan. It relies on
// parenthesis/bracket/brace depth plus comma/paren termination since
// there's no persisted AST to walk back over.
func (c *Compiler) skipExpression() {
	depth := 0
	for {
		k := c.current().Kind
		if depth == 0 && (k == TokComma || k == TokRightParen) {
			return
		}
		if k == TokEOF {
			return
		}
		switch k {
		case TokLeftParen, TokLeftBracket, TokLeftBrace:
			depth++
		case TokRightParen, TokRightBracket, TokRightBrace:
			if depth == 0 {
				return
			}
			depth--
		}
		c.advance()
	}
}

func (c *Compiler) classDeclaration() {
	nameTok := c.expect(TokIdentifier, "expected class name")
	var implements []string
	if c.check(TokIdentifier) && c.current().Lexeme(c.src) == "implements" {
		c.advance()
		for {
			iface := c.expect(TokIdentifier, "expected interface name")
			implements = append(implements, iface.Lexeme(c.src))
			if !c.match(TokComma) {
				break
			}
		}
	}
	if c.tc != nil {
		c.tc.Declare(nameTok.Lexeme(c.src), NamedType(nameTok.Lexeme(c.src), false))
	}

	c.classes = append(c.classes, &classContext{name: nameTok.Lexeme(c.src)})
	c.expect(TokLeftBrace, "expected '{' before class body")

	var methodNames []string
	methodCount := 0
	for !c.check(TokRightBrace) && !c.check(TokEOF) {
		methodTok := c.expect(TokIdentifier, "expected method name")
		kind := FuncMethod
		if methodTok.Lexeme(c.src) == "init" {
			kind = FuncInitializer
		}
		c.compileFunction(methodTok.Lexeme(c.src), kind, methodTok)
		methodIdx := c.identifierConstant(methodTok.Lexeme(c.src))
		c.emitOpU16(OpConstant, methodIdx, methodTok)
		methodNames = append(methodNames, methodTok.Lexeme(c.src))
		methodCount++
	}
	c.expect(TokRightBrace, "expected '}' after class body")
	c.classes = c.classes[:len(c.classes)-1]

	if c.registry != nil {
		c.registry.DeclareClass(nameTok.Lexeme(c.src), methodNames, implements)
	}

	nameIdx := c.identifierConstant(nameTok.Lexeme(c.src))
	c.chunk.emit(OpClass, make([]byte, 4), nameTok)
	classOffset := len(c.chunk.Code) - 5
	writeU16(c.chunk.Code[classOffset+1:classOffset+3], nameIdx)
	writeU16(c.chunk.Code[classOffset+3:classOffset+5], uint16(methodCount))

	c.emitOpU16(OpDefineVar, nameIdx, nameTok)
}

func (c *Compiler) enumDeclaration() {
	nameTok := c.expect(TokIdentifier, "expected enum name")
	c.expect(TokLeftBrace, "expected '{' before enum body")

	type tag struct {
		name  string
		arity int
	}
	var tags []tag
	for !c.check(TokRightBrace) && !c.check(TokEOF) {
		tagTok := c.expect(TokIdentifier, "expected enum tag name")
		arity := 0
		if c.match(TokLeftParen) {
			if !c.check(TokRightParen) {
				for {
					c.expect(TokIdentifier, "expected field name")
					arity++
					if !c.match(TokComma) {
						break
					}
				}
			}
			c.expect(TokRightParen, "expected ')' after enum tag fields")
		}
		tags = append(tags, tag{name: tagTok.Lexeme(c.src), arity: arity})
		if !c.match(TokComma) {
			break
		}
	}
	c.expect(TokRightBrace, "expected '}' after enum body")

	c.beginScope(true)
	for _, t := range tags {
		ctorObj := NewEnumCtorObject(nameTok.Lexeme(c.src), t.name, t.arity)
		idx := c.chunk.AddConstant(FromObject(ctorObj))
		c.emitOpU16(OpConstant, idx, nameTok)
		c.defineLocal(t.name, true, nameTok)
	}
	enumMap := NewMapObj()
	// The enum's own name is bound to a map of tag-name -> ctor so
	// `Color.Red` style access works the same as module member access.
	wrapperIdx := c.chunk.AddConstant(FromObject(NewMapObject(enumMap)))
	c.emitOpU16(OpConstant, wrapperIdx, nameTok)
	for _, t := range tags {
		keyIdx := c.chunk.AddConstant(FromObject(NewStringObject(t.name)))
		c.emitOpU16(OpConstant, keyIdx, nameTok)
		nameIdx2 := c.identifierConstant(t.name)
		c.emitOpU16(OpGetVar, nameIdx2, nameTok)
		c.emitOp(OpMapSet, nameTok)
	}
	c.endScope(true)
	c.defineLocal(nameTok.Lexeme(c.src), true, nameTok)
}

func (c *Compiler) interfaceDeclaration() {
	nameTok := c.expect(TokIdentifier, "expected interface name")
	c.expect(TokLeftBrace, "expected '{' before interface body")
	var methods []string
	for !c.check(TokRightBrace) && !c.check(TokEOF) {
		methodTok := c.expect(TokIdentifier, "expected method name")
		methods = append(methods, methodTok.Lexeme(c.src))
		c.expect(TokLeftParen, "expected '(' in interface method signature")
		for !c.check(TokRightParen) && !c.check(TokEOF) {
			c.advance()
		}
		c.expect(TokRightParen, "expected ')' after interface method signature")
		if c.match(TokArrow) {
			c.parseTypeName()
		}
		c.expect(TokSemicolon, "expected ';' after interface method signature")
	}
	c.expect(TokRightBrace, "expected '}' after interface body")
	if c.registry != nil {
		c.registry.DeclareInterface(nameTok.Lexeme(c.src), methods)
	}
}

// --- import / export ---

// modulePath reads a module reference: a bare identifier, or a quoted
// string for paths an identifier can't spell (`import "lib/math";`,
// spec.md §4.7).
func (c *Compiler) modulePath() string {
	if c.check(TokStringSegment) {
		tok := c.advance()
		if c.check(TokInterpStart) {
			c.errorAt(tok, "import path cannot be interpolated")
		}
		return unescapeStringBody(tok.Lexeme(c.src), tok.StringTriple)
	}
	tok := c.expect(TokIdentifier, "expected module path")
	return tok.Lexeme(c.src)
}

// moduleBindName derives the namespace binding for a bare `import`
// from the path's last segment, dropping the source extension.
func moduleBindName(path string) string {
	name := path
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, ".nyx")
}

func (c *Compiler) importStatement() {
	tok := c.previous()
	path := c.modulePath()
	bindName := moduleBindName(path)
	if c.match(TokAs) {
		alias := c.expect(TokIdentifier, "expected alias after 'as'")
		bindName = alias.Lexeme(c.src)
	}
	c.expect(TokSemicolon, "expected ';' after import")

	pathIdx := c.chunk.AddConstant(FromObject(NewStringObject(path)))
	c.emitOpU16(OpImport, pathIdx, tok)
	if c.tc != nil {
		c.tc.Declare(bindName, AnyType())
	}
	c.defineLocal(bindName, true, tok)
}

func (c *Compiler) fromImportStatement() {
	tok := c.previous()
	path := c.modulePath()
	c.expect(TokImport, "expected 'import' after module name")

	pathIdx := c.chunk.AddConstant(FromObject(NewStringObject(path)))

	if c.match(TokStar) {
		c.expect(TokSemicolon, "expected ';' after wildcard import")
		c.emitOpU16(OpImportModule, pathIdx, tok)
		c.emitOpU16(OpExportFrom, 0, tok) // count 0 == wildcard copy, see compiler notes
		return
	}

	c.expect(TokLeftBrace, "expected '{' after 'import'")
	for {
		nameTok := c.expect(TokIdentifier, "expected import name")
		bindName := nameTok.Lexeme(c.src)
		if c.match(TokAs) {
			alias := c.expect(TokIdentifier, "expected alias")
			bindName = alias.Lexeme(c.src)
		}
		c.emitOpU16(OpImportModule, pathIdx, tok)
		fieldIdx := c.identifierConstant(nameTok.Lexeme(c.src))
		c.emitOpU16(OpGetProperty, fieldIdx, tok)
		if c.tc != nil {
			c.tc.Declare(bindName, AnyType())
		}
		c.defineLocal(bindName, true, tok)
		if !c.match(TokComma) {
			break
		}
	}
	c.expect(TokRightBrace, "expected '}' after import names")
	c.expect(TokSemicolon, "expected ';' after import")
}

func (c *Compiler) exportStatement() {
	tok := c.previous()
	switch {
	case c.match(TokDefault):
		c.expression()
		c.typePop()
		c.expect(TokSemicolon, "expected ';' after export default value")
		defaultIdx := c.identifierConstant("default")
		c.emitOpU16(OpExportValue, defaultIdx, tok)
	case c.match(TokLet):
		nameTok := c.peekDeclName()
		c.varDeclaration(false)
		c.expect(TokSemicolon, "expected ';' after variable declaration")
		c.emitOpU16(OpExport, c.identifierConstant(nameTok), tok)
	case c.match(TokConst):
		nameTok := c.peekDeclName()
		c.varDeclaration(true)
		c.expect(TokSemicolon, "expected ';' after const declaration")
		c.emitOpU16(OpExport, c.identifierConstant(nameTok), tok)
	case c.match(TokFun):
		nameTok := c.current().Lexeme(c.src)
		c.funDeclaration()
		c.emitOpU16(OpExport, c.identifierConstant(nameTok), tok)
	case c.match(TokClass):
		nameTok := c.current().Lexeme(c.src)
		c.classDeclaration()
		c.emitOpU16(OpExport, c.identifierConstant(nameTok), tok)
	case c.match(TokStar):
		c.expect(TokFrom, "expected 'from' after 'export *'")
		path := c.modulePath()
		c.expect(TokSemicolon, "expected ';' after export-from")
		pathIdx := c.chunk.AddConstant(FromObject(NewStringObject(path)))
		c.emitOpU16(OpImportModule, pathIdx, tok)
		c.emitOpU16(OpExportFrom, 0, tok)
	case c.match(TokLeftBrace):
		type exportName struct{ from, to string }
		var names []exportName
		for {
			nameTok := c.expect(TokIdentifier, "expected export name")
			from := nameTok.Lexeme(c.src)
			to := from
			if c.match(TokAs) {
				alias := c.expect(TokIdentifier, "expected alias after 'as'")
				to = alias.Lexeme(c.src)
			}
			names = append(names, exportName{from: from, to: to})
			if !c.match(TokComma) {
				break
			}
		}
		c.expect(TokRightBrace, "expected '}' after export names")
		if c.match(TokFrom) {
			// `export {names [as alias]} from "module"` re-exports named
			// values read out of another module's export table rather than
			// the current scope (spec.md §4.2's "{names} [from]" form).
			path := c.modulePath()
			c.expect(TokSemicolon, "expected ';' after export-from")
			pathIdx := c.chunk.AddConstant(FromObject(NewStringObject(path)))
			c.emitOpU16(OpImportModule, pathIdx, tok)
			c.emitOpU16(OpExportFrom, uint16(len(names)), tok)
			for _, n := range names {
				c.chunk.EmitRawU16(c.identifierConstant(n.from), tok)
				c.chunk.EmitRawU16(c.identifierConstant(n.to), tok)
			}
		} else {
			for _, n := range names {
				c.emitOpU16(OpExport, c.identifierConstant(n.from), tok)
			}
			c.expect(TokSemicolon, "expected ';' after export")
		}
	default:
		c.errorAt(c.current(), "expected declaration or '{' after 'export'")
	}
}

// peekDeclName looks ahead at the identifier that follows (used right
// before varDeclaration consumes it) without advancing past it.
func (c *Compiler) peekDeclName() string {
	return c.current().Lexeme(c.src)
}
