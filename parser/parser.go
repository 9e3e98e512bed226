// Package parser turns script source into an ast.Program.
//
// The parser is a recursive descent parser over a pre-lexed token slice.
// Binary operators are matched with backtracking: when the right operand does
// not parse, or when the operand categories known at parse time are not
// compatible with the operator, the operator is left unconsumed and the
// enclosing production reports the error at the operator's offset. This is
// how `"a" + 1` becomes a syntax error rather than a runtime one.
package parser

import (
	"fmt"
	"strconv"

	"github.com/deepnoodle-ai/scriptbox/ast"
	"github.com/deepnoodle-ai/scriptbox/value"
)

// DefaultMaxNestingDepth bounds how deeply blocks and expressions may nest.
const DefaultMaxNestingDepth = 200

// Option configures a Parser.
type Option func(*Parser)

// WithMaxNestingDepth overrides DefaultMaxNestingDepth. Values below one are
// ignored.
func WithMaxNestingDepth(depth int) Option {
	return func(p *Parser) {
		if depth > 0 {
			p.maxDepth = depth
		}
	}
}

// Parser holds the state of a single parse.
type Parser struct {
	src      []rune
	tokens   []Token
	pos      int
	depth    int
	maxDepth int
	hint     *hint
	fatal    error
}

// hint remembers why an operator was left unconsumed so the error reported
// at that offset can say so.
type hint struct {
	offset  int
	message string
}

// Parse parses src into a program. On failure the returned error is a
// *SyntaxError.
func Parse(src string, opts ...Option) (*ast.Program, error) {
	p := &Parser{maxDepth: DefaultMaxNestingDepth}
	for _, opt := range opts {
		opt(p)
	}
	lexer := NewLexer(src)
	tokens, err := lexer.Tokenize()
	if err != nil {
		return nil, err
	}
	p.src = lexer.src
	p.tokens = tokens
	return p.parseProgram()
}

func (p *Parser) parseProgram() (*ast.Program, error) {
	program := &ast.Program{}
	for !p.at(EOF) {
		if p.atFunctionDef() {
			fn, err := p.parseFunctionDef()
			if err != nil {
				return nil, err
			}
			if _, exists := program.Function(fn.Name); exists {
				return nil, newSyntaxError(p.src, fn.Offset, fmt.Sprintf("function %q is already defined", fn.Name))
			}
			program.Functions = append(program.Functions, fn)
			continue
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		program.Statements = append(program.Statements, stmt)
	}
	return program, nil
}

func (p *Parser) atFunctionDef() bool {
	return p.at(IDENT) && p.peek(1).Type == LPAREN && p.peek(2).Type == RPAREN && p.peek(3).Type == LBRACE
}

func (p *Parser) parseFunctionDef() (*ast.FunctionDef, error) {
	name := p.advance()
	p.pos += 2 // ( )
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.FunctionDef{Offset: name.Offset, Name: name.Literal, Body: body}, nil
}

func (p *Parser) parseBlock() ([]ast.Statement, error) {
	open, err := p.expect(LBRACE)
	if err != nil {
		return nil, err
	}
	if err := p.enter(open.Offset); err != nil {
		return nil, err
	}
	defer p.leave()

	stmts := []ast.Statement{}
	for !p.at(RBRACE) {
		if p.at(EOF) {
			return nil, p.errorf(p.cur().Offset, "expected '}' to close block opened at offset %d, found end of input", open.Offset)
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	p.advance()
	return stmts, nil
}

func (p *Parser) parseStatement() (ast.Statement, error) {
	switch p.cur().Type {
	case IF:
		return p.parseIf()
	case FOR:
		return p.parseFor()
	}
	if p.atFunctionDef() {
		return nil, p.errorf(p.cur().Offset, "functions can only be defined at the top level")
	}
	stmt, err := p.parseSimple()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return stmt, nil
}

// parseSimple parses the statements allowed in for-loop clauses:
// assignments, method calls, function calls and bare expressions.
func (p *Parser) parseSimple() (ast.Statement, error) {
	if p.at(IDENT) {
		name := p.cur()
		switch p.peek(1).Type {
		case ASSIGN:
			p.pos += 2
			expr, _, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			return &ast.Assignment{Offset: name.Offset, Target: name.Literal, Value: expr}, nil
		case DOT:
			return p.parseMethodCall()
		case LPAREN:
			if p.peek(2).Type == RPAREN {
				p.pos += 3
				return &ast.FunctionCall{Offset: name.Offset, Name: name.Literal}, nil
			}
		}
	}
	expr, _, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &ast.ExpressionStatement{Expr: expr}, nil
}

func (p *Parser) parseMethodCall() (ast.Statement, error) {
	target := p.advance()
	p.advance() // .
	method, err := p.expect(IDENT)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	args, err := p.parseList(RPAREN)
	if err != nil {
		return nil, err
	}
	return &ast.MethodCall{
		Offset: target.Offset,
		Target: target.Literal,
		Method: method.Literal,
		Args:   args,
	}, nil
}

func (p *Parser) parseIf() (ast.Statement, error) {
	keyword := p.advance()
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	cond, _, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	node := &ast.If{Offset: keyword.Offset, Cond: cond, Then: then}
	if !p.at(ELSE) {
		return node, nil
	}
	p.advance()
	if p.at(IF) {
		if err := p.enter(p.cur().Offset); err != nil {
			return nil, err
		}
		defer p.leave()
		elseIf, err := p.parseIf()
		if err != nil {
			return nil, err
		}
		node.Else = []ast.Statement{elseIf}
		return node, nil
	}
	node.Else, err = p.parseBlock()
	if err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Parser) parseFor() (ast.Statement, error) {
	keyword := p.advance()
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	node := &ast.For{Offset: keyword.Offset}
	var err error
	if !p.at(SEMICOLON) {
		if node.Init, err = p.parseSimple(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	if !p.at(SEMICOLON) {
		if node.Cond, _, err = p.parseExpression(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	if !p.at(RPAREN) {
		if node.Step, err = p.parseSimple(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	if node.Body, err = p.parseBlock(); err != nil {
		return nil, err
	}
	return node, nil
}

var comparisonOps = map[TokenType]bool{
	LT:     true,
	GT:     true,
	LTE:    true,
	GTE:    true,
	EQ:     true,
	NOT_EQ: true,
}

// parseExpression returns the expression along with its value category when
// that is known without running the program.
func (p *Parser) parseExpression() (ast.Expression, value.Kind, error) {
	if err := p.enter(p.cur().Offset); err != nil {
		return nil, value.KindUnknown, err
	}
	defer p.leave()

	left, kind, err := p.parseAdditive()
	if err != nil {
		return nil, value.KindUnknown, err
	}
	if !comparisonOps[p.cur().Type] {
		return left, kind, nil
	}
	save := p.pos
	op := p.advance()
	right, _, err := p.parseAdditive()
	if err != nil {
		if p.fatal != nil {
			return nil, value.KindUnknown, p.fatal
		}
		p.backtrack(save, op, fmt.Sprintf("expected operand after %s", op.Type))
		return left, kind, nil
	}
	return &ast.BinaryOp{Offset: op.Offset, Op: op.Literal, Left: left, Right: right}, value.KindNumber, nil
}

func (p *Parser) parseAdditive() (ast.Expression, value.Kind, error) {
	return p.parseBinary(p.parseTerm, PLUS, MINUS)
}

func (p *Parser) parseTerm() (ast.Expression, value.Kind, error) {
	return p.parseBinary(p.parseUnary, ASTERISK, SLASH)
}

// parseBinary parses a left-associative chain of the given operators.
func (p *Parser) parseBinary(operand func() (ast.Expression, value.Kind, error), ops ...TokenType) (ast.Expression, value.Kind, error) {
	left, leftKind, err := operand()
	if err != nil {
		return nil, value.KindUnknown, err
	}
	for p.atAny(ops...) {
		save := p.pos
		op := p.advance()
		right, rightKind, err := operand()
		if err != nil {
			if p.fatal != nil {
				return nil, value.KindUnknown, p.fatal
			}
			p.backtrack(save, op, fmt.Sprintf("expected operand after %s", op.Type))
			break
		}
		kind, ok := binaryResultKind(op.Type, leftKind, rightKind)
		if !ok {
			p.backtrack(save, op, predicateMessage(op.Type, leftKind, rightKind))
			break
		}
		left = &ast.BinaryOp{Offset: op.Offset, Op: op.Literal, Left: left, Right: right}
		leftKind = kind
	}
	return left, leftKind, nil
}

// binaryResultKind is the semantic predicate attached to the arithmetic
// productions. `+` needs both operands in the same category; the other
// arithmetic operators need Numbers. Unknown categories always pass and are
// checked again at runtime.
func binaryResultKind(op TokenType, left, right value.Kind) (value.Kind, bool) {
	if op == PLUS {
		switch {
		case left == value.KindUnknown:
			return right, true
		case right == value.KindUnknown:
			return left, true
		default:
			return left, left == right
		}
	}
	if !numeric(left) || !numeric(right) {
		return value.KindUnknown, false
	}
	return value.KindNumber, true
}

func predicateMessage(op TokenType, left, right value.Kind) string {
	if op == PLUS {
		return fmt.Sprintf("operator %s cannot combine %s and %s", op, left, right)
	}
	if !numeric(left) {
		return fmt.Sprintf("operator %s requires numbers, found %s", op, left)
	}
	return fmt.Sprintf("operator %s requires numbers, found %s", op, right)
}

func numeric(kind value.Kind) bool {
	return kind == value.KindNumber || kind == value.KindUnknown
}

func (p *Parser) parseUnary() (ast.Expression, value.Kind, error) {
	if !p.atAny(MINUS, PLUS) {
		return p.parsePostfix()
	}
	op := p.advance()
	if p.at(NUMBER) {
		// A sign directly before a number is part of the literal.
		num, err := p.parseNumber()
		if err != nil {
			return nil, value.KindUnknown, err
		}
		if op.Type == MINUS {
			num = -num
		}
		lit := &ast.Literal{Offset: op.Offset, Value: num}
		return p.parsePostfixOps(lit, value.KindNumber)
	}
	if err := p.enter(op.Offset); err != nil {
		return nil, value.KindUnknown, err
	}
	defer p.leave()
	operand, kind, err := p.parseUnary()
	if err != nil {
		return nil, value.KindUnknown, err
	}
	if !numeric(kind) {
		return nil, value.KindUnknown, p.errorf(op.Offset, "operator %s cannot be applied to %s", op.Type, kind)
	}
	return &ast.UnaryOp{Offset: op.Offset, Op: op.Literal, Operand: operand}, value.KindNumber, nil
}

func (p *Parser) parsePostfix() (ast.Expression, value.Kind, error) {
	expr, kind, err := p.parsePrimary()
	if err != nil {
		return nil, value.KindUnknown, err
	}
	return p.parsePostfixOps(expr, kind)
}

func (p *Parser) parsePostfixOps(expr ast.Expression, kind value.Kind) (ast.Expression, value.Kind, error) {
	for p.at(LBRACKET) {
		open := p.advance()
		index, _, err := p.parseExpression()
		if err != nil {
			return nil, value.KindUnknown, err
		}
		if _, err := p.expect(RBRACKET); err != nil {
			return nil, value.KindUnknown, err
		}
		expr = &ast.Index{Offset: open.Offset, Target: expr, Index: index}
		kind = value.KindUnknown
	}
	return expr, kind, nil
}

func (p *Parser) parsePrimary() (ast.Expression, value.Kind, error) {
	tok := p.cur()
	switch tok.Type {
	case NUMBER:
		num, err := p.parseNumber()
		if err != nil {
			return nil, value.KindUnknown, err
		}
		return &ast.Literal{Offset: tok.Offset, Value: num}, value.KindNumber, nil
	case STRING:
		p.advance()
		return &ast.Literal{Offset: tok.Offset, Value: value.String(tok.Literal)}, value.KindString, nil
	case IDENT:
		p.advance()
		return &ast.Identifier{Offset: tok.Offset, Name: tok.Literal}, value.KindUnknown, nil
	case LBRACKET:
		p.advance()
		elements, err := p.parseList(RBRACKET)
		if err != nil {
			return nil, value.KindUnknown, err
		}
		return &ast.ArrayLiteral{Offset: tok.Offset, Elements: elements}, value.KindArray, nil
	case LPAREN:
		p.advance()
		expr, kind, err := p.parseExpression()
		if err != nil {
			return nil, value.KindUnknown, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, value.KindUnknown, err
		}
		return expr, kind, nil
	}
	return nil, value.KindUnknown, p.errorf(tok.Offset, "expected expression, found %s", tok.describe())
}

func (p *Parser) parseNumber() (value.Number, error) {
	tok := p.advance()
	f, err := strconv.ParseFloat(tok.Literal, 64)
	if err != nil {
		return 0, p.errorf(tok.Offset, "invalid number %q", tok.Literal)
	}
	return value.Number(f), nil
}

// parseList parses comma separated expressions up to and including the
// closing token.
func (p *Parser) parseList(closing TokenType) ([]ast.Expression, error) {
	items := []ast.Expression{}
	if p.at(closing) {
		p.advance()
		return items, nil
	}
	for {
		item, _, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if p.at(COMMA) {
			p.advance()
			continue
		}
		if _, err := p.expect(closing); err != nil {
			return nil, err
		}
		return items, nil
	}
}

func (p *Parser) cur() Token {
	return p.tokens[p.pos]
}

func (p *Parser) peek(n int) Token {
	if p.pos+n < len(p.tokens) {
		return p.tokens[p.pos+n]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) at(t TokenType) bool {
	return p.cur().Type == t
}

func (p *Parser) atAny(types ...TokenType) bool {
	for _, t := range types {
		if p.at(t) {
			return true
		}
	}
	return false
}

func (p *Parser) advance() Token {
	tok := p.tokens[p.pos]
	if tok.Type != EOF {
		p.pos++
	}
	return tok
}

func (p *Parser) expect(t TokenType) (Token, error) {
	tok := p.cur()
	if tok.Type != t {
		return tok, p.errorf(tok.Offset, "expected %s, found %s", t, tok.describe())
	}
	p.pos++
	return tok, nil
}

func (p *Parser) backtrack(pos int, op Token, message string) {
	p.pos = pos
	p.hint = &hint{offset: op.Offset, message: message}
}

func (p *Parser) errorf(offset int, format string, args ...any) error {
	if p.hint != nil && p.hint.offset == offset {
		return newSyntaxError(p.src, offset, p.hint.message)
	}
	return newSyntaxError(p.src, offset, fmt.Sprintf(format, args...))
}

func (p *Parser) enter(offset int) error {
	p.depth++
	if p.depth > p.maxDepth {
		p.fatal = newSyntaxError(p.src, offset, fmt.Sprintf("nesting exceeds maximum depth of %d", p.maxDepth))
		return p.fatal
	}
	return nil
}

func (p *Parser) leave() {
	p.depth--
}
