package parser

import (
	"fmt"
	"strings"
)

// TokenType identifies the kind of a lexical token.
type TokenType int

const (
	ILLEGAL TokenType = iota
	EOF

	IDENT  // x, fun
	NUMBER // 10, 0.5
	STRING // "a", 'a'

	ASSIGN   // =
	PLUS     // +
	MINUS    // -
	ASTERISK // *
	SLASH    // /
	LT       // <
	GT       // >
	LTE      // <=
	GTE      // >=
	EQ       // ==
	NOT_EQ   // !=

	COMMA     // ,
	SEMICOLON // ;
	DOT       // .
	LPAREN    // (
	RPAREN    // )
	LBRACE    // {
	RBRACE    // }
	LBRACKET  // [
	RBRACKET  // ]

	IF
	ELSE
	FOR
)

var tokenNames = map[TokenType]string{
	ILLEGAL:   "illegal",
	EOF:       "end of input",
	IDENT:     "identifier",
	NUMBER:    "number",
	STRING:    "string",
	ASSIGN:    "'='",
	PLUS:      "'+'",
	MINUS:     "'-'",
	ASTERISK:  "'*'",
	SLASH:     "'/'",
	LT:        "'<'",
	GT:        "'>'",
	LTE:       "'<='",
	GTE:       "'>='",
	EQ:        "'=='",
	NOT_EQ:    "'!='",
	COMMA:     "','",
	SEMICOLON: "';'",
	DOT:       "'.'",
	LPAREN:    "'('",
	RPAREN:    "')'",
	LBRACE:    "'{'",
	RBRACE:    "'}'",
	LBRACKET:  "'['",
	RBRACKET:  "']'",
	IF:        "'if'",
	ELSE:      "'else'",
	FOR:       "'for'",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("token(%d)", int(t))
}

var keywords = map[string]TokenType{
	"if":   IF,
	"else": ELSE,
	"for":  FOR,
}

// Token is a lexical token. Offset counts characters (runes), not bytes,
// from the start of the source.
type Token struct {
	Type    TokenType
	Literal string
	Offset  int
}

func (t Token) describe() string {
	switch t.Type {
	case EOF:
		return "end of input"
	case STRING:
		return fmt.Sprintf("string %q", t.Literal)
	case IDENT, NUMBER:
		return fmt.Sprintf("%s %q", t.Type, t.Literal)
	default:
		return "'" + t.Literal + "'"
	}
}

// Lexer splits source text into tokens, discarding whitespace and the
// three comment forms: /* block */, # line and // line.
type Lexer struct {
	src []rune
	pos int
}

// NewLexer returns a lexer over src.
func NewLexer(src string) *Lexer {
	return &Lexer{src: []rune(src)}
}

// Tokenize returns every token up to and including EOF.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens, nil
		}
	}
}

// Next returns the next token.
func (l *Lexer) Next() (Token, error) {
	if err := l.skipSpaceAndComments(); err != nil {
		return Token{}, err
	}
	if l.pos >= len(l.src) {
		return Token{Type: EOF, Offset: len(l.src)}, nil
	}

	start := l.pos
	ch := l.src[l.pos]
	switch {
	case isLetter(ch):
		for l.pos < len(l.src) && (isLetter(l.src[l.pos]) || isDigit(l.src[l.pos])) {
			l.pos++
		}
		word := string(l.src[start:l.pos])
		if kw, ok := keywords[word]; ok {
			return Token{Type: kw, Literal: word, Offset: start}, nil
		}
		return Token{Type: IDENT, Literal: word, Offset: start}, nil
	case isDigit(ch):
		return l.readNumber(), nil
	case ch == '.' && isDigit(l.peek(1)):
		return l.readNumber(), nil
	case ch == '"' || ch == '\'':
		return l.readString()
	}

	two := func(next rune, double, single TokenType) Token {
		if l.peek(1) == next {
			l.pos += 2
			return Token{Type: double, Literal: string(l.src[start:l.pos]), Offset: start}
		}
		l.pos++
		return Token{Type: single, Literal: string(ch), Offset: start}
	}

	switch ch {
	case '=':
		return two('=', EQ, ASSIGN), nil
	case '<':
		return two('=', LTE, LT), nil
	case '>':
		return two('=', GTE, GT), nil
	case '!':
		if l.peek(1) == '=' {
			l.pos += 2
			return Token{Type: NOT_EQ, Literal: "!=", Offset: start}, nil
		}
	case '+', '-', '*', '/', ',', ';', '.', '(', ')', '{', '}', '[', ']':
		l.pos++
		return Token{Type: singleChar[ch], Literal: string(ch), Offset: start}, nil
	}
	return Token{}, newSyntaxError(l.src, start, fmt.Sprintf("unexpected character %q", ch))
}

var singleChar = map[rune]TokenType{
	'+': PLUS,
	'-': MINUS,
	'*': ASTERISK,
	'/': SLASH,
	',': COMMA,
	';': SEMICOLON,
	'.': DOT,
	'(': LPAREN,
	')': RPAREN,
	'{': LBRACE,
	'}': RBRACE,
	'[': LBRACKET,
	']': RBRACKET,
}

func (l *Lexer) peek(n int) rune {
	if l.pos+n < len(l.src) {
		return l.src[l.pos+n]
	}
	return 0
}

func (l *Lexer) skipSpaceAndComments() error {
	for l.pos < len(l.src) {
		ch := l.src[l.pos]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			l.pos++
		case ch == '#':
			l.skipLine()
		case ch == '/' && l.peek(1) == '/':
			l.skipLine()
		case ch == '/' && l.peek(1) == '*':
			start := l.pos
			l.pos += 2
			for {
				if l.pos >= len(l.src) {
					return newSyntaxError(l.src, start, "unterminated block comment")
				}
				if l.src[l.pos] == '*' && l.peek(1) == '/' {
					l.pos += 2
					break
				}
				l.pos++
			}
		default:
			return nil
		}
	}
	return nil
}

func (l *Lexer) skipLine() {
	for l.pos < len(l.src) && l.src[l.pos] != '\n' {
		l.pos++
	}
}

func (l *Lexer) readNumber() Token {
	start := l.pos
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
	}
	if l.pos < len(l.src) && l.src[l.pos] == '.' && isDigit(l.peek(1)) {
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	return Token{Type: NUMBER, Literal: string(l.src[start:l.pos]), Offset: start}
}

func (l *Lexer) readString() (Token, error) {
	start := l.pos
	quote := l.src[l.pos]
	l.pos++
	var sb strings.Builder
	for {
		if l.pos >= len(l.src) || l.src[l.pos] == '\n' {
			return Token{}, newSyntaxError(l.src, start, "unterminated string")
		}
		ch := l.src[l.pos]
		if ch == quote {
			l.pos++
			return Token{Type: STRING, Literal: sb.String(), Offset: start}, nil
		}
		if ch == '\\' {
			l.pos++
			if l.pos >= len(l.src) {
				return Token{}, newSyntaxError(l.src, start, "unterminated string")
			}
			switch esc := l.src[l.pos]; esc {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case 'r':
				sb.WriteRune('\r')
			case '\\', '"', '\'':
				sb.WriteRune(esc)
			default:
				return Token{}, newSyntaxError(l.src, l.pos-1, fmt.Sprintf("unknown escape sequence \\%c", esc))
			}
			l.pos++
			continue
		}
		sb.WriteRune(ch)
		l.pos++
	}
}

func isLetter(ch rune) bool {
	return ch == '_' || ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z')
}

func isDigit(ch rune) bool {
	return '0' <= ch && ch <= '9'
}
