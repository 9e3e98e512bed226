package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/deepnoodle-ai/scriptbox/ast"
	"github.com/stretchr/testify/require"
)

const shell = `
fun() {
%s
}

fun();
`

func wrap(body string) string {
	return strings.Replace(shell, "%s", body, 1)
}

func requireSyntaxError(t *testing.T, err error) *SyntaxError {
	t.Helper()
	require.Error(t, err)
	var syntaxErr *SyntaxError
	require.True(t, errors.As(err, &syntaxErr), "expected *SyntaxError, got %T", err)
	return syntaxErr
}

func TestParseProgramShape(t *testing.T) {
	program, err := Parse(wrap(`x = "a"; x = x + x;`))
	require.NoError(t, err)
	require.Len(t, program.Functions, 1)
	require.Equal(t, "fun", program.Functions[0].Name)
	require.Len(t, program.Functions[0].Body, 2)
	require.Len(t, program.Statements, 1)

	call, ok := program.Statements[0].(*ast.FunctionCall)
	require.True(t, ok)
	require.Equal(t, "fun", call.Name)
}

func TestErrorLocation(t *testing.T) {
	_, err := Parse(wrap(`for (i=0; i < 1000; i = i +) { a = 100; }`))
	syntaxErr := requireSyntaxError(t, err)
	require.Equal(t, 35, syntaxErr.Offset)
	require.Equal(t, 3, syntaxErr.Line)
	require.Equal(t, 27, syntaxErr.Column)
	require.Contains(t, syntaxErr.Message, "expected operand after '+'")
}

func TestPlusPredicate(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr bool
		offset  int
		message string
	}{
		{name: "string plus number", src: `x = "a" + 1;`, wantErr: true, offset: 8, message: "cannot combine string and number"},
		{name: "number plus string", src: `x = 1 + "a";`, wantErr: true, offset: 6, message: "cannot combine number and string"},
		{name: "array plus string", src: `x = [] + "a";`, wantErr: true, offset: 7, message: "cannot combine array and string"},
		{name: "chain mismatch", src: `x = "a" + "b" + 2;`, wantErr: true, offset: 14},
		{name: "string minus number", src: `x = "a" - 1;`, wantErr: true, offset: 8, message: "requires numbers, found string"},
		{name: "strings", src: `x = "a" + "b" + "c";`},
		{name: "arrays", src: `x = ["a"] + ["a"];`},
		{name: "identifier with number", src: `x = y + 1;`},
		{name: "identifier with string", src: `x = "a" + y;`},
		{name: "parenthesized", src: `x = ("a" + "b") + "c";`},
		{name: "negative literal", src: `x = x * -0.1;`},
		{name: "comparison result is a number", src: `x = (1 < 2) + 1;`},
		{name: "comparison result with string", src: `x = (1 < 2) + "a";`, wantErr: true, offset: 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			syntaxErr := requireSyntaxError(t, err)
			require.Equal(t, tt.offset, syntaxErr.Offset)
			if tt.message != "" {
				require.Contains(t, syntaxErr.Message, tt.message)
			}
		})
	}
}

func TestComments(t *testing.T) {
	tests := []string{
		"x = 1; /* x = x + 10; */ x = 2;",
		"x = 1; # x = x + 10;\n x = 2;",
		"x = 1; // x = x + 10;\n x = 2;",
		"/* multi\nline */ x = 1; x = 2; # trailing",
	}
	for _, src := range tests {
		program, err := Parse(src)
		require.NoError(t, err, src)
		require.Len(t, program.Statements, 2, src)
	}
}

func TestUnterminated(t *testing.T) {
	_, err := Parse(`x = 1; /* never closed`)
	syntaxErr := requireSyntaxError(t, err)
	require.Equal(t, 7, syntaxErr.Offset)
	require.Contains(t, syntaxErr.Message, "unterminated block comment")

	_, err = Parse(`x = "abc;`)
	syntaxErr = requireSyntaxError(t, err)
	require.Equal(t, 4, syntaxErr.Offset)
	require.Contains(t, syntaxErr.Message, "unterminated string")

	_, err = Parse(`fun() { x = 1;`)
	syntaxErr = requireSyntaxError(t, err)
	require.Equal(t, 14, syntaxErr.Offset)
}

func TestOffsetsCountCharacters(t *testing.T) {
	_, err := Parse(`x = "héllo" + 1;`)
	syntaxErr := requireSyntaxError(t, err)
	require.Equal(t, 12, syntaxErr.Offset)
}

func TestStatements(t *testing.T) {
	program, err := Parse(`
		x = [1, 2, [3]];
		x.append("a");
		y = x[2][0];
		if (y < 10) { y = y * 100; } else if (y == 3) { y = 0; } else { y = 1; }
		for (i = 0; i < 3; i = i + 1) { x.insert(0, i); }
		for (;;) {}
		main();
		main() { z = 'single \'quoted\''; }
	`)
	require.NoError(t, err)
	require.Len(t, program.Functions, 1)
	require.Len(t, program.Statements, 7)

	method := program.Statements[1].(*ast.MethodCall)
	require.Equal(t, "x", method.Target)
	require.Equal(t, "append", method.Method)
	require.Len(t, method.Args, 1)

	ifStmt := program.Statements[3].(*ast.If)
	require.Len(t, ifStmt.Else, 1)
	_, ok := ifStmt.Else[0].(*ast.If)
	require.True(t, ok)

	loop := program.Statements[4].(*ast.For)
	require.NotNil(t, loop.Init)
	require.NotNil(t, loop.Cond)
	require.NotNil(t, loop.Step)

	empty := program.Statements[5].(*ast.For)
	require.Nil(t, empty.Init)
	require.Nil(t, empty.Cond)
	require.Nil(t, empty.Step)

	lit := program.Functions[0].Body[0].(*ast.Assignment).Value.(*ast.Literal)
	require.Equal(t, "single 'quoted'", lit.Value.String())
}

func TestSyntaxErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		offset  int
		message string
	}{
		{"missing semicolon", "x = 1 y = 2;", 6, "expected ';'"},
		{"nested function", "f() { g() { } }", 6, "top level"},
		{"duplicate function", "f() {} f() {}", 7, "already defined"},
		{"unexpected character", "x = 1 @ 2;", 6, "unexpected character"},
		{"missing expression", "x = ;", 4, "expected expression"},
		{"dangling comparison", "if (x <) {}", 6, "expected operand after '<'"},
		{"unary on string", `x = -"a";`, 4, "cannot be applied to string"},
		{"method without parens", "x.append;", 8, "expected '('"},
		{"unclosed array", "x = [1, 2;", 9, "expected ']'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			syntaxErr := requireSyntaxError(t, err)
			require.Equal(t, tt.offset, syntaxErr.Offset)
			require.Contains(t, syntaxErr.Message, tt.message)
		})
	}
}

func TestNestingDepth(t *testing.T) {
	src := "x = " + strings.Repeat("(", 50) + "1" + strings.Repeat(")", 50) + ";"
	_, err := Parse(src)
	require.NoError(t, err)

	_, err = Parse(src, WithMaxNestingDepth(20))
	syntaxErr := requireSyntaxError(t, err)
	require.Contains(t, syntaxErr.Message, "maximum depth of 20")

	deep := "x = " + strings.Repeat("(", 10000) + "1" + strings.Repeat(")", 10000) + ";"
	_, err = Parse(deep)
	syntaxErr = requireSyntaxError(t, err)
	require.Contains(t, syntaxErr.Message, "maximum depth")
}

func TestProgramString(t *testing.T) {
	program, err := Parse(`f() { x = 1 + 2 * 3; } f();`)
	require.NoError(t, err)
	require.Equal(t, "f() {\n  x = (1 + (2 * 3));\n}\nf();", program.String())
}
