package scriptbox

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/deepnoodle-ai/scriptbox/value"
	"github.com/stretchr/testify/require"
)

// shell wraps a snippet the way embedding hosts do: one function holding the
// script body, followed by a call to it.
const shell = `
fun() {
%s
}

fun();
`

func execute(t *testing.T, body string, opts ...ContextOption) *Context {
	t.Helper()
	program, err := Parse(fmt.Sprintf(shell, body))
	require.NoError(t, err)
	c := NewContext(opts...)
	require.NoError(t, program.Execute(c))
	return c
}

func executeErr(t *testing.T, body string, opts ...ContextOption) (*Context, *ScriptError) {
	t.Helper()
	program, err := Parse(fmt.Sprintf(shell, body))
	require.NoError(t, err)
	c := NewContext(opts...)
	err = program.Execute(c)
	require.Error(t, err)
	var scriptErr *ScriptError
	require.True(t, errors.As(err, &scriptErr))
	return c, scriptErr
}

func binding(t *testing.T, c *Context, name string) value.Value {
	t.Helper()
	v, ok := c.Root().Get(name)
	require.True(t, ok, "variable %q not bound", name)
	return v
}

func TestStringAppend(t *testing.T) {
	c := execute(t, "x = \"a\";\nx = x + x;")
	require.Equal(t, value.String("aa"), binding(t, c, "x"))

	c = execute(t, `x = "a" + "b" + "c";`)
	require.Equal(t, value.String("abc"), binding(t, c, "x"))

	_, err := Parse(fmt.Sprintf(shell, `x = "a" + 1;`))
	require.Error(t, err)
	require.True(t, MatchesErrorType(err, ErrorTypeSyntax))
}

func TestStringInsert(t *testing.T) {
	c := execute(t, `x = ""; x.insert(0, "a");`)
	require.Equal(t, value.String("a"), binding(t, c, "x"))

	c = execute(t, `x = "abc"; x.insert(1, "x");`)
	require.Equal(t, value.String("axbc"), binding(t, c, "x"))

	c = execute(t, `x = "abc"; x.insert(3, "d");`)
	require.Equal(t, value.String("abcd"), binding(t, c, "x"))
}

func TestStringInsertRebindsOnly(t *testing.T) {
	c := execute(t, `x = "ab"; y = x; x.insert(1, "-");`)
	require.Equal(t, value.String("a-b"), binding(t, c, "x"))
	require.Equal(t, value.String("ab"), binding(t, c, "y"))
}

func TestArrayInsert(t *testing.T) {
	c := execute(t, `x = []; x.insert(0, "a");`)
	require.Equal(t, value.NewArray(value.String("a")), binding(t, c, "x"))

	c = execute(t, `x = [1, 3]; x.insert(1, 2); x.insert(3, 4);`)
	require.Equal(t, "[1, 2, 3, 4]", binding(t, c, "x").String())
}

func TestArrayAppend(t *testing.T) {
	c := execute(t, `x = []; x.append("a");`)
	require.Equal(t, value.NewArray(value.String("a")), binding(t, c, "x"))
}

func TestArrayAliasing(t *testing.T) {
	c := execute(t, `x = []; y = x; y.append("a");`)
	require.Equal(t, `["a"]`, binding(t, c, "x").String())
	require.Same(t, binding(t, c, "x"), binding(t, c, "y"))

	c = execute(t, `a = [1]; b = a + [2]; b.append(3);`)
	require.Equal(t, "[1]", binding(t, c, "a").String())
	require.Equal(t, "[1, 2, 3]", binding(t, c, "b").String())
}

func TestStringReplace(t *testing.T) {
	c := execute(t, `x = "a"; x.replace("a", "");`)
	require.Equal(t, value.String(""), binding(t, c, "x"))

	c = execute(t, `x = "abc"; x.replace("b", "");`)
	require.Equal(t, value.String("ac"), binding(t, c, "x"))

	c = execute(t, `x = "abab"; x.replace("b", "c");`)
	require.Equal(t, value.String("acac"), binding(t, c, "x"))
}

func TestEvaluateNumbers(t *testing.T) {
	c := execute(t, `x = 1000; x = x * -0.1;`)
	require.Equal(t, value.Number(-100), binding(t, c, "x"))

	c = execute(t, `x = 7; y = x / 2 - -x;`)
	require.Equal(t, value.Number(10.5), binding(t, c, "y"))

	c = execute(t, `x = 2; y = -x * 3;`)
	require.Equal(t, value.Number(-6), binding(t, c, "y"))
}

func TestComments(t *testing.T) {
	tests := []struct {
		name string
		body string
		want value.Number
	}{
		{"none", `x = 1000; x = x * -0.1; x = x + 10; x = x - 1;`, -91},
		{"block", `x = 1000; x = x * -0.1; /* x = x + 10; */ x = x - 1;`, -101},
		{"hash", "x = 1000; x = x * -0.1; # x = x + 10; \n x = x - 1;", -101},
		{"slashes", "x = 1000; x = x * -0.1; // x = x + 10; \n x = x - 1;", -101},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := execute(t, tt.body)
			require.Equal(t, tt.want, binding(t, c, "x"))
		})
	}
}

func TestIfThenElse(t *testing.T) {
	c := execute(t, `x = 1000; if (x < 10) { x = x * 100; } else { x = x / 100; }`)
	require.Equal(t, value.Number(10), binding(t, c, "x"))

	c = execute(t, `x = 1; if (x < 10) { y = "then"; } else { z = "else"; }`)
	require.Equal(t, value.String("then"), binding(t, c, "y"))
	require.False(t, c.Root().Has("z"))

	c = execute(t, `x = 5; if (x > 10) { y = 1; } else if (x > 3) { y = 2; } else { y = 3; }`)
	require.Equal(t, value.Number(2), binding(t, c, "y"))
}

func TestErrorLocation(t *testing.T) {
	_, err := Parse(fmt.Sprintf(shell, `for (i=0; i < 1000; i = i +) { a = 100; }`))
	require.Error(t, err)
	var scriptErr *ScriptError
	require.True(t, errors.As(err, &scriptErr))
	require.Equal(t, ErrorTypeSyntax, scriptErr.Type)
	require.Equal(t, 35, scriptErr.Offset)
}

func TestArrayAdd(t *testing.T) {
	c := execute(t, `x = ["a"] + ["a"];`)
	require.Equal(t, value.NewArray(value.String("a"), value.String("a")), binding(t, c, "x"))
}

func TestArrayReference(t *testing.T) {
	c := execute(t, `x = ["a"] + ["a"]; x = x[1];`)
	require.Equal(t, value.String("a"), binding(t, c, "x"))

	c = execute(t, `x = [[1, 2], [3]]; y = x[0][1];`)
	require.Equal(t, value.Number(2), binding(t, c, "y"))
}

func TestForLoop(t *testing.T) {
	c := execute(t, `n = 0; for (i = 0; i < 10; i = i + 1) { n = n + i; }`)
	require.Equal(t, value.Number(45), binding(t, c, "n"))
	require.Equal(t, value.Number(10), binding(t, c, "i"))

	c = execute(t, `s = ""; for (i = 0; i < 3; i = i + 1) { s = s + "ab"; }`)
	require.Equal(t, value.String("ababab"), binding(t, c, "s"))
}

func TestIterationLimit(t *testing.T) {
	body := `n = 0; for (i = 0; i < 10; i = i + 1) { n = n + 1; }`

	c := execute(t, body, WithLimits(Limits{MaxIterations: 10}))
	require.Equal(t, value.Number(10), binding(t, c, "n"))

	c, err := executeErr(t, body, WithLimits(Limits{MaxIterations: 9}))
	require.Equal(t, ErrorTypeIterationLimit, err.Type)
	require.Equal(t, 9, err.Limit)
	require.Equal(t, 10, err.Reached)
	require.True(t, err.IsGuard())
	require.Equal(t, value.Number(9), binding(t, c, "n"))

	_, err = executeErr(t, `for (;;) { }`, WithLimits(Limits{MaxIterations: 50}))
	require.Equal(t, ErrorTypeIterationLimit, err.Type)
}

func TestIterationLimitPerLoop(t *testing.T) {
	body := `n = 0;
for (i = 0; i < 5; i = i + 1) {
  for (j = 0; j < 5; j = j + 1) { n = n + 1; }
}`
	c := execute(t, body, WithLimits(Limits{MaxIterations: 5}))
	require.Equal(t, value.Number(25), binding(t, c, "n"))
	require.Equal(t, 30, c.Stats().Iterations)
}

func TestStackDepth(t *testing.T) {
	src := `
f() {
  n = n + 1;
  f();
}
n = 0;
f();
`
	program, err := Parse(src)
	require.NoError(t, err)

	c := NewContext(WithLimits(Limits{MaxCallDepth: 5}))
	err = program.Execute(c)
	require.Error(t, err)
	require.True(t, IsGuardError(err))

	scriptErr := ClassifyError(err)
	require.Equal(t, ErrorTypeStackDepth, scriptErr.Type)
	require.Equal(t, 5, scriptErr.Limit)
	require.Equal(t, 6, scriptErr.Reached)

	// The sixth body never ran and the stack unwound completely.
	require.Equal(t, value.Number(5), binding(t, c, "n"))
	require.Equal(t, 0, c.Depth())
	require.Equal(t, 5, c.Stats().MaxDepth)
}

func TestAssignmentInsideCallsBindsRoot(t *testing.T) {
	src := `
inner() { y = x + 1; }
outer() { x = 1; inner(); }
outer();
`
	program, err := Parse(src)
	require.NoError(t, err)
	c := NewContext()
	require.NoError(t, program.Execute(c))
	require.Equal(t, []string{"x", "y"}, c.Root().Names())
	require.Equal(t, value.Number(2), binding(t, c, "y"))
	require.Equal(t, 2, c.Stats().Calls)
}

func TestDeterminism(t *testing.T) {
	program, err := Parse(fmt.Sprintf(shell, `
a = [];
for (i = 0; i < 20; i = i + 1) {
  if (i / 2 > 4) { a.append(i); } else { a.insert(0, "x" + "y"); }
}
s = "seed";
s.replace("e", "E");`))
	require.NoError(t, err)

	var results []map[string]any
	for range 3 {
		c := NewContext(WithBindings(map[string]value.Value{"k": value.Number(1)}))
		require.NoError(t, program.Execute(c))
		bindings, err := c.Bindings()
		require.NoError(t, err)
		results = append(results, bindings)
	}
	require.Equal(t, results[0], results[1])
	require.Equal(t, results[1], results[2])
	require.Equal(t, "sEEd", results[0]["s"])
}

func TestRuntimeErrors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		errorType string
	}{
		{"undefined variable", `x = y + 1;`, ErrorTypeUndefined},
		{"undefined function", `g();`, ErrorTypeUndefined},
		{"cross category comparison", `x = 1; y = "a"; z = x < y;`, ErrorTypeType},
		{"cross category equality", `x = 1; y = "1"; z = x == y;`, ErrorTypeType},
		{"runtime plus mismatch", `x = 1; y = "a"; z = x + y;`, ErrorTypeType},
		{"runtime plus mismatch on identifier", `x = "a"; y = x + 1;`, ErrorTypeType},
		{"runtime plus mismatch on index", `x = ["a"]; y = x[0] + 1;`, ErrorTypeType},
		{"division by zero", `x = 0; y = 1 / x;`, ErrorTypeArithmetic},
		{"string condition", `x = "a"; if (x) { y = 1; }`, ErrorTypeType},
		{"index out of range", `x = [1]; y = x[1];`, ErrorTypeIndex},
		{"negative index", `x = [1]; y = x[-1];`, ErrorTypeIndex},
		{"fractional index", `x = [1, 2]; y = x[0.5];`, ErrorTypeIndex},
		{"index a string", `x = "abc"; y = x[0];`, ErrorTypeType},
		{"insert out of range", `x = "abc"; x.insert(4, "d");`, ErrorTypeIndex},
		{"array insert out of range", `x = []; x.insert(1, "d");`, ErrorTypeIndex},
		{"append on string", `x = "a"; x.append("b");`, ErrorTypeDispatch},
		{"replace on array", `x = []; x.replace("a", "b");`, ErrorTypeDispatch},
		{"method on number", `x = 1; x.append(2);`, ErrorTypeDispatch},
		{"wrong arity", `x = []; x.append(1, 2);`, ErrorTypeDispatch},
		{"insert number into string", `x = "a"; x.insert(0, 1);`, ErrorTypeDispatch},
		{"method on undefined", `x.append(1);`, ErrorTypeUndefined},
		{"append array to itself", `x = []; x.append(x);`, ErrorTypeType},
		{"insert array into itself", `x = [1]; x.insert(0, x);`, ErrorTypeType},
		{"insert array that holds the target", `x = []; y = [[x]]; x.insert(0, y);`, ErrorTypeType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeErr(t, tt.body)
			require.Equal(t, tt.errorType, err.Type, err.Error())
			require.GreaterOrEqual(t, err.Offset, 0)
			require.False(t, err.IsGuard())
		})
	}
}

func TestComparisons(t *testing.T) {
	c := execute(t, `a = 1 < 2; b = 2 <= 1; c = "a" < "b"; d = [1, [2]] == [1, [2]]; e = "x" != "x"; f = 3 >= 3;`)
	require.Equal(t, value.Number(1), binding(t, c, "a"))
	require.Equal(t, value.Number(0), binding(t, c, "b"))
	require.Equal(t, value.Number(1), binding(t, c, "c"))
	require.Equal(t, value.Number(1), binding(t, c, "d"))
	require.Equal(t, value.Number(0), binding(t, c, "e"))
	require.Equal(t, value.Number(1), binding(t, c, "f"))
}

func TestSizeLimit(t *testing.T) {
	limits := WithLimits(Limits{MaxValueLength: 8})

	_, err := executeErr(t, `s = "ab"; for (i = 0; i < 10; i = i + 1) { s = s + s; }`, limits)
	require.Equal(t, ErrorTypeSizeLimit, err.Type)
	require.Equal(t, 8, err.Limit)
	require.Equal(t, 16, err.Reached)

	c, err := executeErr(t, `a = []; for (i = 0; i < 100; i = i + 1) { a.append(i); }`, limits)
	require.Equal(t, ErrorTypeSizeLimit, err.Type)
	require.Equal(t, 8, binding(t, c, "a").(*value.Array).Len())
}

func TestSharedArrays(t *testing.T) {
	c := execute(t, `
a = [1];
b = [1];
for (i = 0; i < 40; i = i + 1) { a = [a, a]; b = [b, b]; }
same = a == b;
c = [a];
c.append(a);
still = c[0] == c[1];
b.append(2);
differ = a != b;`)
	require.Equal(t, value.Number(1), binding(t, c, "same"))
	require.Equal(t, value.Number(1), binding(t, c, "still"))
	require.Equal(t, value.Number(1), binding(t, c, "differ"))
	require.True(t, strings.HasPrefix(binding(t, c, "a").String(), "[[[["))
	require.Contains(t, binding(t, c, "a").String(), "[...]")

	bindings, err := c.Bindings()
	var scriptErr *ScriptError
	require.ErrorAs(t, err, &scriptErr)
	require.Equal(t, ErrorTypeSizeLimit, scriptErr.Type)
	require.Equal(t, DefaultMaxValueLength, scriptErr.Limit)
	require.Equal(t, 40.0, bindings["i"])
	require.NotContains(t, bindings, "a")
}

func TestFrameToMap(t *testing.T) {
	c := execute(t, `x = [1, ["a"]]; n = 2;`)
	bindings, err := c.Root().ToMap()
	require.NoError(t, err)
	require.Equal(t, map[string]any{"x": []any{1.0, []any{"a"}}, "n": 2.0}, bindings)

	big := value.NewArray(value.Number(1))
	for range 40 {
		big = value.NewArray(big, big)
	}
	c.Root().Set("big", big)
	bindings, err = c.Root().ToMap()
	require.Error(t, err)
	require.NotContains(t, bindings, "big")
	require.Equal(t, 2.0, bindings["n"])
}

func TestEqualitySizeLimit(t *testing.T) {
	_, err := executeErr(t, `a = [[1, 2, 3, 4], [5, 6, 7, 8]]; b = [[1, 2, 3, 4], [5, 6, 7, 8]]; c = a == b;`,
		WithLimits(Limits{MaxValueLength: 8}))
	require.Equal(t, ErrorTypeSizeLimit, err.Type)
	require.Equal(t, 8, err.Limit)
	require.Equal(t, 10, err.Reached)
	require.True(t, err.IsGuard())
}

func TestBindingsSurviveFailure(t *testing.T) {
	c, err := executeErr(t, `x = "kept"; y = [1]; z = y[5]; w = 1;`)
	require.Equal(t, ErrorTypeIndex, err.Type)
	require.Equal(t, value.String("kept"), binding(t, c, "x"))
	require.False(t, c.Root().Has("z"))
	require.False(t, c.Root().Has("w"))
}

func TestFunctionsPersistAcrossPrograms(t *testing.T) {
	c := NewContext()
	define, err := Parse(`inc() { n = n + 1; } n = 0;`)
	require.NoError(t, err)
	require.NoError(t, define.Execute(c))
	require.True(t, c.HasFunction("inc"))

	call, err := Parse(`inc(); inc();`)
	require.NoError(t, err)
	require.NoError(t, call.Execute(c))
	require.Equal(t, value.Number(2), binding(t, c, "n"))
}

func TestExecuteRequiresContext(t *testing.T) {
	program, err := Parse(`x = 1;`)
	require.NoError(t, err)
	require.Error(t, program.Execute(nil))
	require.Error(t, program.Execute(&Context{}))
}

func TestContextBusy(t *testing.T) {
	program, err := Parse(`x = 1;`)
	require.NoError(t, err)
	c := NewContext()
	c.running.Set()
	require.ErrorIs(t, program.Execute(c), ErrContextBusy)
	c.running.UnSet()
	require.NoError(t, program.Execute(c))
}

func TestSeededBindings(t *testing.T) {
	c := execute(t, `greeting = greeting + ", world";`, WithBindings(map[string]value.Value{
		"greeting": value.String("hello"),
	}))
	require.Equal(t, value.String("hello, world"), binding(t, c, "greeting"))
}
