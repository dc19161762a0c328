package sandbox_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/cadloop/internal/testutils"
	"github.com/aretw0/cadloop/pkg/domain"
	"github.com/aretw0/cadloop/pkg/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, code string, prior domain.Solid, opts ...sandbox.Option) domain.ExecutionResult {
	t.Helper()
	sb := sandbox.New(testutils.NewKernel(), opts...)
	return sb.Run(context.Background(), code, prior)
}

func ops(t *testing.T, res domain.ExecutionResult) []string {
	t.Helper()
	require.True(t, res.Success, "unexpected failure: %v", res.Error)
	return res.Geometry.(*testutils.Solid).Ops
}

func TestRun_CreateBox(t *testing.T) {
	res := run(t, `result = Box(10, 20, 30)`, nil)

	require.True(t, res.Success, "%v", res.Error)
	require.NotNil(t, res.Summary)
	assert.Equal(t, domain.Vec3{X: 10, Y: 20, Z: 30}, res.Summary.BoundingBox.Size())
	assert.Equal(t, 6000.0, res.Summary.Volume)
	assert.Equal(t, 1, res.Summary.Parts)
	assert.Positive(t, res.Duration)
}

func TestRun_ModifyBindsPrior(t *testing.T) {
	k := testutils.NewKernel()
	prior, err := k.Box(60, 40, 30)
	require.NoError(t, err)

	res := sandbox.New(k).Run(context.Background(), `result = result.Sub(Cylinder(5, 40))`, prior)

	assert.Equal(t, []string{"box(60,40,30)", "sub[cylinder(5,40)]"}, ops(t, res))
	assert.Equal(t, []string{"box(60,40,30)"}, prior.(*testutils.Solid).Ops, "prior must not be mutated")
}

func TestRun_Primitives(t *testing.T) {
	code := `
a := Box(1, 1, 1)
b := Sphere(2).Move(10, 0, 0)
c := Cone(3, 1, 4).RotateX(90)
result = Union(a, b, c).Fillet(0.5, Z).Chamfer(0.2)
`
	got := ops(t, run(t, code, nil))
	assert.Equal(t, "box(1,1,1)", got[0])
	assert.Contains(t, got, "fillet(0.5)")
	assert.Contains(t, got, "chamfer(0.2)")
}

func TestRun_SizeAndStdlib(t *testing.T) {
	code := `
import "math"

x, y, z := Box(1, 2, 3).Size()
n, _ := strconv.Atoi("2")
result = Box(x+y+z, math.Sqrt(16), float64(n))
`
	res := run(t, code, nil)
	require.True(t, res.Success, "%v", res.Error)
	assert.Equal(t, domain.Vec3{X: 6, Y: 4, Z: 2}, res.Summary.BoundingBox.Size())
}

func TestRun_ForbiddenImport(t *testing.T) {
	for _, code := range []string{
		"import \"os\"\nresult = Box(1, 1, 1)",
		"import (\n\t\"math\"\n\t\"os/exec\"\n)\nresult = Box(1, 1, 1)",
		"import x \"net/http\"\nresult = Box(1, 1, 1)",
	} {
		res := run(t, code, nil)
		assert.Equal(t, domain.KindSyntaxError, res.ErrorKind(), code)
		assert.Contains(t, res.Error.Error(), "forbidden imports")
	}
}

func TestRun_SyntaxError(t *testing.T) {
	res := run(t, `result = Box(10, 20`, nil)
	assert.False(t, res.Success)
	assert.Nil(t, res.Geometry)
	assert.Equal(t, domain.KindSyntaxError, res.ErrorKind())

	res = run(t, `result = Undefined(1)`, nil)
	assert.Equal(t, domain.KindSyntaxError, res.ErrorKind())
}

func TestRun_KernelErrorIsRuntimeError(t *testing.T) {
	res := run(t, `result = Box(-1, 1, 1)`, nil)

	assert.Equal(t, domain.KindRuntimeError, res.ErrorKind())
	assert.ErrorIs(t, res.Error, domain.ErrInvalidOperand)
	assert.Contains(t, res.Error.Error(), "positive")
}

func TestRun_PanicIsRuntimeError(t *testing.T) {
	res := run(t, "var s []int\nresult = Box(float64(s[3]), 1, 1)", nil)
	assert.Equal(t, domain.KindRuntimeError, res.ErrorKind())
	assert.Contains(t, res.Error.Error(), "index out of range")
}

func TestRun_ResultMissing(t *testing.T) {
	for _, code := range []string{
		"x := Box(1, 1, 1)\n_ = x",
		"result = nil",
		"// nothing here",
		"",
	} {
		res := run(t, code, nil)
		assert.Equal(t, domain.KindResultMissing, res.ErrorKind(), "%q", code)
	}
}

func TestRun_FreshNamespacePerCall(t *testing.T) {
	sb := sandbox.New(testutils.NewKernel())
	ctx := context.Background()

	first := sb.Run(ctx, `result = Box(1, 1, 1)`, nil)
	require.True(t, first.Success)

	// A second create starts from an unbound result again.
	second := sb.Run(ctx, `result = result.Move(1, 0, 0)`, nil)
	assert.Equal(t, domain.KindRuntimeError, second.ErrorKind())
	assert.Contains(t, second.Error.Error(), "unbound")
}

func TestRun_Timeout(t *testing.T) {
	res := run(t, "for i := 0; ; i++ {}", nil, sandbox.WithTimeout(50*time.Millisecond))

	assert.Equal(t, domain.KindTimeout, res.ErrorKind())
	assert.ErrorIs(t, res.Error, domain.ErrTimeout)
	assert.Less(t, res.Duration, 5*time.Second)
}

func TestRun_EmptyConstructionSucceeds(t *testing.T) {
	res := run(t, `result = Box(1, 1, 1).And(Box(1, 1, 1).Move(10, 0, 0))`, nil)

	require.True(t, res.Success, "%v", res.Error)
	assert.True(t, res.Geometry.Empty())
	assert.Zero(t, res.Summary.Volume)
}

func TestRun_CapturesOutput(t *testing.T) {
	res := run(t, "println(\"hello\", 42)\nresult = Box(1, 1, 1)", nil)
	require.True(t, res.Success)
	assert.Contains(t, res.Output, "hello 42")
}

func TestRun_TruncatesOutput(t *testing.T) {
	code := "for i := 0; i < 100; i++ { println(\"0123456789\") }\nresult = Box(1, 1, 1)"
	res := run(t, code, nil, sandbox.WithMaxOutput(32))

	require.True(t, res.Success)
	assert.True(t, strings.HasSuffix(res.Output, "[output truncated]"))
	assert.Less(t, len(res.Output), 64)
}

func TestRun_SanitizesOutput(t *testing.T) {
	code := "println(\"\\x1b[31mred\\x1b[0m\", \"bell\\a\")\nresult = Box(1, 1, 1)"
	res := run(t, code, nil)

	require.True(t, res.Success)
	assert.Contains(t, res.Output, "red bell")
	assert.NotContains(t, res.Output, "\x1b")
	assert.NotContains(t, res.Output, "[31m")
	assert.NotContains(t, res.Output, "\a")
}

func TestRun_LeadingDeclarations(t *testing.T) {
	cases := map[string]string{
		"helper func": "func plate(w float64) *cad.Shape {\n\treturn Box(w, w, 2)\n}\nresult = plate(10)",
		"const":       "const w = 10.0\nresult = Box(w, w, 2)",
		"var block":   "var (\n\tw = 10.0\n\th = 2.0\n)\nresult = Box(w, w, h)",
		"interleaved": "w := 10.0\nconst h = 2.0\nfunc grow(s *cad.Shape) *cad.Shape { return s }\nresult = grow(Box(w, w, h))",
	}
	for name, code := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, []string{"box(10,10,2)"}, ops(t, run(t, code, nil)))
		})
	}
}

func TestRun_DeclarationErrorKeepsLineNumber(t *testing.T) {
	res := run(t, "const w = 10.0\n\nfunc broken( {\n}\nresult = Box(w, w, w)", nil)
	assert.Equal(t, domain.KindSyntaxError, res.ErrorKind())
	assert.Contains(t, res.Error.Error(), ":3:")
}
