package sandbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitChunks(t *testing.T) {
	src := "w := 2.0\nfunc f(x float64) float64 {\n\tvar y = x\n\treturn y\n}\ntype T struct{}\nresult = Box(f(w), 1, 1)\nfor i := 0; i < 3; i++ {}\n"
	chunks := splitChunks(src)
	require.Len(t, chunks, 3)

	assert.False(t, chunks[0].decl)
	assert.Equal(t, "w := 2.0", chunks[0].text)

	assert.True(t, chunks[1].decl)
	assert.True(t, strings.HasPrefix(chunks[1].text, "\nfunc f("))
	assert.True(t, strings.HasSuffix(chunks[1].text, "type T struct{}"))

	assert.False(t, chunks[2].decl)
	assert.Equal(t, 6, strings.Count(chunks[2].text, "\n")-strings.Count(strings.TrimLeft(chunks[2].text, "\n"), "\n"))
	assert.Contains(t, chunks[2].text, "for i := 0; i < 3; i++ {}")
}

func TestSplitChunks_FuncLiteralIsStatement(t *testing.T) {
	chunks := splitChunks("func() { println(1) }()\nresult = Box(1, 1, 1)")
	require.Len(t, chunks, 1)
	assert.False(t, chunks[0].decl)
}

func TestSplitChunks_Unscannable(t *testing.T) {
	src := "result = Box(1, 1, 1) \x00"
	chunks := splitChunks(src)
	require.Len(t, chunks, 1)
	assert.Equal(t, src, chunks[0].text)
}

func TestSplitChunks_CommentsOnly(t *testing.T) {
	assert.Empty(t, splitChunks("// nothing here\n"))
}
