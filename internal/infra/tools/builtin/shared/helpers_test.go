package shared

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArgHelpers(t *testing.T) {
	args := map[string]any{
		"path":    "/tmp/x",
		"offset":  float64(3),
		"limit":   json.Number("7"),
		"flag":    "yes",
		"list":    []any{" a ", "", "b"},
		"single":  "c",
		"nothing": nil,
	}

	assert.Equal(t, "/tmp/x", StringArg(args, "path"))
	assert.Equal(t, "", StringArg(args, "nothing"))
	assert.False(t, HasArg(args, "nothing"))

	offset, ok := IntArg(args, "offset")
	assert.True(t, ok)
	assert.Equal(t, 3, offset)
	assert.Equal(t, 7, *IntPtrArg(args, "limit"))
	assert.Nil(t, IntPtrArg(args, "missing"))

	assert.True(t, *BoolPtrArg(args, "flag"))
	assert.Nil(t, BoolPtrArg(args, "missing"))
	assert.True(t, BoolValue(nil, true))

	assert.Equal(t, []string{"a", "b"}, StringSliceArg(args, "list"))
	assert.Equal(t, []string{"c"}, StringSliceArg(args, "single"))
}

func TestDefaultIgnores(t *testing.T) {
	assert.True(t, IsDefaultIgnoredDir("node_modules"))
	assert.False(t, IsDefaultIgnoredDir("src"))
	assert.True(t, IsDefaultIgnoredFile("server.log"))
	assert.True(t, IsDefaultIgnoredFile(".DS_Store"))
	assert.False(t, IsDefaultIgnoredFile("main.go"))
}

func TestPlural(t *testing.T) {
	assert.Equal(t, "1 file", Plural(1, "file"))
	assert.Equal(t, "2 files", Plural(2, "file"))
}
