package router

import (
	"testing"

	"capstan/internal/manifest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func descriptorWith(t *testing.T, params string) *manifest.Descriptor {
	t.Helper()
	set, err := manifest.Compile([]byte(`
capabilities:
  - id: cap
    image: cap:1
    parameters:
` + params + `
    network:
      port: 8080
`))
	require.NoError(t, err)
	d, ok := set.Get("cap")
	require.True(t, ok)
	return d
}

func TestBuildArguments_IntegerAcceptsIntegralFloat(t *testing.T) {
	d := descriptorWith(t, `
      - name: count
        type: integer
`)

	// JSON numbers arrive as float64.
	out, err := buildArguments(d, map[string]interface{}{"count": 3.0})
	require.NoError(t, err)
	assert.Equal(t, 3.0, out["count"])

	_, err = buildArguments(d, map[string]interface{}{"count": 3.5})
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestBuildArguments_NumericEnumTolerance(t *testing.T) {
	// The manifest declares integers, JSON delivers floats.
	d := descriptorWith(t, `
      - name: level
        type: number
        enum: [1, 2, 3]
`)

	out, err := buildArguments(d, map[string]interface{}{"level": 2.0})
	require.NoError(t, err)
	assert.Equal(t, 2.0, out["level"])

	_, err = buildArguments(d, map[string]interface{}{"level": 4.0})
	assert.Error(t, err)
}

func TestBuildArguments_OptionalWithoutDefaultStaysAbsent(t *testing.T) {
	d := descriptorWith(t, `
      - name: note
        type: string
        optional: true
`)

	out, err := buildArguments(d, map[string]interface{}{})
	require.NoError(t, err)
	_, present := out["note"]
	assert.False(t, present)
}

func TestBuildArguments_CollectsAllProblems(t *testing.T) {
	d := descriptorWith(t, `
      - name: a
        type: number
      - name: b
        type: boolean
`)

	_, err := buildArguments(d, map[string]interface{}{"b": "yes", "c": 1.0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown argument "c"`)
	assert.Contains(t, err.Error(), `missing required argument "a"`)
	assert.Contains(t, err.Error(), `argument "b" must be of type boolean`)
}
