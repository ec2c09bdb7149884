package resolve

import (
	"context"
	"testing"

	"capstan/internal/manifest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *manifest.Store {
	t.Helper()
	set, err := manifest.Compile([]byte(`
capabilities:
  - id: calc
    image: calc:1
    network:
      port: 8080
  - id: echo
    image: echo:1
    network:
      port: 9000
`))
	require.NoError(t, err)
	return manifest.NewStore(set)
}

func TestStaticResolver_PatternAndPort(t *testing.T) {
	r := NewStaticResolver(testStore(t), "cap-%s.local")

	ep, err := r.Resolve(context.Background(), "calc")
	require.NoError(t, err)
	assert.Equal(t, Endpoint{Host: "cap-calc.local", Port: 8080}, ep)

	ep, err = r.Resolve(context.Background(), "echo")
	require.NoError(t, err)
	assert.Equal(t, Endpoint{Host: "cap-echo.local", Port: 9000}, ep)
}

func TestStaticResolver_UnknownCapability(t *testing.T) {
	r := NewStaticResolver(testStore(t), "%s")

	_, err := r.Resolve(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownCapability)
}

func TestEndpoint_URL(t *testing.T) {
	ep := Endpoint{Host: "10.0.0.7", Port: 8080}
	assert.Equal(t, "http://10.0.0.7:8080", ep.URL())
	assert.Equal(t, "10.0.0.7:8080", ep.Addr())
}
