package nodeid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type userArg struct {
	Name string `cty:"name"`
	ID   int    `cty:"id"`
}

type untaggedArg struct {
	Name string
}

func TestCanonicalStructuralEquality(t *testing.T) {
	a, err := Canonical(userArg{Name: "ada", ID: 1})
	require.NoError(t, err)
	b, err := Canonical(userArg{Name: "ada", ID: 1})
	require.NoError(t, err)
	assert.Equal(t, a, b, "deeply equal arguments must share a key")

	c, err := Canonical(userArg{Name: "ada", ID: 2})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestCanonicalPrimitives(t *testing.T) {
	intKey, err := Canonical(42)
	require.NoError(t, err)
	strKey, err := Canonical("42")
	require.NoError(t, err)
	assert.NotEqual(t, intKey, strKey, "type participates in identity")

	again, err := Canonical(42)
	require.NoError(t, err)
	assert.Equal(t, intKey, again)
}

func TestCanonicalCollections(t *testing.T) {
	a, err := Canonical([]int{1, 2, 3})
	require.NoError(t, err)
	b, err := Canonical([]int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := Canonical([]int{3, 2, 1})
	require.NoError(t, err)
	assert.NotEqual(t, a, c, "order matters in lists")

	m1, err := Canonical(map[string]string{"x": "1", "y": "2"})
	require.NoError(t, err)
	m2, err := Canonical(map[string]string{"y": "2", "x": "1"})
	require.NoError(t, err)
	assert.Equal(t, m1, m2, "map iteration order must not leak into the key")
}

func TestCanonicalNil(t *testing.T) {
	key, err := Canonical(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", key)
}

func TestCanonicalRejectsNonStructural(t *testing.T) {
	_, err := Canonical(func() {})
	assert.Error(t, err)

	_, err = Canonical(untaggedArg{Name: "ada"})
	assert.Error(t, err, "struct without cty tags would collapse all values into one key")
}
