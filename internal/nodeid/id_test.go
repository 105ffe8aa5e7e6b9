package nodeid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	assert.Equal(t, "counter", New("counter").String())
	assert.Equal(t, "user[9f86d081]", Family("user", "9f86d081").String())
}

func TestEqual(t *testing.T) {
	assert.True(t, New("a").Equal(New("a")))
	assert.False(t, New("a").Equal(New("b")))
	assert.True(t, Family("a", "1").Equal(Family("a", "1")))
	assert.False(t, Family("a", "1").Equal(Family("a", "2")))
	assert.False(t, New("a").Equal(Family("a", "1")))
}

func TestIsFamily(t *testing.T) {
	assert.False(t, New("plain").IsFamily())
	assert.True(t, Family("fam", "key").IsFamily())
}
