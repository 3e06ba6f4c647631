package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnKey_CanonicalizesLoopbackHostname(t *testing.T) {
	byIP := NewConnKey("127.0.0.1", 9000)
	byName := NewConnKey("localhost", 9000)
	assert.Equal(t, byIP.String(), byName.String())
}

func TestConnKey_DistinctPortsAreDistinctKeys(t *testing.T) {
	a := NewConnKey("127.0.0.1", 9000)
	b := NewConnKey("127.0.0.1", 9001)
	assert.NotEqual(t, a.String(), b.String())
}
