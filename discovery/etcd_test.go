package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNodeKey_AndUIDFromKey_RoundTrip(t *testing.T) {
	key := nodeKey(4242)
	uid, ok := uidFromKey(key)
	assert.True(t, ok)
	assert.Equal(t, uint64(4242), uid)
}

func TestUIDFromKey_RejectsForeignPrefix(t *testing.T) {
	_, ok := uidFromKey("/some/other/prefix/4242")
	assert.False(t, ok)
}

func TestUIDFromKey_RejectsNonNumericSuffix(t *testing.T) {
	_, ok := uidFromKey(keyPrefix + "not-a-number")
	assert.False(t, ok)
}
