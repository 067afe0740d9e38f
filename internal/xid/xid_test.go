package xid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIsPrefixedAndUnique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := New("mv")
		assert.True(t, strings.HasPrefix(id, "mv-"), id)
		assert.Len(t, id, len("mv-")+32)
		_, dup := seen[id]
		assert.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestNewWithoutPrefix(t *testing.T) {
	assert.Len(t, New(""), 32)
}
