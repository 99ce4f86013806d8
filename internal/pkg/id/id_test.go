package id

import (
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ParsesAsULID(t *testing.T) {
	_, err := ulid.Parse(New())
	require.NoError(t, err)
}

func TestWithPrefix(t *testing.T) {
	sid := WithPrefix("SM")
	assert.True(t, strings.HasPrefix(sid, "SM"))
	assert.Len(t, sid, 2+26)
	assert.NotEqual(t, sid, WithPrefix("SM"))
}

func TestNew_Increasing(t *testing.T) {
	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		require.Less(t, prev, next)
		prev = next
	}
}
