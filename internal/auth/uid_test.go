package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUID_shape(t *testing.T) {
	for i := 0; i < 100; i++ {
		uid, err := GenerateUID()
		require.NoError(t, err)
		assert.Len(t, uid, UIDLength)
		assert.True(t, ValidUID(uid), "generated UID %q should validate", uid)
	}
}

func TestValidUID(t *testing.T) {
	assert.True(t, ValidUID("123456721"))  // digit sum 21
	assert.False(t, ValidUID("123456799")) // checksum mismatch
	assert.False(t, ValidUID("12345"))     // too short
	assert.False(t, ValidUID("abcdefg21")) // non-digits
	assert.False(t, ValidUID(""))
}
