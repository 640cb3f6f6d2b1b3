package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTokenIsPrefixedAndUnique(t *testing.T) {
	a, err := GenerateToken()
	require.NoError(t, err)
	b, err := GenerateToken()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a, TokenPrefix))
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, HashToken(a), HashToken(b))
	assert.Equal(t, HashToken(a), HashToken(a))
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer crm_abc", "crm_abc", true},
		{"bearer   crm_abc ", "crm_abc", true},
		{"Basic crm_abc", "", false},
		{"Bearer abc", "", false},
		{"Bearer crm_", "", false},
		{"crm_abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		token, ok := BearerToken(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.token, token, tt.header)
	}
}
