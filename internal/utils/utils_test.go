package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateVariableSymbol(t *testing.T) {
	for i := 0; i < 50; i++ {
		vs, err := GenerateVariableSymbol(10)
		require.NoError(t, err)
		assert.Len(t, vs, 10)
		assert.NotEqual(t, byte('0'), vs[0])
	}

	vs, err := GenerateVariableSymbol(1)
	require.NoError(t, err)
	assert.Len(t, vs, 1)
}

func TestGenerateVariableSymbolRejectsBadLength(t *testing.T) {
	_, err := GenerateVariableSymbol(0)
	assert.Error(t, err)
	_, err = GenerateVariableSymbol(19)
	assert.Error(t, err)
}

func TestResponses(t *testing.T) {
	ok := SuccessResponse("done", 42)
	assert.True(t, ok.Success)
	assert.Equal(t, 42, ok.Data)

	bad := ErrorResponse("failed", "boom")
	assert.False(t, bad.Success)
	assert.Equal(t, "boom", bad.Error)
}
