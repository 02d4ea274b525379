package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "tracecore/pkg/domain-errors"
)

func TestParseEntityID(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseEntityID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects zero", func(t *testing.T) {
		_, err := ParseEntityID("0")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects non-numeric", func(t *testing.T) {
		_, err := ParseEntityID("abc")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("accepts padded numbers", func(t *testing.T) {
		id, err := ParseEntityID(" 42 ")
		require.NoError(t, err)
		assert.Equal(t, EntityID(42), id)
		assert.Equal(t, "42", id.String())
	})
}

func TestParseActorID(t *testing.T) {
	_, err := ParseActorID("   ")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = ParseActorID(strings.Repeat("a", 257))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	actor, err := ParseActorID(" 0xabc ")
	require.NoError(t, err)
	assert.Equal(t, ActorID("0xabc"), actor)
}

func TestParseRuleID(t *testing.T) {
	_, err := ParseRuleID("")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	rule, err := ParseRuleID("R1")
	require.NoError(t, err)
	assert.Equal(t, RuleID("R1"), rule)
}
