package repository

import (
	"testing"

	"coursehub-backend/internal/store"
	appErrors "coursehub-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveLimit(t *testing.T) {
	assert.Equal(t, DefaultPageSize, EffectiveLimit(0))
	assert.Equal(t, DefaultPageSize, EffectiveLimit(-5))
	assert.Equal(t, 50, EffectiveLimit(50))
	assert.Equal(t, MaxPageSize, EffectiveLimit(MaxPageSize))
	assert.Equal(t, DefaultPageSize, EffectiveLimit(999), "oversized requests fall back to the default")
}

func TestSetDefaultPageSize(t *testing.T) {
	t.Cleanup(func() { SetDefaultPageSize(DefaultPageSize) })

	SetDefaultPageSize(35)
	assert.Equal(t, 35, EffectiveLimit(0), "reloaded default applies to the next call")
	assert.Equal(t, 50, EffectiveLimit(50), "explicit limits are unaffected")

	SetDefaultPageSize(0)
	assert.Equal(t, 35, EffectiveLimit(0), "out-of-range values are ignored")
	SetDefaultPageSize(MaxPageSize + 1)
	assert.Equal(t, 35, EffectiveLimit(0))
}

func TestTokenRoundTrip(t *testing.T) {
	key := &store.Key{Partition: "COURSE_S2", Row: "c42"}
	token := EncodeToken(key)
	require.NotEmpty(t, token)

	decoded, err := DecodeToken(token)
	require.NoError(t, err)
	assert.Equal(t, key, decoded)
}

func TestTokenEdges(t *testing.T) {
	t.Run("nil key encodes to empty", func(t *testing.T) {
		assert.Empty(t, EncodeToken(nil))
	})

	t.Run("empty token decodes to nil", func(t *testing.T) {
		decoded, err := DecodeToken("")
		require.NoError(t, err)
		assert.Nil(t, decoded)
	})

	t.Run("malformed token is a validation error", func(t *testing.T) {
		_, err := DecodeToken("not-base64!!!")
		require.Error(t, err)
		assert.True(t, appErrors.IsValidation(err))

		_, err = DecodeToken("aGVsbG8")
		require.Error(t, err)
		assert.True(t, appErrors.IsValidation(err))
	})
}
