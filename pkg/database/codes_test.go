package database

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karaoke-session-system/pkg/apperrors"
)

func TestUniqueCode(t *testing.T) {
	ctx := context.Background()

	t.Run("returns first free code", func(t *testing.T) {
		code, err := UniqueCode(ctx, SessionCodeLength, func(context.Context, string) (bool, error) {
			return false, nil
		})
		require.NoError(t, err)
		assert.Len(t, code, SessionCodeLength)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(codeCharset, r), "unexpected rune %q", r)
		}
	})

	t.Run("retries taken codes", func(t *testing.T) {
		calls := 0
		_, err := UniqueCode(ctx, InvitationCodeLength, func(context.Context, string) (bool, error) {
			calls++
			return calls < 3, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up", func(t *testing.T) {
		_, err := UniqueCode(ctx, SessionCodeLength, func(context.Context, string) (bool, error) {
			return true, nil
		})
		assert.ErrorIs(t, err, apperrors.ErrConflict)
	})

	t.Run("lookup error", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := UniqueCode(ctx, SessionCodeLength, func(context.Context, string) (bool, error) {
			return false, boom
		})
		assert.ErrorIs(t, err, boom)
	})
}

func TestCodeCharsetAvoidsLookalikes(t *testing.T) {
	for _, r := range "01IO" {
		assert.False(t, strings.ContainsRune(codeCharset, r), "charset contains %q", r)
	}
}
