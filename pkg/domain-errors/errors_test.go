package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	t.Run("coded error returns its code", func(t *testing.T) {
		err := New(CodeRecipientDenylisted, "recipient is denylisted")
		require.Equal(t, CodeRecipientDenylisted, CodeOf(err))
	})

	t.Run("uncoded error defaults to internal", func(t *testing.T) {
		require.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	})

	t.Run("wrapped chain preserves outermost code", func(t *testing.T) {
		inner := New(CodeNotFound, "vault missing")
		outer := Wrap(inner, CodeInternal, "load vault")
		require.Equal(t, CodeInternal, CodeOf(outer))
		require.ErrorIs(t, outer, inner)
	})
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("handler: %w", New(CodeInsufficientBalance, "balance too low"))
	require.True(t, HasCode(err, CodeInsufficientBalance))
	require.False(t, HasCode(err, CodeUnauthorized))
	require.False(t, HasCode(nil, CodeUnauthorized))
}

func TestWrapNil(t *testing.T) {
	require.NoError(t, Wrap(nil, CodeInternal, "ignored"))
}
