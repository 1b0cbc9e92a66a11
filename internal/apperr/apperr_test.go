package apperr

import (
	"errors"
	"fmt"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestKindOfWrapped(t *testing.T) {
	base := errors.New("boom")
	err := fmt.Errorf("checkout: %w", Wrap(KindConflict, base, "coupon already used"))

	require.Equal(t, KindConflict, KindOf(err))
	require.True(t, errors.Is(err, base))
	require.Equal(t, "coupon already used", Message(err))
}

func TestMessageHidesIntegrityDetail(t *testing.T) {
	err := Integrity("product %s has no seller", "p-1")
	require.Equal(t, "internal error", Message(err))
	require.Contains(t, err.Error(), "p-1")
}

func TestKindOfPlainError(t *testing.T) {
	require.Equal(t, KindUnknown, KindOf(errors.New("x")))
	require.Equal(t, "internal error", Message(errors.New("x")))
}
