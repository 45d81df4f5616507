package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap(t *testing.T) {
	cause := errors.New("disk full")

	t.Run("nil error stays nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "write"))
	})

	t.Run("message includes cause and unwraps", func(t *testing.T) {
		err := Wrap(cause, CodeInternal, "write mapping")
		assert.Equal(t, "write mapping: disk full", err.Error())
		assert.ErrorIs(t, err, cause)
	})
}

func TestHasCode(t *testing.T) {
	inner := New(CodeInvariantViolation, "address not mapped")
	outer := Wrap(fmt.Errorf("emit row: %w", inner), CodeInternal, "anonymize file")

	assert.True(t, HasCode(outer, CodeInternal))
	assert.True(t, HasCode(outer, CodeInvariantViolation))
	assert.False(t, HasCode(outer, CodeValidation))
	assert.False(t, HasCode(errors.New("plain"), CodeInternal))
	assert.Equal(t, CodeInternal, CodeOf(outer))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}
