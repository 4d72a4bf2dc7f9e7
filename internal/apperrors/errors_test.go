package apperrors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrecondition(t *testing.T) {
	err := Precondition("bulk email", "recipients required")
	assert.Equal(t, "bulk email: recipients required", err.Error())
	assert.True(t, IsPrecondition(err))
	assert.False(t, IsExternal(err))

	wrapped := fmt.Errorf("outreach: %w", err)
	assert.True(t, IsPrecondition(wrapped))
}

func TestExternal(t *testing.T) {
	assert.Nil(t, External("twilio", "initiate", nil))

	cause := errors.New("connection refused")
	err := External("twilio", "initiate", cause)
	assert.True(t, IsExternal(err))
	assert.False(t, IsTimeout(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "twilio: initiate failed: connection refused", err.Error())

	again := External("outreach", "call", err)
	assert.Same(t, err.(*ExternalError), again.(*ExternalError))
}

func TestExternalTimeout(t *testing.T) {
	err := External("generation", "generate", fmt.Errorf("post: %w", context.DeadlineExceeded))
	assert.True(t, IsTimeout(err))
	assert.Contains(t, err.Error(), "timed out")
}
