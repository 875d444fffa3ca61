package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFound(t *testing.T) {
	err := NotFound("invoice", 42)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "invoice 42: not found", err.Error())

	wrapped := fmt.Errorf("failed to record payment: %w", err)
	assert.ErrorIs(t, wrapped, ErrNotFound)
}

func TestExternal(t *testing.T) {
	assert.NoError(t, External("roster", nil))

	err := External("renderer", context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrExternalService)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "renderer: context deadline exceeded", err.Error())

	var ext *ExternalError
	assert.True(t, errors.As(fmt.Errorf("client 7: %w", err), &ext))
	assert.Equal(t, "renderer", ext.Service)
}

func TestInputErrors(t *testing.T) {
	assert.ErrorIs(t, InvalidPeriod("end %s before start %s", "2024-01-01", "2024-01-02"), ErrInvalidPeriod)
	assert.ErrorIs(t, InvalidAmount("payment must be positive, got %s", "0"), ErrInvalidAmount)
	assert.NotErrorIs(t, InvalidAmount("x"), ErrInvalidPeriod)
}
