package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantStatus int
	}{
		{name: "validation", err: NewValidationError("bad", map[string]any{"room": "required"}), wantCode: "VALIDATION_FAILED", wantStatus: http.StatusBadRequest},
		{name: "not found", err: NewNotFound("ticket"), wantCode: "NOT_FOUND", wantStatus: http.StatusNotFound},
		{name: "unauthorized", err: NewUnauthorized("Authentication required"), wantCode: "UNAUTHORIZED", wantStatus: http.StatusUnauthorized},
		{name: "forbidden", err: NewForbidden("Access denied"), wantCode: "FORBIDDEN", wantStatus: http.StatusForbidden},
		{name: "duplicate", err: NewDuplicate("Username already exists", nil), wantCode: "DUPLICATE_RESOURCE", wantStatus: http.StatusBadRequest},
		{name: "rate limited", err: NewRateLimited("slow down"), wantCode: "RATE_LIMITED", wantStatus: http.StatusTooManyRequests},
		{name: "wrapped domain error", err: fmt.Errorf("handler: %w", NewForbidden("nope")), wantCode: "FORBIDDEN", wantStatus: http.StatusForbidden},
		{name: "plain error", err: errors.New("connection refused"), wantCode: "INTERNAL_ERROR", wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToDomainError(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantStatus, got.HTTPStatus)
		})
	}
}

func TestToDomainErrorNil(t *testing.T) {
	assert.Nil(t, ToDomainError(nil))
}

func TestInternalErrorHidesCause(t *testing.T) {
	cause := errors.New("pq: password authentication failed")
	got := ToDomainError(cause)

	assert.Equal(t, "internal server error", got.Message)
	assert.ErrorIs(t, got, cause)
}

func TestIsCode(t *testing.T) {
	assert.True(t, IsCode(NewNotFound("ticket"), "NOT_FOUND"))
	assert.False(t, IsCode(NewNotFound("ticket"), "FORBIDDEN"))
	assert.False(t, IsCode(errors.New("x"), "NOT_FOUND"))
}
