package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nahidhasan98/icon-sync/internal/reconcile"
	"github.com/nahidhasan98/icon-sync/internal/store"
)

func TestNewSetsStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeInvalidRequest, http.StatusBadRequest},
		{ErrCodeValidationFailed, http.StatusBadRequest},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeRefConflict, http.StatusConflict},
		{ErrCodeBasenameCollision, http.StatusUnprocessableEntity},
		{ErrCodeStoreReadFailed, http.StatusBadGateway},
		{ErrCodeStoreWriteFailed, http.StatusBadGateway},
		{ErrCodeTimeout, http.StatusGatewayTimeout},
		{ErrCodeDatabaseError, http.StatusInternalServerError},
		{ErrorCode("SOMETHING_ELSE"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.code, "msg").StatusCode)
		})
	}
}

func TestWrapUnwraps(t *testing.T) {
	cause := stderrors.New("disk full")
	err := DatabaseError(cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "DATABASE_ERROR: Database operation failed (disk full)", err.Error())
}

func TestFromSync(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{
			name: "collision",
			err:  &reconcile.CollisionError{Target: "icons/x.png", Paths: []string{"a/x.png", "b/x.png"}},
			want: ErrCodeBasenameCollision,
		},
		{
			name: "ref conflict",
			err:  &reconcile.StageError{Op: reconcile.OpUpdateRef, Err: store.ErrRefConflict},
			want: ErrCodeRefConflict,
		},
		{
			name: "read failure",
			err:  &reconcile.StageError{Op: reconcile.OpGetTree, Err: stderrors.New("502")},
			want: ErrCodeStoreReadFailed,
		},
		{
			name: "write failure",
			err:  &reconcile.StageError{Op: reconcile.OpCreateBlob, Path: "a.png", Err: stderrors.New("502")},
			want: ErrCodeStoreWriteFailed,
		},
		{
			name: "timeout",
			err:  &reconcile.StageError{Op: reconcile.OpGetContent, Err: fmt.Errorf("get: %w", context.DeadlineExceeded)},
			want: ErrCodeTimeout,
		},
		{
			name: "already classified",
			err:  fmt.Errorf("outer: %w", InvalidRequest("bad")),
			want: ErrCodeInvalidRequest,
		},
		{
			name: "unknown",
			err:  stderrors.New("boom"),
			want: ErrCodeInternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := FromSync(tt.err)
			assert.Equal(t, tt.want, appErr.Code)
			assert.True(t, stderrors.Is(appErr, tt.err) || stderrors.Is(tt.err, appErr))
		})
	}

	assert.Nil(t, FromSync(nil))
}
