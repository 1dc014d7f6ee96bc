package repository

import (
	"errors"
	"testing"

	"github.com/lib/pq"
)

func TestWrapWriteError_UniqueViolation(t *testing.T) {
	err := wrapWriteError("failed to insert user", &pq.Error{Code: "23505", Constraint: "users_email_key"})

	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("errors.Is(err, ErrDuplicate) = false, want true: %v", err)
	}
}

func TestWrapWriteError_OtherError(t *testing.T) {
	cause := &pq.Error{Code: "23503"}
	err := wrapWriteError("failed to insert todo", cause)

	if errors.Is(err, ErrDuplicate) {
		t.Errorf("foreign key violation should not be ErrDuplicate: %v", err)
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		t.Error("wrapped error should keep the driver error")
	}
}
