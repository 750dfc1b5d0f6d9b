package testutil

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	apperrors "budgetbox/internal/errors"
)

// AssertAppError fails unless err unwraps to an *AppError carrying code.
func AssertAppError(t *testing.T, err error, code string) {
	t.Helper()

	var appErr *apperrors.AppError
	switch {
	case err == nil:
		t.Fatalf("want %s, got no error", code)
	case !errors.As(err, &appErr):
		t.Fatalf("want %s, got non-AppError %T: %v", code, err, err)
	case appErr.Code != code:
		t.Errorf("want %s, got %s (%s)", code, appErr.Code, appErr.Message)
	}
}

// AssertNoError stops the test on any error.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertMoney compares by value, so "10" matches 10.00.
func AssertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	if !got.Equal(Money(want)) {
		t.Errorf("want %s, got %s", want, got)
	}
}
