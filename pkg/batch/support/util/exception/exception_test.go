package exception_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/surfin-engine/pkg/batch/support/util/exception"
)

// Custom error type for testing reflection and type matching
type CustomError struct {
	Msg string
}

func (e *CustomError) Error() string {
	return fmt.Sprintf("CustomError: %s", e.Msg)
}

func TestNewBatchError(t *testing.T) {
	originalErr := errors.New("db connection refused")
	be := exception.NewBatchError("db", "failed to connect", originalErr, false, true) // S=false, R=true

	assert.Equal(t, "db", be.Module)
	assert.Equal(t, "failed to connect", be.Message)
	assert.Equal(t, originalErr, be.Unwrap())
	assert.True(t, be.IsRetryable())
	assert.False(t, be.IsSkippable())
	assert.False(t, be.IsFatal())
	assert.Contains(t, be.Error(), "[db] failed to connect: db connection refused")
	assert.NotEmpty(t, be.StackTrace)
}

func TestNewBatchErrorf(t *testing.T) {
	be1 := exception.NewBatchErrorf("reader", "item %d not found", 10)
	assert.False(t, be1.IsRetryable())
	assert.False(t, be1.IsSkippable())
	assert.Nil(t, be1.Unwrap())
	assert.Contains(t, be1.Error(), "[reader] item 10 not found")

	// A single trailing bool is isRetryable.
	be2 := exception.NewBatchErrorf("net", "timeout occurred", true)
	assert.True(t, be2.IsRetryable())
	assert.False(t, be2.IsSkippable())

	be3 := exception.NewBatchErrorf("item", "data error in item %d", 5, true, false) // S=true, R=false
	assert.False(t, be3.IsRetryable())
	assert.True(t, be3.IsSkippable())
	assert.Contains(t, be3.Error(), "data error in item 5")

	original := errors.New("data format error")
	be4 := exception.NewBatchErrorf("proc", "format error", true, true, original)
	assert.True(t, be4.IsRetryable())
	assert.True(t, be4.IsSkippable())
	assert.Equal(t, original, be4.Unwrap())
}

func TestOptimisticLockingFailure(t *testing.T) {
	be := exception.NewOptimisticLockingFailureException("repo", "version mismatch", nil)

	assert.False(t, be.IsRetryable())
	assert.False(t, be.IsSkippable())
	assert.True(t, exception.IsOptimisticLockingFailure(be))
	assert.True(t, exception.IsOptimisticLockingFailure(fmt.Errorf("outer: %w", be)))
	assert.Contains(t, be.Error(), "version mismatch")

	withCause := exception.NewOptimisticLockingFailureException("repo", "conflict", errors.New("0 rows"))
	assert.True(t, errors.Is(withCause, exception.ErrOptimisticLockingFailure))
	assert.Contains(t, withCause.Error(), "0 rows")
}

func TestIsTemporaryAndIsFatal(t *testing.T) {
	retryableErr := exception.NewBatchError("net", "timeout", errors.New("timeout"), false, true)
	assert.True(t, exception.IsTemporary(retryableErr))
	assert.False(t, exception.IsFatal(retryableErr))

	plainBatchErr := exception.NewBatchError("data", "invalid format", nil, false, false)
	assert.False(t, exception.IsTemporary(plainBatchErr))
	assert.False(t, exception.IsFatal(plainBatchErr))

	fatalErr := exception.NewFatalError("writer", "disk corrupted", nil)
	assert.True(t, exception.IsFatal(fatalErr))
	assert.True(t, exception.IsFatal(fmt.Errorf("wrapped: %w", fatalErr)))

	resourceErr := exception.NewTransientResourceError("reader", "file vanished", nil)
	assert.True(t, exception.IsFatal(resourceErr))

	assert.True(t, exception.IsTemporary(errors.New("connection timeout")))
	assert.False(t, exception.IsTemporary(errors.New("permission denied")))
	assert.False(t, exception.IsFatal(errors.New("permission denied")))
}

func TestCategory(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		expected error
		typeName string
	}{
		{"parse", exception.NewParseError("reader", "bad line", nil), exception.ErrParse, exception.ParseErrorName},
		{"unexpected input", exception.NewUnexpectedInputError("reader", "odd", errors.New("x")), exception.ErrUnexpectedInput, exception.UnexpectedInputErrorName},
		{"resource", exception.NewTransientResourceError("reader", "gone", nil), exception.ErrTransientResource, exception.TransientResourceErrorName},
		{"wrapped parse", fmt.Errorf("line 3: %w", exception.ErrParse), exception.ErrParse, exception.ParseErrorName},
		{"plain", errors.New("boom"), exception.ErrGeneric, exception.GenericErrorName},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, exception.Category(tc.err))
			assert.Equal(t, tc.typeName, exception.CategoryName(tc.err))
			assert.True(t, exception.IsErrorOfType(tc.err, tc.typeName) || tc.expected == exception.ErrGeneric)
		})
	}
	assert.Nil(t, exception.Category(nil))
}

func TestIsErrorOfType(t *testing.T) {
	exception.RegisterErrorType("CustomErrorType", &CustomError{})
	assert.True(t, exception.IsErrorTypeRegistered("CustomErrorType"))
	assert.Contains(t, exception.RegisteredErrorTypes(), "CustomErrorType")

	olfe := exception.NewOptimisticLockingFailureException("repo", "update failed", nil)
	assert.True(t, exception.IsErrorOfType(olfe, exception.OptimisticLockingFailureException))

	customErr := &CustomError{Msg: "test"}
	wrappedErr := exception.NewBatchError("proc", "custom failure", customErr, false, false)
	assert.True(t, exception.IsErrorOfType(wrappedErr, "*exception_test.CustomError"))
	assert.True(t, exception.IsErrorOfType(wrappedErr, "custom failure"))
	assert.True(t, exception.IsErrorOfType(wrappedErr, "CustomError: test"))

	deeplyWrapped := fmt.Errorf("level 2: %w", wrappedErr)
	assert.True(t, exception.IsErrorOfType(deeplyWrapped, "*exception_test.CustomError"))
	assert.False(t, exception.IsErrorOfType(deeplyWrapped, exception.OptimisticLockingFailureException))
	assert.False(t, exception.IsErrorOfType(deeplyWrapped, "NonExistentError"))

	assert.False(t, exception.IsErrorOfType(nil, "any"))
}

func TestBatchErrorIs(t *testing.T) {
	sentinel := exception.NewBatchError("repository", "already running", nil, false, false)
	err := fmt.Errorf("launch: %w", exception.NewBatchError("repository", "already running", errors.New("cause"), false, false))
	assert.True(t, errors.Is(err, sentinel))
	assert.False(t, errors.Is(err, exception.NewBatchError("repository", "other", nil, false, false)))
	assert.Equal(t, "already running", exception.ExtractErrorMessage(sentinel))
	assert.Equal(t, "plain", exception.ExtractErrorMessage(errors.New("plain")))
}
