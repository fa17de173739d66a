package installerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestManifestErrorIsFatalAndUnwraps(t *testing.T) {
	cause := errors.New("bad field")
	err := NewManifestError("directive 3", cause)
	require.Equal(t, ClassFatal, err.Class())
	require.ErrorIs(t, err, cause)
	require.True(t, IsFatal(err))
}

func TestArchiveMissErrorIsRecoverable(t *testing.T) {
	err := NewArchiveMissError([]string{"a", "b.txt"}, errors.New("not found"))
	require.Equal(t, ClassRecoverable, err.Class())
	require.False(t, IsFatal(err))
}

func TestChecksumMismatchHasNoCauseButIsRecoverable(t *testing.T) {
	err := NewChecksumMismatch("out.esp", "abc", "def")
	require.Contains(t, err.Error(), "out.esp")
	require.Equal(t, ClassRecoverable, err.Class())
}

func TestIoErrorNoSpaceIsFatalOthersAreNot(t *testing.T) {
	fatal := NewIoError("write", "no-space", errors.New("disk full"))
	require.Equal(t, ClassFatal, fatal.Class())

	recoverable := NewIoError("write", "permission-denied", errors.New("eperm"))
	require.Equal(t, ClassRecoverable, recoverable.Class())
}

func TestBudgetErrorFatalityIsExplicit(t *testing.T) {
	require.Equal(t, ClassFatal, NewBudgetError("disk", true, errors.New("x")).Class())
	require.Equal(t, ClassRecoverable, NewBudgetError("disk", false, errors.New("x")).Class())
}

func TestCancelledIsAlwaysFatal(t *testing.T) {
	require.Equal(t, ClassFatal, NewCancelled(errors.New("ctx done")).Class())
}

func TestIsFatalWalksWrapChainThroughPlainWrapping(t *testing.T) {
	inner := NewIoError("sync", "no-space", errors.New("enospc"))
	wrapped := fmt.Errorf("flushing file: %w", inner)
	require.True(t, IsFatal(wrapped))
}

func TestIsFatalReturnsFalseForPlainError(t *testing.T) {
	require.False(t, IsFatal(errors.New("plain")))
}

func TestIsFatalReturnsFalseForNil(t *testing.T) {
	require.False(t, IsFatal(nil))
}
