package report

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nettoneko/hoolamike/internal/installerr"
)

func TestExitCodeClean(t *testing.T) {
	r := New()
	r.RecordSuccess("from-archive")
	require.Equal(t, ExitOK, r.ExitCode())
}

func TestExitCodeRecoverableFailure(t *testing.T) {
	r := New()
	r.RecordSuccess("from-archive")
	r.RecordFailure("from-archive", "foo.esp", installerr.NewChecksumMismatch("foo.esp", "a", "b"))
	require.Equal(t, ExitRecoverable, r.ExitCode())
}

func TestExitCodeFatalFailure(t *testing.T) {
	r := New()
	r.RecordFatal("from-archive", installerr.NewManifestError("ctx", errors.New("bad")))
	require.Equal(t, ExitFatal, r.ExitCode())
}

func TestExitCodeCancelled(t *testing.T) {
	r := New()
	r.RecordFailure("from-archive", "foo.esp", installerr.NewCancelled(errors.New("ctx cancelled")))
	require.Equal(t, ExitCancelled, r.ExitCode())
}

func TestSummaryCountsByKind(t *testing.T) {
	r := New()
	r.RecordSuccess("inline-file")
	r.RecordSuccess("inline-file")
	r.RecordFailure("from-archive", "bar.esp", installerr.NewPatchError("bar.esp", errors.New("x")))
	s := r.Summary()
	require.Contains(t, s, "inline-file: 2 succeeded")
	require.Contains(t, s, "from-archive")
}
