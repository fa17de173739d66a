// Package report implements the install run's outcome summary and the
// process exit-code mapping described in §7: 0 (clean), 1 (recoverable
// failures occurred but the run finished), 2 (a fatal error aborted the
// run), 130 (cancelled).
//
// Grounded on the teacher's own pattern of logging a final per-asset
// completion line (internal/SophonAssetDownload.go's PushLogInfo call at
// the end of WriteToStream) generalized from one line per asset into a
// structured, queryable tally per directive kind and error class.
package report

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nettoneko/hoolamike/internal/installerr"
)

// ExitCode values per §7.
const (
	ExitOK          = 0
	ExitRecoverable = 1
	ExitFatal       = 2
	ExitCancelled   = 130
)

// Failure records one directive's terminal error.
type Failure struct {
	Kind   string
	Target string
	Class  installerr.Class
	Err    error
}

// InstallReport is the run's outcome summary; safe for concurrent use since
// the executor's phase workers record into it from multiple goroutines.
type InstallReport struct {
	mu        sync.Mutex
	successes map[string]int
	failures  []Failure
	fatal     error
}

func New() *InstallReport {
	return &InstallReport{successes: make(map[string]int)}
}

func (r *InstallReport) RecordSuccess(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes[kind]++
}

func (r *InstallReport) RecordFailure(kind, target string, err error) {
	class := installerr.ClassRecoverable
	if c, ok := err.(installerr.Classifier); ok {
		class = c.Class()
	} else if installerr.IsFatal(err) {
		class = installerr.ClassFatal
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, Failure{Kind: kind, Target: target, Class: class, Err: err})
}

// RecordFatal records a whole-phase failure that aborted the run before any
// per-directive dispatch happened (e.g. a Preheat failure).
func (r *InstallReport) RecordFatal(kind string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fatal = err
	r.failures = append(r.failures, Failure{Kind: kind, Class: installerr.ClassFatal, Err: err})
}

// Failures returns a copy of every recorded failure.
func (r *InstallReport) Failures() []Failure {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Failure, len(r.failures))
	copy(out, r.failures)
	return out
}

// ExitCode computes the process exit code per §7's mapping.
func (r *InstallReport) ExitCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.failures {
		if _, ok := f.Err.(*installerr.Cancelled); ok {
			return ExitCancelled
		}
	}
	if r.fatal != nil {
		return ExitFatal
	}
	for _, f := range r.failures {
		if f.Class == installerr.ClassFatal {
			return ExitFatal
		}
	}
	if len(r.failures) > 0 {
		return ExitRecoverable
	}
	return ExitOK
}

// Summary renders a tabulated-by-kind-and-class report for the CLI's final
// output.
func (r *InstallReport) Summary() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sb strings.Builder
	kinds := make([]string, 0, len(r.successes))
	for k := range r.successes {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(&sb, "%s: %d succeeded\n", k, r.successes[k])
	}

	byKindClass := make(map[string]int)
	for _, f := range r.failures {
		byKindClass[fmt.Sprintf("%s/%v", f.Kind, f.Class)]++
	}
	keys := make([]string, 0, len(byKindClass))
	for k := range byKindClass {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s: %d failed\n", k, byKindClass[k])
	}
	return sb.String()
}
