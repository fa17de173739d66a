// Package supervisor implements the Progress & Budget Supervisor: the
// concurrency, open-file, and disk-space permits every other component
// acquires before doing I/O-heavy work, plus run-wide progress tracking.
//
// Concurrency classing and the first-error/cancel pattern are grounded on
// the teacher's internal/SophonAssetDiff.go (a semaphore channel bounding
// concurrent chunk writers); here the semaphore is replaced by
// sourcegraph/conc pools per class (cpu-heavy, io-heavy, light) so callers
// get structured cancellation instead of a bare channel. The open-file
// ceiling is read once via golang.org/x/sys/unix since Go's os package has
// no portable way to learn RLIMIT_NOFILE.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sys/unix"

	"github.com/nettoneko/hoolamike/internal/installerr"
)

// Class distinguishes concurrency pools by the resource a unit of work
// mostly consumes, so a CPU-bound texture transcode and an I/O-bound
// archive extraction don't starve each other behind one shared limit.
type Class int

const (
	ClassCPU Class = iota
	ClassIO
	ClassLight
)

// Limits configures the Supervisor's permit ceilings.
type Limits struct {
	CPUConcurrency   int
	IOConcurrency    int
	LightConcurrency int
	DiskBudgetBytes  int64
	ReservedFDs      int // file descriptors held back from OpenFilePermit for stdio/logging/etc
	SpeedLimitBps    int64 // aggregate byte/sec ceiling across concurrent transfers; 0 is unlimited
}

// DefaultLimits picks concurrency from runtime.NumCPU-sized pools and an
// unbounded disk budget; callers typically override DiskBudgetBytes from a
// --disk-budget flag.
func DefaultLimits(numCPU int) Limits {
	if numCPU < 1 {
		numCPU = 1
	}
	return Limits{
		CPUConcurrency:   numCPU,
		IOConcurrency:    numCPU * 4,
		LightConcurrency: numCPU * 8,
		DiskBudgetBytes:  -1, // unbounded
		ReservedFDs:      16,
	}
}

// Supervisor is the run-wide resource guard. One instance is created per
// install run and shared by every component that does concurrent I/O.
type Supervisor struct {
	RunID uuid.UUID

	cpuPool   *pool.ContextPool
	ioPool    *pool.ContextPool
	lightPool *pool.ContextPool

	fdSem  chan struct{}
	disk   *diskBudget
	speed  *SpeedLimiter
	progress *Progress
}

// New creates a Supervisor with the given limits and a fresh per-run ID
// in RunID.
func New(limits Limits) (*Supervisor, error) {
	maxFDs, err := maxOpenFiles()
	if err != nil {
		return nil, fmt.Errorf("supervisor: reading open-file limit: %w", err)
	}
	available := maxFDs - limits.ReservedFDs
	if available < 1 {
		available = 1
	}

	return &Supervisor{
		RunID:    uuid.New(),
		cpuPool:  pool.New().WithMaxGoroutines(limits.CPUConcurrency).WithContext(context.Background()),
		ioPool:   pool.New().WithMaxGoroutines(limits.IOConcurrency).WithContext(context.Background()),
		lightPool: pool.New().WithMaxGoroutines(limits.LightConcurrency).WithContext(context.Background()),
		fdSem:    make(chan struct{}, available),
		disk:     newDiskBudget(limits.DiskBudgetBytes),
		speed:    NewSpeedLimiter(limits.SpeedLimitBps),
		progress: NewProgress(),
	}, nil
}

// maxOpenFiles reads RLIMIT_NOFILE's current soft limit.
func maxOpenFiles() (int, error) {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return 0, err
	}
	return int(rl.Cur), nil
}

// Go submits fn to run under the given concurrency class, blocking until a
// slot is free or ctx is cancelled. The returned error, if any, satisfies
// installerr.Classifier via installerr.Cancelled when ctx was the cause.
func (s *Supervisor) Go(ctx context.Context, class Class, fn func(context.Context) error) error {
	p := s.poolFor(class)
	errCh := make(chan error, 1)
	p.Go(func(context.Context) error {
		err := fn(ctx)
		errCh <- err
		return err
	})
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return installerr.NewCancelled(ctx.Err())
	}
}

func (s *Supervisor) poolFor(class Class) *pool.ContextPool {
	switch class {
	case ClassCPU:
		return s.cpuPool
	case ClassIO:
		return s.ioPool
	default:
		return s.lightPool
	}
}

// Wait drains every concurrency pool, returning the first error any
// submitted task returned.
func (s *Supervisor) Wait() error {
	var errs []error
	if err := s.cpuPool.Wait(); err != nil {
		errs = append(errs, err)
	}
	if err := s.ioPool.Wait(); err != nil {
		errs = append(errs, err)
	}
	if err := s.lightPool.Wait(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil
	}
	return errs[0]
}

// OpenFilePermit blocks until a file-descriptor slot is available, per §5's
// open-file-descriptor ceiling. The returned release function must be
// called exactly once.
func (s *Supervisor) OpenFilePermit(ctx context.Context) (release func(), err error) {
	select {
	case s.fdSem <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-s.fdSem }) }, nil
	case <-ctx.Done():
		return nil, installerr.NewCancelled(ctx.Err())
	}
}

// Reserve implements archive.DiskBudget and patchbase's equivalent need: it
// blocks until bytes of disk budget are available (0 always succeeds
// immediately), returning a release function that gives the budget back.
func (s *Supervisor) Reserve(ctx context.Context, bytes int64) (func(), error) {
	return s.disk.reserve(ctx, bytes)
}

// Progress returns the run's shared progress tracker.
func (s *Supervisor) Progress() *Progress { return s.progress }

// ThrottledCopy copies src to dst in speed-limited chunks, acquiring the
// run's shared SpeedLimiter before each chunk. Every byte moved between a
// collaborator Downloader/archive extraction and local disk should go
// through this instead of a bare io.Copy so --download-speed-limit applies
// uniformly regardless of which component is doing the copying.
func (s *Supervisor) ThrottledCopy(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	const chunkSize = 256 * 1024
	buf := make([]byte, chunkSize)
	s.speed.IncrementActive()
	defer s.speed.DecrementActive()

	var total int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if err := s.speed.Acquire(ctx, n); err != nil {
				return total, err
			}
			written, werr := dst.Write(buf[:n])
			total += int64(written)
			if werr != nil {
				return total, werr
			}
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}
