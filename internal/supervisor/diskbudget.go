package supervisor

import (
	"context"
	"fmt"
	"sync"

	"github.com/nettoneko/hoolamike/internal/installerr"
)

// diskBudget is a counting reservation over a fixed byte ceiling. A
// negative ceiling means unbounded: reserve always succeeds without
// blocking. Grounded on the teacher's semaphore-channel concurrency limit
// (SophonAssetDiff.go) generalized from a fixed slot count to an
// arbitrary-sized reservation, since disk space is consumed in variable
// amounts rather than one fixed-size unit at a time.
type diskBudget struct {
	mu        sync.Mutex
	cond      *sync.Cond
	ceiling   int64
	reserved  int64
	unbounded bool
}

func newDiskBudget(ceilingBytes int64) *diskBudget {
	b := &diskBudget{ceiling: ceilingBytes, unbounded: ceilingBytes < 0}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *diskBudget) reserve(ctx context.Context, bytes int64) (func(), error) {
	if b.unbounded || bytes <= 0 {
		return func() {}, nil
	}
	if bytes > b.ceiling {
		return nil, installerr.NewBudgetError("disk", true, fmt.Errorf("reservation of %d bytes exceeds the %d-byte budget", bytes, b.ceiling))
	}

	done := make(chan struct{})
	var cancelled bool
	go func() {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			cancelled = true
			b.mu.Unlock()
			b.cond.Broadcast()
		case <-done:
		}
	}()

	b.mu.Lock()
	for !cancelled && b.reserved+bytes > b.ceiling {
		b.cond.Wait()
	}
	if cancelled {
		b.mu.Unlock()
		close(done)
		return nil, installerr.NewCancelled(ctx.Err())
	}
	b.reserved += bytes
	b.mu.Unlock()
	close(done)

	var once sync.Once
	release := func() {
		once.Do(func() {
			b.mu.Lock()
			b.reserved -= bytes
			b.mu.Unlock()
			b.cond.Broadcast()
		})
	}
	return release, nil
}
