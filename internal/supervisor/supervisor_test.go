package supervisor

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDiskBudgetBlocksUntilReleased(t *testing.T) {
	b := newDiskBudget(10)
	ctx := context.Background()

	rel1, err := b.reserve(ctx, 7)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		rel2, err := b.reserve(ctx, 5)
		require.NoError(t, err)
		rel2()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second reservation should not succeed while budget is exhausted")
	case <-time.After(50 * time.Millisecond):
	}

	rel1()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second reservation should proceed once budget is released")
	}
}

func TestDiskBudgetUnboundedNeverBlocks(t *testing.T) {
	b := newDiskBudget(-1)
	rel, err := b.reserve(context.Background(), 1<<40)
	require.NoError(t, err)
	rel()
}

func TestDiskBudgetCancelledContext(t *testing.T) {
	b := newDiskBudget(1)
	rel, err := b.reserve(context.Background(), 1)
	require.NoError(t, err)
	defer rel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.reserve(ctx, 1)
	require.Error(t, err)
}

func TestSpeedLimiterThrottles(t *testing.T) {
	l := NewSpeedLimiter(100) // 100 bytes/sec
	start := timeNow()
	require.NoError(t, l.Acquire(context.Background(), 100))
	require.NoError(t, l.Acquire(context.Background(), 50))
	elapsed := timeNow().Sub(start)
	require.GreaterOrEqual(t, elapsed, 400*time.Millisecond)
}

func TestSpeedLimiterUnlimitedNeverWaits(t *testing.T) {
	l := NewSpeedLimiter(0)
	require.NoError(t, l.Acquire(context.Background(), 1<<30))
}

func TestSpeedLimiterActiveCounter(t *testing.T) {
	l := NewSpeedLimiter(0)
	require.Equal(t, 1, l.IncrementActive())
	require.Equal(t, 2, l.IncrementActive())
	require.Equal(t, 1, l.DecrementActive())
	require.Equal(t, 1, l.Active())
}

func TestSupervisorThrottledCopyMovesAllBytes(t *testing.T) {
	sup, err := New(Limits{CPUConcurrency: 1, IOConcurrency: 1, LightConcurrency: 1, DiskBudgetBytes: -1, ReservedFDs: 1})
	require.NoError(t, err)

	payload := []byte("hello throttled world")
	src := bytes.NewReader(payload)
	var dst bytes.Buffer
	n, err := sup.ThrottledCopy(context.Background(), &dst, src)
	require.NoError(t, err)
	require.EqualValues(t, len(payload), n)
	require.Equal(t, "hello throttled world", dst.String())
}

func TestProgressTracksCompletion(t *testing.T) {
	p := NewProgress()
	p.StartPhase("from-archive", 3)
	p.MarkDone("from-archive", 0)
	p.MarkDone("from-archive", 2)
	done, total := p.PhaseProgress("from-archive")
	require.Equal(t, uint32(2), done)
	require.Equal(t, uint32(3), total)
}
