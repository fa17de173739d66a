package supervisor

import (
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// Progress tracks per-directive completion across the whole run using a
// roaring bitmap keyed by a directive's position in its phase's directive
// slice, chosen over a plain counter because it also backs the
// re-run-reaches-the-same-terminal-state check (§7/§8): a completed-set
// snapshot taken mid-run can be diffed against one taken after a second
// run of the same manifest to confirm both converge on the same directives.
type Progress struct {
	mu        sync.Mutex
	completed map[string]*roaring.Bitmap
	totals    map[string]uint32
}

func NewProgress() *Progress {
	return &Progress{
		completed: make(map[string]*roaring.Bitmap),
		totals:    make(map[string]uint32),
	}
}

// StartPhase declares a phase's directive count before work begins.
func (p *Progress) StartPhase(phase string, total uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.totals[phase] = total
	p.completed[phase] = roaring.New()
}

// MarkDone records directive index i of phase as finished.
func (p *Progress) MarkDone(phase string, i uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	bm, ok := p.completed[phase]
	if !ok {
		bm = roaring.New()
		p.completed[phase] = bm
	}
	bm.Add(i)
}

// PhaseProgress returns (done, total) for one phase.
func (p *Progress) PhaseProgress(phase string) (done, total uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	bm := p.completed[phase]
	if bm == nil {
		return 0, p.totals[phase]
	}
	return uint32(bm.GetCardinality()), p.totals[phase]
}

// Snapshot returns a phase's completed-index set, for the re-run
// convergence check.
func (p *Progress) Snapshot(phase string) *roaring.Bitmap {
	p.mu.Lock()
	defer p.mu.Unlock()
	bm := p.completed[phase]
	if bm == nil {
		return roaring.New()
	}
	return bm.Clone()
}
