package malloc

import (
	"testing"

	"github.com/bnclabs/vmalloc/api"
)

func TestBumpAllocateAlignment(t *testing.T) {
	b := NewBump(64 * 1024)
	if !b.Init() {
		t.Fatalf("expected bump init to succeed")
	}
	defer b.Release()

	for _, alignment := range []int64{8, 16, 32, 64} {
		p := b.Allocate(24, alignment, 0, api.Site{})
		if p == nil {
			t.Fatalf("expected allocation to succeed for alignment %v", alignment)
		}
		if uintptr(p)%uintptr(alignment) != 0 {
			t.Errorf("pointer %p not aligned to %v", p, alignment)
		}
		if sz := b.GetAllocSize(p); sz != 24 {
			t.Errorf("expected size 24, got %v", sz)
		}
	}
}

func TestBumpOverflow(t *testing.T) {
	b := NewBump(4096)
	if !b.Init() {
		t.Fatalf("expected bump init to succeed")
	}
	defer b.Release()

	if p := b.Allocate(1<<20, 8, 0, api.Site{}); p != nil {
		t.Errorf("expected oversized allocation to fail")
	}
}

func TestBumpReset(t *testing.T) {
	b := NewBump(4096)
	b.Init()
	defer b.Release()

	p1 := b.Allocate(16, 8, 0, api.Site{})
	if p1 == nil {
		t.Fatalf("expected allocation to succeed")
	}
	before := b.GetTotalAllocated()
	if before == 0 {
		t.Errorf("expected non-zero total allocated")
	}
	b.Reset()
	if b.GetTotalAllocated() != 0 {
		t.Errorf("expected reset to zero the cursor")
	}
	p2 := b.Allocate(16, 8, 0, api.Site{})
	if p2 != p1 {
		t.Errorf("expected reset to reuse the same base pointer")
	}
}

func TestBumpCallocateOverflow(t *testing.T) {
	b := NewBump(4096)
	b.Init()
	defer b.Release()

	if p := b.Callocate(1<<40, 1<<40, api.Site{}); p != nil {
		t.Errorf("expected overflowing Callocate to return nil")
	}
}
