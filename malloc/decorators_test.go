package malloc

import (
	"testing"

	"github.com/bnclabs/vmalloc/api"
)

func TestBoundsCheckedRoundTrip(t *testing.T) {
	inner := NewBump(1 << 20)
	if !inner.Init() {
		t.Fatalf("expected inner init to succeed")
	}
	defer inner.Release()

	bc := NewBoundsChecked(inner)
	p := bc.Allocate(40, 8, 0, api.Site{})
	if p == nil {
		t.Fatalf("expected allocation to succeed")
	}
	if sz := bc.GetAllocSize(p); sz != 40 {
		t.Errorf("expected usable size 40, got %v", sz)
	}
	bc.Deallocate(p) // must not trip the guard check
}

func TestTrackedAccumulatesPerSite(t *testing.T) {
	inner := NewBump(1 << 20)
	if !inner.Init() {
		t.Fatalf("expected inner init to succeed")
	}
	defer inner.Release()

	tr := NewTracked(inner)
	site := api.Site{File: "x.go", Line: 1, Func: "f"}

	p1 := tr.Allocate(16, 8, 0, site)
	p2 := tr.Allocate(32, 8, 0, site)
	if p1 == nil || p2 == nil {
		t.Fatalf("expected both allocations to succeed")
	}

	stats := tr.Stats()
	st, ok := stats[site]
	if !ok {
		t.Fatalf("expected a stats entry for %v", site)
	}
	if st.Allocs != 2 {
		t.Errorf("expected 2 allocs, got %v", st.Allocs)
	}
	if st.LiveSize != 48 {
		t.Errorf("expected live size 48, got %v", st.LiveSize)
	}

	tr.Deallocate(p1)
	stats = tr.Stats()
	st = stats[site]
	if st.Frees != 1 {
		t.Errorf("expected 1 free, got %v", st.Frees)
	}
	if st.LiveSize != 32 {
		t.Errorf("expected live size 32 after freeing the first allocation, got %v", st.LiveSize)
	}
}
