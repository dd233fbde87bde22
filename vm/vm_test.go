package vm

import (
	"testing"
)

func TestReserveCommitRelease(t *testing.T) {
	size := PageSize() * 4
	base, ok := ReserveCommitSegment(size)
	if !ok {
		t.Fatalf("expected reservation to succeed")
	}
	if base == 0 {
		t.Errorf("expected non-zero base")
	}
	ReleaseSegment(base, size)
}

func TestReserveCommitDecommit(t *testing.T) {
	size := PageSize() * 8
	base, ok := ReserveSegment(size, 0)
	if !ok {
		t.Fatalf("expected reservation to succeed")
	}
	if !CommitPage(base, PageSize()) {
		t.Errorf("expected commit to succeed")
	}
	if !DecommitPage(base, PageSize()) {
		t.Errorf("expected decommit to succeed")
	}
	ReleaseSegment(base, size)
}

func TestPageSize(t *testing.T) {
	if PageSize() <= 0 {
		t.Errorf("expected a positive page size")
	}
}

func TestHostMemory(t *testing.T) {
	total, _, _ := HostMemory()
	if total == 0 {
		t.Logf("gosigar returned no host memory info on this platform")
	}
}
