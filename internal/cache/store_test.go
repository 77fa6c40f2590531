package cache_test

import (
	"testing"

	"github.com/greplay/greplay/internal/cache"
)

func TestNewStoreStartsAbsent(t *testing.T) {
	t.Parallel()

	s := cache.NewStore()
	if got := s.State(); got != cache.StateAbsent {
		t.Errorf("State() = %v, want StateAbsent", got)
	}
}

func TestBeginFillRejectsSingleLoop(t *testing.T) {
	t.Parallel()

	s := cache.NewStore()
	if ok := s.BeginFill(1); ok {
		t.Error("BeginFill(1) = true, want false (caching disabled for a single loop)")
	}
	if got := s.State(); got != cache.StateAbsent {
		t.Errorf("State() = %v, want StateAbsent", got)
	}
}

func TestBeginFillAcceptsMultiLoop(t *testing.T) {
	t.Parallel()

	s := cache.NewStore()
	if ok := s.BeginFill(0); !ok {
		t.Error("BeginFill(0) = false, want true")
	}
	if got := s.State(); got != cache.StateFilling {
		t.Errorf("State() = %v, want StateFilling", got)
	}
}

func TestBeginFillRejectsWhenNotAbsent(t *testing.T) {
	t.Parallel()

	s := cache.NewStore()
	s.BeginFill(3)
	if ok := s.BeginFill(3); ok {
		t.Error("second BeginFill() = true, want false (already filling)")
	}
}

func TestAppendAndCommitFillServesEntries(t *testing.T) {
	t.Parallel()

	s := cache.NewStore()
	s.BeginFill(3)

	data := []byte{1, 2, 3}
	s.Append(100, 3, 3, data)
	s.Append(200, 3, 3, data)

	// Mutate the caller's buffer; the store must have copied it.
	data[0] = 0xFF

	s.CommitFill()

	if got := s.State(); got != cache.StateFilled {
		t.Fatalf("State() = %v, want StateFilled", got)
	}
	if got := s.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}

	e0 := s.At(0)
	if e0.CaptureTimeUS != 100 {
		t.Errorf("At(0).CaptureTimeUS = %d, want 100", e0.CaptureTimeUS)
	}
	if e0.Bytes[0] != 1 {
		t.Errorf("At(0).Bytes[0] = %d, want 1 (store must not alias caller buffer)", e0.Bytes[0])
	}

	e1 := s.At(1)
	if e1.CaptureTimeUS != 200 {
		t.Errorf("At(1).CaptureTimeUS = %d, want 200", e1.CaptureTimeUS)
	}
}

func TestCommitFillNoopWhenNotFilling(t *testing.T) {
	t.Parallel()

	s := cache.NewStore()
	s.CommitFill()
	if got := s.State(); got != cache.StateAbsent {
		t.Errorf("State() = %v, want StateAbsent (CommitFill without BeginFill is a no-op)", got)
	}
}

func TestAbandonResetsToAbsent(t *testing.T) {
	t.Parallel()

	s := cache.NewStore()
	s.BeginFill(3)
	s.Append(1, 1, 1, []byte{0})
	s.Abandon()

	if got := s.State(); got != cache.StateAbsent {
		t.Errorf("State() = %v, want StateAbsent", got)
	}
	if got := s.Len(); got != 0 {
		t.Errorf("Len() = %d, want 0 after Abandon", got)
	}
}
