package moderation

import (
	"sync"
	"testing"
	"time"
)

func TestRateWindowRecordCountsTrailingWindow(t *testing.T) {
	t.Parallel()

	window := NewRateWindow(60*time.Second, time.Minute)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		count := window.Record(10, 20, base.Add(time.Duration(i)*time.Second))
		if count != i+1 {
			t.Fatalf("record %d: got count %d", i, count)
		}
	}

	// The first record is now 61 seconds old and must be pruned.
	count := window.Record(10, 20, base.Add(61*time.Second))
	if count != 5 {
		t.Fatalf("expected pruned count 5, got %d", count)
	}
}

func TestRateWindowRecordPrunesAllExpired(t *testing.T) {
	t.Parallel()

	window := NewRateWindow(60*time.Second, time.Minute)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	window.Record(1, 2, base)
	count := window.Record(1, 2, base.Add(61*time.Second))
	if count != 1 {
		t.Fatalf("expected only the fresh record, got %d", count)
	}
}

func TestRateWindowKeysAreIndependent(t *testing.T) {
	t.Parallel()

	window := NewRateWindow(60*time.Second, time.Minute)
	now := time.Now()

	window.Record(1, 2, now)
	window.Record(1, 2, now)
	count := window.Record(1, 3, now)
	if count != 1 {
		t.Fatalf("expected separate counter per user, got %d", count)
	}
	count = window.Record(2, 2, now)
	if count != 1 {
		t.Fatalf("expected separate counter per chat, got %d", count)
	}
}

func TestRateWindowSweepRemovesEmptyKeys(t *testing.T) {
	t.Parallel()

	window := NewRateWindow(60*time.Second, time.Minute)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	window.Record(1, 2, base)
	window.Record(3, 4, base.Add(50*time.Second))

	window.SweepExpired(base.Add(70 * time.Second))

	if got := window.Size(); got != 1 {
		t.Fatalf("expected one surviving key, got %d", got)
	}

	// A record after the sweep must start a fresh entry, not resurrect a
	// dead one.
	count := window.Record(1, 2, base.Add(71*time.Second))
	if count != 1 {
		t.Fatalf("expected fresh entry after sweep, got %d", count)
	}
}

func TestRateWindowConcurrentRecords(t *testing.T) {
	t.Parallel()

	window := NewRateWindow(time.Hour, time.Minute)
	now := time.Now()

	const (
		workers    = 8
		iterations = 500
	)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				window.Record(7, 7, now)
			}
		}()
	}
	wg.Wait()

	count := window.Record(7, 7, now)
	if count != workers*iterations+1 {
		t.Fatalf("lost increments: got %d want %d", count, workers*iterations+1)
	}
}

func TestRateWindowConcurrentSweepAndRecord(t *testing.T) {
	t.Parallel()

	window := NewRateWindow(time.Millisecond, time.Minute)
	now := time.Now()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			window.Record(1, 1, now.Add(time.Duration(i)*time.Microsecond))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			window.SweepExpired(now.Add(time.Duration(i) * time.Microsecond))
		}
	}()
	wg.Wait()

	// The key must still be usable afterwards.
	if count := window.Record(1, 1, now.Add(time.Hour)); count != 1 {
		t.Fatalf("expected clean entry after churn, got %d", count)
	}
}
