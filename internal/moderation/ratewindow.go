package moderation

import (
	"context"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	log "github.com/sirupsen/logrus"
)

// RateWindow counts messages per (chat, user) over a trailing time window.
// Timestamps are pruned lazily on every record and wholesale by the periodic
// sweep, which also drops keys left empty so idle users cost no memory.
type RateWindow struct {
	window        time.Duration
	sweepInterval time.Duration
	entries       *xsync.MapOf[ChatUserKey, *rateEntry]

	runMutex  sync.Mutex
	started   bool
	runCancel context.CancelFunc
	workersWg sync.WaitGroup
}

type rateEntry struct {
	mu sync.Mutex
	// gone marks an entry removed by the sweep; a concurrent Record that
	// loaded it must retry with a fresh entry.
	gone   bool
	stamps []time.Time
}

func NewRateWindow(window, sweepInterval time.Duration) *RateWindow {
	return &RateWindow{
		window:        window,
		sweepInterval: sweepInterval,
		entries:       xsync.NewMapOf[ChatUserKey, *rateEntry](),
	}
}

// Record appends now for the key, prunes everything older than the window
// and returns the resulting count. Atomic per key.
func (w *RateWindow) Record(chatID, userID int64, now time.Time) int {
	key := ChatUserKey{ChatID: chatID, UserID: userID}
	for {
		entry, _ := w.entries.LoadOrCompute(key, func() *rateEntry {
			return &rateEntry{}
		})
		entry.mu.Lock()
		if entry.gone {
			entry.mu.Unlock()
			continue
		}
		entry.stamps = append(entry.stamps, now)
		entry.prune(now.Add(-w.window))
		count := len(entry.stamps)
		entry.mu.Unlock()
		return count
	}
}

// SweepExpired prunes all keys and removes the ones left empty.
func (w *RateWindow) SweepExpired(now time.Time) {
	cutoff := now.Add(-w.window)
	w.entries.Range(func(key ChatUserKey, entry *rateEntry) bool {
		entry.mu.Lock()
		entry.prune(cutoff)
		if len(entry.stamps) == 0 {
			entry.gone = true
			w.entries.Delete(key)
		}
		entry.mu.Unlock()
		return true
	})
}

func (w *RateWindow) Size() int {
	return w.entries.Size()
}

func (e *rateEntry) prune(cutoff time.Time) {
	drop := 0
	for drop < len(e.stamps) && e.stamps[drop].Before(cutoff) {
		drop++
	}
	if drop > 0 {
		e.stamps = append(e.stamps[:0], e.stamps[drop:]...)
	}
}

func (w *RateWindow) Start(ctx context.Context) error {
	w.runMutex.Lock()
	defer w.runMutex.Unlock()
	if w.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.runCancel = cancel

	w.workersWg.Add(1)
	go func() {
		defer w.workersWg.Done()
		ticker := time.NewTicker(w.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case now := <-ticker.C:
				w.SweepExpired(now)
				w.getLogEntry().WithField("tracked_keys", w.Size()).Debug("sweep finished")
			}
		}
	}()

	w.started = true
	return nil
}

func (w *RateWindow) Stop(ctx context.Context) error {
	w.runMutex.Lock()
	if !w.started {
		w.runMutex.Unlock()
		return nil
	}
	w.started = false
	cancel := w.runCancel
	w.runMutex.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.workersWg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (w *RateWindow) getLogEntry() *log.Entry {
	return log.WithField("object", "RateWindow")
}
