package moderation

import (
	"context"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// AdminLister is the transport call backing the admin cache.
type AdminLister interface {
	ListAdministrators(ctx context.Context, chatID int64) ([]int64, error)
}

// AdminDirectory caches each chat's administrator set. A chat not yet
// cached is fetched synchronously on first use; concurrent first uses are
// collapsed into one transport call. Fetch failures leave the chat
// uncached and report "not admin" — the cache never fails open to
// privileged. A background refresh replaces every cached set wholesale on
// a fixed interval; staleness up to that interval is accepted.
type AdminDirectory struct {
	transport       AdminLister
	refreshInterval time.Duration

	sf     singleflight.Group
	mu     sync.RWMutex
	admins map[int64]map[int64]struct{}

	runMutex  sync.Mutex
	started   bool
	runCancel context.CancelFunc
	workersWg sync.WaitGroup
}

func NewAdminDirectory(transport AdminLister, refreshInterval time.Duration) *AdminDirectory {
	return &AdminDirectory{
		transport:       transport,
		refreshInterval: refreshInterval,
		admins:          make(map[int64]map[int64]struct{}),
	}
}

func (d *AdminDirectory) IsAdmin(ctx context.Context, chatID, userID int64) bool {
	d.mu.RLock()
	set, cached := d.admins[chatID]
	d.mu.RUnlock()
	if cached {
		_, ok := set[userID]
		return ok
	}

	fetched, err, _ := d.sf.Do(strconv.FormatInt(chatID, 10), func() (interface{}, error) {
		return d.fetch(ctx, chatID)
	})
	if err != nil {
		d.getLogEntry().WithFields(log.Fields{
			"chat_id": chatID,
			"error":   err.Error(),
		}).Warn("failed to fetch administrators, treating sender as non-privileged")
		return false
	}
	_, ok := fetched.(map[int64]struct{})[userID]
	return ok
}

// fetch lists administrators and replaces the chat's cached set as one
// unit. No lock is held while the transport call is in flight.
func (d *AdminDirectory) fetch(ctx context.Context, chatID int64) (map[int64]struct{}, error) {
	ids, err := d.transport.ListAdministrators(ctx, chatID)
	if err != nil {
		return nil, err
	}
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	d.mu.Lock()
	d.admins[chatID] = set
	d.mu.Unlock()
	return set, nil
}

// refreshAll re-fetches every cached chat. A single chat's failure must
// not abort the rest; the stale set stays in place until the next cycle.
func (d *AdminDirectory) refreshAll(ctx context.Context) {
	d.mu.RLock()
	chatIDs := make([]int64, 0, len(d.admins))
	for chatID := range d.admins {
		chatIDs = append(chatIDs, chatID)
	}
	d.mu.RUnlock()

	for _, chatID := range chatIDs {
		if ctx.Err() != nil {
			return
		}
		if _, err := d.fetch(ctx, chatID); err != nil {
			d.getLogEntry().WithFields(log.Fields{
				"chat_id": chatID,
				"error":   err.Error(),
			}).Error("failed to refresh administrators")
		}
	}
}

func (d *AdminDirectory) CachedChats() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.admins)
}

func (d *AdminDirectory) Start(ctx context.Context) error {
	d.runMutex.Lock()
	defer d.runMutex.Unlock()
	if d.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.runCancel = cancel

	d.workersWg.Add(1)
	go func() {
		defer d.workersWg.Done()
		ticker := time.NewTicker(d.refreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				d.refreshAll(runCtx)
			}
		}
	}()

	d.started = true
	return nil
}

func (d *AdminDirectory) Stop(ctx context.Context) error {
	d.runMutex.Lock()
	if !d.started {
		d.runMutex.Unlock()
		return nil
	}
	d.started = false
	cancel := d.runCancel
	d.runMutex.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.workersWg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (d *AdminDirectory) getLogEntry() *log.Entry {
	return log.WithField("object", "AdminDirectory")
}
