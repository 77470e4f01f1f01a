package moderation

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// MuteNotifier is the transport surface the registry needs to lift a mute
// and announce it when the expiry timer fires.
type MuteNotifier interface {
	RestrictUser(ctx context.Context, chatID, userID int64, canSend bool) error
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// MuteRegistry tracks per (chat, user) mute state with a scheduled expiry
// timer per key. At most one live timer exists per key: muting an already
// muted user is reported to the caller and schedules nothing. State
// transitions never depend on notification delivery succeeding.
type MuteRegistry struct {
	notifier MuteNotifier

	mu      sync.Mutex
	entries map[ChatUserKey]*muteEntry

	runMutex   sync.Mutex
	started    bool
	runtimeCtx context.Context
}

type muteEntry struct {
	username string
	timer    *time.Timer
}

func NewMuteRegistry(notifier MuteNotifier) *MuteRegistry {
	return &MuteRegistry{
		notifier:   notifier,
		entries:    make(map[ChatUserKey]*muteEntry),
		runtimeCtx: context.Background(),
	}
}

// Mute transitions the key to muted and schedules a single expiry timer.
// Returns true if the key was already muted, in which case nothing changes.
func (r *MuteRegistry) Mute(chatID, userID int64, username string, duration time.Duration) (already bool) {
	key := ChatUserKey{ChatID: chatID, UserID: userID}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[key]; ok {
		return true
	}
	entry := &muteEntry{username: username}
	entry.timer = time.AfterFunc(duration, func() {
		r.expire(chatID, userID)
	})
	r.entries[key] = entry
	return false
}

func (r *MuteRegistry) IsMuted(chatID, userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[ChatUserKey{ChatID: chatID, UserID: userID}]
	return ok
}

// Unmute cancels the pending expiry and clears the key. Returns false if
// the key was not muted. The caller is responsible for lifting the
// platform restriction.
func (r *MuteRegistry) Unmute(chatID, userID int64) bool {
	return r.remove(chatID, userID) != nil
}

// Clear silently drops mute state for a user observed to have left the
// chat. The expiry timer is canceled; nothing is notified.
func (r *MuteRegistry) Clear(chatID, userID int64) {
	r.remove(chatID, userID)
}

func (r *MuteRegistry) remove(chatID, userID int64) *muteEntry {
	key := ChatUserKey{ChatID: chatID, UserID: userID}
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok {
		return nil
	}
	entry.timer.Stop()
	delete(r.entries, key)
	return entry
}

// expire is the timer body. If the key was cleared before the timer fired
// this is a no-op. Transport failures are logged and do not roll back the
// transition. No state lock is held during transport calls.
func (r *MuteRegistry) expire(chatID, userID int64) {
	entry := r.remove(chatID, userID)
	if entry == nil {
		return
	}

	logEntry := r.getLogEntry().WithFields(log.Fields{
		"chat_id": chatID,
		"user_id": userID,
	})

	ctx := r.runtimeContext()
	if err := r.notifier.RestrictUser(ctx, chatID, userID, true); err != nil {
		logEntry.WithField("error", err.Error()).Error("failed to lift restriction on expiry")
	}
	if err := r.notifier.SendMessage(ctx, chatID, fmt.Sprintf("User @%s is unmuted.", entry.username)); err != nil {
		logEntry.WithField("error", err.Error()).Error("failed to announce unmute")
	}
	logEntry.Debug("mute expired")
}

func (r *MuteRegistry) runtimeContext() context.Context {
	r.runMutex.Lock()
	defer r.runMutex.Unlock()
	return r.runtimeCtx
}

func (r *MuteRegistry) Start(ctx context.Context) error {
	r.runMutex.Lock()
	defer r.runMutex.Unlock()
	if r.started {
		return nil
	}
	r.runtimeCtx = context.WithoutCancel(ctx)
	r.started = true
	return nil
}

// Stop cancels every pending expiry timer. Mute state is in-memory only,
// so dropped timers are consistent with the restart semantics.
func (r *MuteRegistry) Stop(ctx context.Context) error {
	r.runMutex.Lock()
	if !r.started {
		r.runMutex.Unlock()
		return nil
	}
	r.started = false
	r.runMutex.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	for key, entry := range r.entries {
		entry.timer.Stop()
		delete(r.entries, key)
	}
	return nil
}

func (r *MuteRegistry) getLogEntry() *log.Entry {
	return log.WithField("object", "MuteRegistry")
}
