package moderation

import (
	"sync"
)

const DefaultWarningsThreshold = 3

// WarningLedger accumulates warnings per (chat, user). Reaching the
// threshold resets the count and signals the caller to issue a ban.
type WarningLedger struct {
	mu        sync.Mutex
	counts    map[ChatUserKey]int
	threshold int
}

func NewWarningLedger(threshold int) *WarningLedger {
	if threshold <= 0 {
		threshold = DefaultWarningsThreshold
	}
	return &WarningLedger{
		counts:    make(map[ChatUserKey]int),
		threshold: threshold,
	}
}

func (l *WarningLedger) Add(chatID, userID int64) (count int, banned bool) {
	key := ChatUserKey{ChatID: chatID, UserID: userID}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.counts[key]++
	count = l.counts[key]
	if count >= l.threshold {
		delete(l.counts, key)
		return count, true
	}
	return count, false
}

func (l *WarningLedger) Count(chatID, userID int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[ChatUserKey{ChatID: chatID, UserID: userID}]
}

func (l *WarningLedger) Threshold() int {
	return l.threshold
}
