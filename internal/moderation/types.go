package moderation

import (
	"context"
	"time"

	"github.com/modguard/modguard/internal/db"
)

// ChatUserKey identifies per-user state within a single chat.
type ChatUserKey struct {
	ChatID int64
	UserID int64
}

// Message is one inbound message event as seen by the detector pipeline.
// Admin and Policy are resolved once by the orchestrator before evaluation.
type Message struct {
	ChatID    int64
	UserID    int64
	Username  string
	MessageID int
	Text      string
	Sent      time.Time
	Admin     bool
	Policy    *db.ChatPolicy
}

type StageResultKind int

const (
	KindNoVerdict StageResultKind = iota
	KindVerdict
	KindError
)

// Verdict is a detector stage's positive conclusion. Every verdict deletes
// the triggering message; Notice and Mute describe the follow-up actions.
type Verdict struct {
	Stage        string
	Reason       string
	Notice       string
	Mute         bool
	MuteDuration time.Duration
}

type StageResult struct {
	Kind    StageResultKind
	Verdict *Verdict
	Err     error
}

func noVerdict() StageResult {
	return StageResult{Kind: KindNoVerdict}
}

func verdict(v *Verdict) StageResult {
	return StageResult{Kind: KindVerdict, Verdict: v}
}

func stageError(err error) StageResult {
	return StageResult{Kind: KindError, Err: err}
}

// Detector is a single content check. Implementations consult the message's
// resolved policy themselves and report no verdict when disabled.
type Detector interface {
	Name() string
	Check(ctx context.Context, msg *Message) StageResult
}
