package moderation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type stubDetector struct {
	name   string
	result StageResult
	calls  int
}

func (d *stubDetector) Name() string { return d.name }

func (d *stubDetector) Check(ctx context.Context, msg *Message) StageResult {
	_ = ctx
	_ = msg
	d.calls++
	return d.result
}

type panicDetector struct{ name string }

func (d *panicDetector) Name() string { return d.name }

func (d *panicDetector) Check(ctx context.Context, msg *Message) StageResult {
	panic("nil map write")
}

func TestPipelineStopsAtFirstVerdict(t *testing.T) {
	t.Parallel()

	first := &stubDetector{name: "first", result: noVerdict()}
	second := &stubDetector{name: "second", result: verdict(&Verdict{Reason: "bad"})}
	third := &stubDetector{name: "third", result: verdict(&Verdict{Reason: "never seen"})}
	pipeline := NewPipeline(first, second, third)

	v := pipeline.Evaluate(context.Background(), testMessage("текст"))
	if v == nil {
		t.Fatalf("expected a verdict")
	}
	if v.Stage != "second" {
		t.Fatalf("verdict stage %q, want %q", v.Stage, "second")
	}
	if third.calls != 0 {
		t.Fatalf("stage after the verdict must not run")
	}
}

func TestPipelineCleanMessage(t *testing.T) {
	t.Parallel()

	first := &stubDetector{name: "first", result: noVerdict()}
	second := &stubDetector{name: "second", result: noVerdict()}
	pipeline := NewPipeline(first, second)

	if v := pipeline.Evaluate(context.Background(), testMessage("текст")); v != nil {
		t.Fatalf("clean message produced verdict %+v", v)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Fatalf("every stage must run on a clean message")
	}
}

func TestPipelineContinuesPastStageError(t *testing.T) {
	t.Parallel()

	broken := &stubDetector{name: "broken", result: stageError(errors.New("collaborator down"))}
	last := &stubDetector{name: "last", result: verdict(&Verdict{Reason: "bad"})}
	pipeline := NewPipeline(broken, last)

	v := pipeline.Evaluate(context.Background(), testMessage("текст"))
	if v == nil || v.Stage != "last" {
		t.Fatalf("stage error must not abort evaluation, got %+v", v)
	}
}

func TestPipelineRecoversStagePanic(t *testing.T) {
	t.Parallel()

	last := &stubDetector{name: "last", result: noVerdict()}
	pipeline := NewPipeline(&panicDetector{name: "panicky"}, last)

	if v := pipeline.Evaluate(context.Background(), testMessage("текст")); v != nil {
		t.Fatalf("panicking stage produced verdict %+v", v)
	}
	if last.calls != 1 {
		t.Fatalf("stage after the panic must still run")
	}
}

type fakeTransport struct {
	mu          sync.Mutex
	deleted     []int
	sent        []string
	restricted  []bool
	banned      []int64
	deleteErr   error
	restrictErr error
	banErr      error
}

func (tr *fakeTransport) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	_ = ctx
	_ = chatID
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.deleteErr != nil {
		return tr.deleteErr
	}
	tr.deleted = append(tr.deleted, messageID)
	return nil
}

func (tr *fakeTransport) SendMessage(ctx context.Context, chatID int64, text string) error {
	_ = ctx
	_ = chatID
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.sent = append(tr.sent, text)
	return nil
}

func (tr *fakeTransport) RestrictUser(ctx context.Context, chatID, userID int64, canSend bool) error {
	_ = ctx
	_ = chatID
	_ = userID
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.restrictErr != nil {
		return tr.restrictErr
	}
	tr.restricted = append(tr.restricted, canSend)
	return nil
}

func (tr *fakeTransport) BanUser(ctx context.Context, chatID, userID int64) error {
	_ = ctx
	_ = chatID
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.banErr != nil {
		return tr.banErr
	}
	tr.banned = append(tr.banned, userID)
	return nil
}

func (tr *fakeTransport) counts() (deleted, sent, restricted, banned int) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.deleted), len(tr.sent), len(tr.restricted), len(tr.banned)
}

// Six quick messages trip the flood limit: the sixth is removed, the
// sender is muted for the configured duration and is back to normal
// evaluation once the mute expires.
func TestFloodEndToEnd(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	window := NewRateWindow(time.Minute, time.Minute)
	mutes := NewMuteRegistry(transport)
	defer func() { _ = mutes.Stop(context.Background()) }()
	warnings := NewWarningLedger(DefaultWarningsThreshold)
	actuator := NewActuator(transport, mutes, warnings)
	pipeline := NewPipeline(
		NewBannedWordsDetector(NewWordList("мат1")),
		NewLinkDetector(nil),
		NewSpamRateDetector(window, mutes, 5),
	)

	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		msg := testMessage("привет")
		msg.MessageID = i + 1
		msg.Sent = base.Add(time.Duration(i) * time.Second)
		msg.Policy.MuteDurationSeconds = 1
		if v := pipeline.Evaluate(ctx, msg); v != nil {
			t.Fatalf("message %d within limit flagged: %+v", i+1, v)
		}
	}

	sixth := testMessage("привет")
	sixth.MessageID = 6
	sixth.Sent = base.Add(5 * time.Second)
	sixth.Policy.MuteDurationSeconds = 1

	v := pipeline.Evaluate(ctx, sixth)
	if v == nil || v.Stage != StageSpamRate {
		t.Fatalf("sixth message must trip the flood stage, got %+v", v)
	}
	actuator.Apply(ctx, sixth, v)

	if !mutes.IsMuted(10, 100) {
		t.Fatalf("sender must be muted after the flood verdict")
	}
	deleted, sent, restricted, _ := transport.counts()
	if deleted != 1 || sent != 1 || restricted != 1 {
		t.Fatalf("enforcement calls: deleted=%d sent=%d restricted=%d", deleted, sent, restricted)
	}

	waitFor(t, 3*time.Second, func() bool {
		return !mutes.IsMuted(10, 100)
	})

	fresh := testMessage("привет снова")
	fresh.Sent = base.Add(2 * time.Minute)
	if v := pipeline.Evaluate(ctx, fresh); v != nil {
		t.Fatalf("fresh message after expiry flagged: %+v", v)
	}
}
