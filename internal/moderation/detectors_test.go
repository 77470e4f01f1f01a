package moderation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/modguard/modguard/internal/db"
)

type fakeURLChecker struct {
	malicious map[string]string
	err       error
	checked   []string
}

func (c *fakeURLChecker) CheckURL(ctx context.Context, url string) (bool, string, error) {
	_ = ctx
	c.checked = append(c.checked, url)
	if c.err != nil {
		return false, "", c.err
	}
	detail, bad := c.malicious[url]
	return bad, detail, nil
}

type fakeClassifier struct {
	probability float64
	err         error
}

func (c *fakeClassifier) Classify(ctx context.Context, text string) (bool, float64, error) {
	_ = ctx
	if c.err != nil {
		return false, 0, c.err
	}
	return c.probability > 0.5, c.probability, nil
}

func testMessage(text string) *Message {
	return &Message{
		ChatID:    10,
		UserID:    100,
		Username:  "bob",
		MessageID: 1,
		Text:      text,
		Sent:      time.Now(),
		Policy:    db.DefaultPolicy(10),
	}
}

func TestBannedWordsDetector(t *testing.T) {
	t.Parallel()

	detector := NewBannedWordsDetector(NewWordList("мат1", "оскорбление"))
	ctx := context.Background()

	tests := []struct {
		name string
		text string
		hit  bool
	}{
		{"clean text", "добрый день всем", false},
		{"exact word", "мат1", true},
		{"substring", "это мат1 слово", true},
		{"upper case cyrillic", "ЭТО МАТ1 СЛОВО", true},
		{"mixed case", "ОскорБление тут", true},
		{"empty text", "", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := detector.Check(ctx, testMessage(tt.text))
			if tt.hit && result.Kind != KindVerdict {
				t.Fatalf("expected verdict for %q, got kind %d", tt.text, result.Kind)
			}
			if !tt.hit && result.Kind != KindNoVerdict {
				t.Fatalf("expected no verdict for %q, got kind %d", tt.text, result.Kind)
			}
		})
	}
}

func TestBannedWordsDetectorAppliesToAdmins(t *testing.T) {
	t.Parallel()

	detector := NewBannedWordsDetector(NewWordList("мат1"))
	msg := testMessage("тут мат1")
	msg.Admin = true

	if result := detector.Check(context.Background(), msg); result.Kind != KindVerdict {
		t.Fatalf("admin message with banned word must still be flagged")
	}
}

func TestBannedWordsDetectorDisabled(t *testing.T) {
	t.Parallel()

	detector := NewBannedWordsDetector(NewWordList("мат1"))
	msg := testMessage("тут мат1")
	msg.Policy.BannedWordsEnabled = false

	if result := detector.Check(context.Background(), msg); result.Kind != KindNoVerdict {
		t.Fatalf("disabled filter must not flag")
	}
}

func TestLinkDetectorStrict(t *testing.T) {
	t.Parallel()

	detector := NewLinkDetector(nil)
	ctx := context.Background()

	tests := []struct {
		name string
		text string
		hit  bool
	}{
		{"http link", "смотри http://example.com тут", true},
		{"https link", "https://example.com/path", true},
		{"telegram link", "заходи t.me/somechannel", true},
		{"www link", "www.example.com", true},
		{"no link", "просто текст без ссылок", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			msg := testMessage(tt.text)
			result := detector.Check(ctx, msg)
			if tt.hit && result.Kind != KindVerdict {
				t.Fatalf("expected verdict for %q", tt.text)
			}
			if !tt.hit && result.Kind != KindNoVerdict {
				t.Fatalf("expected no verdict for %q", tt.text)
			}
		})
	}
}

func TestLinkDetectorAdminBypass(t *testing.T) {
	t.Parallel()

	detector := NewLinkDetector(nil)
	msg := testMessage("http://example.com")
	msg.Admin = true

	if result := detector.Check(context.Background(), msg); result.Kind != KindNoVerdict {
		t.Fatalf("admins must bypass the link stage")
	}
}

func TestLinkDetectorAllowMode(t *testing.T) {
	t.Parallel()

	checker := &fakeURLChecker{}
	detector := NewLinkDetector(checker)
	msg := testMessage("http://example.com")
	msg.Policy.LinkFilterEnabled = false
	msg.Policy.VirusTotalEnabled = false

	if result := detector.Check(context.Background(), msg); result.Kind != KindNoVerdict {
		t.Fatalf("allow mode must not flag links")
	}
	if len(checker.checked) != 0 {
		t.Fatalf("allow mode must not consult reputation")
	}
}

func TestLinkDetectorSafeMode(t *testing.T) {
	t.Parallel()

	checker := &fakeURLChecker{malicious: map[string]string{
		"https://evil.example.com": "malicious: 5/90",
	}}
	detector := NewLinkDetector(checker)
	ctx := context.Background()

	msg := testMessage("см. https://ok.example.com и https://evil.example.com")
	msg.Policy.LinkFilterEnabled = false
	msg.Policy.VirusTotalEnabled = true

	result := detector.Check(ctx, msg)
	if result.Kind != KindVerdict {
		t.Fatalf("expected verdict on malicious link, got kind %d", result.Kind)
	}
	if len(checker.checked) != 2 {
		t.Fatalf("expected both urls checked, got %v", checker.checked)
	}

	clean := testMessage("см. https://ok.example.com")
	clean.Policy.LinkFilterEnabled = false
	clean.Policy.VirusTotalEnabled = true
	if result := detector.Check(ctx, clean); result.Kind != KindNoVerdict {
		t.Fatalf("clean link must pass in safe mode")
	}
}

func TestLinkDetectorSafeModeCheckerFailure(t *testing.T) {
	t.Parallel()

	checker := &fakeURLChecker{err: errors.New("rate limited")}
	detector := NewLinkDetector(checker)

	msg := testMessage("https://example.com")
	msg.Policy.LinkFilterEnabled = false
	msg.Policy.VirusTotalEnabled = true

	result := detector.Check(context.Background(), msg)
	if result.Kind != KindError {
		t.Fatalf("checker failure must surface as a stage error, got kind %d", result.Kind)
	}
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want string
	}{
		{"http://example.com", "http://example.com"},
		{"https://example.com/path.", "https://example.com/path"},
		{"www.example.com,", "https://www.example.com"},
		{"t.me/channel!", "https://t.me/channel"},
	}

	for _, tt := range tests {
		if got := normalizeURL(tt.raw); got != tt.want {
			t.Errorf("normalizeURL(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestSpamRateDetectorMutesOnOverflow(t *testing.T) {
	t.Parallel()

	window := NewRateWindow(time.Minute, time.Minute)
	mutes := NewMuteRegistry(&fakeNotifier{})
	detector := NewSpamRateDetector(window, mutes, 5)
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 5; i++ {
		msg := testMessage("сообщение")
		msg.Sent = base.Add(time.Duration(i) * time.Second)
		if result := detector.Check(ctx, msg); result.Kind != KindNoVerdict {
			t.Fatalf("message %d within limit must pass", i+1)
		}
	}

	msg := testMessage("сообщение")
	msg.Sent = base.Add(5 * time.Second)
	result := detector.Check(ctx, msg)
	if result.Kind != KindVerdict {
		t.Fatalf("sixth message must trip the limit, got kind %d", result.Kind)
	}
	if !result.Verdict.Mute {
		t.Fatalf("flood verdict must request a mute")
	}
	if want := 30 * time.Second; result.Verdict.MuteDuration != want {
		t.Fatalf("mute duration %v, want %v", result.Verdict.MuteDuration, want)
	}
}

func TestSpamRateDetectorAdminCountedNotMuted(t *testing.T) {
	t.Parallel()

	window := NewRateWindow(time.Minute, time.Minute)
	mutes := NewMuteRegistry(&fakeNotifier{})
	detector := NewSpamRateDetector(window, mutes, 2)
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 5; i++ {
		msg := testMessage("сообщение")
		msg.Admin = true
		msg.Sent = base.Add(time.Duration(i) * time.Second)
		if result := detector.Check(ctx, msg); result.Kind != KindNoVerdict {
			t.Fatalf("admin must never receive a flood verdict")
		}
	}

	if got := window.Record(10, 100, base.Add(6*time.Second)); got != 6 {
		t.Fatalf("admin messages must still count in the window, got %d", got)
	}
}

func TestSpamRateDetectorAlreadyMutedSkipsVerdict(t *testing.T) {
	t.Parallel()

	window := NewRateWindow(time.Minute, time.Minute)
	mutes := NewMuteRegistry(&fakeNotifier{})
	mutes.Mute(10, 100, "bob", time.Hour)
	detector := NewSpamRateDetector(window, mutes, 1)
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 3; i++ {
		msg := testMessage("сообщение")
		msg.Sent = base.Add(time.Duration(i) * time.Second)
		if result := detector.Check(ctx, msg); result.Kind != KindNoVerdict {
			t.Fatalf("already muted sender must not get a second mute verdict")
		}
	}
}

func TestToxicityDetector(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	tests := []struct {
		name        string
		probability float64
		threshold   float64
		hit         bool
	}{
		{"below threshold", 0.4, 0.6, false},
		{"at threshold", 0.6, 0.6, false},
		{"above threshold", 0.85, 0.6, true},
		{"custom threshold", 0.5, 0.3, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			detector := NewToxicityDetector(&fakeClassifier{probability: tt.probability})
			msg := testMessage("какой-то текст")
			msg.Policy.ToxicityThreshold = tt.threshold

			result := detector.Check(ctx, msg)
			if tt.hit && result.Kind != KindVerdict {
				t.Fatalf("expected verdict at probability %.2f", tt.probability)
			}
			if !tt.hit && result.Kind != KindNoVerdict {
				t.Fatalf("expected no verdict at probability %.2f", tt.probability)
			}
		})
	}
}

func TestToxicityDetectorClassifierFailure(t *testing.T) {
	t.Parallel()

	detector := NewToxicityDetector(&fakeClassifier{err: errors.New("model loading")})
	result := detector.Check(context.Background(), testMessage("текст"))
	if result.Kind != KindError {
		t.Fatalf("classifier failure must surface as a stage error, got kind %d", result.Kind)
	}
}
