package handlers

import (
	"errors"
	"testing"

	api "github.com/OvyFlash/telegram-bot-api"
	pkgerrors "github.com/pkg/errors"

	apperrors "github.com/modguard/modguard/internal/errors"
)

func TestResolveTarget(t *testing.T) {
	t.Parallel()

	target := &api.User{ID: 100, UserName: "bob"}
	msg := &api.Message{ReplyToMessage: &api.Message{From: target}}
	got, err := resolveTarget(msg)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.ID != 100 {
		t.Fatalf("resolved user %d, want 100", got.ID)
	}

	if _, err := resolveTarget(&api.Message{}); !errors.Is(err, apperrors.ErrNoReplyTarget) {
		t.Fatalf("expected ErrNoReplyTarget, got %v", err)
	}
	if _, err := resolveTarget(&api.Message{ReplyToMessage: &api.Message{}}); !errors.Is(err, apperrors.ErrNoReplyTarget) {
		t.Fatalf("expected ErrNoReplyTarget for reply without sender, got %v", err)
	}
}

func TestOnOff(t *testing.T) {
	t.Parallel()

	if onOff(true) != "on" || onOff(false) != "off" {
		t.Fatalf("unexpected onOff rendering")
	}
}

func TestCauseTrimsValidationSuffix(t *testing.T) {
	t.Parallel()

	err := pkgerrors.Wrapf(apperrors.ErrValidation, "mute duration must be a number, got %q", "soon")
	if got, want := cause(err), `mute duration must be a number, got "soon"`; got != want {
		t.Fatalf("cause = %q, want %q", got, want)
	}

	plain := pkgerrors.New("some other failure")
	if got := cause(plain); got != "some other failure" {
		t.Fatalf("cause on unrelated error = %q", got)
	}
}
