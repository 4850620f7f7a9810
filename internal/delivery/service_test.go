package delivery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	kit "quakebot/internal/transport"
	logx "quakebot/pkg/logx"
)

type fakeAdapter struct {
	mu         sync.Mutex
	textCalls  int
	photoCalls int
	textFails  int // fail this many SendText calls before succeeding
	photoFails int // fail this many SendPhoto calls before succeeding
}

func (a *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (a *fakeAdapter) Stop(ctx context.Context) error                        { return nil }

func (a *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.textCalls++
	if a.textFails > 0 {
		a.textFails--
		return kit.MessageRef{}, errors.New("telegram: 502")
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: a.textCalls}, nil
}

func (a *fakeAdapter) SendPhoto(ctx context.Context, to kit.ChatTarget, path, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.photoCalls++
	if a.photoFails > 0 {
		a.photoFails--
		return kit.MessageRef{}, errors.New("telegram: bad photo")
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: a.photoCalls}, nil
}

func (a *fakeAdapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	return nil
}
func (a *fakeAdapter) AnswerCallback(ctx context.Context, callbackID, text string) error { return nil }

func fastConfig() Config {
	return Config{
		RatePerSec:    1000,
		RetryMax:      2,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 5 * time.Millisecond,
		SendTimeout:   time.Second,
	}
}

func note(text string) kit.Notification {
	return kit.Notification{Target: kit.ChatTarget{ChatID: 42}, Text: text}
}

func TestSendRetriesUntilSuccess(t *testing.T) {
	ad := &fakeAdapter{textFails: 2}
	svc := New(fastConfig(), ad, logx.Nop())

	if err := svc.Send(context.Background(), note("quake alert")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ad.textCalls != 3 {
		t.Fatalf("expected 3 attempts, got %d", ad.textCalls)
	}

	hist := svc.Snapshot()
	if len(hist) != 1 || hist[0].Text != "quake alert" {
		t.Fatalf("unexpected history: %+v", hist)
	}
}

func TestSendExhaustsRetries(t *testing.T) {
	ad := &fakeAdapter{textFails: 10}
	svc := New(fastConfig(), ad, logx.Nop())

	err := svc.Send(context.Background(), note("quake alert"))
	if err == nil {
		t.Fatalf("expected failure after exhausted retries")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Fatalf("error does not carry adapter cause: %v", err)
	}
	if ad.textCalls != 3 {
		t.Fatalf("expected 1+RetryMax attempts, got %d", ad.textCalls)
	}
	if len(svc.Snapshot()) != 0 {
		t.Fatalf("failed send must not enter history")
	}
}

func TestSendPhotoFallsBackToText(t *testing.T) {
	ad := &fakeAdapter{photoFails: 10}
	svc := New(fastConfig(), ad, logx.Nop())

	n := note("quake alert")
	n.ImagePath = "/tmp/map.png"
	if err := svc.Send(context.Background(), n); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ad.photoCalls != 3 {
		t.Fatalf("expected 3 photo attempts, got %d", ad.photoCalls)
	}
	if ad.textCalls != 1 {
		t.Fatalf("expected 1 text fallback, got %d", ad.textCalls)
	}

	hist := svc.Snapshot()
	if len(hist) != 1 || !hist[0].TextOnly {
		t.Fatalf("fallback not recorded as text-only: %+v", hist)
	}
}

func TestSendPhotoNoFallbackWhenTextAlsoFails(t *testing.T) {
	ad := &fakeAdapter{photoFails: 10, textFails: 10}
	svc := New(fastConfig(), ad, logx.Nop())

	n := note("quake alert")
	n.ImagePath = "/tmp/map.png"
	if err := svc.Send(context.Background(), n); err == nil {
		t.Fatalf("expected failure when both photo and text sends fail")
	}
}

func TestSendHonorsCancellation(t *testing.T) {
	ad := &fakeAdapter{}
	svc := New(fastConfig(), ad, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Send(ctx, note("quake alert")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if ad.textCalls != 0 {
		t.Fatalf("canceled send still hit the adapter")
	}
}

func TestSendRejectsEmptyText(t *testing.T) {
	svc := New(fastConfig(), &fakeAdapter{}, logx.Nop())
	if err := svc.Send(context.Background(), note("   ")); err == nil {
		t.Fatalf("expected empty text rejection")
	}
}

func TestRetryDelayBounded(t *testing.T) {
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt <= 10; attempt++ {
		d := retryDelay(cfg, attempt)
		if d < 0 || d > cfg.RetryMaxDelay {
			t.Fatalf("attempt %d: delay %v out of bounds", attempt, d)
		}
	}
}
