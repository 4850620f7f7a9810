package storage

import (
	"context"
	"path/filepath"
	"testing"

	"quakebot/internal/quake"
	logx "quakebot/pkg/logx"
)

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "quakebot.sqlite")

	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	ev := testEvent("5.0-abc-1700000000000", 1700000000000)
	isNew, err := st.Events().Put(ctx, ev)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !isNew {
		t.Fatalf("first Put reported duplicate")
	}
	if isNew, err = st.Events().Put(ctx, ev); err != nil || isNew {
		t.Fatalf("duplicate Put: isNew=%v err=%v", isNew, err)
	}

	subs := st.Subscribers()
	sub, err := subs.GetOrCreate(ctx, "chat-42")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if sub.MinSeverity != quake.DefaultThreshold {
		t.Fatalf("new subscriber threshold = %v", sub.MinSeverity)
	}
	if err := subs.SetThreshold(ctx, "chat-42", 3); err != nil {
		t.Fatalf("SetThreshold: %v", err)
	}
	if err := subs.BindTarget(ctx, "chat-42", 42, 7); err != nil {
		t.Fatalf("BindTarget: %v", err)
	}
	if err := subs.MarkNotified(ctx, "chat-42", ev.ID); err != nil {
		t.Fatalf("MarkNotified: %v", err)
	}
	if err := subs.MarkNotified(ctx, "chat-42", ev.ID); err != nil {
		t.Fatalf("repeat MarkNotified: %v", err)
	}
	if err := st.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen: everything must come back from disk.
	st, err = Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()

	got, ok, err := st.Events().Get(ctx, ev.ID)
	if err != nil || !ok {
		t.Fatalf("Get after reopen: ok=%v err=%v", ok, err)
	}
	if got.Place != ev.Place || got.Alert != quake.AlertRed || !got.Tsunami {
		t.Fatalf("event lost detail across reopen: %+v", got)
	}
	sub, err = st.Subscribers().GetOrCreate(ctx, "chat-42")
	if err != nil {
		t.Fatalf("GetOrCreate after reopen: %v", err)
	}
	if sub.MinSeverity != quake.ThresholdModerate || sub.ChatID != 42 || sub.ThreadID != 7 {
		t.Fatalf("subscriber lost detail across reopen: %+v", sub)
	}
	notified, err := st.Subscribers().IsNotified(ctx, "chat-42", ev.ID)
	if err != nil || !notified {
		t.Fatalf("IsNotified after reopen: notified=%v err=%v", notified, err)
	}
	n, err := st.Events().Count(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Count after reopen: n=%d err=%v", n, err)
	}
}
