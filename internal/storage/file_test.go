package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"quakebot/internal/quake"
	logx "quakebot/pkg/logx"
)

func testEvent(id string, timeMs int64) quake.Event {
	return quake.Event{
		ID:        id,
		Place:     "10km N of Somewhere",
		Magnitude: 5.0,
		TimeMs:    timeMs,
		LocalTime: "11/14/2023 - 05:13 PM",
		Depth:     "10.16",
		Alert:     quake.AlertRed,
		Tsunami:   true,
	}
}

func openTestStore(t *testing.T, path string) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return st
}

func TestFileStoreFirstRunCreatesSnapshots(t *testing.T) {
	dir := t.TempDir()
	st := openTestStore(t, filepath.Join(dir, "quakebot.db"))
	defer st.Close()

	for _, name := range []string{"quakebot.events.json", "quakebot.subscribers.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("snapshot %s not materialized on first run: %v", name, err)
		}
	}
}

func TestFileEventsPutDeduplicates(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t, filepath.Join(t.TempDir(), "quakebot.db"))
	defer st.Close()

	ev := testEvent("5.0-abc-1700000000000", 1700000000000)
	isNew, err := st.Events().Put(ctx, ev)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !isNew {
		t.Fatalf("first Put reported duplicate")
	}

	isNew, err = st.Events().Put(ctx, ev)
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if isNew {
		t.Fatalf("duplicate Put reported new")
	}

	n, err := st.Events().Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 stored event, got %d", n)
	}
}

func TestFileStoreRestartDurability(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "quakebot.db")

	st := openTestStore(t, path)
	ev := testEvent("5.0-abc-1700000000000", 1700000000000)
	if _, err := st.Events().Put(ctx, ev); err != nil {
		t.Fatalf("Put: %v", err)
	}
	subs := st.Subscribers()
	if err := subs.SetThreshold(ctx, "chat-42", 3); err != nil {
		t.Fatalf("SetThreshold: %v", err)
	}
	if err := subs.BindTarget(ctx, "chat-42", 42, 7); err != nil {
		t.Fatalf("BindTarget: %v", err)
	}
	if err := subs.MarkNotified(ctx, "chat-42", ev.ID); err != nil {
		t.Fatalf("MarkNotified: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st = openTestStore(t, path)
	defer st.Close()

	got, ok, err := st.Events().Get(ctx, ev.ID)
	if err != nil || !ok {
		t.Fatalf("Get after restart: ok=%v err=%v", ok, err)
	}
	if got.Place != ev.Place || got.Alert != ev.Alert || !got.Tsunami {
		t.Fatalf("event lost detail across restart: %+v", got)
	}

	sub, err := st.Subscribers().GetOrCreate(ctx, "chat-42")
	if err != nil {
		t.Fatalf("GetOrCreate after restart: %v", err)
	}
	if sub.MinSeverity != quake.ThresholdModerate {
		t.Fatalf("threshold lost across restart: %v", sub.MinSeverity)
	}
	if sub.ChatID != 42 || sub.ThreadID != 7 {
		t.Fatalf("target lost across restart: %+v", sub)
	}
	notified, err := st.Subscribers().IsNotified(ctx, "chat-42", ev.ID)
	if err != nil {
		t.Fatalf("IsNotified after restart: %v", err)
	}
	if !notified {
		t.Fatalf("notified mark lost across restart")
	}
}

func TestFileStoreReplaysJournalAfterCrash(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "quakebot.db")

	// Abandon without Close: mutations exist only in the journal.
	st := openTestStore(t, path)
	ev := testEvent("2.5-xyz-1700000001000", 1700000001000)
	if _, err := st.Events().Put(ctx, ev); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := st.Subscribers().MarkNotified(ctx, "chat-1", ev.ID); err != nil {
		t.Fatalf("MarkNotified: %v", err)
	}

	// A torn trailing line must not poison the replay.
	jf, err := os.OpenFile(filepath.Join(dir, "quakebot.journal.jsonl"), os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	if _, err := jf.WriteString(`{"op":"event","event":{"id":"trunc`); err != nil {
		t.Fatalf("write torn line: %v", err)
	}
	jf.Close()

	st2 := openTestStore(t, path)
	defer st2.Close()

	ok, err := st2.Events().Has(ctx, ev.ID)
	if err != nil || !ok {
		t.Fatalf("event not replayed from journal: ok=%v err=%v", ok, err)
	}
	notified, err := st2.Subscribers().IsNotified(ctx, "chat-1", ev.ID)
	if err != nil || !notified {
		t.Fatalf("notified mark not replayed from journal: notified=%v err=%v", notified, err)
	}
}

func TestFileStoreCorruptSnapshotIsFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quakebot.db")
	if err := os.WriteFile(filepath.Join(dir, "quakebot.events.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("seed corrupt snapshot: %v", err)
	}

	_, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err == nil {
		t.Fatalf("expected open to fail on corrupt snapshot")
	}
	if !strings.Contains(err.Error(), "events snapshot") {
		t.Fatalf("error does not name the corrupt file: %v", err)
	}
}

func TestFlushCompactsJournal(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st := openTestStore(t, filepath.Join(dir, "quakebot.db"))
	defer st.Close()

	ev := testEvent("5.0-abc-1700000000000", 1700000000000)
	if _, err := st.Events().Put(ctx, ev); err != nil {
		t.Fatalf("Put: %v", err)
	}

	journal := filepath.Join(dir, "quakebot.journal.jsonl")
	fi, err := os.Stat(journal)
	if err != nil {
		t.Fatalf("stat journal: %v", err)
	}
	if fi.Size() == 0 {
		t.Fatalf("mutation did not reach the journal")
	}

	if err := st.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	fi, err = os.Stat(journal)
	if err != nil {
		t.Fatalf("stat journal after flush: %v", err)
	}
	if fi.Size() != 0 {
		t.Fatalf("journal not truncated by flush: %d bytes", fi.Size())
	}
	snap, err := os.ReadFile(filepath.Join(dir, "quakebot.events.json"))
	if err != nil {
		t.Fatalf("read events snapshot: %v", err)
	}
	if !strings.Contains(string(snap), ev.ID) {
		t.Fatalf("flushed snapshot missing event %s", ev.ID)
	}
}

func TestGetOrCreateDefaultsAndKeepsPrefs(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t, filepath.Join(t.TempDir(), "quakebot.db"))
	defer st.Close()

	subs := st.Subscribers()
	sub, err := subs.GetOrCreate(ctx, "chat-9")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if sub.MinSeverity != quake.DefaultThreshold {
		t.Fatalf("new subscriber threshold = %v, want default %v", sub.MinSeverity, quake.DefaultThreshold)
	}
	if sub.Bound() {
		t.Fatalf("new subscriber must start unbound: %+v", sub)
	}
	if sub.CreatedAt.IsZero() {
		t.Fatalf("CreatedAt not set")
	}

	if err := subs.SetThreshold(ctx, "chat-9", 4); err != nil {
		t.Fatalf("SetThreshold: %v", err)
	}
	sub, err = subs.GetOrCreate(ctx, "chat-9")
	if err != nil {
		t.Fatalf("second GetOrCreate: %v", err)
	}
	if sub.MinSeverity != quake.ThresholdSignificant {
		t.Fatalf("GetOrCreate reset an existing subscriber: %+v", sub)
	}

	n, err := subs.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 subscriber, got %d", n)
	}
}

func TestGetOrCreateConcurrentCreatesOneRow(t *testing.T) {
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			st, err := Open(Config{Driver: driver, Path: filepath.Join(t.TempDir(), "quakebot.db")}, logx.Nop())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer st.Close()

			subs := st.Subscribers()
			const callers = 16
			got := make(chan Subscriber, callers)
			errs := make(chan error, callers)
			var wg sync.WaitGroup
			wg.Add(callers)
			for i := 0; i < callers; i++ {
				go func() {
					defer wg.Done()
					sub, err := subs.GetOrCreate(ctx, "chat-7")
					if err != nil {
						errs <- err
						return
					}
					got <- sub
				}()
			}
			wg.Wait()
			close(errs)
			close(got)

			for err := range errs {
				t.Errorf("racing GetOrCreate: %v", err)
			}
			for sub := range got {
				if sub.MinSeverity != quake.DefaultThreshold {
					t.Fatalf("racing GetOrCreate returned threshold %v, want default %v", sub.MinSeverity, quake.DefaultThreshold)
				}
			}

			n, err := subs.Count(ctx)
			if err != nil {
				t.Fatalf("Count: %v", err)
			}
			if n != 1 {
				t.Fatalf("%d racing creates left %d rows, want 1", callers, n)
			}
		})
	}
}

func TestSetThresholdRejectsUnknownLevel(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t, filepath.Join(t.TempDir(), "quakebot.db"))
	defer st.Close()

	subs := st.Subscribers()
	if err := subs.SetThreshold(ctx, "chat-1", 2); err != nil {
		t.Fatalf("SetThreshold valid: %v", err)
	}

	for _, level := range []int{-1, 5, 42} {
		err := subs.SetThreshold(ctx, "chat-1", level)
		var inv *quake.InvalidThresholdError
		if !errors.As(err, &inv) {
			t.Fatalf("level %d: expected InvalidThresholdError, got %v", level, err)
		}
		if inv.Level != level {
			t.Fatalf("error reports level %d, want %d", inv.Level, level)
		}
	}

	sub, err := subs.GetOrCreate(ctx, "chat-1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if sub.MinSeverity != quake.ThresholdLight {
		t.Fatalf("rejected update mutated the threshold: %v", sub.MinSeverity)
	}
}

func TestMarkNotifiedIdempotent(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t, filepath.Join(t.TempDir(), "quakebot.db"))
	defer st.Close()

	subs := st.Subscribers()
	if err := subs.MarkNotified(ctx, "chat-5", "5.0-abc-1700000000000"); err != nil {
		t.Fatalf("MarkNotified: %v", err)
	}
	if err := subs.MarkNotified(ctx, "chat-5", "5.0-abc-1700000000000"); err != nil {
		t.Fatalf("repeat MarkNotified: %v", err)
	}

	notified, err := subs.IsNotified(ctx, "chat-5", "5.0-abc-1700000000000")
	if err != nil || !notified {
		t.Fatalf("IsNotified: notified=%v err=%v", notified, err)
	}
	notified, err = subs.IsNotified(ctx, "chat-5", "9.9-zzz-1")
	if err != nil {
		t.Fatalf("IsNotified other event: %v", err)
	}
	if notified {
		t.Fatalf("unrelated event reported notified")
	}
	notified, err = subs.IsNotified(ctx, "chat-unknown", "5.0-abc-1700000000000")
	if err != nil {
		t.Fatalf("IsNotified unknown subscriber: %v", err)
	}
	if notified {
		t.Fatalf("unknown subscriber reported notified")
	}
}

func TestEventsAllSortedByTime(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t, filepath.Join(t.TempDir(), "quakebot.db"))
	defer st.Close()

	for _, ev := range []quake.Event{
		testEvent("b-2", 2000),
		testEvent("a-1", 1000),
		testEvent("c-2", 2000),
	} {
		if _, err := st.Events().Put(ctx, ev); err != nil {
			t.Fatalf("Put %s: %v", ev.ID, err)
		}
	}

	all, err := st.Events().All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	var ids []string
	for _, ev := range all {
		ids = append(ids, ev.ID)
	}
	want := []string{"a-1", "b-2", "c-2"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("order = %v, want %v", ids, want)
		}
	}
}

func TestClosedStoreRejectsWrites(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t, filepath.Join(t.TempDir(), "quakebot.db"))
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if _, err := st.Events().Put(ctx, testEvent("a-1", 1)); !errors.Is(err, ErrClosed) {
		t.Fatalf("Put on closed store: %v", err)
	}
	if err := st.Subscribers().MarkNotified(ctx, "chat-1", "a-1"); !errors.Is(err, ErrClosed) {
		t.Fatalf("MarkNotified on closed store: %v", err)
	}
	if err := st.Flush(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("Flush on closed store: %v", err)
	}
}
