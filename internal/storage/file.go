package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"quakebot/internal/quake"
	logx "quakebot/pkg/logx"
)

// fileStore is the dependency-free persistence backend.
//
// Files:
//   - <prefix>.events.json       (event log snapshot)
//   - <prefix>.subscribers.json  (registry snapshot, notified sets inline)
//   - <prefix>.journal.jsonl     (mutations since the last flush)
//
// Mutations hit the journal immediately so a crash mid-cycle cannot replay
// already-recorded events as new; Flush compacts the journal into the
// snapshots (temp file + rename, whole-file atomic) and truncates it.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	eventsPath string
	subsPath   string
	journal    *os.File

	events map[string]quake.Event
	subs   map[string]*subRecord
}

type subRecord struct {
	Subscriber
	Notified map[string]bool `json:"notified"`
}

const (
	opEvent      = "event"
	opSubscriber = "subscriber"
	opNotified   = "notified"
)

type journalRecord struct {
	Op         string       `json:"op"`
	Event      *quake.Event `json:"event,omitempty"`
	Subscriber *subRecord   `json:"subscriber,omitempty"`
	SubID      string       `json:"subscriber_id,omitempty"`
	EventID    string       `json:"event_id,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:        log,
		eventsPath: prefix + ".events.json",
		subsPath:   prefix + ".subscribers.json",
		events:     map[string]quake.Event{},
		subs:       map[string]*subRecord{},
	}
	journalPath := prefix + ".journal.jsonl"

	// A missing snapshot means first run (stays empty); a corrupt one is fatal.
	if err := loadSnapshot(s.eventsPath, &s.events); err != nil {
		return nil, fmt.Errorf("load events snapshot %s: %w", s.eventsPath, err)
	}
	if err := loadSnapshot(s.subsPath, &s.subs); err != nil {
		return nil, fmt.Errorf("load subscribers snapshot %s: %w", s.subsPath, err)
	}
	for _, rec := range s.subs {
		if rec.Notified == nil {
			rec.Notified = map[string]bool{}
		}
	}
	s.replayJournal(journalPath)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	s.journal = jf

	// Persist immediately: first run materializes empty snapshots so later
	// loads never miss a file, and a replayed journal is compacted away.
	s.mu.Lock()
	err = s.compactLocked()
	s.mu.Unlock()
	if err != nil {
		_ = jf.Close()
		return nil, err
	}
	return s, nil
}

// loadSnapshot decodes path into out. Missing file is first-run, not an error.
func loadSnapshot(path string, out any) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(out)
}

// replayJournal re-applies mutations written after the last flush. A torn
// trailing line (crash mid-append) is expected and skipped.
func (s *fileStore) replayJournal(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec journalRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			s.log.Warn("skipping unreadable journal line", logx.Err(err))
			continue
		}
		switch rec.Op {
		case opEvent:
			if rec.Event != nil && rec.Event.ID != "" {
				s.events[rec.Event.ID] = *rec.Event
			}
		case opSubscriber:
			if rec.Subscriber != nil && rec.Subscriber.ID != "" {
				cp := *rec.Subscriber
				if cp.Notified == nil {
					cp.Notified = map[string]bool{}
				}
				if prev, ok := s.subs[cp.ID]; ok && len(cp.Notified) == 0 {
					// Subscriber records journal preferences only; keep the
					// notified set accumulated so far.
					cp.Notified = prev.Notified
				}
				s.subs[cp.ID] = &cp
			}
		case opNotified:
			if rec.SubID == "" || rec.EventID == "" {
				continue
			}
			if sub, ok := s.subs[rec.SubID]; ok {
				sub.Notified[rec.EventID] = true
			}
		}
	}
}

func (s *fileStore) Events() EventStore           { return &fileEvents{s: s} }
func (s *fileStore) Subscribers() SubscriberStore { return &fileSubscribers{s: s} }

func (s *fileStore) Flush(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	return s.compactLocked()
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.compactLocked()
	cerr := s.journal.Close()
	s.journal = nil
	if err != nil {
		return err
	}
	return cerr
}

func (s *fileStore) compactLocked() error {
	if err := writeSnapshot(s.eventsPath, s.events); err != nil {
		return err
	}
	if err := writeSnapshot(s.subsPath, s.subs); err != nil {
		return err
	}
	if s.journal != nil {
		if err := s.journal.Truncate(0); err != nil {
			return err
		}
		if _, err := s.journal.Seek(0, io.SeekEnd); err != nil {
			return err
		}
	}
	return nil
}

func writeSnapshot(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(v); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *fileStore) appendLocked(rec journalRecord) error {
	if s.journal == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.journal).Encode(rec)
}

// ---- event log ----

type fileEvents struct{ s *fileStore }

func (e *fileEvents) Has(ctx context.Context, id string) (bool, error) {
	_ = ctx
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	_, ok := e.s.events[id]
	return ok, nil
}

func (e *fileEvents) Get(ctx context.Context, id string) (quake.Event, bool, error) {
	_ = ctx
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	ev, ok := e.s.events[id]
	return ev, ok, nil
}

func (e *fileEvents) Put(ctx context.Context, ev quake.Event) (bool, error) {
	_ = ctx
	if ev.ID == "" {
		return false, errors.New("event id is empty")
	}
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if e.s.journal == nil {
		return false, ErrClosed
	}
	if _, ok := e.s.events[ev.ID]; ok {
		return false, nil
	}
	e.s.events[ev.ID] = ev
	if err := e.s.appendLocked(journalRecord{Op: opEvent, Event: &ev}); err != nil {
		return false, err
	}
	return true, nil
}

func (e *fileEvents) All(ctx context.Context) ([]quake.Event, error) {
	_ = ctx
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	out := make([]quake.Event, 0, len(e.s.events))
	for _, ev := range e.s.events {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TimeMs != out[j].TimeMs {
			return out[i].TimeMs < out[j].TimeMs
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (e *fileEvents) Count(ctx context.Context) (int, error) {
	_ = ctx
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	return len(e.s.events), nil
}

// ---- subscriber registry ----

type fileSubscribers struct{ s *fileStore }

func (r *fileSubscribers) GetOrCreate(ctx context.Context, id string) (Subscriber, error) {
	_ = ctx
	id = strings.TrimSpace(id)
	if id == "" {
		return Subscriber{}, errors.New("subscriber id is empty")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, err := r.getOrCreateLocked(id)
	if err != nil {
		return Subscriber{}, err
	}
	return rec.Subscriber, nil
}

// getOrCreateLocked returns the live record, creating defaults (and journaling
// the creation) when absent.
func (r *fileSubscribers) getOrCreateLocked(id string) (*subRecord, error) {
	if rec, ok := r.s.subs[id]; ok {
		return rec, nil
	}
	if r.s.journal == nil {
		return nil, ErrClosed
	}
	now := time.Now().UTC()
	rec := &subRecord{
		Subscriber: Subscriber{
			ID:          id,
			MinSeverity: quake.DefaultThreshold,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		Notified: map[string]bool{},
	}
	r.s.subs[id] = rec
	if err := r.s.appendLocked(journalRecord{Op: opSubscriber, Subscriber: rec.prefsOnly()}); err != nil {
		return nil, err
	}
	return rec, nil
}

// prefsOnly strips the notified set for journaling: preference records and
// notified marks are journaled separately so one never clobbers the other on
// replay.
func (rec *subRecord) prefsOnly() *subRecord {
	return &subRecord{Subscriber: rec.Subscriber}
}

func (r *fileSubscribers) SetThreshold(ctx context.Context, id string, level int) error {
	_ = ctx
	th, err := quake.ParseThreshold(level)
	if err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, err := r.getOrCreateLocked(id)
	if err != nil {
		return err
	}
	if rec.MinSeverity == th {
		return nil
	}
	rec.MinSeverity = th
	rec.UpdatedAt = time.Now().UTC()
	return r.s.appendLocked(journalRecord{Op: opSubscriber, Subscriber: rec.prefsOnly()})
}

func (r *fileSubscribers) BindTarget(ctx context.Context, id string, chatID int64, threadID int) error {
	_ = ctx
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, err := r.getOrCreateLocked(id)
	if err != nil {
		return err
	}
	if rec.ChatID == chatID && rec.ThreadID == threadID {
		return nil
	}
	rec.ChatID = chatID
	rec.ThreadID = threadID
	rec.UpdatedAt = time.Now().UTC()
	return r.s.appendLocked(journalRecord{Op: opSubscriber, Subscriber: rec.prefsOnly()})
}

func (r *fileSubscribers) MarkNotified(ctx context.Context, id, eventID string) error {
	_ = ctx
	if eventID == "" {
		return errors.New("event id is empty")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, err := r.getOrCreateLocked(id)
	if err != nil {
		return err
	}
	if rec.Notified[eventID] {
		return nil
	}
	rec.Notified[eventID] = true
	return r.s.appendLocked(journalRecord{Op: opNotified, SubID: id, EventID: eventID})
}

func (r *fileSubscribers) IsNotified(ctx context.Context, id, eventID string) (bool, error) {
	_ = ctx
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.subs[id]
	if !ok {
		return false, nil
	}
	return rec.Notified[eventID], nil
}

func (r *fileSubscribers) All(ctx context.Context) ([]Subscriber, error) {
	_ = ctx
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]Subscriber, 0, len(r.s.subs))
	for _, rec := range r.s.subs {
		out = append(out, rec.Subscriber)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fileSubscribers) Count(ctx context.Context) (int, error) {
	_ = ctx
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.subs), nil
}
