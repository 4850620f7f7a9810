package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"quakebot/internal/quake"
	logx "quakebot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate %s: %w", path, err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Events() EventStore           { return &sqliteEvents{s: s} }
func (s *sqliteStore) Subscribers() SubscriberStore { return &sqliteSubscribers{s: s} }

// Flush runs a passive WAL checkpoint. Individual statements are already
// durable; this only bounds WAL growth at the cycle boundary.
func (s *sqliteStore) Flush(ctx context.Context) error {
	if s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)")
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// ---- event log ----

type sqliteEvents struct{ s *sqliteStore }

const eventColumns = `id, place, magnitude, time_ms, local_time, latitude, longitude, depth, url, alert, significance, tsunami`

func (e *sqliteEvents) Has(ctx context.Context, id string) (bool, error) {
	if e.s.db == nil {
		return false, ErrClosed
	}
	var one int
	err := e.s.db.QueryRowContext(ctx, `SELECT 1 FROM events WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (e *sqliteEvents) Get(ctx context.Context, id string) (quake.Event, bool, error) {
	if e.s.db == nil {
		return quake.Event{}, false, ErrClosed
	}
	row := e.s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return quake.Event{}, false, nil
	}
	if err != nil {
		return quake.Event{}, false, err
	}
	return ev, true, nil
}

func (e *sqliteEvents) Put(ctx context.Context, ev quake.Event) (bool, error) {
	if e.s.db == nil {
		return false, ErrClosed
	}
	if ev.ID == "" {
		return false, errors.New("event id is empty")
	}
	res, err := e.s.db.ExecContext(ctx,
		`INSERT INTO events(`+eventColumns+`, first_seen_ms)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO NOTHING`,
		ev.ID, ev.Place, ev.Magnitude, ev.TimeMs, ev.LocalTime, ev.Latitude, ev.Longitude,
		ev.Depth, ev.URL, string(ev.Alert), ev.Significance, boolInt(ev.Tsunami),
		time.Now().UnixMilli(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (e *sqliteEvents) All(ctx context.Context) ([]quake.Event, error) {
	if e.s.db == nil {
		return nil, ErrClosed
	}
	rows, err := e.s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY time_ms, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []quake.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (e *sqliteEvents) Count(ctx context.Context) (int, error) {
	if e.s.db == nil {
		return 0, ErrClosed
	}
	var n int
	err := e.s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (quake.Event, error) {
	var ev quake.Event
	var alert string
	var tsunami int
	err := row.Scan(&ev.ID, &ev.Place, &ev.Magnitude, &ev.TimeMs, &ev.LocalTime,
		&ev.Latitude, &ev.Longitude, &ev.Depth, &ev.URL, &alert, &ev.Significance, &tsunami)
	if err != nil {
		return quake.Event{}, err
	}
	ev.Alert = quake.Alert(alert)
	ev.Tsunami = tsunami != 0
	return ev, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// ---- subscriber registry ----

type sqliteSubscribers struct{ s *sqliteStore }

func (r *sqliteSubscribers) GetOrCreate(ctx context.Context, id string) (Subscriber, error) {
	if r.s.db == nil {
		return Subscriber{}, ErrClosed
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Subscriber{}, errors.New("subscriber id is empty")
	}
	if err := r.ensure(ctx, id); err != nil {
		return Subscriber{}, err
	}
	row := r.s.db.QueryRowContext(ctx,
		`SELECT id, min_severity, chat_id, thread_id, created_at, updated_at FROM subscribers WHERE id = ?`, id)
	return scanSubscriber(row)
}

// ensure inserts the default row when absent. ON CONFLICT DO NOTHING keeps it
// idempotent so existing preferences are never reset.
func (r *sqliteSubscribers) ensure(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := r.s.db.ExecContext(ctx,
		`INSERT INTO subscribers(id, min_severity, chat_id, thread_id, created_at, updated_at)
		 VALUES(?,?,0,0,?,?)
		 ON CONFLICT(id) DO NOTHING`,
		id, int(quake.DefaultThreshold), now, now,
	)
	return err
}

func (r *sqliteSubscribers) SetThreshold(ctx context.Context, id string, level int) error {
	if r.s.db == nil {
		return ErrClosed
	}
	th, err := quake.ParseThreshold(level)
	if err != nil {
		return err
	}
	if err := r.ensure(ctx, id); err != nil {
		return err
	}
	_, err = r.s.db.ExecContext(ctx,
		`UPDATE subscribers SET min_severity = ?, updated_at = ? WHERE id = ? AND min_severity != ?`,
		int(th), time.Now().UTC().Format(time.RFC3339Nano), id, int(th),
	)
	return err
}

func (r *sqliteSubscribers) BindTarget(ctx context.Context, id string, chatID int64, threadID int) error {
	if r.s.db == nil {
		return ErrClosed
	}
	if err := r.ensure(ctx, id); err != nil {
		return err
	}
	_, err := r.s.db.ExecContext(ctx,
		`UPDATE subscribers SET chat_id = ?, thread_id = ?, updated_at = ?
		 WHERE id = ? AND (chat_id != ? OR thread_id != ?)`,
		chatID, threadID, time.Now().UTC().Format(time.RFC3339Nano), id, chatID, threadID,
	)
	return err
}

func (r *sqliteSubscribers) MarkNotified(ctx context.Context, id, eventID string) error {
	if r.s.db == nil {
		return ErrClosed
	}
	if eventID == "" {
		return errors.New("event id is empty")
	}
	if err := r.ensure(ctx, id); err != nil {
		return err
	}
	_, err := r.s.db.ExecContext(ctx,
		`INSERT INTO notified(subscriber_id, event_id, delivered_ms)
		 VALUES(?,?,?)
		 ON CONFLICT(subscriber_id, event_id) DO NOTHING`,
		id, eventID, time.Now().UnixMilli(),
	)
	return err
}

func (r *sqliteSubscribers) IsNotified(ctx context.Context, id, eventID string) (bool, error) {
	if r.s.db == nil {
		return false, ErrClosed
	}
	var one int
	err := r.s.db.QueryRowContext(ctx,
		`SELECT 1 FROM notified WHERE subscriber_id = ? AND event_id = ?`, id, eventID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *sqliteSubscribers) All(ctx context.Context) ([]Subscriber, error) {
	if r.s.db == nil {
		return nil, ErrClosed
	}
	rows, err := r.s.db.QueryContext(ctx,
		`SELECT id, min_severity, chat_id, thread_id, created_at, updated_at FROM subscribers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (r *sqliteSubscribers) Count(ctx context.Context) (int, error) {
	if r.s.db == nil {
		return 0, ErrClosed
	}
	var n int
	err := r.s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscribers`).Scan(&n)
	return n, err
}

func scanSubscriber(row rowScanner) (Subscriber, error) {
	var sub Subscriber
	var sev int
	var created, updated string
	if err := row.Scan(&sub.ID, &sev, &sub.ChatID, &sub.ThreadID, &created, &updated); err != nil {
		return Subscriber{}, err
	}
	sub.MinSeverity = quake.Threshold(sev)
	sub.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	sub.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return sub, nil
}
