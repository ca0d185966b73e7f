// Package sqlite implements store.ScheduleStore and store.SessionStore on
// top of modernc.org/sqlite for the standalone single-user deployment
// described in spec.md §6 (a schedule database file alongside the memory
// database under ~/.mama/). Unlike ./pg it self-migrates on Open rather
// than depending on golang-migrate, since a single-file embedded database
// has no separate deploy step.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mama-run/mama/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS schedules (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	cron TEXT NOT NULL,
	prompt TEXT NOT NULL,
	enabled INTEGER NOT NULL DEFAULT 1,
	last_run TEXT,
	next_run TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_schedules_enabled ON schedules (enabled);

CREATE TABLE IF NOT EXISTS schedule_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	schedule_id TEXT NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	status TEXT NOT NULL,
	output TEXT,
	error TEXT
);
CREATE INDEX IF NOT EXISTS idx_schedule_logs_started_at ON schedule_logs (started_at DESC);

CREATE TABLE IF NOT EXISTS sessions (
	channel_key TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	total_tokens INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	last_active_at TEXT NOT NULL
);
`

const timeLayout = time.RFC3339Nano

// Store is a SQLite-backed store.ScheduleStore + store.SessionStore.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite file at path and applies the
// schema idempotently.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single-writer, matches store's single-writer-per-process contract
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func fmtTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (st *Store) CreateJob(ctx context.Context, j *store.Schedule) error {
	var lastRun, nextRun interface{}
	if j.LastRun != nil {
		lastRun = fmtTime(*j.LastRun)
	}
	if j.NextRun != nil {
		nextRun = fmtTime(*j.NextRun)
	}
	_, err := st.db.ExecContext(ctx, `
		INSERT INTO schedules (id, name, cron, prompt, enabled, last_run, next_run, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Name, j.Cron, j.Prompt, j.Enabled, lastRun, nextRun, fmtTime(j.CreatedAt))
	if err != nil {
		return fmt.Errorf("create job %s: %w", j.ID, err)
	}
	return nil
}

func (st *Store) GetJob(ctx context.Context, id string) (*store.Schedule, error) {
	row := st.db.QueryRowContext(ctx, `
		SELECT id, name, cron, prompt, enabled, last_run, next_run, created_at
		FROM schedules WHERE id = ?`, id)
	return scanSchedule(row)
}

func (st *Store) ListJobs(ctx context.Context) ([]*store.Schedule, error) {
	rows, err := st.db.QueryContext(ctx, `
		SELECT id, name, cron, prompt, enabled, last_run, next_run, created_at
		FROM schedules ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return scanSchedules(rows)
}

func (st *Store) ListEnabledJobs(ctx context.Context) ([]*store.Schedule, error) {
	rows, err := st.db.QueryContext(ctx, `
		SELECT id, name, cron, prompt, enabled, last_run, next_run, created_at
		FROM schedules WHERE enabled = 1 ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list enabled jobs: %w", err)
	}
	defer rows.Close()
	return scanSchedules(rows)
}

func (st *Store) UpdateJob(ctx context.Context, id string, patch store.ScheduleUpdate) error {
	existing, err := st.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("job %s: %w", id, sql.ErrNoRows)
	}
	if patch.Name != nil {
		existing.Name = *patch.Name
	}
	if patch.Cron != nil {
		existing.Cron = *patch.Cron
	}
	if patch.Prompt != nil {
		existing.Prompt = *patch.Prompt
	}
	if patch.Enabled != nil {
		existing.Enabled = *patch.Enabled
	}
	if patch.LastRun != nil {
		existing.LastRun = patch.LastRun
	}
	if patch.NextRun != nil {
		existing.NextRun = patch.NextRun
	}
	var lastRun, nextRun interface{}
	if existing.LastRun != nil {
		lastRun = fmtTime(*existing.LastRun)
	}
	if existing.NextRun != nil {
		nextRun = fmtTime(*existing.NextRun)
	}
	_, err = st.db.ExecContext(ctx, `
		UPDATE schedules SET name=?, cron=?, prompt=?, enabled=?, last_run=?, next_run=?
		WHERE id=?`,
		existing.Name, existing.Cron, existing.Prompt, existing.Enabled, lastRun, nextRun, id)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	return nil
}

func (st *Store) DeleteJob(ctx context.Context, id string) error {
	_, err := st.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

func (st *Store) LogStart(ctx context.Context, scheduleID string) (int64, error) {
	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin log start: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO schedule_logs (schedule_id, started_at, status) VALUES (?, ?, ?)`,
		scheduleID, fmtTime(now), store.LogRunning)
	if err != nil {
		return 0, fmt.Errorf("insert log: %w", err)
	}
	logID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("log id: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE schedules SET last_run=? WHERE id=?`, fmtTime(now), scheduleID); err != nil {
		return 0, fmt.Errorf("update last_run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit log start: %w", err)
	}
	return logID, nil
}

func (st *Store) LogFinish(ctx context.Context, logID int64, status store.LogStatus, output, errMsg string) error {
	_, err := st.db.ExecContext(ctx, `
		UPDATE schedule_logs SET finished_at=?, status=?, output=?, error=? WHERE id=?`,
		fmtTime(time.Now()), status, output, errMsg, logID)
	if err != nil {
		return fmt.Errorf("finish log %d: %w", logID, err)
	}
	return nil
}

func (st *Store) GetLogs(ctx context.Context, scheduleID string, limit, offset int) ([]*store.ScheduleLog, error) {
	rows, err := st.db.QueryContext(ctx, `
		SELECT id, schedule_id, started_at, finished_at, status, output, error
		FROM schedule_logs WHERE schedule_id=? ORDER BY started_at DESC LIMIT ? OFFSET ?`,
		scheduleID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("get logs: %w", err)
	}
	defer rows.Close()
	return scanLogs(rows)
}

func (st *Store) GetLastExecution(ctx context.Context, scheduleID string) (*store.ScheduleLog, error) {
	row := st.db.QueryRowContext(ctx, `
		SELECT id, schedule_id, started_at, finished_at, status, output, error
		FROM schedule_logs WHERE schedule_id=? ORDER BY started_at DESC LIMIT 1`, scheduleID)
	return scanLog(row)
}

func (st *Store) GetLastExecutionGlobal(ctx context.Context) (*store.ScheduleLog, error) {
	row := st.db.QueryRowContext(ctx, `
		SELECT id, schedule_id, started_at, finished_at, status, output, error
		FROM schedule_logs ORDER BY started_at DESC LIMIT 1`)
	return scanLog(row)
}

func (st *Store) GetLog(ctx context.Context, logID int64) (*store.ScheduleLog, error) {
	row := st.db.QueryRowContext(ctx, `
		SELECT id, schedule_id, started_at, finished_at, status, output, error
		FROM schedule_logs WHERE id=?`, logID)
	return scanLog(row)
}

func (st *Store) ReapOrphans(ctx context.Context) (int, error) {
	res, err := st.db.ExecContext(ctx, `
		UPDATE schedule_logs SET status=?, finished_at=?, error='orphaned by restart'
		WHERE status=?`, store.LogFailed, fmtTime(time.Now()), store.LogRunning)
	if err != nil {
		return 0, fmt.Errorf("reap orphans: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (st *Store) Get(ctx context.Context, channelKey string) (*store.SessionRecord, error) {
	row := st.db.QueryRowContext(ctx, `
		SELECT channel_key, session_id, total_tokens, created_at, last_active_at
		FROM sessions WHERE channel_key=?`, channelKey)
	var r store.SessionRecord
	var created, lastActive string
	err := row.Scan(&r.ChannelKey, &r.SessionID, &r.TotalTokens, &created, &lastActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", channelKey, err)
	}
	r.CreatedAt, _ = time.Parse(timeLayout, created)
	r.LastActiveAt, _ = time.Parse(timeLayout, lastActive)
	return &r, nil
}

func (st *Store) Put(ctx context.Context, rec *store.SessionRecord) error {
	_, err := st.db.ExecContext(ctx, `
		INSERT INTO sessions (channel_key, session_id, total_tokens, created_at, last_active_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(channel_key) DO UPDATE SET
			session_id=excluded.session_id,
			total_tokens=excluded.total_tokens,
			last_active_at=excluded.last_active_at`,
		rec.ChannelKey, rec.SessionID, rec.TotalTokens, fmtTime(rec.CreatedAt), fmtTime(rec.LastActiveAt))
	if err != nil {
		return fmt.Errorf("put session %s: %w", rec.ChannelKey, err)
	}
	return nil
}

func (st *Store) Delete(ctx context.Context, channelKey string) error {
	_, err := st.db.ExecContext(ctx, `DELETE FROM sessions WHERE channel_key=?`, channelKey)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", channelKey, err)
	}
	return nil
}

func (st *Store) ListIdleSince(ctx context.Context, cutoff time.Time) ([]*store.SessionRecord, error) {
	rows, err := st.db.QueryContext(ctx, `
		SELECT channel_key, session_id, total_tokens, created_at, last_active_at
		FROM sessions WHERE last_active_at < ?`, fmtTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("list idle sessions: %w", err)
	}
	defer rows.Close()
	var out []*store.SessionRecord
	for rows.Next() {
		var r store.SessionRecord
		var created, lastActive string
		if err := rows.Scan(&r.ChannelKey, &r.SessionID, &r.TotalTokens, &created, &lastActive); err != nil {
			return nil, fmt.Errorf("scan idle session: %w", err)
		}
		r.CreatedAt, _ = time.Parse(timeLayout, created)
		r.LastActiveAt, _ = time.Parse(timeLayout, lastActive)
		out = append(out, &r)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanSchedule(row scannable) (*store.Schedule, error) {
	var j store.Schedule
	var created string
	var lastRun, nextRun sql.NullString
	err := row.Scan(&j.ID, &j.Name, &j.Cron, &j.Prompt, &j.Enabled, &lastRun, &nextRun, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan schedule: %w", err)
	}
	j.CreatedAt, _ = time.Parse(timeLayout, created)
	j.LastRun, err = parseTimePtr(lastRun)
	if err != nil {
		return nil, fmt.Errorf("parse last_run: %w", err)
	}
	j.NextRun, err = parseTimePtr(nextRun)
	if err != nil {
		return nil, fmt.Errorf("parse next_run: %w", err)
	}
	return &j, nil
}

func scanSchedules(rows *sql.Rows) ([]*store.Schedule, error) {
	var out []*store.Schedule
	for rows.Next() {
		j, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func scanLog(row scannable) (*store.ScheduleLog, error) {
	var l store.ScheduleLog
	var started string
	var finished, output, errMsg sql.NullString
	err := row.Scan(&l.ID, &l.ScheduleID, &started, &finished, &l.Status, &output, &errMsg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan log: %w", err)
	}
	l.StartedAt, _ = time.Parse(timeLayout, started)
	l.FinishedAt, err = parseTimePtr(finished)
	if err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}
	l.Output = output.String
	l.Error = errMsg.String
	return &l, nil
}

func scanLogs(rows *sql.Rows) ([]*store.ScheduleLog, error) {
	var out []*store.ScheduleLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
