// Package pg implements store.ScheduleStore and store.SessionStore on top
// of Postgres via database/sql and the pgx/v5 stdlib driver, matching
// goclaw's internal/store/pg/sessions.go convention of plain SQL over the
// database/sql idiom rather than pgx's native pool API.
package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/mama-run/mama/internal/store"
)

// Store is a Postgres-backed store.ScheduleStore + store.SessionStore.
type Store struct {
	db *sql.DB
}

// Open connects to dsn and verifies connectivity. Callers are expected to
// have already run `mama migrate up` against this DSN.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) CreateJob(ctx context.Context, j *store.Schedule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedules (id, name, cron, prompt, enabled, last_run, next_run, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		j.ID, j.Name, j.Cron, j.Prompt, j.Enabled, j.LastRun, j.NextRun, j.CreatedAt)
	if err != nil {
		return fmt.Errorf("create job %s: %w", j.ID, err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*store.Schedule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, cron, prompt, enabled, last_run, next_run, created_at
		FROM schedules WHERE id = $1`, id)
	return scanSchedule(row)
}

func (s *Store) ListJobs(ctx context.Context) ([]*store.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, cron, prompt, enabled, last_run, next_run, created_at
		FROM schedules ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return scanSchedules(rows)
}

func (s *Store) ListEnabledJobs(ctx context.Context) ([]*store.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, cron, prompt, enabled, last_run, next_run, created_at
		FROM schedules WHERE enabled = true ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list enabled jobs: %w", err)
	}
	defer rows.Close()
	return scanSchedules(rows)
}

func (s *Store) UpdateJob(ctx context.Context, id string, patch store.ScheduleUpdate) error {
	existing, err := s.GetJob(ctx, id)
	if err != nil {
		return err
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
	_, err = s.db.ExecContext(ctx, `
		UPDATE schedules SET name=$2, cron=$3, prompt=$4, enabled=$5, last_run=$6, next_run=$7
		WHERE id=$1`,
		id, existing.Name, existing.Cron, existing.Prompt, existing.Enabled, existing.LastRun, existing.NextRun)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	return nil
}

func (s *Store) DeleteJob(ctx context.Context, id string) error {
	// ON DELETE CASCADE on schedule_logs.schedule_id handles the log rows.
	_, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

func (s *Store) LogStart(ctx context.Context, scheduleID string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin log start: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var logID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO schedule_logs (schedule_id, started_at, status)
		VALUES ($1, $2, $3) RETURNING id`, scheduleID, now, store.LogRunning).Scan(&logID)
	if err != nil {
		return 0, fmt.Errorf("insert log: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE schedules SET last_run=$2 WHERE id=$1`, scheduleID, now); err != nil {
		return 0, fmt.Errorf("update last_run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit log start: %w", err)
	}
	return logID, nil
}

func (s *Store) LogFinish(ctx context.Context, logID int64, status store.LogStatus, output, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE schedule_logs SET finished_at=$2, status=$3, output=$4, error=$5
		WHERE id=$1`, logID, time.Now().UTC(), status, output, errMsg)
	if err != nil {
		return fmt.Errorf("finish log %d: %w", logID, err)
	}
	return nil
}

func (s *Store) GetLogs(ctx context.Context, scheduleID string, limit, offset int) ([]*store.ScheduleLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, schedule_id, started_at, finished_at, status, output, error
		FROM schedule_logs WHERE schedule_id=$1
		ORDER BY started_at DESC LIMIT $2 OFFSET $3`, scheduleID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("get logs: %w", err)
	}
	defer rows.Close()
	return scanLogs(rows)
}

func (s *Store) GetLastExecution(ctx context.Context, scheduleID string) (*store.ScheduleLog, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, schedule_id, started_at, finished_at, status, output, error
		FROM schedule_logs WHERE schedule_id=$1 ORDER BY started_at DESC LIMIT 1`, scheduleID)
	return scanLog(row)
}

func (s *Store) GetLastExecutionGlobal(ctx context.Context) (*store.ScheduleLog, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, schedule_id, started_at, finished_at, status, output, error
		FROM schedule_logs ORDER BY started_at DESC LIMIT 1`)
	return scanLog(row)
}

func (s *Store) GetLog(ctx context.Context, logID int64) (*store.ScheduleLog, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, schedule_id, started_at, finished_at, status, output, error
		FROM schedule_logs WHERE id=$1`, logID)
	return scanLog(row)
}

func (s *Store) ReapOrphans(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE schedule_logs SET status=$1, finished_at=$2, error='orphaned by restart'
		WHERE status=$3`, store.LogFailed, time.Now().UTC(), store.LogRunning)
	if err != nil {
		return 0, fmt.Errorf("reap orphans: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// --- Session persistence ---

func (s *Store) Get(ctx context.Context, channelKey string) (*store.SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT channel_key, session_id, total_tokens, created_at, last_active_at
		FROM sessions WHERE channel_key=$1`, channelKey)
	var r store.SessionRecord
	err := row.Scan(&r.ChannelKey, &r.SessionID, &r.TotalTokens, &r.CreatedAt, &r.LastActiveAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", channelKey, err)
	}
	return &r, nil
}

func (s *Store) Put(ctx context.Context, rec *store.SessionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (channel_key, session_id, total_tokens, created_at, last_active_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (channel_key) DO UPDATE SET
			session_id=EXCLUDED.session_id,
			total_tokens=EXCLUDED.total_tokens,
			last_active_at=EXCLUDED.last_active_at`,
		rec.ChannelKey, rec.SessionID, rec.TotalTokens, rec.CreatedAt, rec.LastActiveAt)
	if err != nil {
		return fmt.Errorf("put session %s: %w", rec.ChannelKey, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, channelKey string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE channel_key=$1`, channelKey)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", channelKey, err)
	}
	return nil
}

func (s *Store) ListIdleSince(ctx context.Context, cutoff time.Time) ([]*store.SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT channel_key, session_id, total_tokens, created_at, last_active_at
		FROM sessions WHERE last_active_at < $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list idle sessions: %w", err)
	}
	defer rows.Close()
	var out []*store.SessionRecord
	for rows.Next() {
		var r store.SessionRecord
		if err := rows.Scan(&r.ChannelKey, &r.SessionID, &r.TotalTokens, &r.CreatedAt, &r.LastActiveAt); err != nil {
			return nil, fmt.Errorf("scan idle session: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanSchedule(row scannable) (*store.Schedule, error) {
	var j store.Schedule
	err := row.Scan(&j.ID, &j.Name, &j.Cron, &j.Prompt, &j.Enabled, &j.LastRun, &j.NextRun, &j.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan schedule: %w", err)
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
	var output, errMsg sql.NullString
	err := row.Scan(&l.ID, &l.ScheduleID, &l.StartedAt, &l.FinishedAt, &l.Status, &output, &errMsg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan log: %w", err)
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
