// Package store defines the durable ScheduleStore contract (spec §4.2) and
// the Session persistence contract it shares a backend with, grounded on
// goclaw's internal/store/stores.go aggregation and internal/store/pg's
// database/sql idiom (kept for the Postgres implementation in ./pg).
package store

import (
	"context"
	"time"
)

// Schedule is the durable cron job record (spec §3 Schedule).
type Schedule struct {
	ID        string
	Name      string
	Cron      string
	Prompt    string
	Enabled   bool
	LastRun   *time.Time
	NextRun   *time.Time
	CreatedAt time.Time
}

// LogStatus is the ScheduleLog.status enum.
type LogStatus string

const (
	LogRunning LogStatus = "running"
	LogSuccess LogStatus = "success"
	LogFailed  LogStatus = "failed"
)

// ScheduleLog is one execution attempt row (spec §3 ScheduleLog).
type ScheduleLog struct {
	ID         int64
	ScheduleID string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     LogStatus
	Output     string
	Error      string
}

// ScheduleUpdate is a partial patch applied by updateJob.
type ScheduleUpdate struct {
	Name    *string
	Cron    *string
	Prompt  *string
	Enabled *bool
	LastRun *time.Time
	NextRun *time.Time
}

// ScheduleStore is the durable backing store for cron jobs and their
// execution history. Implementations: ./pg (Postgres via pgx/v5) and
// ./sqlite (modernc.org/sqlite, for the standalone deployment).
type ScheduleStore interface {
	CreateJob(ctx context.Context, s *Schedule) error
	GetJob(ctx context.Context, id string) (*Schedule, error)
	ListJobs(ctx context.Context) ([]*Schedule, error)
	ListEnabledJobs(ctx context.Context) ([]*Schedule, error)
	UpdateJob(ctx context.Context, id string, patch ScheduleUpdate) error
	DeleteJob(ctx context.Context, id string) error

	LogStart(ctx context.Context, scheduleID string) (int64, error)
	LogFinish(ctx context.Context, logID int64, status LogStatus, output, errMsg string) error
	GetLogs(ctx context.Context, scheduleID string, limit, offset int) ([]*ScheduleLog, error)
	GetLastExecution(ctx context.Context, scheduleID string) (*ScheduleLog, error)
	GetLastExecutionGlobal(ctx context.Context) (*ScheduleLog, error)
	GetLog(ctx context.Context, logID int64) (*ScheduleLog, error)

	// ReapOrphans marks any log row left in "running" status as failed;
	// called once on startup recovery per spec §4.3.
	ReapOrphans(ctx context.Context) (int, error)

	Close() error
}

// SessionRecord is the persisted projection of a Session (spec §3),
// keyed by its channelKey.
type SessionRecord struct {
	ChannelKey   string
	SessionID    string
	TotalTokens  int
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// SessionStore persists Session state across process restarts so a
// channelKey's subprocess session id survives a `mama restart`.
type SessionStore interface {
	Get(ctx context.Context, channelKey string) (*SessionRecord, error)
	Put(ctx context.Context, rec *SessionRecord) error
	Delete(ctx context.Context, channelKey string) error
	ListIdleSince(ctx context.Context, cutoff time.Time) ([]*SessionRecord, error)
	Close() error
}
