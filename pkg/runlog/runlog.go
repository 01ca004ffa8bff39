// Package runlog persists the audit ledger for pipeline runs: one row per
// run plus one row per operation (stage, entity transform, quality rule).
// The ledger is append/update-by-key working under a single writer per
// run; it is an audit trail, not working state.
package runlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	// ErrNoRunningEntry is returned when Complete or Fail finds no
	// Running entry for the handle's key. Under correct use this cannot
	// happen; it signals a caller bug rather than being swallowed.
	ErrNoRunningEntry = errors.New("no running entry for key")

	// ErrRunTerminal is returned when a terminal run is transitioned
	// again. Runs are immutable once terminal.
	ErrRunTerminal = errors.New("run already terminal")

	// ErrRunNotFound is returned when a run id is unknown.
	ErrRunNotFound = errors.New("run not found")
)

// Log is the run ledger.
type Log interface {
	// BeginRun creates a new Running run with a fresh identifier.
	BeginRun(ctx context.Context) (*Run, error)

	// AdoptRun returns the existing Running run with the given id, or
	// creates one with that id. Used by the manual stage commands, which
	// take an externally supplied run identifier.
	AdoptRun(ctx context.Context, runID string) (*Run, error)

	// CompleteRun and FailRun terminalize a run.
	CompleteRun(ctx context.Context, runID, message string) error
	FailRun(ctx context.Context, runID, message string) error

	// GetRun fetches a run by identifier.
	GetRun(ctx context.Context, runID string) (*Run, error)

	// Begin inserts a Running operation entry and returns its handle.
	Begin(ctx context.Context, opts BeginOpts) (*Handle, error)

	// Complete and Fail terminalize the unique Running entry for the
	// handle's key.
	Complete(ctx context.Context, h *Handle, rowsAffected *int64, message string) error
	Fail(ctx context.Context, h *Handle, message string) error

	// Entries returns every entry for a run ordered by start time.
	Entries(ctx context.Context, runID string) ([]Entry, error)
}

// Compile-time interface check.
var _ Log = (*log)(nil)

type log struct {
	logger logrus.FieldLogger
	db     *gorm.DB
}

// New creates a Log on top of an open warehouse database. The ledger
// shares the warehouse connection so that run rows and data rows live in
// the same place an operator queries.
func New(logger logrus.FieldLogger, db *gorm.DB) Log {
	return &log{
		logger: logger.WithField("component", "runlog"),
		db:     db,
	}
}

// Migrate creates the ledger tables. Called by the store alongside the
// layer models.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&Run{}, &Entry{}); err != nil {
		return fmt.Errorf("migrating run log: %w", err)
	}

	return nil
}

func (l *log) BeginRun(ctx context.Context) (*Run, error) {
	run := &Run{
		RunID:     uuid.NewString(),
		Status:    StatusRunning,
		StartTime: time.Now().UTC(),
	}

	if err := l.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}

	l.logger.WithField("run_id", run.RunID).Info("Run started")

	return run, nil
}

func (l *log) AdoptRun(ctx context.Context, runID string) (*Run, error) {
	var run Run

	err := l.db.WithContext(ctx).
		Where("run_id = ?", runID).
		First(&run).Error

	switch {
	case err == nil:
		if run.Status != StatusRunning {
			return nil, fmt.Errorf("run %s: %w", runID, ErrRunTerminal)
		}

		return &run, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		run = Run{
			RunID:     runID,
			Status:    StatusRunning,
			StartTime: time.Now().UTC(),
		}

		if err := l.db.WithContext(ctx).Create(&run).Error; err != nil {
			return nil, fmt.Errorf("creating run %s: %w", runID, err)
		}

		l.logger.WithField("run_id", runID).Info("Run adopted")

		return &run, nil
	default:
		return nil, fmt.Errorf("fetching run %s: %w", runID, err)
	}
}

func (l *log) CompleteRun(ctx context.Context, runID, message string) error {
	return l.endRun(ctx, runID, StatusSuccess, message)
}

func (l *log) FailRun(ctx context.Context, runID, message string) error {
	return l.endRun(ctx, runID, StatusFailed, message)
}

func (l *log) endRun(ctx context.Context, runID, status, message string) error {
	now := time.Now().UTC()

	result := l.db.WithContext(ctx).
		Model(&Run{}).
		Where("run_id = ? AND status = ?", runID, StatusRunning).
		Updates(map[string]any{
			"status":   status,
			"end_time": now,
			"message":  message,
		})
	if result.Error != nil {
		return fmt.Errorf("ending run %s: %w", runID, result.Error)
	}

	if result.RowsAffected == 0 {
		var run Run
		if err := l.db.WithContext(ctx).
			Where("run_id = ?", runID).
			First(&run).Error; err != nil {
			return fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
		}

		return fmt.Errorf("run %s: %w", runID, ErrRunTerminal)
	}

	l.logger.WithFields(logrus.Fields{
		"run_id": runID,
		"status": status,
	}).Info("Run ended")

	return nil
}

func (l *log) GetRun(ctx context.Context, runID string) (*Run, error) {
	var run Run
	if err := l.db.WithContext(ctx).
		Where("run_id = ?", runID).
		First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
		}

		return nil, fmt.Errorf("fetching run %s: %w", runID, err)
	}

	return &run, nil
}

func (l *log) Begin(ctx context.Context, opts BeginOpts) (*Handle, error) {
	now := time.Now().UTC()

	entry := Entry{
		RunID:         opts.RunID,
		Stage:         opts.Stage,
		OperationName: opts.Operation,
		Status:        StatusRunning,
		StartTime:     now,
	}

	if opts.Schema != "" {
		entry.SchemaName = &opts.Schema
	}

	if opts.Entity != "" {
		entry.EntityName = &opts.Entity
	}

	if opts.SourceLocation != "" {
		entry.SourceLocation = &opts.SourceLocation
	}

	if err := l.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("creating log entry: %w", err)
	}

	return &Handle{
		entryID:       entry.ID,
		RunID:         opts.RunID,
		EntityName:    entry.EntityName,
		OperationName: opts.Operation,
		startTime:     now,
	}, nil
}

func (l *log) Complete(
	ctx context.Context, h *Handle, rowsAffected *int64, message string,
) error {
	return l.end(ctx, h, StatusSuccess, rowsAffected, message)
}

func (l *log) Fail(ctx context.Context, h *Handle, message string) error {
	return l.end(ctx, h, StatusFailed, nil, message)
}

// end locates the unique Running entry for the handle's key and sets it
// terminal. Transition to a terminal status is the only legal update.
func (l *log) end(
	ctx context.Context,
	h *Handle,
	status string,
	rowsAffected *int64,
	message string,
) error {
	now := time.Now().UTC()
	duration := now.Sub(h.startTime).Seconds()

	updates := map[string]any{
		"status":           status,
		"end_time":         now,
		"duration_seconds": duration,
		"message":          message,
	}

	if rowsAffected != nil {
		updates["rows_affected"] = *rowsAffected
	}

	result := l.db.WithContext(ctx).
		Model(&Entry{}).
		Where("id = ? AND status = ?", h.entryID, StatusRunning).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("ending log entry %d: %w", h.entryID, result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf(
			"entry for run %s operation %s: %w",
			h.RunID, h.OperationName, ErrNoRunningEntry,
		)
	}

	return nil
}

func (l *log) Entries(ctx context.Context, runID string) ([]Entry, error) {
	var entries []Entry
	if err := l.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("start_time ASC, id ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("listing entries for run %s: %w", runID, err)
	}

	return entries, nil
}
