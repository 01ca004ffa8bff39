package runlog

import (
	"time"
)

// Status values shared by runs and operation entries.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Stage names in execution order.
const (
	StageIngestion      = "ingestion"
	StageTransformation = "transformation"
	StageQuality        = "quality"
	StagePipeline       = "pipeline"
)

// Run is one end-to-end pipeline execution. It is created Running and
// transitions exactly once to Success or Failed.
type Run struct {
	ID        uint       `gorm:"primaryKey"`
	RunID     string     `gorm:"uniqueIndex;not null"`
	Status    string     `gorm:"not null"`
	StartTime time.Time  `gorm:"not null"`
	EndTime   *time.Time ``
	Message   string     ``
	CreatedAt time.Time  ``
}

// TableName returns the run table name.
func (Run) TableName() string { return "pipeline_runs" }

// Entry is the audit record for a single operation within a run. Entries
// are inserted Running and updated exactly once to a terminal status;
// they are never deleted.
type Entry struct {
	ID              uint       `gorm:"primaryKey"`
	RunID           string     `gorm:"index;not null"`
	Stage           string     `gorm:"not null"`
	SchemaName      *string    ``
	EntityName      *string    `gorm:"index"`
	OperationName   string     `gorm:"not null"`
	SourceLocation  *string    ``
	Status          string     `gorm:"not null"`
	RowsAffected    *int64     ``
	StartTime       time.Time  `gorm:"not null"`
	EndTime         *time.Time ``
	DurationSeconds *float64   ``
	Message         string     ``
	CreatedAt       time.Time  ``
}

// TableName returns the operation entry table name.
func (Entry) TableName() string { return "pipeline_run_log" }

// Handle identifies the unique Running entry for a (run, entity,
// operation) key, returned by Begin and consumed by Complete or Fail.
type Handle struct {
	entryID       uint
	RunID         string
	EntityName    *string
	OperationName string
	startTime     time.Time
}

// BeginOpts describes the operation being opened.
type BeginOpts struct {
	RunID          string
	Stage          string
	Operation      string
	Schema         string
	Entity         string
	SourceLocation string
}
