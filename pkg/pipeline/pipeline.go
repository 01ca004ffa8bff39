// Package pipeline implements the orchestrator: one run, the fixed
// stage order ingestion -> transformation -> quality, fail-fast between
// stages. The orchestrator is the single place that decides to halt; the
// stages report outcomes as error values and never swallow failures.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/pipelinoor/pkg/ingest"
	"github.com/ethpandaops/pipelinoor/pkg/quality"
	"github.com/ethpandaops/pipelinoor/pkg/runlog"
	"github.com/ethpandaops/pipelinoor/pkg/transform"
	"github.com/sirupsen/logrus"
)

// Failure class sentinels, matchable with errors.Is on any stage error.
var (
	ErrIngestionFailed  = errors.New("ingestion failed")
	ErrTransformFailed  = errors.New("transformation failed")
	ErrQualityViolation = errors.New("quality gate violated")
)

// StageError attributes a failure to the stage that raised it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Is maps the stage name to its failure class sentinel.
func (e *StageError) Is(target error) bool {
	switch target {
	case ErrIngestionFailed:
		return e.Stage == runlog.StageIngestion
	case ErrTransformFailed:
		return e.Stage == runlog.StageTransformation
	case ErrQualityViolation:
		return e.Stage == runlog.StageQuality
	default:
		return false
	}
}

// Result summarizes a finished run for the CLI.
type Result struct {
	RunID        string
	Duration     time.Duration
	RowsLoaded   int64
	RowsCleansed int64
}

// Orchestrator drives the pipeline state machine.
type Orchestrator interface {
	// Execute runs the full pipeline under a fresh run identifier.
	Execute(ctx context.Context) (*Result, error)

	// ExecuteIngestion and ExecuteQuality run a single stage under an
	// externally supplied run identifier, for manual diagnosis.
	ExecuteIngestion(ctx context.Context, runID string) (*Result, error)
	ExecuteQuality(ctx context.Context, runID string) (*Result, error)
}

// Compile-time interface check.
var _ Orchestrator = (*orchestrator)(nil)

type orchestrator struct {
	log    logrus.FieldLogger
	runLog runlog.Log
	loader ingest.Loader
	engine transform.Engine
	gate   quality.Gate
}

// NewOrchestrator creates the pipeline orchestrator.
func NewOrchestrator(
	log logrus.FieldLogger,
	rl runlog.Log,
	loader ingest.Loader,
	engine transform.Engine,
	gate quality.Gate,
) Orchestrator {
	return &orchestrator{
		log:    log.WithField("component", "pipeline"),
		runLog: rl,
		loader: loader,
		engine: engine,
		gate:   gate,
	}
}

// stage is one orchestrated unit of work. run returns the rows affected,
// where that is meaningful for the stage.
type stage struct {
	name string
	run  func(ctx context.Context, runID string) (int64, error)
}

func (o *orchestrator) stages() []stage {
	return []stage{
		{
			name: runlog.StageIngestion,
			run:  o.loader.Load,
		},
		{
			name: runlog.StageTransformation,
			run:  o.engine.Transform,
		},
		{
			name: runlog.StageQuality,
			run: func(ctx context.Context, runID string) (int64, error) {
				return 0, o.gate.Evaluate(ctx, runID)
			},
		},
	}
}

func (o *orchestrator) Execute(ctx context.Context) (*Result, error) {
	run, err := o.runLog.BeginRun(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning run: %w", err)
	}

	top, err := o.runLog.Begin(ctx, runlog.BeginOpts{
		RunID:     run.RunID,
		Stage:     runlog.StagePipeline,
		Operation: "pipeline",
	})
	if err != nil {
		return nil, fmt.Errorf("opening pipeline entry: %w", err)
	}

	result := &Result{RunID: run.RunID}

	for _, st := range o.stages() {
		rows, err := o.runStage(ctx, run.RunID, st)
		if err != nil {
			// Fail-fast: mark the run failed and skip all later stages.
			if failErr := o.runLog.Fail(ctx, top, err.Error()); failErr != nil {
				o.log.WithError(failErr).Warn("Failed to record pipeline failure")
			}

			if failErr := o.runLog.FailRun(ctx, run.RunID, err.Error()); failErr != nil {
				o.log.WithError(failErr).Warn("Failed to record run failure")
			}

			result.Duration = time.Since(run.StartTime)

			return result, err
		}

		switch st.name {
		case runlog.StageIngestion:
			result.RowsLoaded = rows
		case runlog.StageTransformation:
			result.RowsCleansed = rows
		}
	}

	if err := o.runLog.Complete(ctx, top, nil, "pipeline completed"); err != nil {
		return result, err
	}

	if err := o.runLog.CompleteRun(ctx, run.RunID, "pipeline completed"); err != nil {
		return result, fmt.Errorf("completing run: %w", err)
	}

	result.Duration = time.Since(run.StartTime)

	o.log.WithFields(logrus.Fields{
		"run_id":   run.RunID,
		"duration": result.Duration.Round(time.Millisecond),
	}).Info("Pipeline completed")

	return result, nil
}

func (o *orchestrator) ExecuteIngestion(
	ctx context.Context, runID string,
) (*Result, error) {
	return o.executeSingle(ctx, runID, o.stages()[0])
}

func (o *orchestrator) ExecuteQuality(
	ctx context.Context, runID string,
) (*Result, error) {
	return o.executeSingle(ctx, runID, o.stages()[2])
}

// executeSingle runs one stage under an externally supplied run
// identifier and terminalizes that run.
func (o *orchestrator) executeSingle(
	ctx context.Context, runID string, st stage,
) (*Result, error) {
	run, err := o.runLog.AdoptRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("adopting run %s: %w", runID, err)
	}

	result := &Result{RunID: run.RunID}

	rows, err := o.runStage(ctx, run.RunID, st)

	result.Duration = time.Since(run.StartTime)

	if err != nil {
		if failErr := o.runLog.FailRun(ctx, run.RunID, err.Error()); failErr != nil {
			o.log.WithError(failErr).Warn("Failed to record run failure")
		}

		return result, err
	}

	if st.name == runlog.StageIngestion {
		result.RowsLoaded = rows
	}

	if err := o.runLog.CompleteRun(
		ctx, run.RunID, st.name+" stage completed",
	); err != nil {
		return result, fmt.Errorf("completing run: %w", err)
	}

	return result, nil
}

// runStage executes one stage with its own ledger entry.
func (o *orchestrator) runStage(
	ctx context.Context, runID string, st stage,
) (int64, error) {
	handle, err := o.runLog.Begin(ctx, runlog.BeginOpts{
		RunID:     runID,
		Stage:     st.name,
		Operation: st.name + "_stage",
	})
	if err != nil {
		return 0, err
	}

	log := o.log.WithFields(logrus.Fields{
		"run_id": runID,
		"stage":  st.name,
	})
	log.Info("Stage started")

	rows, err := st.run(ctx, runID)
	if err != nil {
		stageErr := &StageError{Stage: st.name, Err: err}

		if logErr := o.runLog.Fail(ctx, handle, stageErr.Error()); logErr != nil {
			log.WithError(logErr).Warn("Failed to record stage failure")
		}

		log.WithError(err).Error("Stage failed")

		return 0, stageErr
	}

	if err := o.runLog.Complete(ctx, handle, &rows, "stage completed"); err != nil {
		return rows, err
	}

	log.WithField("rows", rows).Info("Stage completed")

	return rows, nil
}
