// Package quality implements the rule-based quality gate over the
// cleansed layer. Evaluation is strictly sequential and fail-fast: the
// first violated rule aborts the gate and later rules are never
// evaluated.
package quality

import (
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/pipelinoor/pkg/runlog"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ViolationError reports a violated quality rule. A violation is an
// expected, first-class outcome of the gate, not a bug.
type ViolationError struct {
	Code   int
	Name   string
	Entity string
	Count  int64
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf(
		"rule %d (%s) on %s: %d violating rows",
		e.Code, e.Name, e.Entity, e.Count,
	)
}

// Gate evaluates the quality rule catalog.
type Gate interface {
	// Evaluate runs every rule in order under the given run, aborting on
	// the first violation. A *ViolationError is returned when a rule is
	// violated; any other error is an evaluation failure.
	Evaluate(ctx context.Context, runID string) error
}

// Compile-time interface check.
var _ Gate = (*gate)(nil)

type gate struct {
	log    logrus.FieldLogger
	db     *gorm.DB
	runLog runlog.Log
	now    func() time.Time
}

// NewGate creates a quality gate over the warehouse database.
func NewGate(log logrus.FieldLogger, db *gorm.DB, rl runlog.Log) Gate {
	return &gate{
		log:    log.WithField("component", "quality"),
		db:     db,
		runLog: rl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (g *gate) Evaluate(ctx context.Context, runID string) error {
	for _, rule := range Rules(g.now()) {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := g.evaluateRule(ctx, runID, rule); err != nil {
			// Fail-fast: later rules are never evaluated.
			return err
		}
	}

	g.log.Info("Quality gate passed")

	return nil
}

// evaluateRule runs one rule and records its outcome. Passing rules are
// logged individually; a failing rule is logged with its code and
// violation count before the error propagates.
func (g *gate) evaluateRule(
	ctx context.Context, runID string, rule Rule,
) error {
	handle, err := g.runLog.Begin(ctx, runlog.BeginOpts{
		RunID:     runID,
		Stage:     runlog.StageQuality,
		Operation: rule.Name,
		Entity:    rule.Entity,
	})
	if err != nil {
		return err
	}

	log := g.log.WithFields(logrus.Fields{
		"rule":   rule.Name,
		"code":   rule.Code,
		"entity": rule.Entity,
	})

	count, err := rule.Check(ctx, g.db)
	if err != nil {
		wrapped := fmt.Errorf("rule %d (%s): %w", rule.Code, rule.Name, err)

		if logErr := g.runLog.Fail(ctx, handle, wrapped.Error()); logErr != nil {
			log.WithError(logErr).Warn("Failed to record rule failure")
		}

		return wrapped
	}

	if count > 0 {
		violation := &ViolationError{
			Code:   rule.Code,
			Name:   rule.Name,
			Entity: rule.Entity,
			Count:  count,
		}

		if logErr := g.runLog.Fail(ctx, handle, violation.Error()); logErr != nil {
			log.WithError(logErr).Warn("Failed to record rule violation")
		}

		log.WithField("violations", count).Error("Quality rule violated")

		return violation
	}

	if err := g.runLog.Complete(ctx, handle, &count, "passed"); err != nil {
		return err
	}

	log.Debug("Quality rule passed")

	return nil
}
