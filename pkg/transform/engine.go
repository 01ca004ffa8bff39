// Package transform implements the cleansing stage: a closed catalog of
// per-entity rules that reads the raw layer and fully rewrites the
// cleansed layer.
package transform

import (
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/pipelinoor/pkg/runlog"
	"github.com/ethpandaops/pipelinoor/pkg/store"
	"github.com/sirupsen/logrus"
)

// Engine runs the transformation stage.
type Engine interface {
	// Transform cleanses every entity in catalog order under the given
	// run. The first failing entity aborts the rest. Returns total
	// cleansed rows written.
	Transform(ctx context.Context, runID string) (int64, error)
}

// EntityTransform binds an entity to its transform. The compute function
// is a pure function of the raw snapshot; entities never read each
// other's cleansed output mid-stage.
type EntityTransform struct {
	Entity  string
	Compute func(ctx context.Context) (any, error)
}

// Compile-time interface check.
var _ Engine = (*engine)(nil)

type engine struct {
	log    logrus.FieldLogger
	store  store.Store
	runLog runlog.Log
	now    func() time.Time
}

// NewEngine creates a transform engine over the warehouse store.
func NewEngine(
	log logrus.FieldLogger, st store.Store, rl runlog.Log,
) Engine {
	return &engine{
		log:    log.WithField("component", "transform"),
		store:  st,
		runLog: rl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// catalog returns the entity transforms in processing order. Transforms
// are dispatched through this typed table, never by comparing entity
// name strings at call sites.
func (e *engine) catalog() []EntityTransform {
	return []EntityTransform{
		{
			Entity: store.EntityCRMCustomers,
			Compute: func(ctx context.Context) (any, error) {
				raw, err := e.store.RawCustomers(ctx)
				if err != nil {
					return nil, err
				}

				return TransformCustomers(raw), nil
			},
		},
		{
			Entity: store.EntityCRMProducts,
			Compute: func(ctx context.Context) (any, error) {
				raw, err := e.store.RawProducts(ctx)
				if err != nil {
					return nil, err
				}

				return TransformProducts(raw), nil
			},
		},
		{
			Entity: store.EntityCRMSales,
			Compute: func(ctx context.Context) (any, error) {
				raw, err := e.store.RawSales(ctx)
				if err != nil {
					return nil, err
				}

				return TransformSales(raw), nil
			},
		},
		{
			Entity: store.EntityERPCustomers,
			Compute: func(ctx context.Context) (any, error) {
				raw, err := e.store.RawERPCustomers(ctx)
				if err != nil {
					return nil, err
				}

				return TransformERPCustomers(raw, e.now()), nil
			},
		},
		{
			Entity: store.EntityERPLocations,
			Compute: func(ctx context.Context) (any, error) {
				raw, err := e.store.RawLocations(ctx)
				if err != nil {
					return nil, err
				}

				return TransformLocations(raw), nil
			},
		},
		{
			Entity: store.EntityERPProductCategories,
			Compute: func(ctx context.Context) (any, error) {
				raw, err := e.store.RawProductCategories(ctx)
				if err != nil {
					return nil, err
				}

				return TransformProductCategories(raw), nil
			},
		},
	}
}

func (e *engine) Transform(ctx context.Context, runID string) (int64, error) {
	var total int64

	for _, et := range e.catalog() {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, err := e.transformEntity(ctx, runID, et)
		if err != nil {
			// Fail-fast: remaining entities are not attempted.
			return total, fmt.Errorf("entity %s: %w", et.Entity, err)
		}

		total += n
	}

	return total, nil
}

// transformEntity rewrites one entity's cleansed snapshot from its raw
// snapshot, logging the operation begin-to-end.
func (e *engine) transformEntity(
	ctx context.Context, runID string, et EntityTransform,
) (int64, error) {
	handle, err := e.runLog.Begin(ctx, runlog.BeginOpts{
		RunID:     runID,
		Stage:     runlog.StageTransformation,
		Operation: "transform_" + et.Entity,
		Entity:    et.Entity,
	})
	if err != nil {
		return 0, err
	}

	log := e.log.WithField("entity", et.Entity)
	log.Info("Transforming entity")

	rows, err := et.Compute(ctx)
	if err != nil {
		if logErr := e.runLog.Fail(ctx, handle, err.Error()); logErr != nil {
			log.WithError(logErr).Warn("Failed to record transform failure")
		}

		return 0, err
	}

	written, err := e.store.ReplaceClean(ctx, et.Entity, rows)
	if err != nil {
		if logErr := e.runLog.Fail(ctx, handle, err.Error()); logErr != nil {
			log.WithError(logErr).Warn("Failed to record transform failure")
		}

		return 0, err
	}

	if err := e.runLog.Complete(ctx, handle, &written, "cleansed"); err != nil {
		return written, err
	}

	log.WithField("rows", written).Info("Entity transformed")

	return written, nil
}
