// Package ingest implements the bronze loader: it bulk-copies raw source
// files into the raw layer, one entity at a time, truncate-then-load.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethpandaops/pipelinoor/pkg/registry"
	"github.com/ethpandaops/pipelinoor/pkg/runlog"
	"github.com/ethpandaops/pipelinoor/pkg/store"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
)

// Loader loads raw source files into the raw layer.
type Loader interface {
	// Load ingests every registered source in order under the given run.
	// The first failing source aborts the rest. Returns total rows
	// loaded.
	Load(ctx context.Context, runID string) (int64, error)
}

// Compile-time interface check.
var _ Loader = (*loader)(nil)

type loader struct {
	log      logrus.FieldLogger
	registry registry.Registry
	store    store.Store
	runLog   runlog.Log
}

// NewLoader creates a bronze loader.
func NewLoader(
	log logrus.FieldLogger,
	reg registry.Registry,
	st store.Store,
	rl runlog.Log,
) Loader {
	return &loader{
		log:      log.WithField("component", "loader"),
		registry: reg,
		store:    st,
		runLog:   rl,
	}
}

func (l *loader) Load(ctx context.Context, runID string) (int64, error) {
	var total int64

	for _, src := range l.registry.Sources() {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, err := l.loadSource(ctx, runID, src)
		if err != nil {
			// Fail-fast: remaining sources are not attempted.
			return total, fmt.Errorf("entity %s: %w", src.Entity, err)
		}

		total += n
	}

	return total, nil
}

// loadSource truncates the entity's raw table and loads all rows from the
// source file, logging the operation begin-to-end.
func (l *loader) loadSource(
	ctx context.Context, runID string, src registry.Source,
) (int64, error) {
	handle, err := l.runLog.Begin(ctx, runlog.BeginOpts{
		RunID:          runID,
		Stage:          runlog.StageIngestion,
		Operation:      "load_" + src.Entity,
		Schema:         src.Schema,
		Entity:         src.Entity,
		SourceLocation: src.Location,
	})
	if err != nil {
		return 0, err
	}

	log := l.log.WithFields(logrus.Fields{
		"entity":   src.Entity,
		"location": src.Location,
	})
	log.Info("Loading source")

	rows, err := l.readFile(src)
	if err != nil {
		if logErr := l.runLog.Fail(ctx, handle, err.Error()); logErr != nil {
			log.WithError(logErr).Warn("Failed to record load failure")
		}

		return 0, err
	}

	loaded, err := l.store.ReplaceRaw(ctx, src.Entity, rows)
	if err != nil {
		if logErr := l.runLog.Fail(ctx, handle, err.Error()); logErr != nil {
			log.WithError(logErr).Warn("Failed to record load failure")
		}

		return 0, err
	}

	if err := l.runLog.Complete(
		ctx, handle, &loaded, fmt.Sprintf("loaded from %s", src.Location),
	); err != nil {
		return loaded, err
	}

	log.WithField("rows", loaded).Info("Source loaded")

	return loaded, nil
}

// readFile parses the source CSV into the entity's typed raw slice. The
// file must carry a header row; fields are comma-delimited. Values are
// kept verbatim, typing happens in the transform stage.
func (l *loader) readFile(src registry.Source) (any, error) {
	f, err := os.Open(src.Location)
	if err != nil {
		return nil, fmt.Errorf("opening source file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header row: %w", err)
	}

	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	var records []map[string]string

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("reading record %d: %w", len(records)+2, err)
		}

		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(record) {
				row[name] = record[i]
			}
		}

		records = append(records, row)
	}

	target, err := store.NewRawSlice(src.Entity)
	if err != nil {
		return nil, err
	}

	if err := mapstructure.Decode(records, target); err != nil {
		return nil, fmt.Errorf("decoding records: %w", err)
	}

	return target, nil
}
