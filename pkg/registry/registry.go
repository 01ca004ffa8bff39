// Package registry resolves logical entity names to their raw source
// file locations. The pipeline only ever consumes the ordered source
// list; where the files come from is the operator's concern.
package registry

import (
	"fmt"
	"os"

	"github.com/ethpandaops/pipelinoor/pkg/config"
	"github.com/ethpandaops/pipelinoor/pkg/store"
	"github.com/sirupsen/logrus"
)

// Source is one (entity, location) registration.
type Source struct {
	Entity   string
	Schema   string
	Location string
}

// Registry supplies the ordered source list for the ingestion stage.
type Registry interface {
	// Sources returns all registered sources in load order.
	Sources() []Source
}

// Compile-time interface check.
var _ Registry = (*registry)(nil)

type registry struct {
	log     logrus.FieldLogger
	sources []Source
}

// NewFromConfig builds a Registry from the configured source list. Every
// entity must be part of the fixed catalog and every location must exist
// on disk; the orchestrator never discovers this mid-run.
func NewFromConfig(
	log logrus.FieldLogger, sources []config.SourceConfig,
) (Registry, error) {
	resolved := make([]Source, 0, len(sources))

	for _, src := range sources {
		if !store.KnownEntity(src.Entity) {
			return nil, fmt.Errorf("source %q: not in the entity catalog", src.Entity)
		}

		if _, err := os.Stat(src.Location); err != nil {
			return nil, fmt.Errorf("source %q: location %s: %w", src.Entity, src.Location, err)
		}

		resolved = append(resolved, Source{
			Entity:   src.Entity,
			Schema:   src.Schema,
			Location: src.Location,
		})
	}

	log.WithField("component", "registry").
		WithField("sources", len(resolved)).
		Debug("Source registry resolved")

	return &registry{
		log:     log.WithField("component", "registry"),
		sources: resolved,
	}, nil
}

func (r *registry) Sources() []Source {
	return r.sources
}
