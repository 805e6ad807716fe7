// Package registry implements the Pipeline Registry: the
// static map of pipeline id to human name to worker factory, populated
// once at startup and read thereafter.
package registry

import (
	"sort"
	"sync"

	"github.com/integritystudio/alephauto/internal/apperr"
	"github.com/integritystudio/alephauto/internal/domain"
)

// Registry is the single source of truth for which pipeline ids are live.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]domain.PipelineDescriptor
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{descriptors: make(map[string]domain.PipelineDescriptor)}
}

// Register adds a pipeline descriptor. Intended to be called only during
// startup, before any HTTP traffic or scheduler ticks are admitted.
func (r *Registry) Register(d domain.PipelineDescriptor) {
	if d.DefaultConcurrencyCost == 0 {
		d.DefaultConcurrencyCost = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors[d.ID] = d
}

// Resolve returns the descriptor for pipelineID or UnknownPipeline.
func (r *Registry) Resolve(pipelineID string) (domain.PipelineDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[pipelineID]
	if !ok {
		return domain.PipelineDescriptor{}, apperr.New(apperr.KindUnknownPipeline, pipelineID)
	}
	return d, nil
}

// HumanName returns the registered human name, falling back to the id
// itself for pipelines no longer registered.
func (r *Registry) HumanName(pipelineID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.descriptors[pipelineID]; ok && d.HumanName != "" {
		return d.HumanName
	}
	return pipelineID
}

// IDs returns every registered pipeline id, sorted for deterministic output.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.descriptors))
	for id := range r.descriptors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All returns every registered descriptor, sorted by id.
func (r *Registry) All() []domain.PipelineDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.PipelineDescriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
