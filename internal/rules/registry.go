// Package rules supplies validation and transformation rule sets and the registry
// of named custom predicates and transformations they may reference.
package rules

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bsvalues/PACS-DataBridge/internal/models"
)

// Predicate is a named custom validation check. A false result fails the rule.
type Predicate func(value string, rec *models.StagingRecord, args map[string]string) bool

// TransformFunc is a named custom transformation. It returns the new field value and
// may set other fields on rec. Returning an error leaves the field unchanged.
type TransformFunc func(value string, rec *models.StagingRecord, args map[string]string) (string, error)

// Registry holds named custom logic. It is safe for concurrent use.
type Registry struct {
	predicates map[string]Predicate
	transforms map[string]TransformFunc
	mu         sync.RWMutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		predicates: make(map[string]Predicate),
		transforms: make(map[string]TransformFunc),
	}
}

// RegisterPredicate adds or replaces a named predicate.
func (r *Registry) RegisterPredicate(name string, p Predicate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.predicates[name] = p
}

// RegisterTransform adds or replaces a named transformation.
func (r *Registry) RegisterTransform(name string, t TransformFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transforms[name] = t
}

// Predicate looks up a predicate by name.
func (r *Registry) Predicate(name string) (Predicate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.predicates[name]
	if !ok {
		return nil, fmt.Errorf("%w: predicate %q", ErrUnknownCustom, name)
	}
	return p, nil
}

// Transform looks up a transformation by name.
func (r *Registry) Transform(name string) (TransformFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transforms[name]
	if !ok {
		return nil, fmt.Errorf("%w: transformation %q", ErrUnknownCustom, name)
	}
	return t, nil
}

// Names lists registered predicate and transformation names, sorted.
func (r *Registry) Names() (predicates, transforms []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name := range r.predicates {
		predicates = append(predicates, name)
	}
	for name := range r.transforms {
		transforms = append(transforms, name)
	}
	sort.Strings(predicates)
	sort.Strings(transforms)
	return predicates, transforms
}
