package viz

import (
	"fmt"
	"sort"
	"strings"

	"server/internal/domain"
	"server/internal/infra"
)

// Constructor builds a fresh strategy instance.
type Constructor func() Strategy

// Registry maps visualization type names to strategy constructors. It is
// built once at process start and injected wherever strategies are needed;
// lookups for unknown names fail closed.
type Registry struct {
	strategies map[string]Constructor
}

// NewRegistry returns a registry pre-populated with the built-in strategies,
// each bound to the given text generator.
func NewRegistry(gen TextGenerator, logger infra.Logger) *Registry {
	r := &Registry{strategies: make(map[string]Constructor)}
	r.Register(TypeFlowchart, func() Strategy { return NewFlowchartStrategy(gen, logger) })
	r.Register(TypeMindmap, func() Strategy { return NewMindmapStrategy(gen, logger) })
	return r
}

// Register adds or replaces a strategy constructor. Names are
// case-insensitive.
func (r *Registry) Register(name string, ctor Constructor) {
	r.strategies[strings.ToLower(name)] = ctor
}

// Create instantiates the strategy registered under name. Unknown names
// return an error wrapping domain.ErrUnsupportedType.
func (r *Registry) Create(name string) (Strategy, error) {
	ctor, ok := r.strategies[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)",
			domain.ErrUnsupportedType, name, strings.Join(r.SupportedTypes(), ", "))
	}
	return ctor(), nil
}

// Supports reports whether name resolves to a registered strategy.
func (r *Registry) Supports(name string) bool {
	_, ok := r.strategies[strings.ToLower(name)]
	return ok
}

// SupportedTypes returns the registered type names, sorted for stable
// output.
func (r *Registry) SupportedTypes() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
