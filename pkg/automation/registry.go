// Package automation runs the extract and load documents: each source or
// target is handed to the connector registered for its type.
package automation

import (
	"context"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/route1io/connectors/pkg/config"
	"github.com/route1io/connectors/pkg/errors"
	"github.com/route1io/connectors/pkg/logger"
)

// Step is one source or target resolved against the working directory.
type Step struct {
	Name   string
	Type   string
	Path   string
	Params config.Params
	// Suffix is the compression extension appended to Path before a load,
	// or "".
	Suffix string
}

// ObjectName returns the remote name for a step: the param named key plus
// Suffix, or the base name of Path when the param is empty.
func (s Step) ObjectName(key string) string {
	if name := s.Params.String(key); name != "" {
		return name + s.Suffix
	}
	return filepath.Base(s.Path)
}

// Extractor writes one source to step.Path.
type Extractor interface {
	Extract(ctx context.Context, step Step) error
}

// Loader sends the file at step.Path to one target.
type Loader interface {
	Load(ctx context.Context, step Step) error
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, step Step) error

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, step Step) error { return f(ctx, step) }

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, step Step) error

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, step Step) error { return f(ctx, step) }

// ExtractorFactory builds an Extractor from the environment settings.
type ExtractorFactory func(ctx context.Context, settings *config.Settings) (Extractor, error)

// LoaderFactory builds a Loader from the environment settings.
type LoaderFactory func(ctx context.Context, settings *config.Settings) (Loader, error)

// Registry maps source and target types to connector factories.
type Registry struct {
	mu         sync.RWMutex
	extractors map[string]ExtractorFactory
	loaders    map[string]LoaderFactory
	logger     *zap.Logger
}

var defaultRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		extractors: make(map[string]ExtractorFactory),
		loaders:    make(map[string]LoaderFactory),
		logger:     logger.With(zap.String("component", "automation_registry")),
	}
}

// Default returns the registry the built-in connectors register with.
func Default() *Registry {
	return defaultRegistry
}

// RegisterExtractor registers factory for sourceType.
func (r *Registry) RegisterExtractor(sourceType string, factory ExtractorFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.extractors[sourceType]; exists {
		return errors.Newf(errors.ErrorTypeConfig, "extractor %s already registered", sourceType)
	}
	r.extractors[sourceType] = factory
	r.logger.Debug("extractor registered", zap.String("type", sourceType))
	return nil
}

// RegisterLoader registers factory for targetType.
func (r *Registry) RegisterLoader(targetType string, factory LoaderFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.loaders[targetType]; exists {
		return errors.Newf(errors.ErrorTypeConfig, "loader %s already registered", targetType)
	}
	r.loaders[targetType] = factory
	r.logger.Debug("loader registered", zap.String("type", targetType))
	return nil
}

// CreateExtractor builds the extractor for sourceType.
func (r *Registry) CreateExtractor(ctx context.Context, sourceType string, settings *config.Settings) (Extractor, error) {
	r.mu.RLock()
	factory, exists := r.extractors[sourceType]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.Newf(errors.ErrorTypeConfig, "no extractor defined for source type %q", sourceType)
	}
	return factory(ctx, settings)
}

// CreateLoader builds the loader for targetType.
func (r *Registry) CreateLoader(ctx context.Context, targetType string, settings *config.Settings) (Loader, error) {
	r.mu.RLock()
	factory, exists := r.loaders[targetType]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.Newf(errors.ErrorTypeConfig, "no loader defined for target type %q", targetType)
	}
	return factory(ctx, settings)
}

// Extractors lists the registered source types in sorted order.
func (r *Registry) Extractors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.extractors)
}

// Loaders lists the registered target types in sorted order.
func (r *Registry) Loaders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.loaders)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func mustRegisterExtractor(sourceType string, factory ExtractorFactory) {
	if err := defaultRegistry.RegisterExtractor(sourceType, factory); err != nil {
		panic(err)
	}
}

func mustRegisterLoader(targetType string, factory LoaderFactory) {
	if err := defaultRegistry.RegisterLoader(targetType, factory); err != nil {
		panic(err)
	}
}
