// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package weevil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/antflydb/weevil/lib/modelhub"
	"github.com/antflydb/weevil/lib/zsc"
	"github.com/jellydator/ttlcache/v3"
	khugot "github.com/knights-analytics/hugot"
	"go.uber.org/zap"
)

// ErrModelNotFound is returned when a requested model was never discovered.
// Model load failures are distinct: the model exists but could not be opened.
var ErrModelNotFound = errors.New("classifier model not found")

// ClassifierModelInfo holds metadata about a discovered classifier model (not loaded yet)
type ClassifierModelInfo struct {
	Name         string
	Path         string
	OnnxFilename string
	PoolSize     int
}

// loadedClassifier wraps a loaded classifier
type loadedClassifier struct {
	classifier zsc.Classifier
	config     zsc.Config
}

// ClassifierRegistry manages zero-shot classification models with lazy loading
// and TTL-based unloading
type ClassifierRegistry struct {
	modelsDir string
	session   *khugot.Session
	logger    *zap.Logger

	// Model discovery (paths only, not loaded)
	discovered map[string]*ClassifierModelInfo
	mu         sync.RWMutex

	// Loaded models with TTL cache
	cache *ttlcache.Cache[string, *loadedClassifier]

	// Reference counting to prevent eviction during active use
	refCounts   map[string]int
	refCountsMu sync.Mutex

	// Configuration
	keepAlive       time.Duration
	maxLoadedModels uint64
	poolSize        int
}

// ClassifierRegistryConfig configures the classifier registry
type ClassifierRegistryConfig struct {
	ModelsDir       string        // Root models directory (classifiers live in a subdirectory)
	KeepAlive       time.Duration // How long to keep models loaded (0 = forever)
	MaxLoadedModels uint64        // Max models in memory (0 = unlimited)
	PoolSize        int           // Number of concurrent pipelines per model (0 = default)
}

// NewClassifierRegistry creates a new lazy-loading classifier registry.
// The shared hugot session is required because the ONNX Runtime backend
// allows only one session per process.
func NewClassifierRegistry(
	config ClassifierRegistryConfig,
	session *khugot.Session,
	logger *zap.Logger,
) (*ClassifierRegistry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	keepAlive := config.KeepAlive
	if keepAlive == 0 {
		keepAlive = ttlcache.NoTTL // Never expire
	}

	poolSize := config.PoolSize
	if poolSize <= 0 {
		poolSize = min(runtime.NumCPU(), 4)
	}

	registry := &ClassifierRegistry{
		modelsDir:       config.ModelsDir,
		session:         session,
		logger:          logger,
		discovered:      make(map[string]*ClassifierModelInfo),
		refCounts:       make(map[string]int),
		keepAlive:       keepAlive,
		maxLoadedModels: config.MaxLoadedModels,
		poolSize:        poolSize,
	}

	cacheOpts := []ttlcache.Option[string, *loadedClassifier]{
		ttlcache.WithTTL[string, *loadedClassifier](keepAlive),
	}

	if config.MaxLoadedModels > 0 {
		cacheOpts = append(cacheOpts,
			ttlcache.WithCapacity[string, *loadedClassifier](config.MaxLoadedModels))
	}

	registry.cache = ttlcache.New(cacheOpts...)

	// Set up eviction callback to close unloaded models
	registry.cache.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *loadedClassifier]) {
		// Skip closing on manual deletion - Close() handles cleanup synchronously
		if reason == ttlcache.EvictionReasonDeleted {
			logger.Debug("Classifier model removed from cache (cleanup handled separately)",
				zap.String("model", item.Key()))
			return
		}

		reasonStr := "unknown"
		switch reason {
		case ttlcache.EvictionReasonExpired:
			reasonStr = "expired (keep-alive timeout)"
		case ttlcache.EvictionReasonCapacityReached:
			reasonStr = "capacity reached (LRU eviction)"
		}

		// Check if model is still in use (has active references)
		// Hold lock through check-and-action to prevent race with Release()
		registry.refCountsMu.Lock()
		refCount := registry.refCounts[item.Key()]
		if refCount > 0 {
			// Re-add while still holding lock to prevent race with Release()
			registry.cache.Set(item.Key(), item.Value(), registry.keepAlive)
			registry.refCountsMu.Unlock()
			logger.Warn("Preventing eviction of classifier model with active references",
				zap.String("model", item.Key()),
				zap.Int("refCount", refCount),
				zap.String("reason", reasonStr))
			return
		}
		registry.refCountsMu.Unlock()

		logger.Info("Evicting classifier model from cache",
			zap.String("model", item.Key()),
			zap.String("reason", reasonStr))
		if err := item.Value().classifier.Close(); err != nil {
			logger.Warn("Error closing evicted classifier model",
				zap.String("model", item.Key()),
				zap.Error(err))
		}
	})

	// Start cache cleanup goroutine
	go registry.cache.Start()

	// Discover models (but don't load them)
	if err := registry.discoverModels(); err != nil {
		registry.cache.Stop()
		return nil, err
	}

	logger.Info("Lazy classifier registry initialized",
		zap.Int("models_discovered", len(registry.discovered)),
		zap.Duration("keep_alive", keepAlive),
		zap.Uint64("max_loaded_models", config.MaxLoadedModels))

	return registry, nil
}

// discoverModels finds all classifier models in the models directory without loading them
func (r *ClassifierRegistry) discoverModels() error {
	if r.modelsDir == "" {
		r.logger.Info("No models directory configured")
		return nil
	}

	classifiersDir := filepath.Join(r.modelsDir, modelhub.ClassifiersDirName)
	if _, err := os.Stat(classifiersDir); os.IsNotExist(err) {
		r.logger.Warn("Classifier models directory does not exist",
			zap.String("dir", classifiersDir))
		return nil
	}

	discovered, err := modelhub.DiscoverModels(classifiersDir)
	if err != nil {
		return fmt.Errorf("discovering classifier models: %w", err)
	}

	for _, dm := range discovered {
		registryName := dm.Ref.FullName()

		// Validate the directory holds a usable zero-shot model
		if !zsc.IsZSCModel(dm.Path) {
			r.logger.Debug("Skipping non-classifier model",
				zap.String("dir", registryName))
			continue
		}

		r.logger.Info("Discovered classifier model (not loaded)",
			zap.String("name", registryName),
			zap.String("path", dm.Path),
			zap.String("onnx_file", dm.OnnxFilename))

		r.discovered[registryName] = &ClassifierModelInfo{
			Name:         registryName,
			Path:         dm.Path,
			OnnxFilename: dm.OnnxFilename,
			PoolSize:     r.poolSize,
		}
	}

	r.logger.Info("Classifier model discovery complete",
		zap.Int("models_discovered", len(r.discovered)))

	return nil
}

// Acquire returns a classifier by name and increments its reference count.
// The caller MUST call Release() when done to allow the model to be evicted.
// This prevents the model from being closed while in use.
func (r *ClassifierRegistry) Acquire(modelName string) (zsc.Classifier, error) {
	loaded, err := r.getLoaded(modelName)
	if err != nil {
		return nil, err
	}

	r.refCountsMu.Lock()
	r.refCounts[modelName]++
	count := r.refCounts[modelName]
	r.refCountsMu.Unlock()

	r.logger.Debug("Acquired classifier model",
		zap.String("model", modelName),
		zap.Int("refCount", count))

	return loaded.classifier, nil
}

// Release decrements the reference count for a model.
// Must be called after Acquire() when the caller is done using the classifier.
func (r *ClassifierRegistry) Release(modelName string) {
	r.refCountsMu.Lock()
	if r.refCounts[modelName] > 0 {
		r.refCounts[modelName]--
	}
	count := r.refCounts[modelName]
	r.refCountsMu.Unlock()

	r.logger.Debug("Released classifier model",
		zap.String("model", modelName),
		zap.Int("refCount", count))
}

// getLoaded gets or loads a model from cache
func (r *ClassifierRegistry) getLoaded(modelName string) (*loadedClassifier, error) {
	// Check cache first
	if item := r.cache.Get(modelName); item != nil {
		r.logger.Debug("Classifier cache hit", zap.String("model", modelName))
		return item.Value(), nil
	}

	// Check if model is discovered
	r.mu.RLock()
	info, ok := r.discovered[modelName]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, modelName)
	}

	// Load the model
	return r.loadModel(info)
}

// loadModel loads a classifier model from disk
func (r *ClassifierRegistry) loadModel(info *ClassifierModelInfo) (*loadedClassifier, error) {
	r.logger.Info("Loading classifier model on demand",
		zap.String("model", info.Name),
		zap.String("path", info.Path))

	start := time.Now()
	model, err := zsc.NewPooledHugotZSCWithSession(info.Path, info.PoolSize, r.session, r.logger.Named(info.Name))
	if err != nil {
		return nil, fmt.Errorf("loading classifier model %s: %w", info.Name, err)
	}
	RecordModelLoadDuration(info.Name, time.Since(start).Seconds())

	r.logger.Info("Successfully loaded classifier model",
		zap.String("name", info.Name),
		zap.Duration("load_time", time.Since(start)),
		zap.Int("poolSize", info.PoolSize))

	loaded := &loadedClassifier{
		classifier: model,
		config:     model.Config(),
	}

	// Add to cache
	r.cache.Set(info.Name, loaded, r.keepAlive)

	return loaded, nil
}

// List returns all available classifier model names (discovered, not necessarily loaded)
func (r *ClassifierRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.discovered))
	for name := range r.discovered {
		names = append(names, name)
	}
	return names
}

// ModelPath returns the on-disk directory of a discovered model.
func (r *ClassifierRegistry) ModelPath(modelName string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.discovered[modelName]
	if !ok {
		return "", false
	}
	return info.Path, true
}

// ListLoaded returns only the currently loaded classifier model names
func (r *ClassifierRegistry) ListLoaded() []string {
	return r.cache.Keys()
}

// IsLoaded returns whether a model is currently loaded in memory
func (r *ClassifierRegistry) IsLoaded(modelName string) bool {
	return r.cache.Has(modelName)
}

// Preload loads specified models at startup to avoid first-request latency
func (r *ClassifierRegistry) Preload(modelNames []string) error {
	if len(modelNames) == 0 {
		return nil
	}

	r.logger.Info("Preloading classifier models", zap.Strings("models", modelNames))

	var loaded, failed int
	for _, name := range modelNames {
		if _, err := r.getLoaded(name); err != nil {
			r.logger.Warn("Failed to preload classifier model",
				zap.String("model", name),
				zap.Error(err))
			failed++
		} else {
			loaded++
		}
	}

	r.logger.Info("Classifier model preloading complete",
		zap.Int("loaded", loaded),
		zap.Int("failed", failed))

	return nil
}

// Close closes all loaded models and stops the cache
func (r *ClassifierRegistry) Close() error {
	r.logger.Info("Closing classifier registry")

	// Close all loaded models
	for _, name := range r.cache.Keys() {
		if item := r.cache.Get(name); item != nil {
			if err := item.Value().classifier.Close(); err != nil {
				r.logger.Warn("Error closing classifier model",
					zap.String("model", name),
					zap.Error(err))
			}
			r.cache.Delete(name)
		}
	}

	// Stop the cache cleanup goroutine
	r.cache.Stop()

	return nil
}
