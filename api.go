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
	"net/http"
	"runtime"
	"time"

	"github.com/antflydb/weevil/lib/classification"
	"github.com/bytedance/sonic/decoder"
	"github.com/bytedance/sonic/encoder"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ClassifyRequest is the request body for POST /api/classify
type ClassifyRequest struct {
	// Text is the document to classify.
	Text string `json:"text"`

	// Categories overrides the built-in default category set.
	Categories []string `json:"categories,omitempty"`

	// Model selects a classifier by name; empty uses the node default.
	Model string `json:"model,omitempty"`
}

// ModelsResponse is the response for GET /api/models
type ModelsResponse struct {
	Classifiers []string `json:"classifiers"`
	Loaded      []string `json:"loaded"`
	Default     string   `json:"default,omitempty"`
}

// VersionResponse is the response for GET /api/version
type VersionResponse struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// NewWeevilAPI builds the HTTP handler for the weevil API.
func NewWeevilAPI(logger *zap.Logger, node *WeevilNode) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "Accept", "Origin"},
		MaxAge:         3600,
	}))

	// Health endpoints (outside /api prefix for k8s compatibility)
	r.Get("/healthz", node.handleHealthz)
	r.Get("/readyz", node.handleReadyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/classify", node.handleApiClassify)
		r.Get("/models", node.handleApiModels)
		r.Get("/version", node.handleApiVersion)
	})

	return r
}

// handleApiClassify classifies a document into categories
func (wn *WeevilNode) handleApiClassify(w http.ResponseWriter, r *http.Request) {
	defer func() { _ = r.Body.Close() }()

	if wn.registry == nil {
		http.Error(w, "classification not available: no models configured", http.StatusServiceUnavailable)
		return
	}

	// Apply backpressure via request queue
	release, err := wn.requestQueue.Acquire(r.Context())
	if err != nil {
		switch err {
		case ErrQueueFull:
			RecordQueueRejection()
			WriteQueueFullResponse(w, 5*time.Second)
		case ErrRequestTimeout:
			RecordQueueTimeout()
			WriteTimeoutResponse(w)
		default:
			// Context cancelled
			http.Error(w, "request cancelled", http.StatusRequestTimeout)
		}
		return
	}
	defer release()

	UpdateQueueMetrics(wn.requestQueue.Stats())

	var req ClassifyRequest
	if err := decoder.NewStreamDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("decoding request: %v", err), http.StatusBadRequest)
		return
	}

	if req.Text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	modelName := req.Model
	if modelName == "" {
		modelName = wn.defaultModel
	}
	if modelName == "" {
		http.Error(w, "model is required (no default model configured)", http.StatusBadRequest)
		return
	}

	RecordClassificationRequest(modelName)
	start := time.Now()

	result, err := wn.ClassifyDocument(r.Context(), modelName, req.Text, req.Categories)
	if err != nil {
		RecordRequestDuration("classify", modelName, "error", time.Since(start).Seconds())
		if errors.Is(err, ErrModelNotFound) {
			http.Error(w, fmt.Sprintf("model not found: %s", modelName), http.StatusNotFound)
			return
		}
		wn.logger.Error("Classification pipeline failed",
			zap.String("model", modelName),
			zap.Error(err))
		http.Error(w, "classification failed", http.StatusInternalServerError)
		return
	}

	status := "ok"
	if result.Error != "" {
		status = "error"
	}
	RecordRequestDuration("classify", modelName, status, time.Since(start).Seconds())
	RecordChunkClassifications(modelName, result.ChunksUsed)
	if result.FailedChunks > 0 {
		RecordChunkFailures(modelName, result.FailedChunks)
	}
	RecordAggregationMethod(string(result.AggregationMethod))

	w.Header().Set("Content-Type", "application/json")
	if err := encoder.NewStreamEncoder(w).Encode(result); err != nil {
		wn.logger.Error("encoding response", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// handleApiModels lists available classifier models
func (wn *WeevilNode) handleApiModels(w http.ResponseWriter, r *http.Request) {
	resp := ModelsResponse{
		Classifiers: []string{},
		Loaded:      []string{},
		Default:     wn.defaultModel,
	}

	if wn.registry != nil {
		resp.Classifiers = wn.registry.List()
		resp.Loaded = wn.registry.ListLoaded()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := encoder.NewStreamEncoder(w).Encode(resp); err != nil {
		wn.logger.Error("encoding response", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// handleApiVersion reports build information
func (wn *WeevilNode) handleApiVersion(w http.ResponseWriter, r *http.Request) {
	resp := VersionResponse{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := encoder.NewStreamEncoder(w).Encode(resp); err != nil {
		wn.logger.Error("encoding response", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// ClassifyDocument runs the full chunk-and-aggregate pipeline against a named
// model, with result caching and singleflight deduplication. An error return
// means the model could not be resolved; classification failures are reported
// inside the Result.
func (wn *WeevilNode) ClassifyDocument(
	ctx context.Context,
	modelName, text string,
	categories []string,
) (*classification.Result, error) {
	clf, err := wn.registry.Acquire(modelName)
	if err != nil {
		return nil, err
	}
	defer wn.registry.Release(modelName)

	dc, err := wn.documentClassifier(modelName, clf)
	if err != nil {
		return nil, err
	}

	key := classifyKey{
		Model:           modelName,
		Categories:      categories,
		MaxChunkTokens:  wn.splitterConfig.MaxChunkTokens,
		OverlapFraction: wn.splitterConfig.OverlapFraction,
		Text:            text,
	}

	result, cached := wn.classificationCache.Classify(ctx, key, func(ctx context.Context) *classification.Result {
		return dc.ClassifyDocument(ctx, text, categories)
	})
	if cached {
		wn.logger.Debug("Served classification from cache",
			zap.String("model", modelName))
	}
	return result, nil
}
