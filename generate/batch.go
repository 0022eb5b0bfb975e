package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/c360studio/casegen/dedup"
	"github.com/c360studio/casegen/llm"
	"github.com/c360studio/casegen/testcase"
)

// ErrNotFound reports an unknown batch or feature id.
var ErrNotFound = errors.New("not found")

// Feature status values.
const (
	StatusPending    = "pending"
	StatusGenerating = "generating"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Batch status values. A batch is partial when at least one feature failed
// and none are still running.
const (
	BatchRunning   = "running"
	BatchCompleted = "completed"
	BatchPartial   = "partial"
)

// Feature is the per-feature configuration submitted with a batch.
type Feature struct {
	FeatureName        string `json:"feature_name"`
	FeatureDescription string `json:"feature_description"`
	AllowedActions     string `json:"allowed_actions,omitempty"`
	ExcludedFeatures   string `json:"excluded_features,omitempty"`
	CoverageLevel      string `json:"coverage_level,omitempty"`
}

// FeatureResult is the externally visible state of one batch feature.
type FeatureResult struct {
	FeatureID   string              `json:"feature_id"`
	FeatureName string              `json:"feature_name"`
	Status      string              `json:"status"`
	Items       []testcase.TestCase `json:"items,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// BatchSnapshot is a point-in-time view of a batch.
type BatchSnapshot struct {
	BatchID  string          `json:"batch_id"`
	Status   string          `json:"status"`
	Features []FeatureResult `json:"features"`
}

// featureState is the mutable per-feature record. epoch increments on every
// retry so a superseded run cannot overwrite the result of a newer one.
type featureState struct {
	id     string
	name   string
	status string
	items  []testcase.TestCase
	err    string
	epoch  int
	config Feature
}

type batchState struct {
	id           string
	status       string
	order        []string
	features     map[string]*featureState
	provider     string
	modelProfile string
	modelID      string
}

// Service coordinates single-feature and batch generation over a shared
// store. Batch features run concurrently; a failure in one never cancels
// its siblings.
type Service struct {
	pipeline *Pipeline
	store    *testcase.Store
	logger   *slog.Logger

	mu      sync.Mutex
	batches map[string]*batchState
}

// NewService creates a coordinator over a pipeline and a store.
func NewService(pipeline *Pipeline, store *testcase.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		pipeline: pipeline,
		store:    store,
		logger:   logger,
		batches:  make(map[string]*batchState),
	}
}

// Generate runs the pipeline for one feature and stores the results.
func (s *Service) Generate(ctx context.Context, req Request) ([]testcase.TestCase, error) {
	started := time.Now()
	cases, err := s.pipeline.Run(ctx, req)
	observeFeature(time.Since(started), err)
	if err != nil {
		return nil, err
	}
	for _, tc := range cases {
		s.store.Put(tc)
	}
	return cases, nil
}

// StartBatch registers the features, launches their generations, and
// returns the batch id immediately. Progress is observed via BatchStatus.
// The runs are detached from the caller's cancellation: an HTTP client
// dropping the start request must not kill the batch.
func (s *Service) StartBatch(ctx context.Context, provider string, features []Feature, modelProfile, modelID string) (string, error) {
	if len(features) == 0 {
		return "", errors.New("batch requires at least one feature")
	}
	if modelID != "" && provider == "" {
		provider = llm.ProviderForModel(modelID)
	}

	batch := &batchState{
		id:           uuid.NewString(),
		status:       BatchRunning,
		features:     make(map[string]*featureState, len(features)),
		provider:     provider,
		modelProfile: modelProfile,
		modelID:      modelID,
	}
	for _, cfg := range features {
		fs := &featureState{
			id:     uuid.NewString(),
			name:   cfg.FeatureName,
			status: StatusPending,
			config: cfg,
		}
		batch.order = append(batch.order, fs.id)
		batch.features[fs.id] = fs
	}

	s.mu.Lock()
	s.batches[batch.id] = batch
	s.mu.Unlock()

	s.logger.Info("Batch started",
		"batch_id", batch.id,
		"features", len(features),
		"provider", provider)

	runCtx := context.WithoutCancel(ctx)
	go func() {
		g := new(errgroup.Group)
		for _, fid := range batch.order {
			g.Go(func() error {
				s.runFeature(runCtx, batch.id, fid, 0)
				return nil
			})
		}
		g.Wait()
		s.mu.Lock()
		s.updateBatchStatusLocked(batch)
		s.mu.Unlock()
	}()

	return batch.id, nil
}

// runFeature executes one feature of a batch. epoch must match the feature
// state for the results to land; a stale run writes nothing.
func (s *Service) runFeature(ctx context.Context, batchID, featureID string, epoch int) {
	s.mu.Lock()
	batch, ok := s.batches[batchID]
	if !ok {
		s.mu.Unlock()
		return
	}
	fs, ok := batch.features[featureID]
	if !ok || fs.epoch != epoch {
		s.mu.Unlock()
		return
	}
	fs.status = StatusGenerating
	req := Request{
		FeatureName:        fs.config.FeatureName,
		FeatureDescription: fs.config.FeatureDescription,
		AllowedActions:     fs.config.AllowedActions,
		ExcludedFeatures:   fs.config.ExcludedFeatures,
		CoverageLevel:      fs.config.CoverageLevel,
		Provider:           batch.provider,
		ModelProfile:       batch.modelProfile,
		ModelID:            batch.modelID,
	}
	s.mu.Unlock()

	started := time.Now()
	cases, err := s.pipeline.Run(ctx, req)
	observeFeature(time.Since(started), err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if fs.epoch != epoch {
		// A retry superseded this run while it was in flight.
		s.logger.Debug("Discarding stale feature result",
			"batch_id", batchID,
			"feature_id", featureID)
		return
	}
	if err != nil {
		s.logger.Error("Batch feature failed",
			"batch_id", batchID,
			"feature_id", featureID,
			"feature_name", fs.name,
			"error", err)
		fs.status = StatusFailed
		fs.err = err.Error()
		fs.items = nil
	} else {
		for _, tc := range cases {
			s.store.Put(tc)
		}
		fs.status = StatusCompleted
		fs.err = ""
		fs.items = cases
	}
	s.updateBatchStatusLocked(batch)
}

// updateBatchStatusLocked derives the batch status from its features.
// Caller holds the lock.
func (s *Service) updateBatchStatusLocked(batch *batchState) {
	completed, failed, running := 0, 0, 0
	for _, fs := range batch.features {
		switch fs.status {
		case StatusCompleted:
			completed++
		case StatusFailed:
			failed++
		case StatusPending, StatusGenerating:
			running++
		}
	}
	// A single failure marks the batch partial even while siblings are
	// still generating.
	switch {
	case completed == len(batch.features):
		batch.status = BatchCompleted
	case failed > 0:
		batch.status = BatchPartial
	case running > 0:
		batch.status = BatchRunning
	default:
		batch.status = BatchCompleted
	}
}

// BatchStatus returns a snapshot of a batch, or ErrNotFound.
func (s *Service) BatchStatus(batchID string) (BatchSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[batchID]
	if !ok {
		return BatchSnapshot{}, fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}
	snap := BatchSnapshot{
		BatchID:  batch.id,
		Status:   batch.status,
		Features: make([]FeatureResult, 0, len(batch.order)),
	}
	for _, fid := range batch.order {
		fs := batch.features[fid]
		items := make([]testcase.TestCase, len(fs.items))
		copy(items, fs.items)
		snap.Features = append(snap.Features, FeatureResult{
			FeatureID:   fs.id,
			FeatureName: fs.name,
			Status:      fs.status,
			Items:       items,
			Error:       fs.err,
		})
	}
	return snap, nil
}

// RetryFeature resets a failed (or any) feature and reruns it
// synchronously. The provider override, when non-empty, replaces the
// batch's provider for this and subsequent runs of the feature.
func (s *Service) RetryFeature(ctx context.Context, batchID, featureID, provider string) error {
	s.mu.Lock()
	batch, ok := s.batches[batchID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}
	fs, ok := batch.features[featureID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("feature %s: %w", featureID, ErrNotFound)
	}
	if provider != "" {
		batch.provider = provider
	}
	fs.status = StatusPending
	fs.err = ""
	fs.items = nil
	fs.epoch++
	epoch := fs.epoch
	s.updateBatchStatusLocked(batch)
	s.mu.Unlock()

	s.runFeature(ctx, batchID, featureID, epoch)
	return nil
}

// MergedCases concatenates all feature results of a batch in feature order,
// optionally removing near-duplicate titles across features.
func (s *Service) MergedCases(batchID string, dedupe bool) ([]testcase.TestCase, error) {
	s.mu.Lock()
	batch, ok := s.batches[batchID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}
	var all []testcase.TestCase
	for _, fid := range batch.order {
		all = append(all, batch.features[fid].items...)
	}
	s.mu.Unlock()

	if dedupe && len(all) > 0 {
		all = dedup.RemoveNearDuplicateTitles(all)
	}
	return all, nil
}

// Get returns a stored case by id.
func (s *Service) Get(id uuid.UUID) (testcase.TestCase, bool) {
	return s.store.Get(id)
}

// List returns every stored case in insertion order.
func (s *Service) List() []testcase.TestCase {
	return s.store.List()
}

// DeleteCase removes a case from the store and from every batch feature
// result referencing it.
func (s *Service) DeleteCase(id uuid.UUID) bool {
	if !s.store.Delete(id) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, batch := range s.batches {
		for _, fs := range batch.features {
			if len(fs.items) == 0 {
				continue
			}
			kept := fs.items[:0]
			for _, tc := range fs.items {
				if tc.ID != id {
					kept = append(kept, tc)
				}
			}
			fs.items = kept
		}
	}
	return true
}

// DirectRequest asks for templated cases from a plain requirement list,
// without any model involvement.
type DirectRequest struct {
	Project      string   `json:"project,omitempty"`
	Component    string   `json:"component"`
	Requirements []string `json:"requirements"`
	MaxCases     int      `json:"max_cases"`
	CreatedBy    string   `json:"created_by,omitempty"`
}

// GenerateFromRequirements produces one templated case per requirement, up
// to MaxCases, and stores them.
func (s *Service) GenerateFromRequirements(req DirectRequest) []testcase.TestCase {
	s.logger.Info("Generating test cases from requirements",
		"project", req.Project,
		"component", req.Component,
		"requirements", len(req.Requirements),
		"max_cases", req.MaxCases)

	var generated []testcase.TestCase
	for idx, requirement := range req.Requirements {
		if req.MaxCases > 0 && len(generated) >= req.MaxCases {
			break
		}
		tc := testcase.TestCase{
			ID:           uuid.New(),
			Scenario:     fmt.Sprintf("[%s] Requirement %d", req.Component, idx+1),
			Description:  strings.TrimSpace(requirement),
			Precondition: "System is in a stable state and all prerequisites are met.",
			TestData:     "As required to exercise the described requirement.",
			Steps: []string{
				"Review requirement: " + requirement,
				"Identify primary user flow and edge cases.",
				"Execute user flow in a controlled environment.",
				"Record observed behavior and compare with acceptance criteria.",
			},
			ExpectedResult: "System behavior matches the requirement and acceptance criteria " +
				"without regressions in related components.",
			CreatedAt: time.Now().UTC(),
			CreatedBy: req.CreatedBy,
		}
		s.store.Put(tc)
		generated = append(generated, tc)
	}
	return generated
}
