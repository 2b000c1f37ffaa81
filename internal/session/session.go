// Package session orchestrates one analysis batch: placeholder records for
// immediate feedback, concurrent inference calls, and reconciliation with the
// authoritative backend once all calls have settled.
package session

import (
	"context"
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/defectscan/defectscan-go/internal/errors"
	"github.com/defectscan/defectscan-go/internal/gateway"
	"github.com/defectscan/defectscan-go/internal/logging"
	"github.com/defectscan/defectscan-go/internal/mapper"
	"github.com/defectscan/defectscan-go/internal/model"
	"github.com/defectscan/defectscan-go/internal/store"
)

// Package-level logger specific to the session service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "session.log")
	serviceLevelVar.Set(slog.LevelDebug)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "session", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize session file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "session")
		closeLogger = func() error { return nil }
	}
}

// PendingLabel is shown on a placeholder while its analysis is in flight.
const PendingLabel = "Analyzing..."

// FailedLabel is shown on a record whose analysis failed.
const FailedLabel = "Error occurred"

// Orchestrator runs analysis batches against an inference provider and folds
// the outcomes into the store.
type Orchestrator struct {
	store    *store.Store
	provider gateway.InferenceProvider
	mapper   *mapper.Mapper
}

// Result summarizes a completed batch.
type Result struct {
	BatchToken string
	Analyzed   int
	Failed     int
}

// New constructs an Orchestrator.
func New(s *store.Store, provider gateway.InferenceProvider, m *mapper.Mapper) *Orchestrator {
	return &Orchestrator{store: s, provider: provider, mapper: m}
}

// Close releases the service log file.
func (o *Orchestrator) Close() {
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing session logger: %v", err)
		}
	}
}

// Analyze runs one batch over the given images. A project must be active or
// the whole batch aborts with no partial work. All placeholders are pushed
// before any network call starts; the inference calls then run concurrently
// with isolated per-image failure, and the batch ends with an unconditional
// reconciliation against the backend so newly persisted defects get their
// authoritative ids.
func (o *Orchestrator) Analyze(ctx context.Context, images []gateway.CapturedImage) (*Result, error) {
	if len(images) == 0 {
		return &Result{}, nil
	}

	projectID := o.store.ActiveProjectID()
	if projectID == 0 {
		logger.Warn("Analysis batch aborted, no active project", "images", len(images))
		return nil, errors.Newf("no active project, cannot start analysis").
			Category(errors.CategoryState).
			Component("session").
			Build()
	}

	batchToken := uuid.NewString()
	now := time.Now()
	logger.Info("Starting analysis batch", "batch", batchToken, "project_id", projectID, "images", len(images))

	// Fan-out setup: push every placeholder before the first network call so
	// the whole batch appears together.
	ids := make([]model.RecordID, len(images))
	for i := range images {
		ids[i] = model.NewLocalID()
		o.store.AddRecord(model.DefectRecord{
			ID:         ids[i],
			ImageURL:   images[i].SourceURL,
			Label:      PendingLabel,
			Confidence: 0,
			Room:       model.RoomGeneral,
			Timestamp:  now,
			Status:     model.StatusProcessing,
			BatchToken: batchToken,
		})
	}

	// Concurrent execution: wait for all to complete, no ordering guarantee,
	// one failure never cancels the siblings.
	var wg sync.WaitGroup
	var mu sync.Mutex
	result := Result{BatchToken: batchToken}

	for i := range images {
		wg.Add(1)
		go func(image gateway.CapturedImage, id model.RecordID) {
			defer wg.Done()

			inferred, err := o.provider.Analyze(ctx, image, projectID)
			if err != nil {
				logger.Error("Image analysis failed", "batch", batchToken, "filename", image.Filename, "error", err)
				o.markFailed(ctx, id)
				mu.Lock()
				result.Failed++
				mu.Unlock()
				return
			}

			mapped := o.mapper.FromInferenceResult(inferred, id, image.SourceURL)
			o.store.UpdateRecord(ctx, id, store.RecordUpdate{
				Label:      &mapped.Label,
				Confidence: &mapped.Confidence,
				Status:     &mapped.Status,
				Timestamp:  &mapped.Timestamp,
			})
			logger.Debug("Image analyzed", "batch", batchToken, "filename", image.Filename, "label", mapped.Label)
			mu.Lock()
			result.Analyzed++
			mu.Unlock()
		}(images[i], ids[i])
	}
	wg.Wait()

	// Reconciliation runs even when every analysis failed: defects the
	// backend persisted during inference must surface with real ids so later
	// edit/delete/report operations can address them.
	o.store.Reconcile(ctx, batchToken)

	logger.Info("Analysis batch finished", "batch", batchToken, "analyzed", result.Analyzed, "failed", result.Failed)
	return &result, nil
}

// markFailed flips a placeholder to the error state with the fixed
// user-facing label.
func (o *Orchestrator) markFailed(ctx context.Context, id model.RecordID) {
	label := FailedLabel
	status := model.StatusError
	o.store.UpdateRecord(ctx, id, store.RecordUpdate{
		Label:  &label,
		Status: &status,
	})
}
