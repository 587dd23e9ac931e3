package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"context-rag-platform/internal/logger"
	"context-rag-platform/models"
	"context-rag-platform/services"
)

const (
	TaskProcessContext = "context:process"
)

type ContextProcessPayload struct {
	ContextID string `json:"context_id"`
	UserID    string `json:"user_id"`
	Reprocess bool   `json:"reprocess"`
}

// NewContextProcessTask builds the background task that runs the processing
// pipeline for one context.
func NewContextProcessTask(contextID, userID primitive.ObjectID, reprocess bool) (*asynq.Task, error) {
	payload, err := json.Marshal(ContextProcessPayload{
		ContextID: contextID.Hex(),
		UserID:    userID.Hex(),
		Reprocess: reprocess,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskProcessContext,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Minute),
		asynq.Queue("default"),
	), nil
}

// TaskProcessor handles queued work on the worker pool.
type TaskProcessor struct {
	pipeline *services.PipelineService
	versions *services.VersionManagerService
}

func NewTaskProcessor(pipeline *services.PipelineService, versions *services.VersionManagerService) *TaskProcessor {
	return &TaskProcessor{
		pipeline: pipeline,
		versions: versions,
	}
}

// ProcessContext runs the pipeline and snapshots a version on success.
// Terminal outcomes (bad payload, already processing, pipeline-level
// failures recorded on the context) skip asynq's retry; retrying would
// either duplicate work or re-fail the same way.
func (p *TaskProcessor) ProcessContext(ctx context.Context, t *asynq.Task) error {
	var payload ContextProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	contextID, err := primitive.ObjectIDFromHex(payload.ContextID)
	if err != nil {
		return fmt.Errorf("bad context id %q: %w", payload.ContextID, asynq.SkipRetry)
	}
	userID, err := primitive.ObjectIDFromHex(payload.UserID)
	if err != nil {
		return fmt.Errorf("bad user id %q: %w", payload.UserID, asynq.SkipRetry)
	}

	logger.Info("Processing context", "context_id", payload.ContextID, "reprocess", payload.Reprocess)

	if payload.Reprocess {
		err = p.pipeline.Reprocess(ctx, contextID)
	} else {
		err = p.pipeline.Process(ctx, contextID)
	}
	if err != nil {
		if errors.Is(err, models.ErrAlreadyProcessing) {
			logger.Warn("Context already processing, dropping duplicate task", "context_id", payload.ContextID)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		if errors.Is(err, models.ErrPipeline) || errors.Is(err, models.ErrContextNotFound) {
			// already recorded on the context; terminal until explicit reprocess
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	description := "Processed uploaded documents"
	if payload.Reprocess {
		description = "Reprocessed all documents"
	}
	if _, err := p.versions.CreateVersion(ctx, contextID, userID, description, false, map[string]any{
		"trigger": "pipeline",
	}); err != nil {
		logger.Error("Failed to snapshot version after processing", "context_id", payload.ContextID, "error", err)
	}
	return nil
}
