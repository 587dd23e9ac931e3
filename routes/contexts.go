package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"context-rag-platform/internal/config"
	"context-rag-platform/internal/logger"
	"context-rag-platform/internal/queue"
	"context-rag-platform/internal/store"
	"context-rag-platform/middleware"
	"context-rag-platform/models"
	"context-rag-platform/services"
	"context-rag-platform/utils"
)

type CreateContextRequest struct {
	Name           string         `json:"name" binding:"required"`
	SourceType     string         `json:"source_type" binding:"required"`
	ChunkStrategy  string         `json:"chunk_strategy"`
	EmbeddingModel string         `json:"embedding_model"`
	Config         map[string]any `json:"config"`
}

// SetupContextRoutes registers context CRUD, document upload, and processing
// endpoints.
func SetupContextRoutes(router *gin.Engine, cfg *config.Config, st store.Store, storage *services.FileStorageService, indexes *services.VectorIndexService, queueClient *asynq.Client, authMiddleware *middleware.AuthMiddleware) {
	contexts := router.Group("/contexts")
	contexts.Use(authMiddleware.RequireAuth())

	contexts.POST("", func(c *gin.Context) {
		var req CreateContextRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}
		if req.ChunkStrategy == "" {
			req.ChunkStrategy = models.StrategyFixedSize
		}
		if req.EmbeddingModel == "" {
			req.EmbeddingModel = cfg.EmbeddingModel
		}
		if !models.ValidChunkStrategy(req.ChunkStrategy) {
			utils.RespondWithBadRequest(c, "Unknown chunk strategy", gin.H{"chunk_strategy": req.ChunkStrategy})
			return
		}
		if !models.ValidSourceType(req.SourceType) {
			utils.RespondWithBadRequest(c, "Unknown source type", gin.H{"source_type": req.SourceType})
			return
		}
		if err := models.ValidateSourceConfig(req.SourceType, req.Config); err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		ctx := &models.Context{
			Name:           req.Name,
			UserID:         middleware.GetUserID(c),
			SourceType:     req.SourceType,
			ChunkStrategy:  req.ChunkStrategy,
			EmbeddingModel: req.EmbeddingModel,
			Config:         req.Config,
			Status:         models.StatusPending,
		}
		if err := st.CreateContext(c.Request.Context(), ctx); err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusCreated, ctx)
	})

	contexts.GET("", func(c *gin.Context) {
		list, err := st.ListContexts(c.Request.Context())
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"contexts": list, "count": len(list)})
	})

	contexts.GET("/:id", func(c *gin.Context) {
		id, ok := parseObjectID(c, "id")
		if !ok {
			return
		}
		ctx, err := st.GetContext(c.Request.Context(), id)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, ctx)
	})

	// the poll endpoint for background processing
	contexts.GET("/:id/status", func(c *gin.Context) {
		id, ok := parseObjectID(c, "id")
		if !ok {
			return
		}
		ctx, err := st.GetContext(c.Request.Context(), id)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, ctx.StatusSurface())
	})

	contexts.DELETE("/:id", func(c *gin.Context) {
		id, ok := parseObjectID(c, "id")
		if !ok {
			return
		}
		ctx, err := st.GetContext(c.Request.Context(), id)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		if err := st.DeleteContext(c.Request.Context(), id); err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		if ctx.IndexPath != "" {
			if err := indexes.Delete(ctx.IndexPath); err != nil {
				logger.Warn("Failed to delete index for removed context", "context_id", id.Hex(), "error", err)
			}
		}
		if err := storage.DeleteContextFiles(id.Hex()); err != nil {
			logger.Warn("Failed to delete files for removed context", "context_id", id.Hex(), "error", err)
		}
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	})

	contexts.GET("/:id/documents", func(c *gin.Context) {
		id, ok := parseObjectID(c, "id")
		if !ok {
			return
		}
		docs, err := st.ListDocuments(c.Request.Context(), id)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"documents": docs, "count": len(docs)})
	})

	contexts.POST("/:id/documents", func(c *gin.Context) {
		id, ok := parseObjectID(c, "id")
		if !ok {
			return
		}
		if _, err := st.GetContext(c.Request.Context(), id); err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		if err := c.Request.ParseMultipartForm(cfg.MaxFileSize); err != nil {
			utils.RespondWithBadRequest(c, "File size exceeds maximum limit", nil)
			return
		}
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			utils.RespondWithBadRequest(c, "No file provided", nil)
			return
		}
		defer file.Close()

		path, hash, size, err := storage.Save(id.Hex(), header.Filename, file)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		// re-uploading identical content is a no-op
		existing, err := st.FindDocumentByHash(c.Request.Context(), id, hash)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		if existing != nil {
			c.JSON(http.StatusOK, gin.H{"document": existing, "duplicate": true})
			return
		}

		doc := &models.Document{
			ContextID:    id,
			Filename:     header.Filename,
			OriginalName: header.Filename,
			FilePath:     path,
			FileHash:     hash,
			FileSize:     size,
			Category:     services.DetectCategory(header.Filename),
		}
		if err := st.CreateDocument(c.Request.Context(), doc); err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"document": doc})
	})

	contexts.POST("/:id/process", enqueueProcessing(st, queueClient, false))
	contexts.POST("/:id/reprocess", enqueueProcessing(st, queueClient, true))
}

// taskEnqueuer is the slice of the asynq client surface the handlers need.
type taskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// enqueueProcessing dispatches pipeline work to the worker pool; the request
// returns immediately and the caller polls /status. A context already in
// processing is rejected, not queued twice.
func enqueueProcessing(st store.Store, queueClient taskEnqueuer, reprocess bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseObjectID(c, "id")
		if !ok {
			return
		}
		ctx, err := st.GetContext(c.Request.Context(), id)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		if ctx.Status == models.StatusProcessing {
			utils.RespondWithConflict(c, "A processing run is already active for this context")
			return
		}

		// The status surface must reflect the queued run right away, and a
		// stale error message from a prior failed run is cleared here.
		if err := st.UpdateStatus(c.Request.Context(), id, models.StatusPending, 0, ""); err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		task, err := queue.NewContextProcessTask(id, middleware.GetUserID(c), reprocess)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to build processing task", nil)
			return
		}
		if _, err := queueClient.Enqueue(task); err != nil {
			utils.RespondWithInternalError(c, "Failed to enqueue processing task", nil)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"status":  models.StatusPending,
			"message": "Processing queued; poll /contexts/:id/status",
		})
	}
}

func parseObjectID(c *gin.Context, param string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(param))
	if err != nil {
		utils.RespondWithBadRequest(c, "Invalid identifier", gin.H{param: c.Param(param)})
		return primitive.NilObjectID, false
	}
	return id, true
}
