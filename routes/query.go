package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"context-rag-platform/internal/config"
	"context-rag-platform/internal/telemetry"
	"context-rag-platform/middleware"
	"context-rag-platform/models"
	"context-rag-platform/services"
	"context-rag-platform/utils"
)

// CompletionProvider is the external completion port used to ground answers
// in retrieved chunks.
type CompletionProvider interface {
	Complete(ctx context.Context, prompt string, contextChunks []string) (string, error)
}

type QueryRequest struct {
	Query      string   `json:"query" binding:"required"`
	ContextIDs []string `json:"context_ids" binding:"required,min=1"`
	TopK       int      `json:"top_k"`
}

type QueryResponse struct {
	Answer    string                  `json:"answer"`
	Chunks    []models.RetrievedChunk `json:"chunks"`
	Citations []models.Citation       `json:"citations"`
}

// SetupQueryRoutes registers the multi-context question answering endpoint.
func SetupQueryRoutes(router *gin.Engine, cfg *config.Config, retriever *services.RetrieverService, completion CompletionProvider, metrics *telemetry.Metrics, authMiddleware *middleware.AuthMiddleware) {
	query := router.Group("/query")
	query.Use(authMiddleware.RequireAuth())

	query.POST("", func(c *gin.Context) {
		var req QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		contextIDs := make([]primitive.ObjectID, 0, len(req.ContextIDs))
		for _, raw := range req.ContextIDs {
			id, err := primitive.ObjectIDFromHex(raw)
			if err != nil {
				utils.RespondWithBadRequest(c, "Invalid context identifier", gin.H{"context_id": raw})
				return
			}
			contextIDs = append(contextIDs, id)
		}

		topK := req.TopK
		if topK <= 0 {
			topK = cfg.TopKPerContext
		}

		start := time.Now()
		chunks, citations, err := retriever.Retrieve(c.Request.Context(), req.Query, contextIDs, topK)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		if metrics != nil {
			metrics.RetrievalDuration.Record(c.Request.Context(), time.Since(start).Seconds())
		}

		// no relevant information is a valid outcome, not an error
		if len(chunks) == 0 {
			c.JSON(http.StatusOK, QueryResponse{
				Answer:    "No relevant information found in the selected contexts.",
				Chunks:    []models.RetrievedChunk{},
				Citations: []models.Citation{},
			})
			return
		}

		contents := make([]string, len(chunks))
		for i, ch := range chunks {
			contents[i] = ch.Content
		}
		answer, err := completion.Complete(c.Request.Context(), req.Query, contents)
		if err != nil {
			utils.RespondWithInternalError(c, "Completion failed", gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, QueryResponse{
			Answer:    answer,
			Chunks:    chunks,
			Citations: citations,
		})
	})
}
