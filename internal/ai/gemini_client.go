package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"
)

// TaskType selects the asymmetric embedding mode. Document and query
// embeddings live in the same space but are computed differently.
type TaskType string

const (
	TaskTypeDocument TaskType = "document"
	TaskTypeQuery    TaskType = "query"
)

// GeminiClient wraps the Gemini API for embeddings and completion with a
// circuit breaker and client-side rate limiting.
type GeminiClient struct {
	apiKey          string
	breaker         *gobreaker.CircuitBreaker
	rateLimiter     *rate.Limiter
	client          *genai.Client
	completionModel string
	dimension       int
	tier            string
}

type RateLimits struct {
	RPM int // Requests per minute
	TPM int // Tokens per minute
	RPD int // Requests per day
}

func NewGeminiClient(apiKey, completionModel string, dimension int, tier string) (*GeminiClient, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	limits := getRateLimits(tier)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	// RPM limit with some buffer
	rateLimiter := rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), limits.RPM/10)

	return &GeminiClient{
		apiKey:          apiKey,
		breaker:         breaker,
		rateLimiter:     rateLimiter,
		client:          client,
		completionModel: completionModel,
		dimension:       dimension,
		tier:            tier,
	}, nil
}

func getRateLimits(tier string) RateLimits {
	switch tier {
	case "free":
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	case "tier1":
		return RateLimits{RPM: 1000, TPM: 1000000, RPD: 10000}
	case "tier2":
		return RateLimits{RPM: 2000, TPM: 4000000, RPD: 50000}
	default:
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	}
}

// Dimension returns the vector dimension D produced by the embedding models
// this client is configured for.
func (gc *GeminiClient) Dimension() int {
	return gc.dimension
}

// Embed returns one embedding vector for the given text using the named
// embedding model. The task type is forwarded so asymmetric models retrieve
// correctly.
func (gc *GeminiClient) Embed(ctx context.Context, model, text string, task TaskType) ([]float32, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.embed_content")
	defer span.End()

	span.SetAttributes(
		attribute.String("gemini.model", model),
		attribute.String("gemini.task_type", string(task)),
		attribute.Int("gemini.text_length", len(text)),
	)

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		em := gc.client.EmbeddingModel(model)
		switch task {
		case TaskTypeQuery:
			em.TaskType = genai.TaskTypeRetrievalQuery
		default:
			em.TaskType = genai.TaskTypeRetrievalDocument
		}

		resp, err := em.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return nil, err
		}
		if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
			return nil, errors.New("no embedding returned")
		}
		return resp.Embedding.Values, nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return nil, err
	}

	vec := result.([]float32)
	if gc.dimension > 0 && len(vec) != gc.dimension {
		return nil, fmt.Errorf("embedding dimension %d does not match configured dimension %d", len(vec), gc.dimension)
	}
	return vec, nil
}

// Complete generates an answer grounded in the retrieved context chunks.
func (gc *GeminiClient) Complete(ctx context.Context, prompt string, contextChunks []string) (string, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.generate_content")
	defer span.End()

	span.SetAttributes(
		attribute.Int("gemini.context_chunks", len(contextChunks)),
		attribute.String("gemini.model", gc.completionModel),
	)

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait failed: %w", err)
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		gm := gc.client.GenerativeModel(gc.completionModel)

		var sb strings.Builder
		if len(contextChunks) > 0 {
			sb.WriteString("Answer the question using the context below. Cite only facts from the context.\n\nContext:\n")
			for _, chunk := range contextChunks {
				sb.WriteString(chunk)
				sb.WriteString("\n---\n")
			}
			sb.WriteString("\nQuestion: ")
		}
		sb.WriteString(prompt)

		resp, err := gm.GenerateContent(ctx, genai.Text(sb.String()))
		if err != nil {
			return nil, err
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return nil, errors.New("no completion returned")
		}

		var out strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			if text, ok := part.(genai.Text); ok {
				out.WriteString(string(text))
			}
		}
		return out.String(), nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return "", err
	}

	return result.(string), nil
}

func (gc *GeminiClient) Close() error {
	return gc.client.Close()
}
