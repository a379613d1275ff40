package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"book-indexer/config"
	"book-indexer/pkg/logger"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/time/rate"
)

// ErrInputTooLarge is returned when an input exceeds the model context. It is
// never retried.
var ErrInputTooLarge = errors.New("embedding input too large")

type openAIEmbeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

type OpenAIEmbedder struct {
	client     openai.Client
	model      string
	dimensions int
	limiter    *rate.Limiter
}

type EmbedderConfig struct {
	Key        string
	BaseURL    string
	Model      string
	Dimensions int
	// Limiter is shared by every caller; nil means unlimited.
	Limiter *rate.Limiter
}

func NewOpenAIEmbedder(cfg EmbedderConfig) (*OpenAIEmbedder, error) {
	if cfg.Key == "" {
		return nil, errors.New("missing openai key")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.Key),
		// retries belong to the indexing policy
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &OpenAIEmbedder{
		client:     openai.NewClient(opts...),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		limiter:    limiter,
	}, nil
}

// NewOpenAIEmbedderFromConfig builds the embedder from config.Cfg.
func NewOpenAIEmbedderFromConfig() (*OpenAIEmbedder, error) {
	c := config.Cfg.OpenAI
	return NewOpenAIEmbedder(EmbedderConfig{
		Key:        c.Key,
		BaseURL:    c.BaseURL,
		Model:      c.EmbeddingModel,
		Dimensions: c.Dimensions,
		Limiter:    rate.NewLimiter(rate.Limit(c.RequestsPerSecond), 1),
	})
}

func (e *OpenAIEmbedder) Dimensions() int { return e.dimensions }

// Embed returns one vector per input, in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%v: rate limiter wait failed: %w", config.ModuleOpenAI, err)
	}

	logger.WithFields(map[string]interface{}{
		"model":      e.model,
		"batch_size": len(inputs),
	}).Debug("openai: embedding batch start")

	req := openAIEmbeddingRequest{Model: e.model, Input: inputs, Dimensions: e.dimensions}
	var out openAIEmbeddingResponse
	if err := e.client.Post(ctx, "embeddings", req, &out); err != nil {
		return nil, classify(err)
	}
	if out.Error != nil {
		return nil, classify(errors.New(out.Error.Message))
	}
	if len(out.Data) != len(inputs) {
		return nil, fmt.Errorf("%v: got %d embeddings for %d inputs", config.ModuleOpenAI, len(out.Data), len(inputs))
	}

	sort.Slice(out.Data, func(a, b int) bool { return out.Data[a].Index < out.Data[b].Index })
	vectors := make([][]float32, len(out.Data))
	for i := range out.Data {
		src := out.Data[i].Embedding
		vec := make([]float32, len(src))
		for k := range src {
			vec[k] = float32(src[k])
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func classify(err error) error {
	if IsInputTooLarge(err) {
		return fmt.Errorf("%w: %v", ErrInputTooLarge, err)
	}
	return err
}

// IsInputTooLarge reports whether err is the model context limit error.
func IsInputTooLarge(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrInputTooLarge) || strings.Contains(err.Error(), "maximum context length")
}
