package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"

	"github.com/codelens/indexcore/internal/errs"
)

// OpenAIProvider implements Provider against the OpenAI embeddings API.
type OpenAIProvider struct {
	client openai.Client
	model  string
	logger zerolog.Logger
}

const (
	OpenAIModelTextEmbedding3Small = "text-embedding-3-small"
	OpenAIModelTextEmbedding3Large = "text-embedding-3-large"

	OpenAIDimensionSmall = 1536
	OpenAIDimensionLarge = 3072
)

// NewOpenAIProvider constructs a provider bound to apiKey and model.
func NewOpenAIProvider(apiKey, model string, logger zerolog.Logger) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if model == "" {
		model = OpenAIModelTextEmbedding3Small
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))
	logger.Info().Str("model", model).Msg("openai embedding provider initialized")

	return &OpenAIProvider{client: client, model: model, logger: logger}, nil
}

// EmbedBatch sends the batch as a single array-of-strings request; OpenAI
// returns results in the same order as the input array.
func (o *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: o.model,
	})
	if err != nil {
		return nil, classifyOpenAIErr(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, &errs.PermanentError{Op: "openai.embed", Err: fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))}
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		e64 := d.Embedding
		e32 := make([]float32, len(e64))
		for j, v := range e64 {
			e32[j] = float32(v)
		}
		out[d.Index] = e32
	}
	return out, nil
}

func (o *OpenAIProvider) Dimensions() int {
	if o.model == OpenAIModelTextEmbedding3Large {
		return OpenAIDimensionLarge
	}
	return OpenAIDimensionSmall
}

func (o *OpenAIProvider) ModelName() string { return o.model }

// DefaultThreadCount stays modest; OpenAI's per-account rate limit is the
// real ceiling, not CPU count.
func (o *OpenAIProvider) DefaultThreadCount() int {
	n := runtime.NumCPU()
	if n > 8 {
		return 8
	}
	if n < 2 {
		return 2
	}
	return n
}

// classifyOpenAIErr maps the SDK's *openai.Error (which carries the HTTP
// status code) onto the shared retry taxonomy.
func classifyOpenAIErr(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return &errs.RateLimitedError{Op: "openai.embed", Err: err}
		case apiErr.StatusCode >= 500:
			return &errs.TransientError{Op: "openai.embed", Err: err}
		case apiErr.StatusCode == http.StatusUnauthorized, apiErr.StatusCode == http.StatusForbidden, apiErr.StatusCode == http.StatusBadRequest:
			return &errs.PermanentError{Op: "openai.embed", Err: err}
		}
	}
	// No status code to classify on (e.g. network failure): treat as
	// transient so the retry decorator gives it a chance to recover.
	return &errs.TransientError{Op: "openai.embed", Err: err}
}
