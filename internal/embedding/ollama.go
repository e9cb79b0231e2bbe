package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"runtime"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"

	"github.com/codelens/indexcore/internal/errs"
)

// OllamaProvider implements Provider against a local Ollama server. Runs
// entirely on the caller's machine; no text ever leaves it.
type OllamaProvider struct {
	client *api.Client
	model  string
	logger zerolog.Logger
}

const (
	DefaultOllamaModel = "bge-m3"

	OllamaNomicDimension = 768  // nomic-embed-text: 2K context, fastest
	OllamaBGEM3Dimension = 1024 // bge-m3: 8K context, best quality (recommended)
	OllamaMxbaiDimension = 1024 // mxbai-embed-large: 512 token context
)

// NewOllamaProvider dials ollamaURL and confirms model is pulled.
func NewOllamaProvider(ollamaURL, model string, logger zerolog.Logger) (*OllamaProvider, error) {
	if ollamaURL == "" {
		ollamaURL = "http://localhost:11434"
	}
	if model == "" {
		model = DefaultOllamaModel
	}

	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama URL: %w", err)
	}

	p := &OllamaProvider{
		client: api.NewClient(parsedURL, http.DefaultClient),
		model:  model,
		logger: logger,
	}

	if err := p.verifyModel(context.Background()); err != nil {
		return nil, fmt.Errorf("verify ollama model: %w", err)
	}

	logger.Info().Str("model", model).Str("url", ollamaURL).Msg("ollama embedding provider initialized")
	return p, nil
}

// EmbedBatch sends the whole batch to Ollama's /api/embed endpoint, which
// accepts a list of inputs natively.
func (o *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(len(texts))*15*time.Second)
	defer cancel()

	start := time.Now()
	req := &api.EmbedRequest{Model: o.model, Input: texts}

	resp, err := o.client.Embed(ctx, req)
	if err != nil {
		o.logger.Warn().Dur("duration", time.Since(start)).Int("batch", len(texts)).Err(err).Msg("ollama embedding failed")
		return nil, classifyOllamaErr(err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, &errs.PermanentError{Op: "ollama.embed", Err: fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings))}
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, e64 := range resp.Embeddings {
		e32 := make([]float32, len(e64))
		for j, v := range e64 {
			e32[j] = float32(v)
		}
		out[i] = e32
	}

	if d := time.Since(start); d > 5*time.Second {
		o.logger.Warn().Dur("duration", d).Int("batch", len(texts)).Msg("slow ollama embedding batch")
	}
	return out, nil
}

// Dimensions returns the embedding dimension for the configured model.
// Unknown models are assumed to be 1024-dimensional, matching most modern
// embedding models; update this table when configuring a new model.
func (o *OllamaProvider) Dimensions() int {
	switch o.model {
	case "bge-m3", "bge-m3:latest":
		return OllamaBGEM3Dimension
	case "mxbai-embed-large", "mxbai-embed-large:latest":
		return OllamaMxbaiDimension
	case "nomic-embed-text", "nomic-embed-text:latest":
		return OllamaNomicDimension
	default:
		o.logger.Warn().Str("model", o.model).Int("assumed_dimensions", 1024).Msg("unknown model, assuming 1024 dimensions")
		return 1024
	}
}

func (o *OllamaProvider) ModelName() string { return o.model }

// DefaultThreadCount is conservative: Ollama serves one request at a time
// per GPU slot on most local setups, so oversubscribing goroutines just
// queues them behind each other without raising throughput.
func (o *OllamaProvider) DefaultThreadCount() int {
	n := runtime.NumCPU() / 2
	if n < 1 {
		return 1
	}
	if n > 4 {
		return 4
	}
	return n
}

func (o *OllamaProvider) verifyModel(ctx context.Context) error {
	listResp, err := o.client.List(ctx)
	if err != nil {
		return fmt.Errorf("list ollama models: %w", err)
	}
	for _, m := range listResp.Models {
		if m.Name == o.model || m.Name == o.model+":latest" {
			return nil
		}
	}
	return fmt.Errorf("model %s not found in ollama, run: ollama pull %s", o.model, o.model)
}

// classifyOllamaErr has no reliable status-code surface from the ollama
// client, so a connection failure is treated as transient (the server may
// simply be warming up) rather than permanent.
func classifyOllamaErr(err error) error {
	return &errs.TransientError{Op: "ollama.embed", Err: err}
}
