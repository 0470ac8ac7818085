package embeddings

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/Stevenic/vectra-sub001/codec"
)

// retryDelays are the fixed waits applied after rate-limited responses
// before giving up and reporting StatusRateLimited.
var retryDelays = []time.Duration{2 * time.Second, 5 * time.Second}

// OpenAIOptions configure the OpenAI-compatible embeddings client.
type OpenAIOptions struct {
	// BaseURL of the API, without the trailing /embeddings.
	BaseURL string

	// Model is the embeddings model name.
	Model string

	// MaxTokens is the per-request input budget advertised to callers.
	MaxTokens int

	// RequestsPerSecond paces outgoing calls. Zero disables pacing.
	RequestsPerSecond float64

	// Dimensions optionally requests reduced-dimension output.
	Dimensions int

	// RetryDelays are the fixed waits between rate-limited attempts.
	// Nil means the default schedule.
	RetryDelays []time.Duration

	// HTTPClient overrides the default HTTP client.
	HTTPClient *http.Client

	// Codec encodes request and response bodies.
	Codec codec.Codec
}

// DefaultOpenAIOptions are the options used when none are overridden.
var DefaultOpenAIOptions = OpenAIOptions{
	BaseURL:   "https://api.openai.com/v1",
	Model:     "text-embedding-3-small",
	MaxTokens: 8000,
}

// OpenAI is an embeddings Model backed by an OpenAI-compatible API.
type OpenAI struct {
	opts    OpenAIOptions
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

// NewOpenAI creates an OpenAI embeddings client.
func NewOpenAI(apiKey string, optFns ...func(o *OpenAIOptions)) (*OpenAI, error) {
	opts := DefaultOpenAIOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if apiKey == "" {
		return nil, fmt.Errorf("embeddings: api key is required")
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if opts.RetryDelays == nil {
		opts.RetryDelays = retryDelays
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &OpenAI{
		opts:    opts,
		apiKey:  apiKey,
		client:  client,
		limiter: limiter,
	}, nil
}

// MaxTokens returns the per-request input budget.
func (o *OpenAI) MaxTokens() int {
	return o.opts.MaxTokens
}

type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// CreateEmbeddings embeds inputs in a single API call. Rate-limited
// responses are retried with fixed delays; if they persist, the response
// carries StatusRateLimited. Other API failures yield StatusError.
func (o *OpenAI) CreateEmbeddings(ctx context.Context, inputs []string) (*Response, error) {
	for attempt := 0; ; attempt++ {
		if o.limiter != nil {
			if err := o.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		status, body, err := o.post(ctx, inputs)
		if err != nil {
			return nil, err
		}

		if status == http.StatusTooManyRequests {
			if attempt < len(o.opts.RetryDelays) {
				select {
				case <-time.After(o.opts.RetryDelays[attempt]):
					continue
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			return &Response{
				Status:  StatusRateLimited,
				Message: "the embeddings API returned a rate limit error",
			}, nil
		}

		var parsed embeddingResponse
		if status < 200 || status >= 300 {
			message := fmt.Sprintf("the embeddings API returned status %d", status)
			if uErr := o.opts.Codec.Unmarshal(body, &parsed); uErr == nil && parsed.Error != nil {
				message = parsed.Error.Message
			}
			return &Response{Status: StatusError, Message: message}, nil
		}

		if err := o.opts.Codec.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("decode embeddings response: %w", err)
		}

		output := make([][]float32, len(parsed.Data))
		for _, d := range parsed.Data {
			if d.Index < 0 || d.Index >= len(output) {
				return nil, fmt.Errorf("embeddings response index %d out of range", d.Index)
			}
			output[d.Index] = d.Embedding
		}
		return &Response{Status: StatusSuccess, Output: output}, nil
	}
}

func (o *OpenAI) post(ctx context.Context, inputs []string) (int, []byte, error) {
	payload, err := o.opts.Codec.Marshal(embeddingRequest{
		Input:      inputs,
		Model:      o.opts.Model,
		Dimensions: o.opts.Dimensions,
	})
	if err != nil {
		return 0, nil, fmt.Errorf("encode embeddings request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.opts.BaseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("call embeddings API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read embeddings response: %w", err)
	}
	return resp.StatusCode, body, nil
}
