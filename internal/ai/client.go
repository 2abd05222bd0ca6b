// Package ai implements the LLM provider client used for insight generation.
// It speaks the OpenAI-compatible chat completions protocol.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/wenjiaqi8255/context-me/internal/models"
	"github.com/wenjiaqi8255/context-me/internal/observability"
)

var (
	// ErrProvider is returned on non-2xx or malformed provider responses
	ErrProvider = errors.New("llm provider request failed")

	// ErrProviderTimeout is returned when the provider call exceeds the
	// configured deadline
	ErrProviderTimeout = errors.New("llm provider request timed out")

	// ErrProviderUnavailable is returned while the circuit breaker is open
	ErrProviderUnavailable = errors.New("llm provider temporarily unavailable")
)

// Provider generates insights from a user profile and a content analysis.
// Implementations may be slow (seconds); callers bound them with contexts.
type Provider interface {
	Generate(ctx context.Context, profile *models.UserProfile, analysis *models.ContentAnalysis) (*GenerateResult, error)
}

// GenerateResult is the provider's output: the raw completion text, token
// accounting, and the parsed view of the text (structured when the model
// returned the requested JSON, fallback-wrapped otherwise).
type GenerateResult struct {
	Content    string
	TokensUsed int
	Parsed     *ParsedInsights
}

// Config configures the provider client
type Config struct {
	// BaseURL is the chat completions endpoint
	BaseURL string

	// APIKey is the bearer token
	APIKey string

	// Model is the model identifier to request
	Model string

	// Temperature and MaxTokens are passed through to the API
	Temperature float64
	MaxTokens   int

	// Timeout bounds a single provider call end to end
	Timeout time.Duration

	// MaxRetries is the number of retries on transient failures
	MaxRetries int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Model:       "THUDM/GLM-4-32B-0414",
		Temperature: 0.7,
		MaxTokens:   1000,
		Timeout:     30 * time.Second,
		MaxRetries:  2,
	}
}

// Client calls an OpenAI-compatible chat completions API. Transient
// failures retry with exponential backoff; a run of failures opens a
// circuit breaker so a dead upstream fails fast instead of tying up
// request handlers for the full timeout.
type Client struct {
	config     Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     observability.Logger
}

// NewClient creates a provider client
func NewClient(config Config, logger observability.Logger) *Client {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.Model == "" {
		config.Model = DefaultConfig().Model
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultConfig().MaxTokens
	}

	log := logger.WithPrefix("ai-client")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm-provider",
		MaxRequests: 3,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state change", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		breaker:    breaker,
		logger:     log,
	}
}

// chat completions wire types
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Generate produces insights for the profile/analysis pair. The returned
// Parsed field is always populated: malformed model output degrades to a
// single information-category insight rather than an error.
func (c *Client) Generate(ctx context.Context, profile *models.UserProfile, analysis *models.ContentAnalysis) (*GenerateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	reqBody := chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: BuildInsightPrompt(profile, analysis)},
		},
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrProvider, err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doWithRetry(ctx, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrProviderUnavailable
		}
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrProviderTimeout
		}
		return nil, err
	}

	resp := result.(*chatResponse)
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty choices", ErrProvider)
	}

	content := resp.Choices[0].Message.Content

	return &GenerateResult{
		Content:    content,
		TokensUsed: resp.Usage.TotalTokens,
		Parsed:     ParseInsightResponse(content, c.logger),
	}, nil
}

// doWithRetry issues the HTTP call, retrying transient failures with
// exponential backoff. 4xx responses are permanent.
func (c *Client) doWithRetry(ctx context.Context, payload []byte) (*chatResponse, error) {
	var resp *chatResponse

	operation := func() error {
		var err error
		resp, err = c.do(ctx, payload)
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.config.MaxRetries)),
		ctx,
	)

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	return resp, nil
}

func (c *Client) do(ctx context.Context, payload []byte) (*chatResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: %v", ErrProvider, err))
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ErrProviderTimeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer func() {
		_ = httpResp.Body.Close()
	}()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrProvider, err)
	}

	if httpResp.StatusCode >= 500 {
		c.logger.Warn("Provider server error", map[string]interface{}{
			"status": httpResp.StatusCode,
		})
		return nil, fmt.Errorf("%w: status %d", ErrProvider, httpResp.StatusCode)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, backoff.Permanent(fmt.Errorf("%w: status %d", ErrProvider, httpResp.StatusCode))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: decode response: %v", ErrProvider, err))
	}

	return &parsed, nil
}
