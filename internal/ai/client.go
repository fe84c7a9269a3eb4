package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"undercover-arena/internal/config"
	"undercover-arena/internal/game"
)

var (
	ErrEmptyCompletion = errors.New("empty completion")
	ErrAllModelsFailed = errors.New("all models failed")
)

const minCompletionRunes = 5

// Message is one OpenAI-style chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client calls OpenAI-compatible chat completion endpoints with per-model
// failure tracking: a model that fails several times in a row is skipped by
// the fallback chain until it succeeds again.
type Client struct {
	HTTPClient *http.Client
	cfg        config.AIConfig

	mu       sync.Mutex
	failures map[string]int
}

func NewClient(cfg config.AIConfig) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: cfg.RequestTimeout},
		cfg:        cfg,
		failures:   map[string]int{},
	}
}

// Complete calls one endpoint, retrying transient failures with exponential
// backoff.
func (c *Client) Complete(ctx context.Context, mc game.ModelConfig, messages []Message) (string, error) {
	var lastErr error
	backoff := time.Second
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		content, err := c.call(ctx, mc, messages)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		log.Warn().Err(err).Str("model", mc.Model).Int("attempt", attempt+1).Msg("completion attempt failed")
	}
	return "", lastErr
}

// CompleteWithFallback tries the participant's own model first, then the
// configured fallback models. Models on failure cooldown are skipped unless
// they are the only option left.
func (c *Client) CompleteWithFallback(ctx context.Context, primary game.ModelConfig, messages []Message) (string, error) {
	candidates := c.candidates(primary)

	usable := make([]game.ModelConfig, 0, len(candidates))
	for _, mc := range candidates {
		if !c.coolingDown(mc.Model) {
			usable = append(usable, mc)
		}
	}
	if len(usable) == 0 {
		usable = candidates
	}

	var lastErr error = ErrAllModelsFailed
	for _, mc := range usable {
		content, err := c.Complete(ctx, mc, messages)
		if err == nil {
			c.recordSuccess(mc.Model)
			return content, nil
		}
		c.recordFailure(mc.Model)
		lastErr = err
		if errors.Is(err, context.Canceled) {
			break
		}
	}
	return "", fmt.Errorf("%w: %v", ErrAllModelsFailed, lastErr)
}

func (c *Client) candidates(primary game.ModelConfig) []game.ModelConfig {
	out := make([]game.ModelConfig, 0, 1+len(c.cfg.FallbackModels))
	if primary.Model != "" {
		if primary.BaseURL == "" {
			primary.BaseURL = c.cfg.DefaultBaseURL
		}
		if primary.APIKey == "" {
			primary.APIKey = c.cfg.DefaultAPIKey
		}
		out = append(out, primary)
	}
	for _, model := range c.cfg.FallbackModels {
		if model == primary.Model {
			continue
		}
		out = append(out, game.ModelConfig{
			BaseURL: c.cfg.DefaultBaseURL,
			APIKey:  c.cfg.DefaultAPIKey,
			Model:   model,
		})
	}
	return out
}

func (c *Client) call(ctx context.Context, mc game.ModelConfig, messages []Message) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       mc.Model,
		Messages:    messages,
		Temperature: 0.8,
		MaxTokens:   300,
	})
	if err != nil {
		return "", err
	}

	url := strings.TrimRight(mc.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+mc.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("upstream status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(b, &parsed); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if parsed.Error != nil {
		return "", errors.New(parsed.Error.Message)
	}
	return extractContent(parsed)
}

// extractContent rejects unusable completions: no choices, blank content,
// reasoning with no answer, or content too short to be a real move.
func extractContent(resp chatResponse) (string, error) {
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	msg := resp.Choices[0].Message
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		if strings.TrimSpace(msg.ReasoningContent) != "" {
			return "", fmt.Errorf("%w: reasoning only", ErrEmptyCompletion)
		}
		return "", ErrEmptyCompletion
	}
	if utf8.RuneCountInString(content) < minCompletionRunes {
		return "", fmt.Errorf("%w: %q too short", ErrEmptyCompletion, content)
	}
	return content, nil
}

func (c *Client) coolingDown(model string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures[model] >= c.cfg.FailureThreshold
}

func (c *Client) recordFailure(model string) {
	c.mu.Lock()
	c.failures[model]++
	c.mu.Unlock()
}

func (c *Client) recordSuccess(model string) {
	c.mu.Lock()
	delete(c.failures, model)
	c.mu.Unlock()
}
