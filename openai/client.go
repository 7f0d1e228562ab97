// Package openai implements the OpenAI-compatible chat client used for
// batch translation: a single retryable transport with status-class-aware
// backoff, plus the text-list request/response layer on top of it.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chrysoljq/mc-translator/config"
)

// ErrRetriesExhausted marks a transient failure that outlived the retry
// budget. The last HTTP status and body are carried in the message.
var ErrRetriesExhausted = errors.New("retries exhausted")

// ErrLengthMismatch marks a response whose element count differs from the
// request. The batch scheduler treats it as a batch failure.
var ErrLengthMismatch = errors.New("response length mismatch")

var markdownCodeBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// Client talks to one OpenAI-compatible endpoint. It is immutable after
// construction and safe for concurrent use by every batch worker.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
	prompt     string
	maxRetries int
	retryDelay time.Duration
	log        zerolog.Logger
}

// New builds a client from cfg. log may be zerolog.Nop().
func New(cfg config.Config, log zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		prompt:     cfg.Prompt,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay(),
		log:        log,
	}
}

// sendWithRetry issues the request returned by build, retrying transient
// failures. build is called once per attempt so every retry carries a
// fresh request body.
//
// Classification:
//   - 2xx: success
//   - 400/401: permanent, no retry
//   - 429: wait Retry-After seconds when the header parses, otherwise
//     retryDelay * 2^attempt
//   - 5xx: wait a flat retryDelay (load shedding is assumed short-lived)
//   - other statuses: permanent
//   - network errors: wait 2^attempt seconds
func (c *Client) sendWithRetry(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// The request carries ctx, so cancellation surfaces here too.
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt >= c.maxRetries {
				return nil, fmt.Errorf("%w: network error: %v", ErrRetriesExhausted, err)
			}
			wait := time.Duration(1<<uint(attempt)) * time.Second
			c.log.Warn().Err(err).Int("attempt", attempt+1).Int("max", c.maxRetries).
				Dur("wait", wait).Msg("network error, retrying")
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		body := readBody(resp)

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
			return nil, fmt.Errorf("api error (HTTP %d): %s", resp.StatusCode, body)
		}

		if attempt >= c.maxRetries {
			return nil, fmt.Errorf("%w (HTTP %d): %s", ErrRetriesExhausted, resp.StatusCode, body)
		}

		var wait time.Duration
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			wait = c.retryDelay * (1 << uint(attempt))
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs >= 0 {
				wait = time.Duration(secs) * time.Second
			}
		case resp.StatusCode >= 500:
			wait = c.retryDelay
		default:
			return nil, fmt.Errorf("request failed (HTTP %d): %s", resp.StatusCode, body)
		}

		c.log.Warn().Int("status", resp.StatusCode).Int("attempt", attempt+1).
			Int("max", c.maxRetries).Dur("wait", wait).Msg("request throttled, retrying")
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func readBody(resp *http.Response) string {
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	return string(data)
}

// FetchModels lists the model identifiers available at the endpoint.
// Used as a cheap connection/credential check before a run.
func (c *Client) FetchModels(ctx context.Context) ([]string, error) {
	resp, err := c.sendWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parsing models response: %w", err)
	}

	models := make([]string, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		if m.ID != "" {
			models = append(models, m.ID)
		}
	}
	sort.Strings(models)
	return models, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// TranslateTextList sends an ordered list of source strings and returns
// the translated list. Position is the correlation key: element N of the
// result corresponds to element N of texts. A response whose length
// differs from the request is an ErrLengthMismatch, never padded or
// truncated.
func (c *Client) TranslateTextList(ctx context.Context, texts []string, contextID string) ([]string, error) {
	payload, err := json.Marshal(texts)
	if err != nil {
		return nil, fmt.Errorf("encoding source texts: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: strings.ReplaceAll(c.prompt, "{MOD_ID}", contextID)},
			{Role: "user", Content: string(payload)},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	resp, err := c.sendWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parsing chat response: %w", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return nil, errors.New("empty completion content")
	}

	translated, err := parseTextList(parsed.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	if len(translated) != len(texts) {
		return nil, fmt.Errorf("%w: sent %d, received %d", ErrLengthMismatch, len(texts), len(translated))
	}
	return translated, nil
}

// parseTextList strips an optional Markdown code fence and decodes the
// remaining JSON string array.
func parseTextList(content string) ([]string, error) {
	content = strings.TrimSpace(content)
	if m := markdownCodeBlock.FindStringSubmatch(content); len(m) > 1 {
		content = m[1]
	}

	var texts []string
	if err := json.Unmarshal([]byte(content), &texts); err != nil {
		return nil, fmt.Errorf("parsing completion as JSON string array: %w", err)
	}
	return texts, nil
}
