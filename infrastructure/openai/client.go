// Package openai is the transport to the OpenAI Responses API:
// request construction, bounded retry with exponential backoff, and
// blocking or streaming execution.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fjgonzalezmgt/cv-maker/domain/generation"
)

// EnvAPIKey is the environment variable consulted when no explicit key
// is configured.
const EnvAPIKey = "OPENAI_API_KEY"

const (
	DefaultBaseURL     = "https://api.openai.com/v1"
	DefaultMaxRetries  = 3
	DefaultBackoffBase = 2 * time.Second
)

// Settings configures a Client. Zero fields fall back to defaults,
// except MaxRetries where 0 genuinely means no retries and a negative
// value selects the default. An empty APIKey defers resolution to the
// environment at call time.
type Settings struct {
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
}

type Client struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	maxRetries  int
	backoffBase time.Duration
}

func NewClient(s Settings) *Client {
	if s.BaseURL == "" {
		s.BaseURL = DefaultBaseURL
	}
	if s.MaxRetries < 0 {
		s.MaxRetries = DefaultMaxRetries
	}
	if s.BackoffBase == 0 {
		s.BackoffBase = DefaultBackoffBase
	}

	// Connection pooling tuned for a small number of long-lived calls.
	transport := &http.Transport{
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: s.Timeout,
	}

	return &Client{
		apiKey:      s.APIKey,
		baseURL:     strings.TrimSuffix(s.BaseURL, "/"),
		httpClient:  &http.Client{Transport: transport},
		maxRetries:  s.MaxRetries,
		backoffBase: s.BackoffBase,
	}
}

// resolveAPIKey returns the credential for this call: the explicit key
// wins, then the environment. Resolution happens per call and is never
// cached across requests.
func (c *Client) resolveAPIKey() (string, error) {
	key := c.apiKey
	if key == "" {
		key = os.Getenv(EnvAPIKey)
	}
	if key == "" {
		return "", generation.ErrMissingCredential
	}
	logrus.WithField("api_key", obfuscateKey(key)).Debug("Resolved API credential")
	return key, nil
}

func obfuscateKey(key string) string {
	if len(key) <= 12 {
		return "***"
	}
	return key[:8] + "..." + key[len(key)-4:]
}

// Complete executes a blocking completion and returns the full response
// text with surrounding whitespace trimmed. The configured timeout
// bounds each attempt, not the whole call; a timed-out attempt is a
// connection-class failure and goes back through the retry loop.
func (c *Client) Complete(ctx context.Context, cfg generation.RequestConfig, messages []generation.Message) (string, error) {
	resp, err := c.send(ctx, cfg, messages, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var out apiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if out.Error != nil {
		return "", &generation.APIError{Status: resp.StatusCode, Message: out.Error.Message}
	}

	text := strings.TrimSpace(out.outputText())
	logrus.WithFields(logrus.Fields{
		"model": out.Model,
		"chars": len(text),
	}).Info("Completion received")
	return text, nil
}

// send executes the HTTP call with bounded exponential-backoff retry.
// Rate limiting, server errors and connection failures are retried up
// to maxRetries times; any other rejection propagates immediately. On
// exhaustion the last retryable error is surfaced unchanged. The
// configured timeout applies to each attempt individually, so one hung
// attempt never drains the budget of the attempts after it.
func (c *Client) send(ctx context.Context, cfg generation.RequestConfig, messages []generation.Message, stream bool) (*http.Response, error) {
	key, err := c.resolveAPIKey()
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(apiRequest{
		Model:           cfg.Model,
		Input:           encodeMessages(messages),
		Temperature:     cfg.Temperature,
		MaxOutputTokens: cfg.MaxOutputTokens,
		Reasoning:       cfg.Reasoning,
		Text:            cfg.Text,
		Stream:          stream,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.backoffBase * (1 << (attempt - 1))
			logrus.WithFields(logrus.Fields{
				"attempt": attempt + 1,
				"backoff": backoff,
			}).Warn("Retrying API call after backoff")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, ctx.Err()
			}
		}

		// Per-attempt deadline. Streaming gets none beyond the
		// transport's header timeout: a long-lived stream outlasting
		// the per-attempt budget is normal.
		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if !stream && cfg.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		}

		hreq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(payload))
		if err != nil {
			cancel()
			return nil, fmt.Errorf("new request: %w", err)
		}
		hreq.Header.Set("Content-Type", "application/json")
		hreq.Header.Set("Authorization", "Bearer "+key)

		resp, err := c.httpClient.Do(hreq)
		if err != nil {
			cancel()
			lastErr = &generation.APIError{Err: err}
			logrus.WithError(err).WithField("attempt", attempt+1).Warn("Connection-level API failure")
			continue
		}

		if resp.StatusCode == http.StatusOK {
			// The attempt context must stay alive until the body is
			// fully consumed; Close releases it.
			resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
			return resp, nil
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		apiErr := &generation.APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		if !apiErr.Retryable() {
			logrus.WithFields(logrus.Fields{
				"status": resp.StatusCode,
				"body":   apiErr.Message,
			}).Error("Non-retryable API error")
			return nil, apiErr
		}
		lastErr = apiErr
		logrus.WithFields(logrus.Fields{
			"status":  resp.StatusCode,
			"attempt": attempt + 1,
		}).Warn("Retryable API error")
	}

	return nil, lastErr
}

// cancelOnClose ties a per-attempt context to the response body
// lifetime.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	b.cancel()
	return b.ReadCloser.Close()
}
