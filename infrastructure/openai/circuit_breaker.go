package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/fjgonzalezmgt/cv-maker/domain/generation"
)

// BreakerConfig holds configuration for circuit breaker behavior
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold" json:"failure_threshold"`
	SuccessThreshold uint32        `yaml:"success_threshold" json:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	MaxRequests      uint32        `yaml:"max_requests" json:"max_requests"`
}

// DefaultBreakerConfig returns sensible defaults for circuit breaker configuration
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:          true,
		FailureThreshold: 5,                // Open after 5 consecutive failures
		SuccessThreshold: 2,                // Close after 2 successes in half-open state
		Timeout:          60 * time.Second, // Stay open for 60 seconds
		MaxRequests:      3,                // Allow max 3 requests in half-open state
	}
}

// BreakerClient wraps a completion transport with circuit breaker
// protection, one breaker per model for granular failure isolation.
type BreakerClient struct {
	completer generation.CompletionPort
	streamer  generation.StreamPort
	config    BreakerConfig
	breakers  map[string]*gobreaker.CircuitBreaker
	mutex     sync.RWMutex
}

func NewBreakerClient(completer generation.CompletionPort, streamer generation.StreamPort, config BreakerConfig) *BreakerClient {
	return &BreakerClient{
		completer: completer,
		streamer:  streamer,
		config:    config,
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Complete implements generation.CompletionPort with circuit breaker protection.
func (b *BreakerClient) Complete(ctx context.Context, cfg generation.RequestConfig, messages []generation.Message) (string, error) {
	if !b.config.Enabled {
		return b.completer.Complete(ctx, cfg, messages)
	}

	model := breakerKey(cfg.Model)
	breaker := b.getOrCreateBreaker(model)

	result, err := breaker.Execute(func() (interface{}, error) {
		return b.completer.Complete(ctx, cfg, messages)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			logrus.WithFields(logrus.Fields{
				"model": model,
				"state": breaker.State(),
			}).Warn("Circuit breaker is open, failing fast")
			return "", fmt.Errorf("circuit breaker open for model %s: requests are being rejected to prevent cascade failures", model)
		}
		return "", err
	}
	return result.(string), nil
}

// Stream implements generation.StreamPort with circuit breaker
// protection on stream establishment. Failures after the stream is
// handed to the consumer do not count against the breaker.
func (b *BreakerClient) Stream(ctx context.Context, cfg generation.RequestConfig, messages []generation.Message) (*generation.TextStream, error) {
	if !b.config.Enabled {
		return b.streamer.Stream(ctx, cfg, messages)
	}

	model := breakerKey(cfg.Model)
	breaker := b.getOrCreateBreaker(model)

	result, err := breaker.Execute(func() (interface{}, error) {
		return b.streamer.Stream(ctx, cfg, messages)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			logrus.WithFields(logrus.Fields{
				"model": model,
				"state": breaker.State(),
			}).Warn("Circuit breaker is open for streaming, failing fast")
			return nil, fmt.Errorf("circuit breaker open for model %s: streaming requests are being rejected to prevent cascade failures", model)
		}
		return nil, err
	}
	return result.(*generation.TextStream), nil
}

// States returns the current state of all circuit breakers for monitoring.
func (b *BreakerClient) States() map[string]gobreaker.State {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	states := make(map[string]gobreaker.State)
	for model, breaker := range b.breakers {
		states[model] = breaker.State()
	}
	return states
}

func (b *BreakerClient) getOrCreateBreaker(model string) *gobreaker.CircuitBreaker {
	b.mutex.RLock()
	if breaker, exists := b.breakers[model]; exists {
		b.mutex.RUnlock()
		return breaker
	}
	b.mutex.RUnlock()

	b.mutex.Lock()
	defer b.mutex.Unlock()

	// Double-check pattern: another goroutine might have created it while we waited
	if breaker, exists := b.breakers[model]; exists {
		return breaker
	}

	settings := gobreaker.Settings{
		Name:        fmt.Sprintf("openai-model-%s", model),
		MaxRequests: b.config.MaxRequests,
		Interval:    0, // No automatic clearing of counts (we rely on timeout)
		Timeout:     b.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= b.config.FailureThreshold &&
				counts.TotalFailures >= b.config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"model":      model,
				"from_state": from,
				"to_state":   to,
			}).Info("Circuit breaker state changed")
		},
	}

	breaker := gobreaker.NewCircuitBreaker(settings)
	b.breakers[model] = breaker

	logrus.WithField("model", model).Info("Created new circuit breaker for model")
	return breaker
}

func breakerKey(model string) string {
	if model == "" {
		return "default"
	}
	key := strings.ToLower(strings.ReplaceAll(model, "/", "-"))
	return strings.ReplaceAll(key, ".", "-")
}
