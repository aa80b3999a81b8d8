package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/devflowhq/devflow/internal/config"
)

// RetryConfig configures exponential backoff retry behavior for the gateway.
type RetryConfig struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	MaxElapsedTime      time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultRetryConfig returns the default retry configuration. Search is a
// best-effort side channel, so the elapsed-time cap is short: a gateway that
// cannot answer within a few seconds should degrade, not stall a task.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         2 * time.Second,
		MaxElapsedTime:      15 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// SerperGateway queries the Serper web search API.
type SerperGateway struct {
	apiKey     string
	endpoint   string
	maxResults int
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker
	retryCfg   RetryConfig
}

// NewSerperGateway builds a gateway from configuration. The API key is read
// from the environment variable named in cfg; an empty key yields a gateway
// that reports unavailable rather than an error.
func NewSerperGateway(cfg config.SearchConfig) *SerperGateway {
	apiKey := ""
	if cfg.Enabled && cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
	}

	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	g := &SerperGateway{
		apiKey:     apiKey,
		endpoint:   cfg.Endpoint,
		maxResults: cfg.MaxResults,
		client:     &http.Client{Timeout: timeout},
		retryCfg:   DefaultRetryConfig(),
	}

	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "search",
		MaxRequests: 3,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Don't count user cancellation as gateway failure
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			return false
		},
	})

	return g
}

// Available reports whether an API key is configured.
func (g *SerperGateway) Available() bool {
	return g.apiKey != ""
}

// MaxResults returns the configured cap on organic results per query.
func (g *SerperGateway) MaxResults() int {
	return g.maxResults
}

// Search executes one query against the Serper API with retry and circuit
// breaker protection. Every failure wraps ErrUnavailable.
func (g *SerperGateway) Search(ctx context.Context, query string) (*Results, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("%w: no API key configured", ErrUnavailable)
	}
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrUnavailable)
	}

	var res *Results

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		result, err := g.breaker.Execute(func() (interface{}, error) {
			return g.doSearch(ctx, query)
		})

		if err != nil {
			// Circuit is open - don't retry
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			// Client errors won't heal on retry
			var pe *permanentAPIError
			if errors.As(err, &pe) {
				return backoff.Permanent(err)
			}
			return err
		}

		res = result.(*Results)
		return nil
	}

	backoffPolicy := backoff.NewExponentialBackOff()
	backoffPolicy.InitialInterval = g.retryCfg.InitialInterval
	backoffPolicy.MaxInterval = g.retryCfg.MaxInterval
	backoffPolicy.MaxElapsedTime = g.retryCfg.MaxElapsedTime
	backoffPolicy.Multiplier = g.retryCfg.Multiplier
	backoffPolicy.RandomizationFactor = g.retryCfg.RandomizationFactor

	if err := backoff.Retry(operation, backoff.WithContext(backoffPolicy, ctx)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return res, nil
}

// permanentAPIError marks HTTP statuses that retrying cannot fix.
type permanentAPIError struct {
	status int
}

func (e *permanentAPIError) Error() string {
	return fmt.Sprintf("search API returned status %d", e.status)
}

type serperRequest struct {
	Query string `json:"q"`
}

type serperResponse struct {
	AnswerBox struct {
		Answer  string `json:"answer"`
		Snippet string `json:"snippet"`
	} `json:"answerBox"`
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
	RelatedSearches []struct {
		Query string `json:"query"`
	} `json:"relatedSearches"`
}

func (g *SerperGateway) doSearch(ctx context.Context, query string) (*Results, error) {
	body, err := json.Marshal(serperRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("X-API-KEY", g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// 4xx means bad key, bad request, or exhausted quota
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, &permanentAPIError{status: resp.StatusCode}
		}
		return nil, fmt.Errorf("search API returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}

	var parsed serperResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	res := &Results{}
	if parsed.AnswerBox.Answer != "" {
		res.Answer = parsed.AnswerBox.Answer
	} else if parsed.AnswerBox.Snippet != "" {
		res.Answer = parsed.AnswerBox.Snippet
	}
	for _, o := range parsed.Organic {
		res.Organic = append(res.Organic, Result{
			Title:   o.Title,
			Link:    o.Link,
			Snippet: o.Snippet,
		})
	}
	for _, r := range parsed.RelatedSearches {
		if r.Query != "" {
			res.Related = append(res.Related, r.Query)
		}
	}
	return res, nil
}
