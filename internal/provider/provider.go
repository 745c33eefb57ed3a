// Package provider defines the Provider contract (spec.md §4.3) and the
// three vendor adapters that satisfy it. Every LLM backend implements
// this interface; the registry, dispatcher, and HTTP adapter never see a
// vendor-specific type again once a Provider is in hand — the same
// implicit-interface pattern this package's original version already
// used, generalized from an OpenAI-shaped request/response pair to the
// canonical Anthropic-shaped schema and to streaming as a sequence of
// tagged events instead of one flat delta struct.
package provider

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/corvidlabs/aigateway/internal/canonical"
)

// Provider is the interface that every LLM backend must satisfy. Go
// interfaces are implicit: any struct with these methods automatically
// satisfies Provider — no "implements" keyword needed.
//
// Implementations must be safe to call from many concurrent goroutines —
// the registry constructs one instance per configured backend and shares
// it across every request that resolves to it.
type Provider interface {
	// Name returns the provider identifier, e.g. "openai", "anthropic",
	// "gemini". Used for logging, metrics labels, and registry lookups.
	Name() string

	// Chat sends a non-streaming request and returns the complete
	// canonical response.
	Chat(ctx context.Context, req *canonical.Request) (*canonical.Response, error)

	// ChatStream sends a streaming request and returns a channel that
	// delivers canonical stream events as they are translated from the
	// upstream wire format. The channel is closed when the sequence ends
	// — whether by a clean message_stop or a terminal error event.
	// Dropping the channel (ceasing to read before it closes) must tear
	// down the upstream connection within one read interval.
	ChatStream(ctx context.Context, req *canonical.Request) (<-chan canonical.StreamEvent, error)

	// ListModels returns this provider's known models. On upstream
	// discovery failure it falls back to the statically configured list.
	ListModels(ctx context.Context) ([]canonical.ModelInfo, error)

	// HealthCheck performs a lightweight liveness probe. It must not
	// mutate any state.
	HealthCheck(ctx context.Context) canonical.HealthStatus
}

// Config is the subset of config.ProviderConfig an adapter needs,
// decoupled from the config package so provider doesn't import it.
type Config struct {
	APIKey     string
	APIBase    string
	Models     []string
	Timeout    time.Duration
	MaxRetries int
	RateLimit  *RateLimit
}

// RateLimit configures the outbound limiter an adapter applies to its own
// calls to its upstream — see SPEC_FULL.md §7.
type RateLimit struct {
	RequestsPerSecond float64
	Burst             int
}

// newLimiter builds a rate.Limiter from an optional RateLimit config. A
// nil config (or non-positive rate) means unlimited.
func newLimiter(rl *RateLimit) *rate.Limiter {
	if rl == nil || rl.RequestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := rl.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rl.RequestsPerSecond), burst)
}

// sharedTransport is the connection-pooled, keep-alive transport every
// adapter's http.Client is built on, per spec.md §5/§9 ("exactly one
// outbound client... shared across all requests").
func sharedTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}
}

// NewSharedHTTPClient builds the single outbound *http.Client that
// cmd/gateway constructs once and injects into every adapter.
func NewSharedHTTPClient() *http.Client {
	return &http.Client{Transport: sharedTransport()}
}
