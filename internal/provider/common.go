package provider

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/corvidlabs/aigateway/internal/apierr"
	"github.com/corvidlabs/aigateway/internal/canonical"
)

// newSyntheticMessageID mints a response ID for backends whose wire
// format doesn't include one on every turn (Gemini never does; OpenAI's
// stream sometimes omits it on the first malformed chunk).
func newSyntheticMessageID() string {
	return "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// staticModels renders a provider's configured model list as the
// canonical.ModelInfo shape GET /v1/models returns. Every adapter's
// ListModels returns it directly; none of them queries an upstream
// model-discovery endpoint.
func staticModels(models []string, ownedBy string) []canonical.ModelInfo {
	out := make([]canonical.ModelInfo, 0, len(models))
	for _, m := range models {
		out = append(out, canonical.ModelInfo{ID: m, Object: "model", OwnedBy: ownedBy})
	}
	return out
}

// withTimeout applies the per-request wall-clock deadline spec.md §5
// requires ("equal to ProviderConfig.timeout"). A non-positive timeout
// (the zero value a provider built without one, as in tests, carries)
// leaves ctx untouched rather than expiring it immediately.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// requestErrorKind reports upstream_timeout when ctx's deadline has
// already expired by the time a transport or decode error surfaces,
// regardless of which call site observed it; otherwise it defers to
// fallback, the kind that call site would have used on its own.
func requestErrorKind(ctx context.Context, fallback apierr.Kind) apierr.Kind {
	if ctx.Err() == context.DeadlineExceeded {
		return apierr.KindUpstreamTimeout
	}
	return fallback
}

// defaultModelsByProvider holds each adapter's static fallback model
// list, used per spec.md §4.7 when an operator configures a provider
// without an explicit models list. Kept in sync with the ping model
// each adapter's HealthCheck falls back to.
var defaultModelsByProvider = map[string][]string{
	"openai":    {"gpt-4o-mini"},
	"anthropic": {"claude-3-5-haiku-latest"},
	"gemini":    {"gemini-2.0-flash"},
}

// DefaultModels returns the static fallback model list for a known
// built-in provider name, or nil if name isn't one of them.
func DefaultModels(name string) []string {
	return defaultModelsByProvider[name]
}

// healthResult builds a canonical.HealthStatus from the outcome of a
// provider's probe call, measuring latency from start.
func healthResult(name string, start time.Time, err error) canonical.HealthStatus {
	latency := time.Since(start).Milliseconds()
	if err == nil {
		return canonical.HealthStatus{Status: canonical.HealthHealthy, Provider: name, LatencyMS: &latency}
	}
	msg := err.Error()
	if e, ok := apierr.As(err); ok {
		msg = e.Message
	}
	return canonical.HealthStatus{Status: canonical.HealthUnhealthy, Provider: name, LatencyMS: &latency, Error: &msg}
}
