// Package ratelimit bridges the gateway's configuration surface to the
// per-provider outbound throttle each adapter in internal/provider
// applies to its own upstream calls. It exists so internal/provider
// doesn't need to import internal/config (adapters take a plain
// provider.RateLimit instead), matching the dependency direction the
// rest of the gateway already follows: config is a leaf, never imported
// by the domain packages it configures.
package ratelimit

import (
	"github.com/corvidlabs/aigateway/internal/config"
	"github.com/corvidlabs/aigateway/internal/provider"
)

// FromConfig converts an optional config.RateLimitConfig into the
// provider package's RateLimit shape. A nil input yields a nil output,
// which every adapter treats as "unlimited".
func FromConfig(rl *config.RateLimitConfig) *provider.RateLimit {
	if rl == nil {
		return nil
	}
	return &provider.RateLimit{
		RequestsPerSecond: rl.RequestsPerSecond,
		Burst:             rl.Burst,
	}
}
