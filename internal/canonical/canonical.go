// Package canonical defines the request/response/event shapes the gateway
// speaks internally and on its public edge. Every provider adapter
// translates to and from these types; nothing downstream of the adapters
// ever sees a vendor-specific shape again.
package canonical

// Request is the canonical chat-completion request. It is modeled on the
// Anthropic Messages API shape — clients write once against this format
// and the gateway relays it to whichever backend the model identifier
// resolves to.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
}

// Message is one turn in the conversation. Content is plain text; the
// gateway does not support multimodal content blocks on the request side.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RoleUser and RoleAssistant are the only roles a canonical request may
// carry. The validator (internal/validate) enforces strict alternation
// starting with RoleUser.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ContentBlock is one piece of generated content. Only "text" blocks are
// produced today; the field exists so the shape can grow (tool_use, etc.)
// without breaking clients that switch on Type.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Usage carries token accounting for a request/response pair.
type Usage struct {
	InputTokens  uint32 `json:"input_tokens"`
	OutputTokens uint32 `json:"output_tokens"`
}

// Response is the canonical unary (non-streaming) response.
type Response struct {
	ID     string         `json:"id"`
	Model  string         `json:"model"`
	Content []ContentBlock `json:"content"`
	Usage  Usage          `json:"usage"`
}

// ModelInfo describes one model a provider exposes, returned from
// GET /v1/models.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created uint64 `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// HealthStatus is the result of a single provider's health probe.
type HealthStatus struct {
	Status    string `json:"status"`
	Provider  string `json:"provider"`
	LatencyMS *int64 `json:"latency_ms,omitempty"`
	Error     *string `json:"error,omitempty"`
}

const (
	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"
)

// Stop reasons carried by MessageDelta.StopReason.
const (
	StopEndTurn      = "end_turn"
	StopMaxTokens    = "max_tokens"
	StopSequence     = "stop_sequence"
	StopToolUse      = "tool_use"
)
