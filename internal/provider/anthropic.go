package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/corvidlabs/aigateway/internal/apierr"
	"github.com/corvidlabs/aigateway/internal/canonical"
	"github.com/corvidlabs/aigateway/internal/sse"
)

// AnthropicProvider implements Provider against Anthropic's Messages API.
// Because the canonical schema is modeled directly on this API, this
// adapter is the closest thing to a pass-through the gateway has — most
// of its work is in the streaming event translation, not the request
// shape.
type AnthropicProvider struct {
	apiKey  string
	apiBase string // e.g. "https://api.anthropic.com/v1/"
	models  []string
	client  *http.Client
	limiter *rate.Limiter
	timeout time.Duration
}

// NewAnthropicProvider creates an AnthropicProvider ready to make API calls.
func NewAnthropicProvider(cfg Config, client *http.Client) *AnthropicProvider {
	return &AnthropicProvider{
		apiKey:  cfg.APIKey,
		apiBase: cfg.APIBase,
		models:  cfg.Models,
		client:  client,
		limiter: newLimiter(cfg.RateLimit),
		timeout: cfg.Timeout,
	}
}

func (a *AnthropicProvider) Name() string { return "anthropic" }

// --- wire types -------------------------------------------------------

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	Stream      bool               `json:"stream,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID         string                  `json:"id"`
	Content    []anthropicContentBlock `json:"content"`
	Model      string                  `json:"model"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  uint32 `json:"input_tokens"`
	OutputTokens uint32 `json:"output_tokens"`
}

// anthropicStreamEvent is the generic SSE payload wrapper: decode into
// this first to read "type", then branch on the populated pointer field.
// It is one struct with optional fields, not the one-struct-per-variant
// shape canonical.StreamEvent uses on the emitting side.
type anthropicStreamEvent struct {
	Type    string                 `json:"type"`
	Message *anthropicEventMessage `json:"message,omitempty"`
	Delta   *anthropicEventDelta   `json:"delta,omitempty"`
	Usage   *anthropicUsage        `json:"usage,omitempty"`
}

type anthropicEventMessage struct {
	ID    string         `json:"id"`
	Model string         `json:"model"`
	Usage anthropicUsage `json:"usage"`
}

type anthropicEventDelta struct {
	Type       string `json:"type,omitempty"`
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

const anthropicAPIVersion = "2023-06-01"

const defaultMaxTokens = 1024

func toAnthropicRequest(req *canonical.Request) *anthropicRequest {
	ar := &anthropicRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	for _, msg := range req.Messages {
		ar.Messages = append(ar.Messages, anthropicMessage{Role: msg.Role, Content: msg.Content})
	}
	if req.MaxTokens > 0 {
		ar.MaxTokens = req.MaxTokens
	} else {
		ar.MaxTokens = defaultMaxTokens
	}
	return ar
}

func (a *AnthropicProvider) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	url := fmt.Sprintf("%smessages", a.apiBase)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, err, "building anthropic request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)
	return httpReq, nil
}

func anthropicHTTPError(status int, body map[string]any) *apierr.Error {
	msg := fmt.Sprintf("anthropic returned status %d", status)
	kind := apierr.KindUpstreamProtocol
	switch status {
	case http.StatusUnauthorized:
		kind = apierr.KindAuthentication
	case http.StatusForbidden:
		kind = apierr.KindAuthorization
	case http.StatusTooManyRequests:
		kind = apierr.KindRateLimited
	case http.StatusBadRequest:
		kind = apierr.KindInvalidRequest
	}
	if errObj, ok := body["error"].(map[string]any); ok {
		if m, ok := errObj["message"].(string); ok && m != "" {
			msg = m
		}
	}
	return apierr.New(kind, "%s", msg).WithProviderCode(status)
}

// Chat implements Provider.
func (a *AnthropicProvider) Chat(ctx context.Context, req *canonical.Request) (*canonical.Response, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, apierr.Wrap(apierr.KindUpstreamTimeout, err, "rate limiter wait")
	}

	ctx, cancel := withTimeout(ctx, a.timeout)
	defer cancel()

	body, err := json.Marshal(toAnthropicRequest(req))
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, err, "marshaling anthropic request")
	}

	httpReq, err := a.newRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, apierr.Wrap(requestErrorKind(ctx, apierr.KindUpstreamUnreachable), err, "calling anthropic")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		var errBody map[string]any
		_ = json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, anthropicHTTPError(httpResp.StatusCode, errBody)
	}

	var resp anthropicResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, apierr.Wrap(requestErrorKind(ctx, apierr.KindUpstreamFormat), err, "decoding anthropic response")
	}

	blocks := make([]canonical.ContentBlock, 0, len(resp.Content))
	for _, b := range resp.Content {
		if b.Type == "text" {
			blocks = append(blocks, canonical.ContentBlock{Type: "text", Text: b.Text})
		}
	}

	return &canonical.Response{
		ID:      resp.ID,
		Model:   resp.Model,
		Content: blocks,
		Usage: canonical.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}, nil
}

// ChatStream implements Provider. Anthropic's stream already carries the
// message_start / content_block_* / message_delta / message_stop
// structure the canonical schema mirrors almost verbatim, so this
// adapter mostly passes events through rather than synthesizing them.
func (a *AnthropicProvider) ChatStream(ctx context.Context, req *canonical.Request) (<-chan canonical.StreamEvent, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, apierr.Wrap(apierr.KindUpstreamTimeout, err, "rate limiter wait")
	}

	ctx, cancel := withTimeout(ctx, a.timeout)

	ar := toAnthropicRequest(req)
	ar.Stream = true

	body, err := json.Marshal(ar)
	if err != nil {
		cancel()
		return nil, apierr.Wrap(apierr.KindInternal, err, "marshaling anthropic request")
	}

	httpReq, err := a.newRequest(ctx, body)
	if err != nil {
		cancel()
		return nil, err
	}

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, apierr.Wrap(requestErrorKind(ctx, apierr.KindUpstreamUnreachable), err, "calling anthropic")
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		defer cancel()
		var errBody map[string]any
		_ = json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, anthropicHTTPError(httpResp.StatusCode, errBody)
	}

	ch := make(chan canonical.StreamEvent)

	go func() {
		defer cancel()
		defer close(ch)
		defer httpResp.Body.Close()

		send := func(ev canonical.StreamEvent) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var (
			respID       string
			model        string
			inputTokens  uint32
			outputTokens uint32
			stopReason   string
		)

		_, err := sse.Decode(httpResp.Body,
			func() any { return &anthropicStreamEvent{} },
			func(v any) error {
				event := v.(*anthropicStreamEvent)
				switch event.Type {
				case "message_start":
					if event.Message != nil {
						respID = event.Message.ID
						model = event.Message.Model
						inputTokens = event.Message.Usage.InputTokens
						send(canonical.NewMessageStart(respID, model, canonical.Usage{InputTokens: inputTokens}))
						send(canonical.NewContentBlockStart(0))
					}
				case "content_block_delta":
					if event.Delta != nil && event.Delta.Text != "" {
						send(canonical.NewContentBlockDelta(0, event.Delta.Text))
					}
				case "message_delta":
					if event.Delta != nil && event.Delta.StopReason != "" {
						stopReason = mapAnthropicStopReason(event.Delta.StopReason)
					}
					if event.Usage != nil {
						outputTokens = event.Usage.OutputTokens
					}
				case "content_block_stop":
					send(canonical.NewContentBlockStop(0))
				case "message_stop":
					usage := canonical.Usage{InputTokens: inputTokens, OutputTokens: outputTokens}
					send(canonical.NewMessageDelta(stopReason, &usage))
					send(canonical.NewMessageStop())
				}
				return nil
			})

		if err != nil {
			send(canonical.NewErrorEvent(err.Error()))
			send(canonical.NewMessageStop())
		}
	}()

	return ch, nil
}

func mapAnthropicStopReason(r string) string {
	switch r {
	case "end_turn", "stop_sequence", "max_tokens", "tool_use":
		return r
	default:
		return canonical.StopEndTurn
	}
}

// ListModels implements Provider. Anthropic has no model-listing endpoint
// the gateway relies on, so it always returns the statically configured
// set.
func (a *AnthropicProvider) ListModels(ctx context.Context) ([]canonical.ModelInfo, error) {
	return staticModels(a.models, "anthropic"), nil
}

// HealthCheck implements Provider with a minimal request: the smallest
// legal message, one max_tokens, timed.
func (a *AnthropicProvider) HealthCheck(ctx context.Context) canonical.HealthStatus {
	start := time.Now()
	model := "claude-3-5-haiku-latest"
	if len(a.models) > 0 {
		model = a.models[0]
	}
	_, err := a.Chat(ctx, &canonical.Request{
		Model:     model,
		Messages:  []canonical.Message{{Role: canonical.RoleUser, Content: "ping"}},
		MaxTokens: 1,
	})
	return healthResult("anthropic", start, err)
}
