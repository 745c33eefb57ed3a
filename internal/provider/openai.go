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

// OpenAIProvider implements Provider against the OpenAI chat completions
// API. The teacher repo never had an OpenAI adapter at all; this one is
// grounded entirely in the request/response field shapes and stop-reason
// mapping in original_source's OpenAI model, rewritten in the style
// anthropic.go and gemini.go already use in this package: unexported
// wire types, a toXRequest translator, and a goroutine+channel stream.
type OpenAIProvider struct {
	apiKey  string
	apiBase string // e.g. "https://api.openai.com/v1/"
	models  []string
	client  *http.Client
	limiter *rate.Limiter
	timeout time.Duration
}

func NewOpenAIProvider(cfg Config, client *http.Client) *OpenAIProvider {
	return &OpenAIProvider{
		apiKey:  cfg.APIKey,
		apiBase: cfg.APIBase,
		models:  cfg.Models,
		client:  client,
		limiter: newLimiter(cfg.RateLimit),
		timeout: cfg.Timeout,
	}
}

func (o *OpenAIProvider) Name() string { return "openai" }

// --- wire types -------------------------------------------------------

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Stream      bool            `json:"stream,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
	Usage   openAIUsage    `json:"usage"`
}

type openAIChoice struct {
	Index        uint32        `json:"index"`
	Message      openAIMessage `json:"message"`
	FinishReason *string       `json:"finish_reason"`
}

type openAIUsage struct {
	PromptTokens     uint32 `json:"prompt_tokens"`
	CompletionTokens uint32 `json:"completion_tokens"`
}

type openAIStreamResponse struct {
	ID      string               `json:"id"`
	Model   string               `json:"model"`
	Choices []openAIStreamChoice `json:"choices"`
}

type openAIStreamChoice struct {
	Index        uint32            `json:"index"`
	Delta        openAIStreamDelta `json:"delta"`
	FinishReason *string           `json:"finish_reason"`
}

type openAIStreamDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

func toOpenAIRequest(req *canonical.Request) *openAIRequest {
	or := &openAIRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	for _, msg := range req.Messages {
		or.Messages = append(or.Messages, openAIMessage{Role: msg.Role, Content: msg.Content})
	}
	return or
}

func (o *OpenAIProvider) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	url := fmt.Sprintf("%schat/completions", o.apiBase)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, err, "building openai request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	return httpReq, nil
}

func openAIHTTPError(status int, body map[string]any) *apierr.Error {
	msg := fmt.Sprintf("openai returned status %d", status)
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
func (o *OpenAIProvider) Chat(ctx context.Context, req *canonical.Request) (*canonical.Response, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, apierr.Wrap(apierr.KindUpstreamTimeout, err, "rate limiter wait")
	}

	ctx, cancel := withTimeout(ctx, o.timeout)
	defer cancel()

	body, err := json.Marshal(toOpenAIRequest(req))
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, err, "marshaling openai request")
	}

	httpReq, err := o.newRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	httpResp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, apierr.Wrap(requestErrorKind(ctx, apierr.KindUpstreamUnreachable), err, "calling openai")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		var errBody map[string]any
		_ = json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, openAIHTTPError(httpResp.StatusCode, errBody)
	}

	var resp openAIResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, apierr.Wrap(requestErrorKind(ctx, apierr.KindUpstreamFormat), err, "decoding openai response")
	}
	if len(resp.Choices) == 0 {
		return nil, apierr.New(apierr.KindUpstreamFormat, "openai response had no choices")
	}

	text := resp.Choices[0].Message.Content
	return &canonical.Response{
		ID:      resp.ID,
		Model:   resp.Model,
		Content: []canonical.ContentBlock{{Type: "text", Text: text}},
		Usage: canonical.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// ChatStream implements Provider. OpenAI's stream, unlike Anthropic's,
// never sends a structured message_start event and never reports usage
// mid-stream, so this adapter synthesizes the opening pair itself (the
// same gap original_source's create_message_start_event /
// create_content_block_start_event helpers existed to fill).
func (o *OpenAIProvider) ChatStream(ctx context.Context, req *canonical.Request) (<-chan canonical.StreamEvent, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, apierr.Wrap(apierr.KindUpstreamTimeout, err, "rate limiter wait")
	}

	ctx, cancel := withTimeout(ctx, o.timeout)

	or := toOpenAIRequest(req)
	or.Stream = true

	body, err := json.Marshal(or)
	if err != nil {
		cancel()
		return nil, apierr.Wrap(apierr.KindInternal, err, "marshaling openai request")
	}

	httpReq, err := o.newRequest(ctx, body)
	if err != nil {
		cancel()
		return nil, err
	}

	httpResp, err := o.client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, apierr.Wrap(requestErrorKind(ctx, apierr.KindUpstreamUnreachable), err, "calling openai")
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		defer cancel()
		var errBody map[string]any
		_ = json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, openAIHTTPError(httpResp.StatusCode, errBody)
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

		started := false
		closed := false

		_, err = sse.Decode(httpResp.Body,
			func() any { return &openAIStreamResponse{} },
			func(v any) error {
				chunk := v.(*openAIStreamResponse)
				if len(chunk.Choices) == 0 {
					return nil
				}

				if !started {
					started = true
					send(canonical.NewMessageStart(chunk.ID, chunk.Model, canonical.Usage{}))
					send(canonical.NewContentBlockStart(0))
				}

				choice := chunk.Choices[0]
				if choice.Delta.Content != "" {
					send(canonical.NewContentBlockDelta(0, choice.Delta.Content))
				}
				if choice.FinishReason != nil {
					closed = true
					send(canonical.NewContentBlockStop(0))
					send(canonical.NewMessageDelta(mapOpenAIFinishReason(*choice.FinishReason), nil))
					send(canonical.NewMessageStop())
				}
				return nil
			})

		if err != nil {
			if !started {
				send(canonical.NewMessageStart(newSyntheticMessageID(), req.Model, canonical.Usage{}))
				send(canonical.NewContentBlockStart(0))
			}
			send(canonical.NewErrorEvent(err.Error()))
			send(canonical.NewMessageStop())
			return
		}

		// The stream ended (via [DONE] or EOF) without ever sending a
		// finish_reason — close the content block and the message
		// ourselves so the client still sees a complete event sequence.
		if started && !closed {
			send(canonical.NewContentBlockStop(0))
			send(canonical.NewMessageDelta(canonical.StopEndTurn, nil))
			send(canonical.NewMessageStop())
		}
	}()

	return ch, nil
}

func mapOpenAIFinishReason(r string) string {
	switch r {
	case "stop":
		return canonical.StopEndTurn
	case "length":
		return canonical.StopMaxTokens
	case "function_call", "tool_calls":
		return canonical.StopToolUse
	case "content_filter":
		return canonical.StopSequence
	default:
		return canonical.StopSequence
	}
}

// ListModels implements Provider.
func (o *OpenAIProvider) ListModels(ctx context.Context) ([]canonical.ModelInfo, error) {
	return staticModels(o.models, "openai"), nil
}

// HealthCheck implements Provider.
func (o *OpenAIProvider) HealthCheck(ctx context.Context) canonical.HealthStatus {
	start := time.Now()
	model := "gpt-4o-mini"
	if len(o.models) > 0 {
		model = o.models[0]
	}
	_, err := o.Chat(ctx, &canonical.Request{
		Model:     model,
		Messages:  []canonical.Message{{Role: canonical.RoleUser, Content: "ping"}},
		MaxTokens: 1,
	})
	return healthResult("openai", start, err)
}
