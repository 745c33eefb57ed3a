package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/corvidlabs/aigateway/internal/apierr"
	"github.com/corvidlabs/aigateway/internal/canonical"
	"github.com/corvidlabs/aigateway/internal/sse"
)

// GeminiProvider implements Provider against Google's Gemini
// generateContent API. Gemini's wire shape diverges from the canonical
// schema the most of the three backends: messages nest under "contents"
// with multimodal "parts", the API key travels as a query parameter, and
// neither the unary nor the streaming response carries a response ID —
// the gateway mints one so canonical.Response.ID is never empty.
type GeminiProvider struct {
	apiKey  string
	apiBase string // e.g. "https://generativelanguage.googleapis.com/v1beta/"
	models  []string
	client  *http.Client
	limiter *rate.Limiter
	timeout time.Duration
}

func NewGeminiProvider(cfg Config, client *http.Client) *GeminiProvider {
	return &GeminiProvider{
		apiKey:  cfg.APIKey,
		apiBase: cfg.APIBase,
		models:  cfg.Models,
		client:  client,
		limiter: newLimiter(cfg.RateLimit),
		timeout: cfg.Timeout,
	}
}

func (g *GeminiProvider) Name() string { return "gemini" }

// --- wire types -------------------------------------------------------

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata"`
	Error         *geminiError         `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     uint32 `json:"promptTokenCount"`
	CandidatesTokenCount uint32 `json:"candidatesTokenCount"`
	TotalTokenCount      uint32 `json:"totalTokenCount"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// toGeminiRequest maps canonical roles (user/assistant) onto Gemini's
// (user/model); the validator already rejects any other role, so no
// system-message bucket is needed here the way the teacher's version had
// one (OpenAI messages could carry role "system", canonical ones cannot).
func toGeminiRequest(req *canonical.Request) (*geminiRequest, error) {
	gr := &geminiRequest{}

	for _, msg := range req.Messages {
		role := msg.Role
		switch role {
		case canonical.RoleAssistant:
			role = "model"
		case canonical.RoleUser:
			// no remap
		default:
			return nil, apierr.New(apierr.KindInvalidRequest, "unsupported message role %q for gemini", msg.Role)
		}
		gr.Contents = append(gr.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}

	if req.MaxTokens > 0 || req.Temperature != nil || req.TopP != nil {
		gr.GenerationConfig = &geminiGenerationConfig{
			Temperature: req.Temperature,
			TopP:        req.TopP,
		}
		if req.MaxTokens > 0 {
			gr.GenerationConfig.MaxOutputTokens = req.MaxTokens
		}
	}

	return gr, nil
}

func (g *GeminiProvider) unaryURL(model string) string {
	return fmt.Sprintf("%smodels/%s:generateContent?key=%s", g.apiBase, model, g.apiKey)
}

func (g *GeminiProvider) streamURL(model string) string {
	return fmt.Sprintf("%smodels/%s:streamGenerateContent?alt=sse&key=%s", g.apiBase, model, g.apiKey)
}

func geminiHTTPError(status int, body map[string]any) *apierr.Error {
	msg := fmt.Sprintf("gemini returned status %d", status)
	kind := apierr.KindUpstreamProtocol
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = apierr.KindAuthentication
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

// extractText concatenates every text part of the first candidate — a
// multi-part response is still a single canonical text block, matching
// how the Rust original's extract_text_content joins parts rather than
// just reading parts[0].
func extractText(resp *geminiResponse) (string, error) {
	if resp.Error != nil {
		return "", apierr.New(apierr.KindUpstreamProtocol, "%s", resp.Error.Message)
	}
	if len(resp.Candidates) == 0 {
		return "", apierr.New(apierr.KindUpstreamFormat, "gemini returned no candidates")
	}
	parts := resp.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return "", apierr.New(apierr.KindUpstreamFormat, "gemini candidate has no parts")
	}
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.Text)
	}
	if b.Len() == 0 {
		return "", apierr.New(apierr.KindUpstreamFormat, "gemini candidate produced empty text")
	}
	return b.String(), nil
}

// Chat implements Provider.
func (g *GeminiProvider) Chat(ctx context.Context, req *canonical.Request) (*canonical.Response, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, apierr.Wrap(apierr.KindUpstreamTimeout, err, "rate limiter wait")
	}

	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	greq, err := toGeminiRequest(req)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(greq)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, err, "marshaling gemini request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.unaryURL(req.Model), bytes.NewReader(body))
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, err, "building gemini request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, apierr.Wrap(requestErrorKind(ctx, apierr.KindUpstreamUnreachable), err, "calling gemini")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		var errBody map[string]any
		_ = json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, geminiHTTPError(httpResp.StatusCode, errBody)
	}

	var gresp geminiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&gresp); err != nil {
		return nil, apierr.Wrap(requestErrorKind(ctx, apierr.KindUpstreamFormat), err, "decoding gemini response")
	}

	text, err := extractText(&gresp)
	if err != nil {
		return nil, err
	}

	resp := &canonical.Response{
		ID:      newSyntheticMessageID(),
		Model:   req.Model,
		Content: []canonical.ContentBlock{{Type: "text", Text: text}},
	}
	if gresp.UsageMetadata != nil {
		resp.Usage = canonical.Usage{
			InputTokens:  gresp.UsageMetadata.PromptTokenCount,
			OutputTokens: gresp.UsageMetadata.CandidatesTokenCount,
		}
	}
	return resp, nil
}

// ChatStream implements Provider. Gemini's SSE stream repeats the full
// response shape on every event instead of Anthropic's named deltas, so
// this adapter synthesizes the message_start/content_block_start pair on
// the first event the teacher's google.go never had to produce.
func (g *GeminiProvider) ChatStream(ctx context.Context, req *canonical.Request) (<-chan canonical.StreamEvent, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, apierr.Wrap(apierr.KindUpstreamTimeout, err, "rate limiter wait")
	}

	ctx, cancel := withTimeout(ctx, g.timeout)

	greq, err := toGeminiRequest(req)
	if err != nil {
		cancel()
		return nil, err
	}

	body, err := json.Marshal(greq)
	if err != nil {
		cancel()
		return nil, apierr.Wrap(apierr.KindInternal, err, "marshaling gemini request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.streamURL(req.Model), bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, apierr.Wrap(apierr.KindInternal, err, "building gemini request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, apierr.Wrap(requestErrorKind(ctx, apierr.KindUpstreamUnreachable), err, "calling gemini")
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		defer cancel()
		var errBody map[string]any
		_ = json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, geminiHTTPError(httpResp.StatusCode, errBody)
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

		respID := newSyntheticMessageID()
		started := false

		_, err := sse.Decode(httpResp.Body,
			func() any { return &geminiResponse{} },
			func(v any) error {
				gresp := v.(*geminiResponse)
				if gresp.Error != nil {
					return apierr.New(apierr.KindUpstreamProtocol, "%s", gresp.Error.Message)
				}
				if len(gresp.Candidates) == 0 {
					return nil
				}

				if !started {
					started = true
					send(canonical.NewMessageStart(respID, req.Model, canonical.Usage{}))
					send(canonical.NewContentBlockStart(0))
				}

				candidate := gresp.Candidates[0]
				var text string
				for _, p := range candidate.Content.Parts {
					text += p.Text
				}
				if text != "" {
					send(canonical.NewContentBlockDelta(0, text))
				}

				if candidate.FinishReason != "" {
					send(canonical.NewContentBlockStop(0))
					usage := canonical.Usage{}
					if gresp.UsageMetadata != nil {
						usage.InputTokens = gresp.UsageMetadata.PromptTokenCount
						usage.OutputTokens = gresp.UsageMetadata.CandidatesTokenCount
					}
					send(canonical.NewMessageDelta(mapGeminiFinishReason(candidate.FinishReason), &usage))
					send(canonical.NewMessageStop())
				}
				return nil
			})

		if err != nil {
			if !started {
				send(canonical.NewMessageStart(respID, req.Model, canonical.Usage{}))
				send(canonical.NewContentBlockStart(0))
			}
			send(canonical.NewErrorEvent(err.Error()))
			send(canonical.NewMessageStop())
		}
	}()

	return ch, nil
}

func mapGeminiFinishReason(r string) string {
	switch r {
	case "STOP":
		return canonical.StopEndTurn
	case "MAX_TOKENS":
		return canonical.StopMaxTokens
	case "SAFETY", "RECITATION":
		return canonical.StopSequence
	default:
		// original_source/src/providers/gemini/model.rs maps every other
		// finishReason (OTHER, BLOCKLIST, MALFORMED_FUNCTION_CALL, ...)
		// to stop_sequence rather than treating it as a normal end_turn.
		return canonical.StopSequence
	}
}

// ListModels implements Provider.
func (g *GeminiProvider) ListModels(ctx context.Context) ([]canonical.ModelInfo, error) {
	return staticModels(g.models, "gemini"), nil
}

// HealthCheck implements Provider.
func (g *GeminiProvider) HealthCheck(ctx context.Context) canonical.HealthStatus {
	start := time.Now()
	model := "gemini-2.0-flash"
	if len(g.models) > 0 {
		model = g.models[0]
	}
	_, err := g.Chat(ctx, &canonical.Request{
		Model:     model,
		Messages:  []canonical.Message{{Role: canonical.RoleUser, Content: "ping"}},
		MaxTokens: 1,
	})
	return healthResult("gemini", start, err)
}
