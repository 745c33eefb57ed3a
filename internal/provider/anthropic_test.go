package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidlabs/aigateway/internal/apierr"
	"github.com/corvidlabs/aigateway/internal/canonical"
)

func newAnthropicFixture(t *testing.T, handler http.HandlerFunc) *AnthropicProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAnthropicProvider(Config{APIKey: "test-key", APIBase: srv.URL + "/"}, srv.Client())
}

func TestAnthropicChatHappyPath(t *testing.T) {
	p := newAnthropicFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))

		fmt.Fprint(w, `{
			"id": "msg_abc",
			"model": "claude-3-5-sonnet",
			"content": [{"type": "text", "text": "hello there"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 5, "output_tokens": 3}
		}`)
	})

	resp, err := p.Chat(context.Background(), &canonical.Request{
		Model:     "claude-3-5-sonnet",
		Messages:  []canonical.Message{{Role: canonical.RoleUser, Content: "hi"}},
		MaxTokens: 64,
	})

	require.NoError(t, err)
	assert.Equal(t, "msg_abc", resp.ID)
	assert.Equal(t, "hello there", resp.Content[0].Text)
	assert.Equal(t, uint32(5), resp.Usage.InputTokens)
	assert.Equal(t, uint32(3), resp.Usage.OutputTokens)
}

func TestAnthropicChatMapsRateLimitStatus(t *testing.T) {
	p := newAnthropicFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": {"message": "slow down"}}`)
	})

	_, err := p.Chat(context.Background(), &canonical.Request{
		Model:     "claude-3-5-sonnet",
		Messages:  []canonical.Message{{Role: canonical.RoleUser, Content: "hi"}},
		MaxTokens: 64,
	})

	require.Error(t, err)
	gwErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindRateLimited, gwErr.Kind)
	assert.Equal(t, "slow down", gwErr.Message)
	assert.Equal(t, http.StatusTooManyRequests, gwErr.ProviderCode)
}

func TestAnthropicChatMalformedBodyReturnsUpstreamFormat(t *testing.T) {
	p := newAnthropicFixture(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json`)
	})

	_, err := p.Chat(context.Background(), &canonical.Request{
		Model:     "claude-3-5-sonnet",
		Messages:  []canonical.Message{{Role: canonical.RoleUser, Content: "hi"}},
		MaxTokens: 64,
	})

	require.Error(t, err)
	gwErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindUpstreamFormat, gwErr.Kind)
}

func TestAnthropicChatStreamTranslatesEvents(t *testing.T) {
	p := newAnthropicFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		frames := []string{
			`{"type":"message_start","message":{"id":"msg_1","model":"claude-3-5-sonnet","usage":{"input_tokens":4}}}`,
			`{"type":"content_block_delta","delta":{"type":"text_delta","text":"hi"}}`,
			`{"type":"content_block_delta","delta":{"type":"text_delta","text":" there"}}`,
			`{"type":"content_block_stop"}`,
			`{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":2}}`,
			`{"type":"message_stop"}`,
		}
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
		}
	})

	ch, err := p.ChatStream(context.Background(), &canonical.Request{
		Model:     "claude-3-5-sonnet",
		Messages:  []canonical.Message{{Role: canonical.RoleUser, Content: "hi"}},
		MaxTokens: 64,
	})
	require.NoError(t, err)

	var events []canonical.StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}

	// message_start, content_block_start, 2x content_block_delta,
	// content_block_stop, message_delta, message_stop.
	require.Len(t, events, 7)
	assert.Equal(t, "message_start", events[0].EventType())
	start := events[0].(canonical.MessageStart)
	assert.Equal(t, "msg_1", start.Message.ID)

	delta1 := events[2].(canonical.ContentBlockDelta)
	assert.Equal(t, "hi", delta1.Delta.Text)

	msgDelta := events[5].(canonical.MessageDelta)
	assert.Equal(t, "end_turn", msgDelta.Delta.StopReason)
	require.NotNil(t, msgDelta.Delta.Usage)
	assert.Equal(t, uint32(2), msgDelta.Delta.Usage.OutputTokens)

	assert.Equal(t, "message_stop", events[6].EventType())
}

func TestAnthropicChatExpiredTimeoutMapsToUpstreamTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		fmt.Fprint(w, `{"id":"msg_1","content":[{"type":"text","text":"late"}]}`)
	}))
	t.Cleanup(srv.Close)
	p := NewAnthropicProvider(Config{APIKey: "test-key", APIBase: srv.URL + "/", Timeout: time.Millisecond}, srv.Client())

	_, err := p.Chat(context.Background(), &canonical.Request{
		Model:     "claude-3-5-sonnet",
		Messages:  []canonical.Message{{Role: canonical.RoleUser, Content: "hi"}},
		MaxTokens: 64,
	})

	require.Error(t, err)
	gwErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindUpstreamTimeout, gwErr.Kind)
}

func TestAnthropicHealthCheckReportsLatencyAndStatus(t *testing.T) {
	p := newAnthropicFixture(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"msg_1","model":"claude-3-5-haiku-latest","content":[{"type":"text","text":"pong"}],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":1}}`)
	})

	status := p.HealthCheck(context.Background())
	assert.Equal(t, canonical.HealthHealthy, status.Status)
	assert.Equal(t, "anthropic", status.Provider)
	require.NotNil(t, status.LatencyMS)
}

func TestAnthropicListModelsReturnsConfiguredModels(t *testing.T) {
	p := NewAnthropicProvider(Config{Models: []string{"claude-3-5-sonnet", "claude-3-5-haiku"}}, http.DefaultClient)
	models, err := p.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "claude-3-5-sonnet", models[0].ID)
	assert.Equal(t, "anthropic", models[0].OwnedBy)
}
