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

func newOpenAIFixture(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIProvider(Config{APIKey: "sk-test", APIBase: srv.URL + "/"}, srv.Client())
}

func TestOpenAIChatHappyPath(t *testing.T) {
	p := newOpenAIFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		fmt.Fprint(w, `{
			"id": "chatcmpl-1",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "hi there"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 3, "completion_tokens": 2}
		}`)
	})

	resp, err := p.Chat(context.Background(), &canonical.Request{
		Model:     "gpt-4o-mini",
		Messages:  []canonical.Message{{Role: canonical.RoleUser, Content: "hi"}},
		MaxTokens: 64,
	})

	require.NoError(t, err)
	assert.Equal(t, "chatcmpl-1", resp.ID)
	assert.Equal(t, "hi there", resp.Content[0].Text)
	assert.Equal(t, uint32(3), resp.Usage.InputTokens)
	assert.Equal(t, uint32(2), resp.Usage.OutputTokens)
}

func TestOpenAIChatNoChoicesReturnsUpstreamFormat(t *testing.T) {
	p := newOpenAIFixture(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": "chatcmpl-1", "choices": []}`)
	})

	_, err := p.Chat(context.Background(), &canonical.Request{
		Model:     "gpt-4o-mini",
		Messages:  []canonical.Message{{Role: canonical.RoleUser, Content: "hi"}},
		MaxTokens: 64,
	})

	require.Error(t, err)
	gwErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindUpstreamFormat, gwErr.Kind)
}

func TestOpenAIChatAuthFailureMapsToAuthenticationKind(t *testing.T) {
	p := newOpenAIFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": {"message": "invalid api key"}}`)
	})

	_, err := p.Chat(context.Background(), &canonical.Request{
		Model:     "gpt-4o-mini",
		Messages:  []canonical.Message{{Role: canonical.RoleUser, Content: "hi"}},
		MaxTokens: 64,
	})

	require.Error(t, err)
	gwErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindAuthentication, gwErr.Kind)
	assert.Equal(t, "invalid api key", gwErr.Message)
}

func TestOpenAIChatStreamSynthesizesMessageStartFromFirstChunk(t *testing.T) {
	p := newOpenAIFixture(t, func(w http.ResponseWriter, r *http.Request) {
		frames := []string{
			`{"id":"chatcmpl-2","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"role":"assistant"},"finish_reason":null}]}`,
			`{"id":"chatcmpl-2","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":"hi"},"finish_reason":null}]}`,
			`{"id":"chatcmpl-2","model":"gpt-4o-mini","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		}
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	ch, err := p.ChatStream(context.Background(), &canonical.Request{
		Model:     "gpt-4o-mini",
		Messages:  []canonical.Message{{Role: canonical.RoleUser, Content: "hi"}},
		MaxTokens: 64,
	})
	require.NoError(t, err)

	var events []canonical.StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}

	require.True(t, len(events) >= 5)
	start := events[0].(canonical.MessageStart)
	assert.Equal(t, "chatcmpl-2", start.Message.ID)
	assert.Equal(t, "message_stop", events[len(events)-1].EventType())

	delta := events[2].(canonical.ContentBlockDelta)
	assert.Equal(t, "hi", delta.Delta.Text)
}

func TestOpenAIChatStreamSynthesizesClosureWhenFinishReasonNeverArrives(t *testing.T) {
	p := newOpenAIFixture(t, func(w http.ResponseWriter, r *http.Request) {
		frames := []string{
			`{"id":"chatcmpl-3","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"role":"assistant"},"finish_reason":null}]}`,
			`{"id":"chatcmpl-3","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":"hi"},"finish_reason":null}]}`,
		}
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	ch, err := p.ChatStream(context.Background(), &canonical.Request{
		Model:     "gpt-4o-mini",
		Messages:  []canonical.Message{{Role: canonical.RoleUser, Content: "hi"}},
		MaxTokens: 64,
	})
	require.NoError(t, err)

	var events []canonical.StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}

	// message_start, content_block_start, content_block_delta,
	// content_block_stop, message_delta, message_stop — the closure
	// triple synthesized since no finish_reason ever arrived.
	require.Len(t, events, 6)
	assert.Equal(t, "content_block_stop", events[3].EventType())
	msgDelta := events[4].(canonical.MessageDelta)
	assert.Equal(t, canonical.StopEndTurn, msgDelta.Delta.StopReason)
	assert.Equal(t, "message_stop", events[5].EventType())
}

func TestOpenAIChatExpiredTimeoutMapsToUpstreamTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		fmt.Fprint(w, `{"id":"chatcmpl-1","choices":[{"index":0,"message":{"role":"assistant","content":"late"},"finish_reason":"stop"}]}`)
	}))
	t.Cleanup(srv.Close)
	p := NewOpenAIProvider(Config{APIKey: "sk-test", APIBase: srv.URL + "/", Timeout: time.Millisecond}, srv.Client())

	_, err := p.Chat(context.Background(), &canonical.Request{
		Model:     "gpt-4o-mini",
		Messages:  []canonical.Message{{Role: canonical.RoleUser, Content: "hi"}},
		MaxTokens: 64,
	})

	require.Error(t, err)
	gwErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindUpstreamTimeout, gwErr.Kind)
}

func TestOpenAIChatStreamMapsFinishReasons(t *testing.T) {
	cases := map[string]string{
		"stop":            canonical.StopEndTurn,
		"length":          canonical.StopMaxTokens,
		"tool_calls":      canonical.StopToolUse,
		"content_filter":  canonical.StopSequence,
	}
	for reason, want := range cases {
		assert.Equal(t, want, mapOpenAIFinishReason(reason), "reason %s", reason)
	}
}
