package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/corvidlabs/aigateway/internal/apierr"
	"github.com/corvidlabs/aigateway/internal/canonical"
	"github.com/corvidlabs/aigateway/internal/sse"
)

// writeError renders err as the public error payload described in
// spec.md §4.9/§7, defaulting unrecognized errors to an internal kind so
// a bug never leaks a raw Go error string to a client.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	gwErr, ok := apierr.As(err)
	if !ok {
		gwErr = apierr.Wrap(apierr.KindInternal, err, "unexpected error")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(gwErr.Status())
	_ = json.NewEncoder(w).Encode(gwErr.ToPayload(time.Now()))
}

// handleHealth is a liveness probe: it never touches a provider, only
// confirms the process is up and serving.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleProviderHealth runs (or serves cached) health probes for every
// configured provider and reports the aggregate: an overall status of
// "healthy" when every provider is healthy, otherwise "degraded", next to
// each provider's own result.
func (s *Server) handleProviderHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	results := make([]canonical.HealthStatus, 0, len(s.registry.Providers()))

	for _, p := range s.registry.Providers() {
		if s.health != nil {
			if cached, ok, err := s.health.Get(ctx, p.Name()); err == nil && ok {
				results = append(results, cached)
				continue
			}
		}
		status := p.HealthCheck(ctx)
		if s.health != nil {
			_ = s.health.Set(ctx, p.Name(), status)
		}
		results = append(results, status)
	}

	overall := canonical.HealthHealthy
	for _, status := range results {
		if status.Status != canonical.HealthHealthy {
			overall = "degraded"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": overall, "providers": results})
}

// handleModels lists every model every configured provider exposes.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var all []canonical.ModelInfo
	for _, p := range s.registry.Providers() {
		models, err := p.ListModels(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Str("provider", p.Name()).Msg("list models failed")
			continue
		}
		all = append(all, models...)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": all})
}

// handleMessages handles POST /v1/messages: decode, dispatch, and either
// write the unary JSON response or relay the SSE stream.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	var req canonical.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apierr.Wrap(apierr.KindInvalidRequest, err, "invalid request body"))
		return
	}

	if req.Stream {
		s.handleMessagesStream(w, r.Context(), &req)
		return
	}

	resp, err := s.dispatch.Chat(r.Context(), &req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleMessagesStream relays the dispatcher's canonical.StreamEvent
// channel to the client as Server-Sent Events, flushing after every
// event so partial output reaches the client immediately.
func (s *Server) handleMessagesStream(w http.ResponseWriter, ctx context.Context, req *canonical.Request) {
	events, err := s.dispatch.ChatStream(ctx, req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, apierr.New(apierr.KindInternal, "response writer does not support flushing"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		frame, err := sse.EncodeJSON(ev)
		if err != nil {
			s.logger.Error().Err(err).Msg("encoding stream event")
			return
		}
		if _, err := w.Write(frame); err != nil {
			return
		}
		flusher.Flush()
	}

	_, _ = w.Write(sse.Encode(sse.Frame{Data: sse.DoneSentinel}))
	flusher.Flush()
}
