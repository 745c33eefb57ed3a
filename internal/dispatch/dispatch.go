// Package dispatch implements the orchestrator that sits between the
// HTTP adapter and the provider registry: validate, resolve, call, and
// — for streaming — wrap the provider's event channel so cancellation,
// metrics, and tracing all happen in one place regardless of which
// backend served the request. This is the component spec.md's C9 names;
// its shape is new (the teacher's handler.go calls resolveProvider and
// the adapter directly, with no separate orchestration layer), built in
// the teacher's layering style of "handler stays thin, the real call
// graph lives in internal/ packages".
package dispatch

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/corvidlabs/aigateway/internal/apierr"
	"github.com/corvidlabs/aigateway/internal/canonical"
	"github.com/corvidlabs/aigateway/internal/metrics"
	"github.com/corvidlabs/aigateway/internal/registry"
	"github.com/corvidlabs/aigateway/internal/validate"
)

// Dispatcher routes a validated canonical request to the provider its
// model resolves to and records the outcome.
type Dispatcher struct {
	registry *registry.Registry
	metrics  metrics.Recorder
	tracer   trace.Tracer
}

// New builds a Dispatcher. rec may be nil, in which case dispatch
// proceeds without recording metrics — useful for tests that don't want
// to stand up a Prometheus registry.
func New(reg *registry.Registry, rec metrics.Recorder) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		metrics:  rec,
		tracer:   otel.Tracer("aigateway/dispatch"),
	}
}

// Chat validates req, resolves its model to a provider, and returns the
// complete response.
func (d *Dispatcher) Chat(ctx context.Context, req *canonical.Request) (*canonical.Response, error) {
	ctx, span := d.tracer.Start(ctx, "dispatch.Chat")
	defer span.End()

	if err := validate.Validate(req); err != nil {
		return nil, apierr.Wrap(apierr.KindInvalidRequest, err, "%s", err.Error())
	}

	p, err := d.registry.Resolve(req.Model)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := p.Chat(ctx, req)
	d.record(p.Name(), req.Model, false, start, err)
	return resp, err
}

// ChatStream validates req, resolves its model to a provider, and
// returns the provider's event channel, recording dispatch metrics once
// the stream has fully drained or ctx is cancelled mid-stream. A
// resolution or pre-flight adapter
// failure (e.g. the initial HTTP connect failing) is returned directly;
// once the channel is handed back, failures surface as canonical error
// events within the stream itself per spec.md §4.8.
func (d *Dispatcher) ChatStream(ctx context.Context, req *canonical.Request) (<-chan canonical.StreamEvent, error) {
	ctx, span := d.tracer.Start(ctx, "dispatch.ChatStream")

	if err := validate.Validate(req); err != nil {
		span.End()
		return nil, apierr.Wrap(apierr.KindInvalidRequest, err, "%s", err.Error())
	}

	p, err := d.registry.Resolve(req.Model)
	if err != nil {
		span.End()
		return nil, err
	}

	upstream, err := p.ChatStream(ctx, req)
	if err != nil {
		span.End()
		d.record(p.Name(), req.Model, true, time.Now(), err)
		return nil, err
	}

	if d.metrics != nil {
		d.metrics.IncActiveStreams(1)
	}
	start := time.Now()

	out := make(chan canonical.StreamEvent)
	go func() {
		defer close(out)
		defer span.End()
		var streamErr error
		defer func() {
			if d.metrics != nil {
				d.metrics.IncActiveStreams(-1)
			}
			d.record(p.Name(), req.Model, true, start, streamErr)
		}()
		for ev := range upstream {
			if e, ok := ev.(canonical.Error); ok {
				streamErr = apierr.New(apierr.KindUpstreamProtocol, "%s", e.Message)
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				streamErr = ctx.Err()
				return
			}
		}
	}()

	return out, nil
}

func (d *Dispatcher) record(providerName, model string, streaming bool, start time.Time, err error) {
	if d.metrics == nil {
		return
	}
	d.metrics.ObserveDispatch(providerName, model, streaming, time.Since(start), err)
}
