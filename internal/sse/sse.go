// Package sse frames and parses Server-Sent Events. It is the wire-level
// plumbing shared by the outbound canonical stream (Encode) and the
// inbound OpenAI-shaped upstream stream (Decode). Like the validator, it
// is pure: no I/O of its own, just text in, text out.
package sse

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Frame is one SSE record to encode. Event and ID are optional; Data is
// required (an empty Data still produces a heartbeat-shaped blank line).
type Frame struct {
	Event string
	ID    string
	Data  string
}

// Encode renders f per the SSE text framing: an optional "event:" line, an
// optional "id:" line, one "data:" line per line of f.Data (splitting on
// "\n" without producing a trailing empty data line for a trailing "\n"),
// and a single blank line terminating the record.
func Encode(f Frame) []byte {
	var b strings.Builder

	if f.Event != "" {
		b.WriteString("event: ")
		b.WriteString(f.Event)
		b.WriteByte('\n')
	}
	if f.ID != "" {
		b.WriteString("id: ")
		b.WriteString(f.ID)
		b.WriteByte('\n')
	}

	lines := splitDataLines(f.Data)
	for _, line := range lines {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	return []byte(b.String())
}

// splitDataLines splits data on "\n" the way the SSE spec wants a
// multi-line payload framed: a trailing newline does not produce a
// trailing empty "data: " line.
func splitDataLines(data string) []string {
	if data == "" {
		return nil
	}
	data = strings.TrimSuffix(data, "\n")
	if data == "" {
		return []string{""}
	}
	return strings.Split(data, "\n")
}

// EncodeJSON is a convenience wrapper: marshal v, then frame it as a
// single-line data-only SSE record (the shape every canonical stream
// event uses — no "event:" name, per spec.md §6, since the JSON "type"
// discriminator is sufficient).
func EncodeJSON(v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling sse payload: %w", err)
	}
	return Encode(Frame{Data: string(payload)}), nil
}

// DoneSentinel is the OpenAI-style terminal marker some upstreams send
// instead of (or before) a structured finish event.
const DoneSentinel = "[DONE]"

// Decode reads r as an upstream SSE stream and invokes onData for every
// "data: " line whose payload is not the [DONE] sentinel, after JSON
// decoding it into v via the supplied factory. Lines that don't start
// with "data: " are ignored, matching spec.md §4.2's decode contract.
// It returns sawDone=true the moment the [DONE] sentinel is read, and
// stops reading further lines — the caller decides what a stream that
// ends without ever seeing [DONE] means.
//
// newValue must return a fresh pointer every call; Decode does not reuse
// it across events.
func Decode(r io.Reader, newValue func() any, onData func(v any) error) (sawDone bool, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == DoneSentinel {
			return true, nil
		}

		v := newValue()
		if err := json.Unmarshal([]byte(payload), v); err != nil {
			return false, fmt.Errorf("decoding sse payload: %w", err)
		}
		if err := onData(v); err != nil {
			return false, err
		}
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("reading sse stream: %w", err)
	}
	return false, nil
}
