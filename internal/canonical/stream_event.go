package canonical

// StreamEvent is the tagged union carried over a canonical SSE stream.
// Go has no sum types, so each variant is its own struct, all satisfying
// this marker interface via EventType() (unlike the decode-side
// anthropicStreamEvent in internal/provider/anthropic.go, which is a
// single struct with optional pointer fields), and
// json.Marshal relies on every variant embedding its own literal "type"
// field rather than a shared discriminator computed at encode time.
type StreamEvent interface {
	EventType() string
}

// MessageStart opens a response. Emitted exactly once, first.
type MessageStart struct {
	Type    string              `json:"type"`
	Message MessageStartPayload `json:"message"`
}

type MessageStartPayload struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
	Usage   Usage          `json:"usage"`
}

func NewMessageStart(id, model string, usage Usage) MessageStart {
	return MessageStart{
		Type: "message_start",
		Message: MessageStartPayload{
			ID:      id,
			Model:   model,
			Role:    RoleAssistant,
			Content: []ContentBlock{},
			Usage:   usage,
		},
	}
}

func (MessageStart) EventType() string { return "message_start" }

// ContentBlockStart opens block Index.
type ContentBlockStart struct {
	Type         string       `json:"type"`
	Index        uint32       `json:"index"`
	ContentBlock ContentBlock `json:"content_block"`
}

func NewContentBlockStart(index uint32) ContentBlockStart {
	return ContentBlockStart{
		Type:         "content_block_start",
		Index:        index,
		ContentBlock: ContentBlock{Type: "text", Text: ""},
	}
}

func (ContentBlockStart) EventType() string { return "content_block_start" }

// ContentBlockDelta appends Delta.Text to block Index.
type ContentBlockDelta struct {
	Type  string    `json:"type"`
	Index uint32    `json:"index"`
	Delta TextDelta `json:"delta"`
}

type TextDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func NewContentBlockDelta(index uint32, text string) ContentBlockDelta {
	return ContentBlockDelta{
		Type:  "content_block_delta",
		Index: index,
		Delta: TextDelta{Type: "text_delta", Text: text},
	}
}

func (ContentBlockDelta) EventType() string { return "content_block_delta" }

// ContentBlockStop closes block Index.
type ContentBlockStop struct {
	Type  string `json:"type"`
	Index uint32 `json:"index"`
}

func NewContentBlockStop(index uint32) ContentBlockStop {
	return ContentBlockStop{Type: "content_block_stop", Index: index}
}

func (ContentBlockStop) EventType() string { return "content_block_stop" }

// MessageDelta carries terminal metadata: the stop reason and/or a final
// usage update. Both fields are optional, mirroring spec.md's
// `{delta:{stop_reason?: String, usage?: {input,output}}}`.
type MessageDelta struct {
	Type  string              `json:"type"`
	Delta MessageDeltaPayload `json:"delta"`
}

type MessageDeltaPayload struct {
	StopReason string `json:"stop_reason,omitempty"`
	Usage      *Usage `json:"usage,omitempty"`
}

func NewMessageDelta(stopReason string, usage *Usage) MessageDelta {
	return MessageDelta{
		Type:  "message_delta",
		Delta: MessageDeltaPayload{StopReason: stopReason, Usage: usage},
	}
}

func (MessageDelta) EventType() string { return "message_delta" }

// MessageStop closes the response. Emitted exactly once, last.
type MessageStop struct {
	Type string `json:"type"`
}

func NewMessageStop() MessageStop { return MessageStop{Type: "message_stop"} }

func (MessageStop) EventType() string { return "message_stop" }

// Error is a terminal failure surfaced mid-stream. If emitted,
// MessageStop still follows it (the closure triple's "error" detour).
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewErrorEvent(message string) Error {
	return Error{Type: "error", Message: message}
}

func (Error) EventType() string { return "error" }
