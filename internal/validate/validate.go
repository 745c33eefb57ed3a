// Package validate enforces the structural and semantic invariants a
// canonical request must satisfy before it is ever handed to a provider
// adapter. It has no I/O and no hidden state — every check is a pure
// function of the request in hand, same as the teacher's stream and
// provider packages keep request translation free of side effects.
package validate

import (
	"fmt"
	"math"
	"strings"

	"github.com/corvidlabs/aigateway/internal/canonical"
)

const (
	maxModelLen        = 100
	maxMessages         = 100
	maxMessageBytes     = 100 * 1024
	maxTotalBytes       = 200 * 1024
	minMaxTokens        = 1
	maxMaxTokens        = 8192
)

// validModelChar reports whether r is in spec.md's `[A-Za-z0-9._-]`
// charset for model ids.
func validModelChar(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r == '.' || r == '_' || r == '-':
		return true
	default:
		return false
	}
}

// Error is a validation failure. The message is safe to surface directly
// to clients as the body of an invalid_request error.
type Error struct {
	msg string
}

func (e *Error) Error() string { return e.msg }

func fail(format string, args ...any) error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// Validate checks, in order, every invariant spec.md §4.1 requires and
// short-circuits on the first failure. A nil return means req is safe to
// dispatch as-is.
func Validate(req *canonical.Request) error {
	if err := validateModel(req.Model); err != nil {
		return err
	}
	if err := validateMessages(req.Messages); err != nil {
		return err
	}
	if req.MaxTokens < minMaxTokens || req.MaxTokens > maxMaxTokens {
		return fail("max_tokens must be between %d and %d, got %d", minMaxTokens, maxMaxTokens, req.MaxTokens)
	}
	if req.Temperature != nil {
		if err := validateFiniteRange("temperature", *req.Temperature, 0, 2); err != nil {
			return err
		}
	}
	if req.TopP != nil {
		if err := validateFiniteRange("top_p", *req.TopP, 0, 1); err != nil {
			return err
		}
	}
	return nil
}

func validateModel(model string) error {
	if model == "" {
		return fail("model must not be empty")
	}
	if len(model) > maxModelLen {
		return fail("model must be at most %d characters, got %d", maxModelLen, len(model))
	}
	for _, r := range model {
		if !validModelChar(r) {
			return fail("model %q contains an invalid character %q", model, r)
		}
	}
	return nil
}

func validateMessages(messages []canonical.Message) error {
	if len(messages) == 0 {
		return fail("messages must not be empty")
	}
	if len(messages) > maxMessages {
		return fail("messages must contain at most %d entries, got %d", maxMessages, len(messages))
	}
	if messages[0].Role != canonical.RoleUser {
		return fail("the first message must have role %q, got %q", canonical.RoleUser, messages[0].Role)
	}

	totalBytes := 0
	expected := canonical.RoleUser
	for i, msg := range messages {
		if msg.Role != expected {
			return fail("messages must strictly alternate user/assistant; message %d has role %q, expected %q", i, msg.Role, expected)
		}
		if err := validateContent(i, msg.Content); err != nil {
			return err
		}
		totalBytes += len(msg.Content)

		if expected == canonical.RoleUser {
			expected = canonical.RoleAssistant
		} else {
			expected = canonical.RoleUser
		}
	}

	if totalBytes > maxTotalBytes {
		return fail("total message content must be at most %d bytes, got %d", maxTotalBytes, totalBytes)
	}
	return nil
}

func validateContent(index int, content string) error {
	if content == "" {
		return fail("message %d content must not be empty", index)
	}
	if len(content) > maxMessageBytes {
		return fail("message %d content must be at most %d bytes, got %d", index, maxMessageBytes, len(content))
	}
	if strings.IndexByte(content, 0) != -1 {
		return fail("message %d content must not contain a NUL byte", index)
	}
	return nil
}

func validateFiniteRange(field string, v, lo, hi float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fail("%s must be a finite number, got %v", field, v)
	}
	if v < lo || v > hi {
		return fail("%s must be between %v and %v, got %v", field, lo, hi, v)
	}
	return nil
}
