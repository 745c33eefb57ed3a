package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/corvidlabs/aigateway/internal/canonical"
)

func validRequest() *canonical.Request {
	return &canonical.Request{
		Model:     "gpt-4o-mini",
		Messages:  []canonical.Message{{Role: canonical.RoleUser, Content: "hello"}},
		MaxTokens: 256,
	}
}

func TestValidateAcceptsAMinimalRequest(t *testing.T) {
	assert.NoError(t, Validate(validRequest()))
}

func TestValidateRejectsEmptyModel(t *testing.T) {
	req := validRequest()
	req.Model = ""
	assert.Error(t, Validate(req))
}

func TestValidateRejectsOversizedModel(t *testing.T) {
	req := validRequest()
	req.Model = strings.Repeat("a", maxModelLen+1)
	assert.Error(t, Validate(req))
}

func TestValidateRejectsInvalidModelCharset(t *testing.T) {
	req := validRequest()
	req.Model = "gpt 4o"
	assert.Error(t, Validate(req))
}

func TestValidateRejectsEmptyMessages(t *testing.T) {
	req := validRequest()
	req.Messages = nil
	assert.Error(t, Validate(req))
}

func TestValidateRejectsFirstMessageNotUser(t *testing.T) {
	req := validRequest()
	req.Messages = []canonical.Message{{Role: canonical.RoleAssistant, Content: "hi"}}
	assert.Error(t, Validate(req))
}

func TestValidateRejectsNonAlternatingRoles(t *testing.T) {
	req := validRequest()
	req.Messages = []canonical.Message{
		{Role: canonical.RoleUser, Content: "hi"},
		{Role: canonical.RoleUser, Content: "again"},
	}
	assert.Error(t, Validate(req))
}

func TestValidateAcceptsAlternatingConversation(t *testing.T) {
	req := validRequest()
	req.Messages = []canonical.Message{
		{Role: canonical.RoleUser, Content: "hi"},
		{Role: canonical.RoleAssistant, Content: "hello"},
		{Role: canonical.RoleUser, Content: "again"},
	}
	assert.NoError(t, Validate(req))
}

func TestValidateRejectsEmptyContent(t *testing.T) {
	req := validRequest()
	req.Messages[0].Content = ""
	assert.Error(t, Validate(req))
}

func TestValidateRejectsOversizedContent(t *testing.T) {
	req := validRequest()
	req.Messages[0].Content = strings.Repeat("x", maxMessageBytes+1)
	assert.Error(t, Validate(req))
}

func TestValidateRejectsNulByteInContent(t *testing.T) {
	req := validRequest()
	req.Messages[0].Content = "hi\x00there"
	assert.Error(t, Validate(req))
}

func TestValidateRejectsTooManyMessages(t *testing.T) {
	req := validRequest()
	var msgs []canonical.Message
	role := canonical.RoleUser
	for i := 0; i < maxMessages+1; i++ {
		msgs = append(msgs, canonical.Message{Role: role, Content: "hi"})
		if role == canonical.RoleUser {
			role = canonical.RoleAssistant
		} else {
			role = canonical.RoleUser
		}
	}
	req.Messages = msgs
	assert.Error(t, Validate(req))
}

func TestValidateMaxTokensBoundaries(t *testing.T) {
	cases := []struct {
		name      string
		maxTokens int
		wantErr   bool
	}{
		{"zero", 0, true},
		{"one", 1, false},
		{"upperBound", 8192, false},
		{"overUpperBound", 8193, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			req.MaxTokens = tc.maxTokens
			err := Validate(req)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateTemperatureBoundaries(t *testing.T) {
	nan := float64Ptr(notANumber())
	cases := []struct {
		name    string
		value   *float64
		wantErr bool
	}{
		{"belowRange", float64Ptr(-0.0001), true},
		{"zero", float64Ptr(0), false},
		{"upperBound", float64Ptr(2), false},
		{"aboveRange", float64Ptr(2.0001), true},
		{"nan", nan, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			req.Temperature = tc.value
			err := Validate(req)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateTopPBoundaries(t *testing.T) {
	req := validRequest()
	req.TopP = float64Ptr(1.5)
	assert.Error(t, Validate(req))

	req.TopP = float64Ptr(1)
	assert.NoError(t, Validate(req))
}

func float64Ptr(f float64) *float64 { return &f }

func notANumber() float64 {
	var zero float64
	return zero / zero
}
