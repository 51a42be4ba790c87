package anthropic

import (
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSDKMessages(t *testing.T) {
	t.Parallel()

	msgs := toSDKMessages([]Message{
		{Role: "user", Content: "question"},
		{Role: "assistant", Content: "answer"},
		{Role: "", Content: "defaults to user"},
	})

	require.Len(t, msgs, 3)
	assert.Equal(t, sdk.MessageParamRoleUser, msgs[0].Role)
	assert.Equal(t, sdk.MessageParamRoleAssistant, msgs[1].Role)
	assert.Equal(t, sdk.MessageParamRoleUser, msgs[2].Role)
}

func TestFromSDKMessage(t *testing.T) {
	t.Parallel()

	msg := &sdk.Message{
		ID:         "msg_01",
		Model:      "claude-sonnet-4-5",
		StopReason: "end_turn",
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "first "},
			{Type: "tool_use"},
			{Type: "text", Text: "second"},
		},
		Usage: sdk.Usage{InputTokens: 10, OutputTokens: 5},
	}

	got := fromSDKMessage(msg)

	assert.Equal(t, "msg_01", got.ID)
	assert.Equal(t, "first second", got.Text)
	assert.Equal(t, "end_turn", got.StopReason)
	assert.Equal(t, int64(10), got.Usage.InputTokens)
	assert.Equal(t, int64(5), got.Usage.OutputTokens)
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	c := NewClient("test-key")
	require.NotNil(t, c)
}
