package acp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dstanek/agentbridge"
)

func TestParseUpdateEnvelope(t *testing.T) {
	params := json.RawMessage(`{
		"sessionId": "s1",
		"update": {
			"sessionUpdate": "agent_message_chunk",
			"content": {"type": "text", "text": "hello"}
		}
	}`)

	sid, u, ok := parseUpdateEnvelope(params)
	require.True(t, ok)
	assert.Equal(t, "s1", sid)
	assert.Equal(t, agentbridge.UpdateAgentMessageChunk, u.Kind)
	assert.Equal(t, "hello", u.Text)
}

func TestParseUpdateEnvelope_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		params string
	}{
		{"not an object", `[1,2,3]`},
		{"no update field", `{"sessionId":"s1"}`},
		{"update not an object", `{"sessionId":"s1","update":"text"}`},
		{"no discriminator", `{"sessionId":"s1","update":{"content":{}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, ok := parseUpdateEnvelope(json.RawMessage(tt.params))
			assert.False(t, ok)
		})
	}
}

func TestParseSessionUpdate_ThoughtChunk(t *testing.T) {
	u, ok := parseSessionUpdate(json.RawMessage(
		`{"sessionUpdate":"agent_thought_chunk","content":{"type":"text","text":"hmm"}}`))
	require.True(t, ok)
	assert.Equal(t, agentbridge.UpdateAgentThoughtChunk, u.Kind)
	assert.Equal(t, "hmm", u.Text)
}

func TestParseSessionUpdate_ToolCall(t *testing.T) {
	u, ok := parseSessionUpdate(json.RawMessage(`{
		"sessionUpdate": "tool_call",
		"toolCallId": "call_1",
		"title": "read_file",
		"kind": "read",
		"status": "pending",
		"rawInput": {"path": "foo.txt"}
	}`))
	require.True(t, ok)
	assert.Equal(t, agentbridge.UpdateToolCall, u.Kind)
	require.NotNil(t, u.Tool)
	assert.Equal(t, "call_1", u.Tool.ID)
	assert.Equal(t, "read_file", u.Tool.Title)
	assert.Equal(t, "read", u.Tool.Kind)
	assert.Equal(t, "pending", u.Tool.Status)
	assert.JSONEq(t, `{"path":"foo.txt"}`, string(u.Tool.Input))
}

func TestParseSessionUpdate_Plan(t *testing.T) {
	u, ok := parseSessionUpdate(json.RawMessage(`{
		"sessionUpdate": "plan",
		"entries": [
			{"content": "read the file", "priority": "high", "status": "in_progress"},
			{"content": "edit it", "priority": "medium", "status": "pending"}
		]
	}`))
	require.True(t, ok)
	assert.Equal(t, agentbridge.UpdatePlan, u.Kind)
	require.Len(t, u.Plan, 2)
	assert.Equal(t, "read the file", u.Plan[0].Content)
	assert.Equal(t, "high", u.Plan[0].Priority)
	assert.Equal(t, "pending", u.Plan[1].Status)
}

// Unknown discriminators still flow through with Kind and Raw set, so
// callers can handle agent-side types added after this client shipped.
func TestParseSessionUpdate_UnknownKind(t *testing.T) {
	inner := json.RawMessage(`{"sessionUpdate":"available_commands_update","commands":[]}`)
	u, ok := parseSessionUpdate(inner)
	require.True(t, ok)
	assert.Equal(t, "available_commands_update", u.Kind)
	assert.JSONEq(t, string(inner), string(u.Raw))
	assert.Empty(t, u.Text)
	assert.Nil(t, u.Tool)
}

func TestParseSessionUpdate_ChunkWithBadContent(t *testing.T) {
	u, ok := parseSessionUpdate(json.RawMessage(
		`{"sessionUpdate":"agent_message_chunk","content":"not-an-object"}`))
	require.True(t, ok)
	assert.Equal(t, agentbridge.UpdateAgentMessageChunk, u.Kind)
	assert.Empty(t, u.Text)
	assert.NotEmpty(t, u.Raw)
}

func FuzzParseSessionUpdate(f *testing.F) {
	f.Add(`{"sessionUpdate":"agent_message_chunk","content":{"text":"x"}}`)
	f.Add(`{"sessionUpdate":"tool_call","toolCallId":"c"}`)
	f.Add(`{"sessionUpdate":"plan","entries":[{}]}`)
	f.Add(`{}`)
	f.Add(`null`)
	f.Add(`"string"`)

	f.Fuzz(func(t *testing.T, inner string) {
		// Must never panic, whatever the agent sends.
		parseSessionUpdate(json.RawMessage(inner))
	})
}
