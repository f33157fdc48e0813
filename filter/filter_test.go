package filter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dstanek/agentbridge"
	"github.com/dstanek/agentbridge/acp"
)

func updateNotification(sessionID, kind, text string) agentbridge.Notification {
	inner, _ := json.Marshal(map[string]any{
		"sessionUpdate": kind,
		"content":       map[string]string{"type": "text", "text": text},
	})
	params, _ := json.Marshal(map[string]any{
		"sessionId": sessionID,
		"update":    json.RawMessage(inner),
	})
	return agentbridge.Notification{
		Method:    acp.MethodSessionUpdate,
		SessionID: sessionID,
		Params:    params,
	}
}

func TestMethods(t *testing.T) {
	var got []string
	fn := Methods(func(n agentbridge.Notification) {
		got = append(got, n.Method)
	}, acp.MethodSessionUpdate)

	fn(agentbridge.Notification{Method: acp.MethodSessionUpdate})
	fn(agentbridge.Notification{Method: acp.MethodRequestPermission})
	fn(agentbridge.Notification{Method: acp.MethodSessionUpdate})

	assert.Equal(t, []string{acp.MethodSessionUpdate, acp.MethodSessionUpdate}, got)
}

func TestSessions(t *testing.T) {
	var got []string
	fn := Sessions(func(n agentbridge.Notification) {
		got = append(got, n.SessionID)
	}, "s1", "s3")

	fn(agentbridge.Notification{SessionID: "s1"})
	fn(agentbridge.Notification{SessionID: "s2"})
	fn(agentbridge.Notification{SessionID: "s3"})

	assert.Equal(t, []string{"s1", "s3"}, got)
}

func TestRequests(t *testing.T) {
	count := 0
	fn := Requests(func(agentbridge.Notification) { count++ })

	fn(agentbridge.Notification{Method: acp.MethodRequestPermission, Request: true})
	fn(agentbridge.Notification{Method: acp.MethodSessionUpdate})

	assert.Equal(t, 1, count)
}

func TestUpdates(t *testing.T) {
	var texts []string
	fn := Updates(func(sessionID string, u agentbridge.Update) {
		assert.Equal(t, "s1", sessionID)
		texts = append(texts, u.Text)
	})

	fn(updateNotification("s1", agentbridge.UpdateAgentMessageChunk, "hello"))
	fn(agentbridge.Notification{Method: acp.MethodRequestPermission, Request: true})
	fn(agentbridge.Notification{Method: acp.MethodSessionUpdate, Params: json.RawMessage(`garbage`)})

	assert.Equal(t, []string{"hello"}, texts)
}

func TestKinds(t *testing.T) {
	var kinds []string
	fn := Kinds(func(_ string, u agentbridge.Update) {
		kinds = append(kinds, u.Kind)
	}, agentbridge.UpdateAgentMessageChunk)

	fn(updateNotification("s1", agentbridge.UpdateAgentMessageChunk, "a"))
	fn(updateNotification("s1", agentbridge.UpdateAgentThoughtChunk, "b"))
	fn(updateNotification("s1", agentbridge.UpdateAgentMessageChunk, "c"))

	assert.Equal(t, []string{
		agentbridge.UpdateAgentMessageChunk,
		agentbridge.UpdateAgentMessageChunk,
	}, kinds)
}
