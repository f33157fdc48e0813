// update.go maps session/update payloads to agentbridge.Update values.
//
// Updates arrive as a two-level envelope:
//
//	outer: {"sessionId":"...", "update": <inner>}
//	inner: {"sessionUpdate":"agent_message_chunk", "content":{...}}
//
// parseUpdateEnvelope unpacks the outer envelope; parseSessionUpdate
// dispatches on the sessionUpdate discriminator via updateParsers.
// Adding an update type = one map entry + one function.
package acp

import (
	"encoding/json"

	"github.com/dstanek/agentbridge"
	"github.com/dstanek/agentbridge/internal/errfmt"
)

// ParseUpdate extracts the Update carried by a session/update
// notification. Returns false for other methods and for payloads that
// do not parse.
func ParseUpdate(n agentbridge.Notification) (agentbridge.Update, bool) {
	if n.Request || n.Method != MethodSessionUpdate {
		return agentbridge.Update{}, false
	}
	_, u, ok := parseUpdateEnvelope(n.Params)
	return u, ok
}

// updateParser fills in the kind-specific fields of an Update.
type updateParser func(inner json.RawMessage, u *agentbridge.Update)

var updateParsers = map[string]updateParser{
	agentbridge.UpdateAgentMessageChunk: parseContentChunk,
	agentbridge.UpdateAgentThoughtChunk: parseContentChunk,
	agentbridge.UpdateToolCall:          parseToolCall,
	agentbridge.UpdateToolCallUpdate:    parseToolCall,
	agentbridge.UpdatePlan:              parsePlan,
}

// parseUpdateEnvelope unpacks a session/update params object. Returns
// false when the envelope or its discriminator cannot be parsed.
func parseUpdateEnvelope(params json.RawMessage) (sessionID string, u agentbridge.Update, ok bool) {
	var env sessionNotification
	if err := json.Unmarshal(params, &env); err != nil {
		return "", agentbridge.Update{}, false
	}
	u, ok = parseSessionUpdate(env.Update)
	return env.SessionID, u, ok
}

// parseSessionUpdate maps one inner update object to an Update.
// Unknown discriminator values still produce an Update — Kind set,
// Raw preserved — so new agent-side types flow through to consumers.
func parseSessionUpdate(inner json.RawMessage) (agentbridge.Update, bool) {
	var header updateHeader
	if err := json.Unmarshal(inner, &header); err != nil || header.SessionUpdate == "" {
		return agentbridge.Update{}, false
	}

	u := agentbridge.Update{
		Kind: header.SessionUpdate,
		Raw:  inner,
	}
	if parser, ok := updateParsers[header.SessionUpdate]; ok {
		parser(inner, &u)
	}
	return u, true
}

// parseContentChunk extracts content.text for chunk kinds. A chunk
// whose content fails to parse keeps its raw payload and empty text.
func parseContentChunk(inner json.RawMessage, u *agentbridge.Update) {
	var d struct {
		Content struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(inner, &d); err != nil {
		return
	}
	u.Text = errfmt.Truncate(d.Content.Text)
}

func parseToolCall(inner json.RawMessage, u *agentbridge.Update) {
	var d struct {
		ToolCallID string          `json:"toolCallId"`
		Title      string          `json:"title"`
		Kind       string          `json:"kind"`
		Status     string          `json:"status"`
		RawInput   json.RawMessage `json:"rawInput"`
		RawOutput  json.RawMessage `json:"rawOutput"`
	}
	if err := json.Unmarshal(inner, &d); err != nil {
		return
	}
	u.Tool = &agentbridge.ToolCall{
		ID:     d.ToolCallID,
		Title:  d.Title,
		Kind:   d.Kind,
		Status: d.Status,
		Input:  d.RawInput,
		Output: d.RawOutput,
	}
}

func parsePlan(inner json.RawMessage, u *agentbridge.Update) {
	var d struct {
		Entries []struct {
			Content  string `json:"content"`
			Priority string `json:"priority"`
			Status   string `json:"status"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(inner, &d); err != nil {
		return
	}
	for _, e := range d.Entries {
		u.Plan = append(u.Plan, agentbridge.PlanEntry{
			Content:  e.Content,
			Priority: e.Priority,
			Status:   e.Status,
		})
	}
}
