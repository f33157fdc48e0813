//go:build ignore

// Command mock-acp simulates an ACP agent for integration tests.
// It speaks newline-delimited JSON-RPC 2.0 over stdin/stdout:
// initialize, session/new, session/prompt, session/cancel, plus
// reverse requests for permissions and file access.
//
// Environment variables control behavior:
//
//	AGENTBRIDGE_MOCK_MODE=handshake-crash   — exit after initialize (before session/new)
//	AGENTBRIDGE_MOCK_MODE=init-error        — return JSON-RPC error to initialize
//	AGENTBRIDGE_MOCK_MODE=prompt-error-auth — return an auth error to session/prompt
//	AGENTBRIDGE_MOCK_MODE=garbage           — emit a non-JSON line before the updates
//	AGENTBRIDGE_MOCK_MODE=permission        — send session/request_permission during prompt
//	AGENTBRIDGE_MOCK_MODE=fs                — write then read a file via reverse requests
//	AGENTBRIDGE_MOCK_MODE=slow-prompt       — delay prompt response, report "cancelled" on session/cancel
//	AGENTBRIDGE_MOCK_MODE=prompt-then-exit  — respond to prompt then exit
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

var (
	enc     = json.NewEncoder(os.Stdout)
	scanner = bufio.NewScanner(os.Stdin)
	mode    = os.Getenv("AGENTBRIDGE_MOCK_MODE")
	nextID  int64
)

func main() {
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		var req rpcRequest
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		handleRequest(&req)
	}
}

func handleRequest(req *rpcRequest) {
	switch req.Method {
	case "initialize":
		handleInitialize(req)
	case "session/new":
		handleSessionNew(req)
	case "session/prompt":
		handleSessionPrompt(req)
	}
}

func handleInitialize(req *rpcRequest) {
	if mode == "init-error" {
		respondError(req.ID, -32600, "mock init error")
		return
	}
	respond(req.ID, map[string]any{
		"protocolVersion": 1,
		"agentInfo": map[string]string{
			"name":    "mock-acp",
			"version": "0.1.0",
		},
		"authMethods": []map[string]any{
			{
				"id":   "device-code",
				"name": "Device code",
				"_meta": map[string]any{
					"terminal": map[string]any{
						"command": "mock-login",
						"args":    []string{"--device"},
					},
				},
			},
		},
	})
	if mode == "handshake-crash" {
		os.Exit(1)
	}
}

func handleSessionNew(req *rpcRequest) {
	respond(req.ID, map[string]any{
		"sessionId": "mock-session-001",
		"models": map[string]any{
			"currentModelId": "base",
			"availableModels": []map[string]any{
				{"modelId": "base", "name": "Base"},
				{
					"modelId":     "premium",
					"name":        "Premium",
					"description": "Bigger model",
					"_meta":       map[string]string{"copilotUsage": "1x"},
				},
			},
		},
	})
}

func handleSessionPrompt(req *rpcRequest) {
	var params struct {
		SessionID string `json:"sessionId"`
	}
	_ = json.Unmarshal(req.Params, &params)
	sid := params.SessionID

	switch mode {
	case "prompt-error-auth":
		respondError(req.ID, -32000, "authentication required: please run login")
		return
	case "slow-prompt":
		// Block on the next frame; a session/cancel notification ends
		// the turn with the agent's own cancelled stop reason.
		if scanner.Scan() {
			var next rpcRequest
			if err := json.Unmarshal(scanner.Bytes(), &next); err == nil && next.Method == "session/cancel" {
				respond(req.ID, map[string]any{"stopReason": "cancelled"})
				return
			}
		}
		time.Sleep(2 * time.Second)
	case "garbage":
		fmt.Fprintln(os.Stdout, "mock-acp starting up, this is not JSON")
	case "permission":
		sendPermissionRequest(sid)
	case "fs":
		runFSExchange(sid)
	}

	notifyUpdate(sid, map[string]any{
		"sessionUpdate": "agent_thought_chunk",
		"content":       map[string]string{"type": "text", "text": "Let me think"},
	})
	notifyUpdate(sid, map[string]any{
		"sessionUpdate": "agent_message_chunk",
		"content":       map[string]string{"type": "text", "text": "Hello"},
	})
	notifyUpdate(sid, map[string]any{
		"sessionUpdate": "agent_message_chunk",
		"content":       map[string]string{"type": "text", "text": " world"},
	})
	notifyUpdate(sid, map[string]any{
		"sessionUpdate": "tool_call",
		"toolCallId":    "call_001",
		"title":         "read_file",
		"kind":          "read",
		"status":        "pending",
	})
	notifyUpdate(sid, map[string]any{
		"sessionUpdate": "plan",
		"entries": []map[string]string{
			{"content": "inspect the file", "priority": "high", "status": "in_progress"},
		},
	})

	respond(req.ID, map[string]any{"stopReason": "end_turn"})

	if mode == "prompt-then-exit" {
		os.Exit(0)
	}
}

func sendPermissionRequest(sid string) {
	result := sendReverse("session/request_permission", map[string]any{
		"sessionId": sid,
		"toolCall": map[string]any{
			"toolCallId": "call_perm_001",
			"title":      "write_file",
			"kind":       "edit",
		},
		"options": []map[string]string{
			{"optionId": "allow-once", "name": "Allow once", "kind": "allow_once"},
			{"optionId": "reject-once", "name": "Reject", "kind": "reject_once"},
		},
	})
	var outcome struct {
		Outcome struct {
			OptionID string `json:"optionId"`
		} `json:"outcome"`
	}
	_ = json.Unmarshal(result, &outcome)
	notifyUpdate(sid, map[string]any{
		"sessionUpdate": "agent_message_chunk",
		"content":       map[string]string{"type": "text", "text": "decision:" + outcome.Outcome.OptionID},
	})
}

// runFSExchange writes a file through the client, reads it back, and
// streams the read-back content so the test can observe the round trip.
func runFSExchange(sid string) {
	path := os.Getenv("AGENTBRIDGE_MOCK_FS_PATH")
	sendReverse("fs/write_text_file", map[string]any{
		"sessionId": sid,
		"path":      path,
		"content":   "written by agent",
	})
	result := sendReverse("fs/read_text_file", map[string]any{
		"sessionId": sid,
		"path":      path,
	})
	var read struct {
		Content string `json:"content"`
	}
	_ = json.Unmarshal(result, &read)
	notifyUpdate(sid, map[string]any{
		"sessionUpdate": "agent_message_chunk",
		"content":       map[string]string{"type": "text", "text": "readback:" + read.Content},
	})
}

// sendReverse issues one agent→client request and returns its result.
// The client answers synchronously, so the next stdin line is always
// the response.
func sendReverse(method string, params any) json.RawMessage {
	nextID++
	id := nextID
	_ = enc.Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	})
	if !scanner.Scan() {
		os.Exit(1)
	}
	var resp rpcResponse
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return nil
	}
	return resp.Result
}

func respond(id *int64, result any) {
	data, err := json.Marshal(result)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mock-acp: marshal: %v\n", err)
		return
	}
	_ = enc.Encode(rpcResponse{JSONRPC: "2.0", ID: id, Result: data})
}

func respondError(id *int64, code int, message string) {
	_ = enc.Encode(rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}})
}

func notifyUpdate(sessionID string, update any) {
	data, err := json.Marshal(update)
	if err != nil {
		return
	}
	params := map[string]any{
		"sessionId": sessionID,
		"update":    json.RawMessage(data),
	}
	paramsData, err := json.Marshal(params)
	if err != nil {
		return
	}
	_ = enc.Encode(map[string]any{
		"jsonrpc": "2.0",
		"method":  "session/update",
		"params":  json.RawMessage(paramsData),
	})
}
