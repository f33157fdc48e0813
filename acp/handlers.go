package acp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dstanek/agentbridge"
	"github.com/dstanek/agentbridge/internal/metrics"
)

// PermissionRequest is the agent asking whether a tool call may
// proceed, restated for policies.
type PermissionRequest struct {
	SessionID  string
	ToolCallID string
	ToolName   string // from toolCall.title
	ToolKind   string // from toolCall.kind
	Options    []PermissionOption
}

// PermissionOption is one selectable answer to a permission request.
type PermissionOption struct {
	ID   string
	Name string
	Kind string // allow_once, allow_always, reject_once, reject_always
}

// PermissionPolicy decides a permission request by returning the chosen
// option id. The response is always a selected outcome; there is no
// way to leave the agent hanging. Policies run synchronously on the
// read-loop goroutine.
type PermissionPolicy func(req PermissionRequest) string

// AutoApprove is the default policy: select the first option whose
// kind is an allow variant, falling back to the literal allow_once id
// when the agent offered no allow option. A deployment wanting a
// human in the loop substitutes its own policy via
// WithPermissionPolicy — the framing contract is unchanged.
func AutoApprove(req PermissionRequest) string {
	for _, opt := range req.Options {
		if opt.Kind == "allow_once" || opt.Kind == "allow_always" {
			return opt.ID
		}
	}
	return "allow_once"
}

// reverseHandler answers requests the agent issues back into the
// client mid-turn. Every inbound request is also forwarded to the
// router so observers (e.g. a timeline UI) can see it; forwarding is
// observational only and never affects which response is sent.
type reverseHandler struct {
	policy PermissionPolicy
	router *router
	log    *slog.Logger
}

func (h *reverseHandler) handle(method string, params json.RawMessage) (any, *wireError) {
	metrics.ReverseRequests.WithLabelValues(method).Inc()
	h.forward(method, params)

	switch method {
	case MethodRequestPermission:
		return h.requestPermission(params)
	case MethodFSReadTextFile:
		return h.readTextFile(params)
	case MethodFSWriteTextFile:
		return h.writeTextFile(params)
	default:
		return nil, &wireError{Code: codeMethodNotFound, Message: "method not supported: " + method}
	}
}

// forward republishes the raw reverse request as a Notification with
// Request set.
func (h *reverseHandler) forward(method string, params json.RawMessage) {
	var env struct {
		SessionID string `json:"sessionId"`
	}
	_ = json.Unmarshal(params, &env) // best-effort session extraction
	h.router.dispatch(agentbridge.Notification{
		Method:    method,
		SessionID: env.SessionID,
		Params:    params,
		Request:   true,
	})
}

func (h *reverseHandler) requestPermission(params json.RawMessage) (any, *wireError) {
	var wire requestPermissionParams
	if err := json.Unmarshal(params, &wire); err != nil {
		return nil, &wireError{Code: codeInvalidParams, Message: "invalid permission params: " + err.Error()}
	}

	req := PermissionRequest{
		SessionID:  wire.SessionID,
		ToolCallID: wire.ToolCall.ToolCallID,
		ToolName:   wire.ToolCall.Title,
		ToolKind:   wire.ToolCall.Kind,
	}
	for _, opt := range wire.Options {
		req.Options = append(req.Options, PermissionOption{ID: opt.OptionID, Name: opt.Name, Kind: opt.Kind})
	}

	optionID := h.safeDecide(req)
	return requestPermissionResult{
		Outcome: requestPermissionOutcome{Outcome: "selected", OptionID: optionID},
	}, nil
}

// safeDecide calls the policy with panic recovery; a panicking policy
// falls back to AutoApprove rather than leaving the request unanswered.
func (h *reverseHandler) safeDecide(req PermissionRequest) (optionID string) {
	defer func() {
		if v := recover(); v != nil {
			h.log.Error("permission policy panicked", "tool", req.ToolName, "panic", v)
			optionID = AutoApprove(req)
		}
	}()
	return h.policy(req)
}

func (h *reverseHandler) readTextFile(params json.RawMessage) (any, *wireError) {
	var p readTextFileParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &wireError{Code: codeInvalidParams, Message: "invalid fs/read_text_file params: " + err.Error()}
	}
	if p.Path == "" {
		return nil, &wireError{Code: codeInvalidParams, Message: "missing required param: path"}
	}

	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, &wireError{Code: codeInternalError, Message: fmt.Sprintf("read %s: %v", p.Path, err)}
	}

	content := string(data)
	if p.Line != nil || p.Limit != nil {
		content = sliceLines(content, p.Line, p.Limit)
	}
	return readTextFileResult{Content: content}, nil
}

func (h *reverseHandler) writeTextFile(params json.RawMessage) (any, *wireError) {
	var p writeTextFileParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &wireError{Code: codeInvalidParams, Message: "invalid fs/write_text_file params: " + err.Error()}
	}
	if p.Path == "" {
		return nil, &wireError{Code: codeInvalidParams, Message: "missing required param: path"}
	}
	if p.Content == nil {
		return nil, &wireError{Code: codeInvalidParams, Message: "missing required param: content"}
	}

	if dir := filepath.Dir(p.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &wireError{Code: codeInternalError, Message: fmt.Sprintf("write %s: %v", p.Path, err)}
		}
	}
	if err := os.WriteFile(p.Path, []byte(*p.Content), 0o644); err != nil {
		return nil, &wireError{Code: codeInternalError, Message: fmt.Sprintf("write %s: %v", p.Path, err)}
	}
	return struct{}{}, nil
}

// sliceLines returns the window of content starting at 1-based line
// (default 1) spanning limit lines (default: to EOF).
func sliceLines(content string, line, limit *int) string {
	lines := strings.Split(content, "\n")
	start := 0
	if line != nil && *line > 1 {
		start = *line - 1
	}
	if start >= len(lines) {
		return ""
	}
	end := len(lines)
	if limit != nil && *limit >= 0 && start+*limit < end {
		end = start + *limit
	}
	return strings.Join(lines[start:end], "\n")
}
