// Package filter provides composable listener middleware for
// notification streams. Consumers wrap the function they pass to
// Engine.Subscribe with these combinators to select the traffic they
// care about.
package filter

import (
	"github.com/dstanek/agentbridge"
	"github.com/dstanek/agentbridge/acp"
)

// Methods passes only notifications whose method is one of the given
// names.
func Methods(fn acp.Listener, methods ...string) acp.Listener {
	allowed := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		allowed[m] = struct{}{}
	}
	return func(n agentbridge.Notification) {
		if _, ok := allowed[n.Method]; ok {
			fn(n)
		}
	}
}

// Sessions passes only notifications belonging to one of the given
// session ids.
func Sessions(fn acp.Listener, sessionIDs ...string) acp.Listener {
	allowed := make(map[string]struct{}, len(sessionIDs))
	for _, id := range sessionIDs {
		allowed[id] = struct{}{}
	}
	return func(n agentbridge.Notification) {
		if _, ok := allowed[n.SessionID]; ok {
			fn(n)
		}
	}
}

// Requests passes only reverse requests (permission and filesystem
// traffic from the agent), dropping plain notifications.
func Requests(fn acp.Listener) acp.Listener {
	return func(n agentbridge.Notification) {
		if n.Request {
			fn(n)
		}
	}
}

// Updates adapts an update callback into a Listener: session/update
// notifications are parsed and handed over, everything else is dropped.
func Updates(fn func(sessionID string, u agentbridge.Update)) acp.Listener {
	return func(n agentbridge.Notification) {
		if u, ok := acp.ParseUpdate(n); ok {
			fn(n.SessionID, u)
		}
	}
}

// Kinds passes only updates of the given kinds, e.g. to watch tool
// calls without the chunk traffic.
func Kinds(fn func(sessionID string, u agentbridge.Update), kinds ...string) acp.Listener {
	allowed := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		allowed[k] = struct{}{}
	}
	return Updates(func(sessionID string, u agentbridge.Update) {
		if _, ok := allowed[u.Kind]; ok {
			fn(sessionID, u)
		}
	})
}
