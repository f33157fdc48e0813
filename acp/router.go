package acp

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/dstanek/agentbridge"
)

// Listener receives every inbound notification and, for observability,
// every reverse request. Listeners run synchronously on the read-loop
// goroutine: keep them fast or hand off to another worker.
type Listener func(agentbridge.Notification)

// ListenerHandle is an opaque subscription token.
type ListenerHandle string

// router fans inbound notifications out to a dynamic, concurrently
// modifiable set of listeners. Dispatch iterates a snapshot taken under
// the lock, so a listener removed mid-dispatch never invalidates the
// iteration — though it may still receive the in-flight notification.
type router struct {
	mu        sync.RWMutex
	listeners map[ListenerHandle]Listener
	log       *slog.Logger
}

func newRouter(log *slog.Logger) *router {
	return &router{
		listeners: make(map[ListenerHandle]Listener),
		log:       log,
	}
}

func (r *router) subscribe(fn Listener) ListenerHandle {
	h := ListenerHandle(uuid.NewString())
	r.mu.Lock()
	r.listeners[h] = fn
	r.mu.Unlock()
	return h
}

func (r *router) unsubscribe(h ListenerHandle) {
	r.mu.Lock()
	delete(r.listeners, h)
	r.mu.Unlock()
}

// dispatch invokes every currently subscribed listener. A panic inside
// one listener is caught and logged; it never aborts delivery to the
// remaining listeners or crashes the read loop.
func (r *router) dispatch(n agentbridge.Notification) {
	r.mu.RLock()
	snapshot := make([]Listener, 0, len(r.listeners))
	for _, fn := range r.listeners {
		snapshot = append(snapshot, fn)
	}
	r.mu.RUnlock()

	for _, fn := range snapshot {
		r.deliver(fn, n)
	}
}

func (r *router) deliver(fn Listener, n agentbridge.Notification) {
	defer func() {
		if v := recover(); v != nil {
			r.log.Error("listener panicked", "method", n.Method, "panic", v)
		}
	}()
	fn(n)
}
