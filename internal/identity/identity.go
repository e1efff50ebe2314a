// Package identity tracks who a browser session belongs to. An empty uid
// means the session is anonymous.
package identity

import "sync"

type Provider interface {
	// OnAuthChange calls fn with the current uid right away and again on
	// every change. The returned func stops further calls.
	OnAuthChange(fn func(uid string)) (unsubscribe func())
}

type Hub struct {
	mu        sync.Mutex
	uid       string
	listeners map[uint64]func(string)
	nextID    uint64
}

func NewHub() *Hub {
	return &Hub{listeners: make(map[uint64]func(string))}
}

func (h *Hub) Current() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.uid
}

func (h *Hub) OnAuthChange(fn func(uid string)) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.listeners[id] = fn
	uid := h.uid
	h.mu.Unlock()

	fn(uid)

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		delete(h.listeners, id)
	}
}

// SignIn switches the session to uid. Re-signing the same uid is a no-op.
func (h *Hub) SignIn(uid string) {
	h.set(uid)
}

func (h *Hub) SignOut() {
	h.set("")
}

func (h *Hub) set(uid string) {
	h.mu.Lock()
	if h.uid == uid {
		h.mu.Unlock()
		return
	}
	h.uid = uid
	fns := make([]func(string), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(uid)
	}
}
