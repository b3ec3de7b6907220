package cloudlogin

import (
	"sync"
)

type MessageType string

const (
	MessageAuthSuccess MessageType = "CLOUD_AUTH_SUCCESS"
	MessageAuthError   MessageType = "CLOUD_AUTH_ERROR"
)

// Message is the payload exchanged between the login window and the
// handshake: {type, buyerId} on success, {type, error} on failure.
type Message struct {
	Type    MessageType `json:"type"`
	BuyerID string      `json:"buyerId,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Inbox fans posted messages out to every subscriber together with the
// origin they were posted from. Receivers decide which origins to trust.
type Inbox struct {
	mu   sync.Mutex
	next int
	subs map[int]func(origin string, m Message)
}

func NewInbox() *Inbox {
	return &Inbox{subs: make(map[int]func(string, Message))}
}

// Post delivers m synchronously to the current subscribers.
func (b *Inbox) Post(origin string, m Message) {
	b.mu.Lock()
	fns := make([]func(string, Message), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(origin, m)
	}
}

// Subscribe registers fn until the returned function is called.
func (b *Inbox) Subscribe(fn func(origin string, m Message)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subs[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

func (b *Inbox) subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
