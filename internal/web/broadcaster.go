package web

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// StatusEvent is one message pushed to SSE clients.
type StatusEvent struct {
	Time   string            `json:"t"`
	Level  string            `json:"l,omitempty"`
	Msg    string            `json:"msg"`
	Fields map[string]string `json:"f,omitempty"`
}

// StatusBroadcaster distributes status messages to multiple SSE clients.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
}

// NewStatusBroadcaster creates a new broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel that receives broadcast messages and a cleanup function.
// The caller must call the returned cleanup when done (e.g. on client disconnect).
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Clients returns the number of subscribed clients.
func (b *StatusBroadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Broadcast sends a message to all subscribed clients.
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.publish(StatusEvent{Level: level, Msg: msg})
}

// BroadcastMsg is a convenience for level "info".
func (b *StatusBroadcaster) BroadcastMsg(msg string) {
	b.Broadcast("info", msg)
}

// publish stamps evt and fans it out. Slow clients miss messages.
func (b *StatusBroadcaster) publish(evt StatusEvent) {
	evt.Time = time.Now().Format(time.RFC3339)
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// channel full, skip
		}
	}
}

// BroadcastHook is a logrus hook that mirrors log entries to SSE clients,
// keeping the level and structured fields (motor, dir, addr, reg...).
type BroadcastHook struct {
	b *StatusBroadcaster
}

// NewBroadcastHook returns a hook publishing on b.
func NewBroadcastHook(b *StatusBroadcaster) *BroadcastHook {
	return &BroadcastHook{b: b}
}

// Levels implements logrus.Hook.
func (h *BroadcastHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook.
func (h *BroadcastHook) Fire(e *logrus.Entry) error {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		return nil
	}
	evt := StatusEvent{Level: e.Level.String(), Msg: msg}
	if len(e.Data) > 0 {
		evt.Fields = make(map[string]string, len(e.Data))
		for k, v := range e.Data {
			evt.Fields[k] = fmt.Sprint(v)
		}
	}
	h.b.publish(evt)
	return nil
}
