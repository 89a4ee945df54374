package memory

import (
	"context"
	"strconv"
	"sync"

	"github.com/Juhan1212/karbit-sub001/internal/domain"
)

// SignalBus is an in-memory domain.SignalBus. Published messages are kept
// per channel so tests can inspect them.
type SignalBus struct {
	mu        sync.RWMutex
	published map[string][][]byte
	streams   map[string][]domain.StreamMessage
	subs      map[string]map[chan []byte]struct{}
}

// NewSignalBus creates an empty bus.
func NewSignalBus() *SignalBus {
	return &SignalBus{
		published: make(map[string][][]byte),
		streams:   make(map[string][]domain.StreamMessage),
		subs:      make(map[string]map[chan []byte]struct{}),
	}
}

func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], append([]byte(nil), payload...))
	for ch := range b.subs[channel] {
		select {
		case ch <- append([]byte(nil), payload...):
		default:
			// slow subscriber
		}
	}
	return nil
}

// Subscribe registers a buffered subscriber on channel. Messages are dropped
// for a subscriber whose buffer is full.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 128)
	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[chan []byte]struct{})
	}
	b.subs[channel][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[channel], ch)
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}

// Published returns the messages sent to channel.
func (b *SignalBus) Published(channel string) [][]byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([][]byte(nil), b.published[channel]...)
}

func (b *SignalBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := strconv.Itoa(len(b.streams[stream])+1) + "-0"
	b.streams[stream] = append(b.streams[stream], domain.StreamMessage{ID: id, Payload: append([]byte(nil), payload...)})
	return nil
}

// StreamRead returns up to count messages after lastID. "0" or "" reads from
// the beginning.
func (b *SignalBus) StreamRead(_ context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	msgs := b.streams[stream]
	start := 0
	if lastID != "" && lastID != "0" {
		for i, m := range msgs {
			if m.ID == lastID {
				start = i + 1
				break
			}
		}
	}
	out := msgs[start:]
	if count > 0 && count < len(out) {
		out = out[:count]
	}
	return append([]domain.StreamMessage(nil), out...), nil
}

var _ domain.SignalBus = (*SignalBus)(nil)
