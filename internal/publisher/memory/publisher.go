// Package memory keeps completion notifications in process memory. It backs
// pubsub.backend=memory and the worker tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/broken-link-analyzer/internal/linkcheck"
)

// DefaultRetain bounds how many notifications a Publisher keeps.
const DefaultRetain = 1000

// ErrUnsupportedPayload is returned for payloads other than linkcheck.Notification.
var ErrUnsupportedPayload = errors.New("memory publisher only accepts linkcheck.Notification")

// Message is one recorded notification.
type Message struct {
	ID           string
	Topic        string
	Notification linkcheck.Notification
}

// Publisher records notifications, oldest dropped first once Retain is exceeded.
type Publisher struct {
	mu       sync.Mutex
	logger   *zap.Logger
	retain   int
	seq      int
	messages []Message
	changed  chan struct{}
}

// New returns a Publisher keeping at most retain messages (DefaultRetain when <= 0).
func New(logger *zap.Logger, retain int) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retain <= 0 {
		retain = DefaultRetain
	}
	return &Publisher{
		logger:  logger.Named("publisher"),
		retain:  retain,
		changed: make(chan struct{}),
	}
}

// Publish records the notification and returns its message id.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}
	var note linkcheck.Notification
	switch v := payload.(type) {
	case linkcheck.Notification:
		note = v
	case *linkcheck.Notification:
		if v == nil {
			return "", ErrUnsupportedPayload
		}
		note = *v
	default:
		return "", fmt.Errorf("%w: got %T", ErrUnsupportedPayload, payload)
	}

	p.mu.Lock()
	p.seq++
	msg := Message{ID: fmt.Sprintf("%s-%d", topic, p.seq), Topic: topic, Notification: note}
	p.messages = append(p.messages, msg)
	if over := len(p.messages) - p.retain; over > 0 {
		p.messages = append(p.messages[:0:0], p.messages[over:]...)
	}
	close(p.changed)
	p.changed = make(chan struct{})
	p.mu.Unlock()

	p.logger.Info("notification published",
		zap.String("topic", topic),
		zap.String("message_id", msg.ID),
		zap.String("analysis_id", note.AnalysisID),
		zap.String("status", string(note.Status)),
		zap.Int("broken_links", note.BrokenLinks))
	return msg.ID, nil
}

// Messages returns a copy of the retained notifications, oldest first.
func (p *Publisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.messages...)
}

// Wait blocks until n notifications were published in total or ctx ends.
func (p *Publisher) Wait(ctx context.Context, n int) error {
	for {
		p.mu.Lock()
		if p.seq >= n {
			p.mu.Unlock()
			return nil
		}
		ch := p.changed
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for %d notifications: %w", n, ctx.Err())
		case <-ch:
		}
	}
}
