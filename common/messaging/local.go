package messaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed is returned when publishing on or subscribing to a closed client.
var ErrClosed = errors.New("messaging: client closed")

// LocalClient is an in-process Client. Delivery is synchronous: Publish
// returns after every matching handler has run. It backs single-process
// deployments and tests.
type LocalClient struct {
	mu     sync.RWMutex
	subs   []*localSubscription
	closed bool

	// OnHandlerError is called when a handler returns an error. Optional.
	OnHandlerError func(subject string, err error)
}

// NewLocalClient creates an in-process client.
func NewLocalClient() *LocalClient {
	return &LocalClient{}
}

func (c *LocalClient) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrClosed
	}
	matched := make([]*localSubscription, 0, len(c.subs))
	for _, s := range c.subs {
		if s.IsValid() && MatchSubject(s.subject, subject) {
			matched = append(matched, s)
		}
	}
	c.mu.RUnlock()

	for _, s := range matched {
		msg := &Message{
			Subject:   subject,
			Data:      append([]byte(nil), data...),
			Timestamp: time.Now(),
		}
		if err := s.handler(ctx, msg); err != nil && c.OnHandlerError != nil {
			c.OnHandlerError(subject, err)
		}
	}
	return nil
}

func (c *LocalClient) Subscribe(subject string, handler MessageHandler) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	s := &localSubscription{subject: subject, handler: handler}
	s.valid.Store(true)
	c.subs = append(c.subs, s)
	return s, nil
}

func (c *LocalClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.subs {
		_ = s.Unsubscribe()
	}
	c.subs = nil
	c.closed = true
	return nil
}

func (c *LocalClient) Drain() error {
	return c.Close()
}

func (c *LocalClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

type localSubscription struct {
	subject string
	handler MessageHandler
	valid   atomic.Bool
}

func (s *localSubscription) Unsubscribe() error {
	s.valid.Store(false)
	return nil
}

func (s *localSubscription) Subject() string {
	return s.subject
}

func (s *localSubscription) IsValid() bool {
	return s.valid.Load()
}
