package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/telhawk-systems/cardvault/common/messaging"
)

// JetStream publishes through a JetStream context so each message is stored
// and acknowledged by the server before Publish returns.
type JetStream struct {
	js jetstream.JetStream
}

// StreamConfig defines a JetStream stream configuration.
type StreamConfig struct {
	// Name is the stream name.
	Name string

	// Subjects are the subjects this stream captures.
	Subjects []string

	// MaxAge is how long messages are retained.
	MaxAge time.Duration

	// MaxBytes caps the total stream size; the oldest messages are discarded first.
	MaxBytes int64

	// Replicas is the number of stream replicas in a cluster.
	Replicas int
}

// DefaultStreamConfig returns retention suited to audit trails.
func DefaultStreamConfig(name string, subjects []string) StreamConfig {
	return StreamConfig{
		Name:     name,
		Subjects: subjects,
		MaxAge:   30 * 24 * time.Hour,
		MaxBytes: 1 << 30,
		Replicas: 1,
	}
}

// JetStream returns a JetStream publisher sharing the client's connection.
func (c *Client) JetStream() (*JetStream, error) {
	js, err := jetstream.New(c.conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return &JetStream{js: js}, nil
}

// EnsureStream creates the stream or updates it to match cfg.
func (j *JetStream) EnsureStream(ctx context.Context, cfg StreamConfig) error {
	if _, err := j.js.CreateOrUpdateStream(ctx, streamConfig(cfg)); err != nil {
		return fmt.Errorf("failed to create/update stream %s: %w", cfg.Name, err)
	}
	return nil
}

// Publish stores data on subject and waits for the server acknowledgement.
func (j *JetStream) Publish(ctx context.Context, subject string, data []byte) error {
	if _, err := j.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Close is a no-op; the underlying connection belongs to the Client.
func (j *JetStream) Close() error {
	return nil
}

func streamConfig(cfg StreamConfig) jetstream.StreamConfig {
	replicas := cfg.Replicas
	if replicas < 1 {
		replicas = 1
	}
	return jetstream.StreamConfig{
		Name:      cfg.Name,
		Subjects:  cfg.Subjects,
		MaxAge:    cfg.MaxAge,
		MaxBytes:  cfg.MaxBytes,
		Replicas:  replicas,
		Retention: jetstream.LimitsPolicy,
		Discard:   jetstream.DiscardOld,
		Storage:   jetstream.FileStorage,
	}
}

var _ messaging.Publisher = (*JetStream)(nil)
