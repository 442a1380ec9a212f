package nats

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, nats.DefaultURL, cfg.URL)
	assert.Equal(t, "cardvault", cfg.Name)
	assert.Equal(t, -1, cfg.MaxReconnects)
}

func TestNewClient_Unreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "nats://127.0.0.1:1"
	cfg.MaxReconnects = 0

	_, err := NewClient(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to NATS")
}

func TestNatsToMessage(t *testing.T) {
	msg := &nats.Msg{Subject: "vault.faults.error", Data: []byte("x"), Header: nats.Header{}}
	msg.Header.Set("Kind", "error")

	m := natsToMessage(msg)
	assert.Equal(t, "vault.faults.error", m.Subject)
	assert.Equal(t, []byte("x"), m.Data)
	assert.Equal(t, "error", m.Metadata["Kind"])
	assert.False(t, m.Timestamp.IsZero())
}

func TestStreamConfig(t *testing.T) {
	cfg := DefaultStreamConfig("VAULT_AUDIT", []string{"vault.audit.entries"})
	cfg.Replicas = 0

	sc := streamConfig(cfg)
	assert.Equal(t, "VAULT_AUDIT", sc.Name)
	assert.Equal(t, []string{"vault.audit.entries"}, sc.Subjects)
	assert.Equal(t, 30*24*time.Hour, sc.MaxAge)
	assert.Equal(t, int64(1<<30), sc.MaxBytes)
	assert.Equal(t, 1, sc.Replicas)
	assert.Equal(t, jetstream.LimitsPolicy, sc.Retention)
	assert.Equal(t, jetstream.DiscardOld, sc.Discard)
	assert.Equal(t, jetstream.FileStorage, sc.Storage)
}
