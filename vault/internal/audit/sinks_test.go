package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/cardvault/common/config"
	"github.com/telhawk-systems/cardvault/common/messaging"
	"github.com/telhawk-systems/cardvault/vault/internal/models"
)

func testEntry() *models.AuditLogEntry {
	return &models.AuditLogEntry{
		ID:        "0190a1b2-0000-7000-8000-000000000001",
		Timestamp: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Action:    "access_denied",
		Severity:  models.SeverityWarning,
		Details:   map[string]string{"resource": "admin"},
		Source:    "http",
		Signature: "sig",
	}
}

func TestSlogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSlogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, sink.Write(context.Background(), testEntry()))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	group, ok := line["audit"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "access_denied", group["action"])
	assert.Equal(t, map[string]any{"resource": "admin"}, group["details"])
}

func TestNATSSink(t *testing.T) {
	client := messaging.NewLocalClient()
	var got models.AuditLogEntry
	_, err := client.Subscribe(messaging.SubjectAuditEntries, func(ctx context.Context, msg *messaging.Message) error {
		return json.Unmarshal(msg.Data, &got)
	})
	require.NoError(t, err)

	require.NoError(t, NewNATSSink(client).Write(context.Background(), testEntry()))
	assert.Equal(t, "access_denied", got.Action)

	_ = client.Close()
	assert.Error(t, NewNATSSink(client).Write(context.Background(), testEntry()))
}

func TestOpenSearchSink(t *testing.T) {
	var gotPath string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	defer srv.Close()

	client, err := opensearch.NewClient(opensearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)

	entry := testEntry()
	require.NoError(t, NewOpenSearchSink(client, "cardvault-audit").Write(context.Background(), entry))

	assert.Equal(t, "/cardvault-audit/_doc/"+entry.ID, gotPath)
	assert.True(t, strings.Contains(string(gotBody), `"action":"access_denied"`))
}

func TestOpenSearchSink_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := opensearch.NewClient(opensearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)

	err = NewOpenSearchSink(client, "idx").Write(context.Background(), testEntry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opensearch returned error")
}

func TestDialOpenSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"version":{"number":"2.11.0"}}`))
	}))
	defer srv.Close()

	client, err := DialOpenSearch(config.OpenSearchConfig{URL: srv.URL})
	require.NoError(t, err)
	assert.NotNil(t, client)
}
