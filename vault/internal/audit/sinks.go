package audit

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/telhawk-systems/cardvault/common/config"
	"github.com/telhawk-systems/cardvault/common/messaging"
	"github.com/telhawk-systems/cardvault/vault/internal/models"
)

// SlogSink writes entries to a structured logger under the "audit" group.
type SlogSink struct {
	logger *slog.Logger
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Write(ctx context.Context, entry *models.AuditLogEntry) error {
	level := slog.LevelInfo
	switch entry.Severity {
	case models.SeverityWarning:
		level = slog.LevelWarn
	case models.SeverityCritical:
		level = slog.LevelError
	}

	attrs := make([]any, 0, len(entry.Details))
	for k, v := range entry.Details {
		attrs = append(attrs, slog.String(k, v))
	}
	s.logger.LogAttrs(ctx, level, "audit",
		slog.Group("audit",
			slog.String("id", entry.ID),
			slog.String("action", entry.Action),
			slog.String("severity", entry.Severity),
			slog.String("source", entry.Source),
			slog.String("signature", entry.Signature),
			slog.Group("details", attrs...),
		),
	)
	return nil
}

// NATSSink publishes entries as JSON on the audit subject.
type NATSSink struct {
	publisher messaging.Publisher
	subject   string
}

func NewNATSSink(publisher messaging.Publisher) *NATSSink {
	return &NATSSink{publisher: publisher, subject: messaging.SubjectAuditEntries}
}

func (s *NATSSink) Write(ctx context.Context, entry *models.AuditLogEntry) error {
	if err := messaging.PublishJSON(ctx, s.publisher, s.subject, entry); err != nil {
		return fmt.Errorf("publish audit entry: %w", err)
	}
	return nil
}

// OpenSearchSink indexes entries, one document per entry keyed by entry ID.
type OpenSearchSink struct {
	client *opensearch.Client
	index  string
}

// DialOpenSearch creates a client and verifies the cluster answers.
func DialOpenSearch(cfg config.OpenSearchConfig) (*opensearch.Client, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.TLSSkipVerify,
			},
		},
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: httpClient.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	info, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to ping opensearch: %w", err)
	}
	defer info.Body.Close()

	if info.IsError() {
		return nil, fmt.Errorf("opensearch returned error: %s", info.Status())
	}
	return client, nil
}

func NewOpenSearchSink(client *opensearch.Client, index string) *OpenSearchSink {
	return &OpenSearchSink{client: client, index: index}
}

func (s *OpenSearchSink) Write(ctx context.Context, entry *models.AuditLogEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	res, err := s.client.Index(
		s.index,
		bytes.NewReader(body),
		s.client.Index.WithDocumentID(entry.ID),
		s.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("index audit entry: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch returned error: %s", res.Status())
	}
	return nil
}

// MemorySink keeps entries in memory.
type MemorySink struct {
	mu      sync.Mutex
	entries []*models.AuditLogEntry
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Write(ctx context.Context, entry *models.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// Entries returns a copy of the recorded entries.
func (s *MemorySink) Entries() []*models.AuditLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.AuditLogEntry(nil), s.entries...)
}

// Actions returns recorded action names in order.
func (s *MemorySink) Actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Action
	}
	return out
}
