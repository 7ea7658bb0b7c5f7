// Package audit mirrors credential status transitions and receipts into an
// append-only JSONL file. The database stays authoritative; the file is a
// tamper-visible trail an operator can read without database access.
package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goliatone/go-credledger/core"
)

const (
	KindStatus  = "status"
	KindReceipt = "receipt"
)

// Entry is one line of the audit file. Only explicit fields are written;
// credential documents and signatures never reach the file.
type Entry struct {
	Kind           string         `json:"kind"`
	At             time.Time      `json:"at"`
	CredentialID   string         `json:"credential_id"`
	CredentialType string         `json:"credential_type,omitempty"`
	Status         string         `json:"status,omitempty"`
	Reason         *string        `json:"reason,omitempty"`
	Actor          *string        `json:"actor,omitempty"`
	StatusRecordID int64          `json:"status_record_id,omitempty"`
	ReceiptID      string         `json:"receipt_id,omitempty"`
	LedgerEventID  int64          `json:"ledger_event_id,omitempty"`
	Digest         string         `json:"digest,omitempty"`
	Direction      string         `json:"direction,omitempty"`
	AmountMinor    string         `json:"amount_minor,omitempty"`
	Currency       string         `json:"currency,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// JSONLSink appends entries to path. Writes are serialized and fsynced.
type JSONLSink struct {
	path string
	mu   sync.Mutex
	f    *os.File
}

// NewJSONLSink creates or opens path for appending, creating missing parent
// directories.
func NewJSONLSink(path string) (*JSONLSink, error) {
	if path == "" {
		return nil, fmt.Errorf("audit: log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("audit: create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open log: %w", err)
	}
	return &JSONLSink{path: path, f: f}, nil
}

func (s *JSONLSink) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func (s *JSONLSink) AppendStatus(ctx context.Context, record core.CredentialStatusRecord) error {
	return s.Append(ctx, Entry{
		Kind:           KindStatus,
		At:             record.RecordedAt.UTC(),
		CredentialID:   record.CredentialID,
		CredentialType: record.CredentialType,
		Status:         string(record.Status),
		Reason:         record.Reason,
		Actor:          record.Actor,
		StatusRecordID: record.ID,
	})
}

func (s *JSONLSink) AppendReceipt(ctx context.Context, receipt core.ReceiptAudit) error {
	entry := Entry{
		Kind:           KindReceipt,
		At:             receipt.Receipt.IssuedAt.UTC(),
		CredentialID:   receipt.Receipt.CredentialID,
		CredentialType: receipt.Type,
		ReceiptID:      receipt.Receipt.ID,
		LedgerEventID:  receipt.Receipt.LedgerEventID,
		Digest:         receipt.Receipt.Digest,
		Direction:      string(receipt.Event.Direction),
		Currency:       receipt.Event.Currency,
	}
	if receipt.Event.AmountMinor != nil {
		entry.AmountMinor = receipt.Event.AmountMinor.String()
	}
	if len(receipt.Event.Metadata) > 0 {
		entry.Metadata = receipt.Event.Metadata
	}
	return s.Append(ctx, entry)
}

// Append writes entry as one line. Metadata is redacted before encoding.
func (s *JSONLSink) Append(ctx context.Context, entry Entry) error {
	if s == nil {
		return fmt.Errorf("audit: sink is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	if entry.Metadata != nil {
		entry.Metadata = core.RedactSensitiveMap(entry.Metadata)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: encode entry: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return fmt.Errorf("audit: sink is closed")
	}
	if _, err := s.f.Write(data); err != nil {
		return fmt.Errorf("audit: write entry: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("audit: sync log: %w", err)
	}
	return nil
}

func (s *JSONLSink) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// ReadAll decodes every entry in path. A missing file yields no entries. A
// truncated final line from an interrupted write is skipped; corruption
// anywhere else is an error.
func ReadAll(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: read log: %w", err)
	}

	var out []Entry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			if !bytes.HasSuffix(data, []byte{'\n'}) && isLastLine(data, line) {
				break
			}
			return nil, fmt.Errorf("audit: decode line %d: %w", line, err)
		}
		out = append(out, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan log: %w", err)
	}
	return out, nil
}

func isLastLine(data []byte, line int) bool {
	return bytes.Count(data, []byte{'\n'}) == line-1
}

var _ core.AuditSink = (*JSONLSink)(nil)
