package audit

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-credledger/core"
)

func TestJSONLSink_AppendsStatusAndReceipt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.jsonl")
	sink, err := NewJSONLSink(path)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	at := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	reason := "duplicate"
	if err := sink.AppendStatus(context.Background(), core.CredentialStatusRecord{
		ID:             7,
		CredentialID:   "cred-1",
		CredentialType: "DonationReceipt",
		Status:         core.StatusRevoked,
		Reason:         &reason,
		RecordedAt:     at,
	}); err != nil {
		t.Fatalf("append status: %v", err)
	}
	if err := sink.AppendReceipt(context.Background(), core.ReceiptAudit{
		Receipt: core.Receipt{
			ID:            "rcpt-1",
			LedgerEventID: 3,
			CredentialID:  "cred-1",
			Digest:        "sha256:abc",
			IssuedAt:      at,
		},
		Event: core.LedgerEvent{
			ID:          3,
			Direction:   core.DirectionInflow,
			AmountMinor: big.NewInt(2500),
			Currency:    "USD",
			Metadata: map[string]any{
				"reference":   "ref-9",
				"card_number": "4111111111111111",
				"nested":      map[string]any{"api_key": "k"},
			},
		},
		Type: "DonationReceipt",
	}); err != nil {
		t.Fatalf("append receipt: %v", err)
	}

	entries, err := ReadAll(path)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	status := entries[0]
	if status.Kind != KindStatus || status.Status != "revoked" || status.StatusRecordID != 7 {
		t.Fatalf("unexpected status entry %+v", status)
	}
	if status.Reason == nil || *status.Reason != reason || !status.At.Equal(at) {
		t.Fatalf("unexpected status details %+v", status)
	}

	receipt := entries[1]
	if receipt.Kind != KindReceipt || receipt.Digest != "sha256:abc" || receipt.AmountMinor != "2500" {
		t.Fatalf("unexpected receipt entry %+v", receipt)
	}
	if receipt.Metadata["reference"] != "ref-9" {
		t.Fatalf("expected traceability key kept, got %v", receipt.Metadata["reference"])
	}
	if receipt.Metadata["card_number"] != "[REDACTED]" {
		t.Fatalf("expected card number redacted, got %v", receipt.Metadata["card_number"])
	}
	nested, _ := receipt.Metadata["nested"].(map[string]any)
	if nested["api_key"] != "[REDACTED]" {
		t.Fatalf("expected nested key redacted, got %v", nested)
	}
}

func TestJSONLSink_NeverWritesCredentialDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewJSONLSink(path)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	if err := sink.AppendStatus(context.Background(), core.CredentialStatusRecord{
		CredentialID: "cred-1",
		Status:       core.StatusActive,
		RecordedAt:   time.Now().UTC(),
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = sink.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, forbidden := range []string{"jws", "proof", "document"} {
		if strings.Contains(string(data), forbidden) {
			t.Fatalf("expected %q absent from audit line, got %s", forbidden, data)
		}
	}
}

func TestJSONLSink_ReopenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	for i := 0; i < 2; i++ {
		sink, err := NewJSONLSink(path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		if err := sink.Append(context.Background(), Entry{Kind: KindStatus, CredentialID: "cred"}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if err := sink.Close(); err != nil {
			t.Fatalf("close %d: %v", i, err)
		}
	}
	entries, err := ReadAll(path)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected reopened sink to append, got %d entries", len(entries))
	}
	if entries[0].At.IsZero() {
		t.Fatalf("expected default timestamp")
	}
}

func TestJSONLSink_ConcurrentAppendsKeepWholeLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewJSONLSink(path)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	const writers = 8
	const perWriter = 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_ = sink.Append(context.Background(), Entry{Kind: KindStatus, CredentialID: "cred", Status: "active"})
			}
		}()
	}
	wg.Wait()

	entries, err := ReadAll(path)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(entries) != writers*perWriter {
		t.Fatalf("expected %d entries, got %d", writers*perWriter, len(entries))
	}
}

func TestJSONLSink_ClosedSinkFails(t *testing.T) {
	sink, err := NewJSONLSink(filepath.Join(t.TempDir(), "audit.jsonl"))
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := sink.Append(context.Background(), Entry{Kind: KindStatus}); err == nil {
		t.Fatalf("expected closed sink append to fail")
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("expected second close to be a no-op, got %v", err)
	}
}

func TestReadAll(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    int
		wantErr bool
	}{
		{name: "missing file", want: 0},
		{name: "empty lines skipped", content: "{\"kind\":\"status\"}\n\n{\"kind\":\"receipt\"}\n", want: 2},
		{name: "truncated tail skipped", content: "{\"kind\":\"status\"}\n{\"kind\":\"rec", want: 1},
		{name: "corrupt middle line fails", content: "{\"kind\":\"status\"}\nnot json\n{\"kind\":\"status\"}\n", wantErr: true},
	}
	for i, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, "audit-"+string(rune('a'+i))+".jsonl")
			if tc.content != "" {
				if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
					t.Fatalf("write fixture: %v", err)
				}
			}
			entries, err := ReadAll(path)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("read all: %v", err)
			}
			if len(entries) != tc.want {
				t.Fatalf("expected %d entries, got %d", tc.want, len(entries))
			}
		})
	}
}

func TestNewJSONLSink_RequiresPath(t *testing.T) {
	if _, err := NewJSONLSink(""); err == nil {
		t.Fatalf("expected empty path to fail")
	}
}
