package signing

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeEd25519Key(t *testing.T, path string, modTime time.Time) {
	t.Helper()
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	writePKCS8(t, path, private, modTime)
}

func writePKCS8(t *testing.T, path string, private any, modTime time.Time) {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(private)
	if err != nil {
		t.Fatalf("marshal pkcs8: %v", err)
	}
	block := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(path, block, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestSigner_SignAndVerifyEd25519(t *testing.T) {
	path := filepath.Join(t.TempDir(), "issuer.pem")
	writeEd25519Key(t, path, time.Now().Add(-time.Hour))

	signer := NewSigner("did:web:ledger.example", NewKeyring(path))
	token, err := signer.Sign(map[string]any{"b": 2, "a": 1})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("expected compact token, got %q", token)
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if string(payload) != `{"a":1,"b":2}` {
		t.Fatalf("expected canonical payload, got %s", payload)
	}

	header, decoded, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if header.Alg != AlgEdDSA || header.Typ != TokenType {
		t.Fatalf("unexpected header %#v", header)
	}
	if !strings.HasPrefix(header.Kid, "did:web:ledger.example#key-") {
		t.Fatalf("expected issuer scoped kid, got %q", header.Kid)
	}
	if len(decoded) != 2 {
		t.Fatalf("unexpected decoded payload %#v", decoded)
	}

	tampered := parts[0] + "." + base64.RawURLEncoding.EncodeToString([]byte(`{"a":2,"b":2}`)) + "." + parts[2]
	if _, _, err := signer.Verify(tampered); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature for tampered payload, got %v", err)
	}
}

func TestSigner_SignAndVerifyES256(t *testing.T) {
	path := filepath.Join(t.TempDir(), "issuer-ec.pem")
	private, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate ecdsa key: %v", err)
	}
	writePKCS8(t, path, private, time.Now())

	signer := NewSigner("issuer", NewKeyring(path, WithKeyID("primary")))
	token, err := signer.Sign(map[string]any{"hello": "world"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	header, _, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if header.Alg != AlgES256 || header.Kid != "issuer#primary" {
		t.Fatalf("unexpected header %#v", header)
	}
}

func TestKeyring_ReloadsOnlyWhenFileChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "issuer.pem")
	base := time.Now().Add(-2 * time.Hour).Truncate(time.Second)
	writeEd25519Key(t, path, base)

	keys := NewKeyring(path)
	first, err := keys.Current()
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := keys.Current()
		if err != nil {
			t.Fatalf("current again: %v", err)
		}
		if again != first {
			t.Fatalf("expected cached key to be reused")
		}
	}
	if keys.Loads() != 1 {
		t.Fatalf("expected a single load, got %d", keys.Loads())
	}

	writeEd25519Key(t, path, base.Add(time.Minute))
	rotated, err := keys.Current()
	if err != nil {
		t.Fatalf("current after rotation: %v", err)
	}
	if rotated.ID == first.ID {
		t.Fatalf("expected rotated key id to differ from %q", first.ID)
	}
	if keys.Loads() != 2 {
		t.Fatalf("expected two loads after rotation, got %d", keys.Loads())
	}
}

func TestKeyring_KeepsLastGoodKeyWhenReloadFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "issuer.pem")
	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	writeEd25519Key(t, path, base)

	keys := NewKeyring(path)
	first, err := keys.Current()
	if err != nil {
		t.Fatalf("current: %v", err)
	}

	if err := os.WriteFile(path, []byte("not a key"), 0o600); err != nil {
		t.Fatalf("corrupt key: %v", err)
	}
	_ = os.Chtimes(path, base.Add(time.Minute), base.Add(time.Minute))

	served, err := keys.Current()
	if err != nil {
		t.Fatalf("expected last good key, got %v", err)
	}
	if served.ID != first.ID {
		t.Fatalf("expected last good key %q, got %q", first.ID, served.ID)
	}
}

func TestKeyring_MissingFileIsUnavailable(t *testing.T) {
	keys := NewKeyring(filepath.Join(t.TempDir(), "missing.pem"))
	if _, err := keys.Current(); !errors.Is(err, ErrKeyUnavailable) {
		t.Fatalf("expected ErrKeyUnavailable, got %v", err)
	}
	if _, err := NewSigner("issuer", nil).Sign(map[string]any{}); !errors.Is(err, ErrKeyUnavailable) {
		t.Fatalf("expected ErrKeyUnavailable without keyring, got %v", err)
	}
}

func TestSigner_IssueBuildsEnvelopeAndProof(t *testing.T) {
	path := filepath.Join(t.TempDir(), "issuer.pem")
	writeEd25519Key(t, path, time.Now())
	fixed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	signer := NewSigner("did:web:ledger.example", NewKeyring(path), WithClock(func() time.Time { return fixed }))
	doc, err := signer.Issue("6f1c", "DonationReceipt", map[string]any{"amount_minor": "5000"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if doc.Credential.ID != "urn:uuid:6f1c" {
		t.Fatalf("unexpected credential id %q", doc.Credential.ID)
	}
	if len(doc.Credential.Type) != 2 || doc.Credential.Type[1] != "DonationReceipt" {
		t.Fatalf("unexpected credential type %#v", doc.Credential.Type)
	}
	if doc.Credential.IssuanceDate != "2026-03-04T05:06:07Z" || doc.Proof.Created != doc.Credential.IssuanceDate {
		t.Fatalf("unexpected issuance timestamps %q / %q", doc.Credential.IssuanceDate, doc.Proof.Created)
	}
	_, payload, err := signer.Verify(doc.Proof.JWS)
	if err != nil {
		t.Fatalf("verify proof: %v", err)
	}
	subject, _ := payload["credentialSubject"].(map[string]any)
	if subject["amount_minor"] != "5000" {
		t.Fatalf("expected signed subject to carry amount, got %#v", payload["credentialSubject"])
	}
	if !strings.HasPrefix(doc.Proof.VerificationMethod, "did:web:ledger.example#") {
		t.Fatalf("unexpected verification method %q", doc.Proof.VerificationMethod)
	}
}
