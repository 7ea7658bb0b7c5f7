// Package signing mints credential documents and detached compact signatures
// over their canonical encoding.
package signing

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/goliatone/go-credledger/canonical"
)

const (
	TokenType          = "JWT"
	ProofType          = "JsonWebSignature2020"
	ProofPurpose       = "assertionMethod"
	BaseCredentialType = "VerifiableCredential"
	CredentialsContext = "https://www.w3.org/2018/credentials/v1"
)

var ErrInvalidSignature = errors.New("signing: invalid signature")

type Header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
	Kid string `json:"kid"`
}

// Envelope is the credential body that gets signed.
type Envelope struct {
	Context           []string       `json:"@context"`
	ID                string         `json:"id"`
	Type              []string       `json:"type"`
	Issuer            string         `json:"issuer"`
	IssuanceDate      string         `json:"issuanceDate"`
	CredentialSubject map[string]any `json:"credentialSubject"`
}

type Proof struct {
	Type               string `json:"type"`
	Created            string `json:"created"`
	VerificationMethod string `json:"verificationMethod"`
	ProofPurpose       string `json:"proofPurpose"`
	JWS                string `json:"jws"`
}

type Document struct {
	Credential Envelope `json:"credential"`
	Proof      Proof    `json:"proof"`
}

type Signer struct {
	keys     *Keyring
	issuerID string
	now      func() time.Time
}

type SignerOption func(*Signer)

func WithClock(now func() time.Time) SignerOption {
	return func(s *Signer) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSigner(issuerID string, keys *Keyring, opts ...SignerOption) *Signer {
	s := &Signer{
		keys:     keys,
		issuerID: strings.TrimSpace(issuerID),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Signer) IssuerID() string {
	if s == nil {
		return ""
	}
	return s.issuerID
}

// BuildCredential wraps subject in the standard envelope.
func (s *Signer) BuildCredential(id string, credentialType string, subject map[string]any) Envelope {
	return Envelope{
		Context:           []string{CredentialsContext},
		ID:                credentialURN(id),
		Type:              []string{BaseCredentialType, strings.TrimSpace(credentialType)},
		Issuer:            s.IssuerID(),
		IssuanceDate:      s.now().UTC().Format(time.RFC3339),
		CredentialSubject: subject,
	}
}

// Issue builds the envelope and attaches a detached JWS proof.
func (s *Signer) Issue(id string, credentialType string, subject map[string]any) (Document, error) {
	envelope := s.BuildCredential(id, credentialType, subject)
	token, kid, err := s.sign(envelope)
	if err != nil {
		return Document{}, err
	}
	return Document{
		Credential: envelope,
		Proof: Proof{
			Type:               ProofType,
			Created:            envelope.IssuanceDate,
			VerificationMethod: kid,
			ProofPurpose:       ProofPurpose,
			JWS:                token,
		},
	}, nil
}

// Sign returns header.payload.signature over the canonical encodings of the
// header and payload. The key file is stat-checked before every call.
func (s *Signer) Sign(payload any) (string, error) {
	token, _, err := s.sign(payload)
	return token, err
}

func (s *Signer) sign(payload any) (string, string, error) {
	if s == nil || s.keys == nil {
		return "", "", ErrKeyUnavailable
	}
	key, err := s.keys.Current()
	if err != nil {
		return "", "", err
	}
	kid := s.kid(key)
	headerRaw, err := canonical.Marshal(Header{Alg: key.Algorithm, Typ: TokenType, Kid: kid})
	if err != nil {
		return "", "", fmt.Errorf("signing: encode header: %w", err)
	}
	payloadRaw, err := canonical.Marshal(payload)
	if err != nil {
		return "", "", fmt.Errorf("signing: encode payload: %w", err)
	}

	signingInput := base64.RawURLEncoding.EncodeToString(headerRaw) + "." +
		base64.RawURLEncoding.EncodeToString(payloadRaw)
	signature, err := signBytes(key, []byte(signingInput))
	if err != nil {
		return "", "", err
	}
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(signature), kid, nil
}

// Verify checks token against the currently loaded key and decodes its
// payload.
func (s *Signer) Verify(token string) (Header, map[string]any, error) {
	if s == nil || s.keys == nil {
		return Header{}, nil, ErrKeyUnavailable
	}
	key, err := s.keys.Current()
	if err != nil {
		return Header{}, nil, err
	}
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return Header{}, nil, fmt.Errorf("%w: token must have three parts", ErrInvalidSignature)
	}

	var header Header
	if err := decodeSegment(parts[0], &header); err != nil {
		return Header{}, nil, err
	}
	if header.Kid != s.kid(key) || header.Alg != key.Algorithm {
		return Header{}, nil, fmt.Errorf("%w: token was not signed by the current key", ErrInvalidSignature)
	}
	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return Header{}, nil, fmt.Errorf("%w: decode signature: %v", ErrInvalidSignature, err)
	}
	if !verifyBytes(key, []byte(parts[0]+"."+parts[1]), signature) {
		return Header{}, nil, ErrInvalidSignature
	}
	var payload map[string]any
	if err := decodeSegment(parts[1], &payload); err != nil {
		return Header{}, nil, err
	}
	return header, payload, nil
}

func (s *Signer) kid(key *Key) string {
	if s.issuerID == "" {
		return key.ID
	}
	return s.issuerID + "#" + key.ID
}

func credentialURN(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || strings.HasPrefix(id, "urn:") {
		return id
	}
	return "urn:uuid:" + id
}

func decodeSegment(segment string, target any) error {
	raw, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		return fmt.Errorf("%w: decode segment: %v", ErrInvalidSignature, err)
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("%w: parse segment: %v", ErrInvalidSignature, err)
	}
	return nil
}

func signBytes(key *Key, input []byte) ([]byte, error) {
	switch private := key.private.(type) {
	case ed25519.PrivateKey:
		return private.Sign(rand.Reader, input, crypto.Hash(0))
	case *ecdsa.PrivateKey:
		digest := sha256.Sum256(input)
		r, sVal, err := ecdsa.Sign(rand.Reader, private, digest[:])
		if err != nil {
			return nil, fmt.Errorf("signing: ecdsa sign: %w", err)
		}
		out := make([]byte, 64)
		r.FillBytes(out[:32])
		sVal.FillBytes(out[32:])
		return out, nil
	default:
		return nil, fmt.Errorf("signing: unsupported key type %T", key.private)
	}
}

func verifyBytes(key *Key, input []byte, signature []byte) bool {
	switch public := key.Public().(type) {
	case ed25519.PublicKey:
		return ed25519.Verify(public, input, signature)
	case *ecdsa.PublicKey:
		if len(signature) != 64 {
			return false
		}
		digest := sha256.Sum256(input)
		r := new(big.Int).SetBytes(signature[:32])
		sVal := new(big.Int).SetBytes(signature[32:])
		return ecdsa.Verify(public, digest[:], r, sVal)
	default:
		return false
	}
}
