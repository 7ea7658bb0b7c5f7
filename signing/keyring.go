package signing

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

const (
	AlgEdDSA = "EdDSA"
	AlgES256 = "ES256"
)

var ErrKeyUnavailable = errors.New("signing: signing key is not available")

// Key is a loaded private key. The private half never leaves this package.
type Key struct {
	ID        string
	Algorithm string
	LoadedAt  time.Time

	private crypto.Signer
}

func (k *Key) Public() crypto.PublicKey {
	if k == nil || k.private == nil {
		return nil
	}
	return k.private.Public()
}

// Keyring owns the service signing key and reloads it when the backing PEM
// file's modification time or size changes.
type Keyring struct {
	path   string
	keyID  string
	logger glog.Logger

	mu      sync.Mutex
	modTime time.Time
	size    int64
	current *Key
	loads   int
}

type KeyringOption func(*Keyring)

func WithKeyringLogger(logger glog.Logger) KeyringOption {
	return func(k *Keyring) {
		k.logger = logger
	}
}

// WithKeyID pins the key id instead of deriving it from the public key.
func WithKeyID(id string) KeyringOption {
	return func(k *Keyring) {
		k.keyID = strings.TrimSpace(id)
	}
}

func NewKeyring(path string, opts ...KeyringOption) *Keyring {
	k := &Keyring{path: strings.TrimSpace(path)}
	for _, opt := range opts {
		if opt != nil {
			opt(k)
		}
	}
	k.logger = glog.Ensure(k.logger)
	return k
}

// Current stats the key file and reloads it only when it changed. A failed
// reload keeps the previously loaded key.
func (k *Keyring) Current() (*Key, error) {
	if k == nil || k.path == "" {
		return nil, ErrKeyUnavailable
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	info, err := os.Stat(k.path)
	if err != nil {
		if k.current != nil {
			k.logger.Warn("signing key stat failed, serving last loaded key", "path", k.path, "error", err)
			return k.current, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}
	if k.current != nil && info.ModTime().Equal(k.modTime) && info.Size() == k.size {
		return k.current, nil
	}

	loaded, err := k.load()
	if err != nil {
		if k.current != nil {
			k.logger.Warn("signing key reload failed, serving last loaded key", "path", k.path, "error", err)
			return k.current, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}
	k.current = loaded
	k.modTime = info.ModTime()
	k.size = info.Size()
	k.loads++
	k.logger.Info("signing key loaded", "path", k.path, "kid", loaded.ID, "alg", loaded.Algorithm)
	return k.current, nil
}

// Loads reports how many times key bytes were read and parsed.
func (k *Keyring) Loads() int {
	if k == nil {
		return 0
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.loads
}

func (k *Keyring) load() (*Key, error) {
	raw, err := os.ReadFile(k.path)
	if err != nil {
		return nil, err
	}
	private, alg, err := parsePrivateKey(raw)
	if err != nil {
		return nil, err
	}
	id := k.keyID
	if id == "" {
		id, err = fingerprint(private.Public())
		if err != nil {
			return nil, err
		}
	}
	return &Key{
		ID:        id,
		Algorithm: alg,
		LoadedAt:  time.Now().UTC(),
		private:   private,
	}, nil
}

func parsePrivateKey(raw []byte) (crypto.Signer, string, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, "", fmt.Errorf("signing: key file is not PEM encoded")
	}
	switch block.Type {
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, "", fmt.Errorf("signing: parse pkcs8 key: %w", err)
		}
		return classify(parsed)
	case "EC PRIVATE KEY":
		parsed, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, "", fmt.Errorf("signing: parse ec key: %w", err)
		}
		return classify(parsed)
	default:
		return nil, "", fmt.Errorf("signing: unsupported PEM block %q", block.Type)
	}
}

func classify(parsed any) (crypto.Signer, string, error) {
	switch typed := parsed.(type) {
	case ed25519.PrivateKey:
		return typed, AlgEdDSA, nil
	case *ecdsa.PrivateKey:
		if typed.Curve != elliptic.P256() {
			return nil, "", fmt.Errorf("signing: only P-256 ecdsa keys are supported")
		}
		return typed, AlgES256, nil
	default:
		return nil, "", fmt.Errorf("signing: unsupported key type %T", parsed)
	}
}

func fingerprint(public crypto.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(public)
	if err != nil {
		return "", fmt.Errorf("signing: marshal public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return "key-" + hex.EncodeToString(sum[:8]), nil
}
