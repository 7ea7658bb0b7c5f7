// Package trust keeps the trust registry and JSON Schema catalog fresh by
// stat-checking their backing files on every read and reloading on change.
package trust

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"gopkg.in/yaml.v3"
)

// registryFile is the on-disk shape. YAML decoding also accepts JSON files.
type registryFile struct {
	IssuerID                  string   `yaml:"issuer_id" json:"issuer_id"`
	RecognizedCredentialTypes []string `yaml:"recognized_credential_types" json:"recognized_credential_types"`
}

type Snapshot struct {
	IssuerID string
	Types    map[string]struct{}
	LoadedAt time.Time
}

func (s Snapshot) Recognizes(credentialType string) bool {
	_, ok := s.Types[strings.TrimSpace(credentialType)]
	return ok
}

func (s Snapshot) SortedTypes() []string {
	out := make([]string, 0, len(s.Types))
	for t := range s.Types {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

type fileStamp struct {
	modTime time.Time
	size    int64
}

// Registry answers which credential types the issuer currently recognizes.
type Registry struct {
	path   string
	logger glog.Logger

	mu      sync.Mutex
	stamp   fileStamp
	failed  fileStamp
	current *Snapshot
	loads   int
}

type Option func(*options)

type options struct {
	logger glog.Logger
}

func WithLogger(logger glog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func resolveOptions(opts []Option) options {
	resolved := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&resolved)
		}
	}
	resolved.logger = glog.Ensure(resolved.logger)
	return resolved
}

func NewRegistry(path string, opts ...Option) *Registry {
	resolved := resolveOptions(opts)
	return &Registry{path: strings.TrimSpace(path), logger: resolved.logger}
}

// IsRecognized reports whether credentialType is in the registry as of the
// latest file state. Without any successful load nothing is recognized.
func (r *Registry) IsRecognized(credentialType string) bool {
	snapshot, ok := r.Get()
	if !ok {
		return false
	}
	return snapshot.Recognizes(credentialType)
}

func (r *Registry) IssuerID() string {
	snapshot, ok := r.Get()
	if !ok {
		return ""
	}
	return snapshot.IssuerID
}

// Get returns the freshest snapshot, reloading synchronously when the file
// changed. A failed reload keeps serving the last good snapshot.
func (r *Registry) Get() (Snapshot, bool) {
	if r == nil {
		return Snapshot{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshLocked()
	if r.current == nil {
		return Snapshot{}, false
	}
	return *r.current, true
}

func (r *Registry) Loads() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loads
}

func (r *Registry) refreshLocked() {
	if r.path == "" {
		return
	}
	info, err := os.Stat(r.path)
	if err != nil {
		if r.current != nil {
			r.logger.Warn("trust registry stat failed, serving last good copy", "path", r.path, "error", err)
		}
		return
	}
	stamp := fileStamp{modTime: info.ModTime(), size: info.Size()}
	if r.current != nil && stamp == r.stamp {
		return
	}
	if stamp == r.failed {
		return
	}

	snapshot, err := loadRegistry(r.path)
	if err != nil {
		r.failed = stamp
		r.logger.Warn("trust registry reload failed, serving last good copy", "path", r.path, "error", err)
		return
	}
	r.current = snapshot
	r.stamp = stamp
	r.failed = fileStamp{}
	r.loads++
	r.logger.Info("trust registry loaded", "path", r.path, "types", len(snapshot.Types))
}

func loadRegistry(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file registryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("trust: parse registry: %w", err)
	}
	types := make(map[string]struct{}, len(file.RecognizedCredentialTypes))
	for _, t := range file.RecognizedCredentialTypes {
		if trimmed := strings.TrimSpace(t); trimmed != "" {
			types[trimmed] = struct{}{}
		}
	}
	return &Snapshot{
		IssuerID: strings.TrimSpace(file.IssuerID),
		Types:    types,
		LoadedAt: time.Now().UTC(),
	}, nil
}
