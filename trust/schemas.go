package trust

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Result struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors,omitempty"`
}

type compiledSchema struct {
	slug   string
	path   string
	raw    json.RawMessage
	schema *jsonschema.Schema
}

type dirStamp struct {
	newest time.Time
	files  string
}

// Catalog maps credential type slugs to compiled JSON Schemas. The whole
// directory is recompiled as a unit when its newest modification time advances
// or its file set changes.
type Catalog struct {
	dir    string
	logger glog.Logger

	mu      sync.Mutex
	stamp   dirStamp
	failed  dirStamp
	loaded  bool
	schemas map[string]*compiledSchema
	loads   int
}

func NewCatalog(dir string, opts ...Option) *Catalog {
	resolved := resolveOptions(opts)
	return &Catalog{
		dir:     strings.TrimSpace(dir),
		logger:  resolved.logger,
		schemas: map[string]*compiledSchema{},
	}
}

// Validate checks subject against the schema registered for credentialType.
// Types without a schema are always valid.
func (c *Catalog) Validate(credentialType string, subject any) Result {
	if c == nil {
		return Result{Valid: true}
	}
	c.mu.Lock()
	c.refreshLocked()
	entry := c.schemas[TypeSlug(credentialType)]
	c.mu.Unlock()
	if entry == nil {
		return Result{Valid: true}
	}

	instance, err := normalizeInstance(subject)
	if err != nil {
		return Result{Errors: []FieldError{{Field: "subject", Message: err.Error()}}}
	}
	if err := entry.schema.Validate(instance); err != nil {
		return Result{Errors: fieldErrors(err)}
	}
	return Result{Valid: true}
}

// Slugs lists the slugs of the active catalog.
func (c *Catalog) Slugs() []string {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked()
	out := make([]string, 0, len(c.schemas))
	for slug := range c.schemas {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}

// Schema returns the raw JSON document registered under slug.
func (c *Catalog) Schema(slug string) (json.RawMessage, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked()
	entry, ok := c.schemas[strings.TrimSpace(slug)]
	if !ok {
		return nil, false
	}
	return append(json.RawMessage(nil), entry.raw...), true
}

func (c *Catalog) Loads() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads
}

func (c *Catalog) refreshLocked() {
	if c.dir == "" {
		return
	}
	paths, stamp, err := scanDir(c.dir)
	if err != nil {
		if c.loaded {
			c.logger.Warn("schema catalog scan failed, serving last good copy", "dir", c.dir, "error", err)
		}
		return
	}
	if c.loaded && stamp == c.stamp {
		return
	}
	if stamp == c.failed {
		return
	}

	schemas, err := compileAll(paths)
	if err != nil {
		c.failed = stamp
		c.logger.Warn("schema catalog reload failed, serving last good copy", "dir", c.dir, "error", err)
		return
	}
	c.schemas = schemas
	c.stamp = stamp
	c.failed = dirStamp{}
	c.loaded = true
	c.loads++
	c.logger.Info("schema catalog loaded", "dir", c.dir, "schemas", len(schemas))
}

func scanDir(dir string) ([]string, dirStamp, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, dirStamp{}, err
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, dirStamp{}, err
	}
	sort.Strings(paths)
	stamp := dirStamp{files: strings.Join(paths, "\x00")}
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, dirStamp{}, err
		}
		if info.ModTime().After(stamp.newest) {
			stamp.newest = info.ModTime()
		}
	}
	return paths, stamp, nil
}

func compileAll(paths []string) (map[string]*compiledSchema, error) {
	compiler := jsonschema.NewCompiler()
	pending := make([]*compiledSchema, 0, len(paths))
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if !json.Valid(raw) {
			return nil, fmt.Errorf("trust: schema %s is not valid json", filepath.Base(path))
		}
		url := schemaURL(path)
		if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("trust: add schema %s: %w", filepath.Base(path), err)
		}
		pending = append(pending, &compiledSchema{slug: fileSlug(path), path: path, raw: raw})
	}

	out := make(map[string]*compiledSchema, len(pending))
	for _, entry := range pending {
		schema, err := compiler.Compile(schemaURL(entry.path))
		if err != nil {
			return nil, fmt.Errorf("trust: compile schema %s: %w", filepath.Base(entry.path), err)
		}
		entry.schema = schema
		out[entry.slug] = entry
	}
	return out, nil
}

func schemaURL(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file://" + filepath.ToSlash(abs)
}

func fileSlug(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, ".json")
	base = strings.TrimSuffix(base, ".schema")
	return base
}

// TypeSlug maps a credential type name to its schema slug:
// "DonationReceipt" -> "donation-receipt", "payout_attestation" -> "payout-attestation".
func TypeSlug(credentialType string) string {
	trimmed := strings.TrimSpace(credentialType)
	var b strings.Builder
	var prev rune
	for i, r := range trimmed {
		switch {
		case unicode.IsUpper(r):
			if i > 0 && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "-") {
				b.WriteByte('-')
			}
		}
		prev = r
	}
	return strings.Trim(b.String(), "-")
}

func normalizeInstance(subject any) (any, error) {
	raw, err := json.Marshal(subject)
	if err != nil {
		return nil, fmt.Errorf("encode subject: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode subject: %w", err)
	}
	return out, nil
}

func fieldErrors(err error) []FieldError {
	var validationErr *jsonschema.ValidationError
	if !errors.As(err, &validationErr) {
		return []FieldError{{Field: "subject", Message: err.Error()}}
	}
	var out []FieldError
	collectLeaves(validationErr, &out)
	if len(out) == 0 {
		out = append(out, FieldError{Field: fieldName(validationErr.InstanceLocation), Message: validationErr.Message})
	}
	return out
}

func collectLeaves(node *jsonschema.ValidationError, out *[]FieldError) {
	if node == nil {
		return
	}
	if len(node.Causes) == 0 {
		*out = append(*out, FieldError{Field: fieldName(node.InstanceLocation), Message: node.Message})
		return
	}
	for _, cause := range node.Causes {
		collectLeaves(cause, out)
	}
}

func fieldName(instanceLocation string) string {
	trimmed := strings.Trim(instanceLocation, "/")
	if trimmed == "" {
		return "subject"
	}
	return strings.ReplaceAll(trimmed, "/", ".")
}
