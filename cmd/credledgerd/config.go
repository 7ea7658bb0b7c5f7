package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-credledger/core"
)

const (
	envPrefix     = "CREDLEDGER_"
	envConfigPath = envPrefix + "CONFIG"
)

// fileConfigLoader reads a YAML (or JSON) config file and lays environment
// overrides on top. CREDLEDGER_HTTP_ADDR sets http.addr; list values are
// comma separated.
type fileConfigLoader struct {
	path    string
	environ func() []string
}

func newFileConfigLoader(path string) *fileConfigLoader {
	return &fileConfigLoader{path: strings.TrimSpace(path), environ: os.Environ}
}

func (l *fileConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	raw := map[string]any{}
	if l.path != "" {
		content, err := os.ReadFile(l.path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", l.path, err)
		default:
			if err := yaml.Unmarshal(content, &raw); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", l.path, err)
			}
			if raw == nil {
				raw = map[string]any{}
			}
		}
	}
	for _, entry := range l.environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, envPrefix) || key == envConfigPath {
			continue
		}
		applyEnvOverride(raw, strings.TrimPrefix(key, envPrefix), value)
	}
	return raw, nil
}

var sectionKeys = map[string]bool{
	"issuer":      true,
	"trust":       true,
	"credentials": true,
	"ledger":      true,
	"audit":       true,
	"livefeed":    true,
	"persistence": true,
	"http":        true,
}

func applyEnvOverride(raw map[string]any, name string, value string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return
	}
	section, key, nested := strings.Cut(name, "_")
	if !nested || !sectionKeys[section] {
		raw[name] = value
		return
	}
	target, ok := raw[section].(map[string]any)
	if !ok {
		target = map[string]any{}
		raw[section] = target
	}
	target[key] = envValue(section+"."+key, value)
}

func envValue(path string, value string) any {
	switch path {
	case "ledger.allowed_methods":
		var out []any
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	case "ledger.default_list_limit", "livefeed.queue_size":
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
	case "persistence.debug":
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return value
}

func loadConfig(ctx context.Context, path string) (core.Config, error) {
	return core.NewCfgxConfigProvider(newFileConfigLoader(path)).Load(ctx, core.DefaultConfig())
}

// persistenceConfig satisfies the go-persistence-bun client config.
type persistenceConfig struct {
	cfg         core.PersistenceConfig
	serviceName string
}

func (c persistenceConfig) GetDebug() bool                { return c.cfg.Debug }
func (c persistenceConfig) GetDriver() string             { return c.cfg.Driver }
func (c persistenceConfig) GetServer() string             { return c.cfg.DSN }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return c.serviceName }
