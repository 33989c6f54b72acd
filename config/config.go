// Package config provides the environment-keyed configuration provider for
// the harness. A base config.yaml is overlaid with environments/<env>.yaml,
// nested maps are addressed with dotted keys, and per-environment maps are
// loaded lazily at most once. Providers are explicitly constructed and
// passed by reference, never ambient singletons.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/apiharness/sdk/apierr"
)

// DefaultEnvironment is used when no environment is selected explicitly.
const DefaultEnvironment = "qa"

// EnvVar selects the active environment when set (e.g. HARNESS_ENV=staging).
const EnvVar = "HARNESS_ENV"

// Provider supplies typed key/value lookups per environment.
//
// Lookups are safe for concurrent use. Loading an environment's files
// happens at most once, behind the provider's lock; subsequent reads hit
// the cached map.
type Provider struct {
	dir    string
	logger *slog.Logger

	mu      sync.RWMutex
	current string
	envs    map[string]map[string]any
}

// Load creates a provider rooted at dir and loads the given environment.
// An empty env falls back to the HARNESS_ENV variable, then to "qa".
//
// Both the base file (dir/config.yaml) and the environment file
// (dir/environments/<env>.yaml) are optional; a missing file is logged and
// skipped. A key lookup against an empty configuration fails with a
// configuration error, not the load itself.
func Load(dir, env string, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if env == "" {
		env = os.Getenv(EnvVar)
	}
	if env == "" {
		env = DefaultEnvironment
	}

	p := &Provider{
		dir:     dir,
		logger:  logger,
		current: env,
		envs:    make(map[string]map[string]any),
	}

	if _, err := p.load(env); err != nil {
		return nil, err
	}

	p.logger.Info("loaded configuration", "dir", dir, "environment", env)
	return p, nil
}

// Environment returns the active environment name.
func (p *Provider) Environment() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// SwitchEnvironment re-targets subsequent lookups at another environment,
// loading its files on first use.
func (p *Provider) SwitchEnvironment(env string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.envs[env]; !ok {
		values, err := p.loadFiles(env)
		if err != nil {
			return err
		}
		p.envs[env] = values
	}

	p.logger.Info("switched environment", "from", p.current, "to", env)
	p.current = env
	return nil
}

// load returns the cached value map for env, reading the files on first use.
func (p *Provider) load(env string) (map[string]any, error) {
	p.mu.RLock()
	values, ok := p.envs[env]
	p.mu.RUnlock()
	if ok {
		return values, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Another goroutine may have loaded it while we waited for the lock.
	if values, ok := p.envs[env]; ok {
		return values, nil
	}

	values, err := p.loadFiles(env)
	if err != nil {
		return nil, err
	}
	p.envs[env] = values
	return values, nil
}

// loadFiles reads the base file overlaid with the environment file and
// flattens nested maps into dotted keys. Caller holds the write lock.
func (p *Provider) loadFiles(env string) (map[string]any, error) {
	values := make(map[string]any)

	base := filepath.Join(p.dir, "config.yaml")
	if err := p.mergeFile(values, base); err != nil {
		return nil, err
	}

	envFile := filepath.Join(p.dir, "environments", env+".yaml")
	if err := p.mergeFile(values, envFile); err != nil {
		return nil, err
	}

	return values, nil
}

// mergeFile reads one YAML file into the flattened value map. Environment
// files are merged after the base file, so their keys win.
func (p *Provider) mergeFile(values map[string]any, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			p.logger.Debug("configuration file not present, skipping", "path", path)
			return nil
		}
		return apierr.NewConfigurationError("config.Provider.Load",
			fmt.Errorf("reading %s: %w", path, err))
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return apierr.NewConfigurationError("config.Provider.Load",
			fmt.Errorf("parsing %s: %w", path, err))
	}

	flatten("", raw, values)
	p.logger.Debug("merged configuration file", "path", path)
	return nil
}

// flatten walks nested maps, joining keys with dots. Leaf values keep their
// decoded YAML type.
func flatten(prefix string, in map[string]any, out map[string]any) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = v
	}
}

// lookup returns the raw value for key in the active environment.
func (p *Provider) lookup(key string) (any, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.envs[p.current][key]
	return v, ok
}

// Has reports whether key is present in the active environment.
func (p *Provider) Has(key string) bool {
	_, ok := p.lookup(key)
	return ok
}

// Set overrides a key on the active environment. Intended for tests that
// need to adjust a single value without writing files.
func (p *Provider) Set(key string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	env := p.envs[p.current]
	if env == nil {
		env = make(map[string]any)
		p.envs[p.current] = env
	}
	env[key] = value
}

// GetString returns the value for key as a string. Missing keys fail with
// a configuration error carrying apierr.ErrMissingKey.
func (p *Provider) GetString(key string) (string, error) {
	v, ok := p.lookup(key)
	if !ok {
		return "", apierr.NewConfigurationError("config.Provider.GetString",
			fmt.Errorf("%w: %s", apierr.ErrMissingKey, key))
	}
	return coerceString(v), nil
}

// GetStringDefault returns the value for key as a string, or def when the
// key is absent.
func (p *Provider) GetStringDefault(key, def string) string {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	return coerceString(v)
}

// GetInt returns the value for key as an int.
func (p *Provider) GetInt(key string) (int, error) {
	v, ok := p.lookup(key)
	if !ok {
		return 0, apierr.NewConfigurationError("config.Provider.GetInt",
			fmt.Errorf("%w: %s", apierr.ErrMissingKey, key))
	}
	n, err := coerceInt(v)
	if err != nil {
		return 0, apierr.NewConfigurationError("config.Provider.GetInt",
			fmt.Errorf("key %s: %w", key, err))
	}
	return n, nil
}

// GetIntDefault returns the value for key as an int, or def when the key is
// absent or malformed. Malformed values are logged at warn level.
func (p *Provider) GetIntDefault(key string, def int) int {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	n, err := coerceInt(v)
	if err != nil {
		p.logger.Warn("malformed integer configuration value, using default",
			"key", key, "value", v, "default", def)
		return def
	}
	return n
}

// GetBoolDefault returns the value for key as a bool, or def when the key
// is absent or malformed.
func (p *Provider) GetBoolDefault(key string, def bool) bool {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(b)
		if err == nil {
			return parsed
		}
	}
	p.logger.Warn("malformed boolean configuration value, using default",
		"key", key, "value", v, "default", def)
	return def
}

// GetDuration returns the value for key as a duration. Integer values are
// interpreted as milliseconds (matching the *Ms key convention); strings
// may use Go duration syntax ("1s", "500ms"). Absent or malformed values
// return def.
func (p *Provider) GetDuration(key string, def time.Duration) time.Duration {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	switch d := v.(type) {
	case int:
		return time.Duration(d) * time.Millisecond
	case int64:
		return time.Duration(d) * time.Millisecond
	case float64:
		return time.Duration(d) * time.Millisecond
	case string:
		if parsed, err := time.ParseDuration(d); err == nil {
			return parsed
		}
		if ms, err := strconv.Atoi(d); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	p.logger.Warn("malformed duration configuration value, using default",
		"key", key, "value", v, "default", def)
	return def
}

func coerceString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func coerceInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("cannot interpret %T as int", v)
	}
}
