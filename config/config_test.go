package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apiharness/sdk/apierr"
)

// writeConfig lays out a config directory with a base file and one or more
// environment files.
func writeConfig(t *testing.T, base string, envs map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	if base != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(base), 0o644))
	}
	if len(envs) > 0 {
		require.NoError(t, os.Mkdir(filepath.Join(dir, "environments"), 0o755))
		for env, content := range envs {
			path := filepath.Join(dir, "environments", env+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		}
	}
	return dir
}

const baseYAML = `
api:
  baseUrl: https://base.example.com
  maxRetries: 3
  retryDelayMs: 1000
  validateStatus: true
auth:
  defaultStrategy: none
`

func TestLoadOverlayPrecedence(t *testing.T) {
	dir := writeConfig(t, baseYAML, map[string]string{
		"qa": "api:\n  baseUrl: https://qa.example.com\n",
	})

	p, err := Load(dir, "qa", nil)
	require.NoError(t, err)

	url, err := p.GetString("api.baseUrl")
	require.NoError(t, err)
	assert.Equal(t, "https://qa.example.com", url, "environment file must win over base")
	assert.Equal(t, 3, p.GetIntDefault("api.maxRetries", 0), "base keys survive the overlay")
}

func TestLoadMissingFilesIsNotFatal(t *testing.T) {
	p, err := Load(t.TempDir(), "qa", nil)
	require.NoError(t, err)

	_, err = p.GetString("api.baseUrl")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apierr.ErrMissingKey))

	var he *apierr.Error
	require.True(t, errors.As(err, &he))
	assert.Equal(t, apierr.KindConfiguration, he.Kind)
}

func TestEnvironmentSelection(t *testing.T) {
	dir := writeConfig(t, "", map[string]string{
		"qa":      "api:\n  baseUrl: https://qa.example.com\n",
		"staging": "api:\n  baseUrl: https://staging.example.com\n",
	})

	t.Run("explicit env wins", func(t *testing.T) {
		p, err := Load(dir, "staging", nil)
		require.NoError(t, err)
		assert.Equal(t, "staging", p.Environment())
	})

	t.Run("env var fallback", func(t *testing.T) {
		t.Setenv(EnvVar, "staging")
		p, err := Load(dir, "", nil)
		require.NoError(t, err)
		assert.Equal(t, "staging", p.Environment())
	})

	t.Run("default fallback", func(t *testing.T) {
		t.Setenv(EnvVar, "")
		p, err := Load(dir, "", nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultEnvironment, p.Environment())
	})
}

func TestSwitchEnvironment(t *testing.T) {
	dir := writeConfig(t, "", map[string]string{
		"qa":      "api:\n  baseUrl: https://qa.example.com\n",
		"staging": "api:\n  baseUrl: https://staging.example.com\n",
	})

	p, err := Load(dir, "qa", nil)
	require.NoError(t, err)

	require.NoError(t, p.SwitchEnvironment("staging"))
	url, err := p.GetString("api.baseUrl")
	require.NoError(t, err)
	assert.Equal(t, "https://staging.example.com", url)

	require.NoError(t, p.SwitchEnvironment("qa"))
	url, err = p.GetString("api.baseUrl")
	require.NoError(t, err)
	assert.Equal(t, "https://qa.example.com", url)
}

func TestTypedGetters(t *testing.T) {
	dir := writeConfig(t, `
api:
  maxRetries: 5
  retryDelayMs: 250
  timeout: 2s
  validateStatus: false
  name: 42
`, nil)

	p, err := Load(dir, "qa", nil)
	require.NoError(t, err)

	t.Run("int", func(t *testing.T) {
		n, err := p.GetInt("api.maxRetries")
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		assert.Equal(t, 5, p.GetIntDefault("api.maxRetries", 9))
		assert.Equal(t, 9, p.GetIntDefault("api.missing", 9))
	})

	t.Run("bool", func(t *testing.T) {
		assert.False(t, p.GetBoolDefault("api.validateStatus", true))
		assert.True(t, p.GetBoolDefault("api.missing", true))
	})

	t.Run("duration from millis", func(t *testing.T) {
		assert.Equal(t, 250*time.Millisecond, p.GetDuration("api.retryDelayMs", time.Second))
	})

	t.Run("duration from string", func(t *testing.T) {
		assert.Equal(t, 2*time.Second, p.GetDuration("api.timeout", time.Second))
	})

	t.Run("duration default", func(t *testing.T) {
		assert.Equal(t, time.Second, p.GetDuration("api.missing", time.Second))
	})

	t.Run("string coercion", func(t *testing.T) {
		assert.Equal(t, "42", p.GetStringDefault("api.name", ""))
	})
}

func TestSetOverride(t *testing.T) {
	p, err := Load(t.TempDir(), "qa", nil)
	require.NoError(t, err)

	p.Set("api.baseUrl", "https://override.example.com")
	url, err := p.GetString("api.baseUrl")
	require.NoError(t, err)
	assert.Equal(t, "https://override.example.com", url)
}

func TestConcurrentReads(t *testing.T) {
	dir := writeConfig(t, baseYAML, map[string]string{
		"qa": "api:\n  baseUrl: https://qa.example.com\n",
	})

	p, err := Load(dir, "qa", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = p.GetString("api.baseUrl")
				_ = p.GetIntDefault("api.maxRetries", 1)
				_ = p.GetBoolDefault("api.validateStatus", false)
			}
		}()
	}
	wg.Wait()
}
