package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/cachekit"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadParsesYAML(t *testing.T) {
	path := writeConfigFile(t, `
adapter: memory
cleanup_interval: 30s
eviction:
  enabled: true
  max_items: 1000
  strategy: lfu
default_policy:
  priority: high
  compression: always
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, AdapterMemory, cfg.Adapter)
	assert.True(t, cfg.Eviction.Enabled)
	assert.Equal(t, 1000, cfg.Eviction.MaxItems)
	assert.Equal(t, "high", cfg.DefaultPolicy.Priority)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestBuildAdapterUnknownKindErrors(t *testing.T) {
	cfg := &Config{Adapter: "bogus"}
	_, err := cfg.BuildAdapter()
	assert.ErrorIs(t, err, cachekit.ErrAdapterNotFound)
}

func TestBuildAdapterDefaultsToMemory(t *testing.T) {
	cfg := &Config{}
	adapter, err := cfg.BuildAdapter()
	require.NoError(t, err)
	require.NotNil(t, adapter)
}

func TestBuildWiresDefaultPolicyAndEviction(t *testing.T) {
	cfg := &Config{
		Adapter: AdapterMemory,
		Eviction: EvictionConfig{
			Enabled:  true,
			MaxItems: 10,
			Strategy: "fifo",
		},
		DefaultPolicy: DefaultPolicyConfig{Priority: "critical"},
	}
	engine, err := cfg.Build()
	require.NoError(t, err)
	defer engine.Close()

	require.NoError(t, cachekit.Put(context.Background(), engine, "k", "v"))
	v, found, err := cachekit.Get[string](context.Background(), engine, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", v)
}

func TestBuildUnknownSerializerIsSerializerNotFound(t *testing.T) {
	cfg := &Config{Adapter: AdapterMemory, Serializer: "bogus-encoding"}
	_, err := cfg.Build()
	assert.ErrorIs(t, err, cachekit.ErrSerializerNotFound)
}

func TestBuildFailsWhenEncryptionEnvVarUnset(t *testing.T) {
	cfg := &Config{Adapter: AdapterMemory, EncryptionKeyEnv: "CACHEKIT_TEST_MISSING_SECRET_VAR"}
	os.Unsetenv("CACHEKIT_TEST_MISSING_SECRET_VAR")
	_, err := cfg.Build()
	assert.Error(t, err)
}

func TestBuildReadsEncryptionSecretFromEnvNotYAML(t *testing.T) {
	t.Setenv("CACHEKIT_TEST_SECRET", "correct horse battery staple")
	cfg := &Config{Adapter: AdapterMemory, EncryptionKeyEnv: "CACHEKIT_TEST_SECRET"}
	engine, err := cfg.Build()
	require.NoError(t, err)
	defer engine.Close()

	ctx := context.Background()
	require.NoError(t, cachekit.Put(ctx, engine, "secret", "classified",
		cachekit.WithPutPolicy(cachekit.EncryptedPolicy(time.Hour))))

	v, found, err := cachekit.Get[string](ctx, engine, "secret")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "classified", v)
}
