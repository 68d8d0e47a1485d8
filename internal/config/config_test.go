package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_MatchesDocumentedDefaults(t *testing.T) {
	cfg := Default()

	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 3, cfg.Retrieval.TopKProcedures)
	assert.Equal(t, 2, cfg.Retrieval.TopKContext)
	assert.True(t, cfg.Retrieval.IncludeSummaries)
	assert.Equal(t, 150000, cfg.Retrieval.MaxTokens)
	assert.Equal(t, 60000, cfg.Lock.StaleMs)
	assert.Equal(t, 500, cfg.Lock.MinBackoffMs)
	assert.Equal(t, 3000, cfg.Lock.MaxBackoffMs)
	assert.Equal(t, 32, cfg.Embedding.BatchSize)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	// Given: a project with a .phasergun.yaml
	root := t.TempDir()
	yaml := `
retrieval:
  top_k_procedures: 7
  top_k_context: 4
  include_summaries: true
  max_tokens: 9000
`
	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFileName), []byte(yaml), 0o644))

	// When: loading the config
	cfg, err := Load(root)

	// Then: file values win over defaults, untouched values remain
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Retrieval.TopKProcedures)
	assert.Equal(t, 4, cfg.Retrieval.TopKContext)
	assert.Equal(t, 9000, cfg.Retrieval.MaxTokens)
	assert.Equal(t, 60000, cfg.Lock.StaleMs)
}

func TestLoad_CacheEnabledEnvOverride(t *testing.T) {
	root := t.TempDir()
	t.Setenv("CACHE_ENABLED", "false")

	cfg, err := Load(root)

	require.NoError(t, err)
	assert.False(t, cfg.Cache.Enabled)
}

func TestLoad_CacheDirEnvOverride(t *testing.T) {
	root := t.TempDir()
	t.Setenv("PHASERGUN_CACHE_DIR", "/custom/cache")

	cfg, err := Load(root)

	require.NoError(t, err)
	assert.Equal(t, "/custom/cache", cfg.Cache.Dir)
}

func TestLoad_InvalidYAMLFails(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFileName), []byte("{not yaml"), 0o644))

	_, err := Load(root)

	assert.Error(t, err)
}

func TestValidate_RejectsNegativeTopK(t *testing.T) {
	cfg := Default()
	cfg.Retrieval.TopKProcedures = -1

	assert.Error(t, cfg.Validate())
}

func TestParseBool(t *testing.T) {
	assert.True(t, parseBool("TRUE", false))
	assert.True(t, parseBool("1", false))
	assert.False(t, parseBool("off", true))
	assert.True(t, parseBool("garbage", true))
	assert.False(t, parseBool("garbage", false))
}
