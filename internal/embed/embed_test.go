package embed

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	// Given: the same text embedded twice by independent embedders
	text := "Design verification shall confirm that design outputs meet design inputs."
	a, err := NewHashEmbedder().Embed(context.Background(), text)
	require.NoError(t, err)
	b, err := NewHashEmbedder().Embed(context.Background(), text)
	require.NoError(t, err)

	// Then: the vectors are identical
	assert.Equal(t, a, b)
}

func TestHashEmbedder_DimensionsAndNormalization(t *testing.T) {
	vec, err := NewHashEmbedder().Embed(context.Background(), "risk management per ISO 14971")
	require.NoError(t, err)

	require.Len(t, vec, Dimensions)

	var norm float64
	for _, x := range vec {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, norm, 1e-5, "vector must be unit length")
}

func TestHashEmbedder_EmptyTextIsZeroVector(t *testing.T) {
	vec, err := NewHashEmbedder().Embed(context.Background(), "   \n\t ")
	require.NoError(t, err)

	require.Len(t, vec, Dimensions)
	for _, x := range vec {
		assert.Zero(t, x)
	}
}

func TestHashEmbedder_DifferentTextsDiffer(t *testing.T) {
	e := NewHashEmbedder()
	a, err := e.Embed(context.Background(), "software verification protocol")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "clinical evaluation report")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestHashEmbedder_SimilarTextsScoreHigher(t *testing.T) {
	e := NewHashEmbedder()
	query, _ := e.Embed(context.Background(), "design verification testing")
	near, _ := e.Embed(context.Background(), "verification testing of the design outputs")
	far, _ := e.Embed(context.Background(), "purchasing controls supplier audits")

	assert.Greater(t, dot(query, near), dot(query, far))
}

func TestHashEmbedder_EmbedAfterCloseFails(t *testing.T) {
	e := NewHashEmbedder()
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "anything")
	assert.Error(t, err)
}

func TestHashEmbedder_BatchOrderPreserved(t *testing.T) {
	e := NewHashEmbedder()
	texts := []string{"first chunk", "second chunk", "third chunk"}

	batch, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	for i, text := range texts {
		single, err := e.Embed(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i], "batch position %d must match single embed", i)
	}
}

func TestTokenize_SplitsCompoundIdentifiers(t *testing.T) {
	tokens := tokenize("DesignInput risk_file DHFIndex")

	assert.Contains(t, tokens, "design")
	assert.Contains(t, tokens, "input")
	assert.Contains(t, tokens, "risk")
	assert.Contains(t, tokens, "file")
	assert.Contains(t, tokens, "dhf")
	assert.Contains(t, tokens, "index")
}

func TestCachedEmbedder_ReturnsSameVectorWithoutRecompute(t *testing.T) {
	counter := &countingEmbedder{inner: NewHashEmbedder()}
	cached := NewCachedEmbedder(counter, 10)

	first, err := cached.Embed(context.Background(), "device master record")
	require.NoError(t, err)
	second, err := cached.Embed(context.Background(), "device master record")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, counter.calls, "second embed must be a cache hit")
}

func TestCachedEmbedder_BatchOnlyComputesMisses(t *testing.T) {
	counter := &countingEmbedder{inner: NewHashEmbedder()}
	cached := NewCachedEmbedder(counter, 10)

	_, err := cached.Embed(context.Background(), "alpha")
	require.NoError(t, err)

	batch, err := cached.EmbedBatch(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, batch, 2)

	assert.Equal(t, 2, counter.calls, "only the uncached text should be computed")
}

func TestDiskMemo_RoundTrip(t *testing.T) {
	memo, err := NewDiskMemo(filepath.Join(t.TempDir(), "embeddings"))
	require.NoError(t, err)

	e := NewHashEmbedder()
	vec, err := e.Embed(context.Background(), "capa effectiveness check")
	require.NoError(t, err)

	key := memo.Key("Procedures/SOP-010.md", "abc123", e.ModelVersion())
	memo.Put(context.Background(), key, e.ModelVersion(), vec)

	got, ok := memo.Get(key, e.ModelVersion())
	require.True(t, ok)
	assert.Equal(t, vec, got)
}

func TestDiskMemo_ModelVersionMismatchMisses(t *testing.T) {
	memo, err := NewDiskMemo(filepath.Join(t.TempDir(), "embeddings"))
	require.NoError(t, err)

	key := memo.Key("a.md", "hash", "hash-v1")
	memo.Put(context.Background(), key, "hash-v1", make([]float32, Dimensions))

	_, ok := memo.Get(key, "hash-v2")
	assert.False(t, ok)
}

func TestDiskMemo_MissingKeyMisses(t *testing.T) {
	memo, err := NewDiskMemo(filepath.Join(t.TempDir(), "embeddings"))
	require.NoError(t, err)

	_, ok := memo.Get("nope", "hash-v1")
	assert.False(t, ok)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return math.Round(sum*1e9) / 1e9
}

// countingEmbedder counts delegated computations for cache assertions.
type countingEmbedder struct {
	inner Embedder
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls += len(texts)
	return c.inner.EmbedBatch(ctx, texts)
}

func (c *countingEmbedder) Dimensions() int { return c.inner.Dimensions() }

func (c *countingEmbedder) ModelVersion() string { return c.inner.ModelVersion() }

func (c *countingEmbedder) Close() error { return c.inner.Close() }
