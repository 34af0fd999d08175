package memo

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automl-backend/internal/artifact"
	"automl-backend/pkg/models"
)

func TestGetOrComputeRunsOnce(t *testing.T) {
	cache := New(t.TempDir())
	ns, err := cache.ProjectNamespace("proj1", CategoryGetAssets)
	require.NoError(t, err)

	calls := 0
	compute := func() (any, error) {
		calls++
		return []string{"asset-1", "asset-2"}, nil
	}

	var first, second []string
	require.NoError(t, cache.GetOrCompute(ns, "labeled|DEFAULT", &first, compute))
	require.NoError(t, cache.GetOrCompute(ns, "labeled|DEFAULT", &second, compute))

	assert.Equal(t, 1, calls, "second call must be served from cache")
	assert.Equal(t, first, second)
}

func TestGetOrComputeDistinctKeys(t *testing.T) {
	cache := New(t.TempDir())
	ns, err := cache.ProjectNamespace("proj1", CategoryGetAssets)
	require.NoError(t, err)

	calls := 0
	compute := func() (any, error) {
		calls++
		return calls, nil
	}

	var a, b int
	require.NoError(t, cache.GetOrCompute(ns, "key-a", &a, compute))
	require.NoError(t, cache.GetOrCompute(ns, "key-b", &b, compute))
	assert.Equal(t, 2, calls)
	assert.NotEqual(t, a, b)
}

func TestGetOrComputePropagatesComputeError(t *testing.T) {
	cache := New(t.TempDir())
	ns, err := cache.ProjectNamespace("proj1", CategoryDownloadAsset)
	require.NoError(t, err)

	boom := errors.New("connection reset")
	var out string
	err = cache.GetOrCompute(ns, "k", &out, func() (any, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	// A failed computation must not poison the cache.
	calls := 0
	require.NoError(t, cache.GetOrCompute(ns, "k", &out, func() (any, error) {
		calls++
		return "ok", nil
	}))
	assert.Equal(t, 1, calls)
	assert.Equal(t, "ok", out)
}

func TestProjectNamespaceRequiresProjectID(t *testing.T) {
	cache := New(t.TempDir())
	_, err := cache.ProjectNamespace("", CategoryGetAssets)
	assert.ErrorIs(t, err, ErrMissingProjectID)
}

func TestNamespacesAreIsolatedPerProject(t *testing.T) {
	cache := New(t.TempDir())
	ns1, err := cache.ProjectNamespace("proj1", CategoryGetAssets)
	require.NoError(t, err)
	ns2, err := cache.ProjectNamespace("proj2", CategoryGetAssets)
	require.NoError(t, err)

	var out string
	require.NoError(t, cache.GetOrCompute(ns1, "k", &out, func() (any, error) { return "one", nil }))
	require.NoError(t, cache.GetOrCompute(ns2, "k", &out, func() (any, error) { return "two", nil }))
	assert.Equal(t, "two", out)
}

func TestGlobalNamespaceSharedAcrossCallers(t *testing.T) {
	cache := New(t.TempDir())
	ns := cache.GlobalNamespace(CategoryDownloadAsset)

	calls := 0
	compute := func() (any, error) {
		calls++
		return "image-bytes", nil
	}

	var out string
	require.NoError(t, cache.GetOrCompute(ns, "https://assets.example.com/1", &out, compute))
	require.NoError(t, cache.GetOrCompute(ns, "https://assets.example.com/1", &out, compute))

	assert.Equal(t, 1, calls, "the same URL must be fetched once, whoever asks")
	assert.Equal(t, "image-bytes", out)
}

func TestInvalidateLeavesGlobalDownloads(t *testing.T) {
	root := t.TempDir()
	cache := New(filepath.Join(root, "cache"))
	ns := cache.GlobalNamespace(CategoryDownloadAsset)

	calls := 0
	compute := func() (any, error) {
		calls++
		return "image-bytes", nil
	}

	var out string
	require.NoError(t, cache.GetOrCompute(ns, "https://assets.example.com/1", &out, compute))

	require.NoError(t, cache.Invalidate(filepath.Join(root, "artifacts"), "proj1", CommandTrain, nil, "JOB"))

	require.NoError(t, cache.GetOrCompute(ns, "https://assets.example.com/1", &out, compute))
	assert.Equal(t, 1, calls, "completed downloads survive invalidation")
}

func TestInvalidateForcesRecompute(t *testing.T) {
	root := t.TempDir()
	cache := New(filepath.Join(root, "cache"))
	ns, err := cache.ProjectNamespace("proj1", CategoryGetAssets)
	require.NoError(t, err)

	calls := 0
	compute := func() (any, error) {
		calls++
		return "assets", nil
	}

	var out string
	require.NoError(t, cache.GetOrCompute(ns, "k", &out, compute))

	repo := models.HuggingFace
	require.NoError(t, cache.Invalidate(filepath.Join(root, "artifacts"), "proj1", CommandTrain, &repo, "NER_JOB"))

	require.NoError(t, cache.GetOrCompute(ns, "k", &out, compute))
	assert.Equal(t, 2, calls, "invalidation must force a cache miss")
}

func TestInvalidateRemovesFrameworkSubtrees(t *testing.T) {
	root := t.TempDir()
	artifactRoot := filepath.Join(root, "artifacts")
	cache := New(filepath.Join(root, "cache"))

	jobRoot := artifact.JobRoot(artifactRoot, models.HuggingFace, "proj1", "NER_JOB")
	modelDir := artifact.ModelDir(jobRoot, models.PyTorch, time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC))
	require.NoError(t, os.MkdirAll(modelDir, 0o755))

	// Repository unspecified: every known repository is invalidated.
	require.NoError(t, cache.Invalidate(artifactRoot, "proj1", CommandTrain, nil, "NER_JOB"))

	_, err := os.Stat(artifact.FrameworkDir(jobRoot, models.PyTorch))
	assert.True(t, os.IsNotExist(err), "framework subtree must be removed")

	// The dataset subtree is untouched by cache invalidation.
	_, err = os.Stat(jobRoot)
	assert.NoError(t, err)
}

func TestInvalidateUnknownCommand(t *testing.T) {
	cache := New(t.TempDir())
	err := cache.Invalidate(t.TempDir(), "proj1", Command("evaluate"), nil, "JOB")
	assert.Error(t, err)
}
