package artifact

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automl-backend/pkg/models"
)

func TestJobRootIsStable(t *testing.T) {
	a := JobRoot("/data", models.HuggingFace, "proj1", "CLASSIFICATION_JOB")
	b := JobRoot("/data", models.HuggingFace, "proj1", "CLASSIFICATION_JOB")
	assert.Equal(t, a, b)
	assert.Equal(t, filepath.Join("/data", "huggingface", "proj1", "CLASSIFICATION_JOB"), a)
}

func TestModelDirUniquePerMinute(t *testing.T) {
	jobRoot := JobRoot("/data", models.HuggingFace, "proj1", "NER_JOB")

	t0 := time.Date(2024, 3, 14, 9, 26, 0, 0, time.UTC)
	earlier := ModelDir(jobRoot, models.PyTorch, t0)
	later := ModelDir(jobRoot, models.PyTorch, t0.Add(time.Minute))

	assert.NotEqual(t, earlier, later)
	assert.Less(t, earlier, later, "later run must sort after earlier run")
}

func TestModelDirSameMinuteCollides(t *testing.T) {
	jobRoot := JobRoot("/data", models.HuggingFace, "proj1", "NER_JOB")

	t0 := time.Date(2024, 3, 14, 9, 26, 10, 0, time.UTC)
	a := ModelDir(jobRoot, models.PyTorch, t0)
	b := ModelDir(jobRoot, models.PyTorch, t0.Add(30*time.Second))
	assert.Equal(t, a, b)
}

func TestParseModelDir(t *testing.T) {
	jobRoot := JobRoot("/data", models.HuggingFace, "proj1", "NER_JOB")
	dir := ModelDir(jobRoot, models.TensorFlow, time.Date(2024, 3, 14, 9, 26, 0, 0, time.UTC))

	repo, framework, err := ParseModelDir(dir)
	require.NoError(t, err)
	assert.Equal(t, models.HuggingFace, repo)
	assert.Equal(t, models.TensorFlow, framework)
}

func TestParseModelDirRejectsUnknownSegments(t *testing.T) {
	for _, path := range []string{
		"/data/modelzoo/proj1/NER_JOB/model/pytorch/2024-03-14_09:26",
		"/data/huggingface/proj1/NER_JOB/model/jax/2024-03-14_09:26",
		"/data/huggingface/proj1/NER_JOB/weights/pytorch/2024-03-14_09:26",
		"/short",
	} {
		_, _, err := ParseModelDir(path)
		var malformed *MalformedPathError
		assert.ErrorAs(t, err, &malformed, "path %q", path)
	}
}

func TestWeightsMarker(t *testing.T) {
	assert.Equal(t, "pytorch_model.bin", WeightsMarker(models.HuggingFace, models.PyTorch))
	assert.Equal(t, "tf_model.h5", WeightsMarker(models.HuggingFace, models.TensorFlow))
	assert.Equal(t, "best.pt", WeightsMarker(models.Ultralytics, models.PyTorch))
}

func TestLatestModelDir(t *testing.T) {
	root := t.TempDir()
	jobRoot := JobRoot(root, models.HuggingFace, "proj1", "NER_JOB")

	mkRun := func(framework models.ModelFramework, at time.Time, withWeights bool) string {
		dir := ModelDir(jobRoot, framework, at)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		if withWeights {
			marker := filepath.Join(dir, WeightsMarker(models.HuggingFace, framework))
			require.NoError(t, os.WriteFile(marker, []byte("weights"), 0o644))
		}
		return dir
	}

	t0 := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	mkRun(models.PyTorch, t0, true)
	want := mkRun(models.PyTorch, t0.Add(2*time.Hour), true)
	// The newest run never finished: no weights marker, so it is skipped.
	mkRun(models.PyTorch, t0.Add(3*time.Hour), false)

	got, err := LatestModelDir(jobRoot, models.HuggingFace)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLatestModelDirNoRuns(t *testing.T) {
	root := t.TempDir()
	jobRoot := JobRoot(root, models.HuggingFace, "proj1", "NER_JOB")

	_, err := LatestModelDir(jobRoot, models.HuggingFace)
	assert.ErrorIs(t, err, ErrNoTrainedModel)
}

func TestLatestModelDirWrongRepository(t *testing.T) {
	root := t.TempDir()
	// Tree written under ultralytics, looked up as huggingface.
	jobRoot := JobRoot(root, models.Ultralytics, "proj1", "DETECTION_JOB")
	dir := ModelDir(jobRoot, models.PyTorch, time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	marker := filepath.Join(dir, WeightsMarker(models.HuggingFace, models.PyTorch))
	require.NoError(t, os.WriteFile(marker, []byte("weights"), 0o644))

	_, err := LatestModelDir(jobRoot, models.HuggingFace)
	var malformed *MalformedPathError
	assert.ErrorAs(t, err, &malformed)
}
