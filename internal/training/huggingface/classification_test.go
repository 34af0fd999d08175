package huggingface

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automl-backend/internal/artifact"
	"automl-backend/internal/training"
	"automl-backend/pkg/api"
	"automl-backend/pkg/models"
	"automl-backend/plugin/shared"
)

type fakeDownloader struct {
	contents map[string]string
}

func (d *fakeDownloader) DownloadContent(ctx context.Context, url string) ([]byte, error) {
	text, ok := d.contents[url]
	if !ok {
		return nil, fmt.Errorf("no content at %s", url)
	}
	return []byte(text), nil
}

type fakeBackend struct {
	loss     float64
	requests []shared.FitRequest

	// skipWeights simulates a backend that crashed before persisting.
	skipWeights bool
	repo        models.ModelRepository
}

func (b *fakeBackend) Fit(req shared.FitRequest) (shared.FitResult, error) {
	b.requests = append(b.requests, req)
	if !b.skipWeights {
		repo := b.repo
		if repo == "" {
			repo = models.HuggingFace
		}
		marker := filepath.Join(req.ModelDir, artifact.WeightsMarker(repo, models.ModelFramework(req.Framework)))
		if err := os.WriteFile(marker, []byte("weights"), 0o644); err != nil {
			return shared.FitResult{}, err
		}
	}
	return shared.FitResult{TrainingLoss: b.loss}, nil
}

func classificationAssets() []api.Asset {
	assets := make([]api.Asset, 3)
	categories := []string{"NEGATIVE", "POSITIVE", "NEGATIVE"}
	for i := range assets {
		assets[i] = api.Asset{
			ID:      fmt.Sprintf("asset-%d", i),
			Content: fmt.Sprintf("https://assets.example.com/%d", i),
			Labels: []api.Label{{
				LabelType: "DEFAULT",
				JSONResponse: map[string]api.JobResponse{
					"SENTIMENT": {Categories: []api.AnnotationCategory{{Name: categories[i]}}},
				},
			}},
		}
	}
	return assets
}

func classificationRequest() training.Request {
	return training.Request{
		ProjectID: "proj1",
		Job: models.JobDescriptor{
			Name:         "SENTIMENT",
			ContentInput: models.ContentInputRadio,
			InputType:    models.InputTypeText,
			MLTask:       models.TaskClassification,
			Categories:   []string{"POSITIVE", "NEGATIVE"},
		},
	}
}

func testDownloader() *fakeDownloader {
	return &fakeDownloader{contents: map[string]string{
		"https://assets.example.com/0": "terrible service",
		"https://assets.example.com/1": "lovely product",
		"https://assets.example.com/2": "would not recommend",
	}}
}

func TestClassificationTrainWritesDataset(t *testing.T) {
	root := t.TempDir()
	backend := &fakeBackend{loss: 0.42}
	trainer := NewClassificationTrainer(root, testDownloader(), backend)

	loss, err := trainer.Train(context.Background(), classificationRequest(), classificationAssets())
	require.NoError(t, err)
	assert.Equal(t, 0.42, loss)

	jobRoot := artifact.JobRoot(root, models.HuggingFace, "proj1", "SENTIMENT")
	f, err := os.Open(artifact.DatasetFile(jobRoot))
	require.NoError(t, err)
	defer f.Close()

	var lines []classificationExample
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ex classificationExample
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ex))
		lines = append(lines, ex)
	}
	require.Len(t, lines, 3, "one dataset line per asset")

	assert.Equal(t, classificationExample{Text: "terrible service", Label: 1}, lines[0])
	assert.Equal(t, classificationExample{Text: "lovely product", Label: 0}, lines[1])
	assert.Equal(t, classificationExample{Text: "would not recommend", Label: 1}, lines[2])

	require.Len(t, backend.requests, 1)
	assert.Equal(t, []string{"POSITIVE", "NEGATIVE"}, backend.requests[0].Labels)
	assert.Equal(t, "bert-base-multilingual-cased", backend.requests[0].BaseModel)
	assert.Equal(t, "pytorch", backend.requests[0].Framework)
}

func TestClassificationTrainRejectsUnsupportedFramework(t *testing.T) {
	trainer := NewClassificationTrainer(t.TempDir(), testDownloader(), &fakeBackend{})

	req := classificationRequest()
	req.ModelFramework = models.ModelFramework("jax")

	_, err := trainer.Train(context.Background(), req, classificationAssets())
	var unsupported *training.UnsupportedChoiceError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "model_framework", unsupported.Field)
}

func TestClassificationTrainDatasetGuard(t *testing.T) {
	root := t.TempDir()
	trainer := NewClassificationTrainer(root, testDownloader(), &fakeBackend{})
	trainer.now = func() time.Time { return time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC) }

	_, err := trainer.Train(context.Background(), classificationRequest(), classificationAssets())
	require.NoError(t, err)

	// Second run in a different minute: dataset file is still on disk.
	trainer.now = func() time.Time { return time.Date(2024, 3, 14, 9, 5, 0, 0, time.UTC) }
	_, err = trainer.Train(context.Background(), classificationRequest(), classificationAssets())
	assert.ErrorIs(t, err, training.ErrDatasetExists)

	// Clearing the cache lifts the guard.
	req := classificationRequest()
	req.ClearDatasetCache = true
	_, err = trainer.Train(context.Background(), req, classificationAssets())
	assert.NoError(t, err)
}

func TestClassificationTrainFreshModelDirPerRun(t *testing.T) {
	root := t.TempDir()
	backend := &fakeBackend{loss: 0.1}
	trainer := NewClassificationTrainer(root, testDownloader(), backend)

	req := classificationRequest()
	req.ClearDatasetCache = true

	trainer.now = func() time.Time { return time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC) }
	_, err := trainer.Train(context.Background(), req, classificationAssets())
	require.NoError(t, err)

	trainer.now = func() time.Time { return time.Date(2024, 3, 14, 9, 1, 0, 0, time.UTC) }
	_, err = trainer.Train(context.Background(), req, classificationAssets())
	require.NoError(t, err)

	require.Len(t, backend.requests, 2)
	assert.NotEqual(t, backend.requests[0].ModelDir, backend.requests[1].ModelDir)
	assert.Less(t, backend.requests[0].ModelDir, backend.requests[1].ModelDir)
}

func TestClassificationTrainMissingWeights(t *testing.T) {
	trainer := NewClassificationTrainer(t.TempDir(), testDownloader(), &fakeBackend{skipWeights: true})

	_, err := trainer.Train(context.Background(), classificationRequest(), classificationAssets())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights")
}
