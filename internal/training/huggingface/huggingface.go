// Package huggingface implements the transformer-ecosystem trainer adapters
// for text classification and named entity recognition. The adapters
// materialize datasets under the versioned artifact layout and delegate the
// actual fitting to an external backend process.
package huggingface

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"automl-backend/internal/artifact"
	"automl-backend/internal/training"
	"automl-backend/pkg/models"
)

var (
	supportedFrameworks = []models.ModelFramework{models.PyTorch, models.TensorFlow}
	supportedModels     = []models.ModelName{models.BertBaseMultilingualCased, models.BertBaseCased}
	supportedRepos      = []models.ModelRepository{models.HuggingFace}
)

// ContentDownloader fetches an asset's raw content from the labeling
// platform. Downloads go through the memoization layer in the production
// client.
type ContentDownloader interface {
	DownloadContent(ctx context.Context, url string) ([]byte, error)
}

// resolve fills in framework, model name, and repository for a request
// against the huggingface allow-lists.
func resolve(req training.Request) (models.ModelFramework, models.ModelName, models.ModelRepository, error) {
	repo, err := training.ResolveDefault(req.ModelRepository, models.HuggingFace, "model_repository", supportedRepos)
	if err != nil {
		return "", "", "", err
	}
	framework, err := training.ResolveDefault(req.ModelFramework, models.PyTorch, "model_framework", supportedFrameworks)
	if err != nil {
		return "", "", "", err
	}
	name, err := training.ResolveDefault(req.ModelName, models.BertBaseMultilingualCased, "model_name", supportedModels)
	if err != nil {
		return "", "", "", err
	}
	return framework, name, repo, nil
}

// prepareDatasetFile enforces the stale-dataset guard: an existing dataset
// file fails the run unless the cache was explicitly cleared, in which case
// the file is removed and rebuilt.
func prepareDatasetFile(path string, clearCache bool) error {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return os.MkdirAll(filepath.Dir(path), 0o755)
	}
	if err != nil {
		return err
	}
	if !clearCache {
		return fmt.Errorf("%w at %s", training.ErrDatasetExists, path)
	}
	return os.Remove(path)
}

// verifyWeights confirms the backend persisted its weights file into the
// model directory, the marker that a later run's model discovery relies on.
func verifyWeights(modelDir string, repo models.ModelRepository, framework models.ModelFramework) error {
	marker := filepath.Join(modelDir, artifact.WeightsMarker(repo, framework))
	if _, err := os.Stat(marker); err != nil {
		return fmt.Errorf("backend did not write weights file %s: %w", marker, err)
	}
	return nil
}

func defaultClock() time.Time { return time.Now() }
