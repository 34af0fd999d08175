// Package ultralytics implements the YOLO-family trainer adapter for
// bounding-box detection jobs. Unlike the huggingface adapters it retrieves
// assets itself during dataset preparation, through the memoized download
// path, so repeated runs reuse cached downloads instead of guarding on an
// existing dataset file.
package ultralytics

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"automl-backend/internal/artifact"
	"automl-backend/internal/memo"
	"automl-backend/internal/training"
	"automl-backend/pkg/api"
	"automl-backend/pkg/models"
	"automl-backend/plugin/shared"
)

var (
	supportedFrameworks = []models.ModelFramework{models.PyTorch}
	supportedModels     = []models.ModelName{models.YoloV5}
	supportedRepos      = []models.ModelRepository{models.Ultralytics}
)

type ContentDownloader interface {
	DownloadContent(ctx context.Context, url string) ([]byte, error)
}

// YoloTrainer fine-tunes a YOLO detector on rectangle-annotated image
// assets.
type YoloTrainer struct {
	root       string
	assets     training.AssetSource
	cache      *memo.Cache
	downloader ContentDownloader
	backend    shared.Backend
	now        func() time.Time
}

var _ training.Trainer = (*YoloTrainer)(nil)

func NewYoloTrainer(root string, assets training.AssetSource, cache *memo.Cache, downloader ContentDownloader, backend shared.Backend) *YoloTrainer {
	return &YoloTrainer{
		root:       root,
		assets:     assets,
		cache:      cache,
		downloader: downloader,
		backend:    backend,
		now:        time.Now,
	}
}

// Train ignores the assets argument: detection datasets are prepared inside
// the adapter (the dispatcher passes nil).
func (t *YoloTrainer) Train(ctx context.Context, req training.Request, _ []api.Asset) (float64, error) {
	repo, err := training.ResolveDefault(req.ModelRepository, models.Ultralytics, "model_repository", supportedRepos)
	if err != nil {
		return 0, err
	}
	framework, err := training.ResolveDefault(req.ModelFramework, models.PyTorch, "model_framework", supportedFrameworks)
	if err != nil {
		return 0, err
	}
	name, err := training.ResolveDefault(req.ModelName, models.YoloV5, "model_name", supportedModels)
	if err != nil {
		return 0, err
	}

	assets, err := t.labeledAssets(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("fetching labeled assets: %w", err)
	}
	if req.MaxAssets > 0 && len(assets) > req.MaxAssets {
		assets = assets[:req.MaxAssets]
	}

	jobRoot := artifact.JobRoot(t.root, repo, req.ProjectID, req.Job.Name)
	slog.Info("preparing detection dataset", "job", req.Job.Name, "dir", artifact.DatasetDir(jobRoot), "assets", len(assets))

	configPath, err := t.writeDataset(ctx, jobRoot, req, assets)
	if err != nil {
		return 0, err
	}

	modelDir := artifact.ModelDir(jobRoot, framework, t.now())
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return 0, fmt.Errorf("creating model dir: %w", err)
	}

	slog.Info("training detection model", "job", req.Job.Name, "base_model", name, "model_dir", modelDir)
	res, err := t.backend.Fit(shared.FitRequest{
		DatasetPath: configPath,
		ModelDir:    modelDir,
		BaseModel:   string(name),
		Framework:   string(framework),
		Labels:      req.Job.Categories,
		ExtraArgs:   req.ExtraArgs,
	})
	if err != nil {
		return 0, fmt.Errorf("detection backend: %w", err)
	}

	marker := filepath.Join(modelDir, artifact.WeightsMarker(repo, framework))
	if _, err := os.Stat(marker); err != nil {
		return 0, fmt.Errorf("backend did not write weights file %s: %w", marker, err)
	}

	return res.TrainingLoss, nil
}

func (t *YoloTrainer) labeledAssets(ctx context.Context, req training.Request) ([]api.Asset, error) {
	ns, err := t.cache.ProjectNamespace(req.ProjectID, memo.CategoryGetAssets)
	if err != nil {
		return nil, err
	}

	// Same key shape as the dispatcher's listing, so text and image jobs in
	// one project share the cached result.
	statuses := []string{"LABELED"}
	key := "label_types=" + strings.Join(req.LabelTypes, ",") + "|statuses=" + strings.Join(statuses, ",")

	var assets []api.Asset
	err = t.cache.GetOrCompute(ns, key, &assets, func() (any, error) {
		return t.assets.GetAssets(ctx, req.ProjectID, req.LabelTypes, statuses)
	})
	if err != nil {
		return nil, err
	}
	return assets, nil
}

// downloadImage fetches an asset's image bytes through the memoization
// layer, so repeated runs skip completed downloads. The content of a URL does
// not depend on which project references it, so downloads live in the global
// scope and are shared across projects.
func (t *YoloTrainer) downloadImage(ctx context.Context, url string) ([]byte, error) {
	ns := t.cache.GlobalNamespace(memo.CategoryDownloadAsset)

	var data []byte
	err := t.cache.GetOrCompute(ns, url, &data, func() (any, error) {
		return t.downloader.DownloadContent(ctx, url)
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
