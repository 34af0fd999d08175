package huggingface

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"automl-backend/internal/artifact"
	"automl-backend/internal/training"
	"automl-backend/pkg/api"
	"automl-backend/pkg/models"
	"automl-backend/plugin/shared"
)

// ClassificationTrainer fine-tunes a sequence-classification model on
// radio-labeled text assets.
type ClassificationTrainer struct {
	root       string
	downloader ContentDownloader
	backend    shared.Backend
	now        func() time.Time
}

var _ training.Trainer = (*ClassificationTrainer)(nil)

func NewClassificationTrainer(root string, downloader ContentDownloader, backend shared.Backend) *ClassificationTrainer {
	return &ClassificationTrainer{root: root, downloader: downloader, backend: backend, now: defaultClock}
}

// classificationExample is one dataset line: the asset text and the index of
// the annotated category in the job's ordered category list.
type classificationExample struct {
	Text  string `json:"text"`
	Label int    `json:"label"`
}

func (t *ClassificationTrainer) Train(ctx context.Context, req training.Request, assets []api.Asset) (float64, error) {
	framework, name, repo, err := resolve(req)
	if err != nil {
		return 0, err
	}

	jobRoot := artifact.JobRoot(t.root, repo, req.ProjectID, req.Job.Name)
	datasetPath := artifact.DatasetFile(jobRoot)
	slog.Info("preparing classification dataset", "job", req.Job.Name, "path", datasetPath, "assets", len(assets))

	if err := prepareDatasetFile(datasetPath, req.ClearDatasetCache); err != nil {
		return 0, err
	}
	if err := t.writeDataset(ctx, datasetPath, req, assets); err != nil {
		return 0, err
	}

	modelDir := artifact.ModelDir(jobRoot, framework, t.now())
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return 0, fmt.Errorf("creating model dir: %w", err)
	}

	slog.Info("training classification model", "job", req.Job.Name, "base_model", name, "model_dir", modelDir)
	res, err := t.backend.Fit(shared.FitRequest{
		DatasetPath: datasetPath,
		ModelDir:    modelDir,
		BaseModel:   string(name),
		Framework:   string(framework),
		Labels:      req.Job.Categories,
		ExtraArgs:   req.ExtraArgs,
	})
	if err != nil {
		return 0, fmt.Errorf("classification backend: %w", err)
	}

	if err := verifyWeights(modelDir, repo, framework); err != nil {
		return 0, err
	}

	return res.TrainingLoss, nil
}

func (t *ClassificationTrainer) writeDataset(ctx context.Context, path string, req training.Request, assets []api.Asset) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating dataset file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, asset := range assets {
		text, err := t.downloader.DownloadContent(ctx, asset.Content)
		if err != nil {
			return fmt.Errorf("downloading content for asset %s: %w", asset.ID, err)
		}
		label, err := categoryIndex(asset, req.Job)
		if err != nil {
			return err
		}
		if err := enc.Encode(classificationExample{Text: string(text), Label: label}); err != nil {
			return fmt.Errorf("writing dataset line: %w", err)
		}
	}
	return nil
}

// categoryIndex maps an asset's annotated category to its position in the
// job's ordered category list.
func categoryIndex(asset api.Asset, job models.JobDescriptor) (int, error) {
	if len(asset.Labels) == 0 {
		return 0, fmt.Errorf("asset %s has no labels", asset.ID)
	}
	response, ok := asset.Labels[0].JSONResponse[job.Name]
	if !ok || len(response.Categories) == 0 {
		return 0, fmt.Errorf("asset %s has no annotation for job %s", asset.ID, job.Name)
	}
	name := response.Categories[0].Name
	for i, category := range job.Categories {
		if category == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("asset %s annotated with unknown category %q", asset.ID, name)
}
