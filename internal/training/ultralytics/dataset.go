package ultralytics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"automl-backend/internal/artifact"
	"automl-backend/internal/pool"
	"automl-backend/internal/training"
	"automl-backend/pkg/api"
)

// datasetConfig is the data.yaml the YOLO backend consumes.
type datasetConfig struct {
	Path  string   `yaml:"path"`
	Train string   `yaml:"train"`
	Val   string   `yaml:"val"`
	NC    int      `yaml:"nc"`
	Names []string `yaml:"names"`
}

const (
	imagesSubdir = "images/train"
	labelsSubdir = "labels/train"
	configName   = "data.yaml"

	downloadWorkers = 8
)

// writeDataset materializes the YOLO directory layout under the job's
// dataset dir: downloaded images, one label file per image with normalized
// box lines, and the data.yaml config. Existing files are overwritten; the
// download cache, not a dataset-exists guard, is what makes repeated runs
// cheap.
func (t *YoloTrainer) writeDataset(ctx context.Context, jobRoot string, req training.Request, assets []api.Asset) (string, error) {
	datasetDir := artifact.DatasetDir(jobRoot)
	for _, sub := range []string{imagesSubdir, labelsSubdir} {
		if err := os.MkdirAll(filepath.Join(datasetDir, sub), 0o755); err != nil {
			return "", fmt.Errorf("creating dataset layout: %w", err)
		}
	}

	classIndex := make(map[string]int, len(req.Job.Categories))
	for i, c := range req.Job.Categories {
		classIndex[c] = i
	}

	// Each asset is independent, so images are fetched and written in
	// parallel. Cache writes are atomic, which keeps concurrent memoized
	// downloads safe.
	outcomes := pool.Map(ctx, assets, downloadWorkers, func(asset api.Asset) (struct{}, error) {
		return struct{}{}, t.prepareAsset(ctx, datasetDir, req, asset, classIndex)
	})
	for i, out := range outcomes {
		if out.Err != nil {
			return "", fmt.Errorf("preparing asset %s: %w", assets[i].ID, out.Err)
		}
	}

	config := datasetConfig{
		Path:  datasetDir,
		Train: imagesSubdir,
		Val:   imagesSubdir,
		NC:    len(req.Job.Categories),
		Names: req.Job.Categories,
	}
	encoded, err := yaml.Marshal(config)
	if err != nil {
		return "", fmt.Errorf("encoding dataset config: %w", err)
	}
	configPath := filepath.Join(datasetDir, configName)
	if err := os.WriteFile(configPath, encoded, 0o644); err != nil {
		return "", fmt.Errorf("writing dataset config: %w", err)
	}
	return configPath, nil
}

// prepareAsset downloads one asset's image and writes its image and label
// files. Existing files are overwritten.
func (t *YoloTrainer) prepareAsset(ctx context.Context, datasetDir string, req training.Request, asset api.Asset, classIndex map[string]int) error {
	data, err := t.downloadImage(ctx, asset.Content)
	if err != nil {
		return fmt.Errorf("downloading image: %w", err)
	}
	imagePath := filepath.Join(datasetDir, imagesSubdir, asset.ID+".jpg")
	if err := os.WriteFile(imagePath, data, 0o644); err != nil {
		return fmt.Errorf("writing image: %w", err)
	}

	lines, err := labelLines(asset, req.Job.Name, classIndex)
	if err != nil {
		return err
	}
	labelPath := filepath.Join(datasetDir, labelsSubdir, asset.ID+".txt")
	if err := os.WriteFile(labelPath, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing labels: %w", err)
	}
	return nil
}

// labelLines converts one asset's rectangle annotations into YOLO label
// lines: "<class> <cx> <cy> <w> <h>", all coordinates normalized.
func labelLines(asset api.Asset, jobName string, classIndex map[string]int) ([]string, error) {
	if len(asset.Labels) == 0 {
		return nil, fmt.Errorf("asset %s has no labels", asset.ID)
	}
	response, ok := asset.Labels[0].JSONResponse[jobName]
	if !ok {
		return nil, fmt.Errorf("asset %s has no annotation for job %s", asset.ID, jobName)
	}

	var lines []string
	for _, ann := range response.Annotations {
		if len(ann.Categories) == 0 || len(ann.BoundingPoly) == 0 {
			continue
		}
		class, ok := classIndex[ann.Categories[0].Name]
		if !ok {
			return nil, fmt.Errorf("asset %s annotated with unknown category %q", asset.ID, ann.Categories[0].Name)
		}
		cx, cy, w, h := boxFromVertices(ann.BoundingPoly[0].NormalizedVertices)
		lines = append(lines, fmt.Sprintf("%d %.6f %.6f %.6f %.6f", class, cx, cy, w, h))
	}
	return lines, nil
}

func boxFromVertices(vertices []api.Vertex) (cx, cy, w, h float64) {
	if len(vertices) == 0 {
		return 0, 0, 0, 0
	}
	minX, minY := vertices[0].X, vertices[0].Y
	maxX, maxY := minX, minY
	for _, v := range vertices[1:] {
		minX = min(minX, v.X)
		minY = min(minY, v.Y)
		maxX = max(maxX, v.X)
		maxY = max(maxY, v.Y)
	}
	return (minX + maxX) / 2, (minY + maxY) / 2, maxX - minX, maxY - minY
}
