package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"automl-backend/internal/memo"
	"automl-backend/pkg/api"
	"automl-backend/pkg/models"
)

// AssetSource retrieves labeled assets from the labeling platform.
type AssetSource interface {
	GetAssets(ctx context.Context, projectID string, labelTypes, statuses []string) ([]api.Asset, error)
}

// Trainer is one (task kind, model repository) adapter. It converts labeled
// assets into its backend's dataset format, launches training, and returns
// the final training loss.
type Trainer interface {
	Train(ctx context.Context, req Request, assets []api.Asset) (float64, error)
}

// Dispatcher routes each labeling job to exactly one training pipeline based
// on its schema. It holds no state between jobs.
type Dispatcher struct {
	assets AssetSource
	cache  *memo.Cache

	// artifactRoot is needed for cache invalidation, which also clears the
	// job's model-framework subtrees.
	artifactRoot string

	classification Trainer
	ner            Trainer
	detection      Trainer
}

func NewDispatcher(assets AssetSource, cache *memo.Cache, artifactRoot string, classification, ner, detection Trainer) *Dispatcher {
	return &Dispatcher{
		assets:         assets,
		cache:          cache,
		artifactRoot:   artifactRoot,
		classification: classification,
		ner:            ner,
		detection:      detection,
	}
}

// Dispatch routes one job. A schema with no matching pipeline yields a nil
// loss, not an error; a hard adapter failure is captured in the Result so
// the caller can keep processing the remaining jobs.
func (d *Dispatcher) Dispatch(ctx context.Context, projectID string, job models.JobDescriptor, opts Options) Result {
	if opts.ClearDatasetCache {
		repo := repositoryFilter(opts.ModelRepository)
		if err := d.cache.Invalidate(d.artifactRoot, projectID, memo.CommandTrain, repo, job.Name); err != nil {
			return Result{JobName: job.Name, Err: fmt.Errorf("clearing dataset cache: %w", err)}
		}
	}

	req := newRequest(projectID, job, opts)

	trainer, fetchAssets := d.route(job)
	if trainer == nil {
		slog.Info("no training pipeline matches job schema, skipping",
			"job", job.Name,
			"content_input", job.ContentInput,
			"input_type", job.InputType,
			"ml_task", job.MLTask,
		)
		return Result{JobName: job.Name}
	}

	var assets []api.Asset
	if fetchAssets {
		var err error
		assets, err = d.labeledAssets(ctx, projectID, opts)
		if err != nil {
			return Result{JobName: job.Name, Err: fmt.Errorf("fetching labeled assets: %w", err)}
		}
		if opts.MaxAssets > 0 && len(assets) > opts.MaxAssets {
			assets = assets[:opts.MaxAssets]
		}
	}

	loss, err := trainer.Train(ctx, req, assets)
	if err != nil {
		if errors.Is(err, ErrNotSupported) {
			// Equivalent to the no-match branch: the adapter exists but not
			// for this framework/repository combination.
			slog.Info("training pipeline not implemented for requested configuration", "job", job.Name, "reason", err)
			return Result{JobName: job.Name}
		}
		return Result{JobName: job.Name, Err: err}
	}

	return Result{JobName: job.Name, Loss: &loss}
}

// route implements the decision table, first match wins. The boolean reports
// whether the dispatcher fetches assets up front; the detection pipeline
// retrieves assets itself inside its dataset-preparation step.
func (d *Dispatcher) route(job models.JobDescriptor) (Trainer, bool) {
	switch {
	case job.ContentInput == models.ContentInputRadio &&
		job.InputType == models.InputTypeText &&
		job.MLTask == models.TaskClassification:
		return d.classification, true

	case job.ContentInput == models.ContentInputRadio &&
		job.InputType == models.InputTypeText &&
		job.MLTask == models.TaskNamedEntityRecognition:
		return d.ner, true

	case job.ContentInput == models.ContentInputRadio &&
		job.InputType == models.InputTypeImage &&
		job.MLTask == models.TaskObjectDetection &&
		job.HasTool(models.ToolRectangle):
		return d.detection, false

	default:
		return nil, false
	}
}

// labeledAssets fetches the project's labeled assets through the memoization
// layer: a repeated run with the same filters reads the cached listing
// instead of hitting the platform again.
func (d *Dispatcher) labeledAssets(ctx context.Context, projectID string, opts Options) ([]api.Asset, error) {
	ns, err := d.cache.ProjectNamespace(projectID, memo.CategoryGetAssets)
	if err != nil {
		return nil, err
	}

	statuses := []string{"LABELED"}
	key := "label_types=" + strings.Join(opts.LabelTypes, ",") + "|statuses=" + strings.Join(statuses, ",")

	var assets []api.Asset
	err = d.cache.GetOrCompute(ns, key, &assets, func() (any, error) {
		return d.assets.GetAssets(ctx, projectID, opts.LabelTypes, statuses)
	})
	if err != nil {
		return nil, err
	}
	return assets, nil
}

func repositoryFilter(repo models.ModelRepository) *models.ModelRepository {
	if repo == "" {
		return nil
	}
	return &repo
}
