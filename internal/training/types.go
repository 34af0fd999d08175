package training

import (
	"automl-backend/pkg/models"
)

// Options are the run-wide training preferences supplied by the CLI. The
// zero value of each field means "let the adapter pick its default".
type Options struct {
	ModelFramework  models.ModelFramework
	ModelName       models.ModelName
	ModelRepository models.ModelRepository

	// MaxAssets bounds the number of labeled assets used; 0 means no bound.
	MaxAssets int

	ClearDatasetCache bool

	// LabelTypes filters which label kinds count as annotations
	// (e.g. DEFAULT, REVIEW, PREDICTION). Empty means the platform default.
	LabelTypes []string

	// ExtraArgs are backend-specific knobs passed through opaquely.
	ExtraArgs map[string]string
}

// Request is the resolved configuration for one training run. It is built
// per job by the dispatcher and consumed once by an adapter; it is never
// persisted.
type Request struct {
	ProjectID string
	Job       models.JobDescriptor

	ModelFramework  models.ModelFramework
	ModelName       models.ModelName
	ModelRepository models.ModelRepository

	MaxAssets         int
	ClearDatasetCache bool
	LabelTypes        []string
	ExtraArgs         map[string]string
}

func newRequest(projectID string, job models.JobDescriptor, opts Options) Request {
	return Request{
		ProjectID:         projectID,
		Job:               job,
		ModelFramework:    opts.ModelFramework,
		ModelName:         opts.ModelName,
		ModelRepository:   opts.ModelRepository,
		MaxAssets:         opts.MaxAssets,
		ClearDatasetCache: opts.ClearDatasetCache,
		LabelTypes:        opts.LabelTypes,
		ExtraArgs:         opts.ExtraArgs,
	}
}

// Result is the outcome of dispatching one job. Loss is nil when no pipeline
// matched the job's schema or when the adapter reported a soft failure; Err
// carries a hard adapter failure, recorded per job so the rest of the run
// continues.
type Result struct {
	JobName string
	Loss    *float64
	Err     error
}
