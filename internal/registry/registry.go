// Package registry persists a record of every training run in a local
// sqlite database, so past runs and their artifact locations can be queried
// without scanning the artifact tree.
package registry

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	RunTraining string = "TRAINING"
	RunTrained  string = "TRAINED"
	RunFailed   string = "FAILED"
	RunSkipped  string = "SKIPPED"
)

type TrainingRun struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	ProjectId string `gorm:"index;not null"`
	JobName   string `gorm:"index;not null"`

	ModelRepository string `gorm:"size:40"`
	ModelFramework  string `gorm:"size:40"`
	ModelName       string

	Status    string `gorm:"size:20;not null"`
	ModelPath string
	Loss      *float64

	StartTime      time.Time
	CompletionTime *time.Time
}

type Registry struct {
	db *gorm.DB
}

func Open(path string) (*Registry, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("registry: opening %s: %w", path, err)
	}
	if err := db.AutoMigrate(&TrainingRun{}); err != nil {
		return nil, fmt.Errorf("registry: migrating schema: %w", err)
	}
	return &Registry{db: db}, nil
}

// RecordStart inserts a run in TRAINING state and returns its id.
func (r *Registry) RecordStart(run TrainingRun) (uuid.UUID, error) {
	run.Id = uuid.New()
	run.Status = RunTraining
	run.StartTime = time.Now()
	if err := r.db.Create(&run).Error; err != nil {
		return uuid.Nil, fmt.Errorf("registry: recording run: %w", err)
	}
	return run.Id, nil
}

func (r *Registry) Complete(id uuid.UUID, loss float64, modelPath string) error {
	now := time.Now()
	return r.update(id, map[string]any{
		"status":          RunTrained,
		"loss":            loss,
		"model_path":      modelPath,
		"completion_time": &now,
	})
}

func (r *Registry) Fail(id uuid.UUID) error {
	now := time.Now()
	return r.update(id, map[string]any{
		"status":          RunFailed,
		"completion_time": &now,
	})
}

// Skip marks a run whose job schema matched no pipeline.
func (r *Registry) Skip(id uuid.UUID) error {
	now := time.Now()
	return r.update(id, map[string]any{
		"status":          RunSkipped,
		"completion_time": &now,
	})
}

func (r *Registry) update(id uuid.UUID, fields map[string]any) error {
	res := r.db.Model(&TrainingRun{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("registry: updating run %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("registry: run %s not found", id)
	}
	return nil
}

// LatestTrained returns the most recently completed run for a project's job,
// or nil when none exists.
func (r *Registry) LatestTrained(projectID, jobName string) (*TrainingRun, error) {
	var run TrainingRun
	err := r.db.
		Where("project_id = ? AND job_name = ? AND status = ?", projectID, jobName, RunTrained).
		Order("completion_time DESC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registry: querying latest run: %w", err)
	}
	return &run, nil
}
