package memo

import (
	"fmt"
	"os"

	"automl-backend/internal/artifact"
	"automl-backend/pkg/models"
)

// Command is a CLI command category with its own set of cache namespaces.
type Command string

const (
	CommandTrain      Command = "train"
	CommandPrioritize Command = "prioritize"
)

// Both commands clear only the asset listing: completed content downloads
// stay valid across runs, the listing of what is labeled does not.
var commandCategories = map[Command][]string{
	CommandTrain:      {CategoryGetAssets},
	CommandPrioritize: {CategoryGetAssets},
}

// Invalidate removes the on-disk cache namespaces associated with a command
// for one project. repo limits the invalidation to one model repository; nil
// means every known repository. For the train command the job's
// model-framework subtrees under artifactRoot are removed as well, so the
// next run re-resolves models from scratch. Missing paths are skipped, not
// errors; deletion is recursive and unconditional.
func (c *Cache) Invalidate(artifactRoot, projectID string, command Command, repo *models.ModelRepository, jobName string) error {
	categories, ok := commandCategories[command]
	if !ok {
		return fmt.Errorf("memo: unrecognized command %q", command)
	}

	var paths []string
	for _, category := range categories {
		ns, err := c.ProjectNamespace(projectID, category)
		if err != nil {
			return err
		}
		paths = append(paths, ns.dir)
	}

	repositories := models.KnownRepositories
	if repo != nil {
		repositories = []models.ModelRepository{*repo}
	}

	if command == CommandTrain {
		for _, r := range repositories {
			jobRoot := artifact.JobRoot(artifactRoot, r, projectID, jobName)
			for _, framework := range models.KnownFrameworks {
				paths = append(paths, artifact.FrameworkDir(jobRoot, framework))
			}
		}
	}

	for _, path := range paths {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("memo: clearing %s: %w", path, err)
		}
	}
	return nil
}
