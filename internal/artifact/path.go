package artifact

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"automl-backend/pkg/models"
)

// TimestampLayout is the version identifier of one training run. Minute
// granularity means the layout sorts lexicographically in chronological
// order; two runs launched within the same minute collide on the same
// directory, which is an accepted limitation of the scheme.
const TimestampLayout = "2006-01-02_15:04"

const (
	datasetDirName  = "dataset"
	modelDirName    = "model"
	DatasetFileName = "data.json"
)

// MalformedPathError reports an artifact tree that does not match the
// expected <repository>/<project>/<job>/model/<framework>/<timestamp> layout.
type MalformedPathError struct {
	Path   string
	Reason string
}

func (e *MalformedPathError) Error() string {
	return fmt.Sprintf("malformed artifact path %q: %s", e.Path, e.Reason)
}

// JobRoot is the stable directory for one (project, job, repository) tuple.
// Datasets and model versions both live under it.
func JobRoot(root string, repo models.ModelRepository, projectID, jobName string) string {
	return filepath.Join(root, string(repo), projectID, jobName)
}

func DatasetDir(jobRoot string) string {
	return filepath.Join(jobRoot, datasetDirName)
}

func DatasetFile(jobRoot string) string {
	return filepath.Join(jobRoot, datasetDirName, DatasetFileName)
}

// FrameworkDir holds every versioned model directory trained with the given
// framework for one job.
func FrameworkDir(jobRoot string, framework models.ModelFramework) string {
	return filepath.Join(jobRoot, modelDirName, string(framework))
}

// ModelDir is the versioned directory for a single training run. Each run
// gets a fresh timestamp directory; runs never overwrite each other's
// weights (up to the minute granularity of TimestampLayout).
func ModelDir(jobRoot string, framework models.ModelFramework, at time.Time) string {
	return filepath.Join(jobRoot, modelDirName, string(framework), at.Format(TimestampLayout))
}

// WeightsMarker is the file whose presence inside a model directory confirms
// that training completed and weights were persisted.
func WeightsMarker(repo models.ModelRepository, framework models.ModelFramework) string {
	if repo == models.Ultralytics {
		return "best.pt"
	}
	if framework == models.TensorFlow {
		return "tf_model.h5"
	}
	return "pytorch_model.bin"
}

// ParseModelDir decomposes a model directory back into its repository and
// framework segments, validating both against the known sets. The expected
// shape, from the end, is .../<repository>/<project>/<job>/model/<framework>/<timestamp>.
func ParseModelDir(path string) (models.ModelRepository, models.ModelFramework, error) {
	parts := strings.Split(filepath.Clean(path), string(filepath.Separator))
	if len(parts) < 6 {
		return "", "", &MalformedPathError{Path: path, Reason: "too few path segments"}
	}
	if parts[len(parts)-3] != modelDirName {
		return "", "", &MalformedPathError{Path: path, Reason: "missing model segment"}
	}

	repo := models.ModelRepository(parts[len(parts)-6])
	if !contains(models.KnownRepositories, repo) {
		return "", "", &MalformedPathError{Path: path, Reason: fmt.Sprintf("unknown model repository %q", repo)}
	}

	framework := models.ModelFramework(parts[len(parts)-2])
	if !contains(models.KnownFrameworks, framework) {
		return "", "", &MalformedPathError{Path: path, Reason: fmt.Sprintf("unknown model framework %q", framework)}
	}

	return repo, framework, nil
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
