package artifact

import (
	"errors"
	"os"
	"path/filepath"

	"automl-backend/pkg/models"
)

// ErrNoTrainedModel indicates that no completed training run exists under a
// job root.
var ErrNoTrainedModel = errors.New("no trained model found")

// LatestModelDir resolves the most recent completed training run for a job:
// it scans every framework subdirectory under <jobRoot>/model, keeps the
// timestamp directories that contain the expected weights marker, and picks
// the lexicographically last one (which is the chronologically last, given
// TimestampLayout). The resolved path is parsed back through ParseModelDir
// so an inconsistent tree surfaces as a MalformedPathError instead of being
// silently reused.
func LatestModelDir(jobRoot string, repo models.ModelRepository) (string, error) {
	modelRoot := filepath.Join(jobRoot, modelDirName)

	frameworks, err := os.ReadDir(modelRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoTrainedModel
		}
		return "", err
	}

	var latest string
	var latestVersion string
	for _, fw := range frameworks {
		if !fw.IsDir() {
			continue
		}
		framework := models.ModelFramework(fw.Name())
		versions, err := os.ReadDir(filepath.Join(modelRoot, fw.Name()))
		if err != nil {
			return "", err
		}
		for _, v := range versions {
			if !v.IsDir() {
				continue
			}
			dir := filepath.Join(modelRoot, fw.Name(), v.Name())
			marker := filepath.Join(dir, WeightsMarker(repo, framework))
			if _, err := os.Stat(marker); err != nil {
				continue
			}
			if v.Name() > latestVersion {
				latestVersion = v.Name()
				latest = dir
			}
		}
	}

	if latest == "" {
		return "", ErrNoTrainedModel
	}

	foundRepo, _, err := ParseModelDir(latest)
	if err != nil {
		return "", err
	}
	if foundRepo != repo {
		return "", &MalformedPathError{Path: latest, Reason: "inconsistent model repository"}
	}

	return latest, nil
}
