package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"

	"automl-backend/internal/artifact"
	"automl-backend/internal/backend"
	"automl-backend/internal/config"
	"automl-backend/internal/labelapi"
	"automl-backend/internal/memo"
	"automl-backend/internal/registry"
	"automl-backend/internal/training"
	"automl-backend/internal/training/huggingface"
	"automl-backend/internal/training/ultralytics"
	"automl-backend/pkg/models"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string { return strings.Join(*s, ",") }

func (s *stringSliceFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	var (
		envFile           string
		apiEndpoint       string
		apiKey            string
		modelFramework    string
		modelName         string
		modelRepository   string
		projectID         string
		labelTypes        string
		targetJobs        stringSliceFlag
		maxAssets         int
		jsonArgs          string
		clearDatasetCache bool
	)

	flag.StringVar(&envFile, "env", "", "path to load env from")
	flag.StringVar(&apiEndpoint, "api-endpoint", "", "labeling platform endpoint (overrides LABEL_API_ENDPOINT)")
	flag.StringVar(&apiKey, "api-key", "", "labeling platform API key (overrides LABEL_API_KEY)")
	flag.StringVar(&modelFramework, "model-framework", "", "model framework (eg. pytorch, tensorflow)")
	flag.StringVar(&modelName, "model-name", "", "model name (eg. bert-base-cased)")
	flag.StringVar(&modelRepository, "model-repository", "", "model repository (eg. huggingface)")
	flag.StringVar(&projectID, "project-id", "", "project ID")
	flag.StringVar(&labelTypes, "label-types", "", "comma separated label types to select (among DEFAULT, REVIEW, PREDICTION)")
	flag.Var(&targetJobs, "target-job", "specific job to train on (repeatable)")
	flag.IntVar(&maxAssets, "max-assets", 0, "maximum number of assets to consider")
	flag.StringVar(&jsonArgs, "json-args", "", "JSON-encoded parameters passed through to the trainer")
	flag.BoolVar(&clearDatasetCache, "clear-dataset-cache", false, "clear the dataset cache before training")
	flag.Parse()

	config.LoadEnvFile(envFile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}
	if apiEndpoint != "" {
		cfg.APIEndpoint = apiEndpoint
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	if projectID == "" {
		log.Fatalf("-project-id is required")
	}

	extraArgs, err := parseJSONArgs(jsonArgs)
	if err != nil {
		log.Fatalf("error parsing -json-args: %v", err)
	}

	ctx := context.Background()

	client := labelapi.NewClient(cfg.APIEndpoint, cfg.APIKey)
	project, err := client.GetProject(ctx, projectID)
	if err != nil {
		log.Fatalf("error fetching project: %v", err)
	}
	slog.Info("fetched project", "project", projectID, "title", project.Title, "jobs", len(project.Jobs))

	runs, err := registry.Open(ensureParent(cfg.RegistryPath))
	if err != nil {
		log.Fatalf("error opening training-run registry: %v", err)
	}

	cache := memo.New(cfg.CacheRoot())
	artifactRoot := cfg.ArtifactRoot()

	backendArgs := []string{
		fmt.Sprintf("--tokenizers-parallelism=%t", cfg.TokenizersParallelism),
	}
	hfBackend := backend.NewLazy(cfg.PythonExecutable, cfg.HuggingFaceScriptPath, backendArgs...)
	defer hfBackend.Release()
	yoloBackend := backend.NewLazy(cfg.PythonExecutable, cfg.UltralyticsScriptPath, backendArgs...)
	defer yoloBackend.Release()

	// Aligners are built per resolved base model inside the trainer, so the
	// labels column always matches the tokenizer the backend trains with.
	nerTrainer := huggingface.NewNERTrainer(artifactRoot, client, hfBackend, huggingface.LoadAligner)
	defer nerTrainer.Release()

	dispatcher := training.NewDispatcher(
		client,
		cache,
		artifactRoot,
		huggingface.NewClassificationTrainer(artifactRoot, client, hfBackend),
		nerTrainer,
		ultralytics.NewYoloTrainer(artifactRoot, client, cache, client, yoloBackend),
	)

	experimentProject := cfg.ExperimentProject
	if experimentProject == "" {
		experimentProject = project.Title
	}

	var results []training.Result
	for _, job := range labelapi.JobDescriptors(project) {
		if len(targetJobs) > 0 && !containsString(targetJobs, job.Name) {
			continue
		}
		slog.Info("training on job", "job", job.Name)

		opts := training.Options{
			ModelFramework:    models.ModelFramework(modelFramework),
			ModelName:         models.ModelName(modelName),
			ModelRepository:   models.ModelRepository(modelRepository),
			MaxAssets:         maxAssets,
			ClearDatasetCache: clearDatasetCache,
			LabelTypes:        splitList(labelTypes),
			ExtraArgs:         withExperimentRun(extraArgs, experimentProject, job.Name),
		}

		runID, err := runs.RecordStart(registry.TrainingRun{
			ProjectId:       projectID,
			JobName:         job.Name,
			ModelRepository: modelRepository,
			ModelFramework:  modelFramework,
			ModelName:       modelName,
		})
		if err != nil {
			log.Fatalf("error recording training run: %v", err)
		}

		result := dispatcher.Dispatch(ctx, projectID, job, opts)
		results = append(results, result)

		recordOutcome(runs, runID, artifactRoot, projectID, job, result)
	}

	printSummary(results)
}

// recordOutcome updates the registry row for one dispatched job. Registry
// failures are logged, never fatal: the summary still prints.
func recordOutcome(runs *registry.Registry, runID uuid.UUID, artifactRoot, projectID string, job models.JobDescriptor, result training.Result) {
	switch {
	case result.Err != nil:
		slog.Error("training failed", "job", job.Name, "error", result.Err)
		if err := runs.Fail(runID); err != nil {
			slog.Error("error updating registry", "error", err)
		}
	case result.Loss == nil:
		if err := runs.Skip(runID); err != nil {
			slog.Error("error updating registry", "error", err)
		}
	default:
		modelDir := discoverModelDir(artifactRoot, projectID, job)
		if err := runs.Complete(runID, *result.Loss, modelDir); err != nil {
			slog.Error("error updating registry", "error", err)
		}
	}
}

// discoverModelDir resolves the artifact directory the finished run wrote,
// using the repository implied by the job's task kind.
func discoverModelDir(artifactRoot, projectID string, job models.JobDescriptor) string {
	repo := models.HuggingFace
	if job.MLTask == models.TaskObjectDetection {
		repo = models.Ultralytics
	}
	jobRoot := artifact.JobRoot(artifactRoot, repo, projectID, job.Name)
	dir, err := artifact.LatestModelDir(jobRoot, repo)
	if err != nil {
		slog.Warn("could not resolve model directory for registry", "job", job.Name, "error", err)
		return ""
	}
	return dir
}

func printSummary(results []training.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "job_name\ttraining_loss")
	fmt.Fprintln(w, "--------\t-------------")
	for _, r := range results {
		if r.Loss != nil {
			fmt.Fprintf(w, "%s\t%g\n", r.JobName, *r.Loss)
		} else {
			fmt.Fprintf(w, "%s\t\n", r.JobName)
		}
	}
	w.Flush()
}

func parseJSONArgs(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, err
	}
	args := make(map[string]string, len(parsed))
	for k, v := range parsed {
		args[k] = fmt.Sprint(v)
	}
	return args, nil
}

func withExperimentRun(extraArgs map[string]string, experimentProject, jobName string) map[string]string {
	args := make(map[string]string, len(extraArgs)+1)
	for k, v := range extraArgs {
		args[k] = v
	}
	args["experiment_project"] = experimentProject + "_" + jobName
	return args
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func containsString(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func ensureParent(path string) string {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Fatalf("error creating directory for %s: %v", path, err)
	}
	return path
}
