package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config carries every environment-level toggle explicitly. Nothing in the
// training core reads or writes process environment variables; collaborators
// that need a toggle receive it from here.
type Config struct {
	APIEndpoint string `env:"LABEL_API_ENDPOINT" envDefault:"https://cloud.label.example.com/api/v2/graphql"`
	APIKey      string `env:"LABEL_API_KEY"`

	// AutoMLHome is the root of the artifact tree and the memoization
	// cache. Empty means <user cache dir>/automl.
	AutoMLHome string `env:"AUTOML_HOME"`

	// RegistryPath is the sqlite file recording training runs. Empty means
	// <AutoMLHome>/runs.db.
	RegistryPath string `env:"AUTOML_REGISTRY_PATH"`

	// TokenizersParallelism is handed to the training backend; fork-after-
	// parallelism warnings from the tokenizer library are silenced when
	// false.
	TokenizersParallelism bool `env:"TOKENIZERS_PARALLELISM" envDefault:"false"`

	// ExperimentProject is the experiment-tracking project name prefix;
	// the per-job run name is derived from it by the driver.
	ExperimentProject string `env:"EXPERIMENT_PROJECT"`

	// Training backend plugin processes, one per model repository.
	PythonExecutable      string `env:"PYTHON_EXECUTABLE_PATH" envDefault:"python3"`
	HuggingFaceScriptPath string `env:"HF_TRAINER_SCRIPT_PATH"`
	UltralyticsScriptPath string `env:"ULTRALYTICS_TRAINER_SCRIPT_PATH"`
}

// LoadEnvFile loads an optional .env file before the environment is parsed,
// useful for local development.
func LoadEnvFile(path string) {
	if path == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}
	log.Printf("loading env from file %s", path)
	if err := godotenv.Load(path); err != nil {
		log.Fatalf("error loading .env file '%s': %v", path, err)
	}
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}

	if cfg.AutoMLHome == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("config: resolving cache dir: %w", err)
		}
		cfg.AutoMLHome = filepath.Join(base, "automl")
	}
	if cfg.RegistryPath == "" {
		cfg.RegistryPath = filepath.Join(cfg.AutoMLHome, "runs.db")
	}

	return &cfg, nil
}

// ArtifactRoot is where versioned datasets and models live.
func (c *Config) ArtifactRoot() string {
	return filepath.Join(c.AutoMLHome, "artifacts")
}

// CacheRoot is where memoized call results live.
func (c *Config) CacheRoot() string {
	return filepath.Join(c.AutoMLHome, "cache")
}
