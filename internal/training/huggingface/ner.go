package huggingface

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"
	"unicode"
	"unicode/utf8"

	"automl-backend/internal/artifact"
	"automl-backend/internal/training"
	"automl-backend/pkg/api"
	"automl-backend/pkg/models"
	"automl-backend/plugin/shared"
)

// TagAligner aligns word-level tags to sub-word tokens. The production
// implementation is Aligner, backed by the base model's tokenizer.
type TagAligner interface {
	AlignTokens(tokens []string, tags []int) []int
}

// AlignerFactory builds the tag aligner for one base model. Sub-word splits
// differ between vocabularies, so the aligner must always be built from the
// same model the backend trains with.
type AlignerFactory func(baseModel string) (TagAligner, error)

// NERTrainer fine-tunes a token-classification model on entity-annotated
// text assets.
type NERTrainer struct {
	root       string
	downloader ContentDownloader
	backend    shared.Backend

	// newAligner may be nil, in which case datasets carry word-level tags
	// only and the backend performs its own alignment. Aligners are cached
	// per base model so each tokenizer loads once.
	newAligner AlignerFactory
	aligners   map[string]TagAligner

	now func() time.Time
}

var _ training.Trainer = (*NERTrainer)(nil)

func NewNERTrainer(root string, downloader ContentDownloader, backend shared.Backend, newAligner AlignerFactory) *NERTrainer {
	return &NERTrainer{
		root:       root,
		downloader: downloader,
		backend:    backend,
		newAligner: newAligner,
		aligners:   map[string]TagAligner{},
		now:        defaultClock,
	}
}

// alignerFor returns the cached aligner for the resolved base model, building
// it on first use. A model whose tokenizer cannot be loaded maps to nil, so
// the failure is logged once and the backend aligns that model itself.
func (t *NERTrainer) alignerFor(baseModel string) TagAligner {
	if t.newAligner == nil {
		return nil
	}
	if aligner, ok := t.aligners[baseModel]; ok {
		return aligner
	}
	aligner, err := t.newAligner(baseModel)
	if err != nil {
		slog.Warn("tokenizer unavailable, backend will align sub-word labels itself", "base_model", baseModel, "error", err)
		aligner = nil
	}
	t.aligners[baseModel] = aligner
	return aligner
}

// Release closes any tokenizers the trainer loaded.
func (t *NERTrainer) Release() {
	for _, a := range t.aligners {
		if closer, ok := a.(interface{ Release() }); ok {
			closer.Release()
		}
	}
	t.aligners = map[string]TagAligner{}
}

// nerExample is one dataset line: whitespace tokens, their word-level tag
// indices into the BIO label list, and, when an aligner is configured, the
// tag sequence aligned to the tokenizer's sub-word tokens.
type nerExample struct {
	Tokens  []string `json:"tokens"`
	NERTags []int    `json:"ner_tags"`
	Labels  []int    `json:"labels,omitempty"`
}

func (t *NERTrainer) Train(ctx context.Context, req training.Request, assets []api.Asset) (float64, error) {
	framework, name, repo, err := resolve(req)
	if err != nil {
		return 0, err
	}

	labelList := BIOLabels(req.Job.Categories)

	jobRoot := artifact.JobRoot(t.root, repo, req.ProjectID, req.Job.Name)
	datasetPath := artifact.DatasetFile(jobRoot)
	slog.Info("preparing NER dataset", "job", req.Job.Name, "path", datasetPath, "assets", len(assets), "labels", len(labelList))

	if err := prepareDatasetFile(datasetPath, req.ClearDatasetCache); err != nil {
		return 0, err
	}
	if err := t.writeDataset(ctx, datasetPath, req, labelList, t.alignerFor(string(name)), assets); err != nil {
		return 0, err
	}

	modelDir := artifact.ModelDir(jobRoot, framework, t.now())
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return 0, fmt.Errorf("creating model dir: %w", err)
	}

	slog.Info("training NER model", "job", req.Job.Name, "base_model", name, "model_dir", modelDir)
	res, err := t.backend.Fit(shared.FitRequest{
		DatasetPath: datasetPath,
		ModelDir:    modelDir,
		BaseModel:   string(name),
		Framework:   string(framework),
		Labels:      labelList,
		ExtraArgs:   req.ExtraArgs,
	})
	if err != nil {
		return 0, fmt.Errorf("ner backend: %w", err)
	}

	if err := verifyWeights(modelDir, repo, framework); err != nil {
		return 0, err
	}

	return res.TrainingLoss, nil
}

func (t *NERTrainer) writeDataset(ctx context.Context, path string, req training.Request, labelList []string, aligner TagAligner, assets []api.Asset) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating dataset file: %w", err)
	}
	defer f.Close()

	labelIndex := make(map[string]int, len(labelList))
	for i, l := range labelList {
		labelIndex[l] = i
	}

	enc := json.NewEncoder(f)
	for _, asset := range assets {
		text, err := t.downloader.DownloadContent(ctx, asset.Content)
		if err != nil {
			return fmt.Errorf("downloading content for asset %s: %w", asset.ID, err)
		}

		annotations, err := entityAnnotations(asset, req.Job)
		if err != nil {
			return err
		}

		tokens, offsets := splitWords(string(text))
		tags := tagTokens(tokens, offsets, annotations, labelIndex)

		example := nerExample{Tokens: tokens, NERTags: tags}
		if aligner != nil {
			example.Labels = aligner.AlignTokens(tokens, tags)
		}
		if err := enc.Encode(example); err != nil {
			return fmt.Errorf("writing dataset line: %w", err)
		}
	}
	return nil
}

// BIOLabels builds the ordered label list for a job's categories in the BIO
// scheme: O first, then a B-/I- pair per category.
func BIOLabels(categories []string) []string {
	labels := make([]string, 0, 1+2*len(categories))
	labels = append(labels, "O")
	for _, c := range categories {
		labels = append(labels, "B-"+c, "I-"+c)
	}
	return labels
}

func entityAnnotations(asset api.Asset, job models.JobDescriptor) ([]api.Annotation, error) {
	if len(asset.Labels) == 0 {
		return nil, fmt.Errorf("asset %s has no labels", asset.ID)
	}
	response, ok := asset.Labels[0].JSONResponse[job.Name]
	if !ok {
		return nil, fmt.Errorf("asset %s has no annotation for job %s", asset.ID, job.Name)
	}
	return response.Annotations, nil
}

// splitWords tokenizes text on whitespace, keeping each token's offset in
// characters (not bytes) so entity spans can be mapped back onto tokens. The
// platform reports beginOffset in characters, so byte offsets would drift on
// non-ASCII text.
func splitWords(text string) ([]string, []int) {
	var tokens []string
	var offsets []int
	runes := []rune(text)
	start := -1
	for i, r := range runes {
		if unicode.IsSpace(r) {
			if start >= 0 {
				tokens = append(tokens, string(runes[start:i]))
				offsets = append(offsets, start)
				start = -1
			}
		} else if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, string(runes[start:]))
		offsets = append(offsets, start)
	}
	return tokens, offsets
}

// tagTokens assigns a BIO tag index to every token: the first token covered
// by an entity span gets B-<category>, the following covered tokens get
// I-<category>, everything else gets O (index 0). All offsets and span
// lengths are measured in characters, matching splitWords and the platform's
// beginOffset.
func tagTokens(tokens []string, offsets []int, annotations []api.Annotation, labelIndex map[string]int) []int {
	tags := make([]int, len(tokens))
	for _, ann := range annotations {
		if len(ann.Categories) == 0 {
			continue
		}
		category := ann.Categories[0].Name
		begin := ann.BeginOffset
		end := begin + utf8.RuneCountInString(ann.Content)

		first := true
		for i, tokenStart := range offsets {
			tokenEnd := tokenStart + utf8.RuneCountInString(tokens[i])
			if tokenStart >= end || tokenEnd <= begin {
				continue
			}
			prefix := "I-"
			if first {
				prefix = "B-"
				first = false
			}
			if idx, ok := labelIndex[prefix+category]; ok {
				tags[i] = idx
			}
		}
	}
	return tags
}
