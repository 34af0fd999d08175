// Package memo is the on-disk memoization layer for expensive,
// side-effecting operations: labeled-asset retrieval and asset content
// downloads. Results are cached per operation category, scoped either to one
// project (asset listings) or globally (content downloads, whose results do
// not depend on the project), and persist across process runs.
//
// A cache hit returns the stored result without re-invoking the computation
// and without re-validating the freshness of the underlying side effect;
// callers that need fresh data must invalidate first.
package memo

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrMissingProjectID indicates a project-scoped cache access without a
// project id. This is a programming error, not a recoverable condition.
var ErrMissingProjectID = errors.New("memo: project id not specified")

// Operation categories. Each category is its own namespace directory, so
// invalidation stays coarse-grained: a whole category is dropped at once,
// never a single key.
const (
	CategoryGetAssets     = "get_assets"
	CategoryDownloadAsset = "download_asset"
)

const globalScope = "_global"

// Cache stores memoized results under <root>/<scope>/<category>/<key>.json.
type Cache struct {
	root string
}

func New(root string) *Cache {
	return &Cache{root: root}
}

// Namespace is a resolved cache directory for one (scope, category) pair.
type Namespace struct {
	dir string
}

// ProjectNamespace scopes a category to one project.
func (c *Cache) ProjectNamespace(projectID, category string) (Namespace, error) {
	if projectID == "" {
		return Namespace{}, ErrMissingProjectID
	}
	return Namespace{dir: filepath.Join(c.root, projectID, category)}, nil
}

// GlobalNamespace scopes a category independently of any project, for
// operations whose result does not depend on the project, such as asset
// content downloads keyed by URL.
func (c *Cache) GlobalNamespace(category string) Namespace {
	return Namespace{dir: filepath.Join(c.root, globalScope, category)}
}

// GetOrCompute returns the cached result for key if one exists, decoding it
// into out; otherwise it invokes compute, persists the result, and decodes
// that. Identical keys within a namespace observe the identical stored
// result until the namespace is invalidated.
//
// out must be a pointer compatible with the JSON encoding of compute's
// result.
func (c *Cache) GetOrCompute(ns Namespace, key string, out any, compute func() (any, error)) error {
	path := ns.entryPath(key)

	data, err := os.ReadFile(path)
	if err == nil {
		return json.Unmarshal(data, out)
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("memo: reading cache entry: %w", err)
	}

	result, err := compute()
	if err != nil {
		return err
	}

	data, err = json.Marshal(result)
	if err != nil {
		return fmt.Errorf("memo: encoding result: %w", err)
	}

	if err := os.MkdirAll(ns.dir, 0o755); err != nil {
		return fmt.Errorf("memo: creating cache namespace: %w", err)
	}

	// Write-then-rename so a crash mid-write never leaves a truncated entry
	// that later hits.
	tmp := path + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("memo: writing cache entry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("memo: committing cache entry: %w", err)
	}

	return json.Unmarshal(data, out)
}

func (ns Namespace) entryPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(ns.dir, hex.EncodeToString(sum[:])+".json")
}
