package backend

import (
	"sync"

	"automl-backend/plugin/shared"
)

// Lazy defers launching a backend process until the first training run needs
// it, so a project whose jobs never route to a given repository never pays
// for that repository's plugin.
type Lazy struct {
	executable string
	script     string
	args       []string

	once    sync.Once
	backend *PluginBackend
	err     error
}

var _ shared.Backend = (*Lazy)(nil)

func NewLazy(executable, script string, args ...string) *Lazy {
	return &Lazy{executable: executable, script: script, args: args}
}

func (l *Lazy) Fit(req shared.FitRequest) (shared.FitResult, error) {
	l.once.Do(func() {
		l.backend, l.err = Launch(l.executable, l.script, l.args...)
	})
	if l.err != nil {
		return shared.FitResult{}, l.err
	}
	return l.backend.Fit(req)
}

func (l *Lazy) Release() {
	if l.backend != nil {
		l.backend.Release()
	}
}
