package pipeline

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// workDir is an invocation-scoped directory for page images. Release removes
// it with everything inside and may be called any number of times.
type workDir struct {
	path string
	log  zerolog.Logger
	once sync.Once
}

func newWorkDir(root string, log zerolog.Logger) (*workDir, error) {
	path, err := os.MkdirTemp(root, "invoice-ocr-*")
	if err != nil {
		return nil, err
	}
	return &workDir{path: path, log: log}, nil
}

func (w *workDir) Path() string {
	return w.path
}

func (w *workDir) Release() {
	w.once.Do(func() {
		// cleanup errors never replace the pipeline outcome
		if err := os.RemoveAll(w.path); err != nil {
			w.log.Warn().Err(err).Str("dir", w.path).Msg("Failed to remove working directory")
		}
	})
}

// pageImage is one rasterized page inside a workDir.
type pageImage struct {
	page int // 1-based
	path string
	once sync.Once
}

func (p *pageImage) Release() {
	// leftovers go with the enclosing workDir
	p.once.Do(func() { _ = os.Remove(p.path) })
}
