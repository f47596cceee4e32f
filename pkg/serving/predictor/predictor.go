// Package predictor scores rows against exported native bundles on disk,
// without the training session they came from.
package predictor

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/synaptica-ai/automl/pkg/common/apperrors"
	"github.com/synaptica-ai/automl/pkg/export"
)

type Predictor struct {
	dir   string
	cache map[string]cachedBundle
	mu    sync.RWMutex
}

type cachedBundle struct {
	bundle  *export.Bundle
	modTime int64
}

func NewPredictor(dir string) *Predictor {
	return &Predictor{
		dir:   dir,
		cache: make(map[string]cachedBundle),
	}
}

// Predict scores inputs with the bundle exported for sessionID and model.
func (p *Predictor) Predict(sessionID, model string, inputs map[string]interface{}) (*export.Prediction, error) {
	bundle, err := p.load(export.FileName(sessionID, model, export.FormatNative))
	if err != nil {
		return nil, err
	}
	return bundle.Predict(inputs)
}

// load returns the cached bundle unless the file changed since it was read.
func (p *Predictor) load(name string) (*export.Bundle, error) {
	path := filepath.Join(p.dir, name)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, apperrors.NotFound("model bundle %s", name)
	}
	if err != nil {
		return nil, err
	}
	mod := info.ModTime().UnixNano()

	p.mu.RLock()
	cached, ok := p.cache[name]
	p.mu.RUnlock()
	if ok && cached.modTime == mod {
		return cached.bundle, nil
	}

	bundle, err := export.ReadBundle(path)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.cache[name] = cachedBundle{bundle: bundle, modTime: mod}
	p.mu.Unlock()
	return bundle, nil
}
