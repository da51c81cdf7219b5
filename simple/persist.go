package simple

import (
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const modelVersion = 1

type modelFile struct {
	Version    int
	Config     Config
	LayerSizes []int
	Weights    [][][]float32
	Biases     [][]float32
}

// Save writes the model to path with encoding/gob. The file is written to a
// temporary name in the same directory and renamed into place.
func (m *Model) Save(path string) error {
	if path == "" {
		return errors.New("empty model path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "mkdir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return errors.Wrap(err, "create temp model file")
	}
	tmpName := tmp.Name()
	defer func() {
		tmp.Close()
		_ = os.Remove(tmpName)
	}()

	mf := modelFile{
		Version:    modelVersion,
		Config:     m.Config,
		LayerSizes: m.layerSizes,
		Weights:    m.weights,
		Biases:     m.biases,
	}
	if err := gob.NewEncoder(tmp).Encode(&mf); err != nil {
		return errors.Wrap(err, "encode model")
	}
	if err := tmp.Sync(); err != nil {
		m.logger.Warn("sync temp model file", zap.Error(err))
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp model file")
	}
	return errors.Wrap(os.Rename(tmpName, path), "rename temp model file")
}

// Load reads a model written by Save.
func Load(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open model %s", path)
	}
	defer f.Close()

	var mf modelFile
	if err := gob.NewDecoder(f).Decode(&mf); err != nil {
		return nil, errors.Wrapf(err, "decode model %s", path)
	}
	if mf.Version != modelVersion {
		return nil, errors.Errorf("model version mismatch: file=%d expected=%d", mf.Version, modelVersion)
	}
	if len(mf.LayerSizes) < 2 || len(mf.Weights) != len(mf.LayerSizes)-1 || len(mf.Biases) != len(mf.Weights) {
		return nil, errors.Errorf("model %s: %d layer sizes, %d weight and %d bias layers",
			path, len(mf.LayerSizes), len(mf.Weights), len(mf.Biases))
	}
	for l := range mf.Weights {
		if len(mf.Weights[l]) != mf.LayerSizes[l+1] || len(mf.Biases[l]) != mf.LayerSizes[l+1] {
			return nil, errors.Errorf("model %s: layer %d does not match its size %d", path, l, mf.LayerSizes[l+1])
		}
		for _, row := range mf.Weights[l] {
			if len(row) != mf.LayerSizes[l] {
				return nil, errors.Errorf("model %s: layer %d row width %d, expected %d", path, l, len(row), mf.LayerSizes[l])
			}
		}
	}
	return &Model{
		Config:     mf.Config,
		layerSizes: mf.LayerSizes,
		weights:    mf.Weights,
		biases:     mf.Biases,
		logger:     zap.NewNop(),
	}, nil
}
