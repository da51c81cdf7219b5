package idindex

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// FileMetadata is what a raw measurement file name encodes.
type FileMetadata struct {
	Dataset  string
	Method   string
	Setup    string
	Position string
}

// ParseFilename reads DATASET_METHOD_SETUP_PARAM_POSITION_data.EXT, e.g.
// exp1_NFCHOA_L56_M006_pos01_data.csv gives dataset exp1, method
// NFCHOA_M006, setup L56 and position pos01.
func ParseFilename(name string) (FileMetadata, error) {
	parts := strings.Split(filepath.Base(name), "_")
	if len(parts) < 5 {
		return FileMetadata{}, errors.Wrapf(ErrFilename, "%q has %d fields, need at least 5", name, len(parts))
	}
	for i, p := range parts[:5] {
		if p == "" {
			return FileMetadata{}, errors.Wrapf(ErrFilename, "%q: field %d is empty", name, i)
		}
	}
	return FileMetadata{
		Dataset:  parts[0],
		Method:   parts[1] + "_" + parts[3],
		Setup:    parts[2],
		Position: parts[4],
	}, nil
}
