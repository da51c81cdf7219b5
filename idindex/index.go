// Package idindex maps flat Global Sample IDs onto rows of the feature and
// target tables, and selects ID subsets by position, condition or subject.
//
// A Global Sample ID enumerates one trial: (block, frame, subject), where a
// block is one (condition, position) combination. With S subjects and F
// frames per block,
//
//	feature row = floor(id / S)
//	target row  = floor(id / (S*F))
//	subject     = id - feature row * S
//
// so a feature vector is shared by the S trials of one frame and a target row
// is shared by the F frames of one block.
package idindex

import (
	"github.com/pkg/errors"
)

var (
	// ErrDomain is returned for negative IDs or non-positive layout sizes.
	ErrDomain = errors.New("idindex: id outside domain")
	// ErrConfig is returned for an inconsistent layout or reference table.
	ErrConfig = errors.New("idindex: inconsistent configuration")
	// ErrFilename is returned when a file name does not follow the naming convention.
	ErrFilename = errors.New("idindex: malformed file name")
	// ErrUnmatchedLabel is returned by Resolution.Err when a label selected nothing.
	ErrUnmatchedLabel = errors.New("idindex: unmatched selection label")
)

// DefaultAngles is the size of the azimuth domain in degrees.
const DefaultAngles = 360

// Layout holds the per-dataset constants used for addressing.
type Layout struct {
	NSubjects int `yaml:"n_subjects"`
	NFrames   int `yaml:"n_frames"`
	// NAngles is only used for range checks.
	NAngles int `yaml:"n_angles"`
}

// Validate reports whether the layout can address anything.
func (l Layout) Validate() error {
	if l.NSubjects <= 0 || l.NFrames <= 0 {
		return errors.Wrapf(ErrConfig, "n_subjects=%d n_frames=%d must be positive", l.NSubjects, l.NFrames)
	}
	if l.NAngles < 0 {
		return errors.Wrapf(ErrConfig, "n_angles=%d must not be negative", l.NAngles)
	}
	return nil
}

// BlockSize is the number of IDs sharing one target row.
func (l Layout) BlockSize() int {
	return l.NSubjects * l.NFrames
}

// Size is the ID space size for nBlocks (condition, position) blocks.
func (l Layout) Size(nBlocks int) int {
	return nBlocks * l.BlockSize()
}

// Coords are the table coordinates of one Global Sample ID.
type Coords struct {
	FeatureRow int
	TargetRow  int
	Subject    int
}

// Decompose resolves id into feature row, target row and subject column.
func Decompose(id, nSubjects, nFrames int) (Coords, error) {
	if id < 0 {
		return Coords{}, errors.Wrapf(ErrDomain, "id %d is negative", id)
	}
	if nSubjects <= 0 || nFrames <= 0 {
		return Coords{}, errors.Wrapf(ErrDomain, "n_subjects=%d n_frames=%d must be positive", nSubjects, nFrames)
	}
	featureRow := id / nSubjects
	return Coords{
		FeatureRow: featureRow,
		TargetRow:  id / (nSubjects * nFrames),
		Subject:    id - featureRow*nSubjects,
	}, nil
}

// Decompose is Decompose with the layout's sizes.
func (l Layout) Decompose(id int) (Coords, error) {
	return Decompose(id, l.NSubjects, l.NFrames)
}

// Compose is the inverse of Decompose on (feature row, subject).
func Compose(featureRow, subject, nSubjects int) int {
	return featureRow*nSubjects + subject
}
