package datasets

import (
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/Noofbiz/locaz/idindex"
)

// File names written by the conversion step.
const (
	FeatureFile   = "feature_data.csv"
	TargetFile    = "target_data.csv"
	ReferenceFile = "ID_reference_table.csv"
	ConditionFile = "condition_table.csv"
	ParamFile     = "feature_par.csv"
)

// Store holds the consolidated tables of one dataset.
type Store struct {
	Features   *Table
	Targets    *Table
	Reference  idindex.ReferenceTable
	Conditions idindex.ConditionTable
	Params     idindex.FeatureParams
	Layout     idindex.Layout
}

// NewStore assembles a Store from tables already in memory and validates it.
func NewStore(features, targets *Table, ref idindex.ReferenceTable, layout idindex.Layout) (*Store, error) {
	s := &Store{
		Features:  features,
		Targets:   targets,
		Reference: ref,
		Layout:    layout,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadRaw reads the five consolidated tables from dir. The number of
// subjects is the width of the target table; frames and angles come from the
// feature parameter table.
func LoadRaw(dir string) (*Store, error) {
	features, err := LoadTableCSV(filepath.Join(dir, FeatureFile))
	if err != nil {
		return nil, err
	}
	targets, err := LoadTableCSV(filepath.Join(dir, TargetFile))
	if err != nil {
		return nil, err
	}
	ref, err := idindex.LoadReferenceCSV(filepath.Join(dir, ReferenceFile))
	if err != nil {
		return nil, err
	}
	conds, err := idindex.LoadConditionsCSV(filepath.Join(dir, ConditionFile))
	if err != nil {
		return nil, err
	}
	params, err := idindex.LoadFeatureParamsCSV(filepath.Join(dir, ParamFile))
	if err != nil {
		return nil, err
	}
	layout, err := params.Layout(targets.Cols())
	if err != nil {
		return nil, errors.Wrapf(err, "layout from %s", ParamFile)
	}

	s := &Store{
		Features:   features,
		Targets:    targets,
		Reference:  ref,
		Conditions: conds,
		Params:     params,
		Layout:     layout,
	}
	if err := s.Validate(); err != nil {
		return nil, errors.Wrapf(err, "load %s", dir)
	}
	return s, nil
}

// Validate checks that the tables and the reference describe the same ID
// space: len(ref) = feature rows × S = target rows × S × F.
func (s *Store) Validate() error {
	if s.Features == nil || s.Targets == nil {
		return errors.Wrap(ErrConfig, "store has no tables")
	}
	if err := s.Layout.Validate(); err != nil {
		return err
	}
	if s.Targets.Cols() != s.Layout.NSubjects {
		return errors.Wrapf(ErrConfig, "target table has %d columns, layout has %d subjects",
			s.Targets.Cols(), s.Layout.NSubjects)
	}
	if s.Features.Rows() != s.Targets.Rows()*s.Layout.NFrames {
		return errors.Wrapf(ErrConfig, "%d feature rows, expected %d target rows × %d frames",
			s.Features.Rows(), s.Targets.Rows(), s.Layout.NFrames)
	}
	if n := s.Features.Rows() * s.Layout.NSubjects; s.Reference.Len() != n {
		return errors.Wrapf(ErrConfig, "reference has %d rows, tables address %d ids", s.Reference.Len(), n)
	}
	return s.Reference.Validate(s.Layout)
}

// Sampler builds a sampler over ids using the store's tables and layout.
// Zero NFrames/NSubjects in cfg are taken from the layout.
func (s *Store) Sampler(ids []int, cfg SamplerConfig) (*Sampler, error) {
	if cfg.NFrames == 0 {
		cfg.NFrames = s.Layout.NFrames
	}
	if cfg.NSubjects == 0 {
		cfg.NSubjects = s.Layout.NSubjects
	}
	return NewSampler(ids, s.Features, s.Targets, cfg)
}

// CheckAzimuthRange counts targets outside [-nAngles/2, nAngles). Both the
// signed and the [0, 360) representation are accepted.
func CheckAzimuthRange(t *Table, nAngles int) int {
	if nAngles <= 0 {
		nAngles = idindex.DefaultAngles
	}
	lo := -float32(nAngles) / 2
	hi := float32(nAngles)
	out := 0
	for _, v := range t.data {
		if v < lo || v >= hi {
			out++
		}
	}
	return out
}
