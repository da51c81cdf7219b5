package idindex

import (
	"os"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
)

// Condition is one row of the condition lookup table.
type Condition struct {
	CondID    int    `csv:"cond_id"`
	SFSMethod string `csv:"sfs_method"`
}

// ConditionTable maps cond_id onto the sound field synthesis method name.
type ConditionTable []Condition

// FeatureParam is one row of the feature parameter table.
type FeatureParam struct {
	CondID  int `csv:"cond_id"`
	NFrames int `csv:"nFrames"`
	NAngles int `csv:"nAngles"`
}

// FeatureParams holds the feature computation parameters per condition.
type FeatureParams []FeatureParam

// LoadConditionsCSV reads a condition table with cond_id and sfs_method columns.
func LoadConditionsCSV(path string) (ConditionTable, error) {
	var rows []Condition
	if err := unmarshalFile(path, &rows); err != nil {
		return nil, err
	}
	return ConditionTable(rows), nil
}

// LoadFeatureParamsCSV reads a feature parameter table.
func LoadFeatureParamsCSV(path string) (FeatureParams, error) {
	var rows []FeatureParam
	if err := unmarshalFile(path, &rows); err != nil {
		return nil, err
	}
	return FeatureParams(rows), nil
}

// Layout derives the addressing constants from the parameter table. Every
// condition must agree on nFrames and nAngles.
func (p FeatureParams) Layout(nSubjects int) (Layout, error) {
	if len(p) == 0 {
		return Layout{}, errors.Wrap(ErrConfig, "empty feature parameter table")
	}
	l := Layout{NSubjects: nSubjects, NFrames: p[0].NFrames, NAngles: p[0].NAngles}
	for _, row := range p[1:] {
		if row.NFrames != l.NFrames || row.NAngles != l.NAngles {
			return Layout{}, errors.Wrapf(ErrConfig, "condition %d has nFrames=%d nAngles=%d, expected %d/%d",
				row.CondID, row.NFrames, row.NAngles, l.NFrames, l.NAngles)
		}
	}
	if l.NAngles == 0 {
		l.NAngles = DefaultAngles
	}
	return l, l.Validate()
}

func unmarshalFile(path string, out interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	if err := gocsv.Unmarshal(f, out); err != nil {
		return errors.Wrapf(err, "parse %s", path)
	}
	return nil
}
