package split

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/locaz/idindex"
)

var testConds = idindex.ConditionTable{
	{CondID: 0, SFSMethod: "NFCHOA_M27"},
	{CondID: 1, SFSMethod: "WFS_L56"},
}

// testReference is 2 conditions x 3 positions x 5 frames x 4 subjects.
func testReference(t *testing.T) idindex.ReferenceTable {
	t.Helper()
	var blocks []idindex.Block
	for c := 0; c < 2; c++ {
		for p := 0; p < 3; p++ {
			blocks = append(blocks, idindex.Block{CondID: c, PosID: p})
		}
	}
	ref, err := idindex.GenerateReference(blocks, idindex.Layout{NSubjects: 4, NFrames: 5})
	require.NoError(t, err)
	return ref
}

func assertCovers(t *testing.T, ref idindex.ReferenceTable, p Partition) {
	t.Helper()
	require.NoError(t, p.Validate())
	var all []int
	all = append(all, p.Train...)
	all = append(all, p.Validation...)
	all = append(all, p.Test...)
	sort.Ints(all)
	assert.Equal(t, ref.IDs(), all)
	assert.True(t, sort.IntsAreSorted(p.Train))
	assert.True(t, sort.IntsAreSorted(p.Validation))
	assert.True(t, sort.IntsAreSorted(p.Test))
}

func TestSplit_RandomFractions(t *testing.T) {
	ref := testReference(t)
	p, err := Split(ref, testConds, Options{
		TestFraction: 0.2, ValidFraction: 0.25, Rand: rand.New(rand.NewSource(3)),
	})
	require.NoError(t, err)
	assertCovers(t, ref, p)

	train, valid, test := p.Sizes()
	// 120 ids: test = ceil(0.2*120) = 24, validation = ceil(0.25*96) = 24
	assert.Equal(t, 24, test)
	assert.Equal(t, 24, valid)
	assert.Equal(t, 72, train)
}

func TestSplit_Deterministic(t *testing.T) {
	ref := testReference(t)
	opts := func() Options {
		return Options{TestFraction: 0.3, ValidFraction: 0.1, Rand: rand.New(rand.NewSource(11))}
	}
	a, err := Split(ref, testConds, opts())
	require.NoError(t, err)
	b, err := Split(ref, testConds, opts())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSplit_ExplicitSubsets(t *testing.T) {
	ref := testReference(t)
	p, err := Split(ref, testConds, Options{
		TestSubset:    []string{"pos1"},
		ValidSubset:   []string{"subject_2"},
		TestFraction:  0.5,
		ValidFraction: 0.5,
		Rand:          rand.New(rand.NewSource(1)),
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrConfig), "pos1 and subject_2 overlap")

	p, err = Split(ref, testConds, Options{
		TestSubset:    []string{"pos1"},
		ValidSubset:   []string{"pos3"},
		TestFraction:  0.5,
		ValidFraction: 0.5,
	})
	require.NoError(t, err)
	assertCovers(t, ref, p)
	for _, id := range p.Test {
		row, _ := ref.Row(id)
		assert.Equal(t, 0, row.PosID)
	}
	for _, id := range p.Validation {
		row, _ := ref.Row(id)
		assert.Equal(t, 2, row.PosID)
	}
	// explicit subsets ignore the fractions
	_, valid, test := p.Sizes()
	assert.Equal(t, 40, test)
	assert.Equal(t, 40, valid)
}

func TestSplit_ExplicitTestRandomValidation(t *testing.T) {
	ref := testReference(t)
	p, err := Split(ref, testConds, Options{
		TestSubset:    []string{"WFS"},
		ValidFraction: 0.1,
		Rand:          rand.New(rand.NewSource(5)),
	})
	require.NoError(t, err)
	assertCovers(t, ref, p)

	train, valid, test := p.Sizes()
	assert.Equal(t, 60, test)
	assert.Equal(t, int(math.Ceil(0.1*60)), valid)
	assert.Equal(t, 54, train)
	for _, id := range p.Test {
		row, _ := ref.Row(id)
		assert.Equal(t, 1, row.CondID)
	}
}

func TestSplit_UnmatchedLabels(t *testing.T) {
	ref := testReference(t)

	// permissive: a typo selects nothing and no random draw happens
	p, err := Split(ref, testConds, Options{TestSubset: []string{"NFCHAO"}, ValidFraction: 0.2})
	require.NoError(t, err)
	assert.Empty(t, p.Test)
	assertCovers(t, ref, p)

	_, err = Split(ref, testConds, Options{TestSubset: []string{"NFCHAO"}, Strict: true})
	require.True(t, errors.Is(err, ErrConfig))
	require.True(t, errors.Is(err, idindex.ErrUnmatchedLabel))
	assert.Contains(t, err.Error(), "test_subset")
	assert.Contains(t, err.Error(), "NFCHAO")

	_, err = Split(ref, testConds, Options{ValidSubset: []string{"pos0"}, Strict: true})
	require.True(t, errors.Is(err, idindex.ErrUnmatchedLabel))
	assert.Contains(t, err.Error(), "valid_subset")
}

func TestSplit_FractionErrors(t *testing.T) {
	ref := testReference(t)
	for _, opts := range []Options{
		{TestFraction: -0.1},
		{ValidFraction: 1},
		{TestFraction: 0.6, ValidFraction: 0.4},
		{TestFraction: math.NaN()},
	} {
		_, err := Split(ref, testConds, opts)
		require.True(t, errors.Is(err, ErrConfig), "%+v", opts)
	}

	// fractions summing past 1 are fine when one partition is explicit
	_, err := Split(ref, testConds, Options{TestSubset: []string{"pos2"}, TestFraction: 0.6, ValidFraction: 0.5})
	require.NoError(t, err)
}

func TestSplit_ZeroFractions(t *testing.T) {
	ref := testReference(t)
	p, err := Split(ref, testConds, Options{})
	require.NoError(t, err)
	assert.Empty(t, p.Test)
	assert.Empty(t, p.Validation)
	assert.Len(t, p.Train, ref.Len())
}

func TestPartition_Validate(t *testing.T) {
	require.NoError(t, Partition{Train: []int{1, 2}, Test: []int{3}}.Validate())
	err := Partition{Train: []int{1, 2}, Validation: []int{2}}.Validate()
	require.True(t, errors.Is(err, ErrConfig))
}
