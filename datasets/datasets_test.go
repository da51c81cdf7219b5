package datasets

import (
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/locaz/idindex"
)

// writeCSV writes a CSV file with the given header and rows to path.
func writeCSV(t *testing.T, path, header string, rows []string) {
	t.Helper()
	content := header + "\n" + strings.Join(rows, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const (
	testSubjects = 2
	testFrames   = 3
	testBlocks   = 2
)

// testTables builds 2 blocks x 3 frames x 2 subjects. Feature row r is
// [r, 10r]; target (b, s) is 100b+s.
func testTables(t *testing.T) (*Table, *Table) {
	t.Helper()
	var feat [][]float32
	for r := 0; r < testBlocks*testFrames; r++ {
		feat = append(feat, []float32{float32(r), float32(10 * r)})
	}
	var targ [][]float32
	for b := 0; b < testBlocks; b++ {
		targ = append(targ, []float32{float32(100 * b), float32(100*b + 1)})
	}
	features, err := TableFromRows([]string{"f0", "f1"}, feat)
	require.NoError(t, err)
	targets, err := TableFromRows(nil, targ)
	require.NoError(t, err)
	return features, targets
}

func allIDs() []int {
	ids := make([]int, testBlocks*testFrames*testSubjects)
	for i := range ids {
		ids[i] = i
	}
	return ids
}

func TestTable(t *testing.T) {
	features, targets := testTables(t)
	assert.Equal(t, 6, features.Rows())
	assert.Equal(t, 2, features.Cols())
	assert.Equal(t, []string{"c0", "c1"}, targets.Columns())
	assert.Equal(t, []float32{4, 40}, features.Row(4))
	assert.Equal(t, float32(101), targets.At(1, 1))

	_, err := NewTable([]string{"a", "b"}, []float32{1, 2, 3})
	require.True(t, errors.Is(err, ErrConfig))
	_, err = TableFromRows([]string{"a"}, [][]float32{{1, 2}})
	require.True(t, errors.Is(err, ErrConfig))
}

func TestLoadTableCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.csv")
	writeCSV(t, path, "a, b", []string{"1,2.5", "-3, 4"})

	tab, err := LoadTableCSV(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tab.Columns())
	assert.Equal(t, 2, tab.Rows())
	assert.Equal(t, []float32{-3, 4}, tab.Row(1))

	writeCSV(t, path, "a,b", []string{"1,x"})
	_, err = LoadTableCSV(path)
	require.Error(t, err)

	writeCSV(t, path, "a,b", []string{"1,"})
	_, err = LoadTableCSV(path)
	require.Error(t, err)

	writeCSV(t, path, "a,b", []string{"1,2,3"})
	_, err = LoadTableCSV(path)
	require.Error(t, err)

	writeCSV(t, path, "a,b", nil)
	tab, err = LoadTableCSV(path)
	require.NoError(t, err)
	assert.Equal(t, 0, tab.Rows())
	assert.Equal(t, 2, tab.Cols())
}

func TestSampler_LenAndTruncation(t *testing.T) {
	features, targets := testTables(t)
	s, err := NewSampler(allIDs(), features, targets, SamplerConfig{BatchSize: 5, NFrames: testFrames})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, StateShuffled, s.State())

	_, err = s.Batch(2)
	require.True(t, errors.Is(err, ErrIndex))
	_, err = s.Batch(-1)
	require.True(t, errors.Is(err, ErrIndex))

	// fewer ids than one batch: nothing to emit
	s, err = NewSampler([]int{0, 1}, features, targets, SamplerConfig{BatchSize: 3, NFrames: testFrames})
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
	_, err = s.Batch(0)
	require.True(t, errors.Is(err, ErrIndex))
}

func TestSampler_BatchContents(t *testing.T) {
	features, targets := testTables(t)
	s, err := NewSampler(allIDs(), features, targets, SamplerConfig{BatchSize: 4, NFrames: testFrames})
	require.NoError(t, err)

	b, err := s.Batch(2)
	require.NoError(t, err)
	assert.Equal(t, []int{8, 9, 10, 11}, b.IDs)
	// ids 8..11: feature rows 4,4,5,5; target row 1; subjects 0,1,0,1
	assert.Equal(t, []float32{4, 40, 4, 40, 5, 50, 5, 50}, b.X)
	assert.Equal(t, []float32{100, 101, 100, 101}, b.Y)
	assert.Equal(t, StateEpochDone, s.State())

	b, err = s.Batch(0)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0, 1}, b.Y)
	assert.Equal(t, StateEmitting, s.State())
}

func TestSampler_EachIDAtMostOnce(t *testing.T) {
	features, targets := testTables(t)
	s, err := NewSampler(allIDs(), features, targets, SamplerConfig{
		BatchSize: 5, NFrames: testFrames, Shuffle: true, Rand: rand.New(rand.NewSource(7)),
	})
	require.NoError(t, err)

	for epoch := 0; epoch < 3; epoch++ {
		seen := make(map[int]bool)
		for k := range s.Len() {
			b, err := s.Batch(k)
			require.NoError(t, err)
			for _, id := range b.IDs {
				require.False(t, seen[id], "id %d emitted twice", id)
				seen[id] = true
			}
		}
		assert.Len(t, seen, 10)
		s.OnEpochEnd()
	}
}

func TestSampler_ShuffleDeterminism(t *testing.T) {
	features, targets := testTables(t)
	mk := func(seed int64) []int {
		s, err := NewSampler(allIDs(), features, targets, SamplerConfig{
			BatchSize: 4, NFrames: testFrames, Shuffle: true, Rand: rand.New(rand.NewSource(seed)),
		})
		require.NoError(t, err)
		return s.Order()
	}
	assert.Equal(t, mk(42), mk(42))

	order := mk(42)
	sort.Ints(order)
	assert.Equal(t, allIDs(), order)
}

func TestSampler_UnshuffledOrder(t *testing.T) {
	features, targets := testTables(t)
	ids := []int{11, 3, 7, 0}
	s, err := NewSampler(ids, features, targets, SamplerConfig{BatchSize: 2, NFrames: testFrames})
	require.NoError(t, err)
	assert.Equal(t, ids, s.Order())
	s.OnEpochEnd()
	assert.Equal(t, ids, s.Order())

	y, err := s.Targets()
	require.NoError(t, err)
	assert.Equal(t, []float32{101, 1, 101, 0}, y)
}

func TestShuffleIDs_Pure(t *testing.T) {
	ids := []int{1, 2, 3, 4, 5}
	out := ShuffleIDs(ids, rand.New(rand.NewSource(1)))
	assert.Equal(t, []int{1, 2, 3, 4, 5}, ids)
	assert.ElementsMatch(t, ids, out)
}

func TestSampler_ConfigErrors(t *testing.T) {
	features, targets := testTables(t)
	_, err := NewSampler(allIDs(), features, targets, SamplerConfig{BatchSize: 0, NFrames: testFrames})
	require.True(t, errors.Is(err, ErrConfig))
	_, err = NewSampler(allIDs(), features, targets, SamplerConfig{BatchSize: 2, Dim: 3, NFrames: testFrames})
	require.True(t, errors.Is(err, ErrConfig))
	_, err = NewSampler(allIDs(), features, targets, SamplerConfig{BatchSize: 2})
	require.True(t, errors.Is(err, ErrConfig))
	_, err = NewSampler(allIDs(), nil, targets, SamplerConfig{BatchSize: 2, NFrames: testFrames})
	require.True(t, errors.Is(err, ErrConfig))
}

func TestSampler_RangeErrors(t *testing.T) {
	features, targets := testTables(t)

	// n_subjects larger than the target table
	s, err := NewSampler([]int{5}, features, targets, SamplerConfig{BatchSize: 1, NFrames: testFrames, NSubjects: 3})
	require.NoError(t, err)
	_, err = s.Batch(0)
	require.True(t, errors.Is(err, ErrRange))

	// id past the end of the tables
	s, err = NewSampler([]int{12}, features, targets, SamplerConfig{BatchSize: 1, NFrames: testFrames})
	require.NoError(t, err)
	_, err = s.Batch(0)
	require.True(t, errors.Is(err, ErrRange))

	s, err = NewSampler([]int{-1}, features, targets, SamplerConfig{BatchSize: 1, NFrames: testFrames})
	require.NoError(t, err)
	_, err = s.Batch(0)
	require.True(t, errors.Is(err, idindex.ErrDomain))
}

func TestSampler_Yield(t *testing.T) {
	features, targets := testTables(t)
	s, err := NewSampler(allIDs(), features, targets, SamplerConfig{Name: "train", BatchSize: 5, NFrames: testFrames})
	require.NoError(t, err)
	assert.Equal(t, "train", s.Name())

	for range 2 {
		_, in, lab, err := s.Yield()
		require.NoError(t, err)
		require.Len(t, in, 1)
		require.Len(t, lab, 1)
		assert.Equal(t, []int{5, 2}, in[0].Shape().Dimensions)
		assert.Equal(t, []int{5, 1}, lab[0].Shape().Dimensions)
	}
	_, _, _, err = s.Yield()
	require.Equal(t, io.EOF, err)
	assert.Equal(t, StateEpochDone, s.State())

	s.Reset()
	_, _, _, err = s.Yield()
	require.NoError(t, err)
}

// writeRaw writes the five consolidated tables for the test layout.
func writeRaw(t *testing.T, dir string) {
	t.Helper()
	var feat, targ, ref []string
	for r := 0; r < testBlocks*testFrames; r++ {
		feat = append(feat, strings.Join([]string{strconv.Itoa(r), strconv.Itoa(10 * r)}, ","))
	}
	for b := 0; b < testBlocks; b++ {
		targ = append(targ, strconv.Itoa(100*b)+","+strconv.Itoa(100*b+1))
	}
	for id := 0; id < testBlocks*testFrames*testSubjects; id++ {
		block := id / (testSubjects * testFrames)
		ref = append(ref, strings.Join([]string{strconv.Itoa(id), strconv.Itoa(block), "0", strconv.Itoa(id % testSubjects)}, ","))
	}
	writeCSV(t, filepath.Join(dir, FeatureFile), "f0,f1", feat)
	writeCSV(t, filepath.Join(dir, TargetFile), "s0,s1", targ)
	writeCSV(t, filepath.Join(dir, ReferenceFile), "global_id,pos_id,cond_id,subject_id", ref)
	writeCSV(t, filepath.Join(dir, ConditionFile), "cond_id,sfs_method", []string{"0,NFCHOA_M27"})
	writeCSV(t, filepath.Join(dir, ParamFile), "cond_id,nFrames,nAngles", []string{"0,3,360"})
}

func TestLoadRaw(t *testing.T) {
	dir := t.TempDir()
	writeRaw(t, dir)

	st, err := LoadRaw(dir)
	require.NoError(t, err)
	assert.Equal(t, idindex.Layout{NSubjects: 2, NFrames: 3, NAngles: 360}, st.Layout)
	assert.Equal(t, 12, st.Reference.Len())
	assert.Len(t, st.Conditions, 1)
	assert.Equal(t, 0, CheckAzimuthRange(st.Targets, st.Layout.NAngles))

	s, err := st.Sampler(st.Reference.IDs(), SamplerConfig{BatchSize: 4})
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())
	b, err := s.Batch(2)
	require.NoError(t, err)
	assert.Equal(t, []float32{100, 101, 100, 101}, b.Y)
}

func TestLoadRaw_Mismatch(t *testing.T) {
	dir := t.TempDir()
	writeRaw(t, dir)
	// frames in the parameter table disagree with the feature table
	writeCSV(t, filepath.Join(dir, ParamFile), "cond_id,nFrames,nAngles", []string{"0,2,360"})
	_, err := LoadRaw(dir)
	require.True(t, errors.Is(err, ErrConfig))
}

func TestCheckAzimuthRange(t *testing.T) {
	tab, err := NewTable([]string{"a"}, []float32{-180, -181, 0, 359.5, 360})
	require.NoError(t, err)
	assert.Equal(t, 2, CheckAzimuthRange(tab, 360))
}
