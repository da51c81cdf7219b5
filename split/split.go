// Package split partitions the Global Sample IDs of a dataset into
// train, validation and test sets.
package split

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/Noofbiz/locaz/idindex"
)

// ErrConfig is returned for inconsistent split options.
var ErrConfig = errors.New("split: invalid configuration")

// Partition holds three pairwise-disjoint, sorted ID lists.
type Partition struct {
	Train      []int `yaml:"train"`
	Validation []int `yaml:"validation"`
	Test       []int `yaml:"test"`
}

// Sizes returns the number of IDs in train, validation and test.
func (p Partition) Sizes() (train, validation, test int) {
	return len(p.Train), len(p.Validation), len(p.Test)
}

// Validate reports an error if any ID appears in more than one partition
// or twice in the same one.
func (p Partition) Validate() error {
	owner := make(map[int]string, len(p.Train)+len(p.Validation)+len(p.Test))
	for _, part := range []struct {
		name string
		ids  []int
	}{{"train", p.Train}, {"validation", p.Validation}, {"test", p.Test}} {
		for _, id := range part.ids {
			if prev, ok := owner[id]; ok {
				return errors.Wrapf(ErrConfig, "id %d in both %s and %s", id, prev, part.name)
			}
			owner[id] = part.name
		}
	}
	return nil
}

// labelError reports unmatched labels in strict mode. It matches both
// ErrConfig and idindex.ErrUnmatchedLabel.
type labelError struct {
	subset string
	cause  error
}

func (e labelError) Error() string {
	return ErrConfig.Error() + ": " + e.subset + ": " + e.cause.Error()
}

func (e labelError) Unwrap() []error {
	return []error{ErrConfig, e.cause}
}

// Options controls Split.
type Options struct {
	// TestSubset and ValidSubset are selection labels ("posN",
	// "subject_N" or a condition name substring). An empty list means the
	// partition is drawn at random.
	TestSubset  []string `yaml:"test_subset"`
	ValidSubset []string `yaml:"valid_subset"`

	TestFraction  float64 `yaml:"test_fraction"`
	ValidFraction float64 `yaml:"valid_fraction"`

	// Strict turns labels that select nothing into an error.
	Strict bool `yaml:"strict"`

	Rand *rand.Rand `yaml:"-"`
}

func (o Options) validate() error {
	for name, f := range map[string]float64{"test_fraction": o.TestFraction, "valid_fraction": o.ValidFraction} {
		if f < 0 || f >= 1 || math.IsNaN(f) {
			return errors.Wrapf(ErrConfig, "%s=%g outside [0, 1)", name, f)
		}
	}
	if len(o.TestSubset) == 0 && len(o.ValidSubset) == 0 && o.TestFraction+o.ValidFraction >= 1 {
		return errors.Wrapf(ErrConfig, "test_fraction + valid_fraction = %g leaves no training data",
			o.TestFraction+o.ValidFraction)
	}
	return nil
}

// Split partitions every ID in ref.
//
// Explicit subsets are resolved first and removed from the pool. If no
// test labels are given, ceil(TestFraction × |pool|) IDs are drawn from the
// pool at random. Validation is then handled the same way, drawing from the
// pool left after the test draw, so ValidFraction is a fraction of the
// post-test pool. The remaining pool is the training set.
func Split(ref idindex.ReferenceTable, conds idindex.ConditionTable, opts Options) (Partition, error) {
	if err := opts.validate(); err != nil {
		return Partition{}, err
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	testRes := idindex.ResolveSubset(opts.TestSubset, conds)
	validRes := idindex.ResolveSubset(opts.ValidSubset, conds)
	if opts.Strict {
		if err := testRes.Err(); err != nil {
			return Partition{}, labelError{subset: "test_subset", cause: err}
		}
		if err := validRes.Err(); err != nil {
			return Partition{}, labelError{subset: "valid_subset", cause: err}
		}
	}

	test := idindex.SelectIDs(ref, testRes.Criteria)
	valid := idindex.SelectIDs(ref, validRes.Criteria)
	if n := countShared(test, valid); n > 0 {
		return Partition{}, errors.Wrapf(ErrConfig, "test and validation subsets share %d ids", n)
	}

	pool := difference(ref.IDs(), test, valid)
	if len(opts.TestSubset) == 0 {
		pool, test = draw(pool, opts.TestFraction, rng)
	}
	if len(opts.ValidSubset) == 0 {
		pool, valid = draw(pool, opts.ValidFraction, rng)
	}

	p := Partition{Train: pool, Validation: valid, Test: test}
	sort.Ints(p.Train)
	sort.Ints(p.Validation)
	sort.Ints(p.Test)
	return p, nil
}

// draw removes ceil(fraction × len(pool)) random IDs from pool.
func draw(pool []int, fraction float64, rng *rand.Rand) (rest, drawn []int) {
	n := int(math.Ceil(fraction * float64(len(pool))))
	if n > len(pool) {
		n = len(pool)
	}
	perm := rng.Perm(len(pool))
	drawn = make([]int, 0, n)
	rest = make([]int, 0, len(pool)-n)
	for i, j := range perm {
		if i < n {
			drawn = append(drawn, pool[j])
		} else {
			rest = append(rest, pool[j])
		}
	}
	return rest, drawn
}

// difference returns the IDs of all that are in none of the excluded lists.
func difference(all []int, exclude ...[]int) []int {
	skip := make(map[int]struct{})
	for _, ex := range exclude {
		for _, id := range ex {
			skip[id] = struct{}{}
		}
	}
	out := make([]int, 0, len(all))
	for _, id := range all {
		if _, ok := skip[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// countShared counts IDs present in both sorted lists.
func countShared(a, b []int) int {
	n, i, j := 0, 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			n++
			i++
			j++
		}
	}
	return n
}
