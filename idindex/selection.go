package idindex

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Criteria selects IDs by position, condition or subject. An ID is selected
// when it matches ANY listed value in ANY dimension.
type Criteria struct {
	Positions  []int
	Conditions []int
	Subjects   []int
}

// Empty reports whether the criteria select nothing.
func (c Criteria) Empty() bool {
	return len(c.Positions) == 0 && len(c.Conditions) == 0 && len(c.Subjects) == 0
}

// SelectIDs returns the sorted, deduplicated union of the IDs matching any
// of the criteria.
func SelectIDs(ref ReferenceTable, c Criteria) []int {
	if c.Empty() {
		return []int{}
	}
	pos, cond, subj := toSet(c.Positions), toSet(c.Conditions), toSet(c.Subjects)

	seen := make(map[int]struct{})
	ids := []int{}
	for _, row := range ref {
		_, p := pos[row.PosID]
		_, k := cond[row.CondID]
		_, s := subj[row.SubjectID]
		if !(p || k || s) {
			continue
		}
		if _, dup := seen[row.GlobalID]; dup {
			continue
		}
		seen[row.GlobalID] = struct{}{}
		ids = append(ids, row.GlobalID)
	}
	sort.Ints(ids)
	return ids
}

// Resolution is the outcome of parsing selection labels.
type Resolution struct {
	Criteria
	// Unmatched lists labels that contributed nothing.
	Unmatched []string
}

// Err returns ErrUnmatchedLabel when any label was unmatched.
func (r Resolution) Err() error {
	if len(r.Unmatched) == 0 {
		return nil
	}
	return errors.Wrapf(ErrUnmatchedLabel, "%s", strings.Join(r.Unmatched, ", "))
}

// ResolveSubset turns selection labels into criteria.
//
//	"pos3"      -> position 2 (labels are 1-based)
//	"subject_5" -> subject 5
//	otherwise   -> every condition whose sfs_method contains the label
//
// Classification is by prefix only: "Compos" is a condition substring, not
// a position. Labels that cannot be parsed or match no condition contribute
// nothing and are reported in Unmatched.
func ResolveSubset(labels []string, conds ConditionTable) Resolution {
	var res Resolution
	for _, label := range labels {
		switch {
		case strings.HasPrefix(label, "pos"):
			n, err := strconv.Atoi(strings.TrimPrefix(label, "pos"))
			if err != nil || n < 1 {
				res.Unmatched = append(res.Unmatched, label)
				continue
			}
			res.Positions = append(res.Positions, n-1)
		case strings.HasPrefix(label, "subject_"):
			n, err := strconv.Atoi(strings.TrimPrefix(label, "subject_"))
			if err != nil || n < 0 {
				res.Unmatched = append(res.Unmatched, label)
				continue
			}
			res.Subjects = append(res.Subjects, n)
		default:
			matched := false
			for _, c := range conds {
				if label != "" && strings.Contains(c.SFSMethod, label) {
					res.Conditions = append(res.Conditions, c.CondID)
					matched = true
				}
			}
			if !matched {
				res.Unmatched = append(res.Unmatched, label)
			}
		}
	}
	res.Positions = uniqueSorted(res.Positions)
	res.Conditions = uniqueSorted(res.Conditions)
	res.Subjects = uniqueSorted(res.Subjects)
	return res
}

// PositionGroups holds IDs split by listening position.
type PositionGroups struct {
	// Positions are the pos_id values, ascending.
	Positions []int
	// IDs[i] are the sorted IDs at Positions[i].
	IDs [][]int
}

// GroupByPosition splits ids by their pos_id. IDs missing from ref are
// returned as an error.
func GroupByPosition(ref ReferenceTable, ids []int) (PositionGroups, error) {
	byPos := make(map[int][]int)
	for _, id := range ids {
		row, ok := ref.Row(id)
		if !ok {
			return PositionGroups{}, errors.Wrapf(ErrDomain, "id %d not in reference table", id)
		}
		byPos[row.PosID] = append(byPos[row.PosID], id)
	}

	var g PositionGroups
	for p := range byPos {
		g.Positions = append(g.Positions, p)
	}
	sort.Ints(g.Positions)
	for _, p := range g.Positions {
		group := byPos[p]
		sort.Ints(group)
		g.IDs = append(g.IDs, group)
	}
	return g, nil
}

func toSet(v []int) map[int]struct{} {
	s := make(map[int]struct{}, len(v))
	for _, x := range v {
		s[x] = struct{}{}
	}
	return s
}

func uniqueSorted(v []int) []int {
	if len(v) == 0 {
		return nil
	}
	sort.Ints(v)
	out := v[:1]
	for _, x := range v[1:] {
		if x != out[len(out)-1] {
			out = append(out, x)
		}
	}
	return out
}
