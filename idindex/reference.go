package idindex

import (
	"os"
	"sort"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
)

// RefRow is one row of the ID reference table.
type RefRow struct {
	GlobalID  int `csv:"global_id"`
	PosID     int `csv:"pos_id"`
	CondID    int `csv:"cond_id"`
	SubjectID int `csv:"subject_id"`
}

// Block is one (condition, position) combination; it owns one target row.
type Block struct {
	CondID int
	PosID  int
}

// ReferenceTable records (pos_id, cond_id, subject_id) for every Global
// Sample ID, sorted by ID.
type ReferenceTable []RefRow

// GenerateReference builds the reference table for the given blocks, in
// target row order. Subjects come from Decompose, so the table agrees with
// the row arithmetic by construction.
func GenerateReference(blocks []Block, layout Layout) (ReferenceTable, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	n := layout.Size(len(blocks))
	ref := make(ReferenceTable, n)
	for id := range n {
		c, err := layout.Decompose(id)
		if err != nil {
			return nil, err
		}
		b := blocks[c.TargetRow]
		ref[id] = RefRow{GlobalID: id, PosID: b.PosID, CondID: b.CondID, SubjectID: c.Subject}
	}
	return ref, nil
}

// LoadReferenceCSV reads an ID reference table with the columns
// global_id, pos_id, cond_id and subject_id.
func LoadReferenceCSV(path string) (ReferenceTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open reference table %s", path)
	}
	defer f.Close()

	var rows []RefRow
	if err := gocsv.Unmarshal(f, &rows); err != nil {
		return nil, errors.Wrapf(err, "parse reference table %s", path)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].GlobalID < rows[j].GlobalID })
	return ReferenceTable(rows), nil
}

// Len is the number of IDs in the table.
func (r ReferenceTable) Len() int {
	return len(r)
}

// IDs returns every Global Sample ID in ascending order.
func (r ReferenceTable) IDs() []int {
	ids := make([]int, len(r))
	for i, row := range r {
		ids[i] = row.GlobalID
	}
	return ids
}

// Row looks up the row for id.
func (r ReferenceTable) Row(id int) (RefRow, bool) {
	if id >= 0 && id < len(r) && r[id].GlobalID == id {
		return r[id], true
	}
	i := sort.Search(len(r), func(i int) bool { return r[i].GlobalID >= id })
	if i < len(r) && r[i].GlobalID == id {
		return r[i], true
	}
	return RefRow{}, false
}

// Blocks recovers the (condition, position) of every target row. The table
// must be valid for layout.
func (r ReferenceTable) Blocks(layout Layout) []Block {
	size := layout.BlockSize()
	if size <= 0 {
		return nil
	}
	blocks := make([]Block, 0, len(r)/size)
	for i := 0; i < len(r); i += size {
		blocks = append(blocks, Block{CondID: r[i].CondID, PosID: r[i].PosID})
	}
	return blocks
}

// Validate checks that the table is dense, that its length is a whole number
// of blocks, that every subject matches Decompose and that condition and
// position are constant within a block.
func (r ReferenceTable) Validate(layout Layout) error {
	if err := layout.Validate(); err != nil {
		return err
	}
	size := layout.BlockSize()
	if len(r)%size != 0 {
		return errors.Wrapf(ErrConfig, "reference table has %d rows, not a multiple of %d", len(r), size)
	}
	for i, row := range r {
		if row.GlobalID != i {
			return errors.Wrapf(ErrConfig, "reference row %d has global_id %d", i, row.GlobalID)
		}
		c, err := layout.Decompose(i)
		if err != nil {
			return err
		}
		if row.SubjectID != c.Subject {
			return errors.Wrapf(ErrConfig, "id %d: subject_id %d, expected %d", i, row.SubjectID, c.Subject)
		}
		first := r[c.TargetRow*size]
		if row.CondID != first.CondID || row.PosID != first.PosID {
			return errors.Wrapf(ErrConfig, "id %d: block %d mixes (cond %d, pos %d) with (cond %d, pos %d)",
				i, c.TargetRow, row.CondID, row.PosID, first.CondID, first.PosID)
		}
	}
	return nil
}
