package datasets

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Batch stores one batch in flat contiguous buffers.
type Batch struct {
	// X is Size x Dim, row-major.
	X []float32
	// Y holds one azimuth per example.
	Y []float32
	// IDs are the Global Sample IDs the batch was built from.
	IDs  []int
	Size int
	Dim  int
}

func newBatch(size, dim int) *Batch {
	return &Batch{
		X:    make([]float32, size*dim),
		Y:    make([]float32, size),
		IDs:  make([]int, size),
		Size: size,
		Dim:  dim,
	}
}

// Row returns the feature vector of example i.
func (b *Batch) Row(i int) []float32 {
	return b.X[i*b.Dim : (i+1)*b.Dim]
}

// Inputs reshapes X into one slice per example, sharing the buffer.
func (b *Batch) Inputs() [][]float32 {
	inputs := make([][]float32, b.Size)
	for i := range b.Size {
		inputs[i] = b.Row(i)
	}
	return inputs
}

// ToGomlxTensors converts the batch to gomlx tensors of shape [Size, Dim]
// and [Size, 1].
func (b *Batch) ToGomlxTensors() (*tensors.Tensor, *tensors.Tensor, error) {
	// handle empty batch gracefully
	if b.Size == 0 || b.Dim == 0 {
		inT := tensors.FromAnyValue(make([][]float32, 0))
		labT := tensors.FromAnyValue(make([][]float32, 0))
		return inT, labT, nil
	}
	labels := make([][]float32, b.Size)
	for i := range b.Size {
		labels[i] = b.Y[i : i+1]
	}
	inT := tensors.FromAnyValue(b.Inputs())
	labT := tensors.FromAnyValue(labels)
	return inT, labT, nil
}
