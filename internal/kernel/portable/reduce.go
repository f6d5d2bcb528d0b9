package portable

import (
	"fmt"
	"math"

	"github.com/slate-ml/slate/internal/evalue"
	"github.com/slate-ml/slate/internal/kernel"
	"github.com/slate-ml/slate/internal/tensor"
)

// reducePlan precomputes the iteration pattern for a dim-list reduction:
// the output walks the kept dimensions in row-major order, the inner
// map-reduce walks the reduced dimensions through the input's strides.
type reducePlan struct {
	keptSizes   []int
	keptStrides []int
	redSizes    []int
	redStrides  []int
	redCount    int // elements reduced per output element
	outCount    int

	idx []int // odometer scratch, one slot per reduced dim
}

func buildReducePlan(shape tensor.Shape, dims []int64) (*reducePlan, error) {
	strides := shape.ComputeStrides()

	reduced := make([]bool, len(shape))
	if len(dims) == 0 {
		// Empty dim list reduces everything.
		for i := range reduced {
			reduced[i] = true
		}
	}
	for _, d := range dims {
		if d < 0 {
			d += int64(len(shape))
		}
		if d < 0 || d >= int64(len(shape)) {
			return nil, fmt.Errorf("dim %d out of range for rank %d", d, len(shape))
		}
		if reduced[d] {
			return nil, fmt.Errorf("dim %d listed twice", d)
		}
		reduced[d] = true
	}

	p := &reducePlan{redCount: 1, outCount: 1}
	for i, size := range shape {
		if reduced[i] {
			p.redSizes = append(p.redSizes, size)
			p.redStrides = append(p.redStrides, strides[i])
			p.redCount *= size
		} else {
			p.keptSizes = append(p.keptSizes, size)
			p.keptStrides = append(p.keptStrides, strides[i])
			p.outCount *= size
		}
	}
	return p, nil
}

// baseOffset converts a flat output index into the input offset of the
// first reduced element.
func (p *reducePlan) baseOffset(outIx int) int {
	offset := 0
	for i := len(p.keptSizes) - 1; i >= 0; i-- {
		offset += (outIx % p.keptSizes[i]) * p.keptStrides[i]
		outIx /= p.keptSizes[i]
	}
	return offset
}

// mapReduce folds f(v) over every reduced element of one output index.
// The plan's odometer scratch is reused across output elements; callers
// iterate outputs sequentially.
func mapReduce[T float32 | float64](src []T, p *reducePlan, outIx int, f func(float64) float64) float64 {
	base := p.baseOffset(outIx)
	acc := 0.0

	// Odometer over the reduced dimensions.
	idx := p.idx
	for i := range idx {
		idx[i] = 0
	}
	for {
		offset := base
		for i, ix := range idx {
			offset += ix * p.redStrides[i]
		}
		acc += f(float64(src[offset]))

		carry := len(idx) - 1
		for ; carry >= 0; carry-- {
			idx[carry]++
			if idx[carry] < p.redSizes[carry] {
				break
			}
			idx[carry] = 0
		}
		if carry < 0 {
			return acc
		}
	}
}

// reduceOp folds every output element of a float reduction. half
// precision round-trips through float32 storage conversions.
type reduceOp func(p *reducePlan, outIx int) float64

func makeReduceSrc(ctx *kernel.Context, in *tensor.Tensor) (func(p *reducePlan, outIx int, f func(float64) float64) float64, error) {
	switch in.DType() {
	case tensor.Float32:
		src := elems[float32](in)
		return func(p *reducePlan, outIx int, f func(float64) float64) float64 {
			return mapReduce(src, p, outIx, f)
		}, nil
	case tensor.Float64:
		src := elems[float64](in)
		return func(p *reducePlan, outIx int, f func(float64) float64) float64 {
			return mapReduce(src, p, outIx, f)
		}, nil
	case tensor.Float16Bits:
		// Half precision pre-converts into temp scratch once per call.
		bits := elems[uint16](in)
		src, err := tempSlice[float32](ctx, len(bits))
		if err != nil {
			return nil, err
		}
		for i, b := range bits {
			src[i] = tensor.Half16ToFloat32(b)
		}
		return func(p *reducePlan, outIx int, f func(float64) float64) float64 {
			return mapReduce(src, p, outIx, f)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported dtype %s (float reductions only)", in.DType())
	}
}

func storeReduced(out *tensor.Tensor, compute reduceOp, p *reducePlan) error {
	if out.NumElements() != p.outCount {
		return fmt.Errorf("out tensor has %d elements, reduction produces %d", out.NumElements(), p.outCount)
	}
	switch out.DType() {
	case tensor.Float32:
		dst := elems[float32](out)
		for i := range dst {
			dst[i] = float32(compute(p, i))
		}
	case tensor.Float64:
		dst := elems[float64](out)
		for i := range dst {
			dst[i] = compute(p, i)
		}
	case tensor.Float16Bits:
		dst := elems[uint16](out)
		for i := range dst {
			dst[i] = tensor.Half16(float32(compute(p, i)))
		}
	default:
		return fmt.Errorf("unsupported out dtype %s (float reductions only)", out.DType())
	}
	return nil
}

func reduceArgs(op string, ctx *kernel.Context, args []*evalue.EValue) (in, out *tensor.Tensor, plan *reducePlan, err error) {
	in, err = tensorArg(args, 0)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	dims, err := dimListArg(args, 1)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	out, err = tensorArg(args, len(args)-1)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	plan, err = buildReducePlan(in.Shape(), dims)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	plan.idx, err = tempSlice[int](ctx, len(plan.redSizes))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	return in, out, plan, nil
}

// Sum reduces by summation over a dim list. Args: in, dims, out.
func Sum(ctx *kernel.Context, args []*evalue.EValue) error {
	in, out, plan, err := reduceArgs("sum", ctx, args)
	if err != nil {
		return err
	}
	src, err := makeReduceSrc(ctx, in)
	if err != nil {
		return fmt.Errorf("sum: %w", err)
	}
	return storeReduced(out, func(p *reducePlan, outIx int) float64 {
		return src(p, outIx, func(v float64) float64 { return v })
	}, plan)
}

// Mean reduces by arithmetic mean over a dim list. Args: in, dims, out.
func Mean(ctx *kernel.Context, args []*evalue.EValue) error {
	in, out, plan, err := reduceArgs("mean", ctx, args)
	if err != nil {
		return err
	}
	src, err := makeReduceSrc(ctx, in)
	if err != nil {
		return fmt.Errorf("mean: %w", err)
	}
	n := float64(plan.redCount)
	return storeReduced(out, func(p *reducePlan, outIx int) float64 {
		if n == 0 {
			return math.NaN()
		}
		return src(p, outIx, func(v float64) float64 { return v }) / n
	}, plan)
}

// Var computes variance over a dim list in two passes: mean, then mean
// of squared deviations. Args: in, dims, unbiased, out. An unbiased
// variance over fewer than two elements has a zero denominator and
// fills the output with NaN.
func Var(ctx *kernel.Context, args []*evalue.EValue) error {
	in, out, plan, err := reduceArgs("var", ctx, args)
	if err != nil {
		return err
	}
	unbiased, err := boolArg(args, 2)
	if err != nil {
		return fmt.Errorf("var: %w", err)
	}
	src, err := makeReduceSrc(ctx, in)
	if err != nil {
		return fmt.Errorf("var: %w", err)
	}

	num := plan.redCount
	denom := num
	if unbiased {
		denom = num - 1
	}

	return storeReduced(out, func(p *reducePlan, outIx int) float64 {
		if num == 0 || denom == 0 {
			return math.NaN()
		}
		mean := src(p, outIx, func(v float64) float64 { return v }) / float64(num)
		sq := src(p, outIx, func(v float64) float64 { return (v - mean) * (v - mean) })
		return sq / float64(denom)
	}, plan)
}
