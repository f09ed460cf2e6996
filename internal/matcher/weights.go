package matcher

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidWeights = errors.New("invalid match weights")

// Weights maps every factor to its share of the overall score.
type Weights map[Factor]float64

func DefaultWeights() Weights {
	return Weights{
		FactorMPN:          0.40,
		FactorValue:        0.25,
		FactorFootprint:    0.20,
		FactorManufacturer: 0.10,
		FactorDescription:  0.05,
	}
}

const weightSumEpsilon = 1e-3

// Validate requires a non-negative weight for every factor, summing to 1.
func (w Weights) Validate() error {
	sum := 0.0
	for _, f := range Factors {
		v, ok := w[f]
		if !ok {
			return fmt.Errorf("%w: missing %s", ErrInvalidWeights, f)
		}
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s=%v", ErrInvalidWeights, f, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > weightSumEpsilon {
		return fmt.Errorf("%w: sum is %.4f", ErrInvalidWeights, sum)
	}
	return nil
}

func (w Weights) clone() Weights {
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}
