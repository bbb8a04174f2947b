package forecast

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Regressor fits a weighted linear map from feature vectors to targets.
type Regressor interface {
	Fit(x *mat.Dense, y, weights []float64) error
	Predict(features []float64) float64
}

// Ridge is an L2-regularized least-squares regressor with an unpenalized
// intercept, solved in closed form.
type Ridge struct {
	Lambda float64

	coef []float64 // coef[0] is the intercept
}

// NewRidge returns a Ridge with the given regularization strength.
func NewRidge(lambda float64) *Ridge {
	return &Ridge{Lambda: lambda}
}

// Fit solves (XᵀWX + λI)β = XᵀWy over the intercept-augmented design
// matrix. Pass nil weights for an unweighted fit.
func (r *Ridge) Fit(x *mat.Dense, y, weights []float64) error {
	n, p := x.Dims()
	if n == 0 {
		return errors.New("empty design matrix")
	}
	if len(y) != n {
		return fmt.Errorf("design matrix has %d rows, target has %d", n, len(y))
	}
	if weights == nil {
		weights = make([]float64, n)
		for i := range weights {
			weights[i] = 1
		}
	}
	if len(weights) != n {
		return fmt.Errorf("design matrix has %d rows, weights have %d", n, len(weights))
	}

	// Augment with a leading ones column for the intercept.
	cols := p + 1
	xa := mat.NewDense(n, cols, nil)
	for i := 0; i < n; i++ {
		xa.Set(i, 0, 1)
		for j := 0; j < p; j++ {
			xa.Set(i, j+1, x.At(i, j))
		}
	}

	a := mat.NewDense(cols, cols, nil)
	b := mat.NewVecDense(cols, nil)
	for i := 0; i < n; i++ {
		w := weights[i]
		row := xa.RawRowView(i)
		for j := 0; j < cols; j++ {
			b.SetVec(j, b.AtVec(j)+w*row[j]*y[i])
			for k := 0; k < cols; k++ {
				a.Set(j, k, a.At(j, k)+w*row[j]*row[k])
			}
		}
	}
	for j := 1; j < cols; j++ {
		a.Set(j, j, a.At(j, j)+r.Lambda)
	}

	var beta mat.VecDense
	if err := beta.SolveVec(a, b); err != nil {
		return fmt.Errorf("solve normal equations: %w", err)
	}

	r.coef = make([]float64, cols)
	for j := 0; j < cols; j++ {
		r.coef[j] = beta.AtVec(j)
	}
	return nil
}

// Predict evaluates the fitted model on one feature vector. It panics if
// called before Fit or with a mismatched feature count.
func (r *Ridge) Predict(features []float64) float64 {
	if len(features) != len(r.coef)-1 {
		panic(fmt.Sprintf("regressor fitted with %d features, got %d", len(r.coef)-1, len(features)))
	}
	out := r.coef[0]
	for i, f := range features {
		out += r.coef[i+1] * f
	}
	return out
}
