// Package portfolio sizes and trims directional positions against a
// variance-covariance Value-at-Risk budget.
package portfolio

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrShape is returned when volatilities, correlations and weights disagree in size.
var ErrShape = errors.New("portfolio: dimension mismatch")

// Holding is one asset's position and mark.
type Holding struct {
	Ticker   string
	Position int
	Last     float64
}

// Value is the marked value of the holding.
func (h Holding) Value() float64 { return float64(h.Position) * h.Last }

// Covariance builds diag(vols)·corr·diag(vols).
func Covariance(vols []float64, corr [][]float64) (*mat.Dense, error) {
	n := len(vols)
	if n == 0 || len(corr) != n {
		return nil, fmt.Errorf("%w: %d volatilities, %d correlation rows", ErrShape, n, len(corr))
	}
	c := mat.NewDense(n, n, nil)
	for i, row := range corr {
		if len(row) != n {
			return nil, fmt.Errorf("%w: correlation row %d has %d columns", ErrShape, i, len(row))
		}
		c.SetRow(i, row)
	}
	d := mat.NewDiagDense(n, append([]float64(nil), vols...))
	var cov mat.Dense
	cov.Product(d, c, d)
	return &cov, nil
}

// VaR is z(confidence)·sqrt(wᵀ·Σ·w)·value.
func VaR(vols []float64, corr [][]float64, weights []float64, value, confidence float64) (float64, error) {
	if len(weights) != len(vols) {
		return 0, fmt.Errorf("%w: %d weights for %d volatilities", ErrShape, len(weights), len(vols))
	}
	if confidence <= 0 || confidence >= 1 {
		return 0, fmt.Errorf("portfolio: confidence %v outside (0, 1)", confidence)
	}
	cov, err := Covariance(vols, corr)
	if err != nil {
		return 0, err
	}
	w := mat.NewVecDense(len(weights), append([]float64(nil), weights...))
	variance := mat.Inner(w, cov, w)
	if variance <= 0 {
		return 0, nil
	}
	z := distuv.UnitNormal.Quantile(confidence)
	return z * math.Sqrt(variance) * value, nil
}

// Weights returns each holding's share of total marked value, in input order,
// and the total. A zero total yields all-zero weights.
func Weights(holdings []Holding) ([]float64, float64) {
	weights := make([]float64, len(holdings))
	total := 0.0
	for _, h := range holdings {
		total += h.Value()
	}
	if total == 0 {
		return weights, 0
	}
	for i, h := range holdings {
		weights[i] = h.Value() / total
	}
	return weights, total
}

// UnitsForBudget is how many units of an asset keep its standalone VaR
// within budget: budget / (vol · z · price), truncated.
func UnitsForBudget(price, vol, budget, z float64) int {
	if price <= 0 || vol <= 0 || z <= 0 || budget <= 0 {
		return 0
	}
	return int(budget / (vol * z * price))
}
