package oracle

import "math"

// Abramowitz-Stegun 7.1.26 coefficients.
const (
	cdfA1 = 0.254829592
	cdfA2 = -0.284496736
	cdfA3 = 1.421413741
	cdfA4 = -1.453152027
	cdfA5 = 1.061405429
	cdfP  = 0.3275911
)

// NormalCDF approximates the standard normal cumulative distribution at x.
func NormalCDF(x float64) float64 {
	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	x = math.Abs(x) / math.Sqrt2

	t := 1.0 / (1.0 + cdfP*x)
	y := 1.0 - (((((cdfA5*t+cdfA4)*t)+cdfA3)*t+cdfA2)*t+cdfA1)*t*math.Exp(-x*x)

	return 0.5 * (1.0 + sign*y)
}
