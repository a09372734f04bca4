package calib

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// levenbergMarquardt minimizes the sum of squares of the m residuals written by f, starting at
// x0. The Jacobian is taken by central differences. It returns the best point and its cost; it
// never returns a point worse than x0.
func levenbergMarquardt(f func(dst, x []float64), x0 []float64, m, maxIterations int) ([]float64, float64) {
	const (
		minLambda = 1e-12
		maxLambda = 1e12
		tolerance = 1e-14
	)

	n := len(x0)
	x := append([]float64(nil), x0...)
	r := make([]float64, m)
	f(r, x)
	cost := floats.Dot(r, r)

	jac := mat.NewDense(m, n, nil)
	trial := make([]float64, n)
	rTrial := make([]float64, m)
	lambda := 1e-3

	for iter := 0; iter < maxIterations && cost > 0; iter++ {
		fd.Jacobian(jac, f, x, &fd.JacobianSettings{Formula: fd.Central})

		var jtj mat.SymDense
		jtj.SymOuterK(1, jac.T())
		var grad mat.VecDense
		grad.MulVec(jac.T(), mat.NewVecDense(m, r))

		improved := false
		for lambda <= maxLambda {
			a := mat.NewSymDense(n, nil)
			a.CopySym(&jtj)
			for i := 0; i < n; i++ {
				d := jtj.At(i, i)
				a.SetSym(i, i, d+lambda*math.Max(d, 1e-9))
			}

			var chol mat.Cholesky
			if !chol.Factorize(a) {
				lambda *= 10
				continue
			}
			var step mat.VecDense
			if err := chol.SolveVecTo(&step, &grad); err != nil {
				lambda *= 10
				continue
			}

			for i := range trial {
				trial[i] = x[i] - step.AtVec(i)
			}
			f(rTrial, trial)
			trialCost := floats.Dot(rTrial, rTrial)
			if trialCost < cost {
				decrease := cost - trialCost
				copy(x, trial)
				copy(r, rTrial)
				cost = trialCost
				lambda = math.Max(lambda/10, minLambda)
				improved = true
				if decrease <= tolerance*(cost+tolerance) || mat.Norm(&step, 2) <= tolerance*(floats.Norm(x, 2)+tolerance) {
					return x, cost
				}
				break
			}
			lambda *= 10
		}
		if !improved {
			break
		}
	}
	return x, cost
}
