// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package portfolio

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/creasty/defaults"
	"github.com/penny-vault/pv-cluster/dataframe"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// FailureReason classifies why max-Sharpe optimization failed
type FailureReason int

const (
	InsufficientData FailureReason = iota + 1
	InfeasibleBounds
	NoPositiveExcessReturn
	SolverDidNotConverge
	DegenerateCovariance
)

func (r FailureReason) String() string {
	switch r {
	case InsufficientData:
		return "insufficient data"
	case InfeasibleBounds:
		return "infeasible bounds"
	case NoPositiveExcessReturn:
		return "no positive excess return"
	case SolverDidNotConverge:
		return "solver did not converge"
	case DegenerateCovariance:
		return "degenerate covariance"
	default:
		return "unknown"
	}
}

var (
	errTooFewReturns   = errors.New("fewer than two return observations")
	errMissingMoments  = errors.New("expected return or covariance is not finite")
	errBounds          = errors.New("weight bounds cannot sum to one")
	errNotPSD          = errors.New("covariance matrix is not positive semi-definite")
	errZeroVariance    = errors.New("portfolio variance is zero")
	errBelowRiskFree   = errors.New("no feasible portfolio beats the risk-free rate")
	errIterationsSpent = errors.New("iteration limit reached")
)

// SolveError is returned by MaxSharpe when no optimal weights are found
type SolveError struct {
	Reason FailureReason
	Err    error
}

func (e *SolveError) Error() string {
	return fmt.Sprintf("max sharpe optimization failed (%s): %v", e.Reason, e.Err)
}

func (e *SolveError) Unwrap() error {
	return e.Err
}

// OptimizerSettings configures weight optimization for each rebalance
type OptimizerSettings struct {
	MaxWeight      float64 `mapstructure:"max_weight" default:"0.1" validate:"gt=0,lte=1"`
	RiskFreeRate   float64 `mapstructure:"risk_free_rate" default:"0.02"`
	LookbackMonths int     `mapstructure:"lookback_months" default:"12" validate:"min=1"`
	TradingDays    int     `mapstructure:"trading_days" default:"252" validate:"min=1"`
	WeightCutoff   float64 `mapstructure:"weight_cutoff" default:"0.0001" validate:"gte=0"`
	WeightDecimals int     `mapstructure:"weight_decimals" default:"5" validate:"min=0"`
	MaxIterations  int     `mapstructure:"max_iterations" default:"10000" validate:"min=1"`
	Tolerance      float64 `mapstructure:"tolerance" default:"1e-10" validate:"gt=0"`
}

// DefaultOptimizerSettings caps weights at 10% with a 2% risk-free rate over
// a 12 month lookback
func DefaultOptimizerSettings() OptimizerSettings {
	var s OptimizerSettings
	if err := defaults.Set(&s); err != nil {
		log.Panic().Err(err).Msg("invalid optimizer defaults")
	}
	return s
}

// Weights maps ticker to portfolio weight
type Weights map[string]float64

// Tickers returns the weighted tickers in sorted order
func (w Weights) Tickers() []string {
	res := make([]string, 0, len(w))
	for k := range w {
		res = append(res, k)
	}
	sort.Strings(res)
	return res
}

// LowerBound is 1/(2n) rounded to three decimals
func LowerBound(n int) float64 {
	return math.Round(1/float64(2*n)*1000) / 1000
}

// EqualWeights gives every ticker 1/n
func EqualWeights(tickers []string) Weights {
	w := make(Weights, len(tickers))
	for _, t := range tickers {
		w[t] = 1 / float64(len(tickers))
	}
	return w
}

// returnsFromPrices forward fills prices, takes simple daily returns and
// drops rows where every ticker is missing
func returnsFromPrices(prices *dataframe.DataFrame) *dataframe.DataFrame {
	rets := prices.FFill().PctChange(1)
	return rets.Filter(func(row int) bool {
		for _, col := range rets.Vals {
			if !math.IsNaN(col[row]) {
				return true
			}
		}
		return false
	})
}

// ExpectedReturns is the compounded mean historical return of every column,
// annualized over tradingDays: prod(1+r)^(tradingDays/count) - 1
func ExpectedReturns(prices *dataframe.DataFrame, tradingDays int) []float64 {
	rets := returnsFromPrices(prices)
	mu := make([]float64, len(rets.Vals))
	for idx, col := range rets.Vals {
		growth := 1.0
		count := 0
		for _, r := range col {
			if !math.IsNaN(r) {
				growth *= 1 + r
				count++
			}
		}
		if count == 0 {
			mu[idx] = math.NaN()
			continue
		}
		mu[idx] = math.Pow(growth, float64(tradingDays)/float64(count)) - 1
	}
	return mu
}

// SampleCovariance is the annualized covariance of daily returns. Each pair
// uses the rows where both columns are present, with n-1 normalization.
func SampleCovariance(prices *dataframe.DataFrame, tradingDays int) *mat.SymDense {
	rets := returnsFromPrices(prices)
	n := len(rets.Vals)
	cov := mat.NewSymDense(n, nil)
	for ii := 0; ii < n; ii++ {
		for jj := ii; jj < n; jj++ {
			cov.SetSym(ii, jj, pairCovariance(rets.Vals[ii], rets.Vals[jj])*float64(tradingDays))
		}
	}
	return cov
}

func pairCovariance(x, y []float64) float64 {
	var xs, ys []float64
	for idx := range x {
		if !math.IsNaN(x[idx]) && !math.IsNaN(y[idx]) {
			xs = append(xs, x[idx])
			ys = append(ys, y[idx])
		}
	}
	if len(xs) < 2 {
		return math.NaN()
	}
	mx := floats.Sum(xs) / float64(len(xs))
	my := floats.Sum(ys) / float64(len(ys))
	total := 0.0
	for idx := range xs {
		total += (xs[idx] - mx) * (ys[idx] - my)
	}
	return total / float64(len(xs)-1)
}

// MaxSharpe finds long-only weights in [lower, upper] summing to one that
// maximize (w·mu - riskFree) / sqrt(w'Σw) over the price columns, then cleans
// them. Failures are reported as *SolveError.
func MaxSharpe(prices *dataframe.DataFrame, lower, upper float64, s OptimizerSettings) (Weights, error) {
	n := prices.ColCount()
	if n == 0 || prices.Len() < 3 {
		return nil, &SolveError{Reason: InsufficientData, Err: errTooFewReturns}
	}

	if float64(n)*lower > 1+1e-12 || float64(n)*upper < 1-1e-12 || lower > upper {
		return nil, &SolveError{Reason: InfeasibleBounds, Err: fmt.Errorf("%w: n=%d bounds=[%g, %g]", errBounds, n, lower, upper)}
	}

	mu := ExpectedReturns(prices, s.TradingDays)
	cov := SampleCovariance(prices, s.TradingDays)
	for ii := 0; ii < n; ii++ {
		if math.IsNaN(mu[ii]) || math.IsInf(mu[ii], 0) {
			return nil, &SolveError{Reason: InsufficientData, Err: errMissingMoments}
		}
		for jj := 0; jj < n; jj++ {
			if v := cov.At(ii, jj); math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &SolveError{Reason: InsufficientData, Err: errMissingMoments}
			}
		}
	}

	var eig mat.EigenSym
	if !eig.Factorize(cov, false) {
		return nil, &SolveError{Reason: DegenerateCovariance, Err: errNotPSD}
	}
	values := eig.Values(nil)
	if len(values) > 0 && values[0] < -1e-10*math.Max(1, math.Abs(values[len(values)-1])) {
		return nil, &SolveError{Reason: DegenerateCovariance, Err: errNotPSD}
	}

	raw, err := solveMaxSharpe(mu, cov, lower, upper, s)
	if err != nil {
		return nil, err
	}

	cleaned := CleanWeights(raw, s.WeightCutoff, s.WeightDecimals)
	w := make(Weights, n)
	for idx, ticker := range prices.ColNames {
		w[ticker] = cleaned[idx]
	}
	return w, nil
}

// CleanWeights zeroes weights smaller than cutoff in magnitude and rounds the
// rest to the given number of decimals
func CleanWeights(w []float64, cutoff float64, decimals int) []float64 {
	scale := math.Pow(10, float64(decimals))
	res := make([]float64, len(w))
	for idx, v := range w {
		if math.Abs(v) < cutoff {
			continue
		}
		res[idx] = math.Round(v*scale) / scale
	}
	return res
}

// solveMaxSharpe starts from the highest expected return portfolio, lets a
// quasi-Newton search over the capped simplex projection do the bulk of the
// work and finishes with projected gradient ascent until the weights stop
// moving
func solveMaxSharpe(mu []float64, cov *mat.SymDense, lower, upper float64, s OptimizerSettings) ([]float64, error) {
	n := len(mu)
	w := maxReturnWeights(mu, lower, upper)
	if floats.Dot(w, mu)-s.RiskFreeRate <= 0 {
		return nil, &SolveError{Reason: NoPositiveExcessReturn, Err: errBelowRiskFree}
	}

	sharpe, sigma := sharpeRatio(w, mu, cov, s.RiskFreeRate)
	if sigma <= 0 {
		return nil, &SolveError{Reason: DegenerateCovariance, Err: errZeroVariance}
	}

	// the bounds leave a single feasible point
	if float64(n)*upper <= 1+1e-12 || float64(n)*lower >= 1-1e-12 {
		return w, nil
	}

	if x, ok := minimizeNegSharpe(w, mu, cov, lower, upper, s); ok {
		if candSharpe, candSigma := sharpeRatio(x, mu, cov, s.RiskFreeRate); candSigma > 0 && candSharpe > sharpe {
			w, sharpe = x, candSharpe
		}
	}

	return ascendSharpe(w, sharpe, mu, cov, lower, upper, s)
}

// minimizeNegSharpe runs BFGS on -S(P(x)), where P is the capped simplex
// projection, and retries with Nelder-Mead when BFGS fails. The gradient is
// the Sharpe gradient pulled back through P: coordinates clipped to a bound
// do not move and the free ones move with zero sum.
func minimizeNegSharpe(start, mu []float64, cov *mat.SymDense, lower, upper float64, s OptimizerSettings) ([]float64, bool) {
	n := len(start)
	g := make([]float64, n)
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			sharpe, sigma := sharpeRatio(projectCappedSimplex(x, lower, upper), mu, cov, s.RiskFreeRate)
			if sigma <= 0 {
				return math.Inf(1)
			}
			return -sharpe
		},
		Grad: func(grad, x []float64) {
			w := projectCappedSimplex(x, lower, upper)
			sharpeGradient(w, mu, cov, s.RiskFreeRate, g)

			mean := 0.0
			nFree := 0
			for idx, v := range w {
				if v > lower && v < upper {
					mean += g[idx]
					nFree++
				}
			}
			if nFree > 0 {
				mean /= float64(nFree)
			}
			for idx, v := range w {
				if v > lower && v < upper {
					grad[idx] = mean - g[idx]
				} else {
					grad[idx] = 0
				}
			}
		},
	}

	settings := &optimize.Settings{FuncEvaluations: s.MaxIterations}
	result, err := optimize.Minimize(problem, start, settings, &optimize.BFGS{})
	if err != nil {
		log.Debug().Err(err).Msg("bfgs failed; retrying with nelder-mead")
		result, err = optimize.Minimize(problem, start, settings, &optimize.NelderMead{})
	}
	if result == nil || math.IsInf(result.F, 0) || math.IsNaN(result.F) {
		log.Debug().Err(err).Msg("quasi-newton search found no usable point")
		return nil, false
	}

	return projectCappedSimplex(result.X, lower, upper), true
}

// ascendSharpe runs projected gradient ascent with Armijo backtracking from a
// feasible w
func ascendSharpe(w []float64, sharpe float64, mu []float64, cov *mat.SymDense, lower, upper float64, s OptimizerSettings) ([]float64, error) {
	n := len(w)
	grad := make([]float64, n)
	cand := make([]float64, n)
	step := 1.0
	for iter := 0; iter < s.MaxIterations; iter++ {
		sharpeGradient(w, mu, cov, s.RiskFreeRate, grad)

		accepted := false
		var candSharpe float64
		for step > 1e-14 {
			for idx := range cand {
				cand[idx] = w[idx] + step*grad[idx]
			}
			copy(cand, projectCappedSimplex(cand, lower, upper))

			var candSigma float64
			candSharpe, candSigma = sharpeRatio(cand, mu, cov, s.RiskFreeRate)
			if candSigma > 0 {
				ascent := 0.0
				for idx := range cand {
					ascent += grad[idx] * (cand[idx] - w[idx])
				}
				if candSharpe >= sharpe+1e-4*ascent {
					accepted = true
					break
				}
			}
			step /= 2
		}

		if !accepted {
			// no ascent direction left inside the feasible set
			return w, nil
		}

		moved := 0.0
		for idx := range cand {
			moved = math.Max(moved, math.Abs(cand[idx]-w[idx]))
		}
		copy(w, cand)
		sharpe = candSharpe
		if moved < s.Tolerance {
			return w, nil
		}
		step = math.Min(step*2, 1e3)
	}

	return nil, &SolveError{Reason: SolverDidNotConverge, Err: errIterationsSpent}
}

func sharpeRatio(w, mu []float64, cov *mat.SymDense, rf float64) (float64, float64) {
	wv := mat.NewVecDense(len(w), w)
	variance := mat.Inner(wv, cov, wv)
	if variance <= 0 {
		return math.Inf(-1), 0
	}
	sigma := math.Sqrt(variance)
	return (floats.Dot(w, mu) - rf) / sigma, sigma
}

// sharpeGradient stores ∇S = mu/σ - e·Σw/σ³ in grad, with e the excess return
func sharpeGradient(w, mu []float64, cov *mat.SymDense, rf float64, grad []float64) {
	wv := mat.NewVecDense(len(w), w)
	var sw mat.VecDense
	sw.MulVec(cov, wv)
	variance := mat.Dot(wv, &sw)
	sigma := math.Sqrt(variance)
	excess := floats.Dot(w, mu) - rf
	for idx := range grad {
		grad[idx] = mu[idx]/sigma - excess*sw.AtVec(idx)/(variance*sigma)
	}
}

// maxReturnWeights puts every asset at lower and then fills the highest
// expected returns up to upper until the weights sum to one
func maxReturnWeights(mu []float64, lower, upper float64) []float64 {
	n := len(mu)
	w := make([]float64, n)
	for idx := range w {
		w[idx] = lower
	}

	order := make([]int, n)
	for idx := range order {
		order[idx] = idx
	}
	sort.SliceStable(order, func(i, j int) bool { return mu[order[i]] > mu[order[j]] })

	remaining := 1 - float64(n)*lower
	for _, idx := range order {
		if remaining <= 0 {
			break
		}
		add := math.Min(upper-lower, remaining)
		w[idx] += add
		remaining -= add
	}
	return w
}

// projectCappedSimplex returns the closest point to v with every coordinate in
// [lower, upper] summing to one. That point is clip(v - τ) and the clipped sum
// is piecewise linear and non-increasing in τ with breakpoints at v_i - upper
// and v_i - lower, so τ is found by walking the sorted breakpoints and
// interpolating inside the segment that crosses one. Bounds that admit a
// single feasible point return it.
func projectCappedSimplex(v []float64, lower, upper float64) []float64 {
	n := len(v)
	res := make([]float64, n)
	if float64(n)*upper <= 1+1e-12 || float64(n)*lower >= 1-1e-12 {
		bound := upper
		if float64(n)*lower >= 1-1e-12 {
			bound = lower
		}
		for idx := range res {
			res[idx] = bound
		}
		return res
	}

	clipSum := func(tau float64) float64 {
		total := 0.0
		for _, x := range v {
			total += math.Min(upper, math.Max(lower, x-tau))
		}
		return total
	}

	breaks := make([]float64, 0, 2*n)
	for _, x := range v {
		breaks = append(breaks, x-upper, x-lower)
	}
	sort.Float64s(breaks)

	// the sum is n*upper > 1 at the first breakpoint and n*lower < 1 at the last
	tau := breaks[len(breaks)-1]
	prevTau, prevSum := breaks[0], clipSum(breaks[0])
	for _, b := range breaks[1:] {
		sum := clipSum(b)
		if sum <= 1 {
			tau = prevTau + (prevSum-1)*(b-prevTau)/(prevSum-sum)
			break
		}
		prevTau, prevSum = b, sum
	}

	for idx, x := range v {
		res[idx] = math.Min(upper, math.Max(lower, x-tau))
	}
	return res
}
