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

package cluster

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/penny-vault/pv-cluster/dataframe"
	"github.com/penny-vault/pv-cluster/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// KMeans runs Lloyd's algorithm on each month of a panel
type KMeans struct {
	cfg Config
}

// New validates cfg and returns a clusterer
func New(cfg Config) (*KMeans, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &KMeans{cfg: cfg}, nil
}

// Assign clusters every month independently. Rows with a missing feature are
// not labeled and months with fewer rows than K are skipped.
func (k *KMeans) Assign(ctx context.Context, panel dataframe.Map) (Assignments, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "cluster.Assign")
	defer span.End()

	tickers := panel.Tickers()
	colIdx := make(map[string][]int, len(tickers))
	for _, ticker := range tickers {
		df := panel[ticker]
		idx := make([]int, len(k.cfg.Features))
		for ii, name := range k.cfg.Features {
			idx[ii] = df.ColIndex(name)
			if idx[ii] == -1 {
				return nil, ErrMissingFeature
			}
		}
		colIdx[ticker] = idx
	}

	res := make(Assignments)
	for _, dt := range panel.Dates() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		names, points := crossSection(panel, tickers, colIdx, dt)
		if len(points) < k.cfg.K {
			log.Warn().Time("Date", dt).Int("Rows", len(points)).Int("K", k.cfg.K).Msg("too few rows to cluster month; skipping")
			continue
		}

		labels, _, iterations := Fit(points, k.cfg)
		month := make(map[string]int, len(names))
		for ii, name := range names {
			month[name] = labels[ii]
		}
		res[dt] = month

		log.Debug().Time("Date", dt).Int("Rows", len(points)).Int("Iterations", iterations).Msg("clustered month")
	}

	span.SetAttributes(attribute.Int("Months", len(res)))
	return res, nil
}

func crossSection(panel dataframe.Map, tickers []string, colIdx map[string][]int, dt time.Time) ([]string, [][]float64) {
	names := make([]string, 0, len(tickers))
	points := make([][]float64, 0, len(tickers))
	for _, ticker := range tickers {
		df := panel[ticker]
		row := df.RowIndex(dt)
		if row == -1 {
			continue
		}

		point := make([]float64, len(colIdx[ticker]))
		complete := true
		for ii, col := range colIdx[ticker] {
			point[ii] = df.Vals[col][row]
			complete = complete && !math.IsNaN(point[ii])
		}
		if complete {
			names = append(names, ticker)
			points = append(points, point)
		}
	}
	return names, points
}

// Fit clusters points and returns each point's label, the final centroids and
// the number of iterations run. Iteration stops when labels no longer change,
// when the squared centroid movement falls to Tolerance times the mean
// per-feature variance, or after MaxIterations. An empty cluster is moved to
// the point farthest from its own centroid.
func Fit(points [][]float64, cfg Config) ([]int, [][]float64, int) {
	dim := len(points[0])
	centroids := initialCentroids(points, cfg)
	tol := cfg.Tolerance * meanVariance(points, dim)

	labels := make([]int, len(points))
	for idx := range labels {
		labels[idx] = -1
	}

	iterations := 0
	for iterations < cfg.MaxIterations {
		iterations++

		changed := assignLabels(points, centroids, labels)
		if !changed && iterations > 1 {
			break
		}

		next := updateCentroids(points, labels, centroids, cfg.K, dim)
		shift := 0.0
		for ii := range next {
			d := floats.Distance(next[ii], centroids[ii], 2)
			shift += d * d
		}
		centroids = next

		if shift <= tol {
			break
		}
	}

	assignLabels(points, centroids, labels)
	return labels, centroids, iterations
}

// assignLabels moves every point to its nearest centroid (lowest index wins
// ties) and reports whether any label changed
func assignLabels(points, centroids [][]float64, labels []int) bool {
	changed := false
	for idx, p := range points {
		best := 0
		bestDist := math.Inf(1)
		for cc, c := range centroids {
			if d := floats.Distance(p, c, 2); d < bestDist {
				best = cc
				bestDist = d
			}
		}
		if labels[idx] != best {
			labels[idx] = best
			changed = true
		}
	}
	return changed
}

func updateCentroids(points [][]float64, labels []int, prev [][]float64, k, dim int) [][]float64 {
	sums := make([][]float64, k)
	counts := make([]int, k)
	for ii := range sums {
		sums[ii] = make([]float64, dim)
	}
	for idx, p := range points {
		floats.Add(sums[labels[idx]], p)
		counts[labels[idx]]++
	}

	// candidates for empty clusters, farthest from their centroid first
	var far []int
	for cc := range sums {
		if counts[cc] > 0 {
			continue
		}

		if far == nil {
			far = make([]int, len(points))
			dist := make([]float64, len(points))
			for idx, p := range points {
				far[idx] = idx
				dist[idx] = floats.Distance(p, prev[labels[idx]], 2)
			}
			sort.SliceStable(far, func(i, j int) bool { return dist[far[i]] > dist[far[j]] })
		}

		for len(far) > 0 {
			pick := far[0]
			far = far[1:]
			old := labels[pick]
			if counts[old] < 2 {
				continue
			}
			floats.Sub(sums[old], points[pick])
			counts[old]--
			copy(sums[cc], points[pick])
			counts[cc] = 1
			labels[pick] = cc
			break
		}
	}

	for cc := range sums {
		if counts[cc] > 0 {
			floats.Scale(1/float64(counts[cc]), sums[cc])
		} else {
			copy(sums[cc], prev[cc])
		}
	}
	return sums
}

func initialCentroids(points [][]float64, cfg Config) [][]float64 {
	if cfg.InitialCentroids != nil {
		res := make([][]float64, len(cfg.InitialCentroids))
		for ii, c := range cfg.InitialCentroids {
			res[ii] = append([]float64{}, c...)
		}
		return res
	}
	return kmeansPlusPlus(points, cfg.K, rand.New(rand.NewSource(cfg.Seed)))
}

// kmeansPlusPlus picks each new centroid with probability proportional to its
// squared distance from the nearest chosen centroid
func kmeansPlusPlus(points [][]float64, k int, rnd *rand.Rand) [][]float64 {
	res := make([][]float64, 0, k)
	res = append(res, append([]float64{}, points[rnd.Intn(len(points))]...))

	dist := make([]float64, len(points))
	for len(res) < k {
		for idx, p := range points {
			dist[idx] = math.Inf(1)
			for _, c := range res {
				d := floats.Distance(p, c, 2)
				dist[idx] = math.Min(dist[idx], d*d)
			}
		}

		total := floats.Sum(dist)
		pick := 0
		if total > 0 {
			target := rnd.Float64() * total
			for idx, d := range dist {
				target -= d
				if target <= 0 {
					pick = idx
					break
				}
			}
		} else {
			pick = rnd.Intn(len(points))
		}
		res = append(res, append([]float64{}, points[pick]...))
	}
	return res
}

func meanVariance(points [][]float64, dim int) float64 {
	col := make([]float64, len(points))
	total := 0.0
	for jj := 0; jj < dim; jj++ {
		for ii, p := range points {
			col[ii] = p[jj]
		}
		_, v := stat.PopMeanVariance(col, nil)
		total += v
	}
	return total / float64(dim)
}
