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

package data

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/penny-vault/pv-cluster/common"
	"github.com/penny-vault/pv-cluster/dataframe"
	"github.com/penny-vault/pv-cluster/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const famaFrenchURL = "https://mba.tuck.dartmouth.edu/pages/faculty/ken.french/ftp/F-F_Research_Data_5_Factors_2x3_CSV.zip"

// FamaFrench loads the monthly 5 factor (2x3) research returns
type FamaFrench struct {
	url    string
	client *http.Client
}

// NewFamaFrench Create a new Fama-French factor provider; an empty url uses
// the Kenneth French data library
func NewFamaFrench(url string) *FamaFrench {
	if url == "" {
		url = famaFrenchURL
	}
	return &FamaFrench{
		url:    url,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (f *FamaFrench) FetchFactorReturns(ctx context.Context, begin time.Time) (*dataframe.DataFrame, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "famafrench.FetchFactorReturns")
	defer span.End()

	span.SetAttributes(attribute.String("Url", f.url))
	subLog := log.With().Str("Url", f.url).Time("Begin", begin).Logger()

	key := common.CacheKey("famafrench", f.url)
	body, err := common.CacheGet(ctx, key)
	if err != nil {
		body, err = f.download(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "factor download failed")
			subLog.Error().Err(err).Msg("could not download factor returns")
			return nil, err
		}
		if err := common.CacheSet(ctx, key, body); err != nil {
			subLog.Warn().Err(err).Msg("could not cache factor returns")
		}
	}

	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid zip archive")
		return nil, fmt.Errorf("%w: %v", ErrFactorFormat, err)
	}

	for _, file := range zr.File {
		if !strings.HasSuffix(strings.ToLower(file.Name), ".csv") {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()

		df, err := ParseFamaFrench(rc, begin)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "could not parse factor file")
			return nil, err
		}

		subLog.Info().Int("Months", df.Len()).Msg("loaded factor returns")
		return df, nil
	}

	span.SetStatus(codes.Error, "no csv in archive")
	return nil, fmt.Errorf("%w: archive has no csv file", ErrFactorFormat)
}

func (f *FamaFrench) download(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: %d", ErrHTTPStatus, resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// ParseFamaFrench reads the monthly block of a Kenneth French factor file.
// The block starts at the first header row naming Mkt-RF and ends at the
// first row whose key is not a YYYYMM month (the annual block follows it).
// Percent values are converted to decimals and dated at calendar month end;
// months ending before begin are left out.
func ParseFamaFrench(r io.Reader, begin time.Time) (*dataframe.DataFrame, error) {
	df := dataframe.New([]time.Time{}, FactorColumns...)
	for idx := range df.Vals {
		df.Vals[idx] = []float64{}
	}

	var colIdx []int
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		fields := strings.Split(line, ",")
		for idx := range fields {
			fields[idx] = strings.TrimSpace(fields[idx])
		}

		if colIdx == nil {
			if len(fields) > 1 && fields[0] == "" && strings.Contains(line, FactorMarket) {
				colIdx = make([]int, len(FactorColumns))
				for ii, name := range FactorColumns {
					colIdx[ii] = -1
					for jj, field := range fields {
						if field == name {
							colIdx[ii] = jj
						}
					}
					if colIdx[ii] == -1 {
						return nil, fmt.Errorf("%w: missing column %s", ErrFactorFormat, name)
					}
				}
			}
			continue
		}

		if len(fields[0]) != 6 {
			break
		}
		month, err := time.Parse("200601", fields[0])
		if err != nil {
			break
		}

		date := common.MonthEnd(month)
		if date.Before(begin) {
			continue
		}

		row := make([]float64, len(FactorColumns))
		for ii, jj := range colIdx {
			if jj >= len(fields) {
				return nil, fmt.Errorf("%w: short row %s", ErrFactorFormat, fields[0])
			}
			v, err := strconv.ParseFloat(fields[jj], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrFactorFormat, err)
			}
			row[ii] = v / 100.0
		}
		df.InsertRow(date, row...)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if colIdx == nil {
		return nil, fmt.Errorf("%w: header not found", ErrFactorFormat)
	}

	return df, nil
}
