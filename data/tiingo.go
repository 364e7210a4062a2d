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
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/penny-vault/pv-cluster/common"
	"github.com/penny-vault/pv-cluster/dataframe"
	"github.com/penny-vault/pv-cluster/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const tiingoAPI = "https://api.tiingo.com"

// Tiingo downloads daily prices from the Tiingo end-of-day API
type Tiingo struct {
	apikey      string
	baseURL     string
	client      *http.Client
	limiter     *rate.Limiter
	concurrency int
}

type TiingoOption func(*Tiingo)

type tiingoJSONResponse struct {
	Date        string  `json:"date"`
	Close       float64 `json:"close"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Open        float64 `json:"open"`
	Volume      float64 `json:"volume"`
	AdjClose    float64 `json:"adjClose"`
	AdjHigh     float64 `json:"adjHigh"`
	AdjLow      float64 `json:"adjLow"`
	AdjOpen     float64 `json:"adjOpen"`
	AdjVolume   float64 `json:"adjVolume"`
	DivCash     float64 `json:"divCash"`
	SplitFactor float64 `json:"splitFactor"`
}

// WithTiingoURL overrides the API base URL
func WithTiingoURL(url string) TiingoOption {
	return func(t *Tiingo) {
		t.baseURL = strings.TrimRight(url, "/")
	}
}

// WithRateLimit caps the number of requests per second; burst is the number
// of requests that may be sent back to back
func WithRateLimit(perSecond float64, burst int) TiingoOption {
	return func(t *Tiingo) {
		if perSecond <= 0 {
			t.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithConcurrency sets the number of tickers downloaded at once
func WithConcurrency(n int) TiingoOption {
	return func(t *Tiingo) {
		if n > 0 {
			t.concurrency = n
		}
	}
}

// NewTiingo Create a new Tiingo data provider
func NewTiingo(key string, opts ...TiingoOption) *Tiingo {
	t := &Tiingo{
		apikey:      key,
		baseURL:     tiingoAPI,
		client:      &http.Client{Timeout: 60 * time.Second},
		limiter:     rate.NewLimiter(rate.Inf, 0),
		concurrency: 10,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// FetchPrices downloads every ticker concurrently. Tickers that fail or have no
// data are logged and left out; an error is returned only when the context is
// cancelled or every ticker failed for a reason other than missing data.
func (t *Tiingo) FetchPrices(ctx context.Context, tickers []string, begin, end time.Time) (dataframe.Map, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "tiingo.FetchPrices")
	defer span.End()

	subLog := log.With().Int("NumTickers", len(tickers)).Time("Begin", begin).Time("End", end).Logger()

	if end.Before(begin) {
		span.SetStatus(codes.Error, ErrBeginAfterEnd.Error())
		return nil, ErrBeginAfterEnd
	}

	symbols := append([]string{}, tickers...)
	common.ArrToUpper(symbols)
	symbols = common.UniqueSorted(symbols)
	if len(symbols) == 0 {
		return nil, ErrNoTickers
	}

	span.SetAttributes(attribute.Int("NumTickers", len(symbols)))

	var (
		mu       sync.Mutex
		firstErr error
		failed   int
	)

	res := make(dataframe.Map, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)

	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			if err := t.limiter.Wait(gctx); err != nil {
				return err
			}

			df, err := t.loadDataForPeriod(gctx, symbol, begin, end)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				res[symbol] = df
			case errors.Is(err, ErrDataUnavailable):
				subLog.Warn().Str("Ticker", symbol).Msg("no price data for ticker")
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				subLog.Warn().Err(err).Str("Ticker", symbol).Msg("cannot download ticker data")
				failed++
				if firstErr == nil {
					firstErr = err
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "price download cancelled")
		return nil, err
	}

	if failed == len(symbols) {
		span.RecordError(firstErr)
		span.SetStatus(codes.Error, "every ticker failed")
		return nil, firstErr
	}

	subLog.Info().Int("Loaded", len(res)).Int("Failed", failed).Msg("downloaded prices from tiingo")
	return res, nil
}

func (t *Tiingo) loadDataForPeriod(ctx context.Context, symbol string, begin, end time.Time) (*dataframe.DataFrame, error) {
	_, span := otel.Tracer(opentelemetry.Name).Start(ctx, "tiingo.loadDataForPeriod")
	defer span.End()

	subLog := log.With().Str("Symbol", symbol).Time("Begin", begin).Time("End", end).Logger()

	// the cache key leaves out the token
	endpoint := fmt.Sprintf("%s/tiingo/daily/%s/prices?startDate=%s&endDate=%s", t.baseURL, symbol, begin.Format("2006-01-02"), end.Format("2006-01-02"))
	span.SetAttributes(attribute.String("Url", endpoint), attribute.String("Symbol", symbol))
	key := common.CacheKey("tiingo", endpoint)

	body, err := common.CacheGet(ctx, key)
	cached := err == nil
	if !cached {
		body, err = t.download(ctx, endpoint+"&token="+t.apikey)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "tiingo request failed")
			return nil, err
		}
		if err := common.CacheSet(ctx, key, body); err != nil {
			subLog.Warn().Err(err).Msg("could not cache tiingo response")
		}
	}

	subLog.Debug().Bool("Cached", cached).Msg("load data from tiingo")

	quotes := make([]tiingoJSONResponse, 0, 252)
	if err := json.Unmarshal(body, &quotes); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not unmarshal json")
		subLog.Error().Err(err).Msg("could not unmarshal json")
		return nil, err
	}

	if len(quotes) == 0 {
		return nil, ErrDataUnavailable
	}

	df := newPriceFrame(len(quotes))
	for _, quote := range quotes {
		dtParts := strings.Split(quote.Date, "T")
		dt, err := time.Parse("2006-01-02", dtParts[0])
		if err != nil {
			subLog.Error().Err(err).Str("DateStr", quote.Date).Msg("cannot parse date string")
			return nil, err
		}

		if !appendPriceRow(df, common.Date(dt), quote.Open, quote.High, quote.Low, quote.Close, quote.AdjClose, quote.Volume) {
			subLog.Debug().Time("Date", dt).Msg("skipping out of order quote")
		}
	}

	return df, nil
}

func (t *Tiingo) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrDataUnavailable
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: %d", ErrHTTPStatus, resp.StatusCode)
	}

	return body, nil
}
