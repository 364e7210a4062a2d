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

package data_test

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/jarcoal/httpmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/penny-vault/pv-cluster/data"
)

const factorCSV = `This file was created by CMPT_ME_BEME_OP_INV_RETS using the 202208 CRSP database.
The 1-month TBill return is from Ibbotson and Associates Inc.

,Mkt-RF,SMB,HML,RMW,CMA,RF
202112,   3.10,  -1.02,   3.23,   4.79,   4.36,   0.01
202201,  -6.25,  -0.62,  12.79,   0.76,   7.61,   0.00
202202,  -2.29,   2.19,   3.12,  -0.22,   2.86,   0.00

 Annual Factors: January-December 
,Mkt-RF,SMB,HML,RMW,CMA,RF
2021,  23.56,  -3.91,  25.41,  17.93,   3.33,   0.04
`

func factorZip(content string) []byte {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	w, err := zw.Create("F-F_Research_Data_5_Factors_2x3.CSV")
	Expect(err).To(BeNil())
	_, err = w.Write([]byte(content))
	Expect(err).To(BeNil())
	Expect(zw.Close()).To(BeNil())
	return buf.Bytes()
}

var _ = Describe("Fama-French factors", func() {
	Context("when parsing the factor file", func() {
		It("reads only the monthly block as decimals at month end", func() {
			df, err := data.ParseFamaFrench(strings.NewReader(factorCSV), time.Time{})
			Expect(err).To(BeNil())
			Expect(df.ColNames).To(Equal(data.FactorColumns))
			Expect(df.Len()).To(Equal(3))
			Expect(df.Dates[0]).To(Equal(time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC)))
			Expect(df.Dates[2]).To(Equal(time.Date(2022, 2, 28, 0, 0, 0, 0, time.UTC)))
			Expect(df.Column(data.FactorMarket)[1]).To(BeNumerically("~", -0.0625, 1e-12))
			Expect(df.Column(data.FactorInvestment)[0]).To(BeNumerically("~", 0.0436, 1e-12))
		})

		It("drops months before begin", func() {
			df, err := data.ParseFamaFrench(strings.NewReader(factorCSV), time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC))
			Expect(err).To(BeNil())
			Expect(df.Len()).To(Equal(2))
			Expect(df.Start()).To(Equal(time.Date(2022, 1, 31, 0, 0, 0, 0, time.UTC)))
		})

		It("fails without a header", func() {
			_, err := data.ParseFamaFrench(strings.NewReader("202201, 1.0, 2.0\n"), time.Time{})
			Expect(err).To(MatchError(data.ErrFactorFormat))
		})

		It("fails when a factor column is missing", func() {
			_, err := data.ParseFamaFrench(strings.NewReader(",Mkt-RF,SMB,HML,RF\n202201,1,2,3,0\n"), time.Time{})
			Expect(err).To(MatchError(data.ErrFactorFormat))
		})
	})

	Context("when downloading the archive", func() {
		BeforeEach(func() {
			httpmock.Activate()
		})

		AfterEach(func() {
			httpmock.DeactivateAndReset()
		})

		It("unzips and parses the csv", func() {
			httpmock.RegisterResponder("GET", "https://example.com/ff5.zip",
				httpmock.NewBytesResponder(200, factorZip(factorCSV)))

			ff := data.NewFamaFrench("https://example.com/ff5.zip")
			df, err := ff.FetchFactorReturns(context.Background(), time.Time{})
			Expect(err).To(BeNil())
			Expect(df.Len()).To(Equal(3))
		})

		It("rejects a body that is not a zip archive", func() {
			httpmock.RegisterResponder("GET", "https://example.com/ff5.zip",
				httpmock.NewStringResponder(200, "not a zip"))

			ff := data.NewFamaFrench("https://example.com/ff5.zip")
			_, err := ff.FetchFactorReturns(context.Background(), time.Time{})
			Expect(err).To(MatchError(data.ErrFactorFormat))
		})
	})
})
