//go:build mage

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

package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binaryName  = "pvcluster"
	packageName = "."
	modulePath  = "github.com/penny-vault/pv-cluster"
	coverFile   = "coverage.out"
)

var ldflags = "-X " + modulePath + "/common.commitHash=$COMMIT_HASH -X " + modulePath + "/common.buildDate=$BUILD_DATE"

// GOEXE overrides the go executable
var goexe = "go"

func init() {
	if exe := os.Getenv("GOEXE"); exe != "" {
		goexe = exe
	}
}

// Build the pvcluster binary with the commit hash and build date embedded
func Build() error {
	fmt.Println("Building...")
	return runWith(flagEnv(), goexe, "build", "-o", binaryName, "-ldflags", ldflags, buildFlags(), buildTags(), "-v", packageName)
}

// Install pvcluster into GOBIN
func Install() error {
	return runWith(flagEnv(), goexe, "install", "-ldflags", ldflags, buildFlags(), buildTags(), packageName)
}

// Clean removes the binary and coverage output
func Clean() {
	fmt.Println("Cleaning...")
	os.RemoveAll(binaryName)
	os.RemoveAll(coverFile)
}

// Check runs the formatters, vet and the race tests
func Check() {
	mg.Deps(Fmt, Vet)
	mg.Deps(TestRace)
}

// Test runs every ginkgo suite
func Test() error {
	fmt.Println("Go Test")
	return runWith(nil, goexe, "test", "./...", buildFlags(), buildTags())
}

// TestRace runs the suites with the race detector; the tiingo provider is the
// only concurrent code
func TestRace() error {
	fmt.Println("Go Test Race")
	return runWith(nil, goexe, "test", "-race", "./...", buildFlags(), buildTags())
}

// Fmt fails when any file is not gofmt'ed
func Fmt() error {
	fmt.Println("Go Format")
	// gofmt exits zero on unformatted code, so look at its output
	out, err := sh.Output("gofmt", "-l", ".")
	if err != nil {
		return err
	}
	if out = strings.TrimSpace(out); out != "" {
		fmt.Println("The following files are not gofmt'ed:")
		fmt.Println(out)
		return errors.New("improperly formatted go files")
	}
	return nil
}

// Vet runs go vet
func Vet() error {
	fmt.Println("Go Vet")
	if err := sh.Run(goexe, "vet", "./..."); err != nil {
		return fmt.Errorf("error running go vet: %w", err)
	}
	return nil
}

// TestCoverHTML opens an HTML coverage report for every package
func TestCoverHTML() error {
	fmt.Println("Generate Test Coverage HTML")
	if err := sh.Run(goexe, "test", "-coverprofile="+coverFile, "-covermode=count", "./..."); err != nil {
		return err
	}
	return sh.Run(goexe, "tool", "cover", "-html="+coverFile)
}

func buildFlags() []string {
	if runtime.GOOS == "windows" {
		return []string{"-buildmode", "exe"}
	}
	return nil
}

// buildTags passes BUILD_TAGS through to the go tool
func buildTags() []string {
	if tags := os.Getenv("BUILD_TAGS"); tags != "" {
		return []string{"-tags", tags}
	}
	return nil
}

func flagEnv() map[string]string {
	hash, _ := sh.Output("git", "rev-parse", "--short", "HEAD")
	return map[string]string{
		"COMMIT_HASH": hash,
		"BUILD_DATE":  time.Now().Format("2006-01-02T15:04:05Z0700"),
	}
}

func runWith(env map[string]string, cmd string, inArgs ...interface{}) error {
	if mg.Verbose() {
		return sh.RunWith(env, cmd, argsToStrings(inArgs...)...)
	}
	output, err := sh.OutputWith(env, cmd, argsToStrings(inArgs...)...)
	if err != nil {
		fmt.Fprint(os.Stderr, output)
	}
	return err
}

func argsToStrings(v ...interface{}) []string {
	var args []string
	for _, arg := range v {
		switch v := arg.(type) {
		case string:
			if v != "" {
				args = append(args, v)
			}
		case []string:
			args = append(args, v...)
		default:
			panic("invalid type")
		}
	}
	return args
}
