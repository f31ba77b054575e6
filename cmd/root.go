// Copyright © 2017 Microsoft <wastore@microsoft.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tormol/dscan/common"
)

var logLevelRaw string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "dscan",
	Short: "dscan finds duplicate files by content, not by name",
	Long: `dscan walks one or more directory trees, computes a SHA-256 digest for
every regular file, and keeps a durable index so later runs only need to
re-hash files that actually changed.`,
	SilenceUsage: true,
}

// Execute is called by main.main(). Exit codes follow the disposition
// table: 0 success, 1 usage/root/OS errors, 2 invalid configuration.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "dscan:", err)
		if ec, ok := err.(exitCoder); ok {
			os.Exit(ec.ExitCode())
		}
		os.Exit(1)
	}
}

// exitCoder lets a command's error carry a specific exit code other
// than the generic usage-error 1.
type exitCoder interface {
	error
	ExitCode() int
}

type configError struct{ msg string }

func (e configError) Error() string { return e.msg }
func (e configError) ExitCode() int { return 2 }

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelRaw, "log-level", "warning",
		"Amount of detail written to the log file. One of: none, error, warning, info, debug.")
}

func parseLogLevel() (common.LogLevel, error) {
	var level common.LogLevel
	if err := level.Parse(logLevelRaw); err != nil {
		return 0, configError{fmt.Sprintf("invalid --log-level %q: %v", logLevelRaw, err)}
	}
	return level, nil
}
