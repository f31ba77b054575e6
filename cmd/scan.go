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
	"time"

	"github.com/spf13/cobra"

	"github.com/tormol/dscan/common"
	"github.com/tormol/dscan/internal/engine"
)

// byteSizeFlag adapts common.ParseByteSize/FormatByteSize to pflag's
// Value interface so --max-buffer-size etc. accept "1MiB" directly
// instead of a raw integer.
type byteSizeFlag int64

func (b *byteSizeFlag) String() string { return common.FormatByteSize(int64(*b)) }
func (b *byteSizeFlag) Type() string   { return "size" }
func (b *byteSizeFlag) Set(s string) error {
	v, err := common.ParseByteSize(s)
	if err != nil {
		return err
	}
	*b = byteSizeFlag(v)
	return nil
}

var (
	ioThreads        int
	hasherThreads    int
	maxBufferSize    = byteSizeFlag(1 << 20)
	maxBuffersMemory = byteSizeFlag(1 << 30)
	databasePath     string
	refreshRate      time.Duration
	pruneOnly        bool
)

var scanCmd = &cobra.Command{
	Use:   "scan ROOT [ROOT...]",
	Short: "Hash every regular file under one or more directory trees",
	Args: func(cmd *cobra.Command, args []string) error {
		if pruneOnly {
			return nil
		}
		return cobra.MinimumNArgs(1)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := parseLogLevel()
		if err != nil {
			return err
		}
		logger, err := common.NewFileLogger(level, ".", "dscan")
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer logger.CloseLog()

		cfg := engine.Config{
			Roots:            args,
			IOThreads:        ioThreads,
			HasherThreads:    hasherThreads,
			MaxBufferSize:    int64(maxBufferSize),
			MaxBuffersMemory: int64(maxBuffersMemory),
			DatabasePath:     databasePath,
			PruneOnly:        pruneOnly,
			StatusEvery:      refreshRate,
			Log:              logger,
		}

		stats, err := engine.Run(cfg)
		if err != nil {
			return err
		}
		printSummary(stats)
		return nil
	},
}

func printSummary(stats common.ScanStats) {
	fmt.Printf("scanned %d root(s) in %s\n", len(stats.Roots), stats.Duration.Round(time.Millisecond))
	fmt.Printf("  hashed:    %d files (%s)\n", stats.FilesHashed, common.HumanByteSize(int64(stats.BytesRead)))
	fmt.Printf("  unchanged: %d files\n", stats.FilesUnchanged)
	fmt.Printf("  skipped:   %d files\n", stats.FilesSkipped)
	if stats.FilesPruned > 0 {
		fmt.Printf("  pruned:    %d stale index entries\n", stats.FilesPruned)
	}
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().IntVar(&ioThreads, "io-threads", 2, "Number of reader goroutines.")
	scanCmd.Flags().IntVar(&hasherThreads, "hasher-threads", 4, "Number of hasher goroutines.")
	scanCmd.Flags().Var(&maxBufferSize, "max-buffer-size", "Largest single buffer the pool will hand out, e.g. 1MiB.")
	scanCmd.Flags().Var(&maxBuffersMemory, "max-buffers-memory", "Total memory budget for in-flight file buffers, e.g. 1GiB.")
	scanCmd.Flags().StringVar(&databasePath, "database", "", "Path to the durable index file. If omitted, a temporary index is used for this run only and deleted afterwards, and nothing is pruned.")
	scanCmd.Flags().DurationVar(&refreshRate, "refresh-rate", 0, "If set, print a worker status line to the log at this interval.")
	scanCmd.Flags().BoolVar(&pruneOnly, "prune-only", false, "Skip scanning; just prune index entries whose file no longer exists, under the roots recorded by prior scans.")
}
