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

// Package engine owns the lifecycle of one scan: opening the durable
// index, seeding the pipeline with its roots, launching the reader
// and hasher pools, and shutting everything down in order once the
// roots are exhausted.
package engine

import (
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/sync/errgroup"

	"github.com/tormol/dscan/common"
	"github.com/tormol/dscan/internal/bufferpool"
	"github.com/tormol/dscan/internal/scan"
	"github.com/tormol/dscan/internal/status"
	"github.com/tormol/dscan/internal/store"
)

// ConfigError marks an error as stemming from invalid configuration
// (e.g. a buffer-size combination the pool rejects at construction)
// rather than a usage or OS-level failure, so the CLI layer can map it
// to its own exit code without engine having to import cobra or know
// about exit codes itself.
type ConfigError struct{ msg string }

func (e ConfigError) Error() string { return e.msg }
func (e ConfigError) ExitCode() int { return 2 }

// Config holds everything the CLI layer gathers from flags before
// starting a run.
type Config struct {
	Roots            []string
	IOThreads        int
	HasherThreads    int
	MaxBufferSize    int64
	MaxBuffersMemory int64
	DatabasePath     string
	PruneOnly        bool

	// StatusEvery, if non-zero, makes Run start an internal/status
	// poller that writes a line to Log every tick.
	StatusEvery time.Duration
	Log         common.ILogger
}

// Run executes one full scan (or, if cfg.PruneOnly, one prune-only
// pass reusing the roots recorded by a previous run) and returns
// summary statistics once every worker has exited and the index is
// durable. An empty cfg.DatabasePath means no persistence and no
// pruning: the run gets a throwaway index backed by a temp file that
// is deleted when Run returns, and the prune step is skipped entirely
// since there is nothing for a later run to see.
func Run(cfg Config) (common.ScanStats, error) {
	start := time.Now()
	stats := common.ScanStats{}

	dbPath := cfg.DatabasePath
	ephemeral := dbPath == ""
	if ephemeral {
		if cfg.PruneOnly {
			return stats, ConfigError{"--prune-only requires --database: there is nothing to prune without a persistent index"}
		}
		f, err := os.CreateTemp("", "dscan-index-*.db")
		if err != nil {
			return stats, errors.Wrap(err, "creating ephemeral index file")
		}
		dbPath = f.Name()
		f.Close()
		defer os.Remove(dbPath)
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return stats, errors.Wrap(err, "opening index")
	}
	defer db.Close()

	if cfg.PruneOnly {
		return runPruneOnly(db, cfg, start)
	}
	return runScan(db, cfg, start, ephemeral)
}

func runScan(db *bolt.DB, cfg Config, start time.Time, ephemeral bool) (common.ScanStats, error) {
	stats := common.ScanStats{}

	roots := make([]common.Path, 0, len(cfg.Roots))
	for _, r := range cfg.Roots {
		p, err := common.Canonicalize(r)
		if err != nil {
			return stats, err
		}
		roots = append(roots, p)
		stats.Roots = append(stats.Roots, p.String())
	}

	pool, err := bufferpool.New(cfg.MaxBuffersMemory, cfg.MaxBufferSize)
	if err != nil {
		return stats, ConfigError{errors.Wrap(err, "constructing buffer pool").Error()}
	}

	prior := common.NewPreviouslyReadIndex()
	for _, root := range roots {
		if err := store.LoadPreviouslyRead(db, root, prior); err != nil {
			return stats, errors.Wrapf(err, "loading prior index for %s", root.Printable())
		}
	}

	results := make(chan scan.HashedRecord, cfg.HasherThreads*2)
	errLines := make(chan string, 64)
	shared := scan.NewSharedState(pool, prior, results, errLines)

	// A Ctrl-C (or SIGTERM) during the walk stops both worker pools
	// from taking new work: StopNow makes every blocked or future queue
	// Pop return immediately. An item a worker has already popped is
	// still processed to the end; items left on either queue are
	// abandoned.
	var interrupted atomic.Bool
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	scanDone := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			interrupted.Store(true)
			if cfg.Log != nil {
				cfg.Log.Log(common.ELogLevel.Warning(), "interrupt received, stopping scan early")
			}
			shared.StopNow()
		case <-scanDone:
		}
	}()
	defer func() {
		signal.Stop(sigCh)
		close(scanDone)
	}()

	for _, root := range roots {
		shared.ReadQ.Push(scan.DirItem(root))
		if err := store.PutRoot(db, root.Key()); err != nil {
			return stats, errors.Wrapf(err, "recording root %s", root.Printable())
		}
	}

	// g joins the background goroutines that have nothing left to do
	// but run to completion once their input channel closes: the
	// writer and the two log drains. The converter stage still needs
	// its own done-channel below, since the coordinator must observe
	// it finishing before it's safe to close writerRecords.
	var g errgroup.Group

	writerRecords := make(chan store.Record, cfg.HasherThreads*2)
	writer := store.NewWriter(db)
	g.Go(func() error {
		// A failed index write is fatal: once Run returns it no longer
		// drains writerRecords, so the converter and hashers upstream
		// would otherwise block forever.
		if err := writer.Run(writerRecords); err != nil {
			err = errors.Wrap(err, "writing index")
			if cfg.Log != nil {
				cfg.Log.Panic(err)
			}
			panic(err)
		}
		return nil
	})

	converterDone := make(chan struct{})
	go func() {
		defer close(converterDone)
		for rec := range results {
			stats.FilesHashed++
			stats.BytesRead += rec.ReadSize
			writerRecords <- store.Record{
				Path:         rec.Path,
				Modified:     rec.Modified,
				ApparentSize: rec.ApparentSize,
				ReadSize:     rec.ReadSize,
				Digest:       rec.Digest,
			}
		}
	}()

	var threads []*scan.ThreadInfo
	logLines := make(chan string, 256)

	readerDone := runWorkers(cfg.IOThreads, "reader-", logLines, &threads, func(info *scan.ThreadInfo) {
		scan.Reader(shared, info)
	})
	hasherDone := runWorkers(cfg.HasherThreads, "hasher-", logLines, &threads, func(info *scan.ThreadInfo) {
		scan.Hasher(shared, info)
	})

	var stop func()
	if cfg.StatusEvery > 0 && cfg.Log != nil {
		stop = status.StartPoller(threads, cfg.StatusEvery, cfg.Log)
	}

	g.Go(func() error {
		for line := range errLines {
			stats.SkipDetails = append(stats.SkipDetails, line)
			if cfg.Log != nil {
				cfg.Log.Log(common.ELogLevel.Warning(), line)
			}
		}
		return nil
	})
	g.Go(func() error {
		for range logLines {
			// worker-local chatter; the run-wide errLines feed above
			// is what reaches the user, this just keeps the channel
			// from filling and blocking a worker.
		}
		return nil
	})

	<-readerDone
	shared.HashQ.StopWhenEmpty()
	<-hasherDone

	close(results)
	<-converterDone
	close(writerRecords)

	stats.FilesUnchanged = shared.Unchanged.Load()
	stats.FilesSkipped = shared.Skipped.Load()

	// A run cut short by an interrupt never finished walking its
	// roots, so anything still Unseen may simply not have been
	// reached yet rather than actually gone; pruning on an interrupted
	// run would delete perfectly good records.
	if !ephemeral && !interrupted.Load() {
		pruned, err := pruneUnseen(db, prior, roots)
		if err != nil {
			return stats, err
		}
		stats.FilesPruned = pruned
	}

	close(errLines)
	close(logLines)
	if stop != nil {
		stop()
	}
	if err := g.Wait(); err != nil {
		return stats, errors.Wrap(err, "flushing index")
	}

	stats.Duration = time.Since(start)
	return stats, nil
}

func runPruneOnly(db *bolt.DB, cfg Config, start time.Time) (common.ScanStats, error) {
	stats := common.ScanStats{}

	rootKeys, err := store.Roots(db)
	if err != nil {
		return stats, err
	}

	prior := common.NewPreviouslyReadIndex()
	for _, key := range rootKeys {
		root := common.PathFromKey(key)
		stats.Roots = append(stats.Roots, root.String())
		if err := store.LoadPreviouslyRead(db, root, prior); err != nil {
			return stats, errors.Wrapf(err, "loading prior index for %s", root.Printable())
		}
	}

	// No tree is walked here, so an entry counts as seen as long as its
	// file still exists; only entries whose file is gone are pruned.
	for _, entry := range prior.Unseen() {
		if _, err := os.Lstat(entry.Path.String()); err == nil {
			entry.MarkSeen()
		}
	}

	roots := make([]common.Path, len(stats.Roots))
	for i, r := range stats.Roots {
		roots[i] = common.NewPath(r)
	}

	pruned, err := pruneUnseen(db, prior, roots)
	if err != nil {
		return stats, err
	}
	stats.FilesPruned = pruned
	stats.Duration = time.Since(start)
	return stats, nil
}

// pruneUnseen deletes every prior entry never marked seen, restricted
// to paths under one of roots (so a database shared across unrelated
// trees never loses entries for a root that simply wasn't part of
// this run).
func pruneUnseen(db *bolt.DB, prior *common.PreviouslyReadIndex, roots []common.Path) (uint64, error) {
	var keys [][]byte
	for _, entry := range prior.Unseen() {
		for _, root := range roots {
			if entry.Path.HasPrefixDir(root) {
				keys = append(keys, entry.Path.Key())
				break
			}
		}
	}
	if err := store.Prune(db, keys); err != nil {
		return 0, errors.Wrap(err, "pruning stale entries")
	}
	return uint64(len(keys)), nil
}

// runWorkers launches n goroutines named prefix+<index>, each given
// its own ThreadInfo sharing logLines, and returns a channel closed
// once all of them have returned.
func runWorkers(n int, prefix string, logLines chan string, threads *[]*scan.ThreadInfo, body func(*scan.ThreadInfo)) <-chan struct{} {
	done := make(chan struct{})
	remaining := n
	individualDone := make(chan struct{}, n)

	for i := 0; i < n; i++ {
		info := scan.NewThreadInfo(prefix+strconv.Itoa(i), logLines)
		*threads = append(*threads, info)
		go func(info *scan.ThreadInfo) {
			body(info)
			individualDone <- struct{}{}
		}(info)
	}

	go func() {
		defer close(done)
		for remaining > 0 {
			<-individualDone
			remaining--
		}
	}()
	return done
}
