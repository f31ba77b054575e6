// Copyright 2015 The etcd Authors
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

// Package store persists hashed records to a local bbolt database so
// a later run over the same roots can skip files that have not
// changed. It knows nothing about the reader/hasher pipeline; the
// coordinator translates between scan.HashedRecord and store.Record.
package store

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/tormol/dscan/common"
)

// hashedBucket holds one entry per scanned file, keyed by the file's
// platform-specific path key (common.Path.Key()).
var hashedBucket = []byte("hashed")

// rootsBucket holds one entry per root ever passed to a scan, keyed
// the same way, so --prune-only can re-derive which prefixes to scan
// without the caller having to repeat them on the command line.
var rootsBucket = []byte("roots")

// Record is the durable form of a hashed file: what the writer
// persists and what the index loader reconstructs on the next run.
type Record struct {
	Path         common.Path
	Modified     time.Time
	ApparentSize uint64
	ReadSize     uint64
	Digest       [32]byte
}

// storedRecord is Record's on-disk encoding. Path is split into
// printable dir/name for display purposes only — the authoritative
// key is the bucket key, not any field inside the value — and
// Modified is stored as text rather than gob's binary time.Time
// encoding so the on-disk format stays readable with any generic
// bbolt browser.
type storedRecord struct {
	PrintableDir  string
	PrintableName string
	Modified      string
	ApparentSize  uint64
	ReadSize      uint64
	Hash          [32]byte
}

func encodeRecord(r Record) ([]byte, error) {
	var buf bytes.Buffer
	sr := storedRecord{
		PrintableDir:  r.Path.PrintableDir(),
		PrintableName: r.Path.PrintableName(),
		Modified:      common.FormatStoredTime(r.Modified),
		ApparentSize:  r.ApparentSize,
		ReadSize:      r.ReadSize,
		Hash:          r.Digest,
	}
	if err := gob.NewEncoder(&buf).Encode(&sr); err != nil {
		return nil, errors.Wrap(err, "encoding stored record")
	}
	return buf.Bytes(), nil
}

// decodeRecord reconstructs everything except Path, which the caller
// already knows from the bucket key it read.
func decodeRecord(raw []byte) (modified time.Time, apparentSize uint64, err error) {
	var sr storedRecord
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&sr); err != nil {
		return time.Time{}, 0, errors.Wrap(err, "decoding stored record")
	}
	modified, err = common.ParseStoredTime(sr.Modified)
	if err != nil {
		return time.Time{}, 0, errors.Wrap(err, "parsing stored modified time")
	}
	return modified, sr.ApparentSize, nil
}

// prefixUpperBound returns the smallest key strictly greater than
// every key beginning with prefix, i.e. the exclusive end of a
// range scan over that prefix: the last byte that isn't already 0xFF
// is incremented and everything after it dropped, since any key with
// that byte incremented is the first key no longer sharing prefix. A
// prefix of all 0xFF bytes (or empty) has no such bound; the caller
// must fall back to scanning to the end of the bucket.
func prefixUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	for i := len(bound) - 1; i >= 0; i-- {
		if bound[i] != 0xFF {
			bound[i]++
			return bound[:i+1]
		}
	}
	return nil
}

func openDB(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening index database %q", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(hashedBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(rootsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initializing index buckets")
	}
	return db, nil
}
