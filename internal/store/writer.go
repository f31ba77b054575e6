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

package store

import (
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// defaultBatchInterval bounds how long a record can sit unflushed
// before the writer commits anyway, matching the etcd backend's own
// default batch interval.
const defaultBatchInterval = 2 * time.Second

// defaultBatchLimit bounds how many records accumulate in one
// transaction before the writer commits early, independent of the
// interval, the same dual trigger the etcd backend's batchTx uses.
const defaultBatchLimit = 200

// Writer is the single goroutine allowed to mutate the durable index.
// It owns one bbolt transaction at a time and batches writes into it,
// the same time-or-count dual trigger etcd's backend.run()/batchTx use
// around their own bolt.Tx.
type Writer struct {
	db            *bolt.DB
	batchInterval time.Duration
	batchLimit    int
}

func NewWriter(db *bolt.DB) *Writer {
	return &Writer{db: db, batchInterval: defaultBatchInterval, batchLimit: defaultBatchLimit}
}

// Run consumes records until the channel is closed, committing in
// batches, then performs one final commit for whatever remains
// pending and returns. The caller is expected to run this in its own
// goroutine and close records once every hasher has exited.
func (w *Writer) Run(records <-chan Record) error {
	tx, err := w.db.Begin(true)
	if err != nil {
		return errors.Wrap(err, "beginning index transaction")
	}
	bucket := tx.Bucket(hashedBucket)
	pending := 0

	ticker := time.NewTicker(w.batchInterval)
	defer ticker.Stop()

	commit := func() error {
		if pending == 0 {
			return nil
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrap(err, "committing index batch")
		}
		tx, err = w.db.Begin(true)
		if err != nil {
			return errors.Wrap(err, "beginning next index transaction")
		}
		bucket = tx.Bucket(hashedBucket)
		pending = 0
		return nil
	}

	for {
		select {
		case rec, ok := <-records:
			if !ok {
				if pending == 0 {
					return errors.Wrap(tx.Rollback(), "closing empty final index transaction")
				}
				return errors.Wrap(tx.Commit(), "committing final index batch")
			}
			raw, err := encodeRecord(rec)
			if err != nil {
				return err
			}
			if err := bucket.Put(rec.Path.Key(), raw); err != nil {
				return errors.Wrap(err, "writing index record")
			}
			pending++
			if pending >= w.batchLimit {
				if err := commit(); err != nil {
					return err
				}
			}
		case <-ticker.C:
			if err := commit(); err != nil {
				return err
			}
		}
	}
}

// PutRoot records that root was scanned, so a later --prune-only run
// can rediscover which prefixes to prune without the caller repeating
// them on the command line.
func PutRoot(db *bolt.DB, key []byte) error {
	return db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(rootsBucket).Put(key, []byte{})
	})
}

// Roots returns every root key previously recorded via PutRoot.
func Roots(db *bolt.DB) ([][]byte, error) {
	var out [][]byte
	err := db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(rootsBucket).ForEach(func(k, _ []byte) error {
			cp := make([]byte, len(k))
			copy(cp, k)
			out = append(out, cp)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "reading recorded roots")
	}
	return out, nil
}

// Prune deletes every entry in keys from the hashed bucket in a
// single transaction, used for entries the previously-read index
// marked unseen at the end of a run.
func Prune(db *bolt.DB, keys [][]byte) error {
	if len(keys) == 0 {
		return nil
	}
	return db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(hashedBucket)
		for _, k := range keys {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Open opens (creating if necessary) the index database at path.
func Open(path string) (*bolt.DB, error) {
	return openDB(path)
}
