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
	"bytes"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/tormol/dscan/common"
)

// LoadPreviouslyRead populates idx with every hashed-bucket entry
// whose key begins with root's key, using a cursor Seek plus an
// upper-bound computed by prefixUpperBound — the same bounded-range
// scan shape as a bolt.Cursor prefix iteration, just made explicit so
// it stops exactly at the prefix's end instead of scanning the whole
// bucket and filtering with bytes.HasPrefix on every key.
func LoadPreviouslyRead(db *bolt.DB, root common.Path, idx *common.PreviouslyReadIndex) error {
	prefix := root.Key()
	upper := prefixUpperBound(prefix)

	return db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(hashedBucket).Cursor()
		for k, v := cursor.Seek(prefix); k != nil; k, v = cursor.Next() {
			if upper != nil && bytes.Compare(k, upper) >= 0 {
				break
			}
			if !bytes.HasPrefix(k, prefix) {
				continue
			}
			modified, apparentSize, err := decodeRecord(v)
			if err != nil {
				return errors.Wrapf(err, "loading prior record under %s", root.Printable())
			}
			idx.Load(keyToPath(k), modified, apparentSize)
		}
		return nil
	})
}

// keyToPath reconstructs a usable common.Path from a raw bucket key.
// The reconstructed Path's Key() round-trips to the same bytes (that
// is all equality/lookup in PreviouslyReadIndex needs); it is not used
// for display, which always goes through the stored PrintableDir/Name
// fields instead.
func keyToPath(key []byte) common.Path {
	return common.PathFromKey(key)
}
