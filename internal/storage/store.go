// Package storage provides the node's three persistent keyspaces —
// blocks, account balances, account addresses — over a single goleveldb
// database. goleveldb has no native column families, so each keyspace
// is a key prefix, the idiomatic substitute throughout the Go
// LevelDB-backed ecosystem. Grounded on
// original_source/src/Storage/{Database,BlocksStorage,AccountStorage,AddressStorage}.hpp.
package storage

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"duskledger/internal/crypto"
)

var ErrNotFound = leveldb.ErrNotFound

var (
	blockPrefix   = []byte("b/")
	balancePrefix = []byte("a/")
	addressPrefix = []byte("d/")
)

// Store is the node's single on-disk database. Opening is idempotent;
// leveldb.OpenFile already is, and creates the directory on first open.
// Failure to open is a FatalInit condition for the caller.
type Store struct {
	db *leveldb.DB
}

func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func prefixedKey(prefix []byte, id crypto.Digest) []byte {
	key := make([]byte, 0, len(prefix)+crypto.Size)
	key = append(key, prefix...)
	key = append(key, id[:]...)
	return key
}

// Batch accumulates puts across keyspaces for one atomic write, so a
// block execution's multi-account balance update lands or fails as a
// unit.
type Batch struct {
	raw leveldb.Batch
}

func NewBatch() *Batch { return &Batch{} }

func (b *Batch) PutBlock(id crypto.Digest, value []byte) {
	b.raw.Put(prefixedKey(blockPrefix, id), value)
}

func (b *Batch) PutBalance(id crypto.Digest, value []byte) {
	b.raw.Put(prefixedKey(balancePrefix, id), value)
}

func (b *Batch) PutAddress(id crypto.Digest, value []byte) {
	b.raw.Put(prefixedKey(addressPrefix, id), value)
}

// Write commits every put accumulated on b atomically.
func (s *Store) Write(b *Batch) error {
	if err := s.db.Write(&b.raw, nil); err != nil {
		return fmt.Errorf("storage: batch write: %w", err)
	}
	return nil
}

func (s *Store) getPrefixed(prefix []byte, id crypto.Digest) ([]byte, error) {
	v, err := s.db.Get(prefixedKey(prefix, id), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: get: %w", err)
	}
	return v, nil
}

func (s *Store) putPrefixed(prefix []byte, id crypto.Digest, value []byte) error {
	if err := s.db.Put(prefixedKey(prefix, id), value, nil); err != nil {
		return fmt.Errorf("storage: put: %w", err)
	}
	return nil
}

func (s *Store) GetBlock(id crypto.Digest) ([]byte, error) {
	return s.getPrefixed(blockPrefix, id)
}

func (s *Store) PutBlock(id crypto.Digest, value []byte) error {
	return s.putPrefixed(blockPrefix, id, value)
}

func (s *Store) GetBalance(id crypto.Digest) ([]byte, error) {
	return s.getPrefixed(balancePrefix, id)
}

func (s *Store) PutBalance(id crypto.Digest, value []byte) error {
	return s.putPrefixed(balancePrefix, id, value)
}

func (s *Store) GetAddress(id crypto.Digest) ([]byte, error) {
	return s.getPrefixed(addressPrefix, id)
}

func (s *Store) PutAddress(id crypto.Digest, value []byte) error {
	return s.putPrefixed(addressPrefix, id, value)
}

// IterateBalances walks the balance keyspace in key order — digest order,
// since keys are prefix+digest — calling fn for each entry until fn
// returns false or the keyspace is exhausted. This is the ordered scan
// §4.C relies on to recompute the account Merkle root.
func (s *Store) IterateBalances(fn func(id crypto.Digest, value []byte) bool) error {
	iter := s.db.NewIterator(util.BytesPrefix(balancePrefix), nil)
	defer iter.Release()
	for iter.Next() {
		key := iter.Key()
		id, ok := crypto.DigestFromBytes(key[len(balancePrefix):])
		if !ok {
			continue
		}
		value := make([]byte, len(iter.Value()))
		copy(value, iter.Value())
		if !fn(id, value) {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("storage: iterate balances: %w", err)
	}
	return nil
}
