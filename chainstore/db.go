package chainstore

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb" // Import to register backend.
	"github.com/lightningnetwork/lnd/kvdb"
	"github.com/lightningnetwork/shachain/shachain"
)

var (
	// storeBucket is the top level bucket holding every receiver store,
	// keyed by the name the caller chose for it.
	storeBucket = []byte("shachain-stores")

	// ErrStoreNotFound is returned when no store was saved under the
	// requested name.
	ErrStoreNotFound = errors.New("chainstore: store not found")

	// ErrEmptyName is returned when a store is addressed with an empty
	// name.
	ErrEmptyName = errors.New("chainstore: empty store name")
)

// DB persists shachain receiver stores in a kvdb backend.
type DB struct {
	backend kvdb.Backend
}

// Open opens the bolt database at the given path, creating it if it doesn't
// exist yet.
func Open(path string) (*DB, error) {
	var (
		backend kvdb.Backend
		err     error
	)
	if _, statErr := os.Stat(path); statErr == nil {
		backend, err = kvdb.Open(
			kvdb.BoltBackendName, path, true,
			kvdb.DefaultDBTimeout, false,
		)
	} else {
		backend, err = kvdb.Create(
			kvdb.BoltBackendName, path, true,
			kvdb.DefaultDBTimeout, false,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to open %v: %w", path, err)
	}

	db, err := New(backend)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	return db, nil
}

// New wraps an already opened backend, making sure the store bucket exists.
func New(backend kvdb.Backend) (*DB, error) {
	err := kvdb.Update(backend, func(tx kvdb.RwTx) error {
		_, err := tx.CreateTopLevelBucket(storeBucket)
		return err
	}, func() {})
	if err != nil {
		return nil, fmt.Errorf("unable to create store bucket: %w", err)
	}

	return &DB{
		backend: backend,
	}, nil
}

// Close closes the underlying backend.
func (d *DB) Close() error {
	return d.backend.Close()
}

// PutStore writes the store under the given name, replacing any previous
// version of it.
func (d *DB) PutStore(name string, store *shachain.RevocationStore) error {
	if name == "" {
		return ErrEmptyName
	}

	var b bytes.Buffer
	if err := store.Encode(&b); err != nil {
		return err
	}

	return kvdb.Update(d.backend, func(tx kvdb.RwTx) error {
		bucket := tx.ReadWriteBucket(storeBucket)
		if bucket == nil {
			return kvdb.ErrBucketNotFound
		}

		return bucket.Put([]byte(name), b.Bytes())
	}, func() {})
}

// FetchStore reads the store saved under the given name.
func (d *DB) FetchStore(name string) (*shachain.RevocationStore, error) {
	if name == "" {
		return nil, ErrEmptyName
	}

	var store *shachain.RevocationStore
	err := kvdb.View(d.backend, func(tx kvdb.RTx) error {
		var err error
		store, err = fetchStore(tx.ReadBucket(storeBucket), name)

		return err
	}, func() {
		store = nil
	})
	if err != nil {
		return nil, err
	}

	return store, nil
}

// fetchStore decodes the named store from the bucket.
func fetchStore(bucket kvdb.RBucket, name string) (*shachain.RevocationStore,
	error) {

	if bucket == nil {
		return nil, kvdb.ErrBucketNotFound
	}

	storeBytes := bucket.Get([]byte(name))
	if storeBytes == nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreNotFound, name)
	}

	return shachain.NewRevocationStoreFromBytes(
		bytes.NewReader(storeBytes),
	)
}

// DeleteStore removes the named store.
func (d *DB) DeleteStore(name string) error {
	if name == "" {
		return ErrEmptyName
	}

	return kvdb.Update(d.backend, func(tx kvdb.RwTx) error {
		bucket := tx.ReadWriteBucket(storeBucket)
		if bucket == nil {
			return kvdb.ErrBucketNotFound
		}

		if bucket.Get([]byte(name)) == nil {
			return fmt.Errorf("%w: %v", ErrStoreNotFound, name)
		}

		return bucket.Delete([]byte(name))
	}, func() {})
}

// ListStores returns the names of all saved stores in key order.
func (d *DB) ListStores() ([]string, error) {
	var names []string
	err := kvdb.View(d.backend, func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(storeBucket)
		if bucket == nil {
			return kvdb.ErrBucketNotFound
		}

		return bucket.ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	}, func() {
		names = nil
	})
	if err != nil {
		return nil, err
	}

	return names, nil
}

// AddHash adds the hash at index v to the named store within a single
// transaction, creating the store if it doesn't exist yet. A hash rejected
// by the store leaves the persisted version untouched.
func (d *DB) AddHash(name string, v uint64, hash *chainhash.Hash) error {
	return d.updateStore(name, func(store *shachain.RevocationStore) error {
		return store.AddHash(v, hash)
	})
}

// AddNextHash adds the hash following the last one of the named store, and
// returns the index it was stored at.
func (d *DB) AddNextHash(name string, hash *chainhash.Hash) (uint64, error) {
	var v uint64
	err := d.updateStore(name, func(store *shachain.RevocationStore) error {
		if err := store.AddNextEntry(hash); err != nil {
			return err
		}

		v = store.MaxIndex().UnwrapOr(0)

		return nil
	})
	if err != nil {
		return 0, err
	}

	return v, nil
}

// updateStore applies the modification to the named store and writes it back
// if the modification succeeded.
func (d *DB) updateStore(name string,
	modify func(*shachain.RevocationStore) error) error {

	if name == "" {
		return ErrEmptyName
	}

	return kvdb.Update(d.backend, func(tx kvdb.RwTx) error {
		bucket := tx.ReadWriteBucket(storeBucket)

		store, err := fetchStore(bucket, name)
		switch {
		case errors.Is(err, ErrStoreNotFound):
			log.Debugf("Creating store %v", name)
			store = shachain.NewRevocationStore()

		case err != nil:
			return err
		}

		if err := modify(store); err != nil {
			log.Warnf("Rejected hash for store %v: %v", name, err)

			return err
		}

		var b bytes.Buffer
		if err := store.Encode(&b); err != nil {
			return err
		}

		log.Tracef("Store %v now holds %d elements up to #%d", name,
			store.NumEntries(), store.MaxIndex().UnwrapOr(0))

		return bucket.Put([]byte(name), b.Bytes())
	}, func() {})
}
