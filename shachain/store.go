package shachain

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/davecgh/go-spew/spew"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Store is an interface which serves as an abstraction over data structure
// responsible for efficiently storing and restoring of hash secrets by given
// indexes.
//
// Description: The Lightning Network wants a chain of (say 1 million)
// unguessable 256 bit values; we generate them and send them one at a time to
// a remote node.  We don't want the remote node to have to store all the
// values, so it's better if they can derive them once they see them.
type Store interface {
	// LookUp function is used to restore/lookup/fetch the previous secret
	// by its index.
	LookUp(uint64) (*chainhash.Hash, error)

	// AddNextEntry attempts to store the given hash within its internal
	// storage in an efficient manner.
	//
	// NOTE: The hashes derived from the shachain MUST be inserted in the
	// order they're produced by a shachain.Producer.
	AddNextEntry(*chainhash.Hash) error

	// Encode writes a binary serialization of the shachain elements
	// currently saved by implementation of shachain.Store to the passed
	// io.Writer.
	Encode(io.Writer) error
}

// RevocationStore is a concrete implementation of the Store interface. The
// revocation store is able to efficiently store N derived shachain elements in
// a space efficient manner with a space complexity of O(log N). The original
// description of the storage methodology can be found here:
// https://github.com/lightningnetwork/lightning-rfc/blob/master/03-transactions.md#efficient-per-commitment-secret-storage
//
// No element kept by the store is derivable from another one, and every hash
// up to the max index can be derived from exactly one of them. The store holds
// no locks, callers sharing it must serialize access themselves.
type RevocationStore struct {
	// numValid stores the number of currently known elements.
	numValid uint8

	// known is an array of elements from which we may derive all previous
	// elements, kept in the order they were added. Each of them has a
	// distinct number of trailing zeros in its index.
	known [maxHeight]element

	// maxIndex is the highest index added so far. It's only meaningful if
	// numValid is non-zero.
	maxIndex uint64
}

// A compile time check to ensure RevocationStore implements the Store
// interface.
var _ Store = (*RevocationStore)(nil)

// NewRevocationStore creates the new shachain store.
func NewRevocationStore() *RevocationStore {
	return &RevocationStore{}
}

// NewRevocationStoreFromBytes recreates the initial store state from the given
// binary shachain store representation. The decoded elements are checked
// against the invariants a store built through AddHash always satisfies.
func NewRevocationStoreFromBytes(r io.Reader) (*RevocationStore, error) {
	store := &RevocationStore{}

	if err := binary.Read(r, binary.BigEndian, &store.numValid); err != nil {
		return nil, err
	}

	if store.numValid > maxHeight {
		return nil, fmt.Errorf("%w: %d elements, max %d",
			ErrCorruptStore, store.numValid, maxHeight)
	}

	for i := uint8(0); i < store.numValid; i++ {
		var hashIndex uint64
		err := binary.Read(r, binary.BigEndian, &hashIndex)
		if err != nil {
			return nil, err
		}

		var nextHash chainhash.Hash
		if _, err := io.ReadFull(r, nextHash[:]); err != nil {
			return nil, err
		}

		store.known[i] = element{
			index: newIndex(hashIndex),
			hash:  nextHash,
		}
	}

	if err := binary.Read(r, binary.BigEndian, &store.maxIndex); err != nil {
		return nil, err
	}

	if err := store.validate(); err != nil {
		return nil, err
	}

	return store, nil
}

// validate checks that the known elements are in insertion order, that the
// last one sits at the max index and that none of them can be derived from
// another. The elements must also cover [0, maxIndex] without a gap, each one
// deriving the indexes right below it down to where its predecessor ends.
func (store *RevocationStore) validate() error {
	if store.numValid == 0 {
		return nil
	}

	last := store.known[store.numValid-1].index.external()
	if last != store.maxIndex {
		return fmt.Errorf("%w: last element #%d, max index %d",
			ErrCorruptStore, last, store.maxIndex)
	}

	for i := uint8(0); i < store.numValid; i++ {
		for j := i + 1; j < store.numValid; j++ {
			a, b := store.known[i].index, store.known[j].index

			// Indexes decrease as the external numbers grow.
			if a <= b {
				return fmt.Errorf("%w: element #%d out of "+
					"order", ErrCorruptStore,
					b.external())
			}

			if a.canDerive(b) || b.canDerive(a) {
				return fmt.Errorf("%w: element #%d and #%d "+
					"are redundant", ErrCorruptStore,
					a.external(), b.external())
			}
		}
	}

	var lowest uint64
	for i := uint8(0); i < store.numValid; i++ {
		ind := store.known[i].index
		v := ind.external()

		// The element derives the external indexes [v-span, v].
		span := uint64(math.MaxUint64)
		if zeros := countTrailingZeros(ind); zeros < maxHeight {
			span = uint64(1)<<zeros - 1
		}

		if span > v || v-span != lowest {
			return fmt.Errorf("%w: gap below element #%d",
				ErrCorruptStore, v)
		}

		lowest = v + 1
	}

	return nil
}

// nextIndex returns the only index the store will accept a hash for.
func (store *RevocationStore) nextIndex() (uint64, error) {
	if store.numValid == 0 {
		return 0, nil
	}

	if store.maxIndex == math.MaxUint64 {
		return 0, fmt.Errorf("%w: chain exhausted at index %d",
			ErrIndexSequence, store.maxIndex)
	}

	return store.maxIndex + 1, nil
}

// LookUp function is used to restore/lookup/fetch the previous secret by its
// index. If secret which corresponds to given index was not previously placed
// in store we will not able to derive it and function will fail.
//
// NOTE: This function is part of the Store interface.
func (store *RevocationStore) LookUp(v uint64) (*chainhash.Hash, error) {
	if store.numValid == 0 || v > store.maxIndex {
		return nil, fmt.Errorf("%w: #%d is beyond the highest index "+
			"added", ErrUnknownIndex, v)
	}

	ind := newIndex(v)

	// A direct hit needs no hashing at all.
	for i := uint8(0); i < store.numValid; i++ {
		if store.known[i].index == ind {
			hash := store.known[i].hash
			return &hash, nil
		}
	}

	// Trying to derive the index from one of the existing buckets elements.
	for i := uint8(0); i < store.numValid; i++ {
		element, err := store.known[i].derive(ind)
		if err != nil {
			continue
		}

		return &element.hash, nil
	}

	return nil, fmt.Errorf("%w #%d", ErrUnknownIndex, v)
}

// FetchHash returns the hash at the given index if the store is able to
// reconstruct it.
func (store *RevocationStore) FetchHash(v uint64) fn.Option[chainhash.Hash] {
	hash, err := store.LookUp(v)
	if err != nil {
		return fn.None[chainhash.Hash]()
	}

	return fn.Some(*hash)
}

// MaxIndex returns the highest index added to the store, if any.
func (store *RevocationStore) MaxIndex() fn.Option[uint64] {
	if store.numValid == 0 {
		return fn.None[uint64]()
	}

	return fn.Some(store.maxIndex)
}

// NumEntries returns the number of elements currently kept by the store.
func (store *RevocationStore) NumEntries() int {
	return int(store.numValid)
}

// AddNextEntry attempts to store the given hash within its internal storage in
// an efficient manner.
//
// NOTE: The hashes derived from the shachain MUST be inserted in the order
// they're produced by a shachain.Producer.
//
// NOTE: This function is part of the Store interface.
func (store *RevocationStore) AddNextEntry(hash *chainhash.Hash) error {
	v, err := store.nextIndex()
	if err != nil {
		return err
	}

	return store.AddHash(v, hash)
}

// AddHash records the hash for index v, which must be zero for an empty store
// and one past the max index otherwise. Every known element that the new hash
// is able to derive is first recomputed from it and compared, a mismatch
// rejects the hash. Those elements are redundant afterwards and get dropped.
// On error the store is left untouched.
//
// The check can't catch every bad hash: if none of the known elements is
// derivable from the new one, nothing is compared. Such a hash is only
// rejected once a later hash is able to derive it, if ever.
func (store *RevocationStore) AddHash(v uint64, hash *chainhash.Hash) error {
	expected, err := store.nextIndex()
	if err != nil {
		return err
	}

	if v != expected {
		return fmt.Errorf("%w: got index %d, expected %d",
			ErrIndexSequence, v, expected)
	}

	newElement := &element{
		index: newIndex(v),
		hash:  *hash,
	}

	var (
		kept    [maxHeight]element
		numKept uint8
	)
	for i := uint8(0); i < store.numValid; i++ {
		known := &store.known[i]

		if !newElement.index.canDerive(known.index) {
			kept[numKept] = *known
			numKept++

			continue
		}

		e, err := newElement.derive(known.index)
		if err != nil {
			return err
		}

		if !e.isEqual(known) {
			log.Debugf("Hash #%d doesn't derive known element: %v",
				v, newLogClosure(func() string {
					return spew.Sdump(known)
				}))

			return fmt.Errorf("%w: hash #%d disagrees with "+
				"hash #%d", ErrHashMismatch, v,
				known.index.external())
		}
	}

	if numKept == maxHeight {
		return fmt.Errorf("%w: adding hash #%d", ErrStoreFull, v)
	}
	kept[numKept] = *newElement
	numKept++

	log.Tracef("Added hash #%d, dropped %d redundant elements", v,
		store.numValid+1-numKept)

	store.known = kept
	store.numValid = numKept
	store.maxIndex = v

	return nil
}

// Encode writes a binary serialization of the shachain elements currently
// saved by implementation of shachain.Store to the passed io.Writer. Every
// element is written with the caller facing number of its index.
//
// NOTE: This function is part of the Store interface.
func (store *RevocationStore) Encode(w io.Writer) error {
	err := binary.Write(w, binary.BigEndian, store.numValid)
	if err != nil {
		return err
	}

	for i := uint8(0); i < store.numValid; i++ {
		element := store.known[i]

		err := binary.Write(
			w, binary.BigEndian, element.index.external(),
		)
		if err != nil {
			return err
		}

		if _, err = w.Write(element.hash[:]); err != nil {
			return err
		}
	}

	return binary.Write(w, binary.BigEndian, store.maxIndex)
}
