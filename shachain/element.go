package shachain

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// element represents the entity which contains the hash and index
// corresponding to it. An element is the output of the shachain PRF. By
// comparing two indexes we're able to mutate the hash in such way to derive
// another element.
type element struct {
	index index
	hash  chainhash.Hash
}

// derive computes one shachain element from another by applying a series of
// bit flips and hashing operations based on the starting and ending index.
func (e *element) derive(toIndex index) (*element, error) {
	fromIndex := e.index

	positions, err := fromIndex.deriveBitTransformations(toIndex)
	if err != nil {
		return nil, err
	}

	buf := e.hash
	for _, position := range positions {
		// Flip the bit and then hash the current state.
		changeBit(buf[:], position)
		buf = sha256.Sum256(buf[:])
	}

	return &element{
		index: toIndex,
		hash:  buf,
	}, nil
}

// isEqual returns true if two elements are identical and false otherwise.
func (e *element) isEqual(e2 *element) bool {
	return (e.index == e2.index) &&
		(&e.hash).IsEqual(&e2.hash)
}

const (
	// maxHeight is the bit width of an index. Every element kept by the
	// store sits in a distinct bucket, the bucket being the number of
	// trailing zeros of its index, so this is also the store capacity.
	maxHeight uint8 = 64

	// rootIndex is an index which corresponds to the root hash.
	rootIndex index = 0
)

// startIndex is the index of first element in the shachain PRF.
const startIndex index = 1<<64 - 1

// index is a number which identifies the hash number and serves as a way to
// determine the hashing operation required to derive one hash from another.
// index is initialized with the startIndex and decreases down to zero with
// successive derivations.
type index uint64

// newIndex is used to create index instance. The inner operations with index
// implies that index decreasing from some max number to zero, while callers
// count commitments up from zero, so the caller's number is complemented.
func newIndex(v uint64) index {
	return startIndex - index(v)
}

// external returns the caller facing number of the index.
func (i index) external() uint64 {
	return uint64(startIndex - i)
}

// canDerive reports whether the element at index 'from' is able to derive the
// element at index 'to'. This holds iff both indexes share every bit at and
// above the lowest set bit of 'from'. The root index has no set bits, so
// everything is derivable from it.
func (from index) canDerive(to index) bool {
	zeros := countTrailingZeros(from)

	return uint64(from) == getPrefix(to, zeros)
}

// deriveBitTransformations function checks that the 'to' index is derivable
// from the 'from' index by checking the indexes are prefixes of another. The
// bit positions where the zeroes should be changed to ones in order for the
// indexes to become the same are returned. This set of bits is needed in order
// to derive one hash from another.
//
// NOTE: The index 'to' is derivable from index 'from' iff index 'from' lies
// left and above index 'to' on graph below, for example:
// 1. 7(0b111) -> 7
// 2. 6(0b110) -> 6,7
// 3. 5(0b101) -> 5
// 4. 4(0b100) -> 4,5,6,7
// 5. 3(0b011) -> 3
// 6. 2(0b010) -> 2, 3
// 7. 1(0b001) -> 1
//
//	  ^ bucket number
//	  |
//	3 |   x
//	  |   |
//	2 |   |               x
//	  |   |               |
//	1 |   |       x       |       x
//	  |   |       |       |       |
//	0 |   |   x   |   x   |   x   |   x
//	  |   |   |   |   |   |   |   |   |
//	  +---|---|---|---|---|---|---|---|---> index
//	      0   1   2   3   4   5   6   7
func (from index) deriveBitTransformations(to index) ([]uint8, error) {
	var positions []uint8

	if from == to {
		return positions, nil
	}

	//	+ --------------- +
	// 	| №  | from | to  |
	//	+ -- + ---- + --- +
	//	| 63 |	 1  |  1  |
	//	| 62 |	 0  |  0  | [63-5] - same part of 'from' and 'to'
	//	| 61 |   0  |  0  |	    indexes which also is called prefix.
	//		....
	//	|  5 |	 1  |  1  |
	//	|  4 |	 0  |  1  | <--- position after which indexes becomes
	//	|  3 |   0  |  0  |	 different, after this position
	//	|  2 |   0  |  1  |	 bits in 'from' index all should be
	//	|  1 |   0  |  0  |	 zeros or such indexes considered to be
	//	|  0 |   0  |  1  |	 not derivable.
	//	+ -- + ---- + --- +
	if !from.canDerive(to) {
		return nil, fmt.Errorf("%w: prefixes are different - "+
			"indexes aren't derivable", ErrUnknownIndex)
	}

	// The remaining part of 'to' index represents the positions which we
	// will use then in order to derive one element from another.
	zeros := countTrailingZeros(from)
	for position := int(zeros) - 1; position >= 0; position-- {
		if getBit(to, uint8(position)) == 1 {
			positions = append(positions, uint8(position))
		}
	}

	return positions, nil
}

// GenerateFromSeed derives the hash at the given index from the secret seed.
// Given the hash for an index it is infeasible to compute the hash of any
// greater index, while the hashes of some lower indexes can be derived from
// it without the seed.
//
// The function is pure and safe for concurrent use.
func GenerateFromSeed(seed *chainhash.Hash, v uint64) chainhash.Hash {
	root := element{
		index: rootIndex,
		hash:  *seed,
	}

	// Everything is derivable from the root, so the error can't trigger.
	e, _ := root.derive(newIndex(v))

	return e.hash
}
