package openchannel

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/shachain/shachain"
)

// FirstRevocationHash returns the hash of the first preimage of the chain
// generated from seed. The preimage itself is only revealed once the first
// commitment is revoked.
func FirstRevocationHash(seed *chainhash.Hash) chainhash.Hash {
	preimage := shachain.GenerateFromSeed(seed, 0)

	return chainhash.HashH(preimage[:])
}
