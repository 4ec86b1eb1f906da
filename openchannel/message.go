package openchannel

import (
	"bytes"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/tlv"
)

const (
	seqType            tlv.Type = 0
	revocationHashType tlv.Type = 2
	finalKeyType       tlv.Type = 4
	commitFeeType      tlv.Type = 6
	locktimeType       tlv.Type = 8
	anchorType         tlv.Type = 10
)

// Message is the channel open request sent to the remote party.
type Message struct {
	// Seq is the sequence number of the message.
	Seq uint64

	// RevocationHash is the hash of the first revocation preimage.
	RevocationHash chainhash.Hash

	// FinalKey is the key our final output pays to.
	FinalKey *btcec.PublicKey

	// CommitFee is the fee paid by the commitment transaction.
	CommitFee btcutil.Amount

	// LocktimeSeconds is the relative locktime of our outputs.
	LocktimeSeconds uint32

	// Anchor is the transaction funding the channel.
	Anchor Anchor
}

// records returns the TLV records of the message, reading and writing through
// the given scratch values.
func (m *Message) records(revHash *[32]byte, fee *uint64,
	anchor *[]byte) []tlv.Record {

	return []tlv.Record{
		tlv.MakePrimitiveRecord(seqType, &m.Seq),
		tlv.MakePrimitiveRecord(revocationHashType, revHash),
		tlv.MakePrimitiveRecord(finalKeyType, &m.FinalKey),
		tlv.MakePrimitiveRecord(commitFeeType, fee),
		tlv.MakePrimitiveRecord(locktimeType, &m.LocktimeSeconds),
		tlv.MakePrimitiveRecord(anchorType, anchor),
	}
}

// Encode serializes the message as a TLV stream.
func (m *Message) Encode(w io.Writer) error {
	var anchor bytes.Buffer
	if err := m.Anchor.Encode(&anchor); err != nil {
		return err
	}

	var (
		revHash     = [32]byte(m.RevocationHash)
		fee         = uint64(m.CommitFee)
		anchorBytes = anchor.Bytes()
	)

	stream, err := tlv.NewStream(m.records(&revHash, &fee, &anchorBytes)...)
	if err != nil {
		return err
	}

	return stream.Encode(w)
}

// Decode deserializes a message from a TLV stream.
func (m *Message) Decode(r io.Reader) error {
	var (
		revHash     [32]byte
		fee         uint64
		anchorBytes []byte
	)

	stream, err := tlv.NewStream(m.records(&revHash, &fee, &anchorBytes)...)
	if err != nil {
		return err
	}

	parsedTypes, err := stream.DecodeWithParsedTypes(r)
	if err != nil {
		return err
	}

	err = requireTypes(
		"message", parsedTypes, seqType, revocationHashType,
		finalKeyType, commitFeeType, locktimeType, anchorType,
	)
	if err != nil {
		return err
	}

	if fee > uint64(btcutil.MaxSatoshi) {
		return fmt.Errorf("%w: commitment fee %d", ErrInvalidFee, fee)
	}

	m.RevocationHash = revHash
	m.CommitFee = btcutil.Amount(fee)

	return m.Anchor.Decode(bytes.NewReader(anchorBytes))
}

// requireTypes returns ErrMissingField if any of the given types wasn't found
// in the decoded stream.
func requireTypes(name string, parsedTypes tlv.TypeMap,
	types ...tlv.Type) error {

	for _, typ := range types {
		if _, ok := parsedTypes[typ]; !ok {
			return fmt.Errorf("%w: %v record type %d", ErrMissingField,
				name, typ)
		}
	}

	return nil
}
