package openchannel

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/tlv"
)

const (
	// maxAnchorInputs is the maximum number of inputs an anchor may
	// spend.
	maxAnchorInputs = 1000

	// maxScriptSize is the largest script we accept for an anchor input.
	maxScriptSize = 10000
)

var (
	// byteOrder defines the preferred byte order, which is Big Endian.
	byteOrder = binary.BigEndian
)

// AnchorInput is an output funding the anchor transaction.
type AnchorInput struct {
	// OutPoint is the output being spent.
	OutPoint wire.OutPoint

	// Amount is the value of the output.
	Amount btcutil.Amount

	// Script is the output script being spent.
	Script []byte
}

// ParseAnchorInput parses an anchor input given as
// <txid>/<outnum>/<satoshis>/<hexscript>. The txid is in the usual reversed
// hex notation.
func ParseAnchorInput(s string) (*AnchorInput, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: expected "+
			"<txid>/<outnum>/<satoshis>/<hexscript>, got %q",
			ErrInvalidAnchorInput, s)
	}

	txid, err := chainhash.NewHashFromStr(parts[0])
	if err != nil || len(parts[0]) != chainhash.MaxHashStringSize {
		return nil, fmt.Errorf("%w: expected 256-bit hex txid before "+
			"/", ErrInvalidAnchorInput)
	}

	outNum, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: expected <outputnum> after /",
			ErrInvalidAnchorInput)
	}

	sats, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || sats <= 0 || sats > int64(btcutil.MaxSatoshi) {
		return nil, fmt.Errorf("%w: expected <satoshis> after second /",
			ErrInvalidAnchorInput)
	}

	script, err := hex.DecodeString(parts[3])
	if err != nil {
		return nil, fmt.Errorf("%w: expected hex string after third /",
			ErrInvalidAnchorInput)
	}

	return &AnchorInput{
		OutPoint: wire.OutPoint{
			Hash:  *txid,
			Index: uint32(outNum),
		},
		Amount: btcutil.Amount(sats),
		Script: script,
	}, nil
}

// Change describes where the excess of the anchor inputs is paid to.
type Change struct {
	// PubKey is the key the change is paid to.
	PubKey *btcec.PublicKey

	// Amount is the change amount.
	Amount btcutil.Amount
}

// Anchor describes the transaction funding the channel.
type Anchor struct {
	// Inputs are the outputs spent by the anchor.
	Inputs []AnchorInput

	// Total is the amount committed to the channel.
	Total btcutil.Amount

	// Fee is the fee paid by the anchor transaction.
	Fee btcutil.Amount

	// MinConfirms is the number of confirmations before the channel is
	// considered open.
	MinConfirms uint32

	// CommitKey is the key used in the anchor output.
	CommitKey *btcec.PublicKey

	// Change is set when the inputs exceed total plus fee.
	Change fn.Option[Change]
}

// TotalIn sums up the value of all inputs. Build bounds the number of inputs
// and their amounts, so the sum can't overflow for an anchor it returned.
func (a *Anchor) TotalIn() btcutil.Amount {
	var total btcutil.Amount
	for _, in := range a.Inputs {
		total += in.Amount
	}

	return total
}

const (
	anchorInputsType      tlv.Type = 0
	anchorTotalType       tlv.Type = 2
	anchorFeeType         tlv.Type = 4
	anchorMinConfirmsType tlv.Type = 6
	anchorCommitKeyType   tlv.Type = 8
	anchorChangeKeyType   tlv.Type = 9
	anchorChangeAmtType   tlv.Type = 11
)

// Encode writes the anchor as a TLV stream.
func (a *Anchor) Encode(w io.Writer) error {
	total := uint64(a.Total)
	fee := uint64(a.Fee)

	records := []tlv.Record{
		tlv.MakeDynamicRecord(
			anchorInputsType, &a.Inputs, inputsSize(&a.Inputs),
			inputsEncoder, inputsDecoder,
		),
		tlv.MakePrimitiveRecord(anchorTotalType, &total),
		tlv.MakePrimitiveRecord(anchorFeeType, &fee),
		tlv.MakePrimitiveRecord(anchorMinConfirmsType, &a.MinConfirms),
		tlv.MakePrimitiveRecord(anchorCommitKeyType, &a.CommitKey),
	}

	a.Change.WhenSome(func(c Change) {
		changeAmt := uint64(c.Amount)
		records = append(records,
			tlv.MakePrimitiveRecord(anchorChangeKeyType, &c.PubKey),
			tlv.MakePrimitiveRecord(anchorChangeAmtType, &changeAmt),
		)
	})

	stream, err := tlv.NewStream(records...)
	if err != nil {
		return err
	}

	return stream.Encode(w)
}

// Decode reads an anchor from a TLV stream.
func (a *Anchor) Decode(r io.Reader) error {
	var (
		total, fee, changeAmt uint64
		changeKey             *btcec.PublicKey
	)

	stream, err := tlv.NewStream(
		tlv.MakeDynamicRecord(
			anchorInputsType, &a.Inputs, inputsSize(&a.Inputs),
			inputsEncoder, inputsDecoder,
		),
		tlv.MakePrimitiveRecord(anchorTotalType, &total),
		tlv.MakePrimitiveRecord(anchorFeeType, &fee),
		tlv.MakePrimitiveRecord(anchorMinConfirmsType, &a.MinConfirms),
		tlv.MakePrimitiveRecord(anchorCommitKeyType, &a.CommitKey),
		tlv.MakePrimitiveRecord(anchorChangeKeyType, &changeKey),
		tlv.MakePrimitiveRecord(anchorChangeAmtType, &changeAmt),
	)
	if err != nil {
		return err
	}

	parsedTypes, err := stream.DecodeWithParsedTypes(r)
	if err != nil {
		return err
	}

	err = requireTypes(
		"anchor", parsedTypes, anchorInputsType, anchorTotalType,
		anchorFeeType, anchorMinConfirmsType, anchorCommitKeyType,
	)
	if err != nil {
		return err
	}

	if total == 0 || total > uint64(btcutil.MaxSatoshi) {
		return fmt.Errorf("%w: anchor total %d", ErrInvalidAmount,
			total)
	}
	if fee > uint64(btcutil.MaxSatoshi) {
		return fmt.Errorf("%w: anchor fee %d", ErrInvalidFee, fee)
	}

	a.Total = btcutil.Amount(total)
	a.Fee = btcutil.Amount(fee)

	_, hasKey := parsedTypes[anchorChangeKeyType]
	_, hasAmt := parsedTypes[anchorChangeAmtType]
	switch {
	case hasKey && hasAmt:
		if changeAmt > uint64(btcutil.MaxSatoshi) {
			return fmt.Errorf("%w: anchor change %d",
				ErrInvalidAmount, changeAmt)
		}

		a.Change = fn.Some(Change{
			PubKey: changeKey,
			Amount: btcutil.Amount(changeAmt),
		})

	case hasKey || hasAmt:
		return fmt.Errorf("%w: incomplete anchor change",
			ErrMissingField)

	default:
		a.Change = fn.None[Change]()
	}

	return nil
}

// encodeInputs writes the inputs as a count followed by each outpoint, amount
// and script.
func encodeInputs(w io.Writer, inputs []AnchorInput) error {
	if err := wire.WriteVarInt(w, 0, uint64(len(inputs))); err != nil {
		return err
	}

	for _, in := range inputs {
		if _, err := w.Write(in.OutPoint.Hash[:]); err != nil {
			return err
		}
		err := binary.Write(w, byteOrder, in.OutPoint.Index)
		if err != nil {
			return err
		}
		err = binary.Write(w, byteOrder, uint64(in.Amount))
		if err != nil {
			return err
		}
		if err := wire.WriteVarBytes(w, 0, in.Script); err != nil {
			return err
		}
	}

	return nil
}

// decodeInputs reads inputs written by encodeInputs.
func decodeInputs(r io.Reader) ([]AnchorInput, error) {
	numInputs, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}
	if numInputs > maxAnchorInputs {
		return nil, fmt.Errorf("too many anchor inputs: %d", numInputs)
	}

	inputs := make([]AnchorInput, numInputs)
	for i := range inputs {
		in := &inputs[i]

		if _, err := io.ReadFull(r, in.OutPoint.Hash[:]); err != nil {
			return nil, err
		}
		err := binary.Read(r, byteOrder, &in.OutPoint.Index)
		if err != nil {
			return nil, err
		}

		var amt uint64
		if err := binary.Read(r, byteOrder, &amt); err != nil {
			return nil, err
		}
		if amt > uint64(btcutil.MaxSatoshi) {
			return nil, fmt.Errorf("%w: input amount %d",
				ErrInvalidAmount, amt)
		}
		in.Amount = btcutil.Amount(amt)

		in.Script, err = wire.ReadVarBytes(
			r, 0, maxScriptSize, "anchor script",
		)
		if err != nil {
			return nil, err
		}
	}

	return inputs, nil
}

// inputsSize returns the size function of the inputs record.
func inputsSize(inputs *[]AnchorInput) tlv.SizeFunc {
	return func() uint64 {
		var b bytes.Buffer
		if err := encodeInputs(&b, *inputs); err != nil {
			panic(err)
		}

		return uint64(b.Len())
	}
}

// inputsEncoder is a custom TLV encoder for the anchor inputs.
func inputsEncoder(w io.Writer, val any, _ *[8]byte) error {
	if typ, ok := val.(*[]AnchorInput); ok {
		return encodeInputs(w, *typ)
	}

	return tlv.NewTypeForEncodingErr(val, "[]AnchorInput")
}

// inputsDecoder is a custom TLV decoder for the anchor inputs.
func inputsDecoder(r io.Reader, val any, _ *[8]byte, l uint64) error {
	if typ, ok := val.(*[]AnchorInput); ok {
		inputs, err := decodeInputs(io.LimitReader(r, int64(l)))
		if err != nil {
			return err
		}

		*typ = inputs

		return nil
	}

	return tlv.NewTypeForDecodingErr(val, "[]AnchorInput", l, l)
}
