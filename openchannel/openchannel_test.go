package openchannel

import (
	"bytes"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/tlv"
	"github.com/stretchr/testify/require"
)

const testTxid = "a3f1c0de00000000000000000000000000000000000000000000000000000001"

func newTestKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	return priv
}

// TestFirstRevocationHash checks the revocation hash against a known answer
// and that it commits to the index 0 preimage.
func TestFirstRevocationHash(t *testing.T) {
	t.Parallel()

	var seed chainhash.Hash
	got := FirstRevocationHash(&seed)

	require.Equal(
		t, "0f419fc420d91b09fa76c8faae7d087810e34ed4acbd2661f91ccbe7b9bcd37c",
		hex.EncodeToString(got[:]),
	)
}

// TestParseAnchorInput tests parsing anchor inputs from the command line
// notation.
func TestParseAnchorInput(t *testing.T) {
	t.Parallel()

	in, err := ParseAnchorInput(testTxid + "/1/250000/76a914")
	require.NoError(t, err)

	txid, err := chainhash.NewHashFromStr(testTxid)
	require.NoError(t, err)

	require.Equal(t, *txid, in.OutPoint.Hash)
	require.EqualValues(t, 1, in.OutPoint.Index)
	require.Equal(t, btcutil.Amount(250000), in.Amount)
	require.Equal(t, []byte{0x76, 0xa9, 0x14}, in.Script)

	invalid := []string{
		"",
		testTxid,
		testTxid + "/1/250000",
		"abcd/1/250000/00",
		testTxid + "/x/250000/00",
		testTxid + "/1/-5/00",
		testTxid + "/1/250000/zz",
		testTxid + "/1/250000/00/extra",
		testTxid + "/1/2100000000000001/00",
	}
	for _, s := range invalid {
		_, err := ParseAnchorInput(s)
		require.ErrorIs(t, err, ErrInvalidAnchorInput, s)
	}
}

// TestBuild tests the funding checks and change handling of Build.
func TestBuild(t *testing.T) {
	t.Parallel()

	changeKey := newTestKey(t).PubKey()
	commitKey := newTestKey(t).PubKey()
	finalKey := newTestKey(t).PubKey()

	input := func(sats int64) AnchorInput {
		in, err := ParseAnchorInput(
			testTxid + "/0/" + strconv.FormatInt(sats, 10) + "/00",
		)
		require.NoError(t, err)

		return *in
	}

	tests := []struct {
		name      string
		amount    btcutil.Amount
		inputs    []AnchorInput
		anchorFee fn.Option[btcutil.Amount]
		commitFee fn.Option[btcutil.Amount]
		locktime  time.Duration
		expErr    error
		expChange fn.Option[btcutil.Amount]
	}{
		{
			name:      "exact funding",
			amount:    100000,
			inputs:    []AnchorInput{input(105000)},
			expChange: fn.None[btcutil.Amount](),
		},
		{
			name:   "change",
			amount: 100000,
			inputs: []AnchorInput{
				input(60000), input(60000),
			},
			expChange: fn.Some(btcutil.Amount(15000)),
		},
		{
			name:      "zero fees",
			amount:    100000,
			inputs:    []AnchorInput{input(100000)},
			anchorFee: fn.Some(btcutil.Amount(0)),
			commitFee: fn.Some(btcutil.Amount(0)),
			expChange: fn.None[btcutil.Amount](),
		},
		{
			name:   "insufficient funds",
			amount: 100000,
			inputs: []AnchorInput{input(104999)},
			expErr: ErrInsufficientFunds,
		},
		{
			name:      "negative anchor fee",
			amount:    1000,
			inputs:    []AnchorInput{input(500)},
			anchorFee: fn.Some(btcutil.Amount(-600)),
			expErr:    ErrInvalidFee,
		},
		{
			name:      "negative commitment fee",
			amount:    100000,
			inputs:    []AnchorInput{input(105000)},
			commitFee: fn.Some(btcutil.Amount(-1)),
			expErr:    ErrInvalidFee,
		},
		{
			name:      "fee above max satoshi",
			amount:    100000,
			inputs:    []AnchorInput{input(105000)},
			anchorFee: fn.Some[btcutil.Amount](btcutil.MaxSatoshi + 1),
			expErr:    ErrInvalidFee,
		},
		{
			name:   "zero amount",
			amount: 0,
			inputs: []AnchorInput{input(105000)},
			expErr: ErrInvalidAmount,
		},
		{
			name:   "amount above max satoshi",
			amount: btcutil.MaxSatoshi + 1,
			inputs: []AnchorInput{input(105000)},
			expErr: ErrInvalidAmount,
		},
		{
			name:   "inputs summing past int64",
			amount: 100000,
			inputs: []AnchorInput{
				{Amount: math.MaxInt64},
				{Amount: math.MaxInt64},
				{Amount: 3},
			},
			expErr: ErrInvalidAmount,
		},
		{
			name:     "short locktime",
			amount:   100000,
			inputs:   []AnchorInput{input(105000)},
			locktime: time.Hour,
			expErr:   ErrLocktimeTooShort,
		},
		{
			name:     "locktime beyond 32 bits",
			amount:   100000,
			inputs:   []AnchorInput{input(105000)},
			locktime: 5000000000 * time.Second,
			expErr:   ErrLocktimeTooLong,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			msg, err := Build(BuildConfig{
				Seq:       42,
				Amount:    test.amount,
				ChangeKey: changeKey,
				CommitKey: commitKey,
				FinalKey:  finalKey,
				Inputs:    test.inputs,
				AnchorFee: test.anchorFee,
				CommitFee: test.commitFee,
				Locktime:  test.locktime,
			})
			if test.expErr != nil {
				require.ErrorIs(t, err, test.expErr)
				require.Nil(t, msg)

				return
			}
			require.NoError(t, err)

			require.EqualValues(t, 42, msg.Seq)
			require.Equal(
				t, test.commitFee.UnwrapOr(DefaultCommitFee),
				msg.CommitFee,
			)
			require.EqualValues(
				t, (26 * time.Hour).Seconds(),
				msg.LocktimeSeconds,
			)
			require.Equal(
				t, test.anchorFee.UnwrapOr(DefaultAnchorFee),
				msg.Anchor.Fee,
			)
			require.EqualValues(
				t, DefaultMinConfirms, msg.Anchor.MinConfirms,
			)

			change := fn.None[btcutil.Amount]()
			msg.Anchor.Change.WhenSome(func(c Change) {
				require.True(t, c.PubKey.IsEqual(changeKey))
				change = fn.Some(c.Amount)
			})
			require.Equal(t, test.expChange, change)
		})
	}
}

// TestMessageEncodeDecode makes sure a built message survives the TLV
// encoding, with and without change.
func TestMessageEncodeDecode(t *testing.T) {
	t.Parallel()

	in, err := ParseAnchorInput(testTxid + "/3/300000/0014deadbeef")
	require.NoError(t, err)

	for _, amount := range []btcutil.Amount{295000, 200000} {
		msg, err := Build(BuildConfig{
			Seed:      chainhash.HashH([]byte("seed")),
			Seq:       uint64(time.Now().Unix()),
			Amount:    amount,
			ChangeKey: newTestKey(t).PubKey(),
			CommitKey: newTestKey(t).PubKey(),
			FinalKey:  newTestKey(t).PubKey(),
			Inputs:    []AnchorInput{*in},
		})
		require.NoError(t, err)

		var b bytes.Buffer
		require.NoError(t, msg.Encode(&b))

		encoded := b.Bytes()

		var decoded Message
		require.NoError(t, decoded.Decode(bytes.NewReader(encoded)))

		require.Equal(t, msg.Seq, decoded.Seq)
		require.Equal(t, msg.RevocationHash, decoded.RevocationHash)
		require.True(t, msg.FinalKey.IsEqual(decoded.FinalKey))
		require.True(t, msg.Anchor.CommitKey.IsEqual(
			decoded.Anchor.CommitKey,
		))
		require.Equal(t, msg.Anchor.Inputs, decoded.Anchor.Inputs)
		require.Equal(t, msg.Anchor.TotalIn(), decoded.Anchor.TotalIn())
		require.Equal(
			t, msg.Anchor.Change.IsSome(),
			decoded.Anchor.Change.IsSome(),
		)

		// Encoding the decoded message yields the same bytes.
		var b2 bytes.Buffer
		require.NoError(t, decoded.Encode(&b2))
		require.Equal(t, encoded, b2.Bytes())
	}
}

// testMessage builds a valid message with change.
func testMessage(t *testing.T) *Message {
	t.Helper()

	in, err := ParseAnchorInput(testTxid + "/0/300000/00")
	require.NoError(t, err)

	msg, err := Build(BuildConfig{
		Seq:       7,
		Amount:    200000,
		ChangeKey: newTestKey(t).PubKey(),
		CommitKey: newTestKey(t).PubKey(),
		FinalKey:  newTestKey(t).PubKey(),
		Inputs:    []AnchorInput{*in},
	})
	require.NoError(t, err)

	return msg
}

// TestMessageMissingFields makes sure a stream lacking any required record is
// rejected instead of decoding into zero values.
func TestMessageMissingFields(t *testing.T) {
	t.Parallel()

	msg := testMessage(t)

	var anchor bytes.Buffer
	require.NoError(t, msg.Anchor.Encode(&anchor))

	var (
		revHash     = [32]byte(msg.RevocationHash)
		fee         = uint64(msg.CommitFee)
		anchorBytes = anchor.Bytes()
	)
	records := msg.records(&revHash, &fee, &anchorBytes)

	for _, skip := range records {
		var kept []tlv.Record
		for _, r := range records {
			if r.Type() != skip.Type() {
				kept = append(kept, r)
			}
		}

		stream, err := tlv.NewStream(kept...)
		require.NoError(t, err)

		var b bytes.Buffer
		require.NoError(t, stream.Encode(&b))

		var decoded Message
		err = decoded.Decode(&b)
		require.ErrorIs(t, err, ErrMissingField, "type %d", skip.Type())
	}

	// A stream holding only the sequence number.
	seq := uint64(1)
	stream, err := tlv.NewStream(tlv.MakePrimitiveRecord(seqType, &seq))
	require.NoError(t, err)

	var b bytes.Buffer
	require.NoError(t, stream.Encode(&b))

	var decoded Message
	require.ErrorIs(t, decoded.Decode(&b), ErrMissingField)

	// An anchor without its commit key, and one with a change key but no
	// change amount.
	var (
		inputs    = msg.Anchor.Inputs
		total     = uint64(msg.Anchor.Total)
		anchorFee = uint64(msg.Anchor.Fee)
		minConfs  = msg.Anchor.MinConfirms
		commitKey = msg.Anchor.CommitKey
		changeKey = newTestKey(t).PubKey()
	)
	anchorRecords := func() []tlv.Record {
		return []tlv.Record{
			tlv.MakeDynamicRecord(
				anchorInputsType, &inputs, inputsSize(&inputs),
				inputsEncoder, inputsDecoder,
			),
			tlv.MakePrimitiveRecord(anchorTotalType, &total),
			tlv.MakePrimitiveRecord(anchorFeeType, &anchorFee),
			tlv.MakePrimitiveRecord(anchorMinConfirmsType, &minConfs),
		}
	}
	incomplete := [][]tlv.Record{
		anchorRecords(),
		append(
			anchorRecords(),
			tlv.MakePrimitiveRecord(anchorCommitKeyType, &commitKey),
			tlv.MakePrimitiveRecord(anchorChangeKeyType, &changeKey),
		),
	}
	for _, recs := range incomplete {
		stream, err := tlv.NewStream(recs...)
		require.NoError(t, err)

		var b bytes.Buffer
		require.NoError(t, stream.Encode(&b))

		var a Anchor
		require.ErrorIs(t, a.Decode(&b), ErrMissingField)
	}
}

// TestDecodeInvalidAmounts makes sure amounts that don't fit a satoshi value
// aren't decoded into negative numbers.
func TestDecodeInvalidAmounts(t *testing.T) {
	t.Parallel()

	encode := func(msg *Message) *bytes.Buffer {
		var b bytes.Buffer
		require.NoError(t, msg.Encode(&b))

		return &b
	}

	msg := testMessage(t)
	msg.CommitFee = -600

	var decoded Message
	require.ErrorIs(t, decoded.Decode(encode(msg)), ErrInvalidFee)

	msg = testMessage(t)
	msg.Anchor.Fee = -600
	require.ErrorIs(t, decoded.Decode(encode(msg)), ErrInvalidFee)

	msg = testMessage(t)
	msg.Anchor.Total = btcutil.MaxSatoshi + 1
	require.ErrorIs(t, decoded.Decode(encode(msg)), ErrInvalidAmount)

	msg = testMessage(t)
	msg.Anchor.Inputs[0].Amount = -1
	require.ErrorIs(t, decoded.Decode(encode(msg)), ErrInvalidAmount)
}

// TestParseWIF tests that only testnet keys are accepted.
func TestParseWIF(t *testing.T) {
	t.Parallel()

	priv := newTestKey(t)

	testnet, err := btcutil.NewWIF(priv, &chaincfg.TestNet3Params, true)
	require.NoError(t, err)

	parsed, err := ParseWIF(testnet.String())
	require.NoError(t, err)
	require.True(t, parsed.PubKey().IsEqual(priv.PubKey()))

	mainnet, err := btcutil.NewWIF(priv, &chaincfg.MainNetParams, true)
	require.NoError(t, err)

	_, err = ParseWIF(mainnet.String())
	require.ErrorIs(t, err, ErrNotTestnet)

	_, err = ParseWIF(strings.Repeat("z", 52))
	require.Error(t, err)
}
