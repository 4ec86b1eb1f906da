package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/shachain/openchannel"
	"github.com/lightningnetwork/shachain/shachain"
	"github.com/stretchr/testify/require"
)

const testSeed = "0000000000000000000000000000000000000000000000000000000000000000"

// runApp runs the command line app with the given arguments and returns what
// it printed.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out

	err := app.Run(append(
		[]string{"shachain", "--debuglevel=off"}, args...,
	))

	return out.String(), err
}

// TestGenerateCommand checks the printed hashes against known answers.
func TestGenerateCommand(t *testing.T) {
	out, err := runApp(
		t, "generate", "--seed", testSeed, "--index", "0",
		"--count", "2",
	)
	require.NoError(t, err)

	require.Equal(
		t, "0 f85a0f7f237ed2139855703db4264de380ec731f64a3d832c22a5f2ef615f1d5\n"+
			"1 a07acb1203f8d7a761eb43e109e46fd877031a6fd2a8e6840f064a49ba826aec\n",
		out,
	)

	out, err = runApp(
		t, "generate", "--seed", testSeed,
		"--index", "18446744073709551615", "--count", "3",
	)
	require.NoError(t, err)
	require.Equal(
		t, "18446744073709551615 "+strings.Repeat("0", 64)+"\n", out,
	)

	_, err = runApp(t, "generate", "--seed", "zz")
	require.Error(t, err)
}

// TestStoreCommands adds generated hashes through the command line and looks
// them up again.
func TestStoreCommands(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "store.db")
	seed, err := shachain.HashFromString(strings.Repeat("ab", 32))
	require.NoError(t, err)

	hashArg := func(v uint64) string {
		hash := shachain.GenerateFromSeed(seed, v)
		return hex.EncodeToString(hash[:])
	}

	out, err := runApp(
		t, "addhashes", "--db", dbPath, "--name", "alice",
		hashArg(0), hashArg(1), hashArg(2),
	)
	require.NoError(t, err)
	require.Equal(t, "added #0\nadded #1\nadded #2\n", out)

	out, err = runApp(
		t, "addhashes", "--db", dbPath, "--name", "alice",
		"--start", "3", hashArg(3), hashArg(4),
	)
	require.NoError(t, err)
	require.Equal(t, "added #3\nadded #4\n", out)

	// A hash out of sequence is rejected.
	_, err = runApp(
		t, "addhashes", "--db", dbPath, "--name", "alice",
		"--start", "7", hashArg(7),
	)
	require.ErrorIs(t, err, shachain.ErrIndexSequence)

	for v := uint64(0); v < 5; v++ {
		out, err := runApp(
			t, "lookup", "--db", dbPath, "--name", "alice",
			fmt.Sprintf("%d", v),
		)
		require.NoError(t, err)
		require.Equal(t, hashArg(v)+"\n", out)
	}

	_, err = runApp(
		t, "lookup", "--db", dbPath, "--name", "alice", "5",
	)
	require.ErrorIs(t, err, shachain.ErrUnknownIndex)

	_, err = runApp(t, "lookup", "--name", "alice", "0")
	require.Error(t, err)
}

// TestOpenChannelCommand builds an open channel message and decodes it again.
func TestOpenChannelCommand(t *testing.T) {
	wifKey := func() string {
		priv, err := btcec.NewPrivateKey()
		require.NoError(t, err)

		wif, err := btcutil.NewWIF(priv, &chaincfg.TestNet3Params, true)
		require.NoError(t, err)

		return wif.String()
	}

	changePriv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	changeKey := hex.EncodeToString(
		changePriv.PubKey().SerializeCompressed(),
	)

	input := strings.Repeat("11", 32) + "/0/200000/0014" +
		strings.Repeat("22", 20)

	out, err := runApp(
		t, "openchannel", "--hex", "--anchor-fee", "1000",
		testSeed, "150000", changeKey, wifKey(), wifKey(), input,
	)
	require.NoError(t, err)

	raw, err := hex.DecodeString(strings.TrimSpace(out))
	require.NoError(t, err)

	var msg openchannel.Message
	require.NoError(t, msg.Decode(bytes.NewReader(raw)))

	var zeroSeed chainhash.Hash
	require.Equal(
		t, openchannel.FirstRevocationHash(&zeroSeed),
		msg.RevocationHash,
	)
	require.EqualValues(t, 150000, msg.Anchor.Total)
	require.EqualValues(t, 1000, msg.Anchor.Fee)
	require.True(t, msg.Anchor.Change.IsSome())

	// Inputs not covering the amount are rejected.
	_, err = runApp(
		t, "openchannel", testSeed, "250000", changeKey, wifKey(),
		wifKey(), input,
	)
	require.ErrorIs(t, err, openchannel.ErrInsufficientFunds)

	// Zero fees are honored rather than replaced by the defaults.
	out, err = runApp(
		t, "openchannel", "--hex", "--anchor-fee", "0",
		"--commitment-fee", "0", testSeed, "150000", changeKey,
		wifKey(), wifKey(), input,
	)
	require.NoError(t, err)

	raw, err = hex.DecodeString(strings.TrimSpace(out))
	require.NoError(t, err)
	require.NoError(t, msg.Decode(bytes.NewReader(raw)))
	require.Zero(t, msg.Anchor.Fee)
	require.Zero(t, msg.CommitFee)

	// Negative fees don't parse as satoshis.
	_, err = runApp(
		t, "openchannel", "--anchor-fee", "-600", testSeed, "150000",
		changeKey, wifKey(), wifKey(), input,
	)
	require.Error(t, err)

	_, err = runApp(
		t, "openchannel", "--commitment-fee", "2100000000000001",
		testSeed, "150000", changeKey, wifKey(), wifKey(), input,
	)
	require.ErrorIs(t, err, openchannel.ErrInvalidFee)

	// A locktime that doesn't fit in 32 bits is rejected, not truncated.
	_, err = runApp(
		t, "openchannel", "--locktime", "5000000000", testSeed,
		"150000", changeKey, wifKey(), wifKey(), input,
	)
	require.ErrorIs(t, err, openchannel.ErrLocktimeTooLong)
}
