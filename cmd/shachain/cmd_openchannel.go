package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/shachain/openchannel"
	"github.com/lightningnetwork/shachain/shachain"
	"github.com/urfave/cli"
)

var openChannelCommand = cli.Command{
	Name:     "openchannel",
	Category: "Channels",
	Usage:    "Write an open channel message to stdout.",
	ArgsUsage: "seed amount changepubkey commitprivkey outprivkey " +
		"txid/outnum/satoshis/hexscript...",
	Description: `
	Build the open channel message committing amount satoshis to a new
	channel, funded by the given anchor inputs. The message carries the
	hash of the first revocation preimage generated from seed. Any excess
	of the inputs is paid to changepubkey. The private keys must be WIF
	encoded testnet keys.`,
	Flags: []cli.Flag{
		cli.Uint64Flag{
			Name:  "min-anchor-confirms",
			Value: openchannel.DefaultMinConfirms,
			Usage: "number of anchor confirmations before the " +
				"channel is active",
		},
		cli.Uint64Flag{
			Name:  "anchor-fee",
			Value: uint64(openchannel.DefaultAnchorFee),
			Usage: "satoshis to pay for the anchor",
		},
		cli.Uint64Flag{
			Name:  "commitment-fee",
			Value: uint64(openchannel.DefaultCommitFee),
			Usage: "satoshis to pay for the commitment",
		},
		cli.Uint64Flag{
			Name:  "locktime",
			Value: uint64(openchannel.DefaultLocktime / time.Second),
			Usage: "seconds to lock out our transaction redemption",
		},
		cli.BoolFlag{
			Name:  "hex",
			Usage: "hex encode the message",
		},
	},
	Action: openChannel,
}

func openChannel(ctx *cli.Context) error {
	args := ctx.Args()
	if len(args) < 6 {
		return cli.ShowCommandHelp(ctx, "openchannel")
	}

	seed, err := shachain.HashFromString(args[0])
	if err != nil {
		return fmt.Errorf("invalid seed %q: %w", args[0], err)
	}

	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", args[1], err)
	}

	changeKeyBytes, err := hex.DecodeString(args[2])
	if err != nil {
		return fmt.Errorf("invalid change pubkey %q: %w", args[2], err)
	}
	changeKey, err := btcec.ParsePubKey(changeKeyBytes)
	if err != nil {
		return fmt.Errorf("invalid change pubkey %q: %w", args[2], err)
	}

	commitKey, err := openchannel.ParseWIF(args[3])
	if err != nil {
		return err
	}
	finalKey, err := openchannel.ParseWIF(args[4])
	if err != nil {
		return err
	}

	inputs := make([]openchannel.AnchorInput, 0, len(args)-5)
	for _, arg := range args[5:] {
		in, err := openchannel.ParseAnchorInput(arg)
		if err != nil {
			return err
		}

		inputs = append(inputs, *in)
	}

	minConfirms := ctx.Uint64("min-anchor-confirms")
	if minConfirms == 0 || minConfirms > math.MaxUint32 {
		return fmt.Errorf("invalid min-anchor-confirms: %d", minConfirms)
	}

	anchorFee, err := parseFee(ctx, "anchor-fee")
	if err != nil {
		return err
	}
	commitFee, err := parseFee(ctx, "commitment-fee")
	if err != nil {
		return err
	}

	// Checked before converting, larger values overflow time.Duration.
	locktimeSeconds := ctx.Uint64("locktime")
	if locktimeSeconds > math.MaxUint32 {
		return fmt.Errorf("%w: %d seconds",
			openchannel.ErrLocktimeTooLong, locktimeSeconds)
	}

	msg, err := openchannel.Build(openchannel.BuildConfig{
		Seed:        *seed,
		Seq:         uint64(time.Now().Unix()),
		Amount:      btcutil.Amount(amount),
		ChangeKey:   changeKey,
		CommitKey:   commitKey.PubKey(),
		FinalKey:    finalKey.PubKey(),
		Inputs:      inputs,
		MinConfirms: uint32(minConfirms),
		AnchorFee:   fn.Some(anchorFee),
		CommitFee:   fn.Some(commitFee),
		Locktime:    time.Duration(locktimeSeconds) * time.Second,
	})
	if err != nil {
		return err
	}

	var b bytes.Buffer
	if err := msg.Encode(&b); err != nil {
		return err
	}

	if ctx.Bool("hex") {
		_, err = fmt.Fprintln(ctx.App.Writer, hex.EncodeToString(b.Bytes()))
		return err
	}

	_, err = ctx.App.Writer.Write(b.Bytes())

	return err
}

// parseFee reads a fee flag given in satoshis.
func parseFee(ctx *cli.Context, name string) (btcutil.Amount, error) {
	fee := ctx.Uint64(name)
	if fee > uint64(btcutil.MaxSatoshi) {
		return 0, fmt.Errorf("%w: %v %d", openchannel.ErrInvalidFee,
			name, fee)
	}

	return btcutil.Amount(fee), nil
}
