package openchannel

import (
	"fmt"
	"math"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/davecgh/go-spew/spew"
	"github.com/lightningnetwork/lnd/fn/v2"
)

const (
	// LocktimeMin is the shortest locktime we accept. Bitcoin nodes are
	// allowed to be two hours in the future.
	LocktimeMin = 2 * time.Hour

	// DefaultLocktime gives us about a day to react before the remote
	// party can take our funds.
	DefaultLocktime = LocktimeMin + 24*time.Hour

	// DefaultMinConfirms is the default number of anchor confirmations
	// before the channel is active.
	DefaultMinConfirms = 3

	// DefaultAnchorFee is the default fee we pay for the anchor. The remote
	// party contributes to the fee as well.
	DefaultAnchorFee btcutil.Amount = 5000

	// DefaultCommitFee is the default commitment fee. It's only needed for
	// an involuntary close, so it's generous.
	DefaultCommitFee btcutil.Amount = 100000
)

// BuildConfig holds everything needed to build an open channel message.
type BuildConfig struct {
	// Seed is the seed of our revocation hash chain.
	Seed chainhash.Hash

	// Seq is the sequence number of the message.
	Seq uint64

	// Amount is the amount we commit to the channel.
	Amount btcutil.Amount

	// ChangeKey receives any excess of the anchor inputs.
	ChangeKey *btcec.PublicKey

	// CommitKey is the key used in the anchor output.
	CommitKey *btcec.PublicKey

	// FinalKey is the key our final output pays to.
	FinalKey *btcec.PublicKey

	// Inputs fund the anchor.
	Inputs []AnchorInput

	// MinConfirms is the number of anchor confirmations before the
	// channel is active. Zero selects DefaultMinConfirms.
	MinConfirms uint32

	// AnchorFee is the anchor fee, DefaultAnchorFee if unset.
	AnchorFee fn.Option[btcutil.Amount]

	// CommitFee is the commitment fee, DefaultCommitFee if unset.
	CommitFee fn.Option[btcutil.Amount]

	// Locktime is the relative locktime of our outputs. Zero selects
	// DefaultLocktime.
	Locktime time.Duration
}

// checkFee makes sure the fee is a valid amount of satoshis.
func checkFee(name string, fee btcutil.Amount) error {
	if fee < 0 || fee > btcutil.MaxSatoshi {
		return fmt.Errorf("%w: %v %v", ErrInvalidFee, name, fee)
	}

	return nil
}

// Build assembles the open channel message described by cfg.
func Build(cfg BuildConfig) (*Message, error) {
	if cfg.Amount <= 0 || cfg.Amount > btcutil.MaxSatoshi {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, cfg.Amount)
	}
	if cfg.ChangeKey == nil || cfg.CommitKey == nil || cfg.FinalKey == nil {
		return nil, fmt.Errorf("change, commit and final keys are " +
			"required")
	}
	if len(cfg.Inputs) == 0 {
		return nil, fmt.Errorf("%w: no inputs", ErrInsufficientFunds)
	}
	if len(cfg.Inputs) > maxAnchorInputs {
		return nil, fmt.Errorf("%w: %d inputs, max %d",
			ErrInvalidAnchorInput, len(cfg.Inputs), maxAnchorInputs)
	}

	// Bounding every input keeps their sum from overflowing.
	for i, in := range cfg.Inputs {
		if in.Amount <= 0 || in.Amount > btcutil.MaxSatoshi {
			return nil, fmt.Errorf("%w: input %d amount %v",
				ErrInvalidAmount, i, in.Amount)
		}
	}

	minConfirms := cfg.MinConfirms
	if minConfirms == 0 {
		minConfirms = DefaultMinConfirms
	}

	anchorFee := cfg.AnchorFee.UnwrapOr(DefaultAnchorFee)
	if err := checkFee("anchor fee", anchorFee); err != nil {
		return nil, err
	}
	commitFee := cfg.CommitFee.UnwrapOr(DefaultCommitFee)
	if err := checkFee("commitment fee", commitFee); err != nil {
		return nil, err
	}

	locktime := cfg.Locktime
	if locktime == 0 {
		locktime = DefaultLocktime
	}
	if locktime < LocktimeMin {
		return nil, fmt.Errorf("%w: %v < %v", ErrLocktimeTooShort,
			locktime, LocktimeMin)
	}
	locktimeSeconds := uint64(locktime / time.Second)
	if locktimeSeconds > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d seconds", ErrLocktimeTooLong,
			locktimeSeconds)
	}

	anchor := Anchor{
		Inputs:      cfg.Inputs,
		Total:       cfg.Amount,
		Fee:         anchorFee,
		MinConfirms: minConfirms,
		CommitKey:   cfg.CommitKey,
		Change:      fn.None[Change](),
	}

	totalIn := anchor.TotalIn()
	required := anchor.Total + anchor.Fee
	if totalIn < required {
		return nil, fmt.Errorf("%w: only %v in, and %v out (+%v fee)",
			ErrInsufficientFunds, totalIn, anchor.Total, anchor.Fee)
	}

	if totalIn != required {
		anchor.Change = fn.Some(Change{
			PubKey: cfg.ChangeKey,
			Amount: totalIn - required,
		})
	}

	msg := &Message{
		Seq:             cfg.Seq,
		RevocationHash:  FirstRevocationHash(&cfg.Seed),
		FinalKey:        cfg.FinalKey,
		CommitFee:       commitFee,
		LocktimeSeconds: uint32(locktimeSeconds),
		Anchor:          anchor,
	}

	log.Debugf("Built open channel message: %v", newLogClosure(func() string {
		return spew.Sdump(msg)
	}))

	return msg, nil
}

// ParseWIF decodes a WIF encoded private key, which must be for the test
// network.
func ParseWIF(s string) (*btcec.PrivateKey, error) {
	wif, err := btcutil.DecodeWIF(s)
	if err != nil {
		return nil, fmt.Errorf("invalid private key %q: %w", s, err)
	}

	if !wif.IsForNet(&chaincfg.TestNet3Params) {
		return nil, fmt.Errorf("%w: %q", ErrNotTestnet, s)
	}

	return wif.PrivKey, nil
}
