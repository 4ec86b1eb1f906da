package main

import (
	"encoding/hex"
	"fmt"

	"github.com/lightningnetwork/shachain/shachain"
	"github.com/urfave/cli"
)

var generateCommand = cli.Command{
	Name:     "generate",
	Category: "Chain",
	Usage:    "Print the hashes generated from a seed.",
	Description: `
	Derive the hash at --index from the 32 byte hex encoded seed, and the
	--count-1 hashes following it. Each hash is printed on its own line
	prefixed by its index.`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "seed",
			Usage: "the hex encoded 32 byte seed",
		},
		cli.Uint64Flag{
			Name:  "index",
			Usage: "the index of the first hash to print",
		},
		cli.Uint64Flag{
			Name:  "count",
			Value: 1,
			Usage: "the number of hashes to print",
		},
	},
	Action: generate,
}

func generate(ctx *cli.Context) error {
	if !ctx.IsSet("seed") {
		return cli.ShowCommandHelp(ctx, "generate")
	}

	seed, err := shachain.HashFromString(ctx.String("seed"))
	if err != nil {
		return fmt.Errorf("invalid seed: %w", err)
	}

	start := ctx.Uint64("index")
	count := ctx.Uint64("count")
	for i := uint64(0); i < count; i++ {
		v := start + i

		// Stop at the end of the index space.
		if v < start {
			break
		}

		hash := shachain.GenerateFromSeed(seed, v)
		fmt.Fprintf(ctx.App.Writer, "%d %s\n", v,
			hex.EncodeToString(hash[:]))
	}

	return nil
}
