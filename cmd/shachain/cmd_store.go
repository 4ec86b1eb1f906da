package main

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/lightningnetwork/shachain/chainstore"
	"github.com/lightningnetwork/shachain/shachain"
	"github.com/urfave/cli"
)

var (
	dbFlag = cli.StringFlag{
		Name:      "db",
		Usage:     "the path of the store database",
		TakesFile: true,
	}

	nameFlag = cli.StringFlag{
		Name:  "name",
		Usage: "the name of the store within the database",
	}
)

var addHashesCommand = cli.Command{
	Name:      "addhashes",
	Category:  "Store",
	Usage:     "Add received hashes to a store.",
	ArgsUsage: "hash...",
	Description: `
	Add the hex encoded hashes to the named store in order, starting at
	--start or right after the last hash already stored. Each accepted hash
	is persisted before the next one is added, the first rejected hash
	stops the command.`,
	Flags: []cli.Flag{
		dbFlag,
		nameFlag,
		cli.Uint64Flag{
			Name:  "start",
			Usage: "the index of the first hash",
		},
	},
	Action: addHashes,
}

// openStore opens the database given by --db and checks --name is set.
func openStore(ctx *cli.Context) (*chainstore.DB, string, error) {
	if ctx.String("db") == "" {
		return nil, "", fmt.Errorf("--db must be set")
	}
	if ctx.String("name") == "" {
		return nil, "", fmt.Errorf("--name must be set")
	}

	db, err := chainstore.Open(ctx.String("db"))
	if err != nil {
		return nil, "", err
	}

	return db, ctx.String("name"), nil
}

func addHashes(ctx *cli.Context) error {
	if ctx.NArg() == 0 {
		return cli.ShowCommandHelp(ctx, "addhashes")
	}

	db, name, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	start := ctx.Uint64("start")
	for i, arg := range ctx.Args() {
		hash, err := shachain.HashFromString(arg)
		if err != nil {
			return fmt.Errorf("invalid hash %q: %w", arg, err)
		}

		var v uint64
		if ctx.IsSet("start") {
			v = start + uint64(i)
			err = db.AddHash(name, v, hash)
		} else {
			v, err = db.AddNextHash(name, hash)
		}
		if err != nil {
			return fmt.Errorf("unable to add hash %v: %w", arg, err)
		}

		fmt.Fprintf(ctx.App.Writer, "added #%d\n", v)
	}

	return nil
}

var lookupCommand = cli.Command{
	Name:      "lookup",
	Category:  "Store",
	Usage:     "Print a hash reconstructed from a store.",
	ArgsUsage: "index",
	Flags: []cli.Flag{
		dbFlag,
		nameFlag,
	},
	Action: lookup,
}

func lookup(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "lookup")
	}

	v, err := strconv.ParseUint(ctx.Args().First(), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid index: %w", err)
	}

	db, name, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := db.FetchStore(name)
	if err != nil {
		return err
	}

	hash, err := store.LookUp(v)
	if err != nil {
		return err
	}

	fmt.Fprintln(ctx.App.Writer, hex.EncodeToString(hash[:]))

	return nil
}
