package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lightningnetwork/shachain/build"
	"github.com/lightningnetwork/shachain/chainstore"
	"github.com/lightningnetwork/shachain/openchannel"
	"github.com/lightningnetwork/shachain/shachain"
	"github.com/urfave/cli"
)

const (
	appVersion = "0.1.0"

	defaultLogFilename = "shachain.log"
	defaultDebugLevel  = "info"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[shachain] %v\n", err)
	os.Exit(1)
}

// logRotator is the rotating log file, only written to if --logdir is set.
var logRotator = build.NewRotatingLogWriter()

// setupLogging installs a logger writing to stderr, and to the rotating log
// file if requested, in all subsystems.
func setupLogging(ctx *cli.Context) error {
	if logDir := ctx.GlobalString("logdir"); logDir != "" {
		err := logRotator.InitLogRotator(
			filepath.Join(logDir, defaultLogFilename),
			build.DefaultMaxLogFileSize, build.DefaultMaxLogFiles,
		)
		if err != nil {
			return err
		}
	}

	manager := build.NewSubLoggerManager(&build.LogWriter{
		Rotator: logRotator,
	})
	manager.RegisterSubLogger(shachain.Subsystem, shachain.UseLogger)
	manager.RegisterSubLogger(chainstore.Subsystem, chainstore.UseLogger)
	manager.RegisterSubLogger(openchannel.Subsystem, openchannel.UseLogger)

	return build.ParseAndSetDebugLevels(
		ctx.GlobalString("debuglevel"), manager,
	)
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "shachain"
	app.Version = appVersion + " build=" + build.Deployment.String()
	app.Usage = "generate and store shachain revocation hashes"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "debuglevel",
			Value: defaultDebugLevel,
			Usage: "Logging level for all subsystems {trace, " +
				"debug, info, warn, error, critical, off} -- " +
				"may also be specified as <global-level>," +
				"<subsystem>=<level>,<subsystem2>=<level>,...",
		},
		cli.StringFlag{
			Name:      "logdir",
			Usage:     "Directory to also write the log file to.",
			TakesFile: true,
		},
	}
	app.Before = setupLogging
	app.After = func(*cli.Context) error {
		return logRotator.Close()
	}
	app.Commands = []cli.Command{
		generateCommand,
		openChannelCommand,
		addHashesCommand,
		lookupCommand,
	}

	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fatal(err)
	}
}
