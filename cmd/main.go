package main

import (
	"fmt"
	"os"
	"tradewatch/cmd/volatility"
	"tradewatch/cmd/watch"
	"tradewatch/src/database"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Tradewatch CMD"
	app.Usage = "The Tradewatch command line interface"

	app.Commands = []cli.Command{
		watchCMD,
		volatilityCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	watchCMD = cli.Command{
		Name:        "watch",
		Usage:       "run the trade watcher",
		Action:      watchAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the headless trade tracking engine`,
	}
	volatilityCMD = cli.Command{
		Name:        "volatility",
		Usage:       "refresh symbol volatility",
		Action:      volatilityAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Backfill OHLCV candles and recompute volatility multipliers`,
	}
)

func watchAction(_ *cli.Context) error {

	logrus.Info("Starting watch CMD")
	logrus.WithField("cmd", "watch")

	watcher := &watch.Watcher{}
	err := watcher.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

// volatilityAction backfills OHLCV candles and refreshes the per-symbol
// volatility multipliers the tracker stamps onto new trades.
func volatilityAction(_ *cli.Context) error {

	logrus.Info("Starting volatility CMD")
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	refresher := &volatility.Refresher{
		Log: logrus.WithField("cmd", "volatility"),
		DB:  database.MainDB,
	}

	err := refresher.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting volatility cmd")
		return err
	}

	return nil
}
