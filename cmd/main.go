package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"positionengine/cmd/pricefeed"
	"positionengine/src/database"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Position Engine CMD"
	app.Usage = "The position engine command line interface"

	app.Commands = []cli.Command{
		priceFeedCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	priceFeedCMD = cli.Command{
		Name:        "pricefeed",
		Usage:       "run price feed",
		Action:      priceFeedAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Poll exchange tickers into the price snapshot table`,
	}
)

func priceFeedAction(_ *cli.Context) error {

	logrus.Info("Starting price feed CMD")

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	feed := &pricefeed.PriceFeed{
		Log: logrus.WithField("cmd", "pricefeed"),
	}

	if err := feed.Start(); err != nil {
		logrus.WithError(err).Error("Starting pricefeed cmd")
		return err
	}

	return nil
}
