// Copyright 2024 The gridloop Authors
// This file is part of gridloop.
//
// gridloop is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// gridloop is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with gridloop. If not, see <http://www.gnu.org/licenses/>.

// Command gridloop drives one grid-mining session per configured wallet:
// it polls round state, decides which squares to stake, and sequences
// the on-chain transactions to act on that decision.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/gridloop/miner/log"
)

var gitCommit = "" // set via -ldflags at build time

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "gridloop"
	app.Usage = "automated per-wallet grid-mining session driver"
	app.Version = versionString()
	app.Flags = append([]cli.Flag{
		configFileFlag,
		rpcEndpointFlag,
		wsEndpointFlag,
		bundleEndpointFlag,
		keystoreDirFlag,
		verbosityFlag,
	}, runFlags...)
	app.Commands = []*cli.Command{
		runCommand,
		walletCommand,
		sessionCommand,
	}
	app.Action = runAction
	app.Before = func(ctx *cli.Context) error {
		setupLogging(ctx)
		return nil
	}
	return app
}

func versionString() string {
	if gitCommit == "" {
		return "dev"
	}
	return gitCommit
}

func setupLogging(ctx *cli.Context) {
	lvl := log.LvlInfo
	switch ctx.String(verbosityFlag.Name) {
	case "trace":
		lvl = log.LvlTrace
	case "debug":
		lvl = log.LvlDebug
	case "warn":
		lvl = log.LvlWarn
	case "error":
		lvl = log.LvlError
	}
	log.SetLevel(lvl)
}
