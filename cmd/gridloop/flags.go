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

package main

import "github.com/urfave/cli/v2"

var configFileFlag = &cli.StringFlag{
	Name:  "config",
	Usage: "path to a TOML configuration file",
}

var rpcEndpointFlag = &cli.StringFlag{
	Name:  "rpc.endpoint",
	Usage: "chain RPC endpoint",
	Value: "http://127.0.0.1:8899",
}

var wsEndpointFlag = &cli.StringFlag{
	Name:  "rpc.ws",
	Usage: "optional websocket endpoint for a slot-subscription fast path",
}

var bundleEndpointFlag = &cli.StringFlag{
	Name:  "bundle.endpoint",
	Usage: "priority bundle endpoint",
}

var keystoreDirFlag = &cli.StringFlag{
	Name:  "keystore",
	Usage: "directory holding wallet keys",
	Value: "./keystore",
}

var verbosityFlag = &cli.StringFlag{
	Name:  "verbosity",
	Usage: "log verbosity: trace, debug, info, warn, error",
	Value: "info",
}

var walletFlag = &cli.StringFlag{
	Name:  "wallet",
	Usage: "base58 wallet address",
}

var strategyFlag = &cli.StringFlag{
	Name:  "strategy",
	Usage: "BEST_EV, CONSERVATIVE, or AGGRESSIVE",
	Value: "BEST_EV",
}

var perSquareAmountFlag = &cli.Uint64Flag{
	Name:  "per-square-amount",
	Usage: "base units staked per selected square",
}

var maxTipFlag = &cli.Uint64Flag{
	Name:  "max-tip",
	Usage: "maximum tip in base units",
}

var numSquaresFlag = &cli.IntFlag{
	Name:  "num-squares",
	Usage: "number of squares to select, 1..=25",
	Value: 1,
}

var runFlags = []cli.Flag{
	walletFlag,
	strategyFlag,
	perSquareAmountFlag,
	maxTipFlag,
	numSquaresFlag,
}
