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

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/gridloop/miner/bundle"
	"github.com/gridloop/miner/chain"
	"github.com/gridloop/miner/eventbus"
	"github.com/gridloop/miner/internal/config"
	"github.com/gridloop/miner/internal/keystore"
	"github.com/gridloop/miner/log"
	"github.com/gridloop/miner/record"
	"github.com/gridloop/miner/session"
	"github.com/gridloop/miner/signer"
	"github.com/gridloop/miner/supervisor"
)

// runCommand is the explicit spelling of the default action: load config,
// start every configured session, and block until interrupted.
var runCommand = &cli.Command{
	Name:   "run",
	Usage:  "start configured sessions and block until interrupted",
	Flags:  runFlags,
	Action: runAction,
}

var walletCommand = &cli.Command{
	Name:  "wallet",
	Usage: "manage keystore wallets",
	Subcommands: []*cli.Command{
		{
			Name:   "new",
			Usage:  "generate a new wallet key in the keystore",
			Action: walletNewAction,
		},
		{
			Name:   "list",
			Usage:  "list wallets held in the keystore",
			Action: walletListAction,
		},
	},
}

var sessionCommand = &cli.Command{
	Name:  "session",
	Usage: "start a single session against a running gateway",
	Subcommands: []*cli.Command{
		{
			Name:   "start",
			Usage:  "start one session and block until interrupted",
			Flags:  runFlags,
			Action: sessionStartAction,
		},
	},
}

// buildConfig assembles a config.Config from an optional TOML file
// overlaid by CLI flags.
func buildConfig(ctx *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := ctx.String(configFileFlag.Name); path != "" {
		if err := config.Load(path, &cfg); err != nil {
			return cfg, fmt.Errorf("loading config: %w", err)
		}
	}
	if v := ctx.String(rpcEndpointFlag.Name); v != "" {
		cfg.RPC.Endpoint = v
	}
	if v := ctx.String(wsEndpointFlag.Name); v != "" {
		cfg.RPC.WSEndpoint = v
	}
	if v := ctx.String(bundleEndpointFlag.Name); v != "" {
		cfg.Bundle.Endpoint = v
	}
	if v := ctx.String(keystoreDirFlag.Name); v != "" {
		cfg.KeystoreDir = v
	}
	if w := ctx.String(walletFlag.Name); w != "" {
		cfg.Wallets = append(cfg.Wallets, config.WalletConfig{
			Wallet:          w,
			Strategy:        ctx.String(strategyFlag.Name),
			PerSquareAmount: ctx.Uint64(perSquareAmountFlag.Name),
			MaxTip:          ctx.Uint64(maxTipFlag.Name),
			NumSquares:      ctx.Int(numSquaresFlag.Name),
		})
	}
	return cfg, nil
}

// buildSupervisor wires a Gateway, Submitter, keystore-backed Signer, and
// event bus into a Supervisor ready to start sessions.
func buildSupervisor(cfg config.Config) (*supervisor.Supervisor, *eventbus.Bus, error) {
	ks, err := keystore.Open(cfg.KeystoreDir)
	if err != nil {
		return nil, nil, err
	}
	wallets, err := ks.List()
	if err != nil {
		return nil, nil, err
	}
	sg := signer.NewMemorySigner()
	for _, w := range wallets {
		priv, err := ks.Load(w)
		if err != nil {
			return nil, nil, err
		}
		sg.AddKey(priv)
	}

	gw := chain.NewGateway(cfg.RPC.Endpoint, cfg.RPC.WSEndpoint)
	sub := bundle.NewSubmitter(cfg.Bundle.Endpoint, nil)
	bus := eventbus.NewBus(eventbus.MinBufferSize)
	sink := record.NewLogSink(log.New("component", "record"))

	sup := supervisor.New(supervisor.Config{
		Gateway:      gw,
		Signer:       sg,
		Submitter:    sub,
		Bus:          bus,
		Sink:         sink,
		DriverConfig: cfg.DriverConfig(),
	})
	return sup, bus, nil
}

// runAction starts every configured session and blocks until the process
// receives an interrupt, at which point every driver is stopped cleanly.
func runAction(ctx *cli.Context) error {
	cfg, err := buildConfig(ctx)
	if err != nil {
		return err
	}
	sup, bus, err := buildSupervisor(cfg)
	if err != nil {
		return err
	}

	scfgs, err := cfg.SessionConfigs()
	if err != nil {
		return err
	}
	for _, scfg := range scfgs {
		if err := sup.Start(scfg); err != nil {
			return fmt.Errorf("starting session for %s: %w", scfg.Wallet.String(), err)
		}
	}

	sub := bus.Subscribe()
	defer sub.Unsubscribe()
	go func() {
		for ev := range sub.Events() {
			log.New().Info("event", "kind", int(ev.Kind), "wallet", ev.Wallet.String(), "round", ev.RoundID)
		}
	}()

	waitForInterrupt()
	sup.StopAll()
	return nil
}

// sessionStartAction starts exactly one session described by flags and
// blocks until interrupted.
func sessionStartAction(ctx *cli.Context) error {
	cfg, err := buildConfig(ctx)
	if err != nil {
		return err
	}
	sup, _, err := buildSupervisor(cfg)
	if err != nil {
		return err
	}
	scfgs, err := cfg.SessionConfigs()
	if err != nil {
		return err
	}
	if len(scfgs) != 1 {
		return fmt.Errorf("session start expects exactly one configured wallet, got %d", len(scfgs))
	}
	if err := sup.Start(scfgs[0]); err != nil {
		return err
	}
	waitForInterrupt()
	sup.StopAll()
	return nil
}

func walletNewAction(ctx *cli.Context) error {
	ks, err := keystore.Open(ctx.String(keystoreDirFlag.Name))
	if err != nil {
		return err
	}
	wallet, err := ks.Generate()
	if err != nil {
		return err
	}
	fmt.Println(wallet.String())
	return nil
}

func walletListAction(ctx *cli.Context) error {
	ks, err := keystore.Open(ctx.String(keystoreDirFlag.Name))
	if err != nil {
		return err
	}
	wallets, err := ks.List()
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", "wallet"})
	for i, w := range wallets {
		table.Append([]string{strconv.Itoa(i), w.String()})
	}
	table.Render()
	return nil
}

func waitForInterrupt() {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	<-sigc
}
