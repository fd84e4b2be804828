// Copyright 2019 The go-zilpool Authors
// This file is part of go-zilpool.
//
// go-zilpool is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-zilpool is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-zilpool. If not, see <http://www.gnu.org/licenses/>.

// zilpool is the Zilliqa mining proxy: it takes PoW work items from full
// nodes and farms them out to Ethash GPU miners over HTTP and stratum.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/durianstall/go-zilpool/crypto"
	"github.com/durianstall/go-zilpool/log"
	"github.com/durianstall/go-zilpool/node"
	"github.com/durianstall/go-zilpool/params"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	datadirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory for the store, key files and logs",
	}
	dbFlag = &cli.StringFlag{
		Name:  "db",
		Usage: "Database location (path or \"memory:\")",
	}
	verbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "Logging level (trace|debug|info|warn|error|crit)",
	}
	httpAddrFlag = &cli.StringFlag{
		Name:  "http.addr",
		Usage: "HTTP JSON-RPC listen host",
	}
	httpPortFlag = &cli.IntFlag{
		Name:  "http.port",
		Usage: "HTTP JSON-RPC listen port",
	}
	stratumAddrFlag = &cli.StringFlag{
		Name:  "stratum.addr",
		Usage: "Stratum listen host",
	}
	stratumPortFlag = &cli.IntFlag{
		Name:  "stratum.port",
		Usage: "Stratum listen port",
	}
	keyFileFlag = &cli.StringFlag{
		Name:  "keyfile",
		Usage: "Output file for the generated keypair",
		Value: "mykey.txt",
	}
)

func main() {
	app := &cli.App{
		Name:  "zilpool",
		Usage: "Zilliqa mining proxy",
		Flags: []cli.Flag{
			configFlag, datadirFlag, dbFlag, verbosityFlag,
			httpAddrFlag, httpPortFlag,
			stratumAddrFlag, stratumPortFlag,
		},
		Action: runProxy,
		Commands: []*cli.Command{
			{
				Name:   "genkey",
				Usage:  "Generate a node keypair",
				Flags:  []cli.Flag{datadirFlag, keyFileFlag},
				Action: genKey,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(ctx *cli.Context) (*params.Config, error) {
	cfg, err := params.LoadConfig(ctx.String(configFlag.Name))
	if err != nil {
		return nil, err
	}
	if ctx.IsSet(datadirFlag.Name) {
		cfg.Datadir = ctx.String(datadirFlag.Name)
	}
	if ctx.IsSet(dbFlag.Name) {
		cfg.Database.URI = ctx.String(dbFlag.Name)
	}
	if ctx.IsSet(verbosityFlag.Name) {
		cfg.Logging.Level = ctx.String(verbosityFlag.Name)
	}
	if ctx.IsSet(httpAddrFlag.Name) {
		cfg.APIServer.Host = ctx.String(httpAddrFlag.Name)
	}
	if ctx.IsSet(httpPortFlag.Name) {
		cfg.APIServer.Port = ctx.Int(httpPortFlag.Name)
	}
	if ctx.IsSet(stratumAddrFlag.Name) {
		cfg.StratumServer.Host = ctx.String(stratumAddrFlag.Name)
	}
	if ctx.IsSet(stratumPortFlag.Name) {
		cfg.StratumServer.Port = ctx.Int(stratumPortFlag.Name)
	}
	return cfg, nil
}

func runProxy(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	log.Setup(cfg.Logging.Level, cfg.ResolvePath(cfg.Logging.File),
		cfg.Logging.RotatingSize, cfg.Logging.BackupCount)

	n, err := node.New(cfg)
	if err != nil {
		return err
	}
	if err := n.Start(); err != nil {
		return err
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigc
	log.Info("Shutting down", "signal", sig)
	n.Stop()
	return nil
}

func genKey(ctx *cli.Context) error {
	key, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	cfg := params.DefaultConfig()
	if ctx.IsSet(datadirFlag.Name) {
		cfg.Datadir = ctx.String(datadirFlag.Name)
	}
	if cfg.Datadir != "" {
		if err := os.MkdirAll(cfg.Datadir, 0700); err != nil {
			return err
		}
	}
	path := cfg.ResolvePath(ctx.String(keyFileFlag.Name))
	if err := key.SaveKeyFile(path); err != nil {
		return err
	}
	fmt.Printf("public key: %s\naddress: 0x%s\nkey file: %s\n",
		key.PublicHex(), key.Address(), path)
	return nil
}
