// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/btcsuite/btclog"
	flags "github.com/jessevdk/go-flags"

	"github.com/chainwayxyz/bitcoin-mock-rpc/internal/cfgutil"
	"github.com/chainwayxyz/bitcoin-mock-rpc/netparams"
)

const (
	defaultRPCListen = "127.0.0.1:0"
	defaultLogLevel  = "info"
	defaultDbPath    = ""
)

type config struct {
	RPCListen string `long:"rpclisten" description:"Host/port to listen for JSON-RPC 2.0 HTTP connections"`
	LogLevel  string `long:"loglevel" description:"Logging level {trace, debug, info, warn, error}"`
	DbPath    string `long:"dbpath" description:"Path to the ledger's sqlite file; empty for an in-memory ledger"`
}

// loadConfig parses command-line flags over a default config, the way
// the teacher's loadConfig layers flags.NewParser over defaultCfg. The
// BTCMOCKRPC_LOGLEVEL environment variable seeds LogLevel before flags
// are parsed, so an explicit --loglevel always wins over it.
func loadConfig() (*config, error) {
	cfg := config{
		RPCListen: defaultRPCListen,
		LogLevel:  defaultLogLevel,
		DbPath:    defaultDbPath,
	}
	if env := os.Getenv("BTCMOCKRPC_LOGLEVEL"); env != "" {
		cfg.LogLevel = env
	}

	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, err
	}

	if _, ok := btclog.LevelFromString(cfg.LogLevel); !ok {
		return nil, fmt.Errorf("invalid loglevel: %q", cfg.LogLevel)
	}

	normalized, err := cfgutil.NormalizeAddress(cfg.RPCListen, netparams.Default.RPCServerPort)
	if err != nil {
		return nil, fmt.Errorf("invalid rpclisten address: %v", err)
	}
	cfg.RPCListen = normalized

	return &cfg, nil
}
