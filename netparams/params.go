// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package netparams groups the chaincfg.Params variants the ledger may be
// opened against, the way btcwallet groups them for its RPC client and
// server ports.
package netparams

import "github.com/btcsuite/btcd/chaincfg"

// Params is used to group parameters for a network the ledger simulates,
// along with the default RPC port a legacyrpc server for that network
// binds to when the caller doesn't request an OS-assigned one.
type Params struct {
	*chaincfg.Params
	RPCServerPort string
}

// MainNetParams mirrors bitcoind's mainnet address version bytes. The
// ledger never talks to mainnet; this exists so callers that want
// mainnet-shaped addresses in test fixtures can request them.
var MainNetParams = Params{
	Params:        &chaincfg.MainNetParams,
	RPCServerPort: "8332",
}

// TestNet3Params mirrors bitcoind's testnet3 address version bytes.
var TestNet3Params = Params{
	Params:        &chaincfg.TestNet3Params,
	RPCServerPort: "18332",
}

// RegressionNetParams is the default network for a freshly created
// ledger: regtest address version bytes, no checkpoints, no DNS seeds.
// It is the closest real chaincfg.Params analog to "no consensus, no
// peers" that the simulator runs under.
var RegressionNetParams = Params{
	Params:        &chaincfg.RegressionNetParams,
	RPCServerPort: "18443",
}

// SimNetParams mirrors btcd's simnet, useful for test suites that already
// assume simnet-shaped addresses.
var SimNetParams = Params{
	Params:        &chaincfg.SimNetParams,
	RPCServerPort: "18556",
}

// Default is the network parameter set a Ledger uses when none is given
// explicitly.
var Default = RegressionNetParams
