// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"

	"github.com/btcsuite/btclog"

	"github.com/chainwayxyz/bitcoin-mock-rpc/ledger"
	"github.com/chainwayxyz/bitcoin-mock-rpc/ledger/ledgerdb"
	"github.com/chainwayxyz/bitcoin-mock-rpc/rpc/legacyrpc"
)

// backendLog is the logging backend every subsystem logger writes
// through. Unlike the teacher's seelog-backed btcwallet.go, this writes
// straight to stdout; there is no daemon log file to rotate.
var backendLog = btclog.NewBackend(os.Stdout)

var (
	log       = backendLog.Logger("BMRD")
	ledgerLog = backendLog.Logger("LDGR")
	storeLog  = backendLog.Logger("STOR")
	rpcLog    = backendLog.Logger("RPCS")
)

// subsystemLoggers maps each subsystem tag to its logger, the way the
// teacher's log.go maps "WLLT"/"TXST"/"CHNS" to wallet/wtxmgr/chain.
var subsystemLoggers = map[string]btclog.Logger{
	"BMRD": log,
	"LDGR": ledgerLog,
	"STOR": storeLog,
	"RPCS": rpcLog,
}

func init() {
	ledger.UseLogger(ledgerLog)
	ledgerdb.UseLogger(storeLog)
	legacyrpc.UseLogger(rpcLog)
}

// setLogLevels sets every subsystem logger to the same level. Invalid
// level strings are ignored and leave the previous level in place.
func setLogLevels(levelStr string) {
	level, ok := btclog.LevelFromString(levelStr)
	if !ok {
		return
	}
	for _, logger := range subsystemLoggers {
		logger.SetLevel(level)
	}
}
