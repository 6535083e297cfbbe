// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net"
	"os"
	"runtime"

	"github.com/chainwayxyz/bitcoin-mock-rpc/ledger"
	"github.com/chainwayxyz/bitcoin-mock-rpc/netparams"
	"github.com/chainwayxyz/bitcoin-mock-rpc/rpc/legacyrpc"
)

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())
	os.Exit(bitcoinMockRPCMain())
}

// bitcoinMockRPCMain is a work-around main function, the way the
// teacher's walletMain is, since deferred cleanup does not run across a
// call to os.Exit in main itself. It returns the process exit code
// directly: 0 on a clean interrupt-triggered shutdown, 1 on a listener
// bind failure, 2 on a store initialization failure.
func bitcoinMockRPCMain() int {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	setLogLevels(cfg.LogLevel)

	l, err := ledger.Open(cfg.DbPath, netparams.Default)
	if err != nil {
		log.Errorf("Unable to open ledger store: %v", err)
		return 2
	}
	defer l.Close()

	listener, err := net.Listen("tcp", cfg.RPCListen)
	if err != nil {
		log.Errorf("Unable to bind RPC listener: %v", err)
		return 1
	}

	server := legacyrpc.NewServer(l, netparams.Default, listener)
	legacyrpc.Registry.Add(server)
	defer legacyrpc.Registry.Remove(server.Addr())

	fmt.Println(server.Addr())
	log.Infof("Ledger RPC server listening on %s", server.Addr())

	addInterruptHandler(server.Stop)

	<-interruptHandlersDone
	log.Info("Shutdown complete")
	return 0
}
