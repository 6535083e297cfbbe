// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package nodeclient defines a capability shared by the mock ledger and a
// real node's RPC client, so application code can be written once against
// NodeClient and only choose its backend at wiring time (the "dynamic
// polymorphism over clients" property of the system this package
// supports).
package nodeclient

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// TransactionInfo mirrors the fields a caller needs out of
// gettransaction/getrawtransaction: the decoded transaction plus, when
// mined, the block it landed in.
type TransactionInfo struct {
	Tx          *wire.MsgTx
	Txid        chainhash.Hash
	BlockHash   *chainhash.Hash
	BlockHeight *int64
}

// BlockInfo mirrors the fields a caller needs out of
// getblock/getblockheader.
type BlockInfo struct {
	Height      int64
	Hash        chainhash.Hash
	PrevHash    chainhash.Hash
	MerkleRoot  chainhash.Hash
	Timestamp   int64
	Txids       []chainhash.Hash
}

// NodeClient is the superset of operations section 4.6 of the ledger
// facade exposes, shaped after github.com/btcsuite/btcd/rpcclient's own
// method signatures so that application code written against a real
// rpcclient.Client is a drop-in match for nodeclient.Mock.
type NodeClient interface {
	SendRawTransaction(tx *wire.MsgTx) (*chainhash.Hash, error)
	GetRawTransaction(txid *chainhash.Hash) (*TransactionInfo, error)
	GetTransaction(txid *chainhash.Hash) (*TransactionInfo, error)

	SendToAddress(address btcutil.Address, amount btcutil.Amount) (*chainhash.Hash, error)
	GetNewAddress() (btcutil.Address, error)
	GetBalance(address btcutil.Address) (btcutil.Amount, error)

	GenerateToAddress(numBlocks int64, address btcutil.Address) ([]*chainhash.Hash, error)

	GetBestBlockHash() (*chainhash.Hash, error)
	GetBlock(blockHash *chainhash.Hash) (*BlockInfo, error)
	GetBlockHeader(blockHash *chainhash.Hash) (*BlockInfo, error)
	GetBlockCount() (int64, error)

	FundRawTransaction(tx *wire.MsgTx) (*wire.MsgTx, btcutil.Amount, error)
	SignRawTransactionWithWallet(tx *wire.MsgTx) (*wire.MsgTx, bool, error)
}
