// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package nodeclient

import (
	"bytes"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
)

// Real adapts a live github.com/btcsuite/btcd/rpcclient.Client to
// NodeClient, documenting the production counterpart to Mock. It is
// exercised only by the compile-time assertion below: this repo never
// dials a real node.
type Real struct {
	Client *rpcclient.Client
}

var _ NodeClient = (*Real)(nil)

func (r *Real) SendRawTransaction(tx *wire.MsgTx) (*chainhash.Hash, error) {
	return r.Client.SendRawTransaction(tx, false)
}

func (r *Real) GetRawTransaction(txid *chainhash.Hash) (*TransactionInfo, error) {
	verbose, err := r.Client.GetRawTransactionVerbose(txid)
	if err != nil {
		return nil, err
	}
	tx, err := r.Client.GetRawTransaction(txid)
	if err != nil {
		return nil, err
	}
	info := &TransactionInfo{Tx: tx.MsgTx(), Txid: *txid}
	if verbose.BlockHash != "" {
		hash, err := chainhash.NewHashFromStr(verbose.BlockHash)
		if err != nil {
			return nil, err
		}
		header, err := r.Client.GetBlockHeaderVerbose(hash)
		if err != nil {
			return nil, err
		}
		height := int64(header.Height)
		info.BlockHash = hash
		info.BlockHeight = &height
	}
	return info, nil
}

func (r *Real) GetTransaction(txid *chainhash.Hash) (*TransactionInfo, error) {
	result, err := r.Client.GetTransaction(txid)
	if err != nil {
		return nil, err
	}
	rawTx, err := hex.DecodeString(result.Hex)
	if err != nil {
		return nil, err
	}
	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(rawTx)); err != nil {
		return nil, err
	}
	info := &TransactionInfo{Tx: &tx, Txid: *txid}
	if result.BlockHash != "" {
		hash, err := chainhash.NewHashFromStr(result.BlockHash)
		if err != nil {
			return nil, err
		}
		info.BlockHash = hash
	}
	return info, nil
}

func (r *Real) SendToAddress(address btcutil.Address, amount btcutil.Amount) (*chainhash.Hash, error) {
	return r.Client.SendToAddress(address, amount)
}

func (r *Real) GetNewAddress() (btcutil.Address, error) {
	return r.Client.GetNewAddress("")
}

func (r *Real) GetBalance(address btcutil.Address) (btcutil.Amount, error) {
	return r.Client.GetBalance("*")
}

func (r *Real) GenerateToAddress(numBlocks int64, address btcutil.Address) ([]*chainhash.Hash, error) {
	return r.Client.GenerateToAddress(numBlocks, address, nil)
}

func (r *Real) GetBestBlockHash() (*chainhash.Hash, error) {
	return r.Client.GetBestBlockHash()
}

func (r *Real) GetBlock(blockHash *chainhash.Hash) (*BlockInfo, error) {
	verbose, err := r.Client.GetBlockVerbose(blockHash)
	if err != nil {
		return nil, err
	}
	return realBlockInfo(verbose.Height, blockHash, verbose.PreviousHash, verbose.MerkleRoot, verbose.Time, verbose.Tx)
}

func (r *Real) GetBlockHeader(blockHash *chainhash.Hash) (*BlockInfo, error) {
	verbose, err := r.Client.GetBlockHeaderVerbose(blockHash)
	if err != nil {
		return nil, err
	}
	return realBlockInfo(int64(verbose.Height), blockHash, verbose.PreviousHash, verbose.MerkleRoot, verbose.Time, nil)
}

func realBlockInfo(height int64, hash *chainhash.Hash, prevHashStr, merkleRootStr string, timestamp int64, txidStrs []string) (*BlockInfo, error) {
	info := &BlockInfo{Height: height, Hash: *hash, Timestamp: timestamp}
	if prevHashStr != "" {
		prev, err := chainhash.NewHashFromStr(prevHashStr)
		if err != nil {
			return nil, err
		}
		info.PrevHash = *prev
	}
	if merkleRootStr != "" {
		root, err := chainhash.NewHashFromStr(merkleRootStr)
		if err != nil {
			return nil, err
		}
		info.MerkleRoot = *root
	}
	info.Txids = make([]chainhash.Hash, 0, len(txidStrs))
	for _, s := range txidStrs {
		h, err := chainhash.NewHashFromStr(s)
		if err != nil {
			return nil, err
		}
		info.Txids = append(info.Txids, *h)
	}
	return info, nil
}

func (r *Real) GetBlockCount() (int64, error) {
	return r.Client.GetBlockCount()
}

func (r *Real) FundRawTransaction(tx *wire.MsgTx) (*wire.MsgTx, btcutil.Amount, error) {
	result, err := r.Client.FundRawTransaction(tx, rpcclient.FundRawTransactionOpts{}, nil)
	if err != nil {
		return nil, 0, err
	}
	return result.Transaction, result.Fee, nil
}

func (r *Real) SignRawTransactionWithWallet(tx *wire.MsgTx) (*wire.MsgTx, bool, error) {
	signed, complete, err := r.Client.SignRawTransactionWithWallet(tx)
	return signed, complete, err
}
