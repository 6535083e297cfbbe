// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package nodeclient

import (
	"bytes"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/chainwayxyz/bitcoin-mock-rpc/ledger"
	"github.com/chainwayxyz/bitcoin-mock-rpc/netparams"
)

// Mock implements NodeClient directly against an in-process *ledger.Ledger,
// the sandboxed node simulator's entire reason for existing.
type Mock struct {
	ledger *ledger.Ledger
	params netparams.Params
}

// NewMock wraps an already-open ledger as a NodeClient.
func NewMock(l *ledger.Ledger, params netparams.Params) *Mock {
	return &Mock{ledger: l, params: params}
}

var _ NodeClient = (*Mock)(nil)

func serialize(tx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *Mock) SendRawTransaction(tx *wire.MsgTx) (*chainhash.Hash, error) {
	raw, err := serialize(tx)
	if err != nil {
		return nil, err
	}
	txid, err := m.ledger.SubmitTransaction(raw)
	if err != nil {
		return nil, err
	}
	return &txid, nil
}

func (m *Mock) GetRawTransaction(txid *chainhash.Hash) (*TransactionInfo, error) {
	return m.GetTransaction(txid)
}

func (m *Mock) GetTransaction(txid *chainhash.Hash) (*TransactionInfo, error) {
	info, err := m.ledger.TransactionByID(*txid)
	if err != nil {
		return nil, err
	}
	return &TransactionInfo{
		Tx:          info.Tx,
		Txid:        info.Txid,
		BlockHash:   info.BlockHash,
		BlockHeight: info.BlockHeight,
	}, nil
}

func (m *Mock) SendToAddress(address btcutil.Address, amount btcutil.Amount) (*chainhash.Hash, error) {
	txid, err := m.ledger.SendToAddress(address.EncodeAddress(), amount)
	if err != nil {
		return nil, err
	}
	return &txid, nil
}

func (m *Mock) GetNewAddress() (btcutil.Address, error) {
	encoded, err := m.ledger.GenerateNewAddress(ledger.AddressP2TR)
	if err != nil {
		return nil, err
	}
	return btcutil.DecodeAddress(encoded, m.params.Params)
}

func (m *Mock) GetBalance(address btcutil.Address) (btcutil.Amount, error) {
	pkScript, err := txscript.PayToAddrScript(address)
	if err != nil {
		return 0, err
	}
	value, err := m.ledger.Balance(pkScript)
	if err != nil {
		return 0, err
	}
	return btcutil.Amount(value), nil
}

func (m *Mock) GenerateToAddress(numBlocks int64, address btcutil.Address) ([]*chainhash.Hash, error) {
	ids, err := m.ledger.GenerateToAddress(int(numBlocks), address.EncodeAddress())
	if err != nil {
		return nil, err
	}
	out := make([]*chainhash.Hash, len(ids))
	for i := range ids {
		h := ids[i]
		out[i] = &h
	}
	return out, nil
}

func (m *Mock) GetBestBlockHash() (*chainhash.Hash, error) {
	hash, err := m.ledger.BestBlockHash()
	if err != nil {
		return nil, err
	}
	return &hash, nil
}

func toBlockInfo(info *ledger.BlockInfo) *BlockInfo {
	return &BlockInfo{
		Height:     info.Height,
		Hash:       info.BlockID,
		PrevHash:   info.PrevBlockID,
		MerkleRoot: info.MerkleRoot,
		Timestamp:  info.Timestamp,
		Txids:      info.Txids,
	}
}

func (m *Mock) GetBlock(blockHash *chainhash.Hash) (*BlockInfo, error) {
	info, err := m.ledger.BlockByHash(*blockHash)
	if err != nil {
		return nil, err
	}
	return toBlockInfo(info), nil
}

func (m *Mock) GetBlockHeader(blockHash *chainhash.Hash) (*BlockInfo, error) {
	info, err := m.ledger.BlockHeaderByHash(*blockHash)
	if err != nil {
		return nil, err
	}
	return toBlockInfo(info), nil
}

func (m *Mock) GetBlockCount() (int64, error) {
	return m.ledger.BlockCount()
}

func (m *Mock) FundRawTransaction(tx *wire.MsgTx) (*wire.MsgTx, btcutil.Amount, error) {
	raw, err := serialize(tx)
	if err != nil {
		return nil, 0, err
	}
	fundedRaw, fee, err := m.ledger.FundRawTransaction(raw)
	if err != nil {
		return nil, 0, err
	}
	var funded wire.MsgTx
	if err := funded.Deserialize(bytes.NewReader(fundedRaw)); err != nil {
		return nil, 0, err
	}
	return &funded, fee, nil
}

func (m *Mock) SignRawTransactionWithWallet(tx *wire.MsgTx) (*wire.MsgTx, bool, error) {
	raw, err := serialize(tx)
	if err != nil {
		return nil, false, err
	}
	signedRaw, complete, err := m.ledger.SignRawTransactionWithWallet(raw)
	if err != nil {
		return nil, complete, err
	}
	var signed wire.MsgTx
	if err := signed.Deserialize(bytes.NewReader(signedRaw)); err != nil {
		return nil, false, err
	}
	return &signed, complete, nil
}
