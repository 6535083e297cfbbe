// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"bytes"
	"database/sql"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/chainwayxyz/bitcoin-mock-rpc/ledger/ledgerdb"
)

// TransactionInfo is a transaction together with the block-context
// metadata the RPC surface's gettransaction/getrawtransaction family
// needs: nil Block fields mean the transaction is still in the mempool.
type TransactionInfo struct {
	Tx          *wire.MsgTx
	Txid        chainhash.Hash
	Wtxid       chainhash.Hash
	Raw         []byte
	BlockHash   *chainhash.Hash
	BlockHeight *int64
	Position    *int64
}

// TransactionByID looks up a transaction by id, mined or still pending.
// BlockHash/BlockHeight/Position stay nil when the transaction has not
// been mined yet.
func (l *Ledger) TransactionByID(txid chainhash.Hash) (*TransactionInfo, error) {
	var info *TransactionInfo
	err := l.store.ReadTx(func(storeTx *sql.Tx) error {
		rec, err := ledgerdb.GetTransaction(storeTx, txid)
		if err != nil {
			if se, ok := asStoreError(err); ok && se.ErrorCode == ledgerdb.ErrNoExist {
				return ledgerError(ErrUnknownTransaction, "no such transaction", nil)
			}
			return ledgerError(ErrStoreError, "failed to look up transaction", err)
		}

		var msgTx wire.MsgTx
		if err := msgTx.Deserialize(bytes.NewReader(rec.Body)); err != nil {
			return ledgerError(ErrStoreError, "failed to decode stored transaction", err)
		}

		info = &TransactionInfo{
			Tx:    &msgTx,
			Txid:  rec.Txid,
			Wtxid: rec.Wtxid,
			Raw:   rec.Body,
		}
		if rec.BlockID != nil {
			block, err := ledgerdb.GetBlockByHash(storeTx, *rec.BlockID)
			if err != nil {
				return ledgerError(ErrStoreError, "failed to resolve transaction's block", err)
			}
			info.BlockHash = rec.BlockID
			info.BlockHeight = &block.Height
			info.Position = rec.Position
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// BlockInfo is a block together with its contained transaction ids, used
// by getblock/getblockheader.
type BlockInfo struct {
	Height      int64
	BlockID     chainhash.Hash
	PrevBlockID chainhash.Hash
	MerkleRoot  chainhash.Hash
	Timestamp   int64
	Txids       []chainhash.Hash
}

// BlockCount returns the current tip height.
func (l *Ledger) BlockCount() (int64, error) {
	var height int64
	err := l.store.ReadTx(func(storeTx *sql.Tx) error {
		var err error
		height, err = ledgerdb.TipHeight(storeTx)
		return err
	})
	if err != nil {
		return 0, ledgerError(ErrStoreError, "failed to read chain tip", err)
	}
	return height, nil
}

// BestBlockHash returns the tip block's id.
func (l *Ledger) BestBlockHash() (chainhash.Hash, error) {
	var tip *ledgerdb.BlockRecord
	err := l.store.ReadTx(func(storeTx *sql.Tx) error {
		var err error
		tip, err = ledgerdb.TipBlock(storeTx)
		return err
	})
	if err != nil {
		return chainhash.Hash{}, ledgerError(ErrStoreError, "failed to read chain tip", err)
	}
	return tip.BlockID, nil
}

// BlockByHash looks up a block and the ids of its contained transactions.
func (l *Ledger) BlockByHash(id chainhash.Hash) (*BlockInfo, error) {
	var info *BlockInfo
	err := l.store.ReadTx(func(storeTx *sql.Tx) error {
		rec, err := ledgerdb.GetBlockByHash(storeTx, id)
		if err != nil {
			if se, ok := asStoreError(err); ok && se.ErrorCode == ledgerdb.ErrNoExist {
				return ledgerError(ErrUnknownBlock, "no such block", nil)
			}
			return ledgerError(ErrStoreError, "failed to look up block", err)
		}

		txids, err := txidsForBlock(storeTx, rec.Height)
		if err != nil {
			return err
		}

		info = &BlockInfo{
			Height:      rec.Height,
			BlockID:     rec.BlockID,
			PrevBlockID: rec.PrevBlockID,
			MerkleRoot:  rec.MerkleRoot,
			Timestamp:   rec.Timestamp.Unix(),
			Txids:       txids,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// BlockHeaderByHash looks up a block's header fields without its
// transaction list.
func (l *Ledger) BlockHeaderByHash(id chainhash.Hash) (*BlockInfo, error) {
	var info *BlockInfo
	err := l.store.ReadTx(func(storeTx *sql.Tx) error {
		rec, err := ledgerdb.GetBlockByHash(storeTx, id)
		if err != nil {
			if se, ok := asStoreError(err); ok && se.ErrorCode == ledgerdb.ErrNoExist {
				return ledgerError(ErrUnknownBlock, "no such block", nil)
			}
			return ledgerError(ErrStoreError, "failed to look up block", err)
		}
		info = &BlockInfo{
			Height:      rec.Height,
			BlockID:     rec.BlockID,
			PrevBlockID: rec.PrevBlockID,
			MerkleRoot:  rec.MerkleRoot,
			Timestamp:   rec.Timestamp.Unix(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func txidsForBlock(storeTx *sql.Tx, height int64) ([]chainhash.Hash, error) {
	rows, err := storeTx.Query(
		`SELECT txid FROM transactions WHERE block_id = (SELECT block_id FROM blocks WHERE height = ?) ORDER BY position ASC`,
		height,
	)
	if err != nil {
		return nil, ledgerError(ErrStoreError, "failed to list block transactions", err)
	}
	defer rows.Close()

	var out []chainhash.Hash
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, ledgerError(ErrStoreError, "failed to scan block transaction", err)
		}
		var h chainhash.Hash
		copy(h[:], raw)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, ledgerError(ErrStoreError, "failed to iterate block transactions", err)
	}
	return out, nil
}

// spendableOutput is an unspent output discovered while scanning mined
// transactions, annotated with what the maturity rule and the wallet-style
// helpers need to make use of it.
type spendableOutput struct {
	OutPoint wire.OutPoint
	Amount   int64
	PkScript []byte
}

// matureUnspentOutputs scans every mined transaction for unspent outputs
// accepted by match (nil accepts everything), excluding coinbase outputs
// that have not yet accumulated coinbaseMaturity confirmations at
// tipHeight. Mempool outputs are never considered: only durable chain
// state backs a balance or a funding source.
func matureUnspentOutputs(storeTx *sql.Tx, tipHeight int64, match func(pkScript []byte) bool) ([]spendableOutput, error) {
	rows, err := storeTx.Query(
		`SELECT t.body, b.height FROM transactions t
		 JOIN blocks b ON b.block_id = t.block_id
		 WHERE t.block_id IS NOT NULL`,
	)
	if err != nil {
		return nil, ledgerError(ErrStoreError, "failed to scan mined transactions", err)
	}
	defer rows.Close()

	var out []spendableOutput
	for rows.Next() {
		var body []byte
		var height int64
		if err := rows.Scan(&body, &height); err != nil {
			return nil, ledgerError(ErrStoreError, "failed to scan transaction body", err)
		}
		var msgTx wire.MsgTx
		if err := msgTx.Deserialize(bytes.NewReader(body)); err != nil {
			return nil, ledgerError(ErrStoreError, "failed to decode transaction body", err)
		}
		if blockchain.IsCoinBaseTx(&msgTx) && tipHeight-height < coinbaseMaturity {
			continue
		}

		txid := msgTx.TxHash()
		for idx, txOut := range msgTx.TxOut {
			if match != nil && !match(txOut.PkScript) {
				continue
			}
			spent, _, err := ledgerdb.IsSpent(storeTx, txid, uint32(idx))
			if err != nil {
				return nil, ledgerError(ErrStoreError, "failed to check spent-output set", err)
			}
			if spent {
				continue
			}
			out = append(out, spendableOutput{
				OutPoint: wire.OutPoint{Hash: txid, Index: uint32(idx)},
				Amount:   txOut.Value,
				PkScript: txOut.PkScript,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, ledgerError(ErrStoreError, "failed to iterate mined transactions", err)
	}
	return out, nil
}

// Balance sums the value of every mature unspent output across mined
// transactions whose script pays pkScript (section 4.6). Immature
// coinbase outputs are excluded, matching the coinbase maturity rule the
// validator enforces at spend time.
func (l *Ledger) Balance(pkScript []byte) (int64, error) {
	var total int64
	err := l.store.ReadTx(func(storeTx *sql.Tx) error {
		tipHeight, err := ledgerdb.TipHeight(storeTx)
		if err != nil {
			return ledgerError(ErrStoreError, "failed to read chain tip", err)
		}
		outputs, err := matureUnspentOutputs(storeTx, tipHeight, func(s []byte) bool {
			return bytes.Equal(s, pkScript)
		})
		if err != nil {
			return err
		}
		for _, o := range outputs {
			total += o.Amount
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
