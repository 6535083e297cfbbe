// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/chainwayxyz/bitcoin-mock-rpc/ledger/ledgerdb"
)

// blockInterval is the fixed nominal spacing between block timestamps.
const blockInterval = 10 * time.Minute

// assembleBlock drains the mempool into a new block paying minerAddr the
// fixed subsidy, the way the Block Assembler (section 4.5) describes:
// the coinbase goes first, mempool transactions follow in insertion
// order, and the whole update lands in one store transaction.
func (l *Ledger) assembleBlock(storeTx *sql.Tx, minerPkScript []byte) (chainhash.Hash, error) {
	tip, err := ledgerdb.TipBlock(storeTx)
	if err != nil {
		return chainhash.Hash{}, ledgerError(ErrStoreError, "failed to read chain tip", err)
	}
	// The genesis block is stamped with the store's genesis time. It is
	// read through storeTx: the store's write lock is already held here,
	// so Store.GenesisTime (which takes the read lock) would block.
	genesis, err := ledgerdb.GetBlockByHeight(storeTx, 0)
	if err != nil {
		return chainhash.Hash{}, ledgerError(ErrStoreError, "failed to read genesis time", err)
	}
	genesisTime := genesis.Timestamp

	newHeight := tip.Height + 1
	txids := l.mempool.drain()

	coinbase, err := buildCoinbase(minerPkScript, newHeight)
	if err != nil {
		return chainhash.Hash{}, err
	}

	coinbaseBody, err := serializeTx(coinbase)
	if err != nil {
		return chainhash.Hash{}, err
	}

	allTxids := make([]chainhash.Hash, 0, len(txids)+1)
	allTxids = append(allTxids, coinbase.TxHash())
	for _, txid := range txids {
		if _, ok := l.mempool.get(txid); !ok {
			return chainhash.Hash{}, ledgerError(ErrStoreError, "mempool transaction missing during drain", nil)
		}
		allTxids = append(allTxids, txid)
	}

	merkleRoot := computeMerkleRoot(allTxids)
	timestamp := genesisTime.Add(blockInterval * time.Duration(newHeight))

	header := ledgerdb.BuildHeader(tip.BlockID, merkleRoot, timestamp, l.networkMagic)
	blockID := ledgerdb.HeaderBlockID(header)

	if err := ledgerdb.InsertBlock(storeTx, &ledgerdb.BlockRecord{
		Height:      newHeight,
		BlockID:     blockID,
		PrevBlockID: tip.BlockID,
		MerkleRoot:  merkleRoot,
		Timestamp:   timestamp,
		MinedAt:     time.Now(),
	}); err != nil {
		return chainhash.Hash{}, ledgerError(ErrStoreError, "failed to insert block", err)
	}

	// The coinbase is synthesized fresh for this block and was never in
	// the mempool, so it is inserted directly as already-mined.
	if err := ledgerdb.InsertTransaction(storeTx, &ledgerdb.TxRecord{
		Txid:       allTxids[0],
		Wtxid:      coinbase.WitnessHash(),
		Body:       coinbaseBody,
		BlockID:    &blockID,
		Position:   ptrInt64(0),
		InsertedAt: time.Now(),
	}); err != nil {
		return chainhash.Hash{}, ledgerError(ErrStoreError, "failed to insert coinbase transaction", err)
	}

	for i, txid := range txids {
		position := int64(i + 1)
		if err := ledgerdb.SetTransactionBlock(storeTx, txid, blockID, position); err != nil {
			return chainhash.Hash{}, ledgerError(ErrStoreError, "failed to stamp mined transaction", err)
		}

		tx, _ := l.mempool.get(txid)
		for _, in := range tx.TxIn {
			if err := ledgerdb.MarkSpent(storeTx, in.PreviousOutPoint.Hash, in.PreviousOutPoint.Index, txid); err != nil {
				return chainhash.Hash{}, ledgerError(ErrStoreError, "failed to mark output spent", err)
			}
		}
	}

	return blockID, nil
}

// buildCoinbase synthesizes the coinbase transaction for a new block,
// grounded on the original source's create_coinbase_transaction: a
// single null-previous-output input whose scriptSig commits to the new
// height (BIP-34 style), and a single output paying the fixed subsidy
// to the requested script.
func buildCoinbase(minerPkScript []byte, height int64) (*wire.MsgTx, error) {
	var heightBuf [4]byte
	binary.LittleEndian.PutUint32(heightBuf[:], uint32(height))

	builder := txscript.NewScriptBuilder()
	builder.AddData(heightBuf[:])
	sigScript, err := builder.Script()
	if err != nil {
		return nil, ledgerError(ErrStoreError, "failed to build coinbase scriptSig", err)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Index: wire.MaxPrevOutIndex},
		SignatureScript:  sigScript,
		Sequence:         wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(&wire.TxOut{
		Value:    blockSubsidy,
		PkScript: minerPkScript,
	})
	return tx, nil
}

func serializeTx(tx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, ledgerError(ErrStoreError, "failed to serialize transaction", err)
	}
	return buf.Bytes(), nil
}

// computeMerkleRoot builds the standard Bitcoin merkle tree over the
// given leaves (txids, in {coinbase, mempool order}) and returns its
// root: pairs of nodes are concatenated and double-SHA-256'd level by
// level, duplicating the last node of a level with an odd count.
func computeMerkleRoot(txids []chainhash.Hash) chainhash.Hash {
	level := make([]chainhash.Hash, len(txids))
	copy(level, txids)

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := make([]chainhash.Hash, len(level)/2)
		for i := range next {
			var buf [chainhash.HashSize * 2]byte
			copy(buf[:chainhash.HashSize], level[2*i][:])
			copy(buf[chainhash.HashSize:], level[2*i+1][:])
			next[i] = chainhash.DoubleHashH(buf[:])
		}
		level = next
	}
	return level[0]
}

func ptrInt64(v int64) *int64 { return &v }
