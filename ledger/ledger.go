// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package ledger implements the sandboxed Bitcoin node simulator's core:
// a transaction-acceptance pipeline, a durable content-addressed model of
// blocks, transactions and spent outputs, and Taproot-aware script and
// lock-time semantics, all coordinated through a single Ledger handle.
package ledger

import (
	"bytes"
	"database/sql"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/chainwayxyz/bitcoin-mock-rpc/ledger/ledgerdb"
	"github.com/chainwayxyz/bitcoin-mock-rpc/netparams"
)

// Ledger is the single surface the RPC layer and the in-process client
// call against (the Ledger Facade, section 4.6). It owns a Persistence
// Store handle and coordinates the Transaction Validator, Script
// Evaluator, Mempool and Block Assembler.
type Ledger struct {
	store        *ledgerdb.Store
	params       netparams.Params
	networkMagic uint32

	mu      sync.Mutex
	mempool *mempool
}

// Open creates or attaches to a ledger store at path (an empty path, or
// ":memory:", opens an ephemeral in-memory ledger) and rebuilds the
// in-memory mempool from any unconfirmed transactions already on disk.
func Open(path string, params netparams.Params) (*Ledger, error) {
	magic := params.Net
	store, err := ledgerdb.Open(path, uint32(magic))
	if err != nil {
		return nil, ledgerError(ErrStoreError, "failed to open persistence store", err)
	}

	l := &Ledger{
		store:        store,
		params:       params,
		networkMagic: uint32(magic),
		mempool:      newMempool(),
	}

	if err := l.rebuildMempool(); err != nil {
		store.Close()
		return nil, err
	}
	return l, nil
}

// Close releases the underlying store handle.
func (l *Ledger) Close() error {
	if err := l.store.Close(); err != nil {
		return ledgerError(ErrStoreError, "failed to close persistence store", err)
	}
	return nil
}

// rebuildMempool loads every unconfirmed transaction from the store into
// the in-memory mempool, preserving insertion order (rowid order).
func (l *Ledger) rebuildMempool() error {
	return l.store.ReadTx(func(tx *sql.Tx) error {
		txids, err := ledgerdb.MempoolTxids(tx)
		if err != nil {
			return ledgerError(ErrStoreError, "failed to list mempool transactions", err)
		}
		for _, txid := range txids {
			rec, err := ledgerdb.GetTransaction(tx, txid)
			if err != nil {
				return ledgerError(ErrStoreError, "failed to load mempool transaction", err)
			}
			var msgTx wire.MsgTx
			if err := msgTx.Deserialize(bytes.NewReader(rec.Body)); err != nil {
				return ledgerError(ErrStoreError, "failed to decode mempool transaction", err)
			}
			l.mempool.add(txid, &msgTx)
		}
		return nil
	})
}

// SubmitTransaction validates and, on acceptance, admits rawTx into the
// mempool, returning its txid. Section 4.3's validation order is applied
// inside a single store write transaction so a rejected transaction
// never leaves partial state.
func (l *Ledger) SubmitTransaction(rawTx []byte) (chainhash.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var msgTx wire.MsgTx
	if err := msgTx.Deserialize(bytes.NewReader(rawTx)); err != nil {
		return chainhash.Hash{}, ledgerError(ErrTransactionMalformed, "failed to decode transaction", err)
	}
	txid := msgTx.TxHash()

	if l.mempool.contains(txid) {
		return chainhash.Hash{}, ledgerError(ErrTransactionMalformed,
			"transaction is already pending in the mempool", nil)
	}

	err := l.store.WriteTx(func(storeTx *sql.Tx) error {
		if _, err := ledgerdb.GetTransaction(storeTx, txid); err == nil {
			return ledgerError(ErrTransactionMalformed, "transaction is already mined", nil)
		}

		tip, err := ledgerdb.TipHeight(storeTx)
		if err != nil {
			return ledgerError(ErrStoreError, "failed to read chain tip", err)
		}

		_, err = validateTransaction(storeTx, &msgTx, tip, tip+1,
			l.mempool.get, l.mempool.claimant)
		if err != nil {
			return err
		}

		return ledgerdb.InsertTransaction(storeTx, &ledgerdb.TxRecord{
			Txid:       txid,
			Wtxid:      msgTx.WitnessHash(),
			Body:       append([]byte(nil), rawTx...),
			InsertedAt: time.Now(),
		})
	})
	if err != nil {
		return chainhash.Hash{}, err
	}

	l.mempool.add(txid, &msgTx)
	return txid, nil
}

// GenerateBlocks mines count blocks, each paying minerPkScript the fixed
// subsidy and draining the entire mempool into the first of them.
// Mining zero blocks is a no-op (section 8, property 6).
func (l *Ledger) GenerateBlocks(count int, minerPkScript []byte) ([]chainhash.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if count <= 0 {
		return nil, nil
	}

	ids := make([]chainhash.Hash, 0, count)
	for i := 0; i < count; i++ {
		var blockID chainhash.Hash
		err := l.store.WriteTx(func(storeTx *sql.Tx) error {
			var err error
			blockID, err = l.assembleBlock(storeTx, minerPkScript)
			return err
		})
		if err != nil {
			// assembleBlock drained the mempool before the write was
			// rolled back; reload it from the store.
			l.mempool = newMempool()
			if rerr := l.rebuildMempool(); rerr != nil {
				return nil, rerr
			}
			return nil, err
		}
		ids = append(ids, blockID)
	}
	return ids, nil
}
