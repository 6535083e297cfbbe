// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// mempool is the in-memory holding area of accepted-but-unmined
// transactions. It mirrors the "transactions WHERE block_id IS NULL" rows
// of the Persistence Store: add runs once the write transaction recording
// a submission has committed, and drain runs inside the write transaction
// recording a mined block (GenerateBlocks reloads the mempool from the
// store if that transaction fails), so the two never drift.
type mempool struct {
	order  []chainhash.Hash
	txs    map[chainhash.Hash]*wire.MsgTx
	claims map[wire.OutPoint]chainhash.Hash
}

func newMempool() *mempool {
	return &mempool{
		txs:    make(map[chainhash.Hash]*wire.MsgTx),
		claims: make(map[wire.OutPoint]chainhash.Hash),
	}
}

// contains reports whether txid is already pending.
func (m *mempool) contains(txid chainhash.Hash) bool {
	_, ok := m.txs[txid]
	return ok
}

// claimant returns the txid of the pending transaction that already
// spends outpoint, if any.
func (m *mempool) claimant(op wire.OutPoint) (chainhash.Hash, bool) {
	txid, ok := m.claims[op]
	return txid, ok
}

// add inserts a validated transaction at the back of the queue and
// records the outpoints it claims.
func (m *mempool) add(txid chainhash.Hash, tx *wire.MsgTx) {
	m.order = append(m.order, txid)
	m.txs[txid] = tx
	for _, in := range tx.TxIn {
		m.claims[in.PreviousOutPoint] = txid
	}
}

// drain returns every pending transaction in insertion order and empties
// the mempool, as part of block assembly.
func (m *mempool) drain() []chainhash.Hash {
	order := m.order
	m.order = nil
	m.txs = make(map[chainhash.Hash]*wire.MsgTx)
	m.claims = make(map[wire.OutPoint]chainhash.Hash)
	return order
}

// get returns the decoded transaction for txid, if pending.
func (m *mempool) get(txid chainhash.Hash) (*wire.MsgTx, bool) {
	tx, ok := m.txs[txid]
	return tx, ok
}

// size returns the number of pending transactions.
func (m *mempool) size() int {
	return len(m.order)
}
