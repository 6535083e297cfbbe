// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledgerdb

import (
	"database/sql"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

func TestOpenInMemoryCreatesGenesis(t *testing.T) {
	store, err := Open("", 0xfabfb5da)
	require.NoError(t, err)
	defer store.Close()

	var tip *BlockRecord
	err = store.ReadTx(func(tx *sql.Tx) error {
		var err error
		tip, err = TipBlock(tx)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, int64(0), tip.Height)
	require.Equal(t, ZeroHash, tip.PrevBlockID)
	require.NotEqual(t, ZeroHash, tip.BlockID)
}

func TestReopenAttachesWithoutReinitializing(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/ledger.sqlite"

	store1, err := Open(path, 0xfabfb5da)
	require.NoError(t, err)

	var firstGenesis *BlockRecord
	err = store1.ReadTx(func(tx *sql.Tx) error {
		var err error
		firstGenesis, err = TipBlock(tx)
		return err
	})
	require.NoError(t, err)
	require.NoError(t, store1.Close())

	store2, err := Open(path, 0xfabfb5da)
	require.NoError(t, err)
	defer store2.Close()

	var secondGenesis *BlockRecord
	err = store2.ReadTx(func(tx *sql.Tx) error {
		var err error
		secondGenesis, err = TipBlock(tx)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, firstGenesis.BlockID, secondGenesis.BlockID)
}

func TestGenesisBlockIDDiffersByNetworkMagic(t *testing.T) {
	now := time.Now()
	a := GenesisBlockID(0xfabfb5da, now)
	b := GenesisBlockID(0x0709110b, now)
	require.NotEqual(t, a, b)
}

func TestInsertAndFetchTransaction(t *testing.T) {
	store, err := Open("", 0xfabfb5da)
	require.NoError(t, err)
	defer store.Close()

	txid := chainhash.HashH([]byte("tx-1"))
	wtxid := chainhash.HashH([]byte("wtx-1"))

	err = store.WriteTx(func(tx *sql.Tx) error {
		return InsertTransaction(tx, &TxRecord{
			Txid:       txid,
			Wtxid:      wtxid,
			Body:       []byte{0x01, 0x02},
			InsertedAt: time.Now(),
		})
	})
	require.NoError(t, err)

	var rec *TxRecord
	err = store.ReadTx(func(tx *sql.Tx) error {
		var err error
		rec, err = GetTransaction(tx, txid)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, txid, rec.Txid)
	require.Nil(t, rec.BlockID)

	var mempool []chainhash.Hash
	err = store.ReadTx(func(tx *sql.Tx) error {
		var err error
		mempool, err = MempoolTxids(tx)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, []chainhash.Hash{txid}, mempool)
}

func TestDuplicateTransactionInsertFails(t *testing.T) {
	store, err := Open("", 0xfabfb5da)
	require.NoError(t, err)
	defer store.Close()

	txid := chainhash.HashH([]byte("tx-dup"))
	insert := func() error {
		return store.WriteTx(func(tx *sql.Tx) error {
			return InsertTransaction(tx, &TxRecord{
				Txid:       txid,
				Wtxid:      txid,
				Body:       []byte{0x00},
				InsertedAt: time.Now(),
			})
		})
	}
	require.NoError(t, insert())

	err = insert()
	require.Error(t, err)
	var storeErr StoreError
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, ErrAlreadyExists, storeErr.ErrorCode)
}

func TestMarkSpentRejectsDoubleSpend(t *testing.T) {
	store, err := Open("", 0xfabfb5da)
	require.NoError(t, err)
	defer store.Close()

	prevTxid := chainhash.HashH([]byte("prev"))
	spenderA := chainhash.HashH([]byte("spender-a"))
	spenderB := chainhash.HashH([]byte("spender-b"))

	err = store.WriteTx(func(tx *sql.Tx) error {
		return MarkSpent(tx, prevTxid, 0, spenderA)
	})
	require.NoError(t, err)

	err = store.WriteTx(func(tx *sql.Tx) error {
		return MarkSpent(tx, prevTxid, 0, spenderB)
	})
	require.Error(t, err)

	var spent bool
	var by chainhash.Hash
	err = store.ReadTx(func(tx *sql.Tx) error {
		var err error
		spent, by, err = IsSpent(tx, prevTxid, 0)
		return err
	})
	require.NoError(t, err)
	require.True(t, spent)
	require.Equal(t, spenderA, by)
}

func TestKeyRoundTrip(t *testing.T) {
	store, err := Open("", 0xfabfb5da)
	require.NoError(t, err)
	defer store.Close()

	rec := &KeyRecord{
		Address:    "bcrt1qexampleaddress",
		PrivKey:    []byte{0x01, 0x02, 0x03},
		PubKey:     []byte{0x04, 0x05, 0x06},
		ScriptType: "p2wpkh",
	}
	err = store.WriteTx(func(tx *sql.Tx) error {
		return InsertKey(tx, rec)
	})
	require.NoError(t, err)

	var got *KeyRecord
	err = store.ReadTx(func(tx *sql.Tx) error {
		var err error
		got, err = GetKeyByAddress(tx, rec.Address)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, rec.PrivKey, got.PrivKey)
	require.Equal(t, rec.ScriptType, got.ScriptType)

	var all []*KeyRecord
	err = store.ReadTx(func(tx *sql.Tx) error {
		var err error
		all, err = AllKeys(tx)
		return err
	})
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestGenesisTimeStableAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/ledger.sqlite"

	store1, err := Open(path, 0xfabfb5da)
	require.NoError(t, err)
	t1, err := store1.GenesisTime()
	require.NoError(t, err)
	require.NoError(t, store1.Close())

	store2, err := Open(path, 0xfabfb5da)
	require.NoError(t, err)
	defer store2.Close()
	t2, err := store2.GenesisTime()
	require.NoError(t, err)

	require.Equal(t, t1.Unix(), t2.Unix())
}
