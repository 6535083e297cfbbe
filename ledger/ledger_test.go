// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/chainwayxyz/bitcoin-mock-rpc/netparams"
)

func newTestLedger(t *testing.T) *Ledger {
	l, err := Open("", netparams.RegressionNetParams)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

// mineCoinbaseTo mines a single block whose coinbase pays pkScript,
// returning the outpoint, value and height of that output.
func mineCoinbaseTo(t *testing.T, l *Ledger, pkScript []byte) (wire.OutPoint, int64, int64) {
	ids, err := l.GenerateBlocks(1, pkScript)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	info, err := l.BlockByHash(ids[0])
	require.NoError(t, err)
	require.Len(t, info.Txids, 1)

	return wire.OutPoint{Hash: info.Txids[0], Index: 0}, blockSubsidy, info.Height
}

// signP2WPKHInput signs input idx of tx, spending prevOut with privKey,
// the way a wallet would produce a single-key witness-v0 spend.
func signP2WPKHInput(t *testing.T, tx *wire.MsgTx, idx int, prevOut *wire.TxOut, privKey *btcec.PrivateKey) {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	fetcher.AddPrevOut(tx.TxIn[idx].PreviousOutPoint, prevOut)
	hashCache := txscript.NewTxSigHashes(tx, fetcher)

	witness, err := txscript.WitnessSignature(tx, hashCache, idx, prevOut.Value,
		prevOut.PkScript, txscript.SigHashAll, privKey, true)
	require.NoError(t, err)
	tx.TxIn[idx].Witness = witness
}

func serialize(t *testing.T, tx *wire.MsgTx) []byte {
	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))
	return buf.Bytes()
}

// genP2WPKHKey generates and persists a P2WPKH key the same way
// GenerateNewAddress does, returning the pieces a white-box test needs
// to build and sign a spend by hand.
func genP2WPKHKey(t *testing.T, l *Ledger) (addrStr string, pkScript []byte, privKey *btcec.PrivateKey) {
	addrStr, err := l.generateAddress(AddressP2WPKH)
	require.NoError(t, err)
	privKey, _, err = l.keyForAddress(addrStr)
	require.NoError(t, err)
	addr, err := btcutil.DecodeAddress(addrStr, l.params.Params)
	require.NoError(t, err)
	pkScript, err = txscript.PayToAddrScript(addr)
	require.NoError(t, err)
	return addrStr, pkScript, privKey
}

// S1 — Genesis-only state.
func TestGenesisOnlyState(t *testing.T) {
	l := newTestLedger(t)

	count, err := l.BlockCount()
	require.NoError(t, err)
	require.Equal(t, int64(0), count)

	tip, err := l.BestBlockHash()
	require.NoError(t, err)
	require.NotEqual(t, chainhash.Hash{}, tip)

	require.Equal(t, 0, l.mempool.size())
}

// S2 — Single payment.
func TestSinglePaymentRoundTrip(t *testing.T) {
	l := newTestLedger(t)

	addrStr, err := l.GenerateNewAddress(AddressP2WPKH)
	require.NoError(t, err)
	addr, err := btcutil.DecodeAddress(addrStr, l.params.Params)
	require.NoError(t, err)
	pkScript, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	_, err = l.GenerateToAddress(101, addrStr)
	require.NoError(t, err)

	balance, err := l.Balance(pkScript)
	require.NoError(t, err)
	require.Equal(t, int64(50*btcutil.SatoshiPerBitcoin), balance)

	_, err = l.SendToAddress(addrStr, btcutil.Amount(10*btcutil.SatoshiPerBitcoin))
	require.NoError(t, err)

	_, err = l.GenerateToAddress(1, addrStr)
	require.NoError(t, err)

	balance, err = l.Balance(pkScript)
	require.NoError(t, err)
	require.Equal(t, int64(100*btcutil.SatoshiPerBitcoin), balance)
}

// S3 — Double-spend rejection.
func TestDoubleSpendRejection(t *testing.T) {
	l := newTestLedger(t)

	_, pkScript, privKey := genP2WPKHKey(t, l)
	outpoint, value, _ := mineCoinbaseTo(t, l, pkScript)
	_, err := l.GenerateBlocks(100, pkScript)
	require.NoError(t, err)

	_, destScript, _ := genP2WPKHKey(t, l)

	buildSpend := func(value2 int64) *wire.MsgTx {
		tx := wire.NewMsgTx(2)
		tx.AddTxIn(&wire.TxIn{PreviousOutPoint: outpoint, Sequence: wire.MaxTxInSequenceNum})
		tx.AddTxOut(&wire.TxOut{Value: value2, PkScript: destScript})
		signP2WPKHInput(t, tx, 0, &wire.TxOut{Value: value, PkScript: pkScript}, privKey)
		return tx
	}

	t1 := buildSpend(value - 1000)
	t1id, err := l.SubmitTransaction(serialize(t, t1))
	require.NoError(t, err)

	t2 := buildSpend(value - 2000)
	_, err = l.SubmitTransaction(serialize(t, t2))
	require.Error(t, err)
	var lerr LedgerError
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, ErrDoubleSpend, lerr.ErrorCode)

	require.Equal(t, 1, l.mempool.size())
	require.True(t, l.mempool.contains(t1id))
}

// S4 — Relative lock not satisfied, then matures.
//
// A coinbase output is matured and spent into a fresh non-coinbase
// output, so the maturity rule cannot interfere with the CSV check
// under test: only the confirmed age of that fresh output matters.
func TestRelativeLockNotSatisfied(t *testing.T) {
	l := newTestLedger(t)

	_, pkScript, privKey := genP2WPKHKey(t, l)
	coinbaseOutpoint, coinbaseValue, _ := mineCoinbaseTo(t, l, pkScript)
	_, err := l.GenerateBlocks(100, pkScript)
	require.NoError(t, err)

	_, lockedScript, lockedKey := genP2WPKHKey(t, l)
	fundTx := wire.NewMsgTx(2)
	fundTx.AddTxIn(&wire.TxIn{PreviousOutPoint: coinbaseOutpoint, Sequence: wire.MaxTxInSequenceNum})
	fundTx.AddTxOut(&wire.TxOut{Value: coinbaseValue - 1000, PkScript: lockedScript})
	signP2WPKHInput(t, fundTx, 0, &wire.TxOut{Value: coinbaseValue, PkScript: pkScript}, privKey)
	fundTxid, err := l.SubmitTransaction(serialize(t, fundTx))
	require.NoError(t, err)

	_, err = l.GenerateBlocks(1, pkScript)
	require.NoError(t, err)

	_, destScript, _ := genP2WPKHKey(t, l)
	fundOutpoint := wire.OutPoint{Hash: fundTxid, Index: 0}
	lockedOut := &wire.TxOut{Value: fundTx.TxOut[0].Value, PkScript: lockedScript}

	buildSpend := func() (*wire.MsgTx, []byte) {
		tx := wire.NewMsgTx(2)
		tx.AddTxIn(&wire.TxIn{PreviousOutPoint: fundOutpoint, Sequence: 10})
		tx.AddTxOut(&wire.TxOut{Value: lockedOut.Value - 1000, PkScript: destScript})
		signP2WPKHInput(t, tx, 0, lockedOut, lockedKey)
		return tx, serialize(t, tx)
	}

	// tip is now fundHeight (the block fundTx was mined in); advance 3
	// more blocks so the referenced output's age is 3, short of the
	// required 10.
	_, err = l.GenerateBlocks(3, pkScript)
	require.NoError(t, err)

	_, raw := buildSpend()
	_, err = l.SubmitTransaction(raw)
	require.Error(t, err)
	var lerr LedgerError
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, ErrLockTimeNotSatisfied, lerr.ErrorCode)

	_, err = l.GenerateBlocks(7, pkScript)
	require.NoError(t, err)

	_, err = l.SubmitTransaction(raw)
	require.NoError(t, err)
}

// S5 — Coinbase maturity.
func TestCoinbaseMaturity(t *testing.T) {
	l := newTestLedger(t)

	_, pkScript, privKey := genP2WPKHKey(t, l)
	outpoint, value, _ := mineCoinbaseTo(t, l, pkScript)
	_, destScript, _ := genP2WPKHKey(t, l)

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: outpoint, Sequence: wire.MaxTxInSequenceNum})
	tx.AddTxOut(&wire.TxOut{Value: value - 1000, PkScript: destScript})
	signP2WPKHInput(t, tx, 0, &wire.TxOut{Value: value, PkScript: pkScript}, privKey)
	raw := serialize(t, tx)

	_, err := l.SubmitTransaction(raw)
	require.Error(t, err)
	var lerr LedgerError
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, ErrImmatureCoinbase, lerr.ErrorCode)

	_, err = l.GenerateBlocks(100, pkScript)
	require.NoError(t, err)

	_, err = l.SubmitTransaction(raw)
	require.NoError(t, err)
}

// S6 — Taproot key-path spend.
func TestTaprootKeyPathSpend(t *testing.T) {
	l := newTestLedger(t)

	addrStr, err := l.generateAddress(AddressP2TR)
	require.NoError(t, err)
	privKey, _, err := l.keyForAddress(addrStr)
	require.NoError(t, err)
	addr, err := btcutil.DecodeAddress(addrStr, l.params.Params)
	require.NoError(t, err)
	pkScript, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	outpoint, value, _ := mineCoinbaseTo(t, l, pkScript)
	_, err = l.GenerateBlocks(100, pkScript)
	require.NoError(t, err)
	_, destScript, _ := genP2WPKHKey(t, l)

	buildTx := func() *wire.MsgTx {
		tx := wire.NewMsgTx(2)
		tx.AddTxIn(&wire.TxIn{PreviousOutPoint: outpoint, Sequence: wire.MaxTxInSequenceNum})
		tx.AddTxOut(&wire.TxOut{Value: value - 1000, PkScript: destScript})
		return tx
	}

	sign := func(tx *wire.MsgTx) {
		prevOut := &wire.TxOut{Value: value, PkScript: pkScript}
		fetcher := txscript.NewMultiPrevOutFetcher(nil)
		fetcher.AddPrevOut(outpoint, prevOut)
		hashCache := txscript.NewTxSigHashes(tx, fetcher)
		sigHash, err := txscript.CalcTaprootSignatureHash(hashCache, txscript.SigHashDefault, tx, 0, fetcher)
		require.NoError(t, err)
		tweaked := txscript.TweakTaprootPrivKey(privKey, nil)
		sig, err := schnorr.Sign(tweaked, sigHash)
		require.NoError(t, err)
		tx.TxIn[0].Witness = wire.TxWitness{sig.Serialize()}
	}

	// The corrupted spend goes first: it has the same txid as the valid
	// one, which would otherwise already be pending.
	corrupted := buildTx()
	sign(corrupted)
	corrupted.TxIn[0].Witness[0][0] ^= 0xff
	_, err = l.SubmitTransaction(serialize(t, corrupted))
	require.Error(t, err)
	var lerr LedgerError
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, ErrScriptFailure, lerr.ErrorCode)

	valid := buildTx()
	sign(valid)
	_, err = l.SubmitTransaction(serialize(t, valid))
	require.NoError(t, err)
}

// S7 — Parallel ledgers do not share state.
func TestParallelLedgersIsolated(t *testing.T) {
	a := newTestLedger(t)
	b := newTestLedger(t)

	_, pkScript, _ := genP2WPKHKey(t, a)
	_, err := a.GenerateBlocks(5, pkScript)
	require.NoError(t, err)

	countA, err := a.BlockCount()
	require.NoError(t, err)
	require.Equal(t, int64(5), countA)

	countB, err := b.BlockCount()
	require.NoError(t, err)
	require.Equal(t, int64(0), countB)
}

// S8 — reopening an existing ledger file preserves its mined state.
func TestReopenPreservesMinedState(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/ledger.sqlite"

	l1, err := Open(path, netparams.RegressionNetParams)
	require.NoError(t, err)

	_, pkScript, _ := genP2WPKHKey(t, l1)
	_, err = l1.GenerateBlocks(5, pkScript)
	require.NoError(t, err)

	count1, err := l1.BlockCount()
	require.NoError(t, err)
	tip1, err := l1.BestBlockHash()
	require.NoError(t, err)
	require.NoError(t, l1.Close())

	l2, err := Open(path, netparams.RegressionNetParams)
	require.NoError(t, err)
	t.Cleanup(func() { l2.Close() })

	count2, err := l2.BlockCount()
	require.NoError(t, err)
	tip2, err := l2.BestBlockHash()
	require.NoError(t, err)

	require.Equal(t, count1, count2)
	require.Equal(t, tip1, tip2)
}

// S9 — P2WSH script-path execution.
func TestP2WSHScriptPath(t *testing.T) {
	l := newTestLedger(t)

	preimage := []byte("a specific stack value")
	digest := btcutil.Hash160(preimage)
	witnessScript, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).
		AddData(digest).
		AddOp(txscript.OP_EQUAL).
		Script()
	require.NoError(t, err)

	scriptHash := sha256.Sum256(witnessScript)
	p2wshAddr, err := btcutil.NewAddressWitnessScriptHash(
		scriptHash[:], l.params.Params)
	require.NoError(t, err)
	pkScript, err := txscript.PayToAddrScript(p2wshAddr)
	require.NoError(t, err)

	outpoint, value, _ := mineCoinbaseTo(t, l, pkScript)
	_, err = l.GenerateBlocks(100, pkScript)
	require.NoError(t, err)
	_, destScript, _ := genP2WPKHKey(t, l)

	buildTx := func(stackValue []byte) *wire.MsgTx {
		tx := wire.NewMsgTx(2)
		tx.AddTxIn(&wire.TxIn{PreviousOutPoint: outpoint, Sequence: wire.MaxTxInSequenceNum})
		tx.AddTxOut(&wire.TxOut{Value: value - 1000, PkScript: destScript})
		tx.TxIn[0].Witness = wire.TxWitness{stackValue, witnessScript}
		return tx
	}

	// The tampered spend goes first: it has the same txid as the valid
	// one, which would otherwise already be pending.
	tampered := buildTx(append([]byte{}, preimage[1:]...))
	_, err = l.SubmitTransaction(serialize(t, tampered))
	require.Error(t, err)
	var lerr LedgerError
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, ErrScriptFailure, lerr.ErrorCode)

	valid := buildTx(preimage)
	_, err = l.SubmitTransaction(serialize(t, valid))
	require.NoError(t, err)
}

// Property 5: submitting a transaction twice yields the same rejection.
func TestDuplicateSubmissionIsIdempotentlyRejected(t *testing.T) {
	l := newTestLedger(t)
	_, pkScript, privKey := genP2WPKHKey(t, l)
	outpoint, value, _ := mineCoinbaseTo(t, l, pkScript)
	_, err := l.GenerateBlocks(100, pkScript)
	require.NoError(t, err)
	_, destScript, _ := genP2WPKHKey(t, l)

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: outpoint, Sequence: wire.MaxTxInSequenceNum})
	tx.AddTxOut(&wire.TxOut{Value: value - 1000, PkScript: destScript})
	signP2WPKHInput(t, tx, 0, &wire.TxOut{Value: value, PkScript: pkScript}, privKey)
	raw := serialize(t, tx)

	_, err = l.SubmitTransaction(raw)
	require.NoError(t, err)

	_, err1 := l.SubmitTransaction(raw)
	_, err2 := l.SubmitTransaction(raw)
	require.Error(t, err1)
	require.Error(t, err2)
	require.Equal(t, err1.(LedgerError).ErrorCode, err2.(LedgerError).ErrorCode)
}

// Property 6: mining zero blocks is a no-op.
func TestGenerateZeroBlocksIsNoop(t *testing.T) {
	l := newTestLedger(t)
	before, err := l.BestBlockHash()
	require.NoError(t, err)

	ids, err := l.GenerateBlocks(0, []byte{0x00})
	require.NoError(t, err)
	require.Nil(t, ids)

	after, err := l.BestBlockHash()
	require.NoError(t, err)
	require.Equal(t, before, after)
}

// Property 9: a retrieved transaction serializes back to identical bytes.
func TestTransactionRoundTripsByteIdentical(t *testing.T) {
	l := newTestLedger(t)
	_, pkScript, privKey := genP2WPKHKey(t, l)
	outpoint, value, _ := mineCoinbaseTo(t, l, pkScript)
	_, err := l.GenerateBlocks(100, pkScript)
	require.NoError(t, err)
	_, destScript, _ := genP2WPKHKey(t, l)

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: outpoint, Sequence: wire.MaxTxInSequenceNum})
	tx.AddTxOut(&wire.TxOut{Value: value - 1000, PkScript: destScript})
	signP2WPKHInput(t, tx, 0, &wire.TxOut{Value: value, PkScript: pkScript}, privKey)
	raw := serialize(t, tx)

	txid, err := l.SubmitTransaction(raw)
	require.NoError(t, err)

	info, err := l.TransactionByID(txid)
	require.NoError(t, err)
	require.Equal(t, raw, serialize(t, info.Tx))
}

// Property 8: block timestamps are spaced by a fixed 10-minute interval.
func TestBlockTimestampSpacing(t *testing.T) {
	l := newTestLedger(t)
	_, pkScript, _ := genP2WPKHKey(t, l)

	ids, err := l.GenerateBlocks(3, pkScript)
	require.NoError(t, err)

	var timestamps []int64
	for _, id := range ids {
		info, err := l.BlockByHash(id)
		require.NoError(t, err)
		timestamps = append(timestamps, info.Timestamp)
	}
	require.Equal(t, timestamps[1]-timestamps[0], int64(600))
	require.Equal(t, timestamps[2]-timestamps[1], int64(600))
}
