// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"bytes"
	"database/sql"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/chainwayxyz/bitcoin-mock-rpc/ledger/ledgerdb"
	"github.com/chainwayxyz/bitcoin-mock-rpc/ledger/txauthor"
	"github.com/chainwayxyz/bitcoin-mock-rpc/ledger/txrules"
)

// GenerateNewAddress delegates to the Address/Key Helper and persists the
// resulting key record (section 4.6's "generate a new address").
func (l *Ledger) GenerateNewAddress(kind AddressKind) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.generateAddress(kind)
}

// GenerateToAddress mines count blocks paying the fixed subsidy to
// address, the address-string-facing counterpart of GenerateBlocks.
func (l *Ledger) GenerateToAddress(count int, address string) ([]chainhash.Hash, error) {
	addr, err := btcutil.DecodeAddress(address, l.params.Params)
	if err != nil {
		return nil, ledgerError(ErrTransactionMalformed, "invalid mining address", err)
	}
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, ledgerError(ErrTransactionMalformed, "failed to build mining script", err)
	}
	return l.GenerateBlocks(count, pkScript)
}

// secretSource adapts the ledger's own key store to txauthor.SecretsSource
// so AddAllInputScripts can sign with whatever key controls a given
// address.
type secretSource struct {
	l      *Ledger
	params *chaincfg.Params
}

func (s secretSource) ChainParams() *chaincfg.Params { return s.params }

func (s secretSource) GetKey(addr btcutil.Address) (*btcec.PrivateKey, bool, error) {
	privKey, _, err := s.l.keyForAddress(addr.EncodeAddress())
	if err != nil {
		return nil, false, err
	}
	return privKey, true, nil
}

func (s secretSource) GetScript(btcutil.Address) ([]byte, error) {
	return nil, ledgerError(ErrUnsupportedParameter, "redeem scripts are not tracked by this ledger", nil)
}

// knownCredits scans mature mined transactions for unspent outputs whose
// script pays an address this ledger generated, the funding source both
// SendToAddress and FundRawTransaction select from. Mempool outputs are
// not offered as funding sources: a pending transaction's outputs are not
// yet part of durable chain state. Immature coinbase outputs are excluded
// the same way Balance excludes them, so a selected credit never gets
// rejected downstream as an immature coinbase spend.
func (l *Ledger) knownCredits(storeTx *sql.Tx, tipHeight int64) ([]txauthor.Credit, error) {
	keys, err := ledgerdb.AllKeys(storeTx)
	if err != nil {
		return nil, ledgerError(ErrStoreError, "failed to list known keys", err)
	}
	known := make(map[string]bool, len(keys))
	for _, k := range keys {
		addr, err := btcutil.DecodeAddress(k.Address, l.params.Params)
		if err != nil {
			continue
		}
		pkScript, err := txscript.PayToAddrScript(addr)
		if err != nil {
			continue
		}
		known[string(pkScript)] = true
	}

	outputs, err := matureUnspentOutputs(storeTx, tipHeight, func(pkScript []byte) bool {
		return known[string(pkScript)]
	})
	if err != nil {
		return nil, err
	}

	credits := make([]txauthor.Credit, 0, len(outputs))
	for _, o := range outputs {
		credits = append(credits, txauthor.Credit{
			OutPoint: o.OutPoint,
			Amount:   btcutil.Amount(o.Amount),
			PkScript: o.PkScript,
		})
	}
	return credits, nil
}

// changeSource generates a fresh internal P2WPKH change address and
// returns a ChangeSource that hands out its script from memory, plus the
// key record to persist. Generating the key here rather than inside
// NewScript keeps key persistence out of txauthor's call path: NewScript
// runs while the caller may still hold a read transaction on the store,
// and a write transaction must never be opened while one is held.
func (l *Ledger) changeSource() (*txauthor.ChangeSource, *ledgerdb.KeyRecord, error) {
	addr, pkScript, privKey, err := newKeyPair(AddressP2WPKH, l.params.Params)
	if err != nil {
		return nil, nil, err
	}
	rec := &ledgerdb.KeyRecord{
		Address:    addr.EncodeAddress(),
		PrivKey:    privKey.Serialize(),
		PubKey:     privKey.PubKey().SerializeCompressed(),
		ScriptType: scriptTypeName(AddressP2WPKH),
	}
	cs := &txauthor.ChangeSource{
		NewScript:  func() ([]byte, error) { return pkScript, nil },
		ScriptSize: 22, // P2WPKH witness-program script, see txsizes.P2WPKHPkScriptSize
	}
	return cs, rec, nil
}

// persistChangeKey records a change address produced by changeSource,
// once the caller knows it was actually spent to. Callers must only call
// this after any read transaction used to author the spending transaction
// has already returned.
func (l *Ledger) persistChangeKey(rec *ledgerdb.KeyRecord) error {
	if err := l.store.WriteTx(func(tx *sql.Tx) error {
		return ledgerdb.InsertKey(tx, rec)
	}); err != nil {
		return ledgerError(ErrStoreError, "failed to persist change address", err)
	}
	return nil
}

// SendToAddress synthesizes a transaction paying amount to destAddress
// from any unspent output of sufficient value, signs it with the
// corresponding stored keys and submits it, bypassing any notion of a
// "from" balance (section 4.6).
func (l *Ledger) SendToAddress(destAddress string, amount btcutil.Amount) (chainhash.Hash, error) {
	destAddr, err := btcutil.DecodeAddress(destAddress, l.params.Params)
	if err != nil {
		return chainhash.Hash{}, ledgerError(ErrTransactionMalformed, "invalid destination address", err)
	}
	destScript, err := txscript.PayToAddrScript(destAddr)
	if err != nil {
		return chainhash.Hash{}, ledgerError(ErrTransactionMalformed, "failed to build destination script", err)
	}
	if err := txrules.CheckOutput(&wire.TxOut{Value: int64(amount), PkScript: destScript}, txrules.DefaultRelayFeePerKb); err != nil {
		return chainhash.Hash{}, ledgerError(ErrTransactionMalformed, "requested output is invalid", err)
	}

	changeSrc, changeKey, err := l.changeSource()
	if err != nil {
		return chainhash.Hash{}, err
	}

	var authored *txauthor.AuthoredTx
	err = l.store.ReadTx(func(storeTx *sql.Tx) error {
		tipHeight, err := ledgerdb.TipHeight(storeTx)
		if err != nil {
			return ledgerError(ErrStoreError, "failed to read chain tip", err)
		}
		credits, err := l.knownCredits(storeTx, tipHeight)
		if err != nil {
			return err
		}
		source := func() ([]txauthor.Credit, error) { return credits, nil }
		outputs := []*wire.TxOut{{Value: int64(amount), PkScript: destScript}}
		authored, err = txauthor.NewUnsignedTransaction(outputs, txrules.DefaultRelayFeePerKb, source, changeSrc)
		return err
	})
	if err != nil {
		return chainhash.Hash{}, ledgerError(ErrInsufficientInputValue, "failed to fund send-to-address transaction", err)
	}
	if authored.ChangeIndex >= 0 {
		if err := l.persistChangeKey(changeKey); err != nil {
			return chainhash.Hash{}, err
		}
	}

	if err := txauthor.AddAllInputScripts(authored.Tx, authored.PrevScripts, authored.PrevInputValues,
		secretSource{l: l, params: l.params.Params}); err != nil {
		return chainhash.Hash{}, ledgerError(ErrScriptFailure, "failed to sign send-to-address transaction", err)
	}

	raw, err := serializeTx(authored.Tx)
	if err != nil {
		return chainhash.Hash{}, err
	}
	return l.SubmitTransaction(raw)
}

// FundRawTransaction adds inputs to rawTx from the store's known unspent
// outputs until its existing outputs (plus a fee estimate) are covered,
// appending a change output when needed. It returns the extended,
// still-unsigned transaction and the fee it estimated. rawTx must have no
// inputs: a transaction that already has inputs is rejected with
// ErrUnsupportedParameter.
func (l *Ledger) FundRawTransaction(rawTx []byte) ([]byte, btcutil.Amount, error) {
	// A transaction with no inputs is decoded without witness data: the
	// witness encoding reads its zero input count as a segwit marker.
	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(rawTx)); err != nil || len(tx.TxIn) == 0 {
		tx = wire.MsgTx{}
		if err := tx.DeserializeNoWitness(bytes.NewReader(rawTx)); err != nil {
			return nil, 0, ledgerError(ErrTransactionMalformed, "failed to decode transaction", err)
		}
	}
	if len(tx.TxIn) > 0 {
		return nil, 0, ledgerError(ErrUnsupportedParameter, "funding a transaction with preset inputs is not supported", nil)
	}

	changeSrc, changeKey, err := l.changeSource()
	if err != nil {
		return nil, 0, err
	}

	var authored *txauthor.AuthoredTx
	err = l.store.ReadTx(func(storeTx *sql.Tx) error {
		tipHeight, err := ledgerdb.TipHeight(storeTx)
		if err != nil {
			return ledgerError(ErrStoreError, "failed to read chain tip", err)
		}
		credits, err := l.knownCredits(storeTx, tipHeight)
		if err != nil {
			return err
		}
		source := func() ([]txauthor.Credit, error) { return credits, nil }
		authored, err = txauthor.NewUnsignedTransaction(tx.TxOut, txrules.DefaultRelayFeePerKb, source, changeSrc)
		return err
	})
	if err != nil {
		return nil, 0, ledgerError(ErrInsufficientInputValue, "failed to fund transaction", err)
	}
	if authored.ChangeIndex >= 0 {
		if err := l.persistChangeKey(changeKey); err != nil {
			return nil, 0, err
		}
	}

	fee := authored.TotalInput - txauthor.SumOutputValues(authored.Tx.TxOut)
	raw, err := serializeTx(authored.Tx)
	if err != nil {
		return nil, 0, err
	}
	return raw, fee, nil
}

// SignRawTransactionWithWallet signs every input of rawTx with the key
// this ledger generated for its previous output's script. Signing is
// all-or-nothing: if any input cannot be signed the call fails, so the
// returned completeness flag is always true on success.
func (l *Ledger) SignRawTransactionWithWallet(rawTx []byte) ([]byte, bool, error) {
	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(rawTx)); err != nil {
		return nil, false, ledgerError(ErrTransactionMalformed, "failed to decode transaction", err)
	}

	prevScripts := make([][]byte, len(tx.TxIn))
	prevValues := make([]btcutil.Amount, len(tx.TxIn))

	err := l.store.ReadTx(func(storeTx *sql.Tx) error {
		for i, in := range tx.TxIn {
			rec, err := ledgerdb.GetTransaction(storeTx, in.PreviousOutPoint.Hash)
			if err != nil {
				return ledgerError(ErrPreviousOutputMissing, "referenced previous output is unknown", err)
			}
			var prevTx wire.MsgTx
			if err := prevTx.Deserialize(bytes.NewReader(rec.Body)); err != nil {
				return ledgerError(ErrStoreError, "failed to decode previous transaction", err)
			}
			if in.PreviousOutPoint.Index >= uint32(len(prevTx.TxOut)) {
				return ledgerError(ErrPreviousOutputMissing, "previous output index out of range", nil)
			}
			out := prevTx.TxOut[in.PreviousOutPoint.Index]
			prevScripts[i] = out.PkScript
			prevValues[i] = btcutil.Amount(out.Value)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	signable := &wire.MsgTx{Version: tx.Version, TxIn: tx.TxIn, TxOut: tx.TxOut, LockTime: tx.LockTime}
	if err := txauthor.AddAllInputScripts(signable, prevScripts, prevValues,
		secretSource{l: l, params: l.params.Params}); err != nil {
		return nil, false, ledgerError(ErrScriptFailure, "failed to sign transaction: no input script template matched a key this ledger controls", err)
	}

	raw, err := serializeTx(signable)
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}
