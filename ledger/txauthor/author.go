// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txauthor builds unsigned funding transactions for the ledger's
// wallet-shaped helpers (FundRawTransaction, SendToAddress), the way a
// wallet selects coins and adds a change output before handing a
// transaction to its signer.
package txauthor

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/chainwayxyz/bitcoin-mock-rpc/ledger/txrules"
	"github.com/chainwayxyz/bitcoin-mock-rpc/ledger/txsizes"
)

// Credit is a spendable output the ledger's store has record of. The
// ledger's helpers only offer mature, unspent, mined outputs as credits.
type Credit struct {
	OutPoint wire.OutPoint
	Amount   btcutil.Amount
	PkScript []byte
}

// SumOutputValues sums up the list of TxOuts and returns an Amount.
func SumOutputValues(outputs []*wire.TxOut) (total btcutil.Amount) {
	for _, txOut := range outputs {
		total += btcutil.Amount(txOut.Value)
	}
	return total
}

// InputSource supplies candidate credits to fund a transaction, in an
// order the caller considers preferable (e.g. oldest-first).
type InputSource func() ([]Credit, error)

// InputSourceError describes the failure to assemble enough input value to
// meet a transaction's target amount plus fees.
type InputSourceError struct {
	TargetAmount btcutil.Amount
	Fee          btcutil.Amount
	Available    btcutil.Amount
}

func (e InputSourceError) Error() string {
	return fmt.Sprintf("insufficient funds available to construct transaction: "+
		"target amount %v, fee %v, available %v", e.TargetAmount, e.Fee, e.Available)
}

// AuthoredTx holds the state of a newly created, unsigned transaction and
// the change output (if one was added).
type AuthoredTx struct {
	Tx              *wire.MsgTx
	PrevScripts     [][]byte
	PrevInputValues []btcutil.Amount
	TotalInput      btcutil.Amount
	ChangeIndex     int // negative if no change
}

// ChangeSource provides a change output script for transaction creation.
type ChangeSource struct {
	NewScript  func() ([]byte, error)
	ScriptSize int
}

// NewUnsignedTransaction creates an unsigned transaction paying to the
// given outputs. Inputs are selected greedily from source, in the order
// it returns them, until the accumulated input value covers the output
// total plus an estimated fee at feeRatePerKb. An appropriate change
// output is appended unless it would be dust.
func NewUnsignedTransaction(outputs []*wire.TxOut, feeRatePerKb btcutil.Amount,
	source InputSource, changeSource *ChangeSource) (*AuthoredTx, error) {

	candidates, err := source()
	if err != nil {
		return nil, err
	}

	changeScript, err := changeSource.NewScript()
	if err != nil {
		return nil, err
	}

	targetAmount := SumOutputValues(outputs)

	var (
		selected   []Credit
		inputTotal btcutil.Amount
		fee        btcutil.Amount
	)

	for _, c := range candidates {
		selected = append(selected, c)
		inputTotal += c.Amount

		fee = txrules.FeeForSerializeSize(feeRatePerKb,
			estimateVirtualSize(selected, outputs, len(changeScript)))

		if inputTotal >= targetAmount+fee {
			break
		}
	}

	if inputTotal < targetAmount+fee {
		return nil, InputSourceError{
			TargetAmount: targetAmount,
			Fee:          fee,
			Available:    inputTotal,
		}
	}

	txIn := make([]*wire.TxIn, 0, len(selected))
	inputValues := make([]btcutil.Amount, 0, len(selected))
	scripts := make([][]byte, 0, len(selected))
	for _, c := range selected {
		outPoint := c.OutPoint
		txIn = append(txIn, wire.NewTxIn(&outPoint, nil, nil))
		inputValues = append(inputValues, c.Amount)
		scripts = append(scripts, c.PkScript)
	}

	unsignedTx := &wire.MsgTx{
		Version:  wire.TxVersion,
		TxIn:     txIn,
		TxOut:    outputs,
		LockTime: 0,
	}

	changeIndex := -1
	changeAmount := inputTotal - targetAmount - fee
	changeOut := &wire.TxOut{Value: int64(changeAmount), PkScript: changeScript}
	if !txrules.IsDustOutput(changeOut, txrules.DefaultRelayFeePerKb) {
		l := len(outputs)
		unsignedTx.TxOut = append(outputs[:l:l], changeOut)
		changeIndex = l
	}

	return &AuthoredTx{
		Tx:              unsignedTx,
		PrevScripts:     scripts,
		PrevInputValues: inputValues,
		TotalInput:      inputTotal,
		ChangeIndex:     changeIndex,
	}, nil
}

func estimateVirtualSize(selected []Credit, outputs []*wire.TxOut, changeScriptSize int) int {
	var numP2WPKH, numP2TR int
	for _, c := range selected {
		if txscript.IsPayToTaproot(c.PkScript) {
			numP2TR++
		} else {
			numP2WPKH++
		}
	}
	return txsizes.EstimateVirtualSize(numP2WPKH, numP2TR, outputs, changeScriptSize)
}

// SecretsSource provides the private key that controls a given address, so
// that AddAllInputScripts can build a witness for each input.
type SecretsSource interface {
	txscript.KeyDB
	ChainParams() *chaincfg.Params
}

// AddAllInputScripts adds a witness to every input of tx, looking up the
// controlling private key for each previous output script through
// secrets. Every previous output the ledger's helpers produce is either
// P2WPKH or P2TR (key-path); any other script template is rejected.
func AddAllInputScripts(tx *wire.MsgTx, prevPkScripts [][]byte,
	inputValues []btcutil.Amount, secrets SecretsSource) error {

	if len(tx.TxIn) != len(prevPkScripts) || len(tx.TxIn) != len(inputValues) {
		return errors.New("tx.TxIn, prevPkScripts and inputValues must have equal length")
	}

	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for idx, txIn := range tx.TxIn {
		fetcher.AddPrevOut(txIn.PreviousOutPoint, &wire.TxOut{
			Value:    int64(inputValues[idx]),
			PkScript: prevPkScripts[idx],
		})
	}
	hashCache := txscript.NewTxSigHashes(tx, fetcher)
	chainParams := secrets.ChainParams()

	for i, pkScript := range prevPkScripts {
		switch {
		case txscript.IsPayToWitnessPubKeyHash(pkScript):
			if err := spendWitnessKeyHash(tx.TxIn[i], pkScript,
				int64(inputValues[i]), chainParams, secrets, tx, hashCache, i); err != nil {
				return err
			}
		case txscript.IsPayToTaproot(pkScript):
			if err := spendTaprootKey(tx.TxIn[i], pkScript,
				int64(inputValues[i]), chainParams, secrets, tx, hashCache, i); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported previous output script at input %d", i)
		}
	}
	return nil
}

func spendWitnessKeyHash(txIn *wire.TxIn, pkScript []byte, inputValue int64,
	chainParams *chaincfg.Params, secrets SecretsSource, tx *wire.MsgTx,
	hashCache *txscript.TxSigHashes, idx int) error {

	_, addrs, _, err := txscript.ExtractPkScriptAddrs(pkScript, chainParams)
	if err != nil {
		return err
	}
	privKey, compressed, err := secrets.GetKey(addrs[0])
	if err != nil {
		return err
	}

	witnessScript, err := txscript.WitnessSignature(tx, hashCache, idx,
		inputValue, pkScript, txscript.SigHashAll, privKey, compressed)
	if err != nil {
		return err
	}
	txIn.Witness = witnessScript
	return nil
}

func spendTaprootKey(txIn *wire.TxIn, pkScript []byte, inputValue int64,
	chainParams *chaincfg.Params, secrets SecretsSource, tx *wire.MsgTx,
	hashCache *txscript.TxSigHashes, idx int) error {

	_, addrs, _, err := txscript.ExtractPkScriptAddrs(pkScript, chainParams)
	if err != nil {
		return err
	}
	privKey, _, err := secrets.GetKey(addrs[0])
	if err != nil {
		return err
	}

	witnessScript, err := txscript.TaprootWitnessSignature(
		tx, hashCache, idx, inputValue, pkScript, txscript.SigHashDefault, privKey,
	)
	if err != nil {
		return err
	}
	txIn.Witness = witnessScript
	return nil
}
