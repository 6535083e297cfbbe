// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// ScriptFailure describes why a single input failed script or signature
// verification.
type ScriptFailure struct {
	InputIndex int
	Reason     string
}

func (f ScriptFailure) Error() string {
	return fmt.Sprintf("input %d failed script verification: %s", f.InputIndex, f.Reason)
}

// checkInputScript verifies that tx's input at inputIndex correctly
// redeems prevOuts[inputIndex] given the full set of previous outputs
// spent by tx (needed for BIP-143/BIP-341 sighash computation). It is
// pure: it consults no ledger state beyond what the caller provides.
func checkInputScript(tx *wire.MsgTx, inputIndex int, prevOuts []*wire.TxOut) error {
	prevOut := prevOuts[inputIndex]

	if txscript.IsPayToTaproot(prevOut.PkScript) {
		return checkTaprootKeyPathSpend(tx, inputIndex, prevOuts)
	}

	multiFetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, out := range prevOuts {
		multiFetcher.AddPrevOut(tx.TxIn[i].PreviousOutPoint, out)
	}

	engine, err := txscript.NewEngine(
		prevOut.PkScript, tx, inputIndex, txscript.StandardVerifyFlags,
		nil, txscript.NewTxSigHashes(tx, multiFetcher), prevOut.Value, multiFetcher,
	)
	if err != nil {
		return ledgerError(ErrScriptFailure, "failed to construct script engine",
			ScriptFailure{InputIndex: inputIndex, Reason: err.Error()})
	}
	if err := engine.Execute(); err != nil {
		return ledgerError(ErrScriptFailure, "script execution failed",
			ScriptFailure{InputIndex: inputIndex, Reason: err.Error()})
	}
	return nil
}

// checkTaprootKeyPathSpend verifies a BIP-341 key-path spend: a single
// Schnorr signature against the output's tweaked key, under the default
// sighash type (all inputs, all outputs) for a 64-byte signature, or the
// sighash type in the trailing byte of a 65-byte one. A witness carrying more
// than the signature alone (an annex, or additional stack items implying
// a script-path spend) falls back to the general script engine, which
// evaluates the revealed leaf script directly.
func checkTaprootKeyPathSpend(tx *wire.MsgTx, inputIndex int, prevOuts []*wire.TxOut) error {
	witness := tx.TxIn[inputIndex].Witness
	if len(witness) != 1 {
		return checkTaprootScriptPathSpend(tx, inputIndex, prevOuts)
	}

	prevOut := prevOuts[inputIndex]
	if len(prevOut.PkScript) != 34 {
		return ledgerError(ErrScriptFailure, "malformed taproot output script",
			ScriptFailure{InputIndex: inputIndex, Reason: "expected 34-byte v1 witness program"})
	}
	tweakedKeyBytes := prevOut.PkScript[2:]
	tweakedKey, err := schnorr.ParsePubKey(tweakedKeyBytes)
	if err != nil {
		return ledgerError(ErrScriptFailure, "failed to parse taproot output key",
			ScriptFailure{InputIndex: inputIndex, Reason: err.Error()})
	}

	sig := witness[0]
	sigHashType := txscript.SigHashDefault
	if len(sig) == 65 {
		sigHashType = txscript.SigHashType(sig[64])
		sig = sig[:64]
	} else if len(sig) != 64 {
		return ledgerError(ErrScriptFailure, "malformed taproot signature",
			ScriptFailure{InputIndex: inputIndex, Reason: "signature must be 64 or 65 bytes"})
	}

	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, out := range prevOuts {
		fetcher.AddPrevOut(tx.TxIn[i].PreviousOutPoint, out)
	}
	hashCache := txscript.NewTxSigHashes(tx, fetcher)

	sigHash, err := txscript.CalcTaprootSignatureHash(hashCache, sigHashType, tx, inputIndex, fetcher)
	if err != nil {
		return ledgerError(ErrScriptFailure, "failed to compute taproot sighash",
			ScriptFailure{InputIndex: inputIndex, Reason: err.Error()})
	}

	parsedSig, err := schnorr.ParseSignature(sig)
	if err != nil {
		return ledgerError(ErrScriptFailure, "failed to parse schnorr signature",
			ScriptFailure{InputIndex: inputIndex, Reason: err.Error()})
	}
	if !parsedSig.Verify(sigHash, tweakedKey) {
		return ledgerError(ErrScriptFailure, "schnorr signature verification failed",
			ScriptFailure{InputIndex: inputIndex, Reason: "invalid signature"})
	}
	return nil
}

// checkTaprootScriptPathSpend evaluates a taproot script-path spend (or
// any other non-key-path witness shape) through the general script
// engine, which understands BIP-341's control-block validation.
func checkTaprootScriptPathSpend(tx *wire.MsgTx, inputIndex int, prevOuts []*wire.TxOut) error {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, out := range prevOuts {
		fetcher.AddPrevOut(tx.TxIn[i].PreviousOutPoint, out)
	}
	hashCache := txscript.NewTxSigHashes(tx, fetcher)
	prevOut := prevOuts[inputIndex]

	engine, err := txscript.NewEngine(
		prevOut.PkScript, tx, inputIndex, txscript.StandardVerifyFlags,
		nil, hashCache, prevOut.Value, fetcher,
	)
	if err != nil {
		return ledgerError(ErrScriptFailure, "failed to construct script engine",
			ScriptFailure{InputIndex: inputIndex, Reason: err.Error()})
	}
	if err := engine.Execute(); err != nil {
		return ledgerError(ErrScriptFailure, "script execution failed",
			ScriptFailure{InputIndex: inputIndex, Reason: err.Error()})
	}
	return nil
}
