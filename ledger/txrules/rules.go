// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txrules groups transaction policy checks the ledger's funding
// helpers apply before handing a transaction back to the caller for
// signing, the way a wallet checks outputs against dust and fee policy
// before broadcasting.
package txrules

import (
	"errors"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// DefaultRelayFeePerKb is the default minimum relay fee policy used when
// estimating dust and transaction fees.
const DefaultRelayFeePerKb btcutil.Amount = 1e3

// IsDustAmount determines whether a transaction output value and script
// length would cause the output to be considered dust. Transactions with
// dust outputs are not standard and are rejected by mempools with default
// policies.
func IsDustAmount(amount btcutil.Amount, scriptSize int, relayFeePerKb btcutil.Amount) bool {
	// Calculate the total (estimated) cost to the network. This is
	// calculated using the serialize size of the output plus the serial
	// size of a transaction input which redeems it. The input is
	// assumed to be a P2WPKH spend (69 vbytes, as
	// txsizes.GetMinInputVirtualSize estimates it) since that is the
	// only non-taproot script template the ledger generates.
	totalSize := 8 + 2 + wire.VarIntSerializeSize(uint64(scriptSize)) +
		scriptSize + 69

	// Dust is defined as an output value where the total cost to the
	// network (output size + input size) is greater than 1/3 of the
	// relay fee.
	return int64(amount)*1000/(3*int64(totalSize)) < int64(relayFeePerKb)
}

// IsDustOutput determines whether a transaction output is considered dust.
func IsDustOutput(output *wire.TxOut, relayFeePerKb btcutil.Amount) bool {
	if txscript.GetScriptClass(output.PkScript) == txscript.NullDataTy {
		return false
	}
	if txscript.IsUnspendable(output.PkScript) {
		return true
	}
	return IsDustAmount(btcutil.Amount(output.Value), len(output.PkScript), relayFeePerKb)
}

// Transaction rule violations.
var (
	ErrAmountNegative   = errors.New("transaction output amount is negative")
	ErrAmountExceedsMax = errors.New("transaction output amount exceeds maximum value")
	ErrOutputIsDust     = errors.New("transaction output is dust")
)

// CheckOutput performs simple consensus and policy checks on a
// transaction output.
func CheckOutput(output *wire.TxOut, relayFeePerKb btcutil.Amount) error {
	if output.Value < 0 {
		return ErrAmountNegative
	}
	if output.Value > int64(btcutil.MaxSatoshi) {
		return ErrAmountExceedsMax
	}
	if IsDustOutput(output, relayFeePerKb) {
		return ErrOutputIsDust
	}
	return nil
}

// FeeForSerializeSize calculates the required fee for a transaction of
// some arbitrary size given a mempool's relay fee policy.
func FeeForSerializeSize(relayFeePerKb btcutil.Amount, txSerializeSize int) btcutil.Amount {
	fee := relayFeePerKb * btcutil.Amount(txSerializeSize) / 1000

	if fee == 0 && relayFeePerKb > 0 {
		fee = relayFeePerKb
	}

	if fee < 0 || fee > btcutil.Amount(btcutil.MaxSatoshi) {
		fee = btcutil.Amount(btcutil.MaxSatoshi)
	}

	return fee
}
