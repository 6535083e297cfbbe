// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txsizes estimates the serialized and virtual size of transactions
// the ledger's funding helpers assemble, the way a wallet estimates fees
// before it has a final signed transaction to measure.
package txsizes

import (
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// Worst case script and input/output size estimates.
const (
	// RedeemP2WPKHScriptSize is the size of a transaction input script
	// that spends a pay-to-witness-public-key hash (P2WPKH). The redeem
	// script for P2WPKH spends MUST be empty.
	RedeemP2WPKHScriptSize = 0

	// RedeemP2WPKHInputSize is the worst case size of a transaction
	// input redeeming a P2WPKH output.
	//
	//   - 32 bytes previous tx
	//   - 4 bytes output index
	//   - 1 byte encoding empty redeem script
	//   - 0 bytes redeem script
	//   - 4 bytes sequence
	RedeemP2WPKHInputSize = 32 + 4 + 1 + RedeemP2WPKHScriptSize + 4

	// RedeemP2TRScriptSize is the size of a transaction input script
	// that spends a pay-to-taproot output (key-path spend). The redeem
	// script for P2TR spends MUST be empty.
	RedeemP2TRScriptSize = 0

	// RedeemP2TRInputSize is the worst case size of a transaction input
	// redeeming a P2TR output.
	RedeemP2TRInputSize = 32 + 4 + 1 + RedeemP2TRScriptSize + 4

	// P2WPKHPkScriptSize is the size of a transaction output script that
	// pays to a witness pubkey hash.
	//
	//   - OP_0
	//   - OP_DATA_20
	//   - 20 bytes pubkey hash
	P2WPKHPkScriptSize = 1 + 1 + 20

	// P2WPKHOutputSize is the serialize size of a transaction output with a
	// P2WPKH output script.
	//
	//   - 8 bytes output value
	//   - 1 byte compact int encoding value 22
	//   - 22 bytes output script
	P2WPKHOutputSize = 8 + 1 + P2WPKHPkScriptSize

	// RedeemP2WPKHInputWitnessWeight is the worst case weight of a
	// witness for spending a P2WPKH output.
	//
	//   - 1 wu compact int encoding value 2 (number of items)
	//   - 1 wu compact int encoding value 73
	//   - 72 wu DER signature + 1 wu sighash
	//   - 1 wu compact int encoding value 33
	//   - 33 wu serialized compressed pubkey
	RedeemP2WPKHInputWitnessWeight = 1 + 1 + 73 + 1 + 33

	// RedeemP2TRInputWitnessWeight is the worst case weight of a
	// witness for spending a P2TR output via the key-path.
	//
	//   - 1 wu compact int encoding value 1 (number of items)
	//   - 1 wu compact int encoding value 65
	//   - 64 wu BIP-340 schnorr signature + 1 wu sighash
	RedeemP2TRInputWitnessWeight = 1 + 1 + 65
)

// SumOutputSerializeSizes sums up the serialized size of the supplied outputs.
func SumOutputSerializeSizes(outputs []*wire.TxOut) (serializeSize int) {
	for _, txOut := range outputs {
		serializeSize += txOut.SerializeSize()
	}
	return serializeSize
}

// EstimateVirtualSize returns a worst case virtual size estimate for a
// signed transaction that spends the given number of P2WPKH and P2TR
// outputs, and contains each transaction output from txOuts. The estimate
// is incremented for an additional change output of changeScriptSize bytes
// when changeScriptSize > 0.
func EstimateVirtualSize(numP2WPKHIns, numP2TRIns int, txOuts []*wire.TxOut, changeScriptSize int) int {
	outputCount := len(txOuts)

	changeOutputSize := 0
	if changeScriptSize > 0 {
		changeOutputSize = 8 +
			wire.VarIntSerializeSize(uint64(changeScriptSize)) +
			changeScriptSize
		outputCount++
	}

	// Version 4 bytes + LockTime 4 bytes + var int sizes for the number
	// of inputs and outputs + size of redeem scripts + serialized
	// outputs and change.
	baseSize := 8 +
		wire.VarIntSerializeSize(uint64(numP2WPKHIns+numP2TRIns)) +
		wire.VarIntSerializeSize(uint64(outputCount)) +
		numP2WPKHIns*RedeemP2WPKHInputSize +
		numP2TRIns*RedeemP2TRInputSize +
		SumOutputSerializeSizes(txOuts) +
		changeOutputSize

	witnessWeight := 0
	if numP2WPKHIns+numP2TRIns > 0 {
		// Additional 2 weight units for segwit marker + flag.
		witnessWeight = 2 +
			wire.VarIntSerializeSize(uint64(numP2WPKHIns+numP2TRIns)) +
			numP2WPKHIns*RedeemP2WPKHInputWitnessWeight +
			numP2TRIns*RedeemP2TRInputWitnessWeight
	}

	// We add 3 to the witness weight to make sure the result is always
	// rounded up.
	return baseSize + (witnessWeight+3)/blockchain.WitnessScaleFactor
}

// GetMinInputVirtualSize returns the minimum number of vbytes that
// redeeming an output with the given pkScript adds to a transaction.
func GetMinInputVirtualSize(pkScript []byte) int {
	var baseSize, witnessWeight int
	switch {
	case txscript.IsPayToTaproot(pkScript):
		baseSize = RedeemP2TRInputSize
		witnessWeight = RedeemP2TRInputWitnessWeight
	default:
		// P2WPKH is the only other script template the ledger's
		// key/address helper generates.
		baseSize = RedeemP2WPKHInputSize
		witnessWeight = RedeemP2WPKHInputWitnessWeight
	}

	return baseSize +
		(witnessWeight+blockchain.WitnessScaleFactor-1)/blockchain.WitnessScaleFactor
}
