// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"bytes"
	"database/sql"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/chainwayxyz/bitcoin-mock-rpc/ledger/ledgerdb"
)

// coinbaseMaturity is the number of confirmations a coinbase output must
// accumulate before it may be spent, matching mainnet policy.
const coinbaseMaturity = 100

// blockSubsidy is the fixed block reward paid to every coinbase; halving
// is out of scope.
const blockSubsidy = 50 * btcutil.SatoshiPerBitcoin

// maxStandardTxSize bounds the serialized size of a transaction the
// ledger will accept, standing in for the historical base-block-size
// consensus limit.
const maxStandardTxSize = 1_000_000

// pendingLookup resolves an outpoint against transactions that are not
// yet mined but are already "accepted" for the purposes of the
// validation pass under way: the mempool at submission time, or the
// transactions already appended to the block under construction during
// assembly.
type pendingLookup func(txid chainhash.Hash) (*wire.MsgTx, bool)

// claimSet reports whether an outpoint has already been claimed by some
// other transaction under consideration in the same validation pass.
type claimSet func(op wire.OutPoint) (chainhash.Hash, bool)

// validateTransaction enforces every non-script consensus rule from
// section 4.3, then checks each input's script. tipHeight is the chain's
// current height; prospectiveHeight is the height the candidate would be
// mined at if accepted now.
func validateTransaction(storeTx *sql.Tx, candidate *wire.MsgTx, tipHeight, prospectiveHeight int64,
	pending pendingLookup, claimed claimSet) (btcutil.Amount, error) {

	if err := checkStructure(candidate); err != nil {
		return 0, err
	}

	if blockchain.IsCoinBaseTx(candidate) {
		return 0, nil
	}

	var totalIn, totalOut btcutil.Amount
	prevOuts := make([]*wire.TxOut, len(candidate.TxIn))

	for i, in := range candidate.TxIn {
		op := in.PreviousOutPoint

		prevOut, prevHeight, isCoinbase, err := resolvePreviousOutput(storeTx, op, pending)
		if err != nil {
			return 0, err
		}
		prevOuts[i] = prevOut

		if isCoinbase && prevHeight >= 0 && tipHeight-prevHeight < coinbaseMaturity {
			return 0, ledgerError(ErrImmatureCoinbase,
				"input spends an immature coinbase output", nil)
		}

		spent, _, err := ledgerdb.IsSpent(storeTx, op.Hash, op.Index)
		if err != nil {
			return 0, ledgerError(ErrStoreError, "failed to check spent-output set", err)
		}
		if spent {
			return 0, ledgerError(ErrDoubleSpend, "input already spent", nil)
		}
		if _, claimedByOther := claimed(op); claimedByOther {
			return 0, ledgerError(ErrDoubleSpend, "input already claimed by a pending transaction", nil)
		}

		totalIn += btcutil.Amount(prevOut.Value)

		if err := checkRelativeLockTime(in, candidate.Version, prevHeight, tipHeight); err != nil {
			return 0, err
		}
	}

	for _, out := range candidate.TxOut {
		if out.Value < 0 {
			return 0, ledgerError(ErrTransactionMalformed, "output value is negative", nil)
		}
		totalOut += btcutil.Amount(out.Value)
	}
	if totalOut > btcutil.Amount(btcutil.MaxSatoshi) || totalIn > btcutil.Amount(btcutil.MaxSatoshi) {
		return 0, ledgerError(ErrValueOverflow, "transaction value exceeds the maximum supply", nil)
	}
	if totalIn < totalOut {
		return 0, ledgerError(ErrInsufficientInputValue,
			"sum of inputs is less than sum of outputs", nil)
	}

	if err := checkAbsoluteLockTime(candidate, prospectiveHeight); err != nil {
		return 0, err
	}

	for i := range candidate.TxIn {
		if err := checkInputScript(candidate, i, prevOuts); err != nil {
			return 0, err
		}
	}

	return totalIn - totalOut, nil
}

func checkStructure(tx *wire.MsgTx) error {
	if len(tx.TxIn) == 0 {
		return ledgerError(ErrTransactionMalformed, "transaction has no inputs", nil)
	}
	if len(tx.TxOut) == 0 {
		return ledgerError(ErrTransactionMalformed, "transaction has no outputs", nil)
	}
	if tx.SerializeSize() > maxStandardTxSize {
		return ledgerError(ErrTransactionMalformed, "transaction exceeds the maximum standard size", nil)
	}

	seen := make(map[wire.OutPoint]struct{}, len(tx.TxIn))
	for _, in := range tx.TxIn {
		if _, dup := seen[in.PreviousOutPoint]; dup {
			return ledgerError(ErrTransactionMalformed, "transaction spends the same outpoint twice", nil)
		}
		seen[in.PreviousOutPoint] = struct{}{}
	}
	return nil
}

// resolvePreviousOutput finds the output referenced by op, searching
// first the pending (not-yet-mined) lookup, then mined transactions in
// the store. It also reports the height the output was mined at
// (-1 if still pending) and whether the owning transaction is a
// coinbase, needed by the maturity rule.
func resolvePreviousOutput(storeTx *sql.Tx, op wire.OutPoint, pending pendingLookup) (*wire.TxOut, int64, bool, error) {
	if pendingTx, ok := pending(op.Hash); ok {
		if int(op.Index) >= len(pendingTx.TxOut) {
			return nil, 0, false, ledgerError(ErrPreviousOutputMissing,
				"output index out of range for pending transaction", nil)
		}
		return pendingTx.TxOut[op.Index], -1, blockchain.IsCoinBaseTx(pendingTx), nil
	}

	rec, err := ledgerdb.GetTransaction(storeTx, op.Hash)
	if err != nil {
		if se, ok := asStoreError(err); ok && se.ErrorCode == ledgerdb.ErrNoExist {
			return nil, 0, false, ledgerError(ErrPreviousOutputMissing,
				"referenced previous output does not exist", nil)
		}
		return nil, 0, false, ledgerError(ErrStoreError, "failed to resolve previous output", err)
	}
	if rec.BlockID == nil {
		return nil, 0, false, ledgerError(ErrPreviousOutputMissing,
			"referenced previous output is unconfirmed", nil)
	}

	var prevTx wire.MsgTx
	if err := prevTx.Deserialize(bytes.NewReader(rec.Body)); err != nil {
		return nil, 0, false, ledgerError(ErrStoreError, "failed to decode stored transaction", err)
	}
	if int(op.Index) >= len(prevTx.TxOut) {
		return nil, 0, false, ledgerError(ErrPreviousOutputMissing,
			"output index out of range", nil)
	}

	block, err := ledgerdb.GetBlockByHash(storeTx, *rec.BlockID)
	if err != nil {
		return nil, 0, false, ledgerError(ErrStoreError, "failed to resolve block of previous output", err)
	}

	return prevTx.TxOut[op.Index], block.Height, blockchain.IsCoinBaseTx(&prevTx), nil
}

// checkRelativeLockTime enforces BIP-68/CSV: if the transaction opts in
// (version >= 2 and the input's sequence does not have the disable bit
// set), the referenced output must have aged at least the encoded number
// of blocks. Time-based relative locks are rejected as unsupported.
func checkRelativeLockTime(in *wire.TxIn, version int32, prevHeight, tipHeight int64) error {
	if version < 2 {
		return nil
	}
	seq := in.Sequence
	if seq&wire.SequenceLockTimeDisabled != 0 {
		return nil
	}
	if prevHeight < 0 {
		// The referenced output is itself unconfirmed; there is no
		// meaningful age to measure yet, so the lock cannot be
		// satisfied.
		return ledgerError(ErrLockTimeNotSatisfied,
			"relative lock time: referenced output is not yet mined", nil)
	}
	if seq&wire.SequenceLockTimeIsSeconds != 0 {
		return ledgerError(ErrUnsupportedParameter,
			"time-based relative lock times are not supported", nil)
	}

	required := int64(seq & wire.SequenceLockTimeMask)
	age := tipHeight - prevHeight
	if age < required {
		return ledgerError(ErrLockTimeNotSatisfied,
			"relative lock time has not matured", nil)
	}
	return nil
}

// checkAbsoluteLockTime enforces nLockTime against prospectiveHeight.
// The lock is skipped entirely if every input opts out (sequence ==
// wire.MaxTxInSequenceNum), matching consensus's finality escape hatch.
// Time-based locktimes (>= txscript.LockTimeThreshold) are rejected as
// unsupported since the simulator has no notion of real block time.
func checkAbsoluteLockTime(tx *wire.MsgTx, prospectiveHeight int64) error {
	if tx.LockTime == 0 {
		return nil
	}
	allFinal := true
	for _, in := range tx.TxIn {
		if in.Sequence != wire.MaxTxInSequenceNum {
			allFinal = false
			break
		}
	}
	if allFinal {
		return nil
	}
	if tx.LockTime >= txscript.LockTimeThreshold {
		return ledgerError(ErrUnsupportedParameter,
			"time-based absolute lock times are not supported", nil)
	}
	if int64(tx.LockTime) > prospectiveHeight {
		return ledgerError(ErrLockTimeNotSatisfied,
			"absolute lock time has not matured", nil)
	}
	return nil
}
