// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"errors"
	"fmt"

	"github.com/chainwayxyz/bitcoin-mock-rpc/ledger/ledgerdb"
)

// asStoreError unwraps err into a ledgerdb.StoreError, if it is (or
// wraps) one.
func asStoreError(err error) (ledgerdb.StoreError, bool) {
	var se ledgerdb.StoreError
	return se, errors.As(err, &se)
}

// ErrorCode identifies a kind of ledger failure, mirrored across every
// operation the ledger exposes so callers can branch on failure kind
// without string matching.
type ErrorCode int

const (
	// ErrTransactionMalformed indicates a transaction failed to decode,
	// or decoded into a structurally invalid shape (no inputs, no
	// outputs, the same outpoint spent twice, an oversized transaction,
	// a negative output value).
	ErrTransactionMalformed ErrorCode = iota

	// ErrPreviousOutputMissing indicates an input spends an outpoint
	// the ledger has no record of.
	ErrPreviousOutputMissing

	// ErrDoubleSpend indicates an input spends an outpoint already
	// claimed by another transaction.
	ErrDoubleSpend

	// ErrValueOverflow indicates a transaction's output or input values
	// overflow the maximum representable amount.
	ErrValueOverflow

	// ErrInsufficientInputValue indicates a transaction's inputs sum to
	// less than its outputs.
	ErrInsufficientInputValue

	// ErrScriptFailure indicates an input failed script or signature
	// verification.
	ErrScriptFailure

	// ErrLockTimeNotSatisfied indicates a transaction's absolute or
	// relative locktime has not yet matured at the prospective height.
	ErrLockTimeNotSatisfied

	// ErrImmatureCoinbase indicates an input attempts to spend a
	// coinbase output before it has reached maturity.
	ErrImmatureCoinbase

	// ErrUnknownAddress indicates a lookup referenced an address the
	// ledger never generated.
	ErrUnknownAddress

	// ErrUnknownTransaction indicates a lookup referenced a transaction
	// id the ledger has no record of, mined or unconfirmed.
	ErrUnknownTransaction

	// ErrUnknownBlock indicates a lookup referenced a block height or
	// id the ledger has no record of.
	ErrUnknownBlock

	// ErrStoreError wraps a failure surfaced by the underlying
	// Persistence Store (ledgerdb.StoreError).
	ErrStoreError

	// ErrUnsupportedParameter indicates the caller requested a
	// parameter combination the simulator intentionally does not model
	// (e.g. a time-based relative locktime, or a JSON-RPC option that
	// only matters for a wallet's own output policy).
	ErrUnsupportedParameter
)

var errorCodeStrings = map[ErrorCode]string{
	ErrTransactionMalformed:  "ErrTransactionMalformed",
	ErrPreviousOutputMissing: "ErrPreviousOutputMissing",
	ErrDoubleSpend:           "ErrDoubleSpend",
	ErrValueOverflow:         "ErrValueOverflow",
	ErrInsufficientInputValue: "ErrInsufficientInputValue",
	ErrScriptFailure:         "ErrScriptFailure",
	ErrLockTimeNotSatisfied:  "ErrLockTimeNotSatisfied",
	ErrImmatureCoinbase:      "ErrImmatureCoinbase",
	ErrUnknownAddress:        "ErrUnknownAddress",
	ErrUnknownTransaction:    "ErrUnknownTransaction",
	ErrUnknownBlock:          "ErrUnknownBlock",
	ErrStoreError:            "ErrStoreError",
	ErrUnsupportedParameter:  "ErrUnsupportedParameter",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// LedgerError provides a single error type for every failure the ledger
// package returns, the way wtxmgr.TxStoreError does for the transaction
// store it is modeled on.
type LedgerError struct {
	ErrorCode   ErrorCode
	Description string
	Err         error
}

// Error satisfies the error interface.
func (e LedgerError) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

// Unwrap allows errors.Is/errors.As to see through to the underlying
// cause, including a wrapped ledgerdb.StoreError.
func (e LedgerError) Unwrap() error {
	return e.Err
}

func ledgerError(c ErrorCode, desc string, err error) LedgerError {
	return LedgerError{ErrorCode: c, Description: desc, Err: err}
}
