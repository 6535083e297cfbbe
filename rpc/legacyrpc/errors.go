// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package legacyrpc

import (
	"errors"

	"github.com/btcsuite/btcd/btcjson"

	"github.com/chainwayxyz/bitcoin-mock-rpc/ledger"
)

// Error types to simplify the reporting of specific categories of
// errors and their *btcjson.RPCError creation, the way the teacher's own
// errors.go separates deserialization/parameter/parse failures.
type (
	// DeserializationError describes a failed parameter deserialization
	// due to bad user input. Corresponds to btcjson.ErrRPCDeserialization.
	DeserializationError struct{ error }

	// InvalidParameterError describes an invalid parameter passed by the
	// user. Corresponds to btcjson.ErrRPCInvalidParameter.
	InvalidParameterError struct{ error }

	// UnsupportedParameterError describes a structurally valid parameter
	// this simulator intentionally does not honor.
	UnsupportedParameterError struct{ error }
)

// rpcErrorCodeBase is the first of a contiguous block of custom error
// codes, one per ledger.ErrorCode variant, picked below btcjson's own
// reserved range so the two never collide.
const rpcErrorCodeBase btcjson.RPCErrorCode = -2000

var ledgerRPCCodes = map[ledger.ErrorCode]btcjson.RPCErrorCode{
	ledger.ErrTransactionMalformed:   rpcErrorCodeBase - 0,
	ledger.ErrPreviousOutputMissing:  rpcErrorCodeBase - 1,
	ledger.ErrDoubleSpend:            rpcErrorCodeBase - 2,
	ledger.ErrValueOverflow:          rpcErrorCodeBase - 3,
	ledger.ErrInsufficientInputValue: rpcErrorCodeBase - 4,
	ledger.ErrScriptFailure:          rpcErrorCodeBase - 5,
	ledger.ErrLockTimeNotSatisfied:   rpcErrorCodeBase - 6,
	ledger.ErrImmatureCoinbase:       rpcErrorCodeBase - 7,
	ledger.ErrUnknownAddress:         rpcErrorCodeBase - 8,
	ledger.ErrUnknownTransaction:     rpcErrorCodeBase - 9,
	ledger.ErrUnknownBlock:           rpcErrorCodeBase - 10,
	ledger.ErrStoreError:             rpcErrorCodeBase - 11,
	ledger.ErrUnsupportedParameter:   rpcErrorCodeBase - 12,
}

// toRPCError converts any error returned by a handler into a
// *btcjson.RPCError, translating ledger.LedgerError into the matching
// custom code and falling back to a generic internal error otherwise.
func toRPCError(err error) *btcjson.RPCError {
	if err == nil {
		return nil
	}

	var desErr DeserializationError
	if errors.As(err, &desErr) {
		return btcjson.NewRPCError(btcjson.ErrRPCDeserialization, desErr.Error())
	}
	var paramErr InvalidParameterError
	if errors.As(err, &paramErr) {
		return btcjson.NewRPCError(btcjson.ErrRPCInvalidParameter, paramErr.Error())
	}
	var unsupErr UnsupportedParameterError
	if errors.As(err, &unsupErr) {
		code := ledgerRPCCodes[ledger.ErrUnsupportedParameter]
		return btcjson.NewRPCError(code, unsupErr.Error())
	}

	var lerr ledger.LedgerError
	if errors.As(err, &lerr) {
		code, ok := ledgerRPCCodes[lerr.ErrorCode]
		if !ok {
			code = rpcErrorCodeBase
		}
		return btcjson.NewRPCError(code, lerr.Error())
	}

	return btcjson.NewRPCError(btcjson.ErrRPCInternal.Code, err.Error())
}
