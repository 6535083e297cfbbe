// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package legacyrpc

import (
	"encoding/json"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/chainwayxyz/bitcoin-mock-rpc/ledger"
	"github.com/chainwayxyz/bitcoin-mock-rpc/netparams"
)

func newTestServer(t *testing.T) *Server {
	l, err := ledger.Open("", netparams.RegressionNetParams)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return &Server{ledger: l, params: netparams.RegressionNetParams}
}

func rawParams(t *testing.T, values ...interface{}) []json.RawMessage {
	out := make([]json.RawMessage, len(values))
	for i, v := range values {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		out[i] = b
	}
	return out
}

// S10 — an unsupported RPC parameter is rejected rather than silently
// ignored.
func TestFundRawTransactionRejectsUnsupportedOptions(t *testing.T) {
	s := newTestServer(t)

	// The options check runs before the hex payload is decoded, so a
	// garbage hex string is enough to exercise it.
	rawTx := "0200000000000000000000"
	_, err := handleFundRawTransaction(s, rawParams(t, rawTx,
		map[string]interface{}{"changePosition": 1}))
	require.Error(t, err)
	var unsupported UnsupportedParameterError
	require.ErrorAs(t, err, &unsupported)
}

func TestFundRawTransactionAcceptsEmptyOptions(t *testing.T) {
	s := newTestServer(t)

	minerAddr, err := handleGetNewAddress(s, nil)
	require.NoError(t, err)
	_, err = s.ledger.GenerateToAddress(101, minerAddr.(string))
	require.NoError(t, err)

	destAddr, err := handleGetNewAddress(s, nil)
	require.NoError(t, err)
	decodedDest, err := decodeAddress(s, destAddr.(string))
	require.NoError(t, err)
	payScript, err := txscript.PayToAddrScript(decodedDest)
	require.NoError(t, err)

	tx := wire.NewMsgTx(2)
	tx.AddTxOut(&wire.TxOut{Value: int64(1 * btcutil.SatoshiPerBitcoin), PkScript: payScript})
	rawHex, err := encodeTx(tx)
	require.NoError(t, err)

	_, err = handleFundRawTransaction(s, rawParams(t, rawHex, map[string]interface{}{}))
	require.NoError(t, err)
}

func TestGetBlockCountDispatch(t *testing.T) {
	s := newTestServer(t)

	result, err := handleGetBlockCount(s, nil)
	require.NoError(t, err)
	require.Equal(t, int64(0), result)

	addr, err := handleGetNewAddress(s, nil)
	require.NoError(t, err)
	_, err = s.ledger.GenerateToAddress(3, addr.(string))
	require.NoError(t, err)

	result, err = handleGetBlockCount(s, nil)
	require.NoError(t, err)
	require.Equal(t, int64(3), result)
}

func TestSendRawTransactionRejectsUnsupportedMaxFeeRate(t *testing.T) {
	s := newTestServer(t)
	_, err := handleSendRawTransaction(s, rawParams(t, "00", 0.1))
	require.Error(t, err)
	var unsupported UnsupportedParameterError
	require.ErrorAs(t, err, &unsupported)
}

func TestGetBalanceOfFreshAddressIsZero(t *testing.T) {
	s := newTestServer(t)
	addr, err := handleGetNewAddress(s, nil)
	require.NoError(t, err)

	result, err := handleGetBalance(s, rawParams(t, addr))
	require.NoError(t, err)
	require.Equal(t, 0.0, result)
}
