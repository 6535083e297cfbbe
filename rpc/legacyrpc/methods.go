// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package legacyrpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/chainwayxyz/bitcoin-mock-rpc/ledger"
)

// handlerFunc implements one JSON-RPC method against a Server's ledger.
type handlerFunc func(s *Server, params []json.RawMessage) (interface{}, error)

// rpcHandlers is the case-insensitive method dispatch table, mirroring
// the teacher's own rpcHandlers registration map keyed by lowercase
// method name.
var rpcHandlers = map[string]handlerFunc{
	"sendrawtransaction":           handleSendRawTransaction,
	"getrawtransaction":            handleGetRawTransaction,
	"getrawtransactioninfo":        handleGetRawTransactionInfo,
	"gettransaction":               handleGetTransaction,
	"sendtoaddress":                handleSendToAddress,
	"getnewaddress":                handleGetNewAddress,
	"getbalance":                   handleGetBalance,
	"generatetoaddress":            handleGenerateToAddress,
	"getbestblockhash":             handleGetBestBlockHash,
	"getblock":                     handleGetBlock,
	"getblockheader":               handleGetBlockHeader,
	"getblockcount":                handleGetBlockCount,
	"fundrawtransaction":           handleFundRawTransaction,
	"signrawtransactionwithwallet": handleSignRawTransactionWithWallet,
}

func param(params []json.RawMessage, idx int, v interface{}) error {
	if idx >= len(params) {
		return InvalidParameterError{fmt.Errorf("missing parameter %d", idx)}
	}
	if err := json.Unmarshal(params[idx], v); err != nil {
		return DeserializationError{err}
	}
	return nil
}

func optionalRawParam(params []json.RawMessage, idx int) (json.RawMessage, bool) {
	if idx >= len(params) {
		return nil, false
	}
	var asNull interface{}
	if err := json.Unmarshal(params[idx], &asNull); err == nil && asNull == nil {
		return nil, false
	}
	return params[idx], true
}

func decodeRawTx(hexStr string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, DeserializationError{err}
	}
	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, DeserializationError{err}
	}
	return &tx, nil
}

func encodeTx(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

// transactionResult mirrors the fields production nodes report for
// gettransaction/getrawtransaction verbose=true, named and JSON-tagged to
// match bitcoind's own conventions.
type transactionResult struct {
	Hex           string `json:"hex"`
	Txid          string `json:"txid"`
	BlockHash     string `json:"blockhash,omitempty"`
	Confirmations int64  `json:"confirmations,omitempty"`
}

func buildTransactionResult(l *ledger.Ledger, txid chainhash.Hash) (*transactionResult, error) {
	info, err := l.TransactionByID(txid)
	if err != nil {
		return nil, err
	}
	hexStr, err := encodeTx(info.Tx)
	if err != nil {
		return nil, err
	}
	res := &transactionResult{Hex: hexStr, Txid: info.Txid.String()}
	if info.BlockHash != nil {
		res.BlockHash = info.BlockHash.String()
		tip, err := l.BlockCount()
		if err == nil {
			res.Confirmations = tip - *info.BlockHeight + 1
		}
	}
	return res, nil
}

func handleSendRawTransaction(s *Server, params []json.RawMessage) (interface{}, error) {
	var hexStr string
	if err := param(params, 0, &hexStr); err != nil {
		return nil, err
	}
	if _, ok := optionalRawParam(params, 1); ok {
		return nil, UnsupportedParameterError{fmt.Errorf("allowhighfees/maxfeerate is not supported")}
	}
	tx, err := decodeRawTx(hexStr)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, err
	}
	txid, err := s.ledger.SubmitTransaction(buf.Bytes())
	if err != nil {
		return nil, err
	}
	return txid.String(), nil
}

func handleGetRawTransaction(s *Server, params []json.RawMessage) (interface{}, error) {
	var txidStr string
	if err := param(params, 0, &txidStr); err != nil {
		return nil, err
	}
	txid, err := chainhash.NewHashFromStr(txidStr)
	if err != nil {
		return nil, DeserializationError{err}
	}
	var verbose bool
	_ = param(params, 1, &verbose)
	res, err := buildTransactionResult(s.ledger, *txid)
	if err != nil {
		return nil, err
	}
	if !verbose {
		return res.Hex, nil
	}
	return res, nil
}

func handleGetRawTransactionInfo(s *Server, params []json.RawMessage) (interface{}, error) {
	var txidStr string
	if err := param(params, 0, &txidStr); err != nil {
		return nil, err
	}
	txid, err := chainhash.NewHashFromStr(txidStr)
	if err != nil {
		return nil, DeserializationError{err}
	}
	return buildTransactionResult(s.ledger, *txid)
}

func handleGetTransaction(s *Server, params []json.RawMessage) (interface{}, error) {
	var txidStr string
	if err := param(params, 0, &txidStr); err != nil {
		return nil, err
	}
	txid, err := chainhash.NewHashFromStr(txidStr)
	if err != nil {
		return nil, DeserializationError{err}
	}
	return buildTransactionResult(s.ledger, *txid)
}

func handleSendToAddress(s *Server, params []json.RawMessage) (interface{}, error) {
	var address string
	var amountBTC float64
	if err := param(params, 0, &address); err != nil {
		return nil, err
	}
	if err := param(params, 1, &amountBTC); err != nil {
		return nil, err
	}
	if _, ok := optionalRawParam(params, 2); ok {
		return nil, UnsupportedParameterError{fmt.Errorf("comment is not supported")}
	}
	amount, err := btcutil.NewAmount(amountBTC)
	if err != nil {
		return nil, InvalidParameterError{err}
	}
	if amount <= 0 {
		return nil, InvalidParameterError{fmt.Errorf("amount must be positive")}
	}
	txid, err := s.ledger.SendToAddress(address, amount)
	if err != nil {
		return nil, err
	}
	return txid.String(), nil
}

func handleGetNewAddress(s *Server, params []json.RawMessage) (interface{}, error) {
	if _, ok := optionalRawParam(params, 0); ok {
		return nil, UnsupportedParameterError{fmt.Errorf("account/address_type is not supported")}
	}
	return s.ledger.GenerateNewAddress(ledger.AddressP2TR)
}

func decodeAddress(s *Server, address string) (btcutil.Address, error) {
	decoded, err := btcutil.DecodeAddress(address, s.params.Params)
	if err != nil {
		return nil, InvalidParameterError{err}
	}
	return decoded, nil
}

func handleGetBalance(s *Server, params []json.RawMessage) (interface{}, error) {
	var address string
	if err := param(params, 0, &address); err != nil {
		return nil, err
	}
	if _, ok := optionalRawParam(params, 1); ok {
		return nil, UnsupportedParameterError{fmt.Errorf("minconf is not supported")}
	}
	decoded, err := decodeAddress(s, address)
	if err != nil {
		return nil, err
	}
	pkScript, err := txscript.PayToAddrScript(decoded)
	if err != nil {
		return nil, InvalidParameterError{err}
	}
	value, err := s.ledger.Balance(pkScript)
	if err != nil {
		return nil, err
	}
	return btcutil.Amount(value).ToBTC(), nil
}

func handleGenerateToAddress(s *Server, params []json.RawMessage) (interface{}, error) {
	var numBlocks int64
	var address string
	if err := param(params, 0, &numBlocks); err != nil {
		return nil, err
	}
	if err := param(params, 1, &address); err != nil {
		return nil, err
	}
	if _, ok := optionalRawParam(params, 2); ok {
		return nil, UnsupportedParameterError{fmt.Errorf("maxtries is not supported")}
	}
	ids, err := s.ledger.GenerateToAddress(int(numBlocks), address)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out, nil
}

func handleGetBestBlockHash(s *Server, _ []json.RawMessage) (interface{}, error) {
	hash, err := s.ledger.BestBlockHash()
	if err != nil {
		return nil, err
	}
	return hash.String(), nil
}

// blockResult mirrors bitcoind's getblock/getblockheader verbose shape.
type blockResult struct {
	Hash          string   `json:"hash"`
	Height        int64    `json:"height"`
	PreviousHash  string   `json:"previousblockhash"`
	MerkleRoot    string   `json:"merkleroot"`
	Time          int64    `json:"time"`
	Tx            []string `json:"tx,omitempty"`
}

func handleGetBlock(s *Server, params []json.RawMessage) (interface{}, error) {
	var hashStr string
	if err := param(params, 0, &hashStr); err != nil {
		return nil, err
	}
	hash, err := chainhash.NewHashFromStr(hashStr)
	if err != nil {
		return nil, DeserializationError{err}
	}
	var verbosity int
	if err := param(params, 1, &verbosity); err != nil {
		verbosity = 1
	}
	info, err := s.ledger.BlockByHash(*hash)
	if err != nil {
		return nil, err
	}
	if verbosity == 0 {
		return nil, UnsupportedParameterError{fmt.Errorf("verbosity 0 (serialized block) is not supported")}
	}
	txids := make([]string, len(info.Txids))
	for i, t := range info.Txids {
		txids[i] = t.String()
	}
	return &blockResult{
		Hash:         info.BlockID.String(),
		Height:       info.Height,
		PreviousHash: info.PrevBlockID.String(),
		MerkleRoot:   info.MerkleRoot.String(),
		Time:         info.Timestamp,
		Tx:           txids,
	}, nil
}

func handleGetBlockHeader(s *Server, params []json.RawMessage) (interface{}, error) {
	var hashStr string
	if err := param(params, 0, &hashStr); err != nil {
		return nil, err
	}
	hash, err := chainhash.NewHashFromStr(hashStr)
	if err != nil {
		return nil, DeserializationError{err}
	}
	info, err := s.ledger.BlockHeaderByHash(*hash)
	if err != nil {
		return nil, err
	}
	return &blockResult{
		Hash:         info.BlockID.String(),
		Height:       info.Height,
		PreviousHash: info.PrevBlockID.String(),
		MerkleRoot:   info.MerkleRoot.String(),
		Time:         info.Timestamp,
	}, nil
}

func handleGetBlockCount(s *Server, _ []json.RawMessage) (interface{}, error) {
	return s.ledger.BlockCount()
}

// fundResult mirrors bitcoind's fundrawtransaction result shape.
type fundResult struct {
	Hex string  `json:"hex"`
	Fee float64 `json:"fee"`
}

func handleFundRawTransaction(s *Server, params []json.RawMessage) (interface{}, error) {
	var hexStr string
	if err := param(params, 0, &hexStr); err != nil {
		return nil, err
	}
	if raw, ok := optionalRawParam(params, 1); ok {
		var opts map[string]json.RawMessage
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, DeserializationError{err}
		}
		if len(opts) > 0 {
			return nil, UnsupportedParameterError{fmt.Errorf("fundrawtransaction options are not supported")}
		}
	}
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, DeserializationError{err}
	}
	fundedRaw, fee, err := s.ledger.FundRawTransaction(raw)
	if err != nil {
		return nil, err
	}
	return &fundResult{Hex: hex.EncodeToString(fundedRaw), Fee: fee.ToBTC()}, nil
}

// signResult mirrors bitcoind's signrawtransactionwithwallet result shape.
type signResult struct {
	Hex      string `json:"hex"`
	Complete bool   `json:"complete"`
}

func handleSignRawTransactionWithWallet(s *Server, params []json.RawMessage) (interface{}, error) {
	var hexStr string
	if err := param(params, 0, &hexStr); err != nil {
		return nil, err
	}
	if _, ok := optionalRawParam(params, 1); ok {
		return nil, UnsupportedParameterError{fmt.Errorf("prevtxs is not supported")}
	}
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, DeserializationError{err}
	}
	signedRaw, complete, err := s.ledger.SignRawTransactionWithWallet(raw)
	if err != nil {
		return nil, err
	}
	return &signResult{Hex: hex.EncodeToString(signedRaw), Complete: complete}, nil
}
