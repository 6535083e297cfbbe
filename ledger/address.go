// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"database/sql"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/chainwayxyz/bitcoin-mock-rpc/ledger/ledgerdb"
)

// AddressKind selects the script template a generated address uses.
type AddressKind int

const (
	// AddressP2WPKH generates a witness-pubkey-hash address, spent by a
	// single ECDSA signature.
	AddressP2WPKH AddressKind = iota

	// AddressP2TR generates a key-path-only Taproot address, spent by a
	// single Schnorr signature against the tweaked output key.
	AddressP2TR
)

const (
	scriptTypeP2WPKH = "p2wpkh"
	scriptTypeP2TR   = "p2tr"
)

// newKeyPair generates a fresh secp256k1 key pair and derives the
// address/locking-script pair for kind under params, the way the
// Address/Key Helper (section 4.7) describes: stateless with respect to
// the ledger, consulted only by the facade's wallet-like helpers.
func newKeyPair(kind AddressKind, params *chaincfg.Params) (btcutil.Address, []byte, *btcec.PrivateKey, error) {
	privKey, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, nil, nil, ledgerError(ErrStoreError, "failed to generate private key", err)
	}
	pubKey := privKey.PubKey()

	switch kind {
	case AddressP2WPKH:
		pubKeyHash := btcutil.Hash160(pubKey.SerializeCompressed())
		addr, err := btcutil.NewAddressWitnessPubKeyHash(pubKeyHash, params)
		if err != nil {
			return nil, nil, nil, ledgerError(ErrStoreError, "failed to derive p2wpkh address", err)
		}
		pkScript, err := txscript.PayToAddrScript(addr)
		if err != nil {
			return nil, nil, nil, ledgerError(ErrStoreError, "failed to build p2wpkh script", err)
		}
		return addr, pkScript, privKey, nil

	case AddressP2TR:
		// Key-path-only output: no script tree, so the merkle root
		// folded into the tweak is empty.
		tweakedKey := txscript.ComputeTaprootKeyNoScript(pubKey)
		addr, err := btcutil.NewAddressTaproot(
			schnorr.SerializePubKey(tweakedKey), params,
		)
		if err != nil {
			return nil, nil, nil, ledgerError(ErrStoreError, "failed to derive p2tr address", err)
		}
		pkScript, err := txscript.PayToAddrScript(addr)
		if err != nil {
			return nil, nil, nil, ledgerError(ErrStoreError, "failed to build p2tr script", err)
		}
		return addr, pkScript, privKey, nil

	default:
		return nil, nil, nil, ledgerError(ErrUnsupportedParameter, "unknown address kind", nil)
	}
}

func scriptTypeName(kind AddressKind) string {
	if kind == AddressP2TR {
		return scriptTypeP2TR
	}
	return scriptTypeP2WPKH
}

// generateAddress creates and persists a fresh address of the given
// kind, returning its string encoding.
func (l *Ledger) generateAddress(kind AddressKind) (string, error) {
	addr, _, privKey, err := newKeyPair(kind, l.params.Params)
	if err != nil {
		return "", err
	}

	rec := &ledgerdb.KeyRecord{
		Address:    addr.EncodeAddress(),
		PrivKey:    privKey.Serialize(),
		PubKey:     privKey.PubKey().SerializeCompressed(),
		ScriptType: scriptTypeName(kind),
	}

	err = l.store.WriteTx(func(tx *sql.Tx) error {
		return ledgerdb.InsertKey(tx, rec)
	})
	if err != nil {
		if se, ok := asStoreError(err); ok {
			return "", ledgerError(ErrStoreError, "failed to persist generated address", se)
		}
		return "", err
	}
	return rec.Address, nil
}

// keyForAddress loads a previously generated address's private key and
// script type.
func (l *Ledger) keyForAddress(address string) (*btcec.PrivateKey, string, error) {
	var rec *ledgerdb.KeyRecord
	err := l.store.ReadTx(func(tx *sql.Tx) error {
		var err error
		rec, err = ledgerdb.GetKeyByAddress(tx, address)
		return err
	})
	if err != nil {
		if se, ok := asStoreError(err); ok && se.ErrorCode == ledgerdb.ErrNoExist {
			return nil, "", ledgerError(ErrUnknownAddress, "address was not generated by this ledger", nil)
		}
		return nil, "", ledgerError(ErrStoreError, "failed to look up address", err)
	}
	privKey, _ := btcec.PrivKeyFromBytes(rec.PrivKey)
	return privKey, rec.ScriptType, nil
}
