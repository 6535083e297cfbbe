// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledgerdb

import (
	"database/sql"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// headerBits is the fixed difficulty field stamped into every header; the
// simulator performs no proof-of-work, so this value is never checked
// against a target.
const headerBits = 0x207fffff

// ZeroHash is the all-zero hash used as the previous-block and merkle-root
// value of the genesis block.
var ZeroHash = chainhash.Hash{}

// BlockRecord is the on-disk representation of a mined block, keyed by its
// height. It intentionally carries only the fields the ledger's consensus
// subset needs; it is not a wire.BlockHeader.
type BlockRecord struct {
	Height      int64
	BlockID     chainhash.Hash
	PrevBlockID chainhash.Hash
	MerkleRoot  chainhash.Hash
	Timestamp   time.Time
	MinedAt     time.Time
}

// TxRecord is the on-disk representation of a transaction, whether it sits
// unconfirmed in the mempool (BlockID == nil) or has been mined.
type TxRecord struct {
	Txid       chainhash.Hash
	Wtxid      chainhash.Hash
	Body       []byte
	BlockID    *chainhash.Hash
	Position   *int64
	InsertedAt time.Time
}

// KeyRecord is a generated address's key material, as persisted by the
// Address/Key Helper.
type KeyRecord struct {
	Address    string
	PrivKey    []byte
	PubKey     []byte
	ScriptType string
}

// BuildHeader assembles a block header from its consensus fields. The
// ledger never performs proof-of-work, so Bits is always headerBits and
// Nonce carries the network magic instead of a solved nonce, which keeps
// two networks' genesis blocks from colliding on the same id.
func BuildHeader(prevBlockID, merkleRoot chainhash.Hash, timestamp time.Time, nonce uint32) wire.BlockHeader {
	return wire.BlockHeader{
		Version:    1,
		PrevBlock:  prevBlockID,
		MerkleRoot: merkleRoot,
		Timestamp:  timestamp,
		Bits:       headerBits,
		Nonce:      nonce,
	}
}

// HeaderBlockID returns a header's double-SHA-256 block id.
func HeaderBlockID(h wire.BlockHeader) chainhash.Hash {
	return h.BlockHash()
}

// GenesisBlockID computes the id of a store's genesis block header:
// zero previous block, zero merkle root, the store's creation time as
// timestamp, and networkMagic folded into the nonce field so that two
// networks opened against otherwise-identical stores never collide on
// the same genesis id.
func GenesisBlockID(networkMagic uint32, genesisTime time.Time) chainhash.Hash {
	return HeaderBlockID(BuildHeader(ZeroHash, ZeroHash, genesisTime, networkMagic))
}

// setMeta upserts a key/value pair in the meta table.
func setMeta(tx *sql.Tx, key, value string) error {
	_, err := tx.Exec(
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return storeError(ErrDatabase, "failed to write meta key "+key, err)
	}
	return nil
}

// getMeta reads a value from the meta table, returning ErrNoExist if the
// key is unset.
func getMeta(tx *sql.Tx, key string) (string, error) {
	var value string
	err := tx.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	switch {
	case err == sql.ErrNoRows:
		return "", storeError(ErrNoExist, "meta key "+key+" is not set", nil)
	case err != nil:
		return "", storeError(ErrDatabase, "failed to read meta key "+key, err)
	default:
		return value, nil
	}
}

// InsertBlock records a newly mined (or genesis) block. The caller is
// responsible for ensuring b.Height is the next height after the current
// tip; a height collision surfaces as ErrAlreadyExists.
func InsertBlock(tx *sql.Tx, b *BlockRecord) error {
	_, err := tx.Exec(
		`INSERT INTO blocks (height, block_id, prev_block_id, merkle_root, timestamp, mined_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		b.Height, b.BlockID[:], b.PrevBlockID[:], b.MerkleRoot[:],
		b.Timestamp.Unix(), b.MinedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storeError(ErrAlreadyExists, "block already exists", err)
		}
		return storeError(ErrDatabase, "failed to insert block", err)
	}
	return nil
}

func scanBlockRow(row *sql.Row) (*BlockRecord, error) {
	var (
		b                            BlockRecord
		blockID, prevBlockID, merkle []byte
		ts, minedAt                  int64
	)
	err := row.Scan(&b.Height, &blockID, &prevBlockID, &merkle, &ts, &minedAt)
	switch {
	case err == sql.ErrNoRows:
		return nil, storeError(ErrNoExist, "block not found", nil)
	case err != nil:
		return nil, storeError(ErrDatabase, "failed to scan block row", err)
	}
	copy(b.BlockID[:], blockID)
	copy(b.PrevBlockID[:], prevBlockID)
	copy(b.MerkleRoot[:], merkle)
	b.Timestamp = time.Unix(ts, 0)
	b.MinedAt = time.Unix(minedAt, 0)
	return &b, nil
}

// GetBlockByHeight looks up a block by its height.
func GetBlockByHeight(tx *sql.Tx, height int64) (*BlockRecord, error) {
	row := tx.QueryRow(
		`SELECT height, block_id, prev_block_id, merkle_root, timestamp, mined_at
		 FROM blocks WHERE height = ?`, height,
	)
	return scanBlockRow(row)
}

// GetBlockByHash looks up a block by its id.
func GetBlockByHash(tx *sql.Tx, id chainhash.Hash) (*BlockRecord, error) {
	row := tx.QueryRow(
		`SELECT height, block_id, prev_block_id, merkle_root, timestamp, mined_at
		 FROM blocks WHERE block_id = ?`, id[:],
	)
	return scanBlockRow(row)
}

// TipHeight returns the height of the most recently mined block.
func TipHeight(tx *sql.Tx) (int64, error) {
	var height int64
	err := tx.QueryRow(`SELECT COALESCE(MAX(height), 0) FROM blocks`).Scan(&height)
	if err != nil {
		return 0, storeError(ErrDatabase, "failed to read tip height", err)
	}
	return height, nil
}

// TipBlock returns the most recently mined block.
func TipBlock(tx *sql.Tx) (*BlockRecord, error) {
	row := tx.QueryRow(
		`SELECT height, block_id, prev_block_id, merkle_root, timestamp, mined_at
		 FROM blocks ORDER BY height DESC LIMIT 1`,
	)
	return scanBlockRow(row)
}

// InsertTransaction records a transaction, either into the mempool
// (BlockID == nil) or directly as already-mined (used when replaying a
// block assembled in the same write transaction).
func InsertTransaction(tx *sql.Tx, t *TxRecord) error {
	var blockID []byte
	if t.BlockID != nil {
		blockID = t.BlockID[:]
	}
	_, err := tx.Exec(
		`INSERT INTO transactions (txid, wtxid, body, block_id, position, inserted_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.Txid[:], t.Wtxid[:], t.Body, blockID, t.Position, t.InsertedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storeError(ErrAlreadyExists, "transaction already exists", err)
		}
		return storeError(ErrDatabase, "failed to insert transaction", err)
	}
	return nil
}

func scanTxRow(row *sql.Row) (*TxRecord, error) {
	var (
		t                    TxRecord
		txid, wtxid          []byte
		blockID              []byte
		position             sql.NullInt64
		insertedAt           int64
	)
	err := row.Scan(&txid, &wtxid, &t.Body, &blockID, &position, &insertedAt)
	switch {
	case err == sql.ErrNoRows:
		return nil, storeError(ErrNoExist, "transaction not found", nil)
	case err != nil:
		return nil, storeError(ErrDatabase, "failed to scan transaction row", err)
	}
	copy(t.Txid[:], txid)
	copy(t.Wtxid[:], wtxid)
	if len(blockID) > 0 {
		var h chainhash.Hash
		copy(h[:], blockID)
		t.BlockID = &h
	}
	if position.Valid {
		p := position.Int64
		t.Position = &p
	}
	t.InsertedAt = time.Unix(insertedAt, 0)
	return &t, nil
}

// GetTransaction looks up a transaction by its id, whether mined or still
// in the mempool.
func GetTransaction(tx *sql.Tx, txid chainhash.Hash) (*TxRecord, error) {
	row := tx.QueryRow(
		`SELECT txid, wtxid, body, block_id, position, inserted_at
		 FROM transactions WHERE txid = ?`, txid[:],
	)
	return scanTxRow(row)
}

// SetTransactionBlock moves a mempool transaction into a mined block at
// the given position, as part of block assembly.
func SetTransactionBlock(tx *sql.Tx, txid chainhash.Hash, blockID chainhash.Hash, position int64) error {
	res, err := tx.Exec(
		`UPDATE transactions SET block_id = ?, position = ? WHERE txid = ?`,
		blockID[:], position, txid[:],
	)
	if err != nil {
		return storeError(ErrDatabase, "failed to set transaction block", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storeError(ErrNoExist, "transaction not found", nil)
	}
	return nil
}

// MempoolTxids returns every unconfirmed transaction id, ordered by
// insertion (rowid) order.
func MempoolTxids(tx *sql.Tx) ([]chainhash.Hash, error) {
	rows, err := tx.Query(
		`SELECT txid FROM transactions WHERE block_id IS NULL ORDER BY rowid ASC`,
	)
	if err != nil {
		return nil, storeError(ErrDatabase, "failed to list mempool transactions", err)
	}
	defer rows.Close()

	var out []chainhash.Hash
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, storeError(ErrDatabase, "failed to scan mempool txid", err)
		}
		var h chainhash.Hash
		copy(h[:], raw)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(ErrDatabase, "failed to iterate mempool transactions", err)
	}
	return out, nil
}

// IsSpent reports whether the given outpoint has already been claimed by
// some other transaction's input.
func IsSpent(tx *sql.Tx, prevTxid chainhash.Hash, prevIndex uint32) (bool, chainhash.Hash, error) {
	var spendingTxid []byte
	err := tx.QueryRow(
		`SELECT spending_txid FROM spent_outputs WHERE prev_txid = ? AND prev_index = ?`,
		prevTxid[:], prevIndex,
	).Scan(&spendingTxid)
	switch {
	case err == sql.ErrNoRows:
		return false, chainhash.Hash{}, nil
	case err != nil:
		return false, chainhash.Hash{}, storeError(ErrDatabase, "failed to probe spent outputs", err)
	}
	var h chainhash.Hash
	copy(h[:], spendingTxid)
	return true, h, nil
}

// MarkSpent records that prevTxid:prevIndex has been claimed by
// spendingTxid's inputs.
func MarkSpent(tx *sql.Tx, prevTxid chainhash.Hash, prevIndex uint32, spendingTxid chainhash.Hash) error {
	_, err := tx.Exec(
		`INSERT INTO spent_outputs (prev_txid, prev_index, spending_txid) VALUES (?, ?, ?)`,
		prevTxid[:], prevIndex, spendingTxid[:],
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storeError(ErrAlreadyExists, "output already spent", err)
		}
		return storeError(ErrDatabase, "failed to mark output spent", err)
	}
	return nil
}

// InsertKey persists a generated address's key material.
func InsertKey(tx *sql.Tx, k *KeyRecord) error {
	_, err := tx.Exec(
		`INSERT INTO keys (address, privkey, pubkey, script_type) VALUES (?, ?, ?, ?)`,
		k.Address, k.PrivKey, k.PubKey, k.ScriptType,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storeError(ErrAlreadyExists, "key already exists", err)
		}
		return storeError(ErrDatabase, "failed to insert key", err)
	}
	return nil
}

// GetKeyByAddress looks up a generated address's key material.
func GetKeyByAddress(tx *sql.Tx, address string) (*KeyRecord, error) {
	var k KeyRecord
	k.Address = address
	err := tx.QueryRow(
		`SELECT privkey, pubkey, script_type FROM keys WHERE address = ?`, address,
	).Scan(&k.PrivKey, &k.PubKey, &k.ScriptType)
	switch {
	case err == sql.ErrNoRows:
		return nil, storeError(ErrNoExist, "unknown address", nil)
	case err != nil:
		return nil, storeError(ErrDatabase, "failed to read key", err)
	}
	return &k, nil
}

// AllKeys returns every generated address's key material, used by wallet
// helpers that need to scan for controlled outputs.
func AllKeys(tx *sql.Tx) ([]*KeyRecord, error) {
	rows, err := tx.Query(`SELECT address, privkey, pubkey, script_type FROM keys`)
	if err != nil {
		return nil, storeError(ErrDatabase, "failed to list keys", err)
	}
	defer rows.Close()

	var out []*KeyRecord
	for rows.Next() {
		var k KeyRecord
		if err := rows.Scan(&k.Address, &k.PrivKey, &k.PubKey, &k.ScriptType); err != nil {
			return nil, storeError(ErrDatabase, "failed to scan key row", err)
		}
		out = append(out, &k)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(ErrDatabase, "failed to iterate keys", err)
	}
	return out, nil
}

// isUniqueViolation reports whether err is a SQLite uniqueness constraint
// failure. modernc.org/sqlite surfaces these as a *sqlite.Error whose
// message contains the SQLite "UNIQUE constraint failed" text; matching on
// the message avoids importing the driver's internal error type.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
