// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledgerdb

import "fmt"

// ErrorCode identifies a kind of store failure.
type ErrorCode int

const (
	// ErrDatabase indicates an error with the underlying database
	// connection or driver. The Err field carries the underlying error.
	ErrDatabase ErrorCode = iota

	// ErrNoExist indicates a lookup found no matching record.
	ErrNoExist

	// ErrAlreadyExists indicates an insert collided with an existing
	// record.
	ErrAlreadyExists

	// ErrCorrupt indicates the store's on-disk state violates an
	// invariant the rest of the package assumes always holds.
	ErrCorrupt
)

var errorCodeStrings = map[ErrorCode]string{
	ErrDatabase:      "ErrDatabase",
	ErrNoExist:       "ErrNoExist",
	ErrAlreadyExists: "ErrAlreadyExists",
	ErrCorrupt:       "ErrCorrupt",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// StoreError provides a single type for errors returned by this package.
type StoreError struct {
	ErrorCode   ErrorCode
	Description string
	Err         error
}

// Error satisfies the error interface.
func (e StoreError) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

// Unwrap allows errors.Is/errors.As to see through to the underlying
// database error, if any.
func (e StoreError) Unwrap() error {
	return e.Err
}

func storeError(c ErrorCode, desc string, err error) StoreError {
	return StoreError{ErrorCode: c, Description: desc, Err: err}
}
