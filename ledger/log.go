// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import "github.com/btcsuite/btclog"

// log is the package-level logger used throughout ledger. It is disabled
// by default and wired up by the caller through UseLogger.
var log = btclog.Disabled

// UseLogger sets the subsystem logger used by the ledger package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
