// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledgerdb

import "github.com/btcsuite/btclog"

// log is the package-level logger used throughout ledgerdb. It is
// disabled by default and wired up by the caller through UseLogger,
// mirroring the per-subsystem logger pattern the rest of the module
// follows.
var log = btclog.Disabled

// UseLogger sets the subsystem logger used by the ledgerdb package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
