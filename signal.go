// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"os/signal"
	"syscall"
)

var interruptChannel chan os.Signal

var addHandlerChannel = make(chan func())

var interruptHandlersDone = make(chan struct{})

var signals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// mainInterruptHandler listens for SIGINT/SIGTERM and invokes every
// registered handler, then signals interruptHandlersDone. Must be run
// as a goroutine.
func mainInterruptHandler() {
	var interruptCallbacks []func()
	invokeCallbacks := func() {
		for i := range interruptCallbacks {
			idx := len(interruptCallbacks) - 1 - i
			interruptCallbacks[idx]()
		}
		close(interruptHandlersDone)
	}

	for {
		select {
		case sig := <-interruptChannel:
			log.Infof("Received signal (%s). Shutting down...", sig)
			invokeCallbacks()
			return

		case handler := <-addHandlerChannel:
			interruptCallbacks = append(interruptCallbacks, handler)
		}
	}
}

// addInterruptHandler registers handler to run when a SIGINT/SIGTERM is
// received.
func addInterruptHandler(handler func()) {
	if interruptChannel == nil {
		interruptChannel = make(chan os.Signal, 1)
		signal.Notify(interruptChannel, signals...)
		go mainInterruptHandler()
	}
	addHandlerChannel <- handler
}
