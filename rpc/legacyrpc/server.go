// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package legacyrpc implements the simulator's optional JSON-RPC 2.0
// surface: an unauthenticated HTTP POST server exposing a subset of a
// production Bitcoin node's RPC methods against an in-process
// *ledger.Ledger, the way the teacher's own rpc/legacyrpc package exposes
// btcwallet's methods over HTTP and websockets.
package legacyrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcjson"

	"github.com/chainwayxyz/bitcoin-mock-rpc/ledger"
	"github.com/chainwayxyz/bitcoin-mock-rpc/netparams"
)

// maxRequestSize bounds the number of bytes read from a client's request
// body.
const maxRequestSize = 1024 * 1024 * 4

// Server serves the legacy JSON-RPC surface for a single ledger.
type Server struct {
	httpServer http.Server
	listener   net.Listener
	ledger     *ledger.Ledger
	params     netparams.Params

	wg      sync.WaitGroup
	quit    chan struct{}
	quitMtx sync.Mutex
}

// NewServer wraps l behind an HTTP POST JSON-RPC server bound to
// listener. The caller owns listener's lifetime up until Stop is called.
func NewServer(l *ledger.Ledger, params netparams.Params, listener net.Listener) *Server {
	mux := http.NewServeMux()
	s := &Server{
		httpServer: http.Server{
			Handler:     mux,
			ReadTimeout: 10 * time.Second,
		},
		listener: listener,
		ledger:   l,
		params:   params,
		quit:     make(chan struct{}),
	}

	mux.Handle("/", throttled(maxPostClients, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		s.postClientRPC(w, r)
	}))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Infof("Listening on %s", listener.Addr())
		err := s.httpServer.Serve(listener)
		log.Tracef("Finished serving RPC: %v", err)
	}()

	return s
}

// maxPostClients bounds the number of concurrent in-flight HTTP requests
// before the server starts responding 429.
const maxPostClients = 64

// Addr reports the address the server is bound to.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Stop gracefully shuts the server down, closing its listener and
// waiting for in-flight requests to finish.
func (s *Server) Stop() {
	s.quitMtx.Lock()
	defer s.quitMtx.Unlock()
	select {
	case <-s.quit:
		return
	default:
	}
	close(s.quit)
	// Shutdown closes the listener and waits for active requests.
	_ = s.httpServer.Shutdown(context.Background())
	s.wg.Wait()
}

// throttled wraps an http.HandlerFunc with throttling of concurrent
// active clients, responding with an HTTP 429 once threshold is crossed.
func throttled(threshold int64, f http.HandlerFunc) http.Handler {
	var active int64
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := atomic.AddInt64(&active, 1)
		defer atomic.AddInt64(&active, -1)
		if current-1 >= threshold {
			http.Error(w, "429 Too Many Requests", http.StatusTooManyRequests)
			return
		}
		f(w, r)
	})
}

// postClientRPC reads a single JSON-RPC request, dispatches it by
// lowercased method name, and writes back a single JSON-RPC response.
func (s *Server) postClientRPC(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxRequestSize)
	raw, err := io.ReadAll(body)
	if err != nil {
		http.Error(w, "413 Request Too Large.", http.StatusRequestEntityTooLarge)
		return
	}

	var req btcjson.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		writeResponse(w, nil, nil, btcjson.NewRPCError(btcjson.ErrRPCInvalidRequest.Code, err.Error()))
		return
	}

	handler, ok := rpcHandlers[strings.ToLower(req.Method)]
	if !ok {
		writeResponse(w, req.ID, nil, btcjson.NewRPCError(
			btcjson.ErrRPCMethodNotFound, fmt.Sprintf("method not found: %s", req.Method)))
		return
	}

	result, err := handler(s, req.Params)
	writeResponse(w, req.ID, result, toRPCError(err))
}

func writeResponse(w http.ResponseWriter, id interface{}, result interface{}, jsonErr *btcjson.RPCError) {
	resp, err := btcjson.MarshalResponse(id, result, jsonErr)
	if err != nil {
		log.Errorf("Unable to marshal response: %v", err)
		http.Error(w, "500 Internal Server Error", http.StatusInternalServerError)
		return
	}
	if _, err := w.Write(resp); err != nil {
		log.Warnf("Unable to respond to client: %v", err)
	}
}

// Registry tracks every Server hosting a ledger within this process,
// keyed by bound address; it is the single piece of process-wide mutable
// state. The CLI registers its one server here.
type registry struct {
	mu      sync.Mutex
	servers map[string]*Server
}

var Registry = &registry{servers: make(map[string]*Server)}

// Add registers s under its bound address.
func (reg *registry) Add(s *Server) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.servers[s.Addr()] = s
}

// Remove unregisters and stops the server bound to addr, if any.
func (reg *registry) Remove(addr string) {
	reg.mu.Lock()
	s, ok := reg.servers[addr]
	delete(reg.servers, addr)
	reg.mu.Unlock()
	if ok {
		s.Stop()
	}
}

// Get returns the server bound to addr, if one is registered.
func (reg *registry) Get(addr string) (*Server, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	s, ok := reg.servers[addr]
	return s, ok
}
