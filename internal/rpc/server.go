// Package rpc provides the JSON-RPC 2.0 server for the chaincore daemon.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/bottlechain/chaincore/internal/chains"
	"github.com/bottlechain/chaincore/internal/driver"
	"github.com/bottlechain/chaincore/internal/pricefeed"
	"github.com/bottlechain/chaincore/internal/storage"
	"github.com/bottlechain/chaincore/internal/swap"
	"github.com/bottlechain/chaincore/pkg/logging"
)

// Server is a JSON-RPC 2.0 server.
type Server struct {
	chains *chains.Service
	feed   *pricefeed.Feed
	router *swap.Router
	log    *logging.Logger
	wsHub  *WSHub

	server    *http.Server
	listener  net.Listener
	priceSub  *pricefeed.Subscription
	statusSub *chains.StatusSubscription

	handlers map[string]Handler
	mu       sync.RWMutex
}

// Handler is a JSON-RPC method handler.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Standard error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// Options configures the RPC server.
type Options struct {
	// EnableWebsocket serves the /ws event stream.
	EnableWebsocket bool
}

// NewServer creates a new JSON-RPC server.
func NewServer(svc *chains.Service, feed *pricefeed.Feed, router *swap.Router, log *logging.Logger) *Server {
	s := &Server{
		chains:   svc,
		feed:     feed,
		router:   router,
		log:      log.Component("rpc"),
		handlers: make(map[string]Handler),
	}

	s.registerHandlers()

	return s
}

// registerHandlers registers all JSON-RPC method handlers.
func (s *Server) registerHandlers() {
	// Chain methods
	s.handlers["chain_listChains"] = s.chainListChains
	s.handlers["chain_listTokens"] = s.chainListTokens
	s.handlers["chain_status"] = s.chainStatus
	s.handlers["chain_getBalance"] = s.chainGetBalance
	s.handlers["chain_getTokenInfo"] = s.chainGetTokenInfo
	s.handlers["chain_getHistory"] = s.chainGetHistory
	s.handlers["chain_validateAddress"] = s.chainValidateAddress

	// Price methods
	s.handlers["prices_get"] = s.pricesGet
	s.handlers["prices_getAll"] = s.pricesGetAll
	s.handlers["prices_trackedSymbols"] = s.pricesTrackedSymbols

	// Swap methods
	s.handlers["swap_quote"] = s.swapQuote
	s.handlers["swap_execute"] = s.swapExecute
	s.handlers["swap_getExecution"] = s.swapGetExecution
	s.handlers["swap_listPartial"] = s.swapListPartial
}

// Start starts the RPC server.
func (s *Server) Start(addr string, opts Options) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("POST /", s.handleRPC)
	mux.HandleFunc("POST /{$}", s.handleRPC)
	mux.HandleFunc("OPTIONS /", s.handleCORS)
	mux.HandleFunc("OPTIONS /{$}", s.handleCORS)

	if opts.EnableWebsocket {
		s.wsHub = NewWSHub(s.log)
		go s.wsHub.Run()
		mux.HandleFunc("GET /ws", s.handleWS)
		mux.HandleFunc("GET /ws/", s.handleWS)

		// Relay price ticks and reachability flips to websocket
		// subscribers.
		s.priceSub = s.feed.Subscribe(func(q pricefeed.Quote) {
			s.wsHub.Broadcast(EventPriceTick, q)
		})
		s.statusSub = s.chains.SubscribeStatus(func(st chains.ChainStatus) {
			s.wsHub.Broadcast(EventChainStatus, st)
		})
	}

	s.server = &http.Server{
		Handler:      corsMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("RPC server error", "error", err)
		}
	}()

	s.log.Info("RPC server started", "addr", addr, "websocket", opts.EnableWebsocket)
	return nil
}

// Stop stops the RPC server.
func (s *Server) Stop() error {
	if s.priceSub != nil {
		s.priceSub.Cancel()
	}
	if s.statusSub != nil {
		s.statusSub.Cancel()
	}
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// WSHub returns the WebSocket hub, nil when websockets are disabled.
func (s *Server) WSHub() *WSHub {
	return s.wsHub
}

// handleRPC handles incoming JSON-RPC requests.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, nil, ParseError, "Parse error", nil)
		return
	}

	if req.JSONRPC != "2.0" {
		s.writeError(w, req.ID, InvalidRequest, "Invalid Request", nil)
		return
	}

	s.mu.RLock()
	handler, ok := s.handlers[req.Method]
	s.mu.RUnlock()

	if !ok {
		s.writeError(w, req.ID, MethodNotFound, "Method not found", req.Method)
		return
	}

	result, err := handler(r.Context(), req.Params)
	if err != nil {
		s.writeError(w, req.ID, errorCode(err), err.Error(), nil)
		return
	}

	s.writeResult(w, req.ID, result)
}

// errorCode maps domain errors to JSON-RPC error codes.
func errorCode(err error) int {
	switch {
	case errors.Is(err, swap.ErrInvalidParams),
		errors.Is(err, driver.ErrInvalidAddress),
		errors.Is(err, driver.ErrTokenNotFound),
		errors.Is(err, driver.ErrNoProvider),
		errors.Is(err, storage.ErrExecutionNotFound):
		return InvalidParams
	default:
		return InternalError
	}
}

// writeResult writes a successful response.
func (s *Server) writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, id interface{}, code int, message string, data interface{}) {
	resp := Response{
		JSONRPC: "2.0",
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
		ID: id,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleCORS handles CORS preflight requests.
func (s *Server) handleCORS(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// corsMiddleware adds CORS headers to all responses.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
