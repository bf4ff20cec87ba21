// Package chaintest serves canned JSON-RPC answers for validator tests.
package chaintest

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/segmentio/encoding/json"
)

// Handler answers one method. Returning (nil, nil) yields a JSON null result.
type Handler func(params []json.RawMessage) (interface{}, *RPCError)

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type request struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Server is an httptest JSON-RPC 2.0 server that counts calls per method.
type Server struct {
	*httptest.Server
	mu    sync.Mutex
	calls map[string]int
}

func NewRPCServer(t *testing.T, handlers map[string]Handler) *Server {
	t.Helper()
	s := &Server{calls: map[string]int{}}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.calls[req.Method]++
		s.mu.Unlock()

		resp := response{JSONRPC: "2.0", ID: req.ID}
		h, ok := handlers[req.Method]
		if !ok {
			resp.Error = &RPCError{Code: -32601, Message: "method not found"}
		} else {
			resp.Result, resp.Error = h(req.Params)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *Server) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// Raw wraps pre-encoded JSON so it is emitted verbatim as a result.
func Raw(b []byte) json.RawMessage { return json.RawMessage(b) }
