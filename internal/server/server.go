// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package server exposes the tool registry over MCP: JSON-RPC 2.0 carried
// on HTTP POST, with a discovery document on GET and a health probe.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hamcp/internal/config"
	"hamcp/internal/tools"

	apperrors "hamcp/internal/errors"
)

const (
	protocolVersion = "2024-11-05"
	serverName      = "hamcp"
	serverVersion   = "1.0.0"

	maxRequestBytes = 1 << 20
	maxBatchSize    = 20
)

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// Server serves the MCP endpoint for one registry.
type Server struct {
	cfg      *config.Config
	registry *tools.Registry
	log      zerolog.Logger
	http     *http.Server
}

// New builds the server around a ready registry.
func New(cfg *config.Config, registry *tools.Registry, log zerolog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		registry: registry,
		log:      log.With().Str("component", "server").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/mcp", s.handleMCP)
	mux.HandleFunc("/health", s.handleHealth)

	s.http = &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.http.Addr).Msg("MCP server listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serverName,
		"version": serverVersion,
	})
}

// authorized compares the ?code= query parameter against the configured API
// key. An empty configured key disables authentication.
func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.APIKey == "" {
		return true
	}
	supplied := r.URL.Query().Get("code")
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(s.cfg.APIKey)) == 1
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet, http.MethodPost:
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.authorized(r) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("rejected unauthenticated request")
		s.writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}

	if r.Method == http.MethodGet {
		s.handleDiscovery(w)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		s.writeJSON(w, http.StatusOK, errorResponse(nil, codeParseError, "request too large or unreadable"))
		return
	}

	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		s.handleBatch(r.Context(), w, []byte(trimmed))
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeJSON(w, http.StatusOK, errorResponse(nil, codeParseError, "parse error"))
		return
	}
	s.writeJSON(w, http.StatusOK, s.dispatch(r.Context(), &req))
}

// handleDiscovery answers GET with the service description clients probe
// before speaking JSON-RPC.
func (s *Server) handleDiscovery(w http.ResponseWriter) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"name":            serverName,
		"version":         serverVersion,
		"protocolVersion": protocolVersion,
		"transport":       "http",
		"read_only":       s.cfg.ReadOnly,
		"allowed_dirs":    s.cfg.AllowedDirs,
		"tools":           s.registry.Names(),
	})
}

func (s *Server) handleBatch(ctx context.Context, w http.ResponseWriter, body []byte) {
	var reqs []rpcRequest
	if err := json.Unmarshal(body, &reqs); err != nil {
		s.writeJSON(w, http.StatusOK, errorResponse(nil, codeParseError, "parse error"))
		return
	}
	if len(reqs) == 0 || len(reqs) > maxBatchSize {
		s.writeJSON(w, http.StatusOK, errorResponse(nil, codeInvalidRequest,
			fmt.Sprintf("batch must contain between 1 and %d requests", maxBatchSize)))
		return
	}

	responses := make([]*rpcResponse, 0, len(reqs))
	for i := range reqs {
		responses = append(responses, s.dispatch(ctx, &reqs[i]))
	}
	s.writeJSON(w, http.StatusOK, responses)
}

func (s *Server) dispatch(ctx context.Context, req *rpcRequest) *rpcResponse {
	if req.Method == "" {
		return errorResponse(req.ID, codeInvalidRequest, "missing method")
	}
	s.log.Debug().Str("method", req.Method).Msg("dispatching request")

	switch req.Method {
	case "initialize":
		return resultResponse(req.ID, map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities": map[string]any{
				"tools": map[string]any{},
			},
			"serverInfo": map[string]any{
				"name":    serverName,
				"version": serverVersion,
			},
		})
	case "notifications/initialized", "initialized":
		return resultResponse(req.ID, map[string]any{})
	case "tools/list":
		return resultResponse(req.ID, map[string]any{
			"tools": s.registry.Definitions(),
		})
	case "tools/call":
		return s.callTool(ctx, req)
	case "ping":
		return resultResponse(req.ID, map[string]any{})
	default:
		return errorResponse(req.ID, codeMethodNotFound,
			fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (s *Server) callTool(ctx context.Context, req *rpcRequest) *rpcResponse {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if len(req.Params) == 0 {
		return errorResponse(req.ID, codeInvalidParams, "missing params")
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return errorResponse(req.ID, codeInvalidParams, "params must carry a tool name")
	}
	if params.Arguments == nil {
		params.Arguments = map[string]any{}
	}

	text, err := s.registry.Execute(ctx, params.Name, params.Arguments)
	if err != nil {
		return toolErrorResponse(req.ID, err)
	}

	return resultResponse(req.ID, map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": text},
		},
	})
}

// toolErrorResponse maps the service error taxonomy onto JSON-RPC codes.
// Error messages are already scrubbed at their origin, so they pass through.
func toolErrorResponse(id json.RawMessage, err error) *rpcResponse {
	rpcCode := codeInternalError
	if apperrors.HasCode(err, apperrors.CodeInvalidArguments) {
		rpcCode = codeInvalidParams
	}
	resp := errorResponse(id, rpcCode, err.Error())
	resp.Error.Data = map[string]any{"code": string(apperrors.CodeOf(err))}
	return resp
}

func resultResponse(id json.RawMessage, result any) *rpcResponse {
	return &rpcResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id json.RawMessage, code int, message string) *rpcResponse {
	return &rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already out at this point.
		s.log.Error().Err(err).Msg("failed to encode response")
	}
}
