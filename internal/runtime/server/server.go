// Copyright © 2025 Slate contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/server/server.go
// Summary: HTTP/WebSocket frontdoor, REST board API and lifecycle.
// Usage: slate-server builds one Server, calls Start, and Stop on signal.
// Notes: The websocket endpoint shares "/" with the static file handler;
// upgrade requests are told apart by their headers.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"slate/board"
	"slate/config"
	"slate/internal/identity"
	"slate/internal/store"
)

// Server owns the runtime: the frontdoor, the room manager, the sequencer
// and the compactor. One Server per process.
type Server struct {
	cfg       config.Config
	store     store.Store
	verifier  *identity.Verifier
	manager   *Manager
	sequencer *Sequencer
	compactor *Compactor

	upgrader websocket.Upgrader
	handler  http.Handler
	httpSrv  *http.Server

	mu sync.Mutex
	ln net.Listener
}

// NewServer wires the runtime together. The store is owned by the caller
// and closed by it after Stop returns.
func NewServer(cfg config.Config, st store.Store) *Server {
	s := &Server{
		cfg:       cfg,
		store:     st,
		verifier:  identity.NewVerifier(cfg.AuthSecretKey),
		manager:   NewManager(cfg.CursorBatchInterval),
		sequencer: NewSequencer(st, cfg.CompactionThreshold),
		compactor: NewCompactor(st),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from arbitrary dev origins; access
			// control happens at the board level, not the socket level.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/boards", s.handleBoards)
	mux.HandleFunc("/api/boards/", s.handleBoardByID)
	mux.HandleFunc("/", s.handleRoot)

	s.handler = cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(mux)
	return s
}

// SetObservers wires metric hooks into the write and compaction paths.
func (s *Server) SetObservers(seq SequenceObserver, comp CompactionObserver) {
	s.sequencer.SetObserver(seq)
	s.compactor.SetObserver(comp)
}

// Handler exposes the routed frontdoor, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the listener and serves until Stop. Blocks.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.httpSrv = &http.Server{Handler: s.handler}
	s.mu.Unlock()

	s.manager.Start()
	log.Printf("server: listening on %s", addr)
	if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains the frontdoor, stops the cursor loop and waits for in-flight
// compactions. Live websockets are closed by the HTTP shutdown.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	s.manager.Stop()
	s.compactor.Wait()
	return err
}

// broadcast fans a frame out to every connection in the board's room.
func (s *Server) broadcast(boardID string, frame []byte) {
	for _, c := range s.manager.Connections(boardID) {
		c.Deliver(frame)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		ws, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			debugLog.Printf("server: upgrade: %v", err)
			return
		}
		conn := newConnection(ws, s)
		go conn.serve(context.Background())
		return
	}
	if s.cfg.StaticDir != "" {
		http.FileServer(http.Dir(s.cfg.StaticDir)).ServeHTTP(w, r)
		return
	}
	http.NotFound(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UnixMilli(),
	})
}

// bearerUser resolves the Authorization header to a verified user id.
func (s *Server) bearerUser(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return "", false
	}
	userID, err := s.verifier.Verify(token)
	if err != nil {
		return "", false
	}
	return userID, true
}

func (s *Server) handleBoards(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.bearerUser(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		boards, err := s.store.UserBoards(r.Context(), userID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "board listing failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"boards": boards})
	case http.MethodPost:
		var req struct {
			Name      string `json:"name"`
			IsPrivate bool   `json:"isPrivate"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		created, err := s.store.CreateBoard(r.Context(), board.Board{
			ID:        uuid.NewString(),
			Name:      req.Name,
			OwnerID:   userID,
			IsPrivate: req.IsPrivate,
		})
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "board not created")
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleBoardByID(w http.ResponseWriter, r *http.Request) {
	boardID := strings.TrimPrefix(r.URL.Path, "/api/boards/")
	if boardID == "" || strings.Contains(boardID, "/") {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		b, err := s.store.GetBoard(r.Context(), boardID)
		if errors.Is(err, store.ErrBoardNotFound) {
			writeJSONError(w, http.StatusNotFound, "board not found")
			return
		}
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "board lookup failed")
			return
		}
		if !b.IsPrivate {
			s.writeBoardDetail(w, r, b)
			return
		}
		userID, ok := s.bearerUser(r)
		if !ok || userID != b.OwnerID {
			writeJSONError(w, http.StatusNotFound, "board not found")
			return
		}
		s.writeBoardDetail(w, r, b)
	case http.MethodDelete:
		userID, ok := s.bearerUser(r)
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		deleted, err := s.store.DeleteBoard(r.Context(), boardID, userID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "board deletion failed")
			return
		}
		if !deleted {
			// Not owned and nonexistent are indistinguishable on purpose.
			writeJSONError(w, http.StatusNotFound, "board not found")
			return
		}
		s.sequencer.Forget(boardID)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) writeBoardDetail(w http.ResponseWriter, r *http.Request, b board.Board) {
	lastSeq, err := s.store.MaxSeq(r.Context(), b.ID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "board lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"board":   b,
		"lastSeq": lastSeq,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		debugLog.Printf("server: write response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
