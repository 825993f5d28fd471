// Package api is the HTTP surface of the gateway: chat, patient history,
// telemetry read-out, and health. No business logic lives here - only HTTP
// handling and JSON serialization.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fhirchat/internal/agent"
	"fhirchat/pkg/interfaces"
	"fhirchat/pkg/types"
)

// HistoryGenerator is the slice of the history service consumed here
type HistoryGenerator interface {
	Generate(ctx context.Context, patientID uuid.UUID) (*types.PatientClinicalHistory, error)
}

// Registry interface avoids tight coupling to the websocket registry
type Registry interface {
	Stats() map[string]int
}

// Server routes HTTP requests to the chat, history, and trace collaborators
type Server struct {
	chat     interfaces.ChatProcessor
	history  HistoryGenerator
	traces   interfaces.SpanQuerier
	registry Registry
	router   *http.ServeMux
	logger   *zap.Logger
}

// NewServer creates the API server with dependency injection
func NewServer(chat interfaces.ChatProcessor, history HistoryGenerator, traces interfaces.SpanQuerier, registry Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		chat:     chat,
		history:  history,
		traces:   traces,
		registry: registry,
		router:   http.NewServeMux(),
		logger:   logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/chat", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleChat))))
	s.router.Handle("/patient", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handlePatient))))
	s.router.Handle("/telemetry/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleTelemetry))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

// ServeHTTP implements http.Handler for integration with the standard server
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Request/Response types for JSON serialization
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type ChatResponse struct {
	SessionID string `json:"session_id"`
	Output    string `json:"output"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Connections map[string]int `json:"connections"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// handleChat runs one chat turn: POST /chat {session_id, message}.
// Agent faults never surface here - they arrive folded into the output, so
// a well-formed request is always a 200.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.SessionID == "" || !types.IsValidSessionID(req.SessionID) {
		s.sendError(w, "Valid session_id is required", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		s.sendError(w, "Message is required", http.StatusBadRequest)
		return
	}

	output := s.chat.Process(r.Context(), req.SessionID, req.Message)

	json.NewEncoder(w).Encode(ChatResponse{
		SessionID: req.SessionID,
		Output:    output,
	})
}

// handlePatient generates a structured clinical history:
// POST /patient {patient_id} -> history | 400 | 404 | 500
func (s *Server) handlePatient(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req types.PatientHistoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		s.sendError(w, "patient_id must be a valid UUID", http.StatusBadRequest)
		return
	}

	history, err := s.history.Generate(r.Context(), patientID)
	if err != nil {
		if errors.Is(err, agent.ErrHistoryNotFound) {
			s.sendError(w, "No clinical history found for patient", http.StatusNotFound)
			return
		}
		s.logger.Error("patient_history_failed",
			zap.String("patient_id", patientID.String()), zap.Error(err))
		s.sendError(w, "Failed to generate clinical history", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(history)
}

// handleTelemetry exposes recorded spans: GET /telemetry/{session_id}.
// FUNCTIONAL DISCOVERY: An unreachable backend or unknown session is a
// normal 200 with zero spans; 500 is reserved for the read itself failing
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := strings.TrimPrefix(r.URL.Path, "/telemetry/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		s.sendError(w, "Session ID required", http.StatusBadRequest)
		return
	}

	spans, err := s.traces.QuerySpans(r.Context(), sessionID)
	if err != nil {
		s.logger.Error("telemetry_query_failed",
			zap.String("session_id", sessionID), zap.Error(err))
		s.sendError(w, "Failed to query traces", http.StatusInternalServerError)
		return
	}
	if spans == nil {
		spans = []types.SpanData{}
	}

	json.NewEncoder(w).Encode(types.TelemetryResponse{
		SessionID:  sessionID,
		Spans:      spans,
		TraceCount: types.CountTraces(spans),
	})
}

// healthCheck reports gateway status and connection statistics
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	var stats map[string]int
	if s.registry != nil {
		stats = s.registry.Stats()
	}

	json.NewEncoder(w).Encode(HealthResponse{
		Status:      "healthy",
		Timestamp:   time.Now(),
		Connections: stats,
	})
}

// sendError writes a consistent error response format
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// corsMiddleware enables web client access; all origins are allowed in
// development and would be restricted in production
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// jsonMiddleware ensures proper content-type headers on all responses
func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		next.ServeHTTP(w, r)
	})
}
