package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soliscan/soliscan/internal/admission"
	"github.com/soliscan/soliscan/internal/auditor"
	"github.com/soliscan/soliscan/internal/ingest"
	"github.com/soliscan/soliscan/internal/observability"
)

// Multipart bodies spill to disk beyond this in-memory threshold.
const maxMultipartMemory = 8 << 20

// Request body limits mirrored from the upload contract.
const (
	maxChatMessageChars   = 2000
	minContractChars      = 10
	maxVulnerabilityChars = 100
)

// Config holds API server configuration.
type Config struct {
	Addr string // e.g. ":8080"

	// Per-client request budget. RequestsPerHour <= 0 disables limiting.
	RequestsPerHour int
	Burst           int

	// MaxUploadBytes caps the whole upload request body; each uploaded
	// file is additionally admitted against the same bound.
	MaxUploadBytes int64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:            ":8080",
		RequestsPerHour: 100,
		Burst:           10,
		MaxUploadBytes:  10 * 1024 * 1024,
	}
}

// Server is the contract analysis HTTP API.
type Server struct {
	config  *Config
	ingest  *ingest.Service
	auditor *auditor.Auditor
	checks  *admission.Pipeline
	health  *HealthServer
	limiter *ClientLimiter
	handler http.Handler
	server  *http.Server
}

// NewServer wires the API over the ingestion service and the audit
// assistant. aud may be nil when no completion provider is configured;
// the audit endpoints then answer 503. A nil checks pipeline falls back
// to the default admission checks, and a nil health server to an empty
// one.
func NewServer(config *Config, svc *ingest.Service, aud *auditor.Auditor, checks *admission.Pipeline, health *HealthServer) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if checks == nil {
		checks = admission.DefaultPipeline(config.MaxUploadBytes)
	}
	if health == nil {
		health = NewHealthServer(nil)
	}

	s := &Server{
		config:  config,
		ingest:  svc,
		auditor: aud,
		checks:  checks,
		health:  health,
		limiter: NewClientLimiter(config.RequestsPerHour, config.Burst),
	}

	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/analyze", s.handleAnalyze)
	mux.HandleFunc("/improvements", s.handleImprovements)
	mux.HandleFunc("/explain-vulnerability", s.handleExplainVulnerability)
	mux.HandleFunc("/clear-conversation", s.handleClearConversation)

	// Operational routes
	mux.Handle("/metrics", promhttp.Handler())
	healthHandler := health.Handler()
	for _, p := range []string{"/health", "/ready", "/live", "/healthz", "/readyz", "/livez"} {
		mux.Handle(p, healthHandler)
	}

	// Everything else is a JSON 404
	mux.HandleFunc("/", s.handleNotFound)

	// Wrap with CORS, logging and rate-limit middleware
	s.handler = corsMiddleware(loggingMiddleware(s.rateLimitMiddleware(mux)))

	s.server = &http.Server{
		Addr:        config.Addr,
		Handler:     s.handler,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout must cover slow provider completions on the
		// audit endpoints.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the composed handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Health returns the health server the API mounts.
func (s *Server) Health() *HealthServer {
	return s.health
}

// Start begins serving the API.
func (s *Server) Start() error {
	slog.Info("Starting API server", "addr", s.config.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	slog.Info("Stopping API server")
	return s.server.Shutdown(ctx)
}

// ==================== Wire types ====================

type errorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type uploadResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	FileName    string `json:"file_name,omitempty"`
	FileHash    string `json:"file_hash,omitempty"`
	ChunksAdded int    `json:"chunks_added,omitempty"`
	Action      string `json:"action,omitempty"`
	Error       string `json:"error,omitempty"`
}

type uploadBatchResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Files   []uploadResponse `json:"files"`
}

type searchHit struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
	Score    float32           `json:"relevance_score"`
}

type searchResponse struct {
	Success   bool        `json:"success"`
	Query     string      `json:"query"`
	Results   []searchHit `json:"results"`
	Count     int         `json:"count"`
	Timestamp time.Time   `json:"timestamp"`
}

type statsResponse struct {
	Database     map[string]any              `json:"database"`
	Conversation auditor.ConversationSummary `json:"conversation"`
	Timestamp    time.Time                   `json:"timestamp"`
}

type chatRequest struct {
	Message string `json:"message"`
	// Defaults to true when absent.
	IncludeContext *bool `json:"include_context"`
}

type chatResponse struct {
	Success     bool      `json:"success"`
	Response    string    `json:"response,omitempty"`
	ContextUsed bool      `json:"context_used"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type contractAnalysisRequest struct {
	ContractContent string `json:"contract_content"`
}

type analysisResponse struct {
	Success      bool      `json:"success"`
	Analysis     string    `json:"analysis"`
	ContractHash string    `json:"contract_hash"`
	Timestamp    time.Time `json:"timestamp"`
}

type improvementsResponse struct {
	Success      bool      `json:"success"`
	Improvements string    `json:"improvements"`
	Timestamp    time.Time `json:"timestamp"`
}

type vulnerabilityExplanationRequest struct {
	VulnerabilityType string `json:"vulnerability_type"`
}

type explanationResponse struct {
	Success           bool      `json:"success"`
	Explanation       string    `json:"explanation"`
	VulnerabilityType string    `json:"vulnerability_type"`
	Timestamp         time.Time `json:"timestamp"`
}

type clearConversationResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ==================== Handlers ====================

// handleUpload handles POST /upload. The multipart form may carry one
// "file" part or several; a single file answers with the flat upload
// response, a batch with per-file entries.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("File too large. Maximum size: %.1fMB", float64(s.config.MaxUploadBytes)/(1024*1024)))
			return
		}
		respondError(w, http.StatusBadRequest, "Invalid multipart request")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "No file provided")
		return
	}

	if len(files) == 1 {
		result, status := s.processUpload(r.Context(), files[0])
		respondJSON(w, status, result)
		return
	}

	results := make([]uploadResponse, 0, len(files))
	allOK := true
	for _, fh := range files {
		result, _ := s.processUpload(r.Context(), fh)
		if !result.Success {
			allOK = false
		}
		results = append(results, result)
	}
	respondJSON(w, http.StatusOK, uploadBatchResponse{
		Success: allOK,
		Message: fmt.Sprintf("Processed %d files", len(results)),
		Files:   results,
	})
}

// processUpload admits and ingests one uploaded file, returning the
// per-file response and the status code a single-file request should
// answer with.
func (s *Server) processUpload(ctx context.Context, fh *multipart.FileHeader) (uploadResponse, int) {
	f, err := fh.Open()
	if err != nil {
		return uploadResponse{
			FileName: fh.Filename,
			Message:  "Upload failed",
			Error:    fmt.Sprintf("Failed to read upload: %v", err),
		}, http.StatusInternalServerError
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return uploadResponse{
			FileName: fh.Filename,
			Message:  "Upload failed",
			Error:    fmt.Sprintf("Failed to read upload: %v", err),
		}, http.StatusInternalServerError
	}

	observability.Audit().LogUpload(ctx, fh.Filename, len(content))

	decision := s.checks.Run(&admission.Submission{Path: fh.Filename, Content: content})
	if !decision.Accepted {
		return uploadResponse{
			FileName: fh.Filename,
			Message:  "File rejected",
			Error:    decision.Reason(),
		}, rejectionStatus(decision)
	}

	result, err := s.ingest.Ingest(ctx, ingest.Document{Path: fh.Filename, Text: string(content)})
	if err != nil {
		return uploadResponse{
			FileName: fh.Filename,
			Message:  "Upload failed",
			Error:    fmt.Sprintf("Failed to ingest contract: %v", err),
		}, http.StatusInternalServerError
	}

	resp := uploadResponse{
		Success:  true,
		FileName: fh.Filename,
		FileHash: result.Fingerprint,
		Action:   result.Status,
	}
	if result.Status == ingest.StatusDuplicate {
		resp.Message = "Contract already exists in database"
	} else {
		resp.Message = "Contract successfully ingested"
		resp.ChunksAdded = result.ChunkCount
	}
	return resp, http.StatusOK
}

// rejectionStatus maps an admission rejection to its HTTP status. Size
// violations answer 413; everything else is a plain bad request.
func rejectionStatus(d *admission.Decision) int {
	for _, c := range d.Checks {
		if c.Status != admission.CheckFailed {
			continue
		}
		if c.Name == "file_size" {
			return http.StatusRequestEntityTooLarge
		}
		break
	}
	return http.StatusBadRequest
}

// handleSearch handles GET /search?query=&k=
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query().Get("query")
	if strings.TrimSpace(query) == "" {
		respondError(w, http.StatusBadRequest, "Query cannot be empty")
		return
	}

	topK := 0 // service default
	if kStr := r.URL.Query().Get("k"); kStr != "" {
		if k, err := strconv.Atoi(kStr); err == nil && k > 0 {
			topK = k
		}
	}

	results, err := s.ingest.Search(r.Context(), query, topK)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("Search failed: %v", err))
		return
	}

	hits := make([]searchHit, len(results))
	for i, res := range results {
		hits[i] = searchHit{
			ID:       res.ID,
			Content:  res.Content,
			Metadata: res.Metadata,
			Score:    res.Score,
		}
	}

	respondJSON(w, http.StatusOK, searchResponse{
		Success:   true,
		Query:     query,
		Results:   hits,
		Count:     len(hits),
		Timestamp: time.Now().UTC(),
	})
}

// handleStats handles GET /stats. An unreachable index reports an error
// inside the database section rather than failing the whole endpoint, so
// the conversation state stays visible during index outages.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	database := make(map[string]any)
	if stats, err := s.ingest.Stats(r.Context()); err != nil {
		database["error"] = fmt.Sprintf("Failed to get stats: %v", err)
	} else {
		database["total_vectors"] = stats.Vectors
		database["dimension"] = stats.Dimension
	}

	var conversation auditor.ConversationSummary
	if s.auditor != nil {
		conversation = s.auditor.Summary()
	}

	respondJSON(w, http.StatusOK, statsResponse{
		Database:     database,
		Conversation: conversation,
		Timestamp:    time.Now().UTC(),
	})
}

// handleChat handles POST /chat. Provider failures answer 200 with
// success=false so the conversational client can render them inline.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.auditor == nil {
		respondError(w, http.StatusServiceUnavailable, "Audit assistant is not configured")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if n := utf8.RuneCountInString(req.Message); n < 1 || n > maxChatMessageChars {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("message must be between 1 and %d characters", maxChatMessageChars))
		return
	}

	includeContext := true
	if req.IncludeContext != nil {
		includeContext = *req.IncludeContext
	}

	result, err := s.auditor.Chat(r.Context(), req.Message, includeContext)
	if err != nil {
		respondJSON(w, http.StatusOK, chatResponse{
			Success:   false,
			Error:     fmt.Sprintf("Chat failed: %v", err),
			Timestamp: time.Now().UTC(),
		})
		return
	}

	respondJSON(w, http.StatusOK, chatResponse{
		Success:     true,
		Response:    result.Response,
		ContextUsed: result.ContextUsed,
		Timestamp:   result.Timestamp,
	})
}

// handleAnalyze handles POST /analyze
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.auditor == nil {
		respondError(w, http.StatusServiceUnavailable, "Audit assistant is not configured")
		return
	}

	var req contractAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if utf8.RuneCountInString(req.ContractContent) < minContractChars {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("contract_content must be at least %d characters", minContractChars))
		return
	}

	result, err := s.auditor.AnalyzeContract(r.Context(), req.ContractContent)
	if err != nil {
		respondError(w, http.StatusBadGateway, fmt.Sprintf("Analysis failed: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, analysisResponse{
		Success:      true,
		Analysis:     result.Analysis,
		ContractHash: result.ContractHash,
		Timestamp:    result.Timestamp,
	})
}

// handleImprovements handles POST /improvements
func (s *Server) handleImprovements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.auditor == nil {
		respondError(w, http.StatusServiceUnavailable, "Audit assistant is not configured")
		return
	}

	var req contractAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if utf8.RuneCountInString(req.ContractContent) < minContractChars {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("contract_content must be at least %d characters", minContractChars))
		return
	}

	result, err := s.auditor.SuggestImprovements(r.Context(), req.ContractContent)
	if err != nil {
		respondError(w, http.StatusBadGateway, fmt.Sprintf("Improvement analysis failed: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, improvementsResponse{
		Success:      true,
		Improvements: result.Improvements,
		Timestamp:    result.Timestamp,
	})
}

// handleExplainVulnerability handles POST /explain-vulnerability
func (s *Server) handleExplainVulnerability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.auditor == nil {
		respondError(w, http.StatusServiceUnavailable, "Audit assistant is not configured")
		return
	}

	var req vulnerabilityExplanationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if n := utf8.RuneCountInString(req.VulnerabilityType); n < 1 || n > maxVulnerabilityChars {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("vulnerability_type must be between 1 and %d characters", maxVulnerabilityChars))
		return
	}

	result, err := s.auditor.ExplainVulnerability(r.Context(), req.VulnerabilityType)
	if err != nil {
		respondError(w, http.StatusBadGateway, fmt.Sprintf("Explanation failed: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, explanationResponse{
		Success:           true,
		Explanation:       result.Explanation,
		VulnerabilityType: result.VulnerabilityType,
		Timestamp:         result.Timestamp,
	})
}

// handleClearConversation handles POST /clear-conversation
func (s *Server) handleClearConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.auditor == nil {
		respondError(w, http.StatusServiceUnavailable, "Audit assistant is not configured")
		return
	}

	s.auditor.ClearConversation()
	respondJSON(w, http.StatusOK, clearConversationResponse{
		Success:   true,
		Message:   "Conversation history cleared",
		Timestamp: time.Now().UTC(),
	})
}

// handleNotFound answers every unrouted path with a JSON 404.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusNotFound, errorResponse{
		Error:     "Endpoint not found",
		Message:   "The requested endpoint does not exist",
		Timestamp: time.Now().UTC(),
	})
}

// ==================== Helpers and middleware ====================

// respondJSON writes a JSON response with the given status.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// respondError writes a JSON error response.
func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{
		Error:     msg,
		Timestamp: time.Now().UTC(),
	})
}

// rateLimitMiddleware enforces the per-client budget. Probe and metrics
// paths are exempt so orchestrators never trip the limiter.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if operationalPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ok, retryAfter := s.limiter.Allow(clientKey(r))
		if !ok {
			if retryAfter > 0 {
				secs := int((retryAfter + time.Second - 1) / time.Second)
				w.Header().Set("Retry-After", strconv.Itoa(secs))
			}
			respondError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func operationalPath(path string) bool {
	switch path {
	case "/health", "/ready", "/live", "/healthz", "/readyz", "/livez", "/metrics":
		return true
	}
	return false
}

// corsMiddleware adds CORS headers for browser clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
