// Package api serves the coordinator's status and command surface over
// HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/joripage/stock-oms/pkg/logging"
	"github.com/joripage/stock-oms/pkg/metrics"
	"github.com/joripage/stock-oms/pkg/oms"
	"github.com/joripage/stock-oms/pkg/oms/model"
)

const requestIDHeader = "X-Request-ID"

// Server handles REST calls against one coordinator.
type Server struct {
	cfg    Config
	oms    oms.IOMS
	hub    *Hub
	router *mux.Router
	logger *zap.Logger
}

// NewServer builds the router. With a nil hub the /ws stream is not served.
func NewServer(cfg Config, coordinator oms.IOMS, hub *Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.L()
	}
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	s := &Server{
		cfg:    cfg,
		oms:    coordinator,
		hub:    hub,
		router: mux.NewRouter(),
		logger: logger.Named("api"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestID)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/open-orders", s.handleGetOpenOrders).Methods("GET")
	api.HandleFunc("/correlations", s.handleGetCorrelations).Methods("GET")
	api.HandleFunc("/pending", s.handleGetPending).Methods("GET")
	api.HandleFunc("/status", s.handleGetStatus).Methods("GET")

	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders/{ref}", s.handleCancelOrder).Methods("DELETE")

	if s.hub != nil {
		s.router.HandleFunc("/ws", s.handleWebSocket)
	}
	s.router.Handle("/metrics", metrics.Handler()).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", requestIDHeader},
	})
	return c.Handler(s.router)
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server starting", zap.String("addr", s.cfg.Listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := r.Header.Get(requestIDHeader); id != "" {
			ctx = logging.WithRequestID(ctx, id)
		} else {
			ctx = logging.NewRequestID(ctx)
		}
		w.Header().Set(requestIDHeader, logging.RequestID(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetOpenOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.oms.OpenOrders(r.Context())
	if err != nil {
		s.respondQueryError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (s *Server) handleGetCorrelations(w http.ResponseWriter, r *http.Request) {
	correlations, err := s.oms.Correlations(r.Context())
	if err != nil {
		s.respondQueryError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, correlations)
}

func (s *Server) handleGetPending(w http.ResponseWriter, r *http.Request) {
	pending, err := s.oms.Pending(r.Context())
	if err != nil {
		s.respondQueryError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, pending)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.oms.Status(r.Context())
	if err != nil {
		s.respondQueryError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// handleSubmitOrder enqueues the request. With ?wait=true it also waits for
// the submission and answers 201 with the placement.
func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req model.OrderRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body", err.Error())
		return
	}

	ticket, err := s.oms.Enqueue(r.Context(), req)
	if err != nil {
		respondError(w, statusOf(err), "order rejected", err.Error())
		return
	}

	resp := EnqueueResponse{Ref: ticket.Ref, Checks: ticket.Checks}
	if r.URL.Query().Get("wait") != "true" {
		respondJSON(w, http.StatusAccepted, resp)
		return
	}

	placement, err := s.oms.Await(r.Context(), ticket)
	if err != nil {
		respondError(w, statusOf(err), "order not submitted", err.Error())
		return
	}
	resp.Placement = &placement
	respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	ref := mux.Vars(r)["ref"]
	if err := s.oms.Cancel(r.Context(), ref); err != nil {
		respondError(w, statusOf(err), "cancel failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{Status: "ok", Active: s.oms.IsActive()})
}

func (s *Server) respondQueryError(w http.ResponseWriter, r *http.Request, err error) {
	logging.FromContext(r.Context(), s.logger).Warn("query failed", zap.String("path", r.URL.Path), zap.Error(err))
	respondError(w, statusOf(err), "query failed", err.Error())
}

func statusOf(err error) int {
	switch {
	case model.IsRejection(err), errors.Is(err, oms.ErrNotCancellable):
		return http.StatusConflict
	case errors.Is(err, model.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, oms.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, oms.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, oms.ErrIdentifierTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, oms.ErrCancelled), errors.Is(err, context.Canceled):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   error,
		Message: message,
	})
}
