// Package api is the operator-facing HTTP boundary: a small REST surface
// over the conversation coordinator and vehicle session, a Prometheus
// metrics endpoint, and a WebSocket telemetry stream.
package api

import (
	"context"
	"encoding/json"
	stdliberrors "errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deepdrone/deepdrone/pkg/chat"
	"github.com/deepdrone/deepdrone/pkg/config"
	"github.com/deepdrone/deepdrone/pkg/drone"
	apperrors "github.com/deepdrone/deepdrone/pkg/errors"
	"github.com/deepdrone/deepdrone/pkg/logging"
	"github.com/deepdrone/deepdrone/pkg/model"
	"github.com/deepdrone/deepdrone/pkg/telemetry"
)

const (
	maxBodyBytes    int64 = 1 << 20
	shutdownTimeout       = 5 * time.Second
	requestTimeout        = 2 * time.Minute
)

// Server hosts the operator API for one live session.
type Server struct {
	appCfg  *config.Config
	coord   *chat.Coordinator
	sess    *drone.Session
	adapter *model.Adapter
	hub     *telemetry.Hub
	log     *logging.Logger

	httpServer *http.Server
}

// NewServer wires the HTTP boundary. The adapter may be nil when no model is
// configured; chat endpoints then report a configuration error.
func NewServer(appCfg *config.Config, coord *chat.Coordinator, sess *drone.Session, adapter *model.Adapter, hub *telemetry.Hub, log *logging.Logger) *Server {
	if log == nil {
		log = logging.NewDiscardLogger()
	}
	if hub == nil {
		hub = telemetry.NewHub()
	}
	return &Server{
		appCfg:  appCfg,
		coord:   coord,
		sess:    sess,
		adapter: adapter,
		hub:     hub,
		log:     log,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Post("/execute", s.handleExecute)
		r.Post("/interrupt", s.handleInterrupt)
		r.Get("/status", s.handleStatus)
		r.Get("/models", s.handleListModels)
		r.Post("/models/test", s.handleTestModel)
		r.Route("/drone", func(r chi.Router) {
			r.Post("/connect", s.handleConnect)
			r.Post("/disconnect", s.handleDisconnect)
			r.Post("/mission", s.handleMission)
		})
	})

	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.appCfg.Server.Bind,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()
	s.log.Info(logging.CategoryAPI, "server_started", "operator API listening", map[string]any{
		"bind": s.appCfg.Server.Bind,
	})

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if stdliberrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "request body required")
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "malformed request body")
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	response := struct {
		Error     string `json:"error"`
		Status    int    `json:"status"`
		Code      string `json:"code,omitempty"`
		Retryable bool   `json:"retryable,omitempty"`
	}{
		Status: status,
		Error:  http.StatusText(status),
	}

	var appErr *apperrors.Error
	if stdliberrors.As(err, &appErr) {
		response.Code = string(appErr.Code)
		response.Retryable = appErr.Retryable
		if appErr.UserMessage != "" {
			response.Error = appErr.UserMessage
		} else {
			response.Error = appErr.Message
		}
	} else if err != nil {
		response.Error = err.Error()
	}

	respondJSON(w, status, response)
}
