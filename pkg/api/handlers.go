package api

import (
	"net/http"
	"sort"

	"github.com/deepdrone/deepdrone/pkg/drone"
	apperrors "github.com/deepdrone/deepdrone/pkg/errors"
	"github.com/deepdrone/deepdrone/pkg/logging"
)

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Message == "" {
		respondError(w, http.StatusBadRequest,
			apperrors.New(apperrors.ErrCodeInvalidInput, "message is required"))
		return
	}

	result := s.coord.HandleTurn(r.Context(), req.Message)
	respondJSON(w, http.StatusOK, result)
}

type executeRequest struct {
	Code string `json:"code"`
}

type executeResponse struct {
	Output   string `json:"output"`
	Error    string `json:"error,omitempty"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Code == "" {
		respondError(w, http.StatusBadRequest,
			apperrors.New(apperrors.ErrCodeInvalidInput, "code is required"))
		return
	}

	res := s.coord.Execute(r.Context(), req.Code)
	respondJSON(w, http.StatusOK, executeResponse{
		Output:   res.Output,
		Error:    res.Error,
		TimedOut: res.TimedOut,
	})
}

func (s *Server) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	s.coord.Interrupt(r.Context())
	respondJSON(w, http.StatusAccepted, map[string]any{
		"state": s.sess.State(),
	})
}

type connectRequest struct {
	ConnectionString string `json:"connection_string"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	connStr := req.ConnectionString
	if connStr == "" {
		connStr = s.appCfg.Drone.ConnectionString
	}

	if !s.sess.Connect(r.Context(), connStr) {
		respondError(w, http.StatusBadGateway,
			apperrors.New(apperrors.ErrCodeVehicleNotConnected, "failed to connect to "+connStr))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"connected":         true,
		"connection_string": connStr,
		"state":             s.sess.State(),
	})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.sess.Disconnect()
	respondJSON(w, http.StatusOK, map[string]any{
		"connected": false,
		"state":     s.sess.State(),
	})
}

type missionRequest struct {
	Waypoints []map[string]float64 `json:"waypoints"`
}

func (s *Server) handleMission(w http.ResponseWriter, r *http.Request) {
	var req missionRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	wps, err := drone.ParseWaypoints(req.Waypoints)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	result := s.sess.ExecuteMission(r.Context(), wps)
	status := http.StatusOK
	if result.Err != nil {
		status = http.StatusConflict
	}
	respondJSON(w, status, result)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.sess.Status()
	payload := map[string]any{
		"drone": snap,
	}
	if s.adapter != nil {
		cfg := s.adapter.Config()
		payload["model"] = map[string]any{
			"name":     cfg.Name,
			"provider": cfg.Provider,
			"model_id": cfg.ModelID,
		}
	}
	respondJSON(w, http.StatusOK, payload)
}

type modelSummary struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
	ModelID  string `json:"model_id"`
	HasKey   bool   `json:"has_key"`
	Active   bool   `json:"active"`
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	active := ""
	if s.adapter != nil {
		active = s.adapter.Config().Name
	}

	models := make([]modelSummary, 0, len(s.appCfg.Models))
	for name, m := range s.appCfg.Models {
		models = append(models, modelSummary{
			Name:     name,
			Provider: m.Provider,
			ModelID:  m.ModelID,
			HasKey:   m.HasUsableKey() || !m.RequiresKey(),
			Active:   name == active,
		})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	respondJSON(w, http.StatusOK, map[string]any{"models": models})
}

func (s *Server) handleTestModel(w http.ResponseWriter, r *http.Request) {
	if s.adapter == nil {
		respondError(w, http.StatusServiceUnavailable,
			apperrors.New(apperrors.ErrCodeConfigInvalid, "no model configured"))
		return
	}

	result := s.adapter.TestConnection(r.Context())
	if !result.OK {
		s.log.Warn(logging.CategoryAPI, "model_test_failed", "model connection test failed", map[string]any{
			"provider": result.Provider,
			"error":    result.Error,
		})
	}
	respondJSON(w, http.StatusOK, result)
}
