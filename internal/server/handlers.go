package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/hyperjump/kbserve/internal/models"
	"go.uber.org/zap"
)

const maxQueryBody = 10 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())
	if !report.Healthy() {
		s.logger.Debug("health check unhealthy", zap.String("error", report.Error))
	}
	s.respondJSON(w, http.StatusOK, report)
}

// handleQuery answers POST /query. Invalid requests get 422.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	s.answerQuery(w, r, http.StatusUnprocessableEntity)
}

// handleRootQuery answers POST /. Invalid requests are reported in a 200 body.
func (s *Server) handleRootQuery(w http.ResponseWriter, r *http.Request) {
	s.answerQuery(w, r, http.StatusOK)
}

func (s *Server) answerQuery(w http.ResponseWriter, r *http.Request, invalidStatus int) {
	var req models.QueryRequest
	body := http.MaxBytesReader(w, r.Body, maxQueryBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		s.respondJSON(w, invalidStatus, &models.ErrorResponse{
			Error:   "Invalid request",
			Details: []models.FieldError{{Field: "body", Tag: "json", Message: err.Error()}},
		})
		return
	}
	if err := req.Validate(r.Context()); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			s.logger.Error("query validation failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.respondJSON(w, invalidStatus, &models.ErrorResponse{
			Error:   "Invalid request",
			Details: fieldErrors(verrs),
		})
		return
	}

	s.logger.Debug("query request", zap.String("question", req.Question), zap.Bool("has_image", req.Image != ""))
	resp, err := s.answerer.Answer(r.Context(), &req)
	if err != nil {
		s.logger.Error("answer failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func fieldErrors(verrs validator.ValidationErrors) []models.FieldError {
	out := make([]models.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, models.FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: fieldMessage(fe),
		})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field required"
	case "base64":
		return "must be base64 encoded"
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
