package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cortexai/coursebot/internal/agent"
	"github.com/cortexai/coursebot/internal/middleware"
	"github.com/cortexai/coursebot/internal/models"
	"github.com/cortexai/coursebot/internal/rag"
	"github.com/rs/zerolog/log"
)

// Asker is the query surface of rag.System.
type Asker interface {
	Query(ctx context.Context, req rag.Request) (*rag.Result, error)
}

// SessionCreator hands out new session ids.
type SessionCreator interface {
	Create(ctx context.Context) (string, error)
}

// QueryHandler handles POST /api/query
type QueryHandler struct {
	asker    Asker
	sessions SessionCreator
}

func NewQueryHandler(asker Asker, sessions SessionCreator) *QueryHandler {
	return &QueryHandler{asker: asker, sessions: sessions}
}

// Query answers one question, creating a session when the request has none.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		models.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.SetDefaults()

	fields, err := validateStruct(&req)
	if err != nil {
		models.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if fields != nil {
		models.WriteValidationError(w, "validation failed", fields)
		return
	}

	ctx := r.Context()
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID, err = h.sessions.Create(ctx)
		if err != nil {
			log.Error().Err(err).Msg("failed to create session")
			models.WriteError(w, http.StatusInternalServerError, "failed to create session")
			return
		}
	}

	res, err := h.asker.Query(ctx, rag.Request{
		Query:     req.Query,
		SessionID: sessionID,
		APIKey:    middleware.APIKeyFromContext(ctx),
	})
	if err != nil {
		code := statusFor(err)
		log.Error().
			Err(err).
			Str("request_id", middleware.RequestIDFromContext(ctx)).
			Int("status", code).
			Msg("query failed")
		models.WriteError(w, code, err.Error())
		return
	}

	sources := make([]models.Source, len(res.Sources))
	for i, c := range res.Sources {
		sources[i] = models.Source{Text: c.Text, URL: c.URL}
	}
	models.WriteJSON(w, http.StatusOK, models.QueryResponse{
		Answer:    res.Answer,
		Sources:   sources,
		SessionID: sessionID,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, rag.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, agent.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
