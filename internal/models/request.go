package models

import "strings"

// QueryRequest for POST /api/query
type QueryRequest struct {
	Query     string `json:"query" validate:"required,max=4000"`
	SessionID string `json:"session_id,omitempty" validate:"omitempty,max=128"`
}

func (r *QueryRequest) SetDefaults() {
	r.Query = strings.TrimSpace(r.Query)
	r.SessionID = strings.TrimSpace(r.SessionID)
}
