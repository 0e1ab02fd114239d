package models

import "troquel/internal/vsm"

// APIResponse is the standard JSON envelope for all API responses.
type APIResponse struct {
	Data interface{} `json:"data"`
	Meta *Meta       `json:"meta,omitempty"`
}

// Meta contains list metadata.
type Meta struct {
	Total int `json:"total,omitempty"`
	Page  int `json:"page,omitempty"`
	Limit int `json:"limit,omitempty"`
}

// StatusUpdate is the body of PUT /api/v1/orders/{id}/status.
type StatusUpdate struct {
	Status string `json:"status"`
}

// SimulateRequest is the body of POST /api/v1/vsm/simulate. Without stages,
// Count names are taken from the configured default stages.
type SimulateRequest struct {
	Stages   []string `json:"stages"`
	Count    int      `json:"count"`
	Seed     *int64   `json:"seed"`
	Quantity *int     `json:"quantity"`
}

// RecommendRequest is the body of POST /api/v1/vsm/recommend: an externally
// built stage table to score.
type RecommendRequest struct {
	Stages       []vsm.StageAggregate `json:"stages"`
	Quantity     int                  `json:"quantity"`
	ShiftMinutes float64              `json:"shift_minutes"`
}

// AuditEntry represents a single audit log record.
type AuditEntry struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Action    string `json:"action"`
	Module    string `json:"module"`
	RecordID  string `json:"record_id"`
	Summary   string `json:"summary"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	CreatedAt string `json:"created_at"`
}
