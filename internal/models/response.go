package models

import (
	"github.com/nahidhasan98/icon-sync/internal/deliveries"
	"github.com/nahidhasan98/icon-sync/internal/reconcile"
	"github.com/nahidhasan98/icon-sync/internal/store"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Notifier  string `json:"notifier,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// StatusResponse represents a generic status response
type StatusResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// SyncResponse is returned for a push that was reconciled
type SyncResponse struct {
	Status     string                `json:"status"`
	DeliveryID string                `json:"delivery_id,omitempty"`
	Message    string                `json:"message,omitempty"`
	Added      int                   `json:"added"`
	Removed    int                   `json:"removed"`
	Modified   int                   `json:"modified"`
	Commit     string                `json:"commit,omitempty"`
	Ref        *store.RefStatus      `json:"ref,omitempty"`
	Operations []reconcile.Operation `json:"operations,omitempty"`
}

// NewSyncResponse summarises a reconciliation result
func NewSyncResponse(deliveryID string, res *reconcile.Result) *SyncResponse {
	added, removed, modified := res.ChangeSet.Counts()
	resp := &SyncResponse{
		Status:     "applied",
		DeliveryID: deliveryID,
		Added:      added,
		Removed:    removed,
		Modified:   modified,
		Commit:     res.CommitSHA,
		Ref:        res.Ref,
		Operations: res.Operations,
	}
	switch {
	case res.NoOp:
		resp.Status = "noop"
		resp.Message = "No icons were affected this push"
	case res.DryRun:
		resp.Status = "planned"
	}
	return resp
}

// DeliveriesResponse lists recorded webhook deliveries
type DeliveriesResponse struct {
	Deliveries []deliveries.Delivery `json:"deliveries"`
	Count      int                   `json:"count"`
	Limit      int                   `json:"limit"`
	Offset     int                   `json:"offset"`
}
