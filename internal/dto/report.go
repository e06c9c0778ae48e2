package dto

import "github.com/noah-isme/sma-gate-api/internal/models"

// ReportRequest queues a daily gate report export.
type ReportRequest struct {
	Date   string `json:"date" binding:"required"`
	Format string `json:"format" binding:"required"`
}

// ReportJobResponse acknowledges job creation.
type ReportJobResponse struct {
	ID     string              `json:"id"`
	Status models.ReportStatus `json:"status"`
}

// ReportStatusResponse exposes job progress to clients.
type ReportStatusResponse struct {
	ID        string              `json:"id"`
	Status    models.ReportStatus `json:"status"`
	ResultURL *string             `json:"result_url,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
