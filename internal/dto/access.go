package dto

import "github.com/noah-isme/sma-gate-api/internal/models"

// AccessLogQuery captures list filters shared by the log endpoints.
type AccessLogQuery struct {
	Mode     string `form:"mode"`
	Date     string `form:"date"`
	Page     int    `form:"page"`
	PageSize int    `form:"limit"`
}

// DaySummaryResponse wraps the derived presence aggregates for one day.
type DaySummaryResponse struct {
	models.DaySummary
	ExpectedStudents int `json:"expected_students"`
	ExpectedStaff    int `json:"expected_staff"`
}
