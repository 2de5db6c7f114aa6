package models

import "time"

// Event types
const (
	EventTypeReturnCreated   = "RETURN_CREATED"
	EventTypeReportGenerated = "REPORT_GENERATED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// ReturnCreatedEvent published when a return record is stored
type ReturnCreatedEvent struct {
	BaseEvent
	OrderID      int64  `json:"order_id"`
	Product      string `json:"product"`
	StoreName    string `json:"store_name"`
	Cost         string `json:"cost"`
	ApprovedFlag string `json:"approved_flag"`
	Date         string `json:"date"`
	Source       string `json:"source"`
}

// ReportGeneratedEvent published after a report file is written
type ReportGeneratedEvent struct {
	BaseEvent
	Path         string `json:"path"`
	TotalReturns int    `json:"total_returns"`
	TotalCost    string `json:"total_cost"`
}

// Submission sources
const (
	SourceForm       = "form"
	SourceExtraction = "extraction"
)
