package models

// ExportStatus reports the lifecycle of a requested broker history export.
type ExportStatus struct {
	ReportID     int64  `json:"reportId"`
	Status       string `json:"status"` // Queued, Processing, Finished, Failed, Canceled
	DownloadLink string `json:"downloadLink,omitempty"`
}

// Terminal export states.
const (
	ExportStatusFinished = "Finished"
	ExportStatusFailed   = "Failed"
	ExportStatusCanceled = "Canceled"
)
