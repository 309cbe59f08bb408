package models

// Metrics is the dashboard summary for one user.
type Metrics struct {
	TotalFiles        int     `json:"totalFiles"`
	TotalRecords      int     `json:"totalRecords"`
	ReportsGenerated  int     `json:"reportsGenerated"`
	AvgProcessingTime float64 `json:"avgProcessingTime"`
	SuccessRate       float64 `json:"successRate"`
	ErrorRate         float64 `json:"errorRate"`
}
