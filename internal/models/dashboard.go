package models

import "time"

// DashboardSummary is the admin overview payload: content and account
// counts plus the most recent audit entries.
type DashboardSummary struct {
	GeneratedAt    time.Time      `json:"generated_at"`
	Posts          PostCounts     `json:"posts"`
	UsersByRole    map[string]int `json:"users_by_role"`
	Labs           int            `json:"labs"`
	Projects       int            `json:"projects"`
	ActivityToday  int            `json:"activity_today"`
	RecentActivity []Activity     `json:"recent_activity"`
}

// PostCounts breaks the post ledger down by stored status.
type PostCounts struct {
	Total     int `json:"total"`
	Draft     int `json:"draft"`
	Published int `json:"published"`
	Scheduled int `json:"scheduled"`
	Hidden    int `json:"hidden"`
	Archived  int `json:"archived"`
}
