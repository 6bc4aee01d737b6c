package models

// ProjectSummary describes a project and its issue counts.
type ProjectSummary struct {
	Name       string `json:"name"`
	IssueCount int    `json:"issue_count"`
	OpenCount  int    `json:"open_count"`
}
