package models

// Issue represents a tracked issue within a project.
type Issue struct {
	ID         string    `json:"_id"`
	Title      string    `json:"issue_title"`
	Text       string    `json:"issue_text"`
	CreatedBy  string    `json:"created_by"`
	AssignedTo string    `json:"assigned_to"`
	StatusText string    `json:"status_text"`
	Open       bool      `json:"open"`
	CreatedOn  Timestamp `json:"created_on"`
	UpdatedOn  Timestamp `json:"updated_on"`
}

// Issue field keys as they appear in request bodies and query strings.
const (
	FieldID         = "_id"
	FieldTitle      = "issue_title"
	FieldText       = "issue_text"
	FieldCreatedBy  = "created_by"
	FieldAssignedTo = "assigned_to"
	FieldStatusText = "status_text"
	FieldOpen       = "open"
	FieldCreatedOn  = "created_on"
	FieldUpdatedOn  = "updated_on"
)
