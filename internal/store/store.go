package store

import (
	"context"

	"github.com/joescharf/issues/internal/models"
)

// Fields holds loosely typed issue values from a request body. Values may be
// strings (form bodies) or any decoded JSON value. For "open" the mere
// presence of the key is significant.
type Fields map[string]any

// Filters holds issue filters from a query string, one value per key. For
// "open" the mere presence of the key is significant.
type Filters map[string]string

// Store defines the issue repository interface.
type Store interface {
	// AddIssue validates and stores a new issue in the named project,
	// creating the project on first use.
	AddIssue(ctx context.Context, project string, fields Fields) (*models.Issue, error)

	// ListIssues returns the project's issues, in insertion order, that match
	// every filter. A missing project yields an empty result.
	ListIssues(ctx context.Context, project string, filters Filters) ([]*models.Issue, error)

	// UpdateIssue overwrites the supplied fields of an existing issue.
	UpdateIssue(ctx context.Context, project, id string, fields Fields) error

	// DeleteIssue removes an issue from its project.
	DeleteIssue(ctx context.Context, project, id string) error

	// ListProjects summarizes every known project, sorted by name.
	ListProjects(ctx context.Context) ([]models.ProjectSummary, error)
}
