package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-resty/resty/v2"

	"github.com/joescharf/issues/internal/models"
	"github.com/joescharf/issues/internal/store"
)

// Client talks to a running issue tracker over its REST API.
type Client struct {
	http *resty.Client
}

// New creates a client for the server at baseURL, e.g. http://localhost:3000.
func New(baseURL string) *Client {
	return NewWithClient(baseURL, http.DefaultClient)
}

// NewWithClient creates a client that sends requests through hc.
func NewWithClient(baseURL string, hc *http.Client) *Client {
	return &Client{
		http: resty.NewWithClient(hc).
			SetBaseURL(baseURL).
			SetHeader("Content-Type", "application/json"),
	}
}

// response is the union of every body the issue endpoints return.
type response struct {
	Result string `json:"result"`
	Error  string `json:"error"`
	ID     string `json:"_id"`
}

// knownErrors maps response messages back to store errors so callers can
// use errors.Is across the wire.
var knownErrors = map[string]error{
	store.ErrRequiredFields.Error(): store.ErrRequiredFields,
	store.ErrMissingID.Error():      store.ErrMissingID,
	store.ErrNoUpdateFields.Error(): store.ErrNoUpdateFields,
	"could not update":              &store.NotFoundError{Action: "update"},
	"could not delete":              &store.NotFoundError{Action: "delete"},
}

func remoteError(msg string) error {
	if err, ok := knownErrors[msg]; ok {
		return err
	}
	return errors.New(msg)
}

func issuesPath(project string) string {
	return "/api/issues/" + url.PathEscape(project)
}

func checkStatus(resp *resty.Response, errBody *response) error {
	if !resp.IsError() {
		return nil
	}
	if errBody != nil && errBody.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode(), errBody.Error)
	}
	return fmt.Errorf("server returned %d", resp.StatusCode())
}

// ListIssues fetches the project's issues matching filters.
func (c *Client) ListIssues(ctx context.Context, project string, filters map[string]string) ([]models.Issue, error) {
	var issues []models.Issue
	var errBody response
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(filters).
		SetResult(&issues).
		SetError(&errBody).
		Get(issuesPath(project))
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	if err := checkStatus(resp, &errBody); err != nil {
		return nil, err
	}
	return issues, nil
}

// AddIssue creates an issue from the given fields.
func (c *Client) AddIssue(ctx context.Context, project string, fields map[string]any) (*models.Issue, error) {
	var out struct {
		models.Issue
		Error string `json:"error"`
	}
	var errBody response
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(fields).
		SetResult(&out).
		SetError(&errBody).
		Post(issuesPath(project))
	if err != nil {
		return nil, fmt.Errorf("add issue: %w", err)
	}
	if err := checkStatus(resp, &errBody); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, remoteError(out.Error)
	}
	return &out.Issue, nil
}

// UpdateIssue sends fields for the issue with the given id.
func (c *Client) UpdateIssue(ctx context.Context, project, id string, fields map[string]any) error {
	body := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body[models.FieldID] = id
	return c.mutate(ctx, http.MethodPut, project, body)
}

// DeleteIssue deletes the issue with the given id.
func (c *Client) DeleteIssue(ctx context.Context, project, id string) error {
	return c.mutate(ctx, http.MethodDelete, project, map[string]any{models.FieldID: id})
}

func (c *Client) mutate(ctx context.Context, method, project string, body map[string]any) error {
	var out, errBody response
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&errBody).
		Execute(method, issuesPath(project))
	if err != nil {
		return fmt.Errorf("%s issue: %w", method, err)
	}
	if err := checkStatus(resp, &errBody); err != nil {
		return err
	}
	if out.Error != "" {
		return remoteError(out.Error)
	}
	return nil
}

// ListProjects fetches project summaries.
func (c *Client) ListProjects(ctx context.Context) ([]models.ProjectSummary, error) {
	var projects []models.ProjectSummary
	var errBody response
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&projects).
		SetError(&errBody).
		Get("/api/projects")
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	if err := checkStatus(resp, &errBody); err != nil {
		return nil, err
	}
	return projects, nil
}
