package cmd

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/issues/internal/api"
	"github.com/joescharf/issues/internal/store"
)

// issueEnv starts an API server over a fresh store and points server.url
// at it.
func issueEnv(t *testing.T) (*store.MemoryStore, *bytes.Buffer) {
	t.Helper()
	testEnv(t)

	s := store.NewMemoryStore()
	ts := httptest.NewServer(api.NewServer(s, slog.New(slog.NewTextHandler(io.Discard, nil))).Router())
	t.Cleanup(ts.Close)
	viper.Set("server.url", ts.URL)

	out := &bytes.Buffer{}
	ui.Out = out
	ui.ErrOut = &bytes.Buffer{}

	resetIssueFlags(t)
	return s, out
}

func resetIssueFlags(t *testing.T) {
	t.Helper()
	reset := func() {
		issueTitle, issueText, issueCreatedBy = "", "", ""
		issueAssignedTo, issueStatusText = "", ""
		issueClosed, issueOpen = false, true
		issueFilters = nil
	}
	reset()
	t.Cleanup(reset)
}

func TestParseFilters(t *testing.T) {
	got, err := parseFilters([]string{"open=false", "assigned_to=joe", "status_text="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"open": "false", "assigned_to": "joe", "status_text": ""}, got)

	_, err = parseFilters([]string{"open"})
	assert.Error(t, err)

	_, err = parseFilters([]string{"=x"})
	assert.Error(t, err)
}

func TestIssueAddRun(t *testing.T) {
	s, out := issueEnv(t)
	issueTitle = "Crash on save"
	issueText = "Stack trace attached"
	issueCreatedBy = "alice"
	issueAssignedTo = "bob"

	require.NoError(t, issueAddRun("web"))
	assert.Contains(t, out.String(), "Created issue")

	issues, err := s.ListIssues(context.Background(), "web", nil)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "Crash on save", issues[0].Title)
	assert.Equal(t, "bob", issues[0].AssignedTo)
	assert.True(t, issues[0].Open)
}

func TestIssueAddRun_Closed(t *testing.T) {
	s, _ := issueEnv(t)
	issueTitle, issueText, issueCreatedBy = "t", "x", "me"
	issueClosed = true

	require.NoError(t, issueAddRun("web"))

	issues, err := s.ListIssues(context.Background(), "web", nil)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.False(t, issues[0].Open)
}

func TestIssueAddRun_MissingRequired(t *testing.T) {
	issueEnv(t)
	issueTitle = "only a title"

	err := issueAddRun("web")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrRequiredFields)
}

func TestIssueAddRun_DryRun(t *testing.T) {
	s, _ := issueEnv(t)
	dryRun = true
	t.Cleanup(func() { dryRun = false })
	issueTitle, issueText, issueCreatedBy = "t", "x", "me"

	require.NoError(t, issueAddRun("web"))

	projects, err := s.ListProjects(context.Background())
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestIssueListRun(t *testing.T) {
	s, out := issueEnv(t)
	ctx := context.Background()
	_, err := s.AddIssue(ctx, "web", store.Fields{"issue_title": "First", "issue_text": "x", "created_by": "me"})
	require.NoError(t, err)
	_, err = s.AddIssue(ctx, "web", store.Fields{"issue_title": "Second", "issue_text": "x", "created_by": "me", "open": false})
	require.NoError(t, err)

	require.NoError(t, issueListRun("web"))
	assert.Contains(t, out.String(), "First")
	assert.Contains(t, out.String(), "Second")

	out.Reset()
	issueFilters = []string{"open=false"}
	require.NoError(t, issueListRun("web"))
	assert.NotContains(t, out.String(), "First")
	assert.Contains(t, out.String(), "Second")
}

func TestIssueListRun_Empty(t *testing.T) {
	_, out := issueEnv(t)

	require.NoError(t, issueListRun("nothing-here"))
	assert.Contains(t, out.String(), "No issues found")
}

func TestIssueUpdateRun(t *testing.T) {
	s, out := issueEnv(t)
	ctx := context.Background()
	issue, err := s.AddIssue(ctx, "web", store.Fields{"issue_title": "t", "issue_text": "x", "created_by": "me"})
	require.NoError(t, err)

	issueStatusText = "triaged"
	issueOpen = false
	require.NoError(t, issueUpdateRun("web", issue.ID, true))
	assert.Contains(t, out.String(), "Updated issue")

	got, err := s.ListIssues(ctx, "web", store.Filters{"_id": issue.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "triaged", got[0].StatusText)
	assert.False(t, got[0].Open)
}

func TestIssueUpdateRun_NoFields(t *testing.T) {
	s, _ := issueEnv(t)
	issue, err := s.AddIssue(context.Background(), "web", store.Fields{"issue_title": "t", "issue_text": "x", "created_by": "me"})
	require.NoError(t, err)

	// --open was not passed, so nothing is sent.
	err = issueUpdateRun("web", issue.ID, false)
	assert.ErrorIs(t, err, store.ErrNoUpdateFields)
}

func TestIssueUpdateRun_NotFound(t *testing.T) {
	issueEnv(t)
	issueTitle = "x"

	err := issueUpdateRun("web", "missing", false)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestIssueCloseRun(t *testing.T) {
	s, out := issueEnv(t)
	ctx := context.Background()
	issue, err := s.AddIssue(ctx, "web", store.Fields{"issue_title": "t", "issue_text": "x", "created_by": "me"})
	require.NoError(t, err)

	require.NoError(t, issueCloseRun("web", issue.ID))
	assert.Contains(t, out.String(), "Closed issue")

	got, err := s.ListIssues(ctx, "web", nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].Open)
}

func TestIssueDeleteRun(t *testing.T) {
	s, out := issueEnv(t)
	ctx := context.Background()
	issue, err := s.AddIssue(ctx, "web", store.Fields{"issue_title": "t", "issue_text": "x", "created_by": "me"})
	require.NoError(t, err)

	require.NoError(t, issueDeleteRun("web", issue.ID))
	assert.Contains(t, out.String(), "Deleted issue")

	got, err := s.ListIssues(ctx, "web", nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	err = issueDeleteRun("web", issue.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProjectsRun(t *testing.T) {
	s, out := issueEnv(t)
	ctx := context.Background()

	require.NoError(t, projectsRun())
	assert.Contains(t, out.String(), "No projects yet")

	_, err := s.AddIssue(ctx, "web", store.Fields{"issue_title": "t", "issue_text": "x", "created_by": "me"})
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, projectsRun())
	assert.Contains(t, out.String(), "web")
}
