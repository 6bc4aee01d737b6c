package store

import (
	"context"
	"errors"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/issues/internal/models"
)

// fakeClock returns a controllable time source starting at a fixed instant.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) (*MemoryStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 30, 45, 123456789, time.UTC)}
	s := NewMemoryStore()
	s.now = clock.Now
	return s, clock
}

func validFields() Fields {
	return Fields{
		"issue_title": "t",
		"issue_text":  "x",
		"created_by":  "me",
	}
}

func mustAdd(t *testing.T, s *MemoryStore, project string, fields Fields) *models.Issue {
	t.Helper()
	issue, err := s.AddIssue(context.Background(), project, fields)
	require.NoError(t, err)
	return issue
}

// --- Add ---

func TestAddIssue_Defaults(t *testing.T) {
	s, clock := newTestStore(t)

	issue := mustAdd(t, s, "p", validFields())

	assert.NotEmpty(t, issue.ID)
	assert.Equal(t, "t", issue.Title)
	assert.Equal(t, "x", issue.Text)
	assert.Equal(t, "me", issue.CreatedBy)
	assert.Equal(t, "", issue.AssignedTo)
	assert.Equal(t, "", issue.StatusText)
	assert.True(t, issue.Open)
	assert.Equal(t, issue.CreatedOn, issue.UpdatedOn)
	assert.Equal(t, clock.Now().Truncate(time.Millisecond), issue.CreatedOn.Time)
}

func TestAddIssue_AllFields(t *testing.T) {
	s, _ := newTestStore(t)

	f := validFields()
	f["assigned_to"] = "joe"
	f["status_text"] = "in QA"
	issue := mustAdd(t, s, "p", f)

	assert.Equal(t, "joe", issue.AssignedTo)
	assert.Equal(t, "in QA", issue.StatusText)
}

func TestAddIssue_OpenOnlyClosedByBooleanFalse(t *testing.T) {
	tests := []struct {
		name  string
		value any
		set   bool
		want  bool
	}{
		{"absent", nil, false, true},
		{"bool false", false, true, false},
		{"bool true", true, true, true},
		{"string false", "false", true, true},
		{"empty string", "", true, true},
		{"zero", 0, true, true},
		{"null", nil, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(t)
			f := validFields()
			if tt.set {
				f["open"] = tt.value
			}
			issue := mustAdd(t, s, "p", f)
			assert.Equal(t, tt.want, issue.Open)
		})
	}
}

func TestAddIssue_MissingRequired(t *testing.T) {
	for _, key := range []string{"issue_title", "issue_text", "created_by"} {
		t.Run("empty "+key, func(t *testing.T) {
			s, _ := newTestStore(t)
			f := validFields()
			f[key] = ""
			_, err := s.AddIssue(context.Background(), "p", f)
			assert.ErrorIs(t, err, ErrRequiredFields)
			assert.Equal(t, "required field(s) missing", err.Error())
		})
		t.Run("absent "+key, func(t *testing.T) {
			s, _ := newTestStore(t)
			f := validFields()
			delete(f, key)
			_, err := s.AddIssue(context.Background(), "p", f)
			assert.ErrorIs(t, err, ErrRequiredFields)
		})
		t.Run("null "+key, func(t *testing.T) {
			s, _ := newTestStore(t)
			f := validFields()
			f[key] = nil
			_, err := s.AddIssue(context.Background(), "p", f)
			assert.ErrorIs(t, err, ErrRequiredFields)

			// No partial record, and no project created.
			issues, err := s.ListIssues(context.Background(), "p", nil)
			require.NoError(t, err)
			assert.Empty(t, issues)
			projects, err := s.ListProjects(context.Background())
			require.NoError(t, err)
			assert.Empty(t, projects)
		})
	}
}

func TestAddIssue_FalsyJSONRequiredValues(t *testing.T) {
	for name, val := range map[string]any{"false": false, "zero": json.Number("0")} {
		t.Run(name, func(t *testing.T) {
			s, _ := newTestStore(t)
			f := validFields()
			f["issue_title"] = val
			_, err := s.AddIssue(context.Background(), "p", f)
			assert.ErrorIs(t, err, ErrRequiredFields)
		})
	}
}

func TestAddIssue_UniqueIDs(t *testing.T) {
	s, _ := newTestStore(t)

	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		project := fmt.Sprintf("p%d", i%3)
		issue := mustAdd(t, s, project, validFields())
		require.False(t, seen[issue.ID], "duplicate id %s", issue.ID)
		seen[issue.ID] = true
	}
}

func TestAddIssue_ReturnsSnapshot(t *testing.T) {
	s, _ := newTestStore(t)

	issue := mustAdd(t, s, "p", validFields())
	issue.Title = "mutated by caller"

	issues, err := s.ListIssues(context.Background(), "p", nil)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "t", issues[0].Title)
}

// --- List ---

func TestListIssues_MissingProject(t *testing.T) {
	s, _ := newTestStore(t)

	issues, err := s.ListIssues(context.Background(), "nope", nil)
	require.NoError(t, err)
	assert.NotNil(t, issues)
	assert.Empty(t, issues)
}

func TestListIssues_InsertionOrder(t *testing.T) {
	s, _ := newTestStore(t)

	var want []string
	for i := 0; i < 5; i++ {
		f := validFields()
		f["issue_title"] = fmt.Sprintf("issue %d", i)
		want = append(want, mustAdd(t, s, "p", f).ID)
	}
	mustAdd(t, s, "other", validFields())

	issues, err := s.ListIssues(context.Background(), "p", nil)
	require.NoError(t, err)
	var got []string
	for _, issue := range issues {
		got = append(got, issue.ID)
	}
	assert.Equal(t, want, got)
}

func TestListIssues_TextFiltersCaseInsensitive(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	a := mustAdd(t, s, "p", Fields{
		"issue_title": "Login Broken", "issue_text": "500 on submit",
		"created_by": "Alice", "assigned_to": "Bob", "status_text": "Triaged",
	})
	mustAdd(t, s, "p", Fields{
		"issue_title": "Logout broken", "issue_text": "nothing happens",
		"created_by": "carol",
	})

	tests := []struct {
		filters Filters
		want    int
	}{
		{Filters{"issue_title": "login broken"}, 1},
		{Filters{"issue_text": "500 ON SUBMIT"}, 1},
		{Filters{"created_by": "alice"}, 1},
		{Filters{"assigned_to": "BOB"}, 1},
		{Filters{"status_text": "triaged"}, 1},
		{Filters{"issue_title": "login"}, 0},
		{Filters{"created_by": "alice", "assigned_to": "bob"}, 1},
		{Filters{"created_by": "alice", "assigned_to": "carol"}, 0},
		{Filters{"issue_title": ""}, 2},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.filters), func(t *testing.T) {
			issues, err := s.ListIssues(ctx, "p", tt.filters)
			require.NoError(t, err)
			assert.Len(t, issues, tt.want)
			if tt.want == 1 && len(issues) == 1 {
				assert.Equal(t, a.ID, issues[0].ID)
			}
		})
	}
}

func TestListIssues_IDFilterExact(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	issue := mustAdd(t, s, "p", validFields())
	mustAdd(t, s, "p", validFields())

	got, err := s.ListIssues(ctx, "p", Filters{"_id": issue.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, issue, got[0])

	// ULIDs are upper case, so folding the case must not match.
	got, err = s.ListIssues(ctx, "p", Filters{"_id": strings.ToLower(issue.ID)})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListIssues_OpenFilter(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	mustAdd(t, s, "p", validFields())
	closed := validFields()
	closed["open"] = false
	mustAdd(t, s, "p", closed)

	tests := []struct {
		value    string
		wantOpen bool
	}{
		{"", false},
		{"0", false},
		{"false", false},
		{"true", true},
		{"1", true},
		{"no", true},
		{"False", true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.value), func(t *testing.T) {
			issues, err := s.ListIssues(ctx, "p", Filters{"open": tt.value})
			require.NoError(t, err)
			require.Len(t, issues, 1)
			assert.Equal(t, tt.wantOpen, issues[0].Open)
		})
	}
}

// Date filters compare epoch milliseconds. The original service compared
// distinct date objects by identity, so these filters never matched there.
func TestListIssues_DateFiltersUseMillisecondEquality(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	first := mustAdd(t, s, "p", validFields())
	clock.Advance(time.Second)
	second := mustAdd(t, s, "p", validFields())

	got, err := s.ListIssues(ctx, "p", Filters{"created_on": first.CreatedOn.String()})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, first.ID, got[0].ID)

	got, err = s.ListIssues(ctx, "p", Filters{"updated_on": second.UpdatedOn.String()})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, second.ID, got[0].ID)

	// Sub-millisecond precision in the filter is ignored.
	nano := first.CreatedOn.Add(400 * time.Microsecond).Format(time.RFC3339Nano)
	got, err = s.ListIssues(ctx, "p", Filters{"created_on": nano})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = s.ListIssues(ctx, "p", Filters{"created_on": "2001-01-01T00:00:00Z"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListIssues_DateFilterEpochMillis(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	first := mustAdd(t, s, "p", validFields())
	clock.Advance(time.Millisecond)
	mustAdd(t, s, "p", validFields())

	ms := strconv.FormatInt(first.CreatedOn.UnixMilli(), 10)
	got, err := s.ListIssues(ctx, "p", Filters{"created_on": ms})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, first.ID, got[0].ID)
}

func TestListIssues_UnparseableDateMatchesNothing(t *testing.T) {
	s, _ := newTestStore(t)
	mustAdd(t, s, "p", validFields())

	got, err := s.ListIssues(context.Background(), "p", Filters{"created_on": "not a date"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

// --- Update ---

func TestUpdateIssue_Fields(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	issue := mustAdd(t, s, "p", validFields())
	clock.Advance(2 * time.Second)

	err := s.UpdateIssue(ctx, "p", issue.ID, Fields{
		"assigned_to": "joko",
		"status_text": "closed",
		"open":        "false",
		"issue_text":  "",
	})
	require.NoError(t, err)

	got, err := s.ListIssues(ctx, "p", Filters{"_id": issue.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "joko", got[0].AssignedTo)
	assert.Equal(t, "closed", got[0].StatusText)
	assert.False(t, got[0].Open)
	assert.Equal(t, "x", got[0].Text, "empty values never clear a field")
	assert.Equal(t, issue.CreatedOn, got[0].CreatedOn)
	assert.True(t, got[0].UpdatedOn.After(issue.UpdatedOn.Time))
}

func TestUpdateIssue_FalsyJSONTextValuesSkipped(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	f := validFields()
	f["assigned_to"] = "joe"
	f["status_text"] = "triaged"
	issue := mustAdd(t, s, "p", f)

	err := s.UpdateIssue(ctx, "p", issue.ID, Fields{
		"assigned_to": false,
		"status_text": json.Number("0"),
	})
	assert.ErrorIs(t, err, ErrNoUpdateFields)

	got, err := s.ListIssues(ctx, "p", Filters{"_id": issue.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "joe", got[0].AssignedTo)
	assert.Equal(t, "triaged", got[0].StatusText)
	assert.Equal(t, issue.UpdatedOn, got[0].UpdatedOn)
}

func TestUpdateIssue_CloseWithBooleanFalse(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	issue := mustAdd(t, s, "p", validFields())
	clock.Advance(time.Millisecond)

	require.NoError(t, s.UpdateIssue(ctx, "p", issue.ID, Fields{"open": false}))

	got, err := s.ListIssues(ctx, "p", nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].Open)
	assert.True(t, got[0].UpdatedOn.After(issue.UpdatedOn.Time))
}

func TestUpdateIssue_OpenTruthTable(t *testing.T) {
	tests := []struct {
		value any
		want  bool
	}{
		{"", false},
		{"0", false},
		{"false", false},
		{false, false},
		{0, false},
		{0.0, false},
		{nil, false},
		{"true", true},
		{"yes", true},
		{"False", true},
		{true, true},
		{1, true},
		{2.5, true},
		{[]any{}, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%#v", tt.value), func(t *testing.T) {
			s, _ := newTestStore(t)
			ctx := context.Background()
			f := validFields()
			f["open"] = !tt.want
			issue := mustAdd(t, s, "p", f)

			require.NoError(t, s.UpdateIssue(ctx, "p", issue.ID, Fields{"open": tt.value}))

			got, err := s.ListIssues(ctx, "p", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got[0].Open)
		})
	}
}

func TestUpdateIssue_NoFields(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	issue := mustAdd(t, s, "p", validFields())
	clock.Advance(time.Second)

	for _, fields := range []Fields{nil, {}, {"issue_title": "", "assigned_to": nil, "_id": issue.ID}} {
		err := s.UpdateIssue(ctx, "p", issue.ID, fields)
		assert.ErrorIs(t, err, ErrNoUpdateFields)
		assert.Equal(t, "no update field(s) sent", err.Error())
	}

	got, err := s.ListIssues(ctx, "p", nil)
	require.NoError(t, err)
	assert.Equal(t, issue, got[0])
}

func TestUpdateIssue_MissingID(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.UpdateIssue(context.Background(), "p", "", Fields{"issue_title": "x"})
	assert.ErrorIs(t, err, ErrMissingID)
	assert.Equal(t, "missing _id", err.Error())
}

func TestUpdateIssue_NotFound(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	issue := mustAdd(t, s, "p", validFields())

	for _, tc := range []struct{ project, id string }{
		{"missing", issue.ID},
		{"p", "doesnotexist"},
	} {
		err := s.UpdateIssue(ctx, tc.project, tc.id, Fields{"issue_title": "changed"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, "could not update", err.Error())
	}

	got, err := s.ListIssues(ctx, "p", nil)
	require.NoError(t, err)
	assert.Equal(t, issue, got[0])
}

// --- Delete ---

func TestDeleteIssue(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	a := mustAdd(t, s, "p", validFields())
	b := mustAdd(t, s, "p", validFields())
	c := mustAdd(t, s, "p", validFields())

	require.NoError(t, s.DeleteIssue(ctx, "p", b.ID))

	got, err := s.ListIssues(ctx, "p", nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a.ID, got[0].ID)
	assert.Equal(t, c.ID, got[1].ID)

	err = s.DeleteIssue(ctx, "p", b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteIssue_NotFound(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	mustAdd(t, s, "p", validFields())

	err := s.DeleteIssue(ctx, "p", "doesnotexist")
	require.Error(t, err)
	assert.Equal(t, "could not delete", err.Error())

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "delete", nf.Action)

	err = s.DeleteIssue(ctx, "missing", "doesnotexist")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.ListIssues(ctx, "p", nil)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestDeleteIssue_MissingID(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.DeleteIssue(context.Background(), "p", "")
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestEmptiedProject_StillExistsForUpdate(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	issue := mustAdd(t, s, "p", validFields())
	require.NoError(t, s.DeleteIssue(ctx, "p", issue.ID))

	got, err := s.ListIssues(ctx, "p", nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	err = s.UpdateIssue(ctx, "p", issue.ID, Fields{"issue_title": "x"})
	assert.Equal(t, "could not update", err.Error())
}

// --- Projects ---

func TestListProjects(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	mustAdd(t, s, "zeta", validFields())
	mustAdd(t, s, "alpha", validFields())
	closed := validFields()
	closed["open"] = false
	mustAdd(t, s, "alpha", closed)

	projects, err := s.ListProjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.ProjectSummary{
		{Name: "alpha", IssueCount: 2, OpenCount: 1},
		{Name: "zeta", IssueCount: 1, OpenCount: 1},
	}, projects)
}

// --- Concurrency ---

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				issue, err := s.AddIssue(ctx, "shared", validFields())
				if !assert.NoError(t, err) {
					return
				}
				assert.NoError(t, s.UpdateIssue(ctx, "shared", issue.ID, Fields{"status_text": "seen"}))
				_, err = s.ListIssues(ctx, "shared", Filters{"status_text": "seen"})
				assert.NoError(t, err)
				if i%2 == 0 {
					assert.NoError(t, s.DeleteIssue(ctx, "shared", issue.ID))
				}
			}
		}()
	}
	wg.Wait()

	issues, err := s.ListIssues(ctx, "shared", nil)
	require.NoError(t, err)
	assert.Len(t, issues, workers*perWorker/2)
}
