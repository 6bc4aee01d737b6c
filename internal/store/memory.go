package store

import (
	"context"
	"io"
	"math/rand"
	"slices"
	"sort"
	"sync"
	"time"

	set "github.com/deckarep/golang-set/v2"
	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"

	"github.com/joescharf/issues/internal/models"
)

// MemoryStore implements Store in process memory. A single RWMutex guards
// all projects: reads share the lock, mutations hold it exclusively.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]*project
	ids      set.Set[string]
	entropy  io.Reader
	validate *validator.Validate
	now      func() time.Time
}

type project struct {
	issues []*models.Issue
}

// requiredFields carries the creation fields that must be non-empty.
type requiredFields struct {
	Title     string `validate:"required"`
	Text      string `validate:"required"`
	CreatedBy string `validate:"required"`
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: make(map[string]*project),
		ids:      set.NewThreadUnsafeSet[string](),
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		validate: validator.New(),
		now:      time.Now,
	}
}

// newID generates a ULID not yet used anywhere in the store. Callers must
// hold the write lock; the monotonic entropy source is not goroutine-safe.
func (s *MemoryStore) newID() string {
	for {
		id := ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
		if !s.ids.Contains(id) {
			return id
		}
	}
}

func (s *MemoryStore) AddIssue(_ context.Context, projectName string, fields Fields) (*models.Issue, error) {
	req := requiredFields{
		Title:     textValue(fields, models.FieldTitle),
		Text:      textValue(fields, models.FieldText),
		CreatedBy: textValue(fields, models.FieldCreatedBy),
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, ErrRequiredFields
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := models.NewTimestamp(s.now())
	issue := &models.Issue{
		ID:         s.newID(),
		Title:      req.Title,
		Text:       req.Text,
		CreatedBy:  req.CreatedBy,
		AssignedTo: textValue(fields, models.FieldAssignedTo),
		StatusText: textValue(fields, models.FieldStatusText),
		Open:       createOpen(fields),
		CreatedOn:  now,
		UpdatedOn:  now,
	}

	p, ok := s.projects[projectName]
	if !ok {
		p = &project{}
		s.projects[projectName] = p
	}
	p.issues = append(p.issues, issue)
	s.ids.Add(issue.ID)

	return cloneIssue(issue), nil
}

func (s *MemoryStore) ListIssues(_ context.Context, projectName string, filters Filters) ([]*models.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[projectName]
	if !ok {
		return []*models.Issue{}, nil
	}

	matched := lo.Filter(p.issues, func(issue *models.Issue, _ int) bool {
		return matches(issue, filters)
	})
	return lo.Map(matched, func(issue *models.Issue, _ int) *models.Issue {
		return cloneIssue(issue)
	}), nil
}

// matches applies every filter to the issue. Empty filter values impose no
// constraint, except for "open" which is evaluated whenever the key exists.
func matches(issue *models.Issue, filters Filters) bool {
	if v := filters[models.FieldID]; v != "" && v != issue.ID {
		return false
	}

	text := []struct {
		key   string
		value string
	}{
		{models.FieldTitle, issue.Title},
		{models.FieldText, issue.Text},
		{models.FieldCreatedBy, issue.CreatedBy},
		{models.FieldAssignedTo, issue.AssignedTo},
		{models.FieldStatusText, issue.StatusText},
	}
	for _, f := range text {
		if v := filters[f.key]; v != "" && !sameText(v, f.value) {
			return false
		}
	}

	if v := filters[models.FieldCreatedOn]; v != "" && !sameInstant(v, issue.CreatedOn.UnixMilli()) {
		return false
	}
	if v := filters[models.FieldUpdatedOn]; v != "" && !sameInstant(v, issue.UpdatedOn.UnixMilli()) {
		return false
	}

	if v, ok := filters[models.FieldOpen]; ok && filterOpen(v) != issue.Open {
		return false
	}
	return true
}

func (s *MemoryStore) UpdateIssue(_ context.Context, projectName, id string, fields Fields) error {
	if id == "" {
		return ErrMissingID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	issue, _, ok := s.find(projectName, id)
	if !ok {
		return &NotFoundError{Action: "update"}
	}

	updated := 0
	text := []struct {
		key    string
		target *string
	}{
		{models.FieldTitle, &issue.Title},
		{models.FieldText, &issue.Text},
		{models.FieldCreatedBy, &issue.CreatedBy},
		{models.FieldAssignedTo, &issue.AssignedTo},
		{models.FieldStatusText, &issue.StatusText},
	}
	for _, f := range text {
		if v := textValue(fields, f.key); v != "" {
			*f.target = v
			updated++
		}
	}

	if v, ok := fields[models.FieldOpen]; ok {
		issue.Open = updateOpen(v)
		updated++
	}

	if updated == 0 {
		return ErrNoUpdateFields
	}
	issue.UpdatedOn = models.NewTimestamp(s.now())
	return nil
}

func (s *MemoryStore) DeleteIssue(_ context.Context, projectName, id string) error {
	if id == "" {
		return ErrMissingID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, idx, ok := s.find(projectName, id)
	if !ok {
		return &NotFoundError{Action: "delete"}
	}

	p := s.projects[projectName]
	p.issues = slices.Delete(p.issues, idx, idx+1)
	s.ids.Remove(id)
	return nil
}

func (s *MemoryStore) ListProjects(_ context.Context) ([]models.ProjectSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ProjectSummary, 0, len(s.projects))
	for name, p := range s.projects {
		out = append(out, models.ProjectSummary{
			Name:       name,
			IssueCount: len(p.issues),
			OpenCount: lo.CountBy(p.issues, func(issue *models.Issue) bool {
				return issue.Open
			}),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// find scans the project for the issue with the given id.
func (s *MemoryStore) find(projectName, id string) (*models.Issue, int, bool) {
	p, ok := s.projects[projectName]
	if !ok {
		return nil, -1, false
	}
	return lo.FindIndexOf(p.issues, func(issue *models.Issue) bool {
		return issue.ID == id
	})
}

func cloneIssue(issue *models.Issue) *models.Issue {
	cp := *issue
	return &cp
}
