package store

import "errors"

var (
	// ErrRequiredFields is returned by AddIssue when issue_title, issue_text
	// or created_by is empty.
	ErrRequiredFields = errors.New("required field(s) missing")

	// ErrMissingID is returned by UpdateIssue and DeleteIssue for an empty id.
	ErrMissingID = errors.New("missing _id")

	// ErrNoUpdateFields is returned by UpdateIssue when no field was changed.
	ErrNoUpdateFields = errors.New("no update field(s) sent")

	// ErrNotFound matches any NotFoundError via errors.Is.
	ErrNotFound = errors.New("not found")
)

// NotFoundError reports a missing project or issue for the named action.
type NotFoundError struct {
	Action string // "update" or "delete"
}

func (e *NotFoundError) Error() string {
	return "could not " + e.Action
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
