package lifecycle

import (
	"errors"
	"fmt"

	"github.com/ascentxr/opsdeck/pkg/cerr"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrUnmappedStatus    = errors.New("unmapped status")
)

// InvalidTransitionError reports a command attempted from a state that
// forbids it. Action names the command, e.g. "advance" or "move to done".
type InvalidTransitionError struct {
	Resource string
	ID       string
	From     string
	Action   string
}

func NewInvalidTransition(resource, id string, from fmt.Stringer, action string) *InvalidTransitionError {
	return &InvalidTransitionError{Resource: resource, ID: id, From: from.String(), Action: action}
}

func (e *InvalidTransitionError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("cannot %s: %s is in status %q", e.Action, e.Resource, e.From)
	}
	return fmt.Sprintf("cannot %s: %s %s is in status %q", e.Action, e.Resource, e.ID, e.From)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// UnmappedStatusError reports a status value missing from a mapping table.
// It signals drift between the vocabularies of two components and must
// never be replaced by a default.
type UnmappedStatusError struct {
	Table string
	Value string
}

func (e *UnmappedStatusError) Error() string {
	return fmt.Sprintf("%s: no mapping for status %q", e.Table, e.Value)
}

func (e *UnmappedStatusError) Is(target error) bool {
	return target == ErrUnmappedStatus
}

// APIError attaches the API error code for lifecycle errors and passes every
// other error through unchanged.
func APIError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidTransition):
		return cerr.NewError(cerr.FailedPrecondition, err.Error(), err)
	case errors.Is(err, ErrUnmappedStatus):
		return cerr.NewError(cerr.InvalidArgument, err.Error(), err)
	}
	return err
}
