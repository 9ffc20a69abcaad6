package workflow

import (
	"fmt"

	"github.com/divyamsharma184/learnsphere-workflow-api/internal/models"
)

// Actions accepted by the transition engine.
const (
	ActionSubmit   = "submit"
	ActionApprove  = "approve"
	ActionReject   = "reject"
	ActionWithdraw = "withdraw"
	ActionRequest  = "request"
)

// Roles known to the workflow. Resolved by the identity layer, never stored
// on the entities themselves.
const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

// machine maps current state -> action -> next state. A state with no entry
// is terminal.
type machine map[string]map[string]string

var courseMachine = machine{
	models.CourseStateDraft: {
		ActionSubmit: models.CourseStatePendingReview,
	},
	models.CourseStatePendingReview: {
		ActionApprove:  models.CourseStateActive,
		ActionReject:   models.CourseStateRejected,
		ActionWithdraw: models.CourseStateRejected,
	},
}

var enrollmentMachine = machine{
	models.EnrollmentStatePending: {
		ActionApprove: models.EnrollmentStateApproved,
		ActionReject:  models.EnrollmentStateRejected,
	},
}

func (m machine) next(state, action string) (string, bool) {
	edges, ok := m[state]
	if !ok {
		return "", false
	}
	next, ok := edges[action]
	return next, ok
}

// RolePolicy maps an action to the roles allowed to perform it. The zero
// value denies everything; DefaultRolePolicy reflects the platform's role
// model (owners submit and withdraw, students request, admins decide).
type RolePolicy map[string][]string

// DefaultRolePolicy returns the standard authorization table.
func DefaultRolePolicy() RolePolicy {
	return RolePolicy{
		ActionSubmit:   {RoleInstructor},
		ActionWithdraw: {RoleInstructor},
		ActionRequest:  {RoleStudent},
		ActionApprove:  {RoleAdmin},
		ActionReject:   {RoleAdmin},
	}
}

// Allows reports whether the role may perform the action.
func (p RolePolicy) Allows(action, role string) bool {
	for _, allowed := range p[action] {
		if allowed == role {
			return true
		}
	}
	return false
}

// Replay walks an entity's audit trail through its state machine and returns
// the reconstructed final state. The same record sequence always yields the
// same state; a record that does not correspond to a legal edge means the
// log is corrupt.
func Replay(entityType string, records []models.TransitionRecord) (string, error) {
	var m machine
	switch entityType {
	case models.EntityTypeCourse:
		m = courseMachine
	case models.EntityTypeEnrollment:
		m = enrollmentMachine
	default:
		return "", fmt.Errorf("unknown entity type %q", entityType)
	}

	state := ""
	for i, record := range records {
		if i == 0 {
			// Courses begin life in draft with no creation row; enrollments
			// record their creation with an empty from state.
			state = record.FromState
		}
		if record.FromState != state {
			return "", fmt.Errorf("record %d: from state %q does not follow %q", i, record.FromState, state)
		}
		if record.FromState == "" {
			// Creation pseudo-transition (enrollment request).
			state = record.ToState
			continue
		}
		legal := false
		for _, next := range m[record.FromState] {
			if next == record.ToState {
				legal = true
				break
			}
		}
		if !legal {
			return "", fmt.Errorf("record %d: no edge from %q to %q", i, record.FromState, record.ToState)
		}
		state = record.ToState
	}

	return state, nil
}
