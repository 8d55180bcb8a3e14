package engine

import (
	"campusskill/backend/internal/apperror"
	"campusskill/backend/internal/models"
)

// CanTransition reports whether a task may move from one status to another.
func CanTransition(from, to models.TaskStatus) bool {
	switch from {
	case models.TaskOpen:
		return to == models.TaskInProgress
	case models.TaskInProgress:
		return to == models.TaskSubmitted || to == models.TaskReassigned
	case models.TaskSubmitted:
		return to == models.TaskCompleted || to == models.TaskReassigned
	case models.TaskReassigned:
		return to == models.TaskInProgress
	}
	// completed is terminal
	return false
}

func ensureTransition(t *models.Task, to models.TaskStatus, action string) error {
	if CanTransition(t.Status, to) {
		return nil
	}
	return &apperror.InvalidStateError{Entity: "task", ID: t.ID, Status: string(t.Status), Action: action}
}
