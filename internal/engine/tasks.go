package engine

import (
	"campusskill/backend/internal/apperror"
	"campusskill/backend/internal/auth"
	"campusskill/backend/internal/config"
	"campusskill/backend/internal/ledger"
	"campusskill/backend/internal/models"
	"campusskill/backend/internal/storage"
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// CreateInput are the poster-supplied fields of a new task.
type CreateInput struct {
	Title       string
	Description string
	Skills      []string
	Deadline    time.Time
	// CreditPoints is honored only for roles that grant credit; nil means the default.
	CreditPoints *int
}

type SubmitInput struct {
	Content string
	Files   []models.SubmissionFile
}

type ReviewInput struct {
	Satisfied bool
	Feedback  string
	// Rating is an optional 1-5 score for the taker, counted only on a satisfied review.
	Rating *int
}

func (e *Engine) Create(ctx context.Context, id auth.Identity, in CreateInput) (*models.Task, error) {
	task, err := e.newTask(id, in)
	if err != nil {
		return nil, err
	}

	err = e.Store.Transaction(ctx, func(tx storage.Storage) error {
		if err := tx.CreateTask(ctx, task); err != nil {
			return err
		}
		return e.Ledger.With(tx).AdjustTasksPosted(ctx, id.UserID, 1)
	})
	if err != nil {
		return nil, err
	}

	e.Log.Info("task created",
		zap.String("task_id", task.ID),
		zap.String("poster_id", id.UserID),
		zap.Int("credit", task.CreditPoints),
	)
	return task, nil
}

func (e *Engine) newTask(id auth.Identity, in CreateInput) (*models.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" || utf8.RuneCountInString(title) > config.MaxTitleLength {
		return nil, &apperror.ValidationError{Field: "title", Reason: fmt.Sprintf("must be 1-%d characters", config.MaxTitleLength)}
	}
	description := strings.TrimSpace(in.Description)
	if description == "" || utf8.RuneCountInString(description) > config.MaxDescriptionLength {
		return nil, &apperror.ValidationError{Field: "description", Reason: fmt.Sprintf("must be 1-%d characters", config.MaxDescriptionLength)}
	}
	skills := make(pq.StringArray, 0, len(in.Skills))
	for _, s := range in.Skills {
		if s = strings.TrimSpace(s); s != "" {
			skills = append(skills, s)
		}
	}
	if len(skills) == 0 {
		return nil, &apperror.ValidationError{Field: "skills", Reason: "at least one skill is required"}
	}
	if in.Deadline.IsZero() {
		return nil, &apperror.ValidationError{Field: "deadline", Reason: "is required"}
	}
	if !in.Deadline.After(e.now()) {
		return nil, &apperror.ValidationError{Field: "deadline", Reason: "must be in the future"}
	}

	credit := 0
	if id.Role.GrantsCredit() {
		credit = config.DefaultGrantorCredit
		if in.CreditPoints != nil {
			credit = *in.CreditPoints
		}
		if credit < 0 {
			return nil, &apperror.ValidationError{Field: "creditPoints", Reason: "cannot be negative"}
		}
	}

	return &models.Task{
		Title:        title,
		Description:  description,
		Skills:       skills,
		CreditPoints: credit,
		Deadline:     in.Deadline,
		Status:       models.TaskOpen,
		PostedBy:     id.UserID,
		PosterRole:   id.Role,
	}, nil
}

// Take assigns the task to the caller and opens the assignment's chat room.
func (e *Engine) Take(ctx context.Context, id auth.Identity, taskID string) (*models.Task, error) {
	var (
		task  *models.Task
		taker *models.User
	)
	err := e.Store.Transaction(ctx, func(tx storage.Storage) error {
		t, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if err := ensureTransition(t, models.TaskInProgress, "take"); err != nil {
			return err
		}
		if t.PostedBy == id.UserID {
			return &apperror.ForbiddenError{Action: "take task", Reason: "cannot take your own task"}
		}
		if t.WasAssigned(id.UserID) {
			return &apperror.AlreadyAssignedError{UserID: id.UserID, TaskID: t.ID}
		}

		taker, err = tx.GetUser(ctx, id.UserID)
		if err != nil {
			return err
		}

		err = tx.UpdateTaskIf(ctx, t.ID, t.Status, map[string]any{
			"status":   models.TaskInProgress,
			"taken_by": id.UserID,
		})
		if err != nil {
			return err
		}

		room, err := e.Chat.With(tx).CreateForTask(ctx, t.ID, t.PostedBy, id.UserID, id.UserID,
			e.text("system.task_taken", taker.Name))
		if err != nil {
			return err
		}
		if err := tx.UpdateTaskIf(ctx, t.ID, models.TaskInProgress, map[string]any{"chat_room_id": room.RoomID}); err != nil {
			return err
		}

		task, err = tx.GetTask(ctx, t.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.Log.Info("task taken", zap.String("task_id", task.ID), zap.String("taker_id", id.UserID))
	e.notifier().NotifyUser(ctx, task.PostedBy, models.Notification{
		Type:    models.NotifyTaskTaken,
		Message: e.text("notify.task_taken", taker.Name, task.Title),
		TaskID:  task.ID,
	})
	return task, nil
}

// Submit hands the taker's work to the poster for review.
func (e *Engine) Submit(ctx context.Context, id auth.Identity, taskID string, in SubmitInput) (*models.Task, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" || utf8.RuneCountInString(content) > config.MaxDescriptionLength {
		return nil, &apperror.ValidationError{Field: "content", Reason: fmt.Sprintf("must be 1-%d characters", config.MaxDescriptionLength)}
	}

	var (
		task *models.Task
		note *models.Message
	)
	err := e.Store.Transaction(ctx, func(tx storage.Storage) error {
		t, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if !t.IsTakenBy(id.UserID) {
			return &apperror.ForbiddenError{Action: "submit task", Reason: "you are not assigned to this task"}
		}
		if err := ensureTransition(t, models.TaskSubmitted, "submit"); err != nil {
			return err
		}

		now := e.now()
		err = tx.UpdateTaskIf(ctx, t.ID, t.Status, map[string]any{
			"status":                  models.TaskSubmitted,
			"submission_content":      content,
			"submission_submitted_at": &now,
			"submission_files":        datatypes.JSONSlice[models.SubmissionFile](in.Files),
		})
		if err != nil {
			return err
		}

		if t.ChatRoomID != nil {
			note, err = e.Chat.With(tx).AppendSystem(ctx, *t.ChatRoomID, id.UserID, e.text("system.task_submitted"))
			if err != nil {
				return err
			}
		}

		task, err = tx.GetTask(ctx, t.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.Log.Info("task submitted", zap.String("task_id", task.ID))
	e.relay(ctx, note)
	e.notifier().NotifyUser(ctx, task.PostedBy, models.Notification{
		Type:    models.NotifyTaskSubmitted,
		Message: e.text("notify.task_submitted", task.Title),
		TaskID:  task.ID,
	})
	return task, nil
}

// Review records the poster's verdict. A satisfied review completes the task
// and settles the taker's ledger; an unsatisfied one leaves it submitted.
func (e *Engine) Review(ctx context.Context, id auth.Identity, taskID string, in ReviewInput) (*models.Task, error) {
	if in.Rating != nil {
		if err := ledger.ValidateRating(*in.Rating); err != nil {
			return nil, err
		}
	}

	var (
		task    *models.Task
		credit  int
		closing *models.Message
	)
	err := e.Store.Transaction(ctx, func(tx storage.Storage) error {
		t, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if t.PostedBy != id.UserID {
			return &apperror.ForbiddenError{Action: "review task", Reason: "only the task poster can review submissions"}
		}
		if t.Status != models.TaskSubmitted {
			return &apperror.InvalidStateError{Entity: "task", ID: t.ID, Status: string(t.Status), Action: "review"}
		}

		now := e.now()
		satisfied := in.Satisfied
		updates := map[string]any{
			"review_satisfied":   &satisfied,
			"review_feedback":    strings.TrimSpace(in.Feedback),
			"review_reviewed_at": &now,
		}
		if in.Satisfied {
			if err := ensureTransition(t, models.TaskCompleted, "complete"); err != nil {
				return err
			}
			updates["status"] = models.TaskCompleted
		}
		if err := tx.UpdateTaskIf(ctx, t.ID, t.Status, updates); err != nil {
			return err
		}

		if in.Satisfied {
			if t.TakenBy == nil {
				return &apperror.InvalidStateError{Entity: "task", ID: t.ID, Status: "unassigned", Action: "complete"}
			}
			if t.PosterRole.GrantsCredit() {
				credit = t.CreditPoints
			}
			completion := ledger.Completion{TakerID: *t.TakenBy, TaskID: t.ID, Credit: credit}
			if in.Rating != nil {
				taskRef := t.ID
				completion.Rating = &ledger.RatingInput{
					Rating:  *in.Rating,
					Review:  strings.TrimSpace(in.Feedback),
					RatedBy: id.UserID,
					TaskID:  &taskRef,
				}
			}
			if err := e.Ledger.With(tx).SettleCompletion(ctx, completion); err != nil {
				return err
			}

			if t.ChatRoomID != nil {
				text := e.text("system.task_completed")
				if t.PosterRole.GrantsCredit() {
					text = e.text("system.task_completed_credits", credit)
				}
				closing, err = e.Chat.With(tx).Deactivate(ctx, *t.ChatRoomID, id.UserID, text)
				if err != nil {
					return err
				}
			}
		}

		task, err = tx.GetTask(ctx, t.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if !in.Satisfied {
		e.Log.Info("task reviewed, not satisfied", zap.String("task_id", task.ID))
		return task, nil
	}

	e.Log.Info("task completed", zap.String("task_id", task.ID), zap.Int("credit", credit))
	e.relay(ctx, closing)
	if task.TakenBy != nil {
		msg := e.text("notify.task_completed", task.Title)
		if task.PosterRole.GrantsCredit() {
			msg = e.text("notify.task_completed_credits", task.Title, credit)
		}
		awarded := credit
		e.notifier().NotifyUser(ctx, *task.TakenBy, models.Notification{
			Type:    models.NotifyTaskCompleted,
			Message: msg,
			TaskID:  task.ID,
			Credits: &awarded,
		})
	}
	return task, nil
}

// Reassign removes the current taker, records them in the task's history and
// closes the assignment's chat room.
func (e *Engine) Reassign(ctx context.Context, id auth.Identity, taskID, reason string) (*models.Task, error) {
	reason = strings.TrimSpace(reason)

	var (
		task    *models.Task
		closing *models.Message
	)
	err := e.Store.Transaction(ctx, func(tx storage.Storage) error {
		t, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if t.PostedBy != id.UserID {
			return &apperror.ForbiddenError{Action: "reassign task", Reason: "only the task poster can reassign tasks"}
		}
		if err := ensureTransition(t, models.TaskReassigned, "reassign"); err != nil {
			return err
		}
		if t.TakenBy == nil {
			return &apperror.InvalidStateError{Entity: "task", ID: t.ID, Status: "unassigned", Action: "reassign"}
		}

		stored := reason
		if stored == "" {
			stored = e.text("reassign.default_reason")
		}
		err = tx.AddPreviousAssignee(ctx, &models.PreviousAssignee{
			TaskID: t.ID,
			UserID: *t.TakenBy,
			Reason: stored,
			Date:   e.now(),
		})
		if err != nil {
			return err
		}

		err = tx.UpdateTaskIf(ctx, t.ID, t.Status, map[string]any{
			"status":                  models.TaskReassigned,
			"taken_by":                nil,
			"submission_content":      "",
			"submission_submitted_at": nil,
			"submission_files":        datatypes.JSONSlice[models.SubmissionFile](nil),
			"review_satisfied":        nil,
			"review_feedback":         "",
			"review_reviewed_at":      nil,
			"chat_room_id":            nil,
			"reassign_count":          storage.Increment("reassign_count", 1),
		})
		if err != nil {
			return err
		}

		if t.ChatRoomID != nil {
			shown := reason
			if shown == "" {
				shown = e.text("system.reason_unspecified")
			}
			closing, err = e.Chat.With(tx).Deactivate(ctx, *t.ChatRoomID, id.UserID, e.text("system.task_reassigned", shown))
			if err != nil {
				return err
			}
		}

		task, err = tx.GetTask(ctx, t.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.Log.Info("task reassigned", zap.String("task_id", task.ID), zap.Int("reassign_count", task.ReassignCount))
	e.relay(ctx, closing)
	return task, nil
}

// Delete removes an open task. Tasks with any history are kept.
func (e *Engine) Delete(ctx context.Context, id auth.Identity, taskID string) error {
	err := e.Store.Transaction(ctx, func(tx storage.Storage) error {
		t, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if t.PostedBy != id.UserID {
			return &apperror.ForbiddenError{Action: "delete task", Reason: "only the task poster can delete it"}
		}
		if t.Status != models.TaskOpen {
			return &apperror.InvalidStateError{Entity: "task", ID: t.ID, Status: string(t.Status), Action: "delete"}
		}
		if err := tx.DeleteTaskIf(ctx, t.ID, models.TaskOpen); err != nil {
			return err
		}
		return e.Ledger.With(tx).AdjustTasksPosted(ctx, t.PostedBy, -1)
	})
	if err != nil {
		return err
	}
	e.Log.Info("task deleted", zap.String("task_id", taskID))
	return nil
}

func (e *Engine) Get(ctx context.Context, taskID string) (*models.Task, error) {
	return e.Store.GetTask(ctx, taskID)
}

func (e *Engine) List(ctx context.Context, f storage.TaskFilter) ([]models.Task, int64, error) {
	return e.Store.ListTasks(ctx, f)
}

// ListForUser returns the tasks a user posted, took, or both.
func (e *Engine) ListForUser(ctx context.Context, userID string, rel storage.TaskRelation) ([]models.Task, error) {
	return e.Store.ListTasksForUser(ctx, userID, rel)
}

func (e *Engine) MyTasks(ctx context.Context, id auth.Identity, rel storage.TaskRelation) ([]models.Task, error) {
	return e.Store.ListTasksForUser(ctx, id.UserID, rel)
}
