package storage

import (
	"campusskill/backend/internal/apperror"
	"campusskill/backend/internal/models"
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// TaskFilter narrows ListTasks. Zero values mean "no filter".
type TaskFilter struct {
	Status     models.TaskStatus
	PosterRole models.Role
	Skill      string
	Search     string
	Page       int
	Limit      int
}

// TaskRelation selects which side of a task a user is on.
type TaskRelation string

const (
	RelationPosted TaskRelation = "posted"
	RelationTaken  TaskRelation = "taken"
	RelationAny    TaskRelation = ""
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *Service) CreateTask(ctx context.Context, task *models.Task) error {
	if err := s.db(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (s *Service) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	err := s.db(ctx).
		Preload("PreviousAssignees", func(db *gorm.DB) *gorm.DB { return db.Order("date ASC, id ASC") }).
		Where("id = ?", id).
		First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperror.NotFoundError{Entity: "task", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return &task, nil
}

func (s *Service) ListTasks(ctx context.Context, f TaskFilter) ([]models.Task, int64, error) {
	q := s.db(ctx).Model(&models.Task{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.PosterRole != "" {
		q = q.Where("poster_role = ?", f.PosterRole)
	}
	if f.Skill != "" {
		if s.DB.Dialector.Name() == "postgres" {
			q = q.Where("? = ANY(skills)", f.Skill)
		} else {
			// Arrays are stored as their text literal outside postgres.
			q = q.Where(`skills LIKE ? ESCAPE '\'`, "%"+likeEscaper.Replace(f.Skill)+"%")
		}
	}
	if f.Search != "" {
		pattern := "%" + strings.ToLower(likeEscaper.Replace(f.Search)) + "%"
		q = q.Where(`(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\')`, pattern, pattern)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}

	var tasks []models.Task
	err := q.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, total, nil
}

func (s *Service) ListTasksForUser(ctx context.Context, userID string, rel TaskRelation) ([]models.Task, error) {
	q := s.db(ctx).Model(&models.Task{})
	switch rel {
	case RelationPosted:
		q = q.Where("posted_by = ?", userID)
	case RelationTaken:
		q = q.Where("taken_by = ?", userID)
	default:
		q = q.Where("(posted_by = ? OR taken_by = ?)", userID, userID)
	}

	var tasks []models.Task
	if err := q.Order("created_at DESC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks for user %s: %w", userID, err)
	}
	return tasks, nil
}

// UpdateTaskIf applies updates only while the task still has the expected
// status. A zero-row update on an existing task is a lost race.
func (s *Service) UpdateTaskIf(ctx context.Context, id string, expected models.TaskStatus, updates map[string]any) error {
	res := s.db(ctx).Model(&models.Task{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update task %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return s.missOrConflict(ctx, id)
	}
	return nil
}

func (s *Service) DeleteTaskIf(ctx context.Context, id string, expected models.TaskStatus) error {
	res := s.db(ctx).Where("id = ? AND status = ?", id, expected).Delete(&models.Task{})
	if res.Error != nil {
		return fmt.Errorf("delete task %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return s.missOrConflict(ctx, id)
	}
	return nil
}

func (s *Service) missOrConflict(ctx context.Context, id string) error {
	var n int64
	if err := s.db(ctx).Model(&models.Task{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("check task %s: %w", id, err)
	}
	if n == 0 {
		return &apperror.NotFoundError{Entity: "task", ID: id}
	}
	return &apperror.ConflictError{Entity: "task", ID: id}
}

func (s *Service) AddPreviousAssignee(ctx context.Context, p *models.PreviousAssignee) error {
	if err := s.db(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("add previous assignee: %w", err)
	}
	return nil
}

// Increment is an update value that adds n to column in SQL, for use in the
// updates map of UpdateTaskIf.
func Increment(column string, n int) any {
	return gorm.Expr(column+" + ?", n)
}
