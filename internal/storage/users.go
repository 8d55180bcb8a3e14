package storage

import (
	"campusskill/backend/internal/apperror"
	"campusskill/backend/internal/models"
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// UserDelta is a set of counter increments applied atomically to a user row.
type UserDelta struct {
	CreditPoints   int
	RatingPoints   int
	TasksCompleted int
	TasksPosted    int
}

func (d UserDelta) assignments() map[string]any {
	out := make(map[string]any)
	add := func(column string, v int) {
		if v != 0 {
			out[column] = gorm.Expr(column+" + ?", v)
		}
	}
	add("credit_points", d.CreditPoints)
	add("rating_points", d.RatingPoints)
	add("tasks_completed", d.TasksCompleted)
	add("tasks_posted", d.TasksPosted)
	return out
}

func (s *Service) CreateUser(ctx context.Context, user *models.User) error {
	if err := s.db(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return &apperror.ValidationError{Field: "email", Reason: "already registered"}
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Service) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperror.NotFoundError{Entity: "user", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return &user, nil
}

// ListUsersByPoints returns the top users ordered by total points.
func (s *Service) ListUsersByPoints(ctx context.Context, limit int) ([]models.User, error) {
	var users []models.User
	err := s.db(ctx).
		Order("total_points DESC").
		Order("created_at ASC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("list users by points: %w", err)
	}
	return users, nil
}

func (s *Service) CountUsersAbove(ctx context.Context, totalPoints int) (int64, error) {
	var n int64
	err := s.db(ctx).Model(&models.User{}).Where("total_points > ?", totalPoints).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count users above %d: %w", totalPoints, err)
	}
	return n, nil
}

// ApplyUserDelta increments counters in SQL so concurrent writers never lose updates.
func (s *Service) ApplyUserDelta(ctx context.Context, userID string, d UserDelta) error {
	updates := d.assignments()
	if len(updates) == 0 {
		return nil
	}
	res := s.db(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("apply user delta %s: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return &apperror.NotFoundError{Entity: "user", ID: userID}
	}
	return nil
}

// RecomputeUser derives total_points and average_rating from the current
// column values and rating rows.
func (s *Service) RecomputeUser(ctx context.Context, userID string) error {
	db := s.db(ctx)
	avg := db.Model(&models.Rating{}).
		Select("COALESCE(ROUND(AVG(rating), 1), 0)").
		Where("user_id = ?", userID)

	res := db.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]any{
		"total_points":   gorm.Expr("credit_points + rating_points"),
		"average_rating": avg,
	})
	if res.Error != nil {
		return fmt.Errorf("recompute user %s: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return &apperror.NotFoundError{Entity: "user", ID: userID}
	}
	return nil
}

func (s *Service) SetTelegramChatID(ctx context.Context, userID string, chatID *int64) error {
	res := s.db(ctx).Model(&models.User{}).Where("id = ?", userID).Update("telegram_chat_id", chatID)
	if res.Error != nil {
		return fmt.Errorf("set telegram chat %s: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return &apperror.NotFoundError{Entity: "user", ID: userID}
	}
	return nil
}

func (s *Service) CreateRating(ctx context.Context, rating *models.Rating) error {
	if err := s.db(ctx).Create(rating).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) && rating.TaskID != nil {
			return &apperror.DuplicateRatingError{RatedBy: rating.RatedBy, TaskID: *rating.TaskID}
		}
		return fmt.Errorf("create rating: %w", err)
	}
	return nil
}

func (s *Service) RatingExists(ctx context.Context, ratedBy, taskID string) (bool, error) {
	var n int64
	err := s.db(ctx).Model(&models.Rating{}).
		Where("rated_by = ? AND task_id = ?", ratedBy, taskID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("rating exists: %w", err)
	}
	return n > 0, nil
}

func (s *Service) CountRatings(ctx context.Context, userID string) (int64, error) {
	var n int64
	if err := s.db(ctx).Model(&models.Rating{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count ratings: %w", err)
	}
	return n, nil
}
