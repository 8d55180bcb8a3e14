// Package ledger owns the point fields of a user: credit, rating points and
// the derived totals used for ranking.
//
// Rating points accrue only through SettleCompletion, the completion branch
// of a task review. RecordRating, the standalone peer-rating path, stores the
// qualitative entry and refreshes derived fields but never touches points.
package ledger

import (
	"campusskill/backend/internal/apperror"
	"campusskill/backend/internal/config"
	"campusskill/backend/internal/logger"
	"campusskill/backend/internal/models"
	"campusskill/backend/internal/storage"
	"context"
	"fmt"

	"go.uber.org/zap"
)

type Ledger struct {
	store storage.Storage
	log   *zap.Logger
}

func New(store storage.Storage, log *zap.Logger) *Ledger {
	return &Ledger{store: store, log: logger.OrNop(log)}
}

// With returns a copy of the ledger bound to tx.
func (l *Ledger) With(tx storage.Storage) *Ledger {
	return &Ledger{store: tx, log: l.log}
}

// RatingInput is a single rating left for a user.
type RatingInput struct {
	Rating  int
	Review  string
	RatedBy string
	TaskID  *string
}

// Completion describes what a satisfied review settles on the taker's ledger.
type Completion struct {
	TakerID string
	TaskID  string
	Credit  int
	Rating  *RatingInput
}

// Stats is a user's ledger with its current rank.
type Stats struct {
	CreditPoints   int     `json:"creditPoints"`
	RatingPoints   int     `json:"ratingPoints"`
	TotalPoints    int     `json:"totalPoints"`
	TasksCompleted int     `json:"tasksCompleted"`
	TasksPosted    int     `json:"tasksPosted"`
	AverageRating  float64 `json:"averageRating"`
	TotalRatings   int64   `json:"totalRatings"`
	Rank           int     `json:"rank"`
}

type Standing struct {
	models.User
	Rank int `json:"rank"`
}

// ValidateRating checks the score range without touching the store.
func ValidateRating(rating int) error {
	if rating < config.MinRating || rating > config.MaxRating {
		return &apperror.ValidationError{
			Field:  "rating",
			Reason: fmt.Sprintf("must be between %d and %d", config.MinRating, config.MaxRating),
		}
	}
	return nil
}

// AwardCompletionCredit adds points to the user's credit.
func (l *Ledger) AwardCompletionCredit(ctx context.Context, userID string, points int) error {
	if points < 0 {
		return &apperror.ValidationError{Field: "creditPoints", Reason: "cannot be negative"}
	}
	if points == 0 {
		return nil
	}
	if err := l.store.ApplyUserDelta(ctx, userID, storage.UserDelta{CreditPoints: points}); err != nil {
		return err
	}
	return l.Recompute(ctx, userID)
}

// RecordRating is the standalone rating path. It appends the entry and
// recomputes derived fields; no points are credited.
func (l *Ledger) RecordRating(ctx context.Context, userID string, in RatingInput) (*models.Rating, error) {
	var rating *models.Rating
	err := l.store.Transaction(ctx, func(tx storage.Storage) error {
		lt := l.With(tx)
		r, err := lt.recordRating(ctx, userID, in)
		if err != nil {
			return err
		}
		rating = r
		return lt.Recompute(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return rating, nil
}

// SettleCompletion credits the taker of a completed task with the credit
// points and the completed-task counter. A rating carried by the review is
// stored as an entry only; ratingPoints is left untouched.
func (l *Ledger) SettleCompletion(ctx context.Context, c Completion) error {
	return l.store.Transaction(ctx, func(tx storage.Storage) error {
		lt := l.With(tx)
		if err := lt.AwardCompletionCredit(ctx, c.TakerID, c.Credit); err != nil {
			return err
		}
		if c.Rating != nil {
			if _, err := lt.recordRating(ctx, c.TakerID, *c.Rating); err != nil {
				return err
			}
		}
		if err := tx.ApplyUserDelta(ctx, c.TakerID, storage.UserDelta{TasksCompleted: 1}); err != nil {
			return err
		}
		if err := lt.Recompute(ctx, c.TakerID); err != nil {
			return err
		}
		l.log.Info("completion settled",
			zap.String("task_id", c.TaskID),
			zap.String("taker_id", c.TakerID),
			zap.Int("credit", c.Credit),
			zap.Bool("rated", c.Rating != nil),
		)
		return nil
	})
}

// AdjustTasksPosted moves the poster's tasksPosted counter by delta.
func (l *Ledger) AdjustTasksPosted(ctx context.Context, userID string, delta int) error {
	return l.store.ApplyUserDelta(ctx, userID, storage.UserDelta{TasksPosted: delta})
}

// Recompute refreshes averageRating and totalPoints from stored values.
func (l *Ledger) Recompute(ctx context.Context, userID string) error {
	return l.store.RecomputeUser(ctx, userID)
}

// Rank is one plus the number of users with strictly more total points.
func (l *Ledger) Rank(ctx context.Context, userID string) (int, error) {
	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	above, err := l.store.CountUsersAbove(ctx, user.TotalPoints)
	if err != nil {
		return 0, err
	}
	return int(above) + 1, nil
}

func (l *Ledger) Stats(ctx context.Context, userID string) (*Stats, error) {
	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	above, err := l.store.CountUsersAbove(ctx, user.TotalPoints)
	if err != nil {
		return nil, err
	}
	ratings, err := l.store.CountRatings(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Stats{
		CreditPoints:   user.CreditPoints,
		RatingPoints:   user.RatingPoints,
		TotalPoints:    user.TotalPoints,
		TasksCompleted: user.TasksCompleted,
		TasksPosted:    user.TasksPosted,
		AverageRating:  user.AverageRating,
		TotalRatings:   ratings,
		Rank:           int(above) + 1,
	}, nil
}

// Leaderboard returns the top users. Users with equal totals share a rank.
func (l *Ledger) Leaderboard(ctx context.Context, limit int) ([]Standing, error) {
	if limit <= 0 {
		limit = 10
	}
	users, err := l.store.ListUsersByPoints(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Standing, len(users))
	for i, u := range users {
		rank := i + 1
		if i > 0 && u.TotalPoints == users[i-1].TotalPoints {
			rank = out[i-1].Rank
		}
		out[i] = Standing{User: u, Rank: rank}
	}
	return out, nil
}

func (l *Ledger) recordRating(ctx context.Context, userID string, in RatingInput) (*models.Rating, error) {
	if err := ValidateRating(in.Rating); err != nil {
		return nil, err
	}
	if in.RatedBy == userID {
		return nil, &apperror.ForbiddenError{Action: "rate user", Reason: "cannot rate yourself"}
	}
	if _, err := l.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	if in.TaskID != nil {
		exists, err := l.store.RatingExists(ctx, in.RatedBy, *in.TaskID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, &apperror.DuplicateRatingError{RatedBy: in.RatedBy, TaskID: *in.TaskID}
		}
	}

	r := &models.Rating{
		UserID:  userID,
		Rating:  in.Rating,
		Review:  in.Review,
		RatedBy: in.RatedBy,
		TaskID:  in.TaskID,
	}
	if err := l.store.CreateRating(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

