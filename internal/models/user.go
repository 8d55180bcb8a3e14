package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// User представляє користувача в системі разом з полями леджера.
// TotalPoints та AverageRating є похідними і перераховуються леджером.
type User struct {
	ID     string         `gorm:"primaryKey" json:"id"`
	Name   string         `gorm:"not null" json:"name"`
	Email  string         `gorm:"uniqueIndex;not null" json:"email"`
	Role   Role           `gorm:"type:text;not null" json:"role"`
	Bio    string         `gorm:"type:text" json:"bio"`
	Skills pq.StringArray `gorm:"type:text[]" json:"skills"`

	CreditPoints   int     `gorm:"not null;default:0" json:"creditPoints"`
	RatingPoints   int     `gorm:"not null;default:0" json:"ratingPoints"`
	TotalPoints    int     `gorm:"not null;default:0;index" json:"totalPoints"`
	TasksCompleted int     `gorm:"not null;default:0" json:"tasksCompleted"`
	TasksPosted    int     `gorm:"not null;default:0" json:"tasksPosted"`
	AverageRating  float64 `gorm:"not null;default:0" json:"averageRating"`

	Ratings []Rating `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"ratings,omitempty"`

	// TelegramChatID links the account to a Telegram chat for offline notifications.
	TelegramChatID *int64 `gorm:"index" json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BeforeCreate це хук GORM, який викликається перед створенням запису.
// Він генерує новий UUID для користувача, якщо ID ще не встановлено.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// Rating is a 1-5 score left for UserID by RatedBy, optionally tied to a task.
// The (rated_by, task_id) index keeps at most one task-linked rating per rater.
type Rating struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	UserID    string    `gorm:"not null;index" json:"-"`
	Rating    int       `gorm:"not null" json:"rating"`
	Review    string    `gorm:"type:text" json:"review"`
	RatedBy   string    `gorm:"not null;index:idx_rating_rater_task,unique" json:"ratedBy"`
	TaskID    *string   `gorm:"index:idx_rating_rater_task,unique" json:"taskId"`
	CreatedAt time.Time `json:"createdAt"`
}
