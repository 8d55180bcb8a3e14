package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskOpen       TaskStatus = "open"
	TaskInProgress TaskStatus = "in_progress"
	TaskSubmitted  TaskStatus = "submitted"
	TaskCompleted  TaskStatus = "completed"
	TaskReassigned TaskStatus = "reassigned"
)

// Assignable reports whether a task in this status can be taken.
func (s TaskStatus) Assignable() bool {
	return s == TaskOpen || s == TaskReassigned
}

// Task is a unit of work posted by one user and performed by another.
// Status, TakenBy, Submission, Review and PreviousAssignees are written only
// by the lifecycle engine.
type Task struct {
	ID          string         `gorm:"primaryKey" json:"id"`
	Title       string         `gorm:"type:text;not null" json:"title"`
	Description string         `gorm:"type:text;not null" json:"description"`
	Skills      pq.StringArray `gorm:"type:text[]" json:"skills"`
	// CreditPoints is fixed at creation. It is zero unless the poster's role grants credit.
	CreditPoints int        `gorm:"not null;default:0" json:"creditPoints"`
	Deadline     time.Time  `gorm:"not null" json:"deadline"`
	Status       TaskStatus `gorm:"type:text;not null;index:idx_task_status_role" json:"status"`
	PostedBy     string     `gorm:"not null;index" json:"postedBy"`
	PosterRole   Role       `gorm:"type:text;not null;index:idx_task_status_role" json:"posterRole"`
	TakenBy      *string    `gorm:"index" json:"takenBy"`
	Submission   Submission `gorm:"embedded;embeddedPrefix:submission_" json:"submission"`
	Review       Review     `gorm:"embedded;embeddedPrefix:review_" json:"review"`
	// ChatRoomID points at the room of the current assignment. It is cleared on reassignment
	// and kept (pointing at a deactivated room) after completion.
	ChatRoomID        *string            `json:"chatRoom"`
	ReassignCount     int                `gorm:"not null;default:0" json:"reassignCount"`
	PreviousAssignees []PreviousAssignee `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE" json:"previousAssignees"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

// Submission is the taker's delivered work.
type Submission struct {
	Content     string                              `gorm:"type:text" json:"content"`
	SubmittedAt *time.Time                          `json:"submittedAt"`
	Files       datatypes.JSONSlice[SubmissionFile] `json:"files"`
}

type SubmissionFile struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Review is the poster's verdict on a submission. Satisfied is nil until reviewed.
type Review struct {
	Satisfied  *bool      `json:"satisfied"`
	Feedback   string     `gorm:"type:text" json:"feedback"`
	ReviewedAt *time.Time `json:"reviewedAt"`
}

// PreviousAssignee records a taker removed by reassignment. A user listed here
// can never take the same task again.
type PreviousAssignee struct {
	ID     uint      `gorm:"primaryKey" json:"-"`
	TaskID string    `gorm:"not null;index:idx_prev_assignee,unique" json:"-"`
	UserID string    `gorm:"not null;index:idx_prev_assignee,unique" json:"user"`
	Reason string    `gorm:"type:text" json:"reason"`
	Date   time.Time `json:"date"`
}

// WasAssigned reports whether userID is listed in the task's reassignment history.
func (t *Task) WasAssigned(userID string) bool {
	for _, p := range t.PreviousAssignees {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// IsTakenBy reports whether userID is the current taker.
func (t *Task) IsTakenBy(userID string) bool {
	return t.TakenBy != nil && *t.TakenBy == userID
}

func (t *Task) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return
}
