package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// ChatRoom is the channel between a task's poster and its current taker.
// Participants are fixed at creation, and a room that became inactive is
// never reactivated.
type ChatRoom struct {
	// RoomID is the unique identifier for the chat room (UUID).
	RoomID string `gorm:"primaryKey" json:"id"`
	// TaskID is the task this room was opened for.
	TaskID string `gorm:"not null;index" json:"task"`
	// PosterID is the task poster.
	PosterID string `gorm:"not null;index" json:"posterId"`
	// TakerID is the taker of the assignment the room belongs to.
	TakerID string `gorm:"not null;index" json:"takerId"`
	// IsActive indicates whether messages may still be appended.
	IsActive bool `gorm:"not null;index" json:"isActive"`
	// LastMessage is a denormalized summary for room listings.
	LastMessage LastMessage `gorm:"embedded;embeddedPrefix:last_message_" json:"lastMessage"`
	// StartedAt is the timestamp when the chat room was created.
	StartedAt time.Time `json:"createdAt"`
	// EndedAt is set when the room is deactivated.
	EndedAt *time.Time `json:"endedAt,omitempty"`

	Messages []Message `gorm:"foreignKey:RoomID;references:RoomID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

type LastMessage struct {
	Content   string     `gorm:"type:text" json:"content"`
	Sender    string     `json:"sender"`
	Timestamp *time.Time `json:"timestamp"`
}

// Participants returns the two member ids, poster first.
func (r *ChatRoom) Participants() []string {
	return []string{r.PosterID, r.TakerID}
}

// HasParticipant reports whether userID is one of the two members.
func (r *ChatRoom) HasParticipant(userID string) bool {
	return userID != "" && (r.PosterID == userID || r.TakerID == userID)
}

func (r *ChatRoom) BeforeCreate(tx *gorm.DB) (err error) {
	if r.RoomID == "" {
		r.RoomID = uuid.New().String()
	}
	return
}

// MessageType distinguishes participant messages from engine narration.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageSystem MessageType = "system"
	MessageFile   MessageType = "file"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageSystem, MessageFile:
		return true
	}
	return false
}

// Message is one entry of a room's append-only history.
type Message struct {
	ID          string         `gorm:"primaryKey" json:"id"`
	RoomID      string         `gorm:"not null;index:idx_room_msg" json:"roomId"`
	Sender      string         `gorm:"not null" json:"sender"`
	Content     string         `gorm:"type:text;not null" json:"content"`
	MessageType MessageType    `gorm:"type:text;not null" json:"messageType"`
	ReadBy      pq.StringArray `gorm:"type:text[]" json:"readBy"`
	File        *FileRef       `gorm:"embedded;embeddedPrefix:file_" json:"file,omitempty"`
	CreatedAt   time.Time      `gorm:"index:idx_room_msg" json:"createdAt"`
}

type FileRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
}

// IsReadBy reports whether userID already appears in ReadBy.
func (m *Message) IsReadBy(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return
}
