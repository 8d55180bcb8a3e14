// Package chat manages the per-assignment chat rooms between a task's poster
// and its taker.
package chat

import (
	"campusskill/backend/internal/apperror"
	"campusskill/backend/internal/config"
	"campusskill/backend/internal/logger"
	"campusskill/backend/internal/models"
	"campusskill/backend/internal/storage"
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Manager struct {
	store storage.Storage
	log   *zap.Logger
	now   func() time.Time
}

func NewManager(store storage.Storage, log *zap.Logger) *Manager {
	return &Manager{store: store, log: logger.OrNop(log), now: time.Now}
}

// With returns a copy of the manager bound to tx.
func (m *Manager) With(tx storage.Storage) *Manager {
	return &Manager{store: tx, log: m.log, now: m.now}
}

// MessageInput is a participant-authored message.
type MessageInput struct {
	RoomID   string
	SenderID string
	Content  string
	Type     models.MessageType
	File     *models.FileRef
}

// RoomSummary is a room listing entry for one user.
type RoomSummary struct {
	models.ChatRoom
	UnreadCount int `json:"unreadCount"`
}

// CreateForTask opens the room of a new assignment with a single system
// message authored by narratorID.
func (m *Manager) CreateForTask(ctx context.Context, taskID, posterID, takerID, narratorID, opening string) (*models.ChatRoom, error) {
	if posterID == "" || takerID == "" || posterID == takerID {
		return nil, &apperror.ValidationError{Field: "participants", Reason: "a room needs two distinct participants"}
	}

	active, err := m.store.FindActiveRoomForTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, &apperror.InvalidStateError{Entity: "task", ID: taskID, Status: "has an active chat room", Action: "open a chat room for"}
	}

	now := m.now()
	msg := models.Message{
		Sender:      narratorID,
		Content:     opening,
		MessageType: models.MessageSystem,
		ReadBy:      pq.StringArray{narratorID},
		CreatedAt:   now,
	}
	room := &models.ChatRoom{
		TaskID:   taskID,
		PosterID: posterID,
		TakerID:  takerID,
		IsActive: true,
		LastMessage: models.LastMessage{
			Content:   opening,
			Sender:    narratorID,
			Timestamp: &now,
		},
		StartedAt: now,
		Messages:  []models.Message{msg},
	}
	if err := m.store.CreateRoom(ctx, room); err != nil {
		return nil, err
	}

	m.log.Info("chat room opened",
		zap.String("room_id", room.RoomID),
		zap.String("task_id", taskID),
	)
	return room, nil
}

// AppendMessage stores a participant message. System messages are written
// only through AppendSystem.
func (m *Manager) AppendMessage(ctx context.Context, in MessageInput) (*models.Message, error) {
	if in.Type == "" {
		in.Type = models.MessageText
	}
	if in.Type == models.MessageSystem || !in.Type.Valid() {
		return nil, &apperror.ValidationError{Field: "messageType", Reason: "must be text or file"}
	}
	if in.Type == models.MessageFile && (in.File == nil || in.File.URL == "") {
		return nil, &apperror.ValidationError{Field: "file", Reason: "file messages need a file url"}
	}
	if in.Type == models.MessageText {
		in.File = nil
	}
	if err := validateContent(in.Content); err != nil {
		return nil, err
	}

	room, err := m.store.GetRoom(ctx, in.RoomID)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(in.SenderID) {
		return nil, &apperror.ForbiddenError{Action: "send message", Reason: "not a participant of this chat room"}
	}
	if !room.IsActive {
		return nil, inactive(room.RoomID, "send message to")
	}

	msg := &models.Message{
		RoomID:      room.RoomID,
		Sender:      in.SenderID,
		Content:     strings.TrimSpace(in.Content),
		MessageType: in.Type,
		ReadBy:      pq.StringArray{in.SenderID},
		File:        in.File,
		CreatedAt:   m.now(),
	}
	err = m.store.Transaction(ctx, func(tx storage.Storage) error {
		return tx.AppendMessage(ctx, msg)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// AppendSystem appends narration to an active room.
func (m *Manager) AppendSystem(ctx context.Context, roomID, narratorID, content string) (*models.Message, error) {
	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsActive {
		return nil, inactive(room.RoomID, "narrate in")
	}
	msg := &models.Message{
		RoomID:      room.RoomID,
		Sender:      narratorID,
		Content:     content,
		MessageType: models.MessageSystem,
		ReadBy:      pq.StringArray{narratorID},
		CreatedAt:   m.now(),
	}
	if err := m.store.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// MarkRead adds userID to readBy of every message in the room. It returns the
// number of messages that changed; repeating the call changes nothing.
func (m *Manager) MarkRead(ctx context.Context, roomID, userID string) (int, error) {
	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		return 0, err
	}
	if !room.HasParticipant(userID) {
		return 0, &apperror.ForbiddenError{Action: "mark messages read", Reason: "not a participant of this chat room"}
	}
	return m.store.MarkRoomRead(ctx, roomID, userID)
}

// Deactivate appends the closing narration (when given) and closes the room
// in one transaction. It returns the closing message, if any.
func (m *Manager) Deactivate(ctx context.Context, roomID, narratorID, closing string) (*models.Message, error) {
	var closingMsg *models.Message
	err := m.store.Transaction(ctx, func(tx storage.Storage) error {
		mt := m.With(tx)
		if closing != "" {
			msg, err := mt.AppendSystem(ctx, roomID, narratorID, closing)
			if err != nil {
				return err
			}
			closingMsg = msg
		}
		return tx.DeactivateRoom(ctx, roomID, m.now())
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("chat room closed", zap.String("room_id", roomID))
	return closingMsg, nil
}

func (m *Manager) IsParticipant(ctx context.Context, roomID, userID string) (bool, error) {
	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		return false, err
	}
	return room.HasParticipant(userID), nil
}

// GetRoom returns the room with its full history to one of its participants.
func (m *Manager) GetRoom(ctx context.Context, roomID, userID string) (*models.ChatRoom, error) {
	room, err := m.store.GetRoomWithMessages(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(userID) {
		return nil, &apperror.ForbiddenError{Action: "view chat room", Reason: "not a participant of this chat room"}
	}
	return room, nil
}

// RoomForTask returns the latest room opened for the task.
func (m *Manager) RoomForTask(ctx context.Context, taskID, userID string) (*models.ChatRoom, error) {
	room, err := m.store.LatestRoomForTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(userID) {
		return nil, &apperror.ForbiddenError{Action: "view chat room", Reason: "not a participant of this chat room"}
	}
	return room, nil
}

// MyChats lists every room of userID, most recent activity first.
func (m *Manager) MyChats(ctx context.Context, userID string) ([]RoomSummary, error) {
	rooms, err := m.store.ListRoomsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(rooms))
	for i := range rooms {
		ids[i] = rooms[i].RoomID
	}
	unread, err := m.store.UnreadCounts(ctx, ids, userID)
	if err != nil {
		return nil, err
	}

	out := make([]RoomSummary, len(rooms))
	for i := range rooms {
		out[i] = RoomSummary{ChatRoom: rooms[i], UnreadCount: unread[rooms[i].RoomID]}
	}
	return out, nil
}

func validateContent(content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return &apperror.ValidationError{Field: "content", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(trimmed) > config.MaxMessageLength {
		return &apperror.ValidationError{Field: "content", Reason: fmt.Sprintf("must be at most %d characters", config.MaxMessageLength)}
	}
	return nil
}

func inactive(roomID, action string) error {
	return &apperror.InvalidStateError{Entity: "chat room", ID: roomID, Status: "inactive", Action: action}
}
