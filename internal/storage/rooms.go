package storage

import (
	"campusskill/backend/internal/apperror"
	"campusskill/backend/internal/models"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// CreateRoom зберігає кімнату разом з початковими повідомленнями.
func (s *Service) CreateRoom(ctx context.Context, room *models.ChatRoom) error {
	if err := s.db(ctx).Create(room).Error; err != nil {
		return fmt.Errorf("create room for task %s: %w", room.TaskID, err)
	}
	return nil
}

func (s *Service) GetRoom(ctx context.Context, id string) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := s.db(ctx).Where("room_id = ?", id).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperror.NotFoundError{Entity: "chat room", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", id, err)
	}
	return &room, nil
}

// GetRoomWithMessages loads the room and its history ordered by creation time.
func (s *Service) GetRoomWithMessages(ctx context.Context, id string) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := s.db(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("room_id = ?", id).
		First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperror.NotFoundError{Entity: "chat room", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", id, err)
	}
	return &room, nil
}

// FindActiveRoomForTask returns nil without error when the task has no active room.
func (s *Service) FindActiveRoomForTask(ctx context.Context, taskID string) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := s.db(ctx).Where("task_id = ? AND is_active = ?", taskID, true).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active room for task %s: %w", taskID, err)
	}
	return &room, nil
}

func (s *Service) LatestRoomForTask(ctx context.Context, taskID string) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := s.db(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("task_id = ?", taskID).
		Order("started_at DESC").
		First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperror.NotFoundError{Entity: "chat room for task", ID: taskID}
	}
	if err != nil {
		return nil, fmt.Errorf("latest room for task %s: %w", taskID, err)
	}
	return &room, nil
}

func (s *Service) ListRoomsForUser(ctx context.Context, userID string) ([]models.ChatRoom, error) {
	var rooms []models.ChatRoom
	err := s.db(ctx).
		Where("(poster_id = ? OR taker_id = ?)", userID, userID).
		Order("last_message_timestamp DESC").
		Order("started_at DESC").
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("list rooms for user %s: %w", userID, err)
	}
	return rooms, nil
}

// UnreadCounts returns, per room, how many messages userID has not read yet.
func (s *Service) UnreadCounts(ctx context.Context, roomIDs []string, userID string) (map[string]int, error) {
	counts := make(map[string]int, len(roomIDs))
	if len(roomIDs) == 0 {
		return counts, nil
	}

	var msgs []models.Message
	err := s.db(ctx).
		Select("id", "room_id", "read_by").
		Where("room_id IN ?", roomIDs).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("unread counts: %w", err)
	}
	for i := range msgs {
		if !msgs[i].IsReadBy(userID) {
			counts[msgs[i].RoomID]++
		}
	}
	return counts, nil
}

// DeactivateRoom закриває кімнату. Вже неактивна кімната лишається без змін.
func (s *Service) DeactivateRoom(ctx context.Context, id string, at time.Time) error {
	res := s.db(ctx).Model(&models.ChatRoom{}).
		Where("room_id = ? AND is_active = ?", id, true).
		Updates(map[string]any{
			"is_active": false,
			"ended_at":  at,
		})
	if res.Error != nil {
		return fmt.Errorf("deactivate room %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetRoom(ctx, id); err != nil {
			return err
		}
		return &apperror.InvalidStateError{Entity: "chat room", ID: id, Status: "inactive", Action: "deactivate"}
	}
	return nil
}

// AppendMessage inserts msg and refreshes the room's last-message summary.
// The summary update is conditional on the room still being active, so a
// message racing a deactivation is rolled back by the caller's transaction.
func (s *Service) AppendMessage(ctx context.Context, msg *models.Message) error {
	db := s.db(ctx)
	if err := db.Create(msg).Error; err != nil {
		return fmt.Errorf("append message to room %s: %w", msg.RoomID, err)
	}

	ts := msg.CreatedAt
	res := db.Model(&models.ChatRoom{}).
		Where("room_id = ? AND is_active = ?", msg.RoomID, true).
		Updates(map[string]any{
			"last_message_content":   msg.Content,
			"last_message_sender":    msg.Sender,
			"last_message_timestamp": &ts,
		})
	if res.Error != nil {
		return fmt.Errorf("update last message of room %s: %w", msg.RoomID, res.Error)
	}
	if res.RowsAffected == 0 {
		return &apperror.InvalidStateError{Entity: "chat room", ID: msg.RoomID, Status: "inactive", Action: "append message to"}
	}
	return nil
}

// MarkRoomRead adds userID to readBy of every message that lacks it and
// returns how many messages changed. Calling it again changes nothing.
func (s *Service) MarkRoomRead(ctx context.Context, roomID, userID string) (int, error) {
	var changed int
	err := s.db(ctx).Transaction(func(tx *gorm.DB) error {
		var msgs []models.Message
		if err := tx.Select("id", "read_by").Where("room_id = ?", roomID).Find(&msgs).Error; err != nil {
			return err
		}
		for i := range msgs {
			if msgs[i].IsReadBy(userID) {
				continue
			}
			readBy := append(pq.StringArray{}, msgs[i].ReadBy...)
			readBy = append(readBy, userID)
			if err := tx.Model(&models.Message{}).Where("id = ?", msgs[i].ID).Update("read_by", readBy).Error; err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("mark room %s read: %w", roomID, err)
	}
	return changed, nil
}
