package storage

import (
	"campusskill/backend/internal/models"
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage is the record store used by the core services. Every status write
// on a task is conditional on the status the caller read.
type Storage interface {
	// Transaction runs fn against a store bound to a single database transaction.
	Transaction(ctx context.Context, fn func(tx Storage) error) error
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUsersByPoints(ctx context.Context, limit int) ([]models.User, error)
	CountUsersAbove(ctx context.Context, totalPoints int) (int64, error)
	ApplyUserDelta(ctx context.Context, userID string, d UserDelta) error
	RecomputeUser(ctx context.Context, userID string) error
	SetTelegramChatID(ctx context.Context, userID string, chatID *int64) error

	CreateRating(ctx context.Context, rating *models.Rating) error
	RatingExists(ctx context.Context, ratedBy, taskID string) (bool, error)
	CountRatings(ctx context.Context, userID string) (int64, error)

	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context, f TaskFilter) ([]models.Task, int64, error)
	ListTasksForUser(ctx context.Context, userID string, rel TaskRelation) ([]models.Task, error)
	UpdateTaskIf(ctx context.Context, id string, expected models.TaskStatus, updates map[string]any) error
	DeleteTaskIf(ctx context.Context, id string, expected models.TaskStatus) error
	AddPreviousAssignee(ctx context.Context, p *models.PreviousAssignee) error

	CreateRoom(ctx context.Context, room *models.ChatRoom) error
	GetRoom(ctx context.Context, id string) (*models.ChatRoom, error)
	GetRoomWithMessages(ctx context.Context, id string) (*models.ChatRoom, error)
	FindActiveRoomForTask(ctx context.Context, taskID string) (*models.ChatRoom, error)
	LatestRoomForTask(ctx context.Context, taskID string) (*models.ChatRoom, error)
	ListRoomsForUser(ctx context.Context, userID string) ([]models.ChatRoom, error)
	UnreadCounts(ctx context.Context, roomIDs []string, userID string) (map[string]int, error)
	DeactivateRoom(ctx context.Context, id string, at time.Time) error
	AppendMessage(ctx context.Context, msg *models.Message) error
	MarkRoomRead(ctx context.Context, roomID, userID string) (int, error)
}

// Service is the gorm-backed Storage. Redis is optional and only used for the
// hub's fan-out bus.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
	}
}

// Models lists every table owned by the store, in migration order.
func Models() []any {
	return []any{
		&models.User{},
		&models.Rating{},
		&models.Task{},
		&models.PreviousAssignee{},
		&models.ChatRoom{},
		&models.Message{},
	}
}

// Open connects to PostgreSQL and migrates the schema.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (s *Service) db(ctx context.Context) *gorm.DB {
	return s.DB.WithContext(ctx)
}

func (s *Service) Transaction(ctx context.Context, fn func(tx Storage) error) error {
	return s.db(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Service{DB: tx, Redis: s.Redis})
	})
}

func (s *Service) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
