package chathub_test

import (
	"campusskill/backend/internal/models"
	"context"
	"sync/atomic"

	"github.com/stretchr/testify/mock"
)

type MockClient struct {
	connID      string
	userID      string
	RecvChannel chan models.Event
	closed      atomic.Bool
	ran         atomic.Bool
}

func newMockClient(connID, userID string) *MockClient {
	return &MockClient{
		connID:      connID,
		userID:      userID,
		RecvChannel: make(chan models.Event, 10),
	}
}

func (c *MockClient) GetConnID() string                   { return c.connID }
func (c *MockClient) GetUserID() string                   { return c.userID }
func (c *MockClient) GetSendChannel() chan<- models.Event { return c.RecvChannel }

func (c *MockClient) Run() {
	c.ran.Store(true)
}

func (c *MockClient) Close() {
	c.closed.Store(true)
}

type MockGuard struct {
	mock.Mock
}

func (g *MockGuard) IsParticipant(_ context.Context, roomID, userID string) (bool, error) {
	args := g.Called(roomID, userID)
	return args.Bool(0), args.Error(1)
}

type MockOffline struct {
	mock.Mock
}

func (o *MockOffline) Notify(_ context.Context, userID string, n models.Notification) error {
	args := o.Called(userID, n)
	return args.Error(0)
}
