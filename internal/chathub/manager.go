// Package chathub is the realtime broadcast hub. It relays chat activity and
// task notifications to connected users on a best-effort, at-most-once basis;
// the record store stays the source of truth.
package chathub

import (
	"campusskill/backend/internal/logger"
	"campusskill/backend/internal/models"
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// UserRoom is the private hub room of a user, used for point-to-point notifications.
func UserRoom(userID string) string { return "user:" + userID }

// ChatRoom is the hub room mirroring a persisted chat room.
func ChatRoom(roomID string) string { return "room:" + roomID }

// RoomGuard decides whether a user may join a chat room.
type RoomGuard interface {
	IsParticipant(ctx context.Context, roomID, userID string) (bool, error)
}

// OfflineNotifier receives notifications for users with no live connection.
type OfflineNotifier interface {
	Notify(ctx context.Context, userID string, n models.Notification) error
}

var errHubStopped = errors.New("hub stopped")

// ManagerService owns every connection of this instance and the rooms they
// are in. Outbound events are written to clients only from Run.
type ManagerService struct {
	RegisterCh   chan Client
	UnregisterCh chan Client

	mu      sync.RWMutex
	clients map[string]Client              // connID -> client
	rooms   map[string]map[string]Client   // hub room -> connID -> client
	joined  map[string]map[string]struct{} // connID -> hub rooms

	bus      Bus
	presence PresenceRegistry
	guard    RoomGuard
	offline  OfflineNotifier
	log      *zap.Logger

	done     chan struct{}
	stopOnce sync.Once
}

type Option func(*ManagerService)

func WithBus(b Bus) Option                         { return func(m *ManagerService) { m.bus = b } }
func WithPresence(p PresenceRegistry) Option       { return func(m *ManagerService) { m.presence = p } }
func WithRoomGuard(g RoomGuard) Option             { return func(m *ManagerService) { m.guard = g } }
func WithOfflineNotifier(n OfflineNotifier) Option { return func(m *ManagerService) { m.offline = n } }
func WithLogger(l *zap.Logger) Option              { return func(m *ManagerService) { m.log = logger.OrNop(l) } }

// NewManagerService creates a hub with an in-process bus and presence
// registry unless options replace them.
func NewManagerService(opts ...Option) *ManagerService {
	m := &ManagerService{
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		clients:      make(map[string]Client),
		rooms:        make(map[string]map[string]Client),
		joined:       make(map[string]map[string]struct{}),
		bus:          NewLocalBus(0),
		presence:     NewMemoryPresence(),
		log:          zap.NewNop(),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run processes registrations and bus deliveries until ctx is cancelled or
// the bus subscription ends. All remaining clients are closed on return.
func (m *ManagerService) Run(ctx context.Context) error {
	defer m.stop()

	deliveries, err := m.bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	m.log.Info("hub started")

	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return nil

		case c := <-m.RegisterCh:
			m.register(ctx, c)

		case c := <-m.UnregisterCh:
			m.unregister(ctx, c)

		case env, ok := <-deliveries:
			if !ok {
				m.closeAll()
				return errors.New("hub bus subscription closed")
			}
			m.deliver(env)
		}
	}
}

func (m *ManagerService) stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

// Register hands c to the hub. The hub starts its pumps once it is registered.
func (m *ManagerService) Register(c Client) error {
	select {
	case m.RegisterCh <- c:
		return nil
	case <-m.done:
		return errHubStopped
	}
}

// Unregister asks the hub to forget c. It never blocks after the hub stopped.
func (m *ManagerService) Unregister(c Client) {
	select {
	case m.UnregisterCh <- c:
	case <-m.done:
	}
}

func (m *ManagerService) register(ctx context.Context, c Client) {
	if err := m.presence.Register(ctx, c.GetUserID(), c.GetConnID()); err != nil {
		m.log.Warn("presence register failed", zap.String("user_id", c.GetUserID()), zap.Error(err))
	}

	m.mu.Lock()
	m.clients[c.GetConnID()] = c
	m.joinLocked(c, UserRoom(c.GetUserID()))
	m.mu.Unlock()
	c.Run()

	m.log.Debug("client registered", zap.String("user_id", c.GetUserID()), zap.String("conn_id", c.GetConnID()))
}

func (m *ManagerService) unregister(ctx context.Context, c Client) {
	if !m.remove(c) {
		return
	}
	if err := m.presence.Unregister(ctx, c.GetUserID(), c.GetConnID()); err != nil {
		m.log.Warn("presence unregister failed", zap.String("user_id", c.GetUserID()), zap.Error(err))
	}
	m.log.Debug("client unregistered", zap.String("user_id", c.GetUserID()), zap.String("conn_id", c.GetConnID()))
}

// remove detaches c from every room and closes it. It reports false when c
// was already gone.
func (m *ManagerService) remove(c Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	connID := c.GetConnID()
	if _, ok := m.clients[connID]; !ok {
		return false
	}
	for room := range m.joined[connID] {
		m.leaveLocked(connID, room)
	}
	delete(m.joined, connID)
	delete(m.clients, connID)
	c.Close()
	return true
}

func (m *ManagerService) closeAll() {
	m.mu.RLock()
	clients := make([]Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.RUnlock()

	ctx := context.Background()
	for _, c := range clients {
		m.unregister(ctx, c)
	}
}

func (m *ManagerService) joinLocked(c Client, room string) {
	members, ok := m.rooms[room]
	if !ok {
		members = make(map[string]Client)
		m.rooms[room] = members
	}
	members[c.GetConnID()] = c

	set, ok := m.joined[c.GetConnID()]
	if !ok {
		set = make(map[string]struct{})
		m.joined[c.GetConnID()] = set
	}
	set[room] = struct{}{}
}

func (m *ManagerService) leaveLocked(connID, room string) {
	if members, ok := m.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(m.rooms, room)
		}
	}
	delete(m.joined[connID], room)
}

// Join adds a registered connection to a hub room.
func (m *ManagerService) Join(c Client, room string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[c.GetConnID()]; !ok {
		return
	}
	m.joinLocked(c, room)
}

func (m *ManagerService) Leave(c Client, room string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveLocked(c.GetConnID(), room)
}

// InRoom reports whether the connection has joined the hub room.
func (m *ManagerService) InRoom(c Client, room string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.joined[c.GetConnID()][room]
	return ok
}

// deliver writes env to every local member of its room. A client whose
// buffer is full is dropped rather than allowed to stall the hub.
func (m *ManagerService) deliver(env models.Envelope) {
	var slow []Client

	m.mu.RLock()
	for connID, c := range m.rooms[env.Room] {
		if connID == env.ExcludeConn {
			continue
		}
		select {
		case c.GetSendChannel() <- env.Event:
		default:
			slow = append(slow, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range slow {
		m.log.Warn("dropping slow client", zap.String("user_id", c.GetUserID()), zap.String("conn_id", c.GetConnID()))
		m.unregister(context.Background(), c)
	}
}

func (m *ManagerService) publish(ctx context.Context, env models.Envelope) {
	if err := m.bus.Publish(ctx, env); err != nil {
		m.log.Warn("relay dropped", zap.String("room", env.Room), zap.String("event", env.Event.Name), zap.Error(err))
	}
}
