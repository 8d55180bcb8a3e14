package chathub

import (
	"campusskill/backend/internal/models"
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

// Dispatch handles one inbound frame of c. Malformed frames, unknown events
// and relays into rooms the connection has not joined are dropped silently.
func (m *ManagerService) Dispatch(ctx context.Context, c Client, frame []byte) {
	var evt models.Event
	if err := json.Unmarshal(frame, &evt); err != nil {
		m.log.Debug("dropping malformed frame", zap.String("conn_id", c.GetConnID()), zap.Error(err))
		return
	}

	switch evt.Name {
	case models.EventChatJoin:
		roomID, ok := roomIDOf(evt.Data)
		if !ok {
			return
		}
		if m.guard != nil {
			allowed, err := m.guard.IsParticipant(ctx, roomID, c.GetUserID())
			if err != nil || !allowed {
				m.log.Debug("join refused", zap.String("user_id", c.GetUserID()), zap.String("room_id", roomID), zap.Error(err))
				return
			}
		}
		m.Join(c, ChatRoom(roomID))

	case models.EventChatLeave:
		if roomID, ok := roomIDOf(evt.Data); ok {
			m.Leave(c, ChatRoom(roomID))
		}

	case models.EventChatMessage, models.EventChatTyping, models.EventChatStopTyping, models.EventChatRead:
		m.relay(ctx, c, evt)

	default:
		m.log.Debug("dropping unknown event", zap.String("event", evt.Name))
	}
}

func (m *ManagerService) relay(ctx context.Context, c Client, evt models.Event) {
	var p models.RoomPayload
	if err := json.Unmarshal(evt.Data, &p); err != nil || p.ChatRoomID == "" {
		return
	}
	room := ChatRoom(p.ChatRoomID)
	if !m.InRoom(c, room) {
		return
	}

	var (
		out models.Event
		err error
	)
	switch evt.Name {
	case models.EventChatMessage:
		if len(p.Message) == 0 {
			return
		}
		out = models.Event{Name: models.EventChatNewMessage, Data: p.Message}
	case models.EventChatTyping:
		out = models.Event{Name: models.EventChatUserTyping, Data: m.userOf(c, p)}
	case models.EventChatStopTyping:
		out = models.Event{Name: models.EventChatUserStopTyping, Data: m.userOf(c, p)}
	case models.EventChatRead:
		out, err = models.NewEvent(models.EventChatMessagesRead, models.ReadReceipt{UserID: c.GetUserID()})
		if err != nil {
			return
		}
	}

	m.publish(ctx, models.Envelope{Room: room, ExcludeConn: c.GetConnID(), Event: out})
}

// userOf returns the user object of a typing event, falling back to the
// sender's id when the client sent none.
func (m *ManagerService) userOf(c Client, p models.RoomPayload) json.RawMessage {
	if len(p.User) > 0 {
		return p.User
	}
	raw, _ := json.Marshal(map[string]string{"id": c.GetUserID()})
	return raw
}

// roomIDOf accepts a bare room id string or an object with chatRoomId.
func roomIDOf(data json.RawMessage) (string, bool) {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		id = strings.TrimSpace(id)
		return id, id != ""
	}
	var p models.RoomPayload
	if err := json.Unmarshal(data, &p); err == nil && p.ChatRoomID != "" {
		return p.ChatRoomID, true
	}
	return "", false
}

// NotifyUser delivers a task notification to every connection of userID.
// Users with no live connection get it through the offline notifier, if set.
func (m *ManagerService) NotifyUser(ctx context.Context, userID string, n models.Notification) {
	evt, err := models.NewEvent(models.EventNotification, n)
	if err != nil {
		m.log.Warn("encode notification", zap.Error(err))
		return
	}
	m.publish(ctx, models.Envelope{Room: UserRoom(userID), Event: evt})

	if m.offline == nil {
		return
	}
	online, err := m.Online(ctx, userID)
	if err != nil {
		m.log.Warn("presence lookup failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if online {
		return
	}
	if err := m.offline.Notify(ctx, userID, n); err != nil {
		m.log.Warn("offline notification failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// RelayMessage pushes a stored message to the chat room's live members.
func (m *ManagerService) RelayMessage(ctx context.Context, roomID string, msg *models.Message) {
	evt, err := models.NewEvent(models.EventChatNewMessage, msg)
	if err != nil {
		m.log.Warn("encode message", zap.Error(err))
		return
	}
	m.publish(ctx, models.Envelope{Room: ChatRoom(roomID), Event: evt})
}

// RelayRead tells the live members of a chat room that userID has read it.
func (m *ManagerService) RelayRead(ctx context.Context, roomID, userID string) {
	evt, err := models.NewEvent(models.EventChatMessagesRead, models.ReadReceipt{UserID: userID})
	if err != nil {
		return
	}
	m.publish(ctx, models.Envelope{Room: ChatRoom(roomID), Event: evt})
}

// Online reports whether userID has a live connection on any instance.
func (m *ManagerService) Online(ctx context.Context, userID string) (bool, error) {
	conns, err := m.presence.Connections(ctx, userID)
	return len(conns) > 0, err
}
