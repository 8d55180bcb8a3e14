package models

import "encoding/json"

// Inbound event names accepted from websocket clients.
const (
	EventChatJoin       = "chat:join"
	EventChatLeave      = "chat:leave"
	EventChatMessage    = "chat:message"
	EventChatTyping     = "chat:typing"
	EventChatStopTyping = "chat:stopTyping"
	EventChatRead       = "chat:read"
)

// Outbound event names emitted by the hub.
const (
	EventChatNewMessage     = "chat:newMessage"
	EventChatUserTyping     = "chat:userTyping"
	EventChatUserStopTyping = "chat:userStopTyping"
	EventChatMessagesRead   = "chat:messagesRead"
	EventNotification       = "notification"
)

// Event is the frame exchanged with websocket clients in both directions.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEvent marshals data into an Event frame.
func NewEvent(name string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Name: name, Data: raw}, nil
}

// Envelope addresses an Event to a hub room. It is also the payload published
// on the Redis fan-out channel so every instance can deliver to its own connections.
type Envelope struct {
	Room        string `json:"room"`
	ExcludeConn string `json:"exclude_conn,omitempty"`
	Event       Event  `json:"event"`
}

// NotificationType is the kind of point-to-point task notification.
type NotificationType string

const (
	NotifyTaskTaken     NotificationType = "task_taken"
	NotifyTaskSubmitted NotificationType = "task_submitted"
	NotifyTaskCompleted NotificationType = "task_completed"
)

type Notification struct {
	Type    NotificationType `json:"type"`
	Message string           `json:"message"`
	TaskID  string           `json:"taskId,omitempty"`
	Credits *int             `json:"credits,omitempty"`
}

// RoomPayload is the data object of chat:message, chat:typing, chat:stopTyping
// and chat:read. chat:join and chat:leave carry a bare room id string instead.
type RoomPayload struct {
	ChatRoomID string          `json:"chatRoomId"`
	Message    json.RawMessage `json:"message,omitempty"`
	User       json.RawMessage `json:"user,omitempty"`
}

type ReadReceipt struct {
	UserID string `json:"userId"`
}
