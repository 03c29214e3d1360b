package port

import (
	"context"

	"github.com/O-HAM-MA/apartner-chat/internal/domain"
)

// Gateway is the REST backend that persists rooms and messages. The session
// treats it as a black box; implementations live in internal/gateway and in
// test fakes.
type Gateway interface {
	// CreateRoom opens a new room for the actor's apartment.
	CreateRoom(ctx context.Context, title string, category domain.Category, apartmentID int64) (domain.ChatRoom, error)
	// Room returns room metadata regardless of its status.
	Room(ctx context.Context, id int64) (domain.ChatRoom, error)
	// Messages returns the full history, pre-sorted chronologically.
	Messages(ctx context.Context, id int64) ([]domain.ChatMessage, error)
	// Join registers the actor as a participant. Joining a room twice
	// yields gateway.ErrAlreadyJoined, which callers treat as success.
	// The gateway updates the viewer's last-checked timestamp as a side
	// effect, so joining is also the mark-read action.
	Join(ctx context.Context, id int64, currentRoomID int64) error
	// Leave removes the actor and flips the room to INACTIVE server-side.
	Leave(ctx context.Context, id int64) error
	// Rooms lists every room (admin roster).
	Rooms(ctx context.Context) ([]domain.ChatRoom, error)
	// MyRooms lists the rooms the current actor belongs to.
	MyRooms(ctx context.Context) ([]domain.ChatRoom, error)
	// MarkRead records an explicit read receipt. Optional for chat itself
	// since Join implies read; kept for the notification flows.
	MarkRead(ctx context.Context, id int64) error
}

// Transport is the realtime connection. One transport is exclusively owned
// by one session; at most one subscription per room exists at a time.
type Transport interface {
	Connect(ctx context.Context) error
	Close()
	Connected() bool

	// SubscribeRoom delivers decoded frames for room/{id}. Subscribing to
	// an already-subscribed room is a no-op.
	SubscribeRoom(id int64, handle func(domain.ChatMessage)) error
	// UnsubscribeRoom tears the subscription down and returns only after
	// no further frames can be delivered for the room.
	UnsubscribeRoom(id int64) error
	// SubscribeRoomUpdates delivers room metadata pushed on the global
	// rooms/updates topic.
	SubscribeRoomUpdates(handle func(domain.ChatRoom)) error
	// PublishRoom sends a message to room/{id}. Publishing while
	// disconnected fails without queueing.
	PublishRoom(id int64, msg domain.ChatMessage) error

	// OnConnectionChange registers a listener invoked when the connection
	// drops or is re-established.
	OnConnectionChange(func(connected bool))
}
