package stomp

import (
	"encoding/json"
	"fmt"

	"github.com/O-HAM-MA/apartner-chat/internal/domain"
)

// PublishRoom sends a message frame to the room's destination. Publishing
// while disconnected returns ErrNotConnected without queueing the message.
func (c *Client) PublishRoom(id int64, msg domain.ChatMessage) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}

	if err := conn.Send(roomDestination(id), "application/json", data); err != nil {
		return fmt.Errorf("publish to room %d: %w", id, err)
	}
	return nil
}
