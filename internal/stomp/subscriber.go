package stomp

import (
	"encoding/json"
	"fmt"

	"github.com/O-HAM-MA/apartner-chat/internal/domain"
)

const roomUpdatesDestination = "rooms/updates"

func roomDestination(id int64) string {
	return fmt.Sprintf("room/%d", id)
}

// SubscribeRoom subscribes to a room's message topic. Subscribing to a room
// that is already subscribed is a no-op, so a session can never hold two
// live subscriptions for the same room.
func (c *Client) SubscribeRoom(id int64, handle func(domain.ChatMessage)) error {
	dest := roomDestination(id)
	return c.subscribe(dest, func(data []byte) {
		var msg domain.ChatMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Errorf("dropping malformed frame on %s: %v", dest, err)
			return
		}
		handle(msg)
	})
}

// SubscribeRoomUpdates subscribes to the global room-metadata topic, used
// for status flips and new-message flags of rooms the viewer is not in.
func (c *Client) SubscribeRoomUpdates(handle func(domain.ChatRoom)) error {
	return c.subscribe(roomUpdatesDestination, func(data []byte) {
		var room domain.ChatRoom
		if err := json.Unmarshal(data, &room); err != nil {
			c.logger.Errorf("dropping malformed room update: %v", err)
			return
		}
		handle(room)
	})
}

func (c *Client) subscribe(dest string, deliver func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.subs[dest]; exists {
		return nil
	}

	s := &subscription{destination: dest, deliver: deliver}
	c.subs[dest] = s

	// Not connected yet: the destination is recorded and will be
	// subscribed by the next (re)connect.
	if !c.connected {
		return nil
	}

	if err := c.subscribeLocked(s); err != nil {
		delete(c.subs, dest)
		return err
	}
	return nil
}

// UnsubscribeRoom removes the room's subscription and waits for its read
// loop to finish, so no frame for the old room can be delivered after this
// returns. Room switches rely on that ordering. Unsubscribing a room that
// was never subscribed returns nil.
func (c *Client) UnsubscribeRoom(id int64) error {
	return c.unsubscribe(roomDestination(id))
}

func (c *Client) unsubscribe(dest string) error {
	c.mu.Lock()
	s, exists := c.subs[dest]
	if !exists {
		c.mu.Unlock()
		return nil
	}
	s.canceled = true
	delete(c.subs, dest)
	sub := s.sub
	done := s.done
	c.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			return fmt.Errorf("unsubscribe %s: %w", dest, err)
		}
	}
	if done != nil {
		<-done
	}
	return nil
}
