package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/O-HAM-MA/apartner-chat/internal/domain"
	"github.com/O-HAM-MA/apartner-chat/internal/port"
	"github.com/O-HAM-MA/apartner-chat/pkg/logger"
)

// Status is the badge state derived from the viewer's rooms.
type Status struct {
	HasUnread   bool
	UnreadCount int
	ActiveRoom  *domain.ChatRoom
}

// Tracker answers "does the viewer have an active room / unread messages"
// without hitting the gateway on every UI event. Check is debounced: calls
// inside the interval serve the last known result. Room-update broadcasts
// bump the unread state immediately, without waiting for the next poll.
type Tracker struct {
	gw       port.Gateway
	logger   logger.Logger
	interval time.Duration
	now      func() time.Time

	mu         sync.Mutex
	lastCheck  time.Time
	activeRoom *domain.ChatRoom
	flagged    map[int64]bool
}

func New(gw port.Gateway, interval time.Duration, logg logger.Logger) *Tracker {
	return &Tracker{
		gw:       gw,
		logger:   logg.WithModule("tracker"),
		interval: interval,
		now:      time.Now,
		flagged:  make(map[int64]bool),
	}
}

// Check returns the current badge state, querying the gateway at most once
// per debounce interval. Query failures are logged and the cached state is
// served; the badge is best effort.
func (t *Tracker) Check(ctx context.Context) Status {
	t.mu.Lock()
	if !t.lastCheck.IsZero() && t.now().Sub(t.lastCheck) < t.interval {
		status := t.statusLocked()
		t.mu.Unlock()
		return status
	}
	t.mu.Unlock()

	rooms, err := t.gw.MyRooms(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.logger.Errorf("active room check failed: %v", err)
		return t.statusLocked()
	}

	t.lastCheck = t.now()
	t.activeRoom = nil
	t.flagged = make(map[int64]bool)
	for i := range rooms {
		room := rooms[i]
		if room.Active() && t.activeRoom == nil {
			t.activeRoom = &room
		}
		if room.HasNewMessage {
			t.flagged[room.ID] = true
		}
	}
	return t.statusLocked()
}

// ApplyUpdate folds a rooms/updates broadcast into the badge state. An
// update for the room currently on screen is ignored: being in the room is
// the read action.
func (t *Tracker) ApplyUpdate(room domain.ChatRoom, currentRoomID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if room.ID == currentRoomID {
		return
	}
	if room.HasNewMessage {
		t.flagged[room.ID] = true
	}
	if t.activeRoom != nil && t.activeRoom.ID == room.ID {
		updated := room
		t.activeRoom = &updated
	}
}

// MarkEntered clears the unread flag for a room the viewer just entered
// and forces the next Check to re-query; the gateway updated the viewer's
// last-checked timestamp as a side effect of the join.
func (t *Tracker) MarkEntered(roomID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.flagged, roomID)
	t.lastCheck = time.Time{}
}

func (t *Tracker) statusLocked() Status {
	return Status{
		HasUnread:   len(t.flagged) > 0,
		UnreadCount: len(t.flagged),
		ActiveRoom:  t.activeRoom,
	}
}
