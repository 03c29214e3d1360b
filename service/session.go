package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/O-HAM-MA/apartner-chat/config"
	"github.com/O-HAM-MA/apartner-chat/internal/domain"
	"github.com/O-HAM-MA/apartner-chat/internal/gateway"
	"github.com/O-HAM-MA/apartner-chat/internal/port"
	"github.com/O-HAM-MA/apartner-chat/internal/tracker"
	"github.com/O-HAM-MA/apartner-chat/internal/transcript"
	"github.com/O-HAM-MA/apartner-chat/pkg/logger"
)

// State is the session's position in the room lifecycle.
type State string

const (
	// StateIdle: no room selected.
	StateIdle State = "IDLE"
	// StateConnecting: room chosen, history or socket handshake in flight,
	// or the socket dropped and the reconnect loop is running.
	StateConnecting State = "CONNECTING"
	// StateActive: socket open on an ACTIVE room, sending enabled.
	StateActive State = "CONNECTED_ACTIVE"
	// StateViewOnly: room is INACTIVE; history readable, sending disabled,
	// no socket needed.
	StateViewOnly State = "VIEW_ONLY"
	// StateClosed: the current room was closed by this session. Terminal
	// for the room; Reset returns to StateIdle.
	StateClosed State = "CLOSED"
)

var (
	ErrMissingCategory = errors.New("session: category is required")
	ErrMissingActor    = errors.New("session: actor is not known")
	ErrEmptyMessage    = errors.New("session: empty message")
	ErrNoRoom          = errors.New("session: no room selected")
	ErrRoomClosed      = errors.New("session: room is closed")
	ErrNotConnected    = errors.New("session: not connected")
)

const closedNotice = "상담이 종료되었습니다"

// Session owns one actor's chat state: the current room, its transcript,
// the realtime subscription, and the unread tracker. Residents and admins
// share this machine; the resident flow enters rooms through
// StartByCategory, the admin flow through EnterRoom against the roster.
//
// All mutations go through one mutex. Every operation that awaits the
// gateway captures an epoch at its start and re-checks it before applying
// results, so a response arriving after the user moved to another room is
// discarded instead of clobbering the newer room's state.
type Session struct {
	cfg     config.Config
	logger  logger.Logger
	gw      port.Gateway
	tr      port.Transport
	tracker *tracker.Tracker
	actor   domain.Actor

	mu             sync.Mutex
	state          State
	room           *domain.ChatRoom
	transcript     *transcript.Transcript
	epoch          uint64
	subscribedRoom int64
	connected      bool
	onUpdate       func()
}

func NewSession(cfg config.Config, actor domain.Actor, gw port.Gateway, tr port.Transport, trk *tracker.Tracker, logg logger.Logger) *Session {
	s := &Session{
		cfg:        cfg,
		logger:     logg.WithModule("session"),
		gw:         gw,
		tr:         tr,
		tracker:    trk,
		actor:      actor,
		state:      StateIdle,
		transcript: transcript.New(actor.ID, cfg.DedupWindow),
	}
	tr.OnConnectionChange(s.handleConnectionChange)
	return s
}

// OnUpdate registers the UI refresh callback. It is invoked without the
// session lock held.
func (s *Session) OnUpdate(fn func()) {
	s.mu.Lock()
	s.onUpdate = fn
	s.mu.Unlock()
}

// StartByCategory is the resident entry point: pick a category, get a
// room. If the resident already has an ACTIVE room the call enters that
// room instead of creating a second one; at most one ACTIVE room exists
// per resident.
func (s *Session) StartByCategory(ctx context.Context, category domain.Category) error {
	if !category.Valid() {
		return ErrMissingCategory
	}
	if !s.actor.Known() {
		return ErrMissingActor
	}

	rooms, err := s.gw.MyRooms(ctx)
	if err != nil {
		s.systemNotice(0, "상담방 목록을 불러오지 못했습니다")
		return fmt.Errorf("check active rooms: %w", err)
	}
	for _, room := range rooms {
		if room.Active() {
			s.logger.Infof("active room %d exists, entering instead of creating", room.ID)
			return s.EnterRoom(ctx, room.ID)
		}
	}

	title := fmt.Sprintf("%s - %s", category.DisplayName(), s.actor.Name)
	room, err := s.gw.CreateRoom(ctx, title, category, s.actor.ApartmentID)
	if err != nil {
		s.systemNotice(0, "상담방 생성에 실패했습니다")
		return fmt.Errorf("create room: %w", err)
	}
	return s.EnterRoom(ctx, room.ID)
}

// EnterRoom joins a room (idempotently), loads its metadata and full
// history, and opens the realtime subscription only when the room is
// ACTIVE. History loading always completes before the session reports
// ready, even when the socket step is skipped. Entering while another
// room is open is the admin room switch: the old subscription is fully
// torn down before the new one is issued, so frames can never
// cross-deliver into the wrong transcript.
func (s *Session) EnterRoom(ctx context.Context, id int64) error {
	s.mu.Lock()
	e := s.beginLocked()
	prev := s.subscribedRoom
	var current int64
	if s.room != nil {
		current = s.room.ID
	}
	s.state = StateConnecting
	s.mu.Unlock()
	s.notify()

	if prev != 0 && prev != id {
		if err := s.tr.UnsubscribeRoom(prev); err != nil {
			s.logger.Errorf("unsubscribe room %d: %v", prev, err)
		}
		s.mu.Lock()
		if s.subscribedRoom == prev {
			s.subscribedRoom = 0
		}
		s.mu.Unlock()
	}

	// Unified ensure-joined-then-load: a duplicate join is success, and
	// the gateway marks the room read as a side effect of the join.
	if err := s.gw.Join(ctx, id, current); err != nil && !gateway.IsAlreadyJoined(err) {
		s.fail(e, "상담방 입장에 실패했습니다")
		return fmt.Errorf("join room %d: %w", id, err)
	}
	room, err := s.gw.Room(ctx, id)
	if err != nil {
		s.fail(e, "상담방 정보를 불러오지 못했습니다")
		return fmt.Errorf("load room %d: %w", id, err)
	}
	msgs, err := s.gw.Messages(ctx, id)
	if err != nil {
		s.fail(e, "메시지를 불러오지 못했습니다")
		return fmt.Errorf("load history of room %d: %w", id, err)
	}

	s.mu.Lock()
	if s.staleLocked(e) {
		s.mu.Unlock()
		return nil
	}
	s.room = &room
	s.transcript.SetHistory(msgs)
	if !room.Active() {
		s.state = StateViewOnly
	}
	s.mu.Unlock()
	s.tracker.MarkEntered(id)

	if !room.Active() {
		s.notify()
		return nil
	}
	return s.openRealtime(ctx, id, e)
}

func (s *Session) openRealtime(ctx context.Context, id int64, e uint64) error {
	if err := s.tr.Connect(ctx); err != nil {
		s.fail(e, "실시간 연결에 실패했습니다")
		return fmt.Errorf("connect transport: %w", err)
	}
	if err := s.tr.SubscribeRoomUpdates(s.handleRoomUpdate); err != nil {
		s.logger.Errorf("subscribe room updates: %v", err)
	}
	if err := s.tr.SubscribeRoom(id, s.roomFrameHandler(id)); err != nil {
		s.fail(e, "실시간 연결에 실패했습니다")
		return fmt.Errorf("subscribe room %d: %w", id, err)
	}

	s.mu.Lock()
	if s.staleLocked(e) {
		keep := s.room != nil && s.room.ID == id
		s.mu.Unlock()
		if !keep {
			_ = s.tr.UnsubscribeRoom(id)
		}
		return nil
	}
	s.subscribedRoom = id
	s.connected = true
	s.state = StateActive
	s.mu.Unlock()
	s.notify()
	return nil
}

// Send publishes a message and appends an optimistic local copy so the UI
// updates without waiting for the echo. Blank messages and messages into
// a closed or disconnected room are local no-ops: nothing reaches the
// network and the transcript is untouched.
func (s *Session) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	if s.room == nil {
		s.mu.Unlock()
		return ErrNoRoom
	}
	if !s.room.Active() || s.state == StateClosed {
		s.mu.Unlock()
		return ErrRoomClosed
	}
	if s.state != StateActive || !s.connected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	id := s.room.ID
	msg := domain.ChatMessage{
		UserID:          s.actor.ID,
		UserName:        s.actor.Name,
		ProfileImageURL: s.actor.ProfileImageURL,
		ApartmentName:   s.actor.ApartmentName,
		BuildingName:    s.actor.BuildingName,
		UnitNumber:      s.actor.UnitNumber,
		Message:         text,
		Timestamp:       time.Now().Format(time.RFC3339),
		ChatroomID:      id,
	}
	s.transcript.AppendOptimistic(msg)
	s.mu.Unlock()
	s.notify()

	// Fire and forget: no acknowledgement is awaited before the next send.
	if err := s.tr.PublishRoom(id, msg); err != nil {
		s.logger.Errorf("publish to room %d: %v", id, err)
	}
	return nil
}

// Close closes the current room.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.room == nil {
		s.mu.Unlock()
		return ErrNoRoom
	}
	id := s.room.ID
	s.mu.Unlock()
	return s.CloseRoom(ctx, id)
}

// CloseRoom flips a room to INACTIVE server-side. The close is preceded by
// an idempotent ensure-joined call so an admin who never entered the room
// can still close it; a duplicate-join conflict is swallowed. On success a
// synthesized system notice lands in the transcript and the room's
// subscription is torn down. INACTIVE is terminal.
func (s *Session) CloseRoom(ctx context.Context, id int64) error {
	if err := s.gw.Join(ctx, id, 0); err != nil && !gateway.IsAlreadyJoined(err) {
		s.systemNotice(id, "상담방 종료에 실패했습니다")
		return fmt.Errorf("ensure joined room %d: %w", id, err)
	}
	if err := s.gw.Leave(ctx, id); err != nil {
		s.systemNotice(id, "상담방 종료에 실패했습니다")
		return fmt.Errorf("close room %d: %w", id, err)
	}

	s.mu.Lock()
	if s.room != nil && s.room.ID == id {
		s.room.Status = domain.RoomStatusInactive
		s.transcript.AppendSystem(domain.NewSystemMessage(id, closedNotice))
		s.state = StateClosed
	}
	wasSubscribed := s.subscribedRoom == id
	if wasSubscribed {
		s.subscribedRoom = 0
	}
	s.mu.Unlock()

	if wasSubscribed {
		if err := s.tr.UnsubscribeRoom(id); err != nil {
			s.logger.Errorf("unsubscribe room %d: %v", id, err)
		}
	}
	s.notify()
	return nil
}

// Reset is the local leave: tear down the subscription, clear the
// transcript, return to category selection. The room itself is untouched
// server-side; contrast with Close.
func (s *Session) Reset() {
	s.mu.Lock()
	s.epoch++
	sub := s.subscribedRoom
	s.subscribedRoom = 0
	s.room = nil
	s.transcript.Reset()
	s.state = StateIdle
	s.mu.Unlock()

	if sub != 0 {
		if err := s.tr.UnsubscribeRoom(sub); err != nil {
			s.logger.Errorf("unsubscribe room %d: %v", sub, err)
		}
	}
	s.notify()
}

// Roster lists every room, for the admin view.
func (s *Session) Roster(ctx context.Context) ([]domain.ChatRoom, error) {
	return s.gw.Rooms(ctx)
}

// roomFrameHandler merges live frames for one room, captured by id at
// subscription time. A frame for any room other than the one currently on
// screen is dropped, including frames arriving late after a switch; blank
// chat frames never reach the transcript, mirroring the send boundary.
func (s *Session) roomFrameHandler(id int64) func(domain.ChatMessage) {
	return func(m domain.ChatMessage) {
		if !m.IsSystem && m.Empty() {
			return
		}
		s.mu.Lock()
		if s.room == nil || s.room.ID != id {
			s.mu.Unlock()
			return
		}
		if m.ChatroomID != 0 && m.ChatroomID != id {
			s.mu.Unlock()
			return
		}
		s.transcript.Merge(m)
		s.mu.Unlock()
		s.notify()
	}
}

// handleRoomUpdate reacts to the global room-metadata topic: updates for
// other rooms feed the unread tracker; a status flip of the room on screen
// closes it in place.
func (s *Session) handleRoomUpdate(room domain.ChatRoom) {
	s.mu.Lock()
	var current int64
	if s.room != nil {
		current = s.room.ID
	}
	closedUnderUs := s.room != nil && s.room.ID == room.ID && !room.Active() && s.room.Active()
	var sub int64
	if closedUnderUs {
		s.room.Status = domain.RoomStatusInactive
		s.transcript.AppendSystem(domain.NewSystemMessage(room.ID, closedNotice))
		s.state = StateViewOnly
		if s.subscribedRoom == room.ID {
			sub = room.ID
			s.subscribedRoom = 0
		}
	}
	s.mu.Unlock()

	s.tracker.ApplyUpdate(room, current)

	if sub != 0 {
		if err := s.tr.UnsubscribeRoom(sub); err != nil {
			s.logger.Errorf("unsubscribe room %d: %v", sub, err)
		}
	}
	if closedUnderUs {
		s.notify()
	}
}

// handleConnectionChange mirrors the transport's connectivity into the
// session. A drop during an active room shows as CONNECTING until the
// fixed-delay reconnect restores the subscription; the transcript is
// untouched, history was already loaded.
func (s *Session) handleConnectionChange(up bool) {
	s.mu.Lock()
	s.connected = up
	if !up && s.state == StateActive {
		s.state = StateConnecting
	}
	if up && s.state == StateConnecting && s.room != nil && s.room.Active() && s.subscribedRoom == s.room.ID {
		s.state = StateActive
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Room() *domain.ChatRoom {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return nil
	}
	room := *s.room
	return &room
}

func (s *Session) Messages() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Messages()
}

// ClearNew ends the animation cycle of freshly arrived messages; the UI
// calls it after rendering.
func (s *Session) ClearNew() {
	s.mu.Lock()
	s.transcript.ClearNew()
	s.mu.Unlock()
}

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Session) Actor() domain.Actor {
	return s.actor
}

func (s *Session) beginLocked() uint64 {
	s.epoch++
	return s.epoch
}

func (s *Session) staleLocked(e uint64) bool {
	return e != s.epoch
}

// fail surfaces an operation failure as an inline system notice, unless a
// newer operation has taken over the session. The session falls back to
// idle with no room selected; a room left behind here would be one whose
// subscription was already torn down.
func (s *Session) fail(e uint64, text string) {
	s.mu.Lock()
	if s.staleLocked(e) {
		s.mu.Unlock()
		return
	}
	s.room = nil
	s.state = StateIdle
	s.transcript.AppendSystem(domain.NewSystemMessage(0, text))
	s.mu.Unlock()
	s.notify()
}

func (s *Session) systemNotice(roomID int64, text string) {
	s.mu.Lock()
	s.transcript.AppendSystem(domain.NewSystemMessage(roomID, text))
	s.mu.Unlock()
	s.notify()
}

func (s *Session) notify() {
	s.mu.Lock()
	fn := s.onUpdate
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}
