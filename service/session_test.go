package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/O-HAM-MA/apartner-chat/config"
	"github.com/O-HAM-MA/apartner-chat/internal/domain"
	"github.com/O-HAM-MA/apartner-chat/internal/gateway"
	"github.com/O-HAM-MA/apartner-chat/internal/tracker"
	"github.com/O-HAM-MA/apartner-chat/pkg/logger"
	"github.com/O-HAM-MA/apartner-chat/service"
)

type fakeGateway struct {
	mu           sync.Mutex
	rooms        map[int64]domain.ChatRoom
	history      map[int64][]domain.ChatMessage
	joinCount    map[int64]int
	leaveCount   map[int64]int
	createCalls  int
	myRoomsCalls int
	nextRoomID   int64

	// messagesGate, when set for a room, blocks the history fetch until
	// the channel is closed.
	messagesGate map[int64]chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		rooms:        map[int64]domain.ChatRoom{},
		history:      map[int64][]domain.ChatMessage{},
		joinCount:    map[int64]int{},
		leaveCount:   map[int64]int{},
		messagesGate: map[int64]chan struct{}{},
		nextRoomID:   100,
	}
}

func (g *fakeGateway) CreateRoom(_ context.Context, title string, category domain.Category, _ int64) (domain.ChatRoom, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	g.nextRoomID++
	room := domain.ChatRoom{
		ID:       g.nextRoomID,
		Title:    title,
		Category: category,
		Status:   domain.RoomStatusActive,
	}
	g.rooms[room.ID] = room
	return room, nil
}

func (g *fakeGateway) Room(_ context.Context, id int64) (domain.ChatRoom, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.rooms[id]
	if !ok {
		return domain.ChatRoom{}, fmt.Errorf("room %d not found", id)
	}
	return room, nil
}

func (g *fakeGateway) Messages(_ context.Context, id int64) ([]domain.ChatMessage, error) {
	g.mu.Lock()
	gate := g.messagesGate[id]
	msgs := append([]domain.ChatMessage{}, g.history[id]...)
	g.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return msgs, nil
}

func (g *fakeGateway) Join(_ context.Context, id int64, _ int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.joinCount[id]++
	if g.joinCount[id] > 1 {
		return gateway.ErrAlreadyJoined
	}
	return nil
}

func (g *fakeGateway) Leave(_ context.Context, id int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leaveCount[id]++
	room := g.rooms[id]
	room.Status = domain.RoomStatusInactive
	g.rooms[id] = room
	return nil
}

func (g *fakeGateway) Rooms(_ context.Context) ([]domain.ChatRoom, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.ChatRoom, 0, len(g.rooms))
	for _, r := range g.rooms {
		out = append(out, r)
	}
	return out, nil
}

func (g *fakeGateway) MyRooms(ctx context.Context) ([]domain.ChatRoom, error) {
	g.mu.Lock()
	g.myRoomsCalls++
	g.mu.Unlock()
	return g.Rooms(ctx)
}

func (g *fakeGateway) MarkRead(_ context.Context, _ int64) error { return nil }

type published struct {
	roomID int64
	msg    domain.ChatMessage
}

type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	subs      map[int64]func(domain.ChatMessage)
	updates   func(domain.ChatRoom)
	published []published
	events    []string
	onChange  []func(bool)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subs: map[int64]func(domain.ChatMessage){}}
}

func (t *fakeTransport) Connect(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	return nil
}

func (t *fakeTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
}

func (t *fakeTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *fakeTransport) SubscribeRoom(id int64, handle func(domain.ChatMessage)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.subs[id]; ok {
		return nil
	}
	t.subs[id] = handle
	t.events = append(t.events, fmt.Sprintf("subscribe:%d", id))
	return nil
}

func (t *fakeTransport) UnsubscribeRoom(id int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subs, id)
	t.events = append(t.events, fmt.Sprintf("unsubscribe:%d", id))
	return nil
}

func (t *fakeTransport) SubscribeRoomUpdates(handle func(domain.ChatRoom)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.updates == nil {
		t.updates = handle
	}
	return nil
}

func (t *fakeTransport) PublishRoom(id int64, msg domain.ChatMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.published = append(t.published, published{roomID: id, msg: msg})
	return nil
}

func (t *fakeTransport) OnConnectionChange(fn func(bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = append(t.onChange, fn)
}

// deliver simulates a broker push on room/{id}, using whatever handler is
// currently subscribed.
func (t *fakeTransport) deliver(id int64, msg domain.ChatMessage) {
	t.mu.Lock()
	handle := t.subs[id]
	t.mu.Unlock()
	if handle != nil {
		handle(msg)
	}
}

func (t *fakeTransport) pushUpdate(room domain.ChatRoom) {
	t.mu.Lock()
	handle := t.updates
	t.mu.Unlock()
	if handle != nil {
		handle(room)
	}
}

func (t *fakeTransport) publishedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.published)
}

func setupSession(t *testing.T, actor domain.Actor) (*service.Session, *fakeGateway, *fakeTransport) {
	t.Helper()
	cfg := config.Default()
	gw := newFakeGateway()
	tr := newFakeTransport()
	logg := logger.NewLogger("error")
	trk := tracker.New(gw, cfg.UnreadDebounce, logg)
	sess := service.NewSession(cfg, actor, gw, tr, trk, logg)
	return sess, gw, tr
}

func resident() domain.Actor {
	return domain.Actor{ID: 42, Name: "김주민", Role: domain.RoleResident, ApartmentID: 3}
}

func admin() domain.Actor {
	return domain.Actor{ID: 7, Name: "관리자", Role: domain.RoleAdmin}
}

func chatEntries(msgs []domain.ChatMessage) []domain.ChatMessage {
	out := []domain.ChatMessage{}
	for _, m := range msgs {
		if !m.IsSystem {
			out = append(out, m)
		}
	}
	return out
}

func TestStartByCategoryCreatesAndConnects(t *testing.T) {
	sess, gw, tr := setupSession(t, resident())

	err := sess.StartByCategory(context.Background(), domain.CategoryRepair)
	require.NoError(t, err)

	assert.Equal(t, service.StateActive, sess.State())
	assert.Equal(t, 1, gw.createCalls)
	require.NotNil(t, sess.Room())
	assert.True(t, sess.Room().Active())
	assert.True(t, tr.Connected())
	assert.Empty(t, sess.Messages())

	// send into the fresh room
	require.NoError(t, sess.Send("누수가 있어요"))
	entries := chatEntries(sess.Messages())
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsMine)
	assert.Equal(t, "누수가 있어요", entries[0].Message)
	assert.Equal(t, 1, tr.publishedCount())
}

func TestStartByCategoryReusesActiveRoom(t *testing.T) {
	sess, gw, _ := setupSession(t, resident())
	gw.rooms[5] = domain.ChatRoom{ID: 5, Title: "기존 상담", Status: domain.RoomStatusActive}

	err := sess.StartByCategory(context.Background(), domain.CategoryComplaint)
	require.NoError(t, err)

	// the existing active room was entered instead of creating a second one
	assert.Equal(t, 0, gw.createCalls)
	require.NotNil(t, sess.Room())
	assert.Equal(t, int64(5), sess.Room().ID)
}

func TestStartByCategoryRequiresCategory(t *testing.T) {
	sess, gw, _ := setupSession(t, resident())

	err := sess.StartByCategory(context.Background(), domain.Category("WRONG"))
	assert.ErrorIs(t, err, service.ErrMissingCategory)
	assert.Equal(t, 0, gw.createCalls)
	assert.Equal(t, 0, gw.myRoomsCalls)
}

func TestSendEchoMergesToOneEntry(t *testing.T) {
	sess, gw, tr := setupSession(t, resident())
	gw.rooms[1] = domain.ChatRoom{ID: 1, Status: domain.RoomStatusActive}
	require.NoError(t, sess.EnterRoom(context.Background(), 1))

	for i := 1; i <= 20; i++ {
		text := fmt.Sprintf("메시지 %d", i)
		require.NoError(t, sess.Send(text))

		// the server echo carries an authoritative id
		echo := domain.ChatMessage{
			MessageID:  int64(1000 + i),
			UserID:     42,
			Message:    text,
			Timestamp:  time.Now().Format(time.RFC3339),
			ChatroomID: 1,
		}
		tr.deliver(1, echo)

		entries := chatEntries(sess.Messages())
		require.Len(t, entries, i, "optimistic copy and echo must merge to one entry")
		assert.Equal(t, int64(1000+i), entries[i-1].MessageID)
		assert.True(t, entries[i-1].IsMine)
	}
}

func TestOtherSendersAreNotMine(t *testing.T) {
	sess, gw, tr := setupSession(t, resident())
	gw.rooms[1] = domain.ChatRoom{ID: 1, Status: domain.RoomStatusActive}
	gw.history[1] = []domain.ChatMessage{
		{MessageID: 1, UserID: 42, Message: "제가 보냈어요"},
		{MessageID: 2, UserID: 9, Message: "관리실입니다"},
	}
	require.NoError(t, sess.EnterRoom(context.Background(), 1))

	msgs := sess.Messages()
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].IsMine)
	assert.False(t, msgs[1].IsMine)

	// IsMine is derived the same way for live frames
	tr.deliver(1, domain.ChatMessage{MessageID: 3, UserID: 9, Message: "확인했습니다", ChatroomID: 1})
	msgs = sess.Messages()
	require.Len(t, msgs, 3)
	assert.False(t, msgs[2].IsMine)
}

func TestSwitchRoomIsolation(t *testing.T) {
	sess, gw, tr := setupSession(t, admin())
	gw.rooms[7] = domain.ChatRoom{ID: 7, Status: domain.RoomStatusActive}
	gw.rooms[9] = domain.ChatRoom{ID: 9, Status: domain.RoomStatusActive}
	gw.history[7] = []domain.ChatMessage{{MessageID: 1, UserID: 1, Message: "7번방 메시지"}}

	require.NoError(t, sess.EnterRoom(context.Background(), 7))
	require.Len(t, sess.Messages(), 1)

	// keep the old handler around to simulate a frame arriving late
	tr.mu.Lock()
	oldHandler := tr.subs[7]
	tr.mu.Unlock()

	require.NoError(t, sess.EnterRoom(context.Background(), 9))

	// the old subscription was torn down before the new one was issued
	tr.mu.Lock()
	events := append([]string{}, tr.events...)
	tr.mu.Unlock()
	assert.Equal(t, []string{"subscribe:7", "unsubscribe:7", "subscribe:9"}, events)

	// none of room 7's history leaked into room 9's transcript
	assert.Empty(t, sess.Messages())

	// a late frame for room 7 is not appended to the visible list
	oldHandler(domain.ChatMessage{MessageID: 99, UserID: 1, Message: "늦은 메시지", ChatroomID: 7})
	assert.Empty(t, sess.Messages())
}

func TestEnterInactiveRoomIsViewOnly(t *testing.T) {
	sess, gw, tr := setupSession(t, resident())
	gw.rooms[3] = domain.ChatRoom{ID: 3, Status: domain.RoomStatusInactive}
	gw.history[3] = []domain.ChatMessage{{MessageID: 1, UserID: 42, Message: "지난 상담"}}

	require.NoError(t, sess.EnterRoom(context.Background(), 3))

	// history must load even though the socket step is skipped
	assert.Equal(t, service.StateViewOnly, sess.State())
	require.Len(t, sess.Messages(), 1)
	assert.False(t, tr.Connected())

	// send gating: no network effect, no transcript mutation
	err := sess.Send("안녕하세요")
	assert.ErrorIs(t, err, service.ErrRoomClosed)
	assert.Equal(t, 0, tr.publishedCount())
	assert.Len(t, sess.Messages(), 1)
}

func TestEmptyMessageNeverTransmitted(t *testing.T) {
	sess, gw, tr := setupSession(t, resident())
	gw.rooms[1] = domain.ChatRoom{ID: 1, Status: domain.RoomStatusActive}
	require.NoError(t, sess.EnterRoom(context.Background(), 1))

	assert.ErrorIs(t, sess.Send("   \t  "), service.ErrEmptyMessage)
	assert.Equal(t, 0, tr.publishedCount())
	assert.Empty(t, sess.Messages())
}

func TestBlankFrameFromWireIgnored(t *testing.T) {
	sess, gw, tr := setupSession(t, resident())
	gw.rooms[1] = domain.ChatRoom{ID: 1, Status: domain.RoomStatusActive}
	require.NoError(t, sess.EnterRoom(context.Background(), 1))

	// blank chat frames are dropped at the receive boundary too
	tr.deliver(1, domain.ChatMessage{MessageID: 10, UserID: 9, Message: "  \t ", ChatroomID: 1})
	assert.Empty(t, sess.Messages())

	tr.deliver(1, domain.ChatMessage{MessageID: 11, UserID: 9, Message: "여보세요", ChatroomID: 1})
	assert.Len(t, sess.Messages(), 1)
}

func TestFailedSwitchClearsRoom(t *testing.T) {
	sess, gw, tr := setupSession(t, admin())
	gw.rooms[7] = domain.ChatRoom{ID: 7, Status: domain.RoomStatusActive}
	require.NoError(t, sess.EnterRoom(context.Background(), 7))

	// room 99 does not exist; the switch fails after room 7 was torn down
	require.Error(t, sess.EnterRoom(context.Background(), 99))

	assert.Equal(t, service.StateIdle, sess.State())
	assert.Nil(t, sess.Room(), "the session must not keep pointing at the old room")
	assert.ErrorIs(t, sess.Send("계신가요"), service.ErrNoRoom)
	assert.Equal(t, 0, tr.publishedCount())

	msgs := sess.Messages()
	require.NotEmpty(t, msgs)
	assert.True(t, msgs[len(msgs)-1].IsSystem)
}

func TestIdempotentJoin(t *testing.T) {
	sess, gw, _ := setupSession(t, admin())
	gw.rooms[4] = domain.ChatRoom{ID: 4, Status: domain.RoomStatusActive}

	require.NoError(t, sess.EnterRoom(context.Background(), 4))
	// second entry hits the duplicate-join conflict, which is swallowed
	require.NoError(t, sess.EnterRoom(context.Background(), 4))

	assert.Equal(t, 2, gw.joinCount[4])
	for _, m := range sess.Messages() {
		assert.False(t, m.IsSystem, "no error notice expected for duplicate join")
	}
}

func TestCloseRoom(t *testing.T) {
	sess, gw, tr := setupSession(t, resident())
	gw.rooms[1] = domain.ChatRoom{ID: 1, Status: domain.RoomStatusActive}
	require.NoError(t, sess.EnterRoom(context.Background(), 1))
	require.NoError(t, sess.Send("문의 드립니다"))

	require.NoError(t, sess.Close(context.Background()))

	assert.Equal(t, 1, gw.leaveCount[1])
	assert.Equal(t, service.StateClosed, sess.State())

	msgs := sess.Messages()
	last := msgs[len(msgs)-1]
	assert.True(t, last.IsSystem)
	assert.Contains(t, last.Message, "종료되었습니다")

	// the room is terminal: sends are local no-ops from here on
	sent := tr.publishedCount()
	assert.ErrorIs(t, sess.Send("한 번 더"), service.ErrRoomClosed)
	assert.Equal(t, sent, tr.publishedCount())

	// and the gateway reports INACTIVE
	room, err := gw.Room(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusInactive, room.Status)
}

func TestResetIsLocalOnly(t *testing.T) {
	sess, gw, tr := setupSession(t, resident())
	gw.rooms[1] = domain.ChatRoom{ID: 1, Status: domain.RoomStatusActive}
	require.NoError(t, sess.EnterRoom(context.Background(), 1))
	require.NoError(t, sess.Send("잠깐만요"))

	sess.Reset()

	assert.Equal(t, service.StateIdle, sess.State())
	assert.Nil(t, sess.Room())
	assert.Empty(t, sess.Messages())
	// reset never closes the room server-side
	assert.Equal(t, 0, gw.leaveCount[1])
	tr.mu.Lock()
	_, stillSubscribed := tr.subs[1]
	tr.mu.Unlock()
	assert.False(t, stillSubscribed)
}

func TestStaleHistoryDiscardedAfterSwitch(t *testing.T) {
	sess, gw, _ := setupSession(t, admin())
	gw.rooms[7] = domain.ChatRoom{ID: 7, Status: domain.RoomStatusActive}
	gw.rooms[9] = domain.ChatRoom{ID: 9, Status: domain.RoomStatusActive}
	gw.history[7] = []domain.ChatMessage{{MessageID: 1, UserID: 1, Message: "7번방"}}
	gw.history[9] = []domain.ChatMessage{{MessageID: 2, UserID: 1, Message: "9번방"}}

	gate := make(chan struct{})
	gw.mu.Lock()
	gw.messagesGate[7] = gate
	gw.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- sess.EnterRoom(context.Background(), 7) }()

	// let the slow fetch get past join before switching away
	require.Eventually(t, func() bool {
		gw.mu.Lock()
		defer gw.mu.Unlock()
		return gw.joinCount[7] == 1
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, sess.EnterRoom(context.Background(), 9))

	// room 7's history arrives late and must not clobber room 9's state
	close(gate)
	require.NoError(t, <-done)

	require.NotNil(t, sess.Room())
	assert.Equal(t, int64(9), sess.Room().ID)
	msgs := sess.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "9번방", msgs[0].Message)
}

func TestRoomUpdateForOtherRoomBumpsUnread(t *testing.T) {
	cfg := config.Default()
	gw := newFakeGateway()
	tr := newFakeTransport()
	logg := logger.NewLogger("error")
	trk := tracker.New(gw, cfg.UnreadDebounce, logg)
	sess := service.NewSession(cfg, resident(), gw, tr, trk, logg)

	gw.rooms[1] = domain.ChatRoom{ID: 1, Status: domain.RoomStatusActive}
	require.NoError(t, sess.EnterRoom(context.Background(), 1))

	// prime the debounce window; later checks serve the cached state
	trk.Check(context.Background())

	tr.pushUpdate(domain.ChatRoom{ID: 55, Status: domain.RoomStatusActive, HasNewMessage: true})

	status := trk.Check(context.Background())
	assert.True(t, status.HasUnread)
	assert.Equal(t, 1, status.UnreadCount)

	// an update for the room on screen does not count as unread
	tr.pushUpdate(domain.ChatRoom{ID: 1, Status: domain.RoomStatusActive, HasNewMessage: true})
	status = trk.Check(context.Background())
	assert.Equal(t, 1, status.UnreadCount)
}

func TestRoomClosedByOtherSide(t *testing.T) {
	sess, gw, tr := setupSession(t, resident())
	gw.rooms[1] = domain.ChatRoom{ID: 1, Status: domain.RoomStatusActive}
	require.NoError(t, sess.EnterRoom(context.Background(), 1))

	tr.pushUpdate(domain.ChatRoom{ID: 1, Status: domain.RoomStatusInactive})

	assert.Equal(t, service.StateViewOnly, sess.State())
	require.NotNil(t, sess.Room())
	assert.False(t, sess.Room().Active())
	msgs := sess.Messages()
	last := msgs[len(msgs)-1]
	assert.True(t, last.IsSystem)
	assert.Contains(t, last.Message, "종료되었습니다")
	assert.ErrorIs(t, sess.Send("여보세요"), service.ErrRoomClosed)
}

func TestDisconnectShowsConnectingAndRecovers(t *testing.T) {
	sess, gw, tr := setupSession(t, resident())
	gw.rooms[1] = domain.ChatRoom{ID: 1, Status: domain.RoomStatusActive}
	require.NoError(t, sess.EnterRoom(context.Background(), 1))
	require.Equal(t, service.StateActive, sess.State())

	tr.mu.Lock()
	listeners := append([]func(bool){}, tr.onChange...)
	tr.mu.Unlock()

	for _, fn := range listeners {
		fn(false)
	}
	assert.Equal(t, service.StateConnecting, sess.State())
	assert.ErrorIs(t, sess.Send("연결됐나요"), service.ErrNotConnected)

	for _, fn := range listeners {
		fn(true)
	}
	assert.Equal(t, service.StateActive, sess.State())
	assert.NoError(t, sess.Send("다시 보냅니다"))
}
