package gateway

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"

	"github.com/O-HAM-MA/apartner-chat/config"
	"github.com/O-HAM-MA/apartner-chat/internal/domain"
	"github.com/O-HAM-MA/apartner-chat/pkg/logger"
)

// Client talks to the chat REST backend.
type Client struct {
	http   *resty.Client
	logger logger.Logger
}

func NewClient(cfg config.Config, logg logger.Logger) *Client {
	http := resty.New().
		SetBaseURL(cfg.GatewayURL).
		SetTimeout(cfg.RequestTimeout).
		SetHeader("Accept", "application/json")

	// Request tracing goes to the caller's logger when the context carries
	// one (the binaries seed it at startup).
	http.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		logger.FromContext(resp.Request.Context()).
			Debugf("%s %s -> %s", resp.Request.Method, resp.Request.URL, resp.Status())
		return nil
	})

	return &Client{
		http:   http,
		logger: logg.WithModule("gateway"),
	}
}

func (c *Client) CreateRoom(ctx context.Context, title string, category domain.Category, apartmentID int64) (domain.ChatRoom, error) {
	var room domain.ChatRoom
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"title":       title,
			"category":    string(category),
			"apartmentId": strconv.FormatInt(apartmentID, 10),
		}).
		SetResult(&room).
		Post("/chats")
	if err != nil {
		return domain.ChatRoom{}, fmt.Errorf("create room: %w", err)
	}
	if resp.IsError() {
		return domain.ChatRoom{}, statusError("create room", resp)
	}
	c.logger.Infof("created room %d (%s)", room.ID, category)
	return room, nil
}

func (c *Client) Room(ctx context.Context, id int64) (domain.ChatRoom, error) {
	var room domain.ChatRoom
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&room).
		Get(fmt.Sprintf("/chats/%d", id))
	if err != nil {
		return domain.ChatRoom{}, fmt.Errorf("get room %d: %w", id, err)
	}
	if resp.IsError() {
		return domain.ChatRoom{}, statusError(fmt.Sprintf("get room %d", id), resp)
	}
	return room, nil
}

func (c *Client) Messages(ctx context.Context, id int64) ([]domain.ChatMessage, error) {
	var msgs []domain.ChatMessage
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&msgs).
		Get(fmt.Sprintf("/chats/%d/messages", id))
	if err != nil {
		return nil, fmt.Errorf("list messages of room %d: %w", id, err)
	}
	if resp.IsError() {
		return nil, statusError(fmt.Sprintf("list messages of room %d", id), resp)
	}
	return msgs, nil
}

func (c *Client) Join(ctx context.Context, id int64, currentRoomID int64) error {
	body := map[string]interface{}{}
	if currentRoomID != 0 {
		body["currentChatroomId"] = currentRoomID
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(fmt.Sprintf("/chats/%d/users", id))
	if err != nil {
		return fmt.Errorf("join room %d: %w", id, err)
	}
	if resp.StatusCode() == 409 {
		return ErrAlreadyJoined
	}
	if resp.IsError() {
		return statusError(fmt.Sprintf("join room %d", id), resp)
	}
	return nil
}

func (c *Client) Leave(ctx context.Context, id int64) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Delete(fmt.Sprintf("/chats/%d/users", id))
	if err != nil {
		return fmt.Errorf("leave room %d: %w", id, err)
	}
	if resp.IsError() {
		return statusError(fmt.Sprintf("leave room %d", id), resp)
	}
	c.logger.Infof("left room %d", id)
	return nil
}

func (c *Client) Rooms(ctx context.Context) ([]domain.ChatRoom, error) {
	var rooms []domain.ChatRoom
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&rooms).
		Get("/chats")
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	if resp.IsError() {
		return nil, statusError("list rooms", resp)
	}
	return rooms, nil
}

func (c *Client) MyRooms(ctx context.Context) ([]domain.ChatRoom, error) {
	var rooms []domain.ChatRoom
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&rooms).
		Get("/chats/my")
	if err != nil {
		return nil, fmt.Errorf("list my rooms: %w", err)
	}
	if resp.IsError() {
		return nil, statusError("list my rooms", resp)
	}
	return rooms, nil
}

func (c *Client) MarkRead(ctx context.Context, id int64) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Post(fmt.Sprintf("/chats/%d/read", id))
	if err != nil {
		return fmt.Errorf("mark room %d read: %w", id, err)
	}
	if resp.IsError() {
		return statusError(fmt.Sprintf("mark room %d read", id), resp)
	}
	return nil
}
