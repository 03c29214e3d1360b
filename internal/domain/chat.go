package domain

import (
	"strings"
	"time"
)

// SystemUserID marks messages that have no real owner (join/leave/close
// notices and inline error notices).
const SystemUserID int64 = 0

// ChatMessage is the wire shape exchanged with the gateway and the STOMP
// broker. ClientID, IsMine and IsNew exist only on this side of the wire:
// ClientID identifies an optimistic local copy until the server echo
// reconciles it, IsMine is derived per viewer, IsNew drives one animation
// cycle in the UI.
type ChatMessage struct {
	MessageID       int64  `json:"messageId,omitempty"`
	UserID          int64  `json:"userId"`
	Message         string `json:"message"`
	Timestamp       string `json:"timestamp,omitempty"`
	UserName        string `json:"userName,omitempty"`
	ProfileImageURL string `json:"profileImageUrl,omitempty"`
	ApartmentName   string `json:"apartmentName,omitempty"`
	BuildingName    string `json:"buildingName,omitempty"`
	UnitNumber      string `json:"unitNumber,omitempty"`
	IsSystem        bool   `json:"isSystem,omitempty"`
	ChatroomID      int64  `json:"chatroomId,omitempty"`

	ClientID string `json:"-"`
	IsMine   bool   `json:"-"`
	IsNew    bool   `json:"-"`
}

// NewSystemMessage builds a synthesized lifecycle notice for a room.
func NewSystemMessage(roomID int64, text string) ChatMessage {
	return ChatMessage{
		UserID:     SystemUserID,
		Message:    text,
		Timestamp:  time.Now().Format(time.RFC3339),
		IsSystem:   true,
		ChatroomID: roomID,
	}
}

// SentAt parses the wire timestamp. The zero time is returned for frames
// that carry no timestamp or a malformed one.
func (m ChatMessage) SentAt() time.Time {
	if m.Timestamp == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, m.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Empty reports whether the message body is blank after trimming. Blank
// messages are rejected at the send boundary and never transmitted.
func (m ChatMessage) Empty() bool {
	return strings.TrimSpace(m.Message) == ""
}
