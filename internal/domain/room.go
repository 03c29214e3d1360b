package domain

import (
	"fmt"
	"strings"
	"time"
)

type RoomStatus string

const (
	RoomStatusActive   RoomStatus = "ACTIVE"
	RoomStatusInactive RoomStatus = "INACTIVE"
)

// Category tags a room with the concern a resident picked when opening it.
type Category string

const (
	CategoryComplaint  Category = "COMPLAINT"
	CategorySuggestion Category = "SUGGESTION"
	CategoryRepair     Category = "REPAIR"
	CategorySecurity   Category = "SECURITY"
	CategoryEtc        Category = "ETC"
)

var categoryNames = map[Category]string{
	CategoryComplaint:  "민원",
	CategorySuggestion: "건의사항",
	CategoryRepair:     "수리/정비",
	CategorySecurity:   "보안/경비",
	CategoryEtc:        "기타",
}

// Categories returns the selectable categories in menu order.
func Categories() []Category {
	return []Category{
		CategoryComplaint,
		CategorySuggestion,
		CategoryRepair,
		CategorySecurity,
		CategoryEtc,
	}
}

// DisplayName returns the label shown to residents.
func (c Category) DisplayName() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return string(c)
}

func (c Category) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

// ChatRoom is the room object as the gateway returns it and as the broker
// pushes it on the room-update topic. HasNewMessage is computed server-side
// relative to the requesting viewer's last-checked timestamp, so the same
// room can be unread for one viewer and read for another.
type ChatRoom struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	Category      Category   `json:"category,omitempty"`
	Status        RoomStatus `json:"status"`
	UserCount     int        `json:"userCount"`
	HasNewMessage bool       `json:"hasNewMessage"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Active reports whether the room still accepts realtime messages.
// INACTIVE is terminal; a closed room never reopens.
func (r ChatRoom) Active() bool {
	return r.Status == RoomStatusActive
}
