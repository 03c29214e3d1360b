package gateway

import (
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// ErrAlreadyJoined is returned when the actor is already a participant of
// the room. Callers treat it as success: join is idempotent.
var ErrAlreadyJoined = errors.New("already joined chat room")

// IsAlreadyJoined reports whether err is the benign duplicate-join conflict.
func IsAlreadyJoined(err error) bool {
	return errors.Is(err, ErrAlreadyJoined)
}

func statusError(op string, resp *resty.Response) error {
	return fmt.Errorf("%s: gateway returned %s", op, resp.Status())
}
