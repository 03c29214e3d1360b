package transcript

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/O-HAM-MA/apartner-chat/internal/domain"
)

// Transcript is the single ordered, duplicate-free message list of one
// room, merged from three sources: REST history, live frames, and the
// viewer's own optimistic sends. Only the owning session appends to it.
type Transcript struct {
	viewerID int64
	window   time.Duration
	msgs     []domain.ChatMessage
}

func New(viewerID int64, window time.Duration) *Transcript {
	return &Transcript{viewerID: viewerID, window: window}
}

// SetHistory replaces the transcript with the gateway's history. History
// arrives pre-sorted chronologically and is not re-sorted here.
func (t *Transcript) SetHistory(msgs []domain.ChatMessage) {
	t.msgs = make([]domain.ChatMessage, len(msgs))
	for i, m := range msgs {
		t.msgs[i] = t.tag(m)
	}
}

// AppendOptimistic adds a local copy of a just-sent message so the UI
// updates without waiting for the server echo. The returned ClientID
// identifies the copy until Merge reconciles it.
func (t *Transcript) AppendOptimistic(m domain.ChatMessage) domain.ChatMessage {
	m.ClientID = uuid.NewString()
	m = t.tag(m)
	m.IsNew = true
	t.msgs = append(t.msgs, m)
	return m
}

// AppendSystem adds a synthesized lifecycle notice. System messages are
// always appended, never deduplicated against chat content.
func (t *Transcript) AppendSystem(m domain.ChatMessage) {
	m.IsSystem = true
	m.UserID = domain.SystemUserID
	m = t.tag(m)
	m.IsNew = true
	t.msgs = append(t.msgs, m)
}

// Merge folds one live frame into the transcript. It reports whether the
// frame produced a new visible entry. Duplicates are detected by server
// message id first; for the viewer's own messages a best-effort heuristic
// (same trimmed text, same sender, timestamps within the window) reconciles
// the optimistic copy with the authoritative echo instead of appending a
// visible duplicate. Sending identical text twice inside the window can
// under-merge; accepted approximation.
func (t *Transcript) Merge(m domain.ChatMessage) bool {
	m = t.tag(m)

	if m.IsSystem {
		m.IsNew = true
		t.msgs = append(t.msgs, m)
		return true
	}

	if m.MessageID != 0 {
		for _, existing := range t.msgs {
			if existing.MessageID == m.MessageID {
				return false
			}
		}
	}

	if m.IsMine {
		if i := t.findOptimistic(m); i >= 0 {
			t.msgs[i].MessageID = m.MessageID
			if m.Timestamp != "" {
				t.msgs[i].Timestamp = m.Timestamp
			}
			t.msgs[i].ClientID = ""
			return false
		}
	}

	m.IsNew = true
	t.msgs = append(t.msgs, m)
	return true
}

// findOptimistic locates the oldest unreconciled optimistic entry matching
// the echo, scanning text, sender, and timestamp distance.
func (t *Transcript) findOptimistic(echo domain.ChatMessage) int {
	echoText := strings.TrimSpace(echo.Message)
	echoAt := echo.SentAt()

	for i, m := range t.msgs {
		if m.ClientID == "" || m.MessageID != 0 {
			continue
		}
		if m.UserID != echo.UserID {
			continue
		}
		if strings.TrimSpace(m.Message) != echoText {
			continue
		}
		at := m.SentAt()
		if !at.IsZero() && !echoAt.IsZero() {
			d := echoAt.Sub(at)
			if d < 0 {
				d = -d
			}
			if d > t.window {
				continue
			}
		}
		return i
	}
	return -1
}

// ClearNew ends the one transient animation cycle of freshly appended
// messages. Purely cosmetic; identity and dedup are unaffected.
func (t *Transcript) ClearNew() {
	for i := range t.msgs {
		t.msgs[i].IsNew = false
	}
}

// Messages returns a copy of the transcript.
func (t *Transcript) Messages() []domain.ChatMessage {
	out := make([]domain.ChatMessage, len(t.msgs))
	copy(out, t.msgs)
	return out
}

func (t *Transcript) Len() int {
	return len(t.msgs)
}

func (t *Transcript) Reset() {
	t.msgs = nil
}

// tag derives the per-viewer flags. IsMine is computed here and nowhere
// else, so history and live frames cannot disagree.
func (t *Transcript) tag(m domain.ChatMessage) domain.ChatMessage {
	m.IsMine = !m.IsSystem && m.UserID == t.viewerID
	return m
}
