package controller

import "time"

// Level is the severity of a notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a user-visible notification. It stays until dismissed.
type Notice struct {
	ID      string    `json:"id"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// MissMessage is the warning shown when a commit cannot locate its
// element in the page source.
const MissMessage = "The selected element no longer exists in the page source; no changes were applied."

// ConflictMessage is the warning shown when a prompt edit comes back for
// a page that was changed in the meantime.
const ConflictMessage = "The page changed while the prompt edit was running; the rewrite was discarded."

func (c *Controller) notify(s *state, level Level, msg string) {
	s.notices = append(s.notices, Notice{
		ID:      c.noticeID(),
		Level:   level,
		Message: msg,
		At:      c.now(),
	})
	if over := len(s.notices) - maxNotices; over > 0 {
		s.notices = append(s.notices[:0:0], s.notices[over:]...)
	}
}

func (s *state) dismiss(id string) bool {
	for i, n := range s.notices {
		if n.ID == id {
			s.notices = append(s.notices[:i], s.notices[i+1:]...)
			return true
		}
	}
	return false
}
