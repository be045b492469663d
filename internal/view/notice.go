package view

import "sync"

// NoticeLevel grades a user-visible notice.
type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeWarn  NoticeLevel = "warn"
	NoticeError NoticeLevel = "error"
)

// Notice is a non-fatal message for the user. Retry marks failures the user
// can simply try again.
type Notice struct {
	Level      NoticeLevel `json:"level"`
	Message    string      `json:"message"`
	DatabaseID string      `json:"databaseId,omitempty"`
	Retry      bool        `json:"retry,omitempty"`
}

// Notifier receives notices from view sessions.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// NoticeLog collects notices until drained.
type NoticeLog struct {
	mu      sync.Mutex
	notices []Notice
}

func (l *NoticeLog) Notify(n Notice) {
	l.mu.Lock()
	l.notices = append(l.notices, n)
	l.mu.Unlock()
}

// Drain returns and clears the collected notices.
func (l *NoticeLog) Drain() []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.notices
	l.notices = nil
	return out
}
