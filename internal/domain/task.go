package domain

import "time"

// Location is the base position reported for a task. Values are kept as
// decimal strings and parsed only at submission time.
type Location struct {
	Lat string `json:"lat" yaml:"lat"`
	Lng string `json:"lng" yaml:"lng"`
	Acc string `json:"acc" yaml:"acc"`
}

// Session is the authenticated identity produced by a completed QR login.
type Session struct {
	Cookie  string `json:"cookie" yaml:"cookie"`
	ClassID string `json:"class_id" yaml:"class_id"`
}

// Task is one scheduled check-in job.
type Task struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Time      string    `json:"time" yaml:"time"` // HH:MM, local wall clock
	ClassID   string    `json:"class_id" yaml:"class_id"`
	Cookie    string    `json:"cookie" yaml:"cookie"`
	Location  Location  `json:"location" yaml:"location"`
	Enabled   bool      `json:"enable" yaml:"enable"`
	CreatedAt time.Time `json:"-" yaml:"-"`
}

// Session returns the cookie/course pair bound to the task.
func (t Task) Session() Session {
	return Session{Cookie: t.Cookie, ClassID: t.ClassID}
}

// WithSession returns a copy of t bound to s. An empty class id keeps the
// task's configured course.
func (t Task) WithSession(s Session) Task {
	t.Cookie = s.Cookie
	if s.ClassID != "" {
		t.ClassID = s.ClassID
	}
	return t
}

// NotifierConfig holds WeCom application credentials.
type NotifierConfig struct {
	Enable  bool   `json:"enable" yaml:"enable"`
	CorpID  string `json:"corpid" yaml:"corpid"`
	Secret  string `json:"secret" yaml:"secret"`
	AgentID string `json:"agentid" yaml:"agentid"`
	ToUser  string `json:"touser" yaml:"touser"`
}

// DefaultToUser addresses every member of the WeCom application.
const DefaultToUser = "@all"

// DefaultNotifierConfig is the notifier state of a fresh install.
func DefaultNotifierConfig() NotifierConfig {
	return NotifierConfig{ToUser: DefaultToUser}
}

// Snapshot is a read-only copy of the whole configuration taken once per tick.
type Snapshot struct {
	Tasks    []Task         `json:"tasks" yaml:"tasks"`
	Notifier NotifierConfig `json:"wecom" yaml:"wecom"`
}
