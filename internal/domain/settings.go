package domain

// Mode gates who may run commands for a tenant.
type Mode string

const (
	ModePrivate Mode = "private"
	ModePublic  Mode = "public"
)

// ActivitySettings are the per-tenant automation toggles. All default to off.
type ActivitySettings struct {
	AutoReadMessages           bool `json:"auto_read_messages" mapstructure:"auto_read_messages"`
	AutoRecoverDeletedMessages bool `json:"auto_recover_deleted_messages" mapstructure:"auto_recover_deleted_messages"`
	AutoAntispam               bool `json:"auto_antispam" mapstructure:"auto_antispam"`
	AutoTyping                 bool `json:"auto_typing" mapstructure:"auto_typing"`
	AutoRecording              bool `json:"auto_recording" mapstructure:"auto_recording"`
	AutoRejectCalls            bool `json:"auto_reject_calls" mapstructure:"auto_reject_calls"`
	AutoAlwaysOnline           bool `json:"auto_always_online" mapstructure:"auto_always_online"`
}

// ActivityColumns lists the persisted toggle columns in a stable order.
var ActivityColumns = []string{
	"auto_read_messages",
	"auto_recover_deleted_messages",
	"auto_antispam",
	"auto_typing",
	"auto_recording",
	"auto_reject_calls",
	"auto_always_online",
}

// Get returns the toggle stored under column.
func (s ActivitySettings) Get(column string) (bool, bool) {
	switch column {
	case "auto_read_messages":
		return s.AutoReadMessages, true
	case "auto_recover_deleted_messages":
		return s.AutoRecoverDeletedMessages, true
	case "auto_antispam":
		return s.AutoAntispam, true
	case "auto_typing":
		return s.AutoTyping, true
	case "auto_recording":
		return s.AutoRecording, true
	case "auto_reject_calls":
		return s.AutoRejectCalls, true
	case "auto_always_online":
		return s.AutoAlwaysOnline, true
	}
	return false, false
}

// Set updates the toggle stored under column.
func (s *ActivitySettings) Set(column string, v bool) bool {
	switch column {
	case "auto_read_messages":
		s.AutoReadMessages = v
	case "auto_recover_deleted_messages":
		s.AutoRecoverDeletedMessages = v
	case "auto_antispam":
		s.AutoAntispam = v
	case "auto_typing":
		s.AutoTyping = v
	case "auto_recording":
		s.AutoRecording = v
	case "auto_reject_calls":
		s.AutoRejectCalls = v
	case "auto_always_online":
		s.AutoAlwaysOnline = v
	default:
		return false
	}
	return true
}

// Contact is one phone-number ↔ linked-device-id mapping row.
type Contact struct {
	PN  string `gorm:"column:pn" json:"pn"`
	LID string `gorm:"column:lid" json:"lid"`
}

// StoredMessage is a persisted raw message.
type StoredMessage struct {
	ID      string `gorm:"column:id" json:"id"`
	Seq     int64  `gorm:"column:seq" json:"seq"`
	Payload string `gorm:"column:msg" json:"message"`
}

// Filter is a keyword auto-reply rule.
type Filter struct {
	Keyword string `gorm:"column:keyword" json:"keyword"`
	Reply   string `gorm:"column:reply" json:"reply"`
	Status  bool   `gorm:"column:status" json:"status"`
}
