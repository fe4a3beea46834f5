package eventbus

import "time"

// Event types published by the send path.
const (
	TypeSent       = "notify.sent"
	TypeFailed     = "notify.failed"
	TypeSuppressed = "notify.suppressed"
	TypeIgnored    = "notify.ignored"
	TypeMigrated   = "credentials.migrated"
	TypeReloaded   = "config.reloaded"
)

// SendResult is the Data of TypeSent and TypeFailed.
type SendResult struct {
	RequestID string
	Source    string
	Override  bool
	Duration  time.Duration
	Request   string // provider request id
	Err       string
}

// Suppressed is the Data of TypeSuppressed.
type Suppressed struct {
	RequestID string
	Source    string
}

// Migrated is the Data of TypeMigrated.
type Migrated struct {
	Namespace  string
	Attributes []string
}
