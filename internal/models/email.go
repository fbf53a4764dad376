package models

import "time"

// RawEmail is one newly discovered message as emitted by an account
// watcher, before any parsing has happened.
type RawEmail struct {
	AccountLabel string
	AccountEmail string
	UID          uint32
	Raw          []byte
	InternalDate time.Time
	TraceID      string
}

// Email represents a normalized parsed email message
type Email struct {
	MessageID    string
	AccountLabel string
	AccountEmail string
	Sender       string
	Subject      string
	Preview      string
	Received     time.Time
	Spam         bool
	TraceID      string
}
