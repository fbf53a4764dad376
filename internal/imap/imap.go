package imap

import "time"

// Client is the mailbox collaborator used by an account watcher. The
// interface exists so watcher tests can run against a fake session.
type Client interface {
	Connect(addr string) error
	Login(user, password string) error
	Select(mailbox string) error
	ListUIDs() ([]uint32, error)
	FetchRaw(uid uint32) ([]byte, time.Time, error)
	SupportsIdle() (bool, error)
	Idle(stop <-chan struct{}) error
	Updates() <-chan struct{}
	Noop() error
	Close() error
}
